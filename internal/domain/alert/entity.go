// Package alert содержит доменную модель алертов для учителей.
// Для пары (учитель, студент, тип) одновременно существует не более одного непрочитанного алерта.
package alert

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tutorhub/tutor-hub/internal/domain/shared"
)

// Kind - тип алерта.
type Kind string

const (
	KindInactive          Kind = "inactive"
	KindStruggling        Kind = "struggling"
	KindExcellentProgress Kind = "excellent_progress"
	KindNeedsAttention    Kind = "needs_attention"
)

// IsValid проверяет тип.
func (k Kind) IsValid() bool {
	switch k {
	case KindInactive, KindStruggling, KindExcellentProgress, KindNeedsAttention:
		return true
	default:
		return false
	}
}

// Alert - сообщение учителю о состоянии студента.
type Alert struct {
	ID          string
	TeacherID   string
	StudentID   string
	Kind        Kind
	Title       string
	Description string
	IsRead      bool
	CreatedAt   time.Time
	ReadAt      *time.Time
}

// Key - ключ дедупликации.
type Key struct {
	TeacherID string
	StudentID string
	Kind      Kind
}

func (k Key) String() string {
	return fmt.Sprintf("%s:%s:%s", k.TeacherID, k.StudentID, k.Kind)
}

// Key возвращает ключ дедупликации алерта.
func (a *Alert) Key() Key {
	return Key{TeacherID: a.TeacherID, StudentID: a.StudentID, Kind: a.Kind}
}

// NewAlertParams - параметры создания алерта.
type NewAlertParams struct {
	ID          string
	TeacherID   string
	StudentID   string
	Kind        Kind
	Title       string
	Description string
}

// NewAlert создаёт непрочитанный алерт.
func NewAlert(p NewAlertParams) (*Alert, error) {
	if p.ID == "" || strings.TrimSpace(p.TeacherID) == "" || strings.TrimSpace(p.StudentID) == "" {
		return nil, shared.ErrInvalidAlert
	}
	if !p.Kind.IsValid() {
		return nil, shared.WrapError("alert", "Validate", shared.ErrInvalidInput, "unknown alert kind", fmt.Errorf("kind=%q", p.Kind))
	}
	return &Alert{
		ID:          p.ID,
		TeacherID:   strings.TrimSpace(p.TeacherID),
		StudentID:   strings.TrimSpace(p.StudentID),
		Kind:        p.Kind,
		Title:       p.Title,
		Description: p.Description,
		CreatedAt:   time.Now().UTC(),
	}, nil
}

// MarkRead отмечает алерт прочитанным. Повторный вызов ничего не меняет.
func (a *Alert) MarkRead(at time.Time) {
	if a.IsRead {
		return
	}
	a.IsRead = true
	t := at.UTC()
	a.ReadAt = &t
}

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// Repository - хранилище алертов.
type Repository interface {
	// Get возвращает алерт или shared.ErrAlertNotFound.
	Get(ctx context.Context, id string) (*Alert, error)

	// FindUnread возвращает непрочитанный алерт по ключу или shared.ErrAlertNotFound.
	FindUnread(ctx context.Context, key Key) (*Alert, error)

	// Insert сохраняет алерт.
	// Возвращает shared.ErrAlertExists, если непрочитанный алерт с тем же ключом уже есть.
	Insert(ctx context.Context, a *Alert) error

	// MarkRead отмечает алерт прочитанным.
	MarkRead(ctx context.Context, id string, at time.Time) (*Alert, error)

	// ListForTeacher возвращает алерты учителя, новые первыми.
	ListForTeacher(ctx context.Context, teacherID string, unreadOnly bool, limit int) ([]*Alert, error)
}
