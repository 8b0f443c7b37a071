// Package notification содержит доменную модель уведомлений студентов.
// daily_practice создаётся не чаще одного раза в день на студента.
package notification

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tutorhub/tutor-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// NOTIFICATION KIND
// ══════════════════════════════════════════════════════════════════════════════

// Kind - тип уведомления.
type Kind string

const (
	// KindDailyPractice - ежедневное напоминание попрактиковаться.
	KindDailyPractice Kind = "daily_practice"
	// KindTeacherMessage - сообщение от учителя.
	KindTeacherMessage Kind = "teacher_message"
	// KindSystem - системное уведомление.
	KindSystem Kind = "system"
)

func (k Kind) IsValid() bool {
	switch k {
	case KindDailyPractice, KindTeacherMessage, KindSystem:
		return true
	default:
		return false
	}
}

// IsDailyUnique - для типа действует ограничение "одно в день".
func (k Kind) IsDailyUnique() bool {
	return k == KindDailyPractice
}

// ══════════════════════════════════════════════════════════════════════════════
// ENTITY
// ══════════════════════════════════════════════════════════════════════════════

// Notification - уведомление для студента.
type Notification struct {
	ID          string
	RecipientID string
	SenderID    string
	Kind        Kind
	Title       string
	Message     string
	Subject     string
	IsRead      bool
	DayKey      shared.DayKey
	CreatedAt   time.Time
}

// NewNotificationParams - параметры создания уведомления.
type NewNotificationParams struct {
	ID          string
	RecipientID string
	SenderID    string
	Kind        Kind
	Title       string
	Message     string
	Subject     string
	At          time.Time
	Location    *time.Location
}

// NewNotification создаёт уведомление. DayKey считается в часовом поясе Location.
func NewNotification(p NewNotificationParams) (*Notification, error) {
	if p.ID == "" || strings.TrimSpace(p.RecipientID) == "" {
		return nil, shared.ErrInvalidNotification
	}
	if !p.Kind.IsValid() {
		return nil, shared.WrapError("notification", "Validate", shared.ErrInvalidInput, "unknown notification kind", fmt.Errorf("kind=%q", p.Kind))
	}
	if strings.TrimSpace(p.Title) == "" {
		return nil, shared.NewDomainError("notification", "Validate", shared.ErrEmptyValue, "title is required")
	}
	at := p.At
	if at.IsZero() {
		at = time.Now()
	}
	return &Notification{
		ID:          p.ID,
		RecipientID: strings.TrimSpace(p.RecipientID),
		SenderID:    p.SenderID,
		Kind:        p.Kind,
		Title:       p.Title,
		Message:     p.Message,
		Subject:     p.Subject,
		DayKey:      shared.DayKeyOf(at, p.Location),
		CreatedAt:   at.UTC(),
	}, nil
}

// DailyPracticeTitle и DailyPracticeMessage формируют текст напоминания.
func DailyPracticeTitle(subject string) string {
	return fmt.Sprintf("Time for some %s practice!", displaySubject(subject))
}

func DailyPracticeMessage(subject string) string {
	return fmt.Sprintf("Keep your streak going: spend 10 minutes on %s today. Your tutor is ready when you are.", displaySubject(subject))
}

func displaySubject(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "study"
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// Repository - хранилище уведомлений.
type Repository interface {
	// Get возвращает уведомление или shared.ErrNotificationNotFound.
	Get(ctx context.Context, id string) (*Notification, error)

	// FindForDay возвращает уведомление типа kind для студента за день или shared.ErrNotificationNotFound.
	FindForDay(ctx context.Context, recipientID string, kind Kind, day shared.DayKey) (*Notification, error)

	// Insert сохраняет уведомление.
	// Для daily_practice возвращает shared.ErrNotificationExists, если за этот день уже есть.
	Insert(ctx context.Context, n *Notification) error

	// MarkRead отмечает уведомление прочитанным.
	MarkRead(ctx context.Context, id string) (*Notification, error)

	// ListForStudent возвращает уведомления студента, новые первыми.
	ListForStudent(ctx context.Context, recipientID string, unreadOnly bool, limit int) ([]*Notification, error)
}
