package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/tutorhub/tutor-hub/internal/domain/alert"
	"github.com/tutorhub/tutor-hub/internal/domain/shared"
)

// AlertStore - алерты в памяти. Индекс unread повторяет частичный
// уникальный индекс PostgreSQL по непрочитанным алертам.
type AlertStore struct {
	mu     sync.RWMutex
	alerts map[string]*alert.Alert
	unread map[alert.Key]string
}

func NewAlertStore() *AlertStore {
	return &AlertStore{
		alerts: make(map[string]*alert.Alert),
		unread: make(map[alert.Key]string),
	}
}

var _ alert.Repository = (*AlertStore)(nil)

func (s *AlertStore) Get(_ context.Context, id string) (*alert.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.alerts[id]
	if !ok {
		return nil, shared.ErrAlertNotFound
	}
	return copyAlert(a), nil
}

func (s *AlertStore) FindUnread(_ context.Context, key alert.Key) (*alert.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.unread[key]
	if !ok {
		return nil, shared.ErrAlertNotFound
	}
	return copyAlert(s.alerts[id]), nil
}

func (s *AlertStore) Insert(_ context.Context, a *alert.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !a.IsRead {
		if _, dup := s.unread[a.Key()]; dup {
			return shared.ErrAlertExists
		}
		s.unread[a.Key()] = a.ID
	}
	s.alerts[a.ID] = copyAlert(a)
	return nil
}

func (s *AlertStore) MarkRead(_ context.Context, id string, at time.Time) (*alert.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.alerts[id]
	if !ok {
		return nil, shared.ErrAlertNotFound
	}
	if !a.IsRead {
		a.MarkRead(at)
		delete(s.unread, a.Key())
	}
	return copyAlert(a), nil
}

func (s *AlertStore) ListForTeacher(_ context.Context, teacherID string, unreadOnly bool, limit int) ([]*alert.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*alert.Alert
	for _, a := range s.alerts {
		if a.TeacherID != teacherID || (unreadOnly && a.IsRead) {
			continue
		}
		out = append(out, copyAlert(a))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit = limitOr(limit, 100); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func copyAlert(a *alert.Alert) *alert.Alert {
	c := *a
	if a.ReadAt != nil {
		t := *a.ReadAt
		c.ReadAt = &t
	}
	return &c
}
