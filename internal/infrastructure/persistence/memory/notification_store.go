package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/tutorhub/tutor-hub/internal/domain/notification"
	"github.com/tutorhub/tutor-hub/internal/domain/shared"
)

type dayKey struct {
	recipient string
	kind      notification.Kind
	day       shared.DayKey
}

// NotificationStore - уведомления в памяти с уникальностью (получатель, тип, день)
// для ежедневных типов.
type NotificationStore struct {
	mu    sync.RWMutex
	items map[string]*notification.Notification
	daily map[dayKey]string
}

func NewNotificationStore() *NotificationStore {
	return &NotificationStore{
		items: make(map[string]*notification.Notification),
		daily: make(map[dayKey]string),
	}
}

var _ notification.Repository = (*NotificationStore)(nil)

func (s *NotificationStore) Get(_ context.Context, id string) (*notification.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.items[id]
	if !ok {
		return nil, shared.ErrNotificationNotFound
	}
	c := *n
	return &c, nil
}

func (s *NotificationStore) FindForDay(_ context.Context, recipientID string, kind notification.Kind, day shared.DayKey) (*notification.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if id, ok := s.daily[dayKey{recipientID, kind, day}]; ok {
		c := *s.items[id]
		return &c, nil
	}
	for _, n := range s.items {
		if n.RecipientID == recipientID && n.Kind == kind && n.DayKey == day {
			c := *n
			return &c, nil
		}
	}
	return nil, shared.ErrNotificationNotFound
}

func (s *NotificationStore) Insert(_ context.Context, n *notification.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n.Kind.IsDailyUnique() {
		k := dayKey{n.RecipientID, n.Kind, n.DayKey}
		if _, dup := s.daily[k]; dup {
			return shared.ErrNotificationExists
		}
		s.daily[k] = n.ID
	}
	c := *n
	s.items[n.ID] = &c
	return nil
}

func (s *NotificationStore) MarkRead(_ context.Context, id string) (*notification.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.items[id]
	if !ok {
		return nil, shared.ErrNotificationNotFound
	}
	n.IsRead = true
	c := *n
	return &c, nil
}

func (s *NotificationStore) ListForStudent(_ context.Context, recipientID string, unreadOnly bool, limit int) ([]*notification.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*notification.Notification
	for _, n := range s.items {
		if n.RecipientID != recipientID || (unreadOnly && n.IsRead) {
			continue
		}
		c := *n
		out = append(out, &c)
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

// Count - число уведомлений, для тестов идемпотентности.
func (s *NotificationStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}
