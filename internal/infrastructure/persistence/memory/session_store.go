package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/tutorhub/tutor-hub/internal/domain/session"
	"github.com/tutorhub/tutor-hub/internal/domain/shared"
)

// SessionStore - журнал сессий в памяти.
// Сообщения хранятся в порядке сохранения; одинаковое время не нарушает порядок.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*session.ChatSession
	messages []*session.ChatMessage
}

func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[string]*session.ChatSession)}
}

var _ session.Repository = (*SessionStore)(nil)

func (s *SessionStore) CreateSession(_ context.Context, cs *session.ChatSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[cs.ID]; ok {
		return shared.NewDomainError("session", "Create", shared.ErrAlreadyExists, "session already exists")
	}
	c := *cs
	s.sessions[cs.ID] = &c
	return nil
}

func (s *SessionStore) GetSession(_ context.Context, id string) (*session.ChatSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cs, ok := s.sessions[id]
	if !ok {
		return nil, shared.ErrSessionNotFound
	}
	c := *cs
	return &c, nil
}

func (s *SessionStore) ListSessions(_ context.Context, f session.SessionFilter) ([]*session.ChatSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*session.ChatSession, 0, len(s.sessions))
	for _, cs := range s.sessions {
		if f.StudentID != "" && cs.StudentID != f.StudentID {
			continue
		}
		c := *cs
		out = append(out, &c)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].LastActiveAt.Equal(out[j].LastActiveAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].LastActiveAt.After(out[j].LastActiveAt)
	})
	if limit := limitOr(f.Limit, session.DefaultSessionLimit); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *SessionStore) UpdateSessionActivity(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cs, ok := s.sessions[id]
	if !ok {
		return shared.ErrSessionNotFound
	}
	if at.After(cs.LastActiveAt) {
		cs.LastActiveAt = at.UTC()
	}
	return nil
}

// AppendMessage сохраняет сообщение и обновляет сессию под одной блокировкой.
func (s *SessionStore) AppendMessage(_ context.Context, m *session.ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cs, ok := s.sessions[m.SessionID]
	if !ok {
		return shared.ErrSessionNotFound
	}
	c := *m
	s.messages = append(s.messages, &c)
	cs.TotalMessages++
	if m.CreatedAt.After(cs.LastActiveAt) {
		cs.LastActiveAt = m.CreatedAt
	}
	return nil
}

func (s *SessionStore) RecentMessages(_ context.Context, q session.MessageQuery) ([]*session.ChatMessage, error) {
	if q.SessionID == "" && q.StudentID == "" {
		return nil, shared.NewDomainError("session", "RecentMessages", shared.ErrInvalidInput, "session or student id is required")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	limit := limitOr(q.Limit, 10)
	var out []*session.ChatMessage
	for i := len(s.messages) - 1; i >= 0 && len(out) < limit; i-- {
		m := s.messages[i]
		if q.SessionID != "" && m.SessionID != q.SessionID {
			continue
		}
		if q.StudentID != "" && m.StudentID != q.StudentID {
			continue
		}
		if q.Subject != "" && m.Subject != q.Subject {
			continue
		}
		if !q.Since.IsZero() && m.CreatedAt.Before(q.Since) {
			continue
		}
		c := *m
		out = append(out, &c)
	}
	// новейшее последним
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (s *SessionStore) History(_ context.Context, sessionID string, limit int) ([]*session.ChatMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	limit = limitOr(limit, session.DefaultHistoryLimit)
	var out []*session.ChatMessage
	for _, m := range s.messages {
		if m.SessionID != sessionID {
			continue
		}
		c := *m
		out = append(out, &c)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *SessionStore) CountMessages(_ context.Context, studentID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, m := range s.messages {
		if m.StudentID == studentID {
			n++
		}
	}
	return n, nil
}

func (s *SessionStore) DistinctSubjects(_ context.Context, studentID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[string]bool)
	var out []string
	for _, m := range s.messages {
		if m.StudentID != studentID || m.Subject == "" || seen[m.Subject] {
			continue
		}
		seen[m.Subject] = true
		out = append(out, m.Subject)
	}
	sort.Strings(out)
	return out, nil
}

func (s *SessionStore) ActiveStudents(_ context.Context, since time.Time) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[string]bool)
	var out []string
	for _, m := range s.messages {
		if m.CreatedAt.Before(since) || seen[m.StudentID] {
			continue
		}
		seen[m.StudentID] = true
		out = append(out, m.StudentID)
	}
	sort.Strings(out)
	return out, nil
}
