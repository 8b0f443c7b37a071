package session

import (
	"context"
	"time"
)

// Лимиты выборок.
const (
	DefaultHistoryLimit = 1000
	DefaultSessionLimit = 100
)

// MessageQuery - выборка последних сообщений.
// Должен быть задан SessionID или StudentID.
type MessageQuery struct {
	SessionID string
	StudentID string
	Subject   string
	Since     time.Time
	Limit     int
}

// SessionFilter - фильтр списка сессий.
type SessionFilter struct {
	StudentID string
	Limit     int
}

// Repository - журнал сессий (Session Log).
type Repository interface {
	// CreateSession сохраняет новую сессию.
	CreateSession(ctx context.Context, s *ChatSession) error

	// GetSession возвращает сессию или shared.ErrSessionNotFound.
	GetSession(ctx context.Context, id string) (*ChatSession, error)

	// ListSessions - сессии по убыванию last_active.
	ListSessions(ctx context.Context, f SessionFilter) ([]*ChatSession, error)

	// UpdateSessionActivity сдвигает last_active сессии вперёд.
	UpdateSessionActivity(ctx context.Context, id string, at time.Time) error

	// AppendMessage сохраняет сообщение и обновляет счётчик и last_active сессии атомарно.
	AppendMessage(ctx context.Context, m *ChatMessage) error

	// RecentMessages возвращает последние Limit сообщений, новейшее последним.
	RecentMessages(ctx context.Context, q MessageQuery) ([]*ChatMessage, error)

	// History возвращает сообщения сессии по возрастанию времени.
	History(ctx context.Context, sessionID string, limit int) ([]*ChatMessage, error)

	// CountMessages - сколько сообщений отправил студент.
	CountMessages(ctx context.Context, studentID string) (int, error)

	// DistinctSubjects - предметы, по которым студент писал.
	DistinctSubjects(ctx context.Context, studentID string) ([]string, error)

	// ActiveStudents - студенты с сообщениями после since.
	ActiveStudents(ctx context.Context, since time.Time) ([]string, error)
}
