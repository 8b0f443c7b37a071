package query

import (
	"context"
	"strings"

	"github.com/tutorhub/tutor-hub/internal/domain/session"
	"github.com/tutorhub/tutor-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// CHAT QUERIES
// Сессии и история сообщений.
// ══════════════════════════════════════════════════════════════════════════════

// GetSessionQuery - одна сессия.
type GetSessionQuery struct {
	SessionID string
	// StudentID - вызывающий студент; пусто - без проверки владельца.
	StudentID string
}

// ListSessionsQuery - список сессий, новые первыми.
type ListSessionsQuery struct {
	StudentID string
	Limit     int
}

// GetHistoryQuery - история сессии по возрастанию времени.
type GetHistoryQuery struct {
	SessionID string
	StudentID string
	Limit     int
}

// ChatHandler обрабатывает запросы к журналу сессий.
type ChatHandler struct {
	sessions session.Repository
}

// NewChatHandler создаёт ChatHandler.
func NewChatHandler(sessions session.Repository) *ChatHandler {
	return &ChatHandler{sessions: sessions}
}

// GetSession возвращает сессию.
func (h *ChatHandler) GetSession(ctx context.Context, q GetSessionQuery) (*SessionDTO, error) {
	s, err := h.owned(ctx, q.SessionID, q.StudentID)
	if err != nil {
		return nil, err
	}
	dto := toSessionDTO(s)
	return &dto, nil
}

// ListSessions возвращает сессии по убыванию активности, не больше 100.
func (h *ChatHandler) ListSessions(ctx context.Context, q ListSessionsQuery) ([]SessionDTO, error) {
	limit := q.Limit
	if limit <= 0 || limit > session.DefaultSessionLimit {
		limit = session.DefaultSessionLimit
	}
	list, err := h.sessions.ListSessions(ctx, session.SessionFilter{StudentID: q.StudentID, Limit: limit})
	if err != nil {
		return nil, err
	}
	out := make([]SessionDTO, 0, len(list))
	for _, s := range list {
		out = append(out, toSessionDTO(s))
	}
	return out, nil
}

// GetHistory возвращает до 1000 сообщений сессии.
func (h *ChatHandler) GetHistory(ctx context.Context, q GetHistoryQuery) ([]MessageDTO, error) {
	if _, err := h.owned(ctx, q.SessionID, q.StudentID); err != nil {
		return nil, err
	}
	limit := q.Limit
	if limit <= 0 || limit > session.DefaultHistoryLimit {
		limit = session.DefaultHistoryLimit
	}
	msgs, err := h.sessions.History(ctx, q.SessionID, limit)
	if err != nil {
		return nil, err
	}
	out := make([]MessageDTO, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, ToMessageDTO(m))
	}
	return out, nil
}

func (h *ChatHandler) owned(ctx context.Context, sessionID, studentID string) (*session.ChatSession, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, shared.NewDomainError("session", "Get", shared.ErrInvalidID, "session id is required")
	}
	s, err := h.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if studentID != "" && s.StudentID != studentID {
		return nil, shared.ErrSessionOwner
	}
	return s, nil
}
