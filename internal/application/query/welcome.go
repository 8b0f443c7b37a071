package query

import (
	"context"
	"fmt"

	"github.com/tutorhub/tutor-hub/config"
	"github.com/tutorhub/tutor-hub/internal/domain/profile"
	"github.com/tutorhub/tutor-hub/internal/domain/session"
	"github.com/tutorhub/tutor-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// WELCOME QUERY
// Персональное приветствие и быстрые действия для экрана чата.
// ══════════════════════════════════════════════════════════════════════════════

// GetWelcomeQuery - приветствие для сессии.
type GetWelcomeQuery struct {
	SessionID string
	StudentID string
}

// QuickAction - кнопка быстрого действия.
type QuickAction struct {
	Text   string `json:"text"`
	Action string `json:"action"`
}

// WelcomeDTO - приветствие.
type WelcomeDTO struct {
	Message      string        `json:"message"`
	QuickActions []QuickAction `json:"quick_actions"`
	Level        int           `json:"level"`
	LevelTitle   string        `json:"level_title"`
	StreakDays   int           `json:"streak_days"`
}

// сколько последних сообщений смотреть для любимого предмета
const welcomeLookback = 50

// WelcomeHandler собирает приветствие.
type WelcomeHandler struct {
	sessions session.Repository
	profiles profile.Repository
	catalog  *config.Catalog
}

// NewWelcomeHandler создаёт WelcomeHandler.
func NewWelcomeHandler(sessions session.Repository, profiles profile.Repository, catalog *config.Catalog) *WelcomeHandler {
	return &WelcomeHandler{sessions: sessions, profiles: profiles, catalog: catalog}
}

// Handle возвращает приветствие. Отсутствие профиля не ошибка.
func (h *WelcomeHandler) Handle(ctx context.Context, q GetWelcomeQuery) (*WelcomeDTO, error) {
	s, err := NewChatHandler(h.sessions).owned(ctx, q.SessionID, q.StudentID)
	if err != nil {
		return nil, err
	}

	p, err := h.profiles.GetByID(ctx, s.StudentID)
	if err != nil && !shared.IsNotFound(err) {
		return nil, err
	}

	recent, err := h.sessions.RecentMessages(ctx, session.MessageQuery{StudentID: s.StudentID, Limit: welcomeLookback})
	if err != nil {
		return nil, err
	}

	favourite := h.favourite(p, s, recent)
	entry, _ := h.catalog.Subject(favourite)

	dto := &WelcomeDTO{
		Message: greeting(p, len(recent) > 0),
		QuickActions: []QuickAction{
			{Text: "Help with " + entry.DisplayName, Action: entry.Name + "_help"},
			{Text: "Start Studying", Action: "study_now"},
			{Text: "Review Previous Topics", Action: "review"},
			{Text: "Take a Practice Quiz", Action: "quiz"},
		},
		Level:      int(shared.MinLevel),
		LevelTitle: shared.MinLevel.Title(),
	}
	if p != nil {
		dto.Level = int(p.Level)
		dto.LevelTitle = p.Level.Title()
		dto.StreakDays = p.StreakDays
	}
	return dto, nil
}

// favourite: самый частый предмет в истории, затем первый интерес, затем
// предмет сессии, затем первый предмет каталога.
func (h *WelcomeHandler) favourite(p *profile.StudentProfile, s *session.ChatSession, recent []*session.ChatMessage) string {
	candidates := []string{session.ModeSubject(recent)}
	if p != nil && len(p.SubjectInterests) > 0 {
		candidates = append(candidates, p.SubjectInterests[0])
	}
	candidates = append(candidates, s.Subject)
	for _, c := range candidates {
		if c != "" && h.catalog.Has(c) {
			return c
		}
	}
	return h.catalog.SubjectNames()[0]
}

func greeting(p *profile.StudentProfile, returning bool) string {
	name := "there"
	if p != nil && p.DisplayName != "" {
		name = p.DisplayName
	}
	if !returning {
		return fmt.Sprintf("Hi %s! I'm your AI tutor, ready to help you learn and grow. What would you like to study today?", name)
	}
	msg := fmt.Sprintf("Welcome back, %s!", name)
	if p != nil && p.StreakDays > 1 {
		msg += fmt.Sprintf(" You're on a %d-day streak.", p.StreakDays)
	}
	return msg + " What shall we work on today?"
}
