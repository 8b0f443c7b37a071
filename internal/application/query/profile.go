package query

import (
	"context"
	"time"

	"github.com/tutorhub/tutor-hub/internal/domain/profile"
	"github.com/tutorhub/tutor-hub/internal/domain/session"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROFILE QUERY
// Профиль студента с прогрессом и статистикой чата.
// ══════════════════════════════════════════════════════════════════════════════

// ProfileDTO - профиль для API.
type ProfileDTO struct {
	StudentID        string    `json:"student_id"`
	DisplayName      string    `json:"display_name"`
	GradeLevel       string    `json:"grade_level,omitempty"`
	SubjectInterests []string  `json:"subject_interests"`
	TeacherID        string    `json:"teacher_id,omitempty"`
	JoinedClasses    []string  `json:"joined_classes"`
	XP               int       `json:"xp"`
	Level            int       `json:"level"`
	LevelTitle       string    `json:"level_title"`
	XPToNextLevel    int       `json:"xp_to_next_level"`
	StreakDays       int       `json:"streak_days"`
	MessageCount     int       `json:"message_count"`
	Subjects         []string  `json:"subjects"`
	LastActive       time.Time `json:"last_active"`
}

// ProfileHandler читает профиль.
type ProfileHandler struct {
	profiles profile.Repository
	sessions session.Repository
}

// NewProfileHandler создаёт ProfileHandler.
func NewProfileHandler(profiles profile.Repository, sessions session.Repository) *ProfileHandler {
	return &ProfileHandler{profiles: profiles, sessions: sessions}
}

// Handle возвращает профиль студента.
func (h *ProfileHandler) Handle(ctx context.Context, studentID string) (*ProfileDTO, error) {
	p, err := h.profiles.GetByID(ctx, studentID)
	if err != nil {
		return nil, err
	}
	count, err := h.sessions.CountMessages(ctx, studentID)
	if err != nil {
		return nil, err
	}
	subjects, err := h.sessions.DistinctSubjects(ctx, studentID)
	if err != nil {
		return nil, err
	}
	return ToProfileDTO(p, count, subjects), nil
}

// ToProfileDTO конвертирует профиль.
func ToProfileDTO(p *profile.StudentProfile, messages int, subjects []string) *ProfileDTO {
	if subjects == nil {
		subjects = []string{}
	}
	next := (p.Level + 1).RequiredXP()
	return &ProfileDTO{
		StudentID:        p.ID,
		DisplayName:      p.DisplayName,
		GradeLevel:       p.GradeLevel,
		SubjectInterests: append([]string{}, p.SubjectInterests...),
		TeacherID:        p.TeacherID,
		JoinedClasses:    append([]string{}, p.JoinedClasses...),
		XP:               int(p.XP),
		Level:            int(p.Level),
		LevelTitle:       p.Level.Title(),
		XPToNextLevel:    max(0, int(next-p.XP)),
		StreakDays:       p.StreakDays,
		MessageCount:     messages,
		Subjects:         subjects,
		LastActive:       p.LastActiveAt,
	}
}
