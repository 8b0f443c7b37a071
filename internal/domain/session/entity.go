// Package session содержит доменную модель чат-сессий и сообщений.
// Сообщение неизменяемо после сохранения. Порядок сообщений задаёт время сохранения.
package session

import (
	"strings"
	"time"

	"github.com/tutorhub/tutor-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER TAG
// ══════════════════════════════════════════════════════════════════════════════

// HandlerTag - какой обработчик ответил: "general", "support" или "subject:<name>".
type HandlerTag string

const (
	TagGeneral HandlerTag = "general"
	TagSupport HandlerTag = "support"

	subjectTagPrefix = "subject:"
)

// SubjectTag строит тег предметного обработчика.
func SubjectTag(subject string) HandlerTag {
	return HandlerTag(subjectTagPrefix + string(shared.NormalizeSubject(subject)))
}

// Subject возвращает предмет для тега "subject:<name>", иначе пустую строку.
func (t HandlerTag) Subject() string {
	if s, ok := strings.CutPrefix(string(t), subjectTagPrefix); ok {
		return s
	}
	return ""
}

// IsSubject - тег предметного обработчика.
func (t HandlerTag) IsSubject() bool { return t.Subject() != "" }

// IsValid проверяет формат тега.
func (t HandlerTag) IsValid() bool {
	return t == TagGeneral || t == TagSupport || t.IsSubject()
}

func (t HandlerTag) String() string { return string(t) }

// ══════════════════════════════════════════════════════════════════════════════
// CLASSIFICATION METADATA
// ══════════════════════════════════════════════════════════════════════════════

// Mood - настроение студента, вычисленное классификатором.
type Mood string

const (
	MoodNeutral    Mood = "neutral"
	MoodConfused   Mood = "confused"
	MoodFrustrated Mood = "frustrated"
	MoodExcited    Mood = "excited"
	MoodStressed   Mood = "stressed"
)

// Urgency - срочность запроса.
type Urgency string

const (
	UrgencyLow    Urgency = "low"
	UrgencyMedium Urgency = "medium"
	UrgencyHigh   Urgency = "high"
)

// Difficulty - уровень сложности вопроса.
type Difficulty string

const (
	DifficultyElementary Difficulty = "elementary"
	DifficultyMiddle     Difficulty = "middle_school"
	DifficultyHigh       Difficulty = "high_school"
	DifficultyAdvanced   Difficulty = "advanced"
)

// Classification - рекомендательные метаданные, сохраняются вместе с сообщением.
type Classification struct {
	Topic      string     `json:"topic,omitempty"`
	Difficulty Difficulty `json:"difficulty,omitempty"`
	Urgency    Urgency    `json:"urgency,omitempty"`
	Mood       Mood       `json:"mood,omitempty"`
}

// ══════════════════════════════════════════════════════════════════════════════
// ENTITIES
// ══════════════════════════════════════════════════════════════════════════════

// ChatSession - диалог студента с тьютором.
type ChatSession struct {
	ID            string
	StudentID     string
	StudentName   string
	Subject       string
	CreatedAt     time.Time
	LastActiveAt  time.Time
	TotalMessages int
}

// NewChatSession создаёт сессию.
func NewChatSession(id, studentID, studentName, subject string) (*ChatSession, error) {
	if id == "" {
		return nil, shared.NewDomainError("session", "Create", shared.ErrInvalidID, "session id is required")
	}
	if strings.TrimSpace(studentID) == "" {
		return nil, shared.ErrInvalidStudentID
	}
	now := time.Now().UTC()
	return &ChatSession{
		ID:           id,
		StudentID:    strings.TrimSpace(studentID),
		StudentName:  strings.TrimSpace(studentName),
		Subject:      string(shared.NormalizeSubject(subject)),
		CreatedAt:    now,
		LastActiveAt: now,
	}, nil
}

// ChatMessage - пара "вопрос студента / ответ тьютора". Неизменяемо.
type ChatMessage struct {
	ID             string
	SessionID      string
	StudentID      string
	Subject        string
	UserText       string
	ResponseText   string
	Handler        HandlerTag
	Classification Classification
	CreatedAt      time.Time
}

// NewMessageParams - параметры нового сообщения.
type NewMessageParams struct {
	ID             string
	SessionID      string
	StudentID      string
	Subject        string
	UserText       string
	ResponseText   string
	Handler        HandlerTag
	Classification Classification
	At             time.Time
}

// NewChatMessage создаёт сообщение с валидацией.
func NewChatMessage(p NewMessageParams) (*ChatMessage, error) {
	if p.ID == "" || p.SessionID == "" {
		return nil, shared.NewDomainError("session", "NewMessage", shared.ErrInvalidID, "message and session ids are required")
	}
	if strings.TrimSpace(p.UserText) == "" {
		return nil, shared.ErrEmptyMessage
	}
	if !p.Handler.IsValid() {
		return nil, shared.NewDomainError("session", "NewMessage", shared.ErrInvalidInput, "invalid handler tag")
	}
	at := p.At
	if at.IsZero() {
		at = time.Now()
	}
	return &ChatMessage{
		ID:             p.ID,
		SessionID:      p.SessionID,
		StudentID:      p.StudentID,
		Subject:        string(shared.NormalizeSubject(p.Subject)),
		UserText:       p.UserText,
		ResponseText:   p.ResponseText,
		Handler:        p.Handler,
		Classification: p.Classification,
		CreatedAt:      at.UTC(),
	}, nil
}
