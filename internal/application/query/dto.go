// Package query contains read operations (CQRS - Queries).
package query

import (
	"time"

	"github.com/tutorhub/tutor-hub/internal/domain/alert"
	"github.com/tutorhub/tutor-hub/internal/domain/notification"
	"github.com/tutorhub/tutor-hub/internal/domain/session"
)

// SessionDTO - сессия для API.
type SessionDTO struct {
	ID            string    `json:"id"`
	StudentID     string    `json:"student_id"`
	StudentName   string    `json:"student_name,omitempty"`
	Subject       string    `json:"subject,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	LastActive    time.Time `json:"last_active"`
	TotalMessages int       `json:"total_messages"`
}

// MessageDTO - сообщение для API.
type MessageDTO struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"session_id"`
	UserMessage string    `json:"user_message"`
	BotResponse string    `json:"bot_response"`
	Handler     string    `json:"handler"`
	Subject     string    `json:"subject,omitempty"`
	Topic       string    `json:"topic,omitempty"`
	Difficulty  string    `json:"difficulty,omitempty"`
	Urgency     string    `json:"urgency,omitempty"`
	Mood        string    `json:"mood,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// AlertDTO - алерт для учителя.
type AlertDTO struct {
	ID          string     `json:"id"`
	StudentID   string     `json:"student_id"`
	Kind        string     `json:"kind"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	IsRead      bool       `json:"is_read"`
	CreatedAt   time.Time  `json:"created_at"`
	ReadAt      *time.Time `json:"read_at,omitempty"`
}

// NotificationDTO - уведомление для студента.
type NotificationDTO struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Subject   string    `json:"subject,omitempty"`
	IsRead    bool      `json:"is_read"`
	Day       string    `json:"day"`
	CreatedAt time.Time `json:"created_at"`
}

func toSessionDTO(s *session.ChatSession) SessionDTO {
	return SessionDTO{
		ID:            s.ID,
		StudentID:     s.StudentID,
		StudentName:   s.StudentName,
		Subject:       s.Subject,
		CreatedAt:     s.CreatedAt,
		LastActive:    s.LastActiveAt,
		TotalMessages: s.TotalMessages,
	}
}

// ToMessageDTO конвертирует сообщение. Используется и командным слоем HTTP.
func ToMessageDTO(m *session.ChatMessage) MessageDTO {
	return MessageDTO{
		ID:          m.ID,
		SessionID:   m.SessionID,
		UserMessage: m.UserText,
		BotResponse: m.ResponseText,
		Handler:     m.Handler.String(),
		Subject:     m.Subject,
		Topic:       m.Classification.Topic,
		Difficulty:  string(m.Classification.Difficulty),
		Urgency:     string(m.Classification.Urgency),
		Mood:        string(m.Classification.Mood),
		Timestamp:   m.CreatedAt,
	}
}

// ToAlertDTO конвертирует алерт.
func ToAlertDTO(a *alert.Alert) AlertDTO {
	return AlertDTO{
		ID:          a.ID,
		StudentID:   a.StudentID,
		Kind:        string(a.Kind),
		Title:       a.Title,
		Description: a.Description,
		IsRead:      a.IsRead,
		CreatedAt:   a.CreatedAt,
		ReadAt:      a.ReadAt,
	}
}

// ToNotificationDTO конвертирует уведомление.
func ToNotificationDTO(n *notification.Notification) NotificationDTO {
	return NotificationDTO{
		ID:        n.ID,
		Kind:      string(n.Kind),
		Title:     n.Title,
		Message:   n.Message,
		Subject:   n.Subject,
		IsRead:    n.IsRead,
		Day:       n.DayKey.String(),
		CreatedAt: n.CreatedAt,
	}
}

// ToSessionDTO конвертирует сессию.
func ToSessionDTO(s *session.ChatSession) SessionDTO { return toSessionDTO(s) }
