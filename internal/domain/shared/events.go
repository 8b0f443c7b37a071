// Package shared contains common domain types, errors, events, and value objects
// used across all domain packages.
package shared

import (
	"encoding/json"
	"time"
)

// EventType - тип доменного события.
type EventType string

// Типы событий. Формат: "<агрегат>.<что произошло>".
const (
	// Сессии и сообщения
	EventSessionStarted EventType = "chat.session_started"
	EventMessageSent    EventType = "chat.message_sent"

	// Прогресс
	EventXPAwarded     EventType = "engagement.xp_awarded"
	EventLevelUp       EventType = "engagement.level_up"
	EventStreakUpdated EventType = "engagement.streak_updated"

	// Алерты и уведомления
	EventAlertRaised         EventType = "alert.raised"
	EventNotificationCreated EventType = "notification.created"
)

// Event - базовый интерфейс доменного события.
type Event interface {
	EventType() EventType
	OccurredAt() time.Time
	AggregateID() string
	Payload() map[string]interface{}
}

// BaseEvent содержит общие поля всех событий.
type BaseEvent struct {
	Type          EventType `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	AggregateId   string    `json:"aggregate_id"`
	Version       int       `json:"version"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

func (e BaseEvent) EventType() EventType  { return e.Type }
func (e BaseEvent) OccurredAt() time.Time { return e.Timestamp }
func (e BaseEvent) AggregateID() string   { return e.AggregateId }

// NewBaseEvent создаёт базовое событие с текущим временем.
func NewBaseEvent(eventType EventType, aggregateID string) BaseEvent {
	return BaseEvent{
		Type:        eventType,
		Timestamp:   time.Now().UTC(),
		AggregateId: aggregateID,
		Version:     1,
	}
}

// WithCorrelationID проставляет correlation id (обычно request id).
func (e BaseEvent) WithCorrelationID(id string) BaseEvent {
	e.CorrelationID = id
	return e
}

// ═══════════════════════════════════════════════════════════════════════════
// Chat Events
// ═══════════════════════════════════════════════════════════════════════════

// SessionStartedEvent - студент открыл новую сессию.
type SessionStartedEvent struct {
	BaseEvent
	SessionID string `json:"session_id"`
	StudentID string `json:"student_id"`
	Subject   string `json:"subject,omitempty"`
}

func (e SessionStartedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"session_id": e.SessionID,
		"student_id": e.StudentID,
		"subject":    e.Subject,
	}
}

func NewSessionStartedEvent(sessionID, studentID, subject string) SessionStartedEvent {
	return SessionStartedEvent{
		BaseEvent: NewBaseEvent(EventSessionStarted, studentID),
		SessionID: sessionID,
		StudentID: studentID,
		Subject:   subject,
	}
}

// MessageSentEvent - сообщение обработано и сохранено.
type MessageSentEvent struct {
	BaseEvent
	MessageID string `json:"message_id"`
	SessionID string `json:"session_id"`
	StudentID string `json:"student_id"`
	Handler   string `json:"handler"`
	Subject   string `json:"subject,omitempty"`
}

func (e MessageSentEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"message_id": e.MessageID,
		"session_id": e.SessionID,
		"student_id": e.StudentID,
		"handler":    e.Handler,
		"subject":    e.Subject,
	}
}

func NewMessageSentEvent(messageID, sessionID, studentID, handler, subject string) MessageSentEvent {
	return MessageSentEvent{
		BaseEvent: NewBaseEvent(EventMessageSent, studentID),
		MessageID: messageID,
		SessionID: sessionID,
		StudentID: studentID,
		Handler:   handler,
		Subject:   subject,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Engagement Events
// ═══════════════════════════════════════════════════════════════════════════

// XPAwardedEvent - студенту начислен XP.
type XPAwardedEvent struct {
	BaseEvent
	StudentID string `json:"student_id"`
	Amount    int    `json:"amount"`
	NewTotal  int    `json:"new_total"`
	Level     int    `json:"level"`
	LeveledUp bool   `json:"leveled_up"`
}

func (e XPAwardedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"student_id": e.StudentID,
		"amount":     e.Amount,
		"new_total":  e.NewTotal,
		"level":      e.Level,
		"leveled_up": e.LeveledUp,
	}
}

func NewXPAwardedEvent(studentID string, amount, newTotal, level int, leveledUp bool) XPAwardedEvent {
	return XPAwardedEvent{
		BaseEvent: NewBaseEvent(EventXPAwarded, studentID),
		StudentID: studentID,
		Amount:    amount,
		NewTotal:  newTotal,
		Level:     level,
		LeveledUp: leveledUp,
	}
}

// StreakUpdatedEvent - администратор изменил серию дней.
type StreakUpdatedEvent struct {
	BaseEvent
	StudentID string `json:"student_id"`
	Days      int    `json:"days"`
}

func (e StreakUpdatedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"student_id": e.StudentID,
		"days":       e.Days,
	}
}

func NewStreakUpdatedEvent(studentID string, days int) StreakUpdatedEvent {
	return StreakUpdatedEvent{
		BaseEvent: NewBaseEvent(EventStreakUpdated, studentID),
		StudentID: studentID,
		Days:      days,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Alert & Notification Events
// ═══════════════════════════════════════════════════════════════════════════

// AlertRaisedEvent - учителю создан новый алерт.
type AlertRaisedEvent struct {
	BaseEvent
	AlertID   string `json:"alert_id"`
	TeacherID string `json:"teacher_id"`
	StudentID string `json:"student_id"`
	Kind      string `json:"kind"`
}

func (e AlertRaisedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"alert_id":   e.AlertID,
		"teacher_id": e.TeacherID,
		"student_id": e.StudentID,
		"kind":       e.Kind,
	}
}

func NewAlertRaisedEvent(alertID, teacherID, studentID, kind string) AlertRaisedEvent {
	return AlertRaisedEvent{
		BaseEvent: NewBaseEvent(EventAlertRaised, studentID),
		AlertID:   alertID,
		TeacherID: teacherID,
		StudentID: studentID,
		Kind:      kind,
	}
}

// NotificationCreatedEvent - студенту создано уведомление.
type NotificationCreatedEvent struct {
	BaseEvent
	NotificationID string `json:"notification_id"`
	RecipientID    string `json:"recipient_id"`
	Kind           string `json:"kind"`
	Subject        string `json:"subject,omitempty"`
}

func (e NotificationCreatedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"notification_id": e.NotificationID,
		"recipient_id":    e.RecipientID,
		"kind":            e.Kind,
		"subject":         e.Subject,
	}
}

func NewNotificationCreatedEvent(notificationID, recipientID, kind, subject string) NotificationCreatedEvent {
	return NotificationCreatedEvent{
		BaseEvent:      NewBaseEvent(EventNotificationCreated, recipientID),
		NotificationID: notificationID,
		RecipientID:    recipientID,
		Kind:           kind,
		Subject:        subject,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Event Envelope (сериализация и транспорт)
// ═══════════════════════════════════════════════════════════════════════════

// EventEnvelope - обёртка события для передачи через Redis.
type EventEnvelope struct {
	ID            string          `json:"id"`
	Type          EventType       `json:"type"`
	AggregateID   string          `json:"aggregate_id"`
	Timestamp     time.Time       `json:"timestamp"`
	Version       int             `json:"version"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

// NewEnvelope упаковывает событие. id генерирует вызывающая сторона.
func NewEnvelope(id string, event Event) (EventEnvelope, error) {
	payload, err := json.Marshal(event.Payload())
	if err != nil {
		return EventEnvelope{}, err
	}
	env := EventEnvelope{
		ID:          id,
		Type:        event.EventType(),
		AggregateID: event.AggregateID(),
		Timestamp:   event.OccurredAt(),
		Version:     1,
		Payload:     payload,
	}
	if b, ok := event.(interface{ Base() BaseEvent }); ok {
		env.Version = b.Base().Version
		env.CorrelationID = b.Base().CorrelationID
	}
	return env, nil
}

// Base возвращает базовую часть события.
func (e BaseEvent) Base() BaseEvent { return e }

// EventHandler обрабатывает событие.
type EventHandler func(event Event) error

// EventPublisher публикует события.
type EventPublisher interface {
	Publish(event Event) error
}

// EventSubscriber подписывает обработчики.
type EventSubscriber interface {
	Subscribe(eventType EventType, handler EventHandler) error
	SubscribeAll(handler EventHandler) error
}

// EventBus объединяет публикацию и подписку.
type EventBus interface {
	EventPublisher
	EventSubscriber
}

// NopPublisher отбрасывает все события.
type NopPublisher struct{}

func (NopPublisher) Publish(Event) error { return nil }
