package query

import (
	"context"

	"github.com/tutorhub/tutor-hub/internal/domain/alert"
	"github.com/tutorhub/tutor-hub/internal/domain/notification"
)

// ══════════════════════════════════════════════════════════════════════════════
// INBOX QUERIES
// Алерты учителя и уведомления студента.
// ══════════════════════════════════════════════════════════════════════════════

const defaultInboxLimit = 50

// InboxQuery - входящие получателя.
type InboxQuery struct {
	RecipientID string
	UnreadOnly  bool
	Limit       int
}

// InboxHandler читает алерты и уведомления.
type InboxHandler struct {
	alerts        alert.Repository
	notifications notification.Repository
}

// NewInboxHandler создаёт InboxHandler.
func NewInboxHandler(alerts alert.Repository, notifications notification.Repository) *InboxHandler {
	return &InboxHandler{alerts: alerts, notifications: notifications}
}

func (q InboxQuery) limit() int {
	if q.Limit <= 0 || q.Limit > 200 {
		return defaultInboxLimit
	}
	return q.Limit
}

// TeacherAlerts возвращает алерты учителя, новые первыми.
func (h *InboxHandler) TeacherAlerts(ctx context.Context, q InboxQuery) ([]AlertDTO, error) {
	list, err := h.alerts.ListForTeacher(ctx, q.RecipientID, q.UnreadOnly, q.limit())
	if err != nil {
		return nil, err
	}
	out := make([]AlertDTO, 0, len(list))
	for _, a := range list {
		out = append(out, ToAlertDTO(a))
	}
	return out, nil
}

// StudentNotifications возвращает уведомления студента, новые первыми.
func (h *InboxHandler) StudentNotifications(ctx context.Context, q InboxQuery) ([]NotificationDTO, error) {
	list, err := h.notifications.ListForStudent(ctx, q.RecipientID, q.UnreadOnly, q.limit())
	if err != nil {
		return nil, err
	}
	out := make([]NotificationDTO, 0, len(list))
	for _, n := range list {
		out = append(out, ToNotificationDTO(n))
	}
	return out, nil
}
