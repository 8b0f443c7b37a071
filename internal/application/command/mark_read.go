package command

import (
	"context"
	"strings"
	"time"

	"github.com/tutorhub/tutor-hub/internal/domain/alert"
	"github.com/tutorhub/tutor-hub/internal/domain/notification"
	"github.com/tutorhub/tutor-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// MARK READ COMMANDS
// Reading an alert clears the dedup barrier for its kind.
// ══════════════════════════════════════════════════════════════════════════════

// MarkAlertReadCommand marks a teacher alert read.
type MarkAlertReadCommand struct {
	AlertID string
	// TeacherID is the caller; empty skips the ownership check.
	TeacherID string
}

// MarkNotificationReadCommand marks a student notification read.
type MarkNotificationReadCommand struct {
	NotificationID string
	// StudentID is the caller; empty skips the ownership check.
	StudentID string
}

// MarkReadHandler handles both mark-read commands.
type MarkReadHandler struct {
	alerts        alert.Repository
	notifications notification.Repository
	now           func() time.Time
}

// NewMarkReadHandler creates a MarkReadHandler.
func NewMarkReadHandler(alerts alert.Repository, notifications notification.Repository) *MarkReadHandler {
	return &MarkReadHandler{alerts: alerts, notifications: notifications, now: time.Now}
}

// MarkAlert marks the alert read. Marking twice is a no-op.
func (h *MarkReadHandler) MarkAlert(ctx context.Context, cmd MarkAlertReadCommand) (*alert.Alert, error) {
	if strings.TrimSpace(cmd.AlertID) == "" {
		return nil, shared.NewDomainError("alert", "MarkRead", shared.ErrInvalidID, "alert id is required")
	}
	a, err := h.alerts.Get(ctx, cmd.AlertID)
	if err != nil {
		return nil, err
	}
	if cmd.TeacherID != "" && a.TeacherID != cmd.TeacherID {
		return nil, shared.NewDomainError("alert", "MarkRead", shared.ErrForbidden, "alert belongs to another teacher")
	}
	if a.IsRead {
		return a, nil
	}
	return h.alerts.MarkRead(ctx, a.ID, h.now())
}

// MarkNotification marks the notification read.
func (h *MarkReadHandler) MarkNotification(ctx context.Context, cmd MarkNotificationReadCommand) (*notification.Notification, error) {
	if strings.TrimSpace(cmd.NotificationID) == "" {
		return nil, shared.NewDomainError("notification", "MarkRead", shared.ErrInvalidID, "notification id is required")
	}
	n, err := h.notifications.Get(ctx, cmd.NotificationID)
	if err != nil {
		return nil, err
	}
	if cmd.StudentID != "" && n.RecipientID != cmd.StudentID {
		return nil, shared.NewDomainError("notification", "MarkRead", shared.ErrForbidden, "notification belongs to another student")
	}
	return h.notifications.MarkRead(ctx, n.ID)
}
