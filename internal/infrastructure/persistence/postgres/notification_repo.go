package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/tutorhub/tutor-hub/internal/domain/notification"
	"github.com/tutorhub/tutor-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// NOTIFICATION REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

const notificationColumns = `id, recipient_id, sender_id, kind, title, message, subject, is_read, day_key, created_at`

// NotificationRepository реализует notification.Repository.
type NotificationRepository struct {
	conn *Connection
}

// NewNotificationRepository создаёт NotificationRepository.
func NewNotificationRepository(conn *Connection) *NotificationRepository {
	return &NotificationRepository{conn: conn}
}

var _ notification.Repository = (*NotificationRepository)(nil)

func (r *NotificationRepository) Get(ctx context.Context, id string) (*notification.Notification, error) {
	return scanNotification(r.conn.QueryRow(ctx, `SELECT `+notificationColumns+` FROM notifications WHERE id = $1`, id))
}

func (r *NotificationRepository) FindForDay(ctx context.Context, recipientID string, kind notification.Kind, day shared.DayKey) (*notification.Notification, error) {
	return scanNotification(r.conn.QueryRow(ctx, `SELECT `+notificationColumns+` FROM notifications
		WHERE recipient_id = $1 AND kind = $2 AND day_key = $3::date
		ORDER BY created_at LIMIT 1`, recipientID, string(kind), day.String()))
}

// Insert вставляет уведомление. Дубль daily_practice за день отсекает uq_notifications_daily.
func (r *NotificationRepository) Insert(ctx context.Context, n *notification.Notification) error {
	tag, err := r.conn.Exec(ctx, `INSERT INTO notifications (`+notificationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::date, $10)
		ON CONFLICT (recipient_id, kind, day_key) WHERE kind = 'daily_practice' DO NOTHING`,
		n.ID, n.RecipientID, n.SenderID, string(n.Kind), n.Title, n.Message, n.Subject, n.IsRead, n.DayKey.String(), n.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert notification: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotificationExists
	}
	return nil
}

func (r *NotificationRepository) MarkRead(ctx context.Context, id string) (*notification.Notification, error) {
	return scanNotification(r.conn.QueryRow(ctx, `UPDATE notifications SET is_read = TRUE WHERE id = $1
		RETURNING `+notificationColumns, id))
}

func (r *NotificationRepository) ListForStudent(ctx context.Context, recipientID string, unreadOnly bool, limit int) ([]*notification.Notification, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.conn.Query(ctx, `SELECT `+notificationColumns+` FROM notifications
		WHERE recipient_id = $1 AND ($2 = FALSE OR NOT is_read)
		ORDER BY created_at DESC, id LIMIT $3`, recipientID, unreadOnly, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()

	var out []*notification.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func scanNotification(row pgx.Row) (*notification.Notification, error) {
	var (
		n    notification.Notification
		kind string
		day  time.Time
	)
	err := row.Scan(&n.ID, &n.RecipientID, &n.SenderID, &kind, &n.Title, &n.Message, &n.Subject, &n.IsRead, &day, &n.CreatedAt)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrNotificationNotFound
		}
		return nil, fmt.Errorf("failed to scan notification: %w", err)
	}
	n.Kind = notification.Kind(kind)
	n.DayKey = shared.DayKey(day.Format("2006-01-02"))
	return &n, nil
}
