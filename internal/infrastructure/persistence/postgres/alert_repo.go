package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/tutorhub/tutor-hub/internal/domain/alert"
	"github.com/tutorhub/tutor-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ALERT REPOSITORY
// Уникальность непрочитанного алерта держит частичный индекс uq_teacher_alerts_unread.
// ══════════════════════════════════════════════════════════════════════════════

const alertColumns = `id, teacher_id, student_id, kind, title, description, is_read, created_at, read_at`

// AlertRepository реализует alert.Repository.
type AlertRepository struct {
	conn *Connection
}

// NewAlertRepository создаёт AlertRepository.
func NewAlertRepository(conn *Connection) *AlertRepository {
	return &AlertRepository{conn: conn}
}

var _ alert.Repository = (*AlertRepository)(nil)

func (r *AlertRepository) Get(ctx context.Context, id string) (*alert.Alert, error) {
	return scanAlert(r.conn.QueryRow(ctx, `SELECT `+alertColumns+` FROM teacher_alerts WHERE id = $1`, id))
}

func (r *AlertRepository) FindUnread(ctx context.Context, key alert.Key) (*alert.Alert, error) {
	return scanAlert(r.conn.QueryRow(ctx, `SELECT `+alertColumns+` FROM teacher_alerts
		WHERE teacher_id = $1 AND student_id = $2 AND kind = $3 AND NOT is_read`,
		key.TeacherID, key.StudentID, string(key.Kind)))
}

// Insert вставляет алерт. ON CONFLICT DO NOTHING превращает гонку двух вставок в ErrAlertExists.
func (r *AlertRepository) Insert(ctx context.Context, a *alert.Alert) error {
	tag, err := r.conn.Exec(ctx, `INSERT INTO teacher_alerts (`+alertColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (teacher_id, student_id, kind) WHERE NOT is_read DO NOTHING`,
		a.ID, a.TeacherID, a.StudentID, string(a.Kind), a.Title, a.Description, a.IsRead, a.CreatedAt, a.ReadAt)
	if err != nil {
		return fmt.Errorf("failed to insert alert: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrAlertExists
	}
	return nil
}

func (r *AlertRepository) MarkRead(ctx context.Context, id string, at time.Time) (*alert.Alert, error) {
	return scanAlert(r.conn.QueryRow(ctx, `UPDATE teacher_alerts
		SET is_read = TRUE, read_at = COALESCE(read_at, $2)
		WHERE id = $1
		RETURNING `+alertColumns, id, at.UTC()))
}

func (r *AlertRepository) ListForTeacher(ctx context.Context, teacherID string, unreadOnly bool, limit int) ([]*alert.Alert, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.conn.Query(ctx, `SELECT `+alertColumns+` FROM teacher_alerts
		WHERE teacher_id = $1 AND ($2 = FALSE OR NOT is_read)
		ORDER BY created_at DESC, id LIMIT $3`, teacherID, unreadOnly, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	defer rows.Close()

	var out []*alert.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func scanAlert(row pgx.Row) (*alert.Alert, error) {
	var (
		a    alert.Alert
		kind string
	)
	err := row.Scan(&a.ID, &a.TeacherID, &a.StudentID, &kind, &a.Title, &a.Description, &a.IsRead, &a.CreatedAt, &a.ReadAt)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrAlertNotFound
		}
		return nil, fmt.Errorf("failed to scan alert: %w", err)
	}
	a.Kind = alert.Kind(kind)
	return &a, nil
}
