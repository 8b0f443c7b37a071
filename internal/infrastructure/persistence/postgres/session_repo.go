package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/tutorhub/tutor-hub/internal/domain/session"
	"github.com/tutorhub/tutor-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// SESSION LOG REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

const (
	sessionColumns = `id, student_id, student_name, subject, total_messages, created_at, last_active_at`
	messageColumns = `id, session_id, student_id, subject, user_message, bot_response, handler, classification, created_at`
)

// SessionRepository реализует session.Repository.
type SessionRepository struct {
	conn *Connection
}

// NewSessionRepository создаёт SessionRepository.
func NewSessionRepository(conn *Connection) *SessionRepository {
	return &SessionRepository{conn: conn}
}

var _ session.Repository = (*SessionRepository)(nil)

func (r *SessionRepository) CreateSession(ctx context.Context, s *session.ChatSession) error {
	_, err := r.conn.Exec(ctx, `INSERT INTO chat_sessions (`+sessionColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		s.ID, s.StudentID, s.StudentName, s.Subject, s.TotalMessages, s.CreatedAt, s.LastActiveAt)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

func (r *SessionRepository) GetSession(ctx context.Context, id string) (*session.ChatSession, error) {
	return scanSession(r.conn.QueryRow(ctx, `SELECT `+sessionColumns+` FROM chat_sessions WHERE id = $1`, id))
}

func (r *SessionRepository) ListSessions(ctx context.Context, f session.SessionFilter) ([]*session.ChatSession, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = session.DefaultSessionLimit
	}
	var (
		rows pgx.Rows
		err  error
	)
	if f.StudentID != "" {
		rows, err = r.conn.Query(ctx, `SELECT `+sessionColumns+` FROM chat_sessions
			WHERE student_id = $1 ORDER BY last_active_at DESC, id LIMIT $2`, f.StudentID, limit)
	} else {
		rows, err = r.conn.Query(ctx, `SELECT `+sessionColumns+` FROM chat_sessions
			ORDER BY last_active_at DESC, id LIMIT $1`, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var out []*session.ChatSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *SessionRepository) UpdateSessionActivity(ctx context.Context, id string, at time.Time) error {
	tag, err := r.conn.Exec(ctx, `UPDATE chat_sessions SET last_active_at = GREATEST(last_active_at, $2) WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrSessionNotFound
	}
	return nil
}

// AppendMessage пишет сообщение и двигает счётчик сессии в одной транзакции.
func (r *SessionRepository) AppendMessage(ctx context.Context, m *session.ChatMessage) error {
	return r.conn.WithTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `UPDATE chat_sessions
			SET total_messages = total_messages + 1, last_active_at = GREATEST(last_active_at, $2)
			WHERE id = $1`, m.SessionID, m.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to update session: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return shared.ErrSessionNotFound
		}
		_, err = tx.Exec(ctx, `INSERT INTO chat_messages (`+messageColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			m.ID, m.SessionID, m.StudentID, m.Subject, m.UserText, m.ResponseText, m.Handler.String(), m.Classification, m.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert message: %w", err)
		}
		return nil
	})
}

// RecentMessages выбирает последние сообщения и разворачивает их по возрастанию.
func (r *SessionRepository) RecentMessages(ctx context.Context, q session.MessageQuery) ([]*session.ChatMessage, error) {
	if q.SessionID == "" && q.StudentID == "" {
		return nil, shared.NewDomainError("session", "RecentMessages", shared.ErrInvalidInput, "session or student id is required")
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 10
	}

	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if q.SessionID != "" {
		add("session_id = $%d", q.SessionID)
	}
	if q.StudentID != "" {
		add("student_id = $%d", q.StudentID)
	}
	if q.Subject != "" {
		add("subject = $%d", q.Subject)
	}
	if !q.Since.IsZero() {
		add("created_at >= $%d", q.Since)
	}
	args = append(args, limit)

	sql := fmt.Sprintf(`SELECT %s FROM chat_messages WHERE %s ORDER BY created_at DESC, id DESC LIMIT $%d`,
		messageColumns, strings.Join(where, " AND "), len(args))
	msgs, err := r.queryMessages(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

func (r *SessionRepository) History(ctx context.Context, sessionID string, limit int) ([]*session.ChatMessage, error) {
	if limit <= 0 {
		limit = session.DefaultHistoryLimit
	}
	return r.queryMessages(ctx, `SELECT `+messageColumns+` FROM chat_messages
		WHERE session_id = $1 ORDER BY created_at, id LIMIT $2`, sessionID, limit)
}

func (r *SessionRepository) CountMessages(ctx context.Context, studentID string) (int, error) {
	var n int
	if err := r.conn.QueryRow(ctx, `SELECT count(*) FROM chat_messages WHERE student_id = $1`, studentID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}
	return n, nil
}

func (r *SessionRepository) DistinctSubjects(ctx context.Context, studentID string) ([]string, error) {
	rows, err := r.conn.Query(ctx, `SELECT DISTINCT subject FROM chat_messages
		WHERE student_id = $1 AND subject <> '' ORDER BY subject`, studentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list subjects: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func (r *SessionRepository) ActiveStudents(ctx context.Context, since time.Time) ([]string, error) {
	rows, err := r.conn.Query(ctx, `SELECT DISTINCT student_id FROM chat_messages
		WHERE created_at >= $1 ORDER BY student_id`, since)
	if err != nil {
		return nil, fmt.Errorf("failed to list active students: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func (r *SessionRepository) queryMessages(ctx context.Context, sql string, args ...any) ([]*session.ChatMessage, error) {
	rows, err := r.conn.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var out []*session.ChatMessage
	for rows.Next() {
		var (
			m   session.ChatMessage
			tag string
		)
		if err := rows.Scan(&m.ID, &m.SessionID, &m.StudentID, &m.Subject, &m.UserText, &m.ResponseText,
			&tag, &m.Classification, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		m.Handler = session.HandlerTag(tag)
		out = append(out, &m)
	}
	return out, rows.Err()
}

func scanSession(row pgx.Row) (*session.ChatSession, error) {
	var s session.ChatSession
	err := row.Scan(&s.ID, &s.StudentID, &s.StudentName, &s.Subject, &s.TotalMessages, &s.CreatedAt, &s.LastActiveAt)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to scan session: %w", err)
	}
	return &s, nil
}
