package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/tutorhub/tutor-hub/internal/domain/profile"
	"github.com/tutorhub/tutor-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROFILE REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

const profileColumns = `id, display_name, grade_level, subject_interests, xp, level, streak_days,
	teacher_id, joined_classes, last_active_at, created_at, updated_at`

// ProfileRepository реализует profile.Repository.
type ProfileRepository struct {
	conn *Connection
}

// NewProfileRepository создаёт ProfileRepository.
func NewProfileRepository(conn *Connection) *ProfileRepository {
	return &ProfileRepository{conn: conn}
}

var _ profile.Repository = (*ProfileRepository)(nil)

// Create сохраняет новый профиль.
func (r *ProfileRepository) Create(ctx context.Context, p *profile.StudentProfile) error {
	_, err := r.conn.Exec(ctx, `
		INSERT INTO student_profiles (`+profileColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		p.ID, p.DisplayName, p.GradeLevel, nonNil(p.SubjectInterests), int(p.XP), int(p.Level), p.StreakDays,
		p.TeacherID, nonNil(p.JoinedClasses), p.LastActiveAt, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.ErrProfileAlreadyExists
		}
		return fmt.Errorf("failed to create profile: %w", err)
	}
	return nil
}

// GetByID возвращает профиль.
func (r *ProfileRepository) GetByID(ctx context.Context, id string) (*profile.StudentProfile, error) {
	row := r.conn.QueryRow(ctx, `SELECT `+profileColumns+` FROM student_profiles WHERE id = $1`, id)
	return scanProfile(row)
}

// Update применяет частичное обновление.
func (r *ProfileRepository) Update(ctx context.Context, id string, upd profile.ProfileUpdate) (*profile.StudentProfile, error) {
	return r.mutate(ctx, id, upd.Apply)
}

// ApplyXP прибавляет XP под блокировкой строки, поэтому параллельные начисления не теряются.
func (r *ProfileRepository) ApplyXP(ctx context.Context, id string, delta int) (*profile.StudentProfile, error) {
	return r.mutate(ctx, id, func(p *profile.StudentProfile) error {
		_, err := p.AwardXP(delta)
		return err
	})
}

// SetXP - административная коррекция.
func (r *ProfileRepository) SetXP(ctx context.Context, id string, xp int) (*profile.StudentProfile, error) {
	return r.mutate(ctx, id, func(p *profile.StudentProfile) error { return p.CorrectXP(xp) })
}

// SetStreak выставляет серию.
func (r *ProfileRepository) SetStreak(ctx context.Context, id string, days int) (*profile.StudentProfile, error) {
	return r.mutate(ctx, id, func(p *profile.StudentProfile) error { return p.SetStreak(days) })
}

// ListWithTeacher возвращает студентов с назначенным учителем.
func (r *ProfileRepository) ListWithTeacher(ctx context.Context) ([]string, error) {
	rows, err := r.conn.Query(ctx, `SELECT id FROM student_profiles WHERE teacher_id <> '' ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list profiles: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func (r *ProfileRepository) mutate(ctx context.Context, id string, fn func(*profile.StudentProfile) error) (*profile.StudentProfile, error) {
	var out *profile.StudentProfile
	err := r.conn.WithTx(ctx, func(tx pgx.Tx) error {
		p, err := scanProfile(tx.QueryRow(ctx, `SELECT `+profileColumns+` FROM student_profiles WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			return err
		}
		if err := fn(p); err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `
			UPDATE student_profiles SET
				display_name = $2, grade_level = $3, subject_interests = $4, xp = $5, level = $6,
				streak_days = $7, teacher_id = $8, joined_classes = $9, last_active_at = $10, updated_at = $11
			WHERE id = $1`,
			p.ID, p.DisplayName, p.GradeLevel, nonNil(p.SubjectInterests), int(p.XP), int(p.Level),
			p.StreakDays, p.TeacherID, nonNil(p.JoinedClasses), p.LastActiveAt, p.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to update profile: %w", err)
		}
		out = p
		return nil
	})
	return out, err
}

func scanProfile(row pgx.Row) (*profile.StudentProfile, error) {
	var (
		p         profile.StudentProfile
		xp, level int
	)
	err := row.Scan(&p.ID, &p.DisplayName, &p.GradeLevel, &p.SubjectInterests, &xp, &level, &p.StreakDays,
		&p.TeacherID, &p.JoinedClasses, &p.LastActiveAt, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrProfileNotFound
		}
		return nil, fmt.Errorf("failed to scan profile: %w", err)
	}
	p.XP = shared.XP(xp)
	p.Level = shared.Level(level)
	return &p, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// TEACHER REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// TeacherRepository реализует profile.TeacherRepository.
type TeacherRepository struct {
	conn *Connection
}

// NewTeacherRepository создаёт TeacherRepository.
func NewTeacherRepository(conn *Connection) *TeacherRepository {
	return &TeacherRepository{conn: conn}
}

var _ profile.TeacherRepository = (*TeacherRepository)(nil)

func (r *TeacherRepository) GetTeacher(ctx context.Context, id string) (*profile.TeacherProfile, error) {
	var t profile.TeacherProfile
	err := r.conn.QueryRow(ctx,
		`SELECT id, display_name, classroom_ids, created_at FROM teacher_profiles WHERE id = $1`, id,
	).Scan(&t.ID, &t.DisplayName, &t.ClassroomIDs, &t.CreatedAt)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.NewDomainError("profile", "GetTeacher", shared.ErrNotFound, "teacher not found")
		}
		return nil, fmt.Errorf("failed to get teacher: %w", err)
	}
	return &t, nil
}

func (r *TeacherRepository) UpsertTeacher(ctx context.Context, t *profile.TeacherProfile) error {
	_, err := r.conn.Exec(ctx, `
		INSERT INTO teacher_profiles (id, display_name, classroom_ids)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET display_name = EXCLUDED.display_name, classroom_ids = EXCLUDED.classroom_ids`,
		t.ID, t.DisplayName, nonNil(t.ClassroomIDs),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert teacher: %w", err)
	}
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
