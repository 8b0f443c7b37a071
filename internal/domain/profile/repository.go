package profile

import "context"

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// Реализации находятся в infrastructure/persistence.
// ══════════════════════════════════════════════════════════════════════════════

// Repository - хранилище профилей студентов.
type Repository interface {
	// Create создаёт профиль.
	// Возвращает shared.ErrProfileAlreadyExists, если профиль уже есть.
	Create(ctx context.Context, p *StudentProfile) error

	// GetByID возвращает профиль.
	// Возвращает shared.ErrProfileNotFound, если профиля нет.
	GetByID(ctx context.Context, id string) (*StudentProfile, error)

	// Update применяет частичное обновление и возвращает новый профиль.
	Update(ctx context.Context, id string, upd ProfileUpdate) (*StudentProfile, error)

	// ApplyXP атомарно прибавляет delta >= 0 и пересчитывает уровень.
	ApplyXP(ctx context.Context, id string, delta int) (*StudentProfile, error)

	// SetXP - административная коррекция XP.
	SetXP(ctx context.Context, id string, xp int) (*StudentProfile, error)

	// SetStreak - административная установка серии.
	SetStreak(ctx context.Context, id string, days int) (*StudentProfile, error)

	// ListWithTeacher возвращает ID студентов, у которых назначен учитель.
	ListWithTeacher(ctx context.Context) ([]string, error)
}

// TeacherRepository - хранилище профилей учителей.
type TeacherRepository interface {
	GetTeacher(ctx context.Context, id string) (*TeacherProfile, error)
	UpsertTeacher(ctx context.Context, t *TeacherProfile) error
}
