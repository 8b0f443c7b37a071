// Package profile содержит доменную модель профилей студентов и учителей.
// Профиль студента хранит прогресс (XP, уровень, серия) и связь с учителем.
package profile

import (
	"strings"
	"time"

	"github.com/tutorhub/tutor-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ENUMS
// ══════════════════════════════════════════════════════════════════════════════

// Role - роль аутентифицированного субъекта.
type Role string

const (
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
)

// IsValid проверяет, что роль известна.
func (r Role) IsValid() bool {
	return r == RoleStudent || r == RoleTeacher
}

// ParseRole разбирает роль без учёта регистра.
func ParseRole(s string) (Role, bool) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	return r, r.IsValid()
}

// ══════════════════════════════════════════════════════════════════════════════
// STUDENT PROFILE
// ══════════════════════════════════════════════════════════════════════════════

// StudentProfile - профиль студента.
type StudentProfile struct {
	ID               string
	DisplayName      string
	GradeLevel       string
	SubjectInterests []string

	// XP меняется только через Engagement Ledger.
	XP    shared.XP
	Level shared.Level

	// StreakDays меняется только явной админской операцией.
	StreakDays int

	// TeacherID - назначенный учитель, пусто если нет.
	TeacherID string

	JoinedClasses []string

	LastActiveAt time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NewStudentParams - параметры создания профиля.
type NewStudentParams struct {
	ID               string
	DisplayName      string
	GradeLevel       string
	SubjectInterests []string
	TeacherID        string
}

// NewStudentProfile создаёт профиль с нулевым прогрессом.
func NewStudentProfile(params NewStudentParams) (*StudentProfile, error) {
	id := strings.TrimSpace(params.ID)
	if id == "" {
		return nil, shared.ErrInvalidStudentID
	}

	name := strings.TrimSpace(params.DisplayName)
	if name == "" {
		name = "Student"
	}
	if len(name) > 100 {
		return nil, shared.NewDomainError("profile", "Create", shared.ErrValueOutOfRange, "display name must be at most 100 chars")
	}

	now := time.Now().UTC()
	return &StudentProfile{
		ID:               id,
		DisplayName:      name,
		GradeLevel:       strings.TrimSpace(params.GradeLevel),
		SubjectInterests: normalizeList(params.SubjectInterests),
		XP:               0,
		Level:            shared.MinLevel,
		TeacherID:        strings.TrimSpace(params.TeacherID),
		JoinedClasses:    []string{},
		LastActiveAt:     now,
		CreatedAt:        now,
		UpdatedAt:        now,
	}, nil
}

// HasTeacher - назначен ли студенту учитель.
func (p *StudentProfile) HasTeacher() bool {
	return p != nil && p.TeacherID != ""
}

// AwardXP прибавляет XP и пересчитывает уровень.
// Возвращает true, если уровень вырос.
func (p *StudentProfile) AwardXP(delta int) (bool, error) {
	if delta < 0 {
		return false, shared.ErrInvalidXPDelta
	}
	before := p.Level
	p.XP = p.XP.Add(delta)
	p.Level = p.XP.Level()
	p.UpdatedAt = time.Now().UTC()
	return p.Level > before, nil
}

// CorrectXP - административная коррекция XP, единственный путь уменьшить XP.
func (p *StudentProfile) CorrectXP(xp int) error {
	v, err := shared.NewXP(xp)
	if err != nil {
		return err
	}
	p.XP = v
	p.Level = v.Level()
	p.UpdatedAt = time.Now().UTC()
	return nil
}

// SetStreak выставляет серию дней.
func (p *StudentProfile) SetStreak(days int) error {
	if days < 0 {
		return shared.ErrInvalidStreak
	}
	p.StreakDays = days
	p.UpdatedAt = time.Now().UTC()
	return nil
}

// Touch отмечает активность студента.
func (p *StudentProfile) Touch(at time.Time) {
	if at.After(p.LastActiveAt) {
		p.LastActiveAt = at.UTC()
	}
}

// Snapshot возвращает неизменяемый срез профиля для роутера и обработчиков.
func (p *StudentProfile) Snapshot() Snapshot {
	if p == nil {
		return Snapshot{}
	}
	return Snapshot{
		StudentID:        p.ID,
		DisplayName:      p.DisplayName,
		GradeLevel:       p.GradeLevel,
		SubjectInterests: append([]string(nil), p.SubjectInterests...),
		XP:               p.XP,
		Level:            p.Level,
		StreakDays:       p.StreakDays,
		TeacherID:        p.TeacherID,
	}
}

// Snapshot - копия полей профиля, нужных для маршрутизации и генерации ответа.
// Пустой Snapshot означает, что профиля нет.
type Snapshot struct {
	StudentID        string
	DisplayName      string
	GradeLevel       string
	SubjectInterests []string
	XP               shared.XP
	Level            shared.Level
	StreakDays       int
	TeacherID        string
}

// IsEmpty - профиль отсутствовал.
func (s Snapshot) IsEmpty() bool { return s.StudentID == "" }

// ══════════════════════════════════════════════════════════════════════════════
// PROFILE UPDATE
// ══════════════════════════════════════════════════════════════════════════════

// ProfileUpdate - частичное обновление профиля. nil-поля не меняются.
// XP, уровень и серия здесь намеренно отсутствуют.
type ProfileUpdate struct {
	DisplayName      *string
	GradeLevel       *string
	SubjectInterests []string
	TeacherID        *string
	JoinedClasses    []string
}

// IsEmpty - нечего обновлять.
func (u ProfileUpdate) IsEmpty() bool {
	return u.DisplayName == nil && u.GradeLevel == nil && u.SubjectInterests == nil &&
		u.TeacherID == nil && u.JoinedClasses == nil
}

// Apply применяет обновление к профилю.
func (u ProfileUpdate) Apply(p *StudentProfile) error {
	if u.DisplayName != nil {
		name := strings.TrimSpace(*u.DisplayName)
		if name == "" || len(name) > 100 {
			return shared.NewDomainError("profile", "Update", shared.ErrValueOutOfRange, "display name must be 1-100 chars")
		}
		p.DisplayName = name
	}
	if u.GradeLevel != nil {
		p.GradeLevel = strings.TrimSpace(*u.GradeLevel)
	}
	if u.SubjectInterests != nil {
		p.SubjectInterests = normalizeList(u.SubjectInterests)
	}
	if u.TeacherID != nil {
		p.TeacherID = strings.TrimSpace(*u.TeacherID)
	}
	if u.JoinedClasses != nil {
		p.JoinedClasses = dedupe(u.JoinedClasses)
	}
	p.UpdatedAt = time.Now().UTC()
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// TEACHER PROFILE
// ══════════════════════════════════════════════════════════════════════════════

// TeacherProfile - профиль учителя. Нужен алертам как адресат.
type TeacherProfile struct {
	ID           string
	DisplayName  string
	ClassroomIDs []string
	CreatedAt    time.Time
}

func normalizeList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" {
			out = append(out, s)
		}
	}
	return dedupe(out)
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
