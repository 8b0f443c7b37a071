package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/tutorhub/tutor-hub/internal/domain/profile"
	"github.com/tutorhub/tutor-hub/internal/domain/shared"
)

// ProfileStore - профили студентов в памяти.
type ProfileStore struct {
	mu       sync.RWMutex
	profiles map[string]*profile.StudentProfile
}

func NewProfileStore() *ProfileStore {
	return &ProfileStore{profiles: make(map[string]*profile.StudentProfile)}
}

var _ profile.Repository = (*ProfileStore)(nil)

func (s *ProfileStore) Create(_ context.Context, p *profile.StudentProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.profiles[p.ID]; ok {
		return shared.ErrProfileAlreadyExists
	}
	s.profiles[p.ID] = copyProfile(p)
	return nil
}

func (s *ProfileStore) GetByID(_ context.Context, id string) (*profile.StudentProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[id]
	if !ok {
		return nil, shared.ErrProfileNotFound
	}
	return copyProfile(p), nil
}

func (s *ProfileStore) Update(_ context.Context, id string, upd profile.ProfileUpdate) (*profile.StudentProfile, error) {
	return s.mutate(id, upd.Apply)
}

func (s *ProfileStore) ApplyXP(_ context.Context, id string, delta int) (*profile.StudentProfile, error) {
	return s.mutate(id, func(p *profile.StudentProfile) error {
		_, err := p.AwardXP(delta)
		return err
	})
}

func (s *ProfileStore) SetXP(_ context.Context, id string, xp int) (*profile.StudentProfile, error) {
	return s.mutate(id, func(p *profile.StudentProfile) error { return p.CorrectXP(xp) })
}

func (s *ProfileStore) SetStreak(_ context.Context, id string, days int) (*profile.StudentProfile, error) {
	return s.mutate(id, func(p *profile.StudentProfile) error { return p.SetStreak(days) })
}

func (s *ProfileStore) ListWithTeacher(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []string
	for id, p := range s.profiles {
		if p.HasTeacher() {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// mutate применяет fn к копии и сохраняет её только при успехе.
func (s *ProfileStore) mutate(id string, fn func(*profile.StudentProfile) error) (*profile.StudentProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.profiles[id]
	if !ok {
		return nil, shared.ErrProfileNotFound
	}
	next := copyProfile(cur)
	if err := fn(next); err != nil {
		return nil, err
	}
	s.profiles[id] = next
	return copyProfile(next), nil
}

func copyProfile(p *profile.StudentProfile) *profile.StudentProfile {
	c := *p
	c.SubjectInterests = append([]string(nil), p.SubjectInterests...)
	c.JoinedClasses = append([]string(nil), p.JoinedClasses...)
	return &c
}

// TeacherStore - профили учителей в памяти.
type TeacherStore struct {
	mu       sync.RWMutex
	teachers map[string]*profile.TeacherProfile
}

func NewTeacherStore() *TeacherStore {
	return &TeacherStore{teachers: make(map[string]*profile.TeacherProfile)}
}

var _ profile.TeacherRepository = (*TeacherStore)(nil)

func (s *TeacherStore) GetTeacher(_ context.Context, id string) (*profile.TeacherProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.teachers[id]
	if !ok {
		return nil, shared.NewDomainError("profile", "GetTeacher", shared.ErrNotFound, "teacher not found")
	}
	c := *t
	c.ClassroomIDs = append([]string(nil), t.ClassroomIDs...)
	return &c, nil
}

func (s *TeacherStore) UpsertTeacher(_ context.Context, t *profile.TeacherProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *t
	c.ClassroomIDs = append([]string(nil), t.ClassroomIDs...)
	if c.CreatedAt.IsZero() {
		c.CreatedAt = clock()
	}
	s.teachers[t.ID] = &c
	return nil
}
