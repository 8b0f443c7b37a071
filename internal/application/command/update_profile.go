package command

import (
	"context"
	"strings"
	"time"

	"github.com/tutorhub/tutor-hub/internal/domain/profile"
	"github.com/tutorhub/tutor-hub/internal/domain/shared"
	"github.com/tutorhub/tutor-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// UPDATE PROFILE COMMAND
// Partial profile update. XP, level and streak are not reachable from here.
// ══════════════════════════════════════════════════════════════════════════════

// UpdateProfileCommand updates student-editable fields.
type UpdateProfileCommand struct {
	StudentID string
	Update    profile.ProfileUpdate
}

// Validate validates the command.
func (c UpdateProfileCommand) Validate() error {
	if strings.TrimSpace(c.StudentID) == "" {
		return shared.ErrInvalidStudentID
	}
	if c.Update.IsEmpty() {
		return shared.NewDomainError("profile", "Update", shared.ErrEmptyValue, "nothing to update")
	}
	return nil
}

// UpdateProfileHandler handles UpdateProfileCommand.
type UpdateProfileHandler struct {
	profiles profile.Repository
	teachers profile.TeacherRepository
	log      *logger.Logger
}

// NewUpdateProfileHandler creates an UpdateProfileHandler. When teachers is
// set, assigning a teacher registers it if it is not known yet.
func NewUpdateProfileHandler(profiles profile.Repository, teachers profile.TeacherRepository, log *logger.Logger) *UpdateProfileHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &UpdateProfileHandler{profiles: profiles, teachers: teachers, log: log.With(logger.Component("update_profile"))}
}

// Handle executes the command.
func (h *UpdateProfileHandler) Handle(ctx context.Context, cmd UpdateProfileCommand) (*profile.StudentProfile, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	if cmd.Update.TeacherID != nil && h.teachers != nil {
		if err := h.ensureTeacher(ctx, strings.TrimSpace(*cmd.Update.TeacherID)); err != nil {
			return nil, err
		}
	}

	p, err := h.profiles.Update(ctx, cmd.StudentID, cmd.Update)
	if err != nil {
		return nil, err
	}
	h.log.Info("profile updated", logger.StudentID(p.ID))
	return p, nil
}

func (h *UpdateProfileHandler) ensureTeacher(ctx context.Context, teacherID string) error {
	if teacherID == "" {
		return nil
	}
	_, err := h.teachers.GetTeacher(ctx, teacherID)
	switch {
	case err == nil:
		return nil
	case !shared.IsNotFound(err):
		return err
	}
	return h.teachers.UpsertTeacher(ctx, &profile.TeacherProfile{
		ID:        teacherID,
		CreatedAt: time.Now().UTC(),
	})
}
