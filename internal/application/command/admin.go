package command

import (
	"context"
	"strings"

	"github.com/tutorhub/tutor-hub/internal/application/engagement"
	"github.com/tutorhub/tutor-hub/internal/domain/profile"
	"github.com/tutorhub/tutor-hub/internal/domain/shared"
	"github.com/tutorhub/tutor-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// ADMIN COMMANDS
// Explicit engagement corrections and on-demand jobs.
// ══════════════════════════════════════════════════════════════════════════════

// JobRunner runs a registered background job now.
type JobRunner interface {
	RunNow(ctx context.Context, name string) error
}

// SetStreakCommand sets a student's streak.
type SetStreakCommand struct {
	StudentID string
	Days      int
}

// CorrectXPCommand overwrites a student's XP.
type CorrectXPCommand struct {
	StudentID string
	XP        int
	Reason    string
}

// AdminHandler handles admin commands.
type AdminHandler struct {
	ledger *engagement.Ledger
	jobs   JobRunner
	log    *logger.Logger
}

// NewAdminHandler creates an AdminHandler. A nil runner disables RunJob.
func NewAdminHandler(ledger *engagement.Ledger, jobs JobRunner, log *logger.Logger) *AdminHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &AdminHandler{ledger: ledger, jobs: jobs, log: log.With(logger.Component("admin"))}
}

func (h *AdminHandler) SetStreak(ctx context.Context, cmd SetStreakCommand) (*profile.StudentProfile, error) {
	if strings.TrimSpace(cmd.StudentID) == "" {
		return nil, shared.ErrInvalidStudentID
	}
	return h.ledger.SetStreak(ctx, cmd.StudentID, cmd.Days)
}

func (h *AdminHandler) CorrectXP(ctx context.Context, cmd CorrectXPCommand) (*profile.StudentProfile, error) {
	if strings.TrimSpace(cmd.StudentID) == "" {
		return nil, shared.ErrInvalidStudentID
	}
	p, err := h.ledger.CorrectXP(ctx, cmd.StudentID, cmd.XP)
	if err != nil {
		return nil, err
	}
	if cmd.Reason != "" {
		h.log.Info("xp correction reason", logger.StudentID(cmd.StudentID), logger.String("reason", cmd.Reason))
	}
	return p, nil
}

// RunJob triggers a background job by name.
func (h *AdminHandler) RunJob(ctx context.Context, name string) error {
	if h.jobs == nil {
		return shared.NewDomainError("admin", "RunJob", shared.ErrServiceUnavailable, "scheduler is not running in this process")
	}
	if strings.TrimSpace(name) == "" {
		return shared.NewDomainError("admin", "RunJob", shared.ErrEmptyValue, "job name is required")
	}
	h.log.Info("job triggered", logger.String("job", name))
	return h.jobs.RunNow(ctx, name)
}
