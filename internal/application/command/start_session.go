package command

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/tutorhub/tutor-hub/internal/domain/profile"
	"github.com/tutorhub/tutor-hub/internal/domain/session"
	"github.com/tutorhub/tutor-hub/internal/domain/shared"
	"github.com/tutorhub/tutor-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// START SESSION COMMAND
// Opens a chat session. An unknown student gets a fresh profile.
// ══════════════════════════════════════════════════════════════════════════════

// StartSessionCommand opens a session.
type StartSessionCommand struct {
	// StudentID may be empty for anonymous use; an id is generated then.
	StudentID   string
	StudentName string
	Subject     string
	GradeLevel  string
}

// StartSessionResult contains the new session.
type StartSessionResult struct {
	Session        *session.ChatSession
	Profile        *profile.StudentProfile
	ProfileCreated bool
}

// StartSessionHandler handles StartSessionCommand.
type StartSessionHandler struct {
	sessions  session.Repository
	profiles  profile.Repository
	publisher shared.EventPublisher
	log       *logger.Logger
	newID     func() string
}

// NewStartSessionHandler creates a StartSessionHandler.
func NewStartSessionHandler(sessions session.Repository, profiles profile.Repository, publisher shared.EventPublisher, log *logger.Logger) *StartSessionHandler {
	if publisher == nil {
		publisher = shared.NopPublisher{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &StartSessionHandler{
		sessions:  sessions,
		profiles:  profiles,
		publisher: publisher,
		log:       log.With(logger.Component("start_session")),
		newID:     uuid.NewString,
	}
}

// Handle executes the command.
func (h *StartSessionHandler) Handle(ctx context.Context, cmd StartSessionCommand) (*StartSessionResult, error) {
	studentID := strings.TrimSpace(cmd.StudentID)
	if studentID == "" {
		studentID = "anon-" + h.newID()
	}

	p, created, err := h.ensureProfile(ctx, studentID, cmd)
	if err != nil {
		return nil, err
	}

	name := strings.TrimSpace(cmd.StudentName)
	if name == "" {
		name = p.DisplayName
	}
	sess, err := session.NewChatSession(h.newID(), studentID, name, cmd.Subject)
	if err != nil {
		return nil, err
	}
	if err := h.sessions.CreateSession(ctx, sess); err != nil {
		return nil, shared.WrapError("session", "CreateSession", shared.ErrPersistenceFailure, "session was not saved", err)
	}

	if err := h.publisher.Publish(shared.NewSessionStartedEvent(sess.ID, studentID, sess.Subject)); err != nil {
		h.log.Warn("publish event failed", logger.Err(err))
	}
	h.log.Info("session started",
		logger.SessionID(sess.ID),
		logger.StudentID(studentID),
		logger.Bool("profile_created", created),
	)
	return &StartSessionResult{Session: sess, Profile: p, ProfileCreated: created}, nil
}

func (h *StartSessionHandler) ensureProfile(ctx context.Context, studentID string, cmd StartSessionCommand) (*profile.StudentProfile, bool, error) {
	p, err := h.profiles.GetByID(ctx, studentID)
	if err == nil {
		return p, false, nil
	}
	if !shared.IsNotFound(err) {
		return nil, false, shared.WrapError("profile", "GetByID", shared.ErrPersistenceFailure, "load profile", err)
	}

	p, err = profile.NewStudentProfile(profile.NewStudentParams{
		ID:          studentID,
		DisplayName: cmd.StudentName,
		GradeLevel:  cmd.GradeLevel,
	})
	if err != nil {
		return nil, false, err
	}
	if err := h.profiles.Create(ctx, p); err != nil {
		// concurrent first session for the same student
		if errors.Is(err, shared.ErrProfileAlreadyExists) {
			existing, getErr := h.profiles.GetByID(ctx, studentID)
			if getErr != nil {
				return nil, false, getErr
			}
			return existing, false, nil
		}
		return nil, false, shared.WrapError("profile", "Create", shared.ErrPersistenceFailure, "profile was not saved", err)
	}
	return p, true, nil
}
