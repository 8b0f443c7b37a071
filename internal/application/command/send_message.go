// Package command contains write operations (CQRS - Commands).
package command

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/tutorhub/tutor-hub/internal/application/alerting"
	"github.com/tutorhub/tutor-hub/internal/application/engagement"
	"github.com/tutorhub/tutor-hub/internal/application/routing"
	"github.com/tutorhub/tutor-hub/internal/application/tutor"
	"github.com/tutorhub/tutor-hub/internal/domain/alert"
	"github.com/tutorhub/tutor-hub/internal/domain/profile"
	"github.com/tutorhub/tutor-hub/internal/domain/session"
	"github.com/tutorhub/tutor-hub/internal/domain/shared"
	"github.com/tutorhub/tutor-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// SEND MESSAGE COMMAND
// One inbound student message: route, generate, persist, score, alert.
// ══════════════════════════════════════════════════════════════════════════════

// MaxMessageLength bounds a single student message.
const MaxMessageLength = 4000

// MessageState is a step of the send pipeline.
type MessageState string

const (
	StateReceived  MessageState = "received"
	StateRouted    MessageState = "routed"
	StateGenerated MessageState = "generated"
	StatePersisted MessageState = "persisted"
	StateScored    MessageState = "scored"
	StateAlerted   MessageState = "alerted"
	StateReturned  MessageState = "returned"
)

// SendMessageCommand contains one student message.
type SendMessageCommand struct {
	SessionID string

	// StudentID is the authenticated caller. Empty skips the ownership check.
	StudentID string

	Message string

	// Subject is the optional subject declared by the client.
	Subject string

	CorrelationID string
}

// Validate validates the command.
func (c SendMessageCommand) Validate() error {
	if strings.TrimSpace(c.SessionID) == "" {
		return shared.NewDomainError("session", "SendMessage", shared.ErrInvalidID, "session_id is required")
	}
	msg := strings.TrimSpace(c.Message)
	if msg == "" {
		return shared.ErrEmptyMessage
	}
	if utf8.RuneCountInString(msg) > MaxMessageLength {
		return shared.NewDomainError("session", "SendMessage", shared.ErrValueOutOfRange,
			fmt.Sprintf("message must be at most %d characters", MaxMessageLength))
	}
	return nil
}

// SendMessageResult is the persisted message and what happened after it.
type SendMessageResult struct {
	Message   *session.ChatMessage
	Selection routing.Selection

	// Award is nil when scoring failed.
	Award *engagement.AwardResult

	// Alert is the alert raised by this message, if any.
	Alert *alert.Alert

	// State is the last state reached; StateReturned on success.
	State MessageState
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// SendMessageHandlerConfig contains configuration for the handler.
type SendMessageHandlerConfig struct {
	XPPerMessage int
}

// SendMessageHandler handles SendMessageCommand.
type SendMessageHandler struct {
	sessions  session.Repository
	profiles  profile.Repository
	router    *routing.Router
	registry  *tutor.Registry
	ledger    *engagement.Ledger
	alerts    *alerting.Engine
	publisher shared.EventPublisher
	log       *logger.Logger

	xpPerMessage int
	now          func() time.Time
	newID        func() string
}

// NewSendMessageHandler creates a SendMessageHandler. A nil alert engine
// skips the alert step.
func NewSendMessageHandler(
	sessions session.Repository,
	profiles profile.Repository,
	router *routing.Router,
	registry *tutor.Registry,
	ledger *engagement.Ledger,
	alerts *alerting.Engine,
	publisher shared.EventPublisher,
	cfg SendMessageHandlerConfig,
	log *logger.Logger,
) *SendMessageHandler {
	if cfg.XPPerMessage <= 0 {
		cfg.XPPerMessage = engagement.DefaultXPPerMessage
	}
	if publisher == nil {
		publisher = shared.NopPublisher{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &SendMessageHandler{
		sessions:     sessions,
		profiles:     profiles,
		router:       router,
		registry:     registry,
		ledger:       ledger,
		alerts:       alerts,
		publisher:    publisher,
		log:          log.With(logger.Component("send_message")),
		xpPerMessage: cfg.XPPerMessage,
		now:          time.Now,
		newID:        uuid.NewString,
	}
}

// Handle runs the pipeline. Failures before the message is persisted abort
// with nothing stored; failures after it are logged and the message is still
// returned.
func (h *SendMessageHandler) Handle(ctx context.Context, cmd SendMessageCommand) (*SendMessageResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	log := h.log.With(logger.SessionID(cmd.SessionID))
	if cmd.CorrelationID != "" {
		log = log.WithRequestID(cmd.CorrelationID)
	}
	res := &SendMessageResult{State: StateReceived}

	sess, err := h.sessions.GetSession(ctx, cmd.SessionID)
	if err != nil {
		if shared.IsNotFound(err) {
			return nil, err
		}
		return nil, shared.WrapError("session", "GetSession", shared.ErrPersistenceFailure, "load session", err)
	}
	if cmd.StudentID != "" && cmd.StudentID != sess.StudentID {
		return nil, shared.ErrSessionOwner
	}
	log = log.With(logger.StudentID(sess.StudentID))

	snapshot := h.loadSnapshot(ctx, sess.StudentID, log)
	history := h.loadHistory(ctx, sess.ID, log)

	// Received → Routed
	sel := h.router.Route(ctx, routing.RouteInput{
		Message:         cmd.Message,
		DeclaredSubject: cmd.Subject,
		Profile:         snapshot,
		History:         history,
	})
	res.Selection = sel
	advance(log, res, StateRouted)

	// Routed → Generated
	handler := h.registry.Resolve(sel.Tag)
	reply, err := handler.Respond(ctx, tutor.HandlerInput{
		Message:        strings.TrimSpace(cmd.Message),
		Profile:        snapshot,
		History:        history,
		Classification: sel.Classification,
	})
	if err != nil {
		log.Warn("generation failed", logger.HandlerTag(handler.Tag().String()), logger.Err(err))
		if !shared.IsGenerationFailure(err) {
			err = shared.WrapError("tutor", "Respond", shared.ErrGenerationFailure, "no reply", err)
		}
		return nil, err
	}
	advance(log, res, StateGenerated)

	// Generated → Persisted
	msg, err := session.NewChatMessage(session.NewMessageParams{
		ID:             h.newID(),
		SessionID:      sess.ID,
		StudentID:      sess.StudentID,
		Subject:        messageSubject(sel, sess),
		UserText:       strings.TrimSpace(cmd.Message),
		ResponseText:   reply,
		Handler:        handler.Tag(),
		Classification: sel.Classification,
		At:             h.now(),
	})
	if err != nil {
		return nil, err
	}
	if err := h.sessions.AppendMessage(ctx, msg); err != nil {
		log.Error("persist message failed", logger.Err(err))
		return nil, shared.WrapError("session", "AppendMessage", shared.ErrPersistenceFailure, "message was not saved", err)
	}
	res.Message = msg
	advance(log, res, StatePersisted)
	h.publish(log, shared.NewMessageSentEvent(msg.ID, sess.ID, sess.StudentID, msg.Handler.String(), msg.Subject))

	log.Info("message answered",
		logger.MessageID(msg.ID),
		logger.HandlerTag(msg.Handler.String()),
		logger.String("source", string(sel.Source)),
	)

	// Persisted → Scored
	if award, err := h.ledger.Award(ctx, sess.StudentID, h.xpPerMessage); err != nil {
		log.Warn("xp award failed", logger.Err(err))
	} else {
		res.Award = &award
	}
	advance(log, res, StateScored)

	// Scored → Alerted
	if h.alerts != nil {
		if a, err := h.alerts.Evaluate(ctx, sess.StudentID); err != nil {
			log.Warn("alert evaluation failed", logger.Err(err))
		} else {
			res.Alert = a
		}
	}
	advance(log, res, StateAlerted)

	advance(log, res, StateReturned)
	return res, nil
}

func advance(log *logger.Logger, res *SendMessageResult, to MessageState) {
	log.Debug("state", logger.String("from", string(res.State)), logger.String("to", string(to)))
	res.State = to
}

func (h *SendMessageHandler) loadSnapshot(ctx context.Context, studentID string, log *logger.Logger) profile.Snapshot {
	p, err := h.profiles.GetByID(ctx, studentID)
	if err != nil {
		if !errors.Is(err, shared.ErrNotFound) {
			log.Warn("profile unavailable, routing without it", logger.Err(err))
		}
		return profile.Snapshot{}
	}
	return p.Snapshot()
}

func (h *SendMessageHandler) loadHistory(ctx context.Context, sessionID string, log *logger.Logger) []*session.ChatMessage {
	history, err := h.sessions.RecentMessages(ctx, session.MessageQuery{
		SessionID: sessionID,
		Limit:     h.router.HistoryLimit(),
	})
	if err != nil {
		log.Warn("history unavailable, answering without it", logger.Err(err))
		return nil
	}
	return history
}

func (h *SendMessageHandler) publish(log *logger.Logger, e shared.Event) {
	if err := h.publisher.Publish(e); err != nil {
		log.Warn("publish event failed", logger.String("event", string(e.EventType())), logger.Err(err))
	}
}

// messageSubject is the subject recorded on the message: the routed subject,
// else the session's own subject.
func messageSubject(sel routing.Selection, sess *session.ChatSession) string {
	if sel.Subject != "" {
		return sel.Subject
	}
	return sess.Subject
}
