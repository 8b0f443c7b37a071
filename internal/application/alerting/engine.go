// Package alerting raises teacher alerts from a student's recent chat activity.
//
// Rules run in order and at most one new alert is raised per evaluation.
// Duplicates are prevented twice: a read-side check for an unread alert with
// the same (teacher, student, kind), and the store's uniqueness on unread
// alerts. A conflicting insert means the alert is already present.
package alerting

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tutorhub/tutor-hub/config"
	"github.com/tutorhub/tutor-hub/internal/domain/alert"
	"github.com/tutorhub/tutor-hub/internal/domain/profile"
	"github.com/tutorhub/tutor-hub/internal/domain/session"
	"github.com/tutorhub/tutor-hub/internal/domain/shared"
	"github.com/tutorhub/tutor-hub/pkg/logger"
)

// Config holds the rule thresholds.
type Config struct {
	// Number of most recent messages inspected.
	Window int
	// Fewer messages than this in the window raises "inactive".
	LowActivityThreshold int
	// This many support-handled messages in the window raise "needs_attention".
	SupportThreshold int
	// Only messages newer than this count; 0 looks at the whole history.
	ActivityWindow time.Duration
}

// DefaultConfig returns the default thresholds.
func DefaultConfig() Config {
	return Config{Window: 10, LowActivityThreshold: 3, SupportThreshold: 3}
}

// FeatureGate reports per-student feature switches.
type FeatureGate interface {
	IsEnabled(name, studentID string) bool
}

// Engine evaluates alert rules for one student at a time.
type Engine struct {
	profiles  profile.Repository
	sessions  session.Repository
	alerts    alert.Repository
	publisher shared.EventPublisher
	flags     FeatureGate
	cfg       Config
	log       *logger.Logger

	now   func() time.Time
	newID func() string
}

// NewEngine creates an Engine. Zero config values fall back to defaults.
func NewEngine(
	profiles profile.Repository,
	sessions session.Repository,
	alerts alert.Repository,
	publisher shared.EventPublisher,
	flags FeatureGate,
	cfg Config,
	log *logger.Logger,
) *Engine {
	def := DefaultConfig()
	if cfg.Window <= 0 {
		cfg.Window = def.Window
	}
	if cfg.LowActivityThreshold <= 0 {
		cfg.LowActivityThreshold = def.LowActivityThreshold
	}
	if cfg.SupportThreshold <= 0 {
		cfg.SupportThreshold = def.SupportThreshold
	}
	if publisher == nil {
		publisher = shared.NopPublisher{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Engine{
		profiles:  profiles,
		sessions:  sessions,
		alerts:    alerts,
		publisher: publisher,
		flags:     flags,
		cfg:       cfg,
		log:       log,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

type rule struct {
	kind  alert.Kind
	fires func(recent []*session.ChatMessage) bool
	title string
	text  func(name string, recent []*session.ChatMessage) string
}

func (e *Engine) rules(studentID string) []rule {
	rs := []rule{{
		kind:  alert.KindInactive,
		fires: func(recent []*session.ChatMessage) bool { return len(recent) < e.cfg.LowActivityThreshold },
		title: "Student inactive",
		text: func(name string, recent []*session.ChatMessage) string {
			return fmt.Sprintf("%s has sent only %d message(s) to the tutor recently.", name, len(recent))
		},
	}}
	if e.flags == nil || e.flags.IsEnabled(config.FeatureSupportAlerts, studentID) {
		rs = append(rs, rule{
			kind:  alert.KindNeedsAttention,
			fires: func(recent []*session.ChatMessage) bool { return countSupport(recent) >= e.cfg.SupportThreshold },
			title: "Student may need attention",
			text: func(name string, recent []*session.ChatMessage) string {
				return fmt.Sprintf("%s was answered by the support tutor in %d of their last %d messages.",
					name, countSupport(recent), len(recent))
			},
		})
	}
	return rs
}

// Evaluate runs the rules for studentID and returns the newly raised alert,
// or nil when nothing new was raised. Students without a teacher never alert.
func (e *Engine) Evaluate(ctx context.Context, studentID string) (*alert.Alert, error) {
	p, err := e.profiles.GetByID(ctx, studentID)
	if err != nil {
		if shared.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("alerting: load profile: %w", err)
	}
	if !p.HasTeacher() {
		return nil, nil
	}

	q := session.MessageQuery{StudentID: studentID, Limit: e.cfg.Window}
	if e.cfg.ActivityWindow > 0 {
		q.Since = e.now().Add(-e.cfg.ActivityWindow)
	}
	recent, err := e.sessions.RecentMessages(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("alerting: recent messages: %w", err)
	}

	for _, r := range e.rules(studentID) {
		if !r.fires(recent) {
			continue
		}
		a, err := e.raise(ctx, p, r, recent)
		if err != nil {
			return nil, err
		}
		if a != nil {
			return a, nil
		}
	}
	return nil, nil
}

// raise inserts the alert unless an unread one with the same key exists.
func (e *Engine) raise(ctx context.Context, p *profile.StudentProfile, r rule, recent []*session.ChatMessage) (*alert.Alert, error) {
	key := alert.Key{TeacherID: p.TeacherID, StudentID: p.ID, Kind: r.kind}

	existing, err := e.alerts.FindUnread(ctx, key)
	switch {
	case err == nil && existing != nil:
		return nil, nil
	case err != nil && !shared.IsNotFound(err):
		return nil, fmt.Errorf("alerting: find unread: %w", err)
	}

	a, err := alert.NewAlert(alert.NewAlertParams{
		ID:          e.newID(),
		TeacherID:   p.TeacherID,
		StudentID:   p.ID,
		Kind:        r.kind,
		Title:       r.title,
		Description: r.text(p.DisplayName, recent),
	})
	if err != nil {
		return nil, err
	}

	if err := e.alerts.Insert(ctx, a); err != nil {
		if errors.Is(err, shared.ErrAlertExists) {
			// lost the race to a concurrent evaluation
			return nil, nil
		}
		return nil, fmt.Errorf("alerting: insert: %w", err)
	}

	e.log.Info("alert raised",
		logger.TeacherID(a.TeacherID),
		logger.StudentID(a.StudentID),
		logger.String("kind", string(a.Kind)),
	)
	if err := e.publisher.Publish(shared.NewAlertRaisedEvent(a.ID, a.TeacherID, a.StudentID, string(a.Kind))); err != nil {
		e.log.Warn("publish alert event failed", logger.Err(err))
	}
	return a, nil
}

// MarkRead marks the alert read, which lets the same kind be raised again.
func (e *Engine) MarkRead(ctx context.Context, alertID string) (*alert.Alert, error) {
	return e.alerts.MarkRead(ctx, alertID, e.now())
}

// EvaluateAll evaluates every student with a teacher. Individual failures are
// logged and counted; the sweep keeps going.
func (e *Engine) EvaluateAll(ctx context.Context) (raised, failed int, err error) {
	ids, err := e.profiles.ListWithTeacher(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("alerting: list students: %w", err)
	}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return raised, failed, err
		}
		a, err := e.Evaluate(ctx, id)
		if err != nil {
			failed++
			e.log.Warn("alert evaluation failed", logger.StudentID(id), logger.Err(err))
			continue
		}
		if a != nil {
			raised++
		}
	}
	return raised, failed, nil
}

func countSupport(msgs []*session.ChatMessage) int {
	n := 0
	for _, m := range msgs {
		if m.Handler == session.TagSupport {
			n++
		}
	}
	return n
}
