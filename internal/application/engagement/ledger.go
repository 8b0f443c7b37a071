// Package engagement owns XP, levels and streaks. Awards only ever add XP;
// the admin correction is the single path that may lower it.
package engagement

import (
	"context"
	"fmt"

	"github.com/tutorhub/tutor-hub/internal/domain/profile"
	"github.com/tutorhub/tutor-hub/internal/domain/shared"
	"github.com/tutorhub/tutor-hub/pkg/logger"
)

// DefaultXPPerMessage is awarded for every answered message.
const DefaultXPPerMessage = 5

// AwardResult is the profile state after an award.
type AwardResult struct {
	StudentID string
	Delta     int
	TotalXP   shared.XP
	Level     shared.Level
	LeveledUp bool
}

// Ledger applies engagement changes through the profile store.
type Ledger struct {
	profiles  profile.Repository
	publisher shared.EventPublisher
	log       *logger.Logger
}

// NewLedger creates a Ledger. A nil publisher drops events.
func NewLedger(profiles profile.Repository, publisher shared.EventPublisher, log *logger.Logger) *Ledger {
	if publisher == nil {
		publisher = shared.NopPublisher{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Ledger{profiles: profiles, publisher: publisher, log: log}
}

// Award adds delta (>= 0) XP and recomputes the level.
func (l *Ledger) Award(ctx context.Context, studentID string, delta int) (AwardResult, error) {
	if delta < 0 {
		return AwardResult{}, shared.ErrInvalidXPDelta
	}
	if studentID == "" {
		return AwardResult{}, shared.ErrInvalidStudentID
	}

	p, err := l.profiles.ApplyXP(ctx, studentID, delta)
	if err != nil {
		return AwardResult{}, fmt.Errorf("engagement: award xp: %w", err)
	}

	before := shared.XP(max(0, int(p.XP)-delta)).Level()
	res := AwardResult{
		StudentID: studentID,
		Delta:     delta,
		TotalXP:   p.XP,
		Level:     p.Level,
		LeveledUp: p.Level > before,
	}

	l.publish(shared.NewXPAwardedEvent(studentID, delta, int(p.XP), int(p.Level), res.LeveledUp))
	if res.LeveledUp {
		l.log.Info("level up",
			logger.StudentID(studentID),
			logger.Int("level", int(p.Level)),
			logger.String("title", p.Level.Title()),
		)
	}
	return res, nil
}

// SetStreak sets the streak counter. Streaks change only through this call.
func (l *Ledger) SetStreak(ctx context.Context, studentID string, days int) (*profile.StudentProfile, error) {
	if days < 0 {
		return nil, shared.ErrInvalidStreak
	}
	p, err := l.profiles.SetStreak(ctx, studentID, days)
	if err != nil {
		return nil, fmt.Errorf("engagement: set streak: %w", err)
	}
	l.publish(shared.NewStreakUpdatedEvent(studentID, days))
	return p, nil
}

// CorrectXP overwrites XP with an explicit value. This is the only path that
// may lower XP; the level follows.
func (l *Ledger) CorrectXP(ctx context.Context, studentID string, xp int) (*profile.StudentProfile, error) {
	if _, err := shared.NewXP(xp); err != nil {
		return nil, err
	}
	p, err := l.profiles.SetXP(ctx, studentID, xp)
	if err != nil {
		return nil, fmt.Errorf("engagement: correct xp: %w", err)
	}
	l.log.Warn("xp corrected",
		logger.StudentID(studentID),
		logger.XPAmount(xp),
		logger.Int("level", int(p.Level)),
	)
	return p, nil
}

func (l *Ledger) publish(e shared.Event) {
	if err := l.publisher.Publish(e); err != nil {
		l.log.Warn("publish event failed", logger.String("event", string(e.EventType())), logger.Err(err))
	}
}
