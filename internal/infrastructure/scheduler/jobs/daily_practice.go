// Package jobs - фоновые задачи: ежедневное напоминание и обход неактивных студентов.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/tutorhub/tutor-hub/internal/domain/notification"
	"github.com/tutorhub/tutor-hub/internal/domain/session"
	"github.com/tutorhub/tutor-hub/internal/domain/shared"
	"github.com/tutorhub/tutor-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// DAILY PRACTICE JOB
// ══════════════════════════════════════════════════════════════════════════════

// DailyPracticeJobName - имя задачи для RunNow и админского API.
const DailyPracticeJobName = "daily_practice"

// DayLocker - межпроцессная блокировка на день (Redis SETNX).
type DayLocker interface {
	Acquire(ctx context.Context, job, day string) (bool, func(context.Context), error)
}

// FeatureGate - проверка флага для студента.
type FeatureGate interface {
	IsEnabled(name, studentID string) bool
}

// DailyPracticeConfig - настройки задачи.
type DailyPracticeConfig struct {
	Location        *time.Location
	ActiveDays      int
	FallbackSubject string
	// Сколько последних сообщений смотреть для выбора предмета.
	Lookback int
	// Флаг, выключающий напоминание для части студентов.
	Feature string
}

// DailyPracticeStats - итог одного прогона.
type DailyPracticeStats struct {
	Day      shared.DayKey
	Targeted int
	Created  int
	Skipped  int
	Failed   int
}

// DailyPracticeJob создаёт одно напоминание в день каждому недавно активному студенту.
// Повторный прогон в тот же день ничего не создаёт.
type DailyPracticeJob struct {
	sessions      session.Repository
	notifications notification.Repository
	publisher     shared.EventPublisher
	lock          DayLocker
	flags         FeatureGate
	cfg           DailyPracticeConfig
	logger        *slog.Logger
	now           func() time.Time

	lastStats atomic.Pointer[DailyPracticeStats]
}

// NewDailyPracticeJob создаёт задачу. lock и flags могут быть nil.
func NewDailyPracticeJob(
	sessions session.Repository,
	notifications notification.Repository,
	publisher shared.EventPublisher,
	lock DayLocker,
	flags FeatureGate,
	cfg DailyPracticeConfig,
	logger *slog.Logger,
) *DailyPracticeJob {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.ActiveDays <= 0 {
		cfg.ActiveDays = 3
	}
	if cfg.FallbackSubject == "" {
		cfg.FallbackSubject = "math"
	}
	if cfg.Lookback <= 0 {
		cfg.Lookback = 50
	}
	if publisher == nil {
		publisher = shared.NopPublisher{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DailyPracticeJob{
		sessions:      sessions,
		notifications: notifications,
		publisher:     publisher,
		lock:          lock,
		flags:         flags,
		cfg:           cfg,
		logger:        logger.With("job", DailyPracticeJobName),
		now:           time.Now,
	}
}

func (j *DailyPracticeJob) Name() string { return DailyPracticeJobName }

func (j *DailyPracticeJob) Description() string {
	return "Creates one daily practice reminder for each recently active student"
}

// LastStats возвращает итог последнего прогона.
func (j *DailyPracticeJob) LastStats() *DailyPracticeStats { return j.lastStats.Load() }

// Run выполняет прогон. Ошибка по одному студенту не останавливает остальных.
func (j *DailyPracticeJob) Run(ctx context.Context) error {
	now := j.now()
	day := shared.DayKeyOf(now, j.cfg.Location)
	since := timeutil.DaysAgo(now, j.cfg.ActiveDays, j.cfg.Location)

	ids, err := j.sessions.ActiveStudents(ctx, since)
	if err != nil {
		return fmt.Errorf("daily practice: list active students: %w", err)
	}

	stats := &DailyPracticeStats{Day: day, Targeted: len(ids)}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			j.lastStats.Store(stats)
			return err
		}
		created, err := j.remind(ctx, id, day, now)
		switch {
		case err != nil:
			stats.Failed++
			j.logger.Warn("daily practice reminder failed", "student_id", id, "error", err)
		case created:
			stats.Created++
		default:
			stats.Skipped++
		}
	}
	j.lastStats.Store(stats)

	j.logger.Info("daily practice completed",
		"day", day.String(),
		"targeted", stats.Targeted,
		"created", stats.Created,
		"skipped", stats.Skipped,
		"failed", stats.Failed,
	)
	return nil
}

func (j *DailyPracticeJob) remind(ctx context.Context, studentID string, day shared.DayKey, now time.Time) (bool, error) {
	if j.flags != nil && j.cfg.Feature != "" && !j.flags.IsEnabled(j.cfg.Feature, studentID) {
		return false, nil
	}

	_, err := j.notifications.FindForDay(ctx, studentID, notification.KindDailyPractice, day)
	if err == nil {
		return false, nil
	}
	if !shared.IsNotFound(err) {
		return false, err
	}

	release := func(context.Context) {}
	if j.lock != nil {
		ok, rel, err := j.lock.Acquire(ctx, DailyPracticeJobName+":"+studentID, day.String())
		if err != nil {
			// без Redis остаётся уникальный индекс
			j.logger.Warn("day lock unavailable", "student_id", studentID, "error", err)
		} else if !ok {
			return false, nil
		} else {
			release = rel
		}
	}

	subject, err := j.subjectFor(ctx, studentID)
	if err != nil {
		release(ctx)
		return false, err
	}

	n, err := notification.NewNotification(notification.NewNotificationParams{
		ID:          uuid.NewString(),
		RecipientID: studentID,
		Kind:        notification.KindDailyPractice,
		Title:       notification.DailyPracticeTitle(subject),
		Message:     notification.DailyPracticeMessage(subject),
		Subject:     subject,
		At:          now,
		Location:    j.cfg.Location,
	})
	if err != nil {
		release(ctx)
		return false, err
	}

	if err := j.notifications.Insert(ctx, n); err != nil {
		if errors.Is(err, shared.ErrNotificationExists) {
			return false, nil
		}
		release(ctx)
		return false, err
	}

	if err := j.publisher.Publish(shared.NewNotificationCreatedEvent(n.ID, studentID, string(n.Kind), subject)); err != nil {
		j.logger.Warn("publish notification event failed", "student_id", studentID, "error", err)
	}
	return true, nil
}

// subjectFor - самый частый предмет последних сообщений или предмет по умолчанию.
func (j *DailyPracticeJob) subjectFor(ctx context.Context, studentID string) (string, error) {
	msgs, err := j.sessions.RecentMessages(ctx, session.MessageQuery{StudentID: studentID, Limit: j.cfg.Lookback})
	if err != nil {
		return "", err
	}
	if s := session.ModeSubject(msgs); s != "" {
		return s, nil
	}
	return j.cfg.FallbackSubject, nil
}
