package jobs

import (
	"context"
	"log/slog"
)

// InactivitySweepJobName - имя задачи обхода.
const InactivitySweepJobName = "inactivity_sweep"

// Evaluator - движок алертов.
type Evaluator interface {
	EvaluateAll(ctx context.Context) (raised, failed int, err error)
}

// InactivitySweepJob прогоняет правила алертов по всем студентам с учителем,
// чтобы молчащие студенты тоже получали алерт "inactive".
type InactivitySweepJob struct {
	engine Evaluator
	logger *slog.Logger
}

// NewInactivitySweepJob создаёт задачу.
func NewInactivitySweepJob(engine Evaluator, logger *slog.Logger) *InactivitySweepJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &InactivitySweepJob{engine: engine, logger: logger.With("job", InactivitySweepJobName)}
}

func (j *InactivitySweepJob) Name() string { return InactivitySweepJobName }

func (j *InactivitySweepJob) Description() string {
	return "Evaluates teacher alert rules for every student with an assigned teacher"
}

func (j *InactivitySweepJob) Run(ctx context.Context) error {
	raised, failed, err := j.engine.EvaluateAll(ctx)
	if err != nil {
		return err
	}
	j.logger.Info("inactivity sweep completed", "alerts_raised", raised, "failed", failed)
	return nil
}
