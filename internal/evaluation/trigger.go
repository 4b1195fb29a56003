package evaluation

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"taskeval-backend/internal/analytics"
	"taskeval-backend/internal/lifecycle"
	"taskeval-backend/internal/store"
)

// EventLogger records domain events; *analytics.Recorder satisfies
// it. A nil logger disables recording.
type EventLogger interface {
	Log(ctx context.Context, env analytics.Envelope, eventName string, props any, sourceEventKey string)
}

// Trigger runs the scorer for a task that has just become paid and
// lands the task in a terminal state. It must never leave a task at
// paid: every scorer outcome, including persistence failure after a
// successful score, resolves to evaluated or evaluation_failed.
type Trigger struct {
	ledger  store.Ledger
	scorer  Scorer
	events  EventLogger
	timeout time.Duration
	log     *zap.Logger
}

func NewTrigger(ledger store.Ledger, scorer Scorer, events EventLogger, timeout time.Duration, log *zap.Logger) *Trigger {
	if timeout <= 0 {
		timeout = time.Minute
	}
	return &Trigger{ledger: ledger, scorer: scorer, events: events, timeout: timeout, log: log}
}

// Run re-checks eligibility, scores, and persists. A task no longer
// at paid means another trigger already advanced it (or it was never
// eligible); that is a silent no-op, the second half of the
// exactly-once guarantee.
func (t *Trigger) Run(ctx context.Context, taskID string) error {
	task, err := t.ledger.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	if task.Status != lifecycle.StatusPaid {
		t.log.Debug("trigger skipped, task not paid",
			zap.String("task_id", taskID),
			zap.String("status", string(task.Status)))
		return nil
	}

	scoreCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	result, err := t.scorer.Score(scoreCtx, task.Text)
	if err != nil {
		t.log.Warn("scorer failed",
			zap.String("task_id", taskID),
			zap.Error(err))
		return t.fail(ctx, task)
	}

	_, err = t.ledger.SaveEvaluation(ctx, store.Evaluation{
		TaskID:       taskID,
		Score:        result.Score,
		Strengths:    result.Strengths,
		Improvements: result.Improvements,
		Feedback:     result.Feedback,
	})
	if err != nil && !errors.Is(err, store.ErrEvaluationExists) {
		// The evaluation is lost but the task must still reach a
		// terminal state; the user retries from evaluation_failed.
		t.log.Error("evaluation insert failed",
			zap.String("task_id", taskID),
			zap.Error(err))
		return t.fail(ctx, task)
	}

	applied, err := t.ledger.AdvanceTask(ctx, taskID, lifecycle.StatusPaid, lifecycle.StatusEvaluated)
	if err != nil {
		return err
	}
	if applied {
		t.log.Info("task evaluated",
			zap.String("task_id", taskID),
			zap.Int("score", result.Score))
		if t.events != nil {
			t.events.Log(ctx, analytics.Envelope{UserID: task.UserID},
				analytics.EventTaskEvaluated, map[string]any{
					"task_id": taskID,
					"score":   result.Score,
				}, "")
		}
	}
	return nil
}

func (t *Trigger) fail(ctx context.Context, task store.Task) error {
	// Use a fresh context: the failure marker must land even if the
	// request context that dispatched us is already gone.
	if ctx.Err() != nil {
		ctx = context.Background()
	}
	applied, err := t.ledger.AdvanceTask(ctx, task.ID, lifecycle.StatusPaid, lifecycle.StatusEvaluationFailed)
	if applied && t.events != nil {
		t.events.Log(ctx, analytics.Envelope{UserID: task.UserID},
			analytics.EventEvaluationFailed, map[string]any{
				"task_id": task.ID,
			}, "")
	}
	return err
}
