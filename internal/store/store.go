package store

import (
	"context"
	"errors"

	"taskeval-backend/internal/lifecycle"
)

var (
	ErrNotFound = errors.New("store: not found")

	// ErrPaymentCompleted is returned by InitiatePayment when the task
	// already has a captured payment; re-initiation is rejected.
	ErrPaymentCompleted = errors.New("store: payment already completed")

	// ErrEvaluationExists is returned by SaveEvaluation when the task
	// already has its one evaluation row.
	ErrEvaluationExists = errors.New("store: evaluation already exists")
)

// Ledger is the durable task/payment/evaluation state. Status fields
// are the sole synchronization points: every transition is a
// conditional single-row update ("set X only if currently Y"), so a
// losing concurrent writer's update simply matches nothing and
// becomes a no-op.
type Ledger interface {
	CreateTask(ctx context.Context, userID int64, text string) (Task, error)
	GetTask(ctx context.Context, id string) (Task, error)
	GetTaskForUser(ctx context.Context, id string, userID int64) (Task, error)
	ListTasks(ctx context.Context, userID int64) ([]Task, error)

	// AdvanceTask moves the task from -> to only if it is still at
	// from. applied=false with a nil error means another writer got
	// there first, which callers treat as idempotent success.
	AdvanceTask(ctx context.Context, id string, from, to lifecycle.Status) (applied bool, err error)

	// InitiatePayment creates or refreshes the single payment row for
	// a task as one atomic write. A prior captured payment rejects
	// with ErrPaymentCompleted.
	InitiatePayment(ctx context.Context, taskID string, userID int64, orderID string) (Payment, error)
	GetPaymentByOrderID(ctx context.Context, orderID string) (Payment, error)

	// CapturePayment sets status=success and records the processor
	// payment id, only if the payment has not been captured yet.
	CapturePayment(ctx context.Context, paymentID, providerPaymentID string) (applied bool, err error)

	// FailPayment marks a charge attempt as failed, only if the
	// payment has not been captured. A failed payment can be
	// re-initiated.
	FailPayment(ctx context.Context, paymentID string) (applied bool, err error)

	SaveEvaluation(ctx context.Context, ev Evaluation) (Evaluation, error)
	GetEvaluationByTask(ctx context.Context, taskID string) (Evaluation, error)
}
