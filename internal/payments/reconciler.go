package payments

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"taskeval-backend/internal/lifecycle"
	"taskeval-backend/internal/signature"
	"taskeval-backend/internal/store"
)

var ErrInvalidSignature = errors.New("payments: invalid signature")

type Channel string

const (
	// ChannelWebhook is the asynchronous server-to-server delivery;
	// its signature covers the raw notification body.
	ChannelWebhook Channel = "webhook"
	// ChannelCheckout is the synchronous client-redirect callback;
	// its signature covers the order id / payment id pair.
	ChannelCheckout Channel = "checkout"
)

// Notification is one verified-or-rejected payment notification from
// either channel.
type Notification struct {
	Channel   Channel
	OrderID   string
	PaymentID string
	Signature string
	RawBody   []byte // webhook only: the exact bytes the processor signed
}

// Outcome reports what a reconcile did. AlreadyApplied is idempotent
// success, not an error: duplicate deliveries from either channel
// land here.
type Outcome struct {
	TaskID         string
	AlreadyApplied bool
	TaskPaid       bool
	Triggered      bool
}

// Enqueuer schedules an evaluation trigger. Reconcile fires and does
// not wait; its outcome never depends on the scorer.
type Enqueuer interface {
	Enqueue(taskID string) bool
}

// Reconciler applies a payment notification to the payment record
// and the owning task, idempotently and safely under concurrent
// delivery. Both channels funnel into the same operation.
type Reconciler struct {
	ledger   store.Ledger
	verifier *signature.Verifier
	queue    Enqueuer
	log      *zap.Logger
}

func NewReconciler(ledger store.Ledger, verifier *signature.Verifier, queue Enqueuer, log *zap.Logger) *Reconciler {
	return &Reconciler{ledger: ledger, verifier: verifier, queue: queue, log: log}
}

func (r *Reconciler) Reconcile(ctx context.Context, n Notification) (Outcome, error) {
	ok, err := r.verify(n)
	if err != nil {
		return Outcome{}, err
	}
	if !ok {
		return Outcome{}, ErrInvalidSignature
	}

	payment, err := r.ledger.GetPaymentByOrderID(ctx, n.OrderID)
	if err != nil {
		return Outcome{}, fmt.Errorf("lookup order %s: %w", n.OrderID, err)
	}

	out := Outcome{TaskID: payment.TaskID}

	if payment.Captured() {
		out.AlreadyApplied = true
	} else {
		applied, err := r.ledger.CapturePayment(ctx, payment.ID, n.PaymentID)
		if err != nil {
			return out, fmt.Errorf("capture payment %s: %w", payment.ID, err)
		}
		// A losing racer's conditional update matches nothing; that
		// is the idempotent no-op we want, not an error.
		out.AlreadyApplied = !applied
	}

	// Always attempt the task-side transition, even when the payment
	// was already captured: if an earlier run crashed between the two
	// writes, this is what heals the task out of created.
	paid, err := r.ledger.AdvanceTask(ctx, payment.TaskID, lifecycle.StatusCreated, lifecycle.StatusPaid)
	if err != nil {
		// Payment is durably captured but the task is not advanced;
		// surface ids so a redelivery can complete the transition.
		r.log.Error("task transition failed after capture",
			zap.String("task_id", payment.TaskID),
			zap.String("payment_id", payment.ID),
			zap.Error(err))
		return out, fmt.Errorf("advance task %s: %w", payment.TaskID, err)
	}
	out.TaskPaid = paid

	if paid {
		out.Triggered = r.queue.Enqueue(payment.TaskID)
		r.log.Info("payment reconciled",
			zap.String("channel", string(n.Channel)),
			zap.String("order_id", n.OrderID),
			zap.String("task_id", payment.TaskID),
			zap.Bool("triggered", out.Triggered))
		return out, nil
	}

	// Task already past created. If a previous trigger never finished
	// its job (process died between transition and scoring), the task
	// can sit at paid; re-enqueue so the trigger's own status check
	// decides. For terminal tasks this is a no-op inside the trigger.
	task, err := r.ledger.GetTask(ctx, payment.TaskID)
	if err == nil && task.Status == lifecycle.StatusPaid {
		out.Triggered = r.queue.Enqueue(payment.TaskID)
	}

	r.log.Info("payment reconciled (already applied)",
		zap.String("channel", string(n.Channel)),
		zap.String("order_id", n.OrderID),
		zap.String("task_id", payment.TaskID))
	return out, nil
}

// MarkFailed records a failed charge attempt for the order. Captured
// payments are never downgraded: a stale failure event arriving after
// a successful retry of the same order is a no-op.
func (r *Reconciler) MarkFailed(ctx context.Context, n Notification) (bool, error) {
	ok, err := r.verify(n)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, ErrInvalidSignature
	}

	payment, err := r.ledger.GetPaymentByOrderID(ctx, n.OrderID)
	if err != nil {
		return false, fmt.Errorf("lookup order %s: %w", n.OrderID, err)
	}
	if payment.Captured() {
		return false, nil
	}

	applied, err := r.ledger.FailPayment(ctx, payment.ID)
	if err != nil {
		return false, fmt.Errorf("fail payment %s: %w", payment.ID, err)
	}
	if applied {
		r.log.Info("payment marked failed",
			zap.String("order_id", n.OrderID),
			zap.String("task_id", payment.TaskID))
	}
	return applied, nil
}

func (r *Reconciler) verify(n Notification) (bool, error) {
	switch n.Channel {
	case ChannelWebhook:
		return r.verifier.VerifyWebhook(n.RawBody, n.Signature)
	case ChannelCheckout:
		return r.verifier.VerifyCheckout(n.OrderID, n.PaymentID, n.Signature)
	default:
		return false, fmt.Errorf("payments: unknown channel %q", n.Channel)
	}
}
