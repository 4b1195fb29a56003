package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"taskeval-backend/internal/lifecycle"
)

// Postgres implements Ledger on top of database/sql. All conditional
// transitions rely on single-statement UPDATE ... WHERE status=...,
// which Postgres applies atomically per row.
type Postgres struct {
	DB *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{DB: db}
}

func (p *Postgres) CreateTask(ctx context.Context, userID int64, text string) (Task, error) {
	t := Task{
		ID:     uuid.NewString(),
		UserID: userID,
		Text:   text,
		Status: lifecycle.StatusCreated,
	}

	err := p.DB.QueryRowContext(ctx, `
		INSERT INTO tasks (id, user_id, task_text, status)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at
	`, t.ID, userID, text, t.Status).Scan(&t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return Task{}, fmt.Errorf("create task: %w", err)
	}
	return t, nil
}

func (p *Postgres) GetTask(ctx context.Context, id string) (Task, error) {
	return p.getTask(ctx, `
		SELECT id, user_id, task_text, status, created_at, updated_at
		FROM tasks WHERE id=$1
	`, id)
}

func (p *Postgres) GetTaskForUser(ctx context.Context, id string, userID int64) (Task, error) {
	return p.getTask(ctx, `
		SELECT id, user_id, task_text, status, created_at, updated_at
		FROM tasks WHERE id=$1 AND user_id=$2
	`, id, userID)
}

func (p *Postgres) getTask(ctx context.Context, query string, args ...any) (Task, error) {
	var t Task
	err := p.DB.QueryRowContext(ctx, query, args...).Scan(
		&t.ID, &t.UserID, &t.Text, &t.Status, &t.CreatedAt, &t.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Task{}, ErrNotFound
	}
	if err != nil {
		return Task{}, fmt.Errorf("get task: %w", err)
	}
	return t, nil
}

func (p *Postgres) ListTasks(ctx context.Context, userID int64) ([]Task, error) {
	rows, err := p.DB.QueryContext(ctx, `
		SELECT id, user_id, task_text, status, created_at, updated_at
		FROM tasks WHERE user_id=$1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []Task
	for rows.Next() {
		var t Task
		if err := rows.Scan(&t.ID, &t.UserID, &t.Text, &t.Status, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func (p *Postgres) AdvanceTask(ctx context.Context, id string, from, to lifecycle.Status) (bool, error) {
	if !lifecycle.CanAdvance(from, to) {
		return false, fmt.Errorf("advance task: illegal transition %s -> %s", from, to)
	}

	res, err := p.DB.ExecContext(ctx, `
		UPDATE tasks SET status=$1, updated_at=now()
		WHERE id=$2 AND status=$3
	`, to, id, from)
	if err != nil {
		return false, fmt.Errorf("advance task: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("advance task: %w", err)
	}
	return n == 1, nil
}

func (p *Postgres) InitiatePayment(ctx context.Context, taskID string, userID int64, orderID string) (Payment, error) {
	pay := Payment{
		ID:      uuid.NewString(),
		TaskID:  taskID,
		UserID:  userID,
		Status:  PaymentInitiated,
		OrderID: orderID,
	}

	// One payment row per task. Re-initiation refreshes the existing
	// row in the same statement, unless that payment is already
	// captured; the WHERE on the conflict arm closes the
	// check-then-act window a separate lookup would leave open.
	var provider sql.NullString
	err := p.DB.QueryRowContext(ctx, `
		INSERT INTO payments (id, task_id, user_id, status, razorpay_order_id)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (task_id) DO UPDATE SET
			status = EXCLUDED.status,
			razorpay_order_id = EXCLUDED.razorpay_order_id,
			provider_payment_id = NULL,
			updated_at = now()
		WHERE payments.status NOT IN ('success', 'completed')
		RETURNING id, provider_payment_id, created_at, updated_at
	`, pay.ID, taskID, userID, pay.Status, orderID).Scan(
		&pay.ID, &provider, &pay.CreatedAt, &pay.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Payment{}, ErrPaymentCompleted
	}
	if err != nil {
		return Payment{}, fmt.Errorf("initiate payment: %w", err)
	}
	pay.ProviderPaymentID = provider.String
	return pay, nil
}

func (p *Postgres) GetPaymentByOrderID(ctx context.Context, orderID string) (Payment, error) {
	var pay Payment
	var provider sql.NullString
	err := p.DB.QueryRowContext(ctx, `
		SELECT id, task_id, user_id, status, razorpay_order_id, provider_payment_id, created_at, updated_at
		FROM payments WHERE razorpay_order_id=$1
	`, orderID).Scan(
		&pay.ID, &pay.TaskID, &pay.UserID, &pay.Status, &pay.OrderID,
		&provider, &pay.CreatedAt, &pay.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Payment{}, ErrNotFound
	}
	if err != nil {
		return Payment{}, fmt.Errorf("get payment: %w", err)
	}
	pay.ProviderPaymentID = provider.String
	return pay, nil
}

func (p *Postgres) CapturePayment(ctx context.Context, paymentID, providerPaymentID string) (bool, error) {
	res, err := p.DB.ExecContext(ctx, `
		UPDATE payments
		SET status='success', provider_payment_id=$1, updated_at=now()
		WHERE id=$2 AND status NOT IN ('success', 'completed')
	`, providerPaymentID, paymentID)
	if err != nil {
		return false, fmt.Errorf("capture payment: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("capture payment: %w", err)
	}
	return n == 1, nil
}

func (p *Postgres) FailPayment(ctx context.Context, paymentID string) (bool, error) {
	res, err := p.DB.ExecContext(ctx, `
		UPDATE payments SET status='failed', updated_at=now()
		WHERE id=$1 AND status NOT IN ('success', 'completed')
	`, paymentID)
	if err != nil {
		return false, fmt.Errorf("fail payment: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("fail payment: %w", err)
	}
	return n == 1, nil
}

func (p *Postgres) SaveEvaluation(ctx context.Context, ev Evaluation) (Evaluation, error) {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}

	err := p.DB.QueryRowContext(ctx, `
		INSERT INTO evaluations (id, task_id, score, strengths, improvements, feedback)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`, ev.ID, ev.TaskID, ev.Score,
		pq.Array(ev.Strengths), pq.Array(ev.Improvements), ev.Feedback,
	).Scan(&ev.CreatedAt)

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return Evaluation{}, ErrEvaluationExists
	}
	if err != nil {
		return Evaluation{}, fmt.Errorf("save evaluation: %w", err)
	}
	return ev, nil
}

func (p *Postgres) GetEvaluationByTask(ctx context.Context, taskID string) (Evaluation, error) {
	var ev Evaluation
	err := p.DB.QueryRowContext(ctx, `
		SELECT id, task_id, score, strengths, improvements, feedback, created_at
		FROM evaluations WHERE task_id=$1
	`, taskID).Scan(
		&ev.ID, &ev.TaskID, &ev.Score,
		pq.Array(&ev.Strengths), pq.Array(&ev.Improvements),
		&ev.Feedback, &ev.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Evaluation{}, ErrNotFound
	}
	if err != nil {
		return Evaluation{}, fmt.Errorf("get evaluation: %w", err)
	}
	return ev, nil
}
