package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"taskeval-backend/internal/lifecycle"
)

// Memory is an in-process Ledger with the same conditional-update
// semantics as Postgres. It backs the race tests for the reconciler
// and trigger, and local runs without a database.
type Memory struct {
	mu          sync.Mutex
	tasks       map[string]Task
	payments    map[string]Payment // by payment id
	byOrder     map[string]string  // order id -> payment id
	byTask      map[string]string  // task id -> payment id
	evaluations map[string]Evaluation
}

func NewMemory() *Memory {
	return &Memory{
		tasks:       make(map[string]Task),
		payments:    make(map[string]Payment),
		byOrder:     make(map[string]string),
		byTask:      make(map[string]string),
		evaluations: make(map[string]Evaluation),
	}
}

func (m *Memory) CreateTask(_ context.Context, userID int64, text string) (Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	t := Task{
		ID:        uuid.NewString(),
		UserID:    userID,
		Text:      text,
		Status:    lifecycle.StatusCreated,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.tasks[t.ID] = t
	return t, nil
}

func (m *Memory) GetTask(_ context.Context, id string) (Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tasks[id]
	if !ok {
		return Task{}, ErrNotFound
	}
	return t, nil
}

func (m *Memory) GetTaskForUser(ctx context.Context, id string, userID int64) (Task, error) {
	t, err := m.GetTask(ctx, id)
	if err != nil {
		return Task{}, err
	}
	if t.UserID != userID {
		return Task{}, ErrNotFound
	}
	return t, nil
}

func (m *Memory) ListTasks(_ context.Context, userID int64) ([]Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var tasks []Task
	for _, t := range m.tasks {
		if t.UserID == userID {
			tasks = append(tasks, t)
		}
	}
	sort.Slice(tasks, func(i, j int) bool {
		return tasks[i].CreatedAt.After(tasks[j].CreatedAt)
	})
	return tasks, nil
}

func (m *Memory) AdvanceTask(_ context.Context, id string, from, to lifecycle.Status) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !lifecycle.CanAdvance(from, to) {
		return false, fmt.Errorf("advance task: illegal transition %s -> %s", from, to)
	}
	t, ok := m.tasks[id]
	if !ok || t.Status != from {
		return false, nil
	}
	t.Status = to
	t.UpdatedAt = time.Now().UTC()
	m.tasks[id] = t
	return true, nil
}

func (m *Memory) InitiatePayment(_ context.Context, taskID string, userID int64, orderID string) (Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()

	if id, ok := m.byTask[taskID]; ok {
		existing := m.payments[id]
		if existing.Captured() {
			return Payment{}, ErrPaymentCompleted
		}
		delete(m.byOrder, existing.OrderID)
		existing.Status = PaymentInitiated
		existing.OrderID = orderID
		existing.ProviderPaymentID = ""
		existing.UpdatedAt = now
		m.payments[id] = existing
		m.byOrder[orderID] = id
		return existing, nil
	}

	pay := Payment{
		ID:        uuid.NewString(),
		TaskID:    taskID,
		UserID:    userID,
		Status:    PaymentInitiated,
		OrderID:   orderID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.payments[pay.ID] = pay
	m.byOrder[orderID] = pay.ID
	m.byTask[taskID] = pay.ID
	return pay, nil
}

func (m *Memory) GetPaymentByOrderID(_ context.Context, orderID string) (Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.byOrder[orderID]
	if !ok {
		return Payment{}, ErrNotFound
	}
	return m.payments[id], nil
}

func (m *Memory) CapturePayment(_ context.Context, paymentID, providerPaymentID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pay, ok := m.payments[paymentID]
	if !ok || pay.Captured() {
		return false, nil
	}
	pay.Status = PaymentSuccess
	pay.ProviderPaymentID = providerPaymentID
	pay.UpdatedAt = time.Now().UTC()
	m.payments[paymentID] = pay
	return true, nil
}

func (m *Memory) FailPayment(_ context.Context, paymentID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pay, ok := m.payments[paymentID]
	if !ok || pay.Captured() {
		return false, nil
	}
	pay.Status = PaymentFailed
	pay.UpdatedAt = time.Now().UTC()
	m.payments[paymentID] = pay
	return true, nil
}

func (m *Memory) SaveEvaluation(_ context.Context, ev Evaluation) (Evaluation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.evaluations[ev.TaskID]; ok {
		return Evaluation{}, ErrEvaluationExists
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	ev.CreatedAt = time.Now().UTC()
	m.evaluations[ev.TaskID] = ev
	return ev, nil
}

func (m *Memory) GetEvaluationByTask(_ context.Context, taskID string) (Evaluation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ev, ok := m.evaluations[taskID]
	if !ok {
		return Evaluation{}, ErrNotFound
	}
	return ev, nil
}
