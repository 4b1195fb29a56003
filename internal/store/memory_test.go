package store

import (
	"context"
	"errors"
	"sync"
	"testing"

	"taskeval-backend/internal/lifecycle"
)

func TestAdvanceTaskConditional(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	task, err := m.CreateTask(ctx, 1, "some text")
	if err != nil {
		t.Fatal(err)
	}

	applied, err := m.AdvanceTask(ctx, task.ID, lifecycle.StatusCreated, lifecycle.StatusPaid)
	if err != nil || !applied {
		t.Fatalf("first advance: applied=%v err=%v", applied, err)
	}

	// Re-entrant request: same transition again matches nothing.
	applied, err = m.AdvanceTask(ctx, task.ID, lifecycle.StatusCreated, lifecycle.StatusPaid)
	if err != nil {
		t.Fatal(err)
	}
	if applied {
		t.Fatal("second advance applied; conditional update must no-op")
	}

	got, _ := m.GetTask(ctx, task.ID)
	if got.Status != lifecycle.StatusPaid {
		t.Fatalf("status = %s, want paid", got.Status)
	}
}

func TestAdvanceTaskIllegalTransition(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	task, _ := m.CreateTask(ctx, 1, "text")

	if _, err := m.AdvanceTask(ctx, task.ID, lifecycle.StatusCreated, lifecycle.StatusEvaluated); err == nil {
		t.Fatal("created -> evaluated must be rejected")
	}
}

func TestAdvanceTaskConcurrentOneWinner(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	task, _ := m.CreateTask(ctx, 1, "text")
	_, _ = m.AdvanceTask(ctx, task.ID, lifecycle.StatusCreated, lifecycle.StatusPaid)

	const n = 32
	var wg sync.WaitGroup
	applied := make(chan bool, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := m.AdvanceTask(ctx, task.ID, lifecycle.StatusPaid, lifecycle.StatusEvaluated)
			if err != nil {
				t.Error(err)
			}
			applied <- ok
		}()
	}
	wg.Wait()
	close(applied)

	wins := 0
	for ok := range applied {
		if ok {
			wins++
		}
	}
	if wins != 1 {
		t.Fatalf("%d writers won the conditional update, want exactly 1", wins)
	}
}

func TestInitiatePayment(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	task, _ := m.CreateTask(ctx, 7, "text")

	p1, err := m.InitiatePayment(ctx, task.ID, 7, "order_1")
	if err != nil {
		t.Fatal(err)
	}
	if p1.Status != PaymentInitiated {
		t.Fatalf("status = %s, want initiated", p1.Status)
	}

	// Re-initiation reuses the row under a fresh order id.
	p2, err := m.InitiatePayment(ctx, task.ID, 7, "order_2")
	if err != nil {
		t.Fatal(err)
	}
	if p2.ID != p1.ID {
		t.Fatal("re-initiation created a second payment row")
	}
	if _, err := m.GetPaymentByOrderID(ctx, "order_1"); !errors.Is(err, ErrNotFound) {
		t.Fatal("stale order id still resolves")
	}

	// Captured payment blocks re-initiation.
	if applied, _ := m.CapturePayment(ctx, p2.ID, "pay_9"); !applied {
		t.Fatal("capture not applied")
	}
	if _, err := m.InitiatePayment(ctx, task.ID, 7, "order_3"); !errors.Is(err, ErrPaymentCompleted) {
		t.Fatalf("got %v, want ErrPaymentCompleted", err)
	}
}

func TestCapturePaymentIdempotent(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	task, _ := m.CreateTask(ctx, 1, "text")
	p, _ := m.InitiatePayment(ctx, task.ID, 1, "order_1")

	applied, err := m.CapturePayment(ctx, p.ID, "pay_1")
	if err != nil || !applied {
		t.Fatalf("first capture: applied=%v err=%v", applied, err)
	}
	applied, err = m.CapturePayment(ctx, p.ID, "pay_other")
	if err != nil {
		t.Fatal(err)
	}
	if applied {
		t.Fatal("second capture applied")
	}

	got, _ := m.GetPaymentByOrderID(ctx, "order_1")
	if got.ProviderPaymentID != "pay_1" {
		t.Fatalf("provider payment id overwritten: %s", got.ProviderPaymentID)
	}
	if !got.Captured() {
		t.Fatal("payment not captured")
	}
}

func TestSaveEvaluationOncePerTask(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	task, _ := m.CreateTask(ctx, 1, "text")

	ev := Evaluation{TaskID: task.ID, Score: 80, Feedback: "fine"}
	if _, err := m.SaveEvaluation(ctx, ev); err != nil {
		t.Fatal(err)
	}
	if _, err := m.SaveEvaluation(ctx, ev); !errors.Is(err, ErrEvaluationExists) {
		t.Fatalf("got %v, want ErrEvaluationExists", err)
	}

	got, err := m.GetEvaluationByTask(ctx, task.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Score != 80 {
		t.Fatalf("score = %d, want 80", got.Score)
	}
}

func TestGetTaskForUser(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	task, _ := m.CreateTask(ctx, 5, "text")

	if _, err := m.GetTaskForUser(ctx, task.ID, 5); err != nil {
		t.Fatal(err)
	}
	if _, err := m.GetTaskForUser(ctx, task.ID, 6); !errors.Is(err, ErrNotFound) {
		t.Fatal("other user can read the task")
	}
}
