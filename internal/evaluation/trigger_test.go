package evaluation

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"taskeval-backend/internal/analytics"
	"taskeval-backend/internal/lifecycle"
	"taskeval-backend/internal/store"
)

type stubScorer struct {
	calls  atomic.Int64
	result Result
	err    error
	block  time.Duration
}

func (s *stubScorer) Score(ctx context.Context, text string) (Result, error) {
	s.calls.Add(1)
	if s.block > 0 {
		select {
		case <-time.After(s.block):
		case <-ctx.Done():
			return Result{}, ctx.Err()
		}
	}
	if s.err != nil {
		return Result{}, s.err
	}
	return s.result, nil
}

// failingLedger fails evaluation inserts but keeps every status
// write honest.
type failingLedger struct {
	store.Ledger
}

func (f *failingLedger) SaveEvaluation(ctx context.Context, ev store.Evaluation) (store.Evaluation, error) {
	return store.Evaluation{}, errors.New("insert failed")
}

type recordingEvents struct {
	mu    sync.Mutex
	names []string
	users []int64
}

func (r *recordingEvents) Log(_ context.Context, env analytics.Envelope, eventName string, _ any, _ string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.names = append(r.names, eventName)
	r.users = append(r.users, env.UserID)
}

func paidTask(t *testing.T, ledger store.Ledger) store.Task {
	t.Helper()
	ctx := context.Background()
	task, err := ledger.CreateTask(ctx, 1, "function add(a, b) { if (!a) return b; return a + b } // sums")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ledger.AdvanceTask(ctx, task.ID, lifecycle.StatusCreated, lifecycle.StatusPaid); err != nil {
		t.Fatal(err)
	}
	return task
}

func taskStatus(t *testing.T, ledger store.Ledger, id string) lifecycle.Status {
	t.Helper()
	task, err := ledger.GetTask(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	return task.Status
}

func TestTriggerSuccess(t *testing.T) {
	ledger := store.NewMemory()
	task := paidTask(t, ledger)
	scorer := &stubScorer{result: Result{Score: 88, Strengths: []string{"clear"}, Feedback: "good"}}

	trig := NewTrigger(ledger, scorer, nil, time.Second, zap.NewNop())
	if err := trig.Run(context.Background(), task.ID); err != nil {
		t.Fatal(err)
	}

	if got := taskStatus(t, ledger, task.ID); got != lifecycle.StatusEvaluated {
		t.Fatalf("status = %s, want evaluated", got)
	}
	ev, err := ledger.GetEvaluationByTask(context.Background(), task.ID)
	if err != nil {
		t.Fatal(err)
	}
	if ev.Score != 88 {
		t.Fatalf("score = %d, want 88", ev.Score)
	}
}

func TestTriggerScorerFailure(t *testing.T) {
	ledger := store.NewMemory()
	task := paidTask(t, ledger)
	scorer := &stubScorer{err: errors.New("model unavailable")}

	trig := NewTrigger(ledger, scorer, nil, time.Second, zap.NewNop())
	if err := trig.Run(context.Background(), task.ID); err != nil {
		t.Fatal(err)
	}

	if got := taskStatus(t, ledger, task.ID); got != lifecycle.StatusEvaluationFailed {
		t.Fatalf("status = %s, want evaluation_failed", got)
	}
	if _, err := ledger.GetEvaluationByTask(context.Background(), task.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatal("evaluation row exists after scorer failure")
	}
}

func TestTriggerScorerTimeout(t *testing.T) {
	ledger := store.NewMemory()
	task := paidTask(t, ledger)
	scorer := &stubScorer{block: time.Second, result: Result{Score: 90}}

	trig := NewTrigger(ledger, scorer, nil, 10*time.Millisecond, zap.NewNop())
	if err := trig.Run(context.Background(), task.ID); err != nil {
		t.Fatal(err)
	}

	if got := taskStatus(t, ledger, task.ID); got != lifecycle.StatusEvaluationFailed {
		t.Fatalf("status = %s, want evaluation_failed", got)
	}
}

func TestTriggerPersistenceFailureAfterScore(t *testing.T) {
	mem := store.NewMemory()
	task := paidTask(t, mem)
	scorer := &stubScorer{result: Result{Score: 75}}

	trig := NewTrigger(&failingLedger{Ledger: mem}, scorer, nil, time.Second, zap.NewNop())
	if err := trig.Run(context.Background(), task.ID); err != nil {
		t.Fatal(err)
	}

	// Never stuck at paid: insert failure still lands a terminal state.
	if got := taskStatus(t, mem, task.ID); got != lifecycle.StatusEvaluationFailed {
		t.Fatalf("status = %s, want evaluation_failed", got)
	}
}

func TestTriggerSkipsNonPaidTask(t *testing.T) {
	ledger := store.NewMemory()
	task, _ := ledger.CreateTask(context.Background(), 1, "text")
	scorer := &stubScorer{result: Result{Score: 50}}

	trig := NewTrigger(ledger, scorer, nil, time.Second, zap.NewNop())
	if err := trig.Run(context.Background(), task.ID); err != nil {
		t.Fatal(err)
	}

	if n := scorer.calls.Load(); n != 0 {
		t.Fatalf("scorer called %d times for a created task", n)
	}
	if got := taskStatus(t, ledger, task.ID); got != lifecycle.StatusCreated {
		t.Fatalf("status = %s, want created", got)
	}
}

func TestTriggerSecondRunIsNoOp(t *testing.T) {
	ledger := store.NewMemory()
	task := paidTask(t, ledger)
	scorer := &stubScorer{result: Result{Score: 70}}
	trig := NewTrigger(ledger, scorer, nil, time.Second, zap.NewNop())

	if err := trig.Run(context.Background(), task.ID); err != nil {
		t.Fatal(err)
	}
	if err := trig.Run(context.Background(), task.ID); err != nil {
		t.Fatal(err)
	}

	if n := scorer.calls.Load(); n != 1 {
		t.Fatalf("scorer called %d times, want 1", n)
	}
}

func TestTriggerRecordsOutcomeEvents(t *testing.T) {
	t.Run("evaluated", func(t *testing.T) {
		ledger := store.NewMemory()
		task := paidTask(t, ledger)
		events := &recordingEvents{}

		trig := NewTrigger(ledger, &stubScorer{result: Result{Score: 81}}, events, time.Second, zap.NewNop())
		if err := trig.Run(context.Background(), task.ID); err != nil {
			t.Fatal(err)
		}

		if len(events.names) != 1 || events.names[0] != analytics.EventTaskEvaluated {
			t.Fatalf("events = %v, want one %s", events.names, analytics.EventTaskEvaluated)
		}
		if events.users[0] != task.UserID {
			t.Fatalf("event user = %d, want %d", events.users[0], task.UserID)
		}
	})

	t.Run("evaluation failed", func(t *testing.T) {
		ledger := store.NewMemory()
		task := paidTask(t, ledger)
		events := &recordingEvents{}

		trig := NewTrigger(ledger, &stubScorer{err: errors.New("boom")}, events, time.Second, zap.NewNop())
		if err := trig.Run(context.Background(), task.ID); err != nil {
			t.Fatal(err)
		}

		if len(events.names) != 1 || events.names[0] != analytics.EventEvaluationFailed {
			t.Fatalf("events = %v, want one %s", events.names, analytics.EventEvaluationFailed)
		}
	})

	t.Run("duplicate run stays silent", func(t *testing.T) {
		ledger := store.NewMemory()
		task := paidTask(t, ledger)
		events := &recordingEvents{}

		trig := NewTrigger(ledger, &stubScorer{result: Result{Score: 81}}, events, time.Second, zap.NewNop())
		if err := trig.Run(context.Background(), task.ID); err != nil {
			t.Fatal(err)
		}
		if err := trig.Run(context.Background(), task.ID); err != nil {
			t.Fatal(err)
		}

		if len(events.names) != 1 {
			t.Fatalf("events = %v, duplicates must not re-record", events.names)
		}
	})
}

// TestTriggerNeverLeavesPaid sweeps every scorer outcome and checks
// the task always reaches a terminal state.
func TestTriggerNeverLeavesPaid(t *testing.T) {
	cases := []struct {
		name   string
		scorer *stubScorer
		broken bool
	}{
		{"success", &stubScorer{result: Result{Score: 80}}, false},
		{"failure", &stubScorer{err: errors.New("boom")}, false},
		{"timeout", &stubScorer{block: time.Second, result: Result{Score: 80}}, false},
		{"insert failure", &stubScorer{result: Result{Score: 80}}, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mem := store.NewMemory()
			task := paidTask(t, mem)

			var ledger store.Ledger = mem
			if tc.broken {
				ledger = &failingLedger{Ledger: mem}
			}

			trig := NewTrigger(ledger, tc.scorer, nil, 20*time.Millisecond, zap.NewNop())
			if err := trig.Run(context.Background(), task.ID); err != nil {
				t.Fatal(err)
			}

			got := taskStatus(t, mem, task.ID)
			if !lifecycle.Terminal(got) {
				t.Fatalf("task left at %s; paid must always resolve", got)
			}
		})
	}
}
