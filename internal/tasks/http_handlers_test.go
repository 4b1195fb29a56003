package tasks

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"taskeval-backend/internal/auth"
	"taskeval-backend/internal/lifecycle"
	"taskeval-backend/internal/store"
)

func authedRequest(method, target string, body []byte, uid int64) *http.Request {
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	if uid != 0 {
		req = req.WithContext(auth.WithUserID(req.Context(), uid))
	}
	return req
}

func TestCreateTaskHandler(t *testing.T) {
	ledger := store.NewMemory()
	handler := CreateTaskHandler(ledger, nil)

	body, _ := json.Marshal(map[string]string{"text": "  my submission  "})
	w := httptest.NewRecorder()
	handler(w, authedRequest(http.MethodPost, "/tasks", body, 3))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body)
	}
	var task store.Task
	if err := json.Unmarshal(w.Body.Bytes(), &task); err != nil {
		t.Fatal(err)
	}
	if task.Text != "my submission" {
		t.Fatalf("text = %q, want trimmed", task.Text)
	}
	if task.Status != lifecycle.StatusCreated || task.UserID != 3 {
		t.Fatalf("task = %+v", task)
	}
	if _, err := ledger.GetTask(context.Background(), task.ID); err != nil {
		t.Fatalf("task not persisted: %v", err)
	}
}

func TestCreateTaskHandlerValidation(t *testing.T) {
	handler := CreateTaskHandler(store.NewMemory(), nil)

	for _, body := range []string{`{}`, `{"text":"   "}`, `not json`} {
		w := httptest.NewRecorder()
		handler(w, authedRequest(http.MethodPost, "/tasks", []byte(body), 3))
		if w.Code != http.StatusBadRequest {
			t.Fatalf("body %q: status = %d, want 400", body, w.Code)
		}
	}

	w := httptest.NewRecorder()
	handler(w, authedRequest(http.MethodPost, "/tasks", []byte(`{"text":"x"}`), 0))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("unauthed status = %d, want 401", w.Code)
	}
}

func TestListTasksHandler(t *testing.T) {
	ctx := context.Background()
	ledger := store.NewMemory()
	if _, err := ledger.CreateTask(ctx, 3, "mine"); err != nil {
		t.Fatal(err)
	}
	if _, err := ledger.CreateTask(ctx, 4, "someone else's"); err != nil {
		t.Fatal(err)
	}

	handler := ListTasksHandler(ledger)
	w := httptest.NewRecorder()
	handler(w, authedRequest(http.MethodGet, "/tasks", nil, 3))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var tasks []store.Task
	if err := json.Unmarshal(w.Body.Bytes(), &tasks); err != nil {
		t.Fatal(err)
	}
	if len(tasks) != 1 || tasks[0].Text != "mine" {
		t.Fatalf("tasks = %+v, want only the caller's", tasks)
	}
}

func TestListTasksHandlerEmpty(t *testing.T) {
	handler := ListTasksHandler(store.NewMemory())
	w := httptest.NewRecorder()
	handler(w, authedRequest(http.MethodGet, "/tasks", nil, 3))

	// Empty list, not null.
	if got := bytes.TrimSpace(w.Body.Bytes()); string(got) != "[]" {
		t.Fatalf("body = %s, want []", got)
	}
}

func TestGetTaskHandlerOwnership(t *testing.T) {
	ctx := context.Background()
	ledger := store.NewMemory()
	task, _ := ledger.CreateTask(ctx, 3, "mine")
	handler := GetTaskHandler(ledger)

	w := httptest.NewRecorder()
	handler(w, authedRequest(http.MethodGet, "/task?id="+task.ID, nil, 3))
	if w.Code != http.StatusOK {
		t.Fatalf("owner status = %d", w.Code)
	}

	w = httptest.NewRecorder()
	handler(w, authedRequest(http.MethodGet, "/task?id="+task.ID, nil, 4))
	if w.Code != http.StatusNotFound {
		t.Fatalf("non-owner status = %d, want 404", w.Code)
	}

	w = httptest.NewRecorder()
	handler(w, authedRequest(http.MethodGet, "/task", nil, 3))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("missing id status = %d, want 400", w.Code)
	}
}

func TestGetEvaluationHandler(t *testing.T) {
	ctx := context.Background()
	ledger := store.NewMemory()
	task, _ := ledger.CreateTask(ctx, 3, "mine")
	handler := GetEvaluationHandler(ledger)

	// No evaluation yet: 404 carrying the task's current status.
	w := httptest.NewRecorder()
	handler(w, authedRequest(http.MethodGet, "/evaluation?task_id="+task.ID, nil, 3))
	if w.Code != http.StatusNotFound {
		t.Fatalf("pending status = %d, want 404", w.Code)
	}
	var pending struct {
		Error  string           `json:"error"`
		Status lifecycle.Status `json:"status"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &pending); err != nil {
		t.Fatal(err)
	}
	if pending.Status != lifecycle.StatusCreated {
		t.Fatalf("reported status = %s, want created", pending.Status)
	}

	if _, err := ledger.SaveEvaluation(ctx, store.Evaluation{
		TaskID: task.ID, Score: 82, Feedback: "solid",
	}); err != nil {
		t.Fatal(err)
	}

	w = httptest.NewRecorder()
	handler(w, authedRequest(http.MethodGet, "/evaluation?task_id="+task.ID, nil, 3))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var ev store.Evaluation
	if err := json.Unmarshal(w.Body.Bytes(), &ev); err != nil {
		t.Fatal(err)
	}
	if ev.Score != 82 || ev.TaskID != task.ID {
		t.Fatalf("evaluation = %+v", ev)
	}

	// Other users never learn whether the task exists.
	w = httptest.NewRecorder()
	handler(w, authedRequest(http.MethodGet, "/evaluation?task_id="+task.ID, nil, 4))
	if w.Code != http.StatusNotFound {
		t.Fatalf("non-owner status = %d, want 404", w.Code)
	}
}
