package evaluation

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"taskeval-backend/internal/auth"
	"taskeval-backend/internal/lifecycle"
	"taskeval-backend/internal/store"
)

// RetryHandler re-arms evaluation for an owned task stuck at
// evaluation_failed: a conditional flip back to paid, then a fresh
// trigger. The conditional update means concurrent retries collapse
// to one.
func RetryHandler(ledger store.Ledger, queue *Queue, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid, ok := auth.UserIDFromContext(r.Context())
		if !ok {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		var body struct {
			TaskID string `json:"task_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.TaskID == "" {
			http.Error(w, "task_id required", http.StatusBadRequest)
			return
		}

		task, err := ledger.GetTaskForUser(r.Context(), body.TaskID, uid)
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "task not found", http.StatusNotFound)
			return
		}
		if err != nil {
			http.Error(w, "db error", http.StatusInternalServerError)
			return
		}

		if task.Status != lifecycle.StatusEvaluationFailed {
			http.Error(w, "task is not awaiting retry", http.StatusConflict)
			return
		}

		applied, err := ledger.AdvanceTask(r.Context(), task.ID,
			lifecycle.StatusEvaluationFailed, lifecycle.StatusPaid)
		if err != nil {
			http.Error(w, "db error", http.StatusInternalServerError)
			return
		}
		if applied {
			queue.Enqueue(task.ID)
			log.Info("evaluation retry requested", zap.String("task_id", task.ID))
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"ok":      true,
			"task_id": task.ID,
		})
	}
}
