package payments

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"taskeval-backend/internal/analytics"
	"taskeval-backend/internal/auth"
	"taskeval-backend/internal/dedup"
	"taskeval-backend/internal/signature"
	"taskeval-backend/internal/store"
)

const (
	sigHeader     = "X-Razorpay-Signature"
	eventIDHeader = "X-Razorpay-Event-Id"
)

type webhookEvent struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity struct {
				ID      string `json:"id"`
				OrderID string `json:"order_id"`
			} `json:"entity"`
		} `json:"payment"`
		Order struct {
			Entity struct {
				ID string `json:"id"`
			} `json:"entity"`
		} `json:"order"`
	} `json:"payload"`
}

// WebhookHandler is the asynchronous notification channel. The
// processor may deliver payment.captured and order.paid for the same
// purchase; both carry the same order id and reconcile identically,
// so no behavior branches on event type. Unrecognized events are
// acknowledged and ignored.
func WebhookHandler(rec *Reconciler, verifier *signature.Verifier, ded dedup.Deduper, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "read error", http.StatusBadRequest)
			return
		}

		sig := r.Header.Get(sigHeader)
		if sig == "" {
			http.Error(w, "missing signature", http.StatusBadRequest)
			return
		}

		ok, err := verifier.VerifyWebhook(body, sig)
		if err != nil {
			http.Error(w, "verification unavailable", http.StatusInternalServerError)
			return
		}
		if !ok {
			log.Warn("webhook signature mismatch")
			http.Error(w, "invalid signature", http.StatusUnauthorized)
			return
		}

		var event webhookEvent
		if err := json.Unmarshal(body, &event); err != nil {
			http.Error(w, "invalid json payload", http.StatusBadRequest)
			return
		}

		switch event.Event {
		case "payment.captured", "order.paid", "payment.failed":
		default:
			writeJSON(w, http.StatusOK, map[string]any{"message": "event ignored"})
			return
		}

		orderID := event.Payload.Payment.Entity.OrderID
		if orderID == "" {
			orderID = event.Payload.Order.Entity.ID
		}
		paymentID := event.Payload.Payment.Entity.ID
		if orderID == "" || paymentID == "" {
			http.Error(w, "missing payment entity", http.StatusBadRequest)
			return
		}

		// Delivery dedup is best effort; a dedup failure must never
		// drop a delivery, reconciliation is idempotent anyway.
		if eventID := r.Header.Get(eventIDHeader); eventID != "" && ded != nil {
			seen, err := ded.Seen(r.Context(), eventID)
			if err != nil {
				log.Warn("webhook dedup unavailable", zap.Error(err))
			} else if seen {
				writeJSON(w, http.StatusOK, map[string]any{"message": "event already processed"})
				return
			}
		}

		n := Notification{
			Channel:   ChannelWebhook,
			OrderID:   orderID,
			PaymentID: paymentID,
			Signature: sig,
			RawBody:   body,
		}

		if event.Event == "payment.failed" {
			if _, err := rec.MarkFailed(r.Context(), n); err != nil {
				writeReconcileError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{
				"message":  "payment failure recorded",
				"order_id": orderID,
			})
			return
		}

		out, err := rec.Reconcile(r.Context(), n)
		if err != nil {
			writeReconcileError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"message":    "webhook processed",
			"order_id":   orderID,
			"payment_id": paymentID,
			"task_id":    out.TaskID,
		})
	}
}

// ConfirmHandler is the synchronous client-redirect channel: the
// browser posts the order/payment/signature triple the checkout UI
// handed back. The caller must own the task; beyond that the
// signature is what authenticates the pair.
func ConfirmHandler(rec *Reconciler, ledger store.Ledger, events *analytics.Recorder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid, ok := authedUser(w, r)
		if !ok {
			return
		}

		var body struct {
			OrderID   string `json:"razorpay_order_id"`
			PaymentID string `json:"razorpay_payment_id"`
			Signature string `json:"razorpay_signature"`
			TaskID    string `json:"task_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		if body.OrderID == "" || body.PaymentID == "" || body.Signature == "" || body.TaskID == "" {
			http.Error(w, "order, payment, signature and task_id required", http.StatusBadRequest)
			return
		}

		if _, err := ledger.GetTaskForUser(r.Context(), body.TaskID, uid); err != nil {
			http.Error(w, "task not found", http.StatusNotFound)
			return
		}

		out, err := rec.Reconcile(r.Context(), Notification{
			Channel:   ChannelCheckout,
			OrderID:   body.OrderID,
			PaymentID: body.PaymentID,
			Signature: body.Signature,
		})
		if errors.Is(err, ErrInvalidSignature) {
			http.Error(w, "invalid payment signature", http.StatusBadRequest)
			return
		}
		if err != nil {
			writeReconcileError(w, err)
			return
		}
		if out.TaskID != body.TaskID {
			http.Error(w, "payment does not belong to task", http.StatusBadRequest)
			return
		}

		env := analytics.FromRequest(r)
		env.UserID = uid
		events.Log(r.Context(), env, analytics.EventPaymentConfirmed, map[string]any{
			"task_id":  body.TaskID,
			"order_id": body.OrderID,
			"channel":  "checkout",
		}, analytics.SourceEventKeyFromRequest(r))

		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"message": "payment verified and task updated",
			"task_id": body.TaskID,
		})
	}
}

// CreateOrderHandler registers a processor order for a task's fixed
// evaluation fee and records the initiated payment. Re-initiation
// for a task whose payment was already captured is rejected.
func CreateOrderHandler(ledger store.Ledger, rzp *RazorpayClient, fee int64, currency string, events *analytics.Recorder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid, ok := authedUser(w, r)
		if !ok {
			return
		}

		var body struct {
			TaskID string `json:"task_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.TaskID == "" {
			http.Error(w, "task_id required", http.StatusBadRequest)
			return
		}

		if _, err := ledger.GetTaskForUser(r.Context(), body.TaskID, uid); err != nil {
			http.Error(w, "task not found or access denied", http.StatusNotFound)
			return
		}

		receipt := "task_" + uuid.NewString()[:8]
		order, err := rzp.CreateOrder(r.Context(), fee, currency, receipt, map[string]string{
			"task_id": body.TaskID,
			"user_id": strconv.FormatInt(uid, 10),
			"service": "task_evaluation",
		})
		if err != nil {
			http.Error(w, "order creation failed", http.StatusBadGateway)
			return
		}

		payment, err := ledger.InitiatePayment(r.Context(), body.TaskID, uid, order.ID)
		if errors.Is(err, store.ErrPaymentCompleted) {
			http.Error(w, "payment already completed for this task", http.StatusBadRequest)
			return
		}
		if err != nil {
			http.Error(w, "failed to create payment record", http.StatusInternalServerError)
			return
		}

		env := analytics.FromRequest(r)
		env.UserID = uid
		events.Log(r.Context(), env, analytics.EventPaymentInitiated, map[string]any{
			"task_id":  body.TaskID,
			"order_id": order.ID,
			"amount":   fee,
		}, analytics.SourceEventKeyFromRequest(r))

		writeJSON(w, http.StatusOK, map[string]any{
			"success":    true,
			"order":      order,
			"payment_id": payment.ID,
		})
	}
}

func writeReconcileError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidSignature):
		http.Error(w, "invalid signature", http.StatusUnauthorized)
	case errors.Is(err, store.ErrNotFound):
		http.Error(w, "payment record not found", http.StatusNotFound)
	default:
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func authedUser(w http.ResponseWriter, r *http.Request) (int64, bool) {
	uid, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return 0, false
	}
	return uid, true
}
