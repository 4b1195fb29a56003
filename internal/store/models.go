package store

import (
	"time"

	"taskeval-backend/internal/lifecycle"
)

type Task struct {
	ID        string           `json:"id"`
	UserID    int64            `json:"user_id"`
	Text      string           `json:"text"`
	Status    lifecycle.Status `json:"status"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// Payment statuses. A payment is captured once it reaches success;
// completed is the post-settlement state. provider_payment_id is set
// if and only if the status is success or completed.
const (
	PaymentInitiated = "initiated"
	PaymentSuccess   = "success"
	PaymentCompleted = "completed"
	PaymentFailed    = "failed"
)

type Payment struct {
	ID                string    `json:"id"`
	TaskID            string    `json:"task_id"`
	UserID            int64     `json:"user_id"`
	Status            string    `json:"status"`
	OrderID           string    `json:"razorpay_order_id"`
	ProviderPaymentID string    `json:"provider_payment_id,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// Captured reports whether the payment has already been applied from
// either notification channel.
func (p Payment) Captured() bool {
	return p.Status == PaymentSuccess || p.Status == PaymentCompleted
}

type Evaluation struct {
	ID           string    `json:"id"`
	TaskID       string    `json:"task_id"`
	Score        int       `json:"score"`
	Strengths    []string  `json:"strengths"`
	Improvements []string  `json:"improvements"`
	Feedback     string    `json:"feedback"`
	CreatedAt    time.Time `json:"created_at"`
}
