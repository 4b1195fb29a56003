package evaluation

import (
	"context"
	"errors"
)

// ErrEmptyText is returned by every Scorer for blank input.
var ErrEmptyText = errors.New("evaluation: task text cannot be empty")

// Result is the structured evaluation produced for a task.
type Result struct {
	Score        int      `json:"score"` // 0..100
	Strengths    []string `json:"strengths"`
	Improvements []string `json:"improvements"`
	Feedback     string   `json:"feedback"`
}

// Scorer turns submitted text into a Result. Implementations must
// honor ctx cancellation; the trigger bounds every call with a
// timeout and treats expiry as failure.
type Scorer interface {
	Score(ctx context.Context, text string) (Result, error)
}
