package lifecycle

// Status is a task lifecycle state. Tasks move forward only:
// created -> paid -> evaluated, with evaluation_failed as a side
// terminal reachable from paid. The single backward edge,
// evaluation_failed -> paid, exists for owner-initiated retries.
type Status string

const (
	StatusCreated          Status = "created"
	StatusPaid             Status = "paid"
	StatusEvaluated        Status = "evaluated"
	StatusEvaluationFailed Status = "evaluation_failed"
)

var transitions = map[Status][]Status{
	StatusCreated:          {StatusPaid},
	StatusPaid:             {StatusEvaluated, StatusEvaluationFailed},
	StatusEvaluationFailed: {StatusPaid},
	StatusEvaluated:        {},
}

// Valid reports whether s is a known task status.
func Valid(s Status) bool {
	_, ok := transitions[s]
	return ok
}

// CanAdvance reports whether from -> to is a legal transition.
// Anything not in the table is illegal; callers reject or no-op,
// they never apply it.
func CanAdvance(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether no forward progress is expected from s.
// evaluation_failed is terminal until an explicit retry.
func Terminal(s Status) bool {
	return s == StatusEvaluated || s == StatusEvaluationFailed
}
