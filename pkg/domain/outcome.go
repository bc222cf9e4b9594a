package domain

// Status is the terminal status of a run.
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Outcome is the single result of a run. Failures are carried in Err, never raised.
type Outcome struct {
	RunID  string `json:"run_id"`
	Status Status `json:"status"`
	// Output is the terminal payload of a successful run.
	Output any `json:"output,omitempty"`
	// Err is the typed failure of a failed or cancelled run.
	Err error `json:"-"`
	// State is the final state, or the last consistent state on failure.
	State *RunState `json:"state,omitempty"`
}

// Succeeded reports whether the run reached a terminal node.
func (o Outcome) Succeeded() bool {
	return o.Status == StatusSucceeded
}

// FailureMessage returns the failure text, or an empty string.
func (o Outcome) FailureMessage() string {
	if o.Err == nil {
		return ""
	}
	return o.Err.Error()
}
