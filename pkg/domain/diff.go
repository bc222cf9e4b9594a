package domain

import (
	"reflect"
)

// StateDiff represents the changes between two run states.
// It is designed to be serialized to JSON for logs and partial updates.
type StateDiff struct {
	RunID string `json:"run_id"`

	CurrentNodeID *string `json:"current_node_id,omitempty"`
	Step          *int    `json:"step,omitempty"`

	// Scratch contains only changed, added or deleted keys.
	// For deletions, the key is present with a nil value.
	Scratch map[string]any `json:"scratch,omitempty"`

	// Appended holds messages added to the history. History is append-only within a run.
	Appended []Message `json:"appended,omitempty"`
}

// Diff calculates the difference between oldState and newState.
// If oldState is nil, it returns a diff representing the entire newState.
// It returns nil when nothing changed.
func Diff(oldState, newState *RunState) *StateDiff {
	if newState == nil {
		return nil
	}

	diff := &StateDiff{
		RunID: newState.RunID,
	}

	if oldState == nil || oldState.CurrentNodeID != newState.CurrentNodeID {
		node := newState.CurrentNodeID
		diff.CurrentNodeID = &node
	}
	if oldState == nil || oldState.Step != newState.Step {
		step := newState.Step
		diff.Step = &step
	}

	diff.Scratch = diffScratch(oldState, newState)
	diff.Appended = diffMessages(oldState, newState)

	if diff.IsEmpty() {
		return nil
	}
	return diff
}

func diffScratch(old *RunState, new *RunState) map[string]any {
	delta := make(map[string]any)

	if old == nil {
		for k, v := range new.Scratch {
			delta[k] = v
		}
		if len(delta) == 0 {
			return nil
		}
		return delta
	}

	for k, newVal := range new.Scratch {
		oldVal, exists := old.Scratch[k]
		if !exists || !reflect.DeepEqual(oldVal, newVal) {
			delta[k] = newVal
		}
	}

	for k := range old.Scratch {
		if _, exists := new.Scratch[k]; !exists {
			delta[k] = nil
		}
	}

	if len(delta) == 0 {
		return nil
	}
	return delta
}

func diffMessages(old *RunState, new *RunState) []Message {
	if old == nil {
		if len(new.Messages) == 0 {
			return nil
		}
		return new.Messages
	}
	if len(new.Messages) > len(old.Messages) {
		return new.Messages[len(old.Messages):]
	}
	return nil
}

// IsEmpty checks if the diff contains any change.
func (d *StateDiff) IsEmpty() bool {
	return d.CurrentNodeID == nil &&
		d.Step == nil &&
		len(d.Scratch) == 0 &&
		len(d.Appended) == 0
}
