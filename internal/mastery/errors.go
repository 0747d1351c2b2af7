package mastery

import "fmt"

// InvalidTransitionError is returned when an action is attempted against a
// state that forbids it, for example assessing an atom that is still frozen
// with unresolved gaps.
type InvalidTransitionError struct {
	AtomID string
	From   State
	Action string
	Reason string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition: cannot %s atom %q in state %s: %s", e.Action, e.AtomID, e.From, e.Reason)
}
