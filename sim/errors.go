// Error taxonomy for the simulation core.
//
// ValidationError and QueueFullError are producer-facing: they are returned
// from Submit/Enqueue before any state is touched. InvariantViolation is
// fatal to the orchestrator: it halts the tick loop rather than continuing
// with corrupted state.

package sim

import "fmt"

// ValidationError reports a malformed or semantically invalid command.
// The command is rejected before it affects simulation state.
type ValidationError struct {
	Field  string // offending command field, e.g. "intersection_id"
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid command: %s: %s", e.Field, e.Reason)
}

// QueueFullError is the backpressure signal returned by Enqueue when the
// command queue is at capacity. Producers must retry or drop.
type QueueFullError struct {
	Capacity int
}

func (e *QueueFullError) Error() string {
	return fmt.Sprintf("command queue full (capacity %d)", e.Capacity)
}

// InvariantViolation indicates corrupted simulation state, e.g. a signal in
// emergency override with no saved phase. The orchestrator halts on it.
type InvariantViolation struct {
	TickID int64
	Detail string
}

func (e *InvariantViolation) Error() string {
	return fmt.Sprintf("invariant violation at tick %d: %s", e.TickID, e.Detail)
}

func validationErrorf(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}
