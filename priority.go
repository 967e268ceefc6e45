package notifyexec

import "golang.org/x/exp/slices"

// Priority is one of the seven fixed severity tags carried on a notification.
type Priority string

// The fixed priority set. Unknown priorities are logged and dropped by the
// dispatcher (the underlying message is still acknowledged).
const (
	PriorityAudit    Priority = "audit"
	PriorityDebug    Priority = "debug"
	PriorityInfo     Priority = "info"
	PriorityWarn     Priority = "warn"
	PriorityError    Priority = "error"
	PriorityCritical Priority = "critical"
	PrioritySample   Priority = "sample"
)

// priorities is the fixed priority set, used to validate extracted messages
// and to drop unknown priorities when the priority index is built.
var priorities = [...]Priority{
	PriorityAudit,
	PriorityDebug,
	PriorityInfo,
	PriorityWarn,
	PriorityError,
	PriorityCritical,
	PrioritySample,
}

// Known reports whether p is one of the fixed priorities.
func (p Priority) Known() bool {
	return slices.Contains(priorities[:], p)
}

// Verdict is a handler's reply: Handled (ack) or Requeue (return to queue,
// only honored when the dispatcher was configured with AllowRequeue).
type Verdict string

const (
	// Handled is the default verdict, including the one assumed for a nil
	// error and no explicit return from a handler.
	Handled Verdict = "handled"

	// Requeue asks the dispatcher to requeue every raw message sharing the
	// priority group of the handler that returned it, and to skip any
	// remaining handlers for that priority in the current dispatch cycle.
	Requeue Verdict = "requeue"
)

// normalizeVerdict coerces a zero-value Verdict (e.g. from a handler that
// returns no explicit verdict) to Handled.
func normalizeVerdict(v Verdict) Verdict {
	if v == "" {
		return Handled
	}
	return v
}
