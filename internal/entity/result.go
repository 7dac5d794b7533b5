package entity

// LifecycleResult is the outcome of a lifecycle operation.
type LifecycleResult int

const (
	// Success means the requested change happened (or, in idempotent mode,
	// was already in effect).
	Success LifecycleResult = iota
	// Failure means the backend rejected the operation.
	Failure
	// NoOperation means the entity was already in the requested state.
	NoOperation
	// TimedOut means a graceful stop was accepted but did not finish in time.
	TimedOut
	// Forced means a graceful stop timed out and the entity was destroyed.
	Forced
)

func (r LifecycleResult) String() string {
	switch r {
	case Success:
		return "success"
	case Failure:
		return "failure"
	case NoOperation:
		return "no operation"
	case TimedOut:
		return "timed out"
	case Forced:
		return "forced"
	default:
		return "unknown"
	}
}

// noop picks the answer for "already in the requested state".
func noop(idempotent bool) LifecycleResult {
	if idempotent {
		return Success
	}
	return NoOperation
}
