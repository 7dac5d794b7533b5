package batch

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jbweber/hvctl/internal/entity"
	"github.com/jbweber/hvctl/internal/runner"
)

// Outcome is how a single result counts.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeSkipped
	OutcomeFailed
	OutcomeTimedOut
	OutcomeForced
	OutcomeNotFound
	OutcomeParentNotFound
	OutcomeDefect
	OutcomeIgnored
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeFailed:
		return "failed"
	case OutcomeTimedOut:
		return "timed_out"
	case OutcomeForced:
		return "forced"
	case OutcomeNotFound:
		return "not_found"
	case OutcomeParentNotFound:
		return "parent_not_found"
	case OutcomeDefect:
		return "defect"
	case OutcomeIgnored:
		return "ignored"
	default:
		return "unknown"
	}
}

// Verdict is the classification of one result.
type Verdict struct {
	Outcome Outcome
	// Success means the result counts toward Summary.Success.
	Success bool
	// Trip means the result stops a fail-fast batch.
	Trip    bool
	Message string
	Err     error
}

// Classify decides how res counts under p. It is used for batch units and
// for the inline single target path alike.
func Classify(res runner.Result[entity.LifecycleResult], op runner.Operation, p Policy) Verdict {
	t := res.Target
	terms := op.Terms()
	kind := t.Kind

	switch res.FailedStage() {
	case runner.StageConnect:
		return failed(res.Err, "Could not connect to the hypervisor to %s %s %q: %v.", terms.Verb, kind, t.Name, res.Err)

	case runner.StageAttrs:
		return Verdict{
			Outcome: OutcomeDefect,
			Trip:    true,
			Message: fmt.Sprintf("Unexpected internal error processing %s %q.", kind, t.Name),
			Err:     res.Err,
		}

	case runner.StageEntity:
		if !res.NotFound() {
			return failed(res.Err, "Unexpected error processing %s %q: %v.", kind, t.Name, res.Err)
		}
		if kind.HasParent() {
			return Verdict{
				Outcome: OutcomeParentNotFound,
				Trip:    true,
				Message: fmt.Sprintf("Could not find %s %q.", kind.Parent(), t.Parent),
				Err:     res.Err,
			}
		}
		return missing(res, op, p)

	case runner.StageSubEntity:
		if !res.NotFound() {
			return failed(res.Err, "Unexpected error processing %s %q: %v.", kind, t.Name, res.Err)
		}
		return missing(res, op, p)

	case runner.StageMethod:
		return methodError(res, op)

	case runner.StagePostproc:
		// The operation itself went through.
		return Verdict{
			Outcome: OutcomeSuccess,
			Success: true,
			Message: fmt.Sprintf("%s %s %q, but could not read back the result: %v.", capitalize(terms.Past), kind, t.Name, res.Err),
			Err:     res.Err,
		}
	}

	switch res.Value {
	case entity.Success:
		return Verdict{
			Outcome: OutcomeSuccess,
			Success: true,
			Message: fmt.Sprintf("%s %s %q.", capitalize(terms.Continuous), kind, t.Name),
		}
	case entity.NoOperation:
		return Verdict{
			Outcome: OutcomeSkipped,
			Success: p.Idempotent,
			Message: already(kind, t.Name, terms),
		}
	case entity.TimedOut:
		return Verdict{
			Outcome: OutcomeTimedOut,
			Trip:    true,
			Message: fmt.Sprintf("Timed out waiting for %s %q to %s.", kind, t.Name, terms.Verb),
		}
	case entity.Forced:
		return Verdict{
			Outcome: OutcomeForced,
			Message: fmt.Sprintf("%s %q failed to %s and was forced to do so anyway.", kind.Title(), t.Name, terms.Verb),
		}
	default:
		return Verdict{
			Outcome: OutcomeFailed,
			Trip:    true,
			Message: fmt.Sprintf("Failed to %s %s %q.", terms.Verb, kind, t.Name),
		}
	}
}

// missing handles a target that does not exist. For a removal in
// idempotent mode the object most likely went away between enumeration
// and execution, which is the state the caller asked for.
func missing(res runner.Result[entity.LifecycleResult], op runner.Operation, p Policy) Verdict {
	t := res.Target
	if op.Removal() && p.Idempotent {
		return Verdict{
			Outcome: OutcomeSkipped,
			Success: true,
			Message: already(t.Kind, t.Name, op.Terms()),
			Err:     res.Err,
		}
	}
	return Verdict{
		Outcome: OutcomeNotFound,
		Trip:    true,
		Message: fmt.Sprintf("Could not find %s %q.", t.Kind, t.Name),
		Err:     res.Err,
	}
}

func methodError(res runner.Result[entity.LifecycleResult], op runner.Operation) Verdict {
	t := res.Target
	terms := op.Terms()
	kind := t.Kind
	err := res.Err

	switch {
	case errors.Is(err, entity.ErrInsufficientPrivileges):
		return failed(err, "Insufficient privileges to %s %s %q.", terms.Verb, kind, t.Name)
	case errors.Is(err, entity.ErrEntityNotRunning):
		return failed(err, "Failed to %s %s %q, it is not running.", terms.Verb, kind, t.Name)
	case errors.Is(err, entity.ErrEntityRunning):
		return failed(err, "Failed to %s %s %q, it is still running.", terms.Verb, kind, t.Name)
	case errors.Is(err, entity.ErrInvalidOperation):
		return failed(err, "Failed to %s %s %q, operation is not supported for this %s.", terms.Verb, kind, t.Name, kind)
	case errors.Is(err, entity.ErrInvalidConfig):
		return failed(err, "Failed to %s %s %q, the new configuration was rejected: %v.", terms.Verb, kind, t.Name, err)
	case errors.Is(err, entity.ErrInvalidEntity):
		return failed(err, "Failed to %s %s %q, it no longer exists.", terms.Verb, kind, t.Name)
	default:
		return failed(err, "Unexpected error processing %s %q: %v.", kind, t.Name, err)
	}
}

func failed(err error, format string, args ...any) Verdict {
	return Verdict{
		Outcome: OutcomeFailed,
		Trip:    true,
		Message: fmt.Sprintf(format, args...),
		Err:     err,
	}
}

func already(kind entity.Kind, name string, terms runner.Terms) string {
	if terms.IdempotentState == "" {
		return fmt.Sprintf("Nothing to do for %s %q.", kind, name)
	}
	return fmt.Sprintf("%s %q is already %s.", kind.Title(), name, terms.IdempotentState)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
