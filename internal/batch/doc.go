// Package batch runs one operation against many targets on a bounded pool
// and folds the unit results into a Summary.
//
// Each target is handled by an isolated runner unit with its own session.
// The coordinator classifies results as they complete, reports a message
// per target, and applies the fail-fast and idempotent policies. Ordering
// of results is not preserved.
package batch
