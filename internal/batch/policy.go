package batch

import "runtime"

// MaxDefaultJobs caps the automatic pool size.
const MaxDefaultJobs = 8

// Policy controls how a batch runs and how its results count.
type Policy struct {
	// Jobs is the pool size. Zero or less picks DefaultJobs; one runs every
	// unit in the calling goroutine.
	Jobs int
	// FailFast stops submitting units after the first failure.
	FailFast bool
	// Idempotent counts "already in the requested state" as success.
	Idempotent bool
	// FailIfNoMatch makes an empty target list a failure.
	FailIfNoMatch bool
}

// DefaultJobs is min(8, NumCPU+4).
func DefaultJobs() int {
	return min(MaxDefaultJobs, runtime.NumCPU()+4)
}

func (p Policy) jobs() int {
	if p.Jobs <= 0 {
		return DefaultJobs()
	}
	return p.Jobs
}
