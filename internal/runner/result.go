package runner

// Check is the outcome of one pipeline stage.
type Check int

const (
	// Unset means the stage was never reached.
	Unset Check = iota
	Passed
	Failed
)

func (c Check) String() string {
	switch c {
	case Passed:
		return "passed"
	case Failed:
		return "failed"
	default:
		return "unset"
	}
}

// Stage names a step of the unit pipeline, in execution order.
type Stage int

const (
	StageNone Stage = iota
	StageConnect
	StageAttrs
	StageEntity
	StageSubEntity
	StageMethod
	StagePostproc
)

func (s Stage) String() string {
	switch s {
	case StageConnect:
		return "connect"
	case StageAttrs:
		return "attributes"
	case StageEntity:
		return "entity"
	case StageSubEntity:
		return "sub-entity"
	case StageMethod:
		return "method"
	case StagePostproc:
		return "postproc"
	default:
		return "none"
	}
}

// Result records how far a unit got. Stages after the first failure are
// left Unset. AttrsFound is false only when the resolved object does not
// support the operation at all.
type Result[V any] struct {
	Target Target

	Connected       Check
	AttrsFound      bool
	EntityFound     Check
	SubEntityFound  Check
	MethodSuccess   Check
	PostprocSuccess Check

	Value V
	Err   error
}

func newResult[V any](t Target) Result[V] {
	return Result[V]{Target: t, AttrsFound: true}
}

// FailedStage returns the earliest failed stage, or StageNone.
func (r Result[V]) FailedStage() Stage {
	switch {
	case r.Connected == Failed:
		return StageConnect
	case !r.AttrsFound:
		return StageAttrs
	case r.EntityFound == Failed:
		return StageEntity
	case r.SubEntityFound == Failed:
		return StageSubEntity
	case r.MethodSuccess == Failed:
		return StageMethod
	case r.PostprocSuccess == Failed:
		return StagePostproc
	default:
		return StageNone
	}
}

// OK reports whether the operation ran and every reached stage passed.
func (r Result[V]) OK() bool {
	return r.FailedStage() == StageNone && r.MethodSuccess == Passed
}
