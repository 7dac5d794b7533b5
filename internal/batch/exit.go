package batch

// Process exit codes.
const (
	ExitSuccess         = 0
	ExitFailure         = 1
	ExitEntityNotFound  = 2
	ExitParentNotFound  = 3
	ExitOperationFailed = 4
)

// ExitCode picks the process exit code for a finished batch. err is the
// error returned by Coordinator.Run, if any.
func ExitCode(s Summary, p Policy, err error) int {
	switch {
	case err != nil:
		return ExitFailure
	case s.Total == 0:
		if p.FailIfNoMatch {
			return ExitEntityNotFound
		}
		return ExitSuccess
	case s.Success == s.Total:
		return ExitSuccess
	case s.Total == 1 && s.ParentNotFound == 1:
		return ExitParentNotFound
	case s.Total == 1 && s.NotFound == 1:
		return ExitEntityNotFound
	default:
		return ExitOperationFailed
	}
}
