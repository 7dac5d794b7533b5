package batch

// Summary is the aggregate of a batch. Failed is always Total - Success.
type Summary struct {
	Total    int `json:"total" yaml:"total"`
	Success  int `json:"success" yaml:"success"`
	Failed   int `json:"failed" yaml:"failed"`
	Skipped  int `json:"skipped" yaml:"skipped"`
	TimedOut int `json:"timed_out" yaml:"timed_out"`
	Forced   int `json:"forced" yaml:"forced"`
	NotFound int `json:"not_found" yaml:"not_found"`
	// ParentNotFound is the part of NotFound where the containing pool
	// was missing.
	ParentNotFound int `json:"parent_not_found" yaml:"parent_not_found"`
	// Ignored counts results drained after fail-fast tripped.
	Ignored int `json:"ignored" yaml:"ignored"`
}

func (s *Summary) add(v Verdict) {
	if v.Success {
		s.Success++
	}
	switch v.Outcome {
	case OutcomeSkipped:
		s.Skipped++
	case OutcomeTimedOut:
		s.TimedOut++
	case OutcomeForced:
		s.Forced++
	case OutcomeNotFound:
		s.NotFound++
	case OutcomeParentNotFound:
		s.NotFound++
		s.ParentNotFound++
	}
}

func (s *Summary) finish() {
	s.Failed = s.Total - s.Success
}
