package types

// SourceResult is the outcome of scanning one source.
type SourceResult struct {
	Source     string
	Provenance Provenance
	Count      int   // matches found
	Err        error // non-nil when the scan was abandoned
}

// Matched reports whether the source produced at least one match.
func (r SourceResult) Matched() bool {
	return r.Count > 0
}

// Summary aggregates SourceResults over a run.
type Summary struct {
	Sources int // sources attempted
	Matches int // matches across all sources
	Errors  int // per-source and enumeration errors
	Matched bool
}

// Add folds r into s.
func (s *Summary) Add(r SourceResult) {
	s.Sources++
	s.Matches += r.Count
	if r.Count > 0 {
		s.Matched = true
	}
	if r.Err != nil {
		s.Errors++
	}
}
