package bench

import (
	"fmt"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Leg is the add benchmark of one backend
type Leg struct {
	Backend string
	Timings []time.Duration
	Err     error
}

// Stats summarises leg timings in seconds
type Stats struct {
	Mean, StdDev, Min float64
	Samples          int
}

// Stats returns the mean, sample standard deviation and minimum of the
// recorded timings. A leg with no timings has zero stats.
func (l Leg) Stats() Stats {
	if len(l.Timings) == 0 {
		return Stats{}
	}
	seconds := make([]float64, len(l.Timings))
	for i, d := range l.Timings {
		seconds[i] = d.Seconds()
	}
	s := Stats{Samples: len(seconds), Min: floats.Min(seconds)}
	if len(seconds) == 1 {
		s.Mean = seconds[0]
		return s
	}
	s.Mean, s.StdDev = stat.MeanStdDev(seconds, nil)
	return s
}

// Validation is one comparison of two add results on one backend
type Validation struct {
	Backend string
	Left    string
	Right   string
	Matched bool
	Elapsed time.Duration
	Err     error
}

// Report collects the outcome of a Suite run
type Report struct {
	ArrayLength int
	Legs        []Leg
	Validations []Validation
}

// Outcome classifies a finished run for the caller's exit decision
type Outcome int

const (
	// OutcomeMatched means every comparison ran and matched and no leg failed
	OutcomeMatched Outcome = iota
	// OutcomeUnvalidated means fewer than two backends produced a result,
	// so there was nothing to compare, and nothing failed
	OutcomeUnvalidated
	// OutcomeMismatch means at least one comparison reported a difference
	OutcomeMismatch
	// OutcomeFailed means a leg or a comparison ended in an error
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeMatched:
		return "matched"
	case OutcomeUnvalidated:
		return "unvalidated"
	case OutcomeMismatch:
		return "mismatch"
	case OutcomeFailed:
		return "failed"
	}
	return fmt.Sprintf("Outcome(%d)", int(o))
}

// Validated reports whether at least one comparison ran
func (r *Report) Validated() bool {
	return len(r.Validations) > 0
}

// Outcome classifies the run. A mismatch takes precedence over failures.
func (r *Report) Outcome() Outcome {
	for _, v := range r.Validations {
		if v.Err == nil && !v.Matched {
			return OutcomeMismatch
		}
	}
	if legs, validations := r.Failed(); len(legs) > 0 || len(validations) > 0 {
		return OutcomeFailed
	}
	if r.AllMatched() {
		return OutcomeMatched
	}
	return OutcomeUnvalidated
}

// AllMatched reports whether at least one comparison ran and every
// comparison succeeded and matched
func (r *Report) AllMatched() bool {
	if !r.Validated() {
		return false
	}
	for _, v := range r.Validations {
		if v.Err != nil || !v.Matched {
			return false
		}
	}
	return true
}

// Failed returns the legs and validations that ended in an error
func (r *Report) Failed() (legs []Leg, validations []Validation) {
	for _, l := range r.Legs {
		if l.Err != nil {
			legs = append(legs, l)
		}
	}
	for _, v := range r.Validations {
		if v.Err != nil {
			validations = append(validations, v)
		}
	}
	return
}
