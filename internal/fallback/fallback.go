// Package fallback tries an operation against an ordered list of candidates
// and keeps the first one that works.
package fallback

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrNoCandidates is returned when First is called with an empty list.
var ErrNoCandidates = errors.New("fallback: no candidates")

// Attempt is one failed candidate.
type Attempt struct {
	Candidate string
	Err       error
}

// ExhaustedError reports that every candidate failed, in the order tried.
type ExhaustedError struct {
	Attempts []Attempt
}

func (e *ExhaustedError) Error() string {
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, fmt.Sprintf("%s: %v", a.Candidate, a.Err))
	}
	return "fallback: all candidates failed (" + strings.Join(parts, "; ") + ")"
}

// Unwrap exposes every attempt's error to errors.Is and errors.As.
func (e *ExhaustedError) Unwrap() []error {
	errs := make([]error, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		errs = append(errs, a.Err)
	}
	return errs
}

// First calls fn with each candidate in order and returns the first result
// without error along with the candidate that produced it. Later candidates
// are not tried. If every candidate fails the error is an *ExhaustedError.
// A cancelled ctx stops the chain early and returns ctx.Err().
func First[T any](ctx context.Context, candidates []string, fn func(ctx context.Context, candidate string) (T, error)) (T, string, error) {
	var zero T
	if len(candidates) == 0 {
		return zero, "", ErrNoCandidates
	}

	exhausted := &ExhaustedError{Attempts: make([]Attempt, 0, len(candidates))}
	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			return zero, "", err
		}

		v, err := fn(ctx, c)
		if err == nil {
			return v, c, nil
		}
		exhausted.Attempts = append(exhausted.Attempts, Attempt{Candidate: c, Err: err})
	}

	return zero, "", exhausted
}
