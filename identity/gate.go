// Package identity abstracts the terminal's local liveness/identity check.
// The trust core only ever sees a pass/fail capability; concrete matching
// implementations live outside this repository and are injected at wiring
// time.
package identity

import "errors"

// Result is the outcome of a local identity check.
type Result struct {
	Passed bool
	// Score is the implementation's confidence in [0, 1]. Informational;
	// gating decisions use Passed only.
	Score float64
}

// Gate is the capability interface a terminal consults before a high-value
// collection. Implementations must not perform network I/O.
type Gate interface {
	Verify(subjectID string) (Result, error)
}

// AllowAll passes every subject. Used where a deployment runs without a
// local identity capability.
type AllowAll struct{}

func (AllowAll) Verify(string) (Result, error) {
	return Result{Passed: true, Score: 1}, nil
}

// ErrUnknownSubject is returned by Scripted for subjects it has no script
// entry for.
var ErrUnknownSubject = errors.New("identity: unknown subject")

// Scripted is a deterministic gate for tests: each subject id maps to a
// fixed result.
type Scripted struct {
	results map[string]Result
}

// NewScripted constructs a scripted gate from the supplied outcomes.
func NewScripted(results map[string]Result) *Scripted {
	copied := make(map[string]Result, len(results))
	for id, result := range results {
		copied[id] = result
	}
	return &Scripted{results: copied}
}

func (s *Scripted) Verify(subjectID string) (Result, error) {
	result, ok := s.results[subjectID]
	if !ok {
		return Result{}, ErrUnknownSubject
	}
	return result, nil
}
