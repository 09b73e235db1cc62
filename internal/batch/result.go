// Package batch accumulates the outcome of applying one change to many rows.
package batch

import "github.com/prisonops/lifecycle/errors"

// Result counts rows looked at and changed, and keeps per-row failures.
// A failed row does not stop the rest of the batch.
type Result struct {
	Examined int
	Changed  int
	Failures []error
}

// Fail records a row that could not be changed
func (r *Result) Fail(err error) {
	if err != nil {
		r.Failures = append(r.Failures, err)
	}
}

// Err joins every failure, or nil
func (r *Result) Err() error {
	if len(r.Failures) == 0 {
		return nil
	}
	return errors.Join(r.Failures...)
}
