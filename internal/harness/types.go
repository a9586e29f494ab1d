package harness

import (
	"github.com/roach88/carp/internal/fault"
	"github.com/roach88/carp/internal/replay"
	"github.com/roach88/carp/internal/wire"
)

// StepResult is the outcome of one flow step as the caller saw it.
type StepResult struct {
	Service   string
	Operation string

	// Response is shaped for the version the request declared. Nil when the
	// step failed.
	Response wire.Value

	// Exception is the failure code. Empty on success.
	Exception fault.Code
	Message   string
}

// Result is the outcome of a scenario.
type Result struct {
	// Pass is true when every expectation and assertion held.
	Pass bool

	Steps []StepResult

	// Log holds the logged requests of every step in flow order. Requests
	// that could not be decoded are not logged.
	Log []replay.LoggedRequest

	// Errors describes every failed expectation and assertion.
	Errors []string

	// Field is the discriminator field of logged events.
	Field string
}

// NewResult creates a passing result.
func NewResult(field string) *Result {
	return &Result{Pass: true, Field: field}
}

// AddError records a failure.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
