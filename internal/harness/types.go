package harness

import "github.com/roach88/parallel/internal/patch"

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall success: every assertion held.
	Pass bool `json:"pass"`

	// Session is the journal session the run was recorded under.
	Session string `json:"session"`

	// Trace contains every applied patch in order.
	Trace []patch.Patch `json:"trace"`

	// Errors contains assertion failure messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Calls counts invocations per named handler.
	Calls map[string]int `json:"calls,omitempty"`

	// Ticks is the number of engine flushes.
	Ticks int64 `json:"ticks"`

	// Digest is the content digest of Trace (see patch.TraceDigest).
	Digest string `json:"digest"`
}

// NewResult creates a new passing result.
// Used as the starting point for test execution.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []patch.Patch{},
		Errors: []string{},
		Calls:  make(map[string]int),
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
