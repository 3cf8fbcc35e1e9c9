package harness

import (
	"fmt"
	"strings"

	"github.com/roach88/parallel/internal/host"
	"github.com/roach88/parallel/internal/patch"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string        // Assertion type for categorization
	Expected string        // Human-readable expected outcome
	Actual   string        // Human-readable actual outcome
	Trace    []patch.Patch // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nFull trace:\n")
	for i, p := range e.Trace {
		fmt.Fprintf(&buf, "  [%d] tick=%d #%d %s", i+1, p.Tick, p.Identity, p.Op)
		if p.Key != "" {
			fmt.Fprintf(&buf, " %s", p.Key)
		}
		if p.Value != "" {
			fmt.Fprintf(&buf, "=%q", p.Value)
		}
		buf.WriteByte('\n')
	}

	return buf.String()
}

// EvaluateAssertions runs every assertion against the harness state.
// Returns one message per failed assertion.
func EvaluateAssertions(h *Harness, assertions []Assertion) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertAttr:
			err = assertAttr(h, assertion)
		case AssertText:
			err = assertText(h, assertion)
		case AssertHTML:
			err = assertHTML(h, assertion)
		case AssertPatchCount:
			err = assertPatchCount(h.result.Trace, assertion)
		case AssertHandlerCalls:
			err = assertHandlerCalls(h, assertion)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}

// first returns the first external match for pattern.
func (h *Harness) first(kind, pattern string) (host.Object, error) {
	objs, err := h.doc.Query(pattern)
	if err != nil {
		return nil, &AssertionError{
			Type:     kind,
			Expected: fmt.Sprintf("valid selector %q", pattern),
			Actual:   err.Error(),
			Trace:    h.result.Trace,
		}
	}
	if len(objs) == 0 {
		return nil, &AssertionError{
			Type:     kind,
			Expected: fmt.Sprintf("an element matching %q", pattern),
			Actual:   "no match",
			Trace:    h.result.Trace,
		}
	}
	return objs[0], nil
}

// assertAttr checks attribute Key of the first match, or its absence.
func assertAttr(h *Harness, a Assertion) error {
	obj, err := h.first(AssertAttr, a.Select)
	if err != nil {
		return err
	}

	value, found := "", false
	for _, attr := range h.doc.Attributes(obj) {
		if attr.Name == a.Key {
			value, found = attr.Value, true
			break
		}
	}

	if a.Absent {
		if found {
			return &AssertionError{
				Type:     AssertAttr,
				Expected: fmt.Sprintf("%s has no %s attribute", a.Select, a.Key),
				Actual:   fmt.Sprintf("%s=%q", a.Key, value),
				Trace:    h.result.Trace,
			}
		}
		return nil
	}

	if !found {
		return &AssertionError{
			Type:     AssertAttr,
			Expected: fmt.Sprintf("%s %s=%q", a.Select, a.Key, a.Expect),
			Actual:   "attribute not set",
			Trace:    h.result.Trace,
		}
	}
	if value != a.Expect {
		return &AssertionError{
			Type:     AssertAttr,
			Expected: fmt.Sprintf("%s %s=%q", a.Select, a.Key, a.Expect),
			Actual:   fmt.Sprintf("%s=%q", a.Key, value),
			Trace:    h.result.Trace,
		}
	}
	return nil
}

func assertText(h *Harness, a Assertion) error {
	obj, err := h.first(AssertText, a.Select)
	if err != nil {
		return err
	}

	if got := h.doc.Text(obj); got != a.Expect {
		return &AssertionError{
			Type:     AssertText,
			Expected: fmt.Sprintf("%s text %q", a.Select, a.Expect),
			Actual:   fmt.Sprintf("%q", got),
			Trace:    h.result.Trace,
		}
	}
	return nil
}

func assertHTML(h *Harness, a Assertion) error {
	got, err := h.doc.Render(a.Select)
	if err != nil {
		return &AssertionError{
			Type:     AssertHTML,
			Expected: fmt.Sprintf("%s renders %s", a.Select, a.Expect),
			Actual:   err.Error(),
			Trace:    h.result.Trace,
		}
	}

	if got != a.Expect {
		return &AssertionError{
			Type:     AssertHTML,
			Expected: a.Expect,
			Actual:   got,
			Trace:    h.result.Trace,
		}
	}
	return nil
}

// assertPatchCount checks the number of patches with op, or of all
// patches when op is empty.
func assertPatchCount(trace []patch.Patch, a Assertion) error {
	count := 0
	for _, p := range trace {
		if a.Op == "" || string(p.Op) == a.Op {
			count++
		}
	}

	if count != a.Count {
		what := "patches"
		if a.Op != "" {
			what = a.Op + " patches"
		}
		return &AssertionError{
			Type:     AssertPatchCount,
			Expected: fmt.Sprintf("%d %s", a.Count, what),
			Actual:   fmt.Sprintf("%d %s", count, what),
			Trace:    trace,
		}
	}
	return nil
}

func assertHandlerCalls(h *Harness, a Assertion) error {
	if got := h.result.Calls[a.Handler]; got != a.Count {
		return &AssertionError{
			Type:     AssertHandlerCalls,
			Expected: fmt.Sprintf("%d calls of %s", a.Count, a.Handler),
			Actual:   fmt.Sprintf("%d calls", got),
			Trace:    h.result.Trace,
		}
	}
	return nil
}
