package harness

import (
	"fmt"
	"strings"

	"github.com/roach88/carp/internal/replay"
)

// AssertionError is returned when an assertion fails. It carries the log so
// a failure can be read without rerunning the scenario.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Log      []replay.LoggedRequest
}

func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nRequest log:\n")
	for i, entry := range e.Log {
		outcome := "ok"
		if entry.Failed() {
			outcome = string(entry.Exception)
		}
		fmt.Fprintf(&buf, "  [%d] %s.%s %s\n", i+1, entry.Service, entry.ShortOperation(), outcome)
	}
	return buf.String()
}

// EvaluateAssertions checks every assertion and returns the failure
// messages.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errs []string
	for i, a := range assertions {
		if err := evaluate(result.Log, result.Field, a); err != nil {
			errs = append(errs, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return errs
}

func evaluate(log []replay.LoggedRequest, field string, a Assertion) error {
	switch a.Type {
	case AssertLogCount:
		return assertLogCount(log, a)
	case AssertLogOrder:
		return assertLogOrder(log, a)
	case AssertPublished:
		return assertPublished(log, field, a)
	case AssertFailed:
		return assertFailed(log, a)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

func inScope(entry replay.LoggedRequest, a Assertion) bool {
	return a.Service == "" || entry.Service == a.Service
}

func assertLogCount(log []replay.LoggedRequest, a Assertion) error {
	n := 0
	for _, entry := range log {
		if inScope(entry, a) && entry.ShortOperation() == a.Operation {
			n++
		}
	}
	if n != a.Count {
		return &AssertionError{
			Type:     AssertLogCount,
			Expected: fmt.Sprintf("%s logged %d times", a.Operation, a.Count),
			Actual:   fmt.Sprintf("logged %d times", n),
			Log:      log,
		}
	}
	return nil
}

// assertLogOrder checks that the operations appear in order. Intervening
// entries are allowed.
func assertLogOrder(log []replay.LoggedRequest, a Assertion) error {
	next := 0
	for _, entry := range log {
		if next < len(a.Operations) && inScope(entry, a) && entry.ShortOperation() == a.Operations[next] {
			next++
		}
	}
	if next < len(a.Operations) {
		return &AssertionError{
			Type:     AssertLogOrder,
			Expected: strings.Join(a.Operations, " -> "),
			Actual:   fmt.Sprintf("%s not found after %s", a.Operations[next], strings.Join(a.Operations[:next], " -> ")),
			Log:      log,
		}
	}
	return nil
}

// assertPublished counts events published during the flow.
func assertPublished(log []replay.LoggedRequest, field string, a Assertion) error {
	n := 0
	for _, entry := range log {
		for _, event := range entry.PublishedEvents {
			if t, _ := event.String(field); t == a.Event {
				n++
			}
		}
	}
	if n != a.Count {
		return &AssertionError{
			Type:     AssertPublished,
			Expected: fmt.Sprintf("%s published %d times", a.Event, a.Count),
			Actual:   fmt.Sprintf("published %d times", n),
			Log:      log,
		}
	}
	return nil
}

func assertFailed(log []replay.LoggedRequest, a Assertion) error {
	for _, entry := range log {
		if inScope(entry, a) && entry.ShortOperation() == a.Operation && string(entry.Exception) == a.Exception {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertFailed,
		Expected: fmt.Sprintf("%s failing with %s", a.Operation, a.Exception),
		Actual:   "no such failure logged",
		Log:      log,
	}
}
