// Package events provides the diagnostic events that user defined
// transitions emit while being applied, and the sink to which they are
// replayed afterwards.
//
// Events are plain values that are returned by Transition.Transform()
// and handed to the sink exactly once by the validation pass. There is
// no shared mutable buffer, meaning transitions may be applied
// concurrently without locking.
package events

import "fmt"

// Severity of a diagnostic event.
type Severity int

const (
	// SeverityInfo is used for informational messages, such as
	// output of print() statements in user defined transitions.
	SeverityInfo Severity = iota
	// SeverityError is used for failures that occurred while
	// executing a user defined transition's implementation
	// function. The presence of any error event causes validation
	// of the transition's outputs to fail.
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "INFO"
	case SeverityError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Event is a single diagnostic message emitted during application of a
// user defined transition.
type Event struct {
	Severity Severity
	Message  string
}

// Infof creates an informational event.
func Infof(format string, args ...any) Event {
	return Event{Severity: SeverityInfo, Message: fmt.Sprintf(format, args...)}
}

// Errorf creates an error event.
func Errorf(format string, args ...any) Event {
	return Event{Severity: SeverityError, Message: fmt.Sprintf(format, args...)}
}

// HasErrors returns whether any of the provided events is an error.
func HasErrors(events []Event) bool {
	for _, e := range events {
		if e.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Sink receives ordered diagnostic events after a transition has been
// applied. Formatting and display are up to the implementation.
type Sink interface {
	Replay(events []Event)
}

// CapturingSink is a Sink that retains all replayed events in order,
// for inspection by tests or for deferred forwarding.
type CapturingSink struct {
	Events []Event
}

var _ Sink = (*CapturingSink)(nil)

func (s *CapturingSink) Replay(events []Event) {
	s.Events = append(s.Events, events...)
}

// DiscardingSink drops all events.
type DiscardingSink struct{}

var _ Sink = DiscardingSink{}

func (DiscardingSink) Replay(events []Event) {}
