// Package errs defines the error taxonomy shared across the VoltageEMS
// core. Each Kind is a comparable sentinel usable with errors.Is; callers
// that need structured context wrap one of these with fmt.Errorf("...: %w").
package errs

import "errors"

// Kind classifies an error for the purposes of §7's propagation policy:
// whether a component refuses to start, enters backoff, retries, or
// silently degrades.
type Kind error

var (
	// ConfigError: bad address, missing required field. Refuses to start
	// the affected component.
	ConfigError Kind = errors.New("config error")

	// ConnectionError: transport reset, serial unplug. Channel Engine
	// enters Backoff and retries with jitter.
	ConnectionError Kind = errors.New("connection error")

	// ProtocolError: bad CRC, unexpected PDU. Logged and counted; treated
	// as ConnectionError once the rate exceeds a threshold.
	ProtocolError Kind = errors.New("protocol error")

	// Timeout: poll, write, or queue-pop timeout. Retried a bounded number
	// of times before being elevated.
	Timeout Kind = errors.New("timeout")

	// QueueFull: TODO-queue backpressure. Returned to the caller; never
	// retried internally.
	QueueFull Kind = errors.New("queue full")

	// RoutingMiss: no route entry for a key. Not propagated as a failure —
	// callers that hit this should silently skip, not log it as an error.
	RoutingMiss Kind = errors.New("routing miss")

	// RuleExecutionError: an action failed during rule evaluation.
	// Recorded in the execution trace; remaining actions still run.
	RuleExecutionError Kind = errors.New("rule execution error")

	// ValidationError: a write was out of range or otherwise invalid.
	// Returned to the caller; never enqueued.
	ValidationError Kind = errors.New("validation error")
)

// Error wraps an underlying cause with a Kind and optional structured
// fields, so callers can both errors.Is(err, errs.ConnectionError) and log
// the fields without re-parsing a formatted string.
type Error struct {
	Kind   Kind
	Op     string
	Fields map[string]any
	Cause  error
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return e.Op + ": " + e.Kind.Error()
	}
	return e.Op + ": " + e.Kind.Error() + ": " + e.Cause.Error()
}

func (e *Error) Unwrap() error { return e.Kind }

// Is reports whether target is the same Kind, so errors.Is(err,
// errs.Timeout) works through one or more layers of *Error wrapping.
func (e *Error) Is(target error) bool {
	return errors.Is(e.Kind, target)
}

// New constructs an *Error for op with the given kind and optional fields.
func New(op string, kind Kind, fields map[string]any) *Error {
	return &Error{Op: op, Kind: kind, Fields: fields}
}

// Wrap constructs an *Error for op, attaching cause as the underlying
// error and kind as its classification.
func Wrap(op string, kind Kind, cause error, fields map[string]any) *Error {
	return &Error{Op: op, Kind: kind, Fields: fields, Cause: cause}
}
