package tools

import (
	"errors"
	"strings"
)

// ErrorPrefix marks failed tool results on the wire.
const ErrorPrefix = "Error: "

// Result is the outcome of one tool call.
type Result struct {
	Output string
	Err    error // *ExecutionError on failure
}

// OK reports whether the call succeeded.
func (r Result) OK() bool { return r.Err == nil }

// Text renders the result for a tool message: the output on success,
// "Error: <reason>" on failure.
func (r Result) Text() string {
	if r.Err == nil {
		return r.Output
	}
	var execErr *ExecutionError
	if errors.As(r.Err, &execErr) {
		return ErrorPrefix + execErr.Reason
	}
	return ErrorPrefix + r.Err.Error()
}

// Failed wraps reason as a failed result for tool. A reason that already
// carries ErrorPrefix is not prefixed twice.
func Failed(tool, reason string) Result {
	return Result{Err: executionError(tool, strings.TrimPrefix(reason, ErrorPrefix), nil)}
}

// IsErrorText reports whether text carries the failure prefix. Results that
// crossed a process boundary as plain strings are classified with it.
func IsErrorText(text string) bool {
	return strings.HasPrefix(text, ErrorPrefix)
}
