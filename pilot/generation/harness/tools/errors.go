package tools

import (
	"errors"
	"fmt"
)

// Tool failures never abort a conversation. Discovery failures shrink the
// catalog; execution failures become the tool's result text.
var (
	ErrToolDiscoveryFailed = errors.New("tool discovery failed")
	ErrToolExecutionFailed = errors.New("tool execution failed")
)

// ExecutionError describes why one tool call failed. Reason is the text fed
// back to the model.
type ExecutionError struct {
	Tool   string
	Reason string
	Cause  error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrToolExecutionFailed, e.Tool, e.Reason)
}

func (e *ExecutionError) Is(target error) bool { return target == ErrToolExecutionFailed }

func (e *ExecutionError) Unwrap() error { return e.Cause }

func executionError(tool, reason string, cause error) *ExecutionError {
	return &ExecutionError{Tool: tool, Reason: reason, Cause: cause}
}
