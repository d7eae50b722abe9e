package taskorch

import (
	"errors"
	"fmt"
)

// Code classifies orchestrator failures for callers above it.
type Code string

const (
	CodeDatabaseError        Code = "DATABASE_ERROR"
	CodeTaskNodeNotAvailable Code = "TASK_NODE_NOT_AVAILABLE"
	CodeNoTaskExists         Code = "NO_TASK_EXISTS"
	CodeUnknown              Code = "UNKNOWN"
)

type TaskError struct {
	Code Code
	Task string
	Err  error
}

func (e *TaskError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: task %s", e.Code, e.Task)
	}
	return fmt.Sprintf("%s: task %s: %s", e.Code, e.Task, e.Err)
}

func (e *TaskError) Unwrap() error {
	return e.Err
}

func taskErr(code Code, task string, err error) error {
	return &TaskError{Code: code, Task: task, Err: err}
}

// CodeOf returns the code of the first TaskError in err's chain, or
// CodeUnknown.
func CodeOf(err error) Code {
	var te *TaskError
	if errors.As(err, &te) {
		return te.Code
	}
	return CodeUnknown
}
