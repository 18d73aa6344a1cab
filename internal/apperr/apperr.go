// Package apperr defines the failure kinds surfaced by sandboxed task execution.
package apperr

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Kind classifies a failure.
type Kind string

const (
	MalformedLocator         Kind = "MalformedLocator"
	UnresolvedReference      Kind = "UnresolvedReference"
	DirectoryCreationFailure Kind = "DirectoryCreationFailure"
	ContextProbeFailure      Kind = "ContextProbeFailure"
	AppBadFormatting         Kind = "AppBadFormatting"
	BashAppNoReturn          Kind = "BashAppNoReturn"
	AppException             Kind = "AppException"
	AppTimeout               Kind = "AppTimeout"
	BashExitFailure          Kind = "BashExitFailure"
	MissingOutputs           Kind = "MissingOutputs"
	BadStdStreamFile         Kind = "BadStdStreamFile"
)

// Sentinels for use with errors.Is.
var (
	ErrMalformedLocator         = &Error{Kind: MalformedLocator}
	ErrUnresolvedReference      = &Error{Kind: UnresolvedReference}
	ErrDirectoryCreationFailure = &Error{Kind: DirectoryCreationFailure}
	ErrContextProbeFailure      = &Error{Kind: ContextProbeFailure}
	ErrAppBadFormatting         = &Error{Kind: AppBadFormatting}
	ErrBashAppNoReturn          = &Error{Kind: BashAppNoReturn}
	ErrAppException             = &Error{Kind: AppException}
	ErrAppTimeout               = &Error{Kind: AppTimeout}
	ErrBashExitFailure          = &Error{Kind: BashExitFailure}
	ErrMissingOutputs           = &Error{Kind: MissingOutputs}
	ErrBadStdStreamFile         = &Error{Kind: BadStdStreamFile}
)

// Error is a classified failure of one task.
type Error struct {
	Kind     Kind
	Task     string
	Msg      string
	Path     string
	ExitCode int
	Timeout  time.Duration
	Missing  []string
	Err      error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Task != "" {
		fmt.Fprintf(&b, "[%s] ", e.Task)
	}
	b.WriteString(string(e.Kind))
	if e.Msg != "" {
		b.WriteString(": ")
		b.WriteString(e.Msg)
	}
	switch e.Kind {
	case AppTimeout:
		fmt.Fprintf(&b, " (walltime %s)", e.Timeout)
	case BashExitFailure:
		fmt.Fprintf(&b, " (exit code %d)", e.ExitCode)
	case MissingOutputs:
		fmt.Fprintf(&b, " %v", e.Missing)
	}
	if e.Path != "" && e.Kind != MissingOutputs {
		fmt.Fprintf(&b, " path=%s", e.Path)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is a sentinel, or an *Error with no task, of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Task == ""
}

// New creates a classified error.
func New(kind Kind, task, msg string) *Error {
	return &Error{Kind: kind, Task: task, Msg: msg}
}

// Wrap creates a classified error around a cause.
func Wrap(kind Kind, task, msg string, err error) *Error {
	return &Error{Kind: kind, Task: task, Msg: msg, Err: err}
}

// Timeout reports that a task exceeded its walltime.
func Timeout(task string, limit time.Duration) *Error {
	return &Error{Kind: AppTimeout, Task: task, Msg: "app exceeded walltime", Timeout: limit}
}

// ExitFailure reports that a task ran but exited non-zero.
func ExitFailure(task string, code int) *Error {
	return &Error{Kind: BashExitFailure, Task: task, Msg: "bash app failed", ExitCode: code}
}

// Missing reports declared outputs that were not produced.
func Missing(task string, paths []string) *Error {
	return &Error{Kind: MissingOutputs, Task: task, Msg: "missing outputs", Missing: paths}
}

// WithTask fills in the task name on a classified error if it has none.
func WithTask(err error, task string) error {
	var e *Error
	if errors.As(err, &e) && e.Task == "" {
		e.Task = task
	}
	return err
}

// KindOf returns the kind of the first classified error in err's chain, or "".
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
