// Package connectors defines how launcher scripts reach an execution environment.
package connectors

import (
	"context"
	"io"
	"time"

	"github.com/fentz26/wfsandbox/internal/models"
)

// StreamMode selects how a stream file is opened.
type StreamMode string

const (
	StreamAppend   StreamMode = "a"
	StreamTruncate StreamMode = "w"
)

// ExecOptions control one script execution.
type ExecOptions struct {
	// ScriptName is written under the task's .control directory.
	ScriptName string
	// Stdout and Stderr are file paths the streams are written to. Empty means discard.
	Stdout string
	Stderr string
	// StdoutMode and StderrMode default to StreamAppend.
	StdoutMode StreamMode
	StderrMode StreamMode
	// Capture, when set, also receives standard output.
	Capture io.Writer
	// Timeout is a wall-clock limit measured from process start. Zero means none.
	Timeout time.Duration
}

// Executor runs a script inside a task's working directory.
type Executor interface {
	// Name returns the connector identifier.
	Name() string

	// Execute writes and runs script. A non-zero exit code is reported in the
	// result, not as an error.
	Execute(ctx context.Context, task *models.Task, script string, opts ExecOptions) (*models.ExecutionResult, error)
}

// Prober reports facts about the environment a task will run in.
type Prober interface {
	Probe(ctx context.Context, task *models.Task) (map[string]string, error)
}
