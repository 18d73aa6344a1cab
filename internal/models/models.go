// Package models defines the core domain types for wfsandbox.
package models

import "time"

// Scheme is the prefix of every workflow locator.
const Scheme = "workflow://"

// TaskStatus represents the current state of a sandboxed task.
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
)

// Locator is a reference to an output of another task.
// Its canonical form is workflow://<Workflow>/<Task>/<RelativePath>.
type Locator struct {
	// Workflow is empty when the locator refers to the current workflow.
	Workflow     string `json:"workflow"`
	Task         string `json:"task"`
	RelativePath string `json:"relative_path"`
}

// String renders the canonical locator form.
func (l Locator) String() string {
	return Scheme + l.Workflow + "/" + l.Task + "/" + l.RelativePath
}

// WorkflowLocator returns the locator downstream tasks use to reference the
// working directory of a task run.
func WorkflowLocator(workflow, uniqueID string) string {
	return Scheme + workflow + "/" + uniqueID + "/"
}

// Task is the execution context of one task invocation.
type Task struct {
	ID          string            `json:"id"`
	UniqueID    string            `json:"unique_id"`
	Workflow    string            `json:"workflow"`
	Name        string            `json:"name"`
	Command     string            `json:"command"`
	ScratchRoot string            `json:"scratch_root"`
	WorkingDir  string            `json:"working_dir"`
	Info        map[string]string `json:"info,omitempty"` // facts reported by the context probe
	Status      TaskStatus        `json:"status"`
	ExitCode    int               `json:"exit_code"`
	Locator     string            `json:"locator,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// ExecutionResult is the outcome of running a launcher script.
type ExecutionResult struct {
	UniqueID        string `json:"unique_id"`
	WorkingDir      string `json:"working_dir"`
	WorkflowLocator string `json:"workflow_locator"`
	ExitCode        int    `json:"exit_code"`
}

// DeclaredOutput is a file a task promises to produce.
type DeclaredOutput struct {
	FilePath string `json:"file_path"`
}

// Run represents an execution attempt of a task.
type Run struct {
	ID        string    `json:"id"`
	TaskID    string    `json:"task_id"`
	Script    string    `json:"script"`
	ExitCode  int       `json:"exit_code"`
	ErrorKind string    `json:"error_kind,omitempty"`
	Error     string    `json:"error,omitempty"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`
}

// PDREntry represents a Process Decision Record for audit.
type PDREntry struct {
	ID         string    `json:"id"`
	Action     string    `json:"action"`
	InputsHash string    `json:"inputs_hash"`
	Outcome    string    `json:"outcome"`
	TaskID     string    `json:"task_id,omitempty"`
	Details    string    `json:"details,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}
