// Package sandbox owns the lifecycle of per-task working directories.
package sandbox

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/fentz26/wfsandbox/internal/apperr"
	"github.com/fentz26/wfsandbox/internal/models"
	"github.com/google/uuid"
)

// Unique ID modes.
const (
	ModeHuman = "human"
	ModeUUID  = "uuid"
)

// ControlDirName is the subdirectory holding the launcher and context scripts.
const ControlDirName = ".control"

// humanLayout renders YYYYMMDDZHHMMSS.
const humanLayout = "20060102Z150405"

// Manager creates working directories under a shared scratch root.
type Manager struct {
	ScratchRoot string
	Mode        string

	// now is overridable in tests.
	now func() time.Time
}

// New creates a new Manager.
func New(scratchRoot, mode string) *Manager {
	if mode == "" {
		mode = ModeHuman
	}
	return &Manager{ScratchRoot: scratchRoot, Mode: mode, now: time.Now}
}

// GenerateUniqueID returns a fresh identifier for a task labelled label.
func (m *Manager) GenerateUniqueID(label string) (string, error) {
	switch m.Mode {
	case ModeHuman:
		return humanID(m.now(), label), nil
	case ModeUUID:
		return uuid.New().String(), nil
	default:
		return "", fmt.Errorf("unknown unique id mode %q", m.Mode)
	}
}

func humanID(t time.Time, label string) string {
	stamp := strconv.FormatFloat(float64(t.UnixNano())/1e9, 'f', -1, 64)
	sum := md5.Sum([]byte(stamp))
	return t.UTC().Format(humanLayout) + "_" + label + "_" + hex.EncodeToString(sum[:])
}

// EnsureWorkingDirectory creates the task's working directory and its control
// directory. It is a no-op when the task already has one.
func (m *Manager) EnsureWorkingDirectory(task *models.Task) error {
	if task.WorkingDir != "" {
		return nil
	}

	id := task.UniqueID
	if id == "" {
		var err error
		id, err = m.GenerateUniqueID(task.Name)
		if err != nil {
			return apperr.Wrap(apperr.DirectoryCreationFailure, task.Name, "generate unique id", err)
		}
	}

	root, err := filepath.Abs(m.ScratchRoot)
	if err != nil {
		return apperr.Wrap(apperr.DirectoryCreationFailure, task.Name, "resolve scratch root", err)
	}
	if err := os.MkdirAll(root, 0755); err != nil {
		return &apperr.Error{Kind: apperr.DirectoryCreationFailure, Task: task.Name, Msg: "create scratch root", Path: root, Err: err}
	}

	dir := filepath.Join(root, id)
	// Mkdir, not MkdirAll: an existing directory means two tasks collided on an ID.
	if err := os.Mkdir(dir, 0755); err != nil {
		return &apperr.Error{Kind: apperr.DirectoryCreationFailure, Task: task.Name, Msg: "create working directory", Path: dir, Err: err}
	}
	control := filepath.Join(dir, ControlDirName)
	if err := os.MkdirAll(control, 0755); err != nil {
		return &apperr.Error{Kind: apperr.DirectoryCreationFailure, Task: task.Name, Msg: "create control directory", Path: control, Err: err}
	}

	task.UniqueID = id
	task.ScratchRoot = root
	task.WorkingDir = dir
	log.Printf("Created sandbox %s for task %s", dir, task.Name)
	return nil
}

// ControlDir returns the task's .control directory.
func ControlDir(task *models.Task) string {
	return filepath.Join(task.WorkingDir, ControlDirName)
}

// InputsDir returns where outputs of workflow/name are staged for task.
func InputsDir(task *models.Task, workflow, name string) string {
	return filepath.Join(task.WorkingDir, ControlDirName, "inputs", workflow, name)
}

// ScriptPath returns the path of a named script in the control directory.
func ScriptPath(task *models.Task, name string) string {
	return filepath.Join(task.WorkingDir, ControlDirName, name)
}
