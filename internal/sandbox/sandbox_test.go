package sandbox

import (
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/fentz26/wfsandbox/internal/apperr"
	"github.com/fentz26/wfsandbox/internal/models"
)

func TestEnsureWorkingDirectory_Idempotent(t *testing.T) {
	m := New(t.TempDir(), ModeUUID)
	task := &models.Task{Workflow: "wf", Name: "A"}

	if err := m.EnsureWorkingDirectory(task); err != nil {
		t.Fatalf("EnsureWorkingDirectory failed: %v", err)
	}
	first := task.WorkingDir

	if err := m.EnsureWorkingDirectory(task); err != nil {
		t.Fatalf("Second EnsureWorkingDirectory failed: %v", err)
	}
	if task.WorkingDir != first {
		t.Errorf("WorkingDir changed from %s to %s", first, task.WorkingDir)
	}

	if info, err := os.Stat(ControlDir(task)); err != nil || !info.IsDir() {
		t.Errorf("Control directory missing: %v", err)
	}
	if filepath.Base(task.WorkingDir) != task.UniqueID {
		t.Errorf("WorkingDir %s is not named after unique id %s", task.WorkingDir, task.UniqueID)
	}
}

func TestEnsureWorkingDirectory_Collision(t *testing.T) {
	root := t.TempDir()
	if err := os.Mkdir(filepath.Join(root, "taken"), 0755); err != nil {
		t.Fatal(err)
	}

	m := New(root, ModeHuman)
	task := &models.Task{Name: "A", UniqueID: "taken"}
	err := m.EnsureWorkingDirectory(task)
	if !errors.Is(err, apperr.ErrDirectoryCreationFailure) {
		t.Fatalf("error = %v, want DirectoryCreationFailure", err)
	}
	if task.WorkingDir != "" {
		t.Error("WorkingDir must stay unset after a failed creation")
	}
}

func TestGenerateUniqueID_Human(t *testing.T) {
	m := New(t.TempDir(), ModeHuman)
	instant := time.Date(2024, 3, 9, 14, 5, 6, 0, time.UTC)
	m.now = func() time.Time { return instant }

	id, err := m.GenerateUniqueID("app1")
	if err != nil {
		t.Fatalf("GenerateUniqueID failed: %v", err)
	}
	if !regexp.MustCompile(`^20240309Z140506_app1_[0-9a-f]{32}$`).MatchString(id) {
		t.Errorf("human id = %s", id)
	}

	again, _ := m.GenerateUniqueID("app1")
	if again != id {
		t.Errorf("human id not deterministic for the same instant: %s vs %s", id, again)
	}
	if id == ModeHuman {
		t.Error("GenerateUniqueID returned the mode string")
	}
}

func TestGenerateUniqueID_UUIDUnique(t *testing.T) {
	m := New(t.TempDir(), ModeUUID)
	seen := make(map[string]bool, 10000)
	for i := 0; i < 10000; i++ {
		id, err := m.GenerateUniqueID("x")
		if err != nil {
			t.Fatalf("GenerateUniqueID failed: %v", err)
		}
		if seen[id] {
			t.Fatalf("duplicate id %s after %d generations", id, i)
		}
		seen[id] = true
	}
}

func TestGenerateUniqueID_UnknownMode(t *testing.T) {
	m := New(t.TempDir(), "serial")
	if _, err := m.GenerateUniqueID("x"); err == nil {
		t.Error("Expected error for unknown mode")
	}
	task := &models.Task{Name: "x"}
	if err := m.EnsureWorkingDirectory(task); !errors.Is(err, apperr.ErrDirectoryCreationFailure) {
		t.Errorf("EnsureWorkingDirectory error = %v, want DirectoryCreationFailure", err)
	}
}

func TestInputsDir(t *testing.T) {
	task := &models.Task{WorkingDir: "/scratch/id"}
	if got := InputsDir(task, "helloworld", "A"); got != "/scratch/id/.control/inputs/helloworld/A" {
		t.Errorf("InputsDir = %s", got)
	}
	if got := ScriptPath(task, "launcher.sh"); got != "/scratch/id/.control/launcher.sh" {
		t.Errorf("ScriptPath = %s", got)
	}
}
