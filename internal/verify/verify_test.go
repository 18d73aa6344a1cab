package verify

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/fentz26/wfsandbox/internal/apperr"
	"github.com/fentz26/wfsandbox/internal/models"
)

func TestOutputs(t *testing.T) {
	wd := t.TempDir()
	present := filepath.Join(wd, "present.txt")
	if err := os.WriteFile(present, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(wd, "rel.txt"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	task := &models.Task{Name: "C", WorkingDir: wd}

	if err := Outputs(task, nil); err != nil {
		t.Errorf("no outputs: %v", err)
	}
	if err := Outputs(task, []models.DeclaredOutput{{FilePath: present}, {FilePath: "rel.txt"}}); err != nil {
		t.Errorf("present outputs: %v", err)
	}

	absent := filepath.Join(wd, "absent.txt")
	err := Outputs(task, []models.DeclaredOutput{{FilePath: present}, {FilePath: absent}, {FilePath: "gone/x.txt"}})
	if !errors.Is(err, apperr.ErrMissingOutputs) {
		t.Fatalf("error = %v, want MissingOutputs", err)
	}

	var e *apperr.Error
	errors.As(err, &e)
	want := []string{absent, filepath.Join(wd, "gone", "x.txt")}
	if len(e.Missing) != len(want) {
		t.Fatalf("Missing = %v, want %v", e.Missing, want)
	}
	for i := range want {
		if e.Missing[i] != want[i] {
			t.Errorf("Missing[%d] = %s, want %s", i, e.Missing[i], want[i])
		}
	}
	if e.Task != "C" {
		t.Errorf("Task = %q, want C", e.Task)
	}
}
