package audit

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/fentz26/wfsandbox/internal/apperr"
	"github.com/fentz26/wfsandbox/internal/store"
)

func TestRecordResult(t *testing.T) {
	s, err := store.New(filepath.Join(t.TempDir(), "audit.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer s.Close()

	w := NewPDRWriter(s)
	w.RecordResult("task.execute", map[string]string{"task": "A"}, "t1", nil)
	w.RecordResult("task.verify", map[string]string{"task": "A"}, "t1", apperr.Missing("A", []string{"/x"}))
	w.RecordResult("task.store", nil, "t1", errors.New("disk full"))

	entries, err := s.ListPDR("t1")
	if err != nil {
		t.Fatalf("ListPDR failed: %v", err)
	}
	want := []string{"success", "failed", "error"}
	if len(entries) != len(want) {
		t.Fatalf("entries = %d, want %d", len(entries), len(want))
	}
	for i, e := range entries {
		if e.Outcome != want[i] {
			t.Errorf("entry %d outcome = %s, want %s", i, e.Outcome, want[i])
		}
	}
	if entries[0].InputsHash != hashInputs(map[string]string{"task": "A"}) {
		t.Error("inputs hash is not the sha256 of the JSON inputs")
	}
}

func TestOutcome(t *testing.T) {
	if o, d := Outcome(nil); o != "success" || d != "" {
		t.Errorf("Outcome(nil) = %s, %s", o, d)
	}
	if o, _ := Outcome(apperr.ExitFailure("A", 1)); o != "failed" {
		t.Errorf("Outcome(exit failure) = %s", o)
	}
}
