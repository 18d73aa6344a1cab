// Package audit provides PDR (Process Decision Record) writing for wfsandbox.
package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log"

	"github.com/fentz26/wfsandbox/internal/apperr"
	"github.com/fentz26/wfsandbox/internal/models"
	"github.com/fentz26/wfsandbox/internal/store"
)

// PDRWriter writes Process Decision Records for audit trails.
type PDRWriter struct {
	store *store.Store
}

// NewPDRWriter creates a new PDR writer.
func NewPDRWriter(s *store.Store) *PDRWriter {
	return &PDRWriter{store: s}
}

// Record writes a PDR entry for a task lifecycle step.
func (w *PDRWriter) Record(action string, inputs interface{}, outcome, taskID, details string) (*models.PDREntry, error) {
	inputsHash := hashInputs(inputs)
	return w.store.WritePDR(action, inputsHash, outcome, taskID, details)
}

// RecordResult writes a PDR entry whose outcome is derived from err.
// Write failures are logged, not returned, so auditing never masks the task error.
func (w *PDRWriter) RecordResult(action string, inputs interface{}, taskID string, err error) {
	outcome, details := Outcome(err)
	if _, werr := w.Record(action, inputs, outcome, taskID, details); werr != nil {
		log.Printf("Failed to record %s for task %s: %v", action, taskID, werr)
	}
}

// Outcome maps an error to a PDR outcome and details.
func Outcome(err error) (string, string) {
	if err == nil {
		return "success", ""
	}
	if kind := apperr.KindOf(err); kind != "" {
		return "failed", string(kind) + ": " + err.Error()
	}
	return "error", err.Error()
}

// hashInputs creates a SHA256 hash of the inputs for reproducibility.
func hashInputs(inputs interface{}) string {
	data, err := json.Marshal(inputs)
	if err != nil {
		return "hash_error"
	}
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}
