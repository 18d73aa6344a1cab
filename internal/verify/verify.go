// Package verify checks that declared outputs exist after a task ran.
package verify

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fentz26/wfsandbox/internal/apperr"
	"github.com/fentz26/wfsandbox/internal/models"
)

// Outputs returns MissingOutputs listing every declared output that does not
// exist. Relative paths are resolved against the task's working directory.
func Outputs(task *models.Task, outputs []models.DeclaredOutput) error {
	var missing []string
	for _, out := range outputs {
		path := out.FilePath
		if !filepath.IsAbs(path) && task.WorkingDir != "" {
			path = filepath.Join(task.WorkingDir, path)
		}
		if _, err := os.Stat(path); err != nil {
			if !os.IsNotExist(err) {
				return fmt.Errorf("stat output %s: %w", path, err)
			}
			missing = append(missing, path)
		}
	}
	if len(missing) > 0 {
		return apperr.Missing(task.Name, missing)
	}
	return nil
}
