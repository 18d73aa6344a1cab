// Package staging provides local stage-in strategies for referenced task outputs.
package staging

import (
	"context"
	"fmt"
	"log"
	"path/filepath"

	"github.com/fentz26/wfsandbox/internal/models"
	"github.com/fentz26/wfsandbox/internal/script"
)

// Stager emits the script fragments that bring relPath of source's output
// into dstDir of consumer's sandbox.
type Stager interface {
	Name() string
	StageIn(ctx context.Context, consumer, source *models.Task, dstDir, relPath string) ([]script.Fragment, error)
}

// ForMode returns the stager configured by name.
func ForMode(mode string) (Stager, error) {
	switch mode {
	case "", "copy":
		return Copy{}, nil
	case "link":
		return Link{}, nil
	case "none":
		return Noop{}, nil
	default:
		return nil, fmt.Errorf("unknown staging mode %q", mode)
	}
}

// Copy stages by recursive copy.
type Copy struct{}

func (Copy) Name() string { return "copy" }

func (Copy) StageIn(ctx context.Context, consumer, source *models.Task, dstDir, relPath string) ([]script.Fragment, error) {
	src, err := sourcePath(source, relPath)
	if err != nil {
		return nil, err
	}
	var cmd string
	if relPath == "" {
		cmd = "cp -r " + script.Quote(src+"/.") + " " + script.Quote(dstDir+"/")
	} else {
		cmd = "cp -r " + script.Quote(src) + " " + script.Quote(filepath.Join(dstDir, filepath.Dir(relPath))+"/")
	}
	return []script.Fragment{script.StageOp(cmd), script.Check()}, nil
}

// Link stages by symbolic link, leaving data in the source sandbox. When the
// probed hosts of the two tasks differ, it copies instead.
type Link struct{}

func (Link) Name() string { return "link" }

func (Link) StageIn(ctx context.Context, consumer, source *models.Task, dstDir, relPath string) ([]script.Fragment, error) {
	if !sameHost(consumer, source) {
		log.Printf("Task %s runs on %q, source %s on %q: copying instead of linking",
			consumer.Name, consumer.Info[HostKey], source.Name, source.Info[HostKey])
		return Copy{}.StageIn(ctx, consumer, source, dstDir, relPath)
	}
	src, err := sourcePath(source, relPath)
	if err != nil {
		return nil, err
	}
	var cmd string
	if relPath == "" {
		cmd = "ln -sfn " + script.Quote(src) + "/* " + script.Quote(dstDir+"/")
	} else {
		cmd = "ln -sfn " + script.Quote(src) + " " + script.Quote(filepath.Join(dstDir, relPath))
	}
	return []script.Fragment{script.StageOp(cmd), script.Check()}, nil
}

// Noop leaves staging to the caller.
type Noop struct{}

func (Noop) Name() string { return "none" }

func (Noop) StageIn(ctx context.Context, consumer, source *models.Task, dstDir, relPath string) ([]script.Fragment, error) {
	return nil, nil
}

// HostKey is the probe fact that names the host a task ran on.
const HostKey = "hostname"

// sameHost reports false only when both tasks were probed on different hosts.
func sameHost(consumer, source *models.Task) bool {
	if consumer == nil || source == nil {
		return true
	}
	a, b := consumer.Info[HostKey], source.Info[HostKey]
	return a == "" || b == "" || a == b
}

func sourcePath(source *models.Task, relPath string) (string, error) {
	if source == nil || source.WorkingDir == "" {
		return "", fmt.Errorf("source task has no working directory")
	}
	if relPath == "" {
		return source.WorkingDir, nil
	}
	return filepath.Join(source.WorkingDir, relPath), nil
}
