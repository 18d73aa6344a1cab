// Package localexec runs launcher scripts as local subprocesses.
package localexec

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	"github.com/fentz26/wfsandbox/internal/apperr"
	"github.com/fentz26/wfsandbox/internal/connectors"
	"github.com/fentz26/wfsandbox/internal/models"
	"github.com/fentz26/wfsandbox/internal/sandbox"
	"github.com/fentz26/wfsandbox/internal/script"
)

// DefaultScriptName is the launcher file name under .control.
const DefaultScriptName = "launcher.sh"

// scriptMode is owner rwx, group and other read.
const scriptMode os.FileMode = 0744

// Config controls the behavior of LocalExec.
type Config struct {
	// Interpreter runs the script; defaults to /bin/bash.
	Interpreter string
	// Env is added on top of the host environment.
	Env map[string]string
	// KillGrace is the wait between SIGTERM and SIGKILL on timeout; defaults to 2s.
	KillGrace time.Duration
}

// LocalExec implements connectors.Executor for local execution.
type LocalExec struct {
	cfg Config
}

var _ connectors.Executor = (*LocalExec)(nil)

// New creates a new LocalExec connector.
func New(cfg Config) *LocalExec {
	if cfg.Interpreter == "" {
		cfg.Interpreter = script.DefaultInterpreter
	}
	if cfg.KillGrace <= 0 {
		cfg.KillGrace = 2 * time.Second
	}
	return &LocalExec{cfg: cfg}
}

// Name returns the connector identifier.
func (l *LocalExec) Name() string {
	return "localexec"
}

// Execute writes script into the task's control directory and runs it.
func (l *LocalExec) Execute(ctx context.Context, task *models.Task, text string, opts connectors.ExecOptions) (*models.ExecutionResult, error) {
	if task.WorkingDir == "" {
		return nil, apperr.New(apperr.AppException, task.Name, "task has no working directory")
	}
	name := opts.ScriptName
	if name == "" {
		name = DefaultScriptName
	}

	path := sandbox.ScriptPath(task, name)
	if err := os.WriteFile(path, []byte(text), scriptMode); err != nil {
		return nil, apperr.Wrap(apperr.AppException, task.Name, "write script", err)
	}
	// WriteFile is subject to umask.
	if err := os.Chmod(path, scriptMode); err != nil {
		return nil, apperr.Wrap(apperr.AppException, task.Name, "chmod script", err)
	}

	stdout, err := openStream(task.Name, opts.Stdout, opts.StdoutMode)
	if err != nil {
		return nil, err
	}
	if stdout != nil {
		defer stdout.Close()
	}
	stderr, err := openStream(task.Name, opts.Stderr, opts.StderrMode)
	if err != nil {
		return nil, err
	}
	if stderr != nil {
		defer stderr.Close()
		fmt.Fprintf(stderr, "--> executable follows <--\n%s\n--> end executable <--\n", text)
	}

	cmd := exec.Command(l.cfg.Interpreter, path)
	cmd.Dir = task.WorkingDir
	cmd.Env = l.environ()
	// Own process group so a timeout kills the whole tree.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Stdout = joinWriters(stdout, opts.Capture)
	if stderr != nil {
		cmd.Stderr = stderr
	}

	if err := cmd.Start(); err != nil {
		return nil, apperr.Wrap(apperr.AppException, task.Name, "start "+name, err)
	}
	log.Printf("Started %s for task %s (pid %d)", name, task.Name, cmd.Process.Pid)

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	var timeout <-chan time.Time
	if opts.Timeout > 0 {
		timer := time.NewTimer(opts.Timeout)
		defer timer.Stop()
		timeout = timer.C
	}

	var waitErr error
	select {
	case waitErr = <-done:
	case <-timeout:
		l.terminate(cmd.Process.Pid, done)
		return nil, apperr.Timeout(task.Name, opts.Timeout)
	case <-ctx.Done():
		l.terminate(cmd.Process.Pid, done)
		return nil, apperr.Wrap(apperr.AppException, task.Name, "execution cancelled", ctx.Err())
	}

	exitCode := 0
	if waitErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(waitErr, &exitErr) {
			return nil, apperr.Wrap(apperr.AppException, task.Name, "wait "+name, waitErr)
		}
		exitCode = exitErr.ExitCode()
	}

	return &models.ExecutionResult{
		UniqueID:        task.UniqueID,
		WorkingDir:      task.WorkingDir,
		WorkflowLocator: models.WorkflowLocator(task.Workflow, task.UniqueID),
		ExitCode:        exitCode,
	}, nil
}

// terminate sends SIGTERM to the process group, then SIGKILL after the grace
// period, and waits for the process to be reaped.
func (l *LocalExec) terminate(pid int, done <-chan error) {
	_ = syscall.Kill(-pid, syscall.SIGTERM)
	select {
	case <-done:
		return
	case <-time.After(l.cfg.KillGrace):
	}
	_ = syscall.Kill(-pid, syscall.SIGKILL)
	<-done
}

func (l *LocalExec) environ() []string {
	env := os.Environ()
	keys := make([]string, 0, len(l.cfg.Env))
	for k := range l.cfg.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k+"="+l.cfg.Env[k])
	}
	return env
}

// openStream opens a redirection target, creating parent directories. Files
// are appended to unless mode is StreamTruncate.
func openStream(task, name string, mode connectors.StreamMode) (*os.File, error) {
	if name == "" {
		return nil, nil
	}
	if dir := filepath.Dir(name); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, &apperr.Error{Kind: apperr.BadStdStreamFile, Task: task, Msg: "create stream directory", Path: name, Err: err}
		}
	}
	flag := os.O_CREATE | os.O_WRONLY | os.O_APPEND
	if mode == connectors.StreamTruncate {
		flag = os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	}
	f, err := os.OpenFile(name, flag, 0644)
	if err != nil {
		return nil, &apperr.Error{Kind: apperr.BadStdStreamFile, Task: task, Msg: "open stream", Path: name, Err: err}
	}
	return f, nil
}

func joinWriters(f *os.File, w io.Writer) io.Writer {
	switch {
	case f != nil && w != nil:
		return io.MultiWriter(f, w)
	case f != nil:
		return f
	case w != nil:
		return w
	}
	return nil
}
