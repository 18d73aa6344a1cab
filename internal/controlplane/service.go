// Package controlplane provides the HTTP API and service layer for wfsandbox.
package controlplane

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/fentz26/wfsandbox/internal/apperr"
	"github.com/fentz26/wfsandbox/internal/audit"
	"github.com/fentz26/wfsandbox/internal/command"
	"github.com/fentz26/wfsandbox/internal/config"
	"github.com/fentz26/wfsandbox/internal/connectors"
	"github.com/fentz26/wfsandbox/internal/connectors/localexec"
	"github.com/fentz26/wfsandbox/internal/locator"
	"github.com/fentz26/wfsandbox/internal/models"
	"github.com/fentz26/wfsandbox/internal/resolver"
	"github.com/fentz26/wfsandbox/internal/sandbox"
	"github.com/fentz26/wfsandbox/internal/scheduler"
	"github.com/fentz26/wfsandbox/internal/script"
	"github.com/fentz26/wfsandbox/internal/staging"
	"github.com/fentz26/wfsandbox/internal/store"
	"github.com/fentz26/wfsandbox/internal/verify"
)

// Options configure a Service.
type Options struct {
	Sandbox  *sandbox.Manager
	Builder  *script.Builder
	Executor connectors.Executor
	Prober   connectors.Prober
	Stager   staging.Stager
	Policy   resolver.Policy

	// Scheduler, when set, bounds concurrent RunTask calls.
	Scheduler *scheduler.Scheduler

	// Workflow is used for tasks submitted without one.
	Workflow string

	// LauncherName is the launcher file name under .control.
	LauncherName string

	// Timeout applies when an execution does not set its own.
	Timeout time.Duration
}

// Service provides the control plane business logic.
type Service struct {
	store    *store.Store
	pdr      *audit.PDRWriter
	resolver *resolver.Resolver
	opts     Options
}

// NewService creates a new control plane service.
func NewService(s *store.Store, pdr *audit.PDRWriter, opts Options) *Service {
	if opts.Builder == nil {
		opts.Builder = script.NewBuilder("")
	}
	if opts.Prober == nil {
		opts.Prober = localexec.NoopProber{}
	}
	if opts.Workflow == "" {
		opts.Workflow = "main"
	}
	if opts.LauncherName == "" {
		opts.LauncherName = localexec.DefaultScriptName
	}
	return &Service{
		store:    s,
		pdr:      pdr,
		resolver: resolver.New(s, opts.Stager, opts.Policy),
		opts:     opts,
	}
}

// NewServiceFromConfig wires a local execution service from cfg.
func NewServiceFromConfig(cfg *config.Config, s *store.Store, pdr *audit.PDRWriter) (*Service, error) {
	env, err := cfg.TaskEnv()
	if err != nil {
		return nil, err
	}
	stager, err := staging.ForMode(cfg.Staging)
	if err != nil {
		return nil, err
	}
	policy, err := resolver.ParsePolicy(cfg.Unresolved)
	if err != nil {
		return nil, err
	}

	builder := script.NewBuilder(cfg.Interpreter)
	exec := localexec.New(localexec.Config{
		Interpreter: cfg.Interpreter,
		Env:         env,
		KillGrace:   cfg.KillGrace,
	})

	var prober connectors.Prober = localexec.NoopProber{}
	if cfg.Probe == "local" {
		p := localexec.NewProber(exec, builder, "")
		p.ScriptName = cfg.ContextName
		if cfg.Timeout > 0 {
			p.Timeout = cfg.Timeout
		}
		prober = p
	}

	return NewService(s, pdr, Options{
		Sandbox:      sandbox.New(cfg.ScratchRoot, cfg.UniqueID),
		Builder:      builder,
		Executor:     exec,
		Prober:       prober,
		Stager:       stager,
		Policy:       policy,
		Scheduler:    scheduler.New(&cfg.Workers),
		Workflow:     cfg.Workflow,
		LauncherName: cfg.LauncherName,
		Timeout:      cfg.Timeout,
	}), nil
}

// --- Exposed Operations ---

// PreprocessCommand prepares task's sandbox and returns the launcher script
// that stages its references and runs rawCommand.
func (s *Service) PreprocessCommand(ctx context.Context, rawCommand string, task *models.Task) (text string, err error) {
	ctx, span := startTaskSpan(ctx, "preprocess", task)
	defer func() {
		endTaskSpan(span, err)
		s.pdr.RecordResult("task.preprocess", map[string]string{"name": task.Name, "command": rawCommand}, task.ID, err)
	}()

	if task.Workflow == "" {
		task.Workflow = s.opts.Workflow
	}
	if err := checkNames(task.Workflow, task.Name); err != nil {
		return "", err
	}
	if err := s.opts.Sandbox.EnsureWorkingDirectory(task); err != nil {
		return "", err
	}

	info, err := s.opts.Prober.Probe(ctx, task)
	if err != nil {
		return "", err
	}
	task.Info = info

	plan, err := s.resolver.Resolve(ctx, rawCommand, task, task.Workflow)
	if err != nil {
		return "", err
	}
	return s.opts.Builder.Launcher(task.WorkingDir, plan.Staging, plan.Body).Render(), nil
}

// Execute runs a launcher script in task's working directory.
func (s *Service) Execute(ctx context.Context, task *models.Task, text string, opts connectors.ExecOptions) (res *models.ExecutionResult, err error) {
	ctx, span := startTaskSpan(ctx, "execute", task)
	defer func() {
		endTaskSpan(span, err)
		s.pdr.RecordResult("task.execute", map[string]string{"name": task.Name, "script": text}, task.ID, err)
	}()

	if opts.ScriptName == "" {
		opts.ScriptName = s.opts.LauncherName
	}
	if opts.Timeout == 0 {
		opts.Timeout = s.opts.Timeout
	}

	log.Printf("Executing task %s in %s", task.Name, task.WorkingDir)
	res, err = s.opts.Executor.Execute(ctx, task, text, opts)
	if err != nil {
		return nil, err
	}
	log.Printf("Task %s exited with code %d", task.Name, res.ExitCode)
	return res, nil
}

// VerifyOutputs checks that every declared output of task exists.
func (s *Service) VerifyOutputs(ctx context.Context, task *models.Task, outputs []models.DeclaredOutput) (err error) {
	_, span := startTaskSpan(ctx, "verify", task)
	defer func() {
		endTaskSpan(span, err)
		s.pdr.RecordResult("task.verify", outputs, task.ID, err)
	}()
	return verify.Outputs(task, outputs)
}

// --- Task Operations ---

// RunRequest describes one task invocation. Stream modes are "a" (append,
// the default) or "w" (truncate).
type RunRequest struct {
	Workflow string `json:"workflow,omitempty"`
	Name     string `json:"name"`
	// Command is a template rendered with the fields below before preprocessing.
	Command    string            `json:"command"`
	Inputs     []string          `json:"inputs,omitempty"`
	Outputs    []string          `json:"outputs,omitempty"`
	Params     map[string]string `json:"params,omitempty"`
	Stdout     string            `json:"stdout,omitempty"`
	Stderr     string            `json:"stderr,omitempty"`
	StdoutMode string            `json:"stdout_mode,omitempty"`
	StderrMode string            `json:"stderr_mode,omitempty"`
	TimeoutSec int               `json:"timeout_sec,omitempty"`
}

// RunResponse reports the outcome of RunTask.
type RunResponse struct {
	Task      *models.Task            `json:"task"`
	Result    *models.ExecutionResult `json:"result,omitempty"`
	Run       *models.Run             `json:"run,omitempty"`
	ErrorKind string                  `json:"error_kind,omitempty"`
	Error     string                  `json:"error,omitempty"`
}

// RunTask renders, sandboxes, preprocesses, executes and verifies a task,
// persisting its outcome. On a task failure both the response and the error
// are returned.
func (s *Service) RunTask(ctx context.Context, req RunRequest) (*RunResponse, error) {
	workflow := req.Workflow
	if workflow == "" {
		workflow = s.opts.Workflow
	}
	if err := checkNames(workflow, req.Name); err != nil {
		return nil, err
	}
	if req.TimeoutSec < 0 {
		return nil, fmt.Errorf("%w: negative timeout", ErrInvalidRequest)
	}
	stdoutMode, err := streamMode(req.StdoutMode)
	if err != nil {
		return nil, err
	}
	stderrMode, err := streamMode(req.StderrMode)
	if err != nil {
		return nil, err
	}
	inputs, err := canonicalInputs(req.Inputs, workflow, req.Name)
	if err != nil {
		s.pdr.RecordResult("task.render", req, "", err)
		return nil, err
	}

	body, err := command.Render(req.Command, command.Data{
		Workflow: workflow,
		Task:     req.Name,
		Inputs:   inputs,
		Outputs:  req.Outputs,
		Params:   req.Params,
	})
	if err != nil {
		err = apperr.WithTask(err, req.Name)
		s.pdr.RecordResult("task.render", req, "", err)
		return nil, err
	}

	task := &models.Task{
		Workflow: workflow,
		Name:     req.Name,
		Command:  body,
		Status:   models.TaskStatusPending,
	}
	if err := s.opts.Sandbox.EnsureWorkingDirectory(task); err != nil {
		return nil, err
	}
	if err := s.store.CreateTask(task); err != nil {
		return nil, fmt.Errorf("register task: %w", err)
	}
	resp := &RunResponse{Task: task}

	if s.opts.Scheduler != nil {
		release, err := s.opts.Scheduler.Acquire(ctx, s.opts.Executor.Name())
		if err != nil {
			return s.finish(resp, apperr.Wrap(apperr.AppException, task.Name, "wait for a worker slot", err))
		}
		defer release()
	}
	task.Status = models.TaskStatusRunning
	if err := s.store.UpdateTaskResult(task); err != nil {
		return s.finish(resp, err)
	}

	text, err := s.PreprocessCommand(ctx, body, task)
	if err != nil {
		return s.finish(resp, err)
	}

	run, err := s.store.CreateRun(task.ID, text)
	if err != nil {
		return s.finish(resp, fmt.Errorf("record run: %w", err))
	}
	resp.Run = run

	res, err := s.Execute(ctx, task, text, connectors.ExecOptions{
		Stdout:     req.Stdout,
		Stderr:     req.Stderr,
		StdoutMode: stdoutMode,
		StderrMode: stderrMode,
		Timeout:    time.Duration(req.TimeoutSec) * time.Second,
	})
	if err == nil {
		resp.Result = res
		task.ExitCode = res.ExitCode
		if res.ExitCode != 0 {
			err = apperr.ExitFailure(task.Name, res.ExitCode)
		}
	}
	if err == nil {
		err = s.VerifyOutputs(ctx, task, declaredOutputs(req.Outputs))
	}
	return s.finish(resp, err)
}

// finish persists the outcome of a registered task.
func (s *Service) finish(resp *RunResponse, runErr error) (*RunResponse, error) {
	task := resp.Task
	if runErr != nil {
		task.Status = models.TaskStatusFailed
		if resp.Result == nil {
			task.ExitCode = -1
		}
		resp.ErrorKind = string(apperr.KindOf(runErr))
		resp.Error = runErr.Error()
	} else {
		task.Status = models.TaskStatusCompleted
		task.Locator = models.WorkflowLocator(task.Workflow, task.UniqueID)
	}

	if err := s.store.UpdateTaskResult(task); err != nil {
		log.Printf("Failed to persist result of task %s: %v", task.Name, err)
		if runErr == nil {
			return resp, err
		}
	}
	if resp.Run != nil {
		if err := s.store.FinishRun(resp.Run.ID, task.ExitCode, resp.ErrorKind, resp.Error); err != nil {
			log.Printf("Failed to finish run %s: %v", resp.Run.ID, err)
		}
		resp.Run.ExitCode = task.ExitCode
		resp.Run.ErrorKind = resp.ErrorKind
		resp.Run.Error = resp.Error
		resp.Run.EndedAt = time.Now().UTC()
	}

	log.Printf("Task %s/%s %s", task.Workflow, task.Name, task.Status)
	return resp, runErr
}

// GetTask retrieves a task by ID or unique id.
func (s *Service) GetTask(id string) (*models.Task, error) {
	return s.store.GetTask(id)
}

// ListTasks returns tasks filtered by workflow and status.
func (s *Service) ListTasks(workflow, status string) ([]models.Task, error) {
	return s.store.ListTasks(workflow, status)
}

// GetTaskRuns returns the runs of a task.
func (s *Service) GetTaskRuns(id string) ([]models.Run, error) {
	task, err := s.store.GetTask(id)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, ErrTaskNotFound
	}
	return s.store.GetRunsForTask(task.ID)
}

// GetTaskAudit returns the audit records of a task, oldest first.
func (s *Service) GetTaskAudit(id string) ([]models.PDREntry, error) {
	task, err := s.store.GetTask(id)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, ErrTaskNotFound
	}
	return s.store.ListPDR(task.ID)
}

// WorkerStats reports worker slot usage, or nil without a scheduler.
func (s *Service) WorkerStats() map[string]interface{} {
	if s.opts.Scheduler == nil {
		return nil
	}
	return s.opts.Scheduler.GetStats()
}

// Ping checks the task registry.
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// checkNames rejects names that cannot be embedded unquoted in sandbox paths.
func checkNames(workflow, name string) error {
	if !validName(name) {
		return fmt.Errorf("%w: task name %q", ErrInvalidRequest, name)
	}
	if !validName(workflow) {
		return fmt.Errorf("%w: workflow %q", ErrInvalidRequest, workflow)
	}
	return nil
}

func validName(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '.' || r == '_' || r == '-':
		default:
			return false
		}
	}
	return s != "." && s != ".."
}

func streamMode(mode string) (connectors.StreamMode, error) {
	switch connectors.StreamMode(mode) {
	case "", connectors.StreamAppend:
		return connectors.StreamAppend, nil
	case connectors.StreamTruncate:
		return connectors.StreamTruncate, nil
	default:
		return "", fmt.Errorf("%w: stream mode %q", ErrInvalidRequest, mode)
	}
}

// canonicalInputs validates locator inputs and pins them to workflow.
// Plain paths pass through.
func canonicalInputs(inputs []string, workflow, task string) ([]string, error) {
	if len(inputs) == 0 {
		return inputs, nil
	}
	out := make([]string, 0, len(inputs))
	for _, in := range inputs {
		if !strings.HasPrefix(in, models.Scheme) {
			out = append(out, in)
			continue
		}
		loc, err := locator.Parse(in)
		if err != nil {
			return nil, apperr.WithTask(err, task)
		}
		if loc.Workflow == "" {
			loc.Workflow = workflow
		}
		out = append(out, locator.Format(loc))
	}
	return out, nil
}

func declaredOutputs(paths []string) []models.DeclaredOutput {
	outputs := make([]models.DeclaredOutput, 0, len(paths))
	for _, p := range paths {
		outputs = append(outputs, models.DeclaredOutput{FilePath: p})
	}
	return outputs
}
