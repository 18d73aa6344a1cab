package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fentz26/wfsandbox/internal/audit"
	"github.com/fentz26/wfsandbox/internal/controlplane"
	"github.com/fentz26/wfsandbox/internal/models"
	"github.com/fentz26/wfsandbox/internal/store"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run --name NAME [flags] -- COMMAND...",
	Short: "Run a task in a fresh sandbox",
	Long: `Renders COMMAND as a template, stages its workflow:// references, runs it
in a new working directory and verifies the declared outputs.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRun,
}

var resolveCmd = &cobra.Command{
	Use:   "resolve --name NAME [flags] -- COMMAND...",
	Short: "Print the launcher script for a command",
	Long:  `Creates the task sandbox, probes it and prints the launcher script without running it.`,
	Args:  cobra.MinimumNArgs(1),
	RunE:  runResolve,
}

var (
	taskName    string
	taskFlow    string
	taskInputs  []string
	taskOutputs []string
	taskParams  map[string]string
	stdoutPath  string
	stderrPath  string
	stdoutMode  string
	stderrMode  string
	timeoutSec  int
)

func init() {
	for _, c := range []*cobra.Command{runCmd, resolveCmd} {
		c.Flags().StringVar(&taskName, "name", "", "Task name (required)")
		c.Flags().StringVar(&taskFlow, "workflow", "", "Workflow name (default from config)")
		c.MarkFlagRequired("name")
	}

	submitFlags := []*cobra.Command{runCmd, taskSubmitCmd}
	for _, c := range submitFlags {
		c.Flags().StringSliceVar(&taskInputs, "input", nil, "Input file, available to the template as .Inputs")
		c.Flags().StringSliceVar(&taskOutputs, "output", nil, "Declared output file, verified after the run")
		c.Flags().StringToStringVar(&taskParams, "param", nil, "Template parameter key=value")
		c.Flags().StringVar(&stdoutPath, "stdout", "", "Append standard output to this file")
		c.Flags().StringVar(&stderrPath, "stderr", "", "Append standard error to this file")
		c.Flags().StringVar(&stdoutMode, "stdout-mode", "a", "Open --stdout with mode a (append) or w (truncate)")
		c.Flags().StringVar(&stderrMode, "stderr-mode", "a", "Open --stderr with mode a (append) or w (truncate)")
		c.Flags().IntVar(&timeoutSec, "timeout", 0, "Walltime in seconds (default from config)")
	}
}

// openService opens the task registry and wires a local service.
func openService() (*controlplane.Service, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	s, err := store.New(cfg.DBPath)
	if err != nil {
		return nil, nil, err
	}
	service, err := controlplane.NewServiceFromConfig(cfg, s, audit.NewPDRWriter(s))
	if err != nil {
		s.Close()
		return nil, nil, err
	}
	return service, func() { s.Close() }, nil
}

func runRequest(args []string) controlplane.RunRequest {
	return controlplane.RunRequest{
		Workflow:   taskFlow,
		Name:       taskName,
		Command:    strings.Join(args, " "),
		Inputs:     taskInputs,
		Outputs:    taskOutputs,
		Params:     taskParams,
		Stdout:     stdoutPath,
		Stderr:     stderrPath,
		StdoutMode: stdoutMode,
		StderrMode: stderrMode,
		TimeoutSec: timeoutSec,
	}
}

func runRun(cmd *cobra.Command, args []string) error {
	service, closeFn, err := openService()
	if err != nil {
		return err
	}
	defer closeFn()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	resp, err := service.RunTask(ctx, runRequest(args))
	if resp != nil {
		printRunResponse(resp)
	}
	return err
}

func runResolve(cmd *cobra.Command, args []string) error {
	service, closeFn, err := openService()
	if err != nil {
		return err
	}
	defer closeFn()

	task := &models.Task{Workflow: taskFlow, Name: taskName}
	text, err := service.PreprocessCommand(cmd.Context(), strings.Join(args, " "), task)
	if err != nil {
		return err
	}
	fmt.Print(text)
	return nil
}

func printRunResponse(resp *controlplane.RunResponse) {
	t := resp.Task
	fmt.Printf("Task:        %s/%s\n", t.Workflow, t.Name)
	fmt.Printf("ID:          %s\n", t.ID)
	fmt.Printf("Unique ID:   %s\n", t.UniqueID)
	fmt.Printf("Working Dir: %s\n", t.WorkingDir)
	fmt.Printf("Status:      %s\n", t.Status)
	fmt.Printf("Exit Code:   %d\n", t.ExitCode)
	if t.Locator != "" {
		fmt.Printf("Locator:     %s\n", t.Locator)
	}
	if resp.Error != "" {
		fmt.Printf("Error:       %s\n", resp.Error)
	}
}
