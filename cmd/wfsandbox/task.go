package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/fentz26/wfsandbox/internal/controlplane"
	"github.com/fentz26/wfsandbox/internal/models"
	"github.com/spf13/cobra"
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Inspect and submit tasks through the daemon",
}

var taskListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks",
	RunE:  runTaskList,
}

var taskShowCmd = &cobra.Command{
	Use:   "show [task-id]",
	Short: "Show task details",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskShow,
}

var taskRunsCmd = &cobra.Command{
	Use:   "runs [task-id]",
	Short: "Show the launcher runs of a task",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskRuns,
}

var taskSubmitCmd = &cobra.Command{
	Use:   "submit --name NAME [flags] -- COMMAND...",
	Short: "Run a task on the daemon",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runTaskSubmit,
}

var (
	listWorkflow string
	listStatus   string
	showScript   bool
	showAudit    bool
)

func init() {
	taskCmd.AddCommand(taskListCmd, taskShowCmd, taskRunsCmd, taskSubmitCmd)

	taskListCmd.Flags().StringVar(&listWorkflow, "workflow", "", "Filter by workflow")
	taskListCmd.Flags().StringVar(&listStatus, "status", "", "Filter by status (pending, running, completed, failed)")

	taskShowCmd.Flags().BoolVar(&showAudit, "audit", false, "Also print the audit records of the task")
	taskRunsCmd.Flags().BoolVar(&showScript, "script", false, "Print the launcher script of each run")

	taskSubmitCmd.Flags().StringVar(&taskName, "name", "", "Task name (required)")
	taskSubmitCmd.Flags().StringVar(&taskFlow, "workflow", "", "Workflow name (default from daemon config)")
	taskSubmitCmd.MarkFlagRequired("name")
}

func runTaskList(cmd *cobra.Command, args []string) error {
	var filters []string
	if listWorkflow != "" {
		filters = append(filters, "workflow="+listWorkflow)
	}
	if listStatus != "" {
		filters = append(filters, "status="+listStatus)
	}
	url := "/tasks"
	if len(filters) > 0 {
		url += "?" + strings.Join(filters, "&")
	}

	resp, err := apiGet(url)
	if err != nil {
		return err
	}

	var tasks []models.Task
	if err := json.Unmarshal(resp, &tasks); err != nil {
		return err
	}

	if len(tasks) == 0 {
		fmt.Println("No tasks found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tWORKFLOW\tNAME\tSTATUS\tEXIT\tUNIQUE ID")
	for _, t := range tasks {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n", truncateID(t.ID), t.Workflow, truncate(t.Name, 30), t.Status, t.ExitCode, t.UniqueID)
	}
	w.Flush()
	return nil
}

func runTaskShow(cmd *cobra.Command, args []string) error {
	resp, err := apiGet("/tasks/" + args[0])
	if err != nil {
		return err
	}

	var task models.Task
	if err := json.Unmarshal(resp, &task); err != nil {
		return err
	}

	fmt.Printf("ID:          %s\n", task.ID)
	fmt.Printf("Workflow:    %s\n", task.Workflow)
	fmt.Printf("Name:        %s\n", task.Name)
	fmt.Printf("Unique ID:   %s\n", task.UniqueID)
	fmt.Printf("Working Dir: %s\n", task.WorkingDir)
	fmt.Printf("Status:      %s\n", task.Status)
	fmt.Printf("Exit Code:   %d\n", task.ExitCode)
	if task.Locator != "" {
		fmt.Printf("Locator:     %s\n", task.Locator)
	}
	fmt.Printf("Command:     %s\n", task.Command)
	if len(task.Info) > 0 {
		fmt.Println("Context:")
		for k, v := range task.Info {
			fmt.Printf("  %s: %s\n", k, v)
		}
	}
	fmt.Printf("Created:     %s\n", task.CreatedAt)
	fmt.Printf("Updated:     %s\n", task.UpdatedAt)

	if showAudit {
		return printAudit(task.ID)
	}
	return nil
}

func printAudit(taskID string) error {
	resp, err := apiGet("/tasks/" + taskID + "/audit")
	if err != nil {
		return err
	}

	var entries []models.PDREntry
	if err := json.Unmarshal(resp, &entries); err != nil {
		return err
	}

	fmt.Println("Audit:")
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	for _, e := range entries {
		fmt.Fprintf(w, "  %s\t%s\t%s\t%s\n", e.Timestamp.Format("15:04:05.000"), e.Action, e.Outcome, truncate(e.Details, 80))
	}
	w.Flush()
	return nil
}

func runTaskRuns(cmd *cobra.Command, args []string) error {
	resp, err := apiGet("/tasks/" + args[0] + "/runs")
	if err != nil {
		return err
	}

	var runs []models.Run
	if err := json.Unmarshal(resp, &runs); err != nil {
		return err
	}

	if len(runs) == 0 {
		fmt.Println("No runs found")
		return nil
	}

	for i, run := range runs {
		fmt.Printf("=== Run %d ===\n", i+1)
		fmt.Printf("ID:        %s\n", run.ID)
		fmt.Printf("Exit Code: %d\n", run.ExitCode)
		fmt.Printf("Started:   %s\n", run.StartedAt)
		fmt.Printf("Ended:     %s\n", run.EndedAt)
		if run.Error != "" {
			fmt.Printf("Error:     %s\n", truncate(run.Error, 200))
		}
		if showScript {
			fmt.Println("--- SCRIPT ---")
			fmt.Print(run.Script)
		}
		fmt.Println()
	}
	return nil
}

func runTaskSubmit(cmd *cobra.Command, args []string) error {
	body, status, err := apiPost("/tasks", runRequest(args))
	if err != nil {
		return err
	}

	var resp controlplane.RunResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("API error (%d): %s", status, strings.TrimSpace(string(body)))
	}
	if resp.Task != nil {
		printRunResponse(&resp)
	}
	if status >= 400 {
		if resp.ErrorKind != "" {
			return fmt.Errorf("task failed (%s): %s", resp.ErrorKind, resp.Error)
		}
		return fmt.Errorf("API error (%d): %s", status, resp.Error)
	}
	return nil
}

// --- Helpers ---

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

func truncateID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
