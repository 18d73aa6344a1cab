// Package store provides SQLite-backed persistence for wfsandbox.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fentz26/wfsandbox/internal/models"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// ErrDuplicateUniqueID indicates two tasks were given the same unique id.
var ErrDuplicateUniqueID = fmt.Errorf("unique id already registered")

// Store provides access to the wfsandbox SQLite database.
type Store struct {
	db *sql.DB
}

// New creates a new Store and runs migrations.
func New(dbPath string) (*Store, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	// Open with WAL mode for better concurrency
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate runs idempotent schema migrations.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS tasks (
		id TEXT PRIMARY KEY,
		unique_id TEXT NOT NULL UNIQUE,
		workflow TEXT NOT NULL,
		name TEXT NOT NULL,
		command TEXT NOT NULL,
		scratch_root TEXT NOT NULL,
		working_dir TEXT NOT NULL,
		info TEXT,
		status TEXT NOT NULL DEFAULT 'pending',
		exit_code INTEGER NOT NULL DEFAULT 0,
		locator TEXT,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		task_id TEXT NOT NULL,
		script TEXT NOT NULL,
		exit_code INTEGER,
		error_kind TEXT,
		error TEXT,
		started_at DATETIME NOT NULL,
		ended_at DATETIME,
		FOREIGN KEY (task_id) REFERENCES tasks(id)
	);

	CREATE TABLE IF NOT EXISTS pdr (
		id TEXT PRIMARY KEY,
		action TEXT NOT NULL,
		inputs_hash TEXT NOT NULL,
		outcome TEXT NOT NULL,
		task_id TEXT,
		details TEXT,
		timestamp DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_tasks_workflow_name ON tasks(workflow, name);
	CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);
	CREATE INDEX IF NOT EXISTS idx_runs_task_id ON runs(task_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// --- Task Operations ---

const taskColumns = `id, unique_id, workflow, name, command, scratch_root, working_dir, info, status, exit_code, locator, created_at, updated_at`

// CreateTask registers a task whose sandbox has been created.
func (s *Store) CreateTask(task *models.Task) error {
	now := time.Now().UTC()
	if task.ID == "" {
		task.ID = uuid.New().String()
	}
	if task.Status == "" {
		task.Status = models.TaskStatusPending
	}
	task.CreatedAt = now
	task.UpdatedAt = now

	info, _ := json.Marshal(task.Info)
	_, err := s.db.Exec(
		`INSERT INTO tasks (`+taskColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		task.ID, task.UniqueID, task.Workflow, task.Name, task.Command, task.ScratchRoot, task.WorkingDir,
		string(info), task.Status, task.ExitCode, task.Locator, task.CreatedAt, task.UpdatedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return fmt.Errorf("%w: %s", ErrDuplicateUniqueID, task.UniqueID)
		}
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

// UpdateTaskResult records the outcome of a task.
func (s *Store) UpdateTaskResult(task *models.Task) error {
	task.UpdatedAt = time.Now().UTC()
	info, _ := json.Marshal(task.Info)
	_, err := s.db.Exec(
		`UPDATE tasks SET status = ?, exit_code = ?, locator = ?, info = ?, updated_at = ? WHERE id = ?`,
		task.Status, task.ExitCode, task.Locator, string(info), task.UpdatedAt, task.ID,
	)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	return nil
}

// GetTask retrieves a task by ID or unique id.
func (s *Store) GetTask(id string) (*models.Task, error) {
	row := s.db.QueryRow(`SELECT `+taskColumns+` FROM tasks WHERE id = ? OR unique_id = ?`, id, id)
	task, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query task: %w", err)
	}
	return task, nil
}

// ListTasks returns tasks, optionally filtered by workflow and status.
func (s *Store) ListTasks(workflow, status string) ([]models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks`
	var where []string
	var args []interface{}

	if workflow != "" {
		where = append(where, `workflow = ?`)
		args = append(args, workflow)
	}
	if status != "" {
		where = append(where, `status = ?`)
		args = append(args, status)
	}
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []models.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, *task)
	}
	return tasks, rows.Err()
}

// FindTaskByName returns the latest completed task of workflow whose name or
// unique id is name. It returns nil, nil when there is none.
func (s *Store) FindTaskByName(ctx context.Context, workflow, name string) (*models.Task, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM tasks
		 WHERE workflow = ? AND (name = ? OR unique_id = ?) AND status = ?
		 ORDER BY rowid DESC LIMIT 1`,
		workflow, name, name, models.TaskStatusCompleted,
	)
	task, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find task: %w", err)
	}
	return task, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanTask(row scanner) (*models.Task, error) {
	task := &models.Task{}
	var info, locator sql.NullString
	err := row.Scan(&task.ID, &task.UniqueID, &task.Workflow, &task.Name, &task.Command, &task.ScratchRoot,
		&task.WorkingDir, &info, &task.Status, &task.ExitCode, &locator, &task.CreatedAt, &task.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if info.Valid && info.String != "" && info.String != "null" {
		json.Unmarshal([]byte(info.String), &task.Info)
	}
	if locator.Valid {
		task.Locator = locator.String
	}
	return task, nil
}

// --- Run Operations ---

// CreateRun inserts a new run record.
func (s *Store) CreateRun(taskID, script string) (*models.Run, error) {
	run := &models.Run{
		ID:        uuid.New().String(),
		TaskID:    taskID,
		Script:    script,
		StartedAt: time.Now().UTC(),
	}

	_, err := s.db.Exec(
		`INSERT INTO runs (id, task_id, script, started_at) VALUES (?, ?, ?, ?)`,
		run.ID, run.TaskID, run.Script, run.StartedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert run: %w", err)
	}
	return run, nil
}

// FinishRun records the result of a run.
func (s *Store) FinishRun(id string, exitCode int, errorKind, errMsg string) error {
	_, err := s.db.Exec(
		`UPDATE runs SET exit_code = ?, error_kind = ?, error = ?, ended_at = ? WHERE id = ?`,
		exitCode, errorKind, errMsg, time.Now().UTC(), id,
	)
	return err
}

// GetRunsForTask returns all runs for a task.
func (s *Store) GetRunsForTask(taskID string) ([]models.Run, error) {
	rows, err := s.db.Query(
		`SELECT id, task_id, script, exit_code, error_kind, error, started_at, ended_at FROM runs WHERE task_id = ? ORDER BY started_at DESC`,
		taskID,
	)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []models.Run
	for rows.Next() {
		var run models.Run
		var endedAt sql.NullTime
		var exitCode sql.NullInt64
		var errorKind, errMsg sql.NullString

		if err := rows.Scan(&run.ID, &run.TaskID, &run.Script, &exitCode, &errorKind, &errMsg, &run.StartedAt, &endedAt); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if exitCode.Valid {
			run.ExitCode = int(exitCode.Int64)
		}
		if errorKind.Valid {
			run.ErrorKind = errorKind.String
		}
		if errMsg.Valid {
			run.Error = errMsg.String
		}
		if endedAt.Valid {
			run.EndedAt = endedAt.Time
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// --- PDR Operations ---

// WritePDR writes a Process Decision Record.
func (s *Store) WritePDR(action, inputsHash, outcome, taskID, details string) (*models.PDREntry, error) {
	pdr := &models.PDREntry{
		ID:         uuid.New().String(),
		Action:     action,
		InputsHash: inputsHash,
		Outcome:    outcome,
		TaskID:     taskID,
		Details:    details,
		Timestamp:  time.Now().UTC(),
	}

	_, err := s.db.Exec(
		`INSERT INTO pdr (id, action, inputs_hash, outcome, task_id, details, timestamp) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		pdr.ID, pdr.Action, pdr.InputsHash, pdr.Outcome, pdr.TaskID, pdr.Details, pdr.Timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert pdr: %w", err)
	}
	return pdr, nil
}

// ListPDR returns the audit records of a task, oldest first.
func (s *Store) ListPDR(taskID string) ([]models.PDREntry, error) {
	rows, err := s.db.Query(
		`SELECT id, action, inputs_hash, outcome, task_id, details, timestamp FROM pdr WHERE task_id = ? ORDER BY timestamp ASC, rowid ASC`,
		taskID,
	)
	if err != nil {
		return nil, fmt.Errorf("query pdr: %w", err)
	}
	defer rows.Close()

	var entries []models.PDREntry
	for rows.Next() {
		var e models.PDREntry
		var tid, details sql.NullString
		if err := rows.Scan(&e.ID, &e.Action, &e.InputsHash, &e.Outcome, &tid, &details, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan pdr: %w", err)
		}
		e.TaskID = tid.String
		e.Details = details.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
