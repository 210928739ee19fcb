package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/planrun/planrun/internal/graph"
)

// CreateRun inserts the run row and one row per task, in a single
// transaction so a run never appears without its tasks.
func (s *SQLiteStore) CreateRun(ctx context.Context, runID, planPath string, tasks []*graph.Task) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, plan_path, total)
		VALUES (?, ?, ?)
	`, runID, planPath, len(tasks))
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	for _, t := range tasks {
		optional := 0
		if t.Optional {
			optional = 1
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO run_tasks (run_id, task_id, kind, resource_key, depends_on, optional, status, reason)
			VALUES (?, ?, ?, ?, ?, ?, ?, '')
		`, runID, t.ID, t.Kind.String(), t.ResourceKey, strings.Join(t.DependsOn, ","), optional, int(graph.StatusPending))
		if err != nil {
			return fmt.Errorf("failed to insert task %q: %w", t.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// RecordTransition appends the transition and updates the task's current
// status in run_tasks.
func (s *SQLiteStore) RecordTransition(ctx context.Context, runID, taskID string, from, to graph.Status, reason string) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO transitions (run_id, task_id, from_status, to_status, reason)
		VALUES (?, ?, ?, ?, ?)
	`, runID, taskID, int(from), int(to), reason)
	if err != nil {
		return fmt.Errorf("failed to insert transition: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE run_tasks SET status = ?, reason = ? WHERE run_id = ? AND task_id = ?
	`, int(to), reason, runID, taskID)
	if err != nil {
		return fmt.Errorf("failed to update task status: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// FinishRun stamps the run's end time and final outcome.
func (s *SQLiteStore) FinishRun(ctx context.Context, runID string, success, cancelled bool) error {
	successInt, cancelledInt := 0, 0
	if success {
		successInt = 1
	}
	if cancelled {
		cancelledInt = 1
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE runs
		SET finished_at = CURRENT_TIMESTAMP, success = ?, cancelled = ?
		WHERE id = ?
	`, successInt, cancelledInt, runID)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("run not found: %s", runID)
	}
	return nil
}

// ListRuns returns the most recent runs, newest first. limit <= 0 means
// no limit.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	query := `
		SELECT id, COALESCE(plan_path, ''), started_at, finished_at, success, cancelled, total
		FROM runs
		ORDER BY started_at DESC
	`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		var r RunRecord
		var finished sql.NullTime
		var success, cancelled int
		if err := rows.Scan(&r.ID, &r.PlanPath, &r.StartedAt, &finished, &success, &cancelled, &r.Total); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		if finished.Valid {
			t := finished.Time
			r.FinishedAt = &t
		}
		r.Success = success != 0
		r.Cancelled = cancelled != 0
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}
	return runs, nil
}

// RunTasks returns the persisted task states for a run.
func (s *SQLiteStore) RunTasks(ctx context.Context, runID string) ([]TaskRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT task_id, kind, COALESCE(resource_key, ''), optional, status, COALESCE(reason, '')
		FROM run_tasks
		WHERE run_id = ?
		ORDER BY task_id
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query run tasks: %w", err)
	}
	defer rows.Close()

	var tasks []TaskRecord
	for rows.Next() {
		var t TaskRecord
		var kind string
		var optional, status int
		if err := rows.Scan(&t.TaskID, &kind, &t.ResourceKey, &optional, &status, &t.Reason); err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		k, err := graph.ParseKind(kind)
		if err != nil {
			return nil, fmt.Errorf("task %q: %w", t.TaskID, err)
		}
		t.Kind = k
		t.Optional = optional != 0
		t.Status = graph.Status(status)
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tasks: %w", err)
	}
	return tasks, nil
}
