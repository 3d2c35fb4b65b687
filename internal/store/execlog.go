package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Execution is one append-only record of a flow run, including per-step
// outcome counters and, when Learn Mode produced new navigation data, the
// learned-screens payload as opaque JSON.
type Execution struct {
	ExecutionID    string
	FlowID         string
	StableDeviceID string
	StartedAt      time.Time
	CompletedAt    *time.Time
	Status         string // running, success, failed, aborted
	StepsTotal     int
	StepsCompleted int
	StepsFailed    int
	StepsSkipped   int
	ErrorMessage   string
	LearnedScreens string // raw JSON, nil/empty when Learn Mode was off
	DurationMs     int64
}

// ExecutionFilter controls which executions ListExecutions returns.
type ExecutionFilter struct {
	FlowID         string
	StableDeviceID string
	Limit          int
	Offset         int
}

// ExecutionLog persists Execution records to SQLite (see the "executions"
// migration). Unlike sensors/actions/flows, execution history is
// append-mostly and queried by range, which fits a relational table far
// better than a per-device JSON blob.
type ExecutionLog struct {
	db *sql.DB
}

// NewExecutionLog wraps an already-open, already-migrated database handle.
func NewExecutionLog(db *sql.DB) *ExecutionLog {
	return &ExecutionLog{db: db}
}

// Start records the beginning of a flow execution and returns its generated
// execution_id.
func (l *ExecutionLog) Start(ctx context.Context, flowID, sdid string, stepsTotal int) (string, error) {
	executionID := "exec-" + uuid.NewString()[:12]
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO executions (execution_id, flow_id, stable_device_id, started_at, status, steps_total)
		 VALUES (?, ?, ?, ?, 'running', ?)`,
		executionID, flowID, sdid, time.Now().UTC().Format(time.RFC3339), stepsTotal,
	)
	if err != nil {
		return "", fmt.Errorf("starting execution record: %w", err)
	}
	return executionID, nil
}

// Finish completes an execution record with its final outcome.
func (l *ExecutionLog) Finish(ctx context.Context, executionID string, result Execution) error {
	completedAt := time.Now().UTC()
	_, err := l.db.ExecContext(ctx,
		`UPDATE executions SET completed_at = ?, status = ?, steps_completed = ?,
		 steps_failed = ?, steps_skipped = ?, error_message = ?, learned_screens = ?, duration_ms = ?
		 WHERE execution_id = ?`,
		completedAt.Format(time.RFC3339), result.Status, result.StepsCompleted,
		result.StepsFailed, result.StepsSkipped, nullableString(result.ErrorMessage),
		nullableString(result.LearnedScreens), result.DurationMs, executionID,
	)
	if err != nil {
		return fmt.Errorf("finishing execution record %s: %w", executionID, err)
	}
	return nil
}

// List returns executions matching filter, most recent first.
func (l *ExecutionLog) List(ctx context.Context, filter ExecutionFilter) ([]Execution, error) {
	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	if filter.Limit > 200 {
		filter.Limit = 200
	}

	query := `SELECT execution_id, flow_id, stable_device_id, started_at, completed_at, status,
	 steps_total, steps_completed, steps_failed, steps_skipped, error_message, learned_screens, duration_ms
	 FROM executions WHERE 1=1`
	var args []any
	if filter.FlowID != "" {
		query += " AND flow_id = ?"
		args = append(args, filter.FlowID)
	}
	if filter.StableDeviceID != "" {
		query += " AND stable_device_id = ?"
		args = append(args, filter.StableDeviceID)
	}
	query += " ORDER BY started_at DESC LIMIT ? OFFSET ?"
	args = append(args, filter.Limit, filter.Offset)

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying executions: %w", err)
	}
	defer rows.Close()

	var out []Execution
	for rows.Next() {
		var (
			e                                    Execution
			startedAt                            string
			completedAt, errMsg, learnedScreens  sql.NullString
			durationMs                           sql.NullInt64
		)
		if err := rows.Scan(&e.ExecutionID, &e.FlowID, &e.StableDeviceID, &startedAt, &completedAt,
			&e.Status, &e.StepsTotal, &e.StepsCompleted, &e.StepsFailed, &e.StepsSkipped,
			&errMsg, &learnedScreens, &durationMs); err != nil {
			return nil, fmt.Errorf("scanning execution row: %w", err)
		}

		t, err := time.Parse(time.RFC3339, startedAt)
		if err != nil {
			return nil, fmt.Errorf("parsing started_at %q: %w", startedAt, err)
		}
		e.StartedAt = t

		if completedAt.Valid {
			ct, err := time.Parse(time.RFC3339, completedAt.String)
			if err == nil {
				e.CompletedAt = &ct
			}
		}
		e.ErrorMessage = errMsg.String
		e.LearnedScreens = learnedScreens.String
		e.DurationMs = durationMs.Int64

		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating executions: %w", err)
	}
	return out, nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
