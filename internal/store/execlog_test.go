package store

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

const executionsSchema = `
CREATE TABLE executions (
    execution_id      TEXT PRIMARY KEY,
    flow_id           TEXT NOT NULL,
    stable_device_id  TEXT NOT NULL,
    started_at        TEXT NOT NULL,
    completed_at      TEXT,
    status            TEXT NOT NULL,
    steps_total        INTEGER NOT NULL DEFAULT 0,
    steps_completed    INTEGER NOT NULL DEFAULT 0,
    steps_failed       INTEGER NOT NULL DEFAULT 0,
    steps_skipped       INTEGER NOT NULL DEFAULT 0,
    error_message     TEXT,
    learned_screens   TEXT,
    duration_ms       INTEGER
);`

func newTestExecutionLog(t *testing.T) *ExecutionLog {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("sql.Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if _, err := db.Exec(executionsSchema); err != nil {
		t.Fatalf("creating executions schema: %v", err)
	}
	return NewExecutionLog(db)
}

func TestExecutionLog_StartAndFinish(t *testing.T) {
	log := newTestExecutionLog(t)
	ctx := context.Background()

	executionID, err := log.Start(ctx, "flow-1", "sdid-1", 5)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if executionID == "" {
		t.Fatal("expected non-empty execution id")
	}

	err = log.Finish(ctx, executionID, Execution{
		Status:         "success",
		StepsCompleted: 5,
		DurationMs:     1200,
	})
	if err != nil {
		t.Fatalf("Finish() error = %v", err)
	}

	results, err := log.List(ctx, ExecutionFilter{FlowID: "flow-1"})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("List() returned %d rows, want 1", len(results))
	}
	if results[0].Status != "success" || results[0].StepsCompleted != 5 {
		t.Errorf("result = %+v, want status=success steps_completed=5", results[0])
	}
	if results[0].CompletedAt == nil {
		t.Error("expected CompletedAt to be set after Finish")
	}
}

func TestExecutionLog_ListFiltersByDevice(t *testing.T) {
	log := newTestExecutionLog(t)
	ctx := context.Background()

	id1, _ := log.Start(ctx, "flow-1", "sdid-a", 1)
	id2, _ := log.Start(ctx, "flow-1", "sdid-b", 1)
	_ = log.Finish(ctx, id1, Execution{Status: "success"})
	_ = log.Finish(ctx, id2, Execution{Status: "success"})

	results, err := log.List(ctx, ExecutionFilter{StableDeviceID: "sdid-a"})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(results) != 1 || results[0].StableDeviceID != "sdid-a" {
		t.Errorf("results = %+v, want exactly one row for sdid-a", results)
	}
}

func TestExecutionLog_FinishRecordsError(t *testing.T) {
	log := newTestExecutionLog(t)
	ctx := context.Background()

	executionID, _ := log.Start(ctx, "flow-1", "sdid-1", 3)
	if err := log.Finish(ctx, executionID, Execution{
		Status:       "failed",
		StepsFailed:  1,
		ErrorMessage: "element not found: resource_id=com.app:id/missing",
	}); err != nil {
		t.Fatalf("Finish() error = %v", err)
	}

	results, err := log.List(ctx, ExecutionFilter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if results[0].ErrorMessage == "" {
		t.Error("expected error_message to be persisted")
	}
}
