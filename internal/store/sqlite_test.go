package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/seantiz/relay/internal/model"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func makeEvent(execID, workflowID string, kind model.EventKind, status string, at time.Time) model.Event {
	return model.Event{
		ID:          model.NewID(),
		Kind:        kind,
		ExecutionID: execID,
		WorkflowID:  workflowID,
		InvokerID:   "alice",
		Status:      status,
		Timestamp:   at,
	}
}

// recordLifecycle records started, one step and a terminal event for a new
// execution and returns its id.
func recordLifecycle(t *testing.T, s *SQLiteStore, workflowID string, terminal model.EventKind, status model.ExecutionStatus, start time.Time, d time.Duration) string {
	t.Helper()
	ctx := context.Background()
	id := model.NewID()

	started := makeEvent(id, workflowID, model.EventExecutionStarted, string(model.ExecutionRunning), start)
	step := makeEvent(id, workflowID, model.EventStepCompleted, string(model.StepCompleted), start.Add(d/2))
	step.StepID = "s1"
	step.Progress = 50
	end := makeEvent(id, workflowID, terminal, string(status), start.Add(d))
	end.Progress = 100

	for _, ev := range []model.Event{started, step, end} {
		if err := s.RecordEvent(ctx, ev); err != nil {
			t.Fatalf("RecordEvent %s: %v", ev.Kind, err)
		}
	}
	return id
}

func TestRecordEventBuildsExecutionSummary(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	start := time.Now().UTC().Truncate(time.Millisecond)

	id := recordLifecycle(t, s, "wf", model.EventExecutionCompleted, model.ExecutionCompleted, start, 250*time.Millisecond)

	got, err := s.GetExecution(ctx, id)
	if err != nil {
		t.Fatalf("GetExecution: %v", err)
	}
	if got.Status != string(model.ExecutionCompleted) {
		t.Errorf("Status = %q, want completed", got.Status)
	}
	if got.WorkflowID != "wf" || got.InvokerID != "alice" {
		t.Errorf("identity = %q/%q, want wf/alice", got.WorkflowID, got.InvokerID)
	}
	if got.Progress != 100 {
		t.Errorf("Progress = %f, want 100", got.Progress)
	}
	if got.FinishedAt == nil {
		t.Fatal("FinishedAt is nil")
	}
	if got.DurationMS == nil || *got.DurationMS != 250 {
		t.Errorf("DurationMS = %v, want 250", got.DurationMS)
	}
	if !got.StartedAt.Equal(start) {
		t.Errorf("StartedAt = %v, want %v", got.StartedAt, start)
	}
}

func TestGetExecutionNotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetExecution(context.Background(), "nonexistent")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("GetExecution error = %v, want ErrNotFound", err)
	}
}

func TestRecordEventIgnoresRedelivery(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ev := makeEvent(model.NewID(), "wf", model.EventExecutionStarted, string(model.ExecutionRunning), time.Now().UTC())

	for range 2 {
		if err := s.RecordEvent(ctx, ev); err != nil {
			t.Fatalf("RecordEvent: %v", err)
		}
	}

	events, err := s.ListEvents(ctx, ev.ExecutionID)
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if len(events) != 1 {
		t.Errorf("got %d events, want 1", len(events))
	}
}

func TestStepEventAfterTerminalKeepsStatus(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()
	id := model.NewID()

	for _, ev := range []model.Event{
		makeEvent(id, "wf", model.EventExecutionStarted, string(model.ExecutionRunning), now),
		makeEvent(id, "wf", model.EventExecutionCancelled, string(model.ExecutionCancelled), now.Add(time.Second)),
		makeEvent(id, "wf", model.EventStepCompleted, string(model.StepFailed), now.Add(2*time.Second)),
	} {
		if err := s.RecordEvent(ctx, ev); err != nil {
			t.Fatalf("RecordEvent: %v", err)
		}
	}

	got, err := s.GetExecution(ctx, id)
	if err != nil {
		t.Fatalf("GetExecution: %v", err)
	}
	if got.Status != string(model.ExecutionCancelled) {
		t.Errorf("Status = %q, want cancelled", got.Status)
	}
}

func TestTerminalEventWithoutStart(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ev := makeEvent(model.NewID(), "wf", model.EventExecutionFailed, string(model.ExecutionFailed), time.Now().UTC())
	ev.Error = "engine stopped"

	if err := s.RecordEvent(ctx, ev); err != nil {
		t.Fatalf("RecordEvent: %v", err)
	}
	got, err := s.GetExecution(ctx, ev.ExecutionID)
	if err != nil {
		t.Fatalf("GetExecution: %v", err)
	}
	if got.Error != "engine stopped" {
		t.Errorf("Error = %q, want engine stopped", got.Error)
	}
	if got.DurationMS == nil || *got.DurationMS != 0 {
		t.Errorf("DurationMS = %v, want 0", got.DurationMS)
	}
}

func TestListEventsOrderingAndIsolation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	start := time.Now().UTC()

	id1 := recordLifecycle(t, s, "wf", model.EventExecutionCompleted, model.ExecutionCompleted, start, time.Second)
	recordLifecycle(t, s, "wf", model.EventExecutionFailed, model.ExecutionFailed, start, time.Second)

	events, err := s.ListEvents(ctx, id1)
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	want := []model.EventKind{model.EventExecutionStarted, model.EventStepCompleted, model.EventExecutionCompleted}
	if len(events) != len(want) {
		t.Fatalf("got %d events, want %d", len(events), len(want))
	}
	for i, ev := range events {
		if ev.Kind != want[i] {
			t.Errorf("events[%d].Kind = %q, want %q", i, ev.Kind, want[i])
		}
		if ev.ExecutionID != id1 {
			t.Errorf("events[%d] belongs to %q", i, ev.ExecutionID)
		}
		if ev.InvokerID != "alice" {
			t.Errorf("events[%d].InvokerID = %q, want alice", i, ev.InvokerID)
		}
	}
	if events[1].StepID != "s1" {
		t.Errorf("step event StepID = %q, want s1", events[1].StepID)
	}
}

func TestListEventsEmpty(t *testing.T) {
	s := newTestStore(t)

	events, err := s.ListEvents(context.Background(), "nothing")
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if events == nil || len(events) != 0 {
		t.Errorf("events = %v, want empty non-nil slice", events)
	}
}

func TestListExecutionsPaginationAndFilter(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Hour)

	var ids []string
	for i := range 5 {
		wf := "a"
		if i%2 == 1 {
			wf = "b"
		}
		ids = append(ids, recordLifecycle(t, s, wf, model.EventExecutionCompleted, model.ExecutionCompleted, base.Add(time.Duration(i)*time.Minute), time.Second))
	}

	page, total, err := s.ListExecutions(ctx, "", 2, 0)
	if err != nil {
		t.Fatalf("ListExecutions: %v", err)
	}
	if total != 5 {
		t.Errorf("total = %d, want 5", total)
	}
	if len(page) != 2 {
		t.Fatalf("page size = %d, want 2", len(page))
	}
	if page[0].ID != ids[4] || page[1].ID != ids[3] {
		t.Errorf("page = [%s %s], want newest first [%s %s]", page[0].ID, page[1].ID, ids[4], ids[3])
	}

	filtered, total, err := s.ListExecutions(ctx, "b", 10, 0)
	if err != nil {
		t.Fatalf("ListExecutions filtered: %v", err)
	}
	if total != 2 || len(filtered) != 2 {
		t.Errorf("filtered total=%d len=%d, want 2/2", total, len(filtered))
	}
	for _, r := range filtered {
		if r.WorkflowID != "b" {
			t.Errorf("filtered record has workflow %q", r.WorkflowID)
		}
	}
}

func TestGetStats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	start := time.Now().UTC()

	recordLifecycle(t, s, "a", model.EventExecutionCompleted, model.ExecutionCompleted, start, 100*time.Millisecond)
	recordLifecycle(t, s, "a", model.EventExecutionCompleted, model.ExecutionCompleted, start, 200*time.Millisecond)
	recordLifecycle(t, s, "b", model.EventExecutionFailed, model.ExecutionFailed, start, 5*time.Second)
	recordLifecycle(t, s, "b", model.EventExecutionCancelled, model.ExecutionCancelled, start, time.Second)

	stats, err := s.GetStats(ctx)
	if err != nil {
		t.Fatalf("GetStats: %v", err)
	}
	if stats.Total != 4 {
		t.Errorf("Total = %d, want 4", stats.Total)
	}
	if stats.CountByStatus[string(model.ExecutionCompleted)] != 2 {
		t.Errorf("completed count = %d, want 2", stats.CountByStatus[string(model.ExecutionCompleted)])
	}
	if stats.CountByStatus[string(model.ExecutionCancelled)] != 1 {
		t.Errorf("cancelled count = %d, want 1", stats.CountByStatus[string(model.ExecutionCancelled)])
	}
	if stats.CountByWorkflow["a"] != 2 || stats.CountByWorkflow["b"] != 2 {
		t.Errorf("CountByWorkflow = %v, want a:2 b:2", stats.CountByWorkflow)
	}
	if stats.AvgDurationMS != 150 {
		t.Errorf("AvgDurationMS = %f, want 150", stats.AvgDurationMS)
	}
}

func TestGetStatsEmpty(t *testing.T) {
	s := newTestStore(t)

	stats, err := s.GetStats(context.Background())
	if err != nil {
		t.Fatalf("GetStats: %v", err)
	}
	if stats.Total != 0 {
		t.Errorf("Total = %d, want 0", stats.Total)
	}
	if stats.AvgDurationMS != 0 {
		t.Errorf("AvgDurationMS = %f, want 0", stats.AvgDurationMS)
	}
}

func TestMigrationIdempotency(t *testing.T) {
	s := newTestStore(t)

	for _, stmt := range []string{createExecutionsTable, createEventsTable, createEventsIndex} {
		if _, err := s.db.Exec(stmt); err != nil {
			t.Fatalf("second migration: %v", err)
		}
	}
}
