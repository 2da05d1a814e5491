package store

import (
	"context"
	"time"

	"github.com/seantiz/relay/internal/model"
)

// ExecutionRecord is the durable summary of one execution, folded from its
// lifecycle events.
type ExecutionRecord struct {
	ID         string     `json:"execution_id"`
	WorkflowID string     `json:"workflow_id"`
	InvokerID  string     `json:"invoker_id"`
	Status     string     `json:"status"`
	Error      string     `json:"error,omitempty"`
	Progress   float64    `json:"progress"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	DurationMS *int64     `json:"duration_ms,omitempty"`
}

// HistoryStats holds aggregate statistics over recorded executions.
type HistoryStats struct {
	Total           int            `json:"total"`
	CountByStatus   map[string]int `json:"count_by_status"`
	CountByWorkflow map[string]int `json:"count_by_workflow"`
	AvgDurationMS   float64        `json:"avg_duration_ms"`
}

// Store persists execution history. It outlives the engine's in-memory
// registry.
type Store interface {
	RecordEvent(ctx context.Context, ev model.Event) error
	GetExecution(ctx context.Context, id string) (*ExecutionRecord, error)
	ListExecutions(ctx context.Context, workflowID string, limit, offset int) ([]*ExecutionRecord, int, error)
	ListEvents(ctx context.Context, executionID string) ([]model.Event, error)
	GetStats(ctx context.Context) (*HistoryStats, error)
	Close() error
}
