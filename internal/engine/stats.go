package engine

import (
	"sync"
	"time"

	"github.com/seantiz/relay/internal/model"
)

// Stats holds aggregate execution counters since the engine started. They are
// not affected by registry eviction.
type Stats struct {
	TotalExecutions      int     `json:"total_executions"`
	SuccessfulExecutions int     `json:"successful_executions"`
	FailedExecutions     int     `json:"failed_executions"`
	CancelledExecutions  int     `json:"cancelled_executions"`
	ActiveExecutions     int     `json:"active_executions"`
	AvgDurationMS        float64 `json:"avg_duration_ms"`
	RegisteredWorkflows  int     `json:"registered_workflows"`
}

type counters struct {
	mu         sync.Mutex
	total      int
	successful int
	failed     int
	cancelled  int
	active     int
	// Running mean of successful execution durations.
	avgMS float64
}

func (c *counters) started() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.total++
}

func (c *counters) running(delta int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.active += delta
}

func (c *counters) finished(status model.ExecutionStatus, d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch status {
	case model.ExecutionCompleted:
		c.successful++
		c.avgMS += (float64(d.Milliseconds()) - c.avgMS) / float64(c.successful)
	case model.ExecutionFailed:
		c.failed++
	case model.ExecutionCancelled:
		c.cancelled++
	}
}

func (c *counters) snapshot() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		TotalExecutions:      c.total,
		SuccessfulExecutions: c.successful,
		FailedExecutions:     c.failed,
		CancelledExecutions:  c.cancelled,
		ActiveExecutions:     c.active,
		AvgDurationMS:        c.avgMS,
	}
}
