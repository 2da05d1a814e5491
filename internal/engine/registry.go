package engine

import (
	"sort"
	"sync"
	"time"

	"github.com/seantiz/relay/internal/model"
)

// ExecutionFilter narrows ListExecutions. Zero fields match everything.
type ExecutionFilter struct {
	WorkflowID string
	Status     model.ExecutionStatus
}

func (f ExecutionFilter) match(e *model.WorkflowExecution) bool {
	if f.WorkflowID != "" && e.WorkflowID != f.WorkflowID {
		return false
	}
	if f.Status != "" && e.Status != f.Status {
		return false
	}
	return true
}

// executions is the in-memory table of in-flight and recently finished runs.
type executions struct {
	mu   sync.RWMutex
	runs map[string]*run
}

func newExecutions() *executions {
	return &executions{runs: make(map[string]*run)}
}

func (x *executions) put(r *run) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.runs[r.id()] = r
}

func (x *executions) get(id string) (*run, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	r, ok := x.runs[id]
	return r, ok
}

// list returns snapshots of matching executions, newest first.
func (x *executions) list(f ExecutionFilter) []*model.WorkflowExecution {
	x.mu.RLock()
	runs := make([]*run, 0, len(x.runs))
	for _, r := range x.runs {
		runs = append(runs, r)
	}
	x.mu.RUnlock()

	out := make([]*model.WorkflowExecution, 0, len(runs))
	for _, r := range runs {
		snap := r.snapshot()
		if f.match(snap) {
			out = append(out, snap)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	return out
}

// sweep evicts terminal executions that completed before now-retention and
// returns their ids.
func (x *executions) sweep(now time.Time, retention time.Duration) []string {
	cutoff := now.Add(-retention)

	x.mu.Lock()
	defer x.mu.Unlock()

	var evicted []string
	for id, r := range x.runs {
		r.mu.Lock()
		expired := r.exec.Status.Terminal() && r.exec.CompletedAt != nil && r.exec.CompletedAt.Before(cutoff)
		r.mu.Unlock()
		if expired {
			delete(x.runs, id)
			evicted = append(evicted, id)
		}
	}
	return evicted
}

func (x *executions) len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.runs)
}
