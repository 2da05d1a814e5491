package engine

import (
	"sync"
	"time"

	"github.com/seantiz/relay/internal/model"
	"github.com/seantiz/relay/internal/variables"
)

// cancelledByInvoker is recorded on steps that were in flight when their
// execution was cancelled.
const cancelledByInvoker = "cancelled by invoker"

// run is the mutable state of one execution. The execution record is guarded
// by mu; the variable store carries its own lock.
type run struct {
	mu   sync.Mutex
	exec *model.WorkflowExecution

	def  model.WorkflowDefinition
	vars *variables.Store

	// done is closed when the execution is cancelled, waking retry sleeps.
	done     chan struct{}
	doneOnce sync.Once
}

func newRun(def model.WorkflowDefinition, invokerID string, initial, metadata map[string]any) *run {
	steps := make(map[string]*model.StepExecution, len(def.Steps))
	id := model.NewID()
	for _, s := range def.Steps {
		steps[s.ID] = &model.StepExecution{
			StepID:      s.ID,
			ExecutionID: id,
			Status:      model.StepPending,
		}
	}
	return &run{
		exec: &model.WorkflowExecution{
			ID:             id,
			WorkflowID:     def.ID,
			InvokerID:      invokerID,
			Status:         model.ExecutionPending,
			StartedAt:      time.Now().UTC(),
			StepExecutions: steps,
			Metadata:       model.CloneMap(metadata),
		},
		def:  def,
		vars: variables.New(def.Variables, initial),
		done: make(chan struct{}),
	}
}

func (r *run) id() string { return r.exec.ID }

// snapshot returns a deep copy of the execution with the current variables.
func (r *run) snapshot() *model.WorkflowExecution {
	r.mu.Lock()
	clone := r.exec.Clone()
	r.mu.Unlock()
	clone.Variables = r.vars.Snapshot()
	return clone
}

func (r *run) stepStatuses() map[string]model.StepStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.exec.StepStatuses()
}

func (r *run) cancelled() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}

// transition moves the execution to status if the move is legal and applies
// the terminal bookkeeping. It reports whether the move happened.
func (r *run) transition(status model.ExecutionStatus, errMsg string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !model.ValidTransition(r.exec.Status, status) {
		return false
	}
	r.exec.Status = status
	if status.Terminal() {
		now := time.Now().UTC()
		r.exec.CompletedAt = &now
		r.exec.ErrorMessage = errMsg
		r.exec.Progress = r.progressLocked()
		if status == model.ExecutionCompleted {
			r.exec.Progress = 100
		}
	}
	return true
}

// cancel marks a running execution Cancelled and fails its in-flight steps.
// It reports false when the execution is not running.
func (r *run) cancel() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.exec.Status != model.ExecutionRunning {
		return false
	}
	now := time.Now().UTC()
	r.exec.Status = model.ExecutionCancelled
	r.exec.CompletedAt = &now
	for _, se := range r.exec.StepExecutions {
		if se.Status == model.StepRunning || se.Status == model.StepRetrying {
			se.Status = model.StepFailed
			se.ErrorMessage = cancelledByInvoker
			se.CompletedAt = &now
			if se.StartedAt != nil {
				se.DurationMS = now.Sub(*se.StartedAt).Milliseconds()
			}
		}
	}
	r.exec.Progress = r.progressLocked()
	r.doneOnce.Do(func() { close(r.done) })
	return true
}

// updateStep applies fn to a step if it may move to status. Updates that would
// overwrite a step settled by cancellation are rejected, and no step starts
// once the execution has left Running.
func (r *run) updateStep(stepID string, status model.StepStatus, fn func(se *model.StepExecution)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	se, ok := r.exec.StepExecutions[stepID]
	if !ok || !model.ValidStepTransition(se.Status, status) {
		return false
	}
	if status == model.StepRunning && r.exec.Status != model.ExecutionRunning {
		return false
	}
	se.Status = status
	if fn != nil {
		fn(se)
	}
	if status.Terminal() {
		r.exec.Progress = r.progressLocked()
	}
	return true
}

// attempt counts a handler invocation for a running step. It reports false
// when the step is no longer running.
func (r *run) attempt(stepID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	se, ok := r.exec.StepExecutions[stepID]
	if !ok || se.Status != model.StepRunning {
		return false
	}
	se.Attempts++
	return true
}

// step returns a copy of one step execution.
func (r *run) step(stepID string) model.StepExecution {
	r.mu.Lock()
	defer r.mu.Unlock()
	if se, ok := r.exec.StepExecutions[stepID]; ok {
		return *se
	}
	return model.StepExecution{}
}

func (r *run) progressLocked() float64 {
	total := len(r.exec.StepExecutions)
	if total == 0 {
		return 100
	}
	settled := 0
	for _, se := range r.exec.StepExecutions {
		if se.Status.Terminal() {
			settled++
		}
	}
	return float64(settled) / float64(total) * 100
}

// sleep waits for d or until the execution is cancelled. It reports whether
// the full duration elapsed.
func (r *run) sleep(d time.Duration) bool {
	if d <= 0 {
		return !r.cancelled()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-r.done:
		return false
	}
}

// event builds a lifecycle event stamped with the execution's identity.
func (r *run) event(kind model.EventKind) model.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return model.Event{
		ID:          model.NewID(),
		Kind:        kind,
		ExecutionID: r.exec.ID,
		WorkflowID:  r.exec.WorkflowID,
		InvokerID:   r.exec.InvokerID,
		Status:      string(r.exec.Status),
		Error:       r.exec.ErrorMessage,
		Progress:    r.exec.Progress,
		Timestamp:   time.Now().UTC(),
	}
}
