package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/seantiz/relay/internal/graph"
	"github.com/seantiz/relay/internal/model"
)

// execute drives one execution: pending -> running -> completed/failed.
// Cancellation may end it early from another goroutine.
func (e *Engine) execute(r *run) {
	defer e.broker.Close(r.id())

	if !r.transition(model.ExecutionRunning, "") {
		return
	}
	start := time.Now()
	e.stats.running(1)
	activeExecutions.Inc()
	defer func() {
		e.stats.running(-1)
		activeExecutions.Dec()
	}()

	log := e.logger.With("execution_id", r.id(), "workflow_id", r.def.ID)
	log.Info("execution started", "steps", len(r.def.Steps))
	e.publish(r.event(model.EventExecutionStarted))

	// A cyclic definition would leave the frontier empty forever.
	if err := graph.DetectCycle(r.def); err != nil {
		e.finish(r, model.ExecutionFailed, err.Error(), start)
		return
	}

	for wave := 1; ; wave++ {
		if r.cancelled() {
			log.Info("execution stopped after cancellation", "waves", wave-1)
			return
		}

		statuses := r.stepStatuses()
		ready := graph.ReadyFrontier(r.def, statuses)
		if len(ready) == 0 {
			if graph.AllTerminal(r.def, statuses) {
				e.finish(r, model.ExecutionCompleted, "", start)
				return
			}
			msg := fmt.Sprintf("%v: no runnable step remains", graph.ErrCyclicDependency)
			e.finish(r, model.ExecutionFailed, msg, start)
			return
		}

		log.Debug("dispatching wave", "wave", wave, "steps", ready)
		e.runWave(r, ready)

		if r.cancelled() {
			log.Info("execution stopped after cancellation", "waves", wave)
			return
		}
		if stepID, msg := haltingFailure(r, ready); stepID != "" {
			e.finish(r, model.ExecutionFailed, fmt.Sprintf("step %s failed: %s", stepID, msg), start)
			return
		}
	}
}

// runWave runs every ready step concurrently and waits for all of them.
func (e *Engine) runWave(r *run, ready []string) {
	var sem *semaphore.Weighted
	if e.cfg.MaxParallelSteps > 0 {
		sem = semaphore.NewWeighted(int64(e.cfg.MaxParallelSteps))
	}

	var wg sync.WaitGroup
	for _, id := range ready {
		step, ok := r.def.Step(id)
		if !ok {
			continue
		}
		if sem != nil {
			// Acquire only fails on context cancellation.
			_ = sem.Acquire(context.Background(), 1)
		}
		if r.cancelled() {
			if sem != nil {
				sem.Release(1)
			}
			break
		}
		wg.Go(func() {
			if sem != nil {
				defer sem.Release(1)
			}
			if e.runStep(r, step) {
				e.publishStep(r, step)
			}
		})
	}
	wg.Wait()
}

// haltingFailure returns the first step of the wave, in declaration order,
// that failed without continueOnFailure.
func haltingFailure(r *run, wave []string) (string, string) {
	for _, id := range wave {
		step, _ := r.def.Step(id)
		if step.ContinueOnFailure {
			continue
		}
		if se := r.step(id); se.Status == model.StepFailed {
			return id, se.ErrorMessage
		}
	}
	return "", ""
}

// finish moves the execution to a terminal status and publishes the matching
// event. A concurrent cancellation wins.
func (e *Engine) finish(r *run, status model.ExecutionStatus, errMsg string, start time.Time) {
	if !r.transition(status, errMsg) {
		return
	}
	elapsed := time.Since(start)
	e.stats.finished(status, elapsed)
	executionsTotal.WithLabelValues(string(status)).Inc()

	kind := model.EventExecutionCompleted
	if status == model.ExecutionFailed {
		kind = model.EventExecutionFailed
		e.logger.Warn("execution failed", "execution_id", r.id(), "workflow_id", r.def.ID, "error", errMsg, "duration_ms", elapsed.Milliseconds())
	} else {
		e.logger.Info("execution completed", "execution_id", r.id(), "workflow_id", r.def.ID, "duration_ms", elapsed.Milliseconds())
	}
	e.publish(r.event(kind))
}

func (e *Engine) publishStep(r *run, step model.StepConfiguration) {
	se := r.step(step.ID)
	ev := r.event(model.EventStepCompleted)
	ev.StepID = step.ID
	ev.Status = string(se.Status)
	ev.Error = se.ErrorMessage
	e.publish(ev)
}
