package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/seantiz/relay/internal/condition"
	"github.com/seantiz/relay/internal/handler"
	"github.com/seantiz/relay/internal/model"
)

// runStep takes one step from pending to a terminal status: guard conditions,
// handler lookup, then attempts under the step deadline with linear backoff
// between retries. It reports false when the step never started because the
// execution was cancelled first.
func (e *Engine) runStep(r *run, step model.StepConfiguration) bool {
	start := time.Now()
	log := e.logger.With("execution_id", r.id(), "step_id", step.ID, "kind", step.Kind)

	if !r.updateStep(step.ID, model.StepRunning, func(se *model.StepExecution) {
		t := start.UTC()
		se.StartedAt = &t
	}) {
		return false
	}
	e.attempts(r, step, start, log)
	return true
}

// attempts runs a started step through its guard and handler attempts.
func (e *Engine) attempts(r *run, step model.StepConfiguration, start time.Time, log *slog.Logger) {
	if ok := e.guard(r, step, log); !ok {
		e.settle(r, step, model.StepSkipped, nil, "", start)
		log.Info("step skipped")
		return
	}

	h, err := e.handlers.Resolve(step.Kind)
	if err != nil {
		e.settle(r, step, model.StepFailed, nil, err.Error(), start)
		log.Warn("step failed", "error", err)
		return
	}

	policy := step.RetryPolicy
	for retry := 0; ; {
		if !r.attempt(step.ID) {
			return
		}
		req := e.request(r, step, retry)

		result, err := invoke(h, req, step.Timeout())
		if err == nil {
			if e.settle(r, step, model.StepCompleted, result, "", start) {
				r.vars.Bind(step.Outputs, result)
				log.Info("step completed", "attempts", retry+1)
			}
			return
		}

		if errors.Is(err, handler.ErrUnsupportedStepType) || retry >= policy.MaxRetries || r.cancelled() {
			e.settle(r, step, model.StepFailed, nil, err.Error(), start)
			log.Warn("step failed", "attempts", retry+1, "error", err)
			return
		}

		retry++
		if !r.updateStep(step.ID, model.StepRetrying, func(se *model.StepExecution) {
			se.RetryCount = retry
			se.ErrorMessage = err.Error()
		}) {
			return
		}
		stepRetriesTotal.WithLabelValues(string(step.Kind)).Inc()
		delay := policy.Delay(retry)
		log.Info("retrying step", "retry", retry, "max_retries", policy.MaxRetries, "delay", delay.String(), "error", err)

		if !r.sleep(delay) {
			return
		}
		if !r.updateStep(step.ID, model.StepRunning, nil) {
			return
		}
	}
}

// guard evaluates the step conditions after resolving templates in them.
// An expression that fails to evaluate counts as false.
func (e *Engine) guard(r *run, step model.StepConfiguration, log *slog.Logger) bool {
	if len(step.Conditions) == 0 {
		return true
	}
	exprs := make([]string, len(step.Conditions))
	for i, c := range step.Conditions {
		exprs[i] = r.vars.Resolve(c.Expression)
	}
	ok, failed, err := condition.All(exprs, r.vars.Values())
	if err != nil {
		log.Warn("condition evaluation failed", "expression", failed, "error", err)
		return false
	}
	return ok
}

// request builds the handler request with templates resolved against the
// current variables.
func (e *Engine) request(r *run, step model.StepConfiguration, retry int) handler.Request {
	resolved := step.Clone()
	if cfg, ok := r.vars.ResolveValue(step.Config).(map[string]any); ok {
		resolved.Config = cfg
	}
	return handler.Request{
		ExecutionID: r.id(),
		WorkflowID:  r.def.ID,
		InvokerID:   r.exec.InvokerID,
		Attempt:     retry + 1,
		Step:        resolved,
		Inputs:      r.vars.ResolveInputs(step.Inputs),
		Variables:   r.vars.Values(),
	}
}

// settle records a terminal step status. It reports false when cancellation
// has already settled the step.
func (e *Engine) settle(r *run, step model.StepConfiguration, status model.StepStatus, result map[string]any, errMsg string, start time.Time) bool {
	elapsed := time.Since(start)
	ok := r.updateStep(step.ID, status, func(se *model.StepExecution) {
		now := time.Now().UTC()
		se.CompletedAt = &now
		se.DurationMS = elapsed.Milliseconds()
		se.ErrorMessage = errMsg
		if result != nil {
			se.Result = result
		}
	})
	if !ok {
		return false
	}
	stepsTotal.WithLabelValues(string(step.Kind), string(status)).Inc()
	stepDuration.WithLabelValues(string(step.Kind)).Observe(elapsed.Seconds())
	return true
}

type outcome struct {
	result map[string]any
	err    error
}

// invoke calls the handler under a deadline. A handler that ignores its
// context is abandoned when the deadline passes; its goroutine finishes on
// its own.
func invoke(h handler.Handler, req handler.Request, timeout time.Duration) (map[string]any, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- outcome{err: fmt.Errorf("handler panic: %v", p)}
			}
		}()
		result, err := h.Handle(ctx, req)
		done <- outcome{result: result, err: err}
	}()

	timedOut := func() error {
		return fmt.Errorf("%w: step timed out after %ds", ErrStepTimeout, int(timeout.Seconds()))
	}

	select {
	case o := <-done:
		switch {
		case o.err == nil:
			return o.result, nil
		case errors.Is(o.err, handler.ErrUnsupportedStepType):
			return nil, o.err
		case errors.Is(ctx.Err(), context.DeadlineExceeded):
			return nil, timedOut()
		default:
			return nil, fmt.Errorf("%w: %w", ErrStepExecution, o.err)
		}
	case <-ctx.Done():
		return nil, timedOut()
	}
}
