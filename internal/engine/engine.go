package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/seantiz/relay/internal/graph"
	"github.com/seantiz/relay/internal/handler"
	"github.com/seantiz/relay/internal/model"
)

// Defaults applied by New to zero Config fields.
const (
	DefaultWorkers       = 4
	DefaultQueueSize     = 256
	DefaultRetention     = 24 * time.Hour
	DefaultSweepInterval = time.Minute
)

// Config sizes the engine.
type Config struct {
	// Workers is the number of executions driven concurrently.
	Workers int
	// QueueSize bounds the intake queue of pending executions.
	QueueSize int
	// MaxParallelSteps caps concurrent steps within one wave. Zero means no cap.
	MaxParallelSteps int
	// Retention is how long a finished execution stays queryable.
	Retention time.Duration
	// SweepInterval is how often finished executions are evicted.
	SweepInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = DefaultWorkers
	}
	if c.QueueSize <= 0 {
		c.QueueSize = DefaultQueueSize
	}
	if c.Retention <= 0 {
		c.Retention = DefaultRetention
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = DefaultSweepInterval
	}
	return c
}

// Publisher receives lifecycle events. Delivery is best effort: errors are
// logged and never affect the execution.
type Publisher interface {
	Publish(ctx context.Context, ev model.Event) error
}

// Engine registers workflow definitions and drives their executions.
type Engine struct {
	cfg      Config
	handlers *handler.Registry
	sink     Publisher
	logger   *slog.Logger
	broker   *Broker

	defMu       sync.RWMutex
	definitions map[string]model.WorkflowDefinition

	runs  *executions
	stats counters

	// intake is held shared by senders and exclusively by Stop, so nothing
	// reaches the queue after Stop drains it.
	intake    sync.RWMutex
	queue     chan string
	stop      chan struct{}
	stopOnce  sync.Once
	startOnce sync.Once
	workers   sync.WaitGroup
}

// New creates an engine. sink may be nil. Call Start to begin processing.
func New(cfg Config, handlers *handler.Registry, sink Publisher, logger *slog.Logger) *Engine {
	cfg = cfg.withDefaults()
	return &Engine{
		cfg:         cfg,
		handlers:    handlers,
		sink:        sink,
		logger:      logger,
		broker:      NewBroker(),
		definitions: make(map[string]model.WorkflowDefinition),
		runs:        newExecutions(),
		queue:       make(chan string, cfg.QueueSize),
		stop:        make(chan struct{}),
	}
}

// Broker returns the engine's event broker for live subscriptions.
func (e *Engine) Broker() *Broker {
	return e.broker
}

// Handlers returns the handler registry so callers can bind extension kinds.
func (e *Engine) Handlers() *handler.Registry {
	return e.handlers
}

// Start launches the worker pool and the retention sweeper. Workers exit when
// ctx is done or Stop is called. Calling Start more than once has no effect.
func (e *Engine) Start(ctx context.Context) {
	e.startOnce.Do(func() {
		for range e.cfg.Workers {
			e.workers.Go(func() { e.worker(ctx) })
		}
		e.workers.Go(func() { e.sweepLoop(ctx) })
		e.logger.Info("engine started", "workers", e.cfg.Workers, "retention", e.cfg.Retention.String())
	})
}

// Stop closes intake and waits for in-flight executions to finish. Executions
// still queued are failed.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() { close(e.stop) })
	e.intake.Lock()
	e.intake.Unlock()
	e.workers.Wait()

	for {
		select {
		case id := <-e.queue:
			if r, ok := e.runs.get(id); ok {
				e.abandon(r, ErrEngineStopped.Error())
			}
		default:
			e.logger.Info("engine stopped")
			return
		}
	}
}

// RegisterWorkflow validates a definition and stores it, replacing any
// definition with the same id.
func (e *Engine) RegisterWorkflow(def model.WorkflowDefinition) (string, error) {
	if err := graph.Validate(def); err != nil {
		return "", err
	}
	for _, step := range def.Steps {
		if err := e.handlers.ValidateStep(step); err != nil {
			return "", err
		}
	}

	def = def.Clone()
	if def.CreatedAt.IsZero() {
		def.CreatedAt = time.Now().UTC()
	}

	e.defMu.Lock()
	_, replaced := e.definitions[def.ID]
	e.definitions[def.ID] = def
	e.defMu.Unlock()

	e.logger.Info("workflow registered", "workflow_id", def.ID, "version", def.Version, "steps", len(def.Steps), "replaced", replaced)
	return def.ID, nil
}

// GetWorkflow returns a copy of a registered definition.
func (e *Engine) GetWorkflow(id string) (model.WorkflowDefinition, error) {
	e.defMu.RLock()
	def, ok := e.definitions[id]
	e.defMu.RUnlock()
	if !ok {
		return model.WorkflowDefinition{}, fmt.Errorf("%w: %s", ErrWorkflowNotFound, id)
	}
	return def.Clone(), nil
}

// ListWorkflows returns copies of every registered definition sorted by id.
func (e *Engine) ListWorkflows() []model.WorkflowDefinition {
	e.defMu.RLock()
	out := make([]model.WorkflowDefinition, 0, len(e.definitions))
	for _, def := range e.definitions {
		out = append(out, def.Clone())
	}
	e.defMu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// StartExecution creates a pending execution of a registered workflow and
// queues it. It blocks while the intake queue is full, until ctx is done.
func (e *Engine) StartExecution(ctx context.Context, workflowID, invokerID string, initial, metadata map[string]any) (string, error) {
	e.defMu.RLock()
	def, ok := e.definitions[workflowID]
	e.defMu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrWorkflowNotFound, workflowID)
	}

	e.intake.RLock()
	defer e.intake.RUnlock()
	select {
	case <-e.stop:
		return "", ErrEngineStopped
	default:
	}

	r := newRun(def, invokerID, initial, metadata)
	e.runs.put(r)
	e.stats.started()

	select {
	case e.queue <- r.id():
	case <-e.stop:
		e.abandon(r, ErrEngineStopped.Error())
		return "", ErrEngineStopped
	case <-ctx.Done():
		e.abandon(r, ctx.Err().Error())
		return "", fmt.Errorf("queue execution: %w", ctx.Err())
	}

	e.logger.Info("execution queued", "execution_id", r.id(), "workflow_id", workflowID, "invoker_id", invokerID)
	return r.id(), nil
}

// GetExecution returns a snapshot of an execution.
func (e *Engine) GetExecution(id string) (*model.WorkflowExecution, error) {
	r, ok := e.runs.get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrExecutionNotFound, id)
	}
	return r.snapshot(), nil
}

// ListExecutions returns snapshots of retained executions, newest first.
func (e *Engine) ListExecutions(f ExecutionFilter) []*model.WorkflowExecution {
	return e.runs.list(f)
}

// CancelExecution cancels a running execution on behalf of caller. It returns
// false without error when the execution is not running. In-flight handlers
// are not interrupted; no further waves start.
func (e *Engine) CancelExecution(id string, caller model.Caller) (bool, error) {
	r, ok := e.runs.get(id)
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrExecutionNotFound, id)
	}
	if !caller.CanControl(r.exec.InvokerID) {
		return false, fmt.Errorf("%w: %s may not cancel %s", ErrPermissionDenied, caller.ID, id)
	}
	if !r.cancel() {
		return false, nil
	}

	snap := r.snapshot()
	e.stats.finished(model.ExecutionCancelled, snap.CompletedAt.Sub(snap.StartedAt))
	executionsTotal.WithLabelValues(string(model.ExecutionCancelled)).Inc()
	e.logger.Info("execution cancelled", "execution_id", id, "caller_id", caller.ID, "admin", caller.Admin)
	e.publish(r.event(model.EventExecutionCancelled))
	return true, nil
}

// Stats returns aggregate counters.
func (e *Engine) Stats() Stats {
	s := e.stats.snapshot()
	e.defMu.RLock()
	s.RegisteredWorkflows = len(e.definitions)
	e.defMu.RUnlock()
	return s
}

// abandon fails an execution that never left the queue.
func (e *Engine) abandon(r *run, msg string) {
	if !r.transition(model.ExecutionFailed, msg) {
		return
	}
	e.stats.finished(model.ExecutionFailed, 0)
	executionsTotal.WithLabelValues(string(model.ExecutionFailed)).Inc()
	e.publish(r.event(model.EventExecutionFailed))
	e.broker.Close(r.id())
}

// publish delivers an event to live subscribers and the sink.
func (e *Engine) publish(ev model.Event) {
	e.broker.Publish(ev)
	if e.sink == nil {
		return
	}
	if err := e.sink.Publish(context.Background(), ev); err != nil {
		e.logger.Warn("publish event", "kind", ev.Kind, "execution_id", ev.ExecutionID, "error", err)
	}
}

func (e *Engine) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-e.stop:
			return
		case id := <-e.queue:
			r, ok := e.runs.get(id)
			if !ok {
				continue
			}
			e.execute(r)
		}
	}
}

func (e *Engine) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-e.stop:
			return
		case now := <-ticker.C:
			e.Sweep(now)
		}
	}
}

// Sweep evicts executions that finished more than the retention window before
// now. It returns the number evicted.
func (e *Engine) Sweep(now time.Time) int {
	evicted := e.runs.sweep(now, e.cfg.Retention)
	for _, id := range evicted {
		e.broker.Remove(id)
	}
	if len(evicted) > 0 {
		e.logger.Debug("evicted executions", "count", len(evicted), "retained", e.runs.len())
	}
	return len(evicted)
}
