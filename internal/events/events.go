// Package events delivers engine lifecycle events to external sinks.
package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/seantiz/relay/internal/model"
	"github.com/seantiz/relay/internal/store"
)

// Sink receives lifecycle events. It satisfies engine.Publisher.
type Sink interface {
	Publish(ctx context.Context, ev model.Event) error
}

// Fanout delivers each event to every sink in order. A failing sink does not
// stop delivery to the rest.
type Fanout struct {
	sinks []Sink
}

// NewFanout returns a Fanout over sinks. Nil sinks are skipped.
func NewFanout(sinks ...Sink) *Fanout {
	f := &Fanout{}
	for _, s := range sinks {
		if s != nil {
			f.sinks = append(f.sinks, s)
		}
	}
	return f
}

// Publish sends ev to every sink and joins their errors.
func (f *Fanout) Publish(ctx context.Context, ev model.Event) error {
	var errs []error
	for _, s := range f.sinks {
		if err := s.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Len returns the number of sinks.
func (f *Fanout) Len() int {
	return len(f.sinks)
}

// LogSink writes every event to a structured logger.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink returns a sink logging at info level, failures at warn.
func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// Publish logs ev. It never fails.
func (s *LogSink) Publish(ctx context.Context, ev model.Event) error {
	level := slog.LevelInfo
	if ev.Error != "" {
		level = slog.LevelWarn
	}
	attrs := []slog.Attr{
		slog.String("event_id", ev.ID),
		slog.String("execution_id", ev.ExecutionID),
		slog.String("workflow_id", ev.WorkflowID),
		slog.String("status", ev.Status),
		slog.Float64("progress", ev.Progress),
	}
	if ev.StepID != "" {
		attrs = append(attrs, slog.String("step_id", ev.StepID))
	}
	if ev.Error != "" {
		attrs = append(attrs, slog.String("error", ev.Error))
	}
	s.logger.LogAttrs(ctx, level, string(ev.Kind), attrs...)
	return nil
}

// HistorySink records events in the durable execution history.
type HistorySink struct {
	store store.Store
}

// NewHistorySink returns a sink writing to st.
func NewHistorySink(st store.Store) *HistorySink {
	return &HistorySink{store: st}
}

// Publish records ev.
func (s *HistorySink) Publish(ctx context.Context, ev model.Event) error {
	if err := s.store.RecordEvent(ctx, ev); err != nil {
		return fmt.Errorf("record event %s: %w", ev.ID, err)
	}
	return nil
}
