// Package engine drives workflow executions. It validates and stores
// workflow definitions, queues executions onto a bounded worker pool, runs
// each execution as a sequence of dependency waves, applies per-step
// timeouts and retries, and publishes lifecycle events to a sink and to an
// in-memory broker for live streaming.
package engine
