package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/seantiz/relay/internal/engine"
	"github.com/seantiz/relay/internal/events"
	"github.com/seantiz/relay/internal/handler"
	"github.com/seantiz/relay/internal/model"
	"github.com/seantiz/relay/internal/store"
)

const (
	testAdminToken = "root-token"
	kindGate       = model.StepKind("test_gate")
)

// gate is a step handler that blocks until opened.
type gate struct {
	release chan struct{}
	once    sync.Once
}

func (g *gate) Handle(ctx context.Context, _ handler.Request) (map[string]any, error) {
	select {
	case <-g.release:
		return map[string]any{"opened": true}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (g *gate) open() {
	g.once.Do(func() { close(g.release) })
}

type testServer struct {
	*Server
	gate *gate
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	st, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))

	g := &gate{release: make(chan struct{})}
	reg := handler.NewDefaultRegistry(handler.Options{})
	reg.Register(kindGate, g)

	eng := engine.New(engine.Config{Workers: 2}, reg, events.NewHistorySink(st), logger)
	ctx, cancel := context.WithCancel(context.Background())
	eng.Start(ctx)
	t.Cleanup(func() {
		cancel()
		eng.Stop()
	})
	// Runs before the engine stops so gated steps can finish.
	t.Cleanup(g.open)

	return &testServer{Server: NewServer(":0", eng, st, testAdminToken, logger), gate: g}
}

func postJSON(t *testing.T, url, callerID, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewBufferString(body))
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if callerID != "" {
		req.Header.Set(headerCallerID, callerID)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

// registerAndStart registers def and starts it as invoker, returning the
// execution id.
func registerAndStart(t *testing.T, baseURL, def, invoker string) string {
	t.Helper()
	resp := postJSON(t, baseURL+"/v1/workflows", invoker, def)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register status = %d, want 201", resp.StatusCode)
	}
	var reg registerWorkflowResponse
	decode(t, resp, &reg)

	resp = postJSON(t, baseURL+"/v1/workflows/"+reg.ID+"/executions", "", `{"invoker_id":"`+invoker+`"}`)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("start status = %d, want 202", resp.StatusCode)
	}
	var started startExecutionResponse
	decode(t, resp, &started)
	return started.ExecutionID
}

// waitForStatus polls the engine until the execution reaches want.
func waitForStatus(t *testing.T, srv *testServer, id string, want model.ExecutionStatus) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		exec, err := srv.engine.GetExecution(id)
		if err == nil && exec.Status == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("execution %s did not reach %q", id, want)
}

// waitForHistory polls the store until the execution's record is finished.
func waitForHistory(t *testing.T, srv *testServer, id string) *store.ExecutionRecord {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		rec, err := srv.store.GetExecution(context.Background(), id)
		if err == nil && rec.FinishedAt != nil {
			return rec
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("history for %s not finished", id)
	return nil
}

func TestRequestIDMiddleware(t *testing.T) {
	srv := newTestServer(t)
	var reqID string
	srv.Router().Get("/test", func(w http.ResponseWriter, r *http.Request) {
		reqID = middleware.GetReqID(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/test", nil)
	req.Header.Set("X-Request-Id", "req-42")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET /test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	if reqID != "req-42" {
		t.Errorf("request id = %q, want req-42", reqID)
	}
}

func TestPanicRecovery(t *testing.T) {
	srv := newTestServer(t)
	srv.Router().Get("/panic", func(w http.ResponseWriter, r *http.Request) {
		panic("test panic")
	})

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/panic")
	if err != nil {
		t.Fatalf("GET /panic: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", resp.StatusCode)
	}
}

func TestCORSHeaders(t *testing.T) {
	srv := newTestServer(t)

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	req, _ := http.NewRequest(http.MethodOptions, ts.URL+"/v1/executions/x", nil)
	req.Header.Set("Origin", "http://example.com")
	req.Header.Set("Access-Control-Request-Method", "DELETE")
	req.Header.Set("Access-Control-Request-Headers", headerCallerID)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("OPTIONS: %v", err)
	}
	defer resp.Body.Close()

	if v := resp.Header.Get("Access-Control-Allow-Origin"); v != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q, want %q", v, "*")
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	srv := newTestServer(t)
	srv.addr = "127.0.0.1:0"

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
