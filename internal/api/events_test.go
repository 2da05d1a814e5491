package api

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/seantiz/relay/internal/model"
)

type sseFrame struct {
	event string
	data  string
}

// readFrames parses SSE frames until the stream ends.
func readFrames(t *testing.T, resp *http.Response) []sseFrame {
	t.Helper()
	var frames []sseFrame
	var cur sseFrame
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			cur.event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			cur.data = strings.TrimPrefix(line, "data: ")
		case line == "" && cur.event != "":
			frames = append(frames, cur)
			cur = sseFrame{}
		}
	}
	return frames
}

func openStream(t *testing.T, ctx context.Context, url string) *http.Response {
	t.Helper()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != contentTypeEventStream {
		t.Errorf("Content-Type = %q, want %s", ct, contentTypeEventStream)
	}
	return resp
}

func TestStreamEventsUntilCompletion(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	id := registerAndStart(t, ts.URL, gatedDefinition, "alice")
	waitForStatus(t, srv, id, model.ExecutionRunning)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	resp := openStream(t, ctx, ts.URL+"/v1/executions/"+id+"/events")
	defer resp.Body.Close()

	srv.gate.open()
	frames := readFrames(t, resp)

	want := []string{"step.completed", "step.completed", "execution.completed", "done"}
	if len(frames) != len(want) {
		t.Fatalf("got %d frames %v, want %v", len(frames), frames, want)
	}
	for i, f := range frames {
		if f.event != want[i] {
			t.Errorf("frame[%d] = %q, want %q", i, f.event, want[i])
		}
	}

	var first model.Event
	if err := json.Unmarshal([]byte(frames[0].data), &first); err != nil {
		t.Fatalf("decode frame data: %v", err)
	}
	if first.StepID != "hold" || first.ExecutionID != id {
		t.Errorf("first event = %+v, want step hold of %s", first, id)
	}
}

func TestStreamEventsFinishedExecution(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	id := registerAndStart(t, ts.URL, secretDefinition, "alice")
	waitForStatus(t, srv, id, model.ExecutionCompleted)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	resp := openStream(t, ctx, ts.URL+"/v1/executions/"+id+"/events")
	defer resp.Body.Close()

	frames := readFrames(t, resp)
	if len(frames) != 1 || frames[0].event != "done" {
		t.Errorf("frames = %v, want a single done frame", frames)
	}
}

func TestStreamEventsCancelled(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	id := registerAndStart(t, ts.URL, gatedDefinition, "alice")
	waitForStatus(t, srv, id, model.ExecutionRunning)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	resp := openStream(t, ctx, ts.URL+"/v1/executions/"+id+"/events")
	defer resp.Body.Close()

	del := deleteExecution(t, ts.URL+"/v1/executions/"+id, "alice", "")
	del.Body.Close()
	srv.gate.open()

	frames := readFrames(t, resp)
	if len(frames) == 0 {
		t.Fatal("no frames received")
	}
	if frames[0].event != "execution.cancelled" {
		t.Errorf("first frame = %q, want execution.cancelled", frames[0].event)
	}
	if last := frames[len(frames)-1]; last.event != "done" {
		t.Errorf("last frame = %q, want done", last.event)
	}
}
