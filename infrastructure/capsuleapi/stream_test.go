package capsuleapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"canvasd/application/ports"
	pkgerrors "canvasd/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// sseHandler writes scripted SSE frames and then returns
func sseHandler(t *testing.T, frames []string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "text/event-stream", r.Header.Get("Accept"))
		w.Header().Set("Content-Type", "text/event-stream")
		flusher, ok := w.(http.Flusher)
		require.True(t, ok)
		for _, frame := range frames {
			fmt.Fprint(w, frame)
			flusher.Flush()
		}
	}
}

type eventSink struct {
	mu     sync.Mutex
	events []ports.RunEvent
	errs   []error
}

func (s *eventSink) callbacks() ports.StreamCallbacks {
	return ports.StreamCallbacks{
		OnEvent: func(ev ports.RunEvent) {
			s.mu.Lock()
			defer s.mu.Unlock()
			s.events = append(s.events, ev)
		},
		OnError: func(err error) {
			s.mu.Lock()
			defer s.mu.Unlock()
			s.errs = append(s.errs, err)
		},
	}
}

func (s *eventSink) snapshot() ([]ports.RunEvent, []error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ports.RunEvent(nil), s.events...), append([]error(nil), s.errs...)
}

func TestStreamCapsuleRun_ParsesLifecycleEvents(t *testing.T) {
	frames := []string{
		": keep-alive\n\n",
		"event: run.started\ndata: {\"type\":\"run.started\",\"message\":\"warming up\"}\n\n",
		"data: {\"type\":\"run.progress\",\"progress\":42.7}\n\n",
		"data: {\"type\":\"run.completed\"}\n\n",
	}
	client, _ := newTestClient(t, sseHandler(t, frames))

	sink := &eventSink{}
	handleCh := make(chan ports.StreamHandle, 1)
	var once sync.Once
	callbacks := sink.callbacks()
	inner := callbacks.OnEvent
	callbacks.OnEvent = func(ev ports.RunEvent) {
		inner(ev)
		if ev.Type.IsTerminal() {
			// Close on the terminal event the way the controller does, so the
			// stream's end is not reported as an interruption.
			once.Do(func() { (<-handleCh).Close() })
		}
	}

	handle, err := client.StreamCapsuleRun(context.Background(), "run-1", callbacks)
	require.NoError(t, err)
	handleCh <- handle

	assert.Eventually(t, func() bool {
		events, _ := sink.snapshot()
		return len(events) == 3
	}, time.Second, 10*time.Millisecond)

	events, errs := sink.snapshot()
	assert.Empty(t, errs)
	assert.Equal(t, ports.RunStarted, events[0].Type)
	assert.Equal(t, "warming up", events[0].Message)
	assert.Equal(t, ports.RunProgress, events[1].Type)
	require.NotNil(t, events[1].Progress)
	assert.Equal(t, 42, *events[1].Progress)
	assert.Equal(t, ports.RunCompleted, events[2].Type)
}

func TestStreamCapsuleRun_PayloadTypeWinsOverEventName(t *testing.T) {
	frames := []string{
		"event: run.progress\ndata: {\"type\":\"run.partial\",\"message\":\"chunk\"}\n\n",
	}
	client, _ := newTestClient(t, sseHandler(t, frames))

	sink := &eventSink{}
	handle, err := client.StreamCapsuleRun(context.Background(), "run-1", sink.callbacks())
	require.NoError(t, err)
	defer handle.Close()

	assert.Eventually(t, func() bool {
		events, _ := sink.snapshot()
		return len(events) == 1
	}, time.Second, 10*time.Millisecond)

	events, _ := sink.snapshot()
	assert.Equal(t, ports.RunPartial, events[0].Type)
}

func TestStreamCapsuleRun_UnknownAndMalformedEventsDropped(t *testing.T) {
	frames := []string{
		"data: {\"type\":\"run.telemetry\"}\n\n",
		"data: not json at all\n\n",
		"data: {\"type\":\"run.failed\",\"error\":\"boom\"}\n\n",
	}
	client, _ := newTestClient(t, sseHandler(t, frames))

	sink := &eventSink{}
	handle, err := client.StreamCapsuleRun(context.Background(), "run-1", sink.callbacks())
	require.NoError(t, err)
	defer handle.Close()

	assert.Eventually(t, func() bool {
		events, _ := sink.snapshot()
		return len(events) == 1
	}, time.Second, 10*time.Millisecond)

	events, _ := sink.snapshot()
	assert.Equal(t, ports.RunFailed, events[0].Type)
	assert.Equal(t, "boom", events[0].Error)
}

func TestStreamCapsuleRun_SubscribeRejected(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	_, err := client.StreamCapsuleRun(context.Background(), "run-1", ports.StreamCallbacks{})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsNotFound(err))
}

func TestStreamCapsuleRun_InterruptionReported(t *testing.T) {
	// The server ends the stream without a terminal event
	frames := []string{
		"data: {\"type\":\"run.started\"}\n\n",
	}
	client, _ := newTestClient(t, sseHandler(t, frames))

	sink := &eventSink{}
	handle, err := client.StreamCapsuleRun(context.Background(), "run-1", sink.callbacks())
	require.NoError(t, err)
	defer handle.Close()

	assert.Eventually(t, func() bool {
		_, errs := sink.snapshot()
		return len(errs) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestStreamCapsuleRun_CloseSuppressesCallbacks(t *testing.T) {
	ready := make(chan struct{})
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.(http.Flusher).Flush()
		<-ready
	}))

	sink := &eventSink{}
	handle, err := client.StreamCapsuleRun(context.Background(), "run-1", sink.callbacks())
	require.NoError(t, err)

	handle.Close()
	handle.Close() // idempotent
	close(ready)

	time.Sleep(50 * time.Millisecond)
	events, errs := sink.snapshot()
	assert.Empty(t, events)
	assert.Empty(t, errs)
}

func TestStream_CancelSendsCooperativeSignal(t *testing.T) {
	var mu sync.Mutex
	var signalPath string
	var signalBody map[string]string

	mux := http.NewServeMux()
	mux.HandleFunc("/capsule-runs/run-1/events", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	})
	mux.HandleFunc("/capsule-runs/run-1/signals", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		signalPath = r.URL.Path
		json.NewDecoder(r.Body).Decode(&signalBody)
		w.WriteHeader(http.StatusAccepted)
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	client := NewClient(Config{BaseURL: server.URL}, nil, zap.NewNop())

	handle, err := client.StreamCapsuleRun(context.Background(), "run-1", ports.StreamCallbacks{})
	require.NoError(t, err)
	defer handle.Close()

	handle.Cancel()

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return signalPath != ""
	}, time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "/capsule-runs/run-1/signals", signalPath)
	assert.Equal(t, "cancel", signalBody["type"])
}
