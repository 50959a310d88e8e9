package capsuleapi

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"canvasd/application/ports"
	pkgerrors "canvasd/pkg/errors"

	"go.uber.org/zap"
)

// Run event streams are plain server-sent events. No pack library covers SSE
// consumption, so the wire parsing lives here, kept to the handful of field
// rules the endpoint actually uses.
const maxEventLine = 1 << 20

// StreamCapsuleRun subscribes to a run's lifecycle events. The returned
// handle must be closed; closing suppresses all further callbacks.
func (c *Client) StreamCapsuleRun(ctx context.Context, runID string, callbacks ports.StreamCallbacks) (ports.StreamHandle, error) {
	streamCtx, cancel := context.WithCancel(ctx)

	path := fmt.Sprintf("/capsule-runs/%s/events", url.PathEscape(runID))
	req, err := http.NewRequestWithContext(streamCtx, http.MethodGet, c.config.BaseURL+path, nil)
	if err != nil {
		cancel()
		return nil, pkgerrors.NewInternalError("stream request construction failed").WithCause(err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	if c.config.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.Token)
	}

	// The subscription must outlive any single request deadline, so the
	// streaming connection bypasses the client-wide timeout.
	resp, err := (&http.Client{Transport: c.http.Transport}).Do(req)
	if err != nil {
		cancel()
		return nil, pkgerrors.NewStreamError("event stream connection failed", err)
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		status := resp.StatusCode
		cancel()
		return nil, c.statusError(status, nil)
	}

	stream := &runStream{
		client: c,
		runID:  runID,
		cancel: cancel,
		resp:   resp,
	}
	go stream.read(callbacks)
	return stream, nil
}

// runStream is one live SSE subscription
type runStream struct {
	client *Client
	runID  string
	cancel context.CancelFunc
	resp   *http.Response

	mu     sync.Mutex
	closed bool
}

// Cancel sends the cooperative cancel signal. The stream stays open so the
// server's cancellation acknowledgement can arrive as a terminal event.
func (s *runStream) Cancel() {
	go func() {
		path := fmt.Sprintf("/capsule-runs/%s/signals", url.PathEscape(s.runID))
		body := map[string]string{"type": "cancel"}
		if err := s.client.doJSON(context.Background(), http.MethodPost, path, body, nil); err != nil {
			s.client.logger.Warn("Cooperative cancel signal failed",
				zap.String("run_id", s.runID), zap.Error(err))
		}
	}()
}

// Close tears the stream down and suppresses further callbacks
func (s *runStream) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.resp.Body.Close()
}

func (s *runStream) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// read parses the SSE wire format: "event:" names the event, "data:" lines
// accumulate the payload, a blank line dispatches.
func (s *runStream) read(callbacks ports.StreamCallbacks) {
	defer s.resp.Body.Close()

	scanner := bufio.NewScanner(s.resp.Body)
	scanner.Buffer(make([]byte, 0, 4096), maxEventLine)

	var eventName string
	var data strings.Builder

	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if data.Len() > 0 {
				s.dispatch(callbacks, eventName, data.String())
			}
			eventName = ""
			data.Reset()
		case strings.HasPrefix(line, ":"):
			// comment / keep-alive
		case strings.HasPrefix(line, "event:"):
			eventName = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		}
	}

	if s.isClosed() {
		return
	}
	err := scanner.Err()
	if err == nil {
		// Server closed the stream without a terminal event.
		err = fmt.Errorf("event stream ended unexpectedly")
	}
	if callbacks.OnError != nil {
		callbacks.OnError(pkgerrors.NewStreamError("event stream interrupted", err))
	}
}

// eventPayload is the loose wire shape of one event's data field
type eventPayload struct {
	Type     string   `json:"type"`
	Message  string   `json:"message"`
	Progress *float64 `json:"progress"`
	Error    string   `json:"error"`
}

// dispatch normalizes one wire event and hands it to the callback. Events
// with no recognizable type are dropped; the controller never sees them.
func (s *runStream) dispatch(callbacks ports.StreamCallbacks, eventName, data string) {
	if s.isClosed() {
		return
	}

	var payload eventPayload
	if err := json.Unmarshal([]byte(data), &payload); err != nil {
		s.client.logger.Debug("Dropping malformed run event",
			zap.String("run_id", s.runID), zap.Error(err))
		return
	}

	// The payload type wins over the SSE event name when both are present.
	name := payload.Type
	if name == "" {
		name = eventName
	}
	eventType := ports.RunEventType(name)
	if !eventType.IsTerminal() && !eventType.IsProgress() {
		s.client.logger.Debug("Dropping unknown run event",
			zap.String("run_id", s.runID), zap.String("event", name))
		return
	}

	event := ports.RunEvent{
		Type:    eventType,
		Message: payload.Message,
		Error:   payload.Error,
	}
	if payload.Progress != nil {
		progress := int(*payload.Progress)
		event.Progress = &progress
	}
	if callbacks.OnEvent != nil {
		callbacks.OnEvent(event)
	}
}
