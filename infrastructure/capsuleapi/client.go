// Package capsuleapi is the HTTP adapter for the external capsule platform:
// capsule specs, asynchronous runs and their event streams, storyboard
// previews, generation runs, and raw-asset lookups.
package capsuleapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"canvasd/application/ports"
	pkgerrors "canvasd/pkg/errors"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

const specCachePrefix = "capsule-spec:"

// Config holds the client settings
type Config struct {
	BaseURL      string
	Token        string
	Timeout      time.Duration
	SpecCacheTTL time.Duration
}

// Client talks to the capsule platform API. All requests pass through a
// circuit breaker; repeated upstream failures short-circuit into immediate
// unavailable errors instead of piling up timeouts.
type Client struct {
	config  Config
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
	cache   ports.Cache
	logger  *zap.Logger
}

// NewClient creates a capsule platform client. The cache is optional; when
// present, capsule specs are cached under their id and version.
func NewClient(config Config, cache ports.Cache, logger *zap.Logger) *Client {
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "capsule-api",
		MaxRequests: 3,
		Interval:    30 * time.Second,
		Timeout:     15 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
	return &Client{
		config:  config,
		http:    &http.Client{Timeout: config.Timeout},
		breaker: breaker,
		cache:   cache,
		logger:  logger,
	}
}

// GetCapsuleSpec fetches a capsule's declared spec, serving from cache when
// a fresh copy is available.
func (c *Client) GetCapsuleSpec(ctx context.Context, capsuleID, version string) (*ports.CapsuleSpec, error) {
	cacheKey := specCachePrefix + capsuleID + ":" + version
	if c.cache != nil {
		if cached, ok := c.cache.Get(ctx, cacheKey); ok {
			if spec, ok := cached.(*ports.CapsuleSpec); ok {
				return spec, nil
			}
		}
	}

	path := fmt.Sprintf("/capsules/%s/spec?version=%s", url.PathEscape(capsuleID), url.QueryEscape(version))
	var spec ports.CapsuleSpec
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &spec); err != nil {
		return nil, err
	}

	if c.cache != nil && c.config.SpecCacheTTL > 0 {
		if err := c.cache.Set(ctx, cacheKey, &spec, int(c.config.SpecCacheTTL.Seconds())); err != nil {
			c.logger.Debug("Spec cache write failed", zap.Error(err))
		}
	}
	return &spec, nil
}

// RunCapsule issues an asynchronous capsule run
func (c *Client) RunCapsule(ctx context.Context, req *ports.RunRequest) (*ports.RunReceipt, error) {
	var receipt ports.RunReceipt
	if err := c.doJSON(ctx, http.MethodPost, "/capsule-runs", req, &receipt); err != nil {
		return nil, err
	}
	if receipt.RunID == "" {
		return nil, pkgerrors.NewExternalError("capsule-api", fmt.Errorf("run accepted without a run id"))
	}
	return &receipt, nil
}

// CancelCapsuleRun issues the out-of-band cancel call for a run
func (c *Client) CancelCapsuleRun(ctx context.Context, runID string) error {
	path := fmt.Sprintf("/capsule-runs/%s/cancel", url.PathEscape(runID))
	return c.doJSON(ctx, http.MethodPost, path, nil, nil)
}

// GetStoryboardPreview fetches the rendered preview of a completed run
func (c *Client) GetStoryboardPreview(ctx context.Context, capsuleID, runID string, count int, language string) (*ports.StoryboardPreview, error) {
	query := url.Values{}
	query.Set("count", strconv.Itoa(count))
	if language != "" {
		query.Set("lang", language)
	}
	path := fmt.Sprintf("/capsules/%s/runs/%s/storyboard?%s",
		url.PathEscape(capsuleID), url.PathEscape(runID), query.Encode())

	var preview ports.StoryboardPreview
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &preview); err != nil {
		return nil, err
	}
	return &preview, nil
}

// CreateGenerationRun starts a longer-lived generation job for a canvas
func (c *Client) CreateGenerationRun(ctx context.Context, canvasID string) (*ports.GenerationRun, error) {
	body := map[string]string{"canvas_id": canvasID}
	var run generationRunPayload
	if err := c.doJSON(ctx, http.MethodPost, "/generation-runs", body, &run); err != nil {
		return nil, err
	}
	return run.toPort(), nil
}

// GetGenerationRun fetches the current state of a generation run
func (c *Client) GetGenerationRun(ctx context.Context, runID string) (*ports.GenerationRun, error) {
	path := fmt.Sprintf("/generation-runs/%s", url.PathEscape(runID))
	var run generationRunPayload
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &run); err != nil {
		return nil, err
	}
	return run.toPort(), nil
}

// ListGenerationRuns lists generation runs matching the filter
func (c *Client) ListGenerationRuns(ctx context.Context, filter ports.GenerationFilter) ([]*ports.GenerationRun, error) {
	query := url.Values{}
	if filter.CanvasID != "" {
		query.Set("canvas_id", filter.CanvasID)
	}
	if filter.Status != "" {
		query.Set("status", filter.Status)
	}
	if filter.Limit > 0 {
		query.Set("limit", strconv.Itoa(filter.Limit))
	}
	path := "/generation-runs"
	if encoded := query.Encode(); encoded != "" {
		path += "?" + encoded
	}

	var payload struct {
		Runs []generationRunPayload `json:"runs"`
	}
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &payload); err != nil {
		return nil, err
	}
	runs := make([]*ports.GenerationRun, 0, len(payload.Runs))
	for _, run := range payload.Runs {
		runs = append(runs, run.toPort())
	}
	return runs, nil
}

// GetRawAsset looks up an uploaded source asset. The endpoint is
// privilege-gated server-side; authorization failures surface as typed
// unauthorized/forbidden errors for the caller to tolerate.
func (c *Client) GetRawAsset(ctx context.Context, sourceID string) (*ports.RawAsset, error) {
	path := fmt.Sprintf("/raw-assets/%s", url.PathEscape(sourceID))
	var asset ports.RawAsset
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &asset); err != nil {
		return nil, err
	}
	return &asset, nil
}

// generationRunPayload tolerates a malformed or missing spec: either array
// may arrive as null, a wrong type, or not at all, and decodes to empty.
type generationRunPayload struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Spec   json.RawMessage `json:"spec"`
}

func (p generationRunPayload) toPort() *ports.GenerationRun {
	run := &ports.GenerationRun{ID: p.ID, Status: p.Status}
	var loose struct {
		BeatSheet  json.RawMessage `json:"beat_sheet"`
		Storyboard json.RawMessage `json:"storyboard"`
	}
	if len(p.Spec) > 0 {
		// A non-object spec leaves both raw fields empty, same as absent.
		_ = json.Unmarshal(p.Spec, &loose)
	}
	run.Spec.BeatSheet = decodeLooseArray(loose.BeatSheet)
	run.Spec.Storyboard = decodeLooseArray(loose.Storyboard)
	return run
}

func decodeLooseArray(raw json.RawMessage) []map[string]interface{} {
	if len(raw) == 0 {
		return []map[string]interface{}{}
	}
	var items []map[string]interface{}
	if err := json.Unmarshal(raw, &items); err != nil || items == nil {
		return []map[string]interface{}{}
	}
	return items
}

// doJSON performs one request through the circuit breaker and decodes the
// response into out (when non-nil).
func (c *Client) doJSON(ctx context.Context, method, path string, body, out interface{}) error {
	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.roundTrip(ctx, method, path, body)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return pkgerrors.NewUnavailableError("capsule-api")
		}
		return err
	}
	if out == nil {
		return nil
	}
	data := result.([]byte)
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return pkgerrors.NewExternalError("capsule-api", fmt.Errorf("malformed response: %w", err))
	}
	return nil
}

func (c *Client) roundTrip(ctx context.Context, method, path string, body interface{}) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, pkgerrors.NewInternalError("request encoding failed").WithCause(err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+path, reader)
	if err != nil {
		return nil, pkgerrors.NewInternalError("request construction failed").WithCause(err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.config.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.Token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, pkgerrors.NewNetworkError("capsule API unreachable", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, pkgerrors.NewNetworkError("capsule API response truncated", err)
	}
	if resp.StatusCode >= 400 {
		return nil, c.statusError(resp.StatusCode, data)
	}
	return data, nil
}

// statusError maps an HTTP failure onto a typed application error
func (c *Client) statusError(status int, body []byte) error {
	message := extractMessage(body)
	if message == "" {
		message = http.StatusText(status)
	}

	switch {
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return pkgerrors.NewValidationError(message)
	case status == http.StatusUnauthorized:
		return pkgerrors.NewUnauthorizedError(message)
	case status == http.StatusForbidden:
		return pkgerrors.NewForbiddenError(message)
	case status == http.StatusNotFound:
		return pkgerrors.NewNotFoundError(message)
	case status == http.StatusConflict:
		return pkgerrors.NewConflictError(message)
	case status == http.StatusTooManyRequests:
		return pkgerrors.NewRateLimitError(0, "")
	default:
		return pkgerrors.NewExternalError("capsule-api", fmt.Errorf("status %d: %s", status, message))
	}
}

func extractMessage(body []byte) string {
	var envelope struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return ""
	}
	if envelope.Error.Message != "" {
		return envelope.Error.Message
	}
	return envelope.Message
}
