package capsuleapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"canvasd/application/ports"
	"canvasd/infrastructure/persistence/memory"
	pkgerrors "canvasd/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client := NewClient(Config{
		BaseURL:      server.URL,
		Token:        "test-token",
		Timeout:      5 * time.Second,
		SpecCacheTTL: time.Minute,
	}, memory.NewCache(), zap.NewNop())
	return client, server
}

func TestClient_GetCapsuleSpec_CachesByIDAndVersion(t *testing.T) {
	var hits int64
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&hits, 1)
		assert.Equal(t, "/capsules/cap-1/spec", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(ports.CapsuleSpec{
			Version: "1.0",
			InputContract: ports.InputContract{
				MaxUpstream:  3,
				AllowedTypes: []string{"pdf"},
				ContextMode:  "sequential",
			},
		})
	}))

	spec, err := client.GetCapsuleSpec(context.Background(), "cap-1", "latest")
	require.NoError(t, err)
	assert.Equal(t, 3, spec.InputContract.MaxUpstream)
	assert.Equal(t, "sequential", spec.InputContract.ContextMode)

	// Second lookup is served from cache
	_, err = client.GetCapsuleSpec(context.Background(), "cap-1", "latest")
	require.NoError(t, err)
	assert.EqualValues(t, 1, atomic.LoadInt64(&hits))

	// A different version misses the cache
	_, err = client.GetCapsuleSpec(context.Background(), "cap-1", "2.0")
	require.NoError(t, err)
	assert.EqualValues(t, 2, atomic.LoadInt64(&hits))
}

func TestClient_RunCapsule(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/capsule-runs", r.URL.Path)

		var req ports.RunRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "cap-1", req.CapsuleID)
		assert.Equal(t, "node-1", req.NodeID)

		json.NewEncoder(w).Encode(ports.RunReceipt{RunID: "run-9"})
	}))

	receipt, err := client.RunCapsule(context.Background(), &ports.RunRequest{
		CapsuleID: "cap-1",
		NodeID:    "node-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "run-9", receipt.RunID)
}

func TestClient_RunCapsule_MissingRunID(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))

	_, err := client.RunCapsule(context.Background(), &ports.RunRequest{CapsuleID: "cap-1"})
	require.Error(t, err)
}

func TestClient_CancelCapsuleRun(t *testing.T) {
	var path string
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		w.WriteHeader(http.StatusAccepted)
	}))

	require.NoError(t, client.CancelCapsuleRun(context.Background(), "run-9"))
	assert.Equal(t, "/capsule-runs/run-9/cancel", path)
}

func TestClient_GetStoryboardPreview_QueryParams(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/capsules/cap-1/runs/run-9/storyboard", r.URL.Path)
		assert.Equal(t, "4", r.URL.Query().Get("count"))
		assert.Equal(t, "fr", r.URL.Query().Get("lang"))
		json.NewEncoder(w).Encode(ports.StoryboardPreview{OutputLanguage: "fr"})
	}))

	preview, err := client.GetStoryboardPreview(context.Background(), "cap-1", "run-9", 4, "fr")
	require.NoError(t, err)
	assert.Equal(t, "fr", preview.OutputLanguage)
}

func TestClient_StatusErrorMapping(t *testing.T) {
	cases := []struct {
		status int
		check  func(error) bool
		name   string
	}{
		{http.StatusBadRequest, pkgerrors.IsValidation, "bad request"},
		{http.StatusUnprocessableEntity, pkgerrors.IsValidation, "unprocessable"},
		{http.StatusUnauthorized, pkgerrors.IsUnauthorized, "unauthorized"},
		{http.StatusForbidden, pkgerrors.IsForbidden, "forbidden"},
		{http.StatusNotFound, pkgerrors.IsNotFound, "not found"},
		{http.StatusConflict, pkgerrors.IsConflict, "conflict"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				w.Write([]byte(`{"error":{"message":"nope"}}`))
			}))

			_, err := client.GetRawAsset(context.Background(), "asset-1")
			require.Error(t, err)
			assert.True(t, tc.check(err), "status %d", tc.status)
		})
	}
}

func TestClient_ErrorMessageExtraction(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"sourceId is malformed"}}`))
	}))

	_, err := client.GetRawAsset(context.Background(), "asset-1")
	require.Error(t, err)
	assert.Contains(t, pkgerrors.UserMessage(err), "sourceId is malformed")
}

func TestClient_GenerationRunPayloadTolerance(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"missing spec", `{"id":"gen-1","status":"done"}`},
		{"null spec", `{"id":"gen-1","status":"done","spec":null}`},
		{"null arrays", `{"id":"gen-1","status":"done","spec":{"beat_sheet":null,"storyboard":null}}`},
		{"wrong types", `{"id":"gen-1","status":"done","spec":{"beat_sheet":"oops","storyboard":42}}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tc.body))
			}))

			run, err := client.GetGenerationRun(context.Background(), "gen-1")
			require.NoError(t, err)
			assert.Equal(t, "gen-1", run.ID)
			assert.Equal(t, "done", run.Status)
			assert.NotNil(t, run.Spec.BeatSheet)
			assert.NotNil(t, run.Spec.Storyboard)
			assert.Empty(t, run.Spec.BeatSheet)
			assert.Empty(t, run.Spec.Storyboard)
		})
	}
}

func TestClient_GenerationRunPayloadWithArtifact(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"gen-1","status":"done","spec":{"beat_sheet":[{"beat":"opening"}],"storyboard":[{"panel":1}]}}`))
	}))

	run, err := client.GetGenerationRun(context.Background(), "gen-1")
	require.NoError(t, err)
	require.Len(t, run.Spec.BeatSheet, 1)
	assert.Equal(t, "opening", run.Spec.BeatSheet[0]["beat"])
	require.Len(t, run.Spec.Storyboard, 1)
}

func TestClient_ListGenerationRuns_Filter(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "canvas-1", r.URL.Query().Get("canvas_id"))
		assert.Equal(t, "done", r.URL.Query().Get("status"))
		assert.Equal(t, "5", r.URL.Query().Get("limit"))
		w.Write([]byte(`{"runs":[{"id":"gen-1","status":"done"},{"id":"gen-2","status":"done"}]}`))
	}))

	runs, err := client.ListGenerationRuns(context.Background(), ports.GenerationFilter{
		CanvasID: "canvas-1",
		Status:   "done",
		Limit:    5,
	})
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}

func TestClient_CircuitBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	var hits int64
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&hits, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))

	for i := 0; i < 5; i++ {
		_, err := client.GetRawAsset(context.Background(), "asset-1")
		require.Error(t, err)
	}
	require.EqualValues(t, 5, atomic.LoadInt64(&hits))

	// Breaker is open now: the next call short-circuits without a request
	_, err := client.GetRawAsset(context.Background(), "asset-1")
	require.Error(t, err)
	assert.EqualValues(t, 5, atomic.LoadInt64(&hits))
}
