package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"canvasd/application/ports"
	domaincfg "canvasd/domain/config"
	"canvasd/domain/core/aggregates"
	"canvasd/domain/core/entities"
	"canvasd/domain/core/valueobjects"
	"canvasd/infrastructure/persistence/memory"
	pkgerrors "canvasd/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeGenerationService replays a scripted status sequence, holding the last
// status once the script runs out.
type fakeGenerationService struct {
	mu       sync.Mutex
	sequence []*ports.GenerationRun
	cursor   int
	getErr   error
	created  []string
}

func (f *fakeGenerationService) CreateGenerationRun(ctx context.Context, canvasID string) (*ports.GenerationRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, canvasID)
	return &ports.GenerationRun{ID: "gen-1", Status: ports.GenerationStatusPending}, nil
}

func (f *fakeGenerationService) GetGenerationRun(ctx context.Context, runID string) (*ports.GenerationRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	if len(f.sequence) == 0 {
		return &ports.GenerationRun{ID: runID, Status: ports.GenerationStatusRunning}, nil
	}
	run := f.sequence[f.cursor]
	if f.cursor < len(f.sequence)-1 {
		f.cursor++
	}
	return run, nil
}

func (f *fakeGenerationService) ListGenerationRuns(ctx context.Context, filter ports.GenerationFilter) ([]*ports.GenerationRun, error) {
	return nil, nil
}

type pollerFixture struct {
	poller      *GenerationPoller
	store       ports.CanvasStore
	generations *fakeGenerationService
	activity    *ActivityLog
	canvas      *aggregates.Canvas
	output      *entities.Node
}

func newPollerFixture(t *testing.T) *pollerFixture {
	t.Helper()
	logger := zap.NewNop()
	store := memory.NewCanvasStore(logger)
	generations := &fakeGenerationService{}
	activity := NewActivityLog(40)
	notices := NewNoticeCenter(time.Minute)

	cfg := domaincfg.DefaultDomainConfig()
	cfg.GenerationPollInterval = 10 * time.Millisecond

	poller := NewGenerationPoller(store, generations, activity, notices, nil, cfg, logger)

	canvas, err := aggregates.NewCanvas("poll test", "user-1")
	require.NoError(t, err)
	output := addNode(t, canvas, valueobjects.KindOutput, "final", nil)
	require.NoError(t, store.Save(context.Background(), canvas))

	return &pollerFixture{
		poller:      poller,
		store:       store,
		generations: generations,
		activity:    activity,
		canvas:      canvas,
		output:      output,
	}
}

func TestGenerationPoller_DoneDeliversArtifactToOutputs(t *testing.T) {
	fx := newPollerFixture(t)
	fx.generations.sequence = []*ports.GenerationRun{
		{ID: "gen-1", Status: ports.GenerationStatusRunning},
		{ID: "gen-1", Status: ports.GenerationStatusDone, Spec: ports.GenerationSpec{
			BeatSheet:  []map[string]interface{}{{"beat": "opening"}},
			Storyboard: []map[string]interface{}{{"panel": 1}},
		}},
	}

	run, err := fx.poller.Start(context.Background(), fx.canvas.ID())
	require.NoError(t, err)
	assert.Equal(t, "gen-1", run.ID)

	assert.Eventually(t, func() bool {
		return fx.poller.Status() == nil
	}, time.Second, 10*time.Millisecond)

	preview := fx.output.Generation()
	require.NotNil(t, preview)
	require.Len(t, preview.BeatSheet, 1)
	assert.Equal(t, "opening", preview.BeatSheet[0]["beat"])

	entries := fx.activity.Entries(LogFilter{Kind: KindGeneration})
	require.NotEmpty(t, entries)
	assert.Equal(t, ToneSuccess, entries[0].Tone)
}

func TestGenerationPoller_InterimTransitionsLogged(t *testing.T) {
	fx := newPollerFixture(t)
	fx.generations.sequence = []*ports.GenerationRun{
		{ID: "gen-1", Status: ports.GenerationStatusRunning},
		{ID: "gen-1", Status: ports.GenerationStatusDone},
	}

	_, err := fx.poller.Start(context.Background(), fx.canvas.ID())
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return fx.poller.Status() == nil
	}, time.Second, 10*time.Millisecond)

	var sawRunning bool
	for _, entry := range fx.activity.Entries(LogFilter{Kind: KindGeneration}) {
		if entry.Message == "Generation run is running" {
			sawRunning = true
		}
	}
	assert.True(t, sawRunning)
}

func TestGenerationPoller_FailureMarksOutputs(t *testing.T) {
	fx := newPollerFixture(t)
	fx.generations.sequence = []*ports.GenerationRun{
		{ID: "gen-1", Status: ports.GenerationStatusFailed},
	}

	_, err := fx.poller.Start(context.Background(), fx.canvas.ID())
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return fx.poller.Status() == nil
	}, time.Second, 10*time.Millisecond)

	assert.Equal(t, valueobjects.StatusError, fx.output.Status())

	entries := fx.activity.Entries(LogFilter{ErrorsOnly: true})
	require.NotEmpty(t, entries)
	assert.Equal(t, "Generation run failed", entries[0].Message)
}

func TestGenerationPoller_PollErrorSettlesFailed(t *testing.T) {
	fx := newPollerFixture(t)
	fx.generations.getErr = pkgerrors.NewUnavailableError("capsule-api")

	_, err := fx.poller.Start(context.Background(), fx.canvas.ID())
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return fx.poller.Status() == nil
	}, time.Second, 10*time.Millisecond)

	assert.Equal(t, valueobjects.StatusError, fx.output.Status())
}

func TestGenerationPoller_StartUnknownCanvas(t *testing.T) {
	fx := newPollerFixture(t)
	_, err := fx.poller.Start(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, pkgerrors.IsNotFound(err))
	assert.Empty(t, fx.generations.created)
}

func TestGenerationPoller_StopIsIdempotent(t *testing.T) {
	fx := newPollerFixture(t)
	fx.poller.Stop()

	_, err := fx.poller.Start(context.Background(), fx.canvas.ID())
	require.NoError(t, err)
	require.NotNil(t, fx.poller.Status())

	fx.poller.Stop()
	assert.Nil(t, fx.poller.Status())
	fx.poller.Stop()
}

// ctxStrictStore refuses work on a cancelled context, unlike the memory
// store which ignores it.
type ctxStrictStore struct {
	ports.CanvasStore
}

func (s *ctxStrictStore) Get(ctx context.Context, canvasID string) (*aggregates.Canvas, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.CanvasStore.Get(ctx, canvasID)
}

func (s *ctxStrictStore) Save(ctx context.Context, canvas *aggregates.Canvas) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.CanvasStore.Save(ctx, canvas)
}

func TestGenerationPoller_SettlementSurvivesWatchContextCancel(t *testing.T) {
	logger := zap.NewNop()
	store := &ctxStrictStore{CanvasStore: memory.NewCanvasStore(logger)}
	generations := &fakeGenerationService{sequence: []*ports.GenerationRun{
		{ID: "gen-1", Status: ports.GenerationStatusDone, Spec: ports.GenerationSpec{
			BeatSheet:  []map[string]interface{}{{"beat": "opening"}},
			Storyboard: []map[string]interface{}{},
		}},
	}}
	activity := NewActivityLog(40)

	cfg := domaincfg.DefaultDomainConfig()
	cfg.GenerationPollInterval = 10 * time.Millisecond
	poller := NewGenerationPoller(store, generations, activity, NewNoticeCenter(time.Minute), nil, cfg, logger)

	canvas, err := aggregates.NewCanvas("poll test", "user-1")
	require.NoError(t, err)
	output := addNode(t, canvas, valueobjects.KindOutput, "final", nil)
	require.NoError(t, store.Save(context.Background(), canvas))

	_, err = poller.Start(context.Background(), canvas.ID())
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return poller.Status() == nil
	}, time.Second, 10*time.Millisecond)

	// The watch context is cancelled when the run settles; the artifact
	// must still reach the output node.
	assert.Eventually(t, func() bool {
		return output.Generation() != nil
	}, time.Second, 10*time.Millisecond)
}

func TestGenerationPoller_WatchReplacesPreviousLoop(t *testing.T) {
	fx := newPollerFixture(t)

	fx.poller.Watch("gen-old", fx.canvas.ID(), ports.GenerationStatusPending)
	fx.poller.Watch("gen-new", fx.canvas.ID(), ports.GenerationStatusPending)

	status := fx.poller.Status()
	require.NotNil(t, status)
	assert.Equal(t, "gen-new", status.RunID)

	fx.poller.Stop()
}
