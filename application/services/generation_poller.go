package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"canvasd/application/ports"
	domaincfg "canvasd/domain/config"
	"canvasd/domain/core/entities"
	"canvasd/domain/core/valueobjects"
	pkgerrors "canvasd/pkg/errors"
	"canvasd/pkg/observability"

	"go.uber.org/zap"
)

// GenerationPoller watches one longer-lived generation run by polling its
// status on a fixed interval. Generation runs have no event stream; polling
// is the only way to observe them. One run is watched at a time; watching a
// new run stops the previous loop.
type GenerationPoller struct {
	canvases    ports.CanvasStore
	generations ports.GenerationService
	activity    *ActivityLog
	notices     *NoticeCenter
	metrics     *observability.Collector
	cfg         *domaincfg.DomainConfig
	logger      *zap.Logger

	mu         sync.Mutex
	cancel     context.CancelFunc
	runID      string
	canvasID   string
	lastStatus string
}

// GenerationStatus is a read-only snapshot of the watched run
type GenerationStatus struct {
	RunID    string `json:"run_id"`
	CanvasID string `json:"canvas_id"`
	Status   string `json:"status"`
}

// NewGenerationPoller creates a poller using the configured interval
func NewGenerationPoller(
	canvases ports.CanvasStore,
	generations ports.GenerationService,
	activity *ActivityLog,
	notices *NoticeCenter,
	metrics *observability.Collector,
	cfg *domaincfg.DomainConfig,
	logger *zap.Logger,
) *GenerationPoller {
	if cfg == nil {
		cfg = domaincfg.DefaultDomainConfig()
	}
	return &GenerationPoller{
		canvases:    canvases,
		generations: generations,
		activity:    activity,
		notices:     notices,
		metrics:     metrics,
		cfg:         cfg,
		logger:      logger,
	}
}

// Start creates a new generation run for the canvas and begins watching it
func (p *GenerationPoller) Start(ctx context.Context, canvasID string) (*ports.GenerationRun, error) {
	if _, err := p.canvases.Get(ctx, canvasID); err != nil {
		return nil, err
	}

	run, err := p.generations.CreateGenerationRun(ctx, canvasID)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "generation run request failed")
	}

	p.activity.Push(ToneInfo, "Generation run started", &LogContext{
		Kind:  KindGeneration,
		RunID: run.ID,
	}, nil)
	p.logger.Info("Generation run started",
		zap.String("canvas_id", canvasID),
		zap.String("run_id", run.ID))

	p.Watch(run.ID, canvasID, run.Status)
	return run, nil
}

// Watch begins polling an existing run, replacing any previous watch
func (p *GenerationPoller) Watch(runID, canvasID, initialStatus string) {
	ctx, cancel := context.WithCancel(context.Background())

	p.mu.Lock()
	if p.cancel != nil {
		p.cancel()
	}
	p.cancel = cancel
	p.runID = runID
	p.canvasID = canvasID
	p.lastStatus = initialStatus
	p.mu.Unlock()

	go p.loop(ctx, runID, canvasID)
}

// Stop halts the poll loop. Safe to call repeatedly or with nothing watched.
func (p *GenerationPoller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
}

// Status returns a snapshot of the watched run, or nil when idle
func (p *GenerationPoller) Status() *GenerationStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel == nil {
		return nil
	}
	return &GenerationStatus{
		RunID:    p.runID,
		CanvasID: p.canvasID,
		Status:   p.lastStatus,
	}
}

func (p *GenerationPoller) loop(ctx context.Context, runID, canvasID string) {
	ticker := time.NewTicker(p.cfg.GenerationPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if p.metrics != nil {
			p.metrics.PollTicks.Inc()
		}

		run, err := p.generations.GetGenerationRun(ctx, runID)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.settleFailed(ctx, runID, canvasID, "Generation status check failed: "+pkgerrors.UserMessage(err))
			return
		}

		p.noteStatus(runID, run.Status)

		switch run.Status {
		case ports.GenerationStatusDone:
			p.settleDone(ctx, run, canvasID)
			return
		case ports.GenerationStatusFailed:
			p.settleFailed(ctx, runID, canvasID, "Generation run failed")
			return
		}
	}
}

// noteStatus records interim status transitions in the activity log
func (p *GenerationPoller) noteStatus(runID, status string) {
	p.mu.Lock()
	changed := status != p.lastStatus
	p.lastStatus = status
	p.mu.Unlock()

	if !changed || status == ports.GenerationStatusDone || status == ports.GenerationStatusFailed {
		return
	}
	p.activity.Push(ToneInfo, fmt.Sprintf("Generation run is %s", status), &LogContext{
		Kind:  KindGeneration,
		RunID: runID,
	}, nil)
}

// settleDone pushes the finished artifact into every output node. The loop's
// own context dies with clearWatch, so settlement I/O runs on a fresh one.
func (p *GenerationPoller) settleDone(_ context.Context, run *ports.GenerationRun, canvasID string) {
	p.clearWatch()
	ctx := context.Background()

	canvas, err := p.canvases.Get(ctx, canvasID)
	if err != nil {
		p.logger.Error("Generation finished for missing canvas",
			zap.String("canvas_id", canvasID), zap.Error(err))
		return
	}

	preview := &entities.GenerationPreview{
		BeatSheet:  run.Spec.BeatSheet,
		Storyboard: run.Spec.Storyboard,
	}
	outputs := canvas.NodesOfKind(valueobjects.KindOutput)
	for _, node := range outputs {
		node.SetGenerationPreview(preview)
	}
	if err := p.canvases.Save(ctx, canvas); err != nil {
		p.logger.Warn("Failed to save canvas after generation", zap.Error(err))
	}

	message := "Generation run completed"
	p.activity.Push(ToneSuccess, message, &LogContext{
		Kind:  KindGeneration,
		RunID: run.ID,
	}, nil)
	p.notices.Post(ToneSuccess, message)
	if p.metrics != nil {
		p.metrics.GenerationsDone.Inc()
	}
	p.logger.Info("Generation run completed",
		zap.String("run_id", run.ID),
		zap.Int("output_nodes", len(outputs)))
}

// settleFailed marks every output node failed with the given message
func (p *GenerationPoller) settleFailed(_ context.Context, runID, canvasID, message string) {
	p.clearWatch()
	ctx := context.Background()

	canvas, err := p.canvases.Get(ctx, canvasID)
	if err == nil {
		for _, node := range canvas.NodesOfKind(valueobjects.KindOutput) {
			if err := node.RejectRun(message); err != nil {
				p.logger.Debug("Output node failure transition rejected", zap.Error(err))
			}
		}
		if err := p.canvases.Save(ctx, canvas); err != nil {
			p.logger.Warn("Failed to save canvas after generation failure", zap.Error(err))
		}
	}

	p.activity.Push(ToneError, message, &LogContext{
		Kind:  KindGeneration,
		RunID: runID,
	}, nil)
	p.notices.Post(ToneError, message)
	p.logger.Warn("Generation run failed",
		zap.String("run_id", runID),
		zap.String("reason", message))
}

func (p *GenerationPoller) clearWatch() {
	p.mu.Lock()
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	p.mu.Unlock()
}
