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
	"canvasd/pkg/extensions"
	"canvasd/pkg/observability"

	"go.uber.org/zap"
)

// previewAttempt is the single-flight record of the one preview run that may
// be live at a time. Each attempt gets a fresh id from a monotonic counter;
// stream callbacks carry the id they were registered under, and events whose
// id no longer matches the live attempt are discarded. That fences off the
// race between a user-initiated cancel and a late terminal event from the
// superseded stream.
type previewAttempt struct {
	id             int64
	canvasID       string
	nodeID         valueobjects.NodeID
	capsuleID      string
	capsuleVersion string
	runID          string
	language       string
	startedAt      time.Time

	// stream is nil after a transport failure: the subscription is gone but
	// the run may still be live server-side, so the attempt stays addressable
	// for an out-of-band cancel.
	stream       ports.StreamHandle
	inFlight     bool
	progressSeen bool
}

// StartOptions tune one preview attempt
type StartOptions struct {
	Language   string
	Extensions map[string]interface{}
}

// PreviewStatus is a read-only snapshot of the live attempt
type PreviewStatus struct {
	CanvasID  string    `json:"canvas_id"`
	NodeID    string    `json:"node_id"`
	CapsuleID string    `json:"capsule_id"`
	RunID     string    `json:"run_id"`
	StartedAt time.Time `json:"started_at"`
	InFlight  bool      `json:"in_flight"`
	HasStream bool      `json:"has_stream"`
}

// RunController drives the full lifecycle of capsule preview runs: contract
// checks, run issuance, event streaming, settlement, cancellation, and
// preview language switching. At most one preview run is live at a time;
// starting a new one supersedes the old.
type RunController struct {
	canvases   ports.CanvasStore
	capsules   ports.CapsuleService
	assets     ports.AssetService
	resolver   *ContextResolver
	extensions *extensions.Registry
	activity   *ActivityLog
	notices    *NoticeCenter
	metrics    *observability.Collector
	cfg        *domaincfg.DomainConfig
	logger     *zap.Logger

	mu         sync.Mutex
	attemptSeq int64
	active     *previewAttempt
}

// NewRunController creates the orchestrator for capsule preview runs
func NewRunController(
	canvases ports.CanvasStore,
	capsules ports.CapsuleService,
	assets ports.AssetService,
	resolver *ContextResolver,
	registry *extensions.Registry,
	activity *ActivityLog,
	notices *NoticeCenter,
	metrics *observability.Collector,
	cfg *domaincfg.DomainConfig,
	logger *zap.Logger,
) *RunController {
	if cfg == nil {
		cfg = domaincfg.DefaultDomainConfig()
	}
	return &RunController{
		canvases:   canvases,
		capsules:   capsules,
		assets:     assets,
		resolver:   resolver,
		extensions: registry,
		activity:   activity,
		notices:    notices,
		metrics:    metrics,
		cfg:        cfg,
		logger:     logger,
	}
}

// StartPreview runs the full preview pipeline for a capsule node and, on
// success, returns the accepted run id with the event subscription already
// live. Pre-flight contract violations reject the attempt without any run
// being issued.
func (c *RunController) StartPreview(ctx context.Context, canvasID string, nodeID valueobjects.NodeID, opts StartOptions) (string, error) {
	canvas, err := c.canvases.Get(ctx, canvasID)
	if err != nil {
		return "", err
	}
	node, err := canvas.Node(nodeID)
	if err != nil {
		return "", err
	}
	if node.Kind() != valueobjects.KindCapsule {
		return "", pkgerrors.NewValidationError("preview requires a capsule node, got " + node.Kind().String())
	}
	capsule := node.Capsule()
	if capsule.IsZero() {
		return "", pkgerrors.NewCapsuleRefMissingError(nodeID.String())
	}
	if node.Status().Active() {
		return "", pkgerrors.NewRunInFlightError(nodeID.String(), node.ActiveRunID())
	}

	p := &previewPipeline{
		canvas:     canvas,
		node:       node,
		capsule:    capsule,
		language:   opts.Language,
		extensions: c.collectExtensions(ctx, canvasID, nodeID, opts.Extensions),
	}
	if p.language == "" {
		p.language = c.cfg.DefaultLanguage
	}

	// Persisted canvases skip straight to issuance; the backend re-validates
	// the contract and resolves context on its side.
	stage := stageFetchContract
	if canvas.Persisted() {
		stage = stageIssueRun
	}

	for stage != stageSettled {
		switch stage {
		case stageFetchContract:
			if err := c.fetchContract(ctx, p); err != nil {
				c.abortAttempt(ctx, p, err)
				return "", err
			}
			stage = stageResolveContext

		case stageResolveContext:
			c.resolveUpstream(p)
			stage = stageCheckCeiling

		case stageCheckCeiling:
			if err := c.checkCeiling(p); err != nil {
				c.rejectAttempt(ctx, p, err)
				return "", err
			}
			stage = stageCheckSourceTypes

		case stageCheckSourceTypes:
			if err := c.checkSourceTypes(ctx, p); err != nil {
				if pkgerrors.IsValidation(err) {
					c.rejectAttempt(ctx, p, err)
				} else {
					c.abortAttempt(ctx, p, err)
				}
				return "", err
			}
			stage = stageIssueRun

		case stageIssueRun:
			if err := c.issueRun(ctx, p); err != nil {
				c.abortAttempt(ctx, p, err)
				return "", err
			}
			stage = stageSettled
		}
	}

	runID := p.receipt.RunID

	c.mu.Lock()
	// A new attempt supersedes whatever was live before it.
	if prior := c.active; prior != nil && prior.stream != nil {
		prior.stream.Close()
	}
	c.attemptSeq++
	attempt := &previewAttempt{
		id:             c.attemptSeq,
		canvasID:       canvasID,
		nodeID:         nodeID,
		capsuleID:      capsule.ID(),
		capsuleVersion: capsule.Version(),
		runID:          runID,
		language:       p.language,
		startedAt:      time.Now(),
		inFlight:       true,
	}
	c.active = attempt
	attemptID := attempt.id

	if err := node.BeginRun(runID); err != nil {
		c.active = nil
		c.mu.Unlock()
		return "", err
	}
	c.mu.Unlock()

	if err := c.canvases.Save(ctx, canvas); err != nil {
		c.logger.Warn("Failed to save canvas after run start", zap.Error(err))
	}

	c.activity.Push(ToneInfo, fmt.Sprintf("Capsule run started for %q", node.Label()), &LogContext{
		Kind:      KindCapsuleRun,
		RunID:     runID,
		CapsuleID: capsule.ID(),
	}, nil)
	if c.metrics != nil {
		c.metrics.RunsStarted.Inc()
	}
	c.logger.Info("Capsule run started",
		zap.String("canvas_id", canvasID),
		zap.String("node_id", nodeID.String()),
		zap.String("capsule_id", capsule.ID()),
		zap.String("run_id", runID))

	// The subscription outlives the request that started it; the stream
	// handle owns its context.
	stream, err := c.capsules.StreamCapsuleRun(context.Background(), runID, ports.StreamCallbacks{
		OnEvent: func(ev ports.RunEvent) { c.handleStreamEvent(attemptID, ev) },
		OnError: func(err error) { c.handleStreamError(attemptID, err) },
	})
	if err != nil {
		c.mu.Lock()
		if c.active != nil && c.active.id == attemptID {
			// No subscription ever existed, but the run was accepted, so keep
			// the attempt addressable for cancellation.
			c.active.stream = nil
		}
		c.mu.Unlock()
		c.failNode(context.Background(), canvasID, nodeID, "Event stream unavailable: "+pkgerrors.UserMessage(err))
		return runID, pkgerrors.Wrap(err, "event stream subscription failed")
	}

	c.mu.Lock()
	if c.active != nil && c.active.id == attemptID {
		c.active.stream = stream
	} else {
		// Superseded before the subscription landed.
		stream.Close()
	}
	c.mu.Unlock()

	return runID, nil
}

// CancelPreview cancels the live preview run. The cooperative cancel signal
// goes through the stream first; if the run is still in flight after the
// fallback delay, an out-of-band cancel call is issued. With no live
// subscription the out-of-band call is made directly.
func (c *RunController) CancelPreview(ctx context.Context) error {
	c.mu.Lock()
	attempt := c.active
	if attempt == nil {
		c.mu.Unlock()
		return pkgerrors.NewNoRunToCancelError()
	}
	attemptID := attempt.id
	runID := attempt.runID
	stream := attempt.stream
	c.mu.Unlock()

	if stream == nil {
		c.logger.Info("Cancelling run out-of-band, no live subscription",
			zap.String("run_id", runID))
		if err := c.capsules.CancelCapsuleRun(ctx, runID); err != nil {
			return pkgerrors.Wrap(err, "cancel request failed")
		}
		c.settleCancelled(attemptID, "Run cancelled")
		return nil
	}

	stream.Cancel()
	time.AfterFunc(c.cfg.CancelFallbackDelay, func() {
		c.mu.Lock()
		stale := c.active != nil && c.active.id == attemptID && c.active.inFlight
		c.mu.Unlock()
		if !stale {
			return
		}
		c.logger.Warn("Cooperative cancel unacknowledged, issuing fallback cancel",
			zap.String("run_id", runID),
			zap.Duration("waited", c.cfg.CancelFallbackDelay))
		if err := c.capsules.CancelCapsuleRun(context.Background(), runID); err != nil {
			c.logger.Error("Fallback cancel failed", zap.String("run_id", runID), zap.Error(err))
			return
		}
		c.settleCancelled(attemptID, "Run cancelled")
	})
	return nil
}

// SetPreviewLanguage re-fetches the rendered preview of the node's last
// completed run in another language. No new run is issued.
func (c *RunController) SetPreviewLanguage(ctx context.Context, canvasID string, nodeID valueobjects.NodeID, language string) error {
	canvas, err := c.canvases.Get(ctx, canvasID)
	if err != nil {
		return err
	}
	node, err := canvas.Node(nodeID)
	if err != nil {
		return err
	}
	if node.Status() != valueobjects.StatusComplete || node.LastRunID() == "" || node.Capsule().IsZero() {
		return pkgerrors.NewNoPreviewAvailableError(nodeID.String())
	}

	preview, err := c.capsules.GetStoryboardPreview(ctx, node.Capsule().ID(), node.LastRunID(), c.cfg.DefaultPreviewCount, language)
	if err != nil {
		return pkgerrors.Wrap(err, "preview re-fetch failed")
	}

	node.SetRenderedPreview(renderedPreviewOf(preview, language), preview.EvidenceRefs)
	if err := c.canvases.Save(ctx, canvas); err != nil {
		return err
	}

	c.activity.Push(ToneInfo, fmt.Sprintf("Preview for %q re-rendered in %s", node.Label(), language), &LogContext{
		Kind:      KindCapsuleRun,
		RunID:     node.LastRunID(),
		CapsuleID: node.Capsule().ID(),
	}, nil)
	return nil
}

// ActivePreview returns a snapshot of the live attempt, or nil when idle
func (c *RunController) ActivePreview() *PreviewStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil {
		return nil
	}
	return &PreviewStatus{
		CanvasID:  c.active.canvasID,
		NodeID:    c.active.nodeID.String(),
		CapsuleID: c.active.capsuleID,
		RunID:     c.active.runID,
		StartedAt: c.active.startedAt,
		InFlight:  c.active.inFlight,
		HasStream: c.active.stream != nil,
	}
}

// Close tears down the live subscription, if any. Used on shutdown.
func (c *RunController) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active != nil && c.active.stream != nil {
		c.active.stream.Close()
	}
	c.active = nil
}

// handleStreamEvent dispatches one streamed lifecycle event. Events from
// attempts other than the live one are discarded.
func (c *RunController) handleStreamEvent(attemptID int64, ev ports.RunEvent) {
	c.mu.Lock()
	attempt := c.active
	if attempt == nil || attempt.id != attemptID {
		c.mu.Unlock()
		c.logger.Debug("Discarding event from superseded attempt",
			zap.Int64("attempt_id", attemptID),
			zap.String("event", string(ev.Type)))
		return
	}

	if c.metrics != nil {
		c.metrics.StreamEvents.WithLabelValues(string(ev.Type)).Inc()
	}

	switch {
	case ev.Type.IsProgress():
		c.applyProgress(attempt, ev)
		c.mu.Unlock()

	case ev.Type == ports.RunCompleted:
		attempt.inFlight = false
		if attempt.stream != nil {
			attempt.stream.Close()
		}
		c.active = nil
		c.mu.Unlock()
		c.completeRun(attempt)

	case ev.Type == ports.RunFailed:
		attempt.inFlight = false
		if attempt.stream != nil {
			attempt.stream.Close()
		}
		c.active = nil
		c.mu.Unlock()
		message := ev.Error
		if message == "" {
			message = "Capsule run failed"
		}
		c.failAttempt(attempt, message)

	case ev.Type == ports.RunCancelled:
		attempt.inFlight = false
		if attempt.stream != nil {
			attempt.stream.Close()
		}
		c.active = nil
		c.mu.Unlock()
		c.cancelAttempt(attempt, "Run cancelled")

	default:
		c.mu.Unlock()
		c.logger.Debug("Ignoring unknown run event", zap.String("event", string(ev.Type)))
	}
}

// handleStreamError reacts to a transport failure of the subscription. The
// node is marked failed, but the attempt stays addressable: the run may
// still be live server-side and an out-of-band cancel must remain possible.
func (c *RunController) handleStreamError(attemptID int64, err error) {
	c.mu.Lock()
	attempt := c.active
	if attempt == nil || attempt.id != attemptID {
		c.mu.Unlock()
		return
	}
	if attempt.stream != nil {
		attempt.stream.Close()
		attempt.stream = nil
	}
	c.mu.Unlock()

	message := "Event stream lost: " + pkgerrors.UserMessage(err)
	c.failNode(context.Background(), attempt.canvasID, attempt.nodeID, message)
	c.activity.Push(ToneError, message, &LogContext{
		Kind:      KindCapsuleRun,
		RunID:     attempt.runID,
		CapsuleID: attempt.capsuleID,
	}, nil)
	c.notices.Post(ToneError, message)
	if c.metrics != nil {
		c.metrics.RunsFailed.Inc()
	}
	c.logger.Error("Run event stream failed",
		zap.String("run_id", attempt.runID),
		zap.Error(err))
}

// applyProgress records an interim event on the node. Caller holds the lock.
func (c *RunController) applyProgress(attempt *previewAttempt, ev ports.RunEvent) {
	canvas, err := c.canvases.Get(context.Background(), attempt.canvasID)
	if err != nil {
		return
	}
	node, err := canvas.Node(attempt.nodeID)
	if err != nil {
		return
	}

	progress := node.Progress()
	if ev.Progress != nil {
		progress = *ev.Progress
	} else if !attempt.progressSeen {
		// First chunk with no server-reported value still moves the bar.
		progress = c.cfg.FirstChunkProgress
	}
	attempt.progressSeen = true

	if err := node.MarkStreaming(progress, ev.Message); err != nil {
		c.logger.Debug("Progress event ignored", zap.String("node_id", attempt.nodeID.String()), zap.Error(err))
	}
}

// completeRun settles a successful run and fetches its rendered preview
func (c *RunController) completeRun(attempt *previewAttempt) {
	ctx := context.Background()
	latency := time.Since(attempt.startedAt)

	canvas, err := c.canvases.Get(ctx, attempt.canvasID)
	if err != nil {
		c.logger.Error("Completed run for missing canvas", zap.String("canvas_id", attempt.canvasID), zap.Error(err))
		return
	}
	node, err := canvas.Node(attempt.nodeID)
	if err != nil {
		c.logger.Error("Completed run for missing node", zap.String("node_id", attempt.nodeID.String()), zap.Error(err))
		return
	}
	if err := node.CompleteRun(); err != nil {
		c.logger.Warn("Run completion transition rejected", zap.Error(err))
		return
	}

	if c.metrics != nil {
		c.metrics.RunsCompleted.Inc()
		c.metrics.RunDuration.Observe(latency.Seconds())
	}

	preview, err := c.capsules.GetStoryboardPreview(ctx, attempt.capsuleID, attempt.runID, c.cfg.DefaultPreviewCount, attempt.language)
	if err != nil {
		message := "Run finished but the preview could not be fetched: " + pkgerrors.UserMessage(err)
		c.activity.Push(ToneWarning, message, &LogContext{
			Kind:      KindCapsuleRun,
			RunID:     attempt.runID,
			CapsuleID: attempt.capsuleID,
		}, &LogMetrics{LatencyMS: latency.Milliseconds()})
		c.notices.Post(ToneWarning, message)
	} else {
		node.SetRenderedPreview(renderedPreviewOf(preview, attempt.language), preview.EvidenceRefs)
		message := fmt.Sprintf("Capsule run for %q completed", node.Label())
		c.activity.Push(ToneSuccess, message, &LogContext{
			Kind:      KindCapsuleRun,
			RunID:     attempt.runID,
			CapsuleID: attempt.capsuleID,
		}, &LogMetrics{LatencyMS: latency.Milliseconds()})
		c.notices.Post(ToneSuccess, message)
	}

	if err := c.canvases.Save(ctx, canvas); err != nil {
		c.logger.Warn("Failed to save canvas after run completion", zap.Error(err))
	}
	c.logger.Info("Capsule run completed",
		zap.String("run_id", attempt.runID),
		zap.Duration("latency", latency))
}

// failAttempt settles a run the server reported as failed
func (c *RunController) failAttempt(attempt *previewAttempt, message string) {
	c.failNode(context.Background(), attempt.canvasID, attempt.nodeID, message)
	c.activity.Push(ToneError, message, &LogContext{
		Kind:      KindCapsuleRun,
		RunID:     attempt.runID,
		CapsuleID: attempt.capsuleID,
	}, &LogMetrics{LatencyMS: time.Since(attempt.startedAt).Milliseconds()})
	c.notices.Post(ToneError, message)
	if c.metrics != nil {
		c.metrics.RunsFailed.Inc()
	}
	c.logger.Warn("Capsule run failed",
		zap.String("run_id", attempt.runID),
		zap.String("reason", message))
}

// cancelAttempt settles a run the server acknowledged as cancelled
func (c *RunController) cancelAttempt(attempt *previewAttempt, message string) {
	ctx := context.Background()
	canvas, err := c.canvases.Get(ctx, attempt.canvasID)
	if err == nil {
		if node, nodeErr := canvas.Node(attempt.nodeID); nodeErr == nil {
			if err := node.CancelRun(message); err != nil {
				c.logger.Debug("Cancel transition rejected", zap.Error(err))
			}
			if err := c.canvases.Save(ctx, canvas); err != nil {
				c.logger.Warn("Failed to save canvas after cancel", zap.Error(err))
			}
		}
	}

	c.activity.Push(ToneWarning, message, &LogContext{
		Kind:      KindCapsuleRun,
		RunID:     attempt.runID,
		CapsuleID: attempt.capsuleID,
	}, nil)
	c.notices.Post(ToneWarning, message)
	if c.metrics != nil {
		c.metrics.RunsCancelled.Inc()
	}
	c.logger.Info("Capsule run cancelled", zap.String("run_id", attempt.runID))
}

// settleCancelled resolves the attempt by id and settles it as cancelled.
// Used by the out-of-band cancel paths, which do not hold an attempt pointer
// once the lock is released.
func (c *RunController) settleCancelled(attemptID int64, message string) {
	c.mu.Lock()
	attempt := c.active
	if attempt == nil || attempt.id != attemptID {
		c.mu.Unlock()
		return
	}
	attempt.inFlight = false
	if attempt.stream != nil {
		attempt.stream.Close()
	}
	c.active = nil
	c.mu.Unlock()
	c.cancelAttempt(attempt, message)
}

// rejectAttempt handles a pre-flight contract violation: the node goes to
// error with a user-facing message and no network call is made.
func (c *RunController) rejectAttempt(ctx context.Context, p *previewPipeline, cause error) {
	message := pkgerrors.UserMessage(cause)
	if err := p.node.RejectRun(message); err != nil {
		c.logger.Warn("Contract rejection transition failed", zap.Error(err))
	}
	if err := c.canvases.Save(ctx, p.canvas); err != nil {
		c.logger.Warn("Failed to save canvas after contract rejection", zap.Error(err))
	}

	c.activity.Push(ToneError, message, &LogContext{
		Kind:      KindCapsuleRun,
		CapsuleID: p.capsule.ID(),
	}, nil)
	c.notices.Post(ToneError, message)
	if c.metrics != nil {
		c.metrics.ContractRejections.Inc()
	}
	c.logger.Info("Preview rejected by input contract",
		zap.String("node_id", p.node.ID().String()),
		zap.String("capsule_id", p.capsule.ID()),
		zap.String("reason", message))
}

// abortAttempt handles an infrastructure failure before a run was accepted
func (c *RunController) abortAttempt(ctx context.Context, p *previewPipeline, cause error) {
	message := pkgerrors.UserMessage(cause)
	if err := p.node.RejectRun(message); err != nil {
		c.logger.Warn("Abort transition failed", zap.Error(err))
	}
	if err := c.canvases.Save(ctx, p.canvas); err != nil {
		c.logger.Warn("Failed to save canvas after aborted attempt", zap.Error(err))
	}

	c.activity.Push(ToneError, message, &LogContext{
		Kind:      KindCapsuleRun,
		CapsuleID: p.capsule.ID(),
	}, nil)
	c.notices.Post(ToneError, message)
	c.logger.Error("Preview attempt aborted",
		zap.String("node_id", p.node.ID().String()),
		zap.String("capsule_id", p.capsule.ID()),
		zap.Error(cause))
}

// failNode marks a node failed, tolerating a missing canvas or node
func (c *RunController) failNode(ctx context.Context, canvasID string, nodeID valueobjects.NodeID, message string) {
	canvas, err := c.canvases.Get(ctx, canvasID)
	if err != nil {
		return
	}
	node, err := canvas.Node(nodeID)
	if err != nil {
		return
	}
	if err := node.FailRun(message); err != nil {
		c.logger.Debug("Fail transition rejected", zap.Error(err))
		return
	}
	if err := c.canvases.Save(ctx, canvas); err != nil {
		c.logger.Warn("Failed to save canvas after run failure", zap.Error(err))
	}
}

// collectExtensions merges registered payload providers with caller-supplied
// extension values; caller values win on key conflicts.
func (c *RunController) collectExtensions(ctx context.Context, canvasID string, nodeID valueobjects.NodeID, overrides map[string]interface{}) map[string]interface{} {
	var merged map[string]interface{}
	if c.extensions != nil {
		merged = c.extensions.Collect(ctx, canvasID, nodeID.String())
	}
	if merged == nil {
		merged = make(map[string]interface{})
	}
	for k, v := range overrides {
		merged[k] = v
	}
	if len(merged) == 0 {
		return nil
	}
	return merged
}

func renderedPreviewOf(preview *ports.StoryboardPreview, requested string) *entities.RenderedPreview {
	language := preview.OutputLanguage
	if language == "" {
		language = requested
	}
	return &entities.RenderedPreview{
		Language:           language,
		AvailableLanguages: preview.AvailableLanguages,
		Panels:             preview.Panels,
	}
}
