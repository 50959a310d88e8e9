package ports

import "context"

// Context modes accepted by the upstream resolver and the capsule contract.
const (
	ContextModeAggregate  = "aggregate"
	ContextModeSequential = "sequential"
)

// ContextNode is one upstream node as it appears in a run payload
type ContextNode struct {
	ID             string                 `json:"id"`
	Type           string                 `json:"type"`
	Label          string                 `json:"label"`
	Params         map[string]interface{} `json:"params"`
	CapsuleID      string                 `json:"capsuleId,omitempty"`
	CapsuleVersion string                 `json:"capsuleVersion,omitempty"`
}

// ContextEdge is one upstream edge as it appears in a run payload
type ContextEdge struct {
	ID     string `json:"id"`
	Source string `json:"source"`
	Target string `json:"target"`
}

// UpstreamContext is the ephemeral snapshot of every ancestor feeding a
// target node. It is computed fresh on each run request and never cached,
// since the canvas may have changed between computations.
type UpstreamContext struct {
	Nodes    []ContextNode `json:"nodes"`
	Edges    []ContextEdge `json:"edges"`
	Mode     string        `json:"mode,omitempty"`
	Sequence []ContextNode `json:"sequence,omitempty"`
}

// InputContract is the declared input contract of a capsule
type InputContract struct {
	Required     []string `json:"required"`
	Optional     []string `json:"optional"`
	MaxUpstream  int      `json:"max_upstream"` // 0 means uncapped
	AllowedTypes []string `json:"allowed_types"`
	ContextMode  string   `json:"context_mode"`
}

// CapsuleSpec is the externally-fetched declaration of a capsule
type CapsuleSpec struct {
	Version       string                 `json:"version"`
	ExposedParams map[string]interface{} `json:"exposed_params"`
	InputContract InputContract          `json:"input_contract"`
}

// RunRequest is the payload for issuing an asynchronous capsule run
type RunRequest struct {
	CapsuleID      string                 `json:"capsule_id"`
	CapsuleVersion string                 `json:"capsule_version"`
	CanvasID       string                 `json:"canvas_id,omitempty"`
	NodeID         string                 `json:"node_id"`
	Inputs         map[string]interface{} `json:"inputs"`
	Params         map[string]interface{} `json:"params"`
	// Context is nil for persisted canvases; the backend resolves it then.
	Context    *UpstreamContext       `json:"context,omitempty"`
	Extensions map[string]interface{} `json:"extensions,omitempty"`
	Language   string                 `json:"language,omitempty"`
}

// RunReceipt acknowledges an accepted run request
type RunReceipt struct {
	RunID   string `json:"run_id"`
	Version string `json:"version,omitempty"`
}

// RunEventType tags a streamed lifecycle event
type RunEventType string

const (
	RunQueued    RunEventType = "run.queued"
	RunStarted   RunEventType = "run.started"
	RunProgress  RunEventType = "run.progress"
	RunPartial   RunEventType = "run.partial"
	RunCompleted RunEventType = "run.completed"
	RunFailed    RunEventType = "run.failed"
	RunCancelled RunEventType = "run.cancelled"
)

// IsTerminal reports whether the event ends the stream
func (t RunEventType) IsTerminal() bool {
	switch t {
	case RunCompleted, RunFailed, RunCancelled:
		return true
	}
	return false
}

// IsProgress reports whether the event carries interim progress
func (t RunEventType) IsProgress() bool {
	switch t {
	case RunQueued, RunStarted, RunProgress, RunPartial:
		return true
	}
	return false
}

// RunEvent is a streamed lifecycle event, normalized once at the transport
// boundary. Optional wire fields are extracted into typed fields here so the
// controller never re-parses loose payloads.
type RunEvent struct {
	Type     RunEventType
	Message  string
	Progress *int // nil when the server omitted a value
	Error    string
}

// StreamHandle controls a live run-event subscription. Cancel sends the
// cooperative cancel signal without tearing the stream down; Close tears the
// stream down and suppresses further callbacks.
type StreamHandle interface {
	Cancel()
	Close()
}

// StreamCallbacks receives events and transport errors from a subscription
type StreamCallbacks struct {
	OnEvent func(RunEvent)
	OnError func(error)
}

// StoryboardPreview is the rendered output of a completed capsule run
type StoryboardPreview struct {
	OutputLanguage     string                   `json:"output_language"`
	EvidenceRefs       []string                 `json:"evidence_refs"`
	AvailableLanguages []string                 `json:"available_languages"`
	Panels             []map[string]interface{} `json:"panels"`
}

// CapsuleService is the remote capsule API this service orchestrates against
type CapsuleService interface {
	GetCapsuleSpec(ctx context.Context, capsuleID, version string) (*CapsuleSpec, error)
	RunCapsule(ctx context.Context, req *RunRequest) (*RunReceipt, error)
	StreamCapsuleRun(ctx context.Context, runID string, callbacks StreamCallbacks) (StreamHandle, error)
	CancelCapsuleRun(ctx context.Context, runID string) error
	GetStoryboardPreview(ctx context.Context, capsuleID, runID string, count int, language string) (*StoryboardPreview, error)
}

// Generation run statuses reported by the backend.
const (
	GenerationStatusPending = "pending"
	GenerationStatusRunning = "running"
	GenerationStatusDone    = "done"
	GenerationStatusFailed  = "failed"
)

// GenerationSpec is the artifact of a finished generation run. Both arrays
// default to empty when the backend omits or malforms them.
type GenerationSpec struct {
	BeatSheet  []map[string]interface{} `json:"beat_sheet"`
	Storyboard []map[string]interface{} `json:"storyboard"`
}

// GenerationRun is a longer-lived, polled job
type GenerationRun struct {
	ID     string         `json:"id"`
	Status string         `json:"status"`
	Spec   GenerationSpec `json:"spec"`
}

// GenerationFilter narrows a generation run listing
type GenerationFilter struct {
	CanvasID string
	Status   string
	Limit    int
}

// GenerationService drives longer-running generation jobs
type GenerationService interface {
	CreateGenerationRun(ctx context.Context, canvasID string) (*GenerationRun, error)
	GetGenerationRun(ctx context.Context, runID string) (*GenerationRun, error)
	ListGenerationRuns(ctx context.Context, filter GenerationFilter) ([]*GenerationRun, error)
}

// RawAsset describes an uploaded source asset
type RawAsset struct {
	SourceType string `json:"source_type"`
}

// AssetService looks up raw source assets; the lookup is privilege-gated
type AssetService interface {
	GetRawAsset(ctx context.Context, sourceID string) (*RawAsset, error)
}
