package entities

import (
	"time"

	"canvasd/domain/core/valueobjects"
	"canvasd/domain/events"
	pkgerrors "canvasd/pkg/errors"
)

// RenderedPreview is the rendered output fetched after a capsule run
// completes, for one requested language.
type RenderedPreview struct {
	Language           string
	AvailableLanguages []string
	Panels             []map[string]interface{}
}

// GenerationPreview carries the beat-sheet/storyboard artifact a generation
// run produces for output nodes.
type GenerationPreview struct {
	BeatSheet  []map[string]interface{}
	Storyboard []map[string]interface{}
}

// Node is the main entity representing one typed vertex on a canvas.
// This is a rich domain model with encapsulated run-lifecycle logic.
type Node struct {
	// Private fields ensure encapsulation
	id      valueobjects.NodeID
	kind    valueobjects.NodeKind
	label   string
	params  map[string]interface{}
	capsule valueobjects.CapsuleRef

	status       valueobjects.RunStatus
	statusNote   string
	progress     int
	activeRunID  string
	lastRunID    string
	evidenceRefs []string
	preview      *RenderedPreview
	generation   *GenerationPreview

	createdAt time.Time
	updatedAt time.Time

	// Domain events that occurred during this entity's lifetime
	events []events.DomainEvent
}

// NewNode creates a new node of the given kind
func NewNode(kind valueobjects.NodeKind, label string, params map[string]interface{}) (*Node, error) {
	if !kind.IsValid() {
		return nil, pkgerrors.NewValidationError("unknown node kind: " + kind.String())
	}
	if params == nil {
		params = make(map[string]interface{})
	}

	now := time.Now()
	return &Node{
		id:        valueobjects.NewNodeID(),
		kind:      kind,
		label:     label,
		params:    params,
		status:    valueobjects.StatusIdle,
		createdAt: now,
		updatedAt: now,
		events:    []events.DomainEvent{},
	}, nil
}

// NewCapsuleNode creates a capsule-kind node bound to a server-side capsule
func NewCapsuleNode(label string, params map[string]interface{}, capsule valueobjects.CapsuleRef) (*Node, error) {
	if capsule.IsZero() {
		return nil, pkgerrors.NewValidationError("capsule node requires a capsule reference")
	}
	node, err := NewNode(valueobjects.KindCapsule, label, params)
	if err != nil {
		return nil, err
	}
	node.capsule = capsule
	return node, nil
}

// ReconstructNode rebuilds a node from stored data with preserved identity
func ReconstructNode(
	id valueobjects.NodeID,
	kind valueobjects.NodeKind,
	label string,
	params map[string]interface{},
	capsule valueobjects.CapsuleRef,
) (*Node, error) {
	if id.IsZero() {
		return nil, pkgerrors.NewValidationError("node ID cannot be empty")
	}
	if !kind.IsValid() {
		return nil, pkgerrors.NewValidationError("unknown node kind: " + kind.String())
	}
	if kind == valueobjects.KindCapsule && capsule.IsZero() {
		return nil, pkgerrors.NewValidationError("capsule node requires a capsule reference")
	}
	if params == nil {
		params = make(map[string]interface{})
	}

	now := time.Now()
	return &Node{
		id:        id,
		kind:      kind,
		label:     label,
		params:    params,
		capsule:   capsule,
		status:    valueobjects.StatusIdle,
		createdAt: now,
		updatedAt: now,
		events:    []events.DomainEvent{},
	}, nil
}

// ID returns the node's unique identifier
func (n *Node) ID() valueobjects.NodeID {
	return n.id
}

// Kind returns the node's declared kind
func (n *Node) Kind() valueobjects.NodeKind {
	return n.kind
}

// Label returns the node's display label
func (n *Node) Label() string {
	return n.label
}

// Capsule returns the capsule reference; zero for non-capsule nodes
func (n *Node) Capsule() valueobjects.CapsuleRef {
	return n.capsule
}

// Status returns the node's current run status
func (n *Node) Status() valueobjects.RunStatus {
	return n.status
}

// StatusNote returns the user-visible message attached to the last transition
func (n *Node) StatusNote() string {
	return n.statusNote
}

// Progress returns the last reported progress percentage
func (n *Node) Progress() int {
	return n.progress
}

// ActiveRunID returns the in-flight run id, empty when no run is in flight
func (n *Node) ActiveRunID() string {
	return n.activeRunID
}

// LastRunID returns the most recent run id, in flight or settled
func (n *Node) LastRunID() string {
	return n.lastRunID
}

// Params returns a copy of the node's parameters
func (n *Node) Params() map[string]interface{} {
	params := make(map[string]interface{}, len(n.params))
	for k, v := range n.params {
		params[k] = v
	}
	return params
}

// Param returns a single parameter value
func (n *Node) Param(key string) (interface{}, bool) {
	v, ok := n.params[key]
	return v, ok
}

// SetParam updates a single parameter value
func (n *Node) SetParam(key string, value interface{}) {
	n.params[key] = value
	n.updatedAt = time.Now()
}

// SetLabel renames the node
func (n *Node) SetLabel(label string) {
	n.label = label
	n.updatedAt = time.Now()
}

// EvidenceRefs returns a copy of the node's evidence references
func (n *Node) EvidenceRefs() []string {
	refs := make([]string, len(n.evidenceRefs))
	copy(refs, n.evidenceRefs)
	return refs
}

// Preview returns the rendered preview from the last completed run, if any
func (n *Node) Preview() *RenderedPreview {
	return n.preview
}

// Generation returns the generation preview pushed by a polled run, if any
func (n *Node) Generation() *GenerationPreview {
	return n.generation
}

// BeginRun starts a new run attempt. The previous attempt's terminal status
// is discarded; an attempt that is still in flight is a conflict.
func (n *Node) BeginRun(runID string) error {
	if n.status.Active() {
		return pkgerrors.NewRunInFlightError(n.id.String(), n.activeRunID)
	}

	from := n.status
	n.status = valueobjects.StatusLoading
	n.statusNote = ""
	n.progress = 0
	n.activeRunID = runID
	n.lastRunID = runID
	n.updatedAt = time.Now()

	n.addEvent(events.NewNodeStatusChanged(n.id, from, n.status, runID, n.updatedAt))
	return nil
}

// MarkStreaming records a progress event for the in-flight run
func (n *Node) MarkStreaming(progress int, note string) error {
	if !n.status.CanTransitionTo(valueobjects.StatusStreaming) {
		return pkgerrors.NewStatusTransitionError(n.status.String(), valueobjects.StatusStreaming.String())
	}

	from := n.status
	n.status = valueobjects.StatusStreaming
	n.progress = progress
	n.statusNote = note
	n.updatedAt = time.Now()

	if from != valueobjects.StatusStreaming {
		n.addEvent(events.NewNodeStatusChanged(n.id, from, n.status, n.activeRunID, n.updatedAt))
	}
	return nil
}

// CompleteRun settles the in-flight run successfully
func (n *Node) CompleteRun() error {
	return n.settle(valueobjects.StatusComplete, "")
}

// FailRun settles the run (or rejects the attempt pre-flight) with an error.
// The message is what the user sees.
func (n *Node) FailRun(message string) error {
	return n.settle(valueobjects.StatusError, message)
}

// RejectRun marks a pre-flight contract violation. No run was issued, so the
// monotonic in-attempt transition rules do not apply; the node moves to error
// from any non-active status, including a terminal one left by an earlier
// attempt.
func (n *Node) RejectRun(message string) error {
	if n.status.Active() {
		return pkgerrors.NewRunInFlightError(n.id.String(), n.activeRunID)
	}

	from := n.status
	n.status = valueobjects.StatusError
	n.statusNote = message
	n.progress = 0
	n.updatedAt = time.Now()

	n.addEvent(events.NewNodeStatusChanged(n.id, from, n.status, "", n.updatedAt))
	return nil
}

// CancelRun settles the in-flight run as cancelled
func (n *Node) CancelRun(message string) error {
	return n.settle(valueobjects.StatusCancelled, message)
}

func (n *Node) settle(status valueobjects.RunStatus, note string) error {
	if !n.status.CanTransitionTo(status) {
		return pkgerrors.NewStatusTransitionError(n.status.String(), status.String())
	}

	from := n.status
	runID := n.activeRunID
	n.status = status
	n.statusNote = note
	n.activeRunID = ""
	n.updatedAt = time.Now()

	n.addEvent(events.NewNodeStatusChanged(n.id, from, status, runID, n.updatedAt))
	n.addEvent(events.NewPreviewRunSettled(n.id, runID, status, n.updatedAt))
	return nil
}

// SetRenderedPreview attaches the rendered preview and its evidence refs
func (n *Node) SetRenderedPreview(preview *RenderedPreview, evidenceRefs []string) {
	n.preview = preview
	n.evidenceRefs = evidenceRefs
	n.updatedAt = time.Now()
}

// SetGenerationPreview attaches the artifact produced by a generation run
func (n *Node) SetGenerationPreview(preview *GenerationPreview) {
	n.generation = preview
	n.updatedAt = time.Now()
}

// CreatedAt returns when the node was created
func (n *Node) CreatedAt() time.Time {
	return n.createdAt
}

// UpdatedAt returns when the node was last updated
func (n *Node) UpdatedAt() time.Time {
	return n.updatedAt
}

// GetUncommittedEvents returns all uncommitted domain events
func (n *Node) GetUncommittedEvents() []events.DomainEvent {
	return n.events
}

// MarkEventsAsCommitted clears the uncommitted events
func (n *Node) MarkEventsAsCommitted() {
	n.events = []events.DomainEvent{}
}

// addEvent adds a domain event to the uncommitted list
func (n *Node) addEvent(event events.DomainEvent) {
	n.events = append(n.events, event)
}
