package events

import (
	"time"

	"canvasd/domain/core/valueobjects"
)

// DomainEvent is the base interface for all domain events
// Events represent something that has happened in the past
type DomainEvent interface {
	GetAggregateID() string
	GetEventType() string
	GetTimestamp() time.Time
	GetVersion() int
}

// BaseEvent provides common event fields
type BaseEvent struct {
	AggregateID string    `json:"aggregate_id"`
	EventType   string    `json:"event_type"`
	Timestamp   time.Time `json:"timestamp"`
	Version     int       `json:"version"`
}

func (e BaseEvent) GetAggregateID() string  { return e.AggregateID }
func (e BaseEvent) GetEventType() string    { return e.EventType }
func (e BaseEvent) GetTimestamp() time.Time { return e.Timestamp }
func (e BaseEvent) GetVersion() int         { return e.Version }

// Canvas events

// NodeAdded is raised when a node joins a canvas
type NodeAdded struct {
	BaseEvent
	NodeID valueobjects.NodeID   `json:"node_id"`
	Kind   valueobjects.NodeKind `json:"kind"`
}

// NewNodeAdded creates a NodeAdded event
func NewNodeAdded(canvasID string, nodeID valueobjects.NodeID, kind valueobjects.NodeKind, timestamp time.Time) NodeAdded {
	return NodeAdded{
		BaseEvent: BaseEvent{
			AggregateID: canvasID,
			EventType:   "canvas.node_added",
			Timestamp:   timestamp,
			Version:     1,
		},
		NodeID: nodeID,
		Kind:   kind,
	}
}

// NodeRemoved is raised when a node is deleted; PrunedEdges lists every edge
// removed alongside it so no dangling reference survives
type NodeRemoved struct {
	BaseEvent
	NodeID      valueobjects.NodeID `json:"node_id"`
	PrunedEdges []string            `json:"pruned_edges"`
}

// NewNodeRemoved creates a NodeRemoved event
func NewNodeRemoved(canvasID string, nodeID valueobjects.NodeID, prunedEdges []string, timestamp time.Time) NodeRemoved {
	return NodeRemoved{
		BaseEvent: BaseEvent{
			AggregateID: canvasID,
			EventType:   "canvas.node_removed",
			Timestamp:   timestamp,
			Version:     1,
		},
		NodeID:      nodeID,
		PrunedEdges: prunedEdges,
	}
}

// EdgeAdded is raised when a directed edge is created
type EdgeAdded struct {
	BaseEvent
	EdgeID string              `json:"edge_id"`
	Source valueobjects.NodeID `json:"source"`
	Target valueobjects.NodeID `json:"target"`
}

// NewEdgeAdded creates an EdgeAdded event
func NewEdgeAdded(canvasID, edgeID string, source, target valueobjects.NodeID, timestamp time.Time) EdgeAdded {
	return EdgeAdded{
		BaseEvent: BaseEvent{
			AggregateID: canvasID,
			EventType:   "canvas.edge_added",
			Timestamp:   timestamp,
			Version:     1,
		},
		EdgeID: edgeID,
		Source: source,
		Target: target,
	}
}

// EdgeRemoved is raised when an edge is deleted on its own
type EdgeRemoved struct {
	BaseEvent
	EdgeID string `json:"edge_id"`
}

// NewEdgeRemoved creates an EdgeRemoved event
func NewEdgeRemoved(canvasID, edgeID string, timestamp time.Time) EdgeRemoved {
	return EdgeRemoved{
		BaseEvent: BaseEvent{
			AggregateID: canvasID,
			EventType:   "canvas.edge_removed",
			Timestamp:   timestamp,
			Version:     1,
		},
		EdgeID: edgeID,
	}
}

// Run lifecycle events

// NodeStatusChanged is raised on every status transition of a node
type NodeStatusChanged struct {
	BaseEvent
	NodeID valueobjects.NodeID    `json:"node_id"`
	From   valueobjects.RunStatus `json:"from"`
	To     valueobjects.RunStatus `json:"to"`
	RunID  string                 `json:"run_id,omitempty"`
}

// NewNodeStatusChanged creates a NodeStatusChanged event
func NewNodeStatusChanged(nodeID valueobjects.NodeID, from, to valueobjects.RunStatus, runID string, timestamp time.Time) NodeStatusChanged {
	return NodeStatusChanged{
		BaseEvent: BaseEvent{
			AggregateID: nodeID.String(),
			EventType:   "node.status_changed",
			Timestamp:   timestamp,
			Version:     1,
		},
		NodeID: nodeID,
		From:   from,
		To:     to,
		RunID:  runID,
	}
}

// PreviewRunStarted is raised when a capsule run has been issued
type PreviewRunStarted struct {
	BaseEvent
	NodeID    valueobjects.NodeID `json:"node_id"`
	RunID     string              `json:"run_id"`
	CapsuleID string              `json:"capsule_id"`
}

// NewPreviewRunStarted creates a PreviewRunStarted event
func NewPreviewRunStarted(nodeID valueobjects.NodeID, runID, capsuleID string, timestamp time.Time) PreviewRunStarted {
	return PreviewRunStarted{
		BaseEvent: BaseEvent{
			AggregateID: nodeID.String(),
			EventType:   "run.preview_started",
			Timestamp:   timestamp,
			Version:     1,
		},
		NodeID:    nodeID,
		RunID:     runID,
		CapsuleID: capsuleID,
	}
}

// PreviewRunSettled is raised when a run attempt reaches a terminal status
type PreviewRunSettled struct {
	BaseEvent
	NodeID valueobjects.NodeID    `json:"node_id"`
	RunID  string                 `json:"run_id"`
	Status valueobjects.RunStatus `json:"status"`
}

// NewPreviewRunSettled creates a PreviewRunSettled event
func NewPreviewRunSettled(nodeID valueobjects.NodeID, runID string, status valueobjects.RunStatus, timestamp time.Time) PreviewRunSettled {
	return PreviewRunSettled{
		BaseEvent: BaseEvent{
			AggregateID: nodeID.String(),
			EventType:   "run.preview_settled",
			Timestamp:   timestamp,
			Version:     1,
		},
		NodeID: nodeID,
		RunID:  runID,
		Status: status,
	}
}
