package entities

import (
	"time"

	"canvasd/domain/core/valueobjects"
	pkgerrors "canvasd/pkg/errors"

	"github.com/google/uuid"
)

// Edge is a directed connection between two canvas nodes. Multiple edges
// between the same pair are permitted; self-referencing edges are tolerated
// by convention and not rejected here.
type Edge struct {
	id        string
	source    valueobjects.NodeID
	target    valueobjects.NodeID
	createdAt time.Time
}

// NewEdge creates a new directed edge
func NewEdge(source, target valueobjects.NodeID) (*Edge, error) {
	if source.IsZero() {
		return nil, pkgerrors.NewValidationError("edge source cannot be empty")
	}
	if target.IsZero() {
		return nil, pkgerrors.NewValidationError("edge target cannot be empty")
	}

	return &Edge{
		id:        uuid.New().String(),
		source:    source,
		target:    target,
		createdAt: time.Now(),
	}, nil
}

// ReconstructEdge rebuilds an edge from stored data with preserved identity
func ReconstructEdge(id string, source, target valueobjects.NodeID) (*Edge, error) {
	if id == "" {
		return nil, pkgerrors.NewValidationError("edge ID cannot be empty")
	}
	edge, err := NewEdge(source, target)
	if err != nil {
		return nil, err
	}
	edge.id = id
	return edge, nil
}

// ID returns the edge's unique identifier
func (e *Edge) ID() string {
	return e.id
}

// Source returns the upstream endpoint
func (e *Edge) Source() valueobjects.NodeID {
	return e.source
}

// Target returns the downstream endpoint
func (e *Edge) Target() valueobjects.NodeID {
	return e.target
}

// CreatedAt returns when the edge was created
func (e *Edge) CreatedAt() time.Time {
	return e.createdAt
}
