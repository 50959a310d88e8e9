// Package queries holds the read-side operations and their view models.
package queries

import (
	"errors"
	"time"
)

// GetCanvasQuery fetches one canvas with everything on it
type GetCanvasQuery struct {
	CanvasID string `json:"canvas_id" validate:"required"`
}

// Validate validates the query
func (q *GetCanvasQuery) Validate() error {
	if q.CanvasID == "" {
		return errors.New("canvas ID is required")
	}
	return nil
}

// ListCanvasesQuery lists canvases, optionally scoped to an owner
type ListCanvasesQuery struct {
	OwnerID string `json:"owner_id"`
	Limit   int    `json:"limit"`
}

// Validate validates the query
func (q *ListCanvasesQuery) Validate() error {
	if q.Limit < 0 {
		return errors.New("limit cannot be negative")
	}
	return nil
}

// ResolveContextQuery computes the upstream context snapshot for a node
type ResolveContextQuery struct {
	CanvasID string `json:"canvas_id" validate:"required"`
	NodeID   string `json:"node_id" validate:"required"`
	Mode     string `json:"mode"`
}

// Validate validates the query
func (q *ResolveContextQuery) Validate() error {
	if q.CanvasID == "" {
		return errors.New("canvas ID is required")
	}
	if q.NodeID == "" {
		return errors.New("node ID is required")
	}
	return nil
}

// FindCapsulesQuery finds every capsule reachable downstream of a node
type FindCapsulesQuery struct {
	CanvasID string `json:"canvas_id" validate:"required"`
	StartID  string `json:"start_id" validate:"required"`
}

// Validate validates the query
func (q *FindCapsulesQuery) Validate() error {
	if q.CanvasID == "" {
		return errors.New("canvas ID is required")
	}
	if q.StartID == "" {
		return errors.New("start node ID is required")
	}
	return nil
}

// NodeView is the read model of a canvas node
type NodeView struct {
	ID             string                 `json:"id"`
	Kind           string                 `json:"kind"`
	Label          string                 `json:"label"`
	Params         map[string]interface{} `json:"params"`
	CapsuleID      string                 `json:"capsule_id,omitempty"`
	CapsuleVersion string                 `json:"capsule_version,omitempty"`
	Status         string                 `json:"status"`
	StatusNote     string                 `json:"status_note,omitempty"`
	Progress       int                    `json:"progress"`
	ActiveRunID    string                 `json:"active_run_id,omitempty"`
	LastRunID      string                 `json:"last_run_id,omitempty"`
	EvidenceRefs   []string               `json:"evidence_refs,omitempty"`
	Preview        *PreviewView           `json:"preview,omitempty"`
	Generation     *GenerationView        `json:"generation,omitempty"`
	UpdatedAt      time.Time              `json:"updated_at"`
}

// PreviewView is the read model of a rendered preview
type PreviewView struct {
	Language           string                   `json:"language"`
	AvailableLanguages []string                 `json:"available_languages,omitempty"`
	Panels             []map[string]interface{} `json:"panels"`
}

// GenerationView is the read model of a generation artifact
type GenerationView struct {
	BeatSheet  []map[string]interface{} `json:"beat_sheet"`
	Storyboard []map[string]interface{} `json:"storyboard"`
}

// EdgeView is the read model of a canvas edge
type EdgeView struct {
	ID     string `json:"id"`
	Source string `json:"source"`
	Target string `json:"target"`
}

// CanvasView is the read model of a full canvas
type CanvasView struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	OwnerID   string     `json:"owner_id,omitempty"`
	Persisted bool       `json:"persisted"`
	Nodes     []NodeView `json:"nodes"`
	Edges     []EdgeView `json:"edges"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// CanvasSummaryView is the list-item read model of a canvas
type CanvasSummaryView struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	OwnerID   string    `json:"owner_id,omitempty"`
	Persisted bool      `json:"persisted"`
	NodeCount int       `json:"node_count"`
	EdgeCount int       `json:"edge_count"`
	UpdatedAt time.Time `json:"updated_at"`
}
