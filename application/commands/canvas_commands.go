// Package commands holds the write-side operations of the canvas editor.
// Commands are dispatched through the command bus; results the caller needs
// back are written into the command's Result field by its handler.
package commands

import (
	"errors"
)

// CreateCanvasCommand creates a new canvas
type CreateCanvasCommand struct {
	Name      string `json:"name" validate:"max=200"`
	OwnerID   string `json:"owner_id"`
	Persisted bool   `json:"persisted"`

	// Result is populated by the handler.
	Result struct {
		CanvasID string
	} `json:"-"`
}

// Validate validates the command
func (cmd *CreateCanvasCommand) Validate() error {
	if len(cmd.Name) > 200 {
		return errors.New("name exceeds maximum length")
	}
	return nil
}

// DeleteCanvasCommand removes a canvas and everything on it
type DeleteCanvasCommand struct {
	CanvasID string `json:"canvas_id" validate:"required"`
}

// Validate validates the command
func (cmd *DeleteCanvasCommand) Validate() error {
	if cmd.CanvasID == "" {
		return errors.New("canvas ID is required")
	}
	return nil
}

// AddNodeCommand places a new node on a canvas
type AddNodeCommand struct {
	CanvasID       string                 `json:"canvas_id" validate:"required"`
	Kind           string                 `json:"kind" validate:"required"`
	Label          string                 `json:"label" validate:"max=200"`
	Params         map[string]interface{} `json:"params"`
	CapsuleID      string                 `json:"capsule_id"`
	CapsuleVersion string                 `json:"capsule_version"`

	Result struct {
		NodeID string
	} `json:"-"`
}

// Validate validates the command
func (cmd *AddNodeCommand) Validate() error {
	if cmd.CanvasID == "" {
		return errors.New("canvas ID is required")
	}
	if cmd.Kind == "" {
		return errors.New("node kind is required")
	}
	return nil
}

// UpdateNodeParamsCommand replaces parameter values on an existing node
type UpdateNodeParamsCommand struct {
	CanvasID string                 `json:"canvas_id" validate:"required"`
	NodeID   string                 `json:"node_id" validate:"required"`
	Params   map[string]interface{} `json:"params" validate:"required"`
	Label    *string                `json:"label,omitempty"`
}

// Validate validates the command
func (cmd *UpdateNodeParamsCommand) Validate() error {
	if cmd.CanvasID == "" {
		return errors.New("canvas ID is required")
	}
	if cmd.NodeID == "" {
		return errors.New("node ID is required")
	}
	return nil
}

// RemoveNodeCommand deletes a node and every edge touching it
type RemoveNodeCommand struct {
	CanvasID string `json:"canvas_id" validate:"required"`
	NodeID   string `json:"node_id" validate:"required"`

	Result struct {
		PrunedEdges []string
	} `json:"-"`
}

// Validate validates the command
func (cmd *RemoveNodeCommand) Validate() error {
	if cmd.CanvasID == "" {
		return errors.New("canvas ID is required")
	}
	if cmd.NodeID == "" {
		return errors.New("node ID is required")
	}
	return nil
}

// AddEdgeCommand connects two live nodes with a directed edge
type AddEdgeCommand struct {
	CanvasID string `json:"canvas_id" validate:"required"`
	SourceID string `json:"source_id" validate:"required"`
	TargetID string `json:"target_id" validate:"required"`

	Result struct {
		EdgeID string
	} `json:"-"`
}

// Validate validates the command
func (cmd *AddEdgeCommand) Validate() error {
	if cmd.CanvasID == "" {
		return errors.New("canvas ID is required")
	}
	if cmd.SourceID == "" || cmd.TargetID == "" {
		return errors.New("edge endpoints are required")
	}
	return nil
}

// RemoveEdgeCommand deletes an edge by id
type RemoveEdgeCommand struct {
	CanvasID string `json:"canvas_id" validate:"required"`
	EdgeID   string `json:"edge_id" validate:"required"`
}

// Validate validates the command
func (cmd *RemoveEdgeCommand) Validate() error {
	if cmd.CanvasID == "" {
		return errors.New("canvas ID is required")
	}
	if cmd.EdgeID == "" {
		return errors.New("edge ID is required")
	}
	return nil
}

// MarkCanvasPersistedCommand flags a canvas as saved server-side, which lets
// preview runs skip client-side context resolution.
type MarkCanvasPersistedCommand struct {
	CanvasID string `json:"canvas_id" validate:"required"`
}

// Validate validates the command
func (cmd *MarkCanvasPersistedCommand) Validate() error {
	if cmd.CanvasID == "" {
		return errors.New("canvas ID is required")
	}
	return nil
}
