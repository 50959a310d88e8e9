package errors

import "fmt"

// Domain-specific error constructors for canvas and run-lifecycle rules.
// They all build on AppError so HTTP mapping and type checks stay uniform.

// Error codes for domain errors
const (
	CodeNodeNotFound        = "NODE_NOT_FOUND"
	CodeEdgeNotFound        = "EDGE_NOT_FOUND"
	CodeCanvasNotFound      = "CANVAS_NOT_FOUND"
	CodeEdgeEndpointMissing = "EDGE_ENDPOINT_MISSING"
	CodeCapsuleRefMissing   = "CAPSULE_REF_MISSING"
	CodeRunInFlight         = "RUN_IN_FLIGHT"
	CodeStatusTransition    = "INVALID_STATUS_TRANSITION"
	CodeUpstreamCeiling     = "UPSTREAM_CEILING_EXCEEDED"
	CodeSourceTypeRejected  = "SOURCE_TYPE_REJECTED"
	CodeNoRunToCancel       = "NO_RUN_TO_CANCEL"
	CodeNoPreviewAvailable  = "NO_PREVIEW_AVAILABLE"
)

// NewNodeNotFoundError indicates a node id that is not on the canvas
func NewNodeNotFoundError(nodeID string) *AppError {
	return NewNotFoundError(fmt.Sprintf("node '%s'", nodeID)).WithCode(CodeNodeNotFound)
}

// NewEdgeNotFoundError indicates an edge id that is not on the canvas
func NewEdgeNotFoundError(edgeID string) *AppError {
	return NewNotFoundError(fmt.Sprintf("edge '%s'", edgeID)).WithCode(CodeEdgeNotFound)
}

// NewCanvasNotFoundError indicates an unknown canvas id
func NewCanvasNotFoundError(canvasID string) *AppError {
	return NewNotFoundError(fmt.Sprintf("canvas '%s'", canvasID)).WithCode(CodeCanvasNotFound)
}

// NewEdgeEndpointMissingError enforces the live-endpoint invariant: an edge
// may only be created while both of its endpoints exist on the canvas.
func NewEdgeEndpointMissingError(nodeID string) *AppError {
	return NewValidationError(fmt.Sprintf("edge endpoint '%s' does not exist on the canvas", nodeID)).
		WithCode(CodeEdgeEndpointMissing)
}

// NewCapsuleRefMissingError indicates a preview was requested for a node
// that carries no capsule identity
func NewCapsuleRefMissingError(nodeID string) *AppError {
	return NewValidationError(fmt.Sprintf("node '%s' has no capsule to run", nodeID)).
		WithCode(CodeCapsuleRefMissing)
}

// NewRunInFlightError indicates a second run was requested for a node whose
// prior attempt has not reached a terminal state
func NewRunInFlightError(nodeID, runID string) *AppError {
	return NewConflictError(fmt.Sprintf("node '%s' already has run '%s' in flight", nodeID, runID)).
		WithCode(CodeRunInFlight)
}

// NewStatusTransitionError indicates a transition that would break the
// monotonic status progression of a run attempt
func NewStatusTransitionError(from, to string) *AppError {
	return NewConflictError(fmt.Sprintf("status cannot move from '%s' to '%s'", from, to)).
		WithCode(CodeStatusTransition)
}

// NewUpstreamCeilingError is the pre-flight rejection for a capsule whose
// contract caps the upstream node count
func NewUpstreamCeilingError(count, max int) *AppError {
	return NewValidationError(fmt.Sprintf("capsule accepts at most %d upstream nodes, canvas resolves %d", max, count)).
		WithCode(CodeUpstreamCeiling)
}

// NewSourceTypeRejectedError is the pre-flight rejection for a root input
// whose source type is outside the capsule's allow-list
func NewSourceTypeRejectedError(sourceType string) *AppError {
	return NewValidationError(fmt.Sprintf("source type '%s' is not accepted by this capsule", sourceType)).
		WithCode(CodeSourceTypeRejected)
}

// NewNoRunToCancelError indicates a cancel request with nothing in flight
func NewNoRunToCancelError() *AppError {
	return NewNotFoundError("in-flight preview run").WithCode(CodeNoRunToCancel)
}

// NewNoPreviewAvailableError indicates a language switch on a node with no
// completed run to re-fetch
func NewNoPreviewAvailableError(nodeID string) *AppError {
	return NewNotFoundError(fmt.Sprintf("rendered preview for node '%s'", nodeID)).
		WithCode(CodeNoPreviewAvailable)
}
