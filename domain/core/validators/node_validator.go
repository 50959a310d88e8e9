package validators

import (
	"fmt"

	domaincfg "canvasd/domain/config"
	"canvasd/domain/core/valueobjects"
	pkgerrors "canvasd/pkg/errors"
)

// NodeInput is the raw material for a node before it becomes an entity
type NodeInput struct {
	Kind           string
	Label          string
	Params         map[string]interface{}
	CapsuleID      string
	CapsuleVersion string
}

// NodeValidator checks node input against the domain rules
type NodeValidator struct {
	cfg *domaincfg.DomainConfig
}

// NewNodeValidator creates a validator with the given domain configuration
func NewNodeValidator(cfg *domaincfg.DomainConfig) *NodeValidator {
	if cfg == nil {
		cfg = domaincfg.DefaultDomainConfig()
	}
	return &NodeValidator{cfg: cfg}
}

// Validate checks a node input and returns the parsed kind on success
func (v *NodeValidator) Validate(input NodeInput) (valueobjects.NodeKind, error) {
	kind, err := valueobjects.ParseNodeKind(input.Kind)
	if err != nil {
		return "", pkgerrors.NewValidationError(err.Error())
	}

	if len(input.Label) > v.cfg.MaxLabelLength {
		return "", pkgerrors.NewValidationError(
			fmt.Sprintf("label exceeds %d characters", v.cfg.MaxLabelLength))
	}

	if len(input.Params) > v.cfg.MaxParamsPerNode {
		return "", pkgerrors.NewValidationError(
			fmt.Sprintf("node carries more than %d params", v.cfg.MaxParamsPerNode))
	}

	if kind == valueobjects.KindCapsule && input.CapsuleID == "" {
		return "", pkgerrors.NewValidationError("capsule nodes require a capsuleId")
	}
	if kind != valueobjects.KindCapsule && input.CapsuleID != "" {
		return "", pkgerrors.NewValidationError(
			fmt.Sprintf("%s nodes cannot carry a capsuleId", kind))
	}

	return kind, nil
}

// ValidateCanvasCapacity checks whether another node or edge still fits
func (v *NodeValidator) ValidateCanvasCapacity(nodeCount, edgeCount int) error {
	if nodeCount >= v.cfg.MaxNodesPerCanvas {
		return pkgerrors.NewValidationError(
			fmt.Sprintf("canvas is at its %d node limit", v.cfg.MaxNodesPerCanvas))
	}
	if edgeCount >= v.cfg.MaxEdgesPerCanvas {
		return pkgerrors.NewValidationError(
			fmt.Sprintf("canvas is at its %d edge limit", v.cfg.MaxEdgesPerCanvas))
	}
	return nil
}
