package services

import (
	"context"
	"sort"

	"canvasd/application/ports"
	"canvasd/domain/core/aggregates"
	"canvasd/domain/core/entities"
	"canvasd/domain/core/valueobjects"
	pkgerrors "canvasd/pkg/errors"

	"go.uber.org/zap"
)

// pipelineStage enumerates the discrete steps of one preview attempt. The
// controller drives them in order instead of nesting continuations; every
// step either advances the stage or aborts the attempt.
type pipelineStage int

const (
	stageFetchContract pipelineStage = iota
	stageResolveContext
	stageCheckCeiling
	stageCheckSourceTypes
	stageIssueRun
	stageSettled
)

func (s pipelineStage) String() string {
	switch s {
	case stageFetchContract:
		return "fetch_contract"
	case stageResolveContext:
		return "resolve_context"
	case stageCheckCeiling:
		return "check_ceiling"
	case stageCheckSourceTypes:
		return "check_source_types"
	case stageIssueRun:
		return "issue_run"
	case stageSettled:
		return "settled"
	}
	return "unknown"
}

// previewPipeline carries the working state of one attempt across stages
type previewPipeline struct {
	canvas     *aggregates.Canvas
	node       *entities.Node
	capsule    valueobjects.CapsuleRef
	language   string
	extensions map[string]interface{}

	// contract is nil when the canvas is persisted and the backend has
	// already validated it server-side.
	contract *ports.InputContract
	upstream *ports.UpstreamContext
	receipt  *ports.RunReceipt
}

// fetchContract pulls the capsule's declared input contract
func (c *RunController) fetchContract(ctx context.Context, p *previewPipeline) error {
	spec, err := c.capsules.GetCapsuleSpec(ctx, p.capsule.ID(), p.capsule.Version())
	if err != nil {
		return pkgerrors.Wrap(err, "capsule spec lookup failed")
	}
	p.contract = &spec.InputContract
	return nil
}

// resolveUpstream computes the fresh upstream snapshot for this attempt
func (c *RunController) resolveUpstream(p *previewPipeline) {
	mode := ""
	if p.contract != nil {
		switch p.contract.ContextMode {
		case ports.ContextModeAggregate, ports.ContextModeSequential:
			mode = p.contract.ContextMode
		}
	}
	p.upstream = c.resolver.Resolve(p.canvas, p.node.ID(), mode)
}

// checkCeiling enforces the contract's upstream node-count cap
func (c *RunController) checkCeiling(p *previewPipeline) error {
	if p.contract == nil || p.contract.MaxUpstream <= 0 {
		return nil
	}
	if count := len(p.upstream.Nodes); count > p.contract.MaxUpstream {
		return pkgerrors.NewUpstreamCeilingError(count, p.contract.MaxUpstream)
	}
	return nil
}

// checkSourceTypes verifies the resolved root input against the contract's
// source-type allow-list. The raw-asset lookup is privilege-gated, so
// authorization-class failures are tolerated; any other lookup failure is
// fatal to the attempt.
func (c *RunController) checkSourceTypes(ctx context.Context, p *previewPipeline) error {
	if p.contract == nil || len(p.contract.AllowedTypes) == 0 {
		return nil
	}

	sourceID := rootSourceID(p.upstream)
	if sourceID == "" {
		return nil
	}

	asset, err := c.assets.GetRawAsset(ctx, sourceID)
	if err != nil {
		if pkgerrors.IsAuthorization(err) {
			c.logger.Debug("Source type check skipped, lookup not permitted",
				zap.String("source_id", sourceID))
			return nil
		}
		return pkgerrors.Wrap(err, "source type lookup failed")
	}

	for _, allowed := range p.contract.AllowedTypes {
		if allowed == asset.SourceType {
			return nil
		}
	}
	return pkgerrors.NewSourceTypeRejectedError(asset.SourceType)
}

// issueRun sends the asynchronous run request
func (c *RunController) issueRun(ctx context.Context, p *previewPipeline) error {
	req := &ports.RunRequest{
		CapsuleID:      p.capsule.ID(),
		CapsuleVersion: p.capsule.Version(),
		NodeID:         p.node.ID().String(),
		Inputs:         directInputs(p.canvas, p.node.ID()),
		Params:         p.node.Params(),
		Extensions:     p.extensions,
		Language:       p.language,
	}
	if p.canvas.Persisted() {
		// Persisted canvases resolve context server-side.
		req.CanvasID = p.canvas.ID()
	} else {
		req.Context = p.upstream
	}

	receipt, err := c.capsules.RunCapsule(ctx, req)
	if err != nil {
		return pkgerrors.Wrap(err, "capsule run request failed")
	}
	p.receipt = receipt
	return nil
}

// rootSourceID finds the resolved root input: the first input-kind upstream
// node in id-sorted order that declares a sourceId param.
func rootSourceID(upstream *ports.UpstreamContext) string {
	var inputs []ports.ContextNode
	for _, node := range upstream.Nodes {
		if node.Type == valueobjects.KindInput.String() {
			inputs = append(inputs, node)
		}
	}
	sort.Slice(inputs, func(i, j int) bool { return inputs[i].ID < inputs[j].ID })

	for _, node := range inputs {
		if sourceID, ok := node.Params["sourceId"].(string); ok && sourceID != "" {
			return sourceID
		}
	}
	return ""
}

// directInputs collects the immediate parents of a node as run inputs
func directInputs(canvas *aggregates.Canvas, nodeID valueobjects.NodeID) map[string]interface{} {
	inputs := make(map[string]interface{})
	for _, edge := range canvas.Edges() {
		if !edge.Target().Equals(nodeID) {
			continue
		}
		source, err := canvas.Node(edge.Source())
		if err != nil {
			continue
		}
		inputs[source.ID().String()] = map[string]interface{}{
			"type":   source.Kind().String(),
			"label":  source.Label(),
			"params": source.Params(),
		}
	}
	return inputs
}
