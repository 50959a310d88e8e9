// Package handlers implements the write-side command handlers. Each handler
// satisfies the command bus's handler contract and is registered against one
// command type at wiring time.
package handlers

import (
	"context"
	"fmt"

	"canvasd/application/commands"
	"canvasd/application/commands/bus"
	"canvasd/application/ports"
	domaincfg "canvasd/domain/config"
	"canvasd/domain/core/aggregates"
	"canvasd/domain/core/entities"
	"canvasd/domain/core/validators"
	"canvasd/domain/core/valueobjects"
	pkgerrors "canvasd/pkg/errors"

	"go.uber.org/zap"
)

// CanvasCommandHandler handles every canvas mutation command. The commands
// share the same dependencies, so one handler covers the family; the bus
// still dispatches per command type.
type CanvasCommandHandler struct {
	store     ports.CanvasStore
	validator *validators.NodeValidator
	cfg       *domaincfg.DomainConfig
	logger    *zap.Logger
}

// NewCanvasCommandHandler creates the handler for canvas mutations
func NewCanvasCommandHandler(
	store ports.CanvasStore,
	validator *validators.NodeValidator,
	cfg *domaincfg.DomainConfig,
	logger *zap.Logger,
) *CanvasCommandHandler {
	if cfg == nil {
		cfg = domaincfg.DefaultDomainConfig()
	}
	return &CanvasCommandHandler{
		store:     store,
		validator: validator,
		cfg:       cfg,
		logger:    logger,
	}
}

// Register wires every canvas command onto the bus
func (h *CanvasCommandHandler) Register(commandBus *bus.CommandBus) error {
	registrations := []struct {
		cmd bus.Command
	}{
		{&commands.CreateCanvasCommand{}},
		{&commands.DeleteCanvasCommand{}},
		{&commands.AddNodeCommand{}},
		{&commands.UpdateNodeParamsCommand{}},
		{&commands.RemoveNodeCommand{}},
		{&commands.AddEdgeCommand{}},
		{&commands.RemoveEdgeCommand{}},
		{&commands.MarkCanvasPersistedCommand{}},
	}
	for _, r := range registrations {
		if err := commandBus.Register(r.cmd, h); err != nil {
			return err
		}
	}
	return nil
}

// Handle dispatches one command to its implementation
func (h *CanvasCommandHandler) Handle(ctx context.Context, cmd bus.Command) error {
	switch c := cmd.(type) {
	case *commands.CreateCanvasCommand:
		return h.createCanvas(ctx, c)
	case *commands.DeleteCanvasCommand:
		return h.deleteCanvas(ctx, c)
	case *commands.AddNodeCommand:
		return h.addNode(ctx, c)
	case *commands.UpdateNodeParamsCommand:
		return h.updateNodeParams(ctx, c)
	case *commands.RemoveNodeCommand:
		return h.removeNode(ctx, c)
	case *commands.AddEdgeCommand:
		return h.addEdge(ctx, c)
	case *commands.RemoveEdgeCommand:
		return h.removeEdge(ctx, c)
	case *commands.MarkCanvasPersistedCommand:
		return h.markPersisted(ctx, c)
	default:
		return fmt.Errorf("unsupported command type %T", cmd)
	}
}

func (h *CanvasCommandHandler) createCanvas(ctx context.Context, cmd *commands.CreateCanvasCommand) error {
	name := cmd.Name
	if name == "" {
		name = h.cfg.DefaultCanvasName
	}

	canvas, err := aggregates.NewCanvas(name, cmd.OwnerID)
	if err != nil {
		return err
	}
	if cmd.Persisted {
		canvas.MarkPersisted()
	}
	if err := h.store.Save(ctx, canvas); err != nil {
		return err
	}

	cmd.Result.CanvasID = canvas.ID()
	h.logger.Info("Canvas created",
		zap.String("canvas_id", canvas.ID()),
		zap.String("owner_id", cmd.OwnerID))
	return nil
}

func (h *CanvasCommandHandler) deleteCanvas(ctx context.Context, cmd *commands.DeleteCanvasCommand) error {
	return h.store.Delete(ctx, cmd.CanvasID)
}

func (h *CanvasCommandHandler) addNode(ctx context.Context, cmd *commands.AddNodeCommand) error {
	canvas, err := h.store.Get(ctx, cmd.CanvasID)
	if err != nil {
		return err
	}
	if err := h.validator.ValidateCanvasCapacity(canvas.NodeCount(), canvas.EdgeCount()); err != nil {
		return err
	}

	kind, err := h.validator.Validate(validators.NodeInput{
		Kind:           cmd.Kind,
		Label:          cmd.Label,
		Params:         cmd.Params,
		CapsuleID:      cmd.CapsuleID,
		CapsuleVersion: cmd.CapsuleVersion,
	})
	if err != nil {
		return err
	}

	var node *entities.Node
	if kind == valueobjects.KindCapsule {
		capsule, err := valueobjects.NewCapsuleRef(cmd.CapsuleID, cmd.CapsuleVersion)
		if err != nil {
			return err
		}
		node, err = entities.NewCapsuleNode(cmd.Label, cmd.Params, capsule)
		if err != nil {
			return err
		}
	} else {
		node, err = entities.NewNode(kind, cmd.Label, cmd.Params)
		if err != nil {
			return err
		}
	}

	if err := canvas.AddNode(node); err != nil {
		return err
	}
	if err := h.store.Save(ctx, canvas); err != nil {
		return err
	}

	cmd.Result.NodeID = node.ID().String()
	return nil
}

func (h *CanvasCommandHandler) updateNodeParams(ctx context.Context, cmd *commands.UpdateNodeParamsCommand) error {
	canvas, err := h.store.Get(ctx, cmd.CanvasID)
	if err != nil {
		return err
	}
	nodeID, err := valueobjects.NewNodeIDFromString(cmd.NodeID)
	if err != nil {
		return pkgerrors.NewValidationError(err.Error())
	}
	node, err := canvas.Node(nodeID)
	if err != nil {
		return err
	}
	if len(cmd.Params) > h.cfg.MaxParamsPerNode {
		return pkgerrors.NewValidationError(
			fmt.Sprintf("node carries more than %d params", h.cfg.MaxParamsPerNode))
	}

	for key, value := range cmd.Params {
		node.SetParam(key, value)
	}
	if cmd.Label != nil {
		if len(*cmd.Label) > h.cfg.MaxLabelLength {
			return pkgerrors.NewValidationError(
				fmt.Sprintf("label exceeds %d characters", h.cfg.MaxLabelLength))
		}
		node.SetLabel(*cmd.Label)
	}
	return h.store.Save(ctx, canvas)
}

func (h *CanvasCommandHandler) removeNode(ctx context.Context, cmd *commands.RemoveNodeCommand) error {
	canvas, err := h.store.Get(ctx, cmd.CanvasID)
	if err != nil {
		return err
	}
	nodeID, err := valueobjects.NewNodeIDFromString(cmd.NodeID)
	if err != nil {
		return pkgerrors.NewValidationError(err.Error())
	}

	var pruned []string
	for _, edge := range canvas.Edges() {
		if edge.Source().Equals(nodeID) || edge.Target().Equals(nodeID) {
			pruned = append(pruned, edge.ID())
		}
	}
	if err := canvas.RemoveNode(nodeID); err != nil {
		return err
	}
	if err := h.store.Save(ctx, canvas); err != nil {
		return err
	}

	cmd.Result.PrunedEdges = pruned
	h.logger.Debug("Node removed",
		zap.String("canvas_id", cmd.CanvasID),
		zap.String("node_id", cmd.NodeID),
		zap.Int("pruned_edges", len(pruned)))
	return nil
}

func (h *CanvasCommandHandler) addEdge(ctx context.Context, cmd *commands.AddEdgeCommand) error {
	canvas, err := h.store.Get(ctx, cmd.CanvasID)
	if err != nil {
		return err
	}
	if err := h.validator.ValidateCanvasCapacity(0, canvas.EdgeCount()); err != nil {
		return err
	}

	sourceID, err := valueobjects.NewNodeIDFromString(cmd.SourceID)
	if err != nil {
		return pkgerrors.NewValidationError(err.Error())
	}
	targetID, err := valueobjects.NewNodeIDFromString(cmd.TargetID)
	if err != nil {
		return pkgerrors.NewValidationError(err.Error())
	}

	edge, err := entities.NewEdge(sourceID, targetID)
	if err != nil {
		return err
	}
	if err := canvas.AddEdge(edge); err != nil {
		return err
	}
	if err := h.store.Save(ctx, canvas); err != nil {
		return err
	}

	cmd.Result.EdgeID = edge.ID()
	return nil
}

func (h *CanvasCommandHandler) removeEdge(ctx context.Context, cmd *commands.RemoveEdgeCommand) error {
	canvas, err := h.store.Get(ctx, cmd.CanvasID)
	if err != nil {
		return err
	}
	if err := canvas.RemoveEdge(cmd.EdgeID); err != nil {
		return err
	}
	return h.store.Save(ctx, canvas)
}

func (h *CanvasCommandHandler) markPersisted(ctx context.Context, cmd *commands.MarkCanvasPersistedCommand) error {
	canvas, err := h.store.Get(ctx, cmd.CanvasID)
	if err != nil {
		return err
	}
	canvas.MarkPersisted()
	return h.store.Save(ctx, canvas)
}
