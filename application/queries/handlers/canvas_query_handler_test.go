package handlers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"canvasd/application/ports"
	"canvasd/application/queries"
	"canvasd/application/queries/bus"
	"canvasd/application/services"
	"canvasd/domain/core/aggregates"
	"canvasd/domain/core/entities"
	"canvasd/domain/core/valueobjects"
	"canvasd/infrastructure/persistence/memory"
	pkgerrors "canvasd/pkg/errors"
)

type queryFixture struct {
	store *memory.CanvasStore
	bus   *bus.QueryBus
}

func newQueryFixture(t *testing.T) *queryFixture {
	t.Helper()

	logger := zap.NewNop()
	store := memory.NewCanvasStore(logger)
	handler := NewCanvasQueryHandler(
		store,
		services.NewContextResolver(logger),
		services.NewCapsuleFinder(logger),
		logger,
	)

	queryBus := bus.NewQueryBus()
	require.NoError(t, handler.Register(queryBus))

	return &queryFixture{store: store, bus: queryBus}
}

// seedCanvas builds input -> capsule -> output and saves it.
func (f *queryFixture) seedCanvas(t *testing.T) (*aggregates.Canvas, []*entities.Node) {
	t.Helper()

	canvas, err := aggregates.NewCanvas("Story Canvas", "user-1")
	require.NoError(t, err)

	input, err := entities.NewNode(valueobjects.KindInput, "source", map[string]interface{}{
		"sourceId": "asset-1",
	})
	require.NoError(t, err)
	capsuleRef, err := valueobjects.NewCapsuleRef("cap-1", "v2")
	require.NoError(t, err)
	capsule, err := entities.NewCapsuleNode("summarize", nil, capsuleRef)
	require.NoError(t, err)
	output, err := entities.NewNode(valueobjects.KindOutput, "render", nil)
	require.NoError(t, err)

	for _, node := range []*entities.Node{input, capsule, output} {
		require.NoError(t, canvas.AddNode(node))
	}
	for _, pair := range [][2]*entities.Node{{input, capsule}, {capsule, output}} {
		edge, err := entities.NewEdge(pair[0].ID(), pair[1].ID())
		require.NoError(t, err)
		require.NoError(t, canvas.AddEdge(edge))
	}

	require.NoError(t, f.store.Save(context.Background(), canvas))
	return canvas, []*entities.Node{input, capsule, output}
}

func TestGetCanvas_FullView(t *testing.T) {
	f := newQueryFixture(t)
	canvas, nodes := f.seedCanvas(t)

	result, err := f.bus.Ask(context.Background(), &queries.GetCanvasQuery{CanvasID: canvas.ID()})
	require.NoError(t, err)

	view, ok := result.(*queries.CanvasView)
	require.True(t, ok)
	assert.Equal(t, canvas.ID(), view.ID)
	assert.Equal(t, "Story Canvas", view.Name)
	assert.Equal(t, "user-1", view.OwnerID)
	require.Len(t, view.Nodes, 3)
	require.Len(t, view.Edges, 2)

	capsuleView := view.Nodes[1]
	assert.Equal(t, nodes[1].ID().String(), capsuleView.ID)
	assert.Equal(t, "capsule", capsuleView.Kind)
	assert.Equal(t, "cap-1", capsuleView.CapsuleID)
	assert.Equal(t, "v2", capsuleView.CapsuleVersion)
	assert.Equal(t, "idle", capsuleView.Status)
	assert.Nil(t, capsuleView.Preview)
}

func TestGetCanvas_IncludesPreviewAndGeneration(t *testing.T) {
	f := newQueryFixture(t)
	canvas, nodes := f.seedCanvas(t)

	nodes[1].SetRenderedPreview(&entities.RenderedPreview{
		Language:           "fr",
		AvailableLanguages: []string{"en", "fr"},
		Panels:             []map[string]interface{}{{"caption": "one"}},
	}, []string{"evidence-1"})
	nodes[2].SetGenerationPreview(&entities.GenerationPreview{
		BeatSheet:  []map[string]interface{}{{"beat": 1}},
		Storyboard: []map[string]interface{}{{"panel": 1}},
	})
	require.NoError(t, f.store.Save(context.Background(), canvas))

	result, err := f.bus.Ask(context.Background(), &queries.GetCanvasQuery{CanvasID: canvas.ID()})
	require.NoError(t, err)
	view := result.(*queries.CanvasView)

	capsuleView := view.Nodes[1]
	require.NotNil(t, capsuleView.Preview)
	assert.Equal(t, "fr", capsuleView.Preview.Language)
	assert.Equal(t, []string{"en", "fr"}, capsuleView.Preview.AvailableLanguages)
	assert.Equal(t, []string{"evidence-1"}, capsuleView.EvidenceRefs)

	outputView := view.Nodes[2]
	require.NotNil(t, outputView.Generation)
	assert.Len(t, outputView.Generation.BeatSheet, 1)
}

func TestGetCanvas_Missing(t *testing.T) {
	f := newQueryFixture(t)

	_, err := f.bus.Ask(context.Background(), &queries.GetCanvasQuery{CanvasID: "nope"})
	assert.True(t, pkgerrors.IsNotFound(err))
}

func TestListCanvases_OwnerFilterAndLimit(t *testing.T) {
	f := newQueryFixture(t)

	for _, owner := range []string{"user-1", "user-1", "user-2"} {
		canvas, err := aggregates.NewCanvas("c", owner)
		require.NoError(t, err)
		require.NoError(t, f.store.Save(context.Background(), canvas))
	}

	result, err := f.bus.Ask(context.Background(), &queries.ListCanvasesQuery{OwnerID: "user-1"})
	require.NoError(t, err)
	summaries := result.([]queries.CanvasSummaryView)
	require.Len(t, summaries, 2)
	for _, s := range summaries {
		assert.Equal(t, "user-1", s.OwnerID)
	}

	result, err = f.bus.Ask(context.Background(), &queries.ListCanvasesQuery{OwnerID: "user-1", Limit: 1})
	require.NoError(t, err)
	assert.Len(t, result.([]queries.CanvasSummaryView), 1)
}

func TestResolveContext_UpstreamOfCapsule(t *testing.T) {
	f := newQueryFixture(t)
	canvas, nodes := f.seedCanvas(t)

	result, err := f.bus.Ask(context.Background(), &queries.ResolveContextQuery{
		CanvasID: canvas.ID(),
		NodeID:   nodes[1].ID().String(),
	})
	require.NoError(t, err)

	upstream := result.(*ports.UpstreamContext)
	require.Len(t, upstream.Nodes, 1)
	assert.Equal(t, nodes[0].ID().String(), upstream.Nodes[0].ID)
	assert.Empty(t, upstream.Mode)
	assert.Nil(t, upstream.Sequence)
}

func TestResolveContext_AggregateMode(t *testing.T) {
	f := newQueryFixture(t)
	canvas, nodes := f.seedCanvas(t)

	result, err := f.bus.Ask(context.Background(), &queries.ResolveContextQuery{
		CanvasID: canvas.ID(),
		NodeID:   nodes[2].ID().String(),
		Mode:     "aggregate",
	})
	require.NoError(t, err)

	upstream := result.(*ports.UpstreamContext)
	assert.Equal(t, "aggregate", upstream.Mode)
	assert.Len(t, upstream.Nodes, 2)
}

func TestResolveContext_UnknownNode(t *testing.T) {
	f := newQueryFixture(t)
	canvas, _ := f.seedCanvas(t)

	_, err := f.bus.Ask(context.Background(), &queries.ResolveContextQuery{
		CanvasID: canvas.ID(),
		NodeID:   "node-missing",
	})
	assert.True(t, pkgerrors.IsNotFound(err))
}

func TestFindCapsules_Downstream(t *testing.T) {
	f := newQueryFixture(t)
	canvas, nodes := f.seedCanvas(t)

	result, err := f.bus.Ask(context.Background(), &queries.FindCapsulesQuery{
		CanvasID: canvas.ID(),
		StartID:  nodes[0].ID().String(),
	})
	require.NoError(t, err)

	capsules := result.([]services.ConnectedCapsule)
	require.Len(t, capsules, 1)
	assert.Equal(t, "cap-1", capsules[0].CapsuleID)
	assert.Equal(t, nodes[1].ID().String(), capsules[0].NodeID)
}

func TestFindCapsules_UnknownStart(t *testing.T) {
	f := newQueryFixture(t)
	canvas, _ := f.seedCanvas(t)

	_, err := f.bus.Ask(context.Background(), &queries.FindCapsulesQuery{
		CanvasID: canvas.ID(),
		StartID:  "node-missing",
	})
	assert.True(t, pkgerrors.IsNotFound(err))
}

func TestQueryBus_ValidatesBeforeDispatch(t *testing.T) {
	f := newQueryFixture(t)

	_, err := f.bus.Ask(context.Background(), &queries.GetCanvasQuery{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validation failed")
}
