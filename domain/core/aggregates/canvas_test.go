package aggregates

import (
	"testing"

	"canvasd/domain/core/entities"
	"canvasd/domain/core/valueobjects"
	pkgerrors "canvasd/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCanvas(t *testing.T) *Canvas {
	t.Helper()
	canvas, err := NewCanvas("Test Canvas", "user-1")
	require.NoError(t, err)
	return canvas
}

func mustNode(t *testing.T, kind valueobjects.NodeKind, label string) *entities.Node {
	t.Helper()
	node, err := entities.NewNode(kind, label, nil)
	require.NoError(t, err)
	return node
}

func TestNewCanvas_RequiresOwner(t *testing.T) {
	_, err := NewCanvas("x", "")
	assert.Error(t, err)
}

func TestCanvas_AddNode(t *testing.T) {
	canvas := newTestCanvas(t)
	node := mustNode(t, valueobjects.KindInput, "src")

	require.NoError(t, canvas.AddNode(node))
	assert.Equal(t, 1, canvas.NodeCount())
	assert.True(t, canvas.HasNode(node.ID()))

	// Same node twice is a conflict
	err := canvas.AddNode(node)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsConflict(err))
}

func TestCanvas_AddEdge_RequiresBothEndpoints(t *testing.T) {
	canvas := newTestCanvas(t)
	a := mustNode(t, valueobjects.KindInput, "a")
	b := mustNode(t, valueobjects.KindProcessing, "b")
	require.NoError(t, canvas.AddNode(a))

	edge, err := entities.NewEdge(a.ID(), b.ID())
	require.NoError(t, err)

	// Target is not on the canvas yet
	assert.Error(t, canvas.AddEdge(edge))

	require.NoError(t, canvas.AddNode(b))
	require.NoError(t, canvas.AddEdge(edge))
	assert.Equal(t, 1, canvas.EdgeCount())
}

func TestCanvas_RemoveNode_PrunesIncidentEdges(t *testing.T) {
	canvas := newTestCanvas(t)
	a := mustNode(t, valueobjects.KindInput, "a")
	b := mustNode(t, valueobjects.KindProcessing, "b")
	c := mustNode(t, valueobjects.KindOutput, "c")
	for _, n := range []*entities.Node{a, b, c} {
		require.NoError(t, canvas.AddNode(n))
	}

	ab, err := entities.NewEdge(a.ID(), b.ID())
	require.NoError(t, err)
	bc, err := entities.NewEdge(b.ID(), c.ID())
	require.NoError(t, err)
	ac, err := entities.NewEdge(a.ID(), c.ID())
	require.NoError(t, err)
	for _, e := range []*entities.Edge{ab, bc, ac} {
		require.NoError(t, canvas.AddEdge(e))
	}

	require.NoError(t, canvas.RemoveNode(b.ID()))

	assert.False(t, canvas.HasNode(b.ID()))
	// Only the a->c edge survives
	edges := canvas.Edges()
	require.Len(t, edges, 1)
	assert.Equal(t, ac.ID(), edges[0].ID())
}

func TestCanvas_RemoveNode_Unknown(t *testing.T) {
	canvas := newTestCanvas(t)
	err := canvas.RemoveNode(valueobjects.NewNodeID())
	require.Error(t, err)
	assert.True(t, pkgerrors.IsNotFound(err))
}

func TestCanvas_RemoveEdge(t *testing.T) {
	canvas := newTestCanvas(t)
	a := mustNode(t, valueobjects.KindInput, "a")
	b := mustNode(t, valueobjects.KindOutput, "b")
	require.NoError(t, canvas.AddNode(a))
	require.NoError(t, canvas.AddNode(b))

	edge, err := entities.NewEdge(a.ID(), b.ID())
	require.NoError(t, err)
	require.NoError(t, canvas.AddEdge(edge))

	require.NoError(t, canvas.RemoveEdge(edge.ID()))
	assert.Zero(t, canvas.EdgeCount())

	err = canvas.RemoveEdge(edge.ID())
	require.Error(t, err)
	assert.True(t, pkgerrors.IsNotFound(err))
}

func TestCanvas_Nodes_PreservesInsertionOrder(t *testing.T) {
	canvas := newTestCanvas(t)
	labels := []string{"first", "second", "third"}
	for _, label := range labels {
		require.NoError(t, canvas.AddNode(mustNode(t, valueobjects.KindProcessing, label)))
	}

	nodes := canvas.Nodes()
	require.Len(t, nodes, 3)
	for i, node := range nodes {
		assert.Equal(t, labels[i], node.Label())
	}
}

func TestCanvas_NodesOfKind(t *testing.T) {
	canvas := newTestCanvas(t)
	require.NoError(t, canvas.AddNode(mustNode(t, valueobjects.KindInput, "in")))
	require.NoError(t, canvas.AddNode(mustNode(t, valueobjects.KindOutput, "out-1")))
	require.NoError(t, canvas.AddNode(mustNode(t, valueobjects.KindOutput, "out-2")))

	outputs := canvas.NodesOfKind(valueobjects.KindOutput)
	require.Len(t, outputs, 2)
	assert.Equal(t, "out-1", outputs[0].Label())
	assert.Equal(t, "out-2", outputs[1].Label())
}

func TestCanvas_MarkPersisted(t *testing.T) {
	canvas := newTestCanvas(t)
	assert.False(t, canvas.Persisted())
	canvas.MarkPersisted()
	assert.True(t, canvas.Persisted())
}

func TestCanvas_VersionBumpsOnMutation(t *testing.T) {
	canvas := newTestCanvas(t)
	before := canvas.Version()
	require.NoError(t, canvas.AddNode(mustNode(t, valueobjects.KindInput, "x")))
	assert.Greater(t, canvas.Version(), before)
}
