package services

import (
	"testing"

	"canvasd/domain/core/aggregates"
	"canvasd/domain/core/entities"
	"canvasd/domain/core/valueobjects"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func addCapsuleNode(t *testing.T, canvas *aggregates.Canvas, label, capsuleID, version string) *entities.Node {
	t.Helper()
	ref, err := valueobjects.NewCapsuleRef(capsuleID, version)
	require.NoError(t, err)
	node, err := entities.NewCapsuleNode(label, nil, ref)
	require.NoError(t, err)
	require.NoError(t, canvas.AddNode(node))
	return node
}

func TestCapsuleFinder_FindsDownstreamCapsules(t *testing.T) {
	// input -> proc -> cap1 -> cap2, with an unreachable cap3 off to the side
	canvas := testCanvas(t)
	input := addNode(t, canvas, valueobjects.KindInput, "input", nil)
	proc := addNode(t, canvas, valueobjects.KindProcessing, "proc", nil)
	cap1 := addCapsuleNode(t, canvas, "cap1", "capsule-one", "")
	cap2 := addCapsuleNode(t, canvas, "cap2", "capsule-two", "2.1")
	addCapsuleNode(t, canvas, "cap3", "capsule-three", "")
	connect(t, canvas, input, proc)
	connect(t, canvas, proc, cap1)
	connect(t, canvas, cap1, cap2)

	finder := NewCapsuleFinder(zap.NewNop())
	found := finder.FindCapsules(canvas, input.ID())

	require.Len(t, found, 2)
	assert.Equal(t, cap1.ID().String(), found[0].NodeID)
	assert.Equal(t, "capsule-one", found[0].CapsuleID)
	assert.Equal(t, "latest", found[0].CapsuleVersion)
	assert.Equal(t, cap2.ID().String(), found[1].NodeID)
	assert.Equal(t, "2.1", found[1].CapsuleVersion)
}

func TestCapsuleFinder_StartNodeExcluded(t *testing.T) {
	canvas := testCanvas(t)
	start := addCapsuleNode(t, canvas, "start", "capsule-start", "")
	next := addCapsuleNode(t, canvas, "next", "capsule-next", "")
	connect(t, canvas, start, next)

	finder := NewCapsuleFinder(zap.NewNop())
	found := finder.FindCapsules(canvas, start.ID())

	require.Len(t, found, 1)
	assert.Equal(t, next.ID().String(), found[0].NodeID)
}

func TestCapsuleFinder_DiamondEmitsOnce(t *testing.T) {
	// start fans out through two paths that rejoin at the same capsule
	canvas := testCanvas(t)
	start := addNode(t, canvas, valueobjects.KindInput, "start", nil)
	left := addNode(t, canvas, valueobjects.KindProcessing, "left", nil)
	right := addNode(t, canvas, valueobjects.KindProcessing, "right", nil)
	target := addCapsuleNode(t, canvas, "target", "capsule-one", "")
	connect(t, canvas, start, left)
	connect(t, canvas, start, right)
	connect(t, canvas, left, target)
	connect(t, canvas, right, target)

	finder := NewCapsuleFinder(zap.NewNop())
	found := finder.FindCapsules(canvas, start.ID())

	assert.Len(t, found, 1)
}

func TestCapsuleFinder_CycleTerminates(t *testing.T) {
	canvas := testCanvas(t)
	a := addNode(t, canvas, valueobjects.KindProcessing, "a", nil)
	b := addNode(t, canvas, valueobjects.KindProcessing, "b", nil)
	target := addCapsuleNode(t, canvas, "cap", "capsule-one", "")
	connect(t, canvas, a, b)
	connect(t, canvas, b, a)
	connect(t, canvas, b, target)

	finder := NewCapsuleFinder(zap.NewNop())
	found := finder.FindCapsules(canvas, a.ID())

	assert.Len(t, found, 1)
}

func TestCapsuleFinder_UpstreamNotVisited(t *testing.T) {
	canvas := testCanvas(t)
	upstream := addCapsuleNode(t, canvas, "upstream", "capsule-up", "")
	start := addNode(t, canvas, valueobjects.KindProcessing, "start", nil)
	connect(t, canvas, upstream, start)

	finder := NewCapsuleFinder(zap.NewNop())
	assert.Empty(t, finder.FindCapsules(canvas, start.ID()))
}
