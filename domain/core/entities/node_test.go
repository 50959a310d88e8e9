package entities

import (
	"testing"

	"canvasd/domain/core/valueobjects"
	pkgerrors "canvasd/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCapsuleNode(t *testing.T) *Node {
	t.Helper()
	ref, err := valueobjects.NewCapsuleRef("cap-1", "")
	require.NoError(t, err)
	node, err := NewCapsuleNode("Scene builder", nil, ref)
	require.NoError(t, err)
	return node
}

func TestNewNode_RejectsUnknownKind(t *testing.T) {
	_, err := NewNode(valueobjects.NodeKind("banner"), "x", nil)
	assert.Error(t, err)
}

func TestNewCapsuleNode_RequiresCapsuleRef(t *testing.T) {
	_, err := NewCapsuleNode("x", nil, valueobjects.CapsuleRef{})
	assert.Error(t, err)
}

func TestNode_RunLifecycle_Complete(t *testing.T) {
	node := newTestCapsuleNode(t)

	require.NoError(t, node.BeginRun("run-1"))
	assert.Equal(t, valueobjects.StatusLoading, node.Status())
	assert.Equal(t, "run-1", node.ActiveRunID())
	assert.Equal(t, "run-1", node.LastRunID())

	require.NoError(t, node.MarkStreaming(10, "first chunk"))
	assert.Equal(t, valueobjects.StatusStreaming, node.Status())
	assert.Equal(t, 10, node.Progress())
	assert.Equal(t, "first chunk", node.StatusNote())

	// Progress events repeat while streaming
	require.NoError(t, node.MarkStreaming(60, ""))
	assert.Equal(t, 60, node.Progress())

	require.NoError(t, node.CompleteRun())
	assert.Equal(t, valueobjects.StatusComplete, node.Status())
	assert.Empty(t, node.ActiveRunID())
	assert.Equal(t, "run-1", node.LastRunID())
}

func TestNode_BeginRun_ConflictsWhileActive(t *testing.T) {
	node := newTestCapsuleNode(t)
	require.NoError(t, node.BeginRun("run-1"))

	err := node.BeginRun("run-2")
	require.Error(t, err)
	assert.True(t, pkgerrors.IsConflict(err))
}

func TestNode_BeginRun_ResetsTerminalState(t *testing.T) {
	node := newTestCapsuleNode(t)
	require.NoError(t, node.BeginRun("run-1"))
	require.NoError(t, node.FailRun("boom"))
	assert.Equal(t, valueobjects.StatusError, node.Status())

	// A fresh attempt discards the terminal state
	require.NoError(t, node.BeginRun("run-2"))
	assert.Equal(t, valueobjects.StatusLoading, node.Status())
	assert.Empty(t, node.StatusNote())
	assert.Zero(t, node.Progress())
	assert.Equal(t, "run-2", node.LastRunID())
}

func TestNode_RejectRun_FromTerminalState(t *testing.T) {
	node := newTestCapsuleNode(t)
	require.NoError(t, node.BeginRun("run-1"))
	require.NoError(t, node.CompleteRun())

	// A pre-flight rejection is not bound by in-attempt transition rules
	require.NoError(t, node.RejectRun("too many upstream nodes"))
	assert.Equal(t, valueobjects.StatusError, node.Status())
	assert.Equal(t, "too many upstream nodes", node.StatusNote())
}

func TestNode_RejectRun_RefusedWhileActive(t *testing.T) {
	node := newTestCapsuleNode(t)
	require.NoError(t, node.BeginRun("run-1"))

	err := node.RejectRun("nope")
	require.Error(t, err)
	assert.True(t, pkgerrors.IsConflict(err))
}

func TestNode_CancelRun(t *testing.T) {
	node := newTestCapsuleNode(t)
	require.NoError(t, node.BeginRun("run-1"))
	require.NoError(t, node.MarkStreaming(30, ""))

	require.NoError(t, node.CancelRun("Run cancelled"))
	assert.Equal(t, valueobjects.StatusCancelled, node.Status())
	assert.Equal(t, "Run cancelled", node.StatusNote())
	assert.Empty(t, node.ActiveRunID())
}

func TestNode_SettleWithoutRunIsRejected(t *testing.T) {
	node := newTestCapsuleNode(t)
	assert.Error(t, node.CompleteRun())
	assert.Error(t, node.CancelRun("x"))
}

func TestNode_Params_ReturnsCopy(t *testing.T) {
	node, err := NewNode(valueobjects.KindInput, "src", map[string]interface{}{"sourceId": "asset-1"})
	require.NoError(t, err)

	params := node.Params()
	params["sourceId"] = "tampered"

	v, ok := node.Param("sourceId")
	require.True(t, ok)
	assert.Equal(t, "asset-1", v)
}

func TestNode_SetRenderedPreview(t *testing.T) {
	node := newTestCapsuleNode(t)
	preview := &RenderedPreview{
		Language:           "fr",
		AvailableLanguages: []string{"en", "fr"},
		Panels:             []map[string]interface{}{{"caption": "one"}},
	}

	node.SetRenderedPreview(preview, []string{"ev-1"})

	assert.Equal(t, preview, node.Preview())
	assert.Equal(t, []string{"ev-1"}, node.EvidenceRefs())
}
