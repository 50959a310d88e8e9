package valueobjects

import "fmt"

// NodeKind classifies what role a node plays on the canvas.
type NodeKind string

const (
	KindInput         NodeKind = "input"
	KindStyle         NodeKind = "style"
	KindCustomization NodeKind = "customization"
	KindProcessing    NodeKind = "processing"
	KindCapsule       NodeKind = "capsule"
	KindOutput        NodeKind = "output"
	KindAsset         NodeKind = "asset"
)

var nodeKinds = map[NodeKind]bool{
	KindInput:         true,
	KindStyle:         true,
	KindCustomization: true,
	KindProcessing:    true,
	KindCapsule:       true,
	KindOutput:        true,
	KindAsset:         true,
}

// ParseNodeKind converts a raw string into a NodeKind
func ParseNodeKind(s string) (NodeKind, error) {
	kind := NodeKind(s)
	if !nodeKinds[kind] {
		return "", fmt.Errorf("unknown node kind: %q", s)
	}
	return kind, nil
}

// IsValid reports whether the kind is one of the declared canvas kinds
func (k NodeKind) IsValid() bool {
	return nodeKinds[k]
}

// String returns the string representation of the kind
func (k NodeKind) String() string {
	return string(k)
}
