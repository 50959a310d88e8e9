package services

import (
	"canvasd/domain/core/aggregates"
	"canvasd/domain/core/valueobjects"

	"go.uber.org/zap"
)

// ConnectedCapsule is one capsule node reachable downstream of a start node
type ConnectedCapsule struct {
	NodeID         string `json:"node_id"`
	CapsuleID      string `json:"capsule_id"`
	CapsuleVersion string `json:"capsule_version"`
}

// CapsuleFinder enumerates every capsule node reachable by following
// outgoing edges from a start node.
type CapsuleFinder struct {
	logger *zap.Logger
}

// NewCapsuleFinder creates a finder
func NewCapsuleFinder(logger *zap.Logger) *CapsuleFinder {
	return &CapsuleFinder{logger: logger}
}

// FindCapsules runs a breadth-first traversal over outgoing edges from the
// start node. The start id is pre-seeded into the visited set so it is never
// re-enqueued. Each reachable capsule node carrying a non-empty capsule id
// is emitted exactly once, in BFS discovery order; versions default to
// "latest" when unpinned.
func (f *CapsuleFinder) FindCapsules(canvas *aggregates.Canvas, startID valueobjects.NodeID) []ConnectedCapsule {
	// Forward adjacency: source -> targets.
	outgoing := make(map[string][]string)
	for _, edge := range canvas.Edges() {
		outgoing[edge.Source().String()] = append(outgoing[edge.Source().String()], edge.Target().String())
	}

	visited := map[string]bool{startID.String(): true}
	queue := []string{startID.String()}
	var found []ConnectedCapsule

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		for _, next := range outgoing[current] {
			if visited[next] {
				continue
			}
			visited[next] = true
			queue = append(queue, next)

			nextID, err := valueobjects.NewNodeIDFromString(next)
			if err != nil {
				continue
			}
			node, err := canvas.Node(nextID)
			if err != nil {
				continue
			}
			if node.Kind() != valueobjects.KindCapsule {
				continue
			}
			capsule := node.Capsule()
			if capsule.IsZero() {
				continue
			}
			found = append(found, ConnectedCapsule{
				NodeID:         next,
				CapsuleID:      capsule.ID(),
				CapsuleVersion: capsule.Version(),
			})
		}
	}

	if f.logger != nil {
		f.logger.Debug("Enumerated connected capsules",
			zap.String("start", startID.String()),
			zap.Int("found", len(found)),
		)
	}
	return found
}
