package services

import (
	"sort"

	"canvasd/application/ports"
	"canvasd/domain/core/aggregates"
	"canvasd/domain/core/entities"
	"canvasd/domain/core/valueobjects"

	"go.uber.org/zap"
)

// ContextResolver computes the upstream context for a target node: the
// subgraph of every ancestor reachable by following incoming edges
// transitively. The snapshot is ephemeral and recomputed on every run
// request, never cached, since the canvas may have changed in between.
type ContextResolver struct {
	logger *zap.Logger
}

// NewContextResolver creates a resolver
func NewContextResolver(logger *zap.Logger) *ContextResolver {
	return &ContextResolver{logger: logger}
}

// Resolve walks incoming edges transitively from the target and returns the
// ancestor subgraph. The target seeds the traversal but is excluded from the
// result. An unknown target or an empty canvas yields an empty context, not
// an error.
//
// mode "sequential" additionally emits a deterministic topological ordering
// of the ancestors; mode "aggregate" tags the context with no defined order;
// an empty mode omits the tag entirely.
func (r *ContextResolver) Resolve(canvas *aggregates.Canvas, targetID valueobjects.NodeID, mode string) *ports.UpstreamContext {
	edges := canvas.Edges()

	// Reverse adjacency: target -> sources.
	incoming := make(map[string][]string)
	for _, edge := range edges {
		incoming[edge.Target().String()] = append(incoming[edge.Target().String()], edge.Source().String())
	}

	// Iterative depth-first traversal with an explicit stack.
	ancestors := make(map[string]bool)
	visited := map[string]bool{targetID.String(): true}
	stack := []string{targetID.String()}
	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, source := range incoming[current] {
			if visited[source] {
				continue
			}
			visited[source] = true
			ancestors[source] = true
			stack = append(stack, source)
		}
	}

	// Filter the canvas down to the visited set, preserving insertion order.
	var contextNodes []ports.ContextNode
	payloadByID := make(map[string]ports.ContextNode)
	var ancestorOrder []string
	for _, node := range canvas.Nodes() {
		id := node.ID().String()
		if !ancestors[id] {
			continue
		}
		payload := contextNodePayload(node)
		contextNodes = append(contextNodes, payload)
		payloadByID[id] = payload
		ancestorOrder = append(ancestorOrder, id)
	}

	// Keep edges whose source is an ancestor and whose target is either an
	// ancestor or the target node itself.
	var contextEdges []ports.ContextEdge
	for _, edge := range edges {
		src, dst := edge.Source().String(), edge.Target().String()
		if ancestors[src] && (ancestors[dst] || dst == targetID.String()) {
			contextEdges = append(contextEdges, ports.ContextEdge{
				ID:     edge.ID(),
				Source: src,
				Target: dst,
			})
		}
	}

	result := &ports.UpstreamContext{
		Nodes: contextNodes,
		Edges: contextEdges,
	}

	switch mode {
	case ports.ContextModeSequential:
		result.Mode = ports.ContextModeSequential
		orderedIDs := topoSort(ancestors, ancestorOrder, contextEdges)
		result.Sequence = make([]ports.ContextNode, 0, len(orderedIDs))
		for _, id := range orderedIDs {
			result.Sequence = append(result.Sequence, payloadByID[id])
		}
	case ports.ContextModeAggregate:
		result.Mode = ports.ContextModeAggregate
	}

	if r.logger != nil {
		r.logger.Debug("Resolved upstream context",
			zap.String("target", targetID.String()),
			zap.String("mode", mode),
			zap.Int("nodes", len(contextNodes)),
			zap.Int("edges", len(contextEdges)),
		)
	}
	return result
}

// topoSort runs Kahn's algorithm over the ancestor subgraph. Ties break on
// id sort order so the result is deterministic. Nodes left over after the
// queue drains belong to a cycle and are appended in their original relative
// order, so the output is always a permutation of the ancestor set.
func topoSort(ancestors map[string]bool, originalOrder []string, edges []ports.ContextEdge) []string {
	inDegree := make(map[string]int, len(ancestors))
	forward := make(map[string][]string)
	for id := range ancestors {
		inDegree[id] = 0
	}
	for _, edge := range edges {
		if !ancestors[edge.Source] || !ancestors[edge.Target] {
			continue
		}
		inDegree[edge.Target]++
		forward[edge.Source] = append(forward[edge.Source], edge.Target)
	}

	var queue []string
	for id, degree := range inDegree {
		if degree == 0 {
			queue = append(queue, id)
		}
	}
	sort.Strings(queue)

	emitted := make(map[string]bool, len(ancestors))
	ordered := make([]string, 0, len(ancestors))
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		ordered = append(ordered, current)
		emitted[current] = true

		neighbors := append([]string(nil), forward[current]...)
		sort.Strings(neighbors)
		for _, next := range neighbors {
			inDegree[next]--
			if inDegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}

	// Cycle remnants keep their original relative order.
	for _, id := range originalOrder {
		if !emitted[id] {
			ordered = append(ordered, id)
		}
	}
	return ordered
}

func contextNodePayload(node *entities.Node) ports.ContextNode {
	payload := ports.ContextNode{
		ID:     node.ID().String(),
		Type:   node.Kind().String(),
		Label:  node.Label(),
		Params: node.Params(),
	}
	if capsule := node.Capsule(); !capsule.IsZero() {
		payload.CapsuleID = capsule.ID()
		payload.CapsuleVersion = capsule.Version()
	}
	return payload
}
