package aggregates

import (
	"time"

	"canvasd/domain/core/entities"
	"canvasd/domain/core/valueobjects"
	"canvasd/domain/events"
	pkgerrors "canvasd/pkg/errors"

	"github.com/google/uuid"
)

// Canvas is the aggregate root for one node graph. It owns every node and
// edge and is the only place where they are created or destroyed, which is
// how the no-dangling-edge invariant is kept: an edge can only be added while
// both endpoints exist, and removing a node prunes its incident edges in the
// same operation.
//
// Nodes and edges keep their insertion order; traversal code relies on that
// order for deterministic output.
type Canvas struct {
	id        string
	name      string
	ownerID   string
	persisted bool

	nodes     map[valueobjects.NodeID]*entities.Node
	nodeOrder []valueobjects.NodeID
	edges     []*entities.Edge

	version   int
	createdAt time.Time
	updatedAt time.Time

	events []events.DomainEvent
}

// NewCanvas creates an empty canvas
func NewCanvas(name, ownerID string) (*Canvas, error) {
	if ownerID == "" {
		return nil, pkgerrors.NewValidationError("ownerID cannot be empty")
	}

	now := time.Now()
	return &Canvas{
		id:        uuid.New().String(),
		name:      name,
		ownerID:   ownerID,
		nodes:     make(map[valueobjects.NodeID]*entities.Node),
		version:   1,
		createdAt: now,
		updatedAt: now,
		events:    []events.DomainEvent{},
	}, nil
}

// ID returns the canvas identifier
func (c *Canvas) ID() string {
	return c.id
}

// Name returns the canvas display name
func (c *Canvas) Name() string {
	return c.name
}

// OwnerID returns the owning user's id
func (c *Canvas) OwnerID() string {
	return c.ownerID
}

// Persisted reports whether the canvas has been saved server-side. For a
// persisted canvas the backend resolves context and validates contracts
// itself, so local pre-flight checks are skipped.
func (c *Canvas) Persisted() bool {
	return c.persisted
}

// MarkPersisted flags the canvas as saved server-side
func (c *Canvas) MarkPersisted() {
	c.persisted = true
	c.touch()
}

// Version returns the aggregate version, bumped on every mutation
func (c *Canvas) Version() int {
	return c.version
}

// AddNode places a node on the canvas
func (c *Canvas) AddNode(node *entities.Node) error {
	if node == nil {
		return pkgerrors.NewValidationError("node cannot be nil")
	}
	if _, exists := c.nodes[node.ID()]; exists {
		return pkgerrors.NewConflictError("node already exists on canvas: " + node.ID().String())
	}

	c.nodes[node.ID()] = node
	c.nodeOrder = append(c.nodeOrder, node.ID())
	c.touch()

	c.addEvent(events.NewNodeAdded(c.id, node.ID(), node.Kind(), c.updatedAt))
	return nil
}

// RemoveNode deletes a node and prunes every edge that references it
func (c *Canvas) RemoveNode(nodeID valueobjects.NodeID) error {
	if _, exists := c.nodes[nodeID]; !exists {
		return pkgerrors.NewNodeNotFoundError(nodeID.String())
	}

	delete(c.nodes, nodeID)
	for i, id := range c.nodeOrder {
		if id.Equals(nodeID) {
			c.nodeOrder = append(c.nodeOrder[:i], c.nodeOrder[i+1:]...)
			break
		}
	}

	var pruned []string
	kept := c.edges[:0]
	for _, edge := range c.edges {
		if edge.Source().Equals(nodeID) || edge.Target().Equals(nodeID) {
			pruned = append(pruned, edge.ID())
			continue
		}
		kept = append(kept, edge)
	}
	c.edges = kept
	c.touch()

	c.addEvent(events.NewNodeRemoved(c.id, nodeID, pruned, c.updatedAt))
	return nil
}

// AddEdge connects two existing nodes. Both endpoints must be live.
func (c *Canvas) AddEdge(edge *entities.Edge) error {
	if edge == nil {
		return pkgerrors.NewValidationError("edge cannot be nil")
	}
	if _, ok := c.nodes[edge.Source()]; !ok {
		return pkgerrors.NewEdgeEndpointMissingError(edge.Source().String())
	}
	if _, ok := c.nodes[edge.Target()]; !ok {
		return pkgerrors.NewEdgeEndpointMissingError(edge.Target().String())
	}

	c.edges = append(c.edges, edge)
	c.touch()

	c.addEvent(events.NewEdgeAdded(c.id, edge.ID(), edge.Source(), edge.Target(), c.updatedAt))
	return nil
}

// RemoveEdge deletes a single edge by id
func (c *Canvas) RemoveEdge(edgeID string) error {
	for i, edge := range c.edges {
		if edge.ID() == edgeID {
			c.edges = append(c.edges[:i], c.edges[i+1:]...)
			c.touch()
			c.addEvent(events.NewEdgeRemoved(c.id, edgeID, c.updatedAt))
			return nil
		}
	}
	return pkgerrors.NewEdgeNotFoundError(edgeID)
}

// Node returns a node by id
func (c *Canvas) Node(nodeID valueobjects.NodeID) (*entities.Node, error) {
	node, ok := c.nodes[nodeID]
	if !ok {
		return nil, pkgerrors.NewNodeNotFoundError(nodeID.String())
	}
	return node, nil
}

// HasNode reports whether a node is on the canvas
func (c *Canvas) HasNode(nodeID valueobjects.NodeID) bool {
	_, ok := c.nodes[nodeID]
	return ok
}

// Nodes returns every node in insertion order
func (c *Canvas) Nodes() []*entities.Node {
	nodes := make([]*entities.Node, 0, len(c.nodeOrder))
	for _, id := range c.nodeOrder {
		nodes = append(nodes, c.nodes[id])
	}
	return nodes
}

// NodesOfKind returns nodes of one kind in insertion order
func (c *Canvas) NodesOfKind(kind valueobjects.NodeKind) []*entities.Node {
	var nodes []*entities.Node
	for _, id := range c.nodeOrder {
		if node := c.nodes[id]; node.Kind() == kind {
			nodes = append(nodes, node)
		}
	}
	return nodes
}

// Edges returns a copy of the edge list in insertion order
func (c *Canvas) Edges() []*entities.Edge {
	edges := make([]*entities.Edge, len(c.edges))
	copy(edges, c.edges)
	return edges
}

// NodeCount returns the number of nodes on the canvas
func (c *Canvas) NodeCount() int {
	return len(c.nodes)
}

// EdgeCount returns the number of edges on the canvas
func (c *Canvas) EdgeCount() int {
	return len(c.edges)
}

// CreatedAt returns when the canvas was created
func (c *Canvas) CreatedAt() time.Time {
	return c.createdAt
}

// UpdatedAt returns when the canvas was last mutated
func (c *Canvas) UpdatedAt() time.Time {
	return c.updatedAt
}

// GetUncommittedEvents returns all uncommitted domain events
func (c *Canvas) GetUncommittedEvents() []events.DomainEvent {
	return c.events
}

// MarkEventsAsCommitted clears the uncommitted events
func (c *Canvas) MarkEventsAsCommitted() {
	c.events = []events.DomainEvent{}
}

func (c *Canvas) touch() {
	c.version++
	c.updatedAt = time.Now()
}

func (c *Canvas) addEvent(event events.DomainEvent) {
	c.events = append(c.events, event)
}
