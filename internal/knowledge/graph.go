package knowledge

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/opsforge/remedy-engine/internal/utils"
)

// NodeType enumerates the typed node classes of the knowledge graph.
type NodeType string

const (
	NodeAnomaly       NodeType = "anomaly"
	NodeRootCause     NodeType = "root_cause"
	NodeRemediation   NodeType = "remediation"
	NodeMetricPattern NodeType = "metric_pattern"
)

// Relation enumerates edge relationship types.
type Relation string

const (
	RelationCauses     Relation = "causes"
	RelationResolves   Relation = "resolves"
	RelationCorrelates Relation = "correlates_with"
	RelationSimilar    Relation = "similar_to"
)

func validNodeType(t NodeType) bool {
	switch t {
	case NodeAnomaly, NodeRootCause, NodeRemediation, NodeMetricPattern:
		return true
	}
	return false
}

func validRelation(r Relation) bool {
	switch r {
	case RelationCauses, RelationResolves, RelationCorrelates, RelationSimilar:
		return true
	}
	return false
}

// Node is a typed property bag. Ids are unique per type-scoped counter.
type Node struct {
	ID         string         `json:"id"`
	Type       NodeType       `json:"type"`
	Properties map[string]any `json:"properties"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// Edge is a directed, weighted, confidence-scored relationship. Both endpoints
// exist at creation time.
type Edge struct {
	SourceID   string    `json:"source_id"`
	TargetID   string    `json:"target_id"`
	Relation   Relation  `json:"relation"`
	Weight     float64   `json:"weight"`
	Confidence float64   `json:"confidence"`
	CreatedAt  time.Time `json:"created_at"`
}

// SimilarNode pairs a node with its similarity to a query node.
type SimilarNode struct {
	Node       Node
	Similarity float64
}

// Snapshot is the opaque, JSON-compatible persistence form of a graph.
type Snapshot struct {
	Nodes    []Node           `json:"nodes"`
	Edges    []Edge           `json:"edges"`
	Counters map[NodeType]int `json:"node_counter"`
}

// Graph is an in-process directed typed graph. All mutations are serialized
// behind one writer lock; reads run concurrently against a consistent view.
type Graph struct {
	mu       sync.RWMutex
	nodes    map[string]*Node
	out      map[string][]*Edge
	in       map[string][]*Edge
	counters map[NodeType]int

	now func() time.Time
}

// NewGraph constructs an empty graph.
func NewGraph() *Graph {
	return &Graph{
		nodes:    make(map[string]*Node),
		out:      make(map[string][]*Edge),
		in:       make(map[string][]*Edge),
		counters: make(map[NodeType]int),
		now:      time.Now,
	}
}

// AddNode allocates a fresh type-scoped id and stores the node.
func (g *Graph) AddNode(t NodeType, properties map[string]any) (string, error) {
	if !validNodeType(t) {
		return "", utils.ValidationError("knowledge.AddNode", fmt.Sprintf("unknown node type %q", t), nil)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	g.counters[t]++
	id := fmt.Sprintf("%s_%d", t, g.counters[t])

	props := make(map[string]any, len(properties))
	for k, v := range properties {
		props[k] = v
	}

	ts := g.now().UTC()
	g.nodes[id] = &Node{ID: id, Type: t, Properties: props, CreatedAt: ts, UpdatedAt: ts}
	return id, nil
}

// AddEdge appends a directed edge. Fails with a validation error when either
// endpoint is absent; nothing is committed in that case.
func (g *Graph) AddEdge(sourceID, targetID string, relation Relation, weight, confidence float64) error {
	if !validRelation(relation) {
		return utils.ValidationError("knowledge.AddEdge", fmt.Sprintf("unknown relation %q", relation), nil)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.nodes[sourceID]; !ok {
		return utils.ValidationError("knowledge.AddEdge", fmt.Sprintf("source node %s not found", sourceID), nil)
	}
	if _, ok := g.nodes[targetID]; !ok {
		return utils.ValidationError("knowledge.AddEdge", fmt.Sprintf("target node %s not found", targetID), nil)
	}

	edge := &Edge{
		SourceID:   sourceID,
		TargetID:   targetID,
		Relation:   relation,
		Weight:     weight,
		Confidence: confidence,
		CreatedAt:  g.now().UTC(),
	}
	g.out[sourceID] = append(g.out[sourceID], edge)
	g.in[targetID] = append(g.in[targetID], edge)
	return nil
}

// GetNode returns a copy of the node.
func (g *Graph) GetNode(id string) (Node, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	node, ok := g.nodes[id]
	if !ok {
		return Node{}, false
	}
	return copyNode(node), true
}

// UpdateNodeProperties merges properties into the node and bumps UpdatedAt.
func (g *Graph) UpdateNodeProperties(id string, properties map[string]any) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	node, ok := g.nodes[id]
	if !ok {
		return utils.NotFoundError("knowledge.UpdateNodeProperties", fmt.Sprintf("node %s not found", id))
	}
	for k, v := range properties {
		node.Properties[k] = v
	}
	node.UpdatedAt = g.now().UTC()
	return nil
}

// RemoveNode deletes a node together with every incident edge. Used for the
// transient query nodes created during recommendation lookups.
func (g *Graph) RemoveNode(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.nodes[id]; !ok {
		return
	}
	delete(g.nodes, id)

	for _, edge := range g.out[id] {
		g.in[edge.TargetID] = dropEdges(g.in[edge.TargetID], id, "")
	}
	delete(g.out, id)
	for _, edge := range g.in[id] {
		g.out[edge.SourceID] = dropEdges(g.out[edge.SourceID], "", id)
	}
	delete(g.in, id)
}

// OutEdges returns copies of the node's outgoing edges, optionally filtered by
// relation ("" matches all).
func (g *Graph) OutEdges(id string, relation Relation) []Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()

	edges := make([]Edge, 0, len(g.out[id]))
	for _, edge := range g.out[id] {
		if relation != "" && edge.Relation != relation {
			continue
		}
		edges = append(edges, *edge)
	}
	return edges
}

// NodeCount returns the number of stored nodes.
func (g *Graph) NodeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// EdgeCount returns the number of stored edges.
func (g *Graph) EdgeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()

	count := 0
	for _, edges := range g.out {
		count += len(edges)
	}
	return count
}

// NodesOfType returns copies of all nodes with the given type.
func (g *Graph) NodesOfType(t NodeType) []Node {
	g.mu.RLock()
	defer g.mu.RUnlock()

	nodes := make([]Node, 0)
	for _, node := range g.nodes {
		if node.Type == t {
			nodes = append(nodes, copyNode(node))
		}
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })
	return nodes
}

// FindSimilar ranks same-type nodes by text similarity to the given node,
// keeping matches at or above threshold, sorted descending.
func (g *Graph) FindSimilar(nodeID string, threshold float64) ([]SimilarNode, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	query, ok := g.nodes[nodeID]
	if !ok {
		return nil, utils.NotFoundError("knowledge.FindSimilar", fmt.Sprintf("node %s not found", nodeID))
	}

	candidates := make([]*Node, 0)
	for _, node := range g.nodes {
		if node.ID != nodeID && node.Type == query.Type {
			candidates = append(candidates, node)
		}
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	corpus := make([][]string, 0, len(candidates)+1)
	corpus = append(corpus, tokenize(nodeText(query)))
	for _, candidate := range candidates {
		corpus = append(corpus, tokenize(nodeText(candidate)))
	}
	vectors := tfidfVectors(corpus)

	matches := make([]SimilarNode, 0)
	for i, candidate := range candidates {
		sim := cosine(vectors[0], vectors[i+1])
		if sim >= threshold {
			matches = append(matches, SimilarNode{Node: copyNode(candidate), Similarity: sim})
		}
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Similarity > matches[j].Similarity })
	return matches, nil
}

// Snapshot produces a lossless persistence form: ids, types, properties,
// relations, weights, and timestamps all survive a round trip.
func (g *Graph) Snapshot() Snapshot {
	g.mu.RLock()
	defer g.mu.RUnlock()

	snap := Snapshot{
		Nodes:    make([]Node, 0, len(g.nodes)),
		Edges:    make([]Edge, 0),
		Counters: make(map[NodeType]int, len(g.counters)),
	}
	for _, node := range g.nodes {
		snap.Nodes = append(snap.Nodes, copyNode(node))
	}
	sort.Slice(snap.Nodes, func(i, j int) bool { return snap.Nodes[i].ID < snap.Nodes[j].ID })
	for _, edges := range g.out {
		for _, edge := range edges {
			snap.Edges = append(snap.Edges, *edge)
		}
	}
	sort.Slice(snap.Edges, func(i, j int) bool {
		if snap.Edges[i].SourceID != snap.Edges[j].SourceID {
			return snap.Edges[i].SourceID < snap.Edges[j].SourceID
		}
		return snap.Edges[i].TargetID < snap.Edges[j].TargetID
	})
	for t, n := range g.counters {
		snap.Counters[t] = n
	}
	return snap
}

// Restore replaces the graph contents from a snapshot.
func (g *Graph) Restore(snap Snapshot) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	nodes := make(map[string]*Node, len(snap.Nodes))
	for i := range snap.Nodes {
		node := copyNode(&snap.Nodes[i])
		nodes[node.ID] = &node
	}

	out := make(map[string][]*Edge)
	in := make(map[string][]*Edge)
	for i := range snap.Edges {
		edge := snap.Edges[i]
		if _, ok := nodes[edge.SourceID]; !ok {
			return utils.ValidationError("knowledge.Restore", fmt.Sprintf("edge references missing node %s", edge.SourceID), nil)
		}
		if _, ok := nodes[edge.TargetID]; !ok {
			return utils.ValidationError("knowledge.Restore", fmt.Sprintf("edge references missing node %s", edge.TargetID), nil)
		}
		e := edge
		out[e.SourceID] = append(out[e.SourceID], &e)
		in[e.TargetID] = append(in[e.TargetID], &e)
	}

	counters := make(map[NodeType]int, len(snap.Counters))
	for t, n := range snap.Counters {
		counters[t] = n
	}

	g.nodes = nodes
	g.out = out
	g.in = in
	g.counters = counters
	return nil
}

func copyNode(node *Node) Node {
	props := make(map[string]any, len(node.Properties))
	for k, v := range node.Properties {
		props[k] = v
	}
	copied := *node
	copied.Properties = props
	return copied
}

func dropEdges(edges []*Edge, sourceID, targetID string) []*Edge {
	kept := edges[:0]
	for _, edge := range edges {
		if sourceID != "" && edge.SourceID == sourceID {
			continue
		}
		if targetID != "" && edge.TargetID == targetID {
			continue
		}
		kept = append(kept, edge)
	}
	return kept
}

func nodeText(node *Node) string {
	text := ""
	if desc, ok := node.Properties["description"].(string); ok {
		text += desc
	}
	if source, ok := node.Properties["source"].(string); ok {
		text += " " + source
	}
	return text
}
