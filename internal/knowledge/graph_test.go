package knowledge

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/opsforge/remedy-engine/internal/utils"
)

func TestAddNodeTypeScopedIDs(t *testing.T) {
	graph := NewGraph()

	a1, err := graph.AddNode(NodeAnomaly, nil)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	r1, err := graph.AddNode(NodeRemediation, nil)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	a2, err := graph.AddNode(NodeAnomaly, nil)
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	if a1 != "anomaly_1" || a2 != "anomaly_2" || r1 != "remediation_1" {
		t.Errorf("unexpected ids: %s %s %s", a1, a2, r1)
	}
}

func TestAddNodeRejectsUnknownType(t *testing.T) {
	graph := NewGraph()

	if _, err := graph.AddNode(NodeType("widget"), nil); !utils.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestAddNodeCopiesProperties(t *testing.T) {
	graph := NewGraph()

	props := map[string]any{"description": "original"}
	id, err := graph.AddNode(NodeAnomaly, props)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	props["description"] = "mutated"

	node, ok := graph.GetNode(id)
	if !ok || node.Properties["description"] != "original" {
		t.Errorf("caller mutation leaked into stored node: %+v", node.Properties)
	}
}

func TestAddEdgeRequiresEndpoints(t *testing.T) {
	graph := NewGraph()
	id, err := graph.AddNode(NodeAnomaly, nil)
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	if err := graph.AddEdge(id, "remediation_99", RelationResolves, 1, 1); !utils.IsValidation(err) {
		t.Errorf("expected validation error for missing target, got %v", err)
	}
	if err := graph.AddEdge("anomaly_99", id, RelationResolves, 1, 1); !utils.IsValidation(err) {
		t.Errorf("expected validation error for missing source, got %v", err)
	}
	if err := graph.AddEdge(id, id, Relation("nearby"), 1, 1); !utils.IsValidation(err) {
		t.Errorf("expected validation error for unknown relation, got %v", err)
	}
	if graph.EdgeCount() != 0 {
		t.Errorf("failed AddEdge must not commit, edge count %d", graph.EdgeCount())
	}
}

func TestRemoveNodeDropsIncidentEdges(t *testing.T) {
	graph := NewGraph()

	anomalyID, _ := graph.AddNode(NodeAnomaly, nil)
	remediationID, _ := graph.AddNode(NodeRemediation, nil)
	causeID, _ := graph.AddNode(NodeRootCause, nil)
	if err := graph.AddEdge(anomalyID, remediationID, RelationResolves, 1, 1); err != nil {
		t.Fatalf("edge: %v", err)
	}
	if err := graph.AddEdge(causeID, anomalyID, RelationCauses, 1, 1); err != nil {
		t.Fatalf("edge: %v", err)
	}

	graph.RemoveNode(anomalyID)

	if _, ok := graph.GetNode(anomalyID); ok {
		t.Error("node still present after removal")
	}
	if graph.EdgeCount() != 0 {
		t.Errorf("expected all incident edges dropped, got %d", graph.EdgeCount())
	}
	if edges := graph.OutEdges(causeID, ""); len(edges) != 0 {
		t.Errorf("dangling edge survived removal: %+v", edges)
	}
}

func TestUpdateNodeProperties(t *testing.T) {
	graph := NewGraph()

	id, _ := graph.AddNode(NodeRemediation, map[string]any{"action_type": "scale_up", "executions": float64(1)})
	if err := graph.UpdateNodeProperties(id, map[string]any{"executions": float64(2)}); err != nil {
		t.Fatalf("update: %v", err)
	}

	node, _ := graph.GetNode(id)
	if node.Properties["executions"] != float64(2) || node.Properties["action_type"] != "scale_up" {
		t.Errorf("merge went wrong: %+v", node.Properties)
	}

	if err := graph.UpdateNodeProperties("missing", nil); !utils.IsNotFound(err) {
		t.Errorf("expected not-found, got %v", err)
	}
}

func TestFindSimilar(t *testing.T) {
	graph := NewGraph()

	queryID, _ := graph.AddNode(NodeAnomaly, map[string]any{
		"description": "cpu saturation on api tier", "source": "api-gateway",
	})
	closeID, _ := graph.AddNode(NodeAnomaly, map[string]any{
		"description": "cpu saturation spiking on api tier", "source": "api-gateway",
	})
	farID, _ := graph.AddNode(NodeAnomaly, map[string]any{
		"description": "disk filling on database volume", "source": "postgres",
	})
	// Different type: never a candidate even with identical text.
	graph.AddNode(NodeRemediation, map[string]any{
		"description": "cpu saturation on api tier", "source": "api-gateway",
	})

	matches, err := graph.FindSimilar(queryID, 0.3)
	if err != nil {
		t.Fatalf("FindSimilar failed: %v", err)
	}
	if len(matches) != 1 || matches[0].Node.ID != closeID {
		t.Fatalf("expected only the close anomaly, got %+v", matches)
	}
	if matches[0].Similarity < 0.3 {
		t.Errorf("similarity below threshold: %f", matches[0].Similarity)
	}
	for _, m := range matches {
		if m.Node.ID == farID {
			t.Errorf("unrelated anomaly matched: %+v", m)
		}
	}
}

func TestFindSimilarUnknownNode(t *testing.T) {
	graph := NewGraph()

	if _, err := graph.FindSimilar("anomaly_404", 0.5); !utils.IsNotFound(err) {
		t.Fatalf("expected not-found, got %v", err)
	}
}

func TestSnapshotRoundTripLossless(t *testing.T) {
	graph := NewGraph()

	anomalyID, _ := graph.AddNode(NodeAnomaly, map[string]any{"description": "oom loop", "source": "api"})
	remediationID, _ := graph.AddNode(NodeRemediation, map[string]any{"action_type": "restart_service", "success_rate": 0.75})
	if err := graph.AddEdge(anomalyID, remediationID, RelationResolves, 0.9, 0.8); err != nil {
		t.Fatalf("edge: %v", err)
	}

	data, err := json.Marshal(graph.Snapshot())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	restored := NewGraph()
	if err := restored.Restore(snap); err != nil {
		t.Fatalf("restore: %v", err)
	}

	node, ok := restored.GetNode(remediationID)
	if !ok || node.Properties["success_rate"] != 0.75 {
		t.Errorf("properties lost in round trip: %+v", node.Properties)
	}
	edges := restored.OutEdges(anomalyID, RelationResolves)
	if len(edges) != 1 || edges[0].Weight != 0.9 || edges[0].Confidence != 0.8 {
		t.Errorf("edge lost in round trip: %+v", edges)
	}

	// Counters survive, so new ids never collide with restored ones.
	newID, err := restored.AddNode(NodeAnomaly, nil)
	if err != nil {
		t.Fatalf("add after restore: %v", err)
	}
	if newID == anomalyID {
		t.Errorf("id collision after restore: %s", newID)
	}
}

func TestRestoreRejectsDanglingEdges(t *testing.T) {
	graph := NewGraph()

	err := graph.Restore(Snapshot{
		Edges: []Edge{{SourceID: "anomaly_1", TargetID: "remediation_1", Relation: RelationResolves}},
	})
	if !utils.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestNodesOfTypeSorted(t *testing.T) {
	graph := NewGraph()
	for i := 0; i < 12; i++ {
		graph.AddNode(NodeAnomaly, map[string]any{"description": fmt.Sprintf("a%d", i)})
	}

	nodes := graph.NodesOfType(NodeAnomaly)
	if len(nodes) != 12 {
		t.Fatalf("expected 12 nodes, got %d", len(nodes))
	}
	for i := 1; i < len(nodes); i++ {
		if nodes[i-1].ID >= nodes[i].ID {
			t.Fatalf("nodes not sorted: %s before %s", nodes[i-1].ID, nodes[i].ID)
		}
	}
}
