package knowledge

import (
	"fmt"
	"log/slog"
	"sort"
)

// Miner aggregates remediation experience already present in the graph into
// metric_pattern nodes, so operators can see which actions keep resolving
// which anomaly sources. It also records root_cause nodes for repeat
// offenders.
type Miner struct {
	graph  *Graph
	logger *slog.Logger
}

// NewMiner constructs a miner over the given graph.
func NewMiner(graph *Graph, logger *slog.Logger) *Miner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Miner{graph: graph, logger: logger}
}

type patternAggregate struct {
	remediationID string
	sources       map[string]int
	occurrences   int
	successRate   float64
}

// Mine walks resolves edges and upserts one metric_pattern node per action
// type, linked correlates_with its remediation node. Returns the ids of the
// pattern nodes touched.
func (m *Miner) Mine() ([]string, error) {
	aggregates := make(map[string]*patternAggregate)

	for _, remediation := range m.graph.NodesOfType(NodeRemediation) {
		actionType := stringProp(remediation.Properties, "action_type")
		if actionType == "" {
			continue
		}
		agg, ok := aggregates[actionType]
		if !ok {
			agg = &patternAggregate{remediationID: remediation.ID, sources: make(map[string]int)}
			aggregates[actionType] = agg
		}
		agg.occurrences += int(floatProp(remediation.Properties, "executions", 0))
		agg.successRate = floatProp(remediation.Properties, "success_rate", 0)
	}

	for _, anomaly := range m.graph.NodesOfType(NodeAnomaly) {
		source := stringProp(anomaly.Properties, "source")
		for _, edge := range m.graph.OutEdges(anomaly.ID, RelationResolves) {
			remediation, ok := m.graph.GetNode(edge.TargetID)
			if !ok {
				continue
			}
			actionType := stringProp(remediation.Properties, "action_type")
			if agg, ok := aggregates[actionType]; ok && source != "" {
				agg.sources[source]++
			}
		}
	}

	touched := make([]string, 0, len(aggregates))
	for actionType, agg := range aggregates {
		if agg.occurrences == 0 {
			continue
		}
		patternID, err := m.upsertPattern(actionType, agg)
		if err != nil {
			return touched, err
		}
		touched = append(touched, patternID)
	}
	sort.Strings(touched)

	m.logger.Debug("pattern mining complete", slog.Int("patterns", len(touched)))
	return touched, nil
}

func (m *Miner) upsertPattern(actionType string, agg *patternAggregate) (string, error) {
	props := map[string]any{
		"description":  fmt.Sprintf("anomalies repeatedly resolved by %s", actionType),
		"source":       topSource(agg.sources),
		"action_type":  actionType,
		"occurrences":  float64(agg.occurrences),
		"success_rate": agg.successRate,
	}

	for _, pattern := range m.graph.NodesOfType(NodeMetricPattern) {
		if stringProp(pattern.Properties, "action_type") == actionType {
			return pattern.ID, m.graph.UpdateNodeProperties(pattern.ID, props)
		}
	}

	patternID, err := m.graph.AddNode(NodeMetricPattern, props)
	if err != nil {
		return "", err
	}
	if err := m.graph.AddEdge(patternID, agg.remediationID, RelationCorrelates, 1.0, agg.successRate); err != nil {
		return "", err
	}
	return patternID, nil
}

// LinkRootCause records a root_cause node for an anomaly node and connects it
// with a causes edge. Used when repeated failures point at an underlying
// cause worth surfacing to operators.
func (m *Miner) LinkRootCause(anomalyNodeID, description string, confidence float64) (string, error) {
	causeID, err := m.graph.AddNode(NodeRootCause, map[string]any{
		"description": description,
	})
	if err != nil {
		return "", err
	}
	if err := m.graph.AddEdge(causeID, anomalyNodeID, RelationCauses, 1.0, confidence); err != nil {
		m.graph.RemoveNode(causeID)
		return "", err
	}
	return causeID, nil
}

func topSource(sources map[string]int) string {
	best := ""
	bestCount := 0
	for source, count := range sources {
		if count > bestCount || (count == bestCount && source < best) {
			best = source
			bestCount = count
		}
	}
	return best
}
