package knowledge

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sort"
	"time"

	"github.com/opsforge/remedy-engine/internal/cache"
	"github.com/opsforge/remedy-engine/internal/models"
)

// RecommenderOptions are the ranking tunables. CriticalBoost is a heuristic
// multiplier carried as configuration, not calibrated policy.
type RecommenderOptions struct {
	SimilarityThreshold float64
	MinSimilarNodes     int
	CriticalBoost       float64
	MaxRecommendations  int
	CacheTTL            time.Duration
}

func (o *RecommenderOptions) normalize() {
	if o.SimilarityThreshold <= 0 {
		o.SimilarityThreshold = 0.3
	}
	if o.MinSimilarNodes <= 0 {
		o.MinSimilarNodes = 2
	}
	if o.CriticalBoost <= 0 {
		o.CriticalBoost = 1.0
	}
	if o.MaxRecommendations <= 0 {
		o.MaxRecommendations = 5
	}
}

// Recommender ranks candidate remediation actions for an anomaly using graph
// similarity, with an optional supervised fallback when recall is thin.
type Recommender struct {
	graph    *Graph
	fallback *CentroidClassifier
	cache    cache.Provider
	opts     RecommenderOptions
	logger   *slog.Logger
}

// NewRecommender constructs a recommender. fallback and cacheProvider may be
// nil; a nil cache disables lookup caching.
func NewRecommender(graph *Graph, fallback *CentroidClassifier, cacheProvider cache.Provider, opts RecommenderOptions, logger *slog.Logger) *Recommender {
	if cacheProvider == nil {
		cacheProvider = cache.NoopProvider{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	opts.normalize()
	return &Recommender{
		graph:    graph,
		fallback: fallback,
		cache:    cacheProvider,
		opts:     opts,
		logger:   logger,
	}
}

// Recommend returns up to limit candidate actions sorted by descending score.
// The query runs against a transient anomaly node that is removed on every
// exit path, so read-only lookups never grow the persisted graph.
func (r *Recommender) Recommend(ctx context.Context, info models.AnomalyInfo, limit int) ([]models.Recommendation, error) {
	if limit <= 0 {
		limit = r.opts.MaxRecommendations
	}

	cacheKey := ""
	if r.opts.CacheTTL > 0 {
		cacheKey = recommendCacheKey(info, limit)
		if data, err := r.cache.Get(ctx, cacheKey); err == nil {
			var cached []models.Recommendation
			if err := json.Unmarshal(data, &cached); err == nil {
				return cached, nil
			}
		}
	}

	queryID, err := r.graph.AddNode(NodeAnomaly, map[string]any{
		"description": info.Description,
		"source":      info.Source,
		"severity":    string(info.Severity),
		"confidence":  info.Confidence,
		"transient":   true,
	})
	if err != nil {
		return nil, err
	}
	defer r.graph.RemoveNode(queryID)

	similar, err := r.graph.FindSimilar(queryID, r.opts.SimilarityThreshold)
	if err != nil {
		return nil, err
	}

	boost := 1.0
	if info.Severity == models.SeverityCritical {
		boost = r.opts.CriticalBoost
	}

	// Dedupe by action type keeping the highest-scoring candidate.
	best := make(map[string]models.Recommendation)
	for _, match := range similar {
		for _, edge := range r.graph.OutEdges(match.Node.ID, RelationResolves) {
			remediation, ok := r.graph.GetNode(edge.TargetID)
			if !ok || remediation.Type != NodeRemediation {
				continue
			}
			if success, _ := remediation.Properties["success"].(bool); !success {
				continue
			}
			actionType, _ := remediation.Properties["action_type"].(string)
			if actionType == "" {
				continue
			}

			score := match.Similarity * successWeight(remediation, edge) * boost
			candidate := models.Recommendation{
				ActionType:  actionType,
				Description: stringProp(remediation.Properties, "description"),
				Score:       score,
				Confidence:  edge.Confidence,
				Source:      "graph",
			}
			if existing, ok := best[actionType]; !ok || candidate.Score > existing.Score {
				best[actionType] = candidate
			}
		}
	}

	recommendations := make([]models.Recommendation, 0, len(best))
	for _, rec := range best {
		recommendations = append(recommendations, rec)
	}

	// Consult the supervised fallback only when graph recall is thin; it
	// assists ranking and never outscores graph-derived candidates.
	if len(similar) < r.opts.MinSimilarNodes && r.fallback != nil {
		if action, ok := r.fallback.Predict(FeaturesFromInfo(info)); ok {
			if _, dup := best[action]; !dup {
				recommendations = append(recommendations, models.Recommendation{
					ActionType: action,
					Score:      0.25,
					Confidence: 0.3,
					Source:     "fallback",
				})
			}
		}
	}

	sort.SliceStable(recommendations, func(i, j int) bool {
		if recommendations[i].Score != recommendations[j].Score {
			return recommendations[i].Score > recommendations[j].Score
		}
		return recommendations[i].ActionType < recommendations[j].ActionType
	})
	if len(recommendations) > limit {
		recommendations = recommendations[:limit]
	}

	if cacheKey != "" {
		if data, err := json.Marshal(recommendations); err == nil {
			if err := r.cache.Set(ctx, cacheKey, data, r.opts.CacheTTL); err != nil {
				r.logger.Debug("recommendation cache write failed", slog.Any("error", err))
			}
		}
	}

	return recommendations, nil
}

// RecordOutcome feeds an observed execution back into the graph: a new anomaly
// node, an upserted remediation node, and a resolves experience edge between
// them. The node+edge mutation is all-or-nothing from callers' perspective:
// the edge endpoints are guaranteed to exist once this returns nil.
func (r *Recommender) RecordOutcome(info models.AnomalyInfo, actionType string, success bool, executionTime float64) error {
	anomalyID, err := r.graph.AddNode(NodeAnomaly, map[string]any{
		"description": info.Description,
		"source":      info.Source,
		"severity":    string(info.Severity),
		"confidence":  info.Confidence,
	})
	if err != nil {
		return err
	}

	remediationID := r.findRemediationNode(actionType)
	if remediationID == "" {
		remediationID, err = r.graph.AddNode(NodeRemediation, map[string]any{
			"action_type":        actionType,
			"description":        fmt.Sprintf("remediation action %s", actionType),
			"success":            success,
			"success_rate":       boolToRate(success),
			"executions":         float64(1),
			"avg_execution_time": executionTime,
		})
		if err != nil {
			r.graph.RemoveNode(anomalyID)
			return err
		}
	} else {
		r.bumpRemediationStats(remediationID, success, executionTime)
	}

	weight := 1.0
	if !success {
		weight = 0.25
	}
	if err := r.graph.AddEdge(anomalyID, remediationID, RelationResolves, weight, info.Confidence); err != nil {
		r.graph.RemoveNode(anomalyID)
		return err
	}
	return nil
}

func (r *Recommender) findRemediationNode(actionType string) string {
	for _, node := range r.graph.NodesOfType(NodeRemediation) {
		if stringProp(node.Properties, "action_type") == actionType {
			return node.ID
		}
	}
	return ""
}

func (r *Recommender) bumpRemediationStats(id string, success bool, executionTime float64) {
	node, ok := r.graph.GetNode(id)
	if !ok {
		return
	}
	executions := floatProp(node.Properties, "executions", 0) + 1
	rate := floatProp(node.Properties, "success_rate", 0)
	avgTime := floatProp(node.Properties, "avg_execution_time", 0)
	// Running averages over all executions.
	rate += (boolToRate(success) - rate) / executions
	avgTime += (executionTime - avgTime) / executions
	if err := r.graph.UpdateNodeProperties(id, map[string]any{
		"executions":         executions,
		"success_rate":       rate,
		"avg_execution_time": avgTime,
		"success":            success || rate > 0,
	}); err != nil {
		r.logger.Debug("remediation stats update failed", slog.String("node", id), slog.Any("error", err))
	}
}

func successWeight(remediation Node, edge Edge) float64 {
	if rate, ok := remediation.Properties["success_rate"].(float64); ok && rate > 0 {
		return rate * edge.Weight
	}
	return edge.Weight
}

func stringProp(props map[string]any, key string) string {
	v, _ := props[key].(string)
	return v
}

func floatProp(props map[string]any, key string, fallback float64) float64 {
	if v, ok := props[key].(float64); ok {
		return v
	}
	return fallback
}

func boolToRate(success bool) float64 {
	if success {
		return 1
	}
	return 0
}

func recommendCacheKey(info models.AnomalyInfo, limit int) string {
	h := fnv.New64a()
	h.Write([]byte(info.Source))
	h.Write([]byte{0})
	h.Write([]byte(info.Description))
	return fmt.Sprintf("remedy:recs:%s:%x:%d", info.Severity, h.Sum64(), limit)
}
