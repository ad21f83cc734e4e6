package services

import (
	"context"
	"log/slog"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/opsforge/remedy-engine/internal/engine"
	"github.com/opsforge/remedy-engine/internal/knowledge"
	"github.com/opsforge/remedy-engine/internal/learning"
	"github.com/opsforge/remedy-engine/internal/metrics"
	"github.com/opsforge/remedy-engine/internal/models"
	"github.com/opsforge/remedy-engine/internal/utils"
)

// SnapshotStore persists knowledge and Q-table snapshots across restarts.
type SnapshotStore interface {
	SaveKnowledge(knowledge.Snapshot) error
	LoadKnowledge() (knowledge.Snapshot, bool, error)
	SaveQTable(learning.QSnapshot) error
	LoadQTable() (learning.QSnapshot, bool, error)
}

// OpsService is the library boundary callers use to drive the engine. It
// validates arguments, maps failures to gRPC status codes, and tracks call
// latency.
type OpsService struct {
	logger       *slog.Logger
	orchestrator *engine.Orchestrator
	queue        *learning.ActiveQueue
	graph        *knowledge.Graph
	agent        *learning.Agent
	miner        *knowledge.Miner
	snapshots    SnapshotStore
	latencies    *utils.LatencyTracker
}

// NewOpsService constructs the service facade. queue, miner, and snapshots
// may be nil when the corresponding features are disabled.
func NewOpsService(
	logger *slog.Logger,
	orchestrator *engine.Orchestrator,
	queue *learning.ActiveQueue,
	graph *knowledge.Graph,
	agent *learning.Agent,
	miner *knowledge.Miner,
	snapshots SnapshotStore,
) *OpsService {
	if logger == nil {
		logger = slog.Default()
	}
	return &OpsService{
		logger:       logger,
		orchestrator: orchestrator,
		queue:        queue,
		graph:        graph,
		agent:        agent,
		miner:        miner,
		snapshots:    snapshots,
		latencies:    utils.NewLatencyTracker(1024),
	}
}

// ProcessAnomaly runs the decision pipeline for one anomaly. Missing anomalies
// map to NotFound; internal pipeline failures map to Internal.
func (s *OpsService) ProcessAnomaly(ctx context.Context, anomalyID string) (models.DecisionResult, error) {
	if anomalyID == "" {
		return models.DecisionResult{}, status.Error(codes.InvalidArgument, "anomaly id is required")
	}
	if s.orchestrator == nil {
		return models.DecisionResult{}, status.Error(codes.FailedPrecondition, "orchestrator not configured")
	}

	start := time.Now()
	result := s.orchestrator.Process(ctx, anomalyID)
	duration := time.Since(start)

	switch result.Status {
	case models.DecisionNotFound:
		return result, status.Error(codes.NotFound, result.Message)
	case models.DecisionError:
		s.logger.Error("decision pipeline failed",
			slog.String("anomaly_id", anomalyID), slog.String("message", result.Message))
		return result, status.Error(codes.Internal, result.Message)
	}

	s.latencies.Observe(duration)
	if count := s.latencies.Count(); count >= 20 && count%20 == 0 {
		s.logger.Info("decision latency",
			slog.Duration("p95", s.latencies.Percentile(95)), slog.Int("samples", count))
	}
	return result, nil
}

// Stats returns the running automation counters.
func (s *OpsService) Stats(context.Context) (models.Stats, error) {
	if s.orchestrator == nil {
		return models.Stats{}, status.Error(codes.FailedPrecondition, "orchestrator not configured")
	}
	return s.orchestrator.Stats(), nil
}

// SubmitFeedback attaches a human label to a queued uncertain sample.
func (s *OpsService) SubmitFeedback(_ context.Context, sampleID, label string, confidence float64, comment string) error {
	if sampleID == "" || label == "" {
		return status.Error(codes.InvalidArgument, "sample id and label are required")
	}
	if s.queue == nil {
		return status.Error(codes.FailedPrecondition, "active learning queue not configured")
	}

	if err := s.queue.RecordUserFeedback(sampleID, label, confidence, comment); err != nil {
		if utils.IsNotFound(err) {
			return status.Error(codes.NotFound, err.Error())
		}
		return status.Error(codes.Internal, err.Error())
	}
	return nil
}

// PendingSamples lists unresolved uncertain samples, most uncertain first.
func (s *OpsService) PendingSamples(_ context.Context, limit int) ([]learning.UncertainSample, error) {
	if s.queue == nil {
		return nil, status.Error(codes.FailedPrecondition, "active learning queue not configured")
	}
	return s.queue.LearningSamples(limit), nil
}

// Retrain refits the fallback classifier from accumulated labels. Too few
// labels is a soft insufficient_data result, not an error.
func (s *OpsService) Retrain(context.Context) (learning.RetrainResult, error) {
	if s.queue == nil {
		return learning.RetrainResult{}, status.Error(codes.FailedPrecondition, "active learning queue not configured")
	}

	result := s.queue.RetrainWithFeedback()
	s.logger.Info("classifier retrain",
		slog.String("status", result.Status),
		slog.Int("samples", result.SamplesUsed),
		slog.Float64("accuracy", result.Accuracy))
	return result, nil
}

// MinePatterns aggregates the remediation experience accumulated in the graph
// into metric_pattern nodes and returns the ids touched.
func (s *OpsService) MinePatterns(context.Context) ([]string, error) {
	if s.miner == nil {
		return nil, status.Error(codes.FailedPrecondition, "pattern miner not configured")
	}

	patterns, err := s.miner.Mine()
	if err != nil {
		return patterns, status.Error(codes.Internal, err.Error())
	}
	if len(patterns) > 0 {
		s.logger.Info("patterns mined", slog.Int("patterns", len(patterns)))
	}
	return patterns, nil
}

// SaveState persists the knowledge graph and Q-table snapshots.
func (s *OpsService) SaveState(context.Context) error {
	if s.snapshots == nil {
		return status.Error(codes.FailedPrecondition, "snapshot store not configured")
	}

	if s.graph != nil {
		if err := s.snapshots.SaveKnowledge(s.graph.Snapshot()); err != nil {
			return status.Error(codes.Internal, err.Error())
		}
	}
	if s.agent != nil {
		if err := s.snapshots.SaveQTable(s.agent.Snapshot()); err != nil {
			return status.Error(codes.Internal, err.Error())
		}
	}
	return nil
}

// LoadState restores the knowledge graph and Q-table from snapshots. Missing
// snapshot files leave the current state untouched.
func (s *OpsService) LoadState(context.Context) error {
	if s.snapshots == nil {
		return status.Error(codes.FailedPrecondition, "snapshot store not configured")
	}

	if s.graph != nil {
		snap, ok, err := s.snapshots.LoadKnowledge()
		if err != nil {
			return status.Error(codes.Internal, err.Error())
		}
		if ok {
			if err := s.graph.Restore(snap); err != nil {
				return status.Error(codes.InvalidArgument, err.Error())
			}
			metrics.SetKnowledgeNodes(s.graph.NodeCount())
		}
	}
	if s.agent != nil {
		snap, ok, err := s.snapshots.LoadQTable()
		if err != nil {
			return status.Error(codes.Internal, err.Error())
		}
		if ok {
			s.agent.Restore(snap)
		}
	}
	return nil
}

// LatencyP95 returns the current p95 decision latency.
func (s *OpsService) LatencyP95() time.Duration {
	if s.latencies == nil {
		return 0
	}
	return s.latencies.Percentile(95)
}
