package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/opsforge/remedy-engine/internal/knowledge"
	"github.com/opsforge/remedy-engine/internal/learning"
	"github.com/opsforge/remedy-engine/internal/metrics"
	"github.com/opsforge/remedy-engine/internal/models"
	"github.com/opsforge/remedy-engine/internal/policy"
	"github.com/opsforge/remedy-engine/internal/utils"
)

// Store defines the persistence operations the orchestrator needs from the
// platform.
type Store interface {
	GetAnomaly(ctx context.Context, id string) (models.AnomalyEvent, error)
	LatestSystemState(ctx context.Context) (models.SystemState, error)
	UpdateAnomalyStatus(ctx context.Context, id string, status models.AnomalyStatus) error
	SaveRemediationRecord(ctx context.Context, record models.RemediationRecord) error
	ListOpenAnomalies(ctx context.Context, limit int) ([]models.AnomalyEvent, error)
}

// Executor is the external remediation executor: opaque, possibly slow,
// possibly failing.
type Executor interface {
	Execute(ctx context.Context, actionType string, parameters map[string]any) (models.ExecutionResult, error)
}

// AuditSink receives one flat event record per decision.
type AuditSink interface {
	Emit(event models.AuditEvent) error
}

// FeedbackQueue collects decisions whose recommendation scores leave no clear
// winner, so a human can label them and feed retraining later.
type FeedbackQueue interface {
	ShouldRequestFeedback(probabilities []float64) bool
	AddUncertainSample(id string, features, probabilities []float64, timestamp time.Time) error
}

// Options tunes orchestration behaviour.
type Options struct {
	// ExecutionTimeout bounds the external executor call; on expiry the
	// action is marked failed through the normal failure path.
	ExecutionTimeout time.Duration
	// TopN is the number of recommendations fetched per decision.
	TopN int
	// Adaptive routing thresholds.
	FullAutoConfidence float64
	FullAutoMaxLoad    float64
	SemiAutoConfidence float64
	// ExplorationRate is passed to the agent when breaking score ties
	// between recommendations. Zero means always exploit.
	ExplorationRate float64
}

func (o *Options) normalize() {
	if o.ExecutionTimeout <= 0 {
		o.ExecutionTimeout = 30 * time.Second
	}
	if o.TopN <= 0 {
		o.TopN = 5
	}
	if o.FullAutoConfidence <= 0 {
		o.FullAutoConfidence = 0.8
	}
	if o.FullAutoMaxLoad <= 0 {
		o.FullAutoMaxLoad = 80
	}
	if o.SemiAutoConfidence <= 0 {
		o.SemiAutoConfidence = 0.6
	}
}

// Orchestrator composes policy evaluation, recommendations, execution, and
// learning into the per-anomaly remediation pipeline. Anomalies may be
// processed concurrently; each call runs its own pipeline strictly
// sequentially, and shared state (graph, Q-table, counters) is only mutated
// behind the components' writer locks.
type Orchestrator struct {
	logger      *slog.Logger
	policy      *policy.Engine
	recommender *knowledge.Recommender
	agent       *learning.Agent
	discretizer *learning.Discretizer
	feedback    FeedbackQueue
	store       Store
	executor    Executor
	audit       AuditSink
	opts        Options

	mu    sync.Mutex
	stats models.Stats
}

// NewOrchestrator constructs the pipeline. feedback and audit may be nil.
func NewOrchestrator(
	logger *slog.Logger,
	policyEngine *policy.Engine,
	recommender *knowledge.Recommender,
	agent *learning.Agent,
	discretizer *learning.Discretizer,
	feedback FeedbackQueue,
	store Store,
	executor Executor,
	audit AuditSink,
	opts Options,
) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if discretizer == nil {
		discretizer = learning.NewDiscretizer(nil)
	}
	opts.normalize()
	return &Orchestrator{
		logger:      logger,
		policy:      policyEngine,
		recommender: recommender,
		agent:       agent,
		discretizer: discretizer,
		feedback:    feedback,
		store:       store,
		executor:    executor,
		audit:       audit,
		opts:        opts,
	}
}

// Process runs the full decision pipeline for one anomaly. It never returns
// an error: every failure mode is converted into a structured result at this
// boundary, and a failure local to one anomaly cannot corrupt shared state.
func (o *Orchestrator) Process(ctx context.Context, anomalyID string) (result models.DecisionResult) {
	result = models.DecisionResult{AnomalyID: anomalyID, Status: models.DecisionError}
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("panic while processing anomaly",
				slog.String("anomaly_id", anomalyID), slog.Any("panic", r))
			result = models.DecisionResult{
				AnomalyID: anomalyID,
				Status:    models.DecisionError,
				Message:   fmt.Sprintf("internal error: %v", r),
			}
		}
	}()

	// Cancellation is honoured only before the pipeline starts.
	if err := ctx.Err(); err != nil {
		result.Message = err.Error()
		return result
	}

	if o.store == nil {
		result.Message = "store not configured"
		return result
	}

	anomaly, err := o.store.GetAnomaly(ctx, anomalyID)
	if err != nil {
		if utils.IsNotFound(err) {
			result.Status = models.DecisionNotFound
			result.Message = fmt.Sprintf("anomaly %s not found", anomalyID)
			return result
		}
		result.Message = fmt.Sprintf("load anomaly: %v", err)
		return result
	}

	state, err := o.store.LatestSystemState(ctx)
	if err != nil {
		result.Message = fmt.Sprintf("load system state: %v", err)
		return result
	}

	info := anomaly.Info()

	level, rule := o.policy.Select(info, state)
	if rule != nil {
		result.MatchedRuleID = rule.ID
	}
	result.Level = level

	var recommendations []models.Recommendation
	if o.recommender != nil {
		recommendations, err = o.recommender.Recommend(ctx, info, o.opts.TopN)
		if err != nil {
			o.logger.Warn("recommendation lookup failed",
				slog.String("anomaly_id", anomalyID), slog.Any("error", err))
		}
	}
	result.Recommendations = recommendations
	o.maybeQueueFeedback(anomaly.ID, info, recommendations)

	effective := level
	if level == models.Adaptive {
		effective = o.routeAdaptive(info, state)
		o.logger.Debug("adaptive routing",
			slog.String("anomaly_id", anomalyID),
			slog.String("resolved_level", effective.String()))
	}

	switch effective {
	case models.Manual:
		return o.handleManual(anomaly, result)
	case models.SemiAuto:
		return o.handleSemiAuto(ctx, anomaly, recommendations, result)
	case models.FullAuto:
		return o.handleFullAuto(ctx, anomaly, info, state, recommendations, result)
	case models.Adaptive:
		// routeAdaptive only resolves to concrete levels.
		result.Message = "adaptive level did not resolve"
		return result
	default:
		result.Message = fmt.Sprintf("unhandled automation level %s", effective)
		return result
	}
}

// routeAdaptive picks a concrete level from confidence and system load.
func (o *Orchestrator) routeAdaptive(info models.AnomalyInfo, state models.SystemState) models.AutomationLevel {
	if info.Confidence > o.opts.FullAutoConfidence && state.Load() < o.opts.FullAutoMaxLoad {
		return models.FullAuto
	}
	if info.Confidence > o.opts.SemiAutoConfidence {
		return models.SemiAuto
	}
	return models.Manual
}

func (o *Orchestrator) handleManual(anomaly models.AnomalyEvent, result models.DecisionResult) models.DecisionResult {
	o.mu.Lock()
	o.stats.ManualInterventions++
	o.mu.Unlock()

	metrics.ObserveDecision(models.Manual.String())
	o.emitAudit(anomaly.ID, models.Manual, "", false)

	result.Status = models.DecisionEscalated
	return result
}

func (o *Orchestrator) handleSemiAuto(ctx context.Context, anomaly models.AnomalyEvent, recommendations []models.Recommendation, result models.DecisionResult) models.DecisionResult {
	if len(recommendations) == 0 {
		result.Status = models.DecisionEscalated
		result.Message = "no recommendations available, escalating"
		o.mu.Lock()
		o.stats.ManualInterventions++
		o.mu.Unlock()
		metrics.ObserveDecision(models.Manual.String())
		o.emitAudit(anomaly.ID, models.Manual, "", false)
		return result
	}

	top := recommendations[0]
	now := time.Now().UTC()
	record := models.RemediationRecord{
		ID:            uuid.NewString(),
		AnomalyID:     anomaly.ID,
		ActionType:    top.ActionType,
		Status:        models.RemediationPending,
		NeedsApproval: true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := o.store.SaveRemediationRecord(ctx, record); err != nil {
		result.Message = fmt.Sprintf("save remediation record: %v", err)
		return result
	}

	// Semi-auto counts toward automation totals regardless of what the
	// human later does with the pending record.
	o.mu.Lock()
	o.stats.TotalAutomations++
	o.stats.LastAutomation = now
	o.mu.Unlock()

	metrics.ObserveDecision(models.SemiAuto.String())
	o.emitAudit(anomaly.ID, models.SemiAuto, top.ActionType, false)

	result.Status = models.DecisionPendingHuman
	result.Record = &record
	return result
}

func (o *Orchestrator) handleFullAuto(ctx context.Context, anomaly models.AnomalyEvent, info models.AnomalyInfo, state models.SystemState, recommendations []models.Recommendation, result models.DecisionResult) models.DecisionResult {
	if len(recommendations) == 0 {
		result.Status = models.DecisionEscalated
		result.Message = "no recommendations available, escalating"
		o.mu.Lock()
		o.stats.ManualInterventions++
		o.mu.Unlock()
		metrics.ObserveDecision(models.Manual.String())
		o.emitAudit(anomaly.ID, models.Manual, "", false)
		return result
	}
	if o.executor == nil {
		result.Message = "executor not configured"
		return result
	}

	top := o.pickRecommendation(info, state, recommendations)
	now := time.Now().UTC()
	record := models.RemediationRecord{
		ID:         uuid.NewString(),
		AnomalyID:  anomaly.ID,
		ActionType: top.ActionType,
		Status:     models.RemediationPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := o.store.SaveRemediationRecord(ctx, record); err != nil {
		result.Message = fmt.Sprintf("save remediation record: %v", err)
		return result
	}

	execCtx, cancel := context.WithTimeout(ctx, o.opts.ExecutionTimeout)
	defer cancel()

	started := time.Now()
	execution, execErr := o.executor.Execute(execCtx, top.ActionType, record.Parameters)
	elapsed := time.Since(started)

	success := execErr == nil && execution.Success
	executionTime := execution.ExecutionTime
	if executionTime <= 0 {
		executionTime = elapsed.Seconds()
	}
	message := execution.Message
	if execErr != nil {
		message = execErr.Error()
	}

	// The record is never left pending: failures and timeouts update it the
	// same way successes do.
	record.Success = success
	record.ExecutionTime = executionTime
	record.UpdatedAt = time.Now().UTC()
	if success {
		record.Status = models.RemediationExecuted
	} else {
		record.Status = models.RemediationFailed
	}
	if err := o.store.SaveRemediationRecord(ctx, record); err != nil {
		o.logger.Warn("remediation record update failed",
			slog.String("record_id", record.ID), slog.Any("error", err))
	}

	anomalyStatus := models.AnomalyResolved
	if !success {
		anomalyStatus = models.AnomalyEscalated
	}
	if err := o.store.UpdateAnomalyStatus(ctx, anomaly.ID, anomalyStatus); err != nil {
		o.logger.Warn("anomaly status update failed",
			slog.String("anomaly_id", anomaly.ID), slog.Any("error", err))
	}

	o.recordLearning(ctx, info, state, top.ActionType, success, executionTime)

	outcome := metrics.OutcomeSuccess
	if !success {
		outcome = metrics.OutcomeFailure
	}
	metrics.ObserveDecision(models.FullAuto.String())
	metrics.ObserveRemediation(elapsed, outcome)

	o.mu.Lock()
	o.stats.TotalAutomations++
	if success {
		o.stats.SuccessfulAutomations++
	} else {
		o.stats.FailedAutomations++
	}
	o.stats.LastAutomation = time.Now().UTC()
	o.mu.Unlock()

	o.emitAudit(anomaly.ID, models.FullAuto, top.ActionType, success)

	result.Record = &record
	result.Message = message
	if success {
		result.Status = models.DecisionExecuted
	} else {
		result.Status = models.DecisionFailed
	}
	return result
}

// pickRecommendation returns the top recommendation. When several tie on
// score, the Q-table breaks the tie epsilon-greedily so learned outcomes
// steer between otherwise indistinguishable actions.
func (o *Orchestrator) pickRecommendation(info models.AnomalyInfo, state models.SystemState, recommendations []models.Recommendation) models.Recommendation {
	tied := 1
	for tied < len(recommendations) && recommendations[tied].Score == recommendations[0].Score {
		tied++
	}
	if tied == 1 || o.agent == nil {
		return recommendations[0]
	}

	actions := make([]string, tied)
	for i := 0; i < tied; i++ {
		actions[i] = recommendations[i].ActionType
	}
	chosen := o.agent.SelectAction(o.discretizer.StateKey(state, info.Severity), actions, o.opts.ExplorationRate)
	for i := 0; i < tied; i++ {
		if recommendations[i].ActionType == chosen {
			return recommendations[i]
		}
	}
	return recommendations[0]
}

// maybeQueueFeedback normalizes the recommendation scores into a probability
// vector and queues the decision for human labelling when entropy says no
// clear winner emerged.
func (o *Orchestrator) maybeQueueFeedback(anomalyID string, info models.AnomalyInfo, recommendations []models.Recommendation) {
	if o.feedback == nil || len(recommendations) == 0 {
		return
	}
	probabilities := recommendationProbabilities(recommendations)
	if !o.feedback.ShouldRequestFeedback(probabilities) {
		return
	}
	err := o.feedback.AddUncertainSample(anomalyID, knowledge.FeaturesFromInfo(info), probabilities, time.Now().UTC())
	if err != nil {
		o.logger.Warn("feedback queue add failed",
			slog.String("anomaly_id", anomalyID), slog.Any("error", err))
	}
}

func recommendationProbabilities(recommendations []models.Recommendation) []float64 {
	total := 0.0
	for _, rec := range recommendations {
		total += rec.Score
	}
	probabilities := make([]float64, len(recommendations))
	if total <= 0 {
		for i := range probabilities {
			probabilities[i] = 1.0 / float64(len(probabilities))
		}
		return probabilities
	}
	for i, rec := range recommendations {
		probabilities[i] = rec.Score / total
	}
	return probabilities
}

// recordLearning feeds one observed outcome into the knowledge graph and the
// Q-table. Failures here are logged, never fatal: learning components see
// failed executions as data too.
func (o *Orchestrator) recordLearning(ctx context.Context, info models.AnomalyInfo, state models.SystemState, actionType string, success bool, executionTime float64) {
	if o.recommender != nil {
		if err := o.recommender.RecordOutcome(info, actionType, success, executionTime); err != nil {
			o.logger.Warn("knowledge graph outcome update failed", slog.Any("error", err))
		}
	}

	if o.agent == nil {
		return
	}

	next := state
	if ns, err := o.store.LatestSystemState(ctx); err == nil {
		next = ns
	}

	stateKey := o.discretizer.StateKey(state, info.Severity)
	nextKey := o.discretizer.StateKey(next, info.Severity)
	reward := o.agent.CalculateReward(models.ActionOutcome{
		Success:           success,
		SystemImprovement: (state.Load() - next.Load()) / 100,
		ActionCost:        executionTime,
	})
	o.agent.UpdateQ(stateKey, actionType, reward, nextKey)
}

func (o *Orchestrator) emitAudit(anomalyID string, level models.AutomationLevel, actionType string, success bool) {
	if o.audit == nil {
		return
	}
	event := models.AuditEvent{
		AnomalyID:  anomalyID,
		Level:      level,
		ActionType: actionType,
		Success:    success,
		Timestamp:  time.Now().UTC(),
	}
	if err := o.audit.Emit(event); err != nil {
		o.logger.Warn("audit emit failed", slog.String("anomaly_id", anomalyID), slog.Any("error", err))
	}
}

// Stats returns a copy of the running automation counters.
func (o *Orchestrator) Stats() models.Stats {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.stats
}
