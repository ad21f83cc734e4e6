package learning

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/opsforge/remedy-engine/internal/knowledge"
	"github.com/opsforge/remedy-engine/internal/utils"
)

// UncertainSample is a low-confidence prediction pending human labelling.
type UncertainSample struct {
	ID            string    `json:"id"`
	Features      []float64 `json:"features"`
	Probabilities []float64 `json:"probabilities"`
	Uncertainty   float64   `json:"uncertainty"`
	Timestamp     time.Time `json:"timestamp"`

	FeedbackReceived bool          `json:"feedback_received"`
	Feedback         *UserFeedback `json:"feedback,omitempty"`
}

// UserFeedback is a human resolution of an uncertain sample.
type UserFeedback struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	Comment    string  `json:"comment,omitempty"`
}

// RetrainResult reports one retraining pass. Status insufficient_data is a
// soft outcome, not an error.
type RetrainResult struct {
	Status      string  `json:"status"`
	Accuracy    float64 `json:"accuracy"`
	SamplesUsed int     `json:"samples_used"`
}

const (
	RetrainTrained          = "trained"
	RetrainInsufficientData = "insufficient_data"
)

// ActiveQueue tracks uncertain predictions and periodically retrains the
// shared fallback classifier from accumulated human labels.
type ActiveQueue struct {
	mu      sync.Mutex
	samples map[string]*UncertainSample

	classifier           *knowledge.CentroidClassifier
	uncertaintyThreshold float64
	minRetrainSamples    int
}

// NewActiveQueue constructs a queue feeding the given classifier.
func NewActiveQueue(classifier *knowledge.CentroidClassifier, uncertaintyThreshold float64, minRetrainSamples int) *ActiveQueue {
	if uncertaintyThreshold <= 0 {
		uncertaintyThreshold = 0.8
	}
	if minRetrainSamples <= 0 {
		minRetrainSamples = 5
	}
	return &ActiveQueue{
		samples:              make(map[string]*UncertainSample),
		classifier:           classifier,
		uncertaintyThreshold: uncertaintyThreshold,
		minRetrainSamples:    minRetrainSamples,
	}
}

// Entropy computes the Shannon entropy (nats) of a probability vector.
// Zero-probability entries contribute nothing.
func Entropy(probabilities []float64) float64 {
	entropy := 0.0
	for _, p := range probabilities {
		if p > 0 {
			entropy -= p * math.Log(p)
		}
	}
	return entropy
}

// ShouldRequestFeedback reports whether the prediction is uncertain enough to
// queue for human labelling.
func (q *ActiveQueue) ShouldRequestFeedback(probabilities []float64) bool {
	return Entropy(probabilities) > q.uncertaintyThreshold
}

// AddUncertainSample stores a sample with its computed uncertainty.
func (q *ActiveQueue) AddUncertainSample(id string, features, probabilities []float64, timestamp time.Time) error {
	if id == "" {
		return utils.ValidationError("learning.AddUncertainSample", "sample id is required", nil)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	q.samples[id] = &UncertainSample{
		ID:            id,
		Features:      append([]float64(nil), features...),
		Probabilities: append([]float64(nil), probabilities...),
		Uncertainty:   Entropy(probabilities),
		Timestamp:     timestamp,
	}
	return nil
}

// RecordUserFeedback attaches a label to a pending sample.
func (q *ActiveQueue) RecordUserFeedback(id, label string, confidence float64, comment string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	sample, ok := q.samples[id]
	if !ok {
		return utils.NotFoundError("learning.RecordUserFeedback", fmt.Sprintf("sample %s not found", id))
	}
	sample.Feedback = &UserFeedback{Label: label, Confidence: confidence, Comment: comment}
	sample.FeedbackReceived = true
	return nil
}

// LearningSamples returns up to limit unresolved samples ordered by
// descending uncertainty.
func (q *ActiveQueue) LearningSamples(limit int) []UncertainSample {
	q.mu.Lock()
	defer q.mu.Unlock()

	pending := make([]UncertainSample, 0, len(q.samples))
	for _, sample := range q.samples {
		if !sample.FeedbackReceived {
			pending = append(pending, *sample)
		}
	}
	sort.SliceStable(pending, func(i, j int) bool {
		if pending[i].Uncertainty != pending[j].Uncertainty {
			return pending[i].Uncertainty > pending[j].Uncertainty
		}
		return pending[i].ID < pending[j].ID
	})
	if limit > 0 && len(pending) > limit {
		pending = pending[:limit]
	}
	return pending
}

// RetrainWithFeedback fits a fresh classifier on the accumulated labelled
// samples and removes the consumed ones from the pending set. With fewer than
// the minimum labelled samples it reports insufficient data without error.
func (q *ActiveQueue) RetrainWithFeedback() RetrainResult {
	q.mu.Lock()
	defer q.mu.Unlock()

	training := make([]knowledge.TrainingSample, 0)
	consumed := make([]string, 0)
	for id, sample := range q.samples {
		if sample.FeedbackReceived && sample.Feedback != nil {
			training = append(training, knowledge.TrainingSample{
				Features: sample.Features,
				Label:    sample.Feedback.Label,
			})
			consumed = append(consumed, id)
		}
	}

	if len(training) < q.minRetrainSamples {
		return RetrainResult{Status: RetrainInsufficientData, SamplesUsed: len(training)}
	}

	q.classifier.Fit(training)
	accuracy := q.classifier.Accuracy(training)

	for _, id := range consumed {
		delete(q.samples, id)
	}

	return RetrainResult{
		Status:      RetrainTrained,
		Accuracy:    accuracy,
		SamplesUsed: len(training),
	}
}

// PendingCount returns the number of unresolved samples.
func (q *ActiveQueue) PendingCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	count := 0
	for _, sample := range q.samples {
		if !sample.FeedbackReceived {
			count++
		}
	}
	return count
}
