package knowledge

import (
	"hash/fnv"
	"math"
	"sync"

	"github.com/opsforge/remedy-engine/internal/models"
)

const sourceBuckets = 16

// FeaturesFromInfo projects an anomaly into the fallback feature space:
// severity rank, a hashed source bucket, and the mean metric value.
func FeaturesFromInfo(info models.AnomalyInfo) []float64 {
	h := fnv.New32a()
	h.Write([]byte(info.Source))

	mean := 0.0
	if len(info.Metrics) > 0 {
		for _, v := range info.Metrics {
			mean += v
		}
		mean /= float64(len(info.Metrics))
	}

	return []float64{
		float64(info.Severity.Rank()),
		float64(h.Sum32() % sourceBuckets),
		mean,
	}
}

// TrainingSample pairs a feature vector with its labelled best action.
type TrainingSample struct {
	Features []float64
	Label    string
}

// CentroidClassifier is a nearest-centroid predictor mapping anomaly features
// to the best historical action. It backs both the recommendation fallback and
// active-learning retraining.
type CentroidClassifier struct {
	mu        sync.RWMutex
	centroids map[string][]float64
}

// NewCentroidClassifier constructs an untrained classifier.
func NewCentroidClassifier() *CentroidClassifier {
	return &CentroidClassifier{}
}

// Trained reports whether Fit has produced at least one centroid.
func (c *CentroidClassifier) Trained() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.centroids) > 0
}

// Fit replaces the model with centroids computed from the samples.
func (c *CentroidClassifier) Fit(samples []TrainingSample) {
	sums := make(map[string][]float64)
	counts := make(map[string]int)
	for _, sample := range samples {
		if sample.Label == "" || len(sample.Features) == 0 {
			continue
		}
		sum, ok := sums[sample.Label]
		if !ok {
			sum = make([]float64, len(sample.Features))
			sums[sample.Label] = sum
		}
		for i, v := range sample.Features {
			if i < len(sum) {
				sum[i] += v
			}
		}
		counts[sample.Label]++
	}

	centroids := make(map[string][]float64, len(sums))
	for label, sum := range sums {
		centroid := make([]float64, len(sum))
		for i, v := range sum {
			centroid[i] = v / float64(counts[label])
		}
		centroids[label] = centroid
	}

	c.mu.Lock()
	c.centroids = centroids
	c.mu.Unlock()
}

// Predict returns the label of the nearest centroid; ok is false when the
// classifier is untrained.
func (c *CentroidClassifier) Predict(features []float64) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	bestLabel := ""
	bestDist := math.Inf(1)
	for label, centroid := range c.centroids {
		dist := euclidean(features, centroid)
		if dist < bestDist || (dist == bestDist && label < bestLabel) {
			bestDist = dist
			bestLabel = label
		}
	}
	if bestLabel == "" {
		return "", false
	}
	return bestLabel, true
}

// Accuracy reports the fraction of samples the current model labels correctly.
func (c *CentroidClassifier) Accuracy(samples []TrainingSample) float64 {
	if len(samples) == 0 {
		return 0
	}
	correct := 0
	for _, sample := range samples {
		if label, ok := c.Predict(sample.Features); ok && label == sample.Label {
			correct++
		}
	}
	return float64(correct) / float64(len(samples))
}

func euclidean(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	sum := 0.0
	for i := 0; i < n; i++ {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}
