package knowledge

import (
	"testing"

	"github.com/opsforge/remedy-engine/internal/models"
)

func TestCentroidClassifier(t *testing.T) {
	classifier := NewCentroidClassifier()

	if classifier.Trained() {
		t.Error("fresh classifier must not report trained")
	}
	if _, ok := classifier.Predict([]float64{1, 2, 3}); ok {
		t.Error("untrained classifier must not predict")
	}

	classifier.Fit([]TrainingSample{
		{Features: []float64{3, 2, 90}, Label: "scale_up"},
		{Features: []float64{3, 4, 94}, Label: "scale_up"},
		{Features: []float64{1, 2, 20}, Label: "clear_cache"},
		{Features: []float64{0, 3, 15}, Label: "clear_cache"},
	})

	if !classifier.Trained() {
		t.Fatal("classifier should be trained after Fit")
	}

	if label, ok := classifier.Predict([]float64{3, 3, 92}); !ok || label != "scale_up" {
		t.Errorf("expected scale_up, got %q ok=%v", label, ok)
	}
	if label, ok := classifier.Predict([]float64{0, 2, 18}); !ok || label != "clear_cache" {
		t.Errorf("expected clear_cache, got %q ok=%v", label, ok)
	}
}

func TestCentroidClassifierAccuracy(t *testing.T) {
	classifier := NewCentroidClassifier()
	samples := []TrainingSample{
		{Features: []float64{3, 2, 90}, Label: "scale_up"},
		{Features: []float64{1, 2, 20}, Label: "clear_cache"},
	}
	classifier.Fit(samples)

	if acc := classifier.Accuracy(samples); acc != 1.0 {
		t.Errorf("expected perfect training accuracy on separable samples, got %f", acc)
	}
	if acc := classifier.Accuracy(nil); acc != 0 {
		t.Errorf("expected 0 accuracy on empty set, got %f", acc)
	}
}

func TestFitSkipsUnusableSamples(t *testing.T) {
	classifier := NewCentroidClassifier()
	classifier.Fit([]TrainingSample{
		{Features: []float64{1, 2, 3}},
		{Label: "scale_up"},
	})

	if classifier.Trained() {
		t.Error("unlabelled or featureless samples must not produce centroids")
	}
}

func TestFeaturesFromInfo(t *testing.T) {
	info := models.AnomalyInfo{
		Severity: models.SeverityCritical,
		Source:   "api-gateway",
		Metrics:  map[string]float64{"cpu_usage": 90, "error_rate": 10},
	}

	features := FeaturesFromInfo(info)
	if len(features) != 3 {
		t.Fatalf("expected 3 features, got %d", len(features))
	}
	if features[0] != 3 {
		t.Errorf("expected critical rank 3, got %f", features[0])
	}
	if features[1] < 0 || features[1] >= sourceBuckets {
		t.Errorf("source bucket out of range: %f", features[1])
	}
	if features[2] != 50 {
		t.Errorf("expected mean metric 50, got %f", features[2])
	}

	// Same source hashes to the same bucket.
	again := FeaturesFromInfo(info)
	if again[1] != features[1] {
		t.Errorf("source bucket not deterministic: %f vs %f", again[1], features[1])
	}
}
