package repo

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/opsforge/remedy-engine/internal/models"
	"github.com/opsforge/remedy-engine/internal/utils"
)

// stubTransport scripts HTTP exchanges without a listener: the function is
// the whole transport.
type stubTransport func(*http.Request) (*http.Response, error)

func (fn stubTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	return fn(req)
}

func stubClient(fn func(*http.Request) (*http.Response, error)) *http.Client {
	return &http.Client{Transport: stubTransport(fn)}
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     http.Header{"Content-Type": []string{"application/json"}},
	}
}

func TestGetAnomaly(t *testing.T) {
	store := NewPlatformStore("http://platform.local", "/api/v1/anomalies", "/api/v1/system/state", "/api/v1/remediations", 5*time.Second)
	store.httpClient = stubClient(func(req *http.Request) (*http.Response, error) {
		if req.Method != http.MethodGet {
			t.Errorf("expected GET, got %s", req.Method)
		}
		if req.URL.Path != "/api/v1/anomalies/anom-1" {
			t.Errorf("unexpected path %s", req.URL.Path)
		}
		return jsonResponse(http.StatusOK, `{
			"id": "anom-1",
			"severity": "critical",
			"source": "api-gateway",
			"description": "cpu saturation",
			"confidence": 0.9,
			"status": "open"
		}`), nil
	})

	anomaly, err := store.GetAnomaly(context.Background(), "anom-1")
	if err != nil {
		t.Fatalf("GetAnomaly failed: %v", err)
	}
	if anomaly.ID != "anom-1" || anomaly.Severity != models.SeverityCritical {
		t.Errorf("unexpected anomaly: %+v", anomaly)
	}
}

func TestGetAnomalyNotFound(t *testing.T) {
	store := NewPlatformStore("http://platform.local", "/api/v1/anomalies", "/api/v1/system/state", "/api/v1/remediations", 5*time.Second)
	store.httpClient = stubClient(func(*http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusNotFound, `{"error":"not found"}`), nil
	})

	_, err := store.GetAnomaly(context.Background(), "missing")
	if !utils.IsNotFound(err) {
		t.Fatalf("expected not-found error, got %v", err)
	}
}

func TestLatestSystemState(t *testing.T) {
	store := NewPlatformStore("http://platform.local", "/api/v1/anomalies", "/api/v1/system/state", "/api/v1/remediations", 5*time.Second)
	store.httpClient = stubClient(func(req *http.Request) (*http.Response, error) {
		if req.URL.Path != "/api/v1/system/state" {
			t.Errorf("unexpected path %s", req.URL.Path)
		}
		return jsonResponse(http.StatusOK, `{"cpu_usage": 72.5, "memory_usage": 61, "error_rate": 2.4}`), nil
	})

	state, err := store.LatestSystemState(context.Background())
	if err != nil {
		t.Fatalf("LatestSystemState failed: %v", err)
	}
	if state.CPUUsage != 72.5 || state.MemoryUsage != 61 {
		t.Errorf("unexpected state: %+v", state)
	}
}

func TestUpdateAnomalyStatus(t *testing.T) {
	store := NewPlatformStore("http://platform.local", "/api/v1/anomalies", "/api/v1/system/state", "/api/v1/remediations", 5*time.Second)
	store.httpClient = stubClient(func(req *http.Request) (*http.Response, error) {
		if req.Method != http.MethodPut {
			t.Errorf("expected PUT, got %s", req.Method)
		}
		if req.URL.Path != "/api/v1/anomalies/anom-1/status" {
			t.Errorf("unexpected path %s", req.URL.Path)
		}
		var payload map[string]string
		if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
			t.Fatalf("decode payload: %v", err)
		}
		if payload["status"] != "resolved" {
			t.Errorf("unexpected status payload %v", payload)
		}
		return jsonResponse(http.StatusNoContent, ""), nil
	})

	if err := store.UpdateAnomalyStatus(context.Background(), "anom-1", models.AnomalyResolved); err != nil {
		t.Fatalf("UpdateAnomalyStatus failed: %v", err)
	}
}

func TestSaveRemediationRecord(t *testing.T) {
	store := NewPlatformStore("http://platform.local", "/api/v1/anomalies", "/api/v1/system/state", "/api/v1/remediations", 5*time.Second)
	store.httpClient = stubClient(func(req *http.Request) (*http.Response, error) {
		if req.Method != http.MethodPost || req.URL.Path != "/api/v1/remediations" {
			t.Errorf("unexpected request %s %s", req.Method, req.URL.Path)
		}
		var record models.RemediationRecord
		if err := json.NewDecoder(req.Body).Decode(&record); err != nil {
			t.Fatalf("decode payload: %v", err)
		}
		if record.ActionType != "scale_up" {
			t.Errorf("unexpected record %+v", record)
		}
		return jsonResponse(http.StatusCreated, ""), nil
	})

	record := models.RemediationRecord{ID: "rec-1", AnomalyID: "anom-1", ActionType: "scale_up", Status: models.RemediationPending}
	if err := store.SaveRemediationRecord(context.Background(), record); err != nil {
		t.Fatalf("SaveRemediationRecord failed: %v", err)
	}
}

func TestListOpenAnomalies(t *testing.T) {
	store := NewPlatformStore("http://platform.local", "/api/v1/anomalies", "/api/v1/system/state", "/api/v1/remediations", 5*time.Second)
	store.httpClient = stubClient(func(req *http.Request) (*http.Response, error) {
		query := req.URL.Query()
		if query.Get("status") != "open" || query.Get("limit") != "10" {
			t.Errorf("unexpected query %v", query)
		}
		return jsonResponse(http.StatusOK, `{"anomalies": [{"id": "a1"}, {"id": "a2"}]}`), nil
	})

	anomalies, err := store.ListOpenAnomalies(context.Background(), 10)
	if err != nil {
		t.Fatalf("ListOpenAnomalies failed: %v", err)
	}
	if len(anomalies) != 2 || anomalies[0].ID != "a1" {
		t.Errorf("unexpected anomalies: %+v", anomalies)
	}
}

func TestPlatformStoreServerError(t *testing.T) {
	store := NewPlatformStore("http://platform.local", "/api/v1/anomalies", "/api/v1/system/state", "/api/v1/remediations", 5*time.Second)
	store.httpClient = stubClient(func(*http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusInternalServerError, ""), nil
	})

	if _, err := store.LatestSystemState(context.Background()); err == nil {
		t.Fatal("expected error on 500 response")
	}
}
