package repo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/opsforge/remedy-engine/internal/models"
	"github.com/opsforge/remedy-engine/internal/utils"
)

// PlatformStore talks to the monitoring platform's HTTP API for anomalies,
// telemetry snapshots, and remediation records.
type PlatformStore struct {
	baseURL     string
	anomalyPath string
	statePath   string
	recordPath  string
	httpClient  *http.Client
}

// NewPlatformStore constructs a store client for the configured platform
// endpoint.
func NewPlatformStore(baseURL, anomalyPath, statePath, recordPath string, timeout time.Duration) *PlatformStore {
	return &PlatformStore{
		baseURL:     strings.TrimRight(baseURL, "/"),
		anomalyPath: anomalyPath,
		statePath:   statePath,
		recordPath:  recordPath,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// GetAnomaly fetches one anomaly by id. A 404 maps to a not-found error the
// orchestrator can distinguish from transport failures.
func (s *PlatformStore) GetAnomaly(ctx context.Context, id string) (models.AnomalyEvent, error) {
	if s == nil || s.baseURL == "" {
		return models.AnomalyEvent{}, fmt.Errorf("platform store not configured")
	}

	var anomaly models.AnomalyEvent
	status, err := s.getJSON(ctx, s.resolvePath(s.anomalyPath+"/"+url.PathEscape(id)), &anomaly)
	if err != nil {
		return models.AnomalyEvent{}, fmt.Errorf("platform anomaly request failed: %w", err)
	}
	if status == http.StatusNotFound {
		return models.AnomalyEvent{}, utils.NotFoundError("repo.GetAnomaly", fmt.Sprintf("anomaly %s not found", id))
	}
	if status != http.StatusOK {
		return models.AnomalyEvent{}, fmt.Errorf("platform returned status %d", status)
	}
	return anomaly, nil
}

// LatestSystemState fetches the current telemetry snapshot.
func (s *PlatformStore) LatestSystemState(ctx context.Context) (models.SystemState, error) {
	if s == nil || s.baseURL == "" {
		return models.SystemState{}, fmt.Errorf("platform store not configured")
	}

	var state models.SystemState
	status, err := s.getJSON(ctx, s.resolvePath(s.statePath), &state)
	if err != nil {
		return models.SystemState{}, fmt.Errorf("platform state request failed: %w", err)
	}
	if status != http.StatusOK {
		return models.SystemState{}, fmt.Errorf("platform returned status %d", status)
	}
	return state, nil
}

// UpdateAnomalyStatus transitions an anomaly's lifecycle state.
func (s *PlatformStore) UpdateAnomalyStatus(ctx context.Context, id string, status models.AnomalyStatus) error {
	if s == nil || s.baseURL == "" {
		return fmt.Errorf("platform store not configured")
	}

	payload := map[string]any{"status": string(status)}
	endpoint := s.resolvePath(s.anomalyPath + "/" + url.PathEscape(id) + "/status")
	code, err := s.sendJSON(ctx, http.MethodPut, endpoint, payload, nil)
	if err != nil {
		return fmt.Errorf("platform status update failed: %w", err)
	}
	if code == http.StatusNotFound {
		return utils.NotFoundError("repo.UpdateAnomalyStatus", fmt.Sprintf("anomaly %s not found", id))
	}
	if code != http.StatusOK && code != http.StatusNoContent {
		return fmt.Errorf("platform returned status %d", code)
	}
	return nil
}

// SaveRemediationRecord creates or updates a remediation record. The platform
// upserts on record id, so pending and final states use the same call.
func (s *PlatformStore) SaveRemediationRecord(ctx context.Context, record models.RemediationRecord) error {
	if s == nil || s.baseURL == "" {
		return fmt.Errorf("platform store not configured")
	}

	code, err := s.sendJSON(ctx, http.MethodPost, s.resolvePath(s.recordPath), record, nil)
	if err != nil {
		return fmt.Errorf("platform remediation save failed: %w", err)
	}
	if code != http.StatusOK && code != http.StatusCreated && code != http.StatusNoContent {
		return fmt.Errorf("platform returned status %d", code)
	}
	return nil
}

// ListOpenAnomalies fetches up to limit anomalies still awaiting a decision.
func (s *PlatformStore) ListOpenAnomalies(ctx context.Context, limit int) ([]models.AnomalyEvent, error) {
	if s == nil || s.baseURL == "" {
		return nil, fmt.Errorf("platform store not configured")
	}

	endpoint := s.resolvePath(s.anomalyPath)
	endpoint += "?status=" + url.QueryEscape(string(models.AnomalyOpen))
	if limit > 0 {
		endpoint += "&limit=" + strconv.Itoa(limit)
	}

	var response struct {
		Anomalies []models.AnomalyEvent `json:"anomalies"`
	}
	status, err := s.getJSON(ctx, endpoint, &response)
	if err != nil {
		return nil, fmt.Errorf("platform anomaly list failed: %w", err)
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("platform returned status %d", status)
	}
	return response.Anomalies, nil
}

func (s *PlatformStore) resolvePath(p string) string {
	cleaned := "/" + strings.TrimLeft(p, "/")
	u, err := url.Parse(s.baseURL)
	if err != nil {
		return s.baseURL + cleaned
	}
	u.Path = path.Join(u.Path, cleaned)
	return u.String()
}

func (s *PlatformStore) getJSON(ctx context.Context, endpoint string, out any) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, err
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK || out == nil {
		return resp.StatusCode, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, fmt.Errorf("decode response: %w", err)
	}
	return resp.StatusCode, nil
}

func (s *PlatformStore) sendJSON(ctx context.Context, method, endpoint string, payload, out any) (int, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}
