package repo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/opsforge/remedy-engine/internal/models"
	"github.com/opsforge/remedy-engine/internal/utils"
)

// HTTPExecutor dispatches remediation actions to the external execution
// runner. The runner is opaque: the engine only sees success, duration, and a
// message. Call-level deadlines come from the caller's context; the client
// timeout is a backstop.
type HTTPExecutor struct {
	baseURL    string
	path       string
	httpClient *http.Client
}

// NewHTTPExecutor constructs an executor client for the configured runner
// endpoint.
func NewHTTPExecutor(baseURL, path string, timeout time.Duration) *HTTPExecutor {
	return &HTTPExecutor{
		baseURL: strings.TrimRight(baseURL, "/"),
		path:    "/" + strings.TrimLeft(path, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Execute runs one remediation action and reports its outcome.
func (e *HTTPExecutor) Execute(ctx context.Context, actionType string, parameters map[string]any) (models.ExecutionResult, error) {
	if e == nil || e.baseURL == "" {
		return models.ExecutionResult{}, utils.ExecutionError("repo.Execute", "executor not configured", nil)
	}
	if actionType == "" {
		return models.ExecutionResult{}, utils.ValidationError("repo.Execute", "action type is required", nil)
	}

	payload := map[string]any{
		"action_type": actionType,
		"parameters":  parameters,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return models.ExecutionResult{}, fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+e.path, bytes.NewReader(body))
	if err != nil {
		return models.ExecutionResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return models.ExecutionResult{}, utils.ExecutionError("repo.Execute", "executor request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return models.ExecutionResult{}, utils.ExecutionError("repo.Execute",
			fmt.Sprintf("executor returned status %d", resp.StatusCode), nil)
	}

	var result models.ExecutionResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return models.ExecutionResult{}, fmt.Errorf("decode response: %w", err)
	}
	return result, nil
}
