// Package workflow notifies the external workflow runner that a batch job should start.
package workflow

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/property-scanner/internal/circuitbreaker"
	"github.com/property-scanner/internal/config"
	"github.com/property-scanner/internal/logging"
)

// ScraperWebhookPath is the runner endpoint that starts a scraping batch
const ScraperWebhookPath = "/webhook/regrid-scraper"

// ActionStart is the only action the runner understands today
const ActionStart = "start"

// maxErrorBody caps how much of a failed response body ends up in the error message
const maxErrorBody = 256

// StartRequest is the JSON body posted to the runner
type StartRequest struct {
	JobID  string `json:"job_id"`
	Action string `json:"action"`
}

// Trigger delivers start notifications over HTTP. It never retries.
type Trigger struct {
	baseURL string
	timeout time.Duration
	client  *http.Client
	breaker *circuitbreaker.CircuitBreaker
}

// NewTrigger creates a trigger for the configured runner
func NewTrigger(cfg *config.WorkflowConfig) *Trigger {
	return &Trigger{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		timeout: cfg.Timeout,
		client:  &http.Client{Timeout: cfg.Timeout},
		breaker: circuitbreaker.NewCircuitBreaker(circuitbreaker.DefaultConfig("workflow-runner")),
	}
}

// Notify posts {job_id, action: "start"} to the runner.
// It returns triggered=false with a descriptive message on any failure.
func (t *Trigger) Notify(ctx context.Context, jobID string) (bool, string) {
	if t.baseURL == "" {
		return false, "workflow base URL not configured"
	}

	err := t.breaker.Execute(func() error {
		return t.post(ctx, jobID)
	})
	if err != nil {
		logging.FromContext(ctx).WithFields(map[string]interface{}{
			"jobId": jobID,
			"error": err.Error(),
		}).Warn("Workflow trigger failed")
		return false, err.Error()
	}
	return true, ""
}

func (t *Trigger) post(ctx context.Context, jobID string) error {
	body, err := json.Marshal(StartRequest{JobID: jobID, Action: ActionStart})
	if err != nil {
		return fmt.Errorf("failed to encode workflow request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+ScraperWebhookPath, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build workflow request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("workflow request timed out after %s", t.timeout)
		}
		return fmt.Errorf("workflow request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("workflow returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(excerpt)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
