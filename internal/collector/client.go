package collector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/infra-mapper/infra-mapper/internal/model"
)

// reportTimeout bounds the agent->server report POST (§5).
const reportTimeout = 30 * time.Second

// ReportClient sends AgentReports to the central ingester.
type ReportClient struct {
	backendURL string
	apiKey     string
	httpClient *http.Client
}

// NewReportClient creates a ReportClient for the given backend.
func NewReportClient(backendURL, apiKey string) *ReportClient {
	return &ReportClient{
		backendURL: backendURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: reportTimeout},
	}
}

// Send posts a report to POST /api/v1/report. A non-2xx response or
// transport failure is returned to the caller, which records it for
// the next report's AgentMetadata.Error without crashing the agent
// loop (§4.4, §5).
func (rc *ReportClient) Send(ctx context.Context, report model.AgentReport) error {
	body, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, reportTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rc.backendURL+"/api/v1/report", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+rc.apiKey)

	resp, err := rc.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send report: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("report rejected: status %d", resp.StatusCode)
	}
	return nil
}
