package analyzer

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

	"github.com/BerylCAtieno/legal-doc-analyzer/internal/models"
	"github.com/BerylCAtieno/legal-doc-analyzer/internal/utils"
)

// Analyzer is the remote legal analysis service.
type Analyzer interface {
	Analyze(ctx context.Context, text string) (*models.RemoteAnalysis, error)
	Chat(ctx context.Context, payload *models.ChatbotPayload) (string, error)
	CompareLoan(ctx context.Context, summary string) (*models.LoanComparison, error)
}

// ErrEmptyResponse is returned when the service answered 2xx without usable content.
var ErrEmptyResponse = errors.New("analysis service returned an empty response")

// StatusError carries a non-2xx reply from the analysis service.
type StatusError struct {
	Endpoint   string
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s returned status %d: %s", e.Endpoint, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s returned status %d", e.Endpoint, e.StatusCode)
}

type httpAnalyzer struct {
	baseURL string
	logger  *utils.Logger
	client  *http.Client
}

func NewHTTPAnalyzer(baseURL string, timeout time.Duration, logger *utils.Logger) Analyzer {
	return &httpAnalyzer{
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

type analyzeRequest struct {
	Text string `json:"text"`
}

type loanRequest struct {
	Summary string `json:"summary"`
}

type chatbotResponse struct {
	Answer  string `json:"answer"`
	Summary string `json:"summary"`
}

func (a *httpAnalyzer) Analyze(ctx context.Context, text string) (*models.RemoteAnalysis, error) {
	var result models.RemoteAnalysis
	if err := a.post(ctx, "/analyze", analyzeRequest{Text: text}, &result); err != nil {
		return nil, err
	}

	if strings.TrimSpace(result.Summary) == "" && len(result.DetailedAnalysis) == 0 {
		return nil, ErrEmptyResponse
	}

	return &result, nil
}

func (a *httpAnalyzer) Chat(ctx context.Context, payload *models.ChatbotPayload) (string, error) {
	var resp chatbotResponse
	if err := a.post(ctx, "/chatbot", payload, &resp); err != nil {
		return "", err
	}

	// Older deployments answer under "summary".
	answer := strings.TrimSpace(resp.Answer)
	if answer == "" {
		answer = strings.TrimSpace(resp.Summary)
	}
	if answer == "" {
		return "", ErrEmptyResponse
	}

	return answer, nil
}

func (a *httpAnalyzer) CompareLoan(ctx context.Context, summary string) (*models.LoanComparison, error) {
	var resp models.LoanComparison
	if err := a.post(ctx, "/loan_comparison", loanRequest{Summary: summary}, &resp); err != nil {
		return nil, err
	}

	if strings.TrimSpace(resp.Comparison) == "" && strings.TrimSpace(resp.Answer) == "" {
		return nil, ErrEmptyResponse
	}

	return &resp, nil
}

func (a *httpAnalyzer) post(ctx context.Context, endpoint string, body, out interface{}) error {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request to %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	a.logger.Debug("Analysis service call",
		"endpoint", endpoint,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
		"response_bytes", len(respBody))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		a.logger.Error("Analysis service error", "endpoint", endpoint, "status", resp.StatusCode, "body", truncate(string(respBody), 512))
		return &StatusError{Endpoint: endpoint, StatusCode: resp.StatusCode, Message: errorMessage(respBody)}
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to unmarshal %s response: %w", endpoint, err)
	}

	return nil
}

// errorMessage pulls the {"error": "..."} message out of an error body, if any.
func errorMessage(body []byte) string {
	var payload struct {
		Error  string `json:"error"`
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	if payload.Error != "" {
		return payload.Error
	}
	return payload.Detail
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
