package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/edupath/attempt-engine/internal/models"
	"github.com/edupath/attempt-engine/internal/utils"
)

const defaultTimeout = 15 * time.Second

// HTTPClient talks to the upstream LMS attempt API over REST.
type HTTPClient struct {
	baseURL string
	token   string
	http    *http.Client
	logger  utils.Logger
}

// NewHTTPClient creates a gateway client. token, when non-empty, is
// forwarded as a bearer token; token acquisition itself is out of
// scope here.
func NewHTTPClient(baseURL, token string, logger utils.Logger) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: defaultTimeout},
		logger:  logger,
	}
}

func (c *HTTPClient) CheckActiveAttempt(ctx context.Context, quizID int64) (*models.ActiveAttempt, error) {
	var out models.ActiveAttempt
	path := fmt.Sprintf("/api/quizzes/%d/active-attempt", quizID)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, fmt.Errorf("check active attempt: %w", err)
	}
	return &out, nil
}

func (c *HTTPClient) StartAttempt(ctx context.Context, quizID int64) (*models.AttemptPayload, error) {
	var out models.AttemptPayload
	path := fmt.Sprintf("/api/quizzes/%d/attempts", quizID)
	if err := c.do(ctx, http.MethodPost, path, nil, &out); err != nil {
		return nil, fmt.Errorf("start attempt: %w", err)
	}
	return &out, nil
}

func (c *HTTPClient) ResumeAttempt(ctx context.Context, attemptID int64) (*models.AttemptPayload, error) {
	var out models.AttemptPayload
	path := fmt.Sprintf("/api/attempts/%d", attemptID)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, fmt.Errorf("resume attempt: %w", err)
	}
	return &out, nil
}

func (c *HTTPClient) GetQuizMeta(ctx context.Context, quizID int64) (*models.QuizMeta, error) {
	var out models.QuizMeta
	path := fmt.Sprintf("/api/quizzes/%d", quizID)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, fmt.Errorf("get quiz meta: %w", err)
	}
	return &out, nil
}

func (c *HTTPClient) SaveAnswer(ctx context.Context, attemptID, questionID int64, value any) error {
	body := map[string]any{
		"questionId": questionID,
		"value":      value,
	}
	path := fmt.Sprintf("/api/attempts/%d/answers", attemptID)
	if err := c.do(ctx, http.MethodPost, path, body, nil); err != nil {
		return fmt.Errorf("save answer: %w", err)
	}
	return nil
}

func (c *HTTPClient) SubmitAttempt(ctx context.Context, attemptID int64) (*models.SubmitResult, error) {
	var out models.SubmitResult
	path := fmt.Sprintf("/api/attempts/%d/submit", attemptID)
	if err := c.do(ctx, http.MethodPost, path, nil, &out); err != nil {
		return nil, fmt.Errorf("submit attempt: %w", err)
	}
	return &out, nil
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.logger.Warn("Upstream call failed",
			"method", method,
			"path", path,
			"status", resp.StatusCode)
		return fmt.Errorf("upstream %s %s: status %d: %s", method, path, resp.StatusCode, snippet)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
