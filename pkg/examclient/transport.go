package examclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// API is the server surface the controller needs. Implemented over HTTP by
// Client; fakeable in tests.
type API interface {
	StartAttempt(ctx context.Context, examID uuid.UUID) (*Paper, error)
	SaveAnswer(ctx context.Context, attemptID, questionID uuid.UUID, chosen int, timeSpentSec int) error
	Finish(ctx context.Context, attemptID uuid.UUID) (*Result, error)
	ReportViolation(ctx context.Context, attemptID uuid.UUID) error
}

// Client talks to the backend's attempt endpoints with a bearer token.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient creates a Client. baseURL includes the API prefix, e.g.
// "https://exams.example.com/api/v1".
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// envelope mirrors the server's standard response wrapper.
type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *APIError       `json:"error"`
}

func (c *Client) StartAttempt(ctx context.Context, examID uuid.UUID) (*Paper, error) {
	var paper Paper
	body := map[string]string{"exam_id": examID.String()}
	if err := c.post(ctx, "/attempts/start", body, &paper); err != nil {
		return nil, err
	}
	return &paper, nil
}

func (c *Client) SaveAnswer(ctx context.Context, attemptID, questionID uuid.UUID, chosen int, timeSpentSec int) error {
	body := map[string]interface{}{
		"question_id":    questionID.String(),
		"chosen":         chosen,
		"time_spent_sec": timeSpentSec,
	}
	return c.post(ctx, fmt.Sprintf("/attempts/%s/answer", attemptID), body, nil)
}

func (c *Client) Finish(ctx context.Context, attemptID uuid.UUID) (*Result, error) {
	var result Result
	if err := c.post(ctx, fmt.Sprintf("/attempts/%s/finish", attemptID), struct{}{}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ReportViolation is the observability heartbeat; callers treat failures as
// non-fatal.
func (c *Client) ReportViolation(ctx context.Context, attemptID uuid.UUID) error {
	return c.post(ctx, fmt.Sprintf("/attempts/%s/focus-violation", attemptID), struct{}{}, nil)
}

func (c *Client) post(ctx context.Context, path string, body interface{}, out interface{}) error {
	var bodyReader io.Reader
	if body != nil {
		jsonBytes, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		bodyReader = bytes.NewBuffer(jsonBytes)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bodyReader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("decode response (%d): %w", resp.StatusCode, err)
	}

	if resp.StatusCode >= 400 {
		if env.Error != nil {
			env.Error.Status = resp.StatusCode
			return env.Error
		}
		return &APIError{Status: resp.StatusCode, Code: "UNKNOWN", Message: http.StatusText(resp.StatusCode)}
	}

	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("decode data: %w", err)
		}
	}
	return nil
}
