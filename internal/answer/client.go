package answer

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
)

const maxResponseBytes = 1 << 20

var (
	ErrMissingCredential = errors.New("answer service url or api key not configured")
	ErrRejected          = errors.New("answer service rejected the credential")
	ErrEmptyAnswer       = errors.New("answer service returned an empty answer")
)

// UnsuccessfulError is returned when the service answered with success=false.
type UnsuccessfulError struct {
	Notice string
}

func (e *UnsuccessfulError) Error() string {
	if e.Notice == "" {
		return "answer service reported failure"
	}
	return "answer service reported failure: " + e.Notice
}

type Config struct {
	URL     string
	APIKey  string
	UserID  string
	Model   int
	Timeout time.Duration
}

type Client struct {
	cfg        Config
	httpClient *http.Client
}

func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

type askRequest struct {
	UserID   string `json:"user_id"`
	Model    int    `json:"model"`
	Question string `json:"question"`
}

type askResponse struct {
	Success bool   `json:"success"`
	Answer  string `json:"answer"`
	Notice  string `json:"notice"`
}

// Ask sends an already percent-encoded question and returns the markdown
// answer. Nothing is sent when the credential is missing.
func (c *Client) Ask(ctx context.Context, encodedQuestion string) (string, error) {
	if strings.TrimSpace(c.cfg.URL) == "" || strings.TrimSpace(c.cfg.APIKey) == "" {
		return "", ErrMissingCredential
	}

	bodyBytes, err := json.Marshal(askRequest{
		UserID:   c.cfg.UserID,
		Model:    c.cfg.Model,
		Question: encodedQuestion,
	})
	if err != nil {
		return "", fmt.Errorf("marshal answer request failed: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("build answer request failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("answer request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("read answer response failed: %w", err)
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return "", fmt.Errorf("%w: status %d", ErrRejected, resp.StatusCode)
	}

	var parsed askResponse
	if jsonErr := json.Unmarshal(raw, &parsed); jsonErr != nil {
		if resp.StatusCode >= 300 {
			return "", fmt.Errorf("answer response status %d: %s", resp.StatusCode, truncate(string(raw), 200))
		}
		return "", fmt.Errorf("parse answer json failed: %w", jsonErr)
	}
	if !parsed.Success {
		return "", &UnsuccessfulError{Notice: parsed.Notice}
	}
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("answer response status %d", resp.StatusCode)
	}
	if strings.TrimSpace(parsed.Answer) == "" {
		return "", ErrEmptyAnswer
	}
	return parsed.Answer, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
