package remediation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/forgefleet/fleetops/internal/domain/remediation"
)

// Client files remediation issues with an external tracker over HTTP.
// Every failure is wrapped in ErrRemediation so callers can treat the
// tracker as strictly best-effort.
type Client struct {
	baseURL    string
	httpClient *http.Client
	token      string
}

func NewClient(baseURL, token string) (*Client, error) {
	normalized, err := normalizeBaseURL(baseURL)
	if err != nil {
		return nil, err
	}
	return &Client{
		baseURL:    normalized,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		token:      token,
	}, nil
}

// WithHTTPClient overrides the default http.Client. Primarily useful for testing.
func (c *Client) WithHTTPClient(httpClient *http.Client) {
	if httpClient != nil {
		c.httpClient = httpClient
	}
}

var _ remediation.IssueTracker = (*Client)(nil)

type issuePayload struct {
	Context remediation.IssueContext `json:"context"`
	Note    string                   `json:"note"`
}

func (c *Client) CreateIssue(ctx context.Context, issue remediation.IssueContext, note string) error {
	body, err := json.Marshal(issuePayload{Context: issue, Note: note})
	if err != nil {
		return fmt.Errorf("%w: encode issue: %v", remediation.ErrRemediation, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/issues", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: create request: %v", remediation.ErrRemediation, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: execute request: %v", remediation.ErrRemediation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		if len(b) == 0 {
			return fmt.Errorf("%w: unexpected status %d", remediation.ErrRemediation, resp.StatusCode)
		}
		return fmt.Errorf("%w: unexpected status %d: %s", remediation.ErrRemediation, resp.StatusCode, string(b))
	}
	return nil
}

func normalizeBaseURL(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", errors.New("issue tracker base URL is required")
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "http://" + trimmed
	}
	parsed, err := url.Parse(trimmed)
	if err != nil {
		return "", fmt.Errorf("invalid issue tracker base URL: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return "", fmt.Errorf("invalid issue tracker base URL: %s", raw)
	}
	parsed.Path = strings.TrimSuffix(parsed.Path, "/")
	parsed.RawQuery = ""
	parsed.Fragment = ""
	return strings.TrimSuffix(parsed.String(), "/"), nil
}
