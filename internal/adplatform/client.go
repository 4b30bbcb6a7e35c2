// Package adplatform is the HTTP client for the remote advertising platform:
// campaign / ad set / creative creation, status flips and insights reads.
// Authentication is a per-account access token obtained out of band.
package adplatform

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	RemoteStatusActive = "ACTIVE"
	RemoteStatusPaused = "PAUSED"
)

// APIError is a structured rejection from the platform. Transient reports
// whether the retry executor should try again.
type APIError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("ad platform: %s (code=%s, http=%d)", e.Message, e.Code, e.StatusCode)
}

func (e *APIError) Transient() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// IsRetriable is the predicate handed to the retry executor: network failures
// and 5xx/429 responses retry, a 4xx rejection is terminal.
func IsRetriable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Transient()
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

type CampaignParams struct {
	AdAccountID string `json:"ad_account_id"`
	Name        string `json:"name"`
	Objective   string `json:"objective"`
}

type AdSetParams struct {
	AdAccountID      string `json:"ad_account_id"`
	RemoteCampaignID string `json:"campaign_id"`
	Name             string `json:"name"`
	DailyBudgetCents int    `json:"daily_budget"`
}

type CreativeParams struct {
	AdAccountID   string `json:"ad_account_id"`
	RemoteAdSetID string `json:"adset_id"`
	Headline      string `json:"headline"`
	Body          string `json:"body"`
	ImageURL      string `json:"image_url,omitempty"`
	LandingURL    string `json:"landing_url"`
}

type Insights struct {
	Impressions int64   `json:"impressions"`
	Clicks      int64   `json:"clicks"`
	SpendCents  int64   `json:"spend"`
	CTR         float64 `json:"ctr"`
}

type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Client) CreateCampaign(ctx context.Context, accessToken string, params CampaignParams) (string, error) {
	var out struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, accessToken, http.MethodPost, "/campaigns", params, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

func (c *Client) CreateAdSet(ctx context.Context, accessToken string, params AdSetParams) (string, error) {
	var out struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, accessToken, http.MethodPost, "/adsets", params, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

func (c *Client) CreateCreative(ctx context.Context, accessToken string, params CreativeParams) (string, error) {
	var out struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, accessToken, http.MethodPost, "/creatives", params, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

// UpdateStatus flips a remote campaign to ACTIVE or PAUSED. The endpoint is
// idempotent on the platform side.
func (c *Client) UpdateStatus(ctx context.Context, accessToken, remoteCampaignID, status string) error {
	body := struct {
		Status string `json:"status"`
	}{Status: status}
	path := fmt.Sprintf("/campaigns/%s/status", remoteCampaignID)
	return c.do(ctx, accessToken, http.MethodPost, path, body, nil)
}

func (c *Client) Insights(ctx context.Context, accessToken, remoteCampaignID string) (*Insights, error) {
	var out Insights
	path := fmt.Sprintf("/campaigns/%s/insights", remoteCampaignID)
	if err := c.do(ctx, accessToken, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, accessToken, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ad platform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var envelope struct {
			Error APIError `json:"error"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&envelope); err == nil {
			apiErr.Code = envelope.Error.Code
			apiErr.Message = envelope.Error.Message
		}
		if apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	return nil
}
