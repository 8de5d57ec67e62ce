package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/aliskhannn/imgbatch/internal/model"
	"github.com/aliskhannn/imgbatch/internal/quota"
)

// Client talks to the imgbatch backend: quota admission, account lookup,
// artifact upload and usage collection.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// envelope mirrors the backend's respond.Success / respond.Error bodies.
type envelope struct {
	Result  json.RawMessage `json:"result"`
	Message string          `json:"message"`
}

// New creates a Client for the backend at baseURL. token is sent as a bearer
// token for account-scoped endpoints and may be empty for anonymous use.
func New(baseURL, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Admit asks the backend to admit n items. The backend evaluates and
// increments the counter in one step, so today is only informational here.
func (c *Client) Admit(ctx context.Context, actor model.Actor, n int, _ string) (quota.Decision, error) {
	body, err := json.Marshal(model.AdmitRequest{ActorID: actor.ID, RequestedCount: n})
	if err != nil {
		return quota.Decision{}, fmt.Errorf("failed to marshal admit request: %w", err)
	}

	var resp model.AdmitResponse
	if err := c.do(ctx, http.MethodPost, "/api/quota/admit", "application/json", bytes.NewReader(body), &resp); err != nil {
		return quota.Decision{}, err
	}

	return quota.Decision{
		Allowed: resp.Allowed,
		Quota: quota.Quota{
			Kind:       model.ActorRegistered,
			DailyLimit: resp.DailyLimit,
			UsedToday:  resp.UsedToday,
			ResetDate:  resp.ResetDate,
		},
	}, nil
}

// Get fetches the account's current quota, including storage usage.
func (c *Client) Get(ctx context.Context, _ model.Actor, _ string) (quota.Quota, error) {
	var q quota.Quota
	if err := c.do(ctx, http.MethodGet, "/api/account", "", nil, &q); err != nil {
		return quota.Quota{}, err
	}

	return q, nil
}

// Upload sends one artifact as a multipart form.
func (c *Client) Upload(ctx context.Context, req model.UploadRequest) (model.UploadResult, error) {
	buf := bytes.NewBuffer(nil)
	mw := multipart.NewWriter(buf)

	fields := map[string]string{
		"width":        strconv.Itoa(req.Width),
		"height":       strconv.Itoa(req.Height),
		"content_type": req.ContentType,
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return model.UploadResult{}, fmt.Errorf("failed to write form field %s: %w", k, err)
		}
	}

	part, err := mw.CreateFormFile("file", req.Filename)
	if err != nil {
		return model.UploadResult{}, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, req.Body); err != nil {
		return model.UploadResult{}, fmt.Errorf("failed to copy artifact: %w", err)
	}
	if err := mw.Close(); err != nil {
		return model.UploadResult{}, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	var res model.UploadResult
	if err := c.do(ctx, http.MethodPost, "/api/storage/upload", mw.FormDataContentType(), buf, &res); err != nil {
		return model.UploadResult{Success: false, Error: err.Error()}, err
	}

	return res, nil
}

// ReportUsage posts a usage record to the collector.
func (c *Client) ReportUsage(ctx context.Context, report model.UsageReport) error {
	body, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal usage report: %w", err)
	}

	return c.do(ctx, http.MethodPost, "/api/usage", "application/json", bytes.NewReader(body), nil)
}

func (c *Client) do(ctx context.Context, method, path, contentType string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	var env envelope
	if len(data) > 0 {
		if err := json.Unmarshal(data, &env); err != nil {
			return fmt.Errorf("failed to decode response: %w, status %d", err, resp.StatusCode)
		}
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return fmt.Errorf("%w: %s", model.ErrUnauthorized, env.Message)
	case resp.StatusCode == http.StatusInsufficientStorage:
		return fmt.Errorf("%w: %s", model.ErrStorageFull, env.Message)
	case resp.StatusCode >= 300:
		return fmt.Errorf("request %s %s failed: status %d: %s", method, path, resp.StatusCode, env.Message)
	}

	if out == nil || len(env.Result) == 0 {
		return nil
	}

	if err := json.Unmarshal(env.Result, out); err != nil {
		return fmt.Errorf("failed to decode result: %w", err)
	}

	return nil
}
