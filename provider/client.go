package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"transcribe-worker/config"
	"transcribe-worker/constant"
)

type client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewClient returns a Provider backed by the remote speech-recognition HTTP
// API. Every request is bounded by the configured timeout; a timed-out poll
// surfaces as an ordinary error and the job stays tracked for the next cycle.
func NewClient(cfg config.Provider) Provider {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: timeout},
	}
}

type submitRequest struct {
	AudioURL string `json:"audio_url"`
}

type submitResponse struct {
	RequestId string `json:"request_id"`
	TaskId    string `json:"task_id"`
	Status    string `json:"status"`
}

type pollResponse struct {
	RequestId    string  `json:"request_id"`
	Status       string  `json:"status"`
	SubmitTime   *string `json:"submit_time"`
	EndTime      *string `json:"end_time"`
	UsageSeconds *int    `json:"usage_seconds"`
	ResultURL    string  `json:"result_url"`
	ErrorMessage string  `json:"error_message"`
}

func (c *client) Submit(ctx context.Context, audioURL string) (*SubmitResponse, error) {
	body, err := json.Marshal(submitRequest{AudioURL: audioURL})
	if err != nil {
		return nil, err
	}

	var resp submitResponse
	if err := c.do(ctx, http.MethodPost, c.baseURL+"/v1/tasks", bytes.NewReader(body), &resp); err != nil {
		return nil, fmt.Errorf("submit task: %w", err)
	}

	return &SubmitResponse{
		RequestId: resp.RequestId,
		TaskId:    resp.TaskId,
		Status:    constant.JobStatus(resp.Status),
	}, nil
}

func (c *client) Poll(ctx context.Context, taskId string) (*PollResponse, error) {
	var resp pollResponse
	if err := c.do(ctx, http.MethodGet, c.baseURL+"/v1/tasks/"+taskId, nil, &resp); err != nil {
		return nil, fmt.Errorf("poll task %s: %w", taskId, err)
	}

	out := &PollResponse{
		RequestId:    resp.RequestId,
		Status:       constant.JobStatus(resp.Status),
		UsageSeconds: resp.UsageSeconds,
		ResultRef:    resp.ResultURL,
		ErrorMessage: resp.ErrorMessage,
	}
	if t := parseTime(resp.SubmitTime); t != nil {
		out.SubmitTime = t
	}
	if t := parseTime(resp.EndTime); t != nil {
		out.EndTime = t
	}
	return out, nil
}

// FetchResult downloads the raw result document. The ref is a fully qualified
// URL issued by the provider alongside the terminal poll response.
func (c *client) FetchResult(ctx context.Context, resultRef string) (*RawResult, error) {
	var result RawResult
	if err := c.do(ctx, http.MethodGet, resultRef, nil, &result); err != nil {
		return nil, fmt.Errorf("fetch result: %w", err)
	}
	return &result, nil
}

func (c *client) do(ctx context.Context, method, url string, body io.Reader, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("provider returned HTTP %d: %s", resp.StatusCode, bytes.TrimSpace(data))
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

func parseTime(value *string) *time.Time {
	if value == nil || *value == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, *value)
	if err != nil {
		return nil
	}
	return &t
}
