package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// CreateTaskRequest is the body POST /api/v1/tasks expects.
type CreateTaskRequest struct {
	ID         string `json:"id"`
	InputFile  string `json:"input_file"`
	OutputFile string `json:"output_file"`
}

// Progress mirrors task.Progress for SDK consumers that never import
// the server's internal packages.
type Progress struct {
	Count   int64    `json:"count"`
	Total   int64    `json:"total"`
	Rate    *float64 `json:"rate,omitempty"`
	AvgRate *float64 `json:"avg_rate,omitempty"`
}

// TaskResponse is the JSON shape returned for a single task. Result is the
// bare final item count the server stores on successful completion.
type TaskResponse struct {
	ID       string             `json:"id"`
	Status   string             `json:"status"`
	Init     *CreateTaskRequest `json:"init,omitempty"`
	Progress *Progress          `json:"progress,omitempty"`
	Result   *int64             `json:"result,omitempty"`
	Error    string             `json:"error,omitempty"`
}

// ListResponse is the response shape for GET /api/v1/tasks.
type ListResponse struct {
	Tasks      []*TaskResponse `json:"tasks"`
	TotalCount int             `json:"total_count"`
}

// WorkerInfo mirrors worker.Info.
type WorkerInfo struct {
	Identity    string `json:"identity"`
	StartedAt   string `json:"started_at"`
	Concurrency int    `json:"concurrency"`
	PID         int    `json:"pid"`
}

// QueueStats is the response shape for GET /admin/queues.
type QueueStats struct {
	QueuedDepth  int `json:"queued_depth"`
	ClaimedDepth int `json:"claimed_depth"`
}

// HealthResponse is the response shape for GET /admin/health.
type HealthResponse struct {
	Status string `json:"status"`
	Etcd   string `json:"etcd"`
	Error  string `json:"error,omitempty"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// TaskQueueClient is a hand-rolled REST+WebSocket SDK for the status
// server's HTTP surface. An earlier iteration wrapped an oapi-codegen
// generated client, which this package no longer depends on.
type TaskQueueClient struct {
	baseURL string
	opts    *options
	ws      *WebSocketClient
}

// New creates a new TaskQueueClient.
func New(baseURL string, opts ...Option) (*TaskQueueClient, error) {
	baseURL = strings.TrimSuffix(baseURL, "/")
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	return &TaskQueueClient{baseURL: baseURL, opts: o}, nil
}

func (c *TaskQueueClient) do(ctx context.Context, method, path string, body interface{}, out interface{}) (int, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if err := c.opts.applyHeaders()(ctx, req); err != nil {
		return 0, err
	}

	resp, err := c.opts.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("request %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var errResp errorResponse
		if jsonErr := json.Unmarshal(data, &errResp); jsonErr == nil && errResp.Message != "" {
			return resp.StatusCode, fmt.Errorf("%s: %s", errResp.Error, errResp.Message)
		}
		return resp.StatusCode, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode response: %w", err)
		}
	}

	return resp.StatusCode, nil
}

// ConnectWebSocket establishes a WebSocket connection for real-time events.
func (c *TaskQueueClient) ConnectWebSocket(ctx context.Context) error {
	if c.ws != nil && c.ws.IsConnected() {
		return nil
	}
	c.ws = newWebSocketClient(c.baseURL, c.opts.apiKey)
	return c.ws.Connect(ctx)
}

// Events returns a channel that receives WebSocket events.
// Must call ConnectWebSocket first.
func (c *TaskQueueClient) Events() <-chan *Event {
	if c.ws == nil {
		ch := make(chan *Event)
		close(ch)
		return ch
	}
	return c.ws.Events()
}

// CloseWebSocket closes the WebSocket connection.
func (c *TaskQueueClient) CloseWebSocket() error {
	if c.ws == nil {
		return nil
	}
	return c.ws.Close()
}

// SubscribeEvents subscribes to specific event types.
func (c *TaskQueueClient) SubscribeEvents(eventTypes ...EventType) error {
	if c.ws == nil {
		return fmt.Errorf("websocket not connected")
	}
	return c.ws.Subscribe(eventTypes...)
}

// SubmitTask creates a new task and returns the created task.
func (c *TaskQueueClient) SubmitTask(ctx context.Context, req CreateTaskRequest) (*TaskResponse, error) {
	var out TaskResponse
	if _, err := c.do(ctx, http.MethodPost, "/api/v1/tasks", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetTask retrieves a task by its id.
func (c *TaskQueueClient) GetTask(ctx context.Context, id string) (*TaskResponse, error) {
	var out TaskResponse
	if _, err := c.do(ctx, http.MethodGet, "/api/v1/tasks/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListTasks returns every task known to the service.
func (c *TaskQueueClient) ListTasks(ctx context.Context) (*ListResponse, error) {
	var out ListResponse
	if _, err := c.do(ctx, http.MethodGet, "/api/v1/tasks", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// PauseTask requests that a running task pause at its next chunk boundary.
func (c *TaskQueueClient) PauseTask(ctx context.Context, id string) error {
	_, err := c.do(ctx, http.MethodPost, "/admin/tasks/"+url.PathEscape(id)+"/pause", nil, nil)
	return err
}

// ResumeTask resumes a paused task.
func (c *TaskQueueClient) ResumeTask(ctx context.Context, id string) error {
	_, err := c.do(ctx, http.MethodPost, "/admin/tasks/"+url.PathEscape(id)+"/resume", nil, nil)
	return err
}

// RetryTask retries a task left in the error state.
func (c *TaskQueueClient) RetryTask(ctx context.Context, id string) error {
	_, err := c.do(ctx, http.MethodPost, "/admin/tasks/"+url.PathEscape(id)+"/retry", nil, nil)
	return err
}

// GetQueueStatistics returns the current queue depths.
func (c *TaskQueueClient) GetQueueStatistics(ctx context.Context) (*QueueStats, error) {
	var out QueueStats
	if _, err := c.do(ctx, http.MethodGet, "/admin/queues", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CheckHealth checks the health of the status server.
func (c *TaskQueueClient) CheckHealth(ctx context.Context) (*HealthResponse, error) {
	var out HealthResponse
	if _, err := c.do(ctx, http.MethodGet, "/admin/health", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListAllWorkers returns all active workers.
func (c *TaskQueueClient) ListAllWorkers(ctx context.Context) ([]WorkerInfo, error) {
	var out struct {
		Workers []WorkerInfo `json:"workers"`
		Count   int          `json:"count"`
	}
	if _, err := c.do(ctx, http.MethodGet, "/admin/workers", nil, &out); err != nil {
		return nil, err
	}
	return out.Workers, nil
}

// GetWorker returns a single active worker by identity.
func (c *TaskQueueClient) GetWorker(ctx context.Context, identity string) (*WorkerInfo, error) {
	var out WorkerInfo
	if _, err := c.do(ctx, http.MethodGet, "/admin/workers/"+url.PathEscape(identity), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
