package comfyui

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/mohammednabarawy/video-gen/internal/graph"
	"github.com/mohammednabarawy/video-gen/internal/logging"
	"github.com/mohammednabarawy/video-gen/internal/services"
)

const component = "comfyui"

const (
	connectTimeout    = 5 * time.Second
	submitTimeout     = 10 * time.Second
	historyTimeout    = 5 * time.Second
	downloadTimeout   = 30 * time.Second
	submitAttempts    = 3
	historyAttempts   = 3
	retryBaseDelay    = time.Second
	completionPollGap = time.Second
)

// Client talks to the inference server: job submission and history over
// HTTP, live events over the websocket stream. One Client keeps one client
// identity for its whole lifetime so the server routes events correctly.
type Client struct {
	baseURL  string
	clientID string
	http     *http.Client
	logger   *slog.Logger

	mu       sync.Mutex
	conn     *websocket.Conn
	handlers map[EventKind][]func(Event)
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient injects a custom HTTP client (primarily for tests).
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		if httpClient != nil {
			c.http = httpClient
		}
	}
}

// WithClientID pins the stream identity instead of generating one.
func WithClientID(id string) ClientOption {
	return func(c *Client) {
		if strings.TrimSpace(id) != "" {
			c.clientID = id
		}
	}
}

// NewClient constructs a client for the server at baseURL.
func NewClient(baseURL string, logger *slog.Logger, opts ...ClientOption) *Client {
	if logger == nil {
		logger = logging.NewNop()
	}
	client := &Client{
		baseURL:  strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		clientID: uuid.NewString(),
		http:     &http.Client{},
		logger:   logger,
		handlers: make(map[EventKind][]func(Event)),
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// ClientID returns the identity sent with submissions and the stream
// handshake.
func (c *Client) ClientID() string {
	return c.clientID
}

// BaseURL returns the server's HTTP base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

type submitRequest struct {
	Prompt   graph.Graph `json:"prompt"`
	ClientID string      `json:"client_id"`
}

type submitResponse struct {
	PromptID string `json:"prompt_id"`
}

// Submit queues a graph for execution and returns the server-assigned job
// identifier. Connection-level failures retry with exponential backoff;
// a rejection the server actually sent is final on the first response.
func (c *Client) Submit(ctx context.Context, g graph.Graph) (string, error) {
	if err := g.Validate(); err != nil {
		return "", services.Wrap(services.ErrValidation, component, "submit", "invalid graph", err)
	}
	payload, err := json.Marshal(submitRequest{Prompt: g, ClientID: c.clientID})
	if err != nil {
		return "", services.Wrap(services.ErrValidation, component, "submit", "encode graph", err)
	}

	status, body, err := c.doRetry(ctx, submitAttempts, submitTimeout, http.MethodPost, c.baseURL+"/prompt", payload)
	if err != nil {
		return "", services.Wrap(services.ErrTransient, component, "submit", "server unreachable", err)
	}
	if status != http.StatusOK {
		detail := fmt.Sprintf("status %d: %s", status, excerpt(string(body), 300))
		return "", services.Wrap(services.ErrServer, component, "submit", detail, nil)
	}

	var result submitResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", services.Wrap(services.ErrServer, component, "submit", "decode response", err)
	}
	if result.PromptID == "" {
		return "", services.Wrap(services.ErrServer, component, "submit", "response missing prompt_id", nil)
	}
	c.logger.Info("job submitted", logging.String("prompt_id", result.PromptID))
	return result.PromptID, nil
}

// PollStatus fetches the execution record for a job. A reachable server
// with no record for the job yields (nil, nil); only transport exhaustion
// is an error.
func (c *Client) PollStatus(ctx context.Context, jobID string) (*JobRecord, error) {
	if strings.TrimSpace(jobID) == "" {
		return nil, services.Wrap(services.ErrValidation, component, "poll status", "job id required", nil)
	}

	status, body, err := c.doRetry(ctx, historyAttempts, historyTimeout, http.MethodGet, c.baseURL+"/history/"+url.PathEscape(jobID), nil)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, component, "poll status", "server unreachable", err)
	}
	if status != http.StatusOK {
		c.logger.Debug("history lookup failed", logging.String("prompt_id", jobID), logging.Int("status", status))
		return nil, nil
	}

	var records map[string]*JobRecord
	if err := json.Unmarshal(body, &records); err != nil {
		return nil, services.Wrap(services.ErrServer, component, "poll status", "decode history", err)
	}
	return records[jobID], nil
}

// AwaitCompletion polls the job record every second until it shows outputs
// or a completed flag. Returns false once timeout elapses or the context is
// canceled.
func (c *Client) AwaitCompletion(ctx context.Context, jobID string, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		record, err := c.PollStatus(ctx, jobID)
		if err != nil {
			c.logger.Debug("completion poll failed", logging.String("prompt_id", jobID), logging.Error(err))
		}
		if record.Done() {
			return true
		}
		if err := sleepContext(ctx, completionPollGap); err != nil {
			return false
		}
	}
	return false
}

// ListOutputs returns the normalized artifacts of a finished job, or nil
// when the record has none yet.
func (c *Client) ListOutputs(ctx context.Context, jobID string) ([]OutputRef, error) {
	record, err := c.PollStatus(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if record == nil || len(record.Outputs) == 0 {
		return nil, nil
	}
	return normalizeOutputs(c.logger, record.Outputs), nil
}

// FetchOutput downloads one artifact. With saveTo set the bytes go to disk
// and the saved path is returned; otherwise the bytes are returned directly.
func (c *Client) FetchOutput(ctx context.Context, ref OutputRef, saveTo string) ([]byte, string, error) {
	if ref.Filename == "" {
		return nil, "", services.Wrap(services.ErrValidation, component, "fetch output", "filename required", nil)
	}
	query := url.Values{}
	query.Set("filename", ref.Filename)
	query.Set("subfolder", ref.Subfolder)
	kind := ref.Kind
	if kind == "" {
		kind = "output"
	}
	query.Set("type", kind)

	status, body, err := c.doOnce(ctx, downloadTimeout, http.MethodGet, c.baseURL+"/view?"+query.Encode(), nil)
	if err != nil {
		return nil, "", services.Wrap(services.ErrTransient, component, "fetch output", "server unreachable", err)
	}
	if status != http.StatusOK {
		return nil, "", services.Wrap(services.ErrServer, component, "fetch output", fmt.Sprintf("status %d for %s", status, ref.Filename), nil)
	}

	if saveTo == "" {
		return body, "", nil
	}
	if dir := filepath.Dir(saveTo); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, "", services.Wrap(services.ErrConfiguration, component, "fetch output", "create output directory", err)
		}
	}
	if err := os.WriteFile(saveTo, body, 0o644); err != nil {
		return nil, "", services.Wrap(services.ErrConfiguration, component, "fetch output", "write output file", err)
	}
	c.logger.Info("output saved",
		logging.String("filename", ref.Filename),
		logging.String("path", saveTo),
		logging.Int("bytes", len(body)))
	return nil, saveTo, nil
}

// doRetry runs the request up to attempts times, backing off exponentially
// from retryBaseDelay. Only connection-level failures retry; any received
// HTTP response, whatever the status, is returned as-is.
func (c *Client) doRetry(ctx context.Context, attempts int, timeout time.Duration, method, requestURL string, payload []byte) (int, []byte, error) {
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			delay := retryBaseDelay << (attempt - 2)
			c.logger.Warn("request failed, retrying",
				logging.String("url", requestURL),
				logging.Int("attempt", attempt),
				logging.Duration("delay", delay),
				logging.Error(lastErr))
			if err := sleepContext(ctx, delay); err != nil {
				return 0, nil, lastErr
			}
		}
		status, body, err := c.doOnce(ctx, timeout, method, requestURL, payload)
		if err == nil {
			return status, body, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	return 0, nil, lastErr
}

func (c *Client) doOnce(ctx context.Context, timeout time.Duration, method, requestURL string, payload []byte) (int, []byte, error) {
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(reqCtx, method, requestURL, body)
	if err != nil {
		return 0, nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, data, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func excerpt(text string, limit int) string {
	text = strings.TrimSpace(text)
	if len(text) <= limit {
		return text
	}
	return text[:limit]
}
