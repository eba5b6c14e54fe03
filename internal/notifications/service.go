package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mohammednabarawy/video-gen/internal/config"
)

const userAgent = "Videogen/0.1.0"

// Prompts are arbitrary user text; keep phone notifications readable.
const promptPreviewLimit = 120

// Service defines the notification surface exposed to workflow components.
type Service interface {
	NotifyGenerationCompleted(ctx context.Context, prompt, outputFile string, elapsed time.Duration) error
	NotifyGenerationFailed(ctx context.Context, prompt, reason string) error
	NotifyServerRestarted(ctx context.Context, reason string) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	client := &http.Client{Timeout: timeout}
	return &ntfyService{
		endpoint: topic,
		client:   client,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
}

func (n *ntfyService) NotifyGenerationCompleted(ctx context.Context, prompt, outputFile string, elapsed time.Duration) error {
	elapsed = elapsed.Round(time.Second)
	if elapsed < 0 {
		elapsed = 0
	}
	message := fmt.Sprintf("✅ Video ready in %s: %s", elapsed, strings.TrimSpace(outputFile))
	if preview := promptPreview(prompt); preview != "" {
		message = fmt.Sprintf("%s\nPrompt: %s", message, preview)
	}
	data := payload{
		title:    "Videogen - Complete",
		message:  message,
		tags:     []string{"videogen", "generation", "completed"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyGenerationFailed(ctx context.Context, prompt, reason string) error {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "unknown error"
	}
	message := fmt.Sprintf("❌ Generation failed: %s", reason)
	if preview := promptPreview(prompt); preview != "" {
		message = fmt.Sprintf("%s\nPrompt: %s", message, preview)
	}
	data := payload{
		title:    "Videogen - Failed",
		message:  message,
		tags:     []string{"videogen", "generation", "failed"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyServerRestarted(ctx context.Context, reason string) error {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "unresponsive server"
	}
	data := payload{
		title:   "Videogen - Server Restarted",
		message: fmt.Sprintf("🔄 Server restarted to recover from: %s", reason),
		tags:    []string{"videogen", "server", "restarted"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "Videogen - Test",
		message:  "🧪 Notification system test",
		tags:     []string{"videogen", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func promptPreview(prompt string) string {
	prompt = strings.TrimSpace(prompt)
	runes := []rune(prompt)
	if len(runes) <= promptPreviewLimit {
		return prompt
	}
	return strings.TrimSpace(string(runes[:promptPreviewLimit])) + "..."
}

type noopService struct{}

func (noopService) NotifyGenerationCompleted(context.Context, string, string, time.Duration) error {
	return nil
}
func (noopService) NotifyGenerationFailed(context.Context, string, string) error { return nil }
func (noopService) NotifyServerRestarted(context.Context, string) error          { return nil }
func (noopService) TestNotification(context.Context) error                       { return nil }
