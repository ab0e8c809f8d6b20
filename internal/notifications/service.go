package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"conveyor/internal/config"
	"conveyor/internal/media"
	"conveyor/internal/organize"
)

const userAgent = "Conveyor/0.1.0"

// Service defines the notification surface exposed to workflow components.
type Service interface {
	NotifyItemCompleted(ctx context.Context, item *media.Item) error
	NotifyItemFailed(ctx context.Context, item *media.Item) error
	NotifyQueueDrained(ctx context.Context, processed, failed int, duration time.Duration) error
	NotifyError(ctx context.Context, err error, contextLabel string) error
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

	return &ntfyService{
		endpoint:     topic,
		client:       &http.Client{Timeout: timeout},
		completion:   cfg.Notifications.Completion,
		errors:       cfg.Notifications.Errors,
		queueDrained: cfg.Notifications.QueueDrained,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint     string
	client       *http.Client
	completion   bool
	errors       bool
	queueDrained bool
}

func (n *ntfyService) NotifyItemCompleted(ctx context.Context, item *media.Item) error {
	if !n.completion || item == nil {
		return nil
	}
	message := fmt.Sprintf("Ready: %s", organize.TitleFor(item))
	if item.FinalPath != "" {
		message = fmt.Sprintf("%s\nFile: %s", message, item.FinalPath)
	}
	if item.SubtitleError != "" {
		message = fmt.Sprintf("%s\nSubtitle skipped: %s", message, item.SubtitleError)
	}
	return n.send(ctx, payload{
		title:   "Conveyor - Complete",
		message: message,
		tags:    []string{"conveyor", "item", "completed"},
	})
}

func (n *ntfyService) NotifyItemFailed(ctx context.Context, item *media.Item) error {
	if !n.errors || item == nil {
		return nil
	}
	message := fmt.Sprintf("Failed while %s: %s", item.FailedPhase(), organize.TitleFor(item))
	if detail := strings.TrimSpace(item.ErrorMessage()); detail != "" {
		message = fmt.Sprintf("%s\n%s", message, detail)
	}
	if item.FunctionallyMoved() {
		message += "\nThe library copy is in place; only cleanup of the original failed."
	}
	return n.send(ctx, payload{
		title:    "Conveyor - Failed",
		message:  message,
		tags:     []string{"conveyor", "item", "failed"},
		priority: "high",
	})
}

func (n *ntfyService) NotifyQueueDrained(ctx context.Context, processed, failed int, duration time.Duration) error {
	if !n.queueDrained {
		return nil
	}
	duration = duration.Round(time.Second)
	if duration < 0 {
		duration = 0
	}

	var title, message string
	if failed == 0 {
		title = "Conveyor - Queue Drained"
		message = fmt.Sprintf("Queue drained: %d items processed in %s", processed, duration)
	} else {
		title = "Conveyor - Queue Drained (with errors)"
		message = fmt.Sprintf("Queue drained: %d succeeded, %d failed in %s", processed, failed, duration)
	}
	return n.send(ctx, payload{
		title:   title,
		message: message,
		tags:    []string{"conveyor", "queue", "drained"},
	})
}

func (n *ntfyService) NotifyError(ctx context.Context, err error, contextLabel string) error {
	if !n.errors {
		return nil
	}
	var builder strings.Builder
	builder.WriteString("Error")
	if contextLabel = strings.TrimSpace(contextLabel); contextLabel != "" {
		builder.WriteString(" in ")
		builder.WriteString(contextLabel)
	}
	builder.WriteString(": ")
	if err != nil {
		builder.WriteString(strings.TrimSpace(err.Error()))
	} else {
		builder.WriteString("unknown")
	}
	return n.send(ctx, payload{
		title:    "Conveyor - Error",
		message:  builder.String(),
		tags:     []string{"conveyor", "error", "alert"},
		priority: "high",
	})
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	return n.send(ctx, payload{
		title:    "Conveyor - Test",
		message:  "Notification system test",
		tags:     []string{"conveyor", "test"},
		priority: "low",
	})
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

type noopService struct{}

func (noopService) NotifyItemCompleted(context.Context, *media.Item) error            { return nil }
func (noopService) NotifyItemFailed(context.Context, *media.Item) error               { return nil }
func (noopService) NotifyQueueDrained(context.Context, int, int, time.Duration) error { return nil }
func (noopService) NotifyError(context.Context, error, string) error                  { return nil }
func (noopService) TestNotification(context.Context) error                            { return nil }
