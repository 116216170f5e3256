// Package notify is the outbound notification boundary. The engine
// enqueues structured template+data requests; delivery, rendering and
// retries stay on this side of the core.Notifier port.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/motiongranted/draftengine/internal/core"
	"github.com/motiongranted/draftengine/internal/logging"
	"github.com/motiongranted/draftengine/internal/metrics"
	"github.com/motiongranted/draftengine/internal/retry"
)

// Sink delivers one notification to its destination.
type Sink interface {
	Deliver(ctx context.Context, n core.Notification) error
}

// =============================================================================
// Sinks
// =============================================================================

// WebhookSink POSTs notifications as JSON to a configured endpoint.
type WebhookSink struct {
	url    string
	client *http.Client
}

// NewWebhookSink creates a sink posting to url.
func NewWebhookSink(url string) *WebhookSink {
	return &WebhookSink{
		url:    url,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

type webhookPayload struct {
	Template string         `json:"template"`
	OrderID  core.OrderID   `json:"order_id"`
	Data     map[string]any `json:"data,omitempty"`
	SentAt   time.Time      `json:"sent_at"`
}

func (s *WebhookSink) Deliver(ctx context.Context, n core.Notification) error {
	body, err := json.Marshal(webhookPayload{
		Template: n.Template,
		OrderID:  n.OrderID,
		Data:     n.Data,
		SentAt:   time.Now().UTC(),
	})
	if err != nil {
		return core.ErrValidation("NOTIFY_ENCODE", fmt.Sprintf("encoding notification: %v", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return core.ErrValidation("NOTIFY_REQUEST", fmt.Sprintf("building request: %v", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return core.ErrNetwork(fmt.Sprintf("posting notification: %v", err))
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return core.ErrRateLimit("notification endpoint throttling")
	case resp.StatusCode >= 500:
		return core.ErrNetwork(fmt.Sprintf("notification endpoint returned %d", resp.StatusCode))
	default:
		return core.ErrExecution("NOTIFY_REJECTED",
			fmt.Sprintf("notification endpoint returned %d", resp.StatusCode))
	}
}

// LogSink writes notifications to the log. Used when no webhook is
// configured, typically in development.
type LogSink struct {
	logger *logging.Logger
}

// NewLogSink creates a log-only sink.
func NewLogSink(logger *logging.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Deliver(_ context.Context, n core.Notification) error {
	s.logger.Info("notification",
		"template", n.Template,
		"order_id", n.OrderID,
		"data", n.Data)
	return nil
}

// =============================================================================
// Queue
// =============================================================================

// Queue implements core.Notifier with a buffered channel and a single
// delivery worker. Delivery failures are logged and counted, never
// propagated back into the workflow.
type Queue struct {
	sink   Sink
	logger *logging.Logger
	ch     chan core.Notification
}

// NewQueue creates a queue with the given buffer size.
func NewQueue(sink Sink, logger *logging.Logger, size int) *Queue {
	if size <= 0 {
		size = 256
	}
	return &Queue{
		sink:   sink,
		logger: logger,
		ch:     make(chan core.Notification, size),
	}
}

// Enqueue adds a notification to the queue. A full queue drops the
// notification with an error rather than blocking a phase.
func (q *Queue) Enqueue(_ context.Context, n core.Notification) error {
	select {
	case q.ch <- n:
		return nil
	default:
		metrics.Notifications.WithLabelValues(n.Template, "dropped").Inc()
		return core.ErrExecution("NOTIFY_QUEUE_FULL", "notification queue full")
	}
}

// Run delivers queued notifications until ctx is cancelled, then drains
// what is already buffered.
func (q *Queue) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			q.drain()
			return
		case n := <-q.ch:
			q.deliver(ctx, n)
		}
	}
}

func (q *Queue) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	for {
		select {
		case n := <-q.ch:
			q.deliver(ctx, n)
		default:
			return
		}
	}
}

func (q *Queue) deliver(ctx context.Context, n core.Notification) {
	cfg := retry.Config{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		MaxDelay:    15 * time.Second,
		OnRetry: func(attempt int, delay time.Duration, err error) {
			q.logger.Debug("notification retry",
				"template", n.Template,
				"order_id", n.OrderID,
				"attempt", attempt,
				"delay", delay,
				"error", err)
		},
	}

	err := retry.Do(ctx, cfg, func(ctx context.Context) error {
		return q.sink.Deliver(ctx, n)
	})
	if err != nil {
		metrics.Notifications.WithLabelValues(n.Template, "failed").Inc()
		q.logger.Error("notification delivery failed",
			"template", n.Template,
			"order_id", n.OrderID,
			"error", err)
		return
	}
	metrics.Notifications.WithLabelValues(n.Template, "delivered").Inc()
}

var _ core.Notifier = (*Queue)(nil)
