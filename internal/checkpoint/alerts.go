package checkpoint

import (
	"context"
	"sync"
	"time"

	"github.com/motiongranted/draftengine/internal/core"
	"github.com/motiongranted/draftengine/internal/logging"
	"github.com/motiongranted/draftengine/internal/metrics"
)

// DefaultAlertCooldown is the minimum spacing between alerts sharing a
// key. A burst of identical failures produces one alert.
const DefaultAlertCooldown = 15 * time.Minute

// ThrottledAlerter sends operator alerts through the notification
// queue with per-key rate limiting. Suppressed alerts still log.
type ThrottledAlerter struct {
	notifier core.Notifier
	logger   *logging.Logger
	cooldown time.Duration
	clock    func() time.Time

	mu   sync.Mutex
	last map[string]time.Time
}

// NewThrottledAlerter creates an alerter with the default cooldown.
func NewThrottledAlerter(notifier core.Notifier, logger *logging.Logger) *ThrottledAlerter {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &ThrottledAlerter{
		notifier: notifier,
		logger:   logger,
		cooldown: DefaultAlertCooldown,
		clock:    time.Now,
		last:     make(map[string]time.Time),
	}
}

// WithCooldown overrides the per-key cooldown.
func (a *ThrottledAlerter) WithCooldown(d time.Duration) *ThrottledAlerter {
	a.cooldown = d
	return a
}

// WithClock overrides the time source, for tests.
func (a *ThrottledAlerter) WithClock(clock func() time.Time) *ThrottledAlerter {
	a.clock = clock
	return a
}

// Alert sends an operator alert unless the key is inside its cooldown.
func (a *ThrottledAlerter) Alert(ctx context.Context, key, message string, details map[string]any) {
	now := a.clock()

	a.mu.Lock()
	if sent, ok := a.last[key]; ok && now.Sub(sent) < a.cooldown {
		a.mu.Unlock()
		a.logger.Debug("alert suppressed by cooldown", "key", key)
		return
	}
	a.last[key] = now
	a.mu.Unlock()

	a.logger.Warn("operator alert", "key", key, "message", message)
	metrics.AlertsSent.Inc()

	if a.notifier == nil {
		return
	}
	data := map[string]any{"key": key, "message": message}
	for k, v := range details {
		data[k] = v
	}
	var orderID core.OrderID
	if id, ok := details["order_id"].(string); ok {
		orderID = core.OrderID(id)
	}
	n := core.Notification{Template: "operator_alert", OrderID: orderID, Data: data}
	if err := a.notifier.Enqueue(ctx, n); err != nil {
		a.logger.Error("operator alert enqueue failed", "key", key, "error", err)
	}
}
