package testutil

import (
	"context"
	"sync"

	"github.com/motiongranted/draftengine/internal/core"
)

// MemNotifier records enqueued notifications.
type MemNotifier struct {
	mu   sync.Mutex
	Sent []core.Notification
	Err  error
}

func (n *MemNotifier) Enqueue(ctx context.Context, msg core.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.Err != nil {
		return n.Err
	}
	n.Sent = append(n.Sent, msg)
	return nil
}

// ByTemplate returns the sent notifications matching a template name.
func (n *MemNotifier) ByTemplate(template string) []core.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []core.Notification
	for _, msg := range n.Sent {
		if msg.Template == template {
			out = append(out, msg)
		}
	}
	return out
}

// MemAlerter records operator alerts.
type MemAlerter struct {
	mu     sync.Mutex
	Alerts []RecordedAlert
}

type RecordedAlert struct {
	Key     string
	Message string
	Details map[string]any
}

func (a *MemAlerter) Alert(ctx context.Context, key, message string, details map[string]any) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Alerts = append(a.Alerts, RecordedAlert{Key: key, Message: message, Details: details})
}

func (a *MemAlerter) Count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.Alerts)
}

// ScriptedGateway returns canned responses keyed by call order, falling
// back to Default when the script runs out.
type ScriptedGateway struct {
	mu       sync.Mutex
	Script   []ScriptStep
	Default  *core.ModelResult
	Requests []core.ModelRequest
	next     int
}

type ScriptStep struct {
	Result *core.ModelResult
	Err    error
}

// Respond appends a successful step returning the given text.
func (g *ScriptedGateway) Respond(text string) *ScriptedGateway {
	g.Script = append(g.Script, ScriptStep{Result: &core.ModelResult{Text: text, CostUSD: 0.01}})
	return g
}

// Fail appends a failing step.
func (g *ScriptedGateway) Fail(err error) *ScriptedGateway {
	g.Script = append(g.Script, ScriptStep{Err: err})
	return g
}

func (g *ScriptedGateway) Complete(ctx context.Context, orderID core.OrderID, req core.ModelRequest) (*core.ModelResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Requests = append(g.Requests, req)
	if g.next < len(g.Script) {
		step := g.Script[g.next]
		g.next++
		if step.Err != nil {
			return nil, step.Err
		}
		res := *step.Result
		res.Model = req.Model
		return &res, nil
	}
	if g.Default != nil {
		res := *g.Default
		res.Model = req.Model
		return &res, nil
	}
	return &core.ModelResult{Text: "{}", Model: req.Model, CostUSD: 0.01}, nil
}

var (
	_ core.Notifier = (*MemNotifier)(nil)
	_ core.Alerter  = (*MemAlerter)(nil)
	_ core.Gateway  = (*ScriptedGateway)(nil)
)
