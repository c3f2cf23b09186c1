package session

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mesieou/skedy-ai-sub002/pkg/agent/tools"
	"github.com/mesieou/skedy-ai-sub002/pkg/telemetry"
)

// HandlerFunc executes one tool call against a session. A *tools.Response
// carries every caller-visible outcome, success or failure; a non-nil error
// is reserved for infrastructure faults the caller must not see verbatim.
type HandlerFunc func(ctx context.Context, s *Session, args map[string]any) (*tools.Response, error)

// Dispatcher routes granted tool calls to their handlers, enforcing the
// availability boundary and recording telemetry around every execution.
type Dispatcher struct {
	handlers map[string]HandlerFunc
	gate     Gate
	reporter telemetry.Reporter
	logger   *slog.Logger
	now      func() time.Time
}

func NewDispatcher(gate Gate, reporter telemetry.Reporter, logger *slog.Logger) *Dispatcher {
	if gate == nil {
		panic("dispatcher: gate must not be nil")
	}
	if reporter == nil {
		reporter = telemetry.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		handlers: make(map[string]HandlerFunc),
		gate:     gate,
		reporter: reporter,
		logger:   logger,
		now:      time.Now,
	}
}

// Register binds a handler to a tool name, replacing any previous binding.
func (d *Dispatcher) Register(name string, h HandlerFunc) {
	if name == "" || h == nil {
		panic("dispatcher: register requires a name and a handler")
	}
	d.handlers[name] = h
}

// Dispatch runs one tool call for a session. Ungranted tools produce a
// structured failure the model can act on; a granted tool with no registered
// handler is a deployment defect and comes back as an error.
func (d *Dispatcher) Dispatch(ctx context.Context, s *Session, toolName string, args map[string]any) (*tools.Response, error) {
	if s == nil {
		return nil, fmt.Errorf("dispatch: session is required")
	}
	// An empty name is a wiring defect in the caller, not a model mistake.
	if strings.TrimSpace(toolName) == "" {
		return nil, fmt.Errorf("dispatch: tool name is required")
	}
	if s.Status() != StatusActive {
		return nil, fmt.Errorf("dispatch: session %s has ended", s.ID())
	}

	if !s.HasTool(toolName) {
		if s.InCatalog(toolName) {
			return tools.Failure(fmt.Sprintf("The tool %q is not available yet. Use %s to request it first.", toolName, tools.NameRequestTool)), nil
		}
		return tools.Failure(fmt.Sprintf("Unknown tool %q.", toolName)), nil
	}

	handler, ok := d.handlers[toolName]
	if !ok {
		return nil, fmt.Errorf("dispatch: tool %q is granted but has no handler registered", toolName)
	}

	start := d.now()
	resp, err := handler(ctx, s, args)
	elapsed := d.now().Sub(start)

	d.reporter.Breadcrumb("tool executed", "tool", map[string]any{
		"tool":        toolName,
		"session_id":  s.ID(),
		"duration_ms": elapsed.Milliseconds(),
		"success":     err == nil && resp != nil && resp.Success,
	})

	if err != nil {
		d.reporter.ReportError(err, map[string]any{
			"tool":       toolName,
			"session_id": s.ID(),
			"arg_keys":   telemetry.RedactKeys(args),
		})
		return nil, fmt.Errorf("execute %s: %w", toolName, err)
	}
	if resp == nil {
		return nil, fmt.Errorf("execute %s: handler returned no response", toolName)
	}

	if resp.Success {
		if err := d.gate.Advance(ctx, s, toolName); err != nil {
			// The tool itself succeeded; a stalled stage transition is
			// reported but must not turn the result into a failure.
			d.reporter.ReportError(err, map[string]any{
				"tool":       toolName,
				"session_id": s.ID(),
			})
			d.logger.Error("stage advance failed", "session_id", s.ID(), "tool", toolName, "error", err)
		}
	}

	d.logger.Info("tool dispatched",
		"session_id", s.ID(),
		"tool", toolName,
		"success", resp.Success,
		"duration_ms", elapsed.Milliseconds(),
	)
	return resp, nil
}
