package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mesieou/skedy-ai-sub002/pkg/agent/session"
	"github.com/mesieou/skedy-ai-sub002/pkg/agent/tools"
	"github.com/mesieou/skedy-ai-sub002/pkg/telemetry"
)

// Connection states. Transitions are one-way: disconnected -> connecting ->
// open -> closed. A closed bridge is never reused; reconnection means a new
// bridge.
const (
	stateDisconnected int32 = iota
	stateConnecting
	stateOpen
	stateClosed
)

type Config struct {
	// RealtimeURL is the upstream websocket endpoint, without the model
	// query parameter.
	RealtimeURL string
	Model       string
	Voice       string

	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
}

// Bridge owns the websocket to the upstream realtime API for one session.
// All inbound events are processed on the single read loop goroutine, which
// is what serializes tool execution per session.
type Bridge struct {
	cfg        Config
	sess       *session.Session
	dispatcher *session.Dispatcher
	pool       *session.CredentialPool
	reporter   telemetry.Reporter
	logger     *slog.Logger

	state     atomic.Int32
	conn      *websocket.Conn
	writeMu   sync.Mutex
	closeOnce sync.Once

	poolIndex int

	// turnFunctionCalls counts function results sent since the last turn
	// completion; only touched on the read loop.
	turnFunctionCalls int

	// onClose is invoked once, after the session has ended and the
	// credential is back in the pool.
	onClose func(sessionID string)
}

func New(cfg Config, sess *session.Session, dispatcher *session.Dispatcher, pool *session.CredentialPool, reporter telemetry.Reporter, logger *slog.Logger, onClose func(sessionID string)) *Bridge {
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if reporter == nil {
		reporter = telemetry.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{
		cfg:        cfg,
		sess:       sess,
		dispatcher: dispatcher,
		pool:       pool,
		reporter:   reporter,
		logger:     logger,
		onClose:    onClose,
		poolIndex:  -1,
	}
}

// Dial reserves a credential, opens the websocket, pushes the initial
// session configuration, and starts the read loop. On any failure the
// credential goes straight back to the pool and the bridge is closed.
func (b *Bridge) Dial(ctx context.Context) error {
	if !b.state.CompareAndSwap(stateDisconnected, stateConnecting) {
		return fmt.Errorf("bridge for session %s already dialed", b.sess.ID())
	}

	key, index := b.pool.Assign()
	b.poolIndex = index

	endpoint, err := realtimeEndpoint(b.cfg.RealtimeURL, b.cfg.Model)
	if err != nil {
		b.failDial(err)
		return err
	}

	dialer := websocket.Dialer{HandshakeTimeout: b.cfg.HandshakeTimeout}
	header := http.Header{}
	header.Set("Authorization", "Bearer "+key)
	header.Set("OpenAI-Beta", "realtime=v1")

	conn, _, err := dialer.DialContext(ctx, endpoint, header)
	if err != nil {
		err = fmt.Errorf("dial realtime upstream: %w", err)
		b.failDial(err)
		return err
	}
	b.conn = conn
	b.state.Store(stateOpen)

	if err := b.PushToolInventory(); err != nil {
		err = fmt.Errorf("initial session configuration: %w", err)
		conn.Close()
		b.failDial(err)
		return err
	}

	go b.readLoop()
	b.logger.Info("realtime bridge open",
		"session_id", b.sess.ID(),
		"model", b.cfg.Model,
		"credential_index", index,
	)
	return nil
}

func (b *Bridge) failDial(err error) {
	b.state.Store(stateClosed)
	if b.poolIndex >= 0 {
		b.pool.Release(b.poolIndex)
		b.poolIndex = -1
	}
	b.reporter.ReportError(err, map[string]any{"session_id": b.sess.ID()})
}

func realtimeEndpoint(base, model string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse realtime url: %w", err)
	}
	q := u.Query()
	q.Set("model", model)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Close tears down the websocket. The read loop notices and runs the
// closed-path exactly once.
func (b *Bridge) Close() error {
	if b.state.Swap(stateClosed) == stateClosed {
		return nil
	}
	if b.conn != nil {
		return b.conn.Close()
	}
	return nil
}

func (b *Bridge) readLoop() {
	for {
		_, data, err := b.conn.ReadMessage()
		if err != nil {
			b.handleClosed(err)
			return
		}

		event, err := DecodeServerEvent(data)
		if err != nil {
			b.logger.Warn("undecodable upstream frame", "session_id", b.sess.ID(), "error", err)
			continue
		}

		switch ev := event.(type) {
		case ServerSessionCreated:
			b.logger.Debug("upstream session created", "session_id", b.sess.ID())
		case ServerFunctionCallDone:
			b.handleFunctionCall(ev)
		case ServerResponseDone:
			b.handleTurnComplete(ev)
		case ServerErrorEvent:
			b.reporter.ReportError(fmt.Errorf("upstream error %s: %s", ev.Error.Code, ev.Error.Message), map[string]any{
				"session_id": b.sess.ID(),
			})
			b.logger.Error("upstream error event",
				"session_id", b.sess.ID(),
				"code", ev.Error.Code,
				"message", ev.Error.Message,
			)
		case UnknownEvent:
			b.logger.Debug("ignoring upstream event", "session_id", b.sess.ID(), "type", ev.Type)
		}
	}
}

// handleFunctionCall executes one tool invocation end to end: parse
// arguments, dispatch, refresh the upstream tool inventory if the grant set
// changed, then answer the call. The model always gets a structured
// response, even for malformed arguments or infrastructure faults.
func (b *Bridge) handleFunctionCall(ev ServerFunctionCallDone) {
	ctx := context.Background()

	var args map[string]any
	var resp *tools.Response
	if err := json.Unmarshal([]byte(ev.Arguments), &args); err != nil && ev.Arguments != "" {
		b.reporter.ReportError(fmt.Errorf("malformed function call arguments: %w", err), map[string]any{
			"session_id": b.sess.ID(),
			"tool":       ev.Name,
			"call_id":    ev.CallID,
		})
		b.logger.Warn("malformed function call arguments",
			"session_id", b.sess.ID(),
			"tool", ev.Name,
			"call_id", ev.CallID,
			"error", err,
		)
		resp = tools.Failure(fmt.Sprintf("The arguments for %s were not valid JSON. Please try the call again.", ev.Name))
	} else {
		before := b.sess.GrantedToolNames()
		result, err := b.dispatcher.Dispatch(ctx, b.sess, ev.Name, args)
		if err != nil {
			b.reporter.ReportError(err, map[string]any{
				"session_id": b.sess.ID(),
				"tool":       ev.Name,
				"arg_keys":   telemetry.RedactKeys(args),
			})
			resp = tools.Failure("Something went wrong executing that. Please try again.")
		} else {
			resp = result
		}

		// A grant change must reach the upstream before the result does,
		// otherwise the model answers with a stale tool inventory.
		if grantsChanged(before, b.sess.GrantedToolNames()) {
			if err := b.PushToolInventory(); err != nil {
				b.logger.Error("tool inventory push failed", "session_id", b.sess.ID(), "error", err)
			}
		}
	}

	b.sess.AppendInteraction("tool", resp.Message)
	b.sess.AnnotateLastInteraction(ev.Name, ev.CallID)
	b.sess.SetPendingToolExecution(session.PendingToolExecution{
		Name:   ev.Name,
		Result: resp.Data,
	})

	if err := b.SendFunctionResult(ev.CallID, resp); err != nil {
		b.logger.Error("function result send failed", "session_id", b.sess.ID(), "call_id", ev.CallID, "error", err)
		return
	}
	b.turnFunctionCalls++
}

// handleTurnComplete books token usage, records the spoken transcript, and
// acknowledges any pending tool execution. When tool results were delivered
// this turn, the upstream is asked to produce the next one.
func (b *Bridge) handleTurnComplete(ev ServerResponseDone) {
	b.sess.AddTokenUsage(UsageOf(ev.Response.Usage))
	for _, item := range ev.Response.Output {
		if item.Type == "message" && item.Transcript != "" {
			b.sess.AppendInteraction("assistant", item.Transcript)
		}
	}
	b.sess.ClearPendingToolExecution()

	if b.turnFunctionCalls > 0 {
		b.turnFunctionCalls = 0
		if err := b.RequestNextTurn(); err != nil {
			b.logger.Error("next turn request failed", "session_id", b.sess.ID(), "error", err)
		}
	}
}

// handleClosed runs the teardown path exactly once, whichever side closed
// the socket first.
func (b *Bridge) handleClosed(cause error) {
	b.closeOnce.Do(func() {
		b.state.Store(stateClosed)
		b.conn.Close()
		if b.poolIndex >= 0 {
			b.pool.Release(b.poolIndex)
			b.poolIndex = -1
		}
		b.sess.End()
		b.logger.Info("realtime bridge closed", "session_id", b.sess.ID(), "cause", cause)
		if b.onClose != nil {
			b.onClose(b.sess.ID())
		}
	})
}

// PushToolInventory sends the current instructions and granted tool set to
// the upstream.
func (b *Bridge) PushToolInventory() error {
	msg, err := NewSessionUpdate(b.sess.Instructions(), b.cfg.Voice, b.sess.GrantedTools())
	if err != nil {
		return err
	}
	return b.write(msg)
}

// SendFunctionResult answers a tool call with its structured response.
func (b *Bridge) SendFunctionResult(callID string, resp *tools.Response) error {
	msg, err := NewFunctionResult(callID, resp)
	if err != nil {
		return err
	}
	return b.write(msg)
}

// RequestNextTurn asks the upstream to generate the next spoken response.
func (b *Bridge) RequestNextTurn() error {
	msg, err := NewResponseCreate()
	if err != nil {
		return err
	}
	return b.write(msg)
}

func (b *Bridge) write(msg []byte) error {
	if b.state.Load() != stateOpen {
		return fmt.Errorf("bridge for session %s is not open", b.sess.ID())
	}
	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	if err := b.conn.SetWriteDeadline(time.Now().Add(b.cfg.WriteTimeout)); err != nil {
		return err
	}
	return b.conn.WriteMessage(websocket.TextMessage, msg)
}

func grantsChanged(before, after []string) bool {
	if len(before) != len(after) {
		return true
	}
	seen := make(map[string]struct{}, len(before))
	for _, name := range before {
		seen[name] = struct{}{}
	}
	for _, name := range after {
		if _, ok := seen[name]; !ok {
			return true
		}
	}
	return false
}
