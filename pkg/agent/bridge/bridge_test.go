package bridge

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mesieou/skedy-ai-sub002/pkg/agent/session"
	"github.com/mesieou/skedy-ai-sub002/pkg/agent/tools"
	"github.com/mesieou/skedy-ai-sub002/pkg/store"
	"github.com/mesieou/skedy-ai-sub002/pkg/telemetry"
)

// upstreamStub plays the realtime API: it records every frame the bridge
// sends and lets the test inject server events.
type upstreamStub struct {
	srv  *httptest.Server
	recv chan []byte
	send chan []byte

	mu   sync.Mutex
	auth string
}

func newUpstreamStub(t *testing.T) *upstreamStub {
	t.Helper()
	stub := &upstreamStub{
		recv: make(chan []byte, 16),
		send: make(chan []byte, 16),
	}
	upgrader := websocket.Upgrader{}
	stub.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		stub.mu.Lock()
		stub.auth = r.Header.Get("Authorization")
		stub.mu.Unlock()

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		go func() {
			for msg := range stub.send {
				if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
					return
				}
			}
			conn.Close()
		}()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			stub.recv <- data
		}
	}))
	t.Cleanup(stub.srv.Close)
	return stub
}

func (s *upstreamStub) wsURL() string {
	return "ws" + strings.TrimPrefix(s.srv.URL, "http")
}

func (s *upstreamStub) authHeader() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.auth
}

func (s *upstreamStub) next(t *testing.T) map[string]any {
	t.Helper()
	select {
	case data := <-s.recv:
		var msg map[string]any
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("bridge sent invalid json: %v", err)
		}
		return msg
	case <-time.After(3 * time.Second):
		t.Fatalf("timed out waiting for a bridge frame")
		return nil
	}
}

type stubGate struct {
	grantOnAdvance *tools.Tool
}

func (g *stubGate) InitialGrant(ctx context.Context, businessID string) ([]tools.Tool, error) {
	return nil, nil
}

func (g *stubGate) RequestGrant(ctx context.Context, s *session.Session, toolName, serviceName string) (session.GrantOutcome, error) {
	return session.UnknownTool, nil
}

func (g *stubGate) Advance(ctx context.Context, s *session.Session, completedTool string) error {
	if g.grantOnAdvance != nil {
		s.AppendGrantedTool(*g.grantOnAdvance)
	}
	return nil
}

// trackingReporter records error reports so tests can assert on them.
type trackingReporter struct {
	mu     sync.Mutex
	errors []error
	ctxs   []map[string]any
}

func (r *trackingReporter) Breadcrumb(message, category string, data map[string]any) {}

func (r *trackingReporter) ReportError(err error, context map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors = append(r.errors, err)
	r.ctxs = append(r.ctxs, context)
}

func (r *trackingReporter) reported() ([]error, []map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.errors...), append([]map[string]any(nil), r.ctxs...)
}

func newBridgeFixture(t *testing.T, stub *upstreamStub, gate session.Gate, handler session.HandlerFunc, reporter telemetry.Reporter) (*Bridge, *session.Session, *session.CredentialPool, chan string) {
	t.Helper()
	sess, err := session.New(session.Params{
		ID:       "call_1",
		Business: &store.Business{ID: "biz_1", Name: "Tidy Pools"},
		AllToolNames: []string{
			tools.NameGetServiceDetails, tools.NameRequestTool,
		},
		AIInstructions: "Greet the caller.",
		InitialTools:   []tools.Tool{{Name: tools.NameGetServiceDetails}},
	})
	if err != nil {
		t.Fatalf("new session: %v", err)
	}

	dispatcher := session.NewDispatcher(gate, telemetry.Nop{}, nil)
	if handler != nil {
		dispatcher.Register(tools.NameGetServiceDetails, handler)
	}

	pool, err := session.NewCredentialPool([]string{"sk-test-1"})
	if err != nil {
		t.Fatalf("new pool: %v", err)
	}

	closed := make(chan string, 1)
	b := New(Config{
		RealtimeURL: stub.wsURL(),
		Model:       "gpt-realtime",
		Voice:       "alloy",
	}, sess, dispatcher, pool, reporter, nil, func(id string) { closed <- id })
	sess.BindConnection(b)
	return b, sess, pool, closed
}

func TestBridgeDialPushesInitialConfiguration(t *testing.T) {
	stub := newUpstreamStub(t)
	b, _, _, _ := newBridgeFixture(t, stub, &stubGate{}, nil, telemetry.Nop{})

	if err := b.Dial(context.Background()); err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer b.Close()

	first := stub.next(t)
	if first["type"] != "session.update" {
		t.Fatalf("first frame type = %v, want session.update", first["type"])
	}
	if got := stub.authHeader(); got != "Bearer sk-test-1" {
		t.Errorf("authorization = %q", got)
	}

	sessionObj, _ := first["session"].(map[string]any)
	if sessionObj["instructions"] != "Greet the caller." {
		t.Errorf("instructions = %v", sessionObj["instructions"])
	}
	toolsArr, _ := sessionObj["tools"].([]any)
	if len(toolsArr) != 1 {
		t.Errorf("initial tool inventory = %v", toolsArr)
	}
}

func TestBridgeFunctionCallRoundTrip(t *testing.T) {
	stub := newUpstreamStub(t)
	handler := func(ctx context.Context, s *session.Session, args map[string]any) (*tools.Response, error) {
		return &tools.Response{Success: true, Message: "Found it.", Data: map[string]any{"service_name": args["service_name"]}}, nil
	}
	b, sess, _, _ := newBridgeFixture(t, stub, &stubGate{}, handler, telemetry.Nop{})

	if err := b.Dial(context.Background()); err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer b.Close()
	stub.next(t) // initial session.update

	stub.send <- []byte(`{"type":"response.function_call_arguments.done","call_id":"call_abc","name":"get_service_details","arguments":"{\"service_name\":\"Pool Cleaning\"}"}`)

	result := stub.next(t)
	if result["type"] != "conversation.item.create" {
		t.Fatalf("frame type = %v, want conversation.item.create", result["type"])
	}
	item, _ := result["item"].(map[string]any)
	if item["call_id"] != "call_abc" {
		t.Errorf("call_id = %v", item["call_id"])
	}
	var resp tools.Response
	if err := json.Unmarshal([]byte(item["output"].(string)), &resp); err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if !resp.Success || resp.Data["service_name"] != "Pool Cleaning" {
		t.Errorf("tool response = %+v", resp)
	}

	if _, pending := sess.PendingToolExecution(); !pending {
		t.Errorf("no pending tool execution after dispatch")
	}

	stub.send <- []byte(`{"type":"response.done","response":{"usage":{"input_tokens":100,"output_tokens":20,"total_tokens":120}}}`)

	next := stub.next(t)
	if next["type"] != "response.create" {
		t.Errorf("frame after turn complete = %v, want response.create", next["type"])
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, pending := sess.PendingToolExecution(); !pending {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if _, pending := sess.PendingToolExecution(); pending {
		t.Errorf("pending tool execution not cleared at turn completion")
	}
	if sess.TokenUsage().TotalTokens != 120 {
		t.Errorf("token usage = %+v", sess.TokenUsage())
	}
}

func TestBridgePushesInventoryBeforeResultWhenGrantsChange(t *testing.T) {
	stub := newUpstreamStub(t)
	gate := &stubGate{grantOnAdvance: &tools.Tool{Name: tools.NameRequestTool}}
	handler := func(ctx context.Context, s *session.Session, args map[string]any) (*tools.Response, error) {
		return &tools.Response{Success: true, Message: "Found it."}, nil
	}
	b, _, _, _ := newBridgeFixture(t, stub, gate, handler, telemetry.Nop{})

	if err := b.Dial(context.Background()); err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer b.Close()
	stub.next(t) // initial session.update

	stub.send <- []byte(`{"type":"response.function_call_arguments.done","call_id":"call_abc","name":"get_service_details","arguments":"{}"}`)

	first := stub.next(t)
	if first["type"] != "session.update" {
		t.Fatalf("frame after grant change = %v, want session.update before the result", first["type"])
	}
	second := stub.next(t)
	if second["type"] != "conversation.item.create" {
		t.Errorf("second frame = %v, want conversation.item.create", second["type"])
	}
}

func TestBridgeMalformedArgumentsStillAnswersTheCall(t *testing.T) {
	stub := newUpstreamStub(t)
	reporter := &trackingReporter{}
	b, _, _, _ := newBridgeFixture(t, stub, &stubGate{}, nil, reporter)

	if err := b.Dial(context.Background()); err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer b.Close()
	stub.next(t) // initial session.update

	stub.send <- []byte(`{"type":"response.function_call_arguments.done","call_id":"call_abc","name":"get_service_details","arguments":"{not json"}`)

	result := stub.next(t)
	if result["type"] != "conversation.item.create" {
		t.Fatalf("frame type = %v", result["type"])
	}
	item, _ := result["item"].(map[string]any)
	var resp tools.Response
	if err := json.Unmarshal([]byte(item["output"].(string)), &resp); err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if resp.Success {
		t.Errorf("malformed arguments reported as success")
	}
	if resp.Message == "" {
		t.Errorf("failure carries no message")
	}

	errs, ctxs := reporter.reported()
	if len(errs) != 1 {
		t.Fatalf("reported errors = %d, want 1", len(errs))
	}
	if ctxs[0]["tool"] != "get_service_details" || ctxs[0]["call_id"] != "call_abc" {
		t.Errorf("report context = %v", ctxs[0])
	}
}

func TestBridgeClosedUpstreamEndsSessionAndReleasesCredential(t *testing.T) {
	stub := newUpstreamStub(t)
	b, sess, pool, closed := newBridgeFixture(t, stub, &stubGate{}, nil, telemetry.Nop{})

	if err := b.Dial(context.Background()); err != nil {
		t.Fatalf("dial: %v", err)
	}
	stub.next(t) // initial session.update
	if usage := pool.Usage(); usage[0] != 1 {
		t.Fatalf("credential not assigned: %v", usage)
	}

	close(stub.send) // server closes the socket

	select {
	case id := <-closed:
		if id != "call_1" {
			t.Errorf("closed session id = %q", id)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("close callback never fired")
	}
	if sess.Status() != session.StatusEnded {
		t.Errorf("session status = %s, want ended", sess.Status())
	}
	if usage := pool.Usage(); usage[0] != 0 {
		t.Errorf("credential not released: %v", usage)
	}
}
