// Package bridge maintains the websocket link between a session and the
// upstream realtime voice API: configuration push, tool-call exchange, and
// turn lifecycle.
package bridge

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mesieou/skedy-ai-sub002/pkg/agent/tools"
	"github.com/mesieou/skedy-ai-sub002/pkg/store"
)

type DecodeError struct {
	Code    string
	Message string
	Param   string
}

func (e *DecodeError) Error() string {
	if e == nil {
		return ""
	}
	if strings.TrimSpace(e.Param) == "" {
		return e.Message
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Param)
}

func badFrame(message, param string) *DecodeError {
	return &DecodeError{Code: "bad_frame", Message: message, Param: param}
}

// --- upstream -> gateway events ---

type ServerSessionCreated struct {
	Type      string `json:"type"`
	SessionID string `json:"session,omitempty"`
}

// ServerFunctionCallDone is the upstream's completed tool invocation:
// arguments have finished streaming and are delivered as one JSON string.
type ServerFunctionCallDone struct {
	Type      string `json:"type"`
	CallID    string `json:"call_id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type ResponseUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

type ResponseOutputItem struct {
	Type       string `json:"type"`
	Role       string `json:"role,omitempty"`
	Name       string `json:"name,omitempty"`
	CallID     string `json:"call_id,omitempty"`
	Transcript string `json:"transcript,omitempty"`
}

type ServerResponseDone struct {
	Type     string `json:"type"`
	Response struct {
		Usage  *ResponseUsage       `json:"usage,omitempty"`
		Output []ResponseOutputItem `json:"output,omitempty"`
	} `json:"response"`
}

type ServerErrorEvent struct {
	Type  string `json:"type"`
	Error struct {
		Code    string `json:"code,omitempty"`
		Message string `json:"message"`
	} `json:"error"`
}

// UnknownEvent preserves event types this gateway does not act on, so the
// read loop can log and move on.
type UnknownEvent struct {
	Type string
	Raw  json.RawMessage
}

// DecodeServerEvent parses one upstream frame into its typed event.
func DecodeServerEvent(data []byte) (any, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, badFrame("invalid json frame", "")
	}
	typ := strings.TrimSpace(envelope.Type)
	if typ == "" {
		return nil, badFrame("missing type", "type")
	}

	switch typ {
	case "session.created":
		var msg ServerSessionCreated
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badFrame("invalid session.created", "")
		}
		return msg, nil
	case "response.function_call_arguments.done":
		var msg ServerFunctionCallDone
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badFrame("invalid function_call_arguments.done", "")
		}
		if strings.TrimSpace(msg.CallID) == "" {
			return nil, badFrame("function_call_arguments.done.call_id is required", "call_id")
		}
		if strings.TrimSpace(msg.Name) == "" {
			return nil, badFrame("function_call_arguments.done.name is required", "name")
		}
		return msg, nil
	case "response.done":
		var msg ServerResponseDone
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badFrame("invalid response.done", "")
		}
		return msg, nil
	case "error":
		var msg ServerErrorEvent
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badFrame("invalid error event", "")
		}
		return msg, nil
	default:
		return UnknownEvent{Type: typ, Raw: append(json.RawMessage(nil), data...)}, nil
	}
}

// --- gateway -> upstream messages ---

type sessionConfig struct {
	Instructions string                     `json:"instructions,omitempty"`
	Voice        string                     `json:"voice,omitempty"`
	Tools        []tools.FunctionDefinition `json:"tools"`
	ToolChoice   string                     `json:"tool_choice,omitempty"`
}

type sessionUpdate struct {
	Type    string        `json:"type"`
	Session sessionConfig `json:"session"`
}

// NewSessionUpdate builds the configuration push that sets instructions and
// the currently granted tool inventory. The tools array is always present,
// even when empty, so the upstream replaces rather than merges.
func NewSessionUpdate(instructions, voice string, granted []tools.Tool) ([]byte, error) {
	msg := sessionUpdate{
		Type: "session.update",
		Session: sessionConfig{
			Instructions: instructions,
			Voice:        voice,
			Tools:        tools.Definitions(granted),
			ToolChoice:   "auto",
		},
	}
	if msg.Session.Tools == nil {
		msg.Session.Tools = []tools.FunctionDefinition{}
	}
	return json.Marshal(msg)
}

type conversationItem struct {
	Type   string `json:"type"`
	CallID string `json:"call_id"`
	Output string `json:"output"`
}

type conversationItemCreate struct {
	Type string           `json:"type"`
	Item conversationItem `json:"item"`
}

// NewFunctionResult wraps a tool response as the function_call_output item
// answering the given call.
func NewFunctionResult(callID string, resp *tools.Response) ([]byte, error) {
	payload, err := json.Marshal(resp)
	if err != nil {
		return nil, fmt.Errorf("encode tool response: %w", err)
	}
	return json.Marshal(conversationItemCreate{
		Type: "conversation.item.create",
		Item: conversationItem{
			Type:   "function_call_output",
			CallID: callID,
			Output: string(payload),
		},
	})
}

type responseCreate struct {
	Type string `json:"type"`
}

// NewResponseCreate asks the upstream to speak the next turn.
func NewResponseCreate() ([]byte, error) {
	return json.Marshal(responseCreate{Type: "response.create"})
}

// UsageOf converts upstream usage counters to the session's accounting type.
func UsageOf(u *ResponseUsage) store.TokenUsage {
	if u == nil {
		return store.TokenUsage{}
	}
	return store.TokenUsage{
		InputTokens:  u.InputTokens,
		OutputTokens: u.OutputTokens,
		TotalTokens:  u.TotalTokens,
	}
}
