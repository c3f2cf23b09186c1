package gateway

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/mesieou/skedy-ai-sub002/pkg/agent"
	"github.com/mesieou/skedy-ai-sub002/pkg/agent/session"
	"github.com/mesieou/skedy-ai-sub002/pkg/gateway/mw"
)

type startCallRequest struct {
	CallID      string `json:"call_id"`
	AccountID   string `json:"account_id"`
	CallerPhone string `json:"caller_phone,omitempty"`
	Channel     string `json:"channel,omitempty"`
}

type startCallResponse struct {
	SessionID  string `json:"session_id"`
	BusinessID string `json:"business_id"`
	Stage      string `json:"stage"`
	Status     string `json:"status"`
}

// CallsHandler is the telephony provider's webhook surface: call started,
// call ended, call status.
type CallsHandler struct {
	Receptionist *agent.Receptionist
	Logger       *slog.Logger
}

func (h CallsHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req startCallRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&req); err != nil {
		mw.WriteJSONError(w, http.StatusBadRequest, "invalid_request", "invalid json body")
		return
	}
	if strings.TrimSpace(req.CallID) == "" {
		mw.WriteJSONError(w, http.StatusBadRequest, "invalid_request", "call_id is required")
		return
	}
	if strings.TrimSpace(req.AccountID) == "" {
		mw.WriteJSONError(w, http.StatusBadRequest, "invalid_request", "account_id is required")
		return
	}

	channel := session.Channel(req.Channel)
	switch channel {
	case "", session.ChannelPhone, session.ChannelWhatsApp, session.ChannelWebsite:
	default:
		mw.WriteJSONError(w, http.StatusBadRequest, "invalid_request", "unsupported channel")
		return
	}

	sess, err := h.Receptionist.StartCall(r.Context(), agent.StartCallParams{
		CallID:      req.CallID,
		AccountID:   req.AccountID,
		CallerPhone: req.CallerPhone,
		Channel:     channel,
	})
	if err != nil {
		reqID, _ := mw.RequestIDFrom(r.Context())
		h.Logger.Error("start call failed", "request_id", reqID, "call_id", req.CallID, "error", err)
		mw.WriteJSONError(w, http.StatusBadGateway, "api_error", "could not start the call")
		return
	}

	writeJSON(w, http.StatusCreated, startCallResponse{
		SessionID:  sess.ID(),
		BusinessID: sess.BusinessID(),
		Stage:      string(sess.Stage()),
		Status:     string(sess.Status()),
	})
}

func (h CallsHandler) End(w http.ResponseWriter, r *http.Request) {
	callID := r.PathValue("id")
	if err := h.Receptionist.EndCall(r.Context(), callID); err != nil {
		mw.WriteJSONError(w, http.StatusInternalServerError, "api_error", "could not end the call")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h CallsHandler) Status(w http.ResponseWriter, r *http.Request) {
	callID := r.PathValue("id")
	rec, err := h.Receptionist.LookupCall(r.Context(), callID, r.URL.Query().Get("business_id"))
	if err != nil {
		mw.WriteJSONError(w, http.StatusInternalServerError, "api_error", "could not look up the call")
		return
	}
	if rec == nil {
		mw.WriteJSONError(w, http.StatusNotFound, "not_found", "unknown call")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
