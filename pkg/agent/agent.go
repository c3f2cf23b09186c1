// Package agent wires the receptionist together: tenant resolution, prompt
// rendering, session creation, and the realtime bridge lifecycle.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mesieou/skedy-ai-sub002/pkg/agent/bridge"
	"github.com/mesieou/skedy-ai-sub002/pkg/agent/prompt"
	"github.com/mesieou/skedy-ai-sub002/pkg/agent/session"
	"github.com/mesieou/skedy-ai-sub002/pkg/store"
	"github.com/mesieou/skedy-ai-sub002/pkg/telemetry"
)

const receptionistPromptKind = "receptionist"

type Params struct {
	Businesses store.BusinessStore
	Services   store.ServiceStore
	Catalog    store.ToolCatalogStore
	Prompts    store.PromptStore
	Durable    store.DurableSessionStore

	Registry   *session.Registry
	Gate       session.Gate
	Dispatcher *session.Dispatcher
	Pool       *session.CredentialPool

	Bridge   bridge.Config
	Reporter telemetry.Reporter
	Logger   *slog.Logger
}

// Receptionist starts and ends calls. One instance serves every tenant.
type Receptionist struct {
	p Params
}

func New(p Params) (*Receptionist, error) {
	switch {
	case p.Businesses == nil, p.Services == nil, p.Catalog == nil, p.Prompts == nil:
		return nil, fmt.Errorf("receptionist requires all store collaborators")
	case p.Registry == nil, p.Gate == nil, p.Dispatcher == nil, p.Pool == nil:
		return nil, fmt.Errorf("receptionist requires registry, gate, dispatcher, and pool")
	}
	if p.Reporter == nil {
		p.Reporter = telemetry.Nop{}
	}
	if p.Logger == nil {
		p.Logger = slog.Default()
	}
	return &Receptionist{p: p}, nil
}

type StartCallParams struct {
	CallID      string
	AccountID   string
	CallerPhone string
	Channel     session.Channel
}

// StartCall brings up a session for an inbound call: resolves the tenant,
// loads the tool catalog and prompt, registers the session, and dials the
// realtime upstream. Repeating a call id returns the already-live session.
func (r *Receptionist) StartCall(ctx context.Context, p StartCallParams) (*session.Session, error) {
	if strings.TrimSpace(p.CallID) == "" {
		return nil, fmt.Errorf("call id is required")
	}
	if existing, ok := r.p.Registry.Get(p.CallID); ok {
		return existing, nil
	}

	business, err := r.p.Businesses.GetBusinessByAccountID(ctx, p.AccountID)
	if err != nil {
		return nil, fmt.Errorf("resolve tenant: %w", err)
	}

	allToolNames, err := r.p.Catalog.ListActiveToolNames(ctx, business.ID)
	if err != nil {
		return nil, fmt.Errorf("load tool catalog: %w", err)
	}
	initial, err := r.p.Gate.InitialGrant(ctx, business.ID)
	if err != nil {
		return nil, fmt.Errorf("initial tool grant: %w", err)
	}

	serviceNames, err := r.p.Services.ListServiceNames(ctx, business.ID)
	if err != nil {
		return nil, fmt.Errorf("load services: %w", err)
	}
	promptRec, err := r.p.Prompts.GetActivePrompt(ctx, business.ID, receptionistPromptKind)
	if err != nil {
		return nil, fmt.Errorf("load prompt: %w", err)
	}
	instructions := prompt.Render(promptRec.Content, prompt.Values{
		BusinessName: business.Name,
		BusinessInfo: r.p.Businesses.CustomerFacingInfo(business),
		Services:     serviceNames,
		ToolNames:    allToolNames,
	})

	sess, err := session.New(session.Params{
		ID:                  p.CallID,
		Business:            business,
		CustomerPhoneNumber: p.CallerPhone,
		Channel:             p.Channel,
		AllToolNames:        allToolNames,
		AIInstructions:      instructions,
		InitialTools:        initial,
		Durable:             r.p.Durable,
		Logger:              r.p.Logger,
	})
	if err != nil {
		return nil, err
	}
	if !r.p.Registry.Add(sess) {
		if existing, ok := r.p.Registry.Get(p.CallID); ok {
			return existing, nil
		}
		return nil, fmt.Errorf("call %s raced registration", p.CallID)
	}

	br := bridge.New(r.p.Bridge, sess, r.p.Dispatcher, r.p.Pool, r.p.Reporter, r.p.Logger, r.p.Registry.ScheduleRemove)
	sess.BindConnection(br)
	if err := br.Dial(ctx); err != nil {
		sess.End()
		r.p.Registry.ScheduleRemove(sess.ID())
		return nil, fmt.Errorf("start call %s: %w", p.CallID, err)
	}

	r.p.Logger.Info("call started",
		"session_id", sess.ID(),
		"business_id", business.ID,
		"channel", sess.Channel(),
	)
	return sess, nil
}

// EndCall ends a live session. Unknown ids are a no-op so provider webhook
// retries stay harmless.
func (r *Receptionist) EndCall(ctx context.Context, callID string) error {
	sess, ok := r.p.Registry.Get(callID)
	if !ok {
		return nil
	}
	if sess.End() {
		r.p.Registry.ScheduleRemove(sess.ID())
		r.p.Logger.Info("call ended", "session_id", sess.ID())
	}
	return nil
}

// LookupCall resolves a session snapshot for status reads.
func (r *Receptionist) LookupCall(ctx context.Context, callID, businessID string) (*store.SessionRecord, error) {
	return r.p.Registry.Peek(ctx, callID, businessID)
}
