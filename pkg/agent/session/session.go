// Package session implements the per-call orchestration core: the session
// aggregate, the live registry, tool-availability policies, and the tool
// dispatcher.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/mesieou/skedy-ai-sub002/pkg/agent/tools"
	"github.com/mesieou/skedy-ai-sub002/pkg/store"
)

type Status string

const (
	StatusActive Status = "active"
	StatusEnded  Status = "ended"
)

type Channel string

const (
	ChannelPhone    Channel = "phone"
	ChannelWhatsApp Channel = "whatsapp"
	ChannelWebsite  Channel = "website"
)

// Stage is the position in the conversation state machine.
type Stage string

const (
	StageServiceSelection Stage = "service_selection"
	StageQuoting          Stage = "quoting"
	StageAvailability     Stage = "availability"
	StageUserManagement   Stage = "user_management"
	StageBooking          Stage = "booking"
	StageCompleted        Stage = "completed"
)

// Connection is the realtime transport handle a session exclusively owns.
type Connection interface {
	Close() error
}

// PendingToolExecution is the at-most-one in-flight tool record, cleared once
// the model acknowledges receipt at turn completion.
type PendingToolExecution struct {
	Name          string
	Result        map[string]any
	Schema        *tools.JSONSchema
	SchemaVersion string
}

type Params struct {
	ID                  string
	Business            *store.Business
	CustomerPhoneNumber string
	Channel             Channel
	Stage               Stage
	AllToolNames        []string
	AIInstructions      string
	InitialTools        []tools.Tool
	Durable             store.DurableSessionStore
	Logger              *slog.Logger
	Now                 func() time.Time
	SaveTimeout         time.Duration
}

// Session is the aggregate root for one live call. All fields are mutated
// through methods; designated mutations trigger a fire-and-forget durable
// save. A session's fields are owned by its event-processing flow — the
// internal mutex guards against registry reads, not concurrent handlers.
type Session struct {
	mu sync.Mutex

	id                  string
	businessID          string
	business            *store.Business
	customerPhoneNumber string
	customerID          string
	customer            *store.Customer
	status              Status
	channel             Channel
	stage               Stage
	granted             []tools.Tool
	allToolNames        []string
	aiInstructions      string
	serviceContext      string
	quotes              []store.QuoteResult
	selectedQuote       *store.QuoteResult
	selectedQuoteReq    *store.QuoteRequest
	pending             *PendingToolExecution
	interactions        []store.Interaction
	tokenUsage          store.TokenUsage
	startedAt           time.Time
	endedAt             time.Time
	durationInMinutes   float64
	conn                Connection

	durable     store.DurableSessionStore
	logger      *slog.Logger
	now         func() time.Time
	saveTimeout time.Duration
}

func New(p Params) (*Session, error) {
	if strings.TrimSpace(p.ID) == "" {
		return nil, fmt.Errorf("session id is required")
	}
	if p.Business == nil || strings.TrimSpace(p.Business.ID) == "" {
		return nil, fmt.Errorf("business is required")
	}
	if p.Channel == "" {
		p.Channel = ChannelPhone
	}
	if p.Stage == "" {
		p.Stage = StageServiceSelection
	}
	if p.Logger == nil {
		p.Logger = slog.Default()
	}
	if p.Now == nil {
		p.Now = time.Now
	}
	if p.SaveTimeout <= 0 {
		p.SaveTimeout = 5 * time.Second
	}

	return &Session{
		id:                  p.ID,
		businessID:          p.Business.ID,
		business:            p.Business,
		customerPhoneNumber: strings.TrimSpace(p.CustomerPhoneNumber),
		status:              StatusActive,
		channel:             p.Channel,
		stage:               p.Stage,
		granted:             append([]tools.Tool(nil), p.InitialTools...),
		allToolNames:        append([]string(nil), p.AllToolNames...),
		aiInstructions:      p.AIInstructions,
		startedAt:           p.Now(),
		durable:             p.Durable,
		logger:              p.Logger,
		now:                 p.Now,
		saveTimeout:         p.SaveTimeout,
	}, nil
}

func (s *Session) ID() string         { return s.id }
func (s *Session) BusinessID() string { return s.businessID }

func (s *Session) Business() *store.Business { return s.business }

func (s *Session) Channel() Channel { return s.channel }

func (s *Session) CustomerPhoneNumber() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.customerPhoneNumber
}

func (s *Session) Customer() *store.Customer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.customer
}

func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Session) Stage() Stage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stage
}

func (s *Session) Instructions() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.aiInstructions
}

func (s *Session) StartedAt() time.Time { return s.startedAt }

func (s *Session) AllToolNames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.allToolNames...)
}

// GrantedTools returns a copy of the currently exposed tool set.
func (s *Session) GrantedTools() []tools.Tool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]tools.Tool(nil), s.granted...)
}

func (s *Session) GrantedToolNames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.granted))
	for _, t := range s.granted {
		names = append(names, t.Name)
	}
	return names
}

func (s *Session) GrantedTool(name string) (tools.Tool, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.granted {
		if t.Name == name {
			return t, true
		}
	}
	return tools.Tool{}, false
}

func (s *Session) HasTool(name string) bool {
	_, ok := s.GrantedTool(name)
	return ok
}

func (s *Session) InCatalog(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range s.allToolNames {
		if n == name {
			return true
		}
	}
	return false
}

// AppendGrantedTool exposes one more tool. No-op if already granted.
func (s *Session) AppendGrantedTool(t tools.Tool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.granted {
		if existing.Name == t.Name {
			return
		}
	}
	s.granted = append(s.granted, t)
	s.persistLocked()
}

// ReplaceGrantedTools swaps the whole tool set, used on stage transitions.
func (s *Session) ReplaceGrantedTools(ts []tools.Tool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.granted = append([]tools.Tool(nil), ts...)
	s.persistLocked()
}

func (s *Session) SetStage(stage Stage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stage = stage
	s.persistLocked()
}

func (s *Session) SetCustomer(c *store.Customer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.customer = c
	if c != nil {
		s.customerID = c.ID
		if s.customerPhoneNumber == "" {
			s.customerPhoneNumber = c.PhoneNumber
		}
	}
	s.persistLocked()
}

// SetServiceContext records which service the caller is talking about. Tools
// with caller-dependent schemas resolve against this when no explicit service
// accompanies a grant request.
func (s *Session) SetServiceContext(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.serviceContext = name
}

func (s *Session) ServiceContext() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.serviceContext
}

func (s *Session) AppendQuote(q store.QuoteResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quotes = append(s.quotes, q)
	s.persistLocked()
}

func (s *Session) Quotes() []store.QuoteResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]store.QuoteResult(nil), s.quotes...)
}

// SelectQuote marks a quote as the active selection. The quote must already
// be present in the accumulated quote list.
func (s *Session) SelectQuote(quoteID string, req *store.QuoteRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.quotes {
		if s.quotes[i].QuoteID == quoteID {
			selected := s.quotes[i]
			s.selectedQuote = &selected
			s.selectedQuoteReq = req
			s.persistLocked()
			return nil
		}
	}
	return fmt.Errorf("quote %q is not part of this session", quoteID)
}

func (s *Session) SelectedQuote() (*store.QuoteResult, *store.QuoteRequest) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selectedQuote, s.selectedQuoteReq
}

func (s *Session) SetPendingToolExecution(p PendingToolExecution) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = &p
}

func (s *Session) ClearPendingToolExecution() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = nil
}

func (s *Session) PendingToolExecution() (PendingToolExecution, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil {
		return PendingToolExecution{}, false
	}
	return *s.pending, true
}

func (s *Session) AppendInteraction(role, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.interactions = append(s.interactions, store.Interaction{
		Role:    role,
		Content: content,
		At:      s.now(),
	})
	s.persistLocked()
}

// AnnotateLastInteraction attaches tool-call metadata to the most recent
// interaction entry.
func (s *Session) AnnotateLastInteraction(toolName, callID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.interactions) == 0 {
		return
	}
	last := &s.interactions[len(s.interactions)-1]
	last.ToolName = toolName
	last.ToolCallID = callID
	s.persistLocked()
}

func (s *Session) Interactions() []store.Interaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]store.Interaction(nil), s.interactions...)
}

func (s *Session) AddTokenUsage(u store.TokenUsage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokenUsage.Add(u)
	s.persistLocked()
}

func (s *Session) TokenUsage() store.TokenUsage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tokenUsage
}

// BindConnection hands the realtime transport to the session. The session
// owns it exclusively and releases it on End.
func (s *Session) BindConnection(conn Connection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn = conn
}

// End transitions the session to ended exactly once: stamps the lifecycle
// timestamps, closes the owned connection, and performs the terminal durable
// flush. Returns false if the session had already ended.
func (s *Session) End() bool {
	s.mu.Lock()
	if s.status == StatusEnded {
		s.mu.Unlock()
		return false
	}
	s.status = StatusEnded
	s.endedAt = s.now()
	s.durationInMinutes = s.endedAt.Sub(s.startedAt).Minutes()
	conn := s.conn
	s.conn = nil
	s.persistLocked()
	s.mu.Unlock()

	if conn != nil {
		if err := conn.Close(); err != nil {
			s.logger.Debug("closing session connection", "session_id", s.id, "error", err)
		}
	}
	return true
}

// Snapshot renders the serializable record written to durable storage.
func (s *Session) Snapshot() *store.SessionRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() *store.SessionRecord {
	rec := &store.SessionRecord{
		ID:                  s.id,
		BusinessID:          s.businessID,
		CustomerPhoneNumber: s.customerPhoneNumber,
		CustomerID:          s.customerID,
		Status:              string(s.status),
		Channel:             string(s.channel),
		Stage:               string(s.stage),
		AllToolNames:        append([]string(nil), s.allToolNames...),
		AIInstructions:      s.aiInstructions,
		Quotes:              append([]store.QuoteResult(nil), s.quotes...),
		Interactions:        append([]store.Interaction(nil), s.interactions...),
		TokenUsage:          s.tokenUsage,
		StartedAt:           s.startedAt,
		DurationInMinutes:   s.durationInMinutes,
	}
	for _, t := range s.granted {
		rec.GrantedToolNames = append(rec.GrantedToolNames, t.Name)
	}
	if s.selectedQuote != nil {
		rec.SelectedQuoteID = s.selectedQuote.QuoteID
	}
	rec.SelectedQuoteReq = s.selectedQuoteReq
	if !s.endedAt.IsZero() {
		ended := s.endedAt
		rec.EndedAt = &ended
	}
	return rec
}

// persistLocked schedules a fire-and-forget durable save of the current
// snapshot. Durable storage is eventually consistent; failures are logged,
// never surfaced to the mutation that triggered them.
func (s *Session) persistLocked() {
	if s.durable == nil {
		return
	}
	rec := s.snapshotLocked()
	timeout := s.saveTimeout
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := s.durable.Save(ctx, rec); err != nil {
			s.logger.Warn("session durable save failed", "session_id", rec.ID, "error", err)
		}
	}()
}
