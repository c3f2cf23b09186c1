// Package store defines the collaborator interfaces the session core consumes
// (business/service/tool/prompt repositories, quote and booking engines,
// customer store, notifications, durable session storage) together with the
// domain types that cross those boundaries.
package store

import (
	"context"
	"time"

	"github.com/mesieou/skedy-ai-sub002/pkg/agent/tools"
)

// Business is the tenant snapshot bound to a session at call start.
type Business struct {
	ID          string
	AccountID   string
	Name        string
	Description string
	PhoneNumber string
	Email       string
	Address     string
	Timezone    string
	Currency    string
}

// Service is one bookable offering with its quoting requirements.
type Service struct {
	ID              string
	BusinessID      string
	Name            string
	Description     string
	Requirements    []string
	JobScopeOptions []string
	HourlyRate      float64
	DepositRate     float64
}

// Prompt is an active instruction template for a business.
type Prompt struct {
	Name    string
	Content string
	Version string
}

// Customer identity. Phone number is the canonical identifier.
type Customer struct {
	ID          string
	Name        string
	PhoneNumber string
	Email       string
}

// QuoteRequest captures the inputs a quote was calculated from.
type QuoteRequest struct {
	ServiceID   string         `json:"service_id,omitempty"`
	ServiceName string         `json:"service_name"`
	JobScope    string         `json:"job_scope,omitempty"`
	Fields      map[string]any `json:"fields,omitempty"`
}

// QuoteResult is one priced quote produced during a call.
type QuoteResult struct {
	QuoteID             string  `json:"quote_id"`
	BusinessID          string  `json:"business_id,omitempty"`
	ServiceName         string  `json:"service_name"`
	TotalEstimateAmount float64 `json:"total_estimate_amount"`
	DepositAmount       float64 `json:"deposit_amount"`
	Currency            string  `json:"currency"`
}

// Booking is the result of a successful create_booking.
type Booking struct {
	ID         string
	QuoteID    string
	CustomerID string
	Date       string
	Time       string
	Status     string
}

// Interaction is one conversational turn, optionally annotated with the tool
// call it carried.
type Interaction struct {
	Role       string    `json:"role"`
	Content    string    `json:"content"`
	ToolName   string    `json:"tool_name,omitempty"`
	ToolCallID string    `json:"tool_call_id,omitempty"`
	At         time.Time `json:"at"`
}

// TokenUsage counters are monotonically increasing per session.
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

func (u *TokenUsage) Add(other TokenUsage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.TotalTokens += other.TotalTokens
}

// BusinessStore resolves tenants from inbound call metadata.
type BusinessStore interface {
	GetBusinessByAccountID(ctx context.Context, accountID string) (*Business, error)
	// CustomerFacingInfo renders the business facts a caller may be told.
	CustomerFacingInfo(b *Business) string
}

type ServiceStore interface {
	ListServiceNames(ctx context.Context, businessID string) ([]string, error)
	GetService(ctx context.Context, businessID, name string) (*Service, error)
}

type ToolCatalogStore interface {
	ListActiveToolNames(ctx context.Context, businessID string) ([]string, error)
	GetToolsByNames(ctx context.Context, businessID string, names []string) ([]tools.Tool, error)
}

type PromptStore interface {
	GetActivePrompt(ctx context.Context, businessID, kind string) (*Prompt, error)
}

type QuoteEngine interface {
	Calculate(ctx context.Context, req *QuoteRequest, svc *Service, b *Business) (*QuoteResult, error)
}

type BookingEngine interface {
	CheckDayAvailability(ctx context.Context, businessID, date string) ([]string, error)
	CreateBooking(ctx context.Context, req *QuoteRequest, quote *QuoteResult, customerID, date, timeOfDay string) (*Booking, error)
}

type CustomerStore interface {
	// CreateOrFindCustomer returns the customer and whether it already existed.
	CreateOrFindCustomer(ctx context.Context, c *Customer) (*Customer, bool, error)
}

// PaymentLinkRequest carries what the notification channel needs; it is
// deliberately flat so senders stay decoupled from the session aggregate.
type PaymentLinkRequest struct {
	BusinessName  string
	CustomerPhone string
	QuoteID       string
	Amount        float64
	Currency      string
	Date          string
	Time          string
}

type NotificationSender interface {
	SendPaymentLink(ctx context.Context, req PaymentLinkRequest) (string, error)
}

// SessionRecord is the serializable snapshot written to the durable side
// store on every sync-worthy mutation and as the terminal record on call end.
type SessionRecord struct {
	ID                  string         `json:"id"`
	BusinessID          string         `json:"business_id"`
	CustomerPhoneNumber string         `json:"customer_phone_number,omitempty"`
	CustomerID          string         `json:"customer_id,omitempty"`
	Status              string         `json:"status"`
	Channel             string         `json:"channel"`
	Stage               string         `json:"stage"`
	GrantedToolNames    []string       `json:"granted_tool_names,omitempty"`
	AllToolNames        []string       `json:"all_tool_names,omitempty"`
	AIInstructions      string         `json:"ai_instructions,omitempty"`
	Quotes              []QuoteResult  `json:"quotes,omitempty"`
	SelectedQuoteID     string         `json:"selected_quote_id,omitempty"`
	SelectedQuoteReq    *QuoteRequest  `json:"selected_quote_request,omitempty"`
	Interactions        []Interaction  `json:"interactions,omitempty"`
	TokenUsage          TokenUsage     `json:"token_usage"`
	StartedAt           time.Time      `json:"started_at"`
	EndedAt             *time.Time     `json:"ended_at,omitempty"`
	DurationInMinutes   float64        `json:"duration_in_minutes,omitempty"`
}

// DurableSessionStore is the crash-recovery/cross-process side store. Save,
// Delete, and ExtendTTL are fire-and-forget from the core's perspective; only
// Load is used synchronously, on registry-miss fallback. The store is
// eventually consistent and never the source of truth for a live session.
type DurableSessionStore interface {
	Save(ctx context.Context, rec *SessionRecord) error
	Load(ctx context.Context, id, businessID string) (*SessionRecord, error)
	Delete(ctx context.Context, id, businessID string) error
	ExtendTTL(ctx context.Context, id, businessID string, seconds int) error
}
