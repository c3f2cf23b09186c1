package session

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mesieou/skedy-ai-sub002/pkg/agent/tools"
	"github.com/mesieou/skedy-ai-sub002/pkg/store"
	"github.com/mesieou/skedy-ai-sub002/pkg/telemetry"
)

// Handlers implements the built-in receptionist tools on top of the store
// collaborators. Every method follows the dispatcher contract: caller
// mistakes come back as failure responses, infrastructure faults as errors.
type Handlers struct {
	Services       store.ServiceStore
	Quotes         store.QuoteEngine
	Bookings       store.BookingEngine
	Customers      store.CustomerStore
	Notifier       store.NotificationSender
	Gate           Gate
	Reporter       telemetry.Reporter
	MatchThreshold float64
	Logger         *slog.Logger
}

func (h *Handlers) reporter() telemetry.Reporter {
	if h.Reporter == nil {
		return telemetry.Nop{}
	}
	return h.Reporter
}

func (h *Handlers) logger() *slog.Logger {
	if h.Logger == nil {
		return slog.Default()
	}
	return h.Logger
}

// RegisterAll binds the built-in handlers to their catalog names.
func (h *Handlers) RegisterAll(d *Dispatcher) {
	d.Register(tools.NameGetServiceDetails, h.GetServiceDetails)
	d.Register(tools.NameGetQuote, h.GetQuote)
	d.Register(tools.NameCheckDayAvailability, h.CheckDayAvailability)
	d.Register(tools.NameCreateUser, h.CreateUser)
	d.Register(tools.NameCreateBooking, h.CreateBooking)
	d.Register(tools.NameRequestTool, h.RequestTool)
}

// GetServiceDetails resolves a caller-spoken service name against the
// catalog, tolerating transcription noise, and records the match as the
// session's service context.
func (h *Handlers) GetServiceDetails(ctx context.Context, s *Session, args map[string]any) (*tools.Response, error) {
	tool, _ := s.GrantedTool(tools.NameGetServiceDetails)

	requested := stringArg(args, "service_name")
	if requested == "" {
		return tools.BuildFailure(tool, "Which service are you asking about?", nil), nil
	}

	names, err := h.Services.ListServiceNames(ctx, s.BusinessID())
	if err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}
	if len(names) == 0 {
		return tools.BuildFailure(tool, "This business has no services configured yet.", nil), nil
	}

	matched, ok := tools.BestMatch(requested, names, h.MatchThreshold)
	if !ok {
		return tools.BuildFailure(tool,
			fmt.Sprintf("I couldn't find a service matching %q. Available services: %s.", requested, strings.Join(names, ", ")),
			map[string]any{"available_services": names}), nil
	}

	svc, err := h.Services.GetService(ctx, s.BusinessID(), matched)
	if err != nil {
		return nil, fmt.Errorf("get service %q: %w", matched, err)
	}
	s.SetServiceContext(svc.Name)

	return tools.BuildSuccess(tool, map[string]any{
		"service_name":      svc.Name,
		"description":       svc.Description,
		"requirements":      svc.Requirements,
		"job_scope_options": svc.JobScopeOptions,
		"hourly_rate":       svc.HourlyRate,
	}), nil
}

// GetQuote prices the job from the call arguments, accumulates the quote on
// the session, and selects it as the active one.
func (h *Handlers) GetQuote(ctx context.Context, s *Session, args map[string]any) (*tools.Response, error) {
	tool, _ := s.GrantedTool(tools.NameGetQuote)

	serviceName := stringArg(args, "service_name")
	if serviceName == "" {
		serviceName = s.ServiceContext()
	}
	if serviceName == "" {
		return tools.BuildFailure(tool, "Tell me which service you'd like a quote for first.", nil), nil
	}

	svc, err := h.Services.GetService(ctx, s.BusinessID(), serviceName)
	if err != nil {
		return tools.BuildFailure(tool, fmt.Sprintf("I couldn't find the service %q.", serviceName), nil), nil
	}

	for _, required := range svc.Requirements {
		if _, present := args[required]; !present {
			return tools.BuildFailure(tool, fmt.Sprintf("I still need %s to quote this job.", strings.ReplaceAll(required, "_", " ")), nil), nil
		}
	}

	req := &store.QuoteRequest{
		ServiceID:   svc.ID,
		ServiceName: svc.Name,
		JobScope:    stringArg(args, "job_scope"),
		Fields:      args,
	}
	quote, err := h.Quotes.Calculate(ctx, req, svc, s.Business())
	if err != nil {
		return nil, fmt.Errorf("calculate quote: %w", err)
	}

	s.AppendQuote(*quote)
	if err := s.SelectQuote(quote.QuoteID, req); err != nil {
		return nil, err
	}

	return tools.BuildSuccess(tool, map[string]any{
		"quote_id":              quote.QuoteID,
		"service_name":          quote.ServiceName,
		"total_estimate_amount": quote.TotalEstimateAmount,
		"deposit_amount":        quote.DepositAmount,
		"currency":              quote.Currency,
	}), nil
}

// CheckDayAvailability lists open start times for a calendar day.
func (h *Handlers) CheckDayAvailability(ctx context.Context, s *Session, args map[string]any) (*tools.Response, error) {
	tool, _ := s.GrantedTool(tools.NameCheckDayAvailability)

	date := stringArg(args, "date")
	if _, err := time.Parse("2006-01-02", date); err != nil {
		return tools.BuildFailure(tool, "I need the date in YYYY-MM-DD format.", nil), nil
	}

	available, err := h.Bookings.CheckDayAvailability(ctx, s.BusinessID(), date)
	if err != nil {
		return nil, fmt.Errorf("check availability for %s: %w", date, err)
	}
	if len(available) == 0 {
		return tools.BuildFailure(tool, fmt.Sprintf("There are no open times on %s. Would another day work?", date),
			map[string]any{"date": date, "available_times": []string{}}), nil
	}

	return tools.BuildSuccess(tool, map[string]any{
		"date":            date,
		"available_times": available,
	}), nil
}

// CreateUser finds or creates the customer record. The caller's phone number
// is the canonical identifier; when the tool call omits one the number the
// call arrived from is used.
func (h *Handlers) CreateUser(ctx context.Context, s *Session, args map[string]any) (*tools.Response, error) {
	tool, _ := s.GrantedTool(tools.NameCreateUser)

	phone := stringArg(args, "phone_number")
	if phone == "" {
		phone = s.CustomerPhoneNumber()
	}
	if phone == "" {
		return tools.BuildFailure(tool, "I need a phone number to set up your account.", nil), nil
	}

	customer, existed, err := h.Customers.CreateOrFindCustomer(ctx, &store.Customer{
		Name:        stringArg(args, "name"),
		PhoneNumber: phone,
		Email:       stringArg(args, "email"),
	})
	if err != nil {
		return nil, fmt.Errorf("create or find customer: %w", err)
	}
	s.SetCustomer(customer)

	return tools.BuildSuccess(tool, map[string]any{
		"customer_id":     customer.ID,
		"name":            customer.Name,
		"phone_number":    customer.PhoneNumber,
		"already_existed": existed,
	}), nil
}

// CreateBooking confirms the selected quote at the chosen slot and sends the
// deposit payment link. The link failing to send is reported but does not
// undo the booking.
func (h *Handlers) CreateBooking(ctx context.Context, s *Session, args map[string]any) (*tools.Response, error) {
	tool, _ := s.GrantedTool(tools.NameCreateBooking)

	quote, req := s.SelectedQuote()
	if quote == nil {
		return tools.BuildFailure(tool, "I need to give you a quote before booking. Which service would you like?", nil), nil
	}
	customer := s.Customer()
	if customer == nil {
		return tools.BuildFailure(tool, "I need your details before booking. What's your name?", nil), nil
	}

	date := stringArg(args, "date")
	if _, err := time.Parse("2006-01-02", date); err != nil {
		return tools.BuildFailure(tool, "I need the booking date in YYYY-MM-DD format.", nil), nil
	}
	timeOfDay := stringArg(args, "time")
	if timeOfDay == "" {
		return tools.BuildFailure(tool, "What time would you like the booking to start?", nil), nil
	}

	booking, err := h.Bookings.CreateBooking(ctx, req, quote, customer.ID, date, timeOfDay)
	if err != nil {
		return nil, fmt.Errorf("create booking: %w", err)
	}

	paymentLink := ""
	if h.Notifier != nil {
		link, err := h.Notifier.SendPaymentLink(ctx, store.PaymentLinkRequest{
			BusinessName:  s.Business().Name,
			CustomerPhone: customer.PhoneNumber,
			QuoteID:       quote.QuoteID,
			Amount:        quote.DepositAmount,
			Currency:      quote.Currency,
			Date:          date,
			Time:          timeOfDay,
		})
		if err != nil {
			h.reporter().ReportError(err, map[string]any{
				"session_id": s.ID(),
				"booking_id": booking.ID,
			})
			h.logger().Error("payment link send failed", "session_id", s.ID(), "booking_id", booking.ID, "error", err)
		} else {
			paymentLink = link
		}
	}

	return tools.BuildSuccess(tool, map[string]any{
		"booking_id":     booking.ID,
		"service_name":   quote.ServiceName,
		"date":           date,
		"time":           timeOfDay,
		"deposit_amount": quote.DepositAmount,
		"currency":       quote.Currency,
		"payment_link":   paymentLink,
	}), nil
}

// RequestTool asks the gate to expose another tool to the session.
func (h *Handlers) RequestTool(ctx context.Context, s *Session, args map[string]any) (*tools.Response, error) {
	tool, _ := s.GrantedTool(tools.NameRequestTool)

	requested := stringArg(args, "tool_name")
	if requested == "" {
		return tools.BuildFailure(tool, "Which tool do you need?", nil), nil
	}

	outcome, err := h.Gate.RequestGrant(ctx, s, requested, stringArg(args, "service_name"))
	if err != nil {
		return nil, fmt.Errorf("request grant for %q: %w", requested, err)
	}

	switch outcome {
	case Granted:
		return tools.BuildSuccess(tool, map[string]any{
			"tool_name": requested,
			"status":    outcome.String(),
		}), nil
	case AlreadyGranted:
		return tools.BuildSuccess(tool, map[string]any{
			"tool_name": requested,
			"status":    outcome.String(),
		}), nil
	case MissingContext:
		return tools.BuildFailure(tool,
			fmt.Sprintf("The tool %q needs a service. Tell me which service first, then request it again.", requested),
			map[string]any{"tool_name": requested, "status": outcome.String()}), nil
	default:
		return tools.BuildFailure(tool,
			fmt.Sprintf("The tool %q doesn't exist. Available tools: %s.", requested, strings.Join(s.AllToolNames(), ", ")),
			map[string]any{"tool_name": requested, "status": outcome.String()}), nil
	}
}

func stringArg(args map[string]any, name string) string {
	if args == nil {
		return ""
	}
	if v, ok := args[name].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}
