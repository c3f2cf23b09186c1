package store

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mesieou/skedy-ai-sub002/pkg/agent/tools"
)

// Postgres bundles the relational repositories behind one pgx pool.
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(ctx context.Context, databaseURL string) (*Postgres, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("database url is required")
	}
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres is not reachable: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

func (p *Postgres) Close() {
	if p != nil && p.pool != nil {
		p.pool.Close()
	}
}

func (p *Postgres) Pool() *pgxpool.Pool {
	return p.pool
}

// --- BusinessStore ---

func (p *Postgres) GetBusinessByAccountID(ctx context.Context, accountID string) (*Business, error) {
	var b Business
	err := p.pool.QueryRow(ctx, `
		SELECT id, account_id, name, COALESCE(description, ''), COALESCE(phone_number, ''),
		       COALESCE(email, ''), COALESCE(address, ''), COALESCE(timezone, 'UTC'),
		       COALESCE(currency, 'AUD')
		FROM businesses
		WHERE account_id = $1`, accountID,
	).Scan(&b.ID, &b.AccountID, &b.Name, &b.Description, &b.PhoneNumber, &b.Email, &b.Address, &b.Timezone, &b.Currency)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("business for account %q not found", accountID)
	}
	if err != nil {
		return nil, fmt.Errorf("get business by account %q: %w", accountID, err)
	}
	return &b, nil
}

func (p *Postgres) CustomerFacingInfo(b *Business) string {
	if b == nil {
		return ""
	}
	var sb strings.Builder
	sb.WriteString(b.Name)
	if b.Description != "" {
		sb.WriteString(" - ")
		sb.WriteString(b.Description)
	}
	if b.Address != "" {
		sb.WriteString("\nAddress: ")
		sb.WriteString(b.Address)
	}
	if b.PhoneNumber != "" {
		sb.WriteString("\nPhone: ")
		sb.WriteString(b.PhoneNumber)
	}
	if b.Email != "" {
		sb.WriteString("\nEmail: ")
		sb.WriteString(b.Email)
	}
	return sb.String()
}

// --- ServiceStore ---

func (p *Postgres) ListServiceNames(ctx context.Context, businessID string) ([]string, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT name FROM services WHERE business_id = $1 AND active ORDER BY name`, businessID)
	if err != nil {
		return nil, fmt.Errorf("list service names: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan service name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list service names: %w", err)
	}
	return names, nil
}

func (p *Postgres) GetService(ctx context.Context, businessID, name string) (*Service, error) {
	var svc Service
	err := p.pool.QueryRow(ctx, `
		SELECT id, business_id, name, COALESCE(description, ''),
		       COALESCE(requirements, '{}'), COALESCE(job_scope_options, '{}'),
		       COALESCE(hourly_rate, 0), COALESCE(deposit_rate, 0)
		FROM services
		WHERE business_id = $1 AND name = $2 AND active`, businessID, name,
	).Scan(&svc.ID, &svc.BusinessID, &svc.Name, &svc.Description, &svc.Requirements, &svc.JobScopeOptions, &svc.HourlyRate, &svc.DepositRate)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("service %q not found", name)
	}
	if err != nil {
		return nil, fmt.Errorf("get service %q: %w", name, err)
	}
	return &svc, nil
}

// --- ToolCatalogStore ---

func (p *Postgres) ListActiveToolNames(ctx context.Context, businessID string) ([]string, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT t.name
		FROM tools t
		JOIN business_tools bt ON bt.tool_id = t.id
		WHERE bt.business_id = $1 AND bt.active
		ORDER BY t.name`, businessID)
	if err != nil {
		return nil, fmt.Errorf("list active tool names: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan tool name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list active tool names: %w", err)
	}
	return names, nil
}

func (p *Postgres) GetToolsByNames(ctx context.Context, businessID string, names []string) ([]tools.Tool, error) {
	if len(names) == 0 {
		return nil, nil
	}
	rows, err := p.pool.Query(ctx, `
		SELECT t.name, COALESCE(t.description, ''), COALESCE(t.version, ''),
		       t.function_schema, t.dynamic_parameters, t.output_template, t.business_specific
		FROM tools t
		JOIN business_tools bt ON bt.tool_id = t.id
		WHERE bt.business_id = $1 AND bt.active AND t.name = ANY($2)`, businessID, names)
	if err != nil {
		return nil, fmt.Errorf("get tools by names: %w", err)
	}
	defer rows.Close()

	var out []tools.Tool
	for rows.Next() {
		var (
			t           tools.Tool
			schemaRaw   []byte
			templateRaw []byte
		)
		if err := rows.Scan(&t.Name, &t.Description, &t.Version, &schemaRaw, &t.DynamicParameters, &templateRaw, &t.BusinessSpecific); err != nil {
			return nil, fmt.Errorf("scan tool: %w", err)
		}
		if len(schemaRaw) > 0 {
			var schema tools.JSONSchema
			if err := json.Unmarshal(schemaRaw, &schema); err != nil {
				return nil, fmt.Errorf("decode schema for tool %q: %w", t.Name, err)
			}
			t.FunctionSchema = &schema
		}
		if len(templateRaw) > 0 {
			var template tools.OutputTemplate
			if err := json.Unmarshal(templateRaw, &template); err != nil {
				return nil, fmt.Errorf("decode output template for tool %q: %w", t.Name, err)
			}
			t.OutputTemplate = &template
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("get tools by names: %w", err)
	}
	return out, nil
}

// --- PromptStore ---

func (p *Postgres) GetActivePrompt(ctx context.Context, businessID, kind string) (*Prompt, error) {
	var prompt Prompt
	err := p.pool.QueryRow(ctx, `
		SELECT name, content, COALESCE(version, '')
		FROM prompts
		WHERE business_id = $1 AND kind = $2 AND active
		ORDER BY created_at DESC
		LIMIT 1`, businessID, kind,
	).Scan(&prompt.Name, &prompt.Content, &prompt.Version)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("no active %q prompt for business %s", kind, businessID)
	}
	if err != nil {
		return nil, fmt.Errorf("get active prompt: %w", err)
	}
	return &prompt, nil
}

// --- CustomerStore ---

func (p *Postgres) CreateOrFindCustomer(ctx context.Context, c *Customer) (*Customer, bool, error) {
	if c == nil || strings.TrimSpace(c.PhoneNumber) == "" {
		return nil, false, fmt.Errorf("customer phone number is required")
	}

	var existing Customer
	err := p.pool.QueryRow(ctx, `
		SELECT id, COALESCE(name, ''), phone_number, COALESCE(email, '')
		FROM customers WHERE phone_number = $1`, c.PhoneNumber,
	).Scan(&existing.ID, &existing.Name, &existing.PhoneNumber, &existing.Email)
	if err == nil {
		return &existing, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("find customer: %w", err)
	}

	created := *c
	created.ID = "cus_" + randHex(12)
	_, err = p.pool.Exec(ctx, `
		INSERT INTO customers (id, name, phone_number, email) VALUES ($1, $2, $3, $4)`,
		created.ID, created.Name, created.PhoneNumber, created.Email)
	if err != nil {
		return nil, false, fmt.Errorf("create customer: %w", err)
	}
	return &created, false, nil
}

// --- BookingEngine ---

// businessDaySlots are the bookable start times offered when a day has no
// conflicting bookings yet.
var businessDaySlots = []string{"08:00", "10:00", "12:00", "14:00", "16:00"}

func (p *Postgres) CheckDayAvailability(ctx context.Context, businessID, date string) ([]string, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT booking_time FROM bookings
		WHERE business_id = $1 AND booking_date = $2 AND status <> 'cancelled'`, businessID, date)
	if err != nil {
		return nil, fmt.Errorf("check day availability: %w", err)
	}
	defer rows.Close()

	taken := make(map[string]struct{})
	for rows.Next() {
		var at string
		if err := rows.Scan(&at); err != nil {
			return nil, fmt.Errorf("scan booking time: %w", err)
		}
		taken[at] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("check day availability: %w", err)
	}

	available := make([]string, 0, len(businessDaySlots))
	for _, slot := range businessDaySlots {
		if _, busy := taken[slot]; !busy {
			available = append(available, slot)
		}
	}
	return available, nil
}

func (p *Postgres) CreateBooking(ctx context.Context, req *QuoteRequest, quote *QuoteResult, customerID, date, timeOfDay string) (*Booking, error) {
	if quote == nil || quote.QuoteID == "" {
		return nil, fmt.Errorf("quote is required to create a booking")
	}
	if customerID == "" {
		return nil, fmt.Errorf("customer id is required to create a booking")
	}

	booking := &Booking{
		ID:         "bkg_" + randHex(12),
		QuoteID:    quote.QuoteID,
		CustomerID: customerID,
		Date:       date,
		Time:       timeOfDay,
		Status:     "confirmed",
	}
	serviceName := quote.ServiceName
	if req != nil && req.ServiceName != "" {
		serviceName = req.ServiceName
	}
	_, err := p.pool.Exec(ctx, `
		INSERT INTO bookings (id, business_id, quote_id, customer_id, service_name, booking_date, booking_time, amount, currency, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		booking.ID, quote.BusinessID, booking.QuoteID, booking.CustomerID, serviceName, date, timeOfDay,
		quote.TotalEstimateAmount, quote.Currency, booking.Status)
	if err != nil {
		return nil, fmt.Errorf("create booking: %w", err)
	}
	return booking, nil
}

func randHex(n int) string {
	buf := make([]byte, n)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}
