package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/mesieou/skedy-ai-sub002/pkg/agent/tools"
	"github.com/mesieou/skedy-ai-sub002/pkg/store"
)

func catalogTools() map[string]tools.Tool {
	return map[string]tools.Tool{
		tools.NameGetServiceDetails: {Name: tools.NameGetServiceDetails},
		tools.NameGetQuote: {
			Name:              tools.NameGetQuote,
			DynamicParameters: true,
			FunctionSchema: &tools.JSONSchema{
				Type: "object",
				Properties: map[string]tools.JSONSchema{
					"service_name": {Type: "string"},
				},
			},
		},
		tools.NameCheckDayAvailability: {Name: tools.NameCheckDayAvailability},
		tools.NameCreateUser:           {Name: tools.NameCreateUser},
		tools.NameCreateBooking:        {Name: tools.NameCreateBooking},
		tools.NameRequestTool:          {Name: tools.NameRequestTool},
	}
}

type fakeCatalog struct {
	tools map[string]tools.Tool
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{tools: catalogTools()}
}

func (c *fakeCatalog) ListActiveToolNames(ctx context.Context, businessID string) ([]string, error) {
	names := make([]string, 0, len(c.tools))
	for name := range c.tools {
		names = append(names, name)
	}
	return names, nil
}

func (c *fakeCatalog) GetToolsByNames(ctx context.Context, businessID string, names []string) ([]tools.Tool, error) {
	var out []tools.Tool
	for _, name := range names {
		if t, ok := c.tools[name]; ok {
			out = append(out, t)
		}
	}
	return out, nil
}

type fakeServices struct {
	services map[string]*store.Service
}

func newFakeServices() *fakeServices {
	return &fakeServices{services: map[string]*store.Service{
		"House Removals": {
			ID:              "svc_removals",
			BusinessID:      "biz_1",
			Name:            "House Removals",
			Requirements:    []string{"pickup_addresses", "dropoff_addresses", "number_of_people"},
			JobScopeOptions: []string{"full house", "few items"},
			HourlyRate:      120,
			DepositRate:     0.25,
		},
		"Pool Cleaning": {
			ID:         "svc_pool",
			BusinessID: "biz_1",
			Name:       "Pool Cleaning",
			HourlyRate: 90,
		},
	}}
}

func (s *fakeServices) ListServiceNames(ctx context.Context, businessID string) ([]string, error) {
	return []string{"House Removals", "Pool Cleaning"}, nil
}

func (s *fakeServices) GetService(ctx context.Context, businessID, name string) (*store.Service, error) {
	if svc, ok := s.services[name]; ok {
		return svc, nil
	}
	return nil, fmt.Errorf("service %q not found", name)
}

type fakeDurable struct {
	mu    sync.Mutex
	saves []*store.SessionRecord
	recs  map[string]*store.SessionRecord
}

func newFakeDurable() *fakeDurable {
	return &fakeDurable{recs: make(map[string]*store.SessionRecord)}
}

func (d *fakeDurable) Save(ctx context.Context, rec *store.SessionRecord) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.saves = append(d.saves, rec)
	d.recs[rec.ID] = rec
	return nil
}

func (d *fakeDurable) Load(ctx context.Context, id, businessID string) (*store.SessionRecord, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.recs[id], nil
}

func (d *fakeDurable) Delete(ctx context.Context, id, businessID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.recs, id)
	return nil
}

func (d *fakeDurable) ExtendTTL(ctx context.Context, id, businessID string, seconds int) error {
	return nil
}

func (d *fakeDurable) saveCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.saves)
}

type fakeBookings struct {
	available []string
	created   []*store.Booking
	failWith  error
}

func (b *fakeBookings) CheckDayAvailability(ctx context.Context, businessID, date string) ([]string, error) {
	if b.failWith != nil {
		return nil, b.failWith
	}
	return b.available, nil
}

func (b *fakeBookings) CreateBooking(ctx context.Context, req *store.QuoteRequest, quote *store.QuoteResult, customerID, date, timeOfDay string) (*store.Booking, error) {
	if b.failWith != nil {
		return nil, b.failWith
	}
	booking := &store.Booking{
		ID:         fmt.Sprintf("bkg_%d", len(b.created)+1),
		QuoteID:    quote.QuoteID,
		CustomerID: customerID,
		Date:       date,
		Time:       timeOfDay,
		Status:     "confirmed",
	}
	b.created = append(b.created, booking)
	return booking, nil
}

type fakeCustomers struct {
	existing map[string]*store.Customer
}

func (c *fakeCustomers) CreateOrFindCustomer(ctx context.Context, in *store.Customer) (*store.Customer, bool, error) {
	if found, ok := c.existing[in.PhoneNumber]; ok {
		return found, true, nil
	}
	created := *in
	created.ID = "cus_new"
	return &created, false, nil
}

type fakeNotifier struct {
	sent     []store.PaymentLinkRequest
	failWith error
}

func (n *fakeNotifier) SendPaymentLink(ctx context.Context, req store.PaymentLinkRequest) (string, error) {
	if n.failWith != nil {
		return "", n.failWith
	}
	n.sent = append(n.sent, req)
	return "https://pay.example/" + req.QuoteID, nil
}

func testBusiness() *store.Business {
	return &store.Business{
		ID:        "biz_1",
		AccountID: "acct_1",
		Name:      "Tidy Pools",
		Currency:  "AUD",
	}
}

func newTestSession(t interface{ Fatalf(string, ...any) }, durable store.DurableSessionStore, granted ...tools.Tool) *Session {
	catalog := newFakeCatalog()
	names, _ := catalog.ListActiveToolNames(context.Background(), "biz_1")
	s, err := New(Params{
		ID:                  "call_1",
		Business:            testBusiness(),
		CustomerPhoneNumber: "+61400000001",
		AllToolNames:        names,
		InitialTools:        granted,
		Durable:             durable,
	})
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	return s
}
