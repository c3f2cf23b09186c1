package store

import (
	"context"
	"fmt"
	"strings"
)

// RateQuoteEngine prices jobs from the service's hourly rate plus simple
// per-requirement loadings. It is intentionally coarse; the point of the
// quote during a call is a usable estimate plus a deposit figure.
type RateQuoteEngine struct {
	// BaseHours charged when no sizing field is present. Defaults to 2.
	BaseHours float64
}

func (e *RateQuoteEngine) Calculate(ctx context.Context, req *QuoteRequest, svc *Service, b *Business) (*QuoteResult, error) {
	if req == nil || svc == nil || b == nil {
		return nil, fmt.Errorf("quote request, service, and business are required")
	}
	if svc.HourlyRate <= 0 {
		return nil, fmt.Errorf("service %q has no hourly rate configured", svc.Name)
	}

	hours := e.BaseHours
	if hours <= 0 {
		hours = 2
	}
	for _, field := range []string{"number_of_rooms", "number_of_people", "number_of_vehicles"} {
		if n, ok := numberField(req.Fields, field); ok && n > 0 {
			hours += n
		}
	}
	if sqm, ok := numberField(req.Fields, "square_meters"); ok && sqm > 0 {
		hours += sqm / 50
	}
	if addrs := addressCount(req.Fields, "pickup_addresses") + addressCount(req.Fields, "dropoff_addresses"); addrs > 2 {
		hours += float64(addrs - 2)
	}

	scope := strings.ToLower(strings.TrimSpace(req.JobScope))
	switch {
	case strings.Contains(scope, "full"), strings.Contains(scope, "deep"):
		hours *= 1.5
	case strings.Contains(scope, "partial"), strings.Contains(scope, "basic"):
		hours *= 0.75
	}

	total := hours * svc.HourlyRate
	depositRate := svc.DepositRate
	if depositRate <= 0 {
		depositRate = 0.2
	}

	return &QuoteResult{
		QuoteID:             "qte_" + randHex(12),
		BusinessID:          b.ID,
		ServiceName:         svc.Name,
		TotalEstimateAmount: round2(total),
		DepositAmount:       round2(total * depositRate),
		Currency:            b.Currency,
	}, nil
}

func numberField(fields map[string]any, name string) (float64, bool) {
	if fields == nil {
		return 0, false
	}
	switch v := fields[name].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	default:
		return 0, false
	}
}

func addressCount(fields map[string]any, name string) int {
	if fields == nil {
		return 0
	}
	if list, ok := fields[name].([]any); ok {
		return len(list)
	}
	if list, ok := fields[name].([]string); ok {
		return len(list)
	}
	return 0
}

func round2(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}
