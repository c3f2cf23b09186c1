// Package notify delivers post-booking notifications to customers.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/paymentlink"
	"github.com/stripe/stripe-go/v84/price"
	"github.com/stripe/stripe-go/v84/product"

	"github.com/mesieou/skedy-ai-sub002/pkg/store"
)

// StripeNotifier creates a Stripe payment link for the booking deposit. The
// link URL is returned to the caller; SMS delivery of the link is handled by
// the telephony provider outside this process.
type StripeNotifier struct {
	Logger *slog.Logger
}

func NewStripeNotifier(apiKey string, logger *slog.Logger) (*StripeNotifier, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("stripe api key is required")
	}
	stripe.Key = apiKey
	if logger == nil {
		logger = slog.Default()
	}
	return &StripeNotifier{Logger: logger}, nil
}

func (n *StripeNotifier) SendPaymentLink(ctx context.Context, req store.PaymentLinkRequest) (string, error) {
	if req.Amount <= 0 {
		return "", fmt.Errorf("payment link amount must be positive")
	}
	currency := strings.ToLower(req.Currency)
	if currency == "" {
		currency = "aud"
	}

	prod, err := product.New(&stripe.ProductParams{
		Params: stripe.Params{Context: ctx},
		Name:   stripe.String(fmt.Sprintf("%s deposit - %s %s", req.BusinessName, req.Date, req.Time)),
	})
	if err != nil {
		return "", fmt.Errorf("create stripe product: %w", err)
	}

	pr, err := price.New(&stripe.PriceParams{
		Params:     stripe.Params{Context: ctx},
		Product:    stripe.String(prod.ID),
		Currency:   stripe.String(currency),
		UnitAmount: stripe.Int64(unitAmountCents(req.Amount)),
	})
	if err != nil {
		return "", fmt.Errorf("create stripe price: %w", err)
	}

	link, err := paymentlink.New(&stripe.PaymentLinkParams{
		Params: stripe.Params{Context: ctx},
		LineItems: []*stripe.PaymentLinkLineItemParams{
			{Price: stripe.String(pr.ID), Quantity: stripe.Int64(1)},
		},
		Metadata: map[string]string{
			"quote_id":       req.QuoteID,
			"customer_phone": req.CustomerPhone,
		},
	})
	if err != nil {
		return "", fmt.Errorf("create stripe payment link: %w", err)
	}

	n.Logger.Info("payment link created", "quote_id", req.QuoteID, "amount", req.Amount, "currency", currency)
	return link.URL, nil
}

// unitAmountCents converts a dollar amount to Stripe's integer cents.
// Rounded, not truncated: amounts like 8.20 sit just below the cent
// boundary in float form and truncation would undercharge by a cent.
func unitAmountCents(amount float64) int64 {
	return int64(math.Round(amount * 100))
}
