package billing

import (
	"context"
	"fmt"

	"github.com/stripe/stripe-go/v81"
	billingportal "github.com/stripe/stripe-go/v81/billingportal/session"
	checkout "github.com/stripe/stripe-go/v81/checkout/session"

	"pictoria-server/internal/domain"
)

// Gateway is the payment-processor surface the handlers depend on.
type Gateway interface {
	CheckoutURL(ctx context.Context, userID, email, priceID string) (string, error)
	PortalURL(ctx context.Context, customerID string) (string, error)
}

type Options struct {
	SecretKey string
	SiteURL   string
}

type stripeGateway struct {
	siteURL string
}

// NewGateway configures the processor SDK. An empty secret key yields a
// disabled gateway so billing endpoints fail with a clear error instead of
// opaque SDK ones.
func NewGateway(opts Options) Gateway {
	if opts.SecretKey == "" {
		return disabledGateway{}
	}
	stripe.Key = opts.SecretKey
	return &stripeGateway{siteURL: opts.SiteURL}
}

func (g *stripeGateway) CheckoutURL(ctx context.Context, userID, email, priceID string) (string, error) {
	if priceID == "" {
		return "", fmt.Errorf("%w: price_id is required", domain.ErrInvalidInput)
	}
	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{Price: stripe.String(priceID), Quantity: stripe.Int64(1)},
		},
		SuccessURL:        stripe.String(g.siteURL + "/billing?checkout=success"),
		CancelURL:         stripe.String(g.siteURL + "/billing?checkout=canceled"),
		ClientReferenceID: stripe.String(userID),
		CustomerEmail:     stripe.String(email),
	}
	params.Context = ctx
	s, err := checkout.New(params)
	if err != nil {
		return "", fmt.Errorf("billing: create checkout session: %w", err)
	}
	return s.URL, nil
}

func (g *stripeGateway) PortalURL(ctx context.Context, customerID string) (string, error) {
	if customerID == "" {
		return "", fmt.Errorf("%w: no billing customer on record", domain.ErrNotFound)
	}
	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(g.siteURL + "/billing"),
	}
	params.Context = ctx
	s, err := billingportal.New(params)
	if err != nil {
		return "", fmt.Errorf("billing: create portal session: %w", err)
	}
	return s.URL, nil
}

type disabledGateway struct{}

func (disabledGateway) CheckoutURL(context.Context, string, string, string) (string, error) {
	return "", domain.ErrBillingDisabled
}

func (disabledGateway) PortalURL(context.Context, string) (string, error) {
	return "", domain.ErrBillingDisabled
}
