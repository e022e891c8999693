package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/stripe/stripe-go/v81/webhook"

	"pictoria-server/internal/domain"
	"pictoria-server/internal/sqlinline"
)

type productWithPrices struct {
	domain.Product
	Prices []domain.Price `json:"prices"`
}

// Products lists the active catalog: products joined with their active prices,
// ordered the way the pricing page renders them.
func (a *App) Products(w http.ResponseWriter, r *http.Request) {
	rows, err := a.SQL.Query(r.Context(), sqlinline.QSelectProductsWithPrices)
	if err != nil {
		a.error(w, http.StatusInternalServerError, "internal", "failed to fetch plans")
		return
	}
	defer rows.Close()

	byID := map[string]*productWithPrices{}
	order := []string{}
	for rows.Next() {
		var p domain.Product
		var pr domain.Price
		var metadata []byte
		if err := rows.Scan(&p.ID, &p.Active, &p.Name, &p.Description, &p.Image, &metadata,
			&pr.ID, &pr.Active, &pr.Currency, &pr.UnitAmount, &pr.Type,
			&pr.Interval, &pr.IntervalCount, &pr.TrialPeriodDay); err != nil {
			continue
		}
		_ = json.Unmarshal(metadata, &p.Metadata)
		pr.ProductID = p.ID
		entry, ok := byID[p.ID]
		if !ok {
			entry = &productWithPrices{Product: p}
			byID[p.ID] = entry
			order = append(order, p.ID)
		}
		entry.Prices = append(entry.Prices, pr)
	}

	items := make([]productWithPrices, 0, len(order))
	for _, id := range order {
		items = append(items, *byID[id])
	}
	a.respond(w, http.StatusOK, map[string]any{"products": items})
}

// Subscription returns the caller's current active or trialing subscription
// with its price and product, or null data when there is none.
func (a *App) Subscription(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	var sub domain.Subscription
	var pr domain.Price
	var p domain.Product
	var metadata []byte
	row := a.SQL.QueryRow(r.Context(), sqlinline.QSelectSubscriptionForUser, userID)
	err := row.Scan(&sub.ID, &sub.UserID, &sub.Status, &sub.PriceID, &sub.Quantity, &sub.CancelAtPeriodEnd,
		&sub.CurrentPeriodStart, &sub.CurrentPeriodEnd, &sub.EndedAt, &sub.CreatedAt,
		&pr.ID, &pr.ProductID, &pr.Active, &pr.Currency, &pr.UnitAmount, &pr.Type,
		&pr.Interval, &pr.IntervalCount, &pr.TrialPeriodDay,
		&p.ID, &p.Active, &p.Name, &p.Description, &p.Image, &metadata)
	if err != nil {
		a.respond(w, http.StatusOK, map[string]any{"subscription": nil})
		return
	}
	_ = json.Unmarshal(metadata, &p.Metadata)
	a.respond(w, http.StatusOK, map[string]any{
		"subscription": sub,
		"price":        pr,
		"product":      p,
	})
}

type checkoutRequest struct {
	PriceID string `json:"price_id"`
}

// Checkout opens a subscription checkout session for the requested price and
// returns the hosted URL the client redirects to.
func (a *App) Checkout(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PriceID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "price_id is required")
		return
	}
	url, err := a.Billing.CheckoutURL(r.Context(), userID, a.currentUserEmail(r), req.PriceID)
	if err != nil {
		if errors.Is(err, domain.ErrBillingDisabled) {
			a.error(w, http.StatusServiceUnavailable, "billing_disabled", domain.ErrBillingDisabled.Error())
			return
		}
		a.Logger.Error().Err(err).Str("price_id", req.PriceID).Msg("checkout session failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to create checkout session")
		return
	}
	a.respond(w, http.StatusOK, map[string]string{"url": url})
}

// Portal opens the billing portal for the caller's recorded processor
// customer. Users who never completed a checkout have no customer and get 404.
func (a *App) Portal(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	var customerID string
	row := a.SQL.QueryRow(r.Context(), sqlinline.QSelectCustomer, userID)
	if err := row.Scan(&customerID); err != nil {
		a.error(w, http.StatusNotFound, "not_found", "no billing customer on record")
		return
	}
	url, err := a.Billing.PortalURL(r.Context(), customerID)
	if err != nil {
		if errors.Is(err, domain.ErrBillingDisabled) {
			a.error(w, http.StatusServiceUnavailable, "billing_disabled", domain.ErrBillingDisabled.Error())
			return
		}
		a.Logger.Error().Err(err).Msg("portal session failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to create portal session")
		return
	}
	a.respond(w, http.StatusOK, map[string]string{"url": url})
}

// BillingWebhook verifies a processor event and folds it into the store. A
// non-2xx answer makes the processor redeliver, which the upsert-based
// reconciler tolerates.
func (a *App) BillingWebhook(w http.ResponseWriter, r *http.Request) {
	if a.Config.StripeWebhookSecret == "" {
		http.Error(w, "Webhook not configured", http.StatusServiceUnavailable)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	event, err := webhook.ConstructEvent(body, r.Header.Get("Stripe-Signature"), a.Config.StripeWebhookSecret)
	if err != nil {
		a.Logger.Warn().Err(err).Msg("billing webhook signature rejected")
		http.Error(w, "Invalid signature", http.StatusUnauthorized)
		return
	}
	if err := a.Reconciler.HandleEvent(r.Context(), event); err != nil {
		a.Logger.Error().Err(err).Str("type", string(event.Type)).Msg("billing event failed")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	a.json(w, http.StatusOK, map[string]bool{"received": true})
}
