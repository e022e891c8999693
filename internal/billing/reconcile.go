package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/stripe/stripe-go/v81"

	"pictoria-server/internal/infra"
	"pictoria-server/internal/sqlinline"
)

// Reconciler folds processor webhook events into the relational store.
// Upserts make every event replay-safe.
type Reconciler struct {
	SQL    infra.SQLExecutor
	Logger zerolog.Logger
}

// HandleEvent applies a verified webhook event. Unhandled event types are
// ignored: the processor sends far more than the catalog/subscription set this
// store tracks.
func (r *Reconciler) HandleEvent(ctx context.Context, event stripe.Event) error {
	switch event.Type {
	case "product.created", "product.updated", "product.deleted":
		return r.upsertProduct(ctx, event.Data.Raw)
	case "price.created", "price.updated", "price.deleted":
		return r.upsertPrice(ctx, event.Data.Raw)
	case "checkout.session.completed":
		return r.recordCustomer(ctx, event.Data.Raw)
	case "customer.subscription.created", "customer.subscription.updated", "customer.subscription.deleted":
		return r.reconcileSubscription(ctx, event.Data.Raw)
	default:
		r.Logger.Debug().Str("type", string(event.Type)).Msg("billing: event ignored")
		return nil
	}
}

func (r *Reconciler) upsertProduct(ctx context.Context, raw json.RawMessage) error {
	var p stripe.Product
	if err := json.Unmarshal(raw, &p); err != nil {
		return fmt.Errorf("billing: decode product: %w", err)
	}
	image := ""
	if len(p.Images) > 0 {
		image = p.Images[0]
	}
	metadata, _ := json.Marshal(p.Metadata)
	active := p.Active && !p.Deleted
	_, err := r.SQL.Exec(ctx, sqlinline.QUpsertProduct, p.ID, active, p.Name, p.Description, image, metadata)
	if err != nil {
		return fmt.Errorf("billing: upsert product %s: %w", p.ID, err)
	}
	return nil
}

func (r *Reconciler) upsertPrice(ctx context.Context, raw json.RawMessage) error {
	var p stripe.Price
	if err := json.Unmarshal(raw, &p); err != nil {
		return fmt.Errorf("billing: decode price: %w", err)
	}
	productID := ""
	if p.Product != nil {
		productID = p.Product.ID
	}
	interval := ""
	intervalCount := int64(1)
	trialDays := int64(0)
	if p.Recurring != nil {
		interval = string(p.Recurring.Interval)
		intervalCount = p.Recurring.IntervalCount
		trialDays = p.Recurring.TrialPeriodDays
	}
	active := p.Active && !p.Deleted
	_, err := r.SQL.Exec(ctx, sqlinline.QUpsertPrice,
		p.ID, productID, active, string(p.Currency), p.UnitAmount, string(p.Type),
		interval, intervalCount, trialDays)
	if err != nil {
		return fmt.Errorf("billing: upsert price %s: %w", p.ID, err)
	}
	return nil
}

func (r *Reconciler) recordCustomer(ctx context.Context, raw json.RawMessage) error {
	var s stripe.CheckoutSession
	if err := json.Unmarshal(raw, &s); err != nil {
		return fmt.Errorf("billing: decode checkout session: %w", err)
	}
	if s.ClientReferenceID == "" || s.Customer == nil || s.Customer.ID == "" {
		r.Logger.Warn().Str("session", s.ID).Msg("billing: checkout session without user reference")
		return nil
	}
	_, err := r.SQL.Exec(ctx, sqlinline.QUpsertCustomer, s.ClientReferenceID, s.Customer.ID)
	if err != nil {
		return fmt.Errorf("billing: record customer: %w", err)
	}
	return nil
}

func (r *Reconciler) reconcileSubscription(ctx context.Context, raw json.RawMessage) error {
	var sub stripe.Subscription
	if err := json.Unmarshal(raw, &sub); err != nil {
		return fmt.Errorf("billing: decode subscription: %w", err)
	}
	if sub.Customer == nil || sub.Customer.ID == "" {
		return fmt.Errorf("billing: subscription %s has no customer", sub.ID)
	}

	var userID string
	row := r.SQL.QueryRow(ctx, sqlinline.QSelectUserIDByCustomer, sub.Customer.ID)
	if err := row.Scan(&userID); err != nil {
		// Subscription events can race the checkout completion that records
		// the customer mapping; a 500 here lets the processor redeliver.
		return fmt.Errorf("billing: no user for customer %s: %w", sub.Customer.ID, err)
	}

	var priceID string
	var quantity int64 = 1
	var price *stripe.Price
	if sub.Items != nil && len(sub.Items.Data) > 0 {
		item := sub.Items.Data[0]
		if item.Price != nil {
			price = item.Price
			priceID = item.Price.ID
		}
		if item.Quantity > 0 {
			quantity = item.Quantity
		}
	}

	var endedAt *time.Time
	if sub.EndedAt > 0 {
		t := time.Unix(sub.EndedAt, 0).UTC()
		endedAt = &t
	}
	_, err := r.SQL.Exec(ctx, sqlinline.QUpsertSubscription,
		sub.ID, userID, string(sub.Status), priceID, quantity, sub.CancelAtPeriodEnd,
		time.Unix(sub.CurrentPeriodStart, 0).UTC(), time.Unix(sub.CurrentPeriodEnd, 0).UTC(),
		endedAt, time.Unix(sub.Created, 0).UTC())
	if err != nil {
		return fmt.Errorf("billing: upsert subscription %s: %w", sub.ID, err)
	}

	if (sub.Status == stripe.SubscriptionStatusActive || sub.Status == stripe.SubscriptionStatusTrialing) && price != nil {
		return r.grantPlanCredits(ctx, userID, price)
	}
	return nil
}

// grantPlanCredits sets the user's allowance to the plan's advertised counts.
// The counts live in the price metadata so plans can be tuned without a deploy.
func (r *Reconciler) grantPlanCredits(ctx context.Context, userID string, price *stripe.Price) error {
	images := metadataInt(price.Metadata, "image_generation_count", 0)
	trainings := metadataInt(price.Metadata, "model_training_count", 0)
	if images == 0 && trainings == 0 {
		r.Logger.Warn().Str("price", price.ID).Msg("billing: price has no credit metadata, skipping grant")
		return nil
	}
	var gotImages, gotTrainings int
	row := r.SQL.QueryRow(ctx, sqlinline.QSetCredits, userID, images, trainings)
	if err := row.Scan(&gotImages, &gotTrainings); err != nil {
		return fmt.Errorf("billing: grant credits: %w", err)
	}
	r.Logger.Info().Str("user_id", userID).Int("images", gotImages).Int("trainings", gotTrainings).
		Msg("billing: plan credits granted")
	return nil
}

func metadataInt(m map[string]string, key string, fallback int) int {
	if v, ok := m[key]; ok {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}
