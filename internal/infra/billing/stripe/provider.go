package stripe

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"

	"github.com/bryanwahyu/sitesafe/internal/domain/billing"
)

// Provider implements billing.Provider on top of the Stripe API.
type Provider struct {
	api           *client.API
	webhookSecret string
}

func New(secretKey, webhookSecret string) *Provider {
	return &Provider{api: client.New(secretKey, nil), webhookSecret: webhookSecret}
}

func (p *Provider) CreateCustomer(ctx context.Context, email string) (string, error) {
	params := &stripe.CustomerParams{Email: stripe.String(email)}
	params.Context = ctx
	c, err := p.api.Customers.New(params)
	if err != nil {
		return "", fmt.Errorf("create stripe customer: %w", err)
	}
	return c.ID, nil
}

func (p *Provider) CreateCheckoutSession(ctx context.Context, req billing.CheckoutRequest) (*billing.CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{
		Customer:           stripe.String(req.CustomerID),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		Mode:               stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			Price:    stripe.String(req.PriceID),
			Quantity: stripe.Int64(1),
		}},
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: map[string]string{"userId": req.UserID},
		},
		SuccessURL: stripe.String(req.SuccessURL),
		CancelURL:  stripe.String(req.CancelURL),
	}
	if req.TrialDays > 0 {
		params.SubscriptionData.TrialPeriodDays = stripe.Int64(req.TrialDays)
	}
	params.AddMetadata("userId", req.UserID)
	params.Context = ctx

	s, err := p.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("create checkout session: %w", err)
	}
	return &billing.CheckoutSession{ID: s.ID, URL: s.URL}, nil
}

func (p *Provider) GetSubscription(ctx context.Context, id string) (*billing.ProviderSubscription, error) {
	params := &stripe.SubscriptionParams{}
	params.Context = ctx
	s, err := p.api.Subscriptions.Get(id, params)
	if err != nil {
		return nil, fmt.Errorf("retrieve subscription %s: %w", id, err)
	}
	return toProviderSubscription(s), nil
}

// ParseWebhook verifies Stripe-Signature against the endpoint secret and decodes the
// objects of the event types billing reacts to.
func (p *Provider) ParseWebhook(payload []byte, signature string) (*billing.Event, error) {
	if signature == "" || p.webhookSecret == "" {
		return nil, billing.ErrMissingSignature
	}
	ev, err := webhook.ConstructEventWithOptions(payload, signature, p.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", billing.ErrInvalidSignature, err)
	}

	out := &billing.Event{ID: ev.ID, Type: string(ev.Type)}
	if ev.Data == nil {
		return out, nil
	}
	switch out.Type {
	case billing.EventCheckoutCompleted:
		var cs stripe.CheckoutSession
		if err := json.Unmarshal(ev.Data.Raw, &cs); err != nil {
			return nil, fmt.Errorf("decode checkout session: %w", err)
		}
		cc := &billing.CompletedCheckout{
			SessionID: cs.ID,
			Mode:      string(cs.Mode),
			UserID:    cs.Metadata["userId"],
		}
		if cs.Subscription != nil {
			cc.SubscriptionID = cs.Subscription.ID
		}
		out.Checkout = cc
	case billing.EventSubscriptionCreated, billing.EventSubscriptionUpdated, billing.EventSubscriptionDeleted:
		var s stripe.Subscription
		if err := json.Unmarshal(ev.Data.Raw, &s); err != nil {
			return nil, fmt.Errorf("decode subscription: %w", err)
		}
		out.Subscription = toProviderSubscription(&s)
	}
	return out, nil
}

func toProviderSubscription(s *stripe.Subscription) *billing.ProviderSubscription {
	out := &billing.ProviderSubscription{
		ID:     s.ID,
		Status: string(s.Status),
	}
	if s.CurrentPeriodEnd > 0 {
		out.CurrentPeriodEnd = time.Unix(s.CurrentPeriodEnd, 0).UTC()
	}
	if s.Customer != nil {
		out.CustomerID = s.Customer.ID
	}
	if s.Items != nil && len(s.Items.Data) > 0 && s.Items.Data[0].Price != nil {
		out.PriceID = s.Items.Data[0].Price.ID
	}
	return out
}
