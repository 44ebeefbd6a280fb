package billing

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/labstack/gommon/log"

	"github.com/bryanwahyu/sitesafe/internal/application"
	domain "github.com/bryanwahyu/sitesafe/internal/domain/billing"
	"github.com/bryanwahyu/sitesafe/internal/domain/users"
)

// ErrMissingPrice is returned when a checkout request lacks priceId or plan.
var ErrMissingPrice = errors.New("missing priceId or plan")

// Service implements checkout and webhook sync.
type Service struct {
	Repo      domain.Repository
	Users     users.Repository
	Provider  domain.Provider
	Clock     application.Clock
	BaseURL   string
	TrialDays int64
}

// CheckoutCommand body of POST /api/stripe/create-session.
type CheckoutCommand struct {
	UserID  string
	PriceID string `json:"priceId"`
	Plan    string `json:"plan"`
}

// CreateCheckout starts a subscription checkout, creating the billing customer on first use.
func (s *Service) CreateCheckout(ctx context.Context, cmd CheckoutCommand) (*domain.CheckoutSession, error) {
	if cmd.PriceID == "" || cmd.Plan == "" {
		return nil, ErrMissingPrice
	}
	user, err := s.Users.Get(ctx, cmd.UserID)
	if err != nil {
		return nil, err
	}

	customerID := ""
	if user.StripeCustomerID != nil {
		customerID = *user.StripeCustomerID
	}
	if customerID == "" {
		customerID, err = s.Provider.CreateCustomer(ctx, user.Email)
		if err != nil {
			return nil, err
		}
		if err := s.Users.SetStripeCustomerID(ctx, user.ID, customerID); err != nil {
			return nil, fmt.Errorf("save customer id: %w", err)
		}
	}

	if _, err := s.Repo.FindEntitled(ctx, user.ID); err == nil {
		log.Infof("user %s already has an active/trialing subscription", user.ID)
		return nil, domain.ErrAlreadySubscribed
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	sess, err := s.Provider.CreateCheckoutSession(ctx, domain.CheckoutRequest{
		CustomerID: customerID,
		PriceID:    cmd.PriceID,
		UserID:     user.ID,
		TrialDays:  s.TrialDays,
		SuccessURL: s.BaseURL + "/app?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:  s.BaseURL + "/pricing",
	})
	if err != nil {
		return nil, err
	}
	if sess.URL == "" {
		return nil, errors.New("could not create checkout session")
	}
	log.Infof("checkout session %s created for user %s plan=%s", sess.ID, user.ID, cmd.Plan)
	return sess, nil
}

// HandleWebhook verifies and applies one provider event. Signature problems return
// domain.ErrMissingSignature or domain.ErrInvalidSignature.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	ev, err := s.Provider.ParseWebhook(payload, signature)
	if err != nil {
		return err
	}
	switch ev.Type {
	case domain.EventCheckoutCompleted:
		return s.checkoutCompleted(ctx, ev.Checkout)
	case domain.EventSubscriptionCreated, domain.EventSubscriptionUpdated, domain.EventSubscriptionDeleted:
		return s.subscriptionChanged(ctx, ev.Type, ev.Subscription)
	default:
		return nil
	}
}

func (s *Service) checkoutCompleted(ctx context.Context, c *domain.CompletedCheckout) error {
	if c == nil || c.Mode != "subscription" || c.SubscriptionID == "" || c.UserID == "" {
		id := ""
		if c != nil {
			id = c.SessionID
		}
		log.Warnf("checkout.session.completed without subscription or userId, session %s", id)
		return nil
	}
	sub, err := s.Provider.GetSubscription(ctx, c.SubscriptionID)
	if err != nil {
		return err
	}
	if err := s.upsert(ctx, c.UserID, sub); err != nil {
		return err
	}
	log.Infof("subscription %s recorded for user %s", sub.ID, c.UserID)
	return nil
}

func (s *Service) subscriptionChanged(ctx context.Context, typ string, sub *domain.ProviderSubscription) error {
	if sub == nil || sub.ID == "" {
		return fmt.Errorf("%s: missing subscription object", typ)
	}
	existing, err := s.Repo.GetByStripeID(ctx, sub.ID)
	if err == nil {
		apply(existing, sub)
		if err := s.Repo.Update(ctx, existing); err != nil {
			return err
		}
		log.Infof("subscription %s updated for user %s (%s)", sub.ID, existing.UserID, existing.Status)
		return nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return err
	}

	user, err := s.Users.GetByStripeCustomerID(ctx, sub.CustomerID)
	if errors.Is(err, users.ErrNotFound) {
		log.Warnf("%s for subscription %s, but no user for customer %s", typ, sub.ID, sub.CustomerID)
		return nil
	}
	if err != nil {
		return err
	}
	return s.create(ctx, user.ID, sub)
}

// upsert covers checkout.session.completed arriving after customer.subscription.created.
func (s *Service) upsert(ctx context.Context, userID string, sub *domain.ProviderSubscription) error {
	existing, err := s.Repo.GetByStripeID(ctx, sub.ID)
	switch {
	case err == nil:
		apply(existing, sub)
		return s.Repo.Update(ctx, existing)
	case errors.Is(err, domain.ErrNotFound):
		return s.create(ctx, userID, sub)
	default:
		return err
	}
}

func (s *Service) create(ctx context.Context, userID string, sub *domain.ProviderSubscription) error {
	now := s.Clock.Now()
	row := &domain.Subscription{
		ID:                   uuid.New().String(),
		UserID:               userID,
		StripeSubscriptionID: sub.ID,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	apply(row, sub)
	if err := s.Repo.Create(ctx, row); err != nil {
		return fmt.Errorf("create subscription %s: %w", sub.ID, err)
	}
	return nil
}

func apply(dst *domain.Subscription, src *domain.ProviderSubscription) {
	dst.Status = domain.StatusFromProvider(src.Status)
	dst.CurrentPeriodEnd = src.CurrentPeriodEnd
	dst.StripePriceID = src.PriceID
}

// Entitled reports whether the user has an ACTIVE or TRIALING subscription.
func (s *Service) Entitled(ctx context.Context, userID string) (bool, error) {
	_, err := s.Repo.FindEntitled(ctx, userID)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Current returns the user's subscriptions, newest first.
func (s *Service) Current(ctx context.Context, userID string) ([]*domain.Subscription, error) {
	return s.Repo.ListByUser(ctx, userID)
}
