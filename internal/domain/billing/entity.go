package billing

import (
	"strings"
	"time"
)

// SubscriptionStatus enum, mirrors the provider's lifecycle in upper case.
type SubscriptionStatus string

const (
	StatusActive            SubscriptionStatus = "ACTIVE"
	StatusTrialing          SubscriptionStatus = "TRIALING"
	StatusPastDue           SubscriptionStatus = "PAST_DUE"
	StatusCanceled          SubscriptionStatus = "CANCELED"
	StatusIncomplete        SubscriptionStatus = "INCOMPLETE"
	StatusIncompleteExpired SubscriptionStatus = "INCOMPLETE_EXPIRED"
	StatusUnpaid            SubscriptionStatus = "UNPAID"
	StatusPaused            SubscriptionStatus = "PAUSED"
)

// StatusFromProvider converts e.g. "past_due" into StatusPastDue.
func StatusFromProvider(s string) SubscriptionStatus {
	return SubscriptionStatus(strings.ToUpper(strings.TrimSpace(s)))
}

// Entitled reports whether the status unlocks paid usage.
func (s SubscriptionStatus) Entitled() bool {
	return s == StatusActive || s == StatusTrialing
}

// Subscription kept in sync by provider webhooks.
type Subscription struct {
	ID                   string             `json:"id"`
	UserID               string             `json:"user_id"`
	StripeSubscriptionID string             `json:"stripe_subscription_id"`
	StripePriceID        string             `json:"stripe_price_id"`
	Status               SubscriptionStatus `json:"status"`
	CurrentPeriodEnd     time.Time          `json:"current_period_end"`
	CreatedAt            time.Time          `json:"created_at"`
	UpdatedAt            time.Time          `json:"updated_at"`
}

// CheckoutRequest describes a subscription checkout for one user.
type CheckoutRequest struct {
	CustomerID string
	PriceID    string
	UserID     string
	TrialDays  int64
	SuccessURL string
	CancelURL  string
}

// CheckoutSession is what the provider hands back for redirecting the user.
type CheckoutSession struct {
	ID  string `json:"sessionId"`
	URL string `json:"url"`
}

// ProviderSubscription is the provider's view of a subscription.
type ProviderSubscription struct {
	ID               string
	CustomerID       string
	PriceID          string
	Status           string
	CurrentPeriodEnd time.Time
}

// CompletedCheckout is the payload of a checkout.session.completed event.
type CompletedCheckout struct {
	SessionID      string
	Mode           string
	SubscriptionID string
	UserID         string
}

// Event types we react to.
const (
	EventCheckoutCompleted   = "checkout.session.completed"
	EventSubscriptionCreated = "customer.subscription.created"
	EventSubscriptionUpdated = "customer.subscription.updated"
	EventSubscriptionDeleted = "customer.subscription.deleted"
)

// Event is a verified webhook event. Exactly one of Checkout/Subscription is set for
// relevant event types.
type Event struct {
	ID           string
	Type         string
	Checkout     *CompletedCheckout
	Subscription *ProviderSubscription
}
