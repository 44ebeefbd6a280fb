package billing

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bryanwahyu/sitesafe/internal/application"
	domain "github.com/bryanwahyu/sitesafe/internal/domain/billing"
	"github.com/bryanwahyu/sitesafe/internal/domain/users"
	"github.com/bryanwahyu/sitesafe/internal/infra/db"
)

type fakeProvider struct {
	customers int
	lastReq   domain.CheckoutRequest
	subs      map[string]*domain.ProviderSubscription
	event     *domain.Event
	parseErr  error
}

func (p *fakeProvider) CreateCustomer(_ context.Context, email string) (string, error) {
	p.customers++
	return fmt.Sprintf("cus_%d", p.customers), nil
}

func (p *fakeProvider) CreateCheckoutSession(_ context.Context, req domain.CheckoutRequest) (*domain.CheckoutSession, error) {
	p.lastReq = req
	return &domain.CheckoutSession{ID: "cs_1", URL: "https://checkout.stripe.test/cs_1"}, nil
}

func (p *fakeProvider) GetSubscription(_ context.Context, id string) (*domain.ProviderSubscription, error) {
	s, ok := p.subs[id]
	if !ok {
		return nil, errors.New("no such subscription")
	}
	return s, nil
}

func (p *fakeProvider) ParseWebhook([]byte, string) (*domain.Event, error) {
	if p.parseErr != nil {
		return nil, p.parseErr
	}
	return p.event, nil
}

func newService(t *testing.T) (*Service, *fakeProvider) {
	t.Helper()
	ctx := context.Background()
	gdb, err := db.OpenMemory(ctx, fmt.Sprintf("billing_%s_%d", t.Name(), time.Now().UnixNano()))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close(gdb) })
	userRepo := db.NewUserRepository(gdb)
	if err := userRepo.Create(ctx, &users.User{ID: "u1", Email: "pm@example.com"}); err != nil {
		t.Fatal(err)
	}
	p := &fakeProvider{subs: map[string]*domain.ProviderSubscription{}}
	return &Service{
		Repo:      db.NewSubscriptionRepository(gdb),
		Users:     userRepo,
		Provider:  p,
		Clock:     application.SystemClock{},
		BaseURL:   "https://sitesafe.test",
		TrialDays: 7,
	}, p
}

func TestCreateCheckout(t *testing.T) {
	svc, p := newService(t)
	ctx := context.Background()

	if _, err := svc.CreateCheckout(ctx, CheckoutCommand{UserID: "u1", PriceID: "price_1"}); !errors.Is(err, ErrMissingPrice) {
		t.Fatalf("expected ErrMissingPrice, got %v", err)
	}
	if _, err := svc.CreateCheckout(ctx, CheckoutCommand{UserID: "ghost", PriceID: "price_1", Plan: "pro"}); !errors.Is(err, users.ErrNotFound) {
		t.Fatalf("expected users.ErrNotFound, got %v", err)
	}

	sess, err := svc.CreateCheckout(ctx, CheckoutCommand{UserID: "u1", PriceID: "price_1", Plan: "pro"})
	if err != nil {
		t.Fatalf("CreateCheckout: %v", err)
	}
	if sess.ID != "cs_1" || sess.URL == "" {
		t.Fatalf("unexpected session %+v", sess)
	}
	req := p.lastReq
	if req.CustomerID != "cus_1" || req.TrialDays != 7 || req.UserID != "u1" {
		t.Fatalf("unexpected request %+v", req)
	}
	if req.SuccessURL != "https://sitesafe.test/app?session_id={CHECKOUT_SESSION_ID}" || req.CancelURL != "https://sitesafe.test/pricing" {
		t.Fatalf("unexpected urls %+v", req)
	}

	// customer is reused on the second attempt
	if _, err := svc.CreateCheckout(ctx, CheckoutCommand{UserID: "u1", PriceID: "price_1", Plan: "pro"}); err != nil {
		t.Fatal(err)
	}
	if p.customers != 1 {
		t.Fatalf("customer created %d times", p.customers)
	}
}

func TestCreateCheckoutRejectsSubscribedUser(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	if err := svc.Repo.Create(ctx, &domain.Subscription{
		ID: "s1", UserID: "u1", StripeSubscriptionID: "sub_1", Status: domain.StatusActive,
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.CreateCheckout(ctx, CheckoutCommand{UserID: "u1", PriceID: "price_1", Plan: "pro"}); !errors.Is(err, domain.ErrAlreadySubscribed) {
		t.Fatalf("expected ErrAlreadySubscribed, got %v", err)
	}
}

func TestWebhookCheckoutCompletedCreatesSubscription(t *testing.T) {
	svc, p := newService(t)
	ctx := context.Background()
	end := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)
	p.subs["sub_9"] = &domain.ProviderSubscription{ID: "sub_9", CustomerID: "cus_1", PriceID: "price_1", Status: "trialing", CurrentPeriodEnd: end}
	p.event = &domain.Event{Type: domain.EventCheckoutCompleted, Checkout: &domain.CompletedCheckout{
		SessionID: "cs_1", Mode: "subscription", SubscriptionID: "sub_9", UserID: "u1",
	}}

	if err := svc.HandleWebhook(ctx, nil, "sig"); err != nil {
		t.Fatalf("HandleWebhook: %v", err)
	}
	got, err := svc.Repo.GetByStripeID(ctx, "sub_9")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != domain.StatusTrialing || got.UserID != "u1" || !got.CurrentPeriodEnd.Equal(end) {
		t.Fatalf("unexpected subscription %+v", got)
	}
	ok, err := svc.Entitled(ctx, "u1")
	if err != nil || !ok {
		t.Fatalf("expected entitled, got %v %v", ok, err)
	}

	// a replay updates instead of failing on the unique index
	if err := svc.HandleWebhook(ctx, nil, "sig"); err != nil {
		t.Fatalf("replayed checkout: %v", err)
	}
}

func TestWebhookSubscriptionEvents(t *testing.T) {
	svc, p := newService(t)
	ctx := context.Background()
	if err := svc.Users.SetStripeCustomerID(ctx, "u1", "cus_1"); err != nil {
		t.Fatal(err)
	}

	p.event = &domain.Event{Type: domain.EventSubscriptionCreated, Subscription: &domain.ProviderSubscription{
		ID: "sub_2", CustomerID: "cus_1", PriceID: "price_1", Status: "active",
	}}
	if err := svc.HandleWebhook(ctx, nil, "sig"); err != nil {
		t.Fatal(err)
	}
	p.event = &domain.Event{Type: domain.EventSubscriptionDeleted, Subscription: &domain.ProviderSubscription{
		ID: "sub_2", CustomerID: "cus_1", PriceID: "price_1", Status: "canceled",
	}}
	if err := svc.HandleWebhook(ctx, nil, "sig"); err != nil {
		t.Fatal(err)
	}
	got, _ := svc.Repo.GetByStripeID(ctx, "sub_2")
	if got.Status != domain.StatusCanceled {
		t.Fatalf("expected CANCELED, got %s", got.Status)
	}
	if ok, _ := svc.Entitled(ctx, "u1"); ok {
		t.Fatalf("canceled subscription must not entitle")
	}

	// unknown customer is logged and acknowledged
	p.event = &domain.Event{Type: domain.EventSubscriptionUpdated, Subscription: &domain.ProviderSubscription{
		ID: "sub_3", CustomerID: "cus_unknown", Status: "active",
	}}
	if err := svc.HandleWebhook(ctx, nil, "sig"); err != nil {
		t.Fatalf("unknown customer should not fail: %v", err)
	}
	if _, err := svc.Repo.GetByStripeID(ctx, "sub_3"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("no row expected for unknown customer")
	}
}

func TestWebhookSignatureErrorsPassThrough(t *testing.T) {
	svc, p := newService(t)
	p.parseErr = domain.ErrInvalidSignature
	if err := svc.HandleWebhook(context.Background(), []byte("{}"), "bad"); !errors.Is(err, domain.ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
	p.parseErr = nil
	p.event = &domain.Event{Type: "invoice.paid"}
	if err := svc.HandleWebhook(context.Background(), []byte("{}"), "sig"); err != nil {
		t.Fatalf("irrelevant events are acknowledged: %v", err)
	}
}
