package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/labstack/gommon/log"

	appauth "github.com/bryanwahyu/sitesafe/internal/application/auth"
	appbilling "github.com/bryanwahyu/sitesafe/internal/application/billing"
	appqueue "github.com/bryanwahyu/sitesafe/internal/application/queue"
	appreports "github.com/bryanwahyu/sitesafe/internal/application/reports"
	appuploads "github.com/bryanwahyu/sitesafe/internal/application/uploads"
	domai "github.com/bryanwahyu/sitesafe/internal/domain/ai"
	"github.com/bryanwahyu/sitesafe/internal/domain/auth"
	"github.com/bryanwahyu/sitesafe/internal/domain/billing"
	"github.com/bryanwahyu/sitesafe/internal/domain/reports"
	"github.com/bryanwahyu/sitesafe/internal/domain/uploads"
	"github.com/bryanwahyu/sitesafe/internal/domain/users"
	"github.com/bryanwahyu/sitesafe/internal/middleware"
)

// Price is one plan shown on the pricing page.
type Price struct {
	Plan    string
	PriceID string
	Label   string
}

// Deps are the services and settings the router needs.
type Deps struct {
	Auth    *appauth.Service
	Uploads *appuploads.Service
	Queue   *appqueue.Service
	Reports *appreports.Service
	Billing *appbilling.Service

	Health map[string]middleware.HealthChecker
	// Limiter guards sign-in and upload; nil disables rate limiting.
	Limiter *middleware.RateLimiter

	Prices         []Price
	AllowedOrigins []string
	SecureCookies  bool
	QueueSecret    string
}

type Router struct {
	authSvc    *appauth.Service
	uploadsSvc *appuploads.Service
	queueSvc   *appqueue.Service
	reportsSvc *appreports.Service
	billingSvc *appbilling.Service

	prices        []Price
	secureCookies bool
	pages         *pageSet
}

func NewRouter(d Deps) http.Handler {
	r := &Router{
		authSvc:       d.Auth,
		uploadsSvc:    d.Uploads,
		queueSvc:      d.Queue,
		reportsSvc:    d.Reports,
		billingSvc:    d.Billing,
		prices:        d.Prices,
		secureCookies: d.SecureCookies,
		pages:         mustParsePages(),
	}

	origins := d.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	mux := chi.NewRouter()
	mux.Use(middleware.LoggingMiddleware)
	mux.Use(middleware.MetricsMiddleware)
	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "Stripe-Signature", middleware.QueueSecretHeader},
		AllowCredentials: len(d.AllowedOrigins) > 0,
		MaxAge:           300,
	}))
	mux.Use(middleware.LoadUser(d.Auth))

	limit := func(h http.Handler) http.Handler { return h }
	if d.Limiter != nil {
		limit = middleware.RateLimit(d.Limiter)
	}

	// operational
	checkers := d.Health
	if checkers == nil {
		checkers = map[string]middleware.HealthChecker{}
	}
	mux.Get("/health", middleware.HealthHandler(checkers))
	mux.Get("/ready", middleware.ReadinessHandler)
	mux.Get("/live", middleware.LivenessHandler)
	mux.Get("/metrics", middleware.MetricsHandler)

	mux.Route("/api", func(rt chi.Router) {
		rt.Route("/auth", func(rt chi.Router) {
			rt.Get("/signin", r.page(r.handleSignInPage))
			rt.With(limit).Post("/signin/email", r.page(r.handleSignInEmail))
			rt.Get("/verify-request", r.page(r.handleVerifyRequest))
			rt.Get("/callback/email", r.page(r.handleCallback))
			rt.Get("/signout", r.page(r.handleSignOut))
			rt.Post("/signout", r.page(r.handleSignOut))
			rt.Get("/session", r.wrap(r.handleSession))
		})

		rt.With(middleware.QueueSecret(d.QueueSecret)).Post("/queue/process", r.wrap(r.handleProcessQueue))
		rt.Post("/stripe/webhook", r.handleStripeWebhook)

		rt.Group(func(rt chi.Router) {
			rt.Use(middleware.RequireUser)
			rt.With(limit).Post("/upload", r.wrap(r.handleUpload))
			rt.Get("/reports", r.wrap(r.handleListReports))
			rt.Post("/reports", r.wrap(r.handleRequeue))
			rt.Get("/reports/{id}", r.wrap(r.handleGetReport))
			rt.Post("/stripe/create-session", r.wrap(r.handleCreateCheckout))
		})
	})

	mux.Get("/", r.page(r.handleLanding))
	mux.Get("/pricing", r.page(r.handlePricing))
	mux.Group(func(rt chi.Router) {
		rt.Use(middleware.RequirePageUser)
		rt.Get("/app", r.page(r.handleDashboard))
		rt.Get("/app/report/{id}", func(w http.ResponseWriter, req *http.Request) {
			http.Redirect(w, req, "/reports/"+chi.URLParam(req, "id"), http.StatusMovedPermanently)
		})
		rt.Get("/upload", r.page(r.handleUploadPage))
		rt.With(limit).Post("/upload", r.page(r.handleUploadForm))
		rt.Get("/reports", r.page(r.handleReportsPage))
		rt.Get("/reports/{id}", r.page(r.handleReportPage))
	})

	mux.NotFound(r.page(func(http.ResponseWriter, *http.Request) error {
		return reports.ErrNotFound
	}))

	return mux
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

// errBadRequest marks malformed input that has no domain sentinel.
var errBadRequest = errors.New("bad request")

func (r *Router) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if err := h(w, req); err != nil {
			r.writeError(w, req, err)
		}
	}
}

// writeError maps err to a status and answers {error, details?}.
func (r *Router) writeError(w http.ResponseWriter, req *http.Request, err error) {
	status := statusFor(err)
	body := map[string]string{"error": err.Error()}
	switch status {
	case http.StatusInternalServerError:
		log.Errorf("%s %s: %v", req.Method, req.URL.Path, err)
		body = map[string]string{"error": "Internal Server Error", "details": err.Error()}
	case http.StatusUnauthorized:
		body = map[string]string{"error": "Unauthorized"}
	}
	_ = writeJSON(w, status, body)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, auth.ErrNoSession):
		return http.StatusUnauthorized
	case errors.Is(err, billing.ErrNotEntitled):
		return http.StatusPaymentRequired
	case errors.Is(err, uploads.ErrNotFound), errors.Is(err, reports.ErrNotFound),
		errors.Is(err, users.ErrNotFound), errors.Is(err, billing.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, uploads.ErrNotRequeueable):
		return http.StatusConflict
	case errors.Is(err, domai.ErrQuotaExceeded):
		return http.StatusTooManyRequests
	case appuploads.IsValidation(err), errors.Is(err, errBadRequest),
		errors.Is(err, appbilling.ErrMissingPrice), errors.Is(err, billing.ErrAlreadySubscribed),
		errors.Is(err, billing.ErrMissingSignature), errors.Is(err, billing.ErrInvalidSignature),
		errors.Is(err, auth.ErrInvalidEmail), errors.Is(err, auth.ErrInvalidToken):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}

// currentUser is only called behind RequireUser or RequirePageUser.
func currentUser(req *http.Request) (*users.User, error) {
	u := middleware.UserFromContext(req.Context())
	if u == nil {
		return nil, auth.ErrNoSession
	}
	return u, nil
}
