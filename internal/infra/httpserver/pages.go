package httpserver

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/labstack/gommon/log"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	appauth "github.com/bryanwahyu/sitesafe/internal/application/auth"
	appreports "github.com/bryanwahyu/sitesafe/internal/application/reports"
	"github.com/bryanwahyu/sitesafe/internal/domain/billing"
	"github.com/bryanwahyu/sitesafe/internal/domain/reports"
	"github.com/bryanwahyu/sitesafe/internal/domain/uploads"
	"github.com/bryanwahyu/sitesafe/internal/domain/users"
	"github.com/bryanwahyu/sitesafe/internal/middleware"
)

//go:embed templates/*.html
var templateFS embed.FS

var pageNames = []string{
	"landing.html",
	"signin.html",
	"verify.html",
	"dashboard.html",
	"upload.html",
	"reports.html",
	"report.html",
	"pricing.html",
	"error.html",
}

// raw HTML in model output is dropped by the default renderer
var markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

type pageSet struct {
	tmpl map[string]*template.Template
}

// view is the data every page template receives.
type view struct {
	Title string
	User  *users.User
	Error string
	Flash string
	Data  any
}

var funcs = template.FuncMap{
	"date": func(t time.Time) string { return t.Format("2 Jan 2006") },
	"datetime": func(t time.Time) string {
		return t.Format("2 Jan 2006 15:04 MST")
	},
	"severity": func(s reports.Severity) string { return "sev-" + strings.ToLower(string(s)) },
	"status":   func(s uploads.Status) string { return "status-" + strings.ToLower(string(s)) },
	"signin":   signInURL,
	"count": func(m map[reports.Severity]int, s string) int {
		return m[reports.Severity(s)]
	},
	"filesize": func(n int64) string {
		switch {
		case n >= 1<<20:
			return fmt.Sprintf("%.1f MB", float64(n)/(1<<20))
		case n >= 1<<10:
			return fmt.Sprintf("%.1f KB", float64(n)/(1<<10))
		}
		return fmt.Sprintf("%d B", n)
	},
}

func mustParsePages() *pageSet {
	ps := &pageSet{tmpl: make(map[string]*template.Template, len(pageNames))}
	for _, name := range pageNames {
		t := template.Must(template.New(name).Funcs(funcs).ParseFS(templateFS, "templates/layout.html", "templates/"+name))
		ps.tmpl[name] = t
	}
	return ps
}

// render executes the page into a buffer first so a template error still yields a clean 500.
func (r *Router) render(w http.ResponseWriter, req *http.Request, status int, name string, v view) error {
	t, ok := r.pages.tmpl[name]
	if !ok {
		return fmt.Errorf("unknown page %s", name)
	}
	if v.User == nil {
		v.User = middleware.UserFromContext(req.Context())
	}
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", v); err != nil {
		return fmt.Errorf("render %s: %w", name, err)
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, err := buf.WriteTo(w)
	return err
}

// page is wrap for HTML routes: errors become an error page, a lost session a sign-in redirect.
func (r *Router) page(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		err := h(w, req)
		if err == nil {
			return
		}
		status := statusFor(err)
		msg := err.Error()
		switch status {
		case http.StatusUnauthorized:
			http.Redirect(w, req, signInURL(req.URL.RequestURI()), http.StatusSeeOther)
			return
		case http.StatusNotFound:
			msg = "The page you are looking for does not exist."
		case http.StatusInternalServerError:
			log.Errorf("%s %s: %v", req.Method, req.URL.Path, err)
			msg = "Something went wrong. Please try again later."
		}
		if rerr := r.render(w, req, status, "error.html", view{Title: http.StatusText(status), Error: msg}); rerr != nil {
			log.Errorf("render error page: %v", rerr)
			http.Error(w, msg, status)
		}
	}
}

// GET /
func (r *Router) handleLanding(w http.ResponseWriter, req *http.Request) error {
	return r.render(w, req, http.StatusOK, "landing.html", view{Title: "SiteSafe"})
}

type pricingData struct {
	Prices     []Price
	Subscribed bool
}

// GET /pricing
func (r *Router) handlePricing(w http.ResponseWriter, req *http.Request) error {
	data := pricingData{Prices: r.prices}
	if u := middleware.UserFromContext(req.Context()); u != nil {
		ok, err := r.billingSvc.Entitled(req.Context(), u.ID)
		if err != nil {
			return err
		}
		data.Subscribed = ok
	}
	return r.render(w, req, http.StatusOK, "pricing.html", view{Title: "Pricing", Data: data})
}

type dashboardData struct {
	Reports      []appreports.ListItem
	Uploads      []*uploads.Upload
	Subscription *billing.Subscription
}

// GET /app
func (r *Router) handleDashboard(w http.ResponseWriter, req *http.Request) error {
	u, err := currentUser(req)
	if err != nil {
		return err
	}
	ctx := req.Context()
	list, err := r.reportsSvc.List(ctx, u.ID)
	if err != nil {
		return err
	}
	recent, err := r.uploadsSvc.Recent(ctx, u.ID, middleware.ValidateLimit(10))
	if err != nil {
		return err
	}
	subs, err := r.billingSvc.Current(ctx, u.ID)
	if err != nil {
		return err
	}
	data := dashboardData{Reports: list, Uploads: recent}
	if len(subs) > 0 {
		data.Subscription = subs[0]
	}

	q := req.URL.Query()
	var flash string
	switch {
	case q.Get("session_id") != "":
		flash = "Thanks! Your subscription is being activated."
	case q.Get("uploaded") != "":
		flash = "File uploaded. Your report will be generated shortly."
	case q.Get("requeued") != "":
		flash = "Upload queued for another attempt."
	}
	return r.render(w, req, http.StatusOK, "dashboard.html", view{Title: "Dashboard", Flash: flash, Data: data})
}

type uploadData struct {
	Accept  string
	MaxSize int64
}

func newUploadData() uploadData {
	exts := make([]string, 0, len(uploads.AllowedFiletypes))
	for ext := range uploads.AllowedFiletypes {
		exts = append(exts, "."+ext)
	}
	sort.Strings(exts)
	return uploadData{Accept: strings.Join(exts, ","), MaxSize: uploads.MaxSize}
}

// GET /upload
func (r *Router) handleUploadPage(w http.ResponseWriter, req *http.Request) error {
	return r.render(w, req, http.StatusOK, "upload.html", view{Title: "Upload", Data: newUploadData()})
}

// POST /upload (form)
func (r *Router) handleUploadForm(w http.ResponseWriter, req *http.Request) error {
	u, err := currentUser(req)
	if err != nil {
		return err
	}
	res, err := r.submit(w, req, u.ID)
	if err != nil {
		status := statusFor(err)
		if status != http.StatusBadRequest && status != http.StatusPaymentRequired {
			return err
		}
		msg := err.Error()
		if errors.Is(err, billing.ErrNotEntitled) {
			msg = "An active subscription is required to upload files. See the pricing page."
		}
		return r.render(w, req, status, "upload.html", view{Title: "Upload", Error: msg, Data: newUploadData()})
	}
	http.Redirect(w, req, "/app?uploaded="+url.QueryEscape(res.UploadID), http.StatusSeeOther)
	return nil
}

// GET /reports
func (r *Router) handleReportsPage(w http.ResponseWriter, req *http.Request) error {
	u, err := currentUser(req)
	if err != nil {
		return err
	}
	list, err := r.reportsSvc.List(req.Context(), u.ID)
	if err != nil {
		return err
	}
	return r.render(w, req, http.StatusOK, "reports.html", view{Title: "Reports", Data: list})
}

type reportData struct {
	Report *reports.Report
	Body   template.HTML
	Counts map[reports.Severity]int
}

// GET /reports/{id}
func (r *Router) handleReportPage(w http.ResponseWriter, req *http.Request) error {
	u, err := currentUser(req)
	if err != nil {
		return err
	}
	id := chi.URLParam(req, "id")
	if middleware.ValidateID("report", id) != nil {
		return reports.ErrNotFound
	}
	rep, err := r.reportsSvc.Get(req.Context(), u.ID, id)
	if err != nil {
		return err
	}
	body, err := renderMarkdown(rep.FullReportMarkdown)
	if err != nil {
		return err
	}
	return r.render(w, req, http.StatusOK, "report.html", view{
		Title: rep.Title,
		Data:  reportData{Report: rep, Body: body, Counts: rep.Counts()},
	})
}

func renderMarkdown(src string) (template.HTML, error) {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(src), &buf); err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	return template.HTML(buf.String()), nil
}

// signInURL is the sign-in page that returns to path afterwards.
func signInURL(path string) string {
	return "/api/auth/signin?callbackUrl=" + url.QueryEscape(appauth.SafeCallback(path))
}
