package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/bryanwahyu/sitesafe/internal/application"
	appai "github.com/bryanwahyu/sitesafe/internal/application/ai"
	appauth "github.com/bryanwahyu/sitesafe/internal/application/auth"
	appbilling "github.com/bryanwahyu/sitesafe/internal/application/billing"
	appqueue "github.com/bryanwahyu/sitesafe/internal/application/queue"
	appreports "github.com/bryanwahyu/sitesafe/internal/application/reports"
	appuploads "github.com/bryanwahyu/sitesafe/internal/application/uploads"
	domai "github.com/bryanwahyu/sitesafe/internal/domain/ai"
	"github.com/bryanwahyu/sitesafe/internal/domain/auth"
	"github.com/bryanwahyu/sitesafe/internal/domain/reports"
	"github.com/bryanwahyu/sitesafe/internal/domain/uploads"
	"github.com/bryanwahyu/sitesafe/internal/domain/users"
	"github.com/bryanwahyu/sitesafe/internal/infra/billing/stripe"
	"github.com/bryanwahyu/sitesafe/internal/infra/db"
	"github.com/bryanwahyu/sitesafe/internal/infra/extract"
	"github.com/bryanwahyu/sitesafe/internal/middleware"
)

const queueSecret = "queue-secret"

var testNow = time.Date(2024, 6, 3, 15, 4, 0, 0, time.UTC)

type memFiles struct {
	mu sync.Mutex
	m  map[string][]byte
}

func (f *memFiles) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.m[key] = b
	return nil
}

func (f *memFiles) Get(_ context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.m[key]
	if !ok {
		return nil, uploads.ErrNotFound
	}
	return b, nil
}

func (f *memFiles) Remove(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.m, key)
	return nil
}

type stubGenerator struct{}

func (stubGenerator) Generate(_ context.Context, doc domai.Document) appai.Draft {
	return appai.Draft{
		RiskFlags: []reports.RiskFlag{{Description: "Scaffold tie missing", Severity: reports.SeverityHigh}},
		Summary:   "Reviewed " + doc.FileName,
		Markdown:  "# Findings\n\n<script>alert(1)</script>\n\n- scaffold",
	}
}

type captureMailer struct {
	mu   sync.Mutex
	link string
}

func (m *captureMailer) SendMagicLink(_ context.Context, _, link string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.link = link
	return nil
}

type testServer struct {
	h      http.Handler
	gdb    *gorm.DB
	files  *memFiles
	mailer *captureMailer
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ctx := context.Background()
	gdb, err := db.OpenMemory(ctx, fmt.Sprintf("http_%s_%d", t.Name(), time.Now().UnixNano()))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close(gdb) })

	clock := application.FixedClock{T: testNow}
	userRepo := db.NewUserRepository(gdb)
	sessions := db.NewSessionRepository(gdb)
	uploadRepo := db.NewUploadRepository(gdb)
	reportRepo := db.NewReportRepository(gdb)

	for _, id := range []string{"u1", "u2"} {
		if err := userRepo.Create(ctx, &users.User{ID: id, Email: id + "@example.com", CreatedAt: testNow}); err != nil {
			t.Fatal(err)
		}
		if err := sessions.CreateSession(ctx, &auth.Session{
			TokenHash: appauth.HashToken("tok-" + id),
			UserID:    id,
			ExpiresAt: testNow.Add(time.Hour),
			CreatedAt: testNow,
		}); err != nil {
			t.Fatal(err)
		}
	}

	ts := &testServer{gdb: gdb, files: &memFiles{m: map[string][]byte{}}, mailer: &captureMailer{}}
	billingSvc := &appbilling.Service{
		Repo:      db.NewSubscriptionRepository(gdb),
		Users:     userRepo,
		Provider:  stripe.New("sk_test_dummy", "whsec_test"),
		Clock:     clock,
		BaseURL:   "https://sitesafe.test",
		TrialDays: 7,
	}
	ts.h = NewRouter(Deps{
		Auth: &appauth.Service{
			Users:      userRepo,
			Sessions:   sessions,
			Mailer:     ts.mailer,
			Clock:      clock,
			Secret:     []byte("test-secret"),
			BaseURL:    "https://sitesafe.test",
			LinkTTL:    24 * time.Hour,
			SessionTTL: 30 * 24 * time.Hour,
		},
		Uploads: &appuploads.Service{Repo: uploadRepo, Files: ts.files, Clock: clock, Billing: billingSvc},
		Queue: &appqueue.Service{
			Uploads:   uploadRepo,
			Files:     ts.files,
			Extractor: extract.New(nil),
			Reports:   reportRepo,
			Generator: stubGenerator{},
			Clock:     clock,
		},
		Reports:     appreports.NewService(reportRepo),
		Billing:     billingSvc,
		Prices:      []Price{{Plan: "pro", PriceID: "price_pro", Label: "Pro · £29/month"}},
		QueueSecret: queueSecret,
	})
	return ts
}

func (ts *testServer) do(req *http.Request, user string) *httptest.ResponseRecorder {
	if user != "" {
		req.AddCookie(&http.Cookie{Name: middleware.SessionCookie, Value: "tok-" + user})
	}
	rec := httptest.NewRecorder()
	ts.h.ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) upload(t *testing.T, user, filename, content string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = fw.Write([]byte(content))
	_ = mw.Close()
	req := httptest.NewRequest(http.MethodPost, "/api/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return ts.do(req, user)
}

func (ts *testServer) process(t *testing.T) appqueue.Result {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/queue/process", nil)
	req.Header.Set(middleware.QueueSecretHeader, queueSecret)
	rec := ts.do(req, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("process: status %d body %s", rec.Code, rec.Body.String())
	}
	var res appqueue.Result
	if err := json.NewDecoder(rec.Body).Decode(&res); err != nil {
		t.Fatal(err)
	}
	return res
}

func TestProtectedPageRedirectsToSignIn(t *testing.T) {
	ts := newTestServer(t)
	for _, path := range []string{"/app", "/upload", "/reports"} {
		rec := ts.do(httptest.NewRequest(http.MethodGet, path, nil), "")
		if rec.Code != http.StatusSeeOther {
			t.Fatalf("%s: status %d", path, rec.Code)
		}
		want := "/api/auth/signin?callbackUrl=" + url.QueryEscape(path)
		if got := rec.Header().Get("Location"); got != want {
			t.Fatalf("%s: location %q, want %q", path, got, want)
		}
	}
}

func TestProtectedAPIReturns401(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(httptest.NewRequest(http.MethodGet, "/api/reports", nil), "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Unauthorized") {
		t.Fatalf("body %s", rec.Body.String())
	}
	rec = ts.upload(t, "", "notes.txt", "hello")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("upload status %d", rec.Code)
	}
}

func TestUploadCreatesPendingUpload(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.upload(t, "u1", "diary.txt", "Scaffold on east side missing ties.")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d body %s", rec.Code, rec.Body.String())
	}
	var res appuploads.SubmitResult
	if err := json.NewDecoder(rec.Body).Decode(&res); err != nil {
		t.Fatal(err)
	}
	if !res.Success || res.UploadID == "" {
		t.Fatalf("unexpected result %+v", res)
	}
	if want := "u1/" + res.UploadID + ".txt"; res.StoragePath != want {
		t.Fatalf("storage path %q, want %q", res.StoragePath, want)
	}
	if _, ok := ts.files.m[res.StoragePath]; !ok {
		t.Fatalf("object %s not stored", res.StoragePath)
	}
	up, err := db.NewUploadRepository(ts.gdb).Get(context.Background(), res.UploadID)
	if err != nil {
		t.Fatal(err)
	}
	if up.Status != uploads.StatusPending || up.UserID != "u1" || up.Filename != "diary.txt" {
		t.Fatalf("unexpected upload %+v", up)
	}
}

func TestUploadRejectsBadInput(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.upload(t, "u1", "payload.exe", "MZ")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("filetype: status %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/upload", strings.NewReader("{}"))
	req.Header.Set("Content-Type", "application/json")
	rec = ts.do(req, "u1")
	if rec.Code != http.StatusBadRequest || !strings.Contains(rec.Body.String(), "no file provided") {
		t.Fatalf("missing file: status %d body %s", rec.Code, rec.Body.String())
	}
}

func TestQueueProcessFlow(t *testing.T) {
	ts := newTestServer(t)

	unauth := ts.do(httptest.NewRequest(http.MethodPost, "/api/queue/process", nil), "")
	if unauth.Code != http.StatusUnauthorized {
		t.Fatalf("queue without secret: status %d", unauth.Code)
	}

	if res := ts.process(t); res.Message != appqueue.MessageEmpty {
		t.Fatalf("empty queue message %q", res.Message)
	}

	rec := ts.upload(t, "u1", "diary.md", "# Day 1\nScaffold ties missing.")
	if rec.Code != http.StatusOK {
		t.Fatalf("upload status %d", rec.Code)
	}
	var up appuploads.SubmitResult
	_ = json.NewDecoder(rec.Body).Decode(&up)

	res := ts.process(t)
	if res.Message != "Processed upload: "+up.UploadID {
		t.Fatalf("message %q", res.Message)
	}
	if res.Status != uploads.StatusCompleted || res.ReportID == "" {
		t.Fatalf("unexpected result %+v", res)
	}

	own := ts.do(httptest.NewRequest(http.MethodGet, "/api/reports/"+res.ReportID, nil), "u1")
	if own.Code != http.StatusOK {
		t.Fatalf("owner fetch: status %d", own.Code)
	}
	var rep reports.Report
	if err := json.NewDecoder(own.Body).Decode(&rep); err != nil {
		t.Fatal(err)
	}
	if rep.Title != "Report for diary.md (2024-06-03)" || len(rep.RiskFlags) != 1 {
		t.Fatalf("unexpected report %+v", rep)
	}

	other := ts.do(httptest.NewRequest(http.MethodGet, "/api/reports/"+res.ReportID, nil), "u2")
	if other.Code != http.StatusNotFound {
		t.Fatalf("non-owner fetch: status %d", other.Code)
	}

	list := ts.do(httptest.NewRequest(http.MethodGet, "/api/reports", nil), "u1")
	var items []appreports.ListItem
	if err := json.NewDecoder(list.Body).Decode(&items); err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 || items[0].Status != appreports.StatusComplete {
		t.Fatalf("unexpected list %+v", items)
	}

	if res := ts.process(t); res.Message != appqueue.MessageEmpty {
		t.Fatalf("queue should be drained, got %q", res.Message)
	}
}

func TestQueueProcessMarksFailedButAnswers200(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.upload(t, "u1", "diary.txt", "text")
	var up appuploads.SubmitResult
	_ = json.NewDecoder(rec.Body).Decode(&up)
	delete(ts.files.m, up.StoragePath)

	res := ts.process(t)
	if res.Status != uploads.StatusFailed || res.Message != "Processed upload: "+up.UploadID {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestRequeue(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()
	repo := db.NewUploadRepository(ts.gdb)
	failed := &uploads.Upload{ID: "3f1c5a52-0d7e-4c5e-9a57-6f0d2b1c9e11", UserID: "u1", Filename: "a.txt",
		StoragePath: "u1/a.txt", Filetype: "txt", Status: uploads.StatusFailed, CreatedAt: testNow}
	done := &uploads.Upload{ID: "8b0e3f6a-2c4d-4e1f-b6a7-9d8c7b6a5f44", UserID: "u1", Filename: "b.txt",
		StoragePath: "u1/b.txt", Filetype: "txt", Status: uploads.StatusCompleted, CreatedAt: testNow}
	for _, u := range []*uploads.Upload{failed, done} {
		if err := repo.Create(ctx, u); err != nil {
			t.Fatal(err)
		}
	}

	post := func(user, id string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/reports", strings.NewReader(`{"uploadId":"`+id+`"}`))
		req.Header.Set("Content-Type", "application/json")
		return ts.do(req, user)
	}

	if rec := post("u2", failed.ID); rec.Code != http.StatusNotFound {
		t.Fatalf("non-owner: status %d", rec.Code)
	}
	if rec := post("u1", done.ID); rec.Code != http.StatusConflict {
		t.Fatalf("completed: status %d", rec.Code)
	}
	if rec := post("u1", "not-a-uuid"); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad id: status %d", rec.Code)
	}
	if rec := post("u1", failed.ID); rec.Code != http.StatusAccepted {
		t.Fatalf("failed: status %d body %s", rec.Code, rec.Body.String())
	}
	got, err := repo.Get(ctx, failed.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != uploads.StatusPending {
		t.Fatalf("status %s, want PENDING", got.Status)
	}
}

func TestReportPageRendersMarkdown(t *testing.T) {
	ts := newTestServer(t)
	ts.upload(t, "u1", "diary.txt", "text")
	res := ts.process(t)

	rec := ts.do(httptest.NewRequest(http.MethodGet, "/reports/"+res.ReportID, nil), "u1")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "<h1>Findings</h1>") {
		t.Fatalf("markdown not rendered: %s", body)
	}
	if strings.Contains(body, "<script>alert(1)</script>") {
		t.Fatal("raw html from the model must not be rendered")
	}
	if !strings.Contains(body, `class="sev-high"`) {
		t.Fatal("risk flag severity class missing")
	}

	rec = ts.do(httptest.NewRequest(http.MethodGet, "/reports/"+res.ReportID, nil), "u2")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("non-owner page: status %d", rec.Code)
	}
}

func TestStripeWebhookRejectsBadSignature(t *testing.T) {
	ts := newTestServer(t)
	payload := `{"id":"evt_1","object":"event","type":"checkout.session.completed"}`

	req := httptest.NewRequest(http.MethodPost, "/api/stripe/webhook", strings.NewReader(payload))
	req.Header.Set("Stripe-Signature", fmt.Sprintf("t=%d,v1=deadbeef", time.Now().Unix()))
	if rec := ts.do(req, ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad signature: status %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/stripe/webhook", strings.NewReader(payload))
	if rec := ts.do(req, ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("missing signature: status %d", rec.Code)
	}
}

func TestCreateCheckoutRequiresPrice(t *testing.T) {
	ts := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/stripe/create-session", strings.NewReader(`{"plan":"pro"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := ts.do(req, "u1")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status %d body %s", rec.Code, rec.Body.String())
	}
}

func TestSignInFlow(t *testing.T) {
	ts := newTestServer(t)
	form := url.Values{"email": {"New.User@Example.com"}, "callbackUrl": {"/reports"}}
	req := httptest.NewRequest(http.MethodPost, "/api/auth/signin/email", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := ts.do(req, "")
	if rec.Code != http.StatusSeeOther || !strings.HasPrefix(rec.Header().Get("Location"), "/api/auth/verify-request") {
		t.Fatalf("signin: status %d location %q", rec.Code, rec.Header().Get("Location"))
	}

	link, err := url.Parse(ts.mailer.link)
	if err != nil || ts.mailer.link == "" {
		t.Fatalf("no magic link sent: %v", err)
	}
	rec = ts.do(httptest.NewRequest(http.MethodGet, link.RequestURI(), nil), "")
	if rec.Code != http.StatusFound || rec.Header().Get("Location") != "/reports" {
		t.Fatalf("callback: status %d location %q", rec.Code, rec.Header().Get("Location"))
	}
	var session *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == middleware.SessionCookie {
			session = c
		}
	}
	if session == nil || !session.HttpOnly || session.SameSite != http.SameSiteLaxMode {
		t.Fatalf("unexpected session cookie %+v", session)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/auth/session", nil)
	req.AddCookie(session)
	rec = httptest.NewRecorder()
	ts.h.ServeHTTP(rec, req)
	if !strings.Contains(rec.Body.String(), "new.user@example.com") {
		t.Fatalf("session body %s", rec.Body.String())
	}

	// links are single use
	rec = ts.do(httptest.NewRequest(http.MethodGet, link.RequestURI(), nil), "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("reused link: status %d", rec.Code)
	}
}

func TestSignInRejectsInvalidEmail(t *testing.T) {
	ts := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/auth/signin/email", strings.NewReader(`{"email":"nope"}`))
	req.Header.Set("Content-Type", "application/json")
	if rec := ts.do(req, ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("status %d", rec.Code)
	}
}

func TestPublicPages(t *testing.T) {
	ts := newTestServer(t)
	for path, want := range map[string]string{
		"/":                "How it works",
		"/pricing":         "Sign in to subscribe",
		"/api/auth/signin": "Sign in with email",
	} {
		rec := ts.do(httptest.NewRequest(http.MethodGet, path, nil), "")
		if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), want) {
			t.Fatalf("%s: status %d, missing %q", path, rec.Code, want)
		}
	}
	rec := ts.do(httptest.NewRequest(http.MethodGet, "/nope", nil), "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown path: status %d", rec.Code)
	}
}

func TestDashboardListsUploads(t *testing.T) {
	ts := newTestServer(t)
	ts.upload(t, "u1", "diary.txt", "text")
	rec := ts.do(httptest.NewRequest(http.MethodGet, "/app?uploaded=1", nil), "u1")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "diary.txt") || !strings.Contains(body, "PENDING") {
		t.Fatalf("upload missing from dashboard: %s", body)
	}
}
