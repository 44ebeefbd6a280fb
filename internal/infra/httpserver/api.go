package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/labstack/gommon/log"

	appbilling "github.com/bryanwahyu/sitesafe/internal/application/billing"
	appuploads "github.com/bryanwahyu/sitesafe/internal/application/uploads"
	"github.com/bryanwahyu/sitesafe/internal/domain/billing"
	"github.com/bryanwahyu/sitesafe/internal/domain/uploads"
	"github.com/bryanwahyu/sitesafe/internal/middleware"
)

// maxWebhookBody bounds the raw webhook payload we verify.
const maxWebhookBody = 1 << 20

// POST /api/upload (multipart, field "file")
func (r *Router) handleUpload(w http.ResponseWriter, req *http.Request) error {
	u, err := currentUser(req)
	if err != nil {
		return err
	}
	res, err := r.submit(w, req, u.ID)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, res)
}

// submit reads the multipart file and hands it to the upload service.
func (r *Router) submit(w http.ResponseWriter, req *http.Request, userID string) (appuploads.SubmitResult, error) {
	// room for the multipart envelope on top of the file itself
	req.Body = http.MaxBytesReader(w, req.Body, uploads.MaxSize+1<<20)
	if err := req.ParseMultipartForm(1 << 20); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return appuploads.SubmitResult{}, uploads.ErrTooLarge
		}
		return appuploads.SubmitResult{}, uploads.ErrNoFile
	}
	defer req.MultipartForm.RemoveAll()

	file, header, err := req.FormFile("file")
	if err != nil {
		return appuploads.SubmitResult{}, uploads.ErrNoFile
	}
	defer file.Close()

	res, err := r.uploadsSvc.Submit(req.Context(), appuploads.SubmitCommand{
		UserID:   userID,
		Filename: middleware.SanitizeFilename(header.Filename),
		Size:     header.Size,
		Body:     file,
	})
	if err != nil {
		return res, err
	}
	middleware.IncrementUploads()
	return res, nil
}

// POST /api/queue/process
// Processes at most one PENDING upload. Processing failures still answer 200.
func (r *Router) handleProcessQueue(w http.ResponseWriter, req *http.Request) error {
	middleware.IncrementQueueRuns()
	res, err := r.queueSvc.ProcessNext(req.Context())
	switch res.Status {
	case uploads.StatusCompleted:
		middleware.IncrementReports()
	case uploads.StatusFailed:
		middleware.IncrementProcessingFailed()
	}
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, res)
}

// GET /api/reports
func (r *Router) handleListReports(w http.ResponseWriter, req *http.Request) error {
	u, err := currentUser(req)
	if err != nil {
		return err
	}
	list, err := r.reportsSvc.List(req.Context(), u.ID)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, list)
}

// GET /api/reports/{id}
func (r *Router) handleGetReport(w http.ResponseWriter, req *http.Request) error {
	u, err := currentUser(req)
	if err != nil {
		return err
	}
	id := chi.URLParam(req, "id")
	if err := middleware.ValidateID("report", id); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	rep, err := r.reportsSvc.Get(req.Context(), u.ID, id)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, rep)
}

// POST /api/reports
// Body: {"uploadId": "<id>"} (JSON or form). Puts a FAILED upload back in the queue.
func (r *Router) handleRequeue(w http.ResponseWriter, req *http.Request) error {
	u, err := currentUser(req)
	if err != nil {
		return err
	}
	var body struct {
		UploadID string `json:"uploadId"`
	}
	form := !isJSON(req)
	if form {
		body.UploadID = req.PostFormValue("uploadId")
	} else if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	if err := middleware.ValidateID("upload", body.UploadID); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}

	up, err := r.uploadsSvc.Requeue(req.Context(), u.ID, body.UploadID)
	if err != nil {
		return err
	}
	if form {
		http.Redirect(w, req, "/app?requeued="+up.ID, http.StatusSeeOther)
		return nil
	}
	return writeJSON(w, http.StatusAccepted, up)
}

// POST /api/stripe/create-session
// Body: {"priceId": "...", "plan": "..."}. Form posts are redirected to the checkout url.
func (r *Router) handleCreateCheckout(w http.ResponseWriter, req *http.Request) error {
	u, err := currentUser(req)
	if err != nil {
		return err
	}
	var cmd appbilling.CheckoutCommand
	form := !isJSON(req)
	if form {
		cmd.PriceID = req.PostFormValue("priceId")
		cmd.Plan = req.PostFormValue("plan")
	} else if err := json.NewDecoder(req.Body).Decode(&cmd); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	cmd.UserID = u.ID

	sess, err := r.billingSvc.CreateCheckout(req.Context(), cmd)
	if err != nil {
		return err
	}
	if form {
		http.Redirect(w, req, sess.URL, http.StatusSeeOther)
		return nil
	}
	return writeJSON(w, http.StatusOK, sess)
}

// POST /api/stripe/webhook
// Needs the raw body for signature verification, so it answers on its own instead of via wrap.
func (r *Router) handleStripeWebhook(w http.ResponseWriter, req *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(req.Body, maxWebhookBody))
	if err != nil {
		_ = writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Webhook Error: " + err.Error()})
		return
	}
	err = r.billingSvc.HandleWebhook(req.Context(), payload, req.Header.Get("Stripe-Signature"))
	switch {
	case err == nil:
		_ = writeJSON(w, http.StatusOK, map[string]bool{"received": true})
	case errors.Is(err, billing.ErrMissingSignature), errors.Is(err, billing.ErrInvalidSignature):
		log.Warnf("stripe webhook rejected: %v", err)
		_ = writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Webhook Error: " + err.Error()})
	default:
		log.Errorf("webhook handler error: %v", err)
		_ = writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Webhook handler error"})
	}
}

func isJSON(req *http.Request) bool {
	ct, _, err := mime.ParseMediaType(req.Header.Get("Content-Type"))
	return err == nil && strings.EqualFold(ct, "application/json")
}
