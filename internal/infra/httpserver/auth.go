package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	appauth "github.com/bryanwahyu/sitesafe/internal/application/auth"
	"github.com/bryanwahyu/sitesafe/internal/domain/auth"
	"github.com/bryanwahyu/sitesafe/internal/middleware"
)

type signInData struct {
	Email       string
	CallbackURL string
}

// GET /api/auth/signin?callbackUrl=
func (r *Router) handleSignInPage(w http.ResponseWriter, req *http.Request) error {
	cb := appauth.SafeCallback(req.URL.Query().Get("callbackUrl"))
	if middleware.UserFromContext(req.Context()) != nil {
		http.Redirect(w, req, cb, http.StatusSeeOther)
		return nil
	}
	return r.render(w, req, http.StatusOK, "signin.html", view{
		Title: "Sign in",
		Data:  signInData{CallbackURL: cb},
	})
}

// POST /api/auth/signin/email
// Form or JSON body: {"email": "...", "callbackUrl": "..."}
func (r *Router) handleSignInEmail(w http.ResponseWriter, req *http.Request) error {
	var body struct {
		Email       string `json:"email"`
		CallbackURL string `json:"callbackUrl"`
	}
	asJSON := isJSON(req)
	if asJSON {
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			r.writeError(w, req, fmt.Errorf("%w: %v", errBadRequest, err))
			return nil
		}
	} else {
		body.Email = req.PostFormValue("email")
		body.CallbackURL = req.PostFormValue("callbackUrl")
	}

	err := r.authSvc.RequestMagicLink(req.Context(), body.Email, body.CallbackURL)
	switch {
	case err != nil && asJSON:
		r.writeError(w, req, err)
		return nil
	case errors.Is(err, auth.ErrInvalidEmail):
		return r.render(w, req, http.StatusBadRequest, "signin.html", view{
			Title: "Sign in",
			Error: "Please enter a valid email address.",
			Data:  signInData{Email: body.Email, CallbackURL: appauth.SafeCallback(body.CallbackURL)},
		})
	case err != nil:
		return err
	case asJSON:
		return writeJSON(w, http.StatusOK, map[string]string{"message": "Check your email"})
	}
	http.Redirect(w, req, "/api/auth/verify-request?email="+url.QueryEscape(body.Email), http.StatusSeeOther)
	return nil
}

// GET /api/auth/verify-request
func (r *Router) handleVerifyRequest(w http.ResponseWriter, req *http.Request) error {
	return r.render(w, req, http.StatusOK, "verify.html", view{
		Title: "Check your email",
		Data:  signInData{Email: req.URL.Query().Get("email")},
	})
}

// GET /api/auth/callback/email?token=&callbackUrl=
func (r *Router) handleCallback(w http.ResponseWriter, req *http.Request) error {
	q := req.URL.Query()
	signIn, err := r.authSvc.VerifyMagicLink(req.Context(), q.Get("token"))
	if errors.Is(err, auth.ErrInvalidToken) {
		return r.render(w, req, http.StatusBadRequest, "signin.html", view{
			Title: "Sign in",
			Error: "This sign-in link is invalid or has expired. Request a new one below.",
			Data:  signInData{CallbackURL: appauth.SafeCallback(q.Get("callbackUrl"))},
		})
	}
	if err != nil {
		return err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookie,
		Value:    signIn.Token,
		Path:     "/",
		Expires:  signIn.ExpiresAt,
		HttpOnly: true,
		Secure:   r.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, req, appauth.SafeCallback(q.Get("callbackUrl")), http.StatusFound)
	return nil
}

// GET|POST /api/auth/signout
func (r *Router) handleSignOut(w http.ResponseWriter, req *http.Request) error {
	if c, err := req.Cookie(middleware.SessionCookie); err == nil {
		if err := r.authSvc.SignOut(req.Context(), c.Value); err != nil {
			return err
		}
	}
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   r.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, req, "/", http.StatusSeeOther)
	return nil
}

// GET /api/auth/session
func (r *Router) handleSession(w http.ResponseWriter, req *http.Request) error {
	u := middleware.UserFromContext(req.Context())
	if u == nil {
		return writeJSON(w, http.StatusOK, map[string]any{})
	}
	return writeJSON(w, http.StatusOK, map[string]any{
		"user": map[string]any{
			"id":    u.ID,
			"email": u.Email,
			"name":  u.Name,
			"role":  u.Role,
		},
	})
}
