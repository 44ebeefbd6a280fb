package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"net/mail"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/gommon/log"

	"github.com/bryanwahyu/sitesafe/internal/application"
	domain "github.com/bryanwahyu/sitesafe/internal/domain/auth"
	"github.com/bryanwahyu/sitesafe/internal/domain/users"
)

// cacheTTL caps how long a session stays in the cache after a lookup.
const cacheTTL = 5 * time.Minute

// sessionUpdateAge is how often a used session has its expiry pushed out again.
const sessionUpdateAge = 24 * time.Hour

// Service implements the email magic-link sign-in and database sessions.
type Service struct {
	Users    users.Repository
	Sessions domain.SessionRepository
	// Cache is optional.
	Cache      domain.SessionCache
	Mailer     domain.Mailer
	Clock      application.Clock
	Secret     []byte
	BaseURL    string
	LinkTTL    time.Duration
	SessionTTL time.Duration
}

type linkClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// SignIn is the outcome of a verified magic link.
type SignIn struct {
	User *users.User
	// Token is the raw cookie value; only its hash is stored.
	Token     string
	ExpiresAt time.Time
}

// RequestMagicLink issues a single-use link for email and mails it.
func (s *Service) RequestMagicLink(ctx context.Context, email, callbackURL string) error {
	email, err := NormalizeEmail(email)
	if err != nil {
		return err
	}
	now := s.Clock.Now()
	claims := linkClaims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Subject:   email,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.LinkTTL)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.Secret)
	if err != nil {
		return fmt.Errorf("sign magic link: %w", err)
	}
	if err := s.Sessions.CreateVerificationToken(ctx, &domain.VerificationToken{
		ID:        claims.ID,
		Email:     email,
		ExpiresAt: claims.ExpiresAt.Time,
		CreatedAt: now,
	}); err != nil {
		return fmt.Errorf("store verification token: %w", err)
	}

	q := url.Values{}
	q.Set("token", token)
	q.Set("callbackUrl", SafeCallback(callbackURL))
	link := s.BaseURL + "/api/auth/callback/email?" + q.Encode()
	if err := s.Mailer.SendMagicLink(ctx, email, link); err != nil {
		return fmt.Errorf("send magic link: %w", err)
	}
	log.Infof("magic link issued for %s", email)
	return nil
}

// VerifyMagicLink checks signature, expiry and single use, then signs the user in,
// creating the account on first use.
func (s *Service) VerifyMagicLink(ctx context.Context, token string) (*SignIn, error) {
	var claims linkClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return s.Secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.Clock.Now))
	if err != nil || claims.ID == "" || claims.Email == "" {
		return nil, domain.ErrInvalidToken
	}

	now := s.Clock.Now()
	vt, err := s.Sessions.ConsumeVerificationToken(ctx, claims.ID, now)
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(vt.Email, claims.Email) || now.After(vt.ExpiresAt) {
		return nil, domain.ErrInvalidToken
	}

	user, err := s.findOrCreateUser(ctx, vt.Email, now)
	if err != nil {
		return nil, err
	}
	if user.EmailVerifiedAt == nil {
		if err := s.Users.MarkEmailVerified(ctx, user.ID); err != nil {
			return nil, err
		}
	}

	raw, err := newSessionToken()
	if err != nil {
		return nil, err
	}
	sess := &domain.Session{
		TokenHash: HashToken(raw),
		UserID:    user.ID,
		ExpiresAt: now.Add(s.SessionTTL),
		CreatedAt: now,
	}
	if err := s.Sessions.CreateSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	log.Infof("user %s signed in", user.ID)
	return &SignIn{User: user, Token: raw, ExpiresAt: sess.ExpiresAt}, nil
}

func (s *Service) findOrCreateUser(ctx context.Context, email string, now time.Time) (*users.User, error) {
	u, err := s.Users.GetByEmail(ctx, email)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, users.ErrNotFound) {
		return nil, err
	}
	u = &users.User{
		ID:        uuid.New().String(),
		Email:     email,
		Role:      users.RoleUser,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.Users.Create(ctx, u); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	log.Infof("created user %s for %s", u.ID, email)
	return u, nil
}

// Authenticate resolves a session cookie value to its user.
func (s *Service) Authenticate(ctx context.Context, rawToken string) (*users.User, error) {
	if rawToken == "" {
		return nil, domain.ErrNoSession
	}
	hash := HashToken(rawToken)
	now := s.Clock.Now()

	var sess *domain.Session
	if s.Cache != nil {
		if cached, ok := s.Cache.GetSession(ctx, hash); ok {
			sess = cached
		}
	}
	if sess == nil {
		dbSess, err := s.Sessions.GetSession(ctx, hash)
		if err != nil {
			return nil, err
		}
		sess = dbSess
		if s.Cache != nil {
			ttl := sess.ExpiresAt.Sub(now)
			if ttl > cacheTTL {
				ttl = cacheTTL
			}
			if err := s.Cache.SetSession(ctx, hash, sess, ttl); err != nil {
				log.Warnf("session cache set: %v", err)
			}
		}
	}
	if !now.Before(sess.ExpiresAt) {
		_ = s.Sessions.DeleteSession(ctx, hash)
		s.uncache(ctx, hash)
		return nil, domain.ErrNoSession
	}
	if s.SessionTTL > sessionUpdateAge && sess.ExpiresAt.Sub(now) < s.SessionTTL-sessionUpdateAge {
		s.extend(ctx, hash, sess, now)
	}

	u, err := s.Users.Get(ctx, sess.UserID)
	if errors.Is(err, users.ErrNotFound) {
		return nil, domain.ErrNoSession
	}
	return u, err
}

// SignOut deletes the session behind the cookie value. Unknown tokens are ignored.
func (s *Service) SignOut(ctx context.Context, rawToken string) error {
	if rawToken == "" {
		return nil
	}
	hash := HashToken(rawToken)
	s.uncache(ctx, hash)
	return s.Sessions.DeleteSession(ctx, hash)
}

// PurgeExpired removes sessions past their expiry.
func (s *Service) PurgeExpired(ctx context.Context) (int64, error) {
	return s.Sessions.DeleteExpiredSessions(ctx, s.Clock.Now())
}

// extend slides the session expiry to now+SessionTTL. Failures only cost the slide.
func (s *Service) extend(ctx context.Context, hash string, sess *domain.Session, now time.Time) {
	exp := now.Add(s.SessionTTL)
	if err := s.Sessions.ExtendSession(ctx, hash, exp); err != nil {
		log.Warnf("extend session: %v", err)
		return
	}
	if s.Cache == nil {
		return
	}
	fresh := *sess
	fresh.ExpiresAt = exp
	if err := s.Cache.SetSession(ctx, hash, &fresh, cacheTTL); err != nil {
		log.Warnf("session cache set: %v", err)
	}
}

func (s *Service) uncache(ctx context.Context, hash string) {
	if s.Cache == nil {
		return
	}
	if err := s.Cache.DeleteSession(ctx, hash); err != nil {
		log.Warnf("session cache delete: %v", err)
	}
}

// NormalizeEmail lower-cases and validates a bare address.
func NormalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", domain.ErrInvalidEmail
	}
	return email, nil
}

// SafeCallback keeps only local absolute paths; anything else becomes /app.
func SafeCallback(raw string) string {
	if raw == "" || !strings.HasPrefix(raw, "/") || strings.HasPrefix(raw, "//") || strings.Contains(raw, `\`) {
		return "/app"
	}
	return raw
}

// HashToken is the stored form of a session cookie value.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

func newSessionToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
