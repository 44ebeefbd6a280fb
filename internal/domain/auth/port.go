package auth

import (
	"context"
	"errors"
	"time"
)

var (
	ErrInvalidEmail = errors.New("invalid email address")
	ErrInvalidToken = errors.New("invalid or expired sign-in link")
	ErrNoSession    = errors.New("unauthorized")
)

// SessionRepository persists sessions and magic-link tokens.
type SessionRepository interface {
	CreateSession(ctx context.Context, s *Session) error
	GetSession(ctx context.Context, tokenHash string) (*Session, error)
	DeleteSession(ctx context.Context, tokenHash string) error
	ExtendSession(ctx context.Context, tokenHash string, expiresAt time.Time) error
	DeleteExpiredSessions(ctx context.Context, before time.Time) (int64, error)

	CreateVerificationToken(ctx context.Context, v *VerificationToken) error
	// ConsumeVerificationToken marks the token used. It fails with ErrInvalidToken when
	// the token is unknown or was already used.
	ConsumeVerificationToken(ctx context.Context, id string, at time.Time) (*VerificationToken, error)
}

// Mailer sends the sign-in email.
type Mailer interface {
	SendMagicLink(ctx context.Context, to, link string) error
}

// SessionCache is an optional read-through cache in front of the session table.
type SessionCache interface {
	GetSession(ctx context.Context, tokenHash string) (*Session, bool)
	SetSession(ctx context.Context, tokenHash string, s *Session, ttl time.Duration) error
	DeleteSession(ctx context.Context, tokenHash string) error
}
