package auth

import "time"

// Session is a database-backed sign-in. Only the hash of the cookie token is stored.
type Session struct {
	TokenHash string    `json:"-"`
	UserID    string    `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// VerificationToken tracks one emailed magic link so it can be used once.
type VerificationToken struct {
	ID        string
	Email     string
	ExpiresAt time.Time
	UsedAt    *time.Time
	CreatedAt time.Time
}
