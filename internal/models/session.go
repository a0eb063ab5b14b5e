package models

import (
	"time"

	"github.com/google/uuid"
)

// Session maps an opaque bearer token to a user. Only the SHA-256 hash of
// the token is ever persisted; the plaintext is returned to the client once
// at issue time and never stored or logged.
type Session struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	TokenHash string    `json:"-"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// Valid reports whether the session is usable at the given instant. Expired
// sessions are inert even before the reaper physically removes them.
func (s *Session) Valid(now time.Time) bool {
	return now.Before(s.ExpiresAt)
}
