package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/linkvault/internal/models"
	"github.com/linkvault/internal/store"
)

var (
	ErrUserExists         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
)

const sessionTokenBytes = 36

// Service owns identities and bearer-token sessions.
type Service struct {
	users      store.UserStore
	sessions   store.SessionStore
	clock      store.Clock
	sessionTTL time.Duration
}

func NewService(users store.UserStore, sessions store.SessionStore, clock store.Clock, sessionTTL time.Duration) *Service {
	return &Service{
		users:      users,
		sessions:   sessions,
		clock:      clock,
		sessionTTL: sessionTTL,
	}
}

// Register creates a new identity. Emails are trimmed and lower-cased before
// uniqueness is checked.
func (s *Service) Register(ctx context.Context, req *models.UserCreateRequest) (*models.User, error) {
	email := NormalizeEmail(req.Email)

	hash, err := HashSecret(req.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &models.User{
		ID:           uuid.New(),
		Email:        email,
		DisplayName:  strings.TrimSpace(req.DisplayName),
		PasswordHash: hash,
		CreatedAt:    s.clock.Now(),
	}

	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, ErrUserExists
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

// Login verifies credentials and issues a fresh session.
func (s *Service) Login(ctx context.Context, req *models.UserLoginRequest) (*models.UserLoginResponse, error) {
	user, err := s.users.GetUserByEmail(ctx, NormalizeEmail(req.Email))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	if !VerifySecret(req.Password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	token, session, err := s.Issue(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	return &models.UserLoginResponse{
		Token:          token,
		TokenExpiresAt: session.ExpiresAt,
		User:           user,
	}, nil
}

// Issue mints a session for the given user and returns the plaintext bearer
// token. This is the only place the plaintext ever exists server-side.
func (s *Service) Issue(ctx context.Context, userID uuid.UUID) (string, *models.Session, error) {
	token := NewToken(sessionTokenBytes)
	now := s.clock.Now()

	session := &models.Session{
		ID:        uuid.New(),
		UserID:    userID,
		TokenHash: HashToken(token),
		ExpiresAt: now.Add(s.sessionTTL),
		CreatedAt: now,
	}
	if err := s.sessions.CreateSession(ctx, session); err != nil {
		return "", nil, fmt.Errorf("create session: %w", err)
	}
	return token, session, nil
}

// Resolve maps a presented bearer token to its identity. A miss of any kind
// (unknown token, expired session, vanished user) yields nil values without
// an error; errors are reserved for store failures.
func (s *Service) Resolve(ctx context.Context, bearerToken string) (*models.User, *models.Session, error) {
	if bearerToken == "" {
		return nil, nil, nil
	}

	session, err := s.sessions.GetSessionByTokenHash(ctx, HashToken(bearerToken))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil, nil
		}
		return nil, nil, fmt.Errorf("lookup session: %w", err)
	}

	if !session.Valid(s.clock.Now()) {
		return nil, nil, nil
	}

	user, err := s.users.GetUserByID(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil, nil
		}
		return nil, nil, fmt.Errorf("lookup user: %w", err)
	}
	return user, session, nil
}

// Revoke deletes the session behind a bearer token.
func (s *Service) Revoke(ctx context.Context, bearerToken string) error {
	err := s.sessions.DeleteSessionByTokenHash(ctx, HashToken(bearerToken))
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// SweepSessions removes sessions whose expiry precedes now. Called by the
// reaper.
func (s *Service) SweepSessions(ctx context.Context, now time.Time) (int, error) {
	return s.sessions.DeleteExpiredSessions(ctx, now)
}

// NormalizeEmail canonicalizes an email address for storage and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
