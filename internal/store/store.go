package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/linkvault/internal/models"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrConflict  = errors.New("concurrent update conflict")
	ErrDuplicate = errors.New("record already exists")
)

// Clock supplies the current time. All expiry comparisons go through a single
// injected clock so tests stay deterministic.
type Clock interface {
	Now() time.Time
}

// SystemClock is the wall-clock implementation used outside tests.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// ConsumeUpdate describes the single atomic mutation applied by a successful
// consume. ExpectedViews is the view count observed when the gate passed; the
// store must refuse the update with ErrConflict if the stored count no longer
// matches, so two concurrent consumers can never both succeed against the
// same remaining budget.
type ConsumeUpdate struct {
	ExpectedViews int

	// DeleteShare removes the record instead of incrementing (one-shot text).
	DeleteShare bool

	// MarkDeleteAfterDownload defers one-shot file teardown to the download
	// token redemption.
	MarkDeleteAfterDownload bool

	// DownloadToken, when non-empty, is persisted with its expiry as part of
	// the same conditional write (file shares).
	DownloadToken          string
	DownloadTokenExpiresAt time.Time
}

// ShareStore persists share records. Every conditional operation is an atomic
// read-modify-write keyed on previously observed state.
type ShareStore interface {
	CreateShare(ctx context.Context, share *models.Share) error
	GetShare(ctx context.Context, id string) (*models.Share, error)
	ListSharesByOwner(ctx context.Context, ownerID uuid.UUID) ([]models.Share, error)
	ListExpiredShares(ctx context.Context, now time.Time) ([]models.Share, error)
	DeleteShare(ctx context.Context, id string) error

	// ApplyConsume applies the consume side effects if and only if the stored
	// view count still equals upd.ExpectedViews. Returns ErrConflict when the
	// condition fails and ErrNotFound when the record is gone.
	ApplyConsume(ctx context.Context, id string, upd ConsumeUpdate) error

	// ClaimDownloadToken atomically clears the download token if it matches,
	// guaranteeing at most one redemption per minted token. Returns
	// ErrConflict when the stored token does not match (already claimed or
	// replaced) and ErrNotFound when the record is gone.
	ClaimDownloadToken(ctx context.Context, id, token string) error
}

// SessionStore persists bearer-token sessions keyed by token hash.
type SessionStore interface {
	CreateSession(ctx context.Context, session *models.Session) error
	GetSessionByTokenHash(ctx context.Context, tokenHash string) (*models.Session, error)
	DeleteSessionByTokenHash(ctx context.Context, tokenHash string) error
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int, error)
}

// UserStore persists identities. Emails are unique and case-normalized by
// the caller before they reach the store.
type UserStore interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}
