package share

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/linkvault/internal/auth"
	"github.com/linkvault/internal/gate"
	"github.com/linkvault/internal/models"
	"github.com/linkvault/internal/storage"
	"github.com/linkvault/internal/store"
)

var (
	ErrShareNotFound    = errors.New("share not found")
	ErrOwnerRequired    = errors.New("authentication as owner required")
	ErrExpired          = errors.New("share has expired")
	ErrExhausted        = errors.New("maximum views reached")
	ErrBadSecret        = errors.New("invalid share password")
	ErrBadToken         = errors.New("invalid download token")
	ErrTokenExpired     = errors.New("download token expired")
	ErrUnavailable      = errors.New("file unavailable")
	ErrBadDeleteToken   = errors.New("invalid delete token")
	ErrConflict         = errors.New("lost concurrent update race")
	ErrEmptyContent     = errors.New("text content required")
	ErrInvalidExpiry    = errors.New("expiry must be a future instant")
	ErrInvalidViewLimit = errors.New("max views must be a positive integer")
	ErrLoginRequired    = errors.New("login required for owner-only share")
)

const (
	shareIDBytes       = 8
	deleteTokenBytes   = 18
	downloadTokenBytes = 18
)

// Service is the share registry and lifecycle coordinator: it owns creation,
// the gated consume path, download-token redemption, capability deletion and
// the expiry sweep. Every decision is made against a freshly read record and
// every mutation is a conditional write, so no stale in-process state can
// leak between requests.
type Service struct {
	shares     store.ShareStore
	blobs      storage.BlobStore
	clock      store.Clock
	logger     *logrus.Logger
	defaultTTL time.Duration
	tokenTTL   time.Duration
}

func NewService(shares store.ShareStore, blobs storage.BlobStore, clock store.Clock, logger *logrus.Logger, defaultTTL, tokenTTL time.Duration) *Service {
	return &Service{
		shares:     shares,
		blobs:      blobs,
		clock:      clock,
		logger:     logger,
		defaultTTL: defaultTTL,
		tokenTTL:   tokenTTL,
	}
}

// CreateOptions are the gating knobs common to text and file shares.
type CreateOptions struct {
	Password  string
	OneShot   bool
	ViewLimit *int
	ExpiresAt *time.Time
	OwnerOnly bool
}

// FileUpload describes an incoming file payload.
type FileUpload struct {
	Reader      io.Reader
	Size        int64
	FileName    string
	ContentType string
}

// CreateText publishes an inline text share. The returned record is the only
// emission of the delete capability.
func (s *Service) CreateText(ctx context.Context, caller *models.User, text string, opts CreateOptions) (*models.Share, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyContent
	}
	share, err := s.newShare(caller, opts)
	if err != nil {
		return nil, err
	}
	share.Kind = models.ShareKindText
	share.Content = text

	if err := s.shares.CreateShare(ctx, share); err != nil {
		return nil, fmt.Errorf("create share: %w", err)
	}
	return share, nil
}

// CreateFile stores the payload blob first and then the record; a failed
// record write rolls the blob back best-effort.
func (s *Service) CreateFile(ctx context.Context, caller *models.User, upload FileUpload, opts CreateOptions) (*models.Share, error) {
	share, err := s.newShare(caller, opts)
	if err != nil {
		return nil, err
	}
	share.Kind = models.ShareKindFile
	share.FileName = upload.FileName
	share.FileSize = upload.Size
	share.ContentType = upload.ContentType

	key, err := s.blobs.Put(ctx, upload.Reader, upload.Size, upload.ContentType, upload.FileName)
	if err != nil {
		return nil, fmt.Errorf("store blob: %w", err)
	}
	share.StorageKey = key

	if err := s.shares.CreateShare(ctx, share); err != nil {
		s.deleteBlob(share)
		return nil, fmt.Errorf("create share: %w", err)
	}
	return share, nil
}

func (s *Service) newShare(caller *models.User, opts CreateOptions) (*models.Share, error) {
	if opts.OwnerOnly && caller == nil {
		return nil, ErrLoginRequired
	}

	now := s.clock.Now()
	expiresAt, err := s.resolveExpiry(now, opts.ExpiresAt)
	if err != nil {
		return nil, err
	}
	if opts.ViewLimit != nil && *opts.ViewLimit < 1 {
		return nil, ErrInvalidViewLimit
	}

	share := &models.Share{
		ID:          auth.NewToken(shareIDBytes),
		OneShot:     opts.OneShot,
		ViewLimit:   opts.ViewLimit,
		DeleteToken: auth.NewToken(deleteTokenBytes),
		ExpiresAt:   expiresAt,
		CreatedAt:   now,
	}
	if caller != nil {
		ownerID := caller.ID
		share.OwnerID = &ownerID
		share.OwnerOnly = opts.OwnerOnly
	}
	if opts.Password != "" {
		hash, err := auth.HashSecret(opts.Password)
		if err != nil {
			return nil, fmt.Errorf("hash share password: %w", err)
		}
		share.SecretHash = hash
	}
	return share, nil
}

func (s *Service) resolveExpiry(now time.Time, requested *time.Time) (time.Time, error) {
	if requested == nil {
		return now.Add(s.defaultTTL), nil
	}
	if !requested.After(now) {
		return time.Time{}, ErrInvalidExpiry
	}
	return *requested, nil
}

// FindByID returns the raw record, absent as ErrShareNotFound.
func (s *Service) FindByID(ctx context.Context, id string) (*models.Share, error) {
	share, err := s.shares.GetShare(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrShareNotFound
	}
	return share, err
}

// Check is the side-effect-free pre-check: it never mutates the view count
// and reports enough for a client to decide whether to prompt for a password
// or login before the state-mutating consume call.
func (s *Service) Check(ctx context.Context, caller *models.User, id string) (*models.ShareCheckResponse, error) {
	share, err := s.shares.GetShare(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return &models.ShareCheckResponse{Exists: false}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load share: %w", err)
	}

	decision, requiresSecret := gate.PreCheck(share, s.clock.Now(), caller)
	if !decision.Allow && decision.Reason == gate.ReasonOwnerRequired {
		return &models.ShareCheckResponse{
			Exists:       true,
			OwnerOnly:    true,
			RequiresAuth: true,
			Kind:         share.Kind,
			ExpiresAt:    share.ExpiresAt,
		}, nil
	}

	return &models.ShareCheckResponse{
		Exists:           true,
		Accessible:       decision.Allow,
		OwnerOnly:        share.OwnerOnly,
		RequiresPassword: requiresSecret,
		Kind:             share.Kind,
		ExpiresAt:        share.ExpiresAt,
	}, nil
}

// ConsumeResult is the response body of a successful consume. For file
// shares the payload is reachable only through DownloadURL, never inline.
type ConsumeResult struct {
	Share       *models.Share
	Content     string
	DownloadURL string
	ViewCount   int
}

// Consume performs the gated read. The gate check and the view-count
// increment form one atomic read-modify-write: the conditional update is
// keyed on the view count observed at gate time, and a lost race is retried
// exactly once by re-reading and re-gating.
func (s *Service) Consume(ctx context.Context, caller *models.User, id, suppliedSecret string) (*ConsumeResult, error) {
	result, err := s.consumeOnce(ctx, caller, id, suppliedSecret)
	if errors.Is(err, ErrConflict) {
		result, err = s.consumeOnce(ctx, caller, id, suppliedSecret)
	}
	return result, err
}

func (s *Service) consumeOnce(ctx context.Context, caller *models.User, id, suppliedSecret string) (*ConsumeResult, error) {
	share, err := s.shares.GetShare(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrShareNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load share: %w", err)
	}

	now := s.clock.Now()
	if decision := gate.Evaluate(share, now, caller, suppliedSecret); !decision.Allow {
		return nil, denialError(decision.Reason)
	}

	upd := store.ConsumeUpdate{ExpectedViews: share.ViewCount}
	result := &ConsumeResult{Share: share, ViewCount: share.ViewCount + 1}

	switch share.Kind {
	case models.ShareKindText:
		result.Content = share.Content
		if share.OneShot {
			upd.DeleteShare = true
		}
	case models.ShareKindFile:
		token := auth.NewToken(downloadTokenBytes)
		upd.DownloadToken = token
		upd.DownloadTokenExpiresAt = now.Add(s.tokenTTL)
		upd.MarkDeleteAfterDownload = share.OneShot
		result.DownloadURL = fmt.Sprintf("/api/share/%s/download?token=%s", share.ID, token)
	}

	if err := s.shares.ApplyConsume(ctx, id, upd); err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			return nil, ErrShareNotFound
		case errors.Is(err, store.ErrConflict):
			return nil, ErrConflict
		default:
			return nil, fmt.Errorf("apply consume: %w", err)
		}
	}

	share.ViewCount = result.ViewCount
	return result, nil
}

// Download is a claimed byte stream plus its deferred teardown. Close runs
// the teardown at most once, whether or not the transfer completed.
type Download struct {
	FileName    string
	Size        int64
	ContentType string

	reader   io.ReadCloser
	finalize func()
	done     bool
}

func (d *Download) Read(p []byte) (int, error) { return d.reader.Read(p) }

func (d *Download) Close() error {
	err := d.reader.Close()
	if !d.done {
		d.done = true
		d.finalize()
	}
	return err
}

// RedeemDownload exchanges a minted download token for the file bytes. The
// token is claimed (cleared) atomically before any bytes move, so a
// concurrent redemption of the same token observes a cleared token and fails
// with ErrBadToken.
func (s *Service) RedeemDownload(ctx context.Context, id, token string) (*Download, error) {
	share, err := s.shares.GetShare(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrShareNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load share: %w", err)
	}
	if share.Kind != models.ShareKindFile {
		return nil, ErrBadToken
	}

	now := s.clock.Now()
	if now.After(share.ExpiresAt) {
		return nil, ErrExpired
	}
	if token == "" || token != share.DownloadToken {
		return nil, ErrBadToken
	}
	if share.DownloadTokenExpiresAt == nil || now.After(*share.DownloadTokenExpiresAt) {
		return nil, ErrTokenExpired
	}

	if err := s.shares.ClaimDownloadToken(ctx, id, token); err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			return nil, ErrShareNotFound
		case errors.Is(err, store.ErrConflict):
			return nil, ErrBadToken
		default:
			return nil, fmt.Errorf("claim download token: %w", err)
		}
	}

	rc, err := s.blobs.OpenRead(ctx, share.StorageKey)
	if err != nil {
		if errors.Is(err, storage.ErrBlobNotFound) {
			return nil, ErrUnavailable
		}
		return nil, fmt.Errorf("open blob: %w", err)
	}

	return &Download{
		FileName:    share.FileName,
		Size:        share.FileSize,
		ContentType: share.ContentType,
		reader:      rc,
		finalize: func() {
			if !share.DeleteAfterDownload {
				return
			}
			// Teardown must happen even when the request context was
			// canceled mid-transfer.
			if err := s.removeShareAndBlob(context.Background(), share); err != nil {
				s.logger.WithFields(logrus.Fields{
					"share_id": share.ID,
					"error":    err,
				}).Error("failed to tear down one-shot file share")
			}
		},
	}, nil
}

// DeleteByCapability deletes a share on proof of the right to do so: the
// owner identity for owned shares, the delete capability token otherwise.
func (s *Service) DeleteByCapability(ctx context.Context, caller *models.User, id, deleteToken string) error {
	share, err := s.shares.GetShare(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return ErrShareNotFound
	}
	if err != nil {
		return fmt.Errorf("load share: %w", err)
	}

	if share.OwnerID != nil {
		if caller == nil || !share.IsOwnedBy(caller.ID) {
			return ErrOwnerRequired
		}
	} else if deleteToken == "" || deleteToken != share.DeleteToken {
		return ErrBadDeleteToken
	}

	return s.removeShareAndBlob(ctx, share)
}

// ListByOwner returns the caller's shares, newest first, without secrets.
func (s *Service) ListByOwner(ctx context.Context, caller *models.User) ([]models.ShareSummary, error) {
	shares, err := s.shares.ListSharesByOwner(ctx, caller.ID)
	if err != nil {
		return nil, fmt.Errorf("list shares: %w", err)
	}

	summaries := make([]models.ShareSummary, 0, len(shares))
	for _, share := range shares {
		summaries = append(summaries, models.ShareSummary{
			ShareID:   share.ID,
			Kind:      share.Kind,
			FileName:  share.FileName,
			OwnerOnly: share.OwnerOnly,
			OneTime:   share.OneShot,
			Views:     share.ViewCount,
			MaxViews:  share.ViewLimit,
			ExpiresAt: share.ExpiresAt,
			CreatedAt: share.CreatedAt,
		})
	}
	return summaries, nil
}

// SweepExpired removes all shares whose expiry precedes now. Per-item
// failures are logged and skipped so one bad record cannot stall the sweep.
func (s *Service) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	expired, err := s.shares.ListExpiredShares(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("list expired shares: %w", err)
	}

	removed := 0
	for i := range expired {
		share := expired[i]
		if err := s.shares.DeleteShare(ctx, share.ID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			s.logger.WithFields(logrus.Fields{
				"share_id": share.ID,
				"error":    err,
			}).Error("failed to delete expired share")
			continue
		}
		s.deleteBlob(&share)
		removed++
	}
	return removed, nil
}

// removeShareAndBlob deletes the record and then the backing blob. Blob
// deletion is best-effort: a failure is surfaced to the operator log but
// never blocks or reverses the record deletion.
func (s *Service) removeShareAndBlob(ctx context.Context, share *models.Share) error {
	if err := s.shares.DeleteShare(ctx, share.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("delete share record: %w", err)
	}
	s.deleteBlob(share)
	return nil
}

func (s *Service) deleteBlob(share *models.Share) {
	if share.Kind != models.ShareKindFile || share.StorageKey == "" {
		return
	}
	if err := s.blobs.Delete(context.Background(), share.StorageKey); err != nil {
		s.logger.WithFields(logrus.Fields{
			"share_id":    share.ID,
			"storage_key": share.StorageKey,
			"error":       err,
		}).Warn("failed to delete share blob")
	}
}

func denialError(reason gate.Reason) error {
	switch reason {
	case gate.ReasonOwnerRequired:
		return ErrOwnerRequired
	case gate.ReasonExpired:
		return ErrExpired
	case gate.ReasonExhausted:
		return ErrExhausted
	case gate.ReasonBadSecret:
		return ErrBadSecret
	default:
		return ErrShareNotFound
	}
}
