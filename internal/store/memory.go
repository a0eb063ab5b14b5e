package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/linkvault/internal/models"
)

// Compile-time interface checks
var (
	_ ShareStore   = (*MemoryStore)(nil)
	_ SessionStore = (*MemoryStore)(nil)
	_ UserStore    = (*MemoryStore)(nil)
)

// MemoryStore keeps all records in process memory behind a single mutex.
// The mutex makes every conditional update trivially atomic, which is what
// the SQL store achieves with conditional UPDATE statements. Used as the
// default store and as the test double.
type MemoryStore struct {
	mu       sync.RWMutex
	shares   map[string]*models.Share
	sessions map[string]*models.Session // keyed by token hash
	users    map[uuid.UUID]*models.User
	byEmail  map[string]uuid.UUID
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		shares:   make(map[string]*models.Share),
		sessions: make(map[string]*models.Session),
		users:    make(map[uuid.UUID]*models.User),
		byEmail:  make(map[string]uuid.UUID),
	}
}

// ========================================
// ShareStore
// ========================================

func (m *MemoryStore) CreateShare(ctx context.Context, share *models.Share) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.shares[share.ID]; ok {
		return ErrDuplicate
	}
	m.shares[share.ID] = cloneShare(share)
	return nil
}

func (m *MemoryStore) GetShare(ctx context.Context, id string) (*models.Share, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	share, ok := m.shares[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneShare(share), nil
}

func (m *MemoryStore) ListSharesByOwner(ctx context.Context, ownerID uuid.UUID) ([]models.Share, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var shares []models.Share
	for _, share := range m.shares {
		if share.IsOwnedBy(ownerID) {
			shares = append(shares, *cloneShare(share))
		}
	}
	sort.Slice(shares, func(i, j int) bool {
		return shares[i].CreatedAt.After(shares[j].CreatedAt)
	})
	return shares, nil
}

func (m *MemoryStore) ListExpiredShares(ctx context.Context, now time.Time) ([]models.Share, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var expired []models.Share
	for _, share := range m.shares {
		if now.After(share.ExpiresAt) {
			expired = append(expired, *cloneShare(share))
		}
	}
	return expired, nil
}

func (m *MemoryStore) DeleteShare(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.shares[id]; !ok {
		return ErrNotFound
	}
	delete(m.shares, id)
	return nil
}

func (m *MemoryStore) ApplyConsume(ctx context.Context, id string, upd ConsumeUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	share, ok := m.shares[id]
	if !ok {
		return ErrNotFound
	}
	if share.ViewCount != upd.ExpectedViews {
		return ErrConflict
	}

	if upd.DeleteShare {
		delete(m.shares, id)
		return nil
	}

	share.ViewCount++
	if upd.MarkDeleteAfterDownload {
		share.DeleteAfterDownload = true
	}
	if upd.DownloadToken != "" {
		share.DownloadToken = upd.DownloadToken
		expiresAt := upd.DownloadTokenExpiresAt
		share.DownloadTokenExpiresAt = &expiresAt
	}
	return nil
}

func (m *MemoryStore) ClaimDownloadToken(ctx context.Context, id, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	share, ok := m.shares[id]
	if !ok {
		return ErrNotFound
	}
	if token == "" || share.DownloadToken != token {
		return ErrConflict
	}

	share.DownloadToken = ""
	share.DownloadTokenExpiresAt = nil
	return nil
}

// ========================================
// SessionStore
// ========================================

func (m *MemoryStore) CreateSession(ctx context.Context, session *models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[session.TokenHash]; ok {
		return ErrDuplicate
	}
	clone := *session
	m.sessions[session.TokenHash] = &clone
	return nil
}

func (m *MemoryStore) GetSessionByTokenHash(ctx context.Context, tokenHash string) (*models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	session, ok := m.sessions[tokenHash]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *session
	return &clone, nil
}

func (m *MemoryStore) DeleteSessionByTokenHash(ctx context.Context, tokenHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[tokenHash]; !ok {
		return ErrNotFound
	}
	delete(m.sessions, tokenHash)
	return nil
}

func (m *MemoryStore) DeleteExpiredSessions(ctx context.Context, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for hash, session := range m.sessions {
		if now.After(session.ExpiresAt) {
			delete(m.sessions, hash)
			removed++
		}
	}
	return removed, nil
}

// ========================================
// UserStore
// ========================================

func (m *MemoryStore) CreateUser(ctx context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.byEmail[user.Email]; ok {
		return ErrDuplicate
	}
	clone := *user
	m.users[user.ID] = &clone
	m.byEmail[user.Email] = user.ID
	return nil
}

func (m *MemoryStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byEmail[email]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *m.users[id]
	return &clone, nil
}

func (m *MemoryStore) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	user, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *user
	return &clone, nil
}

func cloneShare(share *models.Share) *models.Share {
	clone := *share
	if share.OwnerID != nil {
		ownerID := *share.OwnerID
		clone.OwnerID = &ownerID
	}
	if share.ViewLimit != nil {
		limit := *share.ViewLimit
		clone.ViewLimit = &limit
	}
	if share.DownloadTokenExpiresAt != nil {
		expiresAt := *share.DownloadTokenExpiresAt
		clone.DownloadTokenExpiresAt = &expiresAt
	}
	return &clone
}
