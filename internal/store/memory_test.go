package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linkvault/internal/models"
)

func newTestShare(id string, expiresAt time.Time) *models.Share {
	return &models.Share{
		ID:          id,
		Kind:        models.ShareKindText,
		Content:     "payload",
		DeleteToken: "del-" + id,
		ExpiresAt:   expiresAt,
		CreatedAt:   expiresAt.Add(-time.Hour),
	}
}

func TestMemoryStore_ShareCRUD(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	expiry := time.Now().Add(time.Hour)

	require.NoError(t, m.CreateShare(ctx, newTestShare("s1", expiry)))
	assert.ErrorIs(t, m.CreateShare(ctx, newTestShare("s1", expiry)), ErrDuplicate)

	got, err := m.GetShare(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "payload", got.Content)

	// Reads return copies; mutating one must not leak back.
	got.ViewCount = 99
	again, err := m.GetShare(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 0, again.ViewCount)

	require.NoError(t, m.DeleteShare(ctx, "s1"))
	_, err = m.GetShare(ctx, "s1")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, m.DeleteShare(ctx, "s1"), ErrNotFound)
}

func TestMemoryStore_ListSharesByOwner_NewestFirst(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	ownerID := uuid.New()
	base := time.Now()

	for i, id := range []string{"old", "mid", "new"} {
		share := newTestShare(id, base.Add(time.Hour))
		share.OwnerID = &ownerID
		share.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, m.CreateShare(ctx, share))
	}
	unowned := newTestShare("anon", base.Add(time.Hour))
	require.NoError(t, m.CreateShare(ctx, unowned))

	shares, err := m.ListSharesByOwner(ctx, ownerID)
	require.NoError(t, err)
	require.Len(t, shares, 3)
	assert.Equal(t, "new", shares[0].ID)
	assert.Equal(t, "mid", shares[1].ID)
	assert.Equal(t, "old", shares[2].ID)
}

func TestMemoryStore_ApplyConsume_Conditional(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	require.NoError(t, m.CreateShare(ctx, newTestShare("s1", time.Now().Add(time.Hour))))

	require.NoError(t, m.ApplyConsume(ctx, "s1", ConsumeUpdate{ExpectedViews: 0}))

	// Stale expectation loses.
	assert.ErrorIs(t, m.ApplyConsume(ctx, "s1", ConsumeUpdate{ExpectedViews: 0}), ErrConflict)

	got, err := m.GetShare(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 1, got.ViewCount)

	assert.ErrorIs(t, m.ApplyConsume(ctx, "missing", ConsumeUpdate{}), ErrNotFound)
}

func TestMemoryStore_ApplyConsume_DeleteShare(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	require.NoError(t, m.CreateShare(ctx, newTestShare("s1", time.Now().Add(time.Hour))))

	require.NoError(t, m.ApplyConsume(ctx, "s1", ConsumeUpdate{ExpectedViews: 0, DeleteShare: true}))
	_, err := m.GetShare(ctx, "s1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_ApplyConsume_SetsDownloadToken(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	share := newTestShare("f1", time.Now().Add(time.Hour))
	share.Kind = models.ShareKindFile
	share.StorageKey = "key"
	require.NoError(t, m.CreateShare(ctx, share))

	tokenExpiry := time.Now().Add(5 * time.Minute)
	require.NoError(t, m.ApplyConsume(ctx, "f1", ConsumeUpdate{
		ExpectedViews:           0,
		MarkDeleteAfterDownload: true,
		DownloadToken:           "tok",
		DownloadTokenExpiresAt:  tokenExpiry,
	}))

	got, err := m.GetShare(ctx, "f1")
	require.NoError(t, err)
	assert.Equal(t, "tok", got.DownloadToken)
	require.NotNil(t, got.DownloadTokenExpiresAt)
	assert.True(t, got.DownloadTokenExpiresAt.Equal(tokenExpiry))
	assert.True(t, got.DeleteAfterDownload)
	assert.Equal(t, 1, got.ViewCount)
}

func TestMemoryStore_ApplyConsume_ConcurrentSingleWinner(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	require.NoError(t, m.CreateShare(ctx, newTestShare("s1", time.Now().Add(time.Hour))))

	const racers = 16
	var wg sync.WaitGroup
	wins := make(chan struct{}, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := m.ApplyConsume(ctx, "s1", ConsumeUpdate{ExpectedViews: 0}); err == nil {
				wins <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(wins)

	won := 0
	for range wins {
		won++
	}
	assert.Equal(t, 1, won, "only one racer may increment from the same observed count")
}

func TestMemoryStore_ClaimDownloadToken(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	share := newTestShare("f1", time.Now().Add(time.Hour))
	share.Kind = models.ShareKindFile
	share.DownloadToken = "tok"
	expiry := time.Now().Add(5 * time.Minute)
	share.DownloadTokenExpiresAt = &expiry
	require.NoError(t, m.CreateShare(ctx, share))

	assert.ErrorIs(t, m.ClaimDownloadToken(ctx, "f1", "wrong"), ErrConflict)
	assert.ErrorIs(t, m.ClaimDownloadToken(ctx, "f1", ""), ErrConflict)

	require.NoError(t, m.ClaimDownloadToken(ctx, "f1", "tok"))

	// A second claim of the same token observes the cleared state.
	assert.ErrorIs(t, m.ClaimDownloadToken(ctx, "f1", "tok"), ErrConflict)

	got, err := m.GetShare(ctx, "f1")
	require.NoError(t, err)
	assert.Empty(t, got.DownloadToken)
	assert.Nil(t, got.DownloadTokenExpiresAt)

	assert.ErrorIs(t, m.ClaimDownloadToken(ctx, "missing", "tok"), ErrNotFound)
}

func TestMemoryStore_ListExpiredShares(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	now := time.Now()

	require.NoError(t, m.CreateShare(ctx, newTestShare("live", now.Add(time.Hour))))
	require.NoError(t, m.CreateShare(ctx, newTestShare("dead", now.Add(-time.Minute))))

	expired, err := m.ListExpiredShares(ctx, now)
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, "dead", expired[0].ID)
}

func TestMemoryStore_Sessions(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	now := time.Now()

	live := &models.Session{ID: uuid.New(), UserID: uuid.New(), TokenHash: "h1", ExpiresAt: now.Add(time.Hour), CreatedAt: now}
	dead := &models.Session{ID: uuid.New(), UserID: uuid.New(), TokenHash: "h2", ExpiresAt: now.Add(-time.Hour), CreatedAt: now}
	require.NoError(t, m.CreateSession(ctx, live))
	require.NoError(t, m.CreateSession(ctx, dead))

	got, err := m.GetSessionByTokenHash(ctx, "h1")
	require.NoError(t, err)
	assert.Equal(t, live.UserID, got.UserID)

	removed, err := m.DeleteExpiredSessions(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = m.GetSessionByTokenHash(ctx, "h2")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, m.DeleteSessionByTokenHash(ctx, "h1"))
	assert.ErrorIs(t, m.DeleteSessionByTokenHash(ctx, "h1"), ErrNotFound)
}

func TestMemoryStore_Users(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()

	user := &models.User{ID: uuid.New(), Email: "a@example.com", PasswordHash: "x", CreatedAt: time.Now()}
	require.NoError(t, m.CreateUser(ctx, user))

	dup := &models.User{ID: uuid.New(), Email: "a@example.com", PasswordHash: "y"}
	assert.ErrorIs(t, m.CreateUser(ctx, dup), ErrDuplicate)

	byEmail, err := m.GetUserByEmail(ctx, "a@example.com")
	require.NoError(t, err)
	assert.Equal(t, user.ID, byEmail.ID)

	byID, err := m.GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "a@example.com", byID.Email)

	_, err = m.GetUserByEmail(ctx, "b@example.com")
	assert.ErrorIs(t, err, ErrNotFound)
}
