package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/linkvault/internal/models"
)

var (
	_ ShareStore   = (*SQLStore)(nil)
	_ SessionStore = (*SQLStore)(nil)
	_ UserStore    = (*SQLStore)(nil)
)

// SQLStore backs the registries with SQLite or PostgreSQL. Conditional
// updates (view increment, token claim) are expressed as UPDATE/DELETE
// statements guarded by the previously observed value; zero rows affected
// means the caller lost the race.
type SQLStore struct {
	db     *sql.DB
	driver string
}

func NewSQLStore(db *sql.DB, driver string) (*SQLStore, error) {
	s := &SQLStore{db: db, driver: driver}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return s, nil
}

func (s *SQLStore) initSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			email TEXT NOT NULL UNIQUE,
			display_name TEXT NOT NULL DEFAULT '',
			password_hash TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			token_hash TEXT NOT NULL UNIQUE,
			expires_at TIMESTAMP NOT NULL,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS shares (
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			content TEXT NOT NULL DEFAULT '',
			file_name TEXT NOT NULL DEFAULT '',
			storage_key TEXT NOT NULL DEFAULT '',
			file_size BIGINT NOT NULL DEFAULT 0,
			content_type TEXT NOT NULL DEFAULT '',
			secret_hash TEXT NOT NULL DEFAULT '',
			owner_id TEXT,
			owner_only BOOLEAN NOT NULL DEFAULT FALSE,
			one_shot BOOLEAN NOT NULL DEFAULT FALSE,
			view_limit INTEGER,
			view_count INTEGER NOT NULL DEFAULT 0,
			delete_token TEXT NOT NULL,
			download_token TEXT NOT NULL DEFAULT '',
			download_token_expires_at TIMESTAMP,
			delete_after_download BOOLEAN NOT NULL DEFAULT FALSE,
			expires_at TIMESTAMP NOT NULL,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_shares_owner ON shares(owner_id)`,
		`CREATE INDEX IF NOT EXISTS idx_shares_expires ON shares(expires_at)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_expires ON sessions(expires_at)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// rebind converts ? placeholders to $n for the postgres driver.
func (s *SQLStore) rebind(query string) string {
	if s.driver != "postgres" {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// ========================================
// ShareStore
// ========================================

const shareColumns = `id, kind, content, file_name, storage_key, file_size, content_type,
	secret_hash, owner_id, owner_only, one_shot, view_limit, view_count, delete_token,
	download_token, download_token_expires_at, delete_after_download, expires_at, created_at`

func (s *SQLStore) CreateShare(ctx context.Context, share *models.Share) error {
	query := s.rebind(`INSERT INTO shares (` + shareColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	var ownerID sql.NullString
	if share.OwnerID != nil {
		ownerID = sql.NullString{String: share.OwnerID.String(), Valid: true}
	}
	var viewLimit sql.NullInt64
	if share.ViewLimit != nil {
		viewLimit = sql.NullInt64{Int64: int64(*share.ViewLimit), Valid: true}
	}
	var tokenExpiresAt sql.NullTime
	if share.DownloadTokenExpiresAt != nil {
		tokenExpiresAt = sql.NullTime{Time: *share.DownloadTokenExpiresAt, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, query,
		share.ID, string(share.Kind), share.Content, share.FileName, share.StorageKey,
		share.FileSize, share.ContentType, share.SecretHash, ownerID, share.OwnerOnly,
		share.OneShot, viewLimit, share.ViewCount, share.DeleteToken, share.DownloadToken,
		tokenExpiresAt, share.DeleteAfterDownload, share.ExpiresAt, share.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert share: %w", err)
	}
	return nil
}

func (s *SQLStore) GetShare(ctx context.Context, id string) (*models.Share, error) {
	query := s.rebind(`SELECT ` + shareColumns + ` FROM shares WHERE id = ?`)
	return scanShare(s.db.QueryRowContext(ctx, query, id))
}

func (s *SQLStore) ListSharesByOwner(ctx context.Context, ownerID uuid.UUID) ([]models.Share, error) {
	query := s.rebind(`SELECT ` + shareColumns + ` FROM shares WHERE owner_id = ? ORDER BY created_at DESC`)
	rows, err := s.db.QueryContext(ctx, query, ownerID.String())
	if err != nil {
		return nil, fmt.Errorf("list shares: %w", err)
	}
	defer rows.Close()
	return collectShares(rows)
}

func (s *SQLStore) ListExpiredShares(ctx context.Context, now time.Time) ([]models.Share, error) {
	query := s.rebind(`SELECT ` + shareColumns + ` FROM shares WHERE expires_at < ?`)
	rows, err := s.db.QueryContext(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("list expired shares: %w", err)
	}
	defer rows.Close()
	return collectShares(rows)
}

func (s *SQLStore) DeleteShare(ctx context.Context, id string) error {
	query := s.rebind(`DELETE FROM shares WHERE id = ?`)
	result, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete share: %w", err)
	}
	return requireRow(result, ErrNotFound)
}

func (s *SQLStore) ApplyConsume(ctx context.Context, id string, upd ConsumeUpdate) error {
	if upd.DeleteShare {
		query := s.rebind(`DELETE FROM shares WHERE id = ? AND view_count = ?`)
		result, err := s.db.ExecContext(ctx, query, id, upd.ExpectedViews)
		if err != nil {
			return fmt.Errorf("consume delete share: %w", err)
		}
		return s.consumeRaceOutcome(ctx, id, result)
	}

	var query string
	var args []interface{}
	if upd.DownloadToken != "" {
		query = `UPDATE shares SET view_count = view_count + 1,
			delete_after_download = ?,
			download_token = ?, download_token_expires_at = ?
			WHERE id = ? AND view_count = ?`
		args = []interface{}{upd.MarkDeleteAfterDownload, upd.DownloadToken,
			upd.DownloadTokenExpiresAt, id, upd.ExpectedViews}
	} else {
		query = `UPDATE shares SET view_count = view_count + 1 WHERE id = ? AND view_count = ?`
		args = []interface{}{id, upd.ExpectedViews}
	}

	result, err := s.db.ExecContext(ctx, s.rebind(query), args...)
	if err != nil {
		return fmt.Errorf("consume share: %w", err)
	}
	return s.consumeRaceOutcome(ctx, id, result)
}

// consumeRaceOutcome distinguishes a lost view-count race from a vanished
// record when a conditional write touched zero rows.
func (s *SQLStore) consumeRaceOutcome(ctx context.Context, id string, result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected > 0 {
		return nil
	}
	if _, err := s.GetShare(ctx, id); errors.Is(err, ErrNotFound) {
		return ErrNotFound
	}
	return ErrConflict
}

func (s *SQLStore) ClaimDownloadToken(ctx context.Context, id, token string) error {
	if token == "" {
		return ErrConflict
	}
	query := s.rebind(`UPDATE shares SET download_token = '', download_token_expires_at = NULL
		WHERE id = ? AND download_token = ?`)
	result, err := s.db.ExecContext(ctx, query, id, token)
	if err != nil {
		return fmt.Errorf("claim download token: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected > 0 {
		return nil
	}
	if _, err := s.GetShare(ctx, id); errors.Is(err, ErrNotFound) {
		return ErrNotFound
	}
	return ErrConflict
}

// ========================================
// SessionStore
// ========================================

func (s *SQLStore) CreateSession(ctx context.Context, session *models.Session) error {
	query := s.rebind(`INSERT INTO sessions (id, user_id, token_hash, expires_at, created_at)
		VALUES (?, ?, ?, ?, ?)`)
	_, err := s.db.ExecContext(ctx, query,
		session.ID.String(), session.UserID.String(), session.TokenHash,
		session.ExpiresAt, session.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (s *SQLStore) GetSessionByTokenHash(ctx context.Context, tokenHash string) (*models.Session, error) {
	query := s.rebind(`SELECT id, user_id, token_hash, expires_at, created_at
		FROM sessions WHERE token_hash = ?`)
	row := s.db.QueryRowContext(ctx, query, tokenHash)

	var session models.Session
	var id, userID string
	err := row.Scan(&id, &userID, &session.TokenHash, &session.ExpiresAt, &session.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	if session.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("parse session id: %w", err)
	}
	if session.UserID, err = uuid.Parse(userID); err != nil {
		return nil, fmt.Errorf("parse session user id: %w", err)
	}
	return &session, nil
}

func (s *SQLStore) DeleteSessionByTokenHash(ctx context.Context, tokenHash string) error {
	query := s.rebind(`DELETE FROM sessions WHERE token_hash = ?`)
	result, err := s.db.ExecContext(ctx, query, tokenHash)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return requireRow(result, ErrNotFound)
}

func (s *SQLStore) DeleteExpiredSessions(ctx context.Context, now time.Time) (int, error) {
	query := s.rebind(`DELETE FROM sessions WHERE expires_at < ?`)
	result, err := s.db.ExecContext(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}

// ========================================
// UserStore
// ========================================

func (s *SQLStore) CreateUser(ctx context.Context, user *models.User) error {
	query := s.rebind(`INSERT INTO users (id, email, display_name, password_hash, created_at)
		VALUES (?, ?, ?, ?, ?)`)
	_, err := s.db.ExecContext(ctx, query,
		user.ID.String(), user.Email, user.DisplayName, user.PasswordHash, user.CreatedAt)
	if err != nil {
		// The UNIQUE constraint on email is the arbiter for concurrent
		// registrations of the same address.
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *SQLStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	query := s.rebind(`SELECT id, email, display_name, password_hash, created_at
		FROM users WHERE email = ?`)
	return scanUser(s.db.QueryRowContext(ctx, query, email))
}

func (s *SQLStore) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	query := s.rebind(`SELECT id, email, display_name, password_hash, created_at
		FROM users WHERE id = ?`)
	return scanUser(s.db.QueryRowContext(ctx, query, id.String()))
}

// ========================================
// Row scanning helpers
// ========================================

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanShare(row rowScanner) (*models.Share, error) {
	var share models.Share
	var kind string
	var ownerID sql.NullString
	var viewLimit sql.NullInt64
	var tokenExpiresAt sql.NullTime

	err := row.Scan(&share.ID, &kind, &share.Content, &share.FileName, &share.StorageKey,
		&share.FileSize, &share.ContentType, &share.SecretHash, &ownerID, &share.OwnerOnly,
		&share.OneShot, &viewLimit, &share.ViewCount, &share.DeleteToken, &share.DownloadToken,
		&tokenExpiresAt, &share.DeleteAfterDownload, &share.ExpiresAt, &share.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan share: %w", err)
	}

	share.Kind = models.ShareKind(kind)
	if ownerID.Valid {
		parsed, err := uuid.Parse(ownerID.String)
		if err != nil {
			return nil, fmt.Errorf("parse owner id: %w", err)
		}
		share.OwnerID = &parsed
	}
	if viewLimit.Valid {
		limit := int(viewLimit.Int64)
		share.ViewLimit = &limit
	}
	if tokenExpiresAt.Valid {
		expiresAt := tokenExpiresAt.Time
		share.DownloadTokenExpiresAt = &expiresAt
	}
	return &share, nil
}

func collectShares(rows *sql.Rows) ([]models.Share, error) {
	var shares []models.Share
	for rows.Next() {
		share, err := scanShare(rows)
		if err != nil {
			return nil, err
		}
		shares = append(shares, *share)
	}
	return shares, rows.Err()
}

func scanUser(row rowScanner) (*models.User, error) {
	var user models.User
	var id string
	err := row.Scan(&id, &user.Email, &user.DisplayName, &user.PasswordHash, &user.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}
	if user.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("parse user id: %w", err)
	}
	return &user, nil
}

func requireRow(result sql.Result, missing error) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return missing
	}
	return nil
}

// isUniqueViolation reports whether err is a unique-constraint failure from
// either supported driver.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}
