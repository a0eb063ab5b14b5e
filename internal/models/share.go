package models

import (
	"time"

	"github.com/google/uuid"
)

// ShareKind distinguishes inline text shares from uploaded file shares.
// It is fixed at creation and never changes.
type ShareKind string

const (
	ShareKindText ShareKind = "text"
	ShareKindFile ShareKind = "file"
)

// Share is the authoritative record for a published share. The secret is
// stored as a bcrypt hash; an empty SecretHash means no password gate.
type Share struct {
	ID          string    `json:"id"`
	Kind        ShareKind `json:"kind"`
	Content     string    `json:"-"`
	FileName    string    `json:"file_name,omitempty"`
	StorageKey  string    `json:"-"`
	FileSize    int64     `json:"file_size,omitempty"`
	ContentType string    `json:"content_type,omitempty"`

	SecretHash string     `json:"-"`
	OwnerID    *uuid.UUID `json:"-"`
	OwnerOnly  bool       `json:"owner_only"`

	OneShot   bool `json:"one_shot"`
	ViewLimit *int `json:"view_limit,omitempty"`
	ViewCount int  `json:"view_count"`

	DeleteToken string `json:"-"`

	DownloadToken          string     `json:"-"`
	DownloadTokenExpiresAt *time.Time `json:"-"`
	DeleteAfterDownload    bool       `json:"-"`

	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// IsOwnedBy reports whether the share belongs to the given user id.
func (s *Share) IsOwnedBy(userID uuid.UUID) bool {
	return s.OwnerID != nil && *s.OwnerID == userID
}

// HasSecret reports whether a password gate is configured.
func (s *Share) HasSecret() bool {
	return s.SecretHash != ""
}

type CreateTextShareRequest struct {
	Text      string     `json:"text" binding:"required"`
	Password  string     `json:"password"`
	OneTime   bool       `json:"one_time"`
	MaxViews  *int       `json:"max_views"`
	ExpiresAt *time.Time `json:"expires_at"`
	OwnerOnly bool       `json:"owner_only"`
}

type CreateShareResponse struct {
	ShareID     string    `json:"share_id"`
	DeleteToken string    `json:"delete_token"`
	FileName    string    `json:"file_name,omitempty"`
	FileSize    int64     `json:"file_size,omitempty"`
	OwnerOnly   bool      `json:"owner_only"`
	ExpiresAt   time.Time `json:"expires_at"`
}

type AccessShareRequest struct {
	Password string `json:"password"`
}

// ShareCheckResponse is the side-effect-free pre-check answer: enough for a
// client to decide whether to prompt for credentials before consuming.
type ShareCheckResponse struct {
	Exists           bool      `json:"exists"`
	Accessible       bool      `json:"accessible"`
	OwnerOnly        bool      `json:"owner_only"`
	RequiresAuth     bool      `json:"requires_auth"`
	RequiresPassword bool      `json:"requires_password"`
	Kind             ShareKind `json:"kind,omitempty"`
	ExpiresAt        time.Time `json:"expires_at,omitempty"`
}

type ShareSummary struct {
	ShareID   string    `json:"share_id"`
	Kind      ShareKind `json:"kind"`
	FileName  string    `json:"file_name,omitempty"`
	OwnerOnly bool      `json:"owner_only"`
	OneTime   bool      `json:"one_time"`
	Views     int       `json:"views"`
	MaxViews  *int      `json:"max_views,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}
