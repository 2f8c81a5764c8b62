package models

import "time"

// Account is one connected platform credential pair per (user, platform).
// Tokens are stored AES-GCM encrypted. Accounts are never hard-deleted,
// only deactivated, so at most one row per (user, platform) is active.
type Account struct {
	ID             int64     `db:"id" json:"id"`
	UserID         int64     `db:"user_id" json:"user_id"`
	Platform       string    `db:"platform" json:"platform"`
	PlatformUserID string    `db:"platform_user_id" json:"platform_user_id"`
	AccountName    string    `db:"account_name" json:"account_name"`
	AccessToken    string    `db:"access_token" json:"-"`
	RefreshToken   string    `db:"refresh_token" json:"-"`
	TokenExpiresAt time.Time `db:"token_expires_at" json:"token_expires_at"`
	IsActive       bool      `db:"is_active" json:"is_active"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

const (
	PlatformInstagram = "instagram"
	PlatformTwitter   = "twitter"
	PlatformYoutube   = "youtube"
)
