package models

import "time"

// PostStatus is one crosspost job: a single attempted republish of a Post
// to one destination platform. Mutated only by the job executor and the
// recovery sweep. State machine: pending -> processing -> success|failed,
// where failed may be manually reset to pending.
type PostStatus struct {
	ID             int64     `db:"id" json:"id"`
	PostID         int64     `db:"post_id" json:"post_id"`
	Platform       string    `db:"platform" json:"platform"`
	Status         string    `db:"status" json:"status"`
	ExternalPostID string    `db:"external_post_id" json:"external_post_id"`
	ErrorMessage   string    `db:"error_message" json:"error_message"`
	RetryCount     int       `db:"retry_count" json:"retry_count"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// PostStatusDetail is a PostStatus joined with its parent Post, used by
// the status listing endpoints.
type PostStatusDetail struct {
	PostStatus
	SourcePostID string `db:"source_post_id" json:"instagram_media_id"`
	UserID       int64  `db:"user_id" json:"-"`
}

const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusSuccess    = "success"
	StatusFailed     = "failed"
)
