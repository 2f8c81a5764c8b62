package models

import "time"

// Post is the canonical record of one source media item. The
// (source_platform, source_post_id) pair is unique and acts as the
// idempotency key for webhook duplicates and polling overlap.
// Posts are immutable after creation.
type Post struct {
	ID               int64     `db:"id" json:"id"`
	UserID           int64     `db:"user_id" json:"user_id"`
	SourcePlatform   string    `db:"source_platform" json:"source_platform"`
	SourcePostID     string    `db:"source_post_id" json:"source_post_id"`
	MediaURL         string    `db:"media_url" json:"media_url"`
	Caption          string    `db:"caption" json:"caption"`
	MediaType        string    `db:"media_type" json:"media_type"`
	MediaProductType string    `db:"media_product_type" json:"media_product_type"`
	Timestamp        time.Time `db:"timestamp" json:"timestamp"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
}

const (
	MediaTypeImage    = "IMAGE"
	MediaTypeVideo    = "VIDEO"
	MediaTypeCarousel = "CAROUSEL_ALBUM"

	MediaProductTypeFeed  = "FEED"
	MediaProductTypeReels = "REELS"
)
