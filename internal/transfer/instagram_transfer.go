package transfer

import "github.com/maheshrc27/crossflow/internal/models"

type InstagramToken struct {
	UserID      string `json:"user_id"`
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

type InstagramUserInfo struct {
	UserID         string `json:"id"`
	Username       string `json:"username"`
	Name           string `json:"name"`
	ProfilePicture string `json:"profile_picture_url"`
}

// InstagramMedia is a single media object from the Instagram graph API.
// MediaURL is empty when Instagram withholds the download URL, which
// happens for videos flagged with copyrighted audio.
type InstagramMedia struct {
	ID               string `json:"id"`
	MediaURL         string `json:"media_url"`
	Caption          string `json:"caption"`
	MediaType        string `json:"media_type"`
	MediaProductType string `json:"media_product_type"`
	Permalink        string `json:"permalink"`
	ThumbnailURL     string `json:"thumbnail_url"`
	Timestamp        string `json:"timestamp"`
}

type InstagramMediaList struct {
	Data []InstagramMedia `json:"data"`
}

type InstagramErrorResponse struct {
	Error struct {
		Message        string `json:"message"`
		Type           string `json:"type"`
		Code           int    `json:"code"`
		ErrorSubcode   int    `json:"error_subcode"`
		IsTransient    bool   `json:"is_transient"`
		ErrorUserTitle string `json:"error_user_title"`
		ErrorUserMsg   string `json:"error_user_msg"`
		FbtraceID      string `json:"fbtrace_id"`
	} `json:"error"`
}

// IngestResult reports what ingestion did with one media item.
type IngestResult struct {
	Post       *models.Post
	Statuses   []*models.PostStatus
	Restricted bool
}
