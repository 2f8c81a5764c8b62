package transfer

// WebhookEvent is the payload Instagram posts to the webhook endpoint.
// The media id lives in a different place depending on the change field,
// so ChangeValue carries all known locations.
type WebhookEvent struct {
	Object string         `json:"object"`
	Entry  []WebhookEntry `json:"entry"`
}

type WebhookEntry struct {
	ID      string          `json:"id"`
	Time    int64           `json:"time"`
	Changes []WebhookChange `json:"changes"`
}

type WebhookChange struct {
	Field string             `json:"field"`
	Value WebhookChangeValue `json:"value"`
}

type WebhookChangeValue struct {
	ID      string `json:"id"`
	MediaID string `json:"media_id"`
	Media   struct {
		ID string `json:"id"`
	} `json:"media"`
}

// MediaIDFor returns the media id for a given change field.
func (v WebhookChangeValue) MediaIDFor(field string) string {
	switch field {
	case "mentions":
		return v.MediaID
	case "comments":
		return v.Media.ID
	case "media", "media_product_type":
		return v.ID
	default:
		return ""
	}
}
