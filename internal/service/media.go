package service

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/h2non/filetype"
)

// downloadMedia fetches a media URL and returns the bytes together with
// the sniffed MIME type. The Content-Type header from Instagram's CDN is
// not reliable, so the type is detected from the file header instead.
func downloadMedia(mediaURL string) ([]byte, string, error) {
	resp, err := http.Get(mediaURL)
	if err != nil {
		slog.Info(err.Error())
		return nil, "", fmt.Errorf("error downloading media: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("unexpected response status: %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		slog.Info(err.Error())
		return nil, "", fmt.Errorf("error reading media body: %w", err)
	}

	kind, err := filetype.Match(data)
	if err != nil || kind == filetype.Unknown {
		if ct := resp.Header.Get("Content-Type"); ct != "" {
			return data, ct, nil
		}
		return data, "application/octet-stream", nil
	}

	return data, kind.MIME.Value, nil
}
