package utils

import (
	"crypto/rand"
	"encoding/base64"
	"log/slog"
)

// GenerateRandomKey returns a URL-safe random string, used for OAuth
// state parameters and PKCE code verifiers.
func GenerateRandomKey(length int) (string, error) {
	b := make([]byte, length)
	_, err := rand.Read(b)
	if err != nil {
		slog.Info(err.Error())
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
