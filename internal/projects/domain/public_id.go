package domain

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"strings"
)

// NewProjectID generates a human-readable project ID, e.g. "PRJ-3FA91C".
func NewProjectID() (string, error) {
	b := make([]byte, 3)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return "PRJ-" + strings.ToUpper(hex.EncodeToString(b)), nil
}

// NewAccessPassword generates the url-safe client password shown once on
// project creation.
func NewAccessPassword() (string, error) {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
