// Package media uploads listing photos sent as data URIs to an image host
// and removes them again when a listing is deleted.
package media

import (
	"encoding/base64"
	"strings"

	"rentonmap/internal/models"
)

const dataURIPrefix = "data:image"

// IsDataURI reports whether s is an inline image payload rather than a URL.
func IsDataURI(s string) bool {
	return strings.HasPrefix(s, dataURIPrefix)
}

// DecodeDataURI splits a "data:image/<type>;base64,<payload>" string into its
// media type and decoded bytes.
func DecodeDataURI(s string) (string, []byte, error) {
	if !IsDataURI(s) {
		return "", nil, models.NewValidationError("Image must be a data URI", "images")
	}
	meta, payload, ok := strings.Cut(strings.TrimPrefix(s, "data:"), ",")
	if !ok {
		return "", nil, models.NewValidationError("Malformed image data", "images")
	}
	mediaType, encoding, _ := strings.Cut(meta, ";")
	if encoding != "base64" {
		return "", nil, models.NewValidationError("Image data must be base64 encoded", "images")
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		// Some browsers drop padding.
		data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
		if err != nil {
			return "", nil, models.NewValidationError("Malformed image data", "images")
		}
	}
	if len(data) == 0 {
		return "", nil, models.NewValidationError("Empty image", "images")
	}
	return strings.ToLower(mediaType), data, nil
}
