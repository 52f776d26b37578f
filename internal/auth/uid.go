package auth

import (
	"encoding/base64"
	"errors"
	"strings"

	"github.com/google/uuid"
)

// ErrMalformedUID is returned for identifiers that do not decode to a user id.
var ErrMalformedUID = errors.New("malformed uid")

// EncodeUID makes a user id safe for use as a URL path segment.
func EncodeUID(id string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(id))
}

// DecodeUID reverses EncodeUID and checks the result is a user id.
func DecodeUID(encoded string) (string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(encoded, "="))
	if err != nil {
		return "", ErrMalformedUID
	}
	id, err := uuid.ParseBytes(raw)
	if err != nil {
		return "", ErrMalformedUID
	}
	return id.String(), nil
}
