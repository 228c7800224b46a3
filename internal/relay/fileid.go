package relay

import (
	"encoding/base64"
	"errors"
)

// ErrMalformedID is returned when an encoded identifier cannot be decoded.
// Distinct from a well-formed identifier the upstream does not recognize.
var ErrMalformedID = errors.New("malformed file identifier")

// EncodeFileID turns a raw upstream identifier into a URL-path-safe token
// (unpadded URL-safe base64).
func EncodeFileID(fileID string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(fileID))
}

// DecodeFileID is the exact inverse of EncodeFileID. Input containing
// characters outside the codec alphabet yields ErrMalformedID.
func DecodeFileID(encoded string) (string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return "", ErrMalformedID
	}
	return string(raw), nil
}
