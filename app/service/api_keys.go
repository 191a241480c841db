package service

import (
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"strings"
)

var ErrInvalidAPIKey = errors.New("invalid api key")

// APIKeyring authenticates internal callers against a static key list.
type APIKeyring struct {
	digests [][sha256.Size]byte
}

func NewAPIKeyring(keys []string) *APIKeyring {
	ring := &APIKeyring{}
	for _, key := range keys {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		ring.digests = append(ring.digests, sha256.Sum256([]byte(key)))
	}
	return ring
}

// Authenticate compares digests in constant time and checks every key.
func (r *APIKeyring) Authenticate(key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return ErrInvalidAPIKey
	}

	digest := sha256.Sum256([]byte(key))
	match := 0
	for _, d := range r.digests {
		match |= subtle.ConstantTimeCompare(digest[:], d[:])
	}
	if match != 1 {
		return ErrInvalidAPIKey
	}
	return nil
}

func (r *APIKeyring) Len() int {
	return len(r.digests)
}
