// Package apikey manages opaque bearer credentials for the upload API.
// Records live in the key-value store under "apikey:<token>"; the token
// itself is the only thing the caller ever holds.
package apikey

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/dropgate/service/internal/kv"
)

const (
	keyPrefix   = "apikey:"
	tokenPrefix = "tap_"
	// tokenBytes of randomness per token; rendered as hex.
	tokenBytes = 24
	// maxGenerateAttempts bounds the collision-check loop. A collision is
	// cryptographically negligible but still handled, not assumed away.
	maxGenerateAttempts = 5
)

// ErrStoreUnavailable is returned when the key-value store is not configured.
// Key creation is load-bearing, so it fails hard rather than open.
var ErrStoreUnavailable = errors.New("key-value store not configured")

// ErrGenerationExhausted is returned when no unique token could be produced
// within the attempt bound.
var ErrGenerationExhausted = errors.New("failed to generate unique API key")

// Record is one issued credential. CreatedAt and LastUsed are epoch millis.
type Record struct {
	Key        string `json:"key,omitempty"`
	Label      string `json:"label"`
	CreatedAt  int64  `json:"createdAt"`
	CreatedBy  string `json:"createdBy"`
	UsageCount int64  `json:"usageCount"`
	LastUsed   int64  `json:"lastUsed,omitempty"`
}

// Registry issues, validates, and tracks usage of API keys.
type Registry struct {
	store kv.Store

	// generate produces candidate tokens; swapped out in tests to force
	// collisions.
	generate func() (string, error)
}

// NewRegistry creates a Registry backed by store. A nil store is allowed
// and makes every read return empty and Create fail.
func NewRegistry(store kv.Store) *Registry {
	return &Registry{store: store, generate: generateToken}
}

// Create issues a new key with a uniqueness-checked random token.
func (r *Registry) Create(ctx context.Context, label, createdBy string) (*Record, error) {
	if r.store == nil {
		return nil, ErrStoreUnavailable
	}
	if label == "" {
		label = "Untitled Key"
	}
	if createdBy == "" {
		createdBy = "admin"
	}

	for attempt := 0; attempt < maxGenerateAttempts; attempt++ {
		token, err := r.generate()
		if err != nil {
			return nil, fmt.Errorf("generate token: %w", err)
		}

		var existing Record
		found, err := r.store.GetJSON(ctx, keyPrefix+token, &existing)
		if err != nil {
			return nil, fmt.Errorf("check token collision: %w", err)
		}
		if found {
			log.Printf("apikey: token collision on attempt %d, regenerating", attempt+1)
			continue
		}

		rec := &Record{
			Key:       token,
			Label:     label,
			CreatedAt: time.Now().UnixMilli(),
			CreatedBy: createdBy,
		}
		if err := r.store.PutJSON(ctx, keyPrefix+token, rec); err != nil {
			return nil, fmt.Errorf("store api key: %w", err)
		}
		return rec, nil
	}

	return nil, ErrGenerationExhausted
}

// Verify looks up the record for a presented token. It returns nil (and no
// error) when the token is blank, unknown, or the store is missing —
// callers treat all three as "unauthenticated".
func (r *Registry) Verify(ctx context.Context, token string) (*Record, error) {
	if r.store == nil || token == "" {
		return nil, nil
	}

	var rec Record
	found, err := r.store.GetJSON(ctx, keyPrefix+token, &rec)
	if err != nil {
		return nil, fmt.Errorf("verify api key: %w", err)
	}
	if !found {
		return nil, nil
	}
	rec.Key = token
	return &rec, nil
}

// TouchUsage increments the key's usage count and refreshes its last-used
// timestamp. Full overwrite: concurrent touches resolve last-write-wins.
func (r *Registry) TouchUsage(ctx context.Context, rec *Record) error {
	if r.store == nil || rec == nil {
		return nil
	}

	updated := *rec
	updated.UsageCount++
	updated.LastUsed = time.Now().UnixMilli()
	if err := r.store.PutJSON(ctx, keyPrefix+rec.Key, &updated); err != nil {
		return fmt.Errorf("touch api key usage: %w", err)
	}
	return nil
}

// List enumerates every stored key, newest first.
func (r *Registry) List(ctx context.Context) ([]Record, error) {
	if r.store == nil {
		return []Record{}, nil
	}

	records := []Record{}
	var cursor uint64
	for {
		keys, next, err := r.store.List(ctx, keyPrefix, cursor)
		if err != nil {
			return nil, fmt.Errorf("list api keys: %w", err)
		}
		for _, name := range keys {
			var rec Record
			found, err := r.store.GetJSON(ctx, name, &rec)
			if err != nil || !found {
				continue
			}
			rec.Key = name[len(keyPrefix):]
			records = append(records, rec)
		}
		if next == 0 {
			break
		}
		cursor = next
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt > records[j].CreatedAt
	})
	return records, nil
}

// Delete removes a key. Removing an unknown key is a no-op.
func (r *Registry) Delete(ctx context.Context, token string) error {
	if r.store == nil {
		return nil
	}
	if err := r.store.Delete(ctx, keyPrefix+token); err != nil {
		return fmt.Errorf("delete api key: %w", err)
	}
	return nil
}

// generateToken returns a prefixed random token, e.g. "tap_3f9a…".
func generateToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return tokenPrefix + hex.EncodeToString(buf), nil
}
