package usage

import (
	"context"
	"log"
	"time"

	"github.com/dropgate/service/internal/kv"
)

// Decision is the outcome of an admission check. It carries the window
// state the check was based on; the caller passes it back to the ledger on
// success so the persisted count reflects this request's increment. The
// check itself never writes — a client that is admitted but whose upload
// later fails consumes no quota.
type Decision struct {
	Allowed     bool
	RetryAfter  time.Duration
	WindowStart int64
	WindowCount int64
}

// Limiter performs fixed-window admission control keyed by fingerprint
// identity.
type Limiter struct {
	store kv.Store
}

// NewLimiter creates a Limiter backed by store. A nil store disables
// limiting (fail open).
func NewLimiter(store kv.Store) *Limiter {
	return &Limiter{store: store}
}

// CheckAndReserve decides whether one more upload is admissible for the
// identity. The limit is two-tier: privileged callers (valid API key) get
// the higher ceiling. When the store is missing or the read fails the
// limiter fails open rather than blocking uploads.
func (l *Limiter) CheckAndReserve(ctx context.Context, identity string, privileged bool) Decision {
	now := time.Now().UnixMilli()

	if l.store == nil {
		return Decision{Allowed: true, WindowStart: now}
	}

	var rec Record
	found, err := l.store.GetJSON(ctx, statsKey(identity), &rec)
	if err != nil {
		log.Printf("ratelimit: store read failed, allowing request: %v", err)
		return Decision{Allowed: true, WindowStart: now}
	}

	windowStart := now
	var windowCount int64
	if found {
		windowStart = rec.WindowStart
		windowCount = rec.WindowCount
	}

	// Lazy expiry: an elapsed window is treated as fresh at read time.
	windowMs := windowDuration.Milliseconds()
	if now-windowStart >= windowMs {
		windowStart = now
		windowCount = 0
	}

	limit := int64(anonLimit)
	if privileged {
		limit = apiKeyLimit
	}

	if windowCount >= limit {
		retryAfter := windowMs - (now - windowStart)
		if retryAfter < 0 {
			retryAfter = 0
		}
		return Decision{
			Allowed:     false,
			RetryAfter:  time.Duration(retryAfter) * time.Millisecond,
			WindowStart: windowStart,
			WindowCount: windowCount,
		}
	}

	return Decision{Allowed: true, WindowStart: windowStart, WindowCount: windowCount}
}
