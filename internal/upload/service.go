// Package upload orchestrates admission, relay, and accounting for each
// upload request.
package upload

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/dropgate/service/internal/apikey"
	"github.com/dropgate/service/internal/fingerprint"
	"github.com/dropgate/service/internal/relay"
	"github.com/dropgate/service/internal/usage"
)

// Sender relays a payload upstream and returns the stored identifier.
type Sender interface {
	Send(ctx context.Context, p relay.Payload) (string, error)
}

// RateLimitError reports a denied admission check and how long the caller
// must wait for the window to reset.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("Upload rate limit reached. Retry after %ds", int64(math.Ceil(e.RetryAfter.Seconds())))
}

// UpstreamError reports a relay failure, carrying the upstream's own reason
// when one was given.
type UpstreamError struct {
	Message string
}

func (e *UpstreamError) Error() string { return e.Message }

// Receipt is the outcome of a successfully relayed upload.
type Receipt struct {
	FileID        string
	EncodedFileID string
	UploadedAt    int64
	ViaAPIKey     bool
}

// Service sequences fingerprint → admission → relay → accounting. Quota is
// only consumed, and history only recorded, for uploads the upstream
// actually accepted: admission is a pure check and the commit happens after
// the relay succeeds.
type Service struct {
	keys    *apikey.Registry
	limiter *usage.Limiter
	ledger  *usage.Ledger
	sender  Sender
}

// NewService wires the orchestrator's dependencies.
func NewService(keys *apikey.Registry, limiter *usage.Limiter, ledger *usage.Ledger, sender Sender) *Service {
	return &Service{keys: keys, limiter: limiter, ledger: ledger, sender: sender}
}

// Process runs the admission-relay-commit sequence for one validated
// payload. apiToken may be empty; an invalid token is treated the same as
// an absent one for rate limiting.
func (s *Service) Process(ctx context.Context, fp fingerprint.Fingerprint, apiToken string, p relay.Payload) (*Receipt, error) {
	keyRec, err := s.keys.Verify(ctx, apiToken)
	if err != nil {
		log.Printf("upload: api key verification failed, treating as unauthenticated: %v", err)
		keyRec = nil
	}
	viaAPIKey := keyRec != nil

	decision := s.limiter.CheckAndReserve(ctx, fp.Identity, viaAPIKey)
	if !decision.Allowed {
		return nil, &RateLimitError{RetryAfter: decision.RetryAfter}
	}

	fileID, err := s.sender.Send(ctx, p)
	if err != nil {
		if errors.Is(err, relay.ErrNoFileID) {
			return nil, err
		}
		var rej *relay.RejectionError
		if errors.As(err, &rej) {
			return nil, &UpstreamError{Message: rej.Error()}
		}
		return nil, &UpstreamError{Message: "Network error occurred"}
	}

	// Commit phase: the upload succeeded upstream, so the reserved window
	// slot becomes a real increment now.
	err = s.ledger.Record(ctx, fp, usage.Upload{
		FileName:  p.Name,
		FileType:  p.MIME,
		Bytes:     int64(len(p.Data)),
		ViaAPIKey: viaAPIKey,
	}, decision)
	if err != nil {
		log.Printf("upload: usage accounting failed: %v", err)
	}

	if keyRec != nil {
		if err := s.keys.TouchUsage(ctx, keyRec); err != nil {
			log.Printf("upload: api key usage touch failed: %v", err)
		}
	}

	return &Receipt{
		FileID:        fileID,
		EncodedFileID: relay.EncodeFileID(fileID),
		UploadedAt:    time.Now().UnixMilli(),
		ViaAPIKey:     viaAPIKey,
	}, nil
}
