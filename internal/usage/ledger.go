package usage

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/dropgate/service/internal/fingerprint"
	"github.com/dropgate/service/internal/kv"
)

// Upload describes one successfully relayed file for accounting purposes.
type Upload struct {
	FileName  string
	FileType  string
	Bytes     int64
	ViaAPIKey bool
}

// Ledger maintains the per-identity and global usage counters. Writes are
// plain read-merge-overwrite: two concurrent uploads for the same identity
// can lose an increment, which is an accepted property of the store.
type Ledger struct {
	store kv.Store
}

// NewLedger creates a Ledger backed by store. A nil store turns recording
// into a no-op and listing into empty results.
func NewLedger(store kv.Store) *Ledger {
	return &Ledger{store: store}
}

// Record commits a successful upload to both the identity's record and the
// global aggregate. The decision is the admission state this request was
// allowed under, so the persisted window count includes this upload.
func (l *Ledger) Record(ctx context.Context, fp fingerprint.Fingerprint, up Upload, d Decision) error {
	if l.store == nil {
		return nil
	}

	now := time.Now().UnixMilli()
	key := statsKey(fp.Identity)

	var prev Record
	if _, err := l.store.GetJSON(ctx, key, &prev); err != nil {
		return fmt.Errorf("read usage record: %w", err)
	}

	createdAt := prev.CreatedAt
	if createdAt == 0 {
		createdAt = now
	}

	rec := Record{
		ID:           fp.Identity,
		CreatedAt:    createdAt,
		Uploads:      prev.Uploads + 1,
		TotalBytes:   prev.TotalBytes + up.Bytes,
		APIUploads:   prev.APIUploads,
		LastUpload:   now,
		LastFileName: up.FileName,
		LastFileType: up.FileType,
		IPHash:       fp.IPHash,
		UserAgent:    fp.UserAgent,
		Country:      fp.Country,
		Device:       fp.Device,
		Browser:      fp.Browser,
		ViaAPIKey:    up.ViaAPIKey,
		WindowStart:  d.WindowStart,
		WindowCount:  d.WindowCount + 1,
	}
	if up.ViaAPIKey {
		rec.APIUploads++
	}

	if err := l.store.PutJSON(ctx, key, &rec); err != nil {
		return fmt.Errorf("write usage record: %w", err)
	}

	var global GlobalRecord
	if _, err := l.store.GetJSON(ctx, globalKey, &global); err != nil {
		return fmt.Errorf("read global usage: %w", err)
	}

	global.Uploads++
	global.Bytes += up.Bytes
	if up.ViaAPIKey {
		global.APIUploads++
	}
	global.LastUpload = now

	if err := l.store.PutJSON(ctx, globalKey, &global); err != nil {
		return fmt.Errorf("write global usage: %w", err)
	}
	return nil
}

// ListAll returns every identity record (most recent upload first) and the
// global summary. A missing store yields empty results, not an error.
func (l *Ledger) ListAll(ctx context.Context) ([]Record, *GlobalRecord, error) {
	if l.store == nil {
		return []Record{}, nil, nil
	}

	var summary *GlobalRecord
	var global GlobalRecord
	if found, err := l.store.GetJSON(ctx, globalKey, &global); err == nil && found {
		summary = &global
	}

	items := []Record{}
	var cursor uint64
	for {
		keys, next, err := l.store.List(ctx, statsPrefix, cursor)
		if err != nil {
			return nil, nil, fmt.Errorf("list usage records: %w", err)
		}
		for _, name := range keys {
			if name == globalKey {
				continue
			}
			var rec Record
			found, err := l.store.GetJSON(ctx, name, &rec)
			if err != nil || !found {
				continue
			}
			items = append(items, rec)
		}
		if next == 0 {
			break
		}
		cursor = next
	}

	sort.Slice(items, func(i, j int) bool {
		return items[i].LastUpload > items[j].LastUpload
	})
	return items, summary, nil
}

// DeleteIdentity removes one identity's usage record.
func (l *Ledger) DeleteIdentity(ctx context.Context, identity string) error {
	if l.store == nil {
		return nil
	}
	if err := l.store.Delete(ctx, statsKey(identity)); err != nil {
		return fmt.Errorf("delete usage record: %w", err)
	}
	return nil
}
