// Package usage tracks per-identity upload accounting and enforces the
// fixed-window rate limit. Both live on the same record under
// "stats:<identity>" so a single read serves admission and a single write
// commits the accepted upload. All timestamps are epoch milliseconds.
package usage

import "time"

const (
	statsPrefix = "stats:"
	globalKey   = "stats:global"

	// windowDuration is the fixed rate window. The counter resets lazily at
	// read time once the window has elapsed; bursts of up to twice the limit
	// are possible across a window boundary.
	windowDuration = time.Hour

	// anonLimit applies to unauthenticated callers, apiKeyLimit to callers
	// presenting a valid API key.
	anonLimit   = 30
	apiKeyLimit = 200
)

// Record is the per-identity usage record. It is a superset of the rate
// window state and is overwritten wholesale on every successful upload.
type Record struct {
	ID        string `json:"id"`
	CreatedAt int64  `json:"createdAt"`

	Uploads    int64 `json:"uploads"`
	TotalBytes int64 `json:"totalBytes"`
	APIUploads int64 `json:"apiUploads"`
	LastUpload int64 `json:"lastUpload"`

	LastFileName string `json:"lastFileName,omitempty"`
	LastFileType string `json:"lastFileType,omitempty"`

	// Fingerprint attributes copied for operator inspection.
	IPHash    string `json:"ipHash,omitempty"`
	UserAgent string `json:"userAgent,omitempty"`
	Country   string `json:"country,omitempty"`
	Device    string `json:"device,omitempty"`
	Browser   string `json:"browser,omitempty"`
	ViaAPIKey bool   `json:"viaApiKey"`

	// Rate window state.
	WindowStart int64 `json:"windowStart"`
	WindowCount int64 `json:"windowCount"`
}

// GlobalRecord is the singleton aggregate across all identities.
type GlobalRecord struct {
	Uploads    int64 `json:"uploads"`
	Bytes      int64 `json:"bytes"`
	APIUploads int64 `json:"apiUploads"`
	LastUpload int64 `json:"lastUpload"`
}

func statsKey(identity string) string {
	return statsPrefix + identity
}
