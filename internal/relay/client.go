// Package relay forwards uploads to the Telegram Bot API, which is the
// system of record for the bytes, and resolves stored objects back by
// their opaque file_id.
package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	// maxRetries is the number of extra attempts after a transport-level
	// failure, per endpoint. Well-formed upstream rejections are never
	// retried against the same endpoint.
	maxRetries = 2
	// backoffBase is multiplied by the attempt number between retries.
	backoffBase = time.Second
)

// ErrNoFileID is returned when the upstream accepts the payload but the
// response carries no recognizable file identifier.
var ErrNoFileID = errors.New("failed to resolve file id from upstream response")

// ErrNotFound is returned by Resolve when the upstream does not know the
// identifier or answers with malformed metadata.
var ErrNotFound = errors.New("file not found")

// RejectionError is a well-formed upstream refusal, carrying the reason the
// upstream reported.
type RejectionError struct {
	Description string
}

func (e *RejectionError) Error() string {
	if e.Description == "" {
		return "Upload to Telegram failed"
	}
	return e.Description
}

// Payload is one file to relay. The bytes are held in memory so fallback
// and retry attempts can resend them unchanged.
type Payload struct {
	Name string
	MIME string
	Data []byte
}

// Object is a stored file resolved back from the upstream.
type Object struct {
	Body io.ReadCloser
	MIME string
	Size int64
	// Name is the suggested filename, derived from the upstream path.
	Name string
}

// Client talks to the Telegram Bot API.
type Client struct {
	http     *http.Client
	apiBase  string
	botToken string
	chatID   string
	backoff  time.Duration
}

// NewClient creates a relay client. httpClient may be nil for the default.
func NewClient(httpClient *http.Client, apiBase, botToken, chatID string) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		http:     httpClient,
		apiBase:  strings.TrimRight(apiBase, "/"),
		botToken: botToken,
		chatID:   chatID,
		backoff:  backoffBase,
	}
}

// endpointFor selects the upstream method and multipart field by media kind.
func endpointFor(mime string) (endpoint, field string) {
	switch {
	case strings.HasPrefix(mime, "image/"):
		return "sendPhoto", "photo"
	case strings.HasPrefix(mime, "video/"):
		return "sendVideo", "video"
	case strings.HasPrefix(mime, "audio/"):
		return "sendAudio", "audio"
	default:
		return "sendDocument", "document"
	}
}

// Send relays the payload and returns the upstream file identifier.
//
// Two failure dimensions compose: a transport failure is retried against
// the same endpoint up to maxRetries extra attempts with linear backoff,
// and a well-formed rejection from the photo endpoint falls back once to
// the generic document endpoint (where the transport retry budget applies
// again). Anything left after that is returned as the upstream's reported
// reason, or a generic network error.
func (c *Client) Send(ctx context.Context, p Payload) (string, error) {
	endpoint, field := endpointFor(p.MIME)
	fellBack := false

	for {
		msg, err := c.post(ctx, endpoint, field, p)
		if err == nil {
			fileID := extractFileID(msg)
			if fileID == "" {
				return "", ErrNoFileID
			}
			return fileID, nil
		}

		var rej *RejectionError
		if errors.As(err, &rej) && endpoint == "sendPhoto" && !fellBack {
			log.Printf("relay: photo endpoint rejected payload, retrying as document")
			endpoint, field = "sendDocument", "document"
			fellBack = true
			continue
		}
		return "", err
	}
}

// post submits the payload to one endpoint, absorbing transport failures
// up to the retry bound. It returns the decoded message on success or a
// *RejectionError for a well-formed refusal.
func (c *Client) post(ctx context.Context, endpoint, field string, p Payload) (*message, error) {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(time.Duration(attempt) * c.backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		msg, err := c.postOnce(ctx, endpoint, field, p)
		if err == nil {
			return msg, nil
		}

		var rej *RejectionError
		if errors.As(err, &rej) {
			return nil, err
		}

		log.Printf("relay: %s attempt %d failed: %v", endpoint, attempt+1, err)
		lastErr = err
	}
	return nil, fmt.Errorf("network error occurred: %w", lastErr)
}

func (c *Client) postOnce(ctx context.Context, endpoint, field string, p Payload) (*message, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("chat_id", c.chatID); err != nil {
		return nil, fmt.Errorf("build form: %w", err)
	}
	fw, err := mw.CreateFormFile(field, p.Name)
	if err != nil {
		return nil, fmt.Errorf("build form: %w", err)
	}
	if _, err := fw.Write(p.Data); err != nil {
		return nil, fmt.Errorf("build form: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("build form: %w", err)
	}

	reqURL := fmt.Sprintf("%s/bot%s/%s", c.apiBase, c.botToken, endpoint)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, &body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var decoded apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode upstream response: %w", err)
	}

	if resp.StatusCode != http.StatusOK || !decoded.OK || decoded.Result == nil {
		return nil, &RejectionError{Description: decoded.Description}
	}
	return decoded.Result, nil
}

// Resolve fetches metadata for a stored identifier, then opens a stream of
// the raw bytes. Missing or malformed metadata is a not-found condition,
// not a server error.
func (c *Client) Resolve(ctx context.Context, fileID string) (*Object, error) {
	infoURL := fmt.Sprintf("%s/bot%s/getFile?file_id=%s", c.apiBase, c.botToken, url.QueryEscape(fileID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, infoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch file info: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, ErrNotFound
	}

	var info fileInfoResponse
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, ErrNotFound
	}
	if !info.OK || info.Result == nil || info.Result.FilePath == "" {
		return nil, ErrNotFound
	}

	name := info.Result.FilePath
	if idx := strings.LastIndex(name, "/"); idx >= 0 {
		name = name[idx+1:]
	}

	fileURL := fmt.Sprintf("%s/file/bot%s/%s", c.apiBase, c.botToken, info.Result.FilePath)
	fileReq, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	fileResp, err := c.http.Do(fileReq)
	if err != nil {
		return nil, fmt.Errorf("fetch file bytes: %w", err)
	}
	if fileResp.StatusCode != http.StatusOK {
		fileResp.Body.Close()
		return nil, ErrNotFound
	}

	return &Object{
		Body: fileResp.Body,
		MIME: info.Result.MIMEType,
		Size: info.Result.FileSize,
		Name: name,
	}, nil
}

type apiResponse struct {
	OK          bool     `json:"ok"`
	Description string   `json:"description"`
	Result      *message `json:"result"`
}

type message struct {
	Document *fileRef   `json:"document"`
	Video    *fileRef   `json:"video"`
	Audio    *fileRef   `json:"audio"`
	Photo    []photoRef `json:"photo"`
}

type fileRef struct {
	FileID string `json:"file_id"`
}

type photoRef struct {
	FileID   string `json:"file_id"`
	FileSize int64  `json:"file_size"`
}

// extractFileID pulls the identifier out of an accepted message. Photos
// arrive as a set of size variants; the largest one wins.
func extractFileID(msg *message) string {
	switch {
	case msg.Document != nil:
		return msg.Document.FileID
	case msg.Video != nil:
		return msg.Video.FileID
	case msg.Audio != nil:
		return msg.Audio.FileID
	}

	var best photoRef
	for _, ph := range msg.Photo {
		if ph.FileSize >= best.FileSize {
			best = ph
		}
	}
	return best.FileID
}

type fileInfoResponse struct {
	OK     bool      `json:"ok"`
	Result *fileInfo `json:"result"`
}

type fileInfo struct {
	FilePath string `json:"file_path"`
	FileSize int64  `json:"file_size"`
	MIMEType string `json:"mime_type"`
}
