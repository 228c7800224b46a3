package upload

import (
	"errors"
	"io"
	"net/http"

	"github.com/dropgate/service/internal/fingerprint"
	"github.com/dropgate/service/internal/relay"
	"github.com/dropgate/service/internal/response"
)

const (
	// maxUploadBytes is the payload size ceiling.
	maxUploadBytes = 5 << 20
	// multipartOverhead is headroom for form boundaries and headers when
	// capping the request body.
	multipartOverhead = 64 << 10
)

// allowedTypes is the declared-media-type allow-list.
var allowedTypes = map[string]bool{
	"image/jpeg":      true,
	"image/png":       true,
	"image/gif":       true,
	"image/webp":      true,
	"video/mp4":       true,
	"video/webm":      true,
	"video/quicktime": true,
}

type uploadResponse struct {
	Success       bool   `json:"success"`
	URL           string `json:"url"`
	FileID        string `json:"fileId"`
	EncodedFileID string `json:"encodedFileId"`
	OriginalName  string `json:"originalName"`
	Size          int64  `json:"size"`
	FileType      string `json:"fileType"`
	UploadedAt    int64  `json:"uploadedAt"`
	ViaAPIKey     bool   `json:"viaApiKey"`
}

// Handler exposes the upload endpoint.
type Handler struct {
	svc *Service
	// publicBaseURL overrides the link base; empty derives it per request.
	publicBaseURL string
}

// NewHandler creates a new upload Handler.
func NewHandler(svc *Service, publicBaseURL string) *Handler {
	return &Handler{svc: svc, publicBaseURL: publicBaseURL}
}

// Upload handles POST /api/upload. Validation happens entirely before any
// store or upstream call: presence, size ceiling, then the type allow-list.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	if r.ContentLength > maxUploadBytes+multipartOverhead {
		response.TooLarge(w, "File size exceeds 5MB limit")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes+multipartOverhead)

	file, header, err := r.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			response.TooLarge(w, "File size exceeds 5MB limit")
			return
		}
		response.BadRequest(w, "No file uploaded")
		return
	}
	defer file.Close()

	if header.Size > maxUploadBytes {
		response.TooLarge(w, "File size exceeds 5MB limit")
		return
	}

	fileType := header.Header.Get("Content-Type")
	if !allowedTypes[fileType] {
		response.BadRequest(w, "File type not supported")
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		response.BadRequest(w, "Failed to read uploaded file")
		return
	}

	fp := fingerprint.FromRequest(r)
	receipt, err := h.svc.Process(r.Context(), fp, r.Header.Get("X-API-Key"), relay.Payload{
		Name: header.Filename,
		MIME: fileType,
		Data: data,
	})
	if err != nil {
		writeProcessError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, uploadResponse{
		Success:       true,
		URL:           h.baseURL(r) + "/file/" + receipt.EncodedFileID,
		FileID:        receipt.FileID,
		EncodedFileID: receipt.EncodedFileID,
		OriginalName:  header.Filename,
		Size:          header.Size,
		FileType:      fileType,
		UploadedAt:    receipt.UploadedAt,
		ViaAPIKey:     receipt.ViaAPIKey,
	})
}

func writeProcessError(w http.ResponseWriter, err error) {
	var rateErr *RateLimitError
	if errors.As(err, &rateErr) {
		response.TooManyRequests(w, rateErr.Error())
		return
	}
	var upErr *UpstreamError
	if errors.As(err, &upErr) {
		response.BadGateway(w, upErr.Message)
		return
	}
	if errors.Is(err, relay.ErrNoFileID) {
		response.Error(w, http.StatusInternalServerError, "Failed to resolve file id")
		return
	}
	response.InternalError(w)
}

// baseURL picks the configured public base or reconstructs one from the
// request.
func (h *Handler) baseURL(r *http.Request) string {
	if h.publicBaseURL != "" {
		return h.publicBaseURL
	}
	scheme := "http"
	if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}
