// Package file serves stored objects back by their encoded identifier.
package file

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	_ "embed"

	"github.com/go-chi/chi/v5"

	"github.com/dropgate/service/internal/relay"
	"github.com/dropgate/service/internal/response"
)

//go:embed preview.html
var previewPage []byte

// Resolver fetches a stored object from the upstream relay.
type Resolver interface {
	Resolve(ctx context.Context, fileID string) (*relay.Object, error)
}

type infoResponse struct {
	Success       bool   `json:"success"`
	FileID        string `json:"fileId"`
	EncodedFileID string `json:"encodedFileId"`
	URL           string `json:"url"`
	OriginalName  string `json:"originalName"`
	FileType      string `json:"fileType"`
	Size          int64  `json:"size"`
	UploadedAt    int64  `json:"uploadedAt"`
}

// Handler exposes GET /file/{id}.
type Handler struct {
	resolver      Resolver
	publicBaseURL string
}

// NewHandler creates a new file Handler.
func NewHandler(resolver Resolver, publicBaseURL string) *Handler {
	return &Handler{resolver: resolver, publicBaseURL: publicBaseURL}
}

// Get serves one stored object in one of three modes: metadata JSON
// (?info=true), an HTML preview page (?a=view), or the raw bytes inline.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	encodedID := chi.URLParam(r, "id")
	fileID, err := relay.DecodeFileID(encodedID)
	if err != nil {
		response.BadRequest(w, "Invalid file reference")
		return
	}

	if r.URL.Query().Get("a") == "view" {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(previewPage)
		return
	}

	obj, err := h.resolver.Resolve(r.Context(), fileID)
	if err != nil {
		if errors.Is(err, relay.ErrNotFound) {
			response.NotFound(w, "File not found")
			return
		}
		log.Printf("file: retrieval failed: %v", err)
		response.InternalError(w)
		return
	}
	defer obj.Body.Close()

	name := obj.Name
	if name == "" {
		name = encodedID
	}
	mime := obj.MIME
	if mime == "" {
		mime = guessMime(name)
	}

	if r.URL.Query().Get("info") == "true" {
		response.JSON(w, http.StatusOK, infoResponse{
			Success:       true,
			FileID:        fileID,
			EncodedFileID: encodedID,
			URL:           h.baseURL(r) + "/file/" + encodedID,
			OriginalName:  name,
			FileType:      mime,
			Size:          obj.Size,
			// The upstream retains no upload timestamp.
			UploadedAt: time.Now().UnixMilli(),
		})
		return
	}

	w.Header().Set("Cache-Control", "public, max-age=31536000")
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", sanitizeFilename(name)))
	w.Header().Set("Content-Type", mime)
	if obj.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(obj.Size, 10))
	}
	if _, err := io.Copy(w, obj.Body); err != nil {
		log.Printf("file: streaming interrupted: %v", err)
	}
}

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

func sanitizeFilename(name string) string {
	return strings.NewReplacer("\r", "", "\n", "", `"`, "").Replace(name)
}

var mimeByExt = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
	".mp4":  "video/mp4",
	".webm": "video/webm",
	".mov":  "video/quicktime",
}

func guessMime(name string) string {
	if mime, ok := mimeByExt[strings.ToLower(path.Ext(name))]; ok {
		return mime
	}
	return "application/octet-stream"
}
