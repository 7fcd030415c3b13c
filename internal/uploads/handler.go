// Package uploads serves the image attachments referenced by a post's
// selectedFile.
package uploads

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/neftie/neftie/backend/internal/auth"
	"github.com/neftie/neftie/backend/internal/store"
)

// MaxFileSize is the largest accepted attachment.
const MaxFileSize = 10 << 20

var extByType = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// FileStore defines the interface for attachment storage.
type FileStore interface {
	Upload(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Open(ctx context.Context, key string) (io.ReadCloser, string, error)
	Remove(ctx context.Context, key string) error
}

// Handler holds the attachment HTTP handlers.
type Handler struct {
	files FileStore
	log   *slog.Logger
}

func NewHandler(files FileStore, log *slog.Logger) *Handler {
	return &Handler{files: files, log: log}
}

// Routes mounts the handlers. Writes go through requireAuth.
func (h *Handler) Routes(r chi.Router, requireAuth func(http.Handler) http.Handler) {
	r.Get("/{username}/{name}", h.Download)
	r.Group(func(r chi.Router) {
		r.Use(requireAuth)
		r.Post("/", h.Upload)
		r.Delete("/{username}/{name}", h.Delete)
	})
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// Upload stores the multipart "file" field under the caller's prefix and
// returns its key.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	id, err := auth.RequireIdentity(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, MaxFileSize+1<<20)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(w, http.StatusRequestEntityTooLarge, "file too large")
			return
		}
		writeError(w, http.StatusBadRequest, "multipart field \"file\" is required")
		return
	}
	defer file.Close()

	if header.Size > MaxFileSize {
		writeError(w, http.StatusRequestEntityTooLarge, "file too large")
		return
	}

	// Trust the content, not the client's header.
	head := make([]byte, 512)
	n, err := io.ReadFull(file, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "unreadable file")
		return
	}
	head = head[:n]
	contentType := http.DetectContentType(head)
	ext, ok := extByType[contentType]
	if !ok {
		writeError(w, http.StatusUnsupportedMediaType, "only png, jpeg, gif and webp images are accepted")
		return
	}

	key := id.Username + "/" + uuid.NewString() + ext
	body := io.MultiReader(bytes.NewReader(head), file)
	if err := h.files.Upload(r.Context(), key, body, header.Size, contentType); err != nil {
		h.log.ErrorContext(r.Context(), "attachment upload failed", "key", key, "error", err)
		writeError(w, http.StatusInternalServerError, "upload failed")
		return
	}

	h.log.InfoContext(r.Context(), "attachment stored", "key", key, "size", header.Size)
	writeJSON(w, http.StatusCreated, map[string]string{"key": key})
}

// Download streams an attachment.
func (h *Handler) Download(w http.ResponseWriter, r *http.Request) {
	key, ok := objectKey(r)
	if !ok {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	obj, contentType, err := h.files.Open(r.Context(), key)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if err != nil {
		h.log.ErrorContext(r.Context(), "attachment download failed", "key", key, "error", err)
		writeError(w, http.StatusInternalServerError, "download failed")
		return
	}
	defer obj.Close()

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	if _, err := io.Copy(w, obj); err != nil {
		h.log.WarnContext(r.Context(), "attachment stream interrupted", "key", key, "error", err)
	}
}

// Delete removes one of the caller's attachments.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := auth.RequireIdentity(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}
	key, ok := objectKey(r)
	if !ok || chi.URLParam(r, "username") != id.Username {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	if err := h.files.Remove(r.Context(), key); err != nil {
		h.log.ErrorContext(r.Context(), "attachment removal failed", "key", key, "error", err)
		writeError(w, http.StatusInternalServerError, "delete failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func objectKey(r *http.Request) (string, bool) {
	username := chi.URLParam(r, "username")
	name := chi.URLParam(r, "name")
	if username == "" || name == "" || strings.HasPrefix(name, ".") || path.Base(name) != name {
		return "", false
	}
	return username + "/" + name, true
}
