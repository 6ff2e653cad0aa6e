package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"

	"github.com/rs/zerolog"

	"github.com/dvloznov/grocery-tracker/internal/api/middleware"
	"github.com/dvloznov/grocery-tracker/internal/blob"
	"github.com/dvloznov/grocery-tracker/internal/domain"
)

// multipartMemory is how much of a multipart upload is buffered in memory
// before spilling to temporary files.
const multipartMemory = 8 << 20

// UploadsHandler stores receipt images.
type UploadsHandler struct {
	blobs    blob.Store
	prefix   string
	maxBytes int64
	log      zerolog.Logger
}

// NewUploadsHandler creates a new uploads handler. Keys are created under prefix.
func NewUploadsHandler(blobs blob.Store, prefix string, maxBytes int64, log zerolog.Logger) *UploadsHandler {
	return &UploadsHandler{blobs: blobs, prefix: prefix, maxBytes: maxBytes, log: log}
}

// UploadFile handles POST /api/upload with a multipart "file" field.
func (h *UploadsHandler) UploadFile(w http.ResponseWriter, r *http.Request) {
	if h.maxBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			middleware.WriteError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("File exceeds %d bytes", tooLarge.Limit))
			return
		}
		middleware.WriteErr(w, r, fmt.Errorf("%w: invalid multipart form: %v", domain.ErrValidation, err))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		middleware.WriteErr(w, r, fmt.Errorf("%w: file is required", domain.ErrValidation))
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		sniff := make([]byte, 512)
		n, _ := io.ReadFull(file, sniff)
		contentType = http.DetectContentType(sniff[:n])
		if _, err := file.Seek(0, io.SeekStart); err != nil {
			middleware.WriteErr(w, r, fmt.Errorf("rewind upload: %w", err))
			return
		}
	}

	key := blob.ObjectKey(h.prefix, header.Filename)
	fileURL, err := h.blobs.Put(r.Context(), key, file, contentType)
	if err != nil {
		middleware.WriteErr(w, r, fmt.Errorf("store upload: %w", err))
		return
	}

	h.log.Info().
		Str("key", key).
		Str("content_type", contentType).
		Int64("bytes", header.Size).
		Msg("File uploaded successfully")

	middleware.WriteJSON(w, http.StatusOK, map[string]string{
		"file_url":          fileURL,
		"filename":          path.Base(key),
		"original_filename": header.Filename,
	})
}
