package httpapi

import (
	"errors"
	"io"
	"log"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/tavarakyyti/chat/internal/chat"
)

// multipartOverhead is the allowance for multipart framing on top of the
// file size cap.
const multipartOverhead = 1 << 20

// uploadFile accepts a multipart form with a "file" part and returns the
// attachment metadata to send with a message.
func (a *api) uploadFile(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, a.uploads.MaxBytes()+multipartOverhead)

	mr, err := r.MultipartReader()
	if err != nil {
		writeError(w, r, chat.ErrInvalidPayload)
		return
	}
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				writeError(w, r, err)
				return
			}
			writeError(w, r, chat.ErrInvalidPayload)
			return
		}
		if part.FormName() != "file" {
			part.Close()
			continue
		}

		att, err := a.uploads.Store(r.Context(), userID(r), part.FileName(), part.Header.Get("Content-Type"), part)
		part.Close()
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, att)
		return
	}
	writeError(w, r, chat.ErrInvalidPayload)
}

func (a *api) downloadFile(w http.ResponseWriter, r *http.Request) {
	rc, obj, err := a.uploads.Open(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer rc.Close()

	contentType := obj.Mime
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	disposition := "attachment"
	if inlineSafe(contentType) {
		disposition = "inline"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.FormatInt(obj.Size, 10))
	w.Header().Set("Content-Disposition", mime.FormatMediaType(disposition, map[string]string{"filename": obj.Name}))
	w.Header().Set("Content-Security-Policy", "sandbox; default-src 'none'")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Cache-Control", "private, max-age=86400")
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, rc); err != nil {
		log.Printf("http: stream file id=%s: %v", obj.ID, err)
	}
}

// inlineSafe reports whether a stored type may render in the browser from the
// API origin. Anything that can carry script is served as a download.
func inlineSafe(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	switch {
	case mediaType == "image/svg+xml":
		return false
	case strings.HasPrefix(mediaType, "image/"):
		return true
	case mediaType == "application/pdf", mediaType == "text/plain":
		return true
	}
	return false
}
