package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/tavarakyyti/chat/internal/chat"
	"github.com/tavarakyyti/chat/internal/upload"
)

// maxJSONBody bounds JSON request bodies.
const maxJSONBody = 1 << 20

type errorBody struct {
	Error string `json:"error"`
}

type okBody struct {
	OK bool `json:"ok"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("http: encode response: %v", err)
	}
}

// statusFor maps a service error to its status code and kind slug.
func statusFor(err error) (int, string) {
	var maxErr *http.MaxBytesError
	switch {
	case errors.Is(err, chat.ErrInvalidPayload):
		return http.StatusBadRequest, "invalid_payload"
	case errors.Is(err, chat.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, chat.ErrBlocked):
		return http.StatusForbidden, "blocked"
	case errors.Is(err, chat.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, chat.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, chat.ErrInvalidStatus):
		return http.StatusBadRequest, "bad_status"
	case errors.Is(err, chat.ErrRateLimited):
		return http.StatusTooManyRequests, "rate_limited"
	case errors.Is(err, upload.ErrTooLarge), errors.As(err, &maxErr):
		return http.StatusRequestEntityTooLarge, "file_too_large"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

// writeError writes the error body. Unknown errors are logged and reported
// as "internal" without details.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, kind := statusFor(err)
	if status == http.StatusInternalServerError {
		log.Printf("http: %s %s: %v", r.Method, r.URL.Path, err)
	}
	writeJSON(w, status, errorBody{Error: kind})
}

// decodeJSON decodes the request body into dst. An empty body leaves dst
// untouched when optional is set.
func decodeJSON(r *http.Request, dst interface{}, optional bool) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody))
	if err := dec.Decode(dst); err != nil {
		if optional && errors.Is(err, io.EOF) {
			return nil
		}
		return chat.ErrInvalidPayload
	}
	return nil
}
