// Package upload is the object storage collaborator for message
// attachments. The Service enforces the size cap and resolves the content
// type. An ObjectStore (GridFS or in-memory) keeps the bytes.
package upload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/tavarakyyti/chat/internal/chat"
)

// DefaultMaxBytes is the largest accepted upload (10 MiB).
const DefaultMaxBytes = 10 << 20

// DefaultBaseURL prefixes object ids when no public base URL is configured.
// It points at the download route served by this process.
const DefaultBaseURL = "/api/chat/files"

// ErrTooLarge is returned when an upload exceeds the configured cap.
var ErrTooLarge = errors.New("file_too_large")

// Object describes a stored file.
type Object struct {
	ID         string
	Name       string
	Mime       string
	Size       int64
	UploadedBy string
}

// ObjectStore keeps uploaded bytes. Open returns chat.ErrNotFound for
// unknown ids.
type ObjectStore interface {
	Put(ctx context.Context, obj Object, r io.Reader) (id string, err error)
	Open(ctx context.Context, id string) (io.ReadCloser, *Object, error)
}

// Config controls the Service.
type Config struct {
	MaxBytes int64
	BaseURL  string // public prefix for attachment URLs
}

// DefaultConfig returns the default upload limits.
func DefaultConfig() Config {
	return Config{MaxBytes: DefaultMaxBytes, BaseURL: DefaultBaseURL}
}

// Service stores uploads and returns the attachment metadata a message
// carries.
type Service struct {
	store    ObjectStore
	maxBytes int64
	baseURL  string
}

// NewService creates a Service over store.
func NewService(store ObjectStore, cfg Config) *Service {
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = DefaultMaxBytes
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	return &Service{
		store:    store,
		maxBytes: cfg.MaxBytes,
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
	}
}

// MaxBytes returns the configured upload cap.
func (s *Service) MaxBytes() int64 {
	return s.maxBytes
}

// Store reads r fully (up to the cap), stores it and returns the attachment
// metadata. An empty mimeType, or the generic octet-stream type, is replaced
// by the sniffed content type.
func (s *Service) Store(ctx context.Context, uploaderID, name, mimeType string, r io.Reader) (chat.Attachment, error) {
	if uploaderID == "" {
		return chat.Attachment{}, chat.ErrUnauthorized
	}
	data, err := io.ReadAll(io.LimitReader(r, s.maxBytes+1))
	if err != nil {
		return chat.Attachment{}, fmt.Errorf("upload: read: %w", err)
	}
	if int64(len(data)) > s.maxBytes {
		return chat.Attachment{}, ErrTooLarge
	}
	if len(data) == 0 {
		return chat.Attachment{}, chat.ErrInvalidPayload
	}

	name = cleanName(name)
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = detectType(name, data)
	}

	obj := Object{Name: name, Mime: mimeType, Size: int64(len(data)), UploadedBy: uploaderID}
	id, err := s.store.Put(ctx, obj, bytes.NewReader(data))
	if err != nil {
		return chat.Attachment{}, fmt.Errorf("upload: store: %w", err)
	}
	log.Printf("upload: stored id=%s user=%s size=%d mime=%s", id, uploaderID, obj.Size, mimeType)

	return chat.Attachment{
		URL:  s.baseURL + "/" + id,
		Mime: mimeType,
		Size: obj.Size,
		Name: name,
	}, nil
}

// Open returns the stored bytes and metadata for id.
func (s *Service) Open(ctx context.Context, id string) (io.ReadCloser, *Object, error) {
	if id == "" {
		return nil, nil, chat.ErrNotFound
	}
	return s.store.Open(ctx, id)
}

func cleanName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" || name == "" {
		return "file"
	}
	return name
}

func detectType(name string, data []byte) string {
	sniffed := http.DetectContentType(data)
	if sniffed != "application/octet-stream" {
		return sniffed
	}
	if byExt := mime.TypeByExtension(filepath.Ext(name)); byExt != "" {
		return byExt
	}
	return sniffed
}
