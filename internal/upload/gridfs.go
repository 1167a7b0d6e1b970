package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/gridfs"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/tavarakyyti/chat/internal/chat"
)

// GridFSConfig locates the attachment bucket.
type GridFSConfig struct {
	URI      string
	Database string
	Bucket   string
}

// GridFSStore keeps attachments in a MongoDB GridFS bucket.
type GridFSStore struct {
	client *mongo.Client
	bucket *gridfs.Bucket
}

type fileMetadata struct {
	Mime       string    `bson:"mime_type"`
	UploadedBy string    `bson:"uploaded_by"`
	UploadedAt time.Time `bson:"uploaded_at"`
}

// NewGridFSStore connects to MongoDB and opens the bucket.
func NewGridFSStore(ctx context.Context, cfg GridFSConfig) (*GridFSStore, error) {
	if cfg.Bucket == "" {
		cfg.Bucket = "chat_attachments"
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("upload: connect mongodb: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("upload: ping mongodb: %w", err)
	}

	bucket, err := gridfs.NewBucket(client.Database(cfg.Database), options.GridFSBucket().SetName(cfg.Bucket))
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("upload: open bucket %s: %w", cfg.Bucket, err)
	}
	return &GridFSStore{client: client, bucket: bucket}, nil
}

// Put implements ObjectStore.
func (s *GridFSStore) Put(ctx context.Context, obj Object, r io.Reader) (string, error) {
	meta := fileMetadata{Mime: obj.Mime, UploadedBy: obj.UploadedBy, UploadedAt: time.Now().UTC()}
	opts := options.GridFSUpload().SetMetadata(meta)

	id, err := s.bucket.UploadFromStream(obj.Name, r, opts)
	if err != nil {
		return "", fmt.Errorf("upload: gridfs put: %w", err)
	}
	return id.Hex(), nil
}

// Open implements ObjectStore.
func (s *GridFSStore) Open(ctx context.Context, id string) (io.ReadCloser, *Object, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, nil, chat.ErrNotFound
	}

	stream, err := s.bucket.OpenDownloadStream(oid)
	if err != nil {
		if errors.Is(err, gridfs.ErrFileNotFound) {
			return nil, nil, chat.ErrNotFound
		}
		return nil, nil, fmt.Errorf("upload: gridfs open %s: %w", id, err)
	}

	file := stream.GetFile()
	meta := decodeMetadata(id, file.Metadata)
	return stream, &Object{
		ID:         id,
		Name:       file.Name,
		Mime:       meta.Mime,
		Size:       file.Length,
		UploadedBy: meta.UploadedBy,
	}, nil
}

// decodeMetadata reads the stored file metadata. A document that does not
// decode is logged and served with empty fields.
func decodeMetadata(id string, raw bson.Raw) fileMetadata {
	var meta fileMetadata
	if len(raw) == 0 {
		return meta
	}
	if err := bson.Unmarshal(raw, &meta); err != nil {
		log.Printf("upload: bad metadata on file id=%s: %v", id, err)
		return fileMetadata{}
	}
	return meta
}

// Close disconnects from MongoDB.
func (s *GridFSStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
