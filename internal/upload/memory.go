package upload

import (
	"bytes"
	"context"
	"io"
	"sync"

	"github.com/google/uuid"

	"github.com/tavarakyyti/chat/internal/chat"
)

type memoryObject struct {
	meta Object
	data []byte
}

// MemoryStore keeps uploads in process memory. It backs development runs
// without MongoDB and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]memoryObject
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string]memoryObject)}
}

// Put implements ObjectStore.
func (s *MemoryStore) Put(_ context.Context, obj Object, r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	obj.ID = uuid.NewString()
	obj.Size = int64(len(data))

	s.mu.Lock()
	s.objects[obj.ID] = memoryObject{meta: obj, data: data}
	s.mu.Unlock()
	return obj.ID, nil
}

// Open implements ObjectStore.
func (s *MemoryStore) Open(_ context.Context, id string) (io.ReadCloser, *Object, error) {
	s.mu.RLock()
	o, ok := s.objects[id]
	s.mu.RUnlock()
	if !ok {
		return nil, nil, chat.ErrNotFound
	}
	meta := o.meta
	return io.NopCloser(bytes.NewReader(o.data)), &meta, nil
}
