package storage

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

type memoryStore struct {
	mu        sync.Mutex
	objects   map[string][]byte
	putErr    error
	getErr    error
	deleteErr error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{objects: make(map[string][]byte)}
}

func (m *memoryStore) PutObject(ctx context.Context, key string, data []byte, contentType string) error {
	if m.putErr != nil {
		return m.putErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
	return nil
}

func (m *memoryStore) GetObject(ctx context.Context, key string) ([]byte, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, errors.New("no such key")
	}
	return data, nil
}

func (m *memoryStore) DeleteObject(ctx context.Context, key string) error {
	if m.deleteErr != nil {
		return m.deleteErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func TestCheckStorage(t *testing.T) {
	boom := errors.New("access denied")

	tests := []struct {
		name  string
		store func() ObjectStore
		want  StorageCheck
	}{
		{
			name:  "not configured",
			store: func() ObjectStore { return nil },
			want:  StorageCheck{Bucket: "whome", Error: "storage bucket is not configured"},
		},
		{
			name:  "all operations succeed",
			store: func() ObjectStore { return newMemoryStore() },
			want:  StorageCheck{IsConfigured: true, CanUpload: true, CanRead: true, CanDelete: true, Bucket: "whome"},
		},
		{
			name: "upload fails",
			store: func() ObjectStore {
				s := newMemoryStore()
				s.putErr = boom
				return s
			},
			want: StorageCheck{IsConfigured: true, Bucket: "whome", Error: "upload failed: access denied"},
		},
		{
			name: "read fails",
			store: func() ObjectStore {
				s := newMemoryStore()
				s.getErr = boom
				return s
			},
			want: StorageCheck{IsConfigured: true, CanUpload: true, Bucket: "whome", Error: "read failed: access denied"},
		},
		{
			name: "delete fails",
			store: func() ObjectStore {
				s := newMemoryStore()
				s.deleteErr = boom
				return s
			},
			want: StorageCheck{IsConfigured: true, CanUpload: true, CanRead: true, Bucket: "whome", Error: "delete failed: access denied"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CheckStorage(context.Background(), tt.store(), "whome")
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCheckStorage_CleansUpProbe(t *testing.T) {
	s := newMemoryStore()
	CheckStorage(context.Background(), s, "whome")
	assert.Empty(t, s.objects)
}

func TestMigrations_AreEmbeddedInPairs(t *testing.T) {
	entries, err := migrationsFS.ReadDir("migrations")
	assert.NoError(t, err)

	ups, downs := map[string]bool{}, map[string]bool{}
	for _, e := range entries {
		name := e.Name()
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		}
	}
	assert.NotEmpty(t, ups)
	assert.Equal(t, ups, downs)
}
