package storage

import (
	"context"
	"fmt"
	"time"
)

// ObjectStore is the blob store contract the rest of the service relies on.
type ObjectStore interface {
	PutObject(ctx context.Context, key string, data []byte, contentType string) error
	GetObject(ctx context.Context, key string) ([]byte, error)
	DeleteObject(ctx context.Context, key string) error
}

// StorageCheck reports which blob store operations work.
type StorageCheck struct {
	IsConfigured bool   `json:"is_configured"`
	CanUpload    bool   `json:"can_upload"`
	CanRead      bool   `json:"can_read"`
	CanDelete    bool   `json:"can_delete"`
	Error        string `json:"error,omitempty"`
	Bucket       string `json:"bucket,omitempty"`
}

const storageCheckContent = "whome storage check"

// CheckStorage uploads, reads back and deletes a probe object, stopping at
// the first failing step. A nil store reports an unconfigured bucket.
func CheckStorage(ctx context.Context, store ObjectStore, bucket string) StorageCheck {
	if store == nil || bucket == "" {
		return StorageCheck{Error: "storage bucket is not configured", Bucket: bucket}
	}

	res := StorageCheck{IsConfigured: true, Bucket: bucket}
	key := fmt.Sprintf("test/storage_check_%d.txt", time.Now().UnixMilli())

	if err := store.PutObject(ctx, key, []byte(storageCheckContent), "text/plain"); err != nil {
		res.Error = fmt.Sprintf("upload failed: %v", err)
		return res
	}
	res.CanUpload = true

	data, err := store.GetObject(ctx, key)
	if err != nil {
		res.Error = fmt.Sprintf("read failed: %v", err)
		return res
	}
	if string(data) != storageCheckContent {
		res.Error = "read failed: content mismatch"
		return res
	}
	res.CanRead = true

	if err := store.DeleteObject(ctx, key); err != nil {
		res.Error = fmt.Sprintf("delete failed: %v", err)
		return res
	}
	res.CanDelete = true
	return res
}
