package storage

import (
	"context"
	"io"
)

// ObjectStorage is the write side of the report archive. Finalized
// analysis reports are uploaded as JSON documents; the rest of the
// system never reads them back, so no read operations are exposed.
type ObjectStorage interface {
	// Upload uploads an object to storage
	Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error
}
