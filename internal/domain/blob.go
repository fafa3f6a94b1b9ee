package domain

import (
	"context"
	"io"
)

// BlobWriter uploads immutable objects to cold storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
	// PutMultipart uploads large payloads in parts of partSize bytes.
	PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error
}

// BlobReader retrieves objects from cold storage.
type BlobReader interface {
	// Get returns the object body; the caller closes it.
	Get(ctx context.Context, path string) (io.ReadCloser, error)
	Exists(ctx context.Context, path string) (bool, error)
}
