package domain

import (
	"context"
	"io"
)

// BlobWriter uploads a blob to object storage under the given key.
type BlobWriter interface {
	Put(ctx context.Context, key string, body io.Reader, contentType string) error
}
