package object

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound is returned when no object exists under the requested key.
var ErrNotFound = errors.New("object not found")

// Object is a stored blob opened for streaming. Callers must close Body.
type Object struct {
	Body        io.ReadCloser
	ContentType string
	// Size is -1 when the backend did not report a length.
	Size int64
}

// ObjectStore defines the contract for saving, streaming and removing binary objects.
type ObjectStore interface {
	// Put writes r under key. size is -1 when unknown.
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (Object, error)
	Delete(ctx context.Context, key string) error
	List(ctx context.Context) ([]string, error)
}
