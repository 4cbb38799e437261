package files

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates the key has no record or object.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates validation or bad input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrDuplicateKey indicates a metadata record already exists for the key.
	ErrDuplicateKey = errors.New("duplicate key")
)

// Stages reported on UploadError and DeletionError.
const (
	StageStore    = "store"
	StageMetadata = "metadata"
	StageObject   = "object"
)

// StoreError wraps an object-store failure.
type StoreError struct {
	Op  string
	Key string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("object store %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// MetadataError wraps a metadata-store failure.
type MetadataError struct {
	Op  string
	Key string
	Err error
}

func (e *MetadataError) Error() string {
	return fmt.Sprintf("metadata %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *MetadataError) Unwrap() error { return e.Err }

// CacheError wraps a cache failure. It is logged, never returned to callers.
type CacheError struct {
	Op  string
	Key string
	Err error
}

func (e *CacheError) Error() string {
	return fmt.Sprintf("cache %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *CacheError) Unwrap() error { return e.Err }

// UploadError reports the stage at which an upload sequence failed.
// Orphaned is set when a blob was left in the object store without a record.
type UploadError struct {
	Stage    string
	Key      string
	Orphaned bool
	Err      error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload failed at %s stage for %q: %v", e.Stage, e.Key, e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }

// DeletionError reports the stage at which a deletion sequence failed.
// At StageObject the metadata half has already committed.
type DeletionError struct {
	Stage string
	Key   string
	Err   error
}

func (e *DeletionError) Error() string {
	return fmt.Sprintf("deletion failed at %s stage for %q: %v", e.Stage, e.Key, e.Err)
}

func (e *DeletionError) Unwrap() error { return e.Err }
