package files

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"time"

	"popkat/internal/shared/cache"
	"popkat/internal/shared/metrics"
	"popkat/internal/shared/storage/object"
	"popkat/internal/shared/telemetry"
)

const (
	defaultCacheTTL    = 4 * time.Second
	defaultCachePrefix = "meta:"
	cleanupTimeout     = 30 * time.Second
)

// UploadInput describes a single incoming file. Size is -1 when the source did not report it.
type UploadInput struct {
	FileName    string
	ContentType string
	Size        int64
	OwnerID     string
	Platform    string
	Body        io.Reader
}

// Service sequences writes and reads across the object store, the metadata
// repo and the metadata cache. It holds no locks across backend calls.
type Service struct {
	Store       object.ObjectStore
	Repo        Repo
	Cache       cache.Cache
	Keys        *KeyGenerator
	CacheTTL    time.Duration
	CachePrefix string
	Now         func() time.Time
}

// Upload stores the blob under a fresh key and then records its metadata.
// If the record cannot be written the blob is removed again; when that
// compensating delete fails too the blob is left orphaned and logged.
func (s *Service) Upload(ctx context.Context, in UploadInput) (FileRecord, error) {
	if in.Body == nil {
		return FileRecord{}, ErrInvalidInput
	}

	key := s.Keys.New(in.FileName)
	contentType := strings.TrimSpace(in.ContentType)
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	if err := s.Store.Put(ctx, key, in.Body, in.Size, contentType); err != nil {
		metrics.IncUploadFailed(StageStore)
		return FileRecord{}, &UploadError{
			Stage: StageStore,
			Key:   key,
			Err:   &StoreError{Op: "put", Key: key, Err: err},
		}
	}

	rec := FileRecord{
		Key:         key,
		OwnerID:     identityOrUnknown(in.OwnerID),
		Platform:    identityOrUnknown(in.Platform),
		ContentType: contentType,
		CreatedAt:   s.now(),
	}
	if in.Size >= 0 {
		size := in.Size
		rec.SizeBytes = &size
	}

	if err := s.Repo.Create(ctx, rec); err != nil {
		metrics.IncUploadFailed(StageMetadata)
		uploadErr := &UploadError{
			Stage: StageMetadata,
			Key:   key,
			Err:   &MetadataError{Op: "create", Key: key, Err: err},
		}
		if errors.Is(err, ErrDuplicateKey) {
			// The blob under this key backs another record; deleting it would strand that record.
			telemetry.Error("files.upload.key_collision", map[string]any{"key": key})
			return FileRecord{}, uploadErr
		}
		uploadErr.Orphaned = !s.compensate(ctx, key, err)
		return FileRecord{}, uploadErr
	}

	metrics.IncUpload()
	metrics.ObserveUploadBytes(in.Size)
	telemetry.Info("files.uploaded", map[string]any{
		"key":          key,
		"owner_id":     rec.OwnerID,
		"platform":     rec.Platform,
		"content_type": contentType,
		"size_bytes":   in.Size,
	})
	return rec, nil
}

// compensate removes a blob whose metadata write failed and reports whether it is gone.
func (s *Service) compensate(ctx context.Context, key string, cause error) bool {
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()

	err := s.Store.Delete(cleanupCtx, key)
	if err == nil || errors.Is(err, object.ErrNotFound) {
		telemetry.Warn("files.upload.rolled_back", map[string]any{
			"key":   key,
			"cause": cause.Error(),
		})
		return true
	}

	metrics.IncOrphanedBlob()
	telemetry.Error("files.orphan", map[string]any{
		"key":   key,
		"stage": "upload." + StageMetadata,
		"ts":    s.now().Format(time.RFC3339Nano),
		"cause": cause.Error(),
		"err":   err.Error(),
	})
	return false
}

// Open streams the object bytes for key. Blob bytes are never cached.
// Callers must close the returned body.
func (s *Service) Open(ctx context.Context, key string) (object.Object, error) {
	if !ValidKey(key) {
		return object.Object{}, ErrNotFound
	}
	obj, err := s.Store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, object.ErrNotFound) {
			return object.Object{}, ErrNotFound
		}
		return object.Object{}, &StoreError{Op: "get", Key: key, Err: err}
	}
	return obj, nil
}

// Meta returns the metadata record for key, cache first. Cache failures
// degrade to a repo read. Absent records are not cached.
func (s *Service) Meta(ctx context.Context, key string) (FileRecord, error) {
	if !ValidKey(key) {
		return FileRecord{}, ErrNotFound
	}
	cacheKey := s.cacheKey(key)

	if s.Cache != nil {
		raw, ok, err := s.Cache.Get(ctx, cacheKey)
		switch {
		case err != nil:
			logCacheError(&CacheError{Op: "get", Key: cacheKey, Err: err})
		case ok:
			var rec FileRecord
			decodeErr := json.Unmarshal([]byte(raw), &rec)
			if decodeErr == nil {
				metrics.IncCacheHit()
				return rec, nil
			}
			logCacheError(&CacheError{Op: "decode", Key: cacheKey, Err: decodeErr})
		}
	}
	metrics.IncCacheMiss()

	rec, err := s.Repo.Get(ctx, key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return FileRecord{}, ErrNotFound
		}
		return FileRecord{}, &MetadataError{Op: "get", Key: key, Err: err}
	}

	if s.Cache != nil {
		if data, err := json.Marshal(rec); err == nil {
			if err := s.Cache.Set(ctx, cacheKey, string(data), s.cacheTTL()); err != nil {
				logCacheError(&CacheError{Op: "set", Key: cacheKey, Err: err})
			}
		}
	}
	return rec, nil
}

// Delete removes the metadata record, invalidates the cache entry and then
// removes the blob. A failure after the record is gone returns a
// DeletionError at StageObject; a retry then reports ErrNotFound.
func (s *Service) Delete(ctx context.Context, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return ErrInvalidInput
	}

	if _, err := s.Repo.Get(ctx, key); err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		metrics.IncDeletionFailed(StageMetadata)
		return &DeletionError{Stage: StageMetadata, Key: key, Err: &MetadataError{Op: "get", Key: key, Err: err}}
	}

	if err := s.Repo.Delete(ctx, key); err != nil {
		if errors.Is(err, ErrNotFound) {
			// Lost a race with a concurrent delete.
			return ErrNotFound
		}
		metrics.IncDeletionFailed(StageMetadata)
		return &DeletionError{Stage: StageMetadata, Key: key, Err: &MetadataError{Op: "delete", Key: key, Err: err}}
	}

	// The record is gone; finish the remaining steps even if the caller goes away.
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()

	if s.Cache != nil {
		if err := s.Cache.Delete(cleanupCtx, s.cacheKey(key)); err != nil {
			logCacheError(&CacheError{Op: "delete", Key: s.cacheKey(key), Err: err})
		}
	}

	if err := s.Store.Delete(cleanupCtx, key); err != nil {
		if errors.Is(err, object.ErrNotFound) {
			telemetry.Warn("files.delete.object_missing", map[string]any{"key": key})
		} else {
			metrics.IncDeletionFailed(StageObject)
			metrics.IncOrphanedBlob()
			telemetry.Error("files.orphan", map[string]any{
				"key":   key,
				"stage": "delete." + StageObject,
				"ts":    s.now().Format(time.RFC3339Nano),
				"err":   err.Error(),
			})
			return &DeletionError{Stage: StageObject, Key: key, Err: &StoreError{Op: "delete", Key: key, Err: err}}
		}
	}

	metrics.IncDeletion()
	telemetry.Info("files.deleted", map[string]any{"key": key})
	return nil
}

func (s *Service) cacheKey(key string) string {
	prefix := s.CachePrefix
	if prefix == "" {
		prefix = defaultCachePrefix
	}
	return prefix + key
}

func (s *Service) cacheTTL() time.Duration {
	if s.CacheTTL <= 0 {
		return defaultCacheTTL
	}
	return s.CacheTTL
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func identityOrUnknown(v string) string {
	if v = strings.TrimSpace(v); v == "" {
		return UnknownIdentity
	}
	return v
}

func logCacheError(err *CacheError) {
	telemetry.Warn("files.cache.degraded", map[string]any{
		"op":  err.Op,
		"key": err.Key,
		"err": err.Err.Error(),
	})
}
