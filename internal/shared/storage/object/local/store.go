package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"popkat/internal/shared/storage/object"
)

// Content types are kept in a hidden ".<key>.type" file next to each blob.
const typeSuffix = ".type"

// Store implements ObjectStore using the local filesystem.
type Store struct {
	baseDir string
}

// New creates a new local object store rooted at baseDir.
func New(baseDir string) (*Store, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir: %w", err)
	}
	return &Store{baseDir: baseDir}, nil
}

// Put writes r to a temp file and renames it into place so readers never see partial blobs.
func (s *Store) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	fullPath, err := s.path(key)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.baseDir, ".upload-*")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	defer os.Remove(tmp.Name())

	written, err := io.Copy(tmp, r)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("write body: %w", err)
	}
	if size >= 0 && written != size {
		return fmt.Errorf("short write: got %d bytes, declared %d", written, size)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	// The type file lands first so a visible blob always has its declared type.
	if contentType = strings.TrimSpace(contentType); contentType != "" {
		if err := s.writeType(key, contentType); err != nil {
			return err
		}
	} else if err := os.Remove(s.typePath(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove stale type: %w", err)
	}

	if err := os.Rename(tmp.Name(), fullPath); err != nil {
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}

func (s *Store) writeType(key, contentType string) error {
	tmp, err := os.CreateTemp(s.baseDir, ".type-*")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	defer os.Remove(tmp.Name())

	_, err = tmp.WriteString(contentType)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("write type: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.typePath(key)); err != nil {
		return fmt.Errorf("rename type: %w", err)
	}
	return nil
}

// readType returns the declared content type, falling back to the key extension.
func (s *Store) readType(key string) string {
	if raw, err := os.ReadFile(s.typePath(key)); err == nil {
		if ct := strings.TrimSpace(string(raw)); ct != "" {
			return ct
		}
	}
	if ct := mime.TypeByExtension(filepath.Ext(key)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// typePath assumes key already passed path validation.
func (s *Store) typePath(key string) string {
	return filepath.Join(s.baseDir, "."+key+typeSuffix)
}

// Get opens a stored object for reading with the content type given to Put.
func (s *Store) Get(ctx context.Context, key string) (object.Object, error) {
	if err := ctx.Err(); err != nil {
		return object.Object{}, err
	}

	fullPath, err := s.path(key)
	if err != nil {
		return object.Object{}, err
	}
	f, err := os.Open(fullPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return object.Object{}, object.ErrNotFound
		}
		return object.Object{}, err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return object.Object{}, err
	}

	return object.Object{Body: f, ContentType: s.readType(key), Size: info.Size()}, nil
}

// Delete removes the object file.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	fullPath, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(fullPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return object.ErrNotFound
		}
		return err
	}
	if err := os.Remove(s.typePath(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove type: %w", err)
	}
	return nil
}

// List returns every stored key in lexical order.
func (s *Store) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(entries))
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		keys = append(keys, e.Name())
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *Store) path(key string) (string, error) {
	clean := filepath.Clean(key)
	if key == "" || clean != key || strings.ContainsAny(key, `/\`) || strings.HasPrefix(clean, ".") {
		return "", fmt.Errorf("invalid storage key %q", key)
	}
	return filepath.Join(s.baseDir, clean), nil
}

var _ object.ObjectStore = (*Store)(nil)
