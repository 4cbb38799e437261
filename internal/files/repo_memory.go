package files

import (
	"context"
	"sort"
	"sync"
)

// MemoryRepo is an in-memory implementation of Repo.
type MemoryRepo struct {
	mu   sync.RWMutex
	data map[string]FileRecord
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		data: make(map[string]FileRecord),
	}
}

// Ephemeral reports that records do not outlive the process.
func (r *MemoryRepo) Ephemeral() bool { return true }

// Create stores rec unless its key is already present.
func (r *MemoryRepo) Create(ctx context.Context, rec FileRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.data[rec.Key]; ok {
		return ErrDuplicateKey
	}
	r.data[rec.Key] = cloneRecord(rec)
	return nil
}

// Get returns the record for key.
func (r *MemoryRepo) Get(ctx context.Context, key string) (FileRecord, error) {
	if err := ctx.Err(); err != nil {
		return FileRecord{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.data[key]
	if !ok {
		return FileRecord{}, ErrNotFound
	}
	return cloneRecord(rec), nil
}

// Delete removes the record for key.
func (r *MemoryRepo) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.data[key]; !ok {
		return ErrNotFound
	}
	delete(r.data, key)
	return nil
}

// ListKeys returns all keys in lexical order.
func (r *MemoryRepo) ListKeys(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	keys := make([]string, 0, len(r.data))
	for k := range r.data {
		keys = append(keys, k)
	}
	r.mu.RUnlock()
	sort.Strings(keys)
	return keys, nil
}

func cloneRecord(rec FileRecord) FileRecord {
	if rec.SizeBytes != nil {
		size := *rec.SizeBytes
		rec.SizeBytes = &size
	}
	return rec
}

var _ Repo = (*MemoryRepo)(nil)
