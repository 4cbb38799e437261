package files

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"sync"
	"time"

	"popkat/internal/shared/cache"
	"popkat/internal/shared/storage/object"
)

var errInjected = errors.New("injected failure")

// fakeStore is an in-memory ObjectStore with per-operation fault injection.
type fakeStore struct {
	mu        sync.Mutex
	blobs     map[string][]byte
	types     map[string]string
	putErr    error
	getErr    error
	deleteErr error
	deletes   int
}

func newFakeStore() *fakeStore {
	return &fakeStore{blobs: map[string][]byte{}, types: map[string]string{}}
}

func (f *fakeStore) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	if f.putErr != nil {
		return f.putErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blobs[key] = data
	f.types[key] = contentType
	return nil
}

func (f *fakeStore) Get(ctx context.Context, key string) (object.Object, error) {
	if f.getErr != nil {
		return object.Object{}, f.getErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.blobs[key]
	if !ok {
		return object.Object{}, object.ErrNotFound
	}
	return object.Object{
		Body:        io.NopCloser(bytes.NewReader(data)),
		ContentType: f.types[key],
		Size:        int64(len(data)),
	}, nil
}

func (f *fakeStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes++
	if f.deleteErr != nil {
		return f.deleteErr
	}
	if _, ok := f.blobs[key]; !ok {
		return object.ErrNotFound
	}
	delete(f.blobs, key)
	delete(f.types, key)
	return nil
}

func (f *fakeStore) List(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	keys := make([]string, 0, len(f.blobs))
	for k := range f.blobs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func (f *fakeStore) has(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.blobs[key]
	return ok
}

func (f *fakeStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.blobs)
}

// countingRepo wraps MemoryRepo with call counters and fault injection.
type countingRepo struct {
	*MemoryRepo
	mu        sync.Mutex
	gets      int
	createErr error
	getErr    error
	deleteErr error
}

func newCountingRepo() *countingRepo {
	return &countingRepo{MemoryRepo: NewMemoryRepo()}
}

func (r *countingRepo) Create(ctx context.Context, rec FileRecord) error {
	if r.createErr != nil {
		return r.createErr
	}
	return r.MemoryRepo.Create(ctx, rec)
}

func (r *countingRepo) Get(ctx context.Context, key string) (FileRecord, error) {
	r.mu.Lock()
	r.gets++
	r.mu.Unlock()
	if r.getErr != nil {
		return FileRecord{}, r.getErr
	}
	return r.MemoryRepo.Get(ctx, key)
}

func (r *countingRepo) Delete(ctx context.Context, key string) error {
	if r.deleteErr != nil {
		return r.deleteErr
	}
	return r.MemoryRepo.Delete(ctx, key)
}

func (r *countingRepo) getCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.gets
}

// failingCache fails every operation.
type failingCache struct{}

func (failingCache) Get(ctx context.Context, key string) (string, bool, error) {
	return "", false, errInjected
}

func (failingCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return errInjected
}

func (failingCache) Delete(ctx context.Context, key string) error {
	return errInjected
}

type testEnv struct {
	svc   *Service
	store *fakeStore
	repo  *countingRepo
	cache *cache.Memory
	now   *time.Time
}

func newTestEnv() *testEnv {
	now := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)
	env := &testEnv{
		store: newFakeStore(),
		repo:  newCountingRepo(),
		now:   &now,
	}
	clock := func() time.Time {
		*env.now = env.now.Add(time.Millisecond)
		return *env.now
	}
	env.cache = cache.NewMemory(func() time.Time { return *env.now })
	env.svc = &Service{
		Store:    env.store,
		Repo:     env.repo,
		Cache:    env.cache,
		Keys:     &KeyGenerator{Now: clock},
		CacheTTL: 4 * time.Second,
		Now:      clock,
	}
	return env
}

func (e *testEnv) advance(d time.Duration) {
	*e.now = e.now.Add(d)
}

func pngUpload(owner string) UploadInput {
	body := []byte("\x89PNG fake")
	return UploadInput{
		FileName:    "cat.png",
		ContentType: "image/png",
		Size:        int64(len(body)),
		OwnerID:     owner,
		Platform:    "web",
		Body:        bytes.NewReader(body),
	}
}
