package files

import "context"

// Repo defines persistence operations for file metadata. Lookups are exact
// matches on key. Get and Delete return ErrNotFound for absent keys and
// Create returns ErrDuplicateKey when the key is taken.
type Repo interface {
	Create(ctx context.Context, rec FileRecord) error
	Get(ctx context.Context, key string) (FileRecord, error)
	Delete(ctx context.Context, key string) error
	ListKeys(ctx context.Context) ([]string, error)
}
