package files

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

const pgUniqueViolation = "23505"

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

// Create inserts a new metadata row.
func (r *PGRepo) Create(ctx context.Context, rec FileRecord) error {
	const query = `
INSERT INTO metadata (
    key,
    owner_id,
    platform,
    content_type,
    size_bytes,
    created_at
) VALUES ($1, $2, $3, $4, $5, $6)`

	var size sql.NullInt64
	if rec.SizeBytes != nil {
		size = sql.NullInt64{Int64: *rec.SizeBytes, Valid: true}
	}

	_, err := r.DB.ExecContext(
		ctx,
		query,
		rec.Key,
		rec.OwnerID,
		rec.Platform,
		rec.ContentType,
		size,
		rec.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return ErrDuplicateKey
		}
		return err
	}
	return nil
}

// Get fetches the row for key.
func (r *PGRepo) Get(ctx context.Context, key string) (FileRecord, error) {
	const query = `
SELECT key, owner_id, platform, content_type, size_bytes, created_at
FROM metadata
WHERE key = $1`

	var rec FileRecord
	var size sql.NullInt64
	err := r.DB.QueryRowContext(ctx, query, key).Scan(
		&rec.Key,
		&rec.OwnerID,
		&rec.Platform,
		&rec.ContentType,
		&size,
		&rec.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return FileRecord{}, ErrNotFound
		}
		return FileRecord{}, err
	}
	if size.Valid {
		rec.SizeBytes = &size.Int64
	}
	rec.CreatedAt = rec.CreatedAt.UTC()
	return rec, nil
}

// Delete removes the row for key. Zero affected rows means a concurrent
// delete won, which is reported as ErrNotFound.
func (r *PGRepo) Delete(ctx context.Context, key string) error {
	const query = `DELETE FROM metadata WHERE key = $1`
	res, err := r.DB.ExecContext(ctx, query, key)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListKeys returns every key ordered lexically.
func (r *PGRepo) ListKeys(ctx context.Context) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT key FROM metadata ORDER BY key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

var _ Repo = (*PGRepo)(nil)
