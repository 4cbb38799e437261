package files

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"popkat/internal/shared/storage/object"
	"popkat/internal/shared/telemetry"
)

// DefaultOrphanMinAge is how old an orphaned blob must be before Reconcile removes it.
const DefaultOrphanMinAge = 10 * time.Minute

// ErrEphemeralRepo is returned when Reconcile would delete blobs based on a
// metadata repo that does not outlive the process.
var ErrEphemeralRepo = errors.New("refusing to delete blobs against an in-memory metadata repo")

// Report lists keys present in only one of the two backends.
type Report struct {
	OrphanedBlobs  []string `json:"orphanedBlobs"`  // object exists, no metadata record
	MissingObjects []string `json:"missingObjects"` // metadata record exists, no object
	Removed        []string `json:"removed"`        // orphaned blobs deleted by Reconcile
	Skipped        []string `json:"skipped"`        // orphans kept: too young or of unknown age
}

// Reconciler compares object-store listings against metadata keys. It is
// meant for offline use; it is not part of any request path.
//
// An orphan is only removed once its key timestamp is older than MinAge,
// which covers uploads whose blob is written but whose record is not yet.
type Reconciler struct {
	Store  object.ObjectStore
	Repo   Repo
	MinAge time.Duration
	Now    func() time.Time

	// AllowEphemeral permits deletions against an in-memory repo. Tests only.
	AllowEphemeral bool
}

// Scan lists both backends concurrently and returns the differences.
func (r *Reconciler) Scan(ctx context.Context) (Report, error) {
	var objectKeys, recordKeys []string

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		keys, err := r.Store.List(gctx)
		if err != nil {
			return fmt.Errorf("list objects: %w", err)
		}
		objectKeys = keys
		return nil
	})
	g.Go(func() error {
		keys, err := r.Repo.ListKeys(gctx)
		if err != nil {
			return fmt.Errorf("list metadata keys: %w", err)
		}
		recordKeys = keys
		return nil
	})
	if err := g.Wait(); err != nil {
		return Report{}, err
	}

	return Report{
		OrphanedBlobs:  difference(objectKeys, recordKeys),
		MissingObjects: difference(recordKeys, objectKeys),
	}, nil
}

// Reconcile scans and, when apply is set, deletes orphaned blobs older than
// MinAge. Each blob is re-checked against the repo right before deletion so
// uploads that finished after the scan are kept. Applying against an
// ephemeral repo fails with ErrEphemeralRepo.
func (r *Reconciler) Reconcile(ctx context.Context, apply bool) (Report, error) {
	if apply && !r.AllowEphemeral && isEphemeral(r.Repo) {
		return Report{}, ErrEphemeralRepo
	}

	report, err := r.Scan(ctx)
	if err != nil || !apply {
		return report, err
	}

	cutoff := r.now().Add(-r.minAge())
	for _, key := range report.OrphanedBlobs {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if at, ok := KeyTime(key); !ok || at.After(cutoff) {
			report.Skipped = append(report.Skipped, key)
			continue
		}
		_, err := r.Repo.Get(ctx, key)
		if err == nil {
			continue
		}
		if !errors.Is(err, ErrNotFound) {
			return report, fmt.Errorf("recheck %s: %w", key, err)
		}
		if err := r.Store.Delete(ctx, key); err != nil && !errors.Is(err, object.ErrNotFound) {
			telemetry.Error("reconcile.delete.failed", map[string]any{"key": key, "err": err.Error()})
			continue
		}
		report.Removed = append(report.Removed, key)
		telemetry.Info("reconcile.removed", map[string]any{"key": key})
	}
	return report, nil
}

func (r *Reconciler) minAge() time.Duration {
	if r.MinAge <= 0 {
		return DefaultOrphanMinAge
	}
	return r.MinAge
}

func (r *Reconciler) now() time.Time {
	if r.Now != nil {
		return r.Now().UTC()
	}
	return time.Now().UTC()
}

func isEphemeral(repo Repo) bool {
	e, ok := repo.(interface{ Ephemeral() bool })
	return ok && e.Ephemeral()
}

// difference returns the sorted keys in a that are not in b.
func difference(a, b []string) []string {
	seen := make(map[string]struct{}, len(b))
	for _, k := range b {
		seen[k] = struct{}{}
	}
	var out []string
	for _, k := range a {
		if _, ok := seen[k]; !ok {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}
