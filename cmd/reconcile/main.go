package main

// Report (and optionally remove) blobs that have no metadata record:
//   go run ./cmd/reconcile          # dry run
//   go run ./cmd/reconcile -apply   # delete orphaned blobs
//
// Requires a reachable DATABASE_URL; there is no in-memory fallback here.

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"popkat/internal/bootstrap"
	"popkat/internal/files"
	"popkat/internal/shared/config"
)

func main() {
	apply := flag.Bool("apply", false, "delete orphaned blobs instead of only reporting them")
	minAge := flag.Duration("min-age", files.DefaultOrphanMinAge, "only delete orphans whose key is older than this")
	flag.Parse()

	app, err := bootstrap.BuildStrict(config.Load())
	if err != nil {
		log.Fatalf("bootstrap build: %v", err)
	}
	app.Reconciler.MinAge = *minAge

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	runErr := run(ctx, app.Reconciler, *apply, os.Stdout)
	stop()

	if err := app.Close(); err != nil {
		log.Printf("close: %v", err)
	}
	if runErr != nil {
		log.Printf("reconcile: %v", runErr)
		os.Exit(1)
	}
}

func run(ctx context.Context, r *files.Reconciler, apply bool, out io.Writer) error {
	report, err := r.Reconcile(ctx, apply)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}
