package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"popkat/internal/files"
	"popkat/internal/shared/cache"
	"popkat/internal/shared/config"
	"popkat/internal/shared/server"
	"popkat/internal/shared/server/middleware"
	"popkat/internal/shared/storage/db"
	"popkat/internal/shared/storage/object"
	localstore "popkat/internal/shared/storage/object/local"
	miniostore "popkat/internal/shared/storage/object/minio"
	s3store "popkat/internal/shared/storage/object/s3"
	"popkat/internal/shared/telemetry"
)

const connectTimeout = 10 * time.Second

// App holds process-wide dependencies. Every client is built once here and
// injected into the service; nothing is reached through package globals.
type App struct {
	Config       config.Config
	Router       *gin.Engine
	DB           *sql.DB
	Store        object.ObjectStore
	Repo         files.Repo
	Cache        cache.Cache
	FilesService *files.Service
	FilesHandler *files.Handler
	Reconciler   *files.Reconciler

	closers []func() error
}

// Build wires storage, metadata, cache and HTTP routes from cfg. In dev it
// falls back to in-memory metadata when no database is reachable.
func Build(cfg config.Config) (*App, error) {
	return build(cfg, false)
}

// BuildStrict is Build without the in-memory metadata fallback. Tools that
// delete blobs based on metadata must use it.
func BuildStrict(cfg config.Config) (*App, error) {
	return build(cfg, true)
}

func build(cfg config.Config, strict bool) (*App, error) {
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = "dev"
	}
	if strings.TrimSpace(cfg.ObjectStoreType) == "" {
		cfg.ObjectStoreType = "local"
	}
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	app := &App{Config: cfg}

	sqlDB, err := buildDB(ctx, cfg, !strict && isDevLike(cfg.Env))
	if err != nil {
		return nil, err
	}
	if sqlDB != nil {
		app.DB = sqlDB
		app.closers = append(app.closers, sqlDB.Close)
	}

	store, err := buildStore(ctx, cfg)
	if err != nil {
		_ = app.Close()
		return nil, err
	}
	app.Store = store

	metaCache, err := buildCache(ctx, cfg)
	if err != nil {
		_ = app.Close()
		return nil, err
	}
	app.Cache = metaCache
	if closer, ok := metaCache.(interface{ Close() error }); ok {
		app.closers = append(app.closers, closer.Close)
	}

	if app.DB != nil {
		app.Repo = &files.PGRepo{DB: app.DB}
	} else {
		app.Repo = files.NewMemoryRepo()
	}

	app.FilesService = &files.Service{
		Store:       app.Store,
		Repo:        app.Repo,
		Cache:       app.Cache,
		Keys:        &files.KeyGenerator{},
		CacheTTL:    cfg.CacheTTL,
		CachePrefix: cfg.CachePrefix,
	}
	app.FilesHandler = files.NewHandler(app.FilesService, cfg.MaxUploadBytes)
	app.Reconciler = &files.Reconciler{Store: app.Store, Repo: app.Repo}

	app.Router = server.NewRouter(server.RouterDeps{
		Config:       cfg,
		FilesHandler: app.FilesHandler,
		HealthChecks: app.healthChecks(),
		Limiter:      middleware.NewRateLimiter(nil),
	})

	return app, nil
}

// Close releases the database pool and cache connections.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *App) healthChecks() map[string]server.HealthCheck {
	checks := map[string]server.HealthCheck{}
	if a.DB != nil {
		checks["database"] = a.DB.PingContext
	}
	if pinger, ok := a.Cache.(interface{ Ping(context.Context) error }); ok {
		checks["cache"] = pinger.Ping
	}
	return checks
}

func buildDB(ctx context.Context, cfg config.Config, allowMemory bool) (*sql.DB, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		if allowMemory {
			telemetry.Warn("bootstrap.db.memory", map[string]any{"reason": "DATABASE_URL empty"})
			return nil, nil
		}
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	sqlDB, err := db.Connect(ctx, cfg.DatabaseURL, db.OptionsFromEnv(db.DefaultServerOptions()))
	if err == nil {
		err = db.RunMigrations(ctx, sqlDB)
		if err != nil {
			_ = sqlDB.Close()
		}
	}
	if err != nil {
		if allowMemory {
			telemetry.Warn("bootstrap.db.memory", map[string]any{"reason": err.Error()})
			return nil, nil
		}
		return nil, err
	}
	return sqlDB, nil
}

func buildStore(ctx context.Context, cfg config.Config) (object.ObjectStore, error) {
	switch cfg.ObjectStoreType {
	case "s3":
		return s3store.New(ctx, s3store.Config{
			Endpoint:       cfg.S3Endpoint,
			Region:         cfg.S3Region,
			AccessKey:      cfg.S3AccessKey,
			SecretKey:      cfg.S3SecretKey,
			Bucket:         cfg.S3Bucket,
			Prefix:         cfg.S3Prefix,
			ACL:            cfg.S3ACL,
			ForcePathStyle: cfg.S3ForcePathStyle,
		})
	case "minio":
		return miniostore.New(ctx, miniostore.Config{
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			ACL:       cfg.S3ACL,
			UseSSL:    cfg.S3UseSSL,
		})
	default:
		return localstore.New(cfg.LocalStoreDir)
	}
}

func buildCache(ctx context.Context, cfg config.Config) (cache.Cache, error) {
	if strings.TrimSpace(cfg.RedisURI) == "" {
		return cache.NewMemory(nil), nil
	}
	c, err := cache.NewRedis(ctx, cfg.RedisURI)
	if err != nil {
		if isDevLike(cfg.Env) {
			telemetry.Warn("bootstrap.cache.memory", map[string]any{"reason": err.Error()})
			return cache.NewMemory(nil), nil
		}
		return nil, err
	}
	return c, nil
}

func isDevLike(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "dev", "local":
		return true
	default:
		return false
	}
}
