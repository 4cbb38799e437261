package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"popkat/internal/shared/config"
	"popkat/internal/shared/metrics"
	"popkat/internal/shared/server/middleware"
	"popkat/internal/shared/server/respond"
)

const (
	uploadRateGroup = "UPLOAD"
	healthTimeout   = 2 * time.Second
)

// RouteRegistrar is implemented by domain handlers.
type RouteRegistrar interface {
	RegisterRoutes(rg gin.IRoutes, deleteGuard gin.HandlerFunc)
}

// HealthCheck reports whether a backend is reachable.
type HealthCheck func(ctx context.Context) error

// RouterDeps carries the handlers and health checks the router needs.
type RouterDeps struct {
	Config       config.Config
	FilesHandler RouteRegistrar
	HealthChecks map[string]HealthCheck
	Limiter      *middleware.RateLimiter
}

// NewRouter constructs the Gin engine with middleware and routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	if deps.Config.Env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()

	r.Use(
		middleware.RequestID(),
		middleware.Logging(),
		middleware.Recovery(),
		middleware.CORS(deps.Config.CORSAllowOrigin),
		middleware.RateLimit(middleware.RateLimitConfig{
			Limiter: deps.Limiter,
			GroupFor: func(c *gin.Context) string {
				if c.Request.Method == http.MethodPost && c.FullPath() == "/upload" {
					return uploadRateGroup
				}
				return ""
			},
			Rules: map[string]middleware.RateLimitRule{
				uploadRateGroup: {Rate: deps.Config.UploadRate, Burst: deps.Config.UploadRateBurst},
			},
		}),
	)

	r.GET("/health", healthHandler(deps.HealthChecks))
	r.GET("/metrics", metrics.Handler())

	if deps.FilesHandler != nil {
		deps.FilesHandler.RegisterRoutes(r, middleware.AdminToken(deps.Config.AdminToken))
	}

	return r
}

func healthHandler(checks map[string]HealthCheck) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
		defer cancel()

		status := gin.H{}
		healthy := true
		for name, check := range checks {
			if err := check(ctx); err != nil {
				healthy = false
				status[name] = err.Error()
				continue
			}
			status[name] = "ok"
		}

		if !healthy {
			respond.Error(c, http.StatusServiceUnavailable, "unhealthy", "dependency check failed", status)
			return
		}
		respond.JSON(c, http.StatusOK, gin.H{"ok": true, "checks": status})
	}
}

// Addr normalizes the listen address.
func Addr(port string) string {
	if port == "" {
		return ":8080"
	}
	if port[0] == ':' {
		return port
	}
	return ":" + port
}
