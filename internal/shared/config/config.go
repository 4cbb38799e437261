package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultCacheTTL       = 4 * time.Second
	defaultMaxUploadBytes = 100 << 20
)

// Config holds application configuration.
type Config struct {
	Port            string
	Env             string
	CORSAllowOrigin []string

	ObjectStoreType  string
	LocalStoreDir    string
	S3Endpoint       string
	S3Region         string
	S3AccessKey      string
	S3SecretKey      string
	S3Bucket         string
	S3Prefix         string
	S3ACL            string
	S3ForcePathStyle bool
	S3UseSSL         bool

	DatabaseURL string

	RedisURI    string
	CacheTTL    time.Duration
	CachePrefix string

	AdminToken      string
	MaxUploadBytes  int64
	UploadRate      float64
	UploadRateBurst int
}

// Load reads configuration from environment variables with sensible defaults.
func Load() Config {
	// Best-effort load of local env files for dev convenience.
	loadEnvFiles(".env", "cmd/.env")

	env := normalizeEnv(getEnv("ENV", "dev"))
	dbURL := os.Getenv("DATABASE_URL")

	if env == "production" && dbURL == "" {
		log.Printf("DATABASE_URL is required in production")
	}

	return Config{
		Port:             getEnv("PORT", "8080"),
		Env:              env,
		CORSAllowOrigin:  splitAndTrim(getEnv("CORS_ALLOW_ORIGINS", "http://localhost:5173")),
		ObjectStoreType:  normalizeStoreType(getEnv("OBJECT_STORE", "local")),
		LocalStoreDir:    getEnv("LOCAL_STORE_DIR", "./data"),
		S3Endpoint:       getEnv("S3_ENDPOINT", ""),
		S3Region:         getEnv("S3_REGION", "us-east-1"),
		S3AccessKey:      getEnv("S3_KEY", ""),
		S3SecretKey:      getEnv("S3_SECRET", ""),
		S3Bucket:         getEnv("S3_BUCKET", "popkat"),
		S3Prefix:         getEnv("S3_PREFIX", ""),
		S3ACL:            getEnv("S3_ACL", ""),
		S3ForcePathStyle: getEnvBool("S3_FORCE_PATH_STYLE", true),
		S3UseSSL:         getEnvBool("S3_USE_SSL", true),
		DatabaseURL:      dbURL,
		RedisURI:         getEnv("REDIS_URI", ""),
		CacheTTL:         getEnvDuration("CACHE_TTL", defaultCacheTTL),
		CachePrefix:      getEnv("CACHE_PREFIX", "meta:"),
		AdminToken:       getEnv("ADMIN_TOKEN", ""),
		MaxUploadBytes:   getEnvInt64("MAX_UPLOAD_BYTES", defaultMaxUploadBytes),
		UploadRate:       getEnvFloat("UPLOAD_RATE_PER_SEC", 2),
		UploadRateBurst:  int(getEnvInt64("UPLOAD_RATE_BURST", 10)),
	}
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := strconv.ParseBool(raw)
	if err != nil {
		log.Printf("config: %s invalid bool %q, using %t", key, raw, def)
		return def
	}
	return val
}

func getEnvInt64(key string, def int64) int64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		log.Printf("config: %s invalid int %q, using %d", key, raw, def)
		return def
	}
	return val
}

func getEnvFloat(key string, def float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		log.Printf("config: %s invalid float %q, using %g", key, raw, def)
		return def
	}
	return val
}

// getEnvDuration accepts Go durations ("4s") or a bare number of seconds ("4").
func getEnvDuration(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second
	}
	val, err := time.ParseDuration(raw)
	if err != nil || val <= 0 {
		log.Printf("config: %s invalid duration %q, using %s", key, raw, def)
		return def
	}
	return val
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	var out []string
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func normalizeEnv(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "production", "prod":
		return "production"
	case "staging":
		return "staging"
	case "local":
		return "local"
	case "development", "dev":
		return "dev"
	default:
		return "dev"
	}
}

func normalizeStoreType(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "s3":
		return "s3"
	case "minio":
		return "minio"
	default:
		return "local"
	}
}
