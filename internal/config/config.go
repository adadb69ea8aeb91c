package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// App holds the runtime configuration loaded from environment variables.
type App struct {
	Env             string
	HTTPPort        string
	WorkerPort      string
	StoreDriver     string
	DatabaseURL     string
	MigrateOnStart  bool
	RedisAddr       string
	QueueBackend    string
	JWTIssuer       string
	JWTSigningKey   string
	AccessTTL       time.Duration
	RefreshTTL      time.Duration
	FaceServiceURL  string
	FaceSkip        bool
	ModelsDir       string
	MatchThreshold  float64
	EnrollTTL       time.Duration
	RateLimitPerMin int
	StatsCacheTTL   time.Duration
	CloudinaryURL   string
	FrameMaxWidth   uint
	FrameMaxHeight  uint
	LogLevel        string
	CORSOrigins     []string
}

// Load reads an optional .env file, then the environment, and validates the
// result.
func Load() (App, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg := App{
		Env:             getEnv("APP_ENV", "dev"),
		HTTPPort:        getEnv("HTTP_PORT", "8081"),
		WorkerPort:      getEnv("WORKER_METRICS_PORT", "9101"),
		StoreDriver:     getEnv("STORE_DRIVER", "postgres"),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		MigrateOnStart:  boolEnv("MIGRATE_ON_START", true),
		RedisAddr:       getEnv("REDIS_ADDR", "localhost:6379"),
		QueueBackend:    getEnv("QUEUE_BACKEND", "redis"),
		JWTIssuer:       getEnv("JWT_ISSUER", "faceattend"),
		JWTSigningKey:   getEnv("JWT_SIGNING_KEY", "dev-signing-secret-change"),
		AccessTTL:       durationEnv("ACCESS_TTL", 15*time.Minute),
		RefreshTTL:      durationEnv("REFRESH_TTL", 24*time.Hour),
		FaceServiceURL:  getEnv("FACE_SERVICE_URL", "http://localhost:8000"),
		FaceSkip:        boolEnv("FACE_SKIP", false),
		ModelsDir:       getEnv("FACE_MODELS_DIR", "models"),
		MatchThreshold:  floatEnv("MATCH_THRESHOLD", 0.6),
		EnrollTTL:       durationEnv("ENROLL_SESSION_TTL", 10*time.Minute),
		RateLimitPerMin: intEnv("RATE_LIMIT_PER_MIN", 120),
		StatsCacheTTL:   durationEnv("STATS_CACHE_TTL", 30*time.Second),
		CloudinaryURL:   os.Getenv("CLOUDINARY_URL"),
		FrameMaxWidth:   uint(intEnv("FRAME_MAX_WIDTH", 640)),
		FrameMaxHeight:  uint(intEnv("FRAME_MAX_HEIGHT", 480)),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		CORSOrigins:     listEnv("CORS_ORIGINS"),
	}
	return cfg, cfg.Validate()
}

// Validate reports the first unusable setting.
func (a App) Validate() error {
	if a.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required")
	}
	switch a.StoreDriver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("STORE_DRIVER must be postgres or sqlite, got %q", a.StoreDriver)
	}
	switch a.QueueBackend {
	case "redis", "memory":
	default:
		return fmt.Errorf("QUEUE_BACKEND must be redis or memory, got %q", a.QueueBackend)
	}
	if a.MatchThreshold <= 0 || a.MatchThreshold >= 1 {
		return fmt.Errorf("MATCH_THRESHOLD must be in (0, 1), got %v", a.MatchThreshold)
	}
	if a.Production() && a.JWTSigningKey == "dev-signing-secret-change" {
		return errors.New("JWT_SIGNING_KEY must be set in production")
	}
	return nil
}

// Production reports whether APP_ENV names a production deployment.
func (a App) Production() bool {
	return a.Env == "production" || a.Env == "prod"
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func durationEnv(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		d, err := time.ParseDuration(val)
		if err != nil {
			slog.Warn("invalid duration, using fallback", slog.String("key", key), slog.Duration("fallback", fallback))
			return fallback
		}
		return d
	}
	return fallback
}

func boolEnv(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
		slog.Warn("invalid bool, using fallback", slog.String("key", key), slog.Bool("fallback", fallback))
	}
	return fallback
}

func intEnv(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
		slog.Warn("invalid int, using fallback", slog.String("key", key), slog.Int("fallback", fallback))
	}
	return fallback
}

func listEnv(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func floatEnv(key string, fallback float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
		slog.Warn("invalid float, using fallback", slog.String("key", key), slog.Float64("fallback", fallback))
	}
	return fallback
}
