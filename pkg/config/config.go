package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port        string
	DatabaseURL string
	AppEnv      string
	BaseURL     string
	LogLevel    string
	LogSinkURL  string

	// Admin dashboard login
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string
	JWTSecret          string
	DashboardURL       string
	AllowedEmails      []string

	// Lead pipeline
	CRMBaseURL      string
	CRMAPIKey       string
	CRMClientID     string
	CRMClientSecret string
	CRMTokenURL     string
	CRMTimeout      time.Duration
	IdempotencyTTL  time.Duration
	MaxBodyBytes    int64

	// Rate limiting
	RateLimitStore         string // "memory" or "database"
	LeadRateLimit          int
	LeadRateWindow         time.Duration
	UploadRateLimit        int
	UploadRateWindow       time.Duration
	RateLimitSweepInterval time.Duration
	TrustProxy             bool

	// Content
	DefaultAudience   string
	ShowDefaultNotice bool

	// Attachment uploads (S3 compatible)
	S3Bucket        string
	S3Region        string
	S3Endpoint      string
	S3AccessKey     string
	S3SecretKey     string
	UploadURLExpiry time.Duration
}

func Load() *Config {
	_ = godotenv.Load() // Ignore error if .env not found (e.g. prod)

	return &Config{
		Port:        getEnv("PORT", "8080"),
		DatabaseURL: getEnv("DATABASE_URL", "file:db.sqlite"),
		AppEnv:      getEnv("APP_ENV", "local"),
		BaseURL:     getEnv("BASE_URL", "http://localhost:8080"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		LogSinkURL:  getEnv("LOG_SINK_URL", ""),

		GoogleClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
		GoogleRedirectURL:  getEnv("GOOGLE_REDIRECT_URL", "http://localhost:8080/auth/google/callback"),
		JWTSecret:          getEnv("JWT_SECRET", "secret"),
		DashboardURL:       getEnv("DASHBOARD_URL", "http://localhost:8080/api/v1/dashboard"),
		AllowedEmails:      getList("ALLOWED_EMAILS"),

		CRMBaseURL:      getEnv("CRM_BASE_URL", ""),
		CRMAPIKey:       getEnv("CRM_API_KEY", ""),
		CRMClientID:     getEnv("CRM_CLIENT_ID", ""),
		CRMClientSecret: getEnv("CRM_CLIENT_SECRET", ""),
		CRMTokenURL:     getEnv("CRM_TOKEN_URL", ""),
		CRMTimeout:      getDuration("CRM_TIMEOUT", 10*time.Second),
		IdempotencyTTL:  getDuration("IDEMPOTENCY_TTL", 24*time.Hour),
		MaxBodyBytes:    int64(getInt("MAX_BODY_BYTES", 64*1024)),

		RateLimitStore:         getEnv("RATE_LIMIT_STORE", "memory"),
		LeadRateLimit:          getInt("LEAD_RATE_LIMIT", 5),
		LeadRateWindow:         getDuration("LEAD_RATE_WINDOW", 15*time.Minute),
		UploadRateLimit:        getInt("UPLOAD_RATE_LIMIT", 20),
		UploadRateWindow:       getDuration("UPLOAD_RATE_WINDOW", time.Hour),
		RateLimitSweepInterval: getDuration("RATE_LIMIT_SWEEP_INTERVAL", time.Minute),
		TrustProxy:             getBool("TRUST_PROXY", false),

		DefaultAudience:   getEnv("DEFAULT_AUDIENCE", "startup"),
		ShowDefaultNotice: getBool("SHOW_DEFAULT_NOTICE", true),

		S3Bucket:        getEnv("S3_BUCKET", ""),
		S3Region:        getEnv("S3_REGION", "us-east-1"),
		S3Endpoint:      getEnv("S3_ENDPOINT", ""),
		S3AccessKey:     getEnv("S3_ACCESS_KEY", ""),
		S3SecretKey:     getEnv("S3_SECRET_KEY", ""),
		UploadURLExpiry: getDuration("UPLOAD_URL_EXPIRY", 15*time.Minute),
	}
}

// IsProduction reports whether verbose internal diagnostics must stay out of the logs.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			return b
		}
	}
	return fallback
}

// getDuration accepts Go duration strings ("15m") or plain seconds ("900").
func getDuration(key string, fallback time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	v = strings.TrimSpace(v)
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	return fallback
}

func getList(key string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil
	}
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
