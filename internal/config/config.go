// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes application settings
// such as server timeouts, logging, quota and paging limits, provider
// endpoints, and observability.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// ProvidersConfig defines the endpoints of the external collaborators.
type ProvidersConfig struct {
	SearchBaseURL string // SEARCH_BASE_URL (REST index root)
	SearchAPIKey  string // SEARCH_API_KEY (optional bearer token)
	AuthDeviceURL string // AUTH_DEVICE_URL (device authorization endpoint)
	AuthTokenURL  string // AUTH_TOKEN_URL (token polling endpoint)
	AuthClientID  string // AUTH_CLIENT_ID
	ManifestURL   string // MANIFEST_URL (http(s) URL or local path)
}

// QuotaConfig defines per-user query quota settings.
type QuotaConfig struct {
	DailyLimit int           // QUOTA_DAILY_LIMIT (provider calls per window)
	Window     time.Duration // QUOTA_WINDOW (rolling window length)
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "studentdb-bot")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging
	LogLevel    string // debug|info|warn|error|fatal|panic
	LogPretty   bool   // pretty console logs in dev
	APIBasePath string // base path for webhook routes

	// App
	DBPath        string        // SQLite snapshot path
	PageSize      int           // list items per page
	PhotoPageSize int           // photo URLs per reply
	OCInlineLimit int           // max inline callback data bytes
	CacheMax      int           // result-cache bound (0 = unbounded)
	DedupTTL      time.Duration // webhook update dedup window

	// Quota
	Quota QuotaConfig

	// Rate limiting
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Providers
	Providers ProvidersConfig

	// Observability
	OTEL OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		// Server
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging
		LogLevel:    strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:   getbool("LOG_PRETTY", false),
		APIBasePath: normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),

		// App
		DBPath:        getenv("DB_PATH", "bot.db"),
		PageSize:      getint("PAGE_SIZE", 9),
		PhotoPageSize: getint("PHOTO_PAGE_SIZE", 12),
		OCInlineLimit: getint("OC_INLINE_LIMIT", 64),
		CacheMax:      getint("CACHE_MAX_ENTRIES", 0),
		DedupTTL:      getdur("DEDUP_TTL", 10*time.Minute),

		// Quota
		Quota: QuotaConfig{
			DailyLimit: getint("QUOTA_DAILY_LIMIT", 30),
			Window:     getdur("QUOTA_WINDOW", 24*time.Hour),
		},

		// Rate limiting
		RateRPS:   getfloat("RATE_RPS", 5.0),
		RateBurst: getint("RATE_BURST", 10),

		// Providers
		Providers: ProvidersConfig{
			SearchBaseURL: getenv("SEARCH_BASE_URL", "http://localhost:9200"),
			SearchAPIKey:  getenv("SEARCH_API_KEY", ""),
			AuthDeviceURL: getenv("AUTH_DEVICE_URL", ""),
			AuthTokenURL:  getenv("AUTH_TOKEN_URL", ""),
			AuthClientID:  getenv("AUTH_CLIENT_ID", ""),
			ManifestURL:   getenv("MANIFEST_URL", "manifest.json"),
		},

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "studentdb-bot"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		return cfg, errors.New("DB_PATH must not be empty")
	}
	if cfg.PageSize < 1 {
		return cfg, errors.New("PAGE_SIZE must be >= 1")
	}
	if cfg.PhotoPageSize < 1 {
		return cfg, errors.New("PHOTO_PAGE_SIZE must be >= 1")
	}
	if cfg.OCInlineLimit < 0 {
		return cfg, errors.New("OC_INLINE_LIMIT must be >= 0")
	}
	if cfg.CacheMax < 0 {
		return cfg, errors.New("CACHE_MAX_ENTRIES must be >= 0")
	}
	if cfg.DedupTTL <= 0 {
		return cfg, errors.New("DEDUP_TTL must be > 0")
	}
	if cfg.Quota.DailyLimit < 1 {
		return cfg, errors.New("QUOTA_DAILY_LIMIT must be >= 1")
	}
	if cfg.Quota.Window <= 0 {
		return cfg, errors.New("QUOTA_WINDOW must be > 0")
	}
	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	if strings.TrimSpace(cfg.Providers.SearchBaseURL) == "" {
		return cfg, errors.New("SEARCH_BASE_URL must not be empty")
	}
	if strings.TrimSpace(cfg.Providers.ManifestURL) == "" {
		return cfg, errors.New("MANIFEST_URL must not be empty")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// ---- helpers (no external deps) ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}
