// Command bot runs the student-records chat-bot backend: the webhook HTTP
// server, the memoizing result store with its SQLite snapshot, and the
// clients for the search index and the device-flow authorizer.
package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/scoredb/studentdb-bot/internal/config"
	"github.com/scoredb/studentdb-bot/internal/domain"
	httpapi "github.com/scoredb/studentdb-bot/internal/http"
	"github.com/scoredb/studentdb-bot/internal/match"
	"github.com/scoredb/studentdb-bot/internal/observability"
	"github.com/scoredb/studentdb-bot/internal/providers"
	"github.com/scoredb/studentdb-bot/internal/repo"
	"github.com/scoredb/studentdb-bot/internal/store"
	"github.com/scoredb/studentdb-bot/internal/sysutil"
)

// version is stamped at build time via -ldflags.
var version = "dev"

// snapshotPersister adapts the repository free functions to the
// store.Persister interface. This keeps the store decoupled from the
// concrete repo package while reusing existing functions.
type snapshotPersister struct {
	db *gorm.DB
}

func (p snapshotPersister) SaveCacheEntry(ctx context.Context, kind store.CacheKind, key string, e store.CacheEntry) error {
	return repo.SaveCacheEntry(ctx, p.db, kind, key, e)
}

func (p snapshotPersister) DeleteCacheEntry(ctx context.Context, kind store.CacheKind, key string) error {
	return repo.DeleteCacheEntry(ctx, p.db, kind, key)
}

func (p snapshotPersister) SaveQuota(ctx context.Context, userID string, q domain.QuotaState) error {
	return repo.SaveQuota(ctx, p.db, userID, q)
}

func (p snapshotPersister) SaveAuth(ctx context.Context, userID string, a domain.AuthState) error {
	return repo.SaveAuth(ctx, p.db, userID, a)
}

func (p snapshotPersister) SaveObject(ctx context.Context, token string, value json.RawMessage) error {
	return repo.SaveObject(ctx, p.db, token, value)
}

func main() {
	// Load .env if present; real deployments use the environment directly.
	_ = godotenv.Load()

	cfg := config.MustLoad()
	version = sysutil.FirstNonEmpty(os.Getenv("BOT_VERSION"), version)

	sysutil.SetLogLevel(cfg.LogLevel)
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	gin.SetMode(cfg.GinMode)

	ctx := context.Background()

	shutdownOTel, err := observability.Setup(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup failed")
	}

	// Snapshot database: the store replays it on boot and writes through on
	// every mutation.
	db, err := repo.OpenSQLite(cfg.DBPath, cfg.OTEL.Enabled)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("open snapshot db failed")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("snapshot migration failed")
	}
	snap, err := repo.LoadSnapshot(ctx, db)
	if err != nil {
		log.Fatal().Err(err).Msg("snapshot load failed")
	}

	st := store.New(
		store.WithPersister(snapshotPersister{db: db}),
		store.WithQuotaLimit(cfg.Quota.DailyLimit),
		store.WithQuotaWindow(cfg.Quota.Window),
		store.WithMaxEntries(cfg.CacheMax),
		store.WithPersistFailureHook(func(err error) {
			log.Warn().Err(err).Msg("snapshot write failed")
		}),
	)
	st.Restore(snap)

	// Dataset manifest: identifier patterns and the grade directory.
	manifest, err := providers.NewManifestProvider(cfg.Providers.ManifestURL).Load(ctx)
	if err != nil {
		log.Fatal().Err(err).Str("source", cfg.Providers.ManifestURL).Msg("manifest load failed")
	}
	matcher, err := match.New(manifest.Patterns)
	if err != nil {
		log.Fatal().Err(err).Msg("manifest patterns invalid")
	}

	deps := httpapi.Deps{
		Store:   st,
		Search:  providers.NewHTTPSearchProvider(cfg.Providers.SearchBaseURL, cfg.Providers.SearchAPIKey),
		Auth:    providers.NewHTTPAuthProvider(cfg.Providers.AuthDeviceURL, cfg.Providers.AuthTokenURL, cfg.Providers.AuthClientID),
		Matcher: matcher,
	}

	r := gin.New()
	httpapi.RegisterRoutes(r, deps, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", version).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	// Graceful shutdown on SIGINT/SIGTERM.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown failed")
	}
	if err := shutdownOTel(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("otel shutdown failed")
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	log.Info().Msg("bye")
}
