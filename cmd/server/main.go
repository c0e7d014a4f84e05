package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/soaringjerry/surveyhub/internal/api"
	"github.com/soaringjerry/surveyhub/internal/cache"
	"github.com/soaringjerry/surveyhub/internal/config"
	"github.com/soaringjerry/surveyhub/internal/middleware"
	"github.com/soaringjerry/surveyhub/internal/platform/logger"
	"github.com/soaringjerry/surveyhub/internal/platform/metrics"
	"github.com/soaringjerry/surveyhub/internal/services"
	"github.com/soaringjerry/surveyhub/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		_, _ = os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(1)
	}
	log, err := logger.New(logger.Options{Mode: cfg.LogMode, Redact: cfg.LogRedaction, HashSalt: cfg.LogHashSalt})
	if err != nil {
		_, _ = os.Stderr.WriteString("logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Fatal("server stopped", "error", err)
	}
}

func run(cfg *config.Config, log *logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.UsesDevSecret() {
		log.Warn("SURVEY_JWT_SECRET not set, using the development secret")
	}

	sqlDB, store, err := openDatabase(cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := sqlDB.Close(); cerr != nil {
			log.Warn("close database", "error", cerr)
		}
	}()

	blobs, err := storage.NewLocalStore(cfg.UploadDir, cfg.UploadURLPrefix)
	if err != nil {
		return err
	}

	collector := metrics.New("survey")
	authn := middleware.NewAuthenticator(cfg.JWTSecret)

	var (
		catalogReader services.CatalogReader = store
		invalidator   services.CatalogInvalidator
	)
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer func() { _ = rdb.Close() }()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Warn("redis unreachable, catalog reads fall through to sqlite", "addr", cfg.RedisAddr, "error", err)
		}
		cc := cache.NewCatalogCache(rdb, store, cfg.CatalogTTL, log.Named("cache").SugaredLogger)
		catalogReader, invalidator = cc, cc
	}

	assignments := services.NewAssignmentService(store)
	auth := services.NewAuthService(store, authn.SignToken).WithAssigner(assignments.BackfillUser)
	catalog := services.NewCatalogService(store, invalidator)
	submissions := services.NewSubmissionServiceWith(catalogReader, store, store, blobs, cfg.MaxUploadBytes).
		WithObserver(collector)
	reports := services.NewReportService(store)

	if cfg.SeedFile != "" {
		if err := seedIfEmpty(ctx, cfg.SeedFile, auth, catalog, assignments, log); err != nil {
			return err
		}
	}

	proxies, err := middleware.ParseTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		return err
	}
	router := api.NewRouter(api.Deps{
		Auth:           auth,
		Catalog:        catalog,
		Submissions:    submissions,
		Assignments:    assignments,
		Reports:        reports,
		Authn:          authn,
		Log:            log.Named("http"),
		MaxUploadBytes: cfg.MaxUploadBytes,
		CORSOrigins:    cfg.CORSOrigins,
		TrustedProxies: proxies,
		Metrics:        collector,
		Uploads:        blobs.Handler(),
		UploadPrefix:   blobs.URLPrefix(),
	})
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("survey server listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		log.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
