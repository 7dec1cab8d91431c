package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/twmb/franz-go/pkg/kgo"

	"skiptrace/internal/audit"
	"skiptrace/internal/platform/config"
	"skiptrace/internal/platform/httpserver"
	"skiptrace/internal/platform/logger"
	platformredis "skiptrace/internal/platform/redis"
	"skiptrace/internal/skiptrace/handler"
	"skiptrace/internal/skiptrace/metrics"
	"skiptrace/internal/skiptrace/providers"
	"skiptrace/internal/skiptrace/providers/batchdata"
	"skiptrace/internal/skiptrace/providers/skipengine"
	"skiptrace/internal/skiptrace/registry"
	"skiptrace/internal/skiptrace/service"
	"skiptrace/internal/skiptrace/store"
)

// main wires dependencies and owns the process lifecycle. Business logic
// lives in the internal packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	if err := run(cfg, log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := openDatabase(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := store.RunMigrations(db); err != nil {
		return err
	}

	pg := store.NewPostgres(db)

	var cache store.Cache = pg
	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		// Redis is an accelerator, not a dependency; run without it.
		log.Warn("redis unavailable, caching through postgres only", "error", err)
	} else if redisClient != nil {
		defer redisClient.Close()
		ttl := time.Duration(cfg.Lookup.FreshnessWindowDays) * 24 * time.Hour
		cache = store.NewRedisCache(redisClient.Client, pg, ttl, log)
		log.Info("redis cache enabled")
	}

	reg, err := buildRegistry(cfg.Providers, log)
	if err != nil {
		return err
	}
	go checkProviders(ctx, reg, log)

	publisher := audit.NewPublisher(audit.NewPostgresStore(db))

	var kafkaClient *kgo.Client
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaClient, err = kgo.NewClient(kgo.SeedBrokers(cfg.Kafka.Brokers...))
		if err != nil {
			return err
		}
		defer kafkaClient.Close()

		relay := audit.NewRelay(db, kafkaClient, cfg.Kafka.AuditTopic, cfg.Kafka.RelayInterval, log)
		go func() {
			if err := relay.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("audit relay stopped", "error", err)
			}
		}()
		log.Info("audit relay started", "topic", cfg.Kafka.AuditTopic)
	}

	svc := service.New(pg, cache, pg, reg, publisher, metrics.New(), service.Config{
		FreshnessWindowDays: cfg.Lookup.FreshnessWindowDays,
		MaxPhones:           cfg.Lookup.MaxPhones,
		MaxEmails:           cfg.Lookup.MaxEmails,
		RetryCount:          cfg.Lookup.RetryCount,
		RetryDelay:          cfg.Lookup.RetryDelay,
		Concurrency:         cfg.Lookup.Concurrency,
	}, log)

	router := chi.NewRouter()
	router.Get("/healthz", healthz(db))
	router.Handle("/metrics", promhttp.Handler())
	handler.New(svc, log).Register(router)

	srv := httpserver.New(cfg.Addr, router)

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting skiptrace server", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func openDatabase(ctx context.Context, url string) (*sql.DB, error) {
	db, err := sql.Open("pgx", url)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func buildRegistry(cfg config.Providers, log *slog.Logger) (*registry.Registry, error) {
	primary, err := providers.ParseKind(cfg.Primary)
	if err != nil {
		return nil, err
	}

	regCfg := registry.Config{Primary: primary}
	if cfg.FallbackEnabled && cfg.Fallback != "" {
		fallback, err := providers.ParseKind(cfg.Fallback)
		if err != nil {
			return nil, err
		}
		regCfg.Fallback = fallback
	}

	builders := map[providers.Kind]registry.BuildFunc{
		providers.KindBatchData: func() (providers.Provider, error) {
			bdCfg := batchdata.Config{
				APIKey:  cfg.BatchData.APIKey,
				BaseURL: cfg.BatchData.BaseURL,
				Timeout: cfg.BatchData.Timeout,
			}
			return batchdata.New(batchdata.NewHTTPClient(bdCfg), bdCfg, log), nil
		},
		providers.KindSkipEngine: func() (providers.Provider, error) {
			seCfg := skipengine.Config{
				APIKey:    cfg.SkipEngine.APIKey,
				BaseURL:   cfg.SkipEngine.BaseURL,
				Timeout:   cfg.SkipEngine.Timeout,
				MinEmails: cfg.MinEmails,
				MinPhones: cfg.MinPhones,
			}
			return skipengine.New(skipengine.NewHTTPClient(seCfg), seCfg, log), nil
		},
	}

	return registry.New(regCfg, builders, log)
}

// checkProviders tests the configured chain at startup. Unreachable
// providers are logged, not fatal; the fallback path covers outages.
func checkProviders(ctx context.Context, reg *registry.Registry, log *slog.Logger) {
	chain, err := reg.Chain()
	if err != nil {
		log.Warn("provider chain unavailable", "error", err)
		return
	}
	for _, p := range chain {
		if err := p.TestConnection(ctx); err != nil {
			log.Warn("provider unreachable at startup", "provider", p.Name(), "error", err)
			continue
		}
		log.Info("provider reachable", "provider", p.Name())
	}
}

func healthz(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			http.Error(w, "database unreachable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}
}
