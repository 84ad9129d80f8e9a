package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/haski/recengine/internal/config"
	"github.com/haski/recengine/internal/engine"
	"github.com/haski/recengine/internal/health"
	httpapi "github.com/haski/recengine/internal/http"
	"github.com/haski/recengine/internal/logging"
	"github.com/haski/recengine/internal/metrics"
	"github.com/haski/recengine/internal/pipeline"
	"github.com/haski/recengine/internal/processor"
	"github.com/haski/recengine/internal/ranking"
	"github.com/haski/recengine/internal/rules"
	"github.com/haski/recengine/pkg/skincare"
	"github.com/haski/recengine/pkg/storage"
)

// backend is satisfied by both storage.Storage and storage.Memory.
type backend interface {
	pipeline.Store
	UpsertProducts(ctx context.Context, products []skincare.Product) error
	Ping(ctx context.Context) error
	Close() error
}

func main() {
	cfgPath := flag.String("config", "", "path to config file (defaults to $"+config.PathEnvVar+")")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		boot := logging.Logger()
		boot.Fatal().Err(err).Msg("load config")
	}
	logging.Init(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	logger := logging.Component("main")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ruleStore, err := rules.NewStore(cfg.Rules.CatalogPath)
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.Rules.CatalogPath).Msg("load rule catalog")
	}
	cat := ruleStore.Current()
	metrics.CatalogRules.Set(float64(cat.Len()))
	logger.Info().
		Str("version", cat.Version()).
		Str("checksum", cat.Checksum()).
		Int("rules", cat.Len()).
		Msg("rule catalog loaded")

	store, err := openStorage(ctx, cfg.Storage, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("open storage")
	}
	defer store.Close()

	var (
		nc        *nats.Conn
		publisher pipeline.Publisher
	)
	if cfg.NATS.Enabled {
		nc, err = processor.Connect(cfg.NATS)
		if err != nil {
			logger.Fatal().Err(err).Str("url", cfg.NATS.URL).Msg("connect nats")
		}
		defer nc.Close()
		publisher = processor.NewPublisher(nc, cfg.NATS.SubjectEscalations)
	}

	ranker := ranking.New(ranking.Options{
		StrictAllergyMode: cfg.Ranking.StrictAllergyMode,
		TopK:              cfg.Ranking.TopK,
	})
	svc := pipeline.New(
		engine.New(ruleStore, logging.Component("engine")),
		ranker,
		store,
		publisher,
		logging.Component("pipeline"),
	)

	var proc *processor.Processor
	if nc != nil {
		proc = processor.New(cfg.NATS, nc, svc, cfg.Service.RequestTimeout, logging.Component("processor"))
		if err := proc.Start(ctx); err != nil {
			logger.Fatal().Err(err).Msg("start processor")
		}
	}

	mux := http.NewServeMux()
	mux.Handle("/health", health.Handler("ok"))
	mux.Handle("/ready", health.Ready(2*time.Second, readinessChecks(ruleStore, store, nc)))
	mux.Handle("/metrics", promhttp.Handler())
	httpapi.New(svc, ruleStore, cfg.Service.RequestTimeout, logging.Component("http")).Register(mux)

	srv := &http.Server{
		Addr:              cfg.Service.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      cfg.Service.RequestTimeout + 5*time.Second,
	}

	go func() {
		logger.Info().
			Str("addr", cfg.Service.HTTPAddr).
			Bool("nats", cfg.NATS.Enabled).
			Bool("strict_allergy_mode", ranker.Strict()).
			Msg("recengine listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	for s := range sig {
		if s != syscall.SIGHUP {
			logger.Info().Str("signal", s.String()).Msg("shutting down")
			break
		}
		_, _ = pipeline.ReloadCatalog(ruleStore, logging.Component("rules"))
	}
	cancel()

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), cfg.Service.ShutdownTimeout)
	defer cancelShutdown()

	if err := srv.Shutdown(ctxShutdown); err != nil {
		logger.Error().Err(err).Msg("shutdown")
	}
	if proc != nil {
		proc.Close()
	}
}

// openStorage picks Postgres when a DSN is configured, otherwise an
// in-memory store, and seeds the product catalog into it.
func openStorage(ctx context.Context, cfg config.StorageConfig, logger zerolog.Logger) (backend, error) {
	var store backend
	if cfg.PostgresDSN != "" {
		pg, err := storage.New(cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		if cfg.Migrate {
			if err := pg.Migrate(ctx); err != nil {
				_ = pg.Close()
				return nil, err
			}
		}
		store = pg
		logger.Info().Msg("using postgres storage")
	} else {
		store = storage.NewMemory()
		logger.Warn().Msg("no postgres_dsn configured, using in-memory storage")
	}

	if cfg.ProductsPath == "" {
		return store, nil
	}
	products, err := storage.LoadProducts(cfg.ProductsPath)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	if err := store.UpsertProducts(ctx, products); err != nil {
		_ = store.Close()
		return nil, err
	}
	logger.Info().Int("products", len(products)).Str("path", cfg.ProductsPath).Msg("product catalog seeded")
	return store, nil
}

func readinessChecks(rs *rules.Store, store backend, nc *nats.Conn) map[string]health.Check {
	checks := map[string]health.Check{
		"catalog": func(context.Context) error {
			if rs.Current() == nil {
				return errors.New("no rule catalog loaded")
			}
			return nil
		},
		"storage": store.Ping,
	}
	if nc != nil {
		checks["nats"] = func(context.Context) error {
			if !nc.IsConnected() {
				return errors.New("nats " + nc.Status().String())
			}
			return nil
		}
	}
	return checks
}
