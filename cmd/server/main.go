package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/twmb/franz-go/pkg/kgo"
	"golang.org/x/sync/errgroup"

	jwttoken "medcourier/internal/jwt_token"
	"medcourier/internal/platform/config"
	"medcourier/internal/platform/httpserver"
	"medcourier/internal/platform/kafka"
	"medcourier/internal/platform/logger"
	platformmetrics "medcourier/internal/platform/metrics"
	"medcourier/internal/platform/postgres"
	platformredis "medcourier/internal/platform/redis"
	shipmentstore "medcourier/internal/shipment/store"
	auditpostgres "medcourier/pkg/platform/audit/store/postgres"
	"medcourier/pkg/platform/httputil"
	"medcourier/pkg/platform/middleware/auth"
	"medcourier/pkg/platform/middleware/metadata"
	"medcourier/pkg/platform/middleware/requesttime"
)

const (
	devSigningKey     = "medcourier-development-signing-key"
	topicPartitions   = 3
	topicReplicas     = 1
	redisLockKeyspace = "medcourier:lock:"
)

// main wires dependencies, serves HTTP and relays the outbox until a signal
// arrives. Business logic lives in the internal service packages.
func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "medcourier: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := openDatabase(ctx, cfg, log)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
	}

	redis, err := platformredis.New(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	if redis != nil {
		defer redis.Close()
		log.Info("clock-in lock backed by redis")
	}

	b := newMemoryBackends()
	if db != nil {
		b = newPostgresBackends(db)
	}
	app := newApplication(cfg, log, b, redis)
	defer func() {
		if err := app.security.Close(); err != nil {
			log.Warn("security audit publisher did not drain", "error", err)
		}
	}()

	checks := map[string]healthCheck{}
	if db != nil {
		checks["postgres"] = db.PingContext
	}
	if redis != nil {
		checks["redis"] = redis.Health
	}

	httpMetrics := platformmetrics.New()
	srv := httpserver.New(cfg.Server, newRouter(cfg, log, app, httpMetrics, checks))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting medcourier", "addr", cfg.Server.Addr, "env", cfg.Environment, "postgres", db != nil)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), cfg.Server.ShutdownTimeout)
		defer cancel()
		log.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})

	if db != nil {
		client, err := kafka.NewClient(cfg.Kafka)
		if err != nil {
			return err
		}
		if client != nil {
			defer client.Close()
			if err := startRelay(gctx, g, cfg, log, db, client, httpMetrics); err != nil {
				return err
			}
		}
	}

	return g.Wait()
}

func openDatabase(ctx context.Context, cfg config.Config, log *slog.Logger) (*sql.DB, error) {
	if cfg.Database.URL == "" {
		log.Warn("DATABASE_URL not set, using in-memory stores")
		return nil, nil
	}
	db, err := postgres.Open(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	if cfg.Database.Migrate {
		if err := postgres.Migrate(ctx, db); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return db, nil
}

func startRelay(ctx context.Context, g *errgroup.Group, cfg config.Config, log *slog.Logger,
	db *sql.DB, client *kgo.Client, m *platformmetrics.Metrics) error {
	if cfg.Kafka.EnsureTopics {
		topics := append(auditpostgres.Topics(), shipmentstore.TrackingTopic)
		if err := kafka.EnsureTopics(ctx, client, topicPartitions, topicReplicas, topics...); err != nil {
			return err
		}
	}
	relay := kafka.NewRelay(kafka.NewPostgresOutbox(db), client,
		func(ctx context.Context, fn func(ctx context.Context) error) error {
			return postgres.RunInTx(ctx, db, 0, fn)
		},
		kafka.WithLogger(log),
		kafka.WithMetrics(m),
		kafka.WithBatchSize(cfg.Kafka.BatchSize),
		kafka.WithPollInterval(cfg.Kafka.PollInterval),
	)
	g.Go(func() error {
		log.Info("outbox relay started", "brokers", cfg.Kafka.Brokers)
		if err := relay.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	return nil
}

// healthCheck reports whether a backing service answers.
type healthCheck func(ctx context.Context) error

func healthHandler(checks map[string]healthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := map[string]string{}
		code := http.StatusOK
		for name, check := range checks {
			if err := check(r.Context()); err != nil {
				status[name] = err.Error()
				code = http.StatusServiceUnavailable
				continue
			}
			status[name] = "ok"
		}
		httputil.WriteJSON(w, code, status)
	}
}

func newRouter(cfg config.Config, log *slog.Logger, app *application, m *platformmetrics.Metrics, checks map[string]healthCheck) http.Handler {
	signingKey := cfg.Auth.JWTSigningKey
	if signingKey == "" {
		log.Warn("JWT_SIGNING_KEY not set, using the development key")
		signingKey = devSigningKey
	}
	tokens := jwttoken.NewJWTServiceAdapter(jwttoken.NewJWTService(signingKey, cfg.Auth.Issuer, cfg.Auth.Audience))

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(metadata.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(m.HTTPMiddleware)
	r.Use(requesttime.Middleware)

	r.Get("/healthz", healthHandler(checks))
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(chimw.Timeout(cfg.Server.RequestTimeout))
		r.Use(auth.RequireAuth(tokens, log))
		app.shipments.Register(r)
		app.fleet.Register(r)
		app.assignments.Register(r)
		app.shifts.Register(r)
	})
	return r
}
