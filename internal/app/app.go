// Package app wires the quiz engine together with fx. Core holds everything
// the service and the admin CLI share; Server adds the HTTP surface and the
// scheduled sweeper.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"go.uber.org/fx"

	"quiz-engine/internal/attempt"
	"quiz-engine/internal/config"
	"quiz-engine/internal/event"
	"quiz-engine/internal/event/rabbitmq"
	"quiz-engine/internal/httpapi"
	"quiz-engine/internal/metrics"
	"quiz-engine/internal/opentdb"
	"quiz-engine/internal/quiz"
	"quiz-engine/internal/rediscache"
	"quiz-engine/internal/scoring"
	"quiz-engine/internal/storage/memory"
	"quiz-engine/internal/storage/mongo"
	"quiz-engine/internal/storage/sqlite"
	"quiz-engine/internal/sweeper"
)

const (
	connectTimeout  = 10 * time.Second
	shutdownTimeout = 10 * time.Second
)

// Store is what every storage driver provides.
type Store interface {
	attempt.Store
	scoring.ResultStore
	scoring.StatsStore
	quiz.Repository
	Close() error
}

var Core = fx.Options(
	fx.Provide(
		NewStore,
		NewRemoteCache,
		NewMetrics,
		NewEventSink,
		NewCatalog,
		NewAttemptService,
		NewEngine,
		NewSweeper,
	),
)

var Server = fx.Options(
	Core,
	fx.Provide(NewRouter),
	fx.Invoke(StartSweeper, StartHTTPServer),
)

func NewStore(lc fx.Lifecycle, cfg *config.Config) (Store, error) {
	var (
		store Store
		err   error
	)
	switch cfg.Storage.Driver {
	case config.DriverSQLite:
		store, err = sqlite.NewStore(cfg.Storage.SQLitePath)
	case config.DriverMongo:
		ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
		defer cancel()
		store, err = mongo.Connect(ctx, cfg.Storage.MongoURI, cfg.Storage.MongoDatabase)
	case config.DriverMemory:
		store = memory.New()
	default:
		err = fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
	if err != nil {
		return nil, err
	}

	log.Info().Str("driver", cfg.Storage.Driver).Msg("storage ready")
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error { return store.Close() },
	})
	return store, nil
}

// NewRemoteCache returns nil when no Redis address is configured; the
// catalog then caches in process only.
func NewRemoteCache(lc fx.Lifecycle, cfg *config.Config) (quiz.RemoteCache, error) {
	if cfg.Redis.Addr == "" {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	cache, err := rediscache.Connect(ctx, rediscache.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error { return cache.Close() },
	})
	return cache, nil
}

func NewMetrics() *metrics.Metrics {
	return metrics.New(prometheus.NewRegistry())
}

func NewEventSink(lc fx.Lifecycle, cfg *config.Config, m *metrics.Metrics) (event.Sink, error) {
	publisher, err := rabbitmq.NewPublisher(cfg.RabbitMQ.URI, cfg.RabbitMQ.Exchange)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error { return publisher.Close() },
	})
	return event.Multi{m, publisher}, nil
}

func NewCatalog(store Store, remote quiz.RemoteCache, cfg *config.Config) *quiz.Catalog {
	opts := []quiz.CatalogOption{
		quiz.WithFetcher(opentdb.FetchQuestions),
		quiz.WithCacheTTL(cfg.Storage.QuizCacheTTL),
	}
	if remote != nil {
		opts = append(opts, quiz.WithRemoteCache(remote))
	}
	return quiz.NewCatalog(store, opts...)
}

// NewAttemptService grades attempts that StartAttempt finds overdue, the same
// way the sweeper does.
func NewAttemptService(store Store, catalog *quiz.Catalog, sink event.Sink, engine *scoring.Engine) *attempt.Service {
	return attempt.NewService(store, catalog,
		attempt.WithEventSink(sink),
		attempt.WithExpiryFinalizer(gradeWith(engine)),
	)
}

func NewEngine(store Store, catalog *quiz.Catalog, sink event.Sink) *scoring.Engine {
	return scoring.NewEngine(catalog, store, store, store, scoring.WithEventSink(sink))
}

// NewSweeper grades every attempt it expires so results exist without the
// user coming back.
func NewSweeper(store Store, attempts *attempt.Service, engine *scoring.Engine, m *metrics.Metrics, cfg *config.Config) *sweeper.Sweeper {
	return sweeper.New(store, attempts, sweeper.Config{
		Schedule:        cfg.Sweeper.Schedule,
		RetentionWindow: cfg.Sweeper.Retention,
		AbandonAfter:    cfg.Sweeper.AbandonAfter,
		BatchSize:       cfg.Sweeper.BatchSize,
	}, sweeper.WithFinalizer(gradeWith(engine)), sweeper.WithRecorder(m))
}

func gradeWith(engine *scoring.Engine) func(ctx context.Context, attemptID string) error {
	return func(ctx context.Context, attemptID string) error {
		_, err := engine.GradeAttempt(ctx, attemptID)
		return err
	}
}

func NewRouter(attempts *attempt.Service, engine *scoring.Engine, catalog *quiz.Catalog, m *metrics.Metrics, cfg *config.Config) *gin.Engine {
	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	api := httpapi.NewAPI(attempts, engine, catalog)
	return httpapi.NewRouter(api, httpapi.RouterConfig{
		CORSOrigins: cfg.Server.CORSOrigins,
		Metrics:     m,
	})
}

// StartSweeper runs scheduled passes on a context that outlives the start
// hook's deadline.
func StartSweeper(lc fx.Lifecycle, s *sweeper.Sweeper) {
	runCtx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			return s.Start(runCtx)
		},
		OnStop: func(context.Context) error {
			s.Stop()
			cancel()
			return nil
		},
	})
}

// StartHTTPServer binds the listener during start so a busy port fails the
// app instead of a background goroutine.
func StartHTTPServer(lc fx.Lifecycle, shutdowner fx.Shutdowner, router *gin.Engine, cfg *config.Config) {
	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			listener, err := net.Listen("tcp", server.Addr)
			if err != nil {
				return fmt.Errorf("listen on %s: %w", server.Addr, err)
			}
			log.Info().Str("addr", listener.Addr().String()).Msg("quiz-service listening")
			go func() {
				if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error().Err(err).Msg("server failed")
					_ = shutdowner.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Info().Msg("server shutting down")
			shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		},
	})
}
