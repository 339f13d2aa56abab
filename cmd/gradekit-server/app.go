package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"gradekit/adapters/jsonfile"
	mem "gradekit/adapters/memory"
	mongoAdapter "gradekit/adapters/mongodb"
	redisAdapter "gradekit/adapters/redis"
	sqlxAdapter "gradekit/adapters/sqlx"
	"gradekit/analytics"
	"gradekit/api/httpapi"
	"gradekit/config"
	"gradekit/engine"
	"gradekit/grades"
	"gradekit/integrations/webhook"
	"gradekit/leaderboard"
	"gradekit/realtime"
	"gradekit/users"
)

// App aggregates the assembled server components.
type App struct {
	Config   *config.Config
	Logger   *slog.Logger
	Hub      *realtime.Hub
	Service  *engine.GradeService
	Accounts *users.Service
	Insights *Insights
	Handler  http.Handler
	Server   *http.Server
}

// Insights holds the event consumers behind the leaderboard and stats routes.
// All fields are nil when analytics is disabled.
type Insights struct {
	Leaderboard *leaderboard.Tracker
	Metrics     *analytics.Metrics
	Aggregator  *analytics.Aggregator
}

// Stores pairs the score store with the user store of the same backend.
type Stores struct {
	Scores engine.ScoreStore
	Users  engine.UserStore
}

func provideConfig() (*config.Config, error) {
	return config.Load()
}

func provideLogger(cfg *config.Config) *slog.Logger {
	return setupLogging(cfg)
}

func provideHub() *realtime.Hub {
	return realtime.NewHub()
}

func provideStores(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Stores, func(), error) {
	return setupStorage(ctx, cfg, logger)
}

func provideSettings(cfg *config.Config, logger *slog.Logger) (engine.Settings, error) {
	return cfg.Grading.Settings(logger)
}

// provideWebhooks returns nil when no endpoint is configured.
func provideWebhooks(cfg *config.Config, logger *slog.Logger) *webhook.Sink {
	if len(cfg.Webhooks.Endpoints) == 0 {
		return nil
	}
	return webhook.FromConfig(cfg.Webhooks, webhook.WithLogger(logger))
}

// provideInsights warms the leaderboards from the score store and starts the
// report aggregator. The cleanup stops the aggregator and flushes its exporters.
func provideInsights(ctx context.Context, cfg *config.Config, stores *Stores, logger *slog.Logger) (*Insights, func(), error) {
	if !cfg.Analytics.Enabled {
		return &Insights{}, func() {}, nil
	}
	tracker := leaderboard.NewTracker()
	if err := tracker.Warm(ctx, stores.Scores); err != nil {
		return nil, nil, fmt.Errorf("warm leaderboards: %w", err)
	}
	metrics := analytics.NewMetrics()

	exporters := []analytics.Exporter{analytics.NewLogExporter(logger)}
	if cfg.Analytics.ExportEndpoint != "" {
		exporters = append(exporters, analytics.NewHTTPExporter(cfg.Analytics.ExportEndpoint, cfg.Analytics.ExportAPIKey, cfg.Analytics.ExportBatch))
	}
	exporter := analytics.NewMultiExporter(logger, exporters...)
	agg := analytics.NewAggregator(metrics, exporter, cfg.Analytics.Interval, logger)

	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		agg.Start(runCtx)
	}()
	logger.Info("analytics enabled", "interval", cfg.Analytics.Interval, "subjects", len(tracker.Subjects()))

	cleanup := func() {
		cancel()
		<-done
		if err := exporter.Close(); err != nil {
			logger.Warn("analytics exporter close failed", "error", err)
		}
	}
	return &Insights{Leaderboard: tracker, Metrics: metrics, Aggregator: agg}, cleanup, nil
}

func provideService(cfg *config.Config, settings engine.Settings, stores *Stores, hub *realtime.Hub, sink *webhook.Sink, insights *Insights, logger *slog.Logger) (*engine.GradeService, func()) {
	opts := []grades.Option{
		grades.WithRealtime(hub),
		grades.WithStore(stores.Scores),
		grades.WithSettings(settings),
		grades.WithDispatchMode(cfg.Events.Mode()),
		grades.WithLogger(logger),
	}
	if sink != nil {
		opts = append(opts, grades.WithWebhooks(sink))
	}
	if insights.Leaderboard != nil {
		opts = append(opts, grades.WithEventHandlers(insights.Leaderboard.OnEvent, insights.Metrics.OnEvent))
	}
	svc := grades.New(opts...)
	return svc, svc.Close
}

func provideAccounts(stores *Stores, svc *engine.GradeService, cfg *config.Config, logger *slog.Logger) *users.Service {
	return users.NewService(stores.Users, svc, users.StaticCredentials(cfg.Admins), users.WithLogger(logger))
}

func provideHandler(svc *engine.GradeService, accounts *users.Service, hub *realtime.Hub, insights *Insights, cfg *config.Config, logger *slog.Logger) http.Handler {
	return httpapi.NewMux(svc, accounts, hub, httpapi.Options{
		PathPrefix:       cfg.Server.PathPrefix,
		AllowCORSOrigin:  cfg.Server.CORSOrigin,
		APIKeys:          cfg.Security.APIKeys,
		RateLimitEnabled: cfg.Security.EnableRateLimit,
		RateLimitRPM:     cfg.Security.RateLimit.RequestsPerMinute,
		Logger:           logger,
		EventBuffer:      cfg.Events.HubBuffer,
		Leaderboard:      insights.Leaderboard,
		Metrics:          insights.Metrics,
		Reports:          insights.Aggregator,
	})
}

func provideServer(cfg *config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           handler,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}
}

// setupLogging configures the logger based on configuration.
func setupLogging(cfg *config.Config) *slog.Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Logging.Level),
	}

	var out io.Writer = os.Stdout
	if cfg.Logging.Output == "stderr" {
		out = os.Stderr
	}

	switch cfg.Logging.Format {
	case "text":
		handler = slog.NewTextHandler(out, opts)
	default:
		handler = slog.NewJSONHandler(out, opts)
	}

	if len(cfg.Logging.Attributes) > 0 {
		handler = handler.WithAttrs(convertAttributes(cfg.Logging.Attributes))
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// parseLogLevel converts string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// convertAttributes converts map[string]string to []slog.Attr.
func convertAttributes(attrs map[string]string) []slog.Attr {
	var result []slog.Attr
	for k, v := range attrs {
		result = append(result, slog.String(k, v))
	}
	return result
}

// setupStorage opens the configured backend. The returned cleanup closes its connections.
func setupStorage(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Stores, func(), error) {
	noop := func() {}
	switch cfg.Storage.Adapter {
	case config.AdapterMemory:
		return &Stores{Scores: mem.New(), Users: mem.NewUserStore()}, noop, nil
	case config.AdapterFile:
		scores, err := jsonfile.New(cfg.Storage.File.Path)
		if err != nil {
			return nil, nil, err
		}
		accounts, err := jsonfile.NewUserStore(usersPath(cfg.Storage.File.Path))
		if err != nil {
			return nil, nil, err
		}
		return &Stores{Scores: scores, Users: accounts}, noop, nil
	case config.AdapterRedis:
		store, err := redisAdapter.New(cfg.Storage.Redis)
		if err != nil {
			return nil, nil, err
		}
		return &Stores{Scores: store, Users: store.Users()}, func() {
			if err := store.Close(); err != nil {
				logger.Error("closing redis", "error", err)
			}
		}, nil
	case config.AdapterSQL:
		store, err := sqlxAdapter.New(ctx, cfg.Storage.SQL)
		if err != nil {
			return nil, nil, err
		}
		return &Stores{Scores: store, Users: sqlxAdapter.NewUserStore(store)}, func() {
			if err := store.Close(); err != nil {
				logger.Error("closing sql database", "error", err)
			}
		}, nil
	case config.AdapterMongoDB:
		store, err := mongoAdapter.New(ctx, cfg.Storage.MongoDB)
		if err != nil {
			return nil, nil, err
		}
		return &Stores{Scores: store, Users: store.Users()}, func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := store.Shutdown(shutdownCtx); err != nil {
				logger.Error("closing mongodb", "error", err)
			}
		}, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage adapter: %s", cfg.Storage.Adapter)
	}
}

// usersPath puts accounts next to the score file: grades.json -> grades.users.json.
func usersPath(scoresPath string) string {
	return strings.TrimSuffix(scoresPath, ".json") + ".users.json"
}
