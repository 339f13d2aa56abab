// Package grades is the one-call builder for an embedded grade service.
package grades

import (
	"context"
	"log/slog"

	mem "gradekit/adapters/memory"
	"gradekit/core"
	"gradekit/engine"
	"gradekit/integrations/webhook"
	"gradekit/realtime"
)

// Option configures the service builder.
type Option func(*config)

type config struct {
	store    engine.ScoreStore
	mode     engine.DispatchMode
	settings engine.Settings
	hub      *realtime.Hub
	webhooks []*webhook.Sink
	handlers []func(context.Context, core.Event)
	logger   *slog.Logger
}

// WithStore sets the persistence adapter.
func WithStore(s engine.ScoreStore) Option { return func(c *config) { c.store = s } }

// WithSettings sets the grading policy, grade bands and store timeout.
func WithSettings(s engine.Settings) Option { return func(c *config) { c.settings = s } }

// WithDispatchMode selects sync or async event dispatch.
func WithDispatchMode(m engine.DispatchMode) Option { return func(c *config) { c.mode = m } }

// WithRealtime wires a realtime hub to receive all engine events.
func WithRealtime(h *realtime.Hub) Option { return func(c *config) { c.hub = h } }

// WithWebhooks forwards all engine events to the sinks.
func WithWebhooks(sinks ...*webhook.Sink) Option {
	return func(c *config) { c.webhooks = append(c.webhooks, sinks...) }
}

// WithEventHandlers subscribes extra consumers, such as leaderboards or
// activity metrics, to every engine event.
func WithEventHandlers(handlers ...func(context.Context, core.Event)) Option {
	return func(c *config) { c.handlers = append(c.handlers, handlers...) }
}

func WithLogger(l *slog.Logger) Option { return func(c *config) { c.logger = l } }

// New builds a configured GradeService. If not provided, defaults are used:
//   - store: in-memory
//   - settings: engine.DefaultSettings
//   - dispatch: async
func New(opts ...Option) *engine.GradeService {
	cfg := &config{mode: engine.DispatchAsync}
	for _, o := range opts {
		o(cfg)
	}
	if cfg.store == nil {
		cfg.store = mem.New()
	}
	if cfg.logger != nil && cfg.settings.Logger == nil {
		cfg.settings.Logger = cfg.logger
	}
	bus := engine.NewEventBus(cfg.mode)
	if cfg.logger != nil {
		bus.WithLogger(cfg.logger)
	}
	svc := engine.NewGradeService(cfg.store, bus, cfg.settings)
	if cfg.hub != nil {
		bus.SubscribeAll(cfg.hub.Broadcast)
	}
	for _, sink := range cfg.webhooks {
		bus.SubscribeAll(sink.OnEvent)
	}
	for _, h := range cfg.handlers {
		bus.SubscribeAll(h)
	}
	return svc
}
