// Package kiosk constructs the root App object: every component wired
// together explicitly, with no package-level singletons, per spec.md §9's
// instruction to replace the reference implementation's module-level
// registry and websocket service with one object built at startup.
package kiosk

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/ocx/donationbox/internal/bridge"
	"github.com/ocx/donationbox/internal/broadcast"
	"github.com/ocx/donationbox/internal/circuitbreaker"
	"github.com/ocx/donationbox/internal/config"
	"github.com/ocx/donationbox/internal/correlation"
	"github.com/ocx/donationbox/internal/database"
	"github.com/ocx/donationbox/internal/dispatcher"
	"github.com/ocx/donationbox/internal/donation"
	"github.com/ocx/donationbox/internal/gpioevent"
	"github.com/ocx/donationbox/internal/hardware"
	"github.com/ocx/donationbox/internal/httpapi"
	"github.com/ocx/donationbox/internal/metrics"
	"github.com/ocx/donationbox/internal/middleware"
	"github.com/ocx/donationbox/internal/pollstore"
	"github.com/ocx/donationbox/internal/registry"
)

// App is the fully wired kiosk: every component the core pipeline and the
// AdminAPI need, constructed once in cmd/server/main.go and threaded
// through explicitly.
type App struct {
	cfg *config.Config

	store      pollstore.PollStore
	adminStore *database.AdminClient // optional secondary backend, may be nil

	metrics *metrics.Registry
	hub     *broadcast.Hub
	breaker *circuitbreaker.CircuitBreaker
	writer  *donation.Writer
	engine  *correlation.Engine

	bridge     *bridge.Bridge
	registry   *registry.Registry
	container  *registry.Container
	dispatcher *dispatcher.Dispatcher
	source     hardware.Source

	httpServer *http.Server
}

// New builds an App from cfg and a primary PollStore. The secondary
// Supabase admin client is constructed only when credentials are present;
// its absence is not fatal since the primary store already covers every
// operation the core pipeline and AdminAPI require.
func New(cfg *config.Config, store pollstore.PollStore) (*App, error) {
	a := &App{cfg: cfg, store: store}

	if cfg.GetSupabaseURL() != "" && cfg.GetSupabaseKey() != "" {
		admin, err := database.NewAdminClient(cfg.GetSupabaseURL(), cfg.GetSupabaseKey())
		if err != nil {
			slog.Warn("kiosk: supabase admin client unavailable, continuing without it", "error", err)
		} else {
			a.adminStore = admin
		}
	}

	a.metrics = metrics.New()

	a.hub = broadcast.New(func(n int) { a.metrics.BroadcastSubscribers.Set(float64(n)) })

	a.breaker = circuitbreaker.New(breakerConfig(cfg))
	a.writer = donation.New(a.store, a.hub, a.breaker, a.metrics)

	corrCfg := correlation.Config{
		ButtonDebounce:   time.Duration(cfg.Correlation.ButtonDebounceMS) * time.Millisecond,
		CoinDebounce:     time.Duration(cfg.Correlation.CoinDebounceMS) * time.Millisecond,
		TTL:              time.Duration(cfg.Correlation.TTLSeconds) * time.Second,
		PulseToCents:     cfg.Correlation.PulseToCents,
		MinDonationCents: cfg.Correlation.MinDonationCents,
	}
	onReset := func(reason string) { a.metrics.CorrelationResets.WithLabelValues(reason).Inc() }
	a.engine = correlation.New(corrCfg, a.store, a.writer, a.hub, time.Now, onReset)

	a.bridge = bridge.New(
		bridge.WithCapacity(cfg.Hardware.QueueSize),
		bridge.WithDropHook(func(reason string) { a.metrics.EventsDropped.WithLabelValues(reason).Inc() }),
	)

	a.registry = registry.New()
	a.container = &registry.Container{
		BroadcastHub:      a.hub,
		CorrelationEngine: a.engine,
		PollStore:         a.store,
		DonationWriter:    a.writer,
		Clock:             time.Now,
	}

	if err := a.registerComponents(); err != nil {
		return nil, err
	}

	a.dispatcher = dispatcher.New(a.bridge, a.registry, a.container,
		dispatcher.WithDispatchHook(func(eventType string, d time.Duration) {
			a.metrics.DispatchDuration.WithLabelValues(eventType).Observe(d.Seconds())
		}),
	)

	a.source = a.buildSource()

	wsServer := broadcast.NewServer(a.hub, cfg.Server.AllowedOrigins)
	var rateLimiter *middleware.RateLimiter
	if !cfg.App.Debug {
		rateLimiter = middleware.NewRateLimiter(middleware.RateLimitConfig{})
	}
	apiServer := httpapi.NewServer(a.store, a.adminStore, wsServer, cfg.Server.AllowedOrigins, rateLimiter)

	a.httpServer = &http.Server{
		Addr:         ":" + cfg.GetPort(),
		Handler:      apiServer.Router(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSec) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeoutSec) * time.Second,
	}

	return a, nil
}

// breakerConfig builds the circuit breaker configuration wrapping
// DonationWriter's transaction. When FailureRatioThreshold is configured
// above zero, ReadyToTrip switches from a plain consecutive-failure streak
// to a failure-ratio rule over a minimum sample of requests — useful
// against a database that fails intermittently rather than in a clean
// streak, where a fixed consecutive count never trips.
func breakerConfig(cfg *config.Config) *circuitbreaker.Config {
	c := circuitbreaker.DefaultConfig("donation_writer")
	c.Timeout = time.Duration(cfg.CircuitBreaker.TimeoutSeconds) * time.Second

	consecutive := uint32(cfg.CircuitBreaker.ConsecutiveFailures)
	if ratio := cfg.CircuitBreaker.FailureRatioThreshold; ratio > 0 {
		c.ReadyToTrip = func(counts circuitbreaker.Counts) bool {
			return counts.Requests >= consecutive && counts.FailureRatio() >= ratio
		}
	} else {
		c.ReadyToTrip = func(counts circuitbreaker.Counts) bool {
			return counts.ConsecutiveFailures >= consecutive
		}
	}
	return c
}

// registerComponents registers one component per configured category
// button plus the single coin validator, mirroring spec.md §4.3's
// component registry: each component's handler table is built once, here,
// at construction time.
func (a *App) registerComponents() error {
	maxButtons := len(a.cfg.Hardware.Pins.CategoryButtons)
	if maxButtons == 0 {
		maxButtons = 8 // enough positions for any poll until a button config is supplied
	}

	for position := 0; position < maxButtons; position++ {
		position := position
		id := hardware.ButtonComponentID(position)
		handlers := map[string]registry.Handler{
			"button_pressed": func(ctx context.Context, event gpioevent.Event, c *registry.Container) error {
				c.CorrelationEngine.HandleButtonPressed(position)
				return nil
			},
		}
		if err := a.registry.Register(registry.NewComponent(id, handlers, nil, nil)); err != nil {
			return fmt.Errorf("kiosk: register button component %s: %w", id, err)
		}
	}

	coinHandlers := map[string]registry.Handler{
		"coin_inserted": func(ctx context.Context, event gpioevent.Event, c *registry.Container) error {
			c.CorrelationEngine.HandleCoinInserted(event.IntData("pulse_count"))
			return nil
		},
	}
	if err := a.registry.Register(registry.NewComponent(hardware.CoinValidatorComponent, coinHandlers, nil, nil)); err != nil {
		return fmt.Errorf("kiosk: register coin validator component: %w", err)
	}

	return nil
}

// buildSource selects the HardwareSource adapter named by PIN_FACTORY. Only
// the software adapters (mock, null) are implemented; any other name falls
// back to null with a warning since a real GPIO backend is out of scope.
func (a *App) buildSource() hardware.Source {
	if !a.cfg.Hardware.Enabled {
		return hardware.NewNullSource()
	}
	switch a.cfg.Hardware.PinFactory {
	case "mock":
		return hardware.NewMockSource(nil)
	case "null":
		return hardware.NewNullSource()
	default:
		slog.Warn("kiosk: no native GPIO backend bundled, falling back to null source", "pin_factory", a.cfg.Hardware.PinFactory)
		return hardware.NewNullSource()
	}
}

// Run starts every component, the dispatcher loop, the hardware source and
// the HTTP server, blocking until ctx is cancelled or the HTTP server
// fails. Shutdown stops the bridge from accepting events, closes the HTTP
// server and stops the registered components. The dispatcher stops with
// ctx, so events still queued in the bridge at that point are not
// dispatched.
func (a *App) Run(ctx context.Context) error {
	a.bridge.Start()
	a.registry.StartAll(ctx)

	sourceErrCh := make(chan error, 1)
	go func() { sourceErrCh <- a.source.Run(ctx, a.bridge) }()

	go a.reportQueueDepth(ctx)

	dispatchDone := make(chan struct{})
	go func() {
		a.dispatcher.Run(ctx)
		close(dispatchDone)
	}()

	serveErrCh := make(chan error, 1)
	go func() {
		slog.Info("kiosk: http server listening", "addr", a.httpServer.Addr)
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErrCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErrCh:
		slog.Error("kiosk: http server failed", "error", err)
	}

	return a.shutdown()
}

func (a *App) reportQueueDepth(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.metrics.QueueDepth.Set(float64(a.bridge.Depth()))
		}
	}
}

func (a *App) shutdown() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(a.cfg.Server.ShutdownTimeout)*time.Second)
	defer cancel()

	a.bridge.Stop()

	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("kiosk: http server shutdown error", "error", err)
	}

	a.registry.StopAll(shutdownCtx)

	slog.Info("kiosk: shutdown complete")
	return nil
}
