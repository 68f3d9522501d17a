package daemon

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/harun/kodok/internal/config"
	"github.com/harun/kodok/internal/logger"
	"github.com/harun/kodok/internal/observability"
	"github.com/harun/kodok/internal/router"
	"github.com/harun/kodok/internal/telegram"
	"github.com/harun/kodok/internal/tracing"
	"github.com/harun/kodok/pkg/canned"
	"github.com/harun/kodok/pkg/dispatch"
	"github.com/harun/kodok/pkg/facts"
	"github.com/harun/kodok/pkg/gateway"
	"github.com/harun/kodok/pkg/qotd"
	"github.com/harun/kodok/pkg/reply"
	"github.com/harun/kodok/pkg/session"
)

// drainTimeout bounds how long Stop waits for queued replies to go out.
const drainTimeout = 5 * time.Second

// Daemon represents the kodok bot service
type Daemon struct {
	config *config.Config
	logger *logger.Logger

	// Core modules
	facts     *facts.Store
	store     *session.Store
	sweeper   *session.Sweeper
	generator *reply.Generator
	queue     *dispatch.Queue
	router    *router.Router
	poster    *qotd.Poster
	watcher   *facts.QuestionWatcher

	// Services
	telegramBot   *telegram.Bot
	gatewayServer *gateway.Server

	// Internal
	eventLoop *EventLoop
	lifecycle *LifecycleManager

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	startTime time.Time
	running   bool
	mu        sync.RWMutex

	tracingEnabled bool
}

// Options replace external services, mainly for tests.
type Options struct {
	// Sender replaces the Telegram bot as the delivery target. When set no
	// bot is created and events arrive only through Handle.
	Sender dispatch.Sender
	// Completer replaces the configured AI provider.
	Completer reply.Completer
}

// Status is a point-in-time view of the daemon
type Status struct {
	Running          bool          `json:"running"`
	StartTime        time.Time     `json:"start_time,omitempty"`
	Uptime           time.Duration `json:"uptime"`
	Sessions         int           `json:"sessions"`
	QueueDepth       int           `json:"queue_depth"`
	PendingQuestions int           `json:"pending_questions"`
	Bot              string        `json:"bot,omitempty"`
}

// New creates a daemon talking to Telegram and the configured AI provider.
func New(cfg *config.Config, log *logger.Logger) (*Daemon, error) {
	return NewWithOptions(cfg, log, Options{})
}

// NewWithOptions creates a daemon, substituting any services set in opts.
func NewWithOptions(cfg *config.Config, log *logger.Logger, opts Options) (*Daemon, error) {
	if opts.Sender == nil || opts.Completer == nil {
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid configuration: %w", err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	observability.EnsureRegistered()

	d := &Daemon{
		config: cfg,
		logger: log,
		ctx:    ctx,
		cancel: cancel,
	}

	if cfg.Tracing.Enabled {
		if err := tracing.Setup(tracing.Settings{
			ServiceName: cfg.Tracing.ServiceName,
			SampleRatio: cfg.Tracing.SampleRatio,
		}); err != nil {
			log.Warn().Err(err).Msg("Failed to initialize tracing, continuing without distributed tracing")
		} else {
			d.tracingEnabled = true
			log.Info().Msg("Tracing initialized successfully")
		}
	}

	if err := d.initializeCoreModules(opts); err != nil {
		d.abort()
		return nil, fmt.Errorf("failed to initialize core modules: %w", err)
	}

	if err := d.initializeServices(opts); err != nil {
		d.abort()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	d.eventLoop = NewEventLoop(d)
	d.lifecycle = NewLifecycleManager(d)

	return d, nil
}

func (d *Daemon) abort() {
	d.cancel()
	if d.watcher != nil {
		_ = d.watcher.Stop()
	}
	if d.facts != nil {
		_ = d.facts.Close()
	}
	if d.tracingEnabled {
		_ = tracing.Shutdown(context.Background())
		d.tracingEnabled = false
	}
}

// initializeCoreModules builds the conversation engine in dependency order
func (d *Daemon) initializeCoreModules(opts Options) error {
	cfg := d.config

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	if cfg.Logging.AuditFile != "" {
		if err := observability.InitAuditLogger(cfg.Logging.AuditFile); err != nil {
			d.logger.Warn().Err(err).Msg("Failed to initialize audit logger, using default stderr")
		} else {
			d.logger.Info().Str("path", cfg.Logging.AuditFile).Msg("Audit logger initialized")
		}
	}

	store, err := facts.Open(cfg.Facts.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open fact store: %w", err)
	}
	d.facts = store
	d.logger.Info().Str("path", cfg.Facts.DBPath).Msg("Fact store initialized")

	completer := opts.Completer
	if completer == nil {
		completer, err = reply.NewCompleter(cfg.AI.Provider, cfg.AI.APIKey, cfg.AI.BaseURL)
		if err != nil {
			return fmt.Errorf("failed to create completer: %w", err)
		}
	}
	d.generator = reply.NewGenerator(completer, reply.Config{
		Model:          cfg.AI.Model,
		Persona:        cfg.AI.Persona,
		MaxTokens:      cfg.AI.MaxTokens,
		Temperature:    cfg.AI.Temperature,
		MaxAttempts:    cfg.Generation.MaxAttempts,
		BaseDelay:      cfg.Generation.BaseBackoffDuration(),
		AttemptTimeout: cfg.Generation.AttemptTimeoutDuration(),
	})
	d.logger.Info().
		Str("provider", completer.Provider()).
		Str("model", cfg.AI.Model).
		Msg("Reply generator initialized")

	d.store = session.NewStore(session.Options{HistoryLimit: cfg.Session.HistoryLimit})
	d.sweeper = session.NewSweeper(d.store, session.SweeperConfig{
		Interval:    cfg.Session.SweepIntervalDuration(),
		IdleTimeout: cfg.Session.IdleTimeoutDuration(),
		BatchSize:   cfg.Session.SweepBatch,
	})
	d.logger.Info().
		Int("history_limit", cfg.Session.HistoryLimit).
		Dur("idle_timeout", cfg.Session.IdleTimeoutDuration()).
		Msg("Session store initialized")

	return nil
}

// initializeServices wires delivery, ingress and the admin surface
func (d *Daemon) initializeServices(opts Options) error {
	cfg := d.config

	sender := opts.Sender
	if sender == nil {
		bot, err := telegram.New(&cfg.Telegram, d.logger)
		if err != nil {
			return fmt.Errorf("failed to create telegram bot: %w", err)
		}
		d.telegramBot = bot
		sender = bot
	}

	d.queue = dispatch.New(sender, dispatch.Config{
		Cooldown:    cfg.Dispatch.CooldownDuration(),
		SendTimeout: time.Duration(cfg.Telegram.SendTimeout) * time.Second,
		OnOutcome:   d.onDelivery,
	})
	d.logger.Info().Dur("cooldown", cfg.Dispatch.CooldownDuration()).Msg("Dispatch queue initialized")

	destination := ""
	if cfg.QOTD.ChatID != 0 {
		destination = strconv.FormatInt(cfg.QOTD.ChatID, 10)
	}
	poster, err := qotd.New(d.facts, d.queue, qotd.Config{
		Schedule:    cfg.QOTD.Schedule,
		Timezone:    cfg.QOTD.Timezone,
		Destination: destination,
	})
	if err != nil {
		return fmt.Errorf("failed to create qotd poster: %w", err)
	}
	d.poster = poster

	if cfg.QOTD.QuestionsFile != "" {
		watcher, err := facts.NewQuestionWatcher(d.facts, facts.QuestionWatcherConfig{
			Path:     cfg.QOTD.QuestionsFile,
			OnImport: d.onQuestionsImported,
		})
		if err != nil {
			return fmt.Errorf("failed to create questions watcher: %w", err)
		}
		d.watcher = watcher
	}

	routerOpts := router.Options{
		Store:     d.store,
		Generator: d.generator,
		Outbox:    d.queue,
		Questions: d.poster,
		Observer:  d.onRouted,
	}
	if cfg.Canned.Enabled {
		routerOpts.Canned = canned.NewMatcher(d.facts, canned.Options{SpecialNames: cfg.Canned.SpecialNames})
	}
	r, err := router.New(routerOpts)
	if err != nil {
		return fmt.Errorf("failed to create router: %w", err)
	}
	d.router = r

	if cfg.Gateway.Enabled {
		server, err := gateway.NewServer(gateway.Config{
			Host:   cfg.Gateway.Host,
			Port:   cfg.Gateway.Port,
			Token:  cfg.Gateway.Token,
			Status: func() interface{} { return d.Status() },
			Logger: d.logger.With().Str("component", "gateway").Logger(),
		})
		if err != nil {
			return fmt.Errorf("failed to create gateway server: %w", err)
		}
		d.gatewayServer = server
	}

	return nil
}

// Start starts the daemon
func (d *Daemon) Start() error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon is already running")
	}
	d.running = true
	d.startTime = time.Now()
	d.mu.Unlock()

	traceID := tracing.NewTraceID()
	logger := d.logger.GetZerolog().With().Str("trace_id", traceID).Logger()
	logger.Info().Msg("Starting kodok daemon")

	if err := d.lifecycle.Start(); err != nil {
		d.setStopped()
		return fmt.Errorf("failed to start lifecycle manager: %w", err)
	}

	if err := d.queue.Start(d.ctx); err != nil {
		return d.failStart(fmt.Errorf("failed to start dispatch queue: %w", err))
	}
	logger.Info().Msg("Dispatch queue started")

	if err := d.sweeper.Start(d.ctx); err != nil {
		return d.failStart(fmt.Errorf("failed to start session sweeper: %w", err))
	}
	logger.Info().Msg("Session sweeper started")

	if d.watcher != nil {
		if err := d.watcher.Start(d.ctx); err != nil {
			logger.Warn().Err(err).Msg("Failed to start questions watcher")
		} else {
			logger.Info().Msg("Questions watcher started")
		}
	}

	if d.config.QOTD.Enabled {
		if err := d.poster.Start(d.ctx); err != nil {
			return d.failStart(fmt.Errorf("failed to start qotd scheduler: %w", err))
		}
	}

	if d.gatewayServer != nil {
		if err := d.gatewayServer.Start(); err != nil {
			return d.failStart(fmt.Errorf("failed to start gateway server: %w", err))
		}
		logger.Info().Str("addr", d.gatewayServer.Addr()).Msg("Gateway server started")
	}

	if d.telegramBot != nil {
		if d.config.Telegram.RegisterCommands {
			if err := d.telegramBot.RegisterCommands(); err != nil {
				logger.Warn().Err(err).Msg("Failed to register bot commands")
			}
		}
		if err := d.telegramBot.Start(d.ctx, d.router); err != nil {
			return d.failStart(fmt.Errorf("failed to start telegram bot: %w", err))
		}
		logger.Info().Str("username", d.telegramBot.Username()).Msg("Telegram bot started")
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.eventLoop.Run(d.ctx)
	}()

	logger.Info().Msg("Daemon started successfully")
	return nil
}

func (d *Daemon) setStopped() {
	d.mu.Lock()
	d.running = false
	d.mu.Unlock()
}

// failStart unwinds a partial start so the caller can exit cleanly.
func (d *Daemon) failStart(err error) error {
	d.logger.Error().Err(err).Msg("Daemon failed to start")
	if stopErr := d.Stop(); stopErr != nil {
		d.logger.Error().Err(stopErr).Msg("Failed to unwind partial start")
	}
	return err
}

// Stop gracefully stops the daemon. Ingress stops first so queued replies
// can drain before the queue is stopped.
func (d *Daemon) Stop() error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon is not running")
	}
	d.running = false
	d.mu.Unlock()

	traceID := tracing.NewTraceID()
	logger := d.logger.GetZerolog().With().Str("trace_id", traceID).Logger()
	logger.Info().Msg("Stopping kodok daemon")

	if d.telegramBot != nil && d.telegramBot.IsRunning() {
		if err := d.telegramBot.Stop(); err != nil {
			logger.Error().Err(err).Msg("Failed to stop telegram bot")
		}
	}

	d.poster.Stop()

	if d.watcher != nil {
		if err := d.watcher.Stop(); err != nil {
			logger.Error().Err(err).Msg("Failed to stop questions watcher")
		}
	}

	if d.sweeper.IsRunning() {
		if err := d.sweeper.Stop(); err != nil {
			logger.Error().Err(err).Msg("Failed to stop session sweeper")
		}
	}

	if d.queue.IsRunning() {
		if !d.queue.WaitForIdle(drainTimeout) {
			logger.Warn().Int("pending", d.queue.Len()).Msg("Dropping undelivered messages on shutdown")
		}
		d.queue.Stop()
	}
	logger.Info().Msg("Dispatch queue stopped")

	if d.gatewayServer != nil {
		if err := d.gatewayServer.Stop(); err != nil {
			logger.Error().Err(err).Msg("Failed to stop gateway server")
		}
	}

	d.cancel()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info().Msg("All goroutines stopped")
	case <-time.After(5 * time.Second):
		logger.Warn().Msg("Timeout waiting for goroutines to stop")
	}

	if err := d.lifecycle.Stop(); err != nil {
		logger.Error().Err(err).Msg("Failed to stop lifecycle manager")
	}

	if err := d.facts.Close(); err != nil {
		logger.Error().Err(err).Msg("Failed to close fact store")
	}

	if d.tracingEnabled {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := tracing.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("Failed to shutdown tracing")
		}
		cancel()
		d.tracingEnabled = false
	}

	if err := observability.GetAuditLogger().Close(); err != nil {
		logger.Error().Err(err).Msg("Failed to close audit logger")
	}

	logger.Info().Msg("Daemon stopped successfully")
	return nil
}

// Handle routes one inbound event, as the Telegram bot does for each update.
func (d *Daemon) Handle(ctx context.Context, ev router.Event) (router.Route, error) {
	return d.router.Handle(ctx, ev)
}

// Status returns the current daemon status
func (d *Daemon) Status() Status {
	d.mu.RLock()
	status := Status{
		Running: d.running,
	}
	if d.running {
		status.Uptime = time.Since(d.startTime)
		status.StartTime = d.startTime
	}
	d.mu.RUnlock()

	status.Sessions = d.store.Len()
	status.QueueDepth = d.queue.Len()
	if d.telegramBot != nil {
		status.Bot = d.telegramBot.Username()
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if pending, _, err := d.facts.QuestionCounts(ctx); err == nil {
		status.PendingQuestions = pending
	}

	return status
}

// Wait blocks until SIGINT or SIGTERM, then stops the daemon
func (d *Daemon) Wait() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	sig := <-sigChan
	d.logger.Info().Str("signal", sig.String()).Msg("Received signal")

	if err := d.Stop(); err != nil {
		d.logger.Error().Err(err).Msg("Failed to stop daemon")
	}
}

// GetConfig returns the daemon configuration
func (d *Daemon) GetConfig() *config.Config {
	return d.config
}

func (d *Daemon) GetLogger() *logger.Logger {
	return d.logger
}

func (d *Daemon) GetSessionStore() *session.Store {
	return d.store
}

func (d *Daemon) GetQueue() *dispatch.Queue {
	return d.queue
}

func (d *Daemon) GetFactStore() *facts.Store {
	return d.facts
}

func (d *Daemon) GetRouter() *router.Router {
	return d.router
}

func (d *Daemon) GetTelegramBot() *telegram.Bot {
	return d.telegramBot
}

func (d *Daemon) GetGatewayServer() *gateway.Server {
	return d.gatewayServer
}
