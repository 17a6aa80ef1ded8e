// Package server builds the application's dependencies from configuration and
// runs the long-lived service.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/JakeFAU/pulseflow/internal/alerts"
	"github.com/JakeFAU/pulseflow/internal/api"
	"github.com/JakeFAU/pulseflow/internal/archive"
	gcsarchive "github.com/JakeFAU/pulseflow/internal/archive/gcs"
	localarchive "github.com/JakeFAU/pulseflow/internal/archive/local"
	memoryarchive "github.com/JakeFAU/pulseflow/internal/archive/memory"
	"github.com/JakeFAU/pulseflow/internal/changes"
	"github.com/JakeFAU/pulseflow/internal/clock/system"
	"github.com/JakeFAU/pulseflow/internal/config"
	"github.com/JakeFAU/pulseflow/internal/dispatcher"
	collyfetcher "github.com/JakeFAU/pulseflow/internal/fetcher/colly"
	headlessfetcher "github.com/JakeFAU/pulseflow/internal/fetcher/headless"
	"github.com/JakeFAU/pulseflow/internal/hash/sha256"
	"github.com/JakeFAU/pulseflow/internal/headless/detector"
	"github.com/JakeFAU/pulseflow/internal/id/uuid"
	"github.com/JakeFAU/pulseflow/internal/lease"
	"github.com/JakeFAU/pulseflow/internal/logging"
	"github.com/JakeFAU/pulseflow/internal/metrics"
	"github.com/JakeFAU/pulseflow/internal/pipeline"
	"github.com/JakeFAU/pulseflow/internal/publisher"
	memorypublisher "github.com/JakeFAU/pulseflow/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/pulseflow/internal/publisher/pubsub"
	"github.com/JakeFAU/pulseflow/internal/queue"
	queueMemory "github.com/JakeFAU/pulseflow/internal/queue/memory"
	natsqueue "github.com/JakeFAU/pulseflow/internal/queue/nats"
	"github.com/JakeFAU/pulseflow/internal/ratelimit"
	"github.com/JakeFAU/pulseflow/internal/robots"
	"github.com/JakeFAU/pulseflow/internal/scheduler"
	"github.com/JakeFAU/pulseflow/internal/scraper"
	memoryStorage "github.com/JakeFAU/pulseflow/internal/storage/memory"
	pgstore "github.com/JakeFAU/pulseflow/internal/storage/postgres"
	"github.com/JakeFAU/pulseflow/internal/store"
	"github.com/JakeFAU/pulseflow/internal/summarize"
)

// App contains the application's dependencies.
type App struct {
	cfg       config.Config
	logger    *zap.Logger
	clock     *system.Clock
	repo      store.Repository
	pg        *pgstore.Repository
	redis     redis.UniversalClient
	renderer  *headlessfetcher.Renderer
	registry  *scraper.Registry
	executor  *scraper.Executor
	pipeline  *pipeline.Pipeline
	queue     queue.Queue
	dispatch  *dispatcher.Dispatcher
	scheduler *scheduler.Scheduler
	apiServer *api.Server
	closers   []namedCloser
}

type namedCloser struct {
	name  string
	close func() error
}

// Build creates the application's dependencies. The caller owns the logger.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	app := &App{cfg: cfg, logger: logging.OrNop(logger), clock: system.New()}
	app.logger.Info("building application dependencies")
	metrics.Init()

	if err := app.setupRepository(ctx); err != nil {
		app.closeAll()
		return nil, err
	}
	if err := app.setupScraping(); err != nil {
		app.closeAll()
		return nil, err
	}
	pub, err := app.setupPublisher(ctx)
	if err != nil {
		app.closeAll()
		return nil, err
	}
	archiveStore, err := app.setupArchive(ctx)
	if err != nil {
		app.closeAll()
		return nil, err
	}

	app.pipeline, err = pipeline.New(pipeline.Deps{
		Store:      app.repo,
		Resolver:   app.registry,
		Executor:   app.executor,
		Summarizer: app.setupSummarizer(),
		Alerts:     app.setupAlerts(),
		Publisher:  pub,
		Archive:    archiveStore,
		IDs:        uuid.New(),
		Clock:      app.clock,
		Hasher:     sha256.New(),
		Logger:     app.logger,
	}, pipeline.Config{
		Changes: changes.Options{
			MinNewItems:    cfg.Alerts.MinNewItems,
			DetectRemovals: cfg.Alerts.DetectRemovals,
			DetectUpdates:  cfg.Alerts.DetectUpdates,
		},
		MaxSummaryLength: cfg.LLM.MaxSummaryLength,
		SummaryRetries:   cfg.LLM.MaxRetries,
	})
	if err != nil {
		app.closeAll()
		return nil, fmt.Errorf("pipeline init failed: %w", err)
	}

	if err := app.setupQueue(); err != nil {
		app.closeAll()
		return nil, err
	}
	app.dispatch = dispatcher.New(app.queue, app.pipeline, cfg.Scheduler.Workers, app.logger,
		dispatcher.WithLease(app.setupLease()))
	app.scheduler = scheduler.New(app.repo, app.dispatch, app.clock, cfg.SchedulerTick(), app.logger)

	deps := api.Deps{
		Records:  app.repo,
		IDs:      uuid.New(),
		Enqueuer: app.dispatch,
		Resolver: app.registry,
		Executor: app.executor,
		Sweeper:  app.scheduler,
		Clock:    app.clock,
	}
	if app.pg != nil {
		deps.Ready = app.pg
	}
	app.apiServer = api.NewServer(deps, cfg, app.logger)
	return app, nil
}

// Run starts the dispatcher, the scheduler and the HTTP server, and blocks
// until ctx is canceled.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := context.WithCancel(ctx)
	defer stop()
	a.logger.Info("application started")

	dispatchDone := make(chan struct{})
	go func() {
		defer close(dispatchDone)
		a.logger.Info("dispatcher started", zap.Int("workers", a.cfg.Scheduler.Workers))
		a.dispatch.Run(ctx)
	}()

	if a.cfg.Scheduler.Enabled {
		go func() {
			a.logger.Info("scheduler started", zap.Duration("tick", a.cfg.SchedulerTick()))
			a.scheduler.Run(ctx)
		}()
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	a.queue.Close()
	select {
	case <-dispatchDone:
	case <-shutdownCtx.Done():
		a.logger.Warn("workers did not stop before shutdown deadline")
	}
	return nil
}

// RunSignal executes the pipeline for one signal in the calling goroutine.
func (a *App) RunSignal(ctx context.Context, signalID string, dryRun bool) (pipeline.Outcome, error) {
	out, err := a.pipeline.Run(ctx, pipeline.Request{SignalID: signalID, DryRun: dryRun})
	if err != nil {
		return out, fmt.Errorf("run signal %s: %w", signalID, err)
	}
	return out, nil
}

// Preview scrapes rawURL without storing anything.
func (a *App) Preview(ctx context.Context, rawURL string, strategy scraper.Strategy, selector string, dryRun bool) (scraper.Result, error) {
	provider, err := a.registry.ForSignal(strategy, rawURL)
	if err != nil {
		return scraper.Result{}, fmt.Errorf("resolve provider: %w", err)
	}
	return a.executor.Execute(ctx, provider, scraper.Options{URL: rawURL, DryRun: dryRun, Selector: selector})
}

// Sweep runs one scheduler pass. With the in-memory queue there are no
// workers outside this process, so due signals run inline; otherwise they
// are enqueued for the serving workers under the shared run lease.
func (a *App) Sweep(ctx context.Context, dryRun bool) (int, error) {
	var target scheduler.Enqueuer = dryRunEnqueuer{next: a.dispatch, dryRun: dryRun}
	if a.cfg.Queue.Backend == "memory" {
		target = inlineEnqueuer{app: a, dryRun: dryRun}
	}
	n, err := scheduler.New(a.repo, target, a.clock, a.cfg.SchedulerTick(), a.logger).Sweep(ctx)
	if err != nil {
		return n, fmt.Errorf("sweep: %w", err)
	}
	return n, nil
}

type dryRunEnqueuer struct {
	next   scheduler.Enqueuer
	dryRun bool
}

func (e dryRunEnqueuer) Enqueue(ctx context.Context, req queue.Request) error {
	req.DryRun = e.dryRun
	return e.next.Enqueue(ctx, req)
}

type inlineEnqueuer struct {
	app    *App
	dryRun bool
}

func (e inlineEnqueuer) Enqueue(ctx context.Context, req queue.Request) error {
	out, err := e.app.RunSignal(ctx, req.SignalID, e.dryRun)
	if err != nil {
		return err
	}
	e.app.logger.Info("signal processed",
		zap.String("signal_id", req.SignalID),
		zap.String("status", string(out.Status)),
		zap.Int("items", out.ItemCount),
	)
	return nil
}

// Repository exposes the configured repository, mainly for seeding.
func (a *App) Repository() store.Repository {
	return a.repo
}

// Close gracefully shuts down the application.
func (a *App) Close() {
	if a.queue != nil {
		a.queue.Close()
	}
	a.closeAll()
	a.logger.Info("shutdown complete")
}

func (a *App) closeAll() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.close(); err != nil {
			a.logger.Warn("close failed", zap.String("component", c.name), zap.Error(err))
		}
	}
	a.closers = nil
}

func (a *App) onClose(name string, fn func() error) {
	a.closers = append(a.closers, namedCloser{name: name, close: fn})
}

func (a *App) setupRepository(ctx context.Context) error {
	switch a.cfg.DB.Driver {
	case "postgres":
		repo, err := pgstore.New(ctx, pgstore.Config{
			DSN:      a.cfg.DB.DSN,
			MaxConns: int32(a.cfg.DB.MaxOpenConns), //nolint:gosec // bounded by config validation
			MinConns: int32(a.cfg.DB.MinConns),     //nolint:gosec // bounded by config validation
		})
		if err != nil {
			return fmt.Errorf("postgres init failed: %w", err)
		}
		a.onClose("postgres", repo.Close)
		if err := repo.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("postgres schema: %w", err)
		}
		a.pg = repo
		a.repo = repo
		a.logger.Info("using postgres repository")
	default:
		a.repo = memoryStorage.NewRepository()
		a.logger.Info("using in-memory repository")
	}
	return nil
}

func (a *App) setupScraping() error {
	var cache robots.Cache
	switch a.cfg.RobotsCache.Backend {
	case "redis":
		a.redis = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    []string{a.cfg.RobotsCache.RedisAddr},
			Password: a.cfg.RobotsCache.RedisPassword,
			DB:       a.cfg.RobotsCache.RedisDB,
		})
		a.onClose("redis", a.redis.Close)
		cache = robots.NewRedisCache(a.redis)
		a.logger.Info("using redis robots cache", zap.String("addr", a.cfg.RobotsCache.RedisAddr))
	default:
		cache = robots.NewMemoryCache()
	}
	checker := robots.NewChecker(robots.Options{
		UserAgent: a.cfg.Scraper.UserAgent,
		Timeout:   time.Duration(a.cfg.Scraper.RobotsTimeoutSeconds) * time.Second,
		TTL:       a.cfg.RobotsTTL(),
		Cache:     cache,
		Logger:    a.logger,
	})

	fetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent: a.cfg.Scraper.UserAgent,
		Timeout:   a.cfg.HTTPTimeout(),
	})
	a.logger.Info("using colly fetcher", zap.String("user_agent", a.cfg.Scraper.UserAgent))

	providerCfg := scraper.ProviderConfig{
		RedditHost:    a.cfg.Scraper.RedditHost,
		HackerNewsAPI: a.cfg.Scraper.HackerNewsAPI,
		Logger:        a.logger,
	}
	if h := a.cfg.Scraper.Headless; h.Enabled {
		renderer, err := headlessfetcher.NewChromedp(headlessfetcher.Config{
			MaxParallel:       h.MaxParallel,
			UserAgent:         a.cfg.Scraper.UserAgent,
			NavigationTimeout: time.Duration(h.NavTimeoutSec) * time.Second,
		})
		if err != nil {
			a.logger.Warn("headless renderer init failed; shell pages keep their static body", zap.Error(err))
			providerCfg.Renderer = headlessfetcher.NewNoop()
			providerCfg.Detector = detector.NewHeuristic(h.PromotionThresh)
		} else {
			a.renderer = renderer
			a.onClose("headless", func() error { renderer.Close(); return nil })
			providerCfg.Renderer = renderer
			providerCfg.Detector = detector.NewHeuristic(h.PromotionThresh)
			a.logger.Info("using headless renderer", zap.Int("max_parallel", h.MaxParallel))
		}
	}

	a.registry = scraper.NewDefaultRegistry(fetcher, providerCfg)
	a.executor = scraper.NewExecutor(checker, ratelimit.New(),
		scraper.WithBlockedDomains(a.cfg.Scraper.BlockedDomains),
		scraper.WithDefaultDelay(a.cfg.DefaultDelay()),
		scraper.WithMaxRetries(a.cfg.Scraper.MaxRetries),
		scraper.WithLogger(a.logger),
	)
	return nil
}

func (a *App) setupSummarizer() summarize.Summarizer {
	if !a.cfg.LLM.Enabled {
		a.logger.Info("summarization disabled")
		return nil
	}
	gen := summarize.NewOpenAI(summarize.OpenAIConfig{
		APIKey:      a.cfg.LLM.APIKey,
		BaseURL:     a.cfg.LLM.BaseURL,
		Model:       a.cfg.LLM.Model,
		MaxTokens:   a.cfg.LLM.MaxTokens,
		Temperature: a.cfg.LLM.Temperature,
	})
	if !gen.Available() {
		a.logger.Warn("llm enabled without api key; summaries will be skipped")
	}
	a.logger.Info("using openai-compatible summarizer", zap.String("model", gen.Model()))
	return summarize.New(gen, summarize.WithLogger(a.logger))
}

func (a *App) setupAlerts() map[store.Channel]alerts.Provider {
	opts := []alerts.Option{
		alerts.WithMaxRetries(a.cfg.Alerts.MaxRetries),
		alerts.WithLogger(a.logger),
	}
	var sender alerts.EmailSender
	if a.cfg.Alerts.ResendAPIKey != "" {
		rs, err := alerts.NewResendSender(a.cfg.Alerts.ResendAPIKey, a.cfg.Alerts.EmailFrom)
		if err != nil {
			a.logger.Warn("email sender init failed", zap.Error(err))
		} else {
			sender = rs
		}
	} else {
		a.logger.Warn("no resend api key configured; email alerts will fail")
	}
	return map[store.Channel]alerts.Provider{
		store.ChannelEmail:   alerts.NewEmailProvider(sender, opts...),
		store.ChannelWebhook: alerts.NewWebhookProvider(alerts.WebhookConfig{Timeout: a.cfg.WebhookTimeout()}, opts...),
	}
}

func (a *App) setupPublisher(ctx context.Context) (publisher.Publisher, error) {
	switch a.cfg.Events.Backend {
	case "pubsub":
		pub, err := gcppublisher.Dial(ctx, a.cfg.Events.ProjectID, a.cfg.Events.TopicName)
		if err != nil {
			return nil, fmt.Errorf("pubsub client init failed: %w", err)
		}
		a.onClose("pubsub", pub.Close)
		a.logger.Info("Pub/Sub publisher initialized",
			zap.String("project", a.cfg.Events.ProjectID),
			zap.String("topic", a.cfg.Events.TopicName),
		)
		return pub, nil
	case "memory":
		return memorypublisher.New(), nil
	default:
		a.logger.Info("pulse events disabled")
		return nil, nil
	}
}

func (a *App) setupArchive(ctx context.Context) (archive.Store, error) {
	switch a.cfg.Archive.Backend {
	case "gcs":
		s, err := gcsarchive.Dial(ctx, gcsarchive.Config{Bucket: a.cfg.Archive.Bucket, Prefix: a.cfg.Archive.Prefix})
		if err != nil {
			return nil, fmt.Errorf("gcs archive init failed: %w", err)
		}
		a.onClose("gcs", s.Close)
		a.logger.Info("using GCS archive", zap.String("bucket", a.cfg.Archive.Bucket))
		return s, nil
	case "local":
		s, err := localarchive.New(localarchive.Config{BaseDir: a.cfg.Archive.BaseDir, Prefix: a.cfg.Archive.Prefix})
		if err != nil {
			return nil, fmt.Errorf("local archive init failed: %w", err)
		}
		a.logger.Info("using local archive", zap.String("path", a.cfg.Archive.BaseDir))
		return s, nil
	case "memory":
		return memoryarchive.New(a.cfg.Archive.Prefix), nil
	default:
		return nil, nil
	}
}

func (a *App) setupLease() dispatcher.Lease {
	if a.cfg.Queue.Lease != "redis" {
		return lease.NewMemory()
	}
	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    []string{a.cfg.Queue.RedisAddr},
		Password: a.cfg.Queue.RedisPassword,
		DB:       a.cfg.Queue.RedisDB,
	})
	a.onClose("lease-redis", client.Close)
	a.logger.Info("using redis run lease",
		zap.String("addr", a.cfg.Queue.RedisAddr),
		zap.Duration("ttl", a.cfg.LeaseTTL()),
	)
	return lease.NewRedis(client, a.cfg.LeaseTTL())
}

func (a *App) setupQueue() error {
	switch a.cfg.Queue.Backend {
	case "nats":
		q, err := natsqueue.Connect(natsqueue.Config{
			URL:     a.cfg.Queue.NATSURL,
			Stream:  a.cfg.Queue.NATSStream,
			Subject: a.cfg.Queue.NATSSubject,
			Durable: a.cfg.Queue.NATSDurable,
		}, a.logger)
		if err != nil {
			return fmt.Errorf("nats queue init failed: %w", err)
		}
		a.queue = q
		a.logger.Info("using nats queue", zap.String("stream", a.cfg.Queue.NATSStream))
	default:
		a.queue = queueMemory.NewQueue(a.cfg.Queue.Depth)
	}
	return nil
}
