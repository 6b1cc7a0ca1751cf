package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sjsage522/dealalert/api"
	"sjsage522/dealalert/config"
	"sjsage522/dealalert/helpers"
	"sjsage522/dealalert/internal/crawler"
	"sjsage522/dealalert/internal/dedup"
	"sjsage522/dealalert/logger"
	"sjsage522/dealalert/services/cache"
	"sjsage522/dealalert/services/heartbeat"
	"sjsage522/dealalert/services/image"
	"sjsage522/dealalert/services/messaging"
	"sjsage522/dealalert/services/notifier"
	"sjsage522/dealalert/services/worker"

	"github.com/joho/godotenv"
)

const startMessage = "Deal alert worker started - monitoring for offers!"

func main() {
	// Load environment variables
	godotenv.Load()

	// Initialize logger first
	logger.Init()
	log := logger.Default

	// Load and validate configuration
	cfg := config.LoadConfig()
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	log.Info().
		Str("environment", cfg.Environment).
		Str("target", cfg.TargetURL).
		Dur("scrape_interval", cfg.ScrapeInterval).
		Int("min_discount", cfg.MinDiscountPercentage).
		Strs("keywords", cfg.ProductKeywords).
		Int("destinations", len(cfg.Destinations)).
		Msg("Starting application")

	// Set up context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Set up signal handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	store := config.NewRuntimeStore(cfg.RuntimeDefaults())
	logger.SetDebug(cfg.DebugMode)
	store.OnChange(func(old, updated config.RuntimeConfig) {
		if old.DebugMode != updated.DebugMode {
			logger.SetDebug(updated.DebugMode)
		}
	})

	// Initialize services
	services, err := initializeServices(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize services")
	}
	defer services.Cleanup()

	dispatcher := notifier.NewDispatcher(
		services.Messaging,
		image.NewFetcher(cfg.ImageMaxBytes, cfg.ImageTimeout),
		notifier.Options{CurrencySymbol: cfg.CurrencySymbol, SendDelay: cfg.SendDelay},
	)

	if cfg.NotifyOnStart {
		sent := dispatcher.Broadcast(ctx, cfg.Destinations, startMessage)
		log.Info().Int("delivered", sent).Msg("Sent start notification")
	}

	dedupStore := dedup.NewStore()

	opts := worker.DefaultOptions()
	opts.DedupRetention = cfg.DedupRetention
	opts.RecycleEvery = cfg.RecycleEvery
	opts.DedupSweepEvery = cfg.DedupSweepEvery
	opts.Production = cfg.IsProduction()

	w := worker.NewWorker(
		newLauncher(cfg),
		crawler.NewExtractor(crawler.DefaultSelectors()),
		dispatcher,
		store,
		dedupStore,
		services.Cache,
		helpers.NewLogger(cfg.ErrorLogFile),
		opts,
	)

	server := api.NewServer(api.Options{
		Port:           cfg.ServerPort,
		AllowedOrigins: cfg.AllowedOrigins,
		RateLimit:      cfg.APIRateLimit,
	}, api.NewHandlers(store, w, dedupStore))

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- server.Start()
	}()

	if cfg.HeartbeatCron != "" {
		hb, err := heartbeat.New(cfg.HeartbeatCron, w, dedupStore)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to schedule heartbeat")
		}
		hb.Start()
		defer hb.Stop()
	}

	// Start worker in a goroutine
	workerDone := make(chan error, 1)
	go func() {
		log.Info().Msg("Starting deal alert worker")
		workerDone <- w.Start(ctx)
	}()

	exitCode := 0

	// Wait for shutdown signal, worker exit or server failure
	select {
	case sig := <-sigChan:
		log.Info().
			Str("signal", sig.String()).
			Msg("Received shutdown signal")
		cancel()
		<-workerDone
	case err := <-workerDone:
		if err != nil {
			log.Error().Err(err).Msg("Worker exited with error")
			exitCode = 1
		} else {
			log.Info().Msg("Worker exited normally")
		}
	case err := <-serverDone:
		if err != nil {
			log.Error().Err(err).Msg("HTTP server failed")
			exitCode = 1
		}
		cancel()
		<-workerDone
	}

	// Graceful shutdown
	log.Info().Msg("Shutting down gracefully...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("HTTP server shutdown failed")
	}

	if exitCode != 0 {
		services.Cleanup()
		os.Exit(exitCode)
	}
}

// Services holds all the initialized services
type Services struct {
	Cache     cache.CacheService
	Messaging messaging.Client
}

// Cleanup cleans up all services
func (s *Services) Cleanup() {
	if s.Messaging != nil {
		s.Messaging.Close()
	}
}

// initializeServices initializes all required services
func initializeServices(ctx context.Context, cfg *config.Config) (*Services, error) {
	services := &Services{}

	// Initialize cache service
	if cfg.MemcacheAddr != "" {
		mc := cache.NewMemcacheService(cfg.MemcacheAddr)
		if err := mc.Ping(); err != nil {
			logger.Warn("Memcache at %s unreachable, using in-memory cache: %v", cfg.MemcacheAddr, err)
			services.Cache = cache.NewMemoryService()
		} else {
			services.Cache = mc
			logger.Info("Connected to Memcache at %s", cfg.MemcacheAddr)
		}
	} else {
		services.Cache = cache.NewMemoryService()
	}

	// Initialize messaging transport
	var client messaging.Client
	switch cfg.MessagingDriver {
	case config.MessagingDriverLog:
		client = messaging.NewLogClient()
	default:
		client = messaging.NewRedisClient(messaging.RedisOptions{
			Addr:            cfg.RedisAddr,
			DB:              cfg.RedisDB,
			Password:        cfg.RedisPassword,
			StreamPrefix:    cfg.RedisStreamPrefix,
			StreamMaxLength: cfg.RedisStreamMaxLength,
		})
	}
	services.Messaging = client

	if err := client.Start(ctx); err != nil {
		return services, err
	}
	if err := messaging.WaitReady(ctx, client); err != nil {
		return services, err
	}
	logger.Info("Messaging transport %s ready", cfg.MessagingDriver)

	go watchTransport(ctx, client)

	return services, nil
}

// watchTransport logs transport events after the initial ready
func watchTransport(ctx context.Context, client messaging.Client) {
	log := logger.ForMessaging()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-client.Events():
			if !ok {
				return
			}
			switch ev.Type {
			case messaging.EventDisconnected:
				log.Warn().Err(ev.Err).Msg("Messaging transport disconnected")
			case messaging.EventReady:
				log.Info().Msg("Messaging transport ready")
			case messaging.EventAuthFailure:
				log.Error().Err(ev.Err).Msg("Messaging authentication failed")
			case messaging.EventMessage:
				log.Debug().Str("from", ev.From).Str("body", ev.Body).Msg("Received message")
			}
		}
	}
}

func newLauncher(cfg *config.Config) crawler.Launcher {
	if cfg.BrowserDriver == config.BrowserDriverHTTP {
		return crawler.HTTPLauncher()
	}
	return crawler.RodLauncher(crawler.RodOptions{
		Bin:      cfg.BrowserBin,
		Headless: true,
		Proxy:    cfg.BrowserProxy,
	})
}
