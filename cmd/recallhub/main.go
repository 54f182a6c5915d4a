package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/recallhub/recallhub/config"
	"github.com/recallhub/recallhub/pkg/api"
	"github.com/recallhub/recallhub/pkg/api/events"
	"github.com/recallhub/recallhub/pkg/api/handlers"
	"github.com/recallhub/recallhub/pkg/eventbus"
	"github.com/recallhub/recallhub/pkg/logger"
	"github.com/recallhub/recallhub/pkg/memory"
	"github.com/recallhub/recallhub/pkg/memory/cache"
	"github.com/recallhub/recallhub/pkg/memory/embedder/mock"
	"github.com/recallhub/recallhub/pkg/memory/embedder/remote"
	badgerstore "github.com/recallhub/recallhub/pkg/memory/store/badger"
	"github.com/recallhub/recallhub/pkg/memory/store/inmemory"
	"github.com/recallhub/recallhub/pkg/metrics"
	"github.com/recallhub/recallhub/pkg/telemetry/tracing"
	"github.com/recallhub/recallhub/pkg/version"
)

var (
	configPath  = flag.String("config", "", "Path to configuration file")
	versionFlag = flag.Bool("version", false, "Print version information")
	helpFlag    = flag.Bool("help", false, "Print help information")

	// CLI overrides
	appName    = flag.String("app-name", "", "Override app name")
	serverPort = flag.Int("port", 0, "Override server port")
	logLevel   = flag.String("log-level", "", "Override log level")
	debugMode  = flag.Bool("debug", false, "Enable debug mode")
)

func main() {
	flag.Parse()

	// Print help
	if *helpFlag {
		printHelp()
		os.Exit(0)
	}

	// Print version
	if *versionFlag {
		printVersion()
		os.Exit(0)
	}

	// Build CLI overrides map
	overrides := buildOverrides()

	// Load configuration
	cfg, err := config.Load(*configPath, overrides)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration:\n%s\n", err)
		os.Exit(1)
	}

	// Initialize logger with configuration
	logCfg := &logger.Config{
		Level:  logger.ParseLevel(cfg.Log.Level),
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	}
	if cfg.App.Debug || *debugMode {
		logCfg.Level = logger.DebugLevel
	}
	log := logger.New(logCfg)
	logger.SetGlobal(log)

	log.Info("Starting Recallhub",
		"version", version.Version,
		"buildTime", version.BuildTime,
		"gitCommit", version.GitCommit,
		"app", cfg.App.Name,
		"environment", cfg.App.Environment,
	)

	log.Debug("Configuration loaded", "config", cfg.String())

	// Create root context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Setup graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Initialize tracing
	if cfg.Tracing.Enabled {
		shutdownTracing, err := tracing.Init(ctx, cfg.Tracing, cfg.App.Name, version.Version)
		if err != nil {
			log.Error("Failed to initialize tracing", "error", err)
			os.Exit(1)
		}
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			if err := shutdownTracing(shutdownCtx); err != nil {
				log.Error("Error shutting down tracing", "error", err)
			}
		}()
		log.Info("Initialized tracing", "endpoint", cfg.Tracing.Endpoint, "sampler", cfg.Tracing.Sampler)
	}

	// Initialize the durable conversation store
	var store memory.Store
	switch cfg.Storage.Type {
	case "badger":
		store, err = badgerstore.New(&badgerstore.Config{
			Path:             cfg.Storage.Badger.Path,
			SyncWrites:       cfg.Storage.Badger.SyncWrites,
			ValueLogFileSize: cfg.Storage.Badger.ValueLogFileSize,
		})
		if err != nil {
			log.Error("Failed to open Badger store", "error", err)
			os.Exit(1)
		}
		log.Info("Initialized Badger store", "path", cfg.Storage.Badger.Path)
	case "memory":
		store = inmemory.New()
		log.Info("Initialized in-memory store")
	default:
		store = inmemory.New()
		log.Warn("Unknown storage type, using in-memory store", "type", cfg.Storage.Type)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error("Error closing store", "error", err)
		}
	}()

	// Initialize the candidate cache
	var candidateCache memory.CandidateCache
	switch cfg.Cache.Type {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Cache.Redis.Address,
			Password: cfg.Cache.Redis.Password,
			DB:       cfg.Cache.Redis.DB,
		})
		candidateCache = cache.NewRedis(client, cfg.Cache.TTL)
		log.Info("Initialized Redis candidate cache", "address", cfg.Cache.Redis.Address)
	default:
		candidateCache, err = cache.NewRistretto(cfg.Cache.MaxEntries, cfg.Cache.TTL)
		if err != nil {
			log.Error("Failed to create Ristretto cache", "error", err)
			os.Exit(1)
		}
		log.Info("Initialized Ristretto candidate cache", "max_entries", cfg.Cache.MaxEntries)
	}
	defer func() {
		if err := candidateCache.Close(); err != nil {
			log.Error("Error closing cache", "error", err)
		}
	}()

	// Initialize the embedder
	var embedder memory.Embedder
	if cfg.Embedding.Enabled {
		switch cfg.Embedding.Provider {
		case "mock":
			embedder = mock.New(cfg.Embedding.Dimensions)
			log.Info("Initialized mock embedder", "dimensions", cfg.Embedding.Dimensions)
		default:
			embedder = remote.New(remote.Config{
				Endpoint:          cfg.Embedding.Endpoint,
				APIKey:            cfg.Embedding.APIKey,
				Model:             cfg.Embedding.Model,
				Dimensions:        cfg.Embedding.Dimensions,
				Timeout:           cfg.Embedding.Timeout,
				RequestsPerSecond: cfg.Embedding.RequestsPerSecond,
			})
			log.Info("Initialized remote embedder",
				"endpoint", cfg.Embedding.Endpoint,
				"model", cfg.Embedding.Model,
				"dimensions", cfg.Embedding.Dimensions,
			)
		}
	} else {
		log.Info("Embeddings disabled, retrieval ranks by recency")
	}

	// Initialize metrics manager
	metricsCfg := metrics.Config{
		Enabled:                 cfg.Metrics.Enabled,
		Port:                    cfg.Metrics.Port,
		Path:                    cfg.Metrics.Path,
		TierDurationBuckets:     metrics.DefaultConfig().TierDurationBuckets,
		EmbeddingLatencyBuckets: metrics.DefaultConfig().EmbeddingLatencyBuckets,
		HTTPDurationBuckets:     metrics.DefaultConfig().HTTPDurationBuckets,
	}
	metricsManager := metrics.NewManager(metricsCfg)

	// Start metrics server if enabled
	if metricsManager.Enabled() {
		go func() {
			log.Info("Starting metrics server", "port", cfg.Metrics.Port, "path", cfg.Metrics.Path)
			if err := metricsManager.StartServer(ctx, cfg.Metrics.Port, cfg.Metrics.Path); err != nil {
				log.Error("Metrics server error", "error", err)
			}
		}()
	}

	// Initialize the memory engine
	engineCfg := memory.EngineConfig{
		RingCapacity: cfg.Memory.RingCapacity,
		Retriever: memory.RetrieverConfig{
			ChatCandidates:      cfg.Memory.ChatCandidates,
			CrossChatCandidates: cfg.Memory.CrossChatCandidates,
			ChatKeep:            cfg.Memory.ChatKeep,
			CrossChatKeep:       cfg.Memory.CrossChatKeep,
			ConversationWindow:  cfg.Memory.ConversationWindow,
			EmbedTimeout:        cfg.Embedding.Timeout,
			TierTimeout:         cfg.Memory.TierTimeout,
			OverallTimeout:      cfg.Memory.OverallTimeout,
		},
		Formatter: memory.FormatterConfig{
			ConversationMessages: cfg.Memory.Formatter.ConversationMessages,
			ChatRecords:          cfg.Memory.Formatter.ChatRecords,
			ChatSnippetLen:       cfg.Memory.Formatter.ChatSnippetLen,
			CrossChatRecords:     cfg.Memory.Formatter.CrossChatRecords,
			CrossChatSnippetLen:  cfg.Memory.Formatter.CrossChatSnippetLen,
		},
	}
	engine := memory.NewEngine(engineCfg, store, embedder, candidateCache, log)
	engine.SetRecorder(metricsManager)

	// Wire the event bus: the engine publishes memory lifecycle events,
	// a consumer relays them to websocket subscribers.
	bus := eventbus.NewMemoryBus()
	publisher, err := eventbus.NewPublisher(nodeID(cfg), bus, eventbus.DefaultRetryConfig(), metricsManager)
	if err != nil {
		log.Error("Failed to create event publisher", "error", err)
		os.Exit(1)
	}
	engine.SetEventSink(eventbus.NewSink(publisher, log))

	broadcaster := events.NewBroadcaster()
	defer broadcaster.Close()
	if err := startEventRelay(ctx, bus, broadcaster, log); err != nil {
		log.Error("Failed to start event relay", "error", err)
		os.Exit(1)
	}

	if err := engine.Start(ctx); err != nil {
		log.Error("Failed to start memory engine", "error", err)
		os.Exit(1)
	}

	// Initialize HTTP server with handlers
	wsHandler := handlers.NewWebSocketHandler(log, handlers.WebSocketConfig{
		AllowedOrigins: cfg.Server.CORS.AllowedOrigins,
	})
	go wsHandler.Run(ctx, broadcaster)
	defer wsHandler.Close()

	apiHandlers := &api.Handlers{
		Memory:  handlers.NewMemoryHandler(engine, log),
		Health:  handlers.NewHealthHandler(engine),
		Events:  wsHandler,
		Metrics: metricsManager,
		Tracing: cfg.Tracing.Enabled,
	}

	httpServer := api.NewHTTPServer(cfg, log, apiHandlers)

	// Start HTTP server in a separate goroutine
	serverErrChan := make(chan error, 1)
	go func() {
		log.Info("Starting HTTP server", "address", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port))
		if err := httpServer.Start(); err != nil {
			serverErrChan <- err
		}
	}()

	log.Info("Recallhub is running",
		"http_port", cfg.Server.Port,
		"metrics_port", cfg.Metrics.Port,
	)
	log.Info("Press Ctrl+C to stop")

	// Wait for shutdown signal or server error
	select {
	case sig := <-sigChan:
		log.Info("Received shutdown signal", "signal", sig)
	case err := <-serverErrChan:
		log.Error("HTTP server error", "error", err)
	case <-ctx.Done():
		log.Info("Context cancelled")
	}

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Shutdown HTTP server first
	log.Info("Shutting down HTTP server")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("Error shutting down HTTP server", "error", err)
	}

	// Stop the memory engine gracefully.
	log.Info("Stopping memory engine")
	if err := engine.Stop(shutdownCtx); err != nil {
		log.Error("Error during engine shutdown", "error", err)
	}

	log.Info("Recallhub stopped gracefully")
}

// startEventRelay subscribes to the memory event stream and forwards
// validated envelopes to the websocket broadcaster.
func startEventRelay(ctx context.Context, bus *eventbus.MemoryBus, broadcaster *events.Broadcaster, log logger.Logger) error {
	schemaRouter := eventbus.NewSchemaRouter()
	if err := eventbus.RegisterMemorySchemas(schemaRouter); err != nil {
		return err
	}
	consumer := eventbus.NewEnvelopeConsumer(schemaRouter)

	sub, err := bus.Subscribe(eventbus.AllSubjects(), 256)
	if err != nil {
		return err
	}

	go func() {
		defer sub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-sub.C():
				if !ok {
					return
				}
				envelope, payload, duplicate, err := consumer.DecodeAndValidate(msg.Payload)
				if err != nil {
					log.Warn("Dropping invalid memory event", "subject", msg.Subject, "error", err)
					continue
				}
				if duplicate {
					continue
				}
				broadcaster.Broadcast(events.Event{
					Type:      "memory." + envelope.EventType,
					Timestamp: envelope.Timestamp,
					Payload:   payload,
				})
			}
		}
	}()

	return nil
}

func nodeID(cfg *config.Config) string {
	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		hostname = "recallhub"
	}
	return fmt.Sprintf("%s-%s", cfg.App.Name, hostname)
}

func buildOverrides() map[string]interface{} {
	overrides := make(map[string]interface{})

	if *appName != "" {
		overrides["app.name"] = *appName
	}
	if *serverPort != 0 {
		overrides["server.port"] = *serverPort
	}
	if *logLevel != "" {
		overrides["log.level"] = *logLevel
	}
	if *debugMode {
		overrides["app.debug"] = true
	}

	return overrides
}

func printVersion() {
	fmt.Printf("Recallhub - Conversation Memory Service\n")
	fmt.Printf("Version:    %s\n", version.Version)
	fmt.Printf("Build Time: %s\n", version.BuildTime)
	fmt.Printf("Git Commit: %s\n", version.GitCommit)
	fmt.Printf("Go Version: %s\n", version.GoVersion)
}

func printHelp() {
	fmt.Printf("Recallhub - Hierarchical conversation memory and context retrieval service\n\n")
	fmt.Printf("Usage: recallhub [options]\n\n")
	fmt.Printf("Options:\n")
	flag.PrintDefaults()
	fmt.Printf("\nExamples:\n")
	fmt.Printf("  recallhub                                   # Run with default config\n")
	fmt.Printf("  recallhub -config config.yaml               # Use specific config file\n")
	fmt.Printf("  recallhub -port 9090 -log-level debug       # Override specific options\n")
	fmt.Printf("  recallhub -version                          # Print version info\n")
}
