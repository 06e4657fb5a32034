// Package main provides the product catalog service.
//
// The service keeps denormalized projections (review aggregates, availability,
// Q&A counts, analytics windows) in sync with upstream services via broker
// events, automates badge assignment through the rule engine, models
// parent/child variations, and runs the asynchronous bulk import pipeline.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"strings"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/aioutlet/product-service/internal/api"
	"github.com/aioutlet/product-service/internal/api/middleware"
	"github.com/aioutlet/product-service/internal/badges"
	"github.com/aioutlet/product-service/internal/bulkimport"
	"github.com/aioutlet/product-service/internal/config"
	"github.com/aioutlet/product-service/internal/events"
	"github.com/aioutlet/product-service/internal/projection"
	"github.com/aioutlet/product-service/internal/storage"
	"github.com/aioutlet/product-service/internal/variations"
)

// Version information.
const (
	version = "1.0.0-dev"
	name    = "product-service"
)

func main() {
	versionFlag := flag.Bool("version", false, "show version information")
	flag.Parse()

	if *versionFlag {
		log.Printf("%s v%s\n", name, version)
		os.Exit(0)
	}

	logger := newRootLogger()

	logger.Info("Starting product catalog service",
		slog.String("service", config.GetEnvStr("SERVICE_NAME", name)),
		slog.String("version", config.GetEnvStr("SERVICE_VERSION", version)),
		slog.String("environment", config.GetEnvStr("ENVIRONMENT", "development")),
	)

	// Tracing configuration is parsed and surfaced for the deployment
	// manifests; the exporter itself is wired by the platform sidecar.
	if config.GetEnvBool("ENABLE_TRACING", false) {
		logger.Info("Tracing enabled",
			slog.String("otel_exporter_endpoint", config.GetEnvStr("OTEL_EXPORTER_ENDPOINT", "")),
		)
	}

	serverConfig := api.LoadServerConfig()

	logger.Info("Loaded server configuration",
		slog.String("host", serverConfig.Host),
		slog.Int("port", serverConfig.Port),
		slog.Duration("read_timeout", serverConfig.ReadTimeout),
		slog.Duration("write_timeout", serverConfig.WriteTimeout),
		slog.Duration("shutdown_timeout", serverConfig.ShutdownTimeout),
		slog.String("log_level", serverConfig.LogLevel.String()),
	)

	// Storage: connection, product store, required-index verification.
	storageConfig := storage.LoadConfig()
	if err := storageConfig.Validate(); err != nil {
		logger.Error("Invalid storage configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	dbConn, err := storage.NewConnection(storageConfig)
	if err != nil {
		logger.Error("Failed to connect to database", slog.String("error", err.Error()))
		os.Exit(1)
	}

	defer func() {
		_ = dbConn.Close() // Ensure connection closes on normal shutdown
	}()

	productStore, err := storage.NewProductStore(dbConn, logger,
		storage.WithEventDedup(storageConfig.DedupEnabled, storageConfig.DedupTTL),
		storage.WithCleanupInterval(storageConfig.CleanupInterval),
	)
	if err != nil {
		logger.Error("Failed to create product store", slog.String("error", err.Error()))

		_ = dbConn.Close()
		//nolint:gocritic // Explicit cleanup before os.Exit is intentional (defer won't run)
		os.Exit(1)
	}

	defer func() {
		_ = productStore.Close()
	}()

	logger.Info("Product store initialized",
		slog.String("database_url", storageConfig.MaskDSN()),
		slog.Bool("event_dedup", storageConfig.DedupEnabled),
		slog.Duration("event_dedup_ttl", storageConfig.DedupTTL),
		slog.Int("database_max_open_conns", storageConfig.MaxOpenConns),
		slog.Int("database_max_idle_conns", storageConfig.MaxIdleConns),
	)

	if err := productStore.VerifyIndexes(context.Background()); err != nil {
		logger.Error("Required index verification failed; run the migrator first",
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}

	// Broker: publisher, emitter, router.
	brokerConfig := events.LoadConfig()
	if err := brokerConfig.Validate(); err != nil {
		logger.Error("Invalid broker configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	publisher := events.NewKafkaPublisher(brokerConfig, logger)

	defer func() {
		_ = publisher.Close()
	}()

	emitter := events.NewEmitter(publisher, logger)

	logger.Info("Event publisher initialized",
		slog.String("brokers", strings.Join(brokerConfig.Brokers, ",")),
		slog.String("group_id", brokerConfig.GroupID()),
	)

	// Badge engine: seed rules, start the expiry sweeper.
	badgeConfig := badges.LoadConfigFromEnv()

	badgeEngine := badges.NewEngine(productStore, emitter, logger)

	seedRules, err := badges.LoadRules(badgeConfig.RulesPath)
	if err != nil {
		logger.Error("Failed to load badge rules", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if len(seedRules) > 0 {
		if err := productStore.SeedRules(context.Background(), seedRules); err != nil {
			logger.Error("Failed to seed badge rules", slog.String("error", err.Error()))
			os.Exit(1)
		}

		logger.Info("Badge rules seeded",
			slog.String("path", badgeConfig.RulesPath),
			slog.Int("rules", len(seedRules)),
		)
	}

	sweeper := badges.NewSweeper(badgeEngine, badgeConfig.SweepInterval, logger)

	defer func() {
		_ = sweeper.Close()
	}()

	// Engines over the shared store.
	projectionEngine := projection.NewEngine(productStore, badgeEngine, emitter, logger)
	variationEngine := variations.NewEngine(productStore, emitter, logger)

	importConfig := bulkimport.LoadConfigFromEnv()
	importService := bulkimport.NewService(productStore, emitter, importConfig, logger)
	importWorker := bulkimport.NewWorker(productStore, emitter, importConfig, logger)

	// Router: projection handlers plus the import worker share one consumer
	// group; dropped events are parked in the dead letter log.
	router := events.NewRouter(brokerConfig, productStore, logger)

	routes := projectionEngine.Routes()
	routes = append(routes, importWorker.Routes()...)

	for _, route := range routes {
		if err := router.Register(route); err != nil {
			logger.Error("Failed to register route",
				slog.String("topic", route.Topic),
				slog.String("error", err.Error()),
			)
			os.Exit(1)
		}
	}

	if err := router.Start(context.Background()); err != nil {
		logger.Error("Failed to start event router", slog.String("error", err.Error()))
		os.Exit(1)
	}

	defer func() {
		_ = router.Close()
	}()

	// HTTP surface: rate limiter always on, API key auth opt-in.
	middlewareConfig := middleware.LoadConfig()
	rateLimiter := middleware.NewInMemoryRateLimiter(middlewareConfig)

	var apiKeyStore storage.APIKeyStore

	if config.GetEnvBool("PRODUCT_AUTH_ENABLED", false) {
		apiKeyStore, err = storage.NewPersistentKeyStore(dbConn, logger)
		if err != nil {
			logger.Error("Failed to connect to persistent key store", slog.String("error", err.Error()))
			os.Exit(1)
		}

		logger.Info("Admin authentication enabled",
			slog.String("database_url", storageConfig.MaskDSN()),
		)
	} else {
		logger.Warn("Admin authentication disabled",
			slog.String("security", "Only use in trusted networks (localhost, VPN, internal)"),
			slog.String("note", "Set PRODUCT_AUTH_ENABLED=true to enable API key authentication"),
		)
	}

	server := api.NewServer(serverConfig, api.Dependencies{
		Products:    productStore,
		SizeCharts:  productStore,
		Badges:      badgeEngine,
		Variations:  variationEngine,
		Imports:     importService,
		Emitter:     emitter,
		APIKeyStore: apiKeyStore,
		RateLimiter: rateLimiter,
	})

	// Start blocks until SIGINT/SIGTERM and drains in-flight requests. The
	// deferred closes then stop the router, sweeper, store, and publisher.
	if err := server.Start(); err != nil {
		logger.Error("Server failed to start",
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}

	logger.Info("Product catalog service stopped")
}

// newRootLogger builds the process logger from LOG_LEVEL and LOG_FORMAT.
// Format "console" selects the text handler for local development; anything
// else logs JSON.
func newRootLogger() *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: config.GetEnvLogLevel("LOG_LEVEL", slog.LevelInfo),
	}

	var handler slog.Handler
	if strings.EqualFold(config.GetEnvStr("LOG_FORMAT", "json"), "console") {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
