package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jonboulle/clockwork"
	"github.com/joho/godotenv"

	"warmth/internal/cache"
	"warmth/internal/config"
	"warmth/internal/database"
	"warmth/internal/handlers"
	"warmth/internal/health"
	"warmth/internal/jobs"
	"warmth/internal/logging"
	"warmth/internal/middleware"
	"warmth/internal/services"
	"warmth/pkg/auth"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	// Load .env file (ignore error if file doesn't exist)
	if err := godotenv.Load(); err != nil {
		log.Printf("⚠️  No .env file found or error loading it: %v", err)
	} else {
		log.Println("✅ .env file loaded successfully")
	}

	// Initialize structured logging (JSON in production, text in dev)
	logging.Init()

	log.Println("🚀 Starting Warmth Server...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("❌ Invalid configuration: %v", err)
	}
	log.Printf("📋 Configuration loaded (Port: %s, Model: %s)", cfg.Port, cfg.LLMModel)

	clock := clockwork.NewRealClock()
	healthService := health.NewService(clock, 0, 0)

	// Persistence: MongoDB when configured, otherwise MySQL or SQLite
	var rowStore database.RowStore
	if cfg.MongoURI != "" {
		log.Println("🔗 Connecting to MongoDB...")
		mongoDB, err := database.NewMongoDB(cfg.MongoURI)
		if err != nil {
			log.Fatalf("❌ Failed to connect to MongoDB: %v", err)
		}
		defer mongoDB.Close(context.Background())

		if err := mongoDB.Initialize(context.Background()); err != nil {
			log.Printf("⚠️ Failed to ensure MongoDB indexes: %v", err)
		}
		rowStore = database.NewMongoRowStore(mongoDB)
		healthService.Register(health.ComponentStore, &health.PingCheck{Name: health.ComponentStore, Ping: mongoDB.Ping})
	} else {
		db, err := database.New(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("❌ Failed to connect to database: %v", err)
		}
		defer db.Close()

		if err := db.Initialize(); err != nil {
			log.Fatalf("❌ Failed to initialize database: %v", err)
		}
		rowStore = database.NewSQLRowStore(db)
		healthService.Register(health.ComponentStore, &health.PingCheck{Name: health.ComponentStore, Ping: db.PingContext})
	}
	rowStore = database.WithTimeout(rowStore, cfg.PersistenceTimeout)

	// Cache: Redis is optional, the in-process tier always works
	var backend cache.Backend
	if cfg.RedisURL != "" {
		log.Println("🔗 Connecting to Redis...")
		redisBackend, err := cache.NewRedisBackend(cfg.RedisURL)
		if err != nil {
			log.Printf("⚠️ Failed to connect to Redis: %v (using in-memory cache)", err)
		} else {
			defer redisBackend.Close()
			backend = redisBackend
			healthService.Register(health.ComponentCache, &health.PingCheck{Name: health.ComponentCache, Ping: redisBackend.Ping})
		}
	} else {
		log.Println("⚠️ REDIS_URL not set - using in-memory cache only")
	}
	cacheStore := cache.NewStore(backend, clock, cache.Config{
		Prefix:        cfg.CachePrefix,
		ProbeTimeout:  cfg.CacheProbeTimeout,
		RetryInterval: cfg.CacheRetryInterval,
	})

	// Inference clients share one endpoint; sentiment runs cooler with JSON output
	chatClient := services.NewOpenAIChatClient(services.LLMConfig{
		BaseURL:     cfg.LLMBaseURL,
		APIKey:      cfg.LLMAPIKey,
		Model:       cfg.LLMModel,
		Timeout:     cfg.LLMTimeout,
		Temperature: 0.7,
	}, healthService)
	sentimentClient := chatClient.Derive(health.ComponentSentiment, 0.3, 150, true)
	healthService.Register(health.ComponentLLM, &health.InferenceCheck{
		Name:    health.ComponentLLM,
		BaseURL: cfg.LLMBaseURL,
		APIKey:  cfg.LLMAPIKey,
		Client:  &http.Client{Timeout: 15 * time.Second},
	})

	// Core services
	facts := services.NewFactService(rowStore, cacheStore, clock)
	retriever := services.NewRetriever(facts, cacheStore)
	mood := services.NewMoodTracker(rowStore, cacheStore, services.NewLLMSentimentAnalyzer(sentimentClient), clock, cfg.MoodTrendWindow, cfg.CheckinWindow)
	journals := services.NewJournalService(chatClient, rowStore, clock)
	extractor := services.NewFactExtractor(chatClient, clock, services.ExtractorConfig{
		Enabled:          cfg.AutoExtraction,
		DailyLimit:       cfg.ExtractionDailyLimit,
		MemorizeCooldown: cfg.MemorizeCooldown,
	})
	history := services.NewHistoryStore(clock)
	pool := services.NewWorkerPool(cfg.HeavyTaskWorkers, cfg.TaskQueueDepth)

	prefs := services.NewPreferenceService(rowStore, cacheStore, clock)

	companion := services.NewCompanionService(services.CompanionDeps{
		Client:    chatClient,
		Store:     rowStore,
		Mood:      mood,
		Retriever: retriever,
		Facts:     facts,
		Extractor: extractor,
		Journals:  journals,
		Prefs:     prefs,
		History:   history,
		Pool:      pool,
		Clock:     clock,
	}, services.CompanionConfig{MaxHistoryTokens: cfg.MaxHistoryTokens})

	idleScheduler := services.NewIdleScheduler(clock, cfg.IdleWindow, pool, companion.RunIdleJob)
	idleScheduler.SetEnabled(cfg.AutoExtraction)
	companion.AttachScheduler(idleScheduler)
	log.Printf("✅ Companion initialized (idle window: %v, auto extraction: %v)", cfg.IdleWindow, cfg.AutoExtraction)

	// The extraction toggle follows edits to CONFIG_FILE; everything else needs a restart
	watchCtx, stopWatching := context.WithCancel(context.Background())
	defer stopWatching()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		err := config.Watch(watchCtx, path, func(updated *config.Config) {
			if updated.AutoExtraction != extractor.Enabled() {
				companion.SetExtractionEnabled(updated.AutoExtraction)
			}
		})
		if err != nil {
			log.Printf("⚠️  Config hot-reload disabled: %v", err)
		}
	}

	// Background jobs
	jobScheduler, err := jobs.NewJobScheduler(clock)
	if err != nil {
		log.Fatalf("❌ Failed to create job scheduler: %v", err)
	}
	registerJob(jobScheduler, "history-eviction", 15*time.Minute, jobs.NewHistoryEvictionJob(history, idleScheduler, cfg.HistoryHorizon))
	registerJob(jobScheduler, "checkin-scan", time.Hour, jobs.NewCheckinScanJob(mood, history, companion, nil))
	registerJob(jobScheduler, "health-check", time.Minute, jobs.NewHealthCheckJob(cacheStore, healthService))
	registerJob(jobScheduler, "retention-cleanup", 24*time.Hour, jobs.NewRetentionCleanupJob(rowStore, clock, cfg.MessageRetention))
	jobScheduler.Start()

	// Auth
	authConfig := middleware.AuthConfig{
		DefaultUserID: cfg.DefaultUserID,
		Production:    cfg.IsProduction(),
	}
	if cfg.EnableAuth {
		jwtAuth, err := auth.NewLocalJWTAuth(cfg.JWTSecret, 0)
		if err != nil {
			log.Fatalf("❌ Failed to initialize JWT auth: %v", err)
		}
		authConfig.JWT = jwtAuth
		log.Println("🔐 JWT authentication enabled")
	}

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		AppName:      "Warmth v1.0",
		ReadTimeout:  120 * time.Second, // local models can take a while to cold start
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
		BodyLimit:    1 * 1024 * 1024,
	})

	// Middleware
	app.Use(recover.New())
	app.Use(logger.New())

	// Prometheus metrics middleware
	prometheus := fiberprometheus.New("warmth")
	prometheus.RegisterAt(app, "/metrics")
	app.Use(prometheus.Middleware)
	log.Println("📊 Prometheus metrics endpoint enabled at /metrics")

	allowedOrigins := os.Getenv("ALLOWED_ORIGINS")
	if allowedOrigins == "" {
		allowedOrigins = "http://localhost:5173,http://localhost:3000"
		log.Println("⚠️  ALLOWED_ORIGINS not set, using development defaults")
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders:     "Origin,Content-Type,Accept,Authorization",
		AllowCredentials: !strings.Contains(allowedOrigins, "*"),
	}))

	rateLimitConfig := middleware.NewRateLimitConfig(cfg.RateLimitGlobal, cfg.RateLimitChat)
	log.Printf("🛡️  [RATE-LIMIT] Loaded config: Global=%d/min, Chat=%d/min", rateLimitConfig.GlobalAPIMax, rateLimitConfig.ChatMax)
	app.Use("/api", middleware.GlobalAPIRateLimiter(rateLimitConfig))

	routes := &handlers.Handlers{
		Health:   handlers.NewHealthHandler(healthService, cacheStore, jobScheduler),
		Chat:     handlers.NewChatHandler(companion, 2*cfg.LLMTimeout),
		Mood:     handlers.NewMoodHandler(mood),
		Memory:   handlers.NewMemoryHandler(facts, retriever, companion),
		Journals: handlers.NewJournalHandler(journals),
		Prefs:    handlers.NewPreferencesHandler(prefs),
		Data:     handlers.NewDataHandler(services.NewUserDataService(companion, cacheStore)),
		ChatWS:   handlers.NewChatWSHandler(companion, 2*cfg.LLMTimeout, strings.Split(allowedOrigins, ",")),
	}
	routes.Register(app, middleware.LocalAuthMiddleware(authConfig), middleware.ChatRateLimiter(rateLimitConfig))

	log.Printf("✅ Server ready on port %s", cfg.Port)
	log.Printf("📡 Health check: http://localhost:%s/health", cfg.Port)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	err = serveUntilSignal(sigChan,
		func() error { return app.Listen(":" + cfg.Port) },
		func() {
			log.Println("\n🛑 Shutting down server...")
			stopWatching()

			// Stop accepting requests first so no new idle timers are armed
			if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
				log.Printf("⚠️ Error shutting down server: %v", err)
			}
		},
		func() {
			if err := jobScheduler.Stop(); err != nil {
				log.Printf("⚠️ Error stopping job scheduler: %v", err)
			}
			idleScheduler.Stop()

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			pool.Stop(ctx)
			log.Println("✅ Background work drained")
		},
	)
	if err != nil {
		log.Fatalf("❌ Failed to start server: %v", err)
	}
	log.Println("👋 Server stopped")
}

// serveUntilSignal runs listen until a signal arrives, then calls shutdown and drain in order.
// listen returns as soon as shutdown stops the server, so the drain is awaited before returning.
func serveUntilSignal(signals <-chan os.Signal, listen func() error, shutdown, drain func()) error {
	done := make(chan struct{})
	go func() {
		defer close(done)
		<-signals
		shutdown()
		drain()
	}()

	if err := listen(); err != nil {
		return err
	}
	<-done
	return nil
}

func registerJob(scheduler *jobs.JobScheduler, name string, interval time.Duration, job jobs.Job) {
	if err := scheduler.Register(name, interval, job); err != nil {
		log.Fatalf("❌ Failed to register job %s: %v", name, err)
	}
}
