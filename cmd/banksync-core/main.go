package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ledgerbridge/banksync-core/internal/adapters/driven/auth"
	"github.com/ledgerbridge/banksync-core/internal/adapters/driven/postgres"
	"github.com/ledgerbridge/banksync-core/internal/adapters/driven/provider"
	redisqueue "github.com/ledgerbridge/banksync-core/internal/adapters/driven/queue/redis"
	redisadapter "github.com/ledgerbridge/banksync-core/internal/adapters/driven/redis"
	httpserver "github.com/ledgerbridge/banksync-core/internal/adapters/driving/http"
	"github.com/ledgerbridge/banksync-core/internal/core/domain"
	"github.com/ledgerbridge/banksync-core/internal/core/ports/driven"
	"github.com/ledgerbridge/banksync-core/internal/core/services"
	"github.com/ledgerbridge/banksync-core/internal/worker"
)

var version = "dev"

func main() {
	// Get run mode from environment (RUN_MODE) or command line arg
	mode := getEnv("RUN_MODE", "all")
	if len(os.Args) > 1 {
		mode = os.Args[1]
	}

	log.Printf("banksync-core %s starting in %s mode", version, mode)

	// Configuration from environment
	port := getEnvInt("PORT", 8080)
	redisURL := getEnv("REDIS_URL", "redis://localhost:6379/0")
	databaseURL := getEnv("DATABASE_URL", "")
	providerBaseURL := getEnv("PROVIDER_BASE_URL", "https://bankaccountdata.gocardless.com")
	providerSecretID := getEnv("PROVIDER_SECRET_ID", "")
	providerSecretKey := getEnv("PROVIDER_SECRET_KEY", "")
	webhookSecret := getEnv("WEBHOOK_SECRET", "development-webhook-secret")
	jwtSecret := getEnv("JWT_SECRET", "development-secret-change-in-production")

	logger := slog.Default()

	// Setup context with cancellation for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("Shutdown signal received, stopping...")
		cancel()
	}()

	// ===== Initialize Redis =====
	log.Println("Connecting to Redis...")
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		log.Fatalf("Failed to parse Redis URL: %v", err)
	}
	redisClient := redis.NewClient(opts)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()
	log.Println("Redis connected")

	// ===== Initialize PostgreSQL checkpoint archive (optional) =====
	var db *postgres.DB
	var archive driven.CheckpointArchive
	if databaseURL != "" {
		log.Println("Connecting to PostgreSQL...")
		dbConfig := postgres.Config{
			URL:             databaseURL,
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 2),
			ConnMaxLifetime: time.Duration(getEnvInt("DB_CONN_MAX_LIFETIME_SEC", 300)) * time.Second,
			ConnMaxIdleTime: time.Duration(getEnvInt("DB_CONN_MAX_IDLE_SEC", 60)) * time.Second,
		}
		db, err = postgres.Connect(ctx, dbConfig)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer db.Close()

		if err := db.InitSchema(ctx); err != nil {
			log.Fatalf("Failed to initialize schema: %v", err)
		}
		archive = postgres.NewCheckpointStore(db)
		log.Println("PostgreSQL connected, checkpoint archive enabled")
	} else {
		log.Println("DATABASE_URL not set, checkpoint archive disabled")
	}

	// ===== Driven adapters (infrastructure) =====
	authAdapter := auth.NewAdapter(jwtSecret)
	bankProvider := provider.NewClient(provider.Config{
		BaseURL:   providerBaseURL,
		SecretID:  providerSecretID,
		SecretKey: providerSecretKey,
	})

	distributedLock := redisadapter.NewLock(redisClient)
	dedupeStore := redisadapter.NewDedupeStore(redisClient)
	cursorStore := redisadapter.NewCursorStore(redisClient, archive, logger)
	operationStore := redisadapter.NewOperationStore(redisClient)
	replayGuard := redisadapter.NewReplayGuard(redisClient)
	accountStore := redisadapter.NewAccountStore(redisClient)
	balanceCache := redisadapter.NewBalanceCache(redisClient)
	rateLimiter := redisadapter.NewRateLimiter(redisClient, redisadapter.RateLimiterConfig{
		DailyLimit:      getEnvInt("DAILY_SYNC_LIMIT", redisadapter.DefaultDailyLimit),
		GlobalPerMinute: getEnvInt("GLOBAL_PER_MINUTE", redisadapter.DefaultGlobalPerMinute),
	})
	eventBus := redisadapter.NewEventBus(redisClient, int64(getEnvInt("EVENT_LOG_MAX_LEN", 10000)), logger)

	taskQueue, err := redisqueue.NewQueue(redisClient)
	if err != nil {
		log.Fatalf("Failed to create task queue: %v", err)
	}

	// ===== Services (core business logic) =====
	syncPipeline := services.NewSyncPipeline(services.SyncPipelineConfig{
		Lock:        distributedLock,
		Dedupe:      dedupeStore,
		Cursors:     cursorStore,
		Operations:  operationStore,
		Provider:    bankProvider,
		RateLimiter: rateLimiter,
		Bus:         eventBus,
		Logger:      logger,
	})

	executor := worker.NewExecutor(worker.ExecutorConfig{
		Provider:    bankProvider,
		RateLimiter: rateLimiter,
		Accounts:    accountStore,
		Balances:    balanceCache,
		Operations:  operationStore,
		Sync:        syncPipeline,
		Bus:         eventBus,
		Logger:      logger,
	})

	scheduler := services.NewScheduler(services.SchedulerConfig{
		Queue:          taskQueue,
		SeedMarker:     taskQueue,
		RateLimiter:    rateLimiter,
		Accounts:       accountStore,
		Executor:       executor,
		Bus:            eventBus,
		Logger:         logger,
		TickInterval:   time.Duration(getEnvInt("SCHEDULER_TICK_SEC", 30)) * time.Second,
		ReseedInterval: time.Duration(getEnvInt("SCHEDULER_RESEED_MIN", 30)) * time.Minute,
	})

	webhookGate, err := services.NewWebhookGate(services.WebhookGateConfig{
		Secret:      webhookSecret,
		ReplayGuard: replayGuard,
		Bus:         eventBus,
		Accounts:    accountStore,
		Scheduler:   scheduler,
		Logger:      logger,
	})
	if err != nil {
		log.Fatalf("Failed to create webhook gate: %v", err)
	}

	accountService := services.NewAccountService(services.AccountServiceConfig{
		Accounts:    accountStore,
		Balances:    balanceCache,
		RateLimiter: rateLimiter,
		Logger:      logger,
	})

	linkService := services.NewLinkService(services.LinkServiceConfig{
		Provider:  bankProvider,
		Accounts:  accountStore,
		Scheduler: scheduler,
		Logger:    logger,
	})

	// ===== API credentials =====
	credentials, err := loadCredentials(authAdapter)
	if err != nil {
		log.Fatalf("Failed to load API credentials: %v", err)
	}

	serverCfg := httpserver.Config{
		Host:        getEnv("HOST", "0.0.0.0"),
		Port:        port,
		Version:     version,
		Credentials: credentials,
	}

	var dbPinger httpserver.Pinger
	if db != nil {
		dbPinger = db
	}

	server := httpserver.NewServer(
		serverCfg,
		syncPipeline,
		accountService,
		webhookGate,
		linkService,
		authAdapter,
		eventBus,
		redisPinger{redisClient},
		dbPinger,
	)

	switch mode {
	case "api":
		runAPI(ctx, server)

	case "worker":
		runWorkerMode(ctx, scheduler)

	case "all":
		go runWorkerMode(ctx, scheduler)
		runAPI(ctx, server)

	default:
		log.Fatalf("Unknown mode: %s (use: api, worker, or all)", mode)
	}
}

// runAPI starts the HTTP server and shuts it down when ctx is cancelled.
func runAPI(ctx context.Context, server *httpserver.Server) {
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Stop(shutdownCtx); err != nil {
			log.Printf("Server shutdown failed: %v", err)
		}
	}()

	if err := server.Start(); err != nil {
		log.Fatalf("Server error: %v", err)
	}
	log.Println("Server stopped")
}

// runWorkerMode starts the scheduler loops and blocks until shutdown.
func runWorkerMode(ctx context.Context, scheduler *services.Scheduler) {
	log.Println("Starting scheduler...")
	if err := scheduler.Start(ctx); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}

	<-ctx.Done()

	log.Println("Stopping scheduler...")
	scheduler.Stop()
	log.Println("Scheduler stopped")
}

// loadCredentials builds the API credential set from the environment.
// Plaintext secrets are hashed at boot; pre-hashed variants take precedence.
func loadCredentials(authAdapter *auth.Adapter) ([]domain.APICredential, error) {
	var credentials []domain.APICredential

	add := func(idKey, secretKey, hashKey string, role domain.Role) error {
		clientID := getEnv(idKey, "")
		if clientID == "" {
			return nil
		}
		hash := getEnv(hashKey, "")
		if hash == "" {
			secret := getEnv(secretKey, "")
			if secret == "" {
				return fmt.Errorf("%s is set but %s/%s is empty", idKey, secretKey, hashKey)
			}
			var err error
			hash, err = authAdapter.HashSecret(secret)
			if err != nil {
				return err
			}
		}
		credentials = append(credentials, domain.APICredential{
			ClientID:   clientID,
			SecretHash: hash,
			Role:       role,
		})
		return nil
	}

	if err := add("ADMIN_CLIENT_ID", "ADMIN_CLIENT_SECRET", "ADMIN_CLIENT_SECRET_HASH", domain.RoleAdmin); err != nil {
		return nil, err
	}
	if err := add("API_CLIENT_ID", "API_CLIENT_SECRET", "API_CLIENT_SECRET_HASH", domain.RoleService); err != nil {
		return nil, err
	}

	if len(credentials) == 0 {
		log.Println("Warning: no API credentials configured, token endpoint will reject all clients")
	}
	return credentials, nil
}

// redisPinger adapts the Redis client to the server health check interface.
type redisPinger struct {
	client *redis.Client
}

func (p redisPinger) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var result int
		if _, err := fmt.Sscanf(value, "%d", &result); err == nil {
			return result
		}
	}
	return defaultValue
}
