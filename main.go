package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"github.com/nsqio/go-nsq"
	"github.com/redis/go-redis/v9"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"

	"weft/features/chat"
	"weft/features/integration"
	"weft/internal/adapter/gemini"
	"weft/internal/adapter/llm"
	"weft/internal/adapter/neo4j"
	wstore "weft/internal/adapter/weaviate"
	"weft/internal/config"
	"weft/internal/fetcher"
	"weft/internal/logger"
	"weft/internal/middleware"
	"weft/internal/resolver"
	"weft/internal/retrieval"
	"weft/internal/scheduler"
	"weft/internal/vector"
	"weft/internal/worker"
)

func main() {
	log := slog.New(logger.NewContextHandler(slog.NewJSONHandler(os.Stdout, nil)))
	slog.SetDefault(log)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Database
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPass, cfg.DBName)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("failed to open db connection", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	retryDelay := time.Duration(cfg.BootstrapRetryDelaySeconds) * time.Second
	for i := 0; i < cfg.BootstrapRetryAttempts; i++ {
		if err := db.Ping(); err == nil {
			break
		}
		slog.Warn("failed to ping db, retrying...", "attempt", i+1, "max_attempts", cfg.BootstrapRetryAttempts)
		time.Sleep(retryDelay)
	}
	if err := db.Ping(); err != nil {
		slog.Error("failed to ping db after retries", "error", err)
		os.Exit(1)
	}

	// Migrations
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		slog.Error("failed to create migration driver", "error", err)
		os.Exit(1)
	}
	m, err := migrate.NewWithDatabaseInstance(cfg.MigrationPath, "postgres", driver)
	if err != nil {
		slog.Error("failed to create migration instance", "error", err)
		os.Exit(1)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	slog.Info("migrations applied successfully")

	// Weaviate
	wClient, err := weaviate.NewClient(weaviate.Config{
		Host:   cfg.WeaviateHost,
		Scheme: cfg.WeaviateScheme,
	})
	if err != nil {
		slog.Error("failed to create weaviate client", "error", err)
		os.Exit(1)
	}

	wAdapter := vector.NewSchemaAdapter(wClient)
	for i := 0; i < cfg.BootstrapRetryAttempts; i++ {
		if err := vector.EnsureSchema(ctx, wAdapter); err == nil {
			slog.Info("weaviate schema ensured")
			break
		}
		slog.Warn("failed to ensure weaviate schema, retrying...", "attempt", i+1, "error", err)
		time.Sleep(retryDelay)
	}
	if err := vector.EnsureSchema(ctx, wAdapter); err != nil {
		slog.Error("failed to ensure weaviate schema after retries", "error", err)
		os.Exit(1)
	}
	vecStore := wstore.NewStore(wClient)

	// Neo4j
	graphStore, err := neo4j.NewStore(ctx, cfg.Neo4jURI, cfg.Neo4jUser, cfg.Neo4jPassword)
	if err != nil {
		slog.Error("failed to connect to neo4j", "error", err)
		os.Exit(1)
	}
	defer graphStore.Close(context.Background())

	// Redis
	redisClient := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.RedisHost, cfg.RedisPort),
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		slog.Warn("redis unreachable at startup, chat cache degraded", "error", err)
	}

	// Models
	embedder, err := gemini.NewEmbedder(ctx, cfg.GeminiAPIKey, cfg.EmbeddingModel)
	if err != nil {
		slog.Error("failed to create gemini embedder", "error", err)
		os.Exit(1)
	}
	model, err := llm.NewModel(ctx, cfg)
	if err != nil {
		slog.Error("failed to create answer model", "error", err)
		os.Exit(1)
	}

	// NSQ producer, plus explicit topic creation so consumers querying
	// lookupd don't 404 before the first publish.
	nsqCfg := nsq.NewConfig()
	nsqProducer, err := nsq.NewProducer(cfg.NSQDHost, nsqCfg)
	if err != nil {
		slog.Error("failed to create NSQ producer", "error", err)
		os.Exit(1)
	}
	defer nsqProducer.Stop()
	go func() {
		time.Sleep(2 * time.Second)
		url := fmt.Sprintf("http://%s/topic/create?topic=%s", cfg.NSQDHTTP, config.TopicSyncTask)
		resp, err := http.Post(url, "application/json", nil)
		if err != nil {
			slog.Warn("failed to pre-create sync topic", "error", err, "url", url)
			return
		}
		resp.Body.Close()
	}()

	// Feature: Integration
	fetchers := fetcher.NewRegistry()
	integrationRepo := integration.NewPostgresRepo(db)
	integrationService := integration.NewService(integrationRepo, nsqProducer, vecStore, graphStore)
	integrationHandler := integration.NewHandler(integrationService)

	// Sync workers
	syncConsumer := worker.NewSyncConsumer(
		integrationRepo,
		fetchers,
		embedder,
		vecStore,
		graphStore,
		resolver.New(graphStore),
		worker.Options{
			ChunkSize:     cfg.ChunkSize,
			RetryAttempts: uint64(cfg.ChunkRetryAttempts),
			RetryBase:     cfg.ChunkRetryBase,
			CallTimeout:   cfg.ExternalTimeout,
		},
	)
	consumer, err := nsq.NewConsumer(config.TopicSyncTask, config.ChannelSyncWorkers, nsq.NewConfig())
	if err != nil {
		slog.Error("failed to create NSQ consumer", "error", err)
		os.Exit(1)
	}
	consumer.AddConcurrentHandlers(syncConsumer, cfg.SyncConcurrency)
	if err := consumer.ConnectToNSQLookupd(cfg.NSQLookupd); err != nil {
		slog.Error("failed to connect to NSQLookupd", "error", err)
		os.Exit(1)
	}
	defer consumer.Stop()

	// Scheduler
	sched := scheduler.New(integrationRepo, integrationService, fetchers, cfg.SchedulerTick, cfg.SyncLease)
	go sched.Run(ctx)

	// Feature: Chat
	retrievalService := retrieval.NewService(model, embedder, vecStore, graphStore, retrieval.Options{
		TopK:     cfg.RetrievalTopK,
		HopDepth: cfg.GraphHopDepth,
	})
	chatRepo := chat.NewPostgresRepo(db)
	chatCache := chat.NewCache(redisClient, cfg.ChatCacheTTL)
	chatService := chat.NewService(chatRepo, chatCache, retrievalService, model, cfg.ChatHistoryMax)
	chatHandler := chat.NewHandler(chatService)

	enableCORS := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}
			next(w, r)
		}
	}

	// Routes
	http.Handle("GET /integrations", middleware.CorrelationID(enableCORS(integrationHandler.List)))
	http.Handle("GET /integrations/{id}", middleware.CorrelationID(enableCORS(integrationHandler.Get)))
	http.Handle("PUT /integrations/{id}", middleware.CorrelationID(enableCORS(integrationHandler.Update)))
	http.Handle("DELETE /integrations/{id}", middleware.CorrelationID(enableCORS(integrationHandler.Delete)))
	http.Handle("GET /integrations/{id}/groups", middleware.CorrelationID(enableCORS(integrationHandler.ListParentGroups)))
	http.Handle("POST /groups/{groupId}/resync", middleware.CorrelationID(enableCORS(integrationHandler.Resync)))

	http.Handle("POST /chats", middleware.CorrelationID(enableCORS(chatHandler.Create)))
	http.Handle("GET /chats", middleware.CorrelationID(enableCORS(chatHandler.List)))
	http.Handle("GET /chats/{id}/messages", middleware.CorrelationID(enableCORS(chatHandler.Messages)))
	http.Handle("DELETE /chats/{id}", middleware.CorrelationID(enableCORS(chatHandler.Delete)))
	http.Handle("GET /chats/stream", middleware.CorrelationID(http.HandlerFunc(chatHandler.Stream)))

	http.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	server := &http.Server{Addr: fmt.Sprintf(":%d", cfg.ServerPort)}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	slog.Info("server starting", "port", cfg.ServerPort)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}
