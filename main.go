package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"sowflow/features/deadletter"
	"sowflow/features/document"
	"sowflow/features/ingest"
	"sowflow/features/search"
	"sowflow/internal/adapter/gemini"
	"sowflow/internal/adapter/objectstore"
	wstore "sowflow/internal/adapter/weaviate"
	"sowflow/internal/config"
	"sowflow/internal/extract"
	"sowflow/internal/logger"
	"sowflow/internal/middleware"
	"sowflow/internal/retry"
	"sowflow/internal/schema"
	"sowflow/internal/vector"
	"sowflow/internal/worker"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"github.com/nsqio/go-nsq"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
)

func main() {
	// Initialize structured logger with correlation id propagation
	base := slog.NewJSONHandler(os.Stdout, nil)
	slog.SetDefault(slog.New(logger.NewContextHandler(base)))

	// 1. Load Config
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// 2. Database Connection
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPass, cfg.DBName)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("failed to open db connection", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Retry connection
	for i := 0; i < cfg.BootstrapRetryAttempts; i++ {
		if err := db.Ping(); err == nil {
			break
		}
		slog.Warn("failed to ping db, retrying...", "attempt", i+1, "max_attempts", cfg.BootstrapRetryAttempts)
		time.Sleep(time.Duration(cfg.BootstrapRetryDelaySeconds) * time.Second)
	}

	if err := db.Ping(); err != nil {
		slog.Error("failed to ping db after retries", "error", err)
		os.Exit(1)
	}

	// 3. Run Migrations
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

	// 4. Weaviate Connection & Schema
	wCfg := weaviate.Config{
		Host:   cfg.WeaviateHost,
		Scheme: cfg.WeaviateScheme,
	}
	wClient, err := weaviate.NewClient(wCfg)
	if err != nil {
		slog.Error("failed to create weaviate client", "error", err)
		os.Exit(1)
	}

	wAdapter := vector.NewWeaviateClientAdapter(wClient)

	// Retry Weaviate Schema Ensure
	for i := 0; i < cfg.BootstrapRetryAttempts; i++ {
		if err := vector.EnsureSchema(context.Background(), wAdapter); err == nil {
			slog.Info("weaviate schema ensured")
			break
		}
		slog.Warn("failed to ensure weaviate schema, retrying...", "attempt", i+1, "error", err)
		time.Sleep(time.Duration(cfg.BootstrapRetryDelaySeconds) * time.Second)
	}

	if err := vector.EnsureSchema(context.Background(), wAdapter); err != nil {
		slog.Error("failed to ensure weaviate schema after retries", "error", err)
		os.Exit(1)
	}

	// 5. Object Store
	store, err := objectstore.NewFS(cfg.ObjectStoreRoot)
	if err != nil {
		slog.Error("failed to open object store", "error", err)
		os.Exit(1)
	}

	// 6. Gemini Adapters
	ctx := context.Background()
	embedder, err := gemini.NewEmbedder(ctx, cfg.GeminiAPIKey, cfg.EmbedModelID)
	if err != nil {
		slog.Error("failed to create gemini embedder", "error", err)
		os.Exit(1)
	}
	defer embedder.Close()

	llm, err := gemini.NewLLM(ctx, cfg.GeminiAPIKey, cfg.ExtractModelID)
	if err != nil {
		slog.Error("failed to create gemini llm", "error", err)
		os.Exit(1)
	}
	defer llm.Close()

	validator, err := schema.NewValidator(cfg.SchemaVersion)
	if err != nil {
		slog.Error("failed to compile schema", "error", err, "version", cfg.SchemaVersion)
		os.Exit(1)
	}

	// 7. NSQ Producer
	nsqCfg := nsq.NewConfig()
	nsqProducer, err := nsq.NewProducer(cfg.NSQDHost, nsqCfg)
	if err != nil {
		slog.Error("failed to create NSQ producer", "error", err)
		os.Exit(1)
	}

	// Pre-create topics so consumers querying lookupd don't 404 until the
	// first publish. nsqd's HTTP API listens one port above the TCP port.
	go func() {
		time.Sleep(2 * time.Second)
		host, _, _ := net.SplitHostPort(cfg.NSQDHost)
		if host == "" {
			host = "nsqd"
		}
		for _, topic := range []string{
			config.TopicExtractText, config.TopicEmbed,
			config.TopicExtract, config.TopicValidate, config.TopicSave,
		} {
			url := fmt.Sprintf("http://%s:4151/topic/create?topic=%s", host, topic)
			resp, err := http.Post(url, "application/json", nil)
			if err != nil {
				slog.Warn("failed to pre-create topic", "topic", topic, "error", err)
				continue
			}
			resp.Body.Close()
			slog.Info("topic pre-created", "topic", topic)
		}
	}()

	// 8. Features
	vecStore := wstore.NewStore(wClient)

	documentRepo := document.NewPostgresRepo(db)
	writer := document.NewWriter(documentRepo)

	deadLetterRepo := deadletter.NewPostgresRepo(db)
	deadLetterService := deadletter.NewService(deadLetterRepo, nsqProducer)
	deadLetterHandler := deadletter.NewHandler(deadLetterService)

	ingestHandler := ingest.NewHandler(store, nsqProducer, cfg.BucketName, cfg.MaxUploadSizeMB<<20)

	searchService := search.NewService(documentRepo, embedder, vecStore)
	searchHandler := search.NewHandler(searchService)

	// 9. Pipeline Consumers
	extractor := extract.NewClient(llm, validator, retry.Policy{
		MaxAttempts: cfg.ExtractMaxAttempts,
		BaseDelay:   cfg.RetryBaseDelay(),
	})

	stages := []struct {
		topic   string
		handler worker.StageHandler
	}{
		{config.TopicExtractText, worker.NewExtractTextConsumer(store, nsqProducer, cfg.StageTimeout())},
		{config.TopicEmbed, worker.NewEmbedConsumer(store, embedder, vecStore, nsqProducer, worker.EmbedConsumerOptions{
			Model:           cfg.EmbedModelID,
			ChunkSize:       cfg.ChunkSize,
			ChunkOverlap:    cfg.ChunkOverlap,
			MinSuccessRatio: cfg.EmbedMinSuccessRatio,
			Policy:          retry.Policy{MaxAttempts: cfg.EmbedMaxAttempts, BaseDelay: cfg.RetryBaseDelay()},
			Timeout:         cfg.StageTimeout(),
		})},
		{config.TopicExtract, worker.NewExtractConsumer(store, extractor, nsqProducer, cfg.StageTimeout())},
		{config.TopicValidate, worker.NewValidateConsumer(nsqProducer)},
		{config.TopicSave, worker.NewSaveConsumer(writer, cfg.StageTimeout())},
	}

	consumerCfg := nsq.NewConfig()
	consumerCfg.MaxAttempts = uint16(cfg.MaxMsgAttempts) + 1
	for _, stage := range stages {
		consumer, err := nsq.NewConsumer(stage.topic, config.Channel, consumerCfg)
		if err != nil {
			slog.Error("failed to create NSQ consumer", "topic", stage.topic, "error", err)
			os.Exit(1)
		}
		guard := worker.NewGuard(stage.handler, stage.topic, deadLetterService, uint16(cfg.MaxMsgAttempts))
		consumer.AddHandler(guard)
		if err := consumer.ConnectToNSQLookupd(cfg.NSQLookupd); err != nil {
			slog.Error("failed to connect to NSQLookupd", "topic", stage.topic, "error", err)
			os.Exit(1)
		}
		slog.Info("consumer connected", "topic", stage.topic, "channel", config.Channel)
	}

	// Middleware: CORS
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
	http.Handle("POST /documents", middleware.CorrelationID(enableCORS(ingestHandler.Upload)))
	http.Handle("GET /documents", middleware.CorrelationID(enableCORS(searchHandler.ListDocuments)))
	http.Handle("GET /documents/{id}", middleware.CorrelationID(enableCORS(searchHandler.GetDocument)))
	http.Handle("GET /documents/{id}/versions", middleware.CorrelationID(enableCORS(searchHandler.ListVersions)))
	http.Handle("POST /search", middleware.CorrelationID(enableCORS(searchHandler.Search)))

	http.Handle("GET /dead-letters", middleware.CorrelationID(enableCORS(deadLetterHandler.List)))
	http.Handle("POST /dead-letters/{id}/retry", middleware.CorrelationID(enableCORS(deadLetterHandler.Retry)))

	// 10. Start Server
	http.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	slog.Info("server starting", "port", cfg.ServerPort)
	if err := http.ListenAndServe(fmt.Sprintf(":%d", cfg.ServerPort), nil); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}
