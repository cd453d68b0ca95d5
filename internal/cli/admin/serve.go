package admin

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"

	"github.com/veritas-labs/lorebase/internal/api/handlers"
	"github.com/veritas-labs/lorebase/internal/cache"
	"github.com/veritas-labs/lorebase/internal/config"
	"github.com/veritas-labs/lorebase/internal/database"
	"github.com/veritas-labs/lorebase/internal/domain"
	"github.com/veritas-labs/lorebase/internal/embedding"
	"github.com/veritas-labs/lorebase/internal/jobs"
	"github.com/veritas-labs/lorebase/internal/repository"
	"github.com/veritas-labs/lorebase/internal/server"
	"github.com/veritas-labs/lorebase/internal/service"
	"github.com/veritas-labs/lorebase/internal/telemetry"
)

// ServeCmd returns the serve command
func ServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		Long:  "Start the lorebase API server on the specified port",
		RunE:  runServe,
	}

	cmd.Flags().StringP("port", "p", "8080", "Port to listen on")
	cmd.Flags().Bool("no-migrate", false, "Skip automatic database migrations on startup")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Initialize Sentry with tracing if SENTRY_DSN is set
	if dsn := os.Getenv("SENTRY_DSN"); dsn != "" {
		environment := os.Getenv("ENVIRONMENT")
		if environment == "" {
			environment = "development"
		}

		// Default to 10% sampling in production, 100% in development
		sampleRate := 0.1
		if environment == "development" {
			sampleRate = 1.0
		}

		shutdownTelemetry, err := telemetry.Init(telemetry.Config{
			DSN:              dsn,
			Environment:      environment,
			TracesSampleRate: sampleRate,
		})
		if err != nil {
			log.Printf("telemetry init failed (continuing without tracing): %v", err)
		} else {
			defer shutdownTelemetry()
		}
	}

	portFlag, _ := cmd.Flags().GetString("port")
	if portFlag != "" && portFlag != "8080" {
		cfg.Port = portFlag
	}

	pool, err := database.NewPool(ctx, database.Config{URL: cfg.DatabaseURL})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()
	log.Println("connected to database")

	// Run migrations unless --no-migrate flag is set
	noMigrate, _ := cmd.Flags().GetBool("no-migrate")
	if !noMigrate {
		if err := runMigrations(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	knowledgeRepo := repository.NewKnowledgeRepository(pool)
	tagRepo := repository.NewTagRepository(pool)
	conceptRepo := repository.NewConceptRepository(pool)
	auditRepo := repository.NewAuditRepository(pool)
	txRunner := repository.NewTxRunner(pool)

	var entryStore cache.Store
	if cfg.HasRedis() {
		redisStore, err := cache.NewRedisStore(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		defer redisStore.Close()
		log.Println("connected to redis")
		entryStore = redisStore
	} else {
		entryStore = cache.NewMemoryStore()
	}

	var provider embedding.Provider
	if cfg.HasOpenAI() {
		provider = embedding.NewOpenAIProvider(cfg.OpenAIAPIKey, "")
	} else {
		log.Println("no OPENAI_API_KEY configured, entries will be stored without embeddings")
		provider = unavailableProvider{}
	}

	embedConfig := embedding.DefaultConfig()
	embedConfig.ChunkSize = cfg.EmbedChunkSize
	embedder := embedding.NewServiceWithConfig(provider, embedding.NewVectorCache(), embedConfig)

	knowledgeSvc := service.NewKnowledgeService(txRunner, knowledgeRepo, conceptRepo, auditRepo, embedder, entryStore, log.Default())
	tagSvc := service.NewTagService(tagRepo)
	conceptSvc := service.NewConceptService(conceptRepo)
	batchSvc := service.NewBatchService(knowledgeSvc, txRunner, knowledgeRepo, embedder, cfg.EmbedChunkSize, log.Default())

	var reindexWorker *jobs.Worker
	if cfg.HasOpenAI() && cfg.ReindexInterval > 0 {
		reindexWorker = jobs.NewWorker(jobs.NewMaintenanceProcessor(batchSvc), cfg.ReindexInterval)
		go reindexWorker.Start(ctx)
	}

	routerCfg := server.RouterConfig{
		KnowledgeHandler:   handlers.NewKnowledgeHandler(knowledgeSvc),
		SearchHandler:      handlers.NewSearchHandler(knowledgeSvc),
		TagHandler:         handlers.NewTagHandler(tagSvc),
		ConceptHandler:     handlers.NewConceptHandler(conceptSvc),
		MaintenanceHandler: handlers.NewMaintenanceHandler(batchSvc, knowledgeSvc),
	}

	router := server.NewRouter(routerCfg)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		log.Printf("starting server on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down...")

	if reindexWorker != nil {
		reindexWorker.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Println("server exited")
	return nil
}

// unavailableProvider stands in when no embedding provider is configured.
// The embedding service degrades its failures to empty vectors, so writes
// still succeed and reindexing picks the entries up once a key is set.
type unavailableProvider struct{}

func (unavailableProvider) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, domain.ErrProviderFailure
}

func runMigrations(databaseURL string) error {
	// golang-migrate wants a database/sql handle
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database for migrations: %w", err)
	}
	defer db.Close()

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		"file://migrations",
		"postgres",
		driver,
	)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	err = m.Up()
	if err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil && err != migrate.ErrNilVersion {
		return fmt.Errorf("failed to get migration version: %w", err)
	}

	if err == migrate.ErrNilVersion {
		log.Println("migrations: database is up to date (no migrations applied)")
	} else if dirty {
		return fmt.Errorf("migration version %d is dirty - manual intervention required", version)
	} else {
		log.Printf("migrations: database at version %d", version)
	}

	return nil
}
