package admin

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/veritas-labs/lorebase/internal/cache"
	"github.com/veritas-labs/lorebase/internal/config"
	"github.com/veritas-labs/lorebase/internal/database"
	"github.com/veritas-labs/lorebase/internal/embedding"
	"github.com/veritas-labs/lorebase/internal/repository"
	"github.com/veritas-labs/lorebase/internal/service"
)

// CleanupCmd returns the cleanup command
func CleanupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Remove orphaned tags and concepts",
		Long:  "Delete tags and concepts no entry references anymore, and optionally flag entries that have not been accessed recently",
		RunE:  runCleanup,
	}

	cmd.Flags().Int("max-age-days", 0, "Also flag entries not accessed in this many days (0 disables)")

	return cmd
}

func runCleanup(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	pool, err := database.NewPool(ctx, database.Config{URL: cfg.DatabaseURL})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()

	knowledgeSvc, batchSvc := buildMaintenanceServices(cfg, pool)

	result, err := batchSvc.CleanupOrphaned(ctx)
	if err != nil {
		return fmt.Errorf("orphan cleanup failed: %w", err)
	}
	log.Printf("cleanup: removed %d orphaned tags, %d orphaned concepts", result.TagsRemoved, result.ConceptsRemoved)

	maxAgeDays, _ := cmd.Flags().GetInt("max-age-days")
	if maxAgeDays > 0 {
		flagged, err := knowledgeSvc.CleanupOldEntries(ctx, time.Duration(maxAgeDays)*24*time.Hour, "")
		if err != nil {
			return fmt.Errorf("stale entry cleanup failed: %w", err)
		}
		log.Printf("cleanup: flagged %d entries not accessed in %d days", flagged, maxAgeDays)
	}

	return nil
}

// ReindexCmd returns the reindex command
func ReindexCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reindex",
		Short: "Generate embeddings for entries missing one",
		Long:  "Batch-embed every knowledge entry whose embedding is missing and store the resulting vectors",
		RunE:  runReindex,
	}
}

func runReindex(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if !cfg.HasOpenAI() {
		return fmt.Errorf("OPENAI_API_KEY must be configured to reindex")
	}

	pool, err := database.NewPool(ctx, database.Config{URL: cfg.DatabaseURL})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()

	_, batchSvc := buildMaintenanceServices(cfg, pool)

	updated, err := batchSvc.ReindexEmbeddings(ctx)
	if err != nil {
		return fmt.Errorf("reindex failed: %w", err)
	}
	log.Printf("reindex: updated embeddings for %d entries", updated)

	return nil
}

// buildMaintenanceServices wires the service layer for one-shot CLI
// maintenance runs. The entry cache is process-local and thrown away
// with the process.
func buildMaintenanceServices(cfg *config.Config, pool *pgxpool.Pool) (*service.KnowledgeService, *service.BatchService) {
	knowledgeRepo := repository.NewKnowledgeRepository(pool)
	conceptRepo := repository.NewConceptRepository(pool)
	auditRepo := repository.NewAuditRepository(pool)
	txRunner := repository.NewTxRunner(pool)

	var provider embedding.Provider
	if cfg.HasOpenAI() {
		provider = embedding.NewOpenAIProvider(cfg.OpenAIAPIKey, "")
	} else {
		provider = unavailableProvider{}
	}

	embedConfig := embedding.DefaultConfig()
	embedConfig.ChunkSize = cfg.EmbedChunkSize
	embedder := embedding.NewServiceWithConfig(provider, embedding.NewVectorCache(), embedConfig)

	knowledgeSvc := service.NewKnowledgeService(txRunner, knowledgeRepo, conceptRepo, auditRepo, embedder, cache.NewMemoryStore(), log.Default())
	batchSvc := service.NewBatchService(knowledgeSvc, txRunner, knowledgeRepo, embedder, cfg.EmbedChunkSize, log.Default())
	return knowledgeSvc, batchSvc
}
