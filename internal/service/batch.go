package service

import (
	"context"
	"log"
	"time"

	"github.com/veritas-labs/lorebase/internal/domain"
	"github.com/veritas-labs/lorebase/internal/telemetry"
)

// BatchService coordinates bulk operations over the knowledge base:
// bulk entry creation, orphan cleanup and embedding reindexing.
type BatchService struct {
	knowledge *KnowledgeService
	tx        TxRunner
	entries   KnowledgeRepositoryInterface
	embedder  Embedder
	chunkSize int
	logger    *log.Logger
}

func NewBatchService(
	knowledge *KnowledgeService,
	tx TxRunner,
	entries KnowledgeRepositoryInterface,
	embedder Embedder,
	chunkSize int,
	logger *log.Logger,
) *BatchService {
	if logger == nil {
		logger = log.Default()
	}
	return &BatchService{
		knowledge: knowledge,
		tx:        tx,
		entries:   entries,
		embedder:  embedder,
		chunkSize: chunkSize,
		logger:    logger,
	}
}

// BatchFailure records why one input of a bulk create was skipped.
type BatchFailure struct {
	Index int    `json:"index"`
	Topic string `json:"topic"`
	Error string `json:"error"`
}

// BatchCreateResult reports the outcome of CreateMany.
type BatchCreateResult struct {
	Created []*domain.KnowledgeEntry `json:"created"`
	Failed  []BatchFailure           `json:"failed"`
}

// CleanupResult reports how many orphaned rows CleanupOrphaned removed.
type CleanupResult struct {
	TagsRemoved     int64 `json:"tags_removed"`
	ConceptsRemoved int64 `json:"concepts_removed"`
}

// CreateMany creates entries in bulk. Embeddings for all inputs are
// generated in one batched pass up front; when that pass fails outright
// (rate limit exhaustion) nothing is created and the error propagates.
// Individual inputs that fail validation or persistence are skipped and
// reported, never aborting the rest.
func (s *BatchService) CreateMany(ctx context.Context, inputs []KnowledgeCreateInput, userID string) (*BatchCreateResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "BatchService.CreateMany", telemetry.SpanAttributes{
		UserID:    userID,
		Operation: "batch_create",
	})
	defer span.End()

	result := &BatchCreateResult{
		Created: []*domain.KnowledgeEntry{},
		Failed:  []BatchFailure{},
	}
	if len(inputs) == 0 {
		return result, nil
	}

	texts := make([]string, len(inputs))
	for i, input := range inputs {
		texts[i] = embeddingText(&domain.KnowledgeEntry{Topic: input.Topic, Content: input.Content})
	}

	embeddings, err := s.embedder.EmbedBatch(ctx, texts, s.chunkSize)
	if err != nil {
		return nil, err
	}

	for i, input := range inputs {
		entry, err := s.createOne(ctx, input, embeddings[i], userID)
		if err != nil {
			s.logger.Printf("batch create: input %d (%q) skipped: %v", i, input.Topic, err)
			result.Failed = append(result.Failed, BatchFailure{
				Index: i,
				Topic: input.Topic,
				Error: err.Error(),
			})
			continue
		}
		result.Created = append(result.Created, entry)
	}
	return result, nil
}

func (s *BatchService) createOne(ctx context.Context, input KnowledgeCreateInput, embedding []float32, userID string) (*domain.KnowledgeEntry, error) {
	now := time.Now().UTC()
	entry := &domain.KnowledgeEntry{
		ID:        s.knowledge.uuidGen.NewString(),
		Topic:     input.Topic,
		Content:   input.Content,
		Question:  input.Question,
		Answer:    input.Answer,
		Metadata:  input.Metadata,
		Embedding: embedding,
		CreatedBy: userID,
		CreatedAt: now,
		UpdatedAt: now,
		Tags:      input.Tags,
		Concepts:  input.Concepts,
	}
	if err := domain.ValidateKnowledgeEntry(entry); err != nil {
		return nil, err
	}

	if err := s.knowledge.persistNew(ctx, entry, input, userID); err != nil {
		return nil, err
	}
	return entry, nil
}

// CleanupOrphaned removes tags referenced by no entry and concepts with
// neither entry links nor children. Concept removal repeats until a
// fixpoint so that parents orphaned by a pass are collected in the next.
// Safe to call repeatedly; a clean store removes nothing.
func (s *BatchService) CleanupOrphaned(ctx context.Context) (*CleanupResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "BatchService.CleanupOrphaned", telemetry.SpanAttributes{
		Operation: "cleanup_orphaned",
	})
	defer span.End()

	result := &CleanupResult{}
	err := s.tx.WithTx(ctx, func(repos TxRepositories) error {
		tags, err := repos.Tags().DeleteOrphaned(ctx)
		if err != nil {
			return err
		}
		result.TagsRemoved = tags

		for {
			removed, err := repos.Concepts().DeleteOrphaned(ctx)
			if err != nil {
				return err
			}
			result.ConceptsRemoved += removed
			if removed == 0 {
				return nil
			}
		}
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ReindexEmbeddings regenerates vectors for entries whose embedding is
// missing, typically after degraded provider calls. Entries whose
// regeneration degrades again are left for a later run. Returns the
// number of entries that gained an embedding.
func (s *BatchService) ReindexEmbeddings(ctx context.Context) (int, error) {
	ctx, span := telemetry.StartSpan(ctx, "BatchService.ReindexEmbeddings", telemetry.SpanAttributes{
		Operation: "reindex",
	})
	defer span.End()

	missing, err := s.entries.ListMissingEmbedding(ctx)
	if err != nil {
		return 0, err
	}
	if len(missing) == 0 {
		return 0, nil
	}

	texts := make([]string, len(missing))
	for i, entry := range missing {
		texts[i] = embeddingText(entry)
	}

	embeddings, err := s.embedder.EmbedBatch(ctx, texts, s.chunkSize)
	if err != nil {
		return 0, err
	}

	updated := 0
	for i, entry := range missing {
		if len(embeddings[i]) == 0 {
			s.logger.Printf("reindex: entry %s still has no embedding, skipping", entry.ID)
			continue
		}
		if err := s.entries.UpdateEmbedding(ctx, entry.ID, embeddings[i]); err != nil {
			s.logger.Printf("reindex: failed to store embedding for %s: %v", entry.ID, err)
			continue
		}
		updated++
	}
	return updated, nil
}
