package service

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/veritas-labs/lorebase/internal/cache"
	"github.com/veritas-labs/lorebase/internal/domain"
	"github.com/veritas-labs/lorebase/internal/pagination"
	"github.com/veritas-labs/lorebase/internal/ranking"
	"github.com/veritas-labs/lorebase/internal/telemetry"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200

	defaultEntryCacheTTL = 5 * time.Minute
)

// KnowledgeService implements knowledge entry lifecycle, semantic search
// and the audit trail around both.
type KnowledgeService struct {
	tx       TxRunner
	entries  KnowledgeRepositoryInterface
	concepts ConceptRepositoryInterface
	audit    AuditRepositoryInterface
	embedder Embedder
	store    cache.Store
	cacheTTL time.Duration
	uuidGen  UUIDGenerator
	logger   *log.Logger
}

func NewKnowledgeService(
	tx TxRunner,
	entries KnowledgeRepositoryInterface,
	concepts ConceptRepositoryInterface,
	audit AuditRepositoryInterface,
	embedder Embedder,
	store cache.Store,
	logger *log.Logger,
) *KnowledgeService {
	if logger == nil {
		logger = log.Default()
	}
	return &KnowledgeService{
		tx:       tx,
		entries:  entries,
		concepts: concepts,
		audit:    audit,
		embedder: embedder,
		store:    store,
		cacheTTL: defaultEntryCacheTTL,
		uuidGen:  &DefaultUUIDGenerator{},
		logger:   logger,
	}
}

// SetUUIDGenerator overrides UUID generation, primarily for tests.
func (s *KnowledgeService) SetUUIDGenerator(gen UUIDGenerator) {
	s.uuidGen = gen
}

// KnowledgeCreateInput represents the input for creating a knowledge entry.
// Tags are names and are created on demand; Concepts are slash-separated
// paths ("animal/dog") of concepts that must already exist. A non-empty
// Embedding skips provider vectorization.
type KnowledgeCreateInput struct {
	Topic     string
	Content   string
	Question  string
	Answer    string
	Metadata  map[string]any
	Tags      []string
	Concepts  []string
	Embedding []float32
}

// KnowledgeUpdateInput carries optional field changes for an entry. Nil
// fields are left untouched; non-nil Tags/Concepts replace the full set.
type KnowledgeUpdateInput struct {
	Topic    *string
	Content  *string
	Question *string
	Answer   *string
	Metadata map[string]any
	Tags     *[]string
	Concepts *[]string
}

// SearchResult pairs an entry with its similarity score.
type SearchResult struct {
	Entry *domain.KnowledgeEntry `json:"entry"`
	Score float64                `json:"score"`
}

// SearchInput describes a semantic search request. A non-empty Embedding
// is used as the query vector directly; otherwise Query is embedded.
// Concepts filter by concept name.
type SearchInput struct {
	Query         string
	Embedding     []float32
	Limit         int
	MinSimilarity float64
	Tags          []string
	Concepts      []string
}

// Create stores a new knowledge entry with its embedding, tag and concept
// links, and a creation audit record. The topic must be unique. Concepts
// that do not exist fail the call; tags are created as needed.
func (s *KnowledgeService) Create(ctx context.Context, input KnowledgeCreateInput, userID string) (*domain.KnowledgeEntry, error) {
	ctx, span := telemetry.StartSpan(ctx, "KnowledgeService.Create", telemetry.SpanAttributes{
		Topic:     input.Topic,
		UserID:    userID,
		Operation: "create",
	})
	defer span.End()

	now := time.Now().UTC()
	entry := &domain.KnowledgeEntry{
		ID:        s.uuidGen.NewString(),
		Topic:     input.Topic,
		Content:   input.Content,
		Question:  input.Question,
		Answer:    input.Answer,
		Metadata:  input.Metadata,
		CreatedBy: userID,
		CreatedAt: now,
		UpdatedAt: now,
		Tags:      input.Tags,
		Concepts:  input.Concepts,
	}
	if err := domain.ValidateKnowledgeEntry(entry); err != nil {
		return nil, err
	}

	if _, err := s.entries.GetByTopic(ctx, input.Topic); err == nil {
		return nil, domain.ErrTopicAlreadyExists
	} else if !errors.Is(err, domain.ErrEntryNotFound) {
		return nil, err
	}

	if len(input.Embedding) > 0 {
		entry.Embedding = input.Embedding
	} else {
		// Provider calls stay outside the transaction.
		embedding, err := s.embedder.Embed(ctx, embeddingText(entry))
		if err != nil {
			return nil, err
		}
		entry.Embedding = embedding
	}

	if err := s.persistNew(ctx, entry, input, userID); err != nil {
		return nil, err
	}

	s.cacheEntry(ctx, entry)
	return entry, nil
}

// persistNew writes a fully prepared entry, its relations and the create
// audit record in one transaction.
func (s *KnowledgeService) persistNew(ctx context.Context, entry *domain.KnowledgeEntry, input KnowledgeCreateInput, userID string) error {
	return s.tx.WithTx(ctx, func(repos TxRepositories) error {
		if err := repos.Entries().Create(ctx, entry); err != nil {
			return err
		}

		tagIDs, err := s.resolveTags(ctx, repos, input.Tags, userID)
		if err != nil {
			return err
		}
		if err := repos.Entries().ReplaceTags(ctx, entry.ID, tagIDs); err != nil {
			return err
		}

		conceptIDs, err := s.resolveConcepts(ctx, repos, input.Concepts)
		if err != nil {
			return err
		}
		if err := repos.Entries().ReplaceConcepts(ctx, entry.ID, conceptIDs); err != nil {
			return err
		}

		return repos.Audit().Create(ctx, &domain.AuditRecord{
			ID:          s.uuidGen.NewString(),
			KnowledgeID: entry.ID,
			UserID:      userID,
			Action:      domain.AuditActionCreate,
			Details:     map[string]any{"original": createInputSnapshot(input)},
			Timestamp:   entry.CreatedAt,
		})
	})
}

// createInputSnapshot captures the full create payload for the audit
// trail, embedding vector excluded.
func createInputSnapshot(input KnowledgeCreateInput) map[string]any {
	return map[string]any{
		"topic":    input.Topic,
		"content":  input.Content,
		"question": input.Question,
		"answer":   input.Answer,
		"metadata": input.Metadata,
		"tags":     input.Tags,
		"concepts": input.Concepts,
	}
}

// Get retrieves an entry by ID through the entry cache, records a
// best-effort access audit and bumps the entry's last-accessed time.
func (s *KnowledgeService) Get(ctx context.Context, id, userID string) (*domain.KnowledgeEntry, error) {
	entry, hit := s.cachedEntry(ctx, id)
	if !hit {
		var err error
		entry, err = s.entries.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		s.cacheEntry(ctx, entry)
	}

	s.recordAccess(ctx, entry.ID, userID, map[string]any{"source": "get"})
	return entry, nil
}

// GetByTopic retrieves an entry by its unique topic.
func (s *KnowledgeService) GetByTopic(ctx context.Context, topic, userID string) (*domain.KnowledgeEntry, error) {
	entry, err := s.entries.GetByTopic(ctx, topic)
	if err != nil {
		return nil, err
	}
	s.recordAccess(ctx, entry.ID, userID, map[string]any{"source": "topic"})
	return entry, nil
}

// List returns one page of entries ordered by creation time.
func (s *KnowledgeService) List(ctx context.Context, cursorStr string, limit int) (*EntryPage, error) {
	limit = clampLimit(limit)

	var cursor *pagination.Cursor
	if cursorStr != "" {
		c, err := pagination.DecodeCursor(cursorStr)
		if err != nil {
			return nil, domain.NewDomainErrorWithCause(domain.ErrCodeValidation, "invalid cursor", err)
		}
		cursor = c
	}
	return s.entries.List(ctx, cursor, limit)
}

// ListByTag returns entries carrying the named tag.
func (s *KnowledgeService) ListByTag(ctx context.Context, tagName string, limit, offset int) ([]*domain.KnowledgeEntry, error) {
	return s.entries.ListByTag(ctx, tagName, clampLimit(limit), max(offset, 0))
}

// ListByConcept returns entries linked to the concept at the given
// slash-separated path. An unresolvable path yields an empty result.
func (s *KnowledgeService) ListByConcept(ctx context.Context, conceptPath string, limit, offset int) ([]*domain.KnowledgeEntry, error) {
	concept, err := conceptByPath(ctx, s.concepts, conceptPath)
	if err != nil {
		if errors.Is(err, domain.ErrConceptPathNotFound) {
			return []*domain.KnowledgeEntry{}, nil
		}
		return nil, err
	}
	return s.entries.ListByConcept(ctx, concept.ID, clampLimit(limit), max(offset, 0))
}

// ListAudit returns the audit trail for an entry, newest first.
func (s *KnowledgeService) ListAudit(ctx context.Context, knowledgeID string) ([]*domain.AuditRecord, error) {
	return s.audit.ListByKnowledgeID(ctx, knowledgeID)
}

// Update applies partial changes to an entry. The audit record stores the
// full pre-update state under "original" and the applied patch fields
// under "changes". Topic or content changes trigger re-embedding.
func (s *KnowledgeService) Update(ctx context.Context, id string, input KnowledgeUpdateInput, userID string) (*domain.KnowledgeEntry, error) {
	ctx, span := telemetry.StartSpan(ctx, "KnowledgeService.Update", telemetry.SpanAttributes{
		KnowledgeID: id,
		UserID:      userID,
		Operation:   "update",
	})
	defer span.End()

	entry, err := s.entries.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	// Full pre-update state goes into the audit row, not just the
	// fields being touched.
	original := map[string]any{
		"topic":    entry.Topic,
		"content":  entry.Content,
		"question": entry.Question,
		"answer":   entry.Answer,
		"metadata": entry.Metadata,
		"tags":     entry.Tags,
		"concepts": entry.Concepts,
	}

	changes := map[string]any{}
	reembed := false

	if input.Topic != nil && *input.Topic != entry.Topic {
		if existing, err := s.entries.GetByTopic(ctx, *input.Topic); err == nil && existing.ID != entry.ID {
			return nil, domain.ErrTopicAlreadyExists
		} else if err != nil && !errors.Is(err, domain.ErrEntryNotFound) {
			return nil, err
		}
		changes["topic"] = *input.Topic
		entry.Topic = *input.Topic
		reembed = true
	}
	if input.Content != nil && *input.Content != entry.Content {
		changes["content"] = *input.Content
		entry.Content = *input.Content
		reembed = true
	}
	if input.Question != nil && *input.Question != entry.Question {
		changes["question"] = *input.Question
		entry.Question = *input.Question
	}
	if input.Answer != nil && *input.Answer != entry.Answer {
		changes["answer"] = *input.Answer
		entry.Answer = *input.Answer
	}
	if input.Metadata != nil {
		changes["metadata"] = input.Metadata
		entry.Metadata = input.Metadata
	}
	if input.Tags != nil {
		changes["tags"] = *input.Tags
		entry.Tags = *input.Tags
	}
	if input.Concepts != nil {
		changes["concepts"] = *input.Concepts
		entry.Concepts = *input.Concepts
	}

	if len(changes) == 0 {
		return entry, nil
	}

	if err := domain.ValidateKnowledgeEntry(entry); err != nil {
		return nil, err
	}

	if reembed {
		embedding, err := s.embedder.Embed(ctx, embeddingText(entry))
		if err != nil {
			return nil, err
		}
		entry.Embedding = embedding
	}
	entry.UpdatedAt = time.Now().UTC()

	err = s.tx.WithTx(ctx, func(repos TxRepositories) error {
		if err := repos.Entries().Update(ctx, entry); err != nil {
			return err
		}

		if input.Tags != nil {
			tagIDs, err := s.resolveTags(ctx, repos, *input.Tags, userID)
			if err != nil {
				return err
			}
			if err := repos.Entries().ReplaceTags(ctx, entry.ID, tagIDs); err != nil {
				return err
			}
		}
		if input.Concepts != nil {
			conceptIDs, err := s.resolveConcepts(ctx, repos, *input.Concepts)
			if err != nil {
				return err
			}
			if err := repos.Entries().ReplaceConcepts(ctx, entry.ID, conceptIDs); err != nil {
				return err
			}
		}

		return repos.Audit().Create(ctx, &domain.AuditRecord{
			ID:          s.uuidGen.NewString(),
			KnowledgeID: entry.ID,
			UserID:      userID,
			Action:      domain.AuditActionUpdate,
			Details:     map[string]any{"original": original, "changes": changes},
			Timestamp:   entry.UpdatedAt,
		})
	})
	if err != nil {
		return nil, err
	}

	s.dropCachedEntry(ctx, entry.ID)
	return entry, nil
}

// Delete removes an entry. Its tag and concept links go with it; the
// audit trail keeps the entry's history, including the deletion itself.
func (s *KnowledgeService) Delete(ctx context.Context, id, userID string) error {
	entry, err := s.entries.GetByID(ctx, id)
	if err != nil {
		return err
	}

	err = s.tx.WithTx(ctx, func(repos TxRepositories) error {
		if err := repos.Audit().Create(ctx, &domain.AuditRecord{
			ID:          s.uuidGen.NewString(),
			KnowledgeID: entry.ID,
			UserID:      userID,
			Action:      domain.AuditActionDelete,
			Details:     map[string]any{"topic": entry.Topic},
			Timestamp:   time.Now().UTC(),
		}); err != nil {
			return err
		}
		return repos.Entries().Delete(ctx, entry.ID)
	})
	if err != nil {
		return err
	}

	s.dropCachedEntry(ctx, id)
	return nil
}

// SearchSimilar ranks stored entries by cosine similarity against the
// query vector, embedding the query text first unless a precomputed
// vector was supplied. Candidates are restricted to entries matching all
// given tag and concept filters. Returned entries get their
// last-accessed time bumped. A degraded (empty) query embedding yields
// no results rather than an error.
func (s *KnowledgeService) SearchSimilar(ctx context.Context, input SearchInput, userID string) ([]SearchResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "KnowledgeService.SearchSimilar", telemetry.SpanAttributes{
		UserID:    userID,
		Operation: "search",
	})
	defer span.End()

	if input.Limit <= 0 {
		return []SearchResult{}, nil
	}

	queryVec := input.Embedding
	if len(queryVec) == 0 {
		var err error
		queryVec, err = s.embedder.Embed(ctx, input.Query)
		if err != nil {
			return nil, err
		}
	}
	if len(queryVec) == 0 {
		s.logger.Printf("search: degraded query embedding, returning no results")
		return []SearchResult{}, nil
	}

	entries, err := s.entries.ListEmbedded(ctx, input.Tags, input.Concepts)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]*domain.KnowledgeEntry, len(entries))
	candidates := make([]ranking.Candidate, 0, len(entries))
	for _, e := range entries {
		byID[e.ID] = e
		candidates = append(candidates, ranking.Candidate{ID: e.ID, Vector: e.Embedding})
	}

	ranked := ranking.Rank(queryVec, candidates, input.MinSimilarity, input.Limit)

	results := make([]SearchResult, 0, len(ranked))
	ids := make([]string, 0, len(ranked))
	for _, r := range ranked {
		results = append(results, SearchResult{Entry: byID[r.ID], Score: r.Score})
		ids = append(ids, r.ID)
	}

	if len(ids) > 0 {
		now := time.Now().UTC()
		if err := s.entries.TouchLastAccessed(ctx, ids, now); err != nil {
			s.logger.Printf("search: failed to bump last accessed: %v", err)
		}
	}
	return results, nil
}

// CleanupOldEntries records a cleanup audit entry and evicts the cache
// row for every knowledge entry not accessed since the cutoff. Entries
// are flagged, never deleted. Returns the number flagged.
func (s *KnowledgeService) CleanupOldEntries(ctx context.Context, maxAge time.Duration, userID string) (int, error) {
	ctx, span := telemetry.StartSpan(ctx, "KnowledgeService.CleanupOldEntries", telemetry.SpanAttributes{
		UserID:    userID,
		Operation: "cleanup",
	})
	defer span.End()

	cutoff := time.Now().UTC().Add(-maxAge)
	stale, err := s.entries.ListNotAccessedSince(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	flagged := 0
	for _, entry := range stale {
		details := map[string]any{
			"reason": "not accessed",
			"topic":  entry.Topic,
			"cutoff": cutoff.Format(time.RFC3339),
		}
		if entry.LastAccessedAt != nil {
			details["last_accessed_at"] = entry.LastAccessedAt.Format(time.RFC3339)
		}
		err := s.audit.Create(ctx, &domain.AuditRecord{
			ID:          s.uuidGen.NewString(),
			KnowledgeID: entry.ID,
			UserID:      userID,
			Action:      domain.AuditActionCleanup,
			Details:     details,
			Timestamp:   time.Now().UTC(),
		})
		if err != nil {
			s.logger.Printf("cleanup: failed to flag entry %s: %v", entry.ID, err)
			continue
		}
		s.dropCachedEntry(ctx, entry.ID)
		flagged++
	}
	return flagged, nil
}

func (s *KnowledgeService) resolveTags(ctx context.Context, repos TxRepositories, names []string, userID string) ([]string, error) {
	ids := make([]string, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		if seen[name] {
			continue
		}
		seen[name] = true

		tag, err := getOrCreateTag(ctx, repos.Tags(), s.uuidGen, name, "", userID)
		if err != nil {
			return nil, err
		}
		ids = append(ids, tag.ID)
	}
	return ids, nil
}

// resolveConcepts maps concept paths to concept IDs. Paths that do not
// resolve fail the call; entry creation never creates concepts.
func (s *KnowledgeService) resolveConcepts(ctx context.Context, repos TxRepositories, conceptPaths []string) ([]string, error) {
	ids := make([]string, 0, len(conceptPaths))
	seen := make(map[string]bool, len(conceptPaths))
	for _, path := range conceptPaths {
		concept, err := conceptByPath(ctx, repos.Concepts(), path)
		if err != nil {
			return nil, err
		}
		if seen[concept.ID] {
			continue
		}
		seen[concept.ID] = true
		ids = append(ids, concept.ID)
	}
	return ids, nil
}

// recordAccess bumps last-accessed and appends an access audit record.
// Failures are logged, not returned; reads never fail on bookkeeping.
func (s *KnowledgeService) recordAccess(ctx context.Context, knowledgeID, userID string, details map[string]any) {
	now := time.Now().UTC()
	if err := s.entries.TouchLastAccessed(ctx, []string{knowledgeID}, now); err != nil {
		s.logger.Printf("access: failed to bump last accessed for %s: %v", knowledgeID, err)
	}
	err := s.audit.Create(ctx, &domain.AuditRecord{
		ID:          s.uuidGen.NewString(),
		KnowledgeID: knowledgeID,
		UserID:      userID,
		Action:      domain.AuditActionAccess,
		Details:     details,
		Timestamp:   now,
	})
	if err != nil {
		s.logger.Printf("access: failed to record audit for %s: %v", knowledgeID, err)
	}
}

func (s *KnowledgeService) cachedEntry(ctx context.Context, id string) (*domain.KnowledgeEntry, bool) {
	if s.store == nil {
		return nil, false
	}
	raw, ok, err := s.store.Get(ctx, entryCacheKey(id))
	if err != nil {
		s.logger.Printf("cache: get %s: %v", id, err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	var entry domain.KnowledgeEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		s.logger.Printf("cache: decode %s: %v", id, err)
		return nil, false
	}
	return &entry, true
}

func (s *KnowledgeService) cacheEntry(ctx context.Context, entry *domain.KnowledgeEntry) {
	if s.store == nil {
		return
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return
	}
	if err := s.store.SetWithTTL(ctx, entryCacheKey(entry.ID), raw, s.cacheTTL); err != nil {
		s.logger.Printf("cache: set %s: %v", entry.ID, err)
	}
}

func (s *KnowledgeService) dropCachedEntry(ctx context.Context, id string) {
	if s.store == nil {
		return
	}
	if err := s.store.Delete(ctx, entryCacheKey(id)); err != nil {
		s.logger.Printf("cache: delete %s: %v", id, err)
	}
}

func entryCacheKey(id string) string {
	return "lorebase:entry:" + id
}

// embeddingText is the canonical text an entry is embedded from.
func embeddingText(entry *domain.KnowledgeEntry) string {
	if entry.Content == "" {
		return entry.Topic
	}
	return entry.Topic + "\n" + entry.Content
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}
