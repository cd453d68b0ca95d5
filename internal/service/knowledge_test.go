package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/veritas-labs/lorebase/internal/cache"
	"github.com/veritas-labs/lorebase/internal/domain"
)

type knowledgeFixture struct {
	svc      *KnowledgeService
	entries  *MockKnowledgeRepository
	tags     *MockTagRepository
	concepts *MockConceptRepository
	audit    *MockAuditRepository
	embedder *MockEmbedder
	tx       *stubTxRunner
}

func newKnowledgeFixture(store cache.Store) *knowledgeFixture {
	f := &knowledgeFixture{
		entries:  new(MockKnowledgeRepository),
		tags:     new(MockTagRepository),
		concepts: new(MockConceptRepository),
		audit:    new(MockAuditRepository),
		embedder: new(MockEmbedder),
	}
	f.tx = &stubTxRunner{repos: &stubTxRepos{
		entries:  f.entries,
		tags:     f.tags,
		concepts: f.concepts,
		audit:    f.audit,
	}}
	f.svc = NewKnowledgeService(f.tx, f.entries, f.concepts, f.audit, f.embedder, store, nil)
	f.svc.SetUUIDGenerator(&seqUUIDGenerator{prefix: "id"})
	return f
}

func TestKnowledgeServiceCreate(t *testing.T) {
	f := newKnowledgeFixture(nil)

	f.entries.On("GetByTopic", mock.Anything, "gc-tuning").Return(nil, domain.ErrEntryNotFound)
	f.embedder.On("Embed", mock.Anything, "gc-tuning\nSet GOGC carefully.").
		Return([]float32{0.1, 0.2}, nil)
	f.entries.On("Create", mock.Anything, mock.MatchedBy(func(k *domain.KnowledgeEntry) bool {
		return k.Topic == "gc-tuning" && len(k.Embedding) == 2 && k.CreatedBy == "user-1"
	})).Return(nil)
	f.tags.On("GetByName", mock.Anything, "golang").Return(&domain.Tag{ID: "t1", Name: "golang"}, nil)
	f.entries.On("ReplaceTags", mock.Anything, mock.Anything, []string{"t1"}).Return(nil)
	f.concepts.On("GetByNameAndParent", mock.Anything, "runtime", (*string)(nil)).
		Return(&domain.Concept{ID: "c1", Name: "runtime"}, nil)
	f.entries.On("ReplaceConcepts", mock.Anything, mock.Anything, []string{"c1"}).Return(nil)
	f.audit.On("Create", mock.Anything, mock.MatchedBy(func(a *domain.AuditRecord) bool {
		return a.Action == domain.AuditActionCreate && a.UserID == "user-1"
	})).Return(nil)

	entry, err := f.svc.Create(context.Background(), KnowledgeCreateInput{
		Topic:    "gc-tuning",
		Content:  "Set GOGC carefully.",
		Tags:     []string{"golang"},
		Concepts: []string{"runtime"},
	}, "user-1")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2}, entry.Embedding)
	f.entries.AssertExpectations(t)
	f.audit.AssertExpectations(t)
}

func TestKnowledgeServiceCreateResolvesConceptPath(t *testing.T) {
	f := newKnowledgeFixture(nil)

	animalID := "c-animal"
	f.entries.On("GetByTopic", mock.Anything, "terrier-care").Return(nil, domain.ErrEntryNotFound)
	f.embedder.On("Embed", mock.Anything, mock.Anything).Return([]float32{0.1}, nil)
	f.entries.On("Create", mock.Anything, mock.Anything).Return(nil)
	f.entries.On("ReplaceTags", mock.Anything, mock.Anything, []string{}).Return(nil)
	f.concepts.On("GetByNameAndParent", mock.Anything, "animal", (*string)(nil)).
		Return(&domain.Concept{ID: animalID, Name: "animal"}, nil)
	f.concepts.On("GetByNameAndParent", mock.Anything, "dog", &animalID).
		Return(&domain.Concept{ID: "c-dog", Name: "dog", ParentID: &animalID, Level: 1}, nil)
	f.entries.On("ReplaceConcepts", mock.Anything, mock.Anything, []string{"c-dog"}).Return(nil)
	f.audit.On("Create", mock.Anything, mock.Anything).Return(nil)

	_, err := f.svc.Create(context.Background(), KnowledgeCreateInput{
		Topic:    "terrier-care",
		Content:  "Brush twice a week.",
		Concepts: []string{"animal/dog"},
	}, "user-1")
	require.NoError(t, err)
	f.concepts.AssertExpectations(t)
	f.entries.AssertExpectations(t)
}

func TestKnowledgeServiceCreateWithPrecomputedEmbedding(t *testing.T) {
	f := newKnowledgeFixture(nil)

	f.entries.On("GetByTopic", mock.Anything, "gc-tuning").Return(nil, domain.ErrEntryNotFound)
	f.entries.On("Create", mock.Anything, mock.MatchedBy(func(k *domain.KnowledgeEntry) bool {
		return len(k.Embedding) == 3 && k.Embedding[0] == float32(0.7)
	})).Return(nil)
	f.entries.On("ReplaceTags", mock.Anything, mock.Anything, []string{}).Return(nil)
	f.entries.On("ReplaceConcepts", mock.Anything, mock.Anything, []string{}).Return(nil)
	f.audit.On("Create", mock.Anything, mock.Anything).Return(nil)

	entry, err := f.svc.Create(context.Background(), KnowledgeCreateInput{
		Topic:     "gc-tuning",
		Content:   "text",
		Embedding: []float32{0.7, 0.1, 0.2},
	}, "user-1")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.7, 0.1, 0.2}, entry.Embedding)
	f.embedder.AssertNotCalled(t, "Embed", mock.Anything, mock.Anything)
}

func TestKnowledgeServiceCreateAuditCapturesFullInput(t *testing.T) {
	f := newKnowledgeFixture(nil)

	f.entries.On("GetByTopic", mock.Anything, "gc-tuning").Return(nil, domain.ErrEntryNotFound)
	f.embedder.On("Embed", mock.Anything, mock.Anything).Return([]float32{0.1}, nil)
	f.entries.On("Create", mock.Anything, mock.Anything).Return(nil)
	f.tags.On("GetByName", mock.Anything, "golang").Return(&domain.Tag{ID: "t1", Name: "golang"}, nil)
	f.entries.On("ReplaceTags", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	f.entries.On("ReplaceConcepts", mock.Anything, mock.Anything, []string{}).Return(nil)

	var recorded *domain.AuditRecord
	f.audit.On("Create", mock.Anything, mock.MatchedBy(func(a *domain.AuditRecord) bool {
		recorded = a
		return a.Action == domain.AuditActionCreate
	})).Return(nil)

	_, err := f.svc.Create(context.Background(), KnowledgeCreateInput{
		Topic:    "gc-tuning",
		Content:  "Set GOGC carefully.",
		Question: "how to tune gc?",
		Answer:   "raise GOGC",
		Metadata: map[string]any{"source": "runbook"},
		Tags:     []string{"golang"},
	}, "user-1")
	require.NoError(t, err)

	require.NotNil(t, recorded)
	original := recorded.Details["original"].(map[string]any)
	assert.Equal(t, "gc-tuning", original["topic"])
	assert.Equal(t, "Set GOGC carefully.", original["content"])
	assert.Equal(t, "how to tune gc?", original["question"])
	assert.Equal(t, "raise GOGC", original["answer"])
	assert.Equal(t, map[string]any{"source": "runbook"}, original["metadata"])
	assert.Equal(t, []string{"golang"}, original["tags"])
}

func TestKnowledgeServiceCreatePopulatesCache(t *testing.T) {
	store := cache.NewMemoryStore()
	f := newKnowledgeFixture(store)

	f.entries.On("GetByTopic", mock.Anything, "gc-tuning").Return(nil, domain.ErrEntryNotFound)
	f.embedder.On("Embed", mock.Anything, mock.Anything).Return([]float32{0.1}, nil)
	f.entries.On("Create", mock.Anything, mock.Anything).Return(nil)
	f.entries.On("ReplaceTags", mock.Anything, mock.Anything, []string{}).Return(nil)
	f.entries.On("ReplaceConcepts", mock.Anything, mock.Anything, []string{}).Return(nil)
	f.audit.On("Create", mock.Anything, mock.Anything).Return(nil)

	entry, err := f.svc.Create(context.Background(), KnowledgeCreateInput{
		Topic:   "gc-tuning",
		Content: "text",
	}, "user-1")
	require.NoError(t, err)

	_, ok, err := store.Get(context.Background(), entryCacheKey(entry.ID))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestKnowledgeServiceCreateDuplicateTopic(t *testing.T) {
	f := newKnowledgeFixture(nil)

	f.entries.On("GetByTopic", mock.Anything, "gc-tuning").
		Return(&domain.KnowledgeEntry{ID: "k1", Topic: "gc-tuning"}, nil)

	_, err := f.svc.Create(context.Background(), KnowledgeCreateInput{
		Topic:   "gc-tuning",
		Content: "text",
	}, "user-1")
	assert.ErrorIs(t, err, domain.ErrTopicAlreadyExists)
	f.embedder.AssertNotCalled(t, "Embed", mock.Anything, mock.Anything)
}

func TestKnowledgeServiceCreateUnknownConcept(t *testing.T) {
	f := newKnowledgeFixture(nil)

	f.entries.On("GetByTopic", mock.Anything, "gc-tuning").Return(nil, domain.ErrEntryNotFound)
	f.embedder.On("Embed", mock.Anything, mock.Anything).Return([]float32{0.1}, nil)
	f.entries.On("Create", mock.Anything, mock.Anything).Return(nil)
	f.entries.On("ReplaceTags", mock.Anything, mock.Anything, []string{}).Return(nil)
	f.concepts.On("GetByNameAndParent", mock.Anything, "ghost", (*string)(nil)).
		Return(nil, domain.ErrConceptNotFound)

	_, err := f.svc.Create(context.Background(), KnowledgeCreateInput{
		Topic:    "gc-tuning",
		Content:  "text",
		Concepts: []string{"ghost/town"},
	}, "user-1")
	assert.ErrorIs(t, err, domain.ErrConceptPathNotFound)
}

func TestKnowledgeServiceCreateValidation(t *testing.T) {
	f := newKnowledgeFixture(nil)

	_, err := f.svc.Create(context.Background(), KnowledgeCreateInput{Content: "text"}, "user-1")
	assert.ErrorIs(t, err, domain.ErrEmptyTopic)

	_, err = f.svc.Create(context.Background(), KnowledgeCreateInput{Topic: "topic"}, "user-1")
	assert.ErrorIs(t, err, domain.ErrEmptyContent)
}

func TestKnowledgeServiceCreateDegradedEmbedding(t *testing.T) {
	f := newKnowledgeFixture(nil)

	f.entries.On("GetByTopic", mock.Anything, "gc-tuning").Return(nil, domain.ErrEntryNotFound)
	f.embedder.On("Embed", mock.Anything, mock.Anything).Return([]float32{}, nil)
	f.entries.On("Create", mock.Anything, mock.MatchedBy(func(k *domain.KnowledgeEntry) bool {
		return !k.HasEmbedding()
	})).Return(nil)
	f.entries.On("ReplaceTags", mock.Anything, mock.Anything, []string{}).Return(nil)
	f.entries.On("ReplaceConcepts", mock.Anything, mock.Anything, []string{}).Return(nil)
	f.audit.On("Create", mock.Anything, mock.Anything).Return(nil)

	entry, err := f.svc.Create(context.Background(), KnowledgeCreateInput{
		Topic:   "gc-tuning",
		Content: "text",
	}, "user-1")
	require.NoError(t, err)
	assert.False(t, entry.HasEmbedding())
}

func TestKnowledgeServiceGetRecordsAccess(t *testing.T) {
	f := newKnowledgeFixture(nil)

	entry := &domain.KnowledgeEntry{ID: "k1", Topic: "gc-tuning", Content: "text"}
	f.entries.On("GetByID", mock.Anything, "k1").Return(entry, nil)
	f.entries.On("TouchLastAccessed", mock.Anything, []string{"k1"}, mock.Anything).Return(nil)
	f.audit.On("Create", mock.Anything, mock.MatchedBy(func(a *domain.AuditRecord) bool {
		return a.Action == domain.AuditActionAccess && a.KnowledgeID == "k1"
	})).Return(nil)

	got, err := f.svc.Get(context.Background(), "k1", "user-1")
	require.NoError(t, err)
	assert.Equal(t, "k1", got.ID)
	f.audit.AssertExpectations(t)
}

func TestKnowledgeServiceGetAuditFailureIgnored(t *testing.T) {
	f := newKnowledgeFixture(nil)

	entry := &domain.KnowledgeEntry{ID: "k1", Topic: "gc-tuning", Content: "text"}
	f.entries.On("GetByID", mock.Anything, "k1").Return(entry, nil)
	f.entries.On("TouchLastAccessed", mock.Anything, mock.Anything, mock.Anything).
		Return(domain.ErrPersistenceFailure)
	f.audit.On("Create", mock.Anything, mock.Anything).Return(domain.ErrPersistenceFailure)

	got, err := f.svc.Get(context.Background(), "k1", "user-1")
	require.NoError(t, err)
	assert.Equal(t, "k1", got.ID)
}

func TestKnowledgeServiceGetUsesCache(t *testing.T) {
	store := cache.NewMemoryStore()
	f := newKnowledgeFixture(store)

	entry := &domain.KnowledgeEntry{ID: "k1", Topic: "gc-tuning", Content: "text"}
	f.entries.On("GetByID", mock.Anything, "k1").Return(entry, nil).Once()
	f.entries.On("TouchLastAccessed", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	f.audit.On("Create", mock.Anything, mock.Anything).Return(nil)

	_, err := f.svc.Get(context.Background(), "k1", "user-1")
	require.NoError(t, err)

	// Second read is served from the cache; GetByID is only expected once.
	got, err := f.svc.Get(context.Background(), "k1", "user-1")
	require.NoError(t, err)
	assert.Equal(t, "gc-tuning", got.Topic)
	f.entries.AssertExpectations(t)
}

func TestKnowledgeServiceUpdateAuditsChanges(t *testing.T) {
	f := newKnowledgeFixture(nil)

	existing := &domain.KnowledgeEntry{
		ID: "k1", Topic: "gc-tuning", Content: "old text",
		Question:  "why tune?",
		Embedding: []float32{0.5},
		Tags:      []string{"golang"},
		Concepts:  []string{"runtime"},
	}
	f.entries.On("GetByID", mock.Anything, "k1").Return(existing, nil)
	f.embedder.On("Embed", mock.Anything, "gc-tuning\nnew text").Return([]float32{0.9}, nil)
	f.entries.On("Update", mock.Anything, mock.MatchedBy(func(k *domain.KnowledgeEntry) bool {
		return k.Content == "new text" && k.Embedding[0] == float32(0.9)
	})).Return(nil)

	var recorded *domain.AuditRecord
	f.audit.On("Create", mock.Anything, mock.MatchedBy(func(a *domain.AuditRecord) bool {
		recorded = a
		return a.Action == domain.AuditActionUpdate
	})).Return(nil)

	newContent := "new text"
	_, err := f.svc.Update(context.Background(), "k1", KnowledgeUpdateInput{Content: &newContent}, "user-1")
	require.NoError(t, err)

	require.NotNil(t, recorded)
	original := recorded.Details["original"].(map[string]any)
	changes := recorded.Details["changes"].(map[string]any)
	assert.Equal(t, "old text", original["content"])
	assert.Equal(t, "new text", changes["content"])

	// The snapshot covers the whole pre-update state, not just the
	// fields that changed.
	assert.Equal(t, "gc-tuning", original["topic"])
	assert.Equal(t, "why tune?", original["question"])
	assert.Equal(t, []string{"golang"}, original["tags"])
	assert.Equal(t, []string{"runtime"}, original["concepts"])
	assert.NotContains(t, changes, "topic")
}

func TestKnowledgeServiceUpdateNoChanges(t *testing.T) {
	f := newKnowledgeFixture(nil)

	existing := &domain.KnowledgeEntry{ID: "k1", Topic: "gc-tuning", Content: "text"}
	f.entries.On("GetByID", mock.Anything, "k1").Return(existing, nil)

	sameContent := "text"
	entry, err := f.svc.Update(context.Background(), "k1", KnowledgeUpdateInput{Content: &sameContent}, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "k1", entry.ID)
	f.embedder.AssertNotCalled(t, "Embed", mock.Anything, mock.Anything)
	f.entries.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
}

func TestKnowledgeServiceUpdateQuestionSkipsReembed(t *testing.T) {
	f := newKnowledgeFixture(nil)

	existing := &domain.KnowledgeEntry{ID: "k1", Topic: "gc-tuning", Content: "text"}
	f.entries.On("GetByID", mock.Anything, "k1").Return(existing, nil)
	f.entries.On("Update", mock.Anything, mock.Anything).Return(nil)
	f.audit.On("Create", mock.Anything, mock.Anything).Return(nil)

	question := "what is GOGC?"
	_, err := f.svc.Update(context.Background(), "k1", KnowledgeUpdateInput{Question: &question}, "user-1")
	require.NoError(t, err)
	f.embedder.AssertNotCalled(t, "Embed", mock.Anything, mock.Anything)
}

func TestKnowledgeServiceUpdateReplacesTags(t *testing.T) {
	f := newKnowledgeFixture(nil)

	existing := &domain.KnowledgeEntry{
		ID: "k1", Topic: "gc-tuning", Content: "text",
		Tags: []string{"old-tag"},
	}
	f.entries.On("GetByID", mock.Anything, "k1").Return(existing, nil)
	f.entries.On("Update", mock.Anything, mock.Anything).Return(nil)
	f.tags.On("GetByName", mock.Anything, "fresh").Return(nil, domain.ErrTagNotFound)
	f.tags.On("Create", mock.Anything, mock.Anything).Return(nil)
	f.entries.On("ReplaceTags", mock.Anything, "k1", mock.MatchedBy(func(ids []string) bool {
		return len(ids) == 1
	})).Return(nil)
	f.audit.On("Create", mock.Anything, mock.Anything).Return(nil)

	newTags := []string{"fresh"}
	entry, err := f.svc.Update(context.Background(), "k1", KnowledgeUpdateInput{Tags: &newTags}, "user-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"fresh"}, entry.Tags)
	f.entries.AssertExpectations(t)
}

func TestKnowledgeServiceDeleteAuditsFirst(t *testing.T) {
	f := newKnowledgeFixture(nil)

	entry := &domain.KnowledgeEntry{ID: "k1", Topic: "gc-tuning", Content: "text"}
	f.entries.On("GetByID", mock.Anything, "k1").Return(entry, nil)
	f.audit.On("Create", mock.Anything, mock.MatchedBy(func(a *domain.AuditRecord) bool {
		return a.Action == domain.AuditActionDelete
	})).Return(nil)
	f.entries.On("Delete", mock.Anything, "k1").Return(nil)

	require.NoError(t, f.svc.Delete(context.Background(), "k1", "user-1"))
	f.audit.AssertExpectations(t)
	f.entries.AssertExpectations(t)
}

func TestKnowledgeServiceSearchSimilar(t *testing.T) {
	f := newKnowledgeFixture(nil)

	entries := []*domain.KnowledgeEntry{
		{ID: "k1", Topic: "far", Embedding: []float32{0, 1}},
		{ID: "k2", Topic: "near", Embedding: []float32{1, 0}},
		{ID: "k3", Topic: "no-vector"},
	}
	f.embedder.On("Embed", mock.Anything, "query").Return([]float32{1, 0}, nil)
	f.entries.On("ListEmbedded", mock.Anything, []string{"golang"}, []string(nil)).Return(entries, nil)
	f.entries.On("TouchLastAccessed", mock.Anything, []string{"k2"}, mock.Anything).Return(nil)

	results, err := f.svc.SearchSimilar(context.Background(), SearchInput{
		Query:         "query",
		Limit:         5,
		MinSimilarity: 0.5,
		Tags:          []string{"golang"},
	}, "user-1")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "k2", results[0].Entry.ID)
	assert.InDelta(t, 1.0, results[0].Score, 1e-9)
	f.entries.AssertExpectations(t)
}

func TestKnowledgeServiceSearchSimilarWithQueryVector(t *testing.T) {
	f := newKnowledgeFixture(nil)

	entries := []*domain.KnowledgeEntry{{ID: "k1", Topic: "near", Embedding: []float32{1, 0}}}
	f.entries.On("ListEmbedded", mock.Anything, []string(nil), []string(nil)).Return(entries, nil)
	f.entries.On("TouchLastAccessed", mock.Anything, []string{"k1"}, mock.Anything).Return(nil)

	results, err := f.svc.SearchSimilar(context.Background(), SearchInput{
		Embedding: []float32{1, 0},
		Limit:     5,
	}, "user-1")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "k1", results[0].Entry.ID)
	f.embedder.AssertNotCalled(t, "Embed", mock.Anything, mock.Anything)
}

func TestKnowledgeServiceListByConceptPath(t *testing.T) {
	f := newKnowledgeFixture(nil)

	f.concepts.On("GetByNameAndParent", mock.Anything, "runtime", (*string)(nil)).
		Return(&domain.Concept{ID: "c1", Name: "runtime"}, nil)
	f.entries.On("ListByConcept", mock.Anything, "c1", defaultListLimit, 0).
		Return([]*domain.KnowledgeEntry{{ID: "k1", Topic: "gc-tuning"}}, nil)

	entries, err := f.svc.ListByConcept(context.Background(), "runtime", 0, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	f.entries.AssertExpectations(t)
}

func TestKnowledgeServiceListByConceptMissingPath(t *testing.T) {
	f := newKnowledgeFixture(nil)

	f.concepts.On("GetByNameAndParent", mock.Anything, "ghost", (*string)(nil)).
		Return(nil, domain.ErrConceptNotFound)

	entries, err := f.svc.ListByConcept(context.Background(), "ghost", 10, 0)
	require.NoError(t, err)
	assert.Empty(t, entries)
	f.entries.AssertNotCalled(t, "ListByConcept", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestKnowledgeServiceSearchSimilarDegradedQuery(t *testing.T) {
	f := newKnowledgeFixture(nil)

	f.embedder.On("Embed", mock.Anything, "query").Return([]float32{}, nil)

	results, err := f.svc.SearchSimilar(context.Background(), SearchInput{Query: "query", Limit: 5}, "user-1")
	require.NoError(t, err)
	assert.Empty(t, results)
	f.entries.AssertNotCalled(t, "ListEmbedded", mock.Anything, mock.Anything, mock.Anything)
}

func TestKnowledgeServiceSearchSimilarZeroLimit(t *testing.T) {
	f := newKnowledgeFixture(nil)

	results, err := f.svc.SearchSimilar(context.Background(), SearchInput{Query: "query", Limit: 0}, "user-1")
	require.NoError(t, err)
	assert.Empty(t, results)
	f.embedder.AssertNotCalled(t, "Embed", mock.Anything, mock.Anything)
}

func TestKnowledgeServiceSearchSimilarTouchFailureIgnored(t *testing.T) {
	f := newKnowledgeFixture(nil)

	entries := []*domain.KnowledgeEntry{{ID: "k1", Topic: "near", Embedding: []float32{1, 0}}}
	f.embedder.On("Embed", mock.Anything, "query").Return([]float32{1, 0}, nil)
	f.entries.On("ListEmbedded", mock.Anything, []string(nil), []string(nil)).Return(entries, nil)
	f.entries.On("TouchLastAccessed", mock.Anything, mock.Anything, mock.Anything).
		Return(domain.ErrPersistenceFailure)

	results, err := f.svc.SearchSimilar(context.Background(), SearchInput{Query: "query", Limit: 5}, "user-1")
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestKnowledgeServiceCleanupOldEntries(t *testing.T) {
	f := newKnowledgeFixture(nil)

	accessed := time.Now().Add(-60 * 24 * time.Hour)
	stale := []*domain.KnowledgeEntry{
		{ID: "k1", Topic: "old-1", LastAccessedAt: &accessed},
		{ID: "k2", Topic: "old-2"},
	}
	f.entries.On("ListNotAccessedSince", mock.Anything, mock.Anything).Return(stale, nil)
	f.audit.On("Create", mock.Anything, mock.MatchedBy(func(a *domain.AuditRecord) bool {
		return a.Action == domain.AuditActionCleanup && a.Details["reason"] == "not accessed"
	})).Return(nil).Times(2)

	flagged, err := f.svc.CleanupOldEntries(context.Background(), 30*24*time.Hour, "system")
	require.NoError(t, err)
	assert.Equal(t, 2, flagged)
	// Cleanup never deletes.
	f.entries.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
	f.audit.AssertExpectations(t)
}

func TestKnowledgeServiceCleanupEvictsCache(t *testing.T) {
	store := cache.NewMemoryStore()
	f := newKnowledgeFixture(store)

	entry := &domain.KnowledgeEntry{ID: "k1", Topic: "old-1", Content: "text"}
	f.svc.cacheEntry(context.Background(), entry)

	f.entries.On("ListNotAccessedSince", mock.Anything, mock.Anything).
		Return([]*domain.KnowledgeEntry{entry}, nil)
	f.audit.On("Create", mock.Anything, mock.Anything).Return(nil)

	flagged, err := f.svc.CleanupOldEntries(context.Background(), 30*24*time.Hour, "system")
	require.NoError(t, err)
	assert.Equal(t, 1, flagged)

	_, ok, err := store.Get(context.Background(), entryCacheKey("k1"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestKnowledgeServiceCleanupAuditFailureSkipsEntry(t *testing.T) {
	f := newKnowledgeFixture(nil)

	stale := []*domain.KnowledgeEntry{
		{ID: "k1", Topic: "old-1"},
		{ID: "k2", Topic: "old-2"},
	}
	f.entries.On("ListNotAccessedSince", mock.Anything, mock.Anything).Return(stale, nil)
	f.audit.On("Create", mock.Anything, mock.MatchedBy(func(a *domain.AuditRecord) bool {
		return a.KnowledgeID == "k1"
	})).Return(domain.ErrPersistenceFailure)
	f.audit.On("Create", mock.Anything, mock.MatchedBy(func(a *domain.AuditRecord) bool {
		return a.KnowledgeID == "k2"
	})).Return(nil)

	flagged, err := f.svc.CleanupOldEntries(context.Background(), 30*24*time.Hour, "system")
	require.NoError(t, err)
	assert.Equal(t, 1, flagged)
}

func TestKnowledgeServiceListInvalidCursor(t *testing.T) {
	f := newKnowledgeFixture(nil)

	_, err := f.svc.List(context.Background(), "%%%not-a-cursor", 10)
	require.Error(t, err)
	var domainErr *domain.DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, domain.ErrCodeValidation, domainErr.Code)
}
