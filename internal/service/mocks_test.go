package service

import (
	"context"
	"fmt"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/veritas-labs/lorebase/internal/domain"
	"github.com/veritas-labs/lorebase/internal/pagination"
)

// MockKnowledgeRepository is a mock implementation of KnowledgeRepositoryInterface
type MockKnowledgeRepository struct {
	mock.Mock
}

func (m *MockKnowledgeRepository) Create(ctx context.Context, k *domain.KnowledgeEntry) error {
	args := m.Called(ctx, k)
	return args.Error(0)
}

func (m *MockKnowledgeRepository) GetByID(ctx context.Context, id string) (*domain.KnowledgeEntry, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.KnowledgeEntry), args.Error(1)
}

func (m *MockKnowledgeRepository) GetByTopic(ctx context.Context, topic string) (*domain.KnowledgeEntry, error) {
	args := m.Called(ctx, topic)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.KnowledgeEntry), args.Error(1)
}

func (m *MockKnowledgeRepository) List(ctx context.Context, cursor *pagination.Cursor, limit int) (*EntryPage, error) {
	args := m.Called(ctx, cursor, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*EntryPage), args.Error(1)
}

func (m *MockKnowledgeRepository) ListByTag(ctx context.Context, tagName string, limit, offset int) ([]*domain.KnowledgeEntry, error) {
	args := m.Called(ctx, tagName, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.KnowledgeEntry), args.Error(1)
}

func (m *MockKnowledgeRepository) ListByConcept(ctx context.Context, conceptID string, limit, offset int) ([]*domain.KnowledgeEntry, error) {
	args := m.Called(ctx, conceptID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.KnowledgeEntry), args.Error(1)
}

func (m *MockKnowledgeRepository) Update(ctx context.Context, k *domain.KnowledgeEntry) error {
	args := m.Called(ctx, k)
	return args.Error(0)
}

func (m *MockKnowledgeRepository) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockKnowledgeRepository) UpdateEmbedding(ctx context.Context, id string, embedding []float32) error {
	args := m.Called(ctx, id, embedding)
	return args.Error(0)
}

func (m *MockKnowledgeRepository) ReplaceTags(ctx context.Context, knowledgeID string, tagIDs []string) error {
	args := m.Called(ctx, knowledgeID, tagIDs)
	return args.Error(0)
}

func (m *MockKnowledgeRepository) ReplaceConcepts(ctx context.Context, knowledgeID string, conceptIDs []string) error {
	args := m.Called(ctx, knowledgeID, conceptIDs)
	return args.Error(0)
}

func (m *MockKnowledgeRepository) ListEmbedded(ctx context.Context, filterTags, filterConcepts []string) ([]*domain.KnowledgeEntry, error) {
	args := m.Called(ctx, filterTags, filterConcepts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.KnowledgeEntry), args.Error(1)
}

func (m *MockKnowledgeRepository) ListMissingEmbedding(ctx context.Context) ([]*domain.KnowledgeEntry, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.KnowledgeEntry), args.Error(1)
}

func (m *MockKnowledgeRepository) ListNotAccessedSince(ctx context.Context, cutoff time.Time) ([]*domain.KnowledgeEntry, error) {
	args := m.Called(ctx, cutoff)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.KnowledgeEntry), args.Error(1)
}

func (m *MockKnowledgeRepository) TouchLastAccessed(ctx context.Context, ids []string, ts time.Time) error {
	args := m.Called(ctx, ids, ts)
	return args.Error(0)
}

// MockTagRepository is a mock implementation of TagRepositoryInterface
type MockTagRepository struct {
	mock.Mock
}

func (m *MockTagRepository) Create(ctx context.Context, t *domain.Tag) error {
	args := m.Called(ctx, t)
	return args.Error(0)
}

func (m *MockTagRepository) GetByID(ctx context.Context, id string) (*domain.Tag, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Tag), args.Error(1)
}

func (m *MockTagRepository) GetByName(ctx context.Context, name string) (*domain.Tag, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Tag), args.Error(1)
}

func (m *MockTagRepository) List(ctx context.Context) ([]*domain.Tag, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Tag), args.Error(1)
}

func (m *MockTagRepository) Update(ctx context.Context, t *domain.Tag) error {
	args := m.Called(ctx, t)
	return args.Error(0)
}

func (m *MockTagRepository) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockTagRepository) DeleteOrphaned(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

// MockConceptRepository is a mock implementation of ConceptRepositoryInterface
type MockConceptRepository struct {
	mock.Mock
}

func (m *MockConceptRepository) Create(ctx context.Context, c *domain.Concept) error {
	args := m.Called(ctx, c)
	return args.Error(0)
}

func (m *MockConceptRepository) GetByID(ctx context.Context, id string) (*domain.Concept, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Concept), args.Error(1)
}

func (m *MockConceptRepository) GetByNameAndParent(ctx context.Context, name string, parentID *string) (*domain.Concept, error) {
	args := m.Called(ctx, name, parentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Concept), args.Error(1)
}

func (m *MockConceptRepository) ListChildren(ctx context.Context, parentID *string) ([]*domain.Concept, error) {
	args := m.Called(ctx, parentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Concept), args.Error(1)
}

func (m *MockConceptRepository) Update(ctx context.Context, c *domain.Concept) error {
	args := m.Called(ctx, c)
	return args.Error(0)
}

func (m *MockConceptRepository) UpdateLevel(ctx context.Context, id string, level int) error {
	args := m.Called(ctx, id, level)
	return args.Error(0)
}

func (m *MockConceptRepository) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockConceptRepository) CountChildren(ctx context.Context, id string) (int64, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockConceptRepository) CountEntryLinks(ctx context.Context, id string) (int64, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockConceptRepository) DeleteOrphaned(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

// MockAuditRepository is a mock implementation of AuditRepositoryInterface
type MockAuditRepository struct {
	mock.Mock
}

func (m *MockAuditRepository) Create(ctx context.Context, a *domain.AuditRecord) error {
	args := m.Called(ctx, a)
	return args.Error(0)
}

func (m *MockAuditRepository) ListByKnowledgeID(ctx context.Context, knowledgeID string) ([]*domain.AuditRecord, error) {
	args := m.Called(ctx, knowledgeID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.AuditRecord), args.Error(1)
}

// MockEmbedder is a mock implementation of Embedder
type MockEmbedder struct {
	mock.Mock
}

func (m *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	args := m.Called(ctx, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]float32), args.Error(1)
}

func (m *MockEmbedder) EmbedBatch(ctx context.Context, texts []string, chunkSize int) ([][]float32, error) {
	args := m.Called(ctx, texts, chunkSize)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([][]float32), args.Error(1)
}

// stubTxRunner hands a fixed repository set to the closure, standing in
// for a real database transaction.
type stubTxRunner struct {
	repos *stubTxRepos
	err   error
}

func (r *stubTxRunner) WithTx(ctx context.Context, fn func(repos TxRepositories) error) error {
	if r.err != nil {
		return r.err
	}
	return fn(r.repos)
}

type stubTxRepos struct {
	entries  *MockKnowledgeRepository
	tags     *MockTagRepository
	concepts *MockConceptRepository
	audit    *MockAuditRepository
}

func (r *stubTxRepos) Entries() KnowledgeRepositoryInterface  { return r.entries }
func (r *stubTxRepos) Tags() TagRepositoryInterface           { return r.tags }
func (r *stubTxRepos) Concepts() ConceptRepositoryInterface   { return r.concepts }
func (r *stubTxRepos) Audit() AuditRepositoryInterface        { return r.audit }

// seqUUIDGenerator yields deterministic IDs for assertions.
type seqUUIDGenerator struct {
	prefix string
	n      int
}

func (g *seqUUIDGenerator) NewString() string {
	g.n++
	return fmt.Sprintf("%s-%d", g.prefix, g.n)
}
