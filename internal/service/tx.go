package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/veritas-labs/lorebase/internal/domain"
	"github.com/veritas-labs/lorebase/internal/pagination"
)

// KnowledgeRepositoryInterface defines the repository interface for
// knowledge entry persistence.
type KnowledgeRepositoryInterface interface {
	Create(ctx context.Context, k *domain.KnowledgeEntry) error
	GetByID(ctx context.Context, id string) (*domain.KnowledgeEntry, error)
	GetByTopic(ctx context.Context, topic string) (*domain.KnowledgeEntry, error)
	List(ctx context.Context, cursor *pagination.Cursor, limit int) (*EntryPage, error)
	ListByTag(ctx context.Context, tagName string, limit, offset int) ([]*domain.KnowledgeEntry, error)
	ListByConcept(ctx context.Context, conceptID string, limit, offset int) ([]*domain.KnowledgeEntry, error)
	Update(ctx context.Context, k *domain.KnowledgeEntry) error
	Delete(ctx context.Context, id string) error
	UpdateEmbedding(ctx context.Context, id string, embedding []float32) error
	ReplaceTags(ctx context.Context, knowledgeID string, tagIDs []string) error
	ReplaceConcepts(ctx context.Context, knowledgeID string, conceptIDs []string) error

	// ListEmbedded returns search candidates: entries with a non-null
	// embedding that carry at least one of filterTags AND at least one of
	// filterConcepts, both matched by name (each filter applied only when
	// non-empty).
	ListEmbedded(ctx context.Context, filterTags, filterConcepts []string) ([]*domain.KnowledgeEntry, error)
	ListMissingEmbedding(ctx context.Context) ([]*domain.KnowledgeEntry, error)
	ListNotAccessedSince(ctx context.Context, cutoff time.Time) ([]*domain.KnowledgeEntry, error)
	TouchLastAccessed(ctx context.Context, ids []string, ts time.Time) error
}

// TagRepositoryInterface defines the repository interface for tag persistence.
type TagRepositoryInterface interface {
	Create(ctx context.Context, t *domain.Tag) error
	GetByID(ctx context.Context, id string) (*domain.Tag, error)
	GetByName(ctx context.Context, name string) (*domain.Tag, error)
	List(ctx context.Context) ([]*domain.Tag, error)
	Update(ctx context.Context, t *domain.Tag) error
	Delete(ctx context.Context, id string) error

	// DeleteOrphaned removes tags referenced by zero entries and returns
	// the number removed.
	DeleteOrphaned(ctx context.Context) (int64, error)
}

// ConceptRepositoryInterface defines the repository interface for concept
// persistence.
type ConceptRepositoryInterface interface {
	Create(ctx context.Context, c *domain.Concept) error
	GetByID(ctx context.Context, id string) (*domain.Concept, error)
	GetByNameAndParent(ctx context.Context, name string, parentID *string) (*domain.Concept, error)
	ListChildren(ctx context.Context, parentID *string) ([]*domain.Concept, error)
	Update(ctx context.Context, c *domain.Concept) error
	UpdateLevel(ctx context.Context, id string, level int) error
	Delete(ctx context.Context, id string) error
	CountChildren(ctx context.Context, id string) (int64, error)
	CountEntryLinks(ctx context.Context, id string) (int64, error)

	// DeleteOrphaned removes concepts with zero entry links and zero
	// children and returns the number removed.
	DeleteOrphaned(ctx context.Context) (int64, error)
}

// AuditRepositoryInterface defines the repository interface for the
// append-only audit trail.
type AuditRepositoryInterface interface {
	Create(ctx context.Context, a *domain.AuditRecord) error
	ListByKnowledgeID(ctx context.Context, knowledgeID string) ([]*domain.AuditRecord, error)
}

// EntryPage is one page of knowledge entries.
type EntryPage struct {
	Items      []*domain.KnowledgeEntry
	NextCursor string
	HasMore    bool
}

// TxRepositories provides transaction-bound repositories.
type TxRepositories interface {
	Entries() KnowledgeRepositoryInterface
	Tags() TagRepositoryInterface
	Concepts() ConceptRepositoryInterface
	Audit() AuditRepositoryInterface
}

// TxRunner executes a function within a transaction. The transaction is
// rolled back when fn returns an error and committed otherwise.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(repos TxRepositories) error) error
}

// Embedder generates embedding vectors for free text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string, chunkSize int) ([][]float32, error)
}

// UUIDGenerator defines interface for UUID generation (for testing)
type UUIDGenerator interface {
	NewString() string
}

// DefaultUUIDGenerator is the default UUID generator using google/uuid
type DefaultUUIDGenerator struct{}

// NewString generates a new UUID string
func (g *DefaultUUIDGenerator) NewString() string {
	return uuid.NewString()
}
