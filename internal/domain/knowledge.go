package domain

import (
	"time"
)

// KnowledgeEntry represents a single knowledge base entry.
// Embedding is nil until the provider has vectorized the content;
// a nil or zero-norm embedding excludes the entry from similarity ranking.
type KnowledgeEntry struct {
	ID             string
	Topic          string
	Content        string
	Question       string
	Answer         string
	Metadata       map[string]any
	Embedding      []float32
	CreatedBy      string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	LastAccessedAt *time.Time

	// Association names, loaded alongside the entry.
	Tags     []string
	Concepts []string
}

// HasEmbedding reports whether the entry carries a usable embedding vector.
func (k *KnowledgeEntry) HasEmbedding() bool {
	return len(k.Embedding) > 0
}

// ValidateKnowledgeEntry validates a KnowledgeEntry instance
func ValidateKnowledgeEntry(k *KnowledgeEntry) error {
	if k == nil {
		return NewDomainError(ErrCodeValidation, "knowledge entry cannot be nil")
	}

	if k.ID == "" {
		return NewDomainError(ErrCodeValidation, "knowledge entry ID is required")
	}

	if k.Topic == "" {
		return ErrEmptyTopic
	}

	if k.Content == "" {
		return ErrEmptyContent
	}

	if k.CreatedBy == "" {
		return NewDomainError(ErrCodeValidation, "knowledge entry CreatedBy is required")
	}

	return nil
}
