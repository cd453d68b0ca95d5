package domain

import "time"

// Concept is a node in the hierarchical taxonomy used to classify
// knowledge entries. The parent graph is a forest: ParentID is nil for
// roots and no concept may be its own ancestor.
type Concept struct {
	ID          string
	Name        string
	ParentID    *string
	Level       int
	Description string
	CreatedBy   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// IsRoot reports whether the concept has no parent.
func (c *Concept) IsRoot() bool {
	return c.ParentID == nil
}

// ConceptNode is a concept with its resolved children, as returned by
// hierarchy export.
type ConceptNode struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Level       int            `json:"level"`
	Children    []*ConceptNode `json:"children"`
}

// ValidConceptName reports whether name satisfies the concept format rule.
// Concepts share the tag name format.
func ValidConceptName(name string) bool {
	return ValidTagName(name)
}

// ValidateConcept validates a Concept instance
func ValidateConcept(c *Concept) error {
	if c == nil {
		return NewDomainError(ErrCodeValidation, "concept cannot be nil")
	}

	if c.ID == "" {
		return NewDomainError(ErrCodeValidation, "concept ID is required")
	}

	if !ValidConceptName(c.Name) {
		return ErrInvalidConceptName
	}

	if c.Level < 0 {
		return NewDomainError(ErrCodeValidation, "concept level cannot be negative")
	}

	if c.ParentID == nil && c.Level != 0 {
		return NewDomainError(ErrCodeValidation, "root concept must have level 0")
	}

	return nil
}
