package domain

import (
	"regexp"
	"time"
)

// nameFormat covers both tag and concept names: alphanumeric, underscore,
// hyphen, at least two characters.
var nameFormat = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Tag is a flat label attached to knowledge entries.
// Tags are created lazily during entry creation and removed by orphan
// cleanup once no entry references them.
type Tag struct {
	ID          string
	Name        string
	Description string
	CreatedBy   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ValidTagName reports whether name satisfies the tag format rule.
func ValidTagName(name string) bool {
	return len(name) >= 2 && nameFormat.MatchString(name)
}

// ValidateTag validates a Tag instance
func ValidateTag(t *Tag) error {
	if t == nil {
		return NewDomainError(ErrCodeValidation, "tag cannot be nil")
	}

	if t.ID == "" {
		return NewDomainError(ErrCodeValidation, "tag ID is required")
	}

	if !ValidTagName(t.Name) {
		return ErrInvalidTagName
	}

	return nil
}
