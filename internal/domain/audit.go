package domain

import "time"

// AuditAction identifies the kind of mutation or access recorded.
type AuditAction string

const (
	AuditActionCreate  AuditAction = "create"
	AuditActionUpdate  AuditAction = "update"
	AuditActionDelete  AuditAction = "delete"
	AuditActionAccess  AuditAction = "access"
	AuditActionCleanup AuditAction = "cleanup"
)

// AuditRecord is an immutable log row for a knowledge entry. Records are
// append-only and outlive the entry they describe; application logic
// never mutates or deletes them.
type AuditRecord struct {
	ID          string
	KnowledgeID string
	UserID      string // empty for system actions
	Action      AuditAction
	Details     map[string]any
	Timestamp   time.Time
}

// ValidateAuditRecord validates an AuditRecord instance
func ValidateAuditRecord(a *AuditRecord) error {
	if a == nil {
		return NewDomainError(ErrCodeValidation, "audit record cannot be nil")
	}

	if a.ID == "" {
		return NewDomainError(ErrCodeValidation, "audit record ID is required")
	}

	if a.KnowledgeID == "" {
		return NewDomainError(ErrCodeValidation, "audit record KnowledgeID is required")
	}

	if !isValidAuditAction(a.Action) {
		return ErrInvalidAuditAction
	}

	return nil
}

func isValidAuditAction(a AuditAction) bool {
	switch a {
	case AuditActionCreate, AuditActionUpdate, AuditActionDelete,
		AuditActionAccess, AuditActionCleanup:
		return true
	}
	return false
}
