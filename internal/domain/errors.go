package domain

import "fmt"

// DomainError represents a domain-specific error
type DomainError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is matches errors by code so wrapped copies of a sentinel still compare equal.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code && e.Message == t.Message
}

// NewDomainError creates a new DomainError
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     nil,
	}
}

// NewDomainErrorWithCause creates a new DomainError with an underlying cause
func NewDomainErrorWithCause(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Common domain error codes
const (
	ErrCodeValidation    = "VALIDATION_ERROR"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeAlreadyExists = "ALREADY_EXISTS"
	ErrCodeCycle         = "CYCLE_ERROR"
	ErrCodeProvider      = "PROVIDER_ERROR"
	ErrCodeRateLimited   = "RATE_LIMITED"
	ErrCodePersistence   = "PERSISTENCE_ERROR"
	ErrCodeUnauthorized  = "UNAUTHORIZED"
	ErrCodeInternalError = "INTERNAL_ERROR"
)

// Validation errors
var (
	ErrEmptyTopic         = NewDomainError(ErrCodeValidation, "topic must not be empty")
	ErrEmptyContent       = NewDomainError(ErrCodeValidation, "content must not be empty")
	ErrEmptyText          = NewDomainError(ErrCodeValidation, "text must not be empty")
	ErrInvalidTagName     = NewDomainError(ErrCodeValidation, "tag name must be at least 2 characters of letters, digits, underscore or hyphen")
	ErrInvalidConceptName = NewDomainError(ErrCodeValidation, "concept name must be at least 2 characters of letters, digits, underscore or hyphen")
	ErrInvalidAuditAction = NewDomainError(ErrCodeValidation, "invalid audit action")
)

// Not found errors
var (
	ErrEntryNotFound       = NewDomainError(ErrCodeNotFound, "knowledge entry not found")
	ErrTagNotFound         = NewDomainError(ErrCodeNotFound, "tag not found")
	ErrConceptNotFound     = NewDomainError(ErrCodeNotFound, "concept not found")
	ErrConceptPathNotFound = NewDomainError(ErrCodeNotFound, "concept path not found")
	ErrParentConceptNotFound = NewDomainError(ErrCodeNotFound, "parent concept not found")
)

// Already exists errors
var (
	ErrTopicAlreadyExists   = NewDomainError(ErrCodeAlreadyExists, "knowledge entry with this topic already exists")
	ErrTagAlreadyExists     = NewDomainError(ErrCodeAlreadyExists, "tag with this name already exists")
	ErrConceptAlreadyExists = NewDomainError(ErrCodeAlreadyExists, "concept with this name already exists at this level")
)

// Graph errors
var (
	ErrConceptCycle = NewDomainError(ErrCodeCycle, "reparenting would create a cycle in the concept hierarchy")
	ErrConceptHasChildren = NewDomainError(ErrCodeValidation, "concept still has child concepts")
)

// Provider errors
var (
	ErrProviderFailure = NewDomainError(ErrCodeProvider, "embedding provider request failed")
	ErrRateLimited     = NewDomainError(ErrCodeRateLimited, "embedding provider rate limit exceeded")
)

// Persistence errors
var (
	ErrPersistenceFailure = NewDomainError(ErrCodePersistence, "storage operation failed")
)
