package types

import "fmt"

// ErrorCategory is the closed set of error categories every operation may
// surface through Envelope.Error.
type ErrorCategory string

const (
	ErrValidation              ErrorCategory = "VALIDATION_ERROR"
	ErrDatabaseNotFound        ErrorCategory = "DATABASE_NOT_FOUND"
	ErrDatabaseNotSelected     ErrorCategory = "DATABASE_NOT_SELECTED"
	ErrDatabaseAlreadyExists   ErrorCategory = "DATABASE_ALREADY_EXISTS"
	ErrDocumentNotFound        ErrorCategory = "DOCUMENT_NOT_FOUND"
	ErrProvenanceNotFound      ErrorCategory = "PROVENANCE_NOT_FOUND"
	ErrProvenanceChainBroken   ErrorCategory = "PROVENANCE_CHAIN_BROKEN"
	ErrIntegrityVerification   ErrorCategory = "INTEGRITY_VERIFICATION_FAILED"
	ErrInvalidChain            ErrorCategory = "INVALID_CHAIN"
	ErrPathNotFound            ErrorCategory = "PATH_NOT_FOUND"
	ErrPathNotDirectory        ErrorCategory = "PATH_NOT_DIRECTORY"
	ErrPermissionDenied        ErrorCategory = "PERMISSION_DENIED"
	ErrEmbeddingFailed         ErrorCategory = "EMBEDDING_FAILED"
	ErrOcrAPIError             ErrorCategory = "OCR_API_ERROR"
	ErrOcrRateLimit            ErrorCategory = "OCR_RATE_LIMIT"
	ErrOcrTimeout              ErrorCategory = "OCR_TIMEOUT"
	ErrInternal                ErrorCategory = "INTERNAL_ERROR"
)

// AppError is the structured error internal packages return where a
// failure has a known category, so the engine layer can translate it into
// an Envelope without string-sniffing. Other failures are plain wrapped
// errors.
type AppError struct {
	Category ErrorCategory  `json:"category"`
	Message  string         `json:"message"`
	Details  map[string]any `json:"details,omitempty"`
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Category, e.Message)
}

// NewAppError constructs an AppError, optionally attaching details.
func NewAppError(category ErrorCategory, message string, details map[string]any) *AppError {
	return &AppError{Category: category, Message: message, Details: details}
}

// AsAppError unwraps err into an *AppError if it is one, otherwise wraps it
// as INTERNAL_ERROR. Used at package boundaries where a lower layer may
// still return a plain error (e.g. from database/sql).
func AsAppError(err error) *AppError {
	if err == nil {
		return nil
	}
	if ae, ok := err.(*AppError); ok {
		return ae
	}
	return &AppError{Category: ErrInternal, Message: err.Error()}
}
