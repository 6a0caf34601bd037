package bridge

import (
	"errors"
	"fmt"
)

// Category classifies bridge errors along the propagation boundaries
// that matter to callers: validation failures never reach the network,
// transaction and extraction failures abort initiation, attestation
// failures distinguish a quiet service from a broken one. Claim
// failures are not errors at all; they are returned in ClaimResult.
type Category int

const (
	// CategoryValidation marks a caller mistake: bad amount, malformed
	// address or hex payload, unsupported destination. Always raised
	// synchronously, before any external call.
	CategoryValidation Category = iota + 1
	// CategoryTransaction marks an on-chain execution failure during
	// the approval or burn step.
	CategoryTransaction
	// CategoryExtraction marks a successful burn receipt that carries
	// no matching MessageSent log.
	CategoryExtraction
	// CategoryAttestationTimeout marks an exhausted polling budget
	// while the attestation was still pending.
	CategoryAttestationTimeout
	// CategoryAttestationService marks a polling budget exhausted by
	// persistent transport errors.
	CategoryAttestationService
)

func (c Category) String() string {
	switch c {
	case CategoryValidation:
		return "validation"
	case CategoryTransaction:
		return "transaction"
	case CategoryExtraction:
		return "extraction"
	case CategoryAttestationTimeout:
		return "attestation_timeout"
	case CategoryAttestationService:
		return "attestation_service"
	default:
		return "unknown"
	}
}

// Error is the bridge error type carrying a Category.
type Error struct {
	Category Category
	Message  string
	Err      error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// IsCategory checks that err is a bridge Error with the given
// category.
func IsCategory(err error, cat Category) bool {
	var bridgeErr *Error
	return errors.As(err, &bridgeErr) && bridgeErr.Category == cat
}

// ValidationErrorf returns a CategoryValidation error.
func ValidationErrorf(format string, args ...any) error {
	return &Error{Category: CategoryValidation, Message: fmt.Sprintf(format, args...)}
}

// TransactionErrorf returns a CategoryTransaction error.
func TransactionErrorf(format string, args ...any) error {
	return &Error{Category: CategoryTransaction, Message: fmt.Sprintf(format, args...)}
}

// WrapTransactionError wraps an underlying chain client error as a
// CategoryTransaction error.
func WrapTransactionError(err error, format string, args ...any) error {
	return &Error{Category: CategoryTransaction, Message: fmt.Sprintf(format, args...), Err: err}
}

// ExtractionErrorf returns a CategoryExtraction error.
func ExtractionErrorf(format string, args ...any) error {
	return &Error{Category: CategoryExtraction, Message: fmt.Sprintf(format, args...)}
}

// AttestationTimeoutError returns a CategoryAttestationTimeout error
// for a poll budget exhausted while still pending.
func AttestationTimeoutError(attempts int) error {
	return &Error{
		Category: CategoryAttestationTimeout,
		Message:  fmt.Sprintf("attestation still pending after %d attempts", attempts),
	}
}

// AttestationServiceError wraps a transport error observed on the
// final polling attempt.
func AttestationServiceError(err error) error {
	return &Error{
		Category: CategoryAttestationService,
		Message:  "attestation service unavailable",
		Err:      err,
	}
}
