package domain

import "fmt"

// NotFoundError reports an unknown order, driver or route stop.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Resource, e.ID)
}

// ValidationError reports a rejected input: bad status, malformed amount,
// wallet ceiling exceeded. Operations returning it leave state unchanged.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Reason
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}

// LocationUnavailableError is returned when an operation needs a position
// (route start, driver location) and none is known.
type LocationUnavailableError struct {
	Subject string
}

func (e *LocationUnavailableError) Error() string {
	return fmt.Sprintf("location unavailable for %s", e.Subject)
}

// LedgerIntegrityError reports a broken hash chain or an unsealed block.
type LedgerIntegrityError struct {
	BlockID int64
	Reason  string
}

func (e *LedgerIntegrityError) Error() string {
	return fmt.Sprintf("ledger integrity: block %d: %s", e.BlockID, e.Reason)
}

func NotFound(resource string, id any) error {
	return &NotFoundError{Resource: resource, ID: fmt.Sprint(id)}
}

func Invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}
