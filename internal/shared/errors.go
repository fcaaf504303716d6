package shared

import "errors"

// Error kinds shared by the receiving ledger and the match engine. Packages
// wrap them with context; the HTTP layer maps them with errors.Is.
var (
	// ErrNotFound indicates a referenced PO, bill or exception does not exist.
	ErrNotFound = errors.New("not found")
	// ErrOverReceipt indicates a receive would push a line past its ordered quantity.
	ErrOverReceipt = errors.New("over receipt")
	// ErrInvalidTransition indicates the entity state does not permit the operation.
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrInsufficientRole indicates the actor lacks a role required by the approval tier.
	ErrInsufficientRole = errors.New("insufficient role")
	// ErrInvalidReasonCode indicates the reason is not among the company's configured codes.
	ErrInvalidReasonCode = errors.New("invalid reason code")
	// ErrValidation indicates malformed input.
	ErrValidation = errors.New("validation failed")
	// ErrConflict indicates a concurrent or duplicate request.
	ErrConflict = errors.New("conflict")
)

var errorKinds = []struct {
	err  error
	kind string
}{
	{ErrNotFound, "NotFound"},
	{ErrOverReceipt, "OverReceipt"},
	{ErrInvalidTransition, "InvalidTransition"},
	{ErrInsufficientRole, "InsufficientRole"},
	{ErrInvalidReasonCode, "InvalidReasonCode"},
	{ErrValidation, "Validation"},
	{ErrConflict, "Conflict"},
}

// Kind names the error kind of err, or returns "Internal" for unclassified errors.
func Kind(err error) string {
	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return "Internal"
}
