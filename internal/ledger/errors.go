package ledger

import (
	"errors"
)

// Sentinel errors returned by the ledger service. Callers match them with
// errors.Is; the service always wraps them with the offending values.
var (
	ErrInvalidParameter    = errors.New("invalid parameter")
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrRefundWindowExpired = errors.New("refund window expired")
	ErrDuplicateRefund     = errors.New("duplicate refund")
	ErrTransactionNotFound = errors.New("original transaction not found")
	ErrBalanceDrift        = errors.New("cached balance disagrees with outstanding entries")
)

// resultLabel turns an operation error into a low-cardinality metrics label.
func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrBalanceDrift):
		return "balance_drift"
	case errors.Is(err, ErrInvalidParameter):
		return "invalid_parameter"
	case errors.Is(err, ErrInsufficientCredits):
		return "insufficient_credits"
	case errors.Is(err, ErrRefundWindowExpired):
		return "refund_window_expired"
	case errors.Is(err, ErrDuplicateRefund):
		return "duplicate_refund"
	case errors.Is(err, ErrTransactionNotFound):
		return "transaction_not_found"
	default:
		return "error"
	}
}
