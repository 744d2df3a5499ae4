package reconcile

import (
	"errors"
	"fmt"
)

// Business-rule errors returned to callers. Controllers map these to HTTP
// codes with errors.Is; anything else is treated as internal.
var (
	ErrNotFound             = errors.New("not found")
	ErrInvalidState         = errors.New("invalid state")
	ErrValidation           = errors.New("validation failed")
	ErrDuplicateTransaction = errors.New("duplicate transaction")
)

func notFound(what, id string) error {
	return fmt.Errorf("%s %s: %w", what, id, ErrNotFound)
}

func invalidState(transactionID, status string) error {
	return fmt.Errorf("transaction %s is %s, not pending: %w", transactionID, status, ErrInvalidState)
}

func validation(msg string) error {
	return fmt.Errorf("%s: %w", msg, ErrValidation)
}
