package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrVariantNotFound     = errors.New("variant not found")
	ErrInvalidQuantity     = errors.New("quantity must be positive")
	ErrItemNotFound        = errors.New("item not found in cart")
	ErrEmptyCart           = errors.New("cart is empty, nothing to checkout")
	ErrUnsupportedCurrency = errors.New("unsupported currency")

	// ErrRemoteRejected marks a request the remote cart API understood and refused.
	// Retrying it cannot succeed.
	ErrRemoteRejected = errors.New("remote cart rejected the request")

	// ErrCartNotFound means the remote no longer knows a cart id, usually because
	// the cart expired or was checked out.
	ErrCartNotFound = errors.New("remote cart not found")

	// ErrSyncFailed is surfaced once the retry ceiling is exhausted.
	ErrSyncFailed = errors.New("cart synchronization failed")
)

// UserError is a field-level rejection reported inside a successful response.
type UserError struct {
	Field   []string `json:"field,omitempty"`
	Code    string   `json:"code,omitempty"`
	Message string   `json:"message"`
}

// UserErrors is returned when the remote API answers with a non-empty userErrors list.
type UserErrors struct {
	Action string
	Errors []UserError
}

func (e *UserErrors) Error() string {
	parts := make([]string, 0, len(e.Errors))
	for _, ue := range e.Errors {
		msg := strings.TrimSpace(ue.Message)
		if msg == "" {
			continue
		}
		if len(ue.Field) > 0 {
			msg = fmt.Sprintf("%s: %s", strings.Join(ue.Field, "."), msg)
		}
		parts = append(parts, msg)
	}
	if len(parts) == 0 {
		return fmt.Sprintf("%s failed with user errors", e.Action)
	}
	return fmt.Sprintf("%s failed: %s", e.Action, strings.Join(parts, "; "))
}

func (e *UserErrors) Is(target error) bool {
	return target == ErrRemoteRejected
}
