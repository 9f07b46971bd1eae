package shopify

import (
	"errors"
	"fmt"
	"strings"

	"github.com/fjod/go_cart/storefront/internal/domain"
)

// HTTPStatusError is a non-2xx answer from the storefront endpoint. It is a
// transport failure and never matches domain.ErrRemoteRejected.
type HTTPStatusError struct {
	StatusCode int
	Status     string
	Body       string
}

func newHTTPStatusError(statusCode int, status string, body []byte) error {
	return &HTTPStatusError{
		StatusCode: statusCode,
		Status:     status,
		Body:       strings.TrimSpace(string(body)),
	}
}

func (e *HTTPStatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("shopify request failed: %s", e.Status)
	}
	return fmt.Sprintf("shopify request failed: %s: %s", e.Status, e.Body)
}

// IsHTTPStatusError reports whether err carries a non-2xx storefront answer.
func IsHTTPStatusError(err error) bool {
	var httpErr *HTTPStatusError
	return errors.As(err, &httpErr)
}

func isThrottleGraphQLError(errs []graphQLError) bool {
	for _, e := range errs {
		if strings.Contains(strings.ToLower(e.Message), "throttled") {
			return true
		}
		if code, ok := e.Extensions["code"].(string); ok && strings.EqualFold(code, "THROTTLED") {
			return true
		}
	}
	return false
}

func userErrorsToError(action string, errs []domain.UserError) error {
	if len(errs) == 0 {
		return nil
	}
	return &domain.UserErrors{Action: action, Errors: errs}
}
