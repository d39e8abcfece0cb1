package yahoo

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	yfclient "github.com/wnjoon/go-yfinance/pkg/client"

	"github.com/aristath/metrics-updater/internal/domain"
)

// APIError is a non-2xx response from Yahoo Finance. It unwraps to the
// go-yfinance error for its status, so yfclient.IsRateLimitError and
// friends work on it.
type APIError struct {
	StatusCode int
	Message    string
	Err        *yfclient.YFError
}

func newAPIError(status int, body string) *APIError {
	return &APIError{
		StatusCode: status,
		Message:    errorMessage(status, body),
		Err:        yfclient.HTTPStatusToError(status, body),
	}
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("Yahoo Finance API returned status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("Yahoo Finance API returned status %d", e.StatusCode)
}

func (e *APIError) Unwrap() error {
	if e.Err == nil {
		return nil
	}
	return e.Err
}

// HTTPStatus exposes the status code to failure classification
func (e *APIError) HTTPStatus() int {
	return e.StatusCode
}

// IsRetryable returns true for rate limits and server errors
func (e *APIError) IsRetryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// IsRateLimited returns true for 429 responses
func (e *APIError) IsRateLimited() bool {
	return e.StatusCode == http.StatusTooManyRequests
}

// SessionError is a failure of the Yahoo cookie/crumb session. It does not
// expose the HTTP status of the underlying response: a dead session says
// nothing about the symbol being looked up.
type SessionError struct {
	Err error
}

func (e *SessionError) Error() string {
	return fmt.Sprintf("Yahoo session unavailable: %v", e.Err)
}

func (e *SessionError) Unwrap() error {
	return domain.ErrProviderUnavailable
}

// sessionFailure wraps an error from acquiring the crumb. go-yfinance
// reports a throttled crumb request only in the message text.
func sessionFailure(err error) error {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "rate limited") || strings.Contains(msg, "too many requests") {
		return &APIError{
			StatusCode: http.StatusTooManyRequests,
			Message:    "rate limited while refreshing session",
			Err:        yfclient.WrapRateLimitError(),
		}
	}
	return &SessionError{Err: err}
}

// isAuthRejection reports a 401 or 403 from a data endpoint
func isAuthRejection(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && yfclient.IsAuthError(apiErr)
}
