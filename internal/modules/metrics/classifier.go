// Package metrics implements the financial metrics refresh cycle: candidate
// selection, per-ticker fetching, failure classification and batched writes
// back to the sheet.
package metrics

import (
	"errors"
	"net/http"
	"strings"

	"github.com/aristath/metrics-updater/internal/domain"
)

// statusCoder is implemented by errors that carry an HTTP status code
type statusCoder interface {
	HTTPStatus() int
}

// transientStatuses are infrastructure failures expected to clear on retry
var transientStatuses = map[int]bool{
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

// StatusCode extracts the HTTP status carried anywhere in the error chain
func StatusCode(err error) (int, bool) {
	var sc statusCoder
	if errors.As(err, &sc) {
		return sc.HTTPStatus(), true
	}
	return 0, false
}

// IsRateLimited reports whether the error is a 429 response, or mentions 429
func IsRateLimited(err error) bool {
	if err == nil {
		return false
	}
	if code, ok := StatusCode(err); ok && code == http.StatusTooManyRequests {
		return true
	}
	return strings.Contains(err.Error(), "429")
}

// Classify maps an error to a failure class. Rules apply in order:
//  1. 429 status, "429" in the message, or an unavailable provider: rate limited
//  2. status in {429, 500, 502, 503, 504}: transient
//  3. no status at all (validation, business rule): permanent
//  4. any other status: permanent
func Classify(err error) domain.FailureClass {
	if IsRateLimited(err) || errors.Is(err, domain.ErrProviderUnavailable) {
		return domain.FailureRateLimited
	}

	code, ok := StatusCode(err)
	if !ok {
		return domain.FailurePermanent
	}
	if transientStatuses[code] {
		return domain.FailureTransient
	}
	return domain.FailurePermanent
}
