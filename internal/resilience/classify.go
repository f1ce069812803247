package resilience

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/lib/pq"
)

// HTTPError carries a downstream HTTP status so the classifier can decide
// whether the call is worth retrying. Body is truncated by the producer.
type HTTPError struct {
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("http status %d", e.Status)
	}
	return fmt.Sprintf("http status %d: %s", e.Status, e.Body)
}

// transientPQCodes are data-store error codes worth retrying: serialization
// failures, deadlocks, cancelled statements, connection-level failures, and
// an exhausted connection pool.
var transientPQCodes = map[string]struct{}{
	"40001": {}, // serialization_failure
	"40P01": {}, // deadlock_detected
	"57014": {}, // query_canceled (statement timeout)
	"08000": {}, // connection_exception
	"08003": {}, // connection_does_not_exist
	"08006": {}, // connection_failure
	"53300": {}, // too_many_connections
}

// IsTransient classifies err as retryable. Timeouts, HTTP 408/429/5xx, and a
// fixed set of data-store error codes are transient. Everything else,
// including context cancellation, propagates immediately.
func IsTransient(err error) bool {
	return isTransient(err, nil)
}

// isTransient is IsTransient with extra HTTP status codes treated as
// retryable on top of the built-in set.
func isTransient(err error, extraStatusCodes []int) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		switch {
		case httpErr.Status == http.StatusRequestTimeout:
			return true
		case httpErr.Status == http.StatusTooManyRequests:
			return true
		case httpErr.Status >= 500:
			return true
		}
		for _, code := range extraStatusCodes {
			if httpErr.Status == code {
				return true
			}
		}
		return false
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		_, ok := transientPQCodes[string(pqErr.Code)]
		return ok
	}

	// Network-level failures without a typed error (refused/reset during
	// dial) arrive as *net.OpError.
	var opErr *net.OpError
	return errors.As(err, &opErr)
}
