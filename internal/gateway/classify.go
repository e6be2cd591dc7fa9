package gateway

import (
	"context"
	"errors"
	"net/http"

	"github.com/causekit/causekit/pkg/models"
)

// classifyStatus maps an HTTP status from a provider API onto the error
// vocabulary. 5xx counts as transient and is the only class the gateway
// retries.
func classifyStatus(provider string, status int, err error) *models.ClassifiedError {
	var kind models.ErrorKind
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		kind = models.ErrKindProviderAuth
	case status == http.StatusPaymentRequired || status == http.StatusTooManyRequests:
		kind = models.ErrKindProviderQuota
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		kind = models.ErrKindProviderTimeout
	case status >= 500:
		kind = models.ErrKindProviderUnavailable
	default:
		kind = models.ErrKindProviderUnavailable
	}
	return models.NewClassifiedError(kind, provider, err)
}

// classifyTransport handles errors without an HTTP status: deadline hits
// become timeouts, everything else (connection reset, refused, DNS) is a
// transient unavailable.
func classifyTransport(provider string, err error) *models.ClassifiedError {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return models.NewClassifiedError(models.ErrKindProviderTimeout, provider, err)
	}
	return models.NewClassifiedError(models.ErrKindProviderUnavailable, provider, err)
}

// isTransient reports whether a classified attempt error may be retried.
// Exactly the unavailable kind qualifies; auth, quota, timeout, and
// malformed replies fail the attempt immediately.
func isTransient(err error) bool {
	return models.KindOf(err) == models.ErrKindProviderUnavailable
}
