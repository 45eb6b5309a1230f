package gcp

import (
	"context"
	"errors"
	"net"
	"strings"

	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// IsNotFound reports whether err is a 404 from a Google API.
func IsNotFound(err error) bool {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Code == 404
	}
	if s, ok := status.FromError(err); ok {
		return s.Code() == codes.NotFound
	}
	return false
}

// IsConflict reports whether err is a 409, e.g. a resource that already exists.
func IsConflict(err error) bool {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Code == 409
	}
	if s, ok := status.FromError(err); ok {
		return s.Code() == codes.AlreadyExists
	}
	return false
}

// IsAuthError returns true if the error indicates expired or invalid GCP credentials.
func IsAuthError(err error) bool {
	if err == nil {
		return false
	}

	var gerr *googleapi.Error
	if errors.As(err, &gerr) && (gerr.Code == 401 || gerr.Code == 403) {
		return true
	}

	msg := err.Error()
	return strings.Contains(msg, "oauth2: cannot fetch token") ||
		strings.Contains(msg, "invalid_grant") ||
		strings.Contains(msg, "token expired")
}

// IsRetryable reports whether a failed call may succeed when repeated:
// rate limiting, server errors, and network failures. Token refresh
// failures are retried once the token source has a chance to recover.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}

	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Code == 429 || gerr.Code >= 500
	}
	if s, ok := status.FromError(err); ok && s.Code() != codes.Unknown {
		switch s.Code() {
		case codes.Unavailable, codes.ResourceExhausted, codes.DeadlineExceeded, codes.Aborted, codes.Internal:
			return true
		}
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "oauth2: cannot fetch token") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "connection refused")
}

// Classifier implements provisioning.RetryClassifier for drivers backed by Google APIs.
type Classifier struct{}

// IsRetryable implements provisioning.RetryClassifier.
func (Classifier) IsRetryable(err error) bool {
	return IsRetryable(err)
}
