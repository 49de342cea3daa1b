package resilience

import (
	"context"
	"errors"
	"net"

	"github.com/kirillkom/medscript-analyzer/internal/core/domain"
)

// TemporaryClassifier retries errors marked domain.ErrTemporary and network
// errors. Caller cancellation is neither retried nor counted against the breaker.
func TemporaryClassifier(err error) ErrorClassification {
	if errors.Is(err, context.Canceled) {
		return ErrorClassification{}
	}
	if domain.IsKind(err, domain.ErrTemporary) || errors.Is(err, context.DeadlineExceeded) {
		return ErrorClassification{Retryable: true, RecordFailure: true}
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return ErrorClassification{Retryable: true, RecordFailure: true}
	}
	return ErrorClassification{Retryable: false, RecordFailure: false}
}

// StoreWriteClassifier retries every record store error except the ones a retry
// cannot change.
func StoreWriteClassifier(err error) ErrorClassification {
	switch {
	case errors.Is(err, context.Canceled),
		domain.IsKind(err, domain.ErrInvalidTransition),
		domain.IsKind(err, domain.ErrDocumentNotFound),
		domain.IsKind(err, domain.ErrInvalidInput):
		return ErrorClassification{}
	default:
		return ErrorClassification{Retryable: true, RecordFailure: true}
	}
}
