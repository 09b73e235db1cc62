package async

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/prisonops/lifecycle/errors"
	"github.com/prisonops/lifecycle/sym"
)

// MaxRetries is the maximum number of retry attempts for failed messages
const MaxRetries = 2

// errPermanent marks errors that must not be retried
var errPermanent = errors.New("permanent failure")

// Permanent marks err so the worker pool fails the message without retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return errors.Mark(err, errPermanent)
}

// IsPermanent reports whether a handler error must not be retried.
// Configuration and invalid-request errors are permanent: a redelivery cannot fix them.
func IsPermanent(err error) bool {
	return errors.IsAny(err, errPermanent, errors.ErrConfiguration, errors.ErrInvalidRequest)
}

// RetryDecision is what the worker pool does with a failed message
type RetryDecision string

const (
	DecisionRetry RetryDecision = "retry"
	DecisionFail  RetryDecision = "fail"
)

// Classify decides between retrying and failing a message after err.
func Classify(m *Message, err error) RetryDecision {
	if IsPermanent(err) || m.RetryCount >= MaxRetries {
		return DecisionFail
	}
	return DecisionRetry
}

// scheduleRetry puts the message back in the queue with an incremented retry count.
func scheduleRetry(m *Message, operation string, err error, log *zap.SugaredLogger) {
	m.RetryCount++
	m.Requeue(fmt.Sprintf("%s (retry %d/%d): %v", operation, m.RetryCount, MaxRetries, err))
	log.Infow(sym.Pulse+" Retry scheduled",
		"message_id", m.ID,
		"retry_count", m.RetryCount,
		"max_retries", MaxRetries,
		"operation", operation,
	)
}
