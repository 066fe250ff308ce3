// Package sync implements the offline photo-sync pipeline: the retry policy,
// the per-operation upload executor, the gated serial queue processor, and
// the operation enqueuer. The durable outbox lives in internal/store; the
// remote object client lives in internal/drive (or internal/s3store).
package sync

import (
	"errors"
	"strings"
	"time"

	"github.com/balancewise/photosync/internal/drive"
)

// MaxRetries is the transient-failure retry ceiling per operation.
const MaxRetries = 3

// retryDelays is the fixed backoff schedule: attempt 0 → 10s, 1 → 30s,
// then 60s for every further attempt. The schedule is stamped onto the
// operation's not-before deadline at requeue time.
var retryDelays = []time.Duration{
	10 * time.Second,
	30 * time.Second,
	60 * time.Second,
}

// DelayFor returns the backoff delay to apply after the given retry count.
func DelayFor(retryCount int) time.Duration {
	if retryCount < 0 {
		retryCount = 0
	}

	if retryCount >= len(retryDelays) {
		return retryDelays[len(retryDelays)-1]
	}

	return retryDelays[retryCount]
}

// ShouldRetry reports whether an operation with the given retry count still
// has retry budget.
func ShouldRetry(retryCount int) bool {
	return retryCount < MaxRetries
}

// permanentPatterns classify untyped error messages that will never succeed
// on retry. Fallback only: errors from the Drive client carry a typed Kind.
var permanentPatterns = []string{
	"quota exceeded",
	"storage full",
	"permission denied",
	"file too large",
	"invalid file",
}

// retryablePatterns classify untyped error messages as transient.
var retryablePatterns = []string{
	"network",
	"timeout",
	"connection",
	"econnreset",
	"etimedout",
	"refused",
}

// IsPermanent reports whether the error will never succeed on retry.
// Classified drive errors are matched on their Kind; anything else falls
// back to message-substring classification.
func IsPermanent(err error) bool {
	if err == nil {
		return false
	}

	var de *drive.Error
	if errors.As(err, &de) {
		switch de.Kind {
		case drive.KindQuota, drive.KindPermission, drive.KindAuth, drive.KindInvalidFile:
			return true
		default:
			return false
		}
	}

	msg := strings.ToLower(err.Error())
	for _, p := range permanentPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}

	return false
}

// IsRetryable reports whether the error looks transient. Unknown errors are
// neither permanent nor retryable by pattern; the executor retries anything
// not permanent until the budget is spent, so this is advisory.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var de *drive.Error
	if errors.As(err, &de) {
		switch de.Kind {
		case drive.KindNetwork, drive.KindRateLimited, drive.KindServer:
			return true
		default:
			return false
		}
	}

	msg := strings.ToLower(err.Error())
	for _, p := range retryablePatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}

	return false
}
