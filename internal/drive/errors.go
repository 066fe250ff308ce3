// Package drive wraps the Google Drive v3 REST API behind the three remote
// operations the sync pipeline needs: ensure-folder-path, upload-file, and
// delete-file (plus delete-then-reupload update). Errors crossing this
// boundary carry a Kind tag so the retry policy can classify them without
// string matching.
package drive

import (
	"fmt"
	"net/http"
	"strings"
)

// Kind classifies a remote failure for the retry policy.
type Kind int

const (
	// KindUnknown covers failures with no better classification; the retry
	// policy treats them as transient until the budget is spent.
	KindUnknown Kind = iota
	// KindNetwork is a transport-level failure (DNS, reset, timeout).
	KindNetwork
	// KindRateLimited is an HTTP 429.
	KindRateLimited
	// KindServer is an HTTP 5xx.
	KindServer
	// KindAuth is an HTTP 401 (missing, expired, or revoked credential).
	KindAuth
	// KindPermission is an HTTP 403 without a quota reason.
	KindPermission
	// KindQuota is an HTTP 403 carrying a Drive storage-quota reason.
	KindQuota
	// KindNotFound is an HTTP 404.
	KindNotFound
	// KindInvalidFile is an HTTP 400 or 413 (rejected or oversized content).
	KindInvalidFile
)

// String returns the kind name used in logs and stored error messages.
func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindRateLimited:
		return "rate_limited"
	case KindServer:
		return "server"
	case KindAuth:
		return "auth"
	case KindPermission:
		return "permission_denied"
	case KindQuota:
		return "quota_exceeded"
	case KindNotFound:
		return "not_found"
	case KindInvalidFile:
		return "invalid_file"
	default:
		return "unknown"
	}
}

// Error is a classified failure from the Drive API boundary. StatusCode is
// zero for transport-level failures.
type Error struct {
	Kind       Kind
	StatusCode int
	Message    string
	Err        error // underlying transport error, when any
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("drive: %s (HTTP %d): %s", e.Kind, e.StatusCode, e.Message)
	}

	return fmt.Sprintf("drive: %s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// quotaReasons are Drive API 403 reason markers that mean storage quota,
// not permissions. The response body is JSON; a substring check is enough
// to split the two without a full error-schema decode.
var quotaReasons = []string{
	"storageQuotaExceeded",
	"quotaExceeded",
	"The user's Drive storage quota has been exceeded",
}

// classifyStatus maps a non-2xx HTTP response to a Kind.
func classifyStatus(code int, body string) Kind {
	switch {
	case code == http.StatusUnauthorized:
		return KindAuth
	case code == http.StatusForbidden:
		for _, reason := range quotaReasons {
			if strings.Contains(body, reason) {
				return KindQuota
			}
		}

		return KindPermission
	case code == http.StatusNotFound:
		return KindNotFound
	case code == http.StatusBadRequest || code == http.StatusRequestEntityTooLarge:
		return KindInvalidFile
	case code == http.StatusTooManyRequests:
		return KindRateLimited
	case code >= http.StatusInternalServerError:
		return KindServer
	default:
		return KindUnknown
	}
}

// statusError builds a classified error from a non-2xx response.
func statusError(code int, body string) *Error {
	return &Error{
		Kind:       classifyStatus(code, body),
		StatusCode: code,
		Message:    strings.TrimSpace(body),
	}
}

// networkError wraps a transport failure as KindNetwork.
func networkError(context string, err error) *Error {
	return &Error{
		Kind:    KindNetwork,
		Message: context + ": " + err.Error(),
		Err:     err,
	}
}
