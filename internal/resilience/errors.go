package resilience

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"
)

// ErrNotFound indicates an identity that could not be resolved even after a
// cache refresh. It is the only component error that always aborts a run.
var ErrNotFound = errors.New("identity: company not found")

// TransientError wraps an error that is safe to retry (e.g., 429, 5xx, network timeout).
type TransientError struct {
	Err        error
	StatusCode int
}

func (e *TransientError) Error() string {
	return e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// NewTransientError wraps an error as transient with an optional HTTP status code.
func NewTransientError(err error, statusCode int) *TransientError {
	return &TransientError{Err: err, StatusCode: statusCode}
}

// SchemaValidationError reports an oracle response that failed validation
// against its target extraction schema. The message is fed back to the oracle
// as corrective context on the next attempt.
type SchemaValidationError struct {
	Section string
	Detail  string
}

func (e *SchemaValidationError) Error() string {
	return fmt.Sprintf("schema validation (%s): %s", e.Section, e.Detail)
}

// CorruptArchiveError reports a filing archive that is empty or not a valid
// container. Non-retryable; degrades the whole unstructured branch.
type CorruptArchiveError struct {
	ReceiptNo string
	Reason    string
}

func (e *CorruptArchiveError) Error() string {
	return fmt.Sprintf("corrupt archive %s: %s", e.ReceiptNo, e.Reason)
}

// ParseDriftError reports a crawled page whose layout no longer matches the
// expected table positions. Degrades a single field, never the run.
type ParseDriftError struct {
	Page  string
	Field string
}

func (e *ParseDriftError) Error() string {
	return fmt.Sprintf("parse drift on %s: field %s not located", e.Page, e.Field)
}

// IsTransient returns true if the error (or any error in its chain) is a
// TransientError, or if it matches common transient error patterns (network
// timeouts, connection resets, DNS failures).
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var te *TransientError
	if errors.As(err, &te) {
		return true
	}

	// Validation, archive and drift failures have their own degradation
	// paths; retrying them with the same input cannot help.
	var sv *SchemaValidationError
	var ca *CorruptArchiveError
	var pd *ParseDriftError
	if errors.As(err, &sv) || errors.As(err, &ca) || errors.As(err, &pd) {
		return false
	}
	if errors.Is(err, ErrNotFound) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	// String-based heuristics for wrapped errors from HTTP clients.
	msg := strings.ToLower(err.Error())
	transientPatterns := []string{
		"connection reset by peer",
		"broken pipe",
		"temporary failure in name resolution",
		"no such host",
		"tls handshake timeout",
		"i/o timeout",
		"server closed idle connection",
		"transport connection broken",
	}
	for _, p := range transientPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}

	return false
}

// IsTransientHTTPStatus returns true if the HTTP status code indicates a
// transient server-side issue that is safe to retry.
func IsTransientHTTPStatus(statusCode int) bool {
	switch statusCode {
	case 408, // Request Timeout
		429, // Too Many Requests
		500, // Internal Server Error
		502, // Bad Gateway
		503, // Service Unavailable
		504: // Gateway Timeout
		return true
	default:
		return false
	}
}
