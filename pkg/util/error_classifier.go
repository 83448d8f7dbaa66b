package util

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/url"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5"
)

// ErrorKind is the closed classification of a stage failure. Call sites
// switch on the kind instead of re-deriving heuristics from error shape.
type ErrorKind int

const (
	// KindTransient errors are left to the queue's retry/backoff.
	KindTransient ErrorKind = iota
	// KindPermanent errors are captured into the DLQ and never retried.
	KindPermanent
)

// Classification pairs the kind with a stable reason string for logs,
// metrics and DLQ rows.
type Classification struct {
	Kind   ErrorKind
	Reason string
}

func (c Classification) Permanent() bool { return c.Kind == KindPermanent }

// permanentReasoner is implemented by domain errors that are permanent by
// construction (missing recipient, ownership conflict, explicit wraps).
type permanentReasoner interface {
	PermanentReason() string
}

// PermanentError marks any error as permanent with an explicit reason.
type PermanentError struct {
	Reason string
	Err    error
}

func (e *PermanentError) Error() string {
	if e.Err != nil {
		return e.Reason + ": " + e.Err.Error()
	}
	return e.Reason
}

func (e *PermanentError) Unwrap() error           { return e.Err }
func (e *PermanentError) PermanentReason() string { return e.Reason }

// Permanent wraps err as a permanent failure.
func Permanent(reason string, err error) error {
	return &PermanentError{Reason: reason, Err: err}
}

// validation keywords that mark a payload as unprocessable
var permanentKeywords = []string{
	"validation",
	"invalid",
	"malformed",
	"missing required",
	"cannot unmarshal",
}

var transientKeywords = []string{
	"timeout",
	"etimedout",
	"deadline exceeded",
	"connection reset",
	"connection refused",
	"broken pipe",
	"rate limit",
	"too many requests",
	"status 429",
	"status 500",
	"status 502",
	"status 503",
	"status 504",
	"internal server error",
	"bad gateway",
	"service unavailable",
	"temporarily unavailable",
}

// Classify maps an error onto the closed {Transient, Permanent(reason)}
// variant. Ambiguity defaults to Transient so the queue's bounded
// retry/backoff gets a chance before anything lands in the DLQ.
func Classify(err error) Classification {
	if err == nil {
		return Classification{Kind: KindTransient, Reason: ""}
	}

	// Domain errors carry their own permanent reason.
	var pr permanentReasoner
	if errors.As(err, &pr) {
		return Classification{Kind: KindPermanent, Reason: pr.PermanentReason()}
	}

	// Shape errors: the payload itself is broken, retrying cannot help.
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return Classification{Kind: KindPermanent, Reason: "json_decode_error"}
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return Classification{Kind: KindPermanent, Reason: "row_not_found"}
	}

	if errors.Is(err, context.Canceled) {
		return Classification{Kind: KindTransient, Reason: "context_canceled"}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Classification{Kind: KindTransient, Reason: "timeout"}
	}
	if errors.Is(err, syscall.ETIMEDOUT) {
		return Classification{Kind: KindTransient, Reason: "timeout"}
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) {
		return Classification{Kind: KindTransient, Reason: "connection_error"}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return Classification{Kind: KindTransient, Reason: "network_timeout"}
		}
		return Classification{Kind: KindTransient, Reason: "network_error"}
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return Classification{Kind: KindTransient, Reason: "network_error"}
	}

	errStr := strings.ToLower(err.Error())
	for _, kw := range transientKeywords {
		if strings.Contains(errStr, kw) {
			return Classification{Kind: KindTransient, Reason: "transient_signal"}
		}
	}
	for _, kw := range permanentKeywords {
		if strings.Contains(errStr, kw) {
			return Classification{Kind: KindPermanent, Reason: "validation_error"}
		}
	}

	return Classification{Kind: KindTransient, Reason: "unknown_error"}
}

// ShouldRetry reports whether a transient failure still has attempts left.
func ShouldRetry(attempt int64, maxAttempts int64, class Classification) bool {
	if class.Permanent() {
		return false
	}
	return attempt < maxAttempts
}
