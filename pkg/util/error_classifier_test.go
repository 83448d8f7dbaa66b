package util

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"syscall"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
)

type domainPermanentError struct{}

func (domainPermanentError) Error() string           { return "no usable recipient" }
func (domainPermanentError) PermanentReason() string { return "missing_recipient" }

func TestClassify(t *testing.T) {
	var jsonShapeErr error
	jsonShapeErr = json.Unmarshal([]byte(`{"n":"x"}`), &struct{ N int }{})

	tests := []struct {
		name       string
		err        error
		wantKind   ErrorKind
		wantReason string
	}{
		{name: "nil", err: nil, wantKind: KindTransient, wantReason: ""},
		{name: "domain permanent", err: domainPermanentError{}, wantKind: KindPermanent, wantReason: "missing_recipient"},
		{name: "wrapped domain permanent", err: fmt.Errorf("writeback: %w", domainPermanentError{}), wantKind: KindPermanent, wantReason: "missing_recipient"},
		{name: "explicit permanent wrap", err: Permanent("bad_input", errors.New("nope")), wantKind: KindPermanent, wantReason: "bad_input"},
		{name: "json type error", err: jsonShapeErr, wantKind: KindPermanent, wantReason: "json_decode_error"},
		{name: "no rows", err: fmt.Errorf("lookup: %w", pgx.ErrNoRows), wantKind: KindPermanent, wantReason: "row_not_found"},
		{name: "context canceled", err: context.Canceled, wantKind: KindTransient, wantReason: "context_canceled"},
		{name: "deadline exceeded", err: context.DeadlineExceeded, wantKind: KindTransient, wantReason: "timeout"},
		{name: "etimedout", err: syscall.ETIMEDOUT, wantKind: KindTransient, wantReason: "timeout"},
		{name: "connection reset", err: syscall.ECONNRESET, wantKind: KindTransient, wantReason: "connection_error"},
		{name: "rate limit text", err: errors.New("provider said: rate limit exceeded"), wantKind: KindTransient, wantReason: "transient_signal"},
		{name: "502 text", err: errors.New("unexpected status 502 from upstream"), wantKind: KindTransient, wantReason: "transient_signal"},
		{name: "validation text", err: errors.New("validation failed: subject required"), wantKind: KindPermanent, wantReason: "validation_error"},
		{name: "malformed text", err: errors.New("malformed thread id"), wantKind: KindPermanent, wantReason: "validation_error"},
		// "invalid ... timeout" carries both signals; transient wins so the
		// queue gets its retries before anything is buried in the DLQ.
		{name: "ambiguous both signals", err: errors.New("invalid response: timeout while reading"), wantKind: KindTransient, wantReason: "transient_signal"},
		{name: "unknown defaults transient", err: errors.New("something odd happened"), wantKind: KindTransient, wantReason: "unknown_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.err)
			assert.Equal(t, tt.wantKind, got.Kind)
			assert.Equal(t, tt.wantReason, got.Reason)
		})
	}
}

func TestShouldRetry(t *testing.T) {
	transient := Classification{Kind: KindTransient, Reason: "timeout"}
	permanent := Classification{Kind: KindPermanent, Reason: "validation_error"}

	assert.True(t, ShouldRetry(1, 5, transient))
	assert.False(t, ShouldRetry(5, 5, transient))
	assert.False(t, ShouldRetry(1, 5, permanent))
}

func TestPermanentErrorUnwrap(t *testing.T) {
	cause := errors.New("root")
	err := Permanent("reason", cause)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "reason")
}
