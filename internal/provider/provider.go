// Package provider defines the mail change provider boundary. One
// implementation exists per mail system; this repository only consumes the
// contract and never speaks a provider's wire protocol itself.
package provider

import (
	"context"

	"github.com/GambaGlobal/ai-email-project-sub000/contracts/mail"
)

// ListChangesResult is the provider's answer to a list-changes call.
type ListChangesResult struct {
	Changes    []mail.MailChange
	NextCursor mail.Cursor
}

// LabelSpec asks the provider to ensure a label exists.
type LabelSpec struct {
	Key  string // stable key the pipeline addresses the label by
	Name string // display name on the provider side
}

// UpsertDraftParams carries everything a provider needs to create or
// update a system-owned draft on a thread.
type UpsertDraftParams struct {
	ThreadID string
	Kind     mail.DraftKind
	Marker   mail.DraftMarker
	Content  mail.DraftContent
	Headers  map[string]string
	// ExpectedFingerprint, when set, is the optimistic-concurrency token:
	// the provider adapter must refuse the update if the current draft's
	// fingerprint differs.
	ExpectedFingerprint string
}

// MailChangeProvider is the external mail system capability consumed by
// the sync engine and the writeback stage.
type MailChangeProvider interface {
	// ListChanges lists changes since cursor. Returns a
	// *HistoryExpiredError when the cursor is outside retention.
	ListChanges(ctx context.Context, mailboxID string, cursor mail.Cursor) (*ListChangesResult, error)

	// GetBaselineCursor returns the cursor a fresh bootstrap starts from.
	GetBaselineCursor(ctx context.Context, mailboxID string) (mail.Cursor, error)

	// GetThread fetches a thread in normalized form.
	GetThread(ctx context.Context, mailboxID, threadID string) (*mail.NormalizedThread, error)

	// GetThreadDraft returns the current draft of the given kind on the
	// thread, or nil when none exists. The writeback stage runs the
	// ownership/fingerprint guard over the result before any update.
	GetThreadDraft(ctx context.Context, mailboxID, threadID string, kind mail.DraftKind) (*mail.Draft, error)

	// EnsureLabels creates any missing labels and returns their ids by key.
	EnsureLabels(ctx context.Context, mailboxID string, specs []LabelSpec) (map[string]string, error)

	// SetThreadStateLabels sets the thread's exclusive state label.
	SetThreadStateLabels(ctx context.Context, mailboxID, threadID string, state mail.ThreadState, labelIDsByKey map[string]string) error

	// UpsertThreadDraft creates or updates the draft. Returns a
	// *MissingRecipientError when the thread has no usable reply
	// recipient.
	UpsertThreadDraft(ctx context.Context, mailboxID string, params UpsertDraftParams) (*mail.UpsertResult, error)
}
