package memprovider

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GambaGlobal/ai-email-project-sub000/contracts/mail"
	"github.com/GambaGlobal/ai-email-project-sub000/internal/provider"
	"github.com/GambaGlobal/ai-email-project-sub000/internal/service"
	"github.com/GambaGlobal/ai-email-project-sub000/pkg/util"
)

func seededProvider(t *testing.T) *Provider {
	t.Helper()
	p := New()
	p.SeedThread("m1", &mail.NormalizedThread{
		ID: "thread-1",
		Messages: []mail.Message{
			{
				ID:        "msg-1",
				ThreadID:  "thread-1",
				From:      &mail.Address{Email: "customer@example.com"},
				Subject:   "Where is my order?",
				BodyText:  "It has been a week.",
				Timestamp: time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC),
			},
		},
	})
	return p
}

func TestOpenThroughRegistry(t *testing.T) {
	p, err := provider.Open(Name, "")
	require.NoError(t, err)
	require.NotNil(t, p)
}

func TestListChangesFromBaseline(t *testing.T) {
	ctx := context.Background()
	p := New()

	baseline, err := p.GetBaselineCursor(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, mail.Cursor("0"), baseline)

	p.SeedThread("m1", &mail.NormalizedThread{
		ID:       "thread-1",
		Messages: []mail.Message{{ID: "msg-1", ThreadID: "thread-1"}},
	})

	result, err := p.ListChanges(ctx, "m1", baseline)
	require.NoError(t, err)
	require.Len(t, result.Changes, 1)
	assert.Equal(t, "thread-1", result.Changes[0].ThreadID)
	assert.Equal(t, mail.Cursor("1"), result.NextCursor)

	// Nothing new past the returned cursor.
	result, err = p.ListChanges(ctx, "m1", result.NextCursor)
	require.NoError(t, err)
	assert.Empty(t, result.Changes)
}

func TestListChangesBadCursorExpiresHistory(t *testing.T) {
	p := New()
	_, err := p.ListChanges(context.Background(), "m1", mail.Cursor("not-a-number"))
	var expired *provider.HistoryExpiredError
	require.ErrorAs(t, err, &expired)
}

func TestUpsertCreateThenConflict(t *testing.T) {
	ctx := context.Background()
	p := seededProvider(t)

	marker := mail.DraftMarker{DraftKey: mail.DraftKey("m1", "thread-1", mail.DraftKindAutoReply), Version: 1}
	content := mail.DraftContent{Subject: "Re: Where is my order?", BodyText: "We are on it."}
	result, err := p.UpsertThreadDraft(ctx, "m1", provider.UpsertDraftParams{
		ThreadID: "thread-1",
		Kind:     mail.DraftKindAutoReply,
		Marker:   marker,
		Content:  content,
		Headers: map[string]string{
			service.HeaderDraftKey:     marker.DraftKey,
			service.HeaderDraftVersion: "1",
		},
	})
	require.NoError(t, err)
	assert.Equal(t, mail.UpsertCreated, result.Action)
	assert.Equal(t, service.Fingerprint(marker, content), result.Fingerprint)

	// A stale fingerprint must refuse the update.
	_, err = p.UpsertThreadDraft(ctx, "m1", provider.UpsertDraftParams{
		ThreadID:            "thread-1",
		Kind:                mail.DraftKindAutoReply,
		Marker:              mail.DraftMarker{DraftKey: marker.DraftKey, Version: 2},
		Content:             mail.DraftContent{Subject: "Re: Where is my order?", BodyText: "Rewritten."},
		ExpectedFingerprint: "sha256:deadbeef",
	})
	require.Error(t, err)
	var perm *util.PermanentError
	require.ErrorAs(t, err, &perm)
	assert.Equal(t, "ownership_conflict", perm.Reason)

	// The matching fingerprint goes through.
	current, err := p.GetThreadDraft(ctx, "m1", "thread-1", mail.DraftKindAutoReply)
	require.NoError(t, err)
	storedMarker, ok := service.NewDraftGuard().ExtractMarker(current)
	require.True(t, ok)
	result, err = p.UpsertThreadDraft(ctx, "m1", provider.UpsertDraftParams{
		ThreadID:            "thread-1",
		Kind:                mail.DraftKindAutoReply,
		Marker:              mail.DraftMarker{DraftKey: marker.DraftKey, Version: 2},
		Content:             mail.DraftContent{Subject: "Re: Where is my order?", BodyText: "Rewritten."},
		ExpectedFingerprint: service.Fingerprint(storedMarker, current.DraftContent),
	})
	require.NoError(t, err)
	assert.Equal(t, mail.UpsertUpdated, result.Action)
}

func TestMissingRecipient(t *testing.T) {
	p := New()
	p.SeedThread("m1", &mail.NormalizedThread{
		ID:       "thread-1",
		Messages: []mail.Message{{ID: "msg-1", ThreadID: "thread-1", Subject: "no sender"}},
	})

	_, err := p.UpsertThreadDraft(context.Background(), "m1", provider.UpsertDraftParams{
		ThreadID: "thread-1",
		Kind:     mail.DraftKindAutoReply,
	})
	var missing *provider.MissingRecipientError
	require.ErrorAs(t, err, &missing)
}
