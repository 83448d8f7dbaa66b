package mqhandler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/GambaGlobal/ai-email-project-sub000/contracts/mail"
	mqcontracts "github.com/GambaGlobal/ai-email-project-sub000/contracts/mq"
	"github.com/GambaGlobal/ai-email-project-sub000/internal/service"
)

type fakeSyncRunner struct {
	result      *service.SyncResult
	syncErr     error
	commits     int
	clears      int
	syncCalls   []bool // commitCursor flags in call order
	afterClear  *service.SyncResult
	clearedOnce bool
}

func (f *fakeSyncRunner) Sync(ctx context.Context, tenantID, mailboxID string, commitCursor bool) (*service.SyncResult, error) {
	f.syncCalls = append(f.syncCalls, commitCursor)
	if f.clearedOnce && f.afterClear != nil {
		return f.afterClear, nil
	}
	if f.syncErr != nil {
		return nil, f.syncErr
	}
	return f.result, nil
}

func (f *fakeSyncRunner) Commit(ctx context.Context, tenantID, mailboxID string, result *service.SyncResult) error {
	f.commits++
	return nil
}

func (f *fakeSyncRunner) ClearState(ctx context.Context, tenantID, mailboxID string) error {
	f.clears++
	f.clearedOnce = true
	return nil
}

func syncPayload() mqcontracts.MailboxSyncPayload {
	return mqcontracts.MailboxSyncPayload{
		MailboxRef: mqcontracts.MailboxRef{TenantID: "t1", MailboxID: "m1", UserID: "u1"},
	}
}

func TestMailboxSyncFanOutDeterministic(t *testing.T) {
	runner := &fakeSyncRunner{result: &service.SyncResult{
		Mode:       mail.SyncModeIncremental,
		NextCursor: "1010",
		Changes: []mail.MailChange{
			{Kind: mail.ChangeMessageAdded, ThreadID: "B", MessageID: "msg2"},
			{Kind: mail.ChangeMessageAdded, ThreadID: "A", MessageID: "msg1"},
			{Kind: mail.ChangeMessageAdded, ThreadID: "B", MessageID: "msg3"},
		},
	}}
	enq := &recordingEnqueuer{}
	h := NewMailboxSyncHandler(runner, enq, true, zap.NewNop())

	err := h.Handle(context.Background(), makeJob(t, "mailbox_sync", syncPayload()))
	require.NoError(t, err)

	// Snapshot pass is read-only; the cursor commit is a separate, final step.
	assert.Equal(t, []bool{false}, runner.syncCalls)
	assert.Equal(t, 1, runner.commits)

	// Thread-id sorted fan-out, triggering message id lexicographically
	// greatest within each group.
	require.Len(t, enq.calls, 2)
	assert.Equal(t, "fetch_thread", enq.calls[0].Stage)

	first := enq.calls[0].Payload.(mqcontracts.FetchThreadPayload)
	assert.Equal(t, "A", first.ThreadID)
	assert.Equal(t, "msg1", first.TriggeringMessageID)

	second := enq.calls[1].Payload.(mqcontracts.FetchThreadPayload)
	assert.Equal(t, "B", second.ThreadID)
	assert.Equal(t, "msg3", second.TriggeringMessageID)

	// Re-running identical work derives identical job ids.
	assert.Equal(t,
		mqcontracts.MakeJobID(mqcontracts.StageFetchThread, "t1", "m1", "A", "msg1"),
		enq.calls[0].JobID,
	)
}

func TestMailboxSyncFanOutDisabled(t *testing.T) {
	runner := &fakeSyncRunner{result: &service.SyncResult{
		Mode:    mail.SyncModeIncremental,
		Changes: []mail.MailChange{{Kind: mail.ChangeMessageAdded, ThreadID: "A", MessageID: "m"}},
	}}
	enq := &recordingEnqueuer{}
	h := NewMailboxSyncHandler(runner, enq, false, zap.NewNop())

	err := h.Handle(context.Background(), makeJob(t, "mailbox_sync", syncPayload()))
	require.NoError(t, err)

	// The read-only pass still ran, but nothing was enqueued or committed.
	assert.Equal(t, []bool{false}, runner.syncCalls)
	assert.Empty(t, enq.calls)
	assert.Equal(t, 0, runner.commits)
}

func TestMailboxSyncRebootstrapsOnResync(t *testing.T) {
	runner := &fakeSyncRunner{
		syncErr:    &service.ResyncRequiredError{TenantID: "t1", MailboxID: "m1", Cursor: "100"},
		afterClear: &service.SyncResult{Mode: mail.SyncModeBootstrap, NextCursor: "2000"},
	}
	enq := &recordingEnqueuer{}
	h := NewMailboxSyncHandler(runner, enq, true, zap.NewNop())

	err := h.Handle(context.Background(), makeJob(t, "mailbox_sync", syncPayload()))
	require.NoError(t, err)

	assert.Equal(t, 1, runner.clears)
	// First pass read-only, re-bootstrap commits.
	assert.Equal(t, []bool{false, true}, runner.syncCalls)
	assert.Empty(t, enq.calls)
}

func TestMailboxSyncEnqueueFailureSkipsCommit(t *testing.T) {
	runner := &fakeSyncRunner{result: &service.SyncResult{
		Mode:    mail.SyncModeIncremental,
		Changes: []mail.MailChange{{Kind: mail.ChangeMessageAdded, ThreadID: "A", MessageID: "m"}},
	}}
	enq := &recordingEnqueuer{err: assert.AnError}
	h := NewMailboxSyncHandler(runner, enq, true, zap.NewNop())

	err := h.Handle(context.Background(), makeJob(t, "mailbox_sync", syncPayload()))
	require.Error(t, err)
	assert.Equal(t, 0, runner.commits)
}

func TestGroupByThreadSkipsEmptyThreadIDs(t *testing.T) {
	groups := groupByThread([]mail.MailChange{
		{Kind: mail.ChangeMessageAdded, ThreadID: "", MessageID: "x"},
		{Kind: mail.ChangeThreadLabelsChanged, ThreadID: "A"},
	})
	assert.Equal(t, map[string]string{"A": ""}, groups)
}
