package mqhandler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/GambaGlobal/ai-email-project-sub000/contracts/mail"
	mqcontracts "github.com/GambaGlobal/ai-email-project-sub000/contracts/mq"
	"github.com/GambaGlobal/ai-email-project-sub000/internal/service"
)

func threadRef() mqcontracts.ThreadRef {
	return mqcontracts.ThreadRef{
		MailboxRef:          mqcontracts.MailboxRef{TenantID: "t1", MailboxID: "m1", UserID: "u1"},
		ThreadID:            "thr1",
		TriggeringMessageID: "msg1",
	}
}

func TestTriageEmptyThreadNeedsReview(t *testing.T) {
	enq := &recordingEnqueuer{}
	h := NewTriageHandler(service.NewTriageEngine(nil), enq, zap.NewNop())

	payload := mqcontracts.TriagePayload{ThreadRef: threadRef(), Thread: mail.NormalizedThread{ID: "thr1"}}
	err := h.Handle(context.Background(), makeJob(t, "triage", payload))
	require.NoError(t, err)

	require.Len(t, enq.calls, 1)
	assert.Equal(t, "retrieve", enq.calls[0].Stage)
	forwarded := enq.calls[0].Payload.(mqcontracts.RetrievePayload)
	assert.Equal(t, mail.ActionNeedsReview, forwarded.Decision.Action)
	assert.Equal(t, mail.ReasonProviderError, forwarded.Decision.Reason)
}

func TestTriageIgnoreStopsPipeline(t *testing.T) {
	enq := &recordingEnqueuer{}
	h := NewTriageHandler(service.NewTriageEngine([]string{"op@example.com"}), enq, zap.NewNop())

	// Spam thread classifies as ignore.
	payload := mqcontracts.TriagePayload{
		ThreadRef: threadRef(),
		Thread: mail.NormalizedThread{
			ID: "thr1",
			Messages: []mail.Message{{
				ID:        "m1",
				From:      &mail.Address{Email: "spammer@example.com"},
				LabelIDs:  []string{"SPAM"},
				Timestamp: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
			}},
		},
	}
	err := h.Handle(context.Background(), makeJob(t, "triage", payload))
	require.NoError(t, err)
	assert.Empty(t, enq.calls)
}

func TestTriageDraftForwardsDecision(t *testing.T) {
	enq := &recordingEnqueuer{}
	h := NewTriageHandler(service.NewTriageEngine([]string{"op@example.com"}), enq, zap.NewNop())

	payload := mqcontracts.TriagePayload{
		ThreadRef: threadRef(),
		Thread: mail.NormalizedThread{
			ID:       "thr1",
			LabelIDs: []string{"INBOX"},
			Messages: []mail.Message{{
				ID:        "m1",
				From:      &mail.Address{Email: "customer@example.com"},
				To:        []mail.Address{{Email: "support@shop.example"}},
				Subject:   "hello",
				LabelIDs:  []string{"INBOX"},
				Timestamp: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
			}},
		},
	}
	err := h.Handle(context.Background(), makeJob(t, "triage", payload))
	require.NoError(t, err)

	require.Len(t, enq.calls, 1)
	forwarded := enq.calls[0].Payload.(mqcontracts.RetrievePayload)
	assert.Equal(t, mail.ActionDraft, forwarded.Decision.Action)
	assert.Equal(t, mail.ReasonOKDrafted, forwarded.Decision.Reason)
	assert.Equal(t,
		mqcontracts.MakeJobID(mqcontracts.StageRetrieve, "t1", "m1", "thr1", "msg1"),
		enq.calls[0].JobID,
	)
}
