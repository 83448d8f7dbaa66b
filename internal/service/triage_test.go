package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/GambaGlobal/ai-email-project-sub000/contracts/mail"
)

func inboxThread(latest mail.Message) *mail.NormalizedThread {
	latest.ID = "m1"
	latest.Timestamp = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if latest.LabelIDs == nil {
		latest.LabelIDs = []string{"INBOX"}
	}
	t := &mail.NormalizedThread{
		ID:       "t1",
		Messages: []mail.Message{latest},
		LabelIDs: []string{"INBOX"},
	}
	t.Normalize()
	return t
}

func customerMessage() mail.Message {
	return mail.Message{
		From:    &mail.Address{Email: "customer@example.com"},
		To:      []mail.Address{{Email: "support@shop.example"}},
		Subject: "Question about my order",
	}
}

func TestClassifyDecisionTable(t *testing.T) {
	engine := NewTriageEngine([]string{"operator@shop.example"})

	tests := []struct {
		name       string
		thread     *mail.NormalizedThread
		wantAction mail.TriageAction
		wantReason mail.ReasonCode
	}{
		{
			name:       "empty thread",
			thread:     &mail.NormalizedThread{ID: "t1"},
			wantAction: mail.ActionIgnore,
			wantReason: mail.ReasonMissingRequiredFields,
		},
		{
			name: "missing sender",
			thread: inboxThread(mail.Message{
				Subject: "no from",
			}),
			wantAction: mail.ActionIgnore,
			wantReason: mail.ReasonMissingRequiredFields,
		},
		{
			name: "spam",
			thread: inboxThread(mail.Message{
				From:     &mail.Address{Email: "customer@example.com"},
				LabelIDs: []string{"SPAM"},
			}),
			wantAction: mail.ActionIgnore,
			wantReason: mail.ReasonInSpamOrTrash,
		},
		{
			name: "trash",
			thread: inboxThread(mail.Message{
				From:     &mail.Address{Email: "customer@example.com"},
				LabelIDs: []string{"TRASH"},
			}),
			wantAction: mail.ActionIgnore,
			wantReason: mail.ReasonInSpamOrTrash,
		},
		{
			name: "not in inbox",
			thread: func() *mail.NormalizedThread {
				th := inboxThread(mail.Message{
					From:     &mail.Address{Email: "customer@example.com"},
					LabelIDs: []string{"SENT"},
				})
				th.LabelIDs = nil
				return th
			}(),
			wantAction: mail.ActionIgnore,
			wantReason: mail.ReasonNotInInbox,
		},
		{
			name: "existing user draft",
			thread: func() *mail.NormalizedThread {
				th := inboxThread(customerMessage())
				th.Messages = append(th.Messages, mail.Message{
					ID: "m2", IsDraft: true,
					Timestamp: th.Messages[0].Timestamp.Add(time.Minute),
				})
				return th
			}(),
			wantAction: mail.ActionNeedsReview,
			wantReason: mail.ReasonThreadHasUserDraft,
		},
		{
			name: "operator sent",
			thread: inboxThread(mail.Message{
				From: &mail.Address{Email: "Operator@Shop.example"},
			}),
			wantAction: mail.ActionIgnore,
			wantReason: mail.ReasonLatestIsOperatorSent,
		},
		{
			name: "no-reply sender",
			thread: inboxThread(mail.Message{
				From: &mail.Address{Email: "no-reply@billing.example"},
			}),
			wantAction: mail.ActionIgnore,
			wantReason: mail.ReasonAutoReplyOrNoReply,
		},
		{
			name: "auto-submitted header",
			thread: inboxThread(mail.Message{
				From:    &mail.Address{Email: "customer@example.com"},
				Headers: map[string]string{"Auto-Submitted": "auto-replied"},
			}),
			wantAction: mail.ActionIgnore,
			wantReason: mail.ReasonAutoReplyOrNoReply,
		},
		{
			name: "auto-submitted no is human",
			thread: inboxThread(mail.Message{
				From:    &mail.Address{Email: "customer@example.com"},
				To:      []mail.Address{{Email: "support@shop.example"}},
				Headers: map[string]string{"Auto-Submitted": "no"},
			}),
			wantAction: mail.ActionDraft,
			wantReason: mail.ReasonOKDrafted,
		},
		{
			name: "refund keyword",
			thread: inboxThread(mail.Message{
				From:    &mail.Address{Email: "customer@example.com"},
				Subject: "I want a refund",
			}),
			wantAction: mail.ActionNeedsReview,
			wantReason: mail.ReasonSensitiveRefundOrCancellation,
		},
		{
			name: "legal keyword in body",
			thread: inboxThread(mail.Message{
				From:     &mail.Address{Email: "customer@example.com"},
				BodyText: "I will contact my lawyer about this.",
			}),
			wantAction: mail.ActionNeedsReview,
			wantReason: mail.ReasonSensitiveLegal,
		},
		{
			name: "refund beats legal in category order",
			thread: inboxThread(mail.Message{
				From:     &mail.Address{Email: "customer@example.com"},
				BodyText: "My lawyer says you owe me a refund.",
			}),
			wantAction: mail.ActionNeedsReview,
			wantReason: mail.ReasonSensitiveRefundOrCancellation,
		},
		{
			name: "cc makes it multi-party",
			thread: inboxThread(mail.Message{
				From: &mail.Address{Email: "customer@example.com"},
				To:   []mail.Address{{Email: "support@shop.example"}},
				CC:   []mail.Address{{Email: "other@example.com"}},
			}),
			wantAction: mail.ActionNeedsReview,
			wantReason: mail.ReasonMultiPartyThread,
		},
		{
			name: "two to-recipients make it multi-party",
			thread: inboxThread(mail.Message{
				From: &mail.Address{Email: "customer@example.com"},
				To: []mail.Address{
					{Email: "support@shop.example"},
					{Email: "sales@shop.example"},
				},
			}),
			wantAction: mail.ActionNeedsReview,
			wantReason: mail.ReasonMultiPartyThread,
		},
		{
			name:       "plain customer question drafts",
			thread:     inboxThread(customerMessage()),
			wantAction: mail.ActionDraft,
			wantReason: mail.ReasonOKDrafted,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := engine.Classify(tt.thread)
			assert.Equal(t, tt.wantAction, got.Action)
			assert.Equal(t, tt.wantReason, got.Reason)
		})
	}
}

func TestClassifyUnconfiguredRoster(t *testing.T) {
	engine := NewTriageEngine(nil)
	got := engine.Classify(inboxThread(customerMessage()))
	assert.Equal(t, mail.ActionNeedsReview, got.Action)
	assert.Equal(t, mail.ReasonAmbiguousSender, got.Reason)
}

// Rule order: spam wins over everything below it, draft existence wins
// over sensitive keywords.
func TestClassifyRulePrecedence(t *testing.T) {
	engine := NewTriageEngine([]string{"operator@shop.example"})

	spamRefund := inboxThread(mail.Message{
		From:     &mail.Address{Email: "customer@example.com"},
		Subject:  "refund please",
		LabelIDs: []string{"SPAM"},
	})
	got := engine.Classify(spamRefund)
	assert.Equal(t, mail.ReasonInSpamOrTrash, got.Reason)

	draftAndRefund := inboxThread(mail.Message{
		From:    &mail.Address{Email: "customer@example.com"},
		Subject: "refund please",
	})
	draftAndRefund.Messages = append(draftAndRefund.Messages, mail.Message{
		ID: "m2", IsDraft: true,
		Timestamp: draftAndRefund.Messages[0].Timestamp.Add(time.Minute),
	})
	got = engine.Classify(draftAndRefund)
	assert.Equal(t, mail.ReasonThreadHasUserDraft, got.Reason)
}
