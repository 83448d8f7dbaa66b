package provider

import (
	"fmt"

	"github.com/GambaGlobal/ai-email-project-sub000/contracts/mail"
)

// HistoryExpiredError signals that a cursor fell outside the provider's
// retention window. It is handled inline by the sync engine as a full
// resync trigger and must never be classified into the DLQ.
type HistoryExpiredError struct {
	MailboxID string
	Cursor    mail.Cursor
}

func (e *HistoryExpiredError) Error() string {
	return fmt.Sprintf("history expired for mailbox %s at cursor %s", e.MailboxID, e.Cursor)
}

// MissingRecipientError signals that a draft upsert found no usable reply
// recipient. The writeback stage downgrades it locally to
// needs_review/missing_recipient; anywhere else it is a permanent failure.
type MissingRecipientError struct {
	ThreadID string
}

func (e *MissingRecipientError) Error() string {
	return fmt.Sprintf("thread %s has no usable reply recipient", e.ThreadID)
}

func (e *MissingRecipientError) PermanentReason() string {
	return string(mail.ReasonMissingRecipient)
}
