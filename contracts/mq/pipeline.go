package mq

import (
	"time"

	"github.com/GambaGlobal/ai-email-project-sub000/contracts/mail"
)

// Stage 流水线阶段
type Stage string

const (
	// StageNotification precedes the pipeline proper: provider push
	// notifications land here and trigger a mailbox_sync job.
	StageNotification Stage = "notification"

	StageMailboxSync Stage = "mailbox_sync"
	StageFetchThread Stage = "fetch_thread"
	StageTriage      Stage = "triage"
	StageRetrieve    Stage = "retrieve"
	StageGenerate    Stage = "generate"
	StageWriteback   Stage = "writeback"
)

// Stages lists the pipeline stages in execution order.
func Stages() []Stage {
	return []Stage{
		StageMailboxSync,
		StageFetchThread,
		StageTriage,
		StageRetrieve,
		StageGenerate,
		StageWriteback,
	}
}

// MailboxRef identifies the mailbox a job operates on.
type MailboxRef struct {
	TenantID      string `json:"tenant_id"`
	MailboxID     string `json:"mailbox_id"`
	UserID        string `json:"user_id"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

// ThreadRef identifies the thread a job operates on.
type ThreadRef struct {
	MailboxRef
	ThreadID            string `json:"thread_id"`
	TriggeringMessageID string `json:"triggering_message_id,omitempty"`
}

// NotificationPayload 外部推送通知（stage 0，触发 mailbox_sync）
type NotificationPayload struct {
	MailboxRef
	CursorHint string    `json:"cursor_hint,omitempty"`
	ReceivedAt time.Time `json:"received_at"`
}

// MailboxSyncPayload asks for one sync pass over a mailbox.
type MailboxSyncPayload struct {
	MailboxRef
}

// FetchThreadPayload asks for one thread fetch.
type FetchThreadPayload struct {
	ThreadRef
}

// TriagePayload carries the fetched thread into the rules engine.
type TriagePayload struct {
	ThreadRef
	Thread mail.NormalizedThread `json:"thread"`
}

// RetrievePayload carries the triage decision into the retrieval seam.
type RetrievePayload struct {
	ThreadRef
	Thread   mail.NormalizedThread `json:"thread"`
	Decision mail.TriageDecision   `json:"decision"`
}

// ContextDoc is one retrieved context snippet for the generator.
type ContextDoc struct {
	Title   string  `json:"title,omitempty"`
	Content string  `json:"content"`
	Score   float64 `json:"score,omitempty"`
}

// GeneratePayload carries thread, decision and retrieval context.
type GeneratePayload struct {
	ThreadRef
	Thread      mail.NormalizedThread `json:"thread"`
	Decision    mail.TriageDecision   `json:"decision"`
	ContextDocs []ContextDoc          `json:"context_docs"`
}

// WritebackPayload carries the generated draft to the writeback stage.
type WritebackPayload struct {
	ThreadRef
	Thread         mail.NormalizedThread `json:"thread"`
	Decision       mail.TriageDecision   `json:"decision"`
	Draft          mail.DraftContent     `json:"draft"`
	IdempotencyKey string                `json:"idempotency_key"`
}
