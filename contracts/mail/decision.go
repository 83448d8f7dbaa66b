package mail

// ThreadState 线程最终状态，对应三个固定的状态标签
type ThreadState string

const (
	StateDrafted     ThreadState = "drafted"
	StateNeedsReview ThreadState = "needs_review"
	StateBlocked     ThreadState = "blocked"
)

// TriageAction is what the rules engine decided to do with a thread.
type TriageAction string

const (
	ActionDraft       TriageAction = "draft"
	ActionNeedsReview TriageAction = "needs_review"
	ActionIgnore      TriageAction = "ignore"
)

// ReasonCode is a closed enumeration explaining a triage or pipeline decision.
type ReasonCode string

const (
	ReasonOKDrafted ReasonCode = "ok_drafted"

	// Triage ignore reasons.
	ReasonMissingRequiredFields ReasonCode = "missing_required_fields"
	ReasonInSpamOrTrash         ReasonCode = "in_spam_or_trash"
	ReasonNotInInbox            ReasonCode = "not_in_inbox"
	ReasonLatestIsOperatorSent  ReasonCode = "latest_is_operator_sent"
	ReasonAutoReplyOrNoReply    ReasonCode = "auto_reply_or_no_reply"

	// Triage needs_review reasons.
	ReasonThreadHasUserDraft            ReasonCode = "thread_has_user_draft"
	ReasonAmbiguousSender               ReasonCode = "ambiguous_sender"
	ReasonSensitiveRefundOrCancellation ReasonCode = "sensitive_refund_or_cancellation"
	ReasonSensitiveMedical              ReasonCode = "sensitive_medical"
	ReasonSensitiveSafety               ReasonCode = "sensitive_safety"
	ReasonSensitiveLegal                ReasonCode = "sensitive_legal"
	ReasonSensitiveExceptionRequest     ReasonCode = "sensitive_exception_request"
	ReasonMultiPartyThread              ReasonCode = "multi_party_thread"

	// Pipeline reasons.
	ReasonMissingRecipient  ReasonCode = "missing_recipient"
	ReasonProviderError     ReasonCode = "provider_error"
	ReasonWritebackDisabled ReasonCode = "writeback_disabled"
)

// TriageDecision is the outcome of the rules engine for one thread.
type TriageDecision struct {
	Action TriageAction `json:"action"`
	Reason ReasonCode   `json:"reason"`
}

// ThreadStateDecision is the terminal state written back to the mailbox:
// exactly one state plus a reason code from the closed enumeration.
type ThreadStateDecision struct {
	State  ThreadState `json:"state"`
	Reason ReasonCode  `json:"reason"`
}
