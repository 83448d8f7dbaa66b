package mail

// DraftKind distinguishes drafts this system manages on a thread.
// Only auto replies exist today.
type DraftKind string

const DraftKindAutoReply DraftKind = "auto_reply"

// DraftMarker identifies a system-owned draft: the key names the logical
// draft slot, the version counts rewrites of that slot.
type DraftMarker struct {
	DraftKey string `json:"draft_key"` // mailbox:thread:draftKind
	Version  int    `json:"version"`
}

// DraftKey builds the canonical draft slot key.
func DraftKey(mailboxID, threadID string, kind DraftKind) string {
	return mailboxID + ":" + threadID + ":" + string(kind)
}

// DraftContent is the replaceable content of a draft.
type DraftContent struct {
	Subject  string `json:"subject"`
	BodyText string `json:"body_text"`
	BodyHTML string `json:"body_html,omitempty"`
}

// Draft is a draft as read back from the provider, markers included.
type Draft struct {
	DraftID string `json:"draft_id"`
	DraftContent
	Headers map[string]string `json:"headers,omitempty"`
}

// UpsertAction 草稿写回结果
type UpsertAction string

const (
	UpsertCreated UpsertAction = "created"
	UpsertUpdated UpsertAction = "updated"
	UpsertSkipped UpsertAction = "skipped"
)

// UpsertResult reports what a draft upsert did.
type UpsertResult struct {
	Action      UpsertAction `json:"action"`
	DraftID     string       `json:"draft_id,omitempty"`
	Fingerprint string       `json:"fingerprint,omitempty"`
}
