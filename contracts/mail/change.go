package mail

// ChangeKind 邮箱变更事件类型
type ChangeKind string

const (
	ChangeMessageAdded        ChangeKind = "messageAdded"
	ChangeThreadLabelsChanged ChangeKind = "threadLabelsChanged"
	ChangeMessageLabelsChange ChangeKind = "messageLabelsChanged"
)

// MailChange is one normalized change from the provider's change feed.
// ThreadID is always present; MessageID only for message-level kinds.
type MailChange struct {
	Kind      ChangeKind `json:"kind"`
	ThreadID  string     `json:"thread_id"`
	MessageID string     `json:"message_id,omitempty"`
	LabelIDs  []string   `json:"label_ids,omitempty"`
}

// DedupKey identifies one logical change. Two changes with the same key
// are the same change regardless of how often the provider reports it.
func (c MailChange) DedupKey() string {
	return string(c.Kind) + ":" + c.ThreadID + ":" + c.MessageID
}

// SyncMode 同步模式
type SyncMode string

const (
	SyncModeBootstrap   SyncMode = "bootstrap"
	SyncModeIncremental SyncMode = "incremental"
)
