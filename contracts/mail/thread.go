package mail

import (
	"sort"
	"strings"
	"time"
)

// Address 邮件地址
type Address struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email"`
}

// Message is one message of a normalized thread.
type Message struct {
	ID        string            `json:"id"`
	ThreadID  string            `json:"thread_id"`
	From      *Address          `json:"from,omitempty"`
	To        []Address         `json:"to,omitempty"`
	CC        []Address         `json:"cc,omitempty"`
	BCC       []Address         `json:"bcc,omitempty"`
	Subject   string            `json:"subject"`
	BodyText  string            `json:"body_text,omitempty"`
	BodyHTML  string            `json:"body_html,omitempty"`
	Headers   map[string]string `json:"headers,omitempty"`
	LabelIDs  []string          `json:"label_ids,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	IsDraft   bool              `json:"is_draft,omitempty"`
}

// HeaderValue returns a header by case-insensitive name.
func (m *Message) HeaderValue(name string) string {
	for k, v := range m.Headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

// HasLabel reports whether the message carries the given label id.
func (m *Message) HasLabel(labelID string) bool {
	for _, l := range m.LabelIDs {
		if l == labelID {
			return true
		}
	}
	return false
}

// NormalizedThread is the provider-independent view of one thread.
// Messages are ordered ascending by timestamp, ties broken by message id;
// Participants are deduped by lowercased email.
type NormalizedThread struct {
	ID           string    `json:"id"`
	Messages     []Message `json:"messages"`
	Participants []Address `json:"participants,omitempty"`
	LabelIDs     []string  `json:"label_ids,omitempty"`
}

// Normalize enforces the ordering and participant invariants in place.
// Provider implementations call it before handing a thread to the pipeline.
func (t *NormalizedThread) Normalize() {
	sort.SliceStable(t.Messages, func(i, j int) bool {
		a, b := t.Messages[i], t.Messages[j]
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.Before(b.Timestamp)
		}
		return a.ID < b.ID
	})

	seen := make(map[string]struct{})
	var deduped []Address
	add := func(a Address) {
		key := strings.ToLower(strings.TrimSpace(a.Email))
		if key == "" {
			return
		}
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		deduped = append(deduped, a)
	}
	for _, p := range t.Participants {
		add(p)
	}
	for _, m := range t.Messages {
		if m.From != nil {
			add(*m.From)
		}
		for _, a := range m.To {
			add(a)
		}
		for _, a := range m.CC {
			add(a)
		}
		for _, a := range m.BCC {
			add(a)
		}
	}
	t.Participants = deduped
}

// LatestMessage returns the newest non-draft message, or nil for an empty thread.
func (t *NormalizedThread) LatestMessage() *Message {
	for i := len(t.Messages) - 1; i >= 0; i-- {
		if !t.Messages[i].IsDraft {
			return &t.Messages[i]
		}
	}
	return nil
}

// HasUserDraft reports whether any message of the thread is a draft.
func (t *NormalizedThread) HasUserDraft() bool {
	for _, m := range t.Messages {
		if m.IsDraft {
			return true
		}
	}
	return false
}

// HasLabel reports whether the thread itself carries the given label id.
func (t *NormalizedThread) HasLabel(labelID string) bool {
	for _, l := range t.LabelIDs {
		if l == labelID {
			return true
		}
	}
	return false
}
