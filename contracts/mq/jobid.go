package mq

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// MakeJobID derives the deterministic id of one logical unit of work. The
// queue uses it as a dedup key, so equal inputs must always produce the
// same id and any differing input a different one; length-prefixing keeps
// the encoding injective whatever characters the ids contain.
func MakeJobID(stage Stage, tenantID, mailboxID, threadID, messageID string) string {
	h := sha256.New()
	for _, part := range []string{string(stage), tenantID, mailboxID, threadID, messageID} {
		fmt.Fprintf(h, "%d:%s;", len(part), part)
	}
	return string(stage) + ":" + hex.EncodeToString(h.Sum(nil))[:32]
}

// IdempotencyKey identifies one logical generation+writeback of a reply.
func IdempotencyKey(tenantID, mailboxID, triggeringMessageID string) string {
	return tenantID + ":" + mailboxID + ":" + triggeringMessageID
}
