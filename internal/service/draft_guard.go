package service

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/GambaGlobal/ai-email-project-sub000/contracts/mail"
)

// Ownership marker headers stamped onto every draft this system writes.
const (
	HeaderDraftKey     = "X-Reply-Draft-Key"
	HeaderDraftVersion = "X-Reply-Draft-Version"
)

// Not-owned reasons, a closed set.
const (
	NotOwnedMissingMarker     = "missing_marker"
	NotOwnedKeyMismatch       = "key_mismatch"
	NotOwnedVersionMismatch   = "version_mismatch"
	NotOwnedBodyMarkerMissing = "body_marker_missing"
	RefusedFingerprint        = "fingerprint_mismatch"
)

// bodyMarkerRe matches the embedded body-comment fallback marker, e.g.
// <!-- reply-draft key=mbox:thread:auto_reply version=3 -->
var bodyMarkerRe = regexp.MustCompile(`<!--\s*reply-draft\s+key=(\S+)\s+version=(\d+)\s*-->`)

// BodyMarkerComment renders the fallback marker for embedding in a draft
// body, for providers that strip custom headers.
func BodyMarkerComment(marker mail.DraftMarker) string {
	return fmt.Sprintf("<!-- reply-draft key=%s version=%d -->", marker.DraftKey, marker.Version)
}

// OwnershipResult is the outcome of an ownership check.
type OwnershipResult struct {
	Owned  bool
	Reason string // empty when owned
}

// OwnershipConflictError is a permanent failure: the draft on the thread
// is not ours to touch, or changed under us.
type OwnershipConflictError struct {
	Reason string
}

func (e *OwnershipConflictError) Error() string {
	return "draft ownership conflict: " + e.Reason
}

func (e *OwnershipConflictError) PermanentReason() string {
	return "draft_ownership_conflict"
}

// DraftGuard verifies that a draft was created by this system and is
// unmodified before allowing an update. A draft with no marker is never
// overwritten.
type DraftGuard struct{}

func NewDraftGuard() *DraftGuard { return &DraftGuard{} }

// CheckOwnership runs the marker protocol: header pair first, embedded
// body comment as fallback.
func (g *DraftGuard) CheckOwnership(draft *mail.Draft, expected mail.DraftMarker) OwnershipResult {
	headerKey := headerLookup(draft.Headers, HeaderDraftKey)
	headerVer := headerLookup(draft.Headers, HeaderDraftVersion)

	if headerKey != "" || headerVer != "" {
		// If either header is present, both must be.
		if headerKey == "" || headerVer == "" {
			return OwnershipResult{Reason: NotOwnedMissingMarker}
		}
		return matchMarker(headerKey, headerVer, expected)
	}

	// No headers at all: fall back to the embedded body marker.
	m := bodyMarkerRe.FindStringSubmatch(draft.BodyHTML)
	if m == nil {
		m = bodyMarkerRe.FindStringSubmatch(draft.BodyText)
	}
	if m == nil {
		return OwnershipResult{Reason: NotOwnedBodyMarkerMissing}
	}
	return matchMarker(m[1], m[2], expected)
}

// ExtractMarker reads the marker off a draft without judging it: header
// pair first, embedded body comment as fallback. Returns false when the
// draft carries no usable marker.
func (g *DraftGuard) ExtractMarker(draft *mail.Draft) (mail.DraftMarker, bool) {
	headerKey := headerLookup(draft.Headers, HeaderDraftKey)
	headerVer := headerLookup(draft.Headers, HeaderDraftVersion)
	if headerKey != "" && headerVer != "" {
		v, err := strconv.Atoi(headerVer)
		if err != nil {
			return mail.DraftMarker{}, false
		}
		return mail.DraftMarker{DraftKey: headerKey, Version: v}, true
	}
	if headerKey != "" || headerVer != "" {
		return mail.DraftMarker{}, false
	}

	m := bodyMarkerRe.FindStringSubmatch(draft.BodyHTML)
	if m == nil {
		m = bodyMarkerRe.FindStringSubmatch(draft.BodyText)
	}
	if m == nil {
		return mail.DraftMarker{}, false
	}
	v, err := strconv.Atoi(m[2])
	if err != nil {
		return mail.DraftMarker{}, false
	}
	return mail.DraftMarker{DraftKey: m[1], Version: v}, true
}

// VerifyUpdate is the full update guard: ownership, and when the caller
// supplies an expected-previous fingerprint, equality with the draft's
// current computed fingerprint. The fingerprint check is the
// optimistic-concurrency substitute against a provider with no
// compare-and-swap: read current fingerprint, verify, write. The window
// between verify and write is an accepted trade-off.
func (g *DraftGuard) VerifyUpdate(draft *mail.Draft, expected mail.DraftMarker, expectedPrevFingerprint string) error {
	res := g.CheckOwnership(draft, expected)
	if !res.Owned {
		return &OwnershipConflictError{Reason: res.Reason}
	}

	if expectedPrevFingerprint != "" {
		current := Fingerprint(expected, draft.DraftContent)
		if current != expectedPrevFingerprint {
			return &OwnershipConflictError{Reason: RefusedFingerprint}
		}
	}
	return nil
}

// Fingerprint hashes the canonical draft fields: sha256 over the
// newline-joined, line-ending-normalized, trailing-blank-trimmed sequence
// (draftKey, version, subject, bodyText, bodyHtml). Deterministic across
// re-serialization.
func Fingerprint(marker mail.DraftMarker, content mail.DraftContent) string {
	fields := []string{
		marker.DraftKey,
		strconv.Itoa(marker.Version),
		content.Subject,
		content.BodyText,
		content.BodyHTML,
	}
	for i, f := range fields {
		fields[i] = canonicalField(f)
	}
	sum := sha256.Sum256([]byte(strings.Join(fields, "\n")))
	return hex.EncodeToString(sum[:])
}

// canonicalField normalizes line endings to \n and trims trailing blank
// lines so provider re-serialization cannot change the hash.
func canonicalField(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	for {
		trimmed := strings.TrimRight(s, " \t")
		if strings.HasSuffix(trimmed, "\n") {
			s = strings.TrimRight(trimmed, "\n")
			continue
		}
		return trimmed
	}
}

func matchMarker(key, version string, expected mail.DraftMarker) OwnershipResult {
	if key != expected.DraftKey {
		return OwnershipResult{Reason: NotOwnedKeyMismatch}
	}
	v, err := strconv.Atoi(version)
	if err != nil || v != expected.Version {
		return OwnershipResult{Reason: NotOwnedVersionMismatch}
	}
	return OwnershipResult{Owned: true}
}

func headerLookup(headers map[string]string, name string) string {
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}
