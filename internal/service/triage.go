package service

import (
	"strings"

	"github.com/GambaGlobal/ai-email-project-sub000/contracts/mail"
)

// Provider-side well-known label ids the rules inspect.
const (
	labelInbox = "INBOX"
	labelSpam  = "SPAM"
	labelTrash = "TRASH"
)

// sensitiveCategory is one keyword category of rule 7. Categories are
// evaluated in fixed order; within a thread the first matching category
// wins.
type sensitiveCategory struct {
	reason   mail.ReasonCode
	keywords []string
}

// Fixed category order: refund/cancellation, medical, safety, legal,
// exception-request.
var sensitiveCategories = []sensitiveCategory{
	{mail.ReasonSensitiveRefundOrCancellation, []string{
		"refund", "cancel my", "cancellation", "chargeback", "money back",
	}},
	{mail.ReasonSensitiveMedical, []string{
		"medical", "diagnosis", "prescription", "allerg", "injury claim",
	}},
	{mail.ReasonSensitiveSafety, []string{
		"unsafe", "hazard", "injured", "safety issue", "fire risk",
	}},
	{mail.ReasonSensitiveLegal, []string{
		"lawyer", "attorney", "legal action", "lawsuit", "small claims",
	}},
	{mail.ReasonSensitiveExceptionRequest, []string{
		"exception", "make an exception", "policy override", "special case",
	}},
}

// noReplyLocalParts mark an address as auto-generated.
var noReplyLocalParts = []string{"no-reply", "noreply", "do-not-reply", "donotreply", "mailer-daemon"}

// TriageEngine is the pure decision table classifying a thread into
// draft / needs_review / ignore. It holds no mutable state.
type TriageEngine struct {
	// operatorAddresses is the lowercased roster of human operator
	// senders. nil roster means "unconfigured".
	operatorAddresses map[string]struct{}
	rosterConfigured  bool
}

func NewTriageEngine(operatorAddresses []string) *TriageEngine {
	e := &TriageEngine{
		operatorAddresses: make(map[string]struct{}, len(operatorAddresses)),
		rosterConfigured:  len(operatorAddresses) > 0,
	}
	for _, a := range operatorAddresses {
		e.operatorAddresses[strings.ToLower(strings.TrimSpace(a))] = struct{}{}
	}
	return e
}

// Classify runs the ordered decision table, first match wins.
func (e *TriageEngine) Classify(thread *mail.NormalizedThread) mail.TriageDecision {
	latest := thread.LatestMessage()

	// 1. Nothing to reply to.
	if latest == nil || latest.From == nil || latest.From.Email == "" {
		return decision(mail.ActionIgnore, mail.ReasonMissingRequiredFields)
	}

	// 2. Spam or trash.
	if latest.HasLabel(labelSpam) || latest.HasLabel(labelTrash) {
		return decision(mail.ActionIgnore, mail.ReasonInSpamOrTrash)
	}

	// 3. Not in the inbox at all.
	if !thread.HasLabel(labelInbox) && !latest.HasLabel(labelInbox) {
		return decision(mail.ActionIgnore, mail.ReasonNotInInbox)
	}

	// 4. A human already started a draft on this thread.
	if thread.HasUserDraft() {
		return decision(mail.ActionNeedsReview, mail.ReasonThreadHasUserDraft)
	}

	// 5. Operator roster.
	sender := strings.ToLower(strings.TrimSpace(latest.From.Email))
	if e.rosterConfigured {
		if _, ok := e.operatorAddresses[sender]; ok {
			return decision(mail.ActionIgnore, mail.ReasonLatestIsOperatorSent)
		}
	} else {
		return decision(mail.ActionNeedsReview, mail.ReasonAmbiguousSender)
	}

	// 6. Auto-generated senders never get auto replies.
	if isAutoGenerated(latest, sender) {
		return decision(mail.ActionIgnore, mail.ReasonAutoReplyOrNoReply)
	}

	// 7. Sensitive keyword categories, fixed order, first match wins.
	text := strings.ToLower(latest.Subject + "\n" + latest.BodyText)
	for _, cat := range sensitiveCategories {
		for _, kw := range cat.keywords {
			if strings.Contains(text, kw) {
				return decision(mail.ActionNeedsReview, cat.reason)
			}
		}
	}

	// 8. Multi-party threads need a human.
	if len(latest.CC) > 0 || len(latest.BCC) > 0 || len(latest.To) > 1 {
		return decision(mail.ActionNeedsReview, mail.ReasonMultiPartyThread)
	}

	// 9. Safe to draft.
	return decision(mail.ActionDraft, mail.ReasonOKDrafted)
}

func isAutoGenerated(m *mail.Message, sender string) bool {
	local := sender
	if i := strings.Index(sender, "@"); i >= 0 {
		local = sender[:i]
	}
	for _, p := range noReplyLocalParts {
		if strings.Contains(local, p) {
			return true
		}
	}
	if v := m.HeaderValue("Auto-Submitted"); v != "" && !strings.EqualFold(v, "no") {
		return true
	}
	return false
}

func decision(action mail.TriageAction, reason mail.ReasonCode) mail.TriageDecision {
	return mail.TriageDecision{Action: action, Reason: reason}
}
