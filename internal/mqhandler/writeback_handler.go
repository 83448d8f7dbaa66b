package mqhandler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/GambaGlobal/ai-email-project-sub000/contracts/mail"
	mqcontracts "github.com/GambaGlobal/ai-email-project-sub000/contracts/mq"
	"github.com/GambaGlobal/ai-email-project-sub000/internal/provider"
	"github.com/GambaGlobal/ai-email-project-sub000/internal/service"
	"github.com/GambaGlobal/ai-email-project-sub000/pkg/circuitbreaker"
	"github.com/GambaGlobal/ai-email-project-sub000/pkg/metrics"
	"github.com/GambaGlobal/ai-email-project-sub000/pkg/mq"
)

// KillSwitch gates the two mutating controls.
type KillSwitch interface {
	Decision(ctx context.Context, tenantID string, control service.Control) service.KillSwitchDecision
}

// WritebackHandler 将草稿与状态标签写回邮箱；唯一有外部写副作用的阶段
type WritebackHandler struct {
	provider   provider.MailChangeProvider
	killSwitch KillSwitch
	guard      *service.DraftGuard
	breaker    *circuitbreaker.CircuitBreaker
	labels     *labelEnsurer
	logger     *zap.Logger
}

func NewWritebackHandler(
	p provider.MailChangeProvider,
	killSwitch KillSwitch,
	guard *service.DraftGuard,
	breaker *circuitbreaker.CircuitBreaker,
	logger *zap.Logger,
) *WritebackHandler {
	return &WritebackHandler{
		provider:   p,
		killSwitch: killSwitch,
		guard:      guard,
		breaker:    breaker,
		labels:     newLabelEnsurer(p),
		logger:     logger,
	}
}

func (h *WritebackHandler) Handle(ctx context.Context, job *mq.Job) error {
	var p mqcontracts.WritebackPayload
	if err := json.Unmarshal(job.Payload, &p); err != nil {
		return fmt.Errorf("failed to unmarshal WritebackPayload: %w", err)
	}

	final, upsert, err := h.writeback(ctx, &p)
	if err != nil {
		return err
	}

	if err := h.applyStateLabel(ctx, &p, final.State); err != nil {
		return err
	}

	log := h.logger.With(
		zap.String("tenant_id", p.TenantID),
		zap.String("thread_id", p.ThreadID),
		zap.String("state", string(final.State)),
		zap.String("reason", string(final.Reason)),
	)
	if upsert != nil {
		log = log.With(zap.String("upsert_action", string(upsert.Action)))
	}
	log.Info("Writeback complete")
	return nil
}

// writeback runs the draft side and returns the final thread state. The
// missing-recipient signal is recovered in place; every other provider
// error propagates to the DLQ wrapper.
func (h *WritebackHandler) writeback(ctx context.Context, p *mqcontracts.WritebackPayload) (mail.ThreadStateDecision, *mail.UpsertResult, error) {
	state := stateForAction(p.Decision.Action)
	final := mail.ThreadStateDecision{State: state, Reason: p.Decision.Reason}

	if state != mail.StateDrafted {
		return final, nil, nil
	}

	if d := h.killSwitch.Decision(ctx, p.TenantID, service.ControlWriteback); !d.Enabled {
		h.logger.Warn("Writeback disabled by kill switch",
			zap.String("tenant_id", p.TenantID),
			zap.String("thread_id", p.ThreadID),
			zap.String("kill_reason", d.Reason),
		)
		return mail.ThreadStateDecision{State: mail.StateBlocked, Reason: mail.ReasonWritebackDisabled}, nil, nil
	}

	upsert, err := h.upsertDraft(ctx, p)
	if err != nil {
		var missing *provider.MissingRecipientError
		if errors.As(err, &missing) {
			// Recovered locally: nothing to reply to, a human decides.
			h.logger.Warn("Thread has no reply recipient, downgrading to needs_review",
				zap.String("tenant_id", p.TenantID),
				zap.String("thread_id", p.ThreadID),
			)
			return mail.ThreadStateDecision{State: mail.StateNeedsReview, Reason: mail.ReasonMissingRecipient}, nil, nil
		}
		return final, nil, err
	}

	metrics.DraftUpserts.WithLabelValues(string(upsert.Action)).Inc()
	return final, upsert, nil
}

// upsertDraft reads the current draft, verifies ownership, and writes
// the next version. Read-verify-write: the provider has no
// compare-and-swap, so the read draft's fingerprint travels to the
// adapter as ExpectedFingerprint and the adapter refuses the write if
// the draft changed in between.
func (h *WritebackHandler) upsertDraft(ctx context.Context, p *mqcontracts.WritebackPayload) (*mail.UpsertResult, error) {
	draftKey := mail.DraftKey(p.MailboxID, p.ThreadID, mail.DraftKindAutoReply)

	var existing *mail.Draft
	err := h.breaker.Execute(func() error {
		var err error
		existing, err = h.provider.GetThreadDraft(ctx, p.MailboxID, p.ThreadID, mail.DraftKindAutoReply)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read current draft: %w", err)
	}

	marker := mail.DraftMarker{DraftKey: draftKey, Version: 1}
	expectedFingerprint := ""
	if existing != nil {
		current, ok := h.guard.ExtractMarker(existing)
		if !ok {
			// A markerless draft is someone's work, never ours to touch.
			return nil, &service.OwnershipConflictError{Reason: service.NotOwnedMissingMarker}
		}
		// Ownership is verified here; the concurrent-edit check is the
		// fingerprint of the read draft handed to the provider as
		// ExpectedFingerprint, refused adapter-side if the draft moved
		// between this read and the write.
		if err := h.guard.VerifyUpdate(existing, mail.DraftMarker{DraftKey: draftKey, Version: current.Version}, ""); err != nil {
			return nil, err
		}
		expectedFingerprint = service.Fingerprint(current, existing.DraftContent)
		marker.Version = current.Version + 1
	}

	content := p.Draft
	if content.BodyHTML != "" {
		content.BodyHTML = content.BodyHTML + "\n" + service.BodyMarkerComment(marker)
	} else {
		content.BodyText = content.BodyText + "\n\n" + service.BodyMarkerComment(marker)
	}

	params := provider.UpsertDraftParams{
		ThreadID: p.ThreadID,
		Kind:     mail.DraftKindAutoReply,
		Marker:   marker,
		Content:  content,
		Headers: map[string]string{
			service.HeaderDraftKey:     marker.DraftKey,
			service.HeaderDraftVersion: fmt.Sprintf("%d", marker.Version),
		},
		ExpectedFingerprint: expectedFingerprint,
	}

	var result *mail.UpsertResult
	err = h.breaker.Execute(func() error {
		var err error
		result, err = h.provider.UpsertThreadDraft(ctx, p.MailboxID, params)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// applyStateLabel sets the thread's exclusive state label when labeling
// is enabled. Disabled labeling skips silently: the draft side already
// ran and the state is still observable in logs.
func (h *WritebackHandler) applyStateLabel(ctx context.Context, p *mqcontracts.WritebackPayload, state mail.ThreadState) error {
	if d := h.killSwitch.Decision(ctx, p.TenantID, service.ControlLabels); !d.Enabled {
		h.logger.Warn("Labeling disabled by kill switch",
			zap.String("tenant_id", p.TenantID),
			zap.String("thread_id", p.ThreadID),
			zap.String("kill_reason", d.Reason),
		)
		return nil
	}

	labelIDs, err := h.labels.Ensure(ctx, p.TenantID, p.MailboxID, p.UserID)
	if err != nil {
		return fmt.Errorf("failed to ensure state labels: %w", err)
	}
	if err := h.provider.SetThreadStateLabels(ctx, p.MailboxID, p.ThreadID, state, labelIDs); err != nil {
		return fmt.Errorf("failed to set state label: %w", err)
	}
	return nil
}

func stateForAction(action mail.TriageAction) mail.ThreadState {
	if action == mail.ActionDraft {
		return mail.StateDrafted
	}
	return mail.StateNeedsReview
}
