package dlq

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	mqcontracts "github.com/GambaGlobal/ai-email-project-sub000/contracts/mq"
	"github.com/GambaGlobal/ai-email-project-sub000/internal/repository"
	"github.com/GambaGlobal/ai-email-project-sub000/pkg/metrics"
	"github.com/GambaGlobal/ai-email-project-sub000/pkg/mq"
	"github.com/GambaGlobal/ai-email-project-sub000/pkg/util"
)

// ListingStore lists and stamps dead-lettered items.
type ListingStore interface {
	List(ctx context.Context, filter repository.DlqFilter) ([]*repository.DlqItem, error)
	MarkReplayed(ctx context.Context, id int64) error
	MarkUnreplayable(ctx context.Context, id int64) error
}

// JobRequeuer resets a job's state so the begin-processing gate lets the
// replayed delivery through.
type JobRequeuer interface {
	Requeue(ctx context.Context, jobID string) error
}

// DedupReleaser drops the enqueue-time dedup key for a job id.
type DedupReleaser interface {
	Release(ctx context.Context, jobID string)
}

// ReplayService re-injects permanently failed work deterministically.
type ReplayService struct {
	store    ListingStore
	enqueuer mq.Enqueuer
	jobs     JobRequeuer
	deduper  DedupReleaser
	logger   *zap.Logger
}

func NewReplayService(store ListingStore, enqueuer mq.Enqueuer, jobs JobRequeuer, deduper DedupReleaser, logger *zap.Logger) *ReplayService {
	return &ReplayService{
		store:    store,
		enqueuer: enqueuer,
		jobs:     jobs,
		deduper:  deduper,
		logger:   logger,
	}
}

// Replay lists unreplayed items matching the filter and re-enqueues each,
// skipping mailbox_sync entries: a failed sync is repaired by a full
// re-bootstrap of the mailbox, never by per-item replay. Returns the
// number of items re-enqueued.
func (s *ReplayService) Replay(ctx context.Context, filter repository.DlqFilter) (int, error) {
	items, err := s.store.List(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("failed to list dlq items: %w", err)
	}

	replayed := 0
	for _, item := range items {
		if mqcontracts.Stage(item.Stage) == mqcontracts.StageMailboxSync {
			s.logger.Info("Skipping mailbox_sync DLQ item, not individually replayable",
				zap.Int64("dlq_id", item.ID),
				zap.String("tenant_id", item.TenantID),
				zap.String("mailbox_id", item.MailboxID),
			)
			s.markUnreplayable(ctx, item.ID)
			continue
		}
		if err := s.ReplayItem(ctx, item); err != nil {
			s.logger.Error("Failed to replay DLQ item",
				zap.Int64("dlq_id", item.ID),
				zap.Error(err),
			)
			// A payload no replay can ever re-inject must not be
			// relisted forever.
			if util.Classify(err).Permanent() {
				s.markUnreplayable(ctx, item.ID)
			}
			continue
		}
		replayed++
	}
	return replayed, nil
}

func (s *ReplayService) markUnreplayable(ctx context.Context, id int64) {
	if err := s.store.MarkUnreplayable(ctx, id); err != nil {
		s.logger.Error("Failed to mark DLQ item unreplayable",
			zap.Int64("dlq_id", id),
			zap.Error(err),
		)
	}
}

// ReplayItem re-derives the identical deterministic job id from the
// stored original payload and re-enqueues it on the item's stage.
func (s *ReplayService) ReplayItem(ctx context.Context, item *repository.DlqItem) error {
	var pc payloadContext
	if err := json.Unmarshal(item.Payload, &pc); err != nil {
		return util.Permanent("unreplayable_payload", fmt.Errorf("stored payload is not replayable: %w", err))
	}
	if pc.TenantID == "" || pc.MailboxID == "" {
		// Truncated captures land here: the clone dropped the fields the
		// job id derives from.
		return util.Permanent("unreplayable_payload", fmt.Errorf("stored payload is missing identifying fields"))
	}

	jobID := mqcontracts.MakeJobID(
		mqcontracts.Stage(item.Stage),
		pc.TenantID,
		pc.MailboxID,
		pc.ThreadID,
		pc.TriggeringMessageID,
	)

	// The job already ran once: clear the dedup key and reset its state
	// so the gate admits the replayed delivery.
	if s.deduper != nil {
		s.deduper.Release(ctx, jobID)
	}
	if err := s.jobs.Requeue(ctx, jobID); err != nil {
		return fmt.Errorf("failed to requeue job state: %w", err)
	}

	if err := s.enqueuer.EnqueueStage(ctx, item.Stage, json.RawMessage(item.Payload), jobID); err != nil {
		return fmt.Errorf("failed to re-enqueue: %w", err)
	}

	if err := s.store.MarkReplayed(ctx, item.ID); err != nil {
		return fmt.Errorf("failed to mark replayed: %w", err)
	}

	metrics.DLQReplayed.Inc()
	s.logger.Info("Replayed DLQ item",
		zap.Int64("dlq_id", item.ID),
		zap.String("stage", item.Stage),
		zap.String("job_id", jobID),
	)
	return nil
}
