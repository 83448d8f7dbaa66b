package mq

import (
	"context"
	"encoding/json"
)

// Job is one delivered stage execution.
type Job struct {
	ID      string
	Stage   string
	Payload json.RawMessage

	discarded bool
}

// Discard suppresses any further retries of this job: the consumer acks
// the delivery instead of requeueing, whatever the handler returned.
func (j *Job) Discard() { j.discarded = true }

// Discarded reports whether the job asked to be dropped.
func (j *Job) Discarded() bool { return j.discarded }

// JobHandler processes one delivered job.
type JobHandler func(ctx context.Context, job *Job) error

// JobStateStore is the conditional begin-processing gate. Only one of two
// concurrent deliveries of a job id wins the transition into processing;
// the loser observes proceed=false and no-ops.
type JobStateStore interface {
	// BeginProcessing transitions jobID from {queued, failed} into
	// processing. proceed=false means another worker holds it or it is
	// already done.
	BeginProcessing(ctx context.Context, jobID, stage string) (proceed bool, err error)
	MarkSucceeded(ctx context.Context, jobID string) error
	MarkFailed(ctx context.Context, jobID string) error
	MarkDiscarded(ctx context.Context, jobID string) error
}
