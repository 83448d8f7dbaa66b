package mqhandler

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/GambaGlobal/ai-email-project-sub000/pkg/mq"
)

// recordingEnqueuer captures every enqueued stage job in order.
type recordingEnqueuer struct {
	calls []enqueueCall
	err   error
}

type enqueueCall struct {
	Stage   string
	Payload any
	JobID   string
}

func (r *recordingEnqueuer) EnqueueStage(ctx context.Context, stage string, payload any, jobID string) error {
	if r.err != nil {
		return r.err
	}
	r.calls = append(r.calls, enqueueCall{Stage: stage, Payload: payload, JobID: jobID})
	return nil
}

func makeJob(t *testing.T, stage string, payload any) *mq.Job {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	return &mq.Job{ID: "job-" + stage, Stage: stage, Payload: raw}
}
