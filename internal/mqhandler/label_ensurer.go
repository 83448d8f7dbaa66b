package mqhandler

import (
	"context"
	"sync"

	"github.com/GambaGlobal/ai-email-project-sub000/contracts/mail"
	"github.com/GambaGlobal/ai-email-project-sub000/internal/provider"
)

// stateLabelSpecs are the three fixed state labels the pipeline keeps on
// every mailbox it writes to. Keys are the thread states themselves.
func stateLabelSpecs() []provider.LabelSpec {
	return []provider.LabelSpec{
		{Key: string(mail.StateDrafted), Name: "Assistant/Drafted"},
		{Key: string(mail.StateNeedsReview), Name: "Assistant/Needs Review"},
		{Key: string(mail.StateBlocked), Name: "Assistant/Blocked"},
	}
}

// labelEnsurer memoizes label-ensure calls per (tenant, mailbox, user)
// for the life of the instance, collapsing concurrent calls for the same
// key into a single provider round trip. Failures are not cached.
type labelEnsurer struct {
	provider provider.MailChangeProvider

	mu       sync.Mutex
	results  map[string]map[string]string
	inflight map[string]chan struct{}
}

func newLabelEnsurer(p provider.MailChangeProvider) *labelEnsurer {
	return &labelEnsurer{
		provider: p,
		results:  make(map[string]map[string]string),
		inflight: make(map[string]chan struct{}),
	}
}

func (e *labelEnsurer) Ensure(ctx context.Context, tenantID, mailboxID, userID string) (map[string]string, error) {
	key := tenantID + ":" + mailboxID + ":" + userID

	for {
		e.mu.Lock()
		if ids, ok := e.results[key]; ok {
			e.mu.Unlock()
			return ids, nil
		}
		wait, ok := e.inflight[key]
		if !ok {
			break
		}
		e.mu.Unlock()
		select {
		case <-wait:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	wait := make(chan struct{})
	e.inflight[key] = wait
	e.mu.Unlock()

	ids, err := e.provider.EnsureLabels(ctx, mailboxID, stateLabelSpecs())

	e.mu.Lock()
	if err == nil {
		e.results[key] = ids
	}
	delete(e.inflight, key)
	close(wait)
	e.mu.Unlock()

	return ids, err
}
