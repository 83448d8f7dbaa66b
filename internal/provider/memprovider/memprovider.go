// Package memprovider is an in-memory mail provider for local development
// and wiring tests. It keeps an append-only change log per mailbox; the
// cursor is the decimal offset into that log.
package memprovider

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/GambaGlobal/ai-email-project-sub000/contracts/mail"
	"github.com/GambaGlobal/ai-email-project-sub000/internal/provider"
	"github.com/GambaGlobal/ai-email-project-sub000/internal/service"
	"github.com/GambaGlobal/ai-email-project-sub000/pkg/util"
)

// Name is the registry name this provider answers to.
const Name = "mem"

func init() {
	provider.Register(Name, func(dsn string) (provider.MailChangeProvider, error) {
		return New(), nil
	})
}

type mailboxState struct {
	log          []mail.MailChange
	threads      map[string]*mail.NormalizedThread
	drafts       map[string]*mail.Draft // threadID:kind
	labels       map[string]string      // label key -> label id
	threadStates map[string]mail.ThreadState
	nextID       int
}

// Provider 内存邮件提供方,仅用于本地联调
type Provider struct {
	mu        sync.Mutex
	mailboxes map[string]*mailboxState
	guard     *service.DraftGuard
}

func New() *Provider {
	return &Provider{
		mailboxes: make(map[string]*mailboxState),
		guard:     service.NewDraftGuard(),
	}
}

func (p *Provider) mailbox(id string) *mailboxState {
	m, ok := p.mailboxes[id]
	if !ok {
		m = &mailboxState{
			threads:      make(map[string]*mail.NormalizedThread),
			drafts:       make(map[string]*mail.Draft),
			labels:       make(map[string]string),
			threadStates: make(map[string]mail.ThreadState),
		}
		p.mailboxes[id] = m
	}
	return m
}

// SeedThread installs a thread and appends one change per message, so a
// subsequent sync pass picks the thread up.
func (p *Provider) SeedThread(mailboxID string, thread *mail.NormalizedThread) {
	p.mu.Lock()
	defer p.mu.Unlock()
	m := p.mailbox(mailboxID)
	thread.Normalize()
	m.threads[thread.ID] = thread
	for _, msg := range thread.Messages {
		m.log = append(m.log, mail.MailChange{
			Kind:      mail.ChangeMessageAdded,
			ThreadID:  thread.ID,
			MessageID: msg.ID,
		})
	}
}

func (p *Provider) ListChanges(ctx context.Context, mailboxID string, cursor mail.Cursor) (*provider.ListChangesResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	m := p.mailbox(mailboxID)

	offset, err := strconv.Atoi(string(cursor))
	if err != nil {
		return nil, &provider.HistoryExpiredError{MailboxID: mailboxID, Cursor: cursor}
	}
	if offset > len(m.log) {
		return nil, &provider.HistoryExpiredError{MailboxID: mailboxID, Cursor: cursor}
	}

	changes := make([]mail.MailChange, len(m.log)-offset)
	copy(changes, m.log[offset:])
	return &provider.ListChangesResult{
		Changes:    changes,
		NextCursor: mail.Cursor(strconv.Itoa(len(m.log))),
	}, nil
}

func (p *Provider) GetBaselineCursor(ctx context.Context, mailboxID string) (mail.Cursor, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return mail.Cursor(strconv.Itoa(len(p.mailbox(mailboxID).log))), nil
}

func (p *Provider) GetThread(ctx context.Context, mailboxID, threadID string) (*mail.NormalizedThread, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	t, ok := p.mailbox(mailboxID).threads[threadID]
	if !ok {
		return nil, nil
	}
	cp := *t
	cp.Messages = append([]mail.Message(nil), t.Messages...)
	return &cp, nil
}

func (p *Provider) GetThreadDraft(ctx context.Context, mailboxID, threadID string, kind mail.DraftKind) (*mail.Draft, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	d, ok := p.mailbox(mailboxID).drafts[threadID+":"+string(kind)]
	if !ok {
		return nil, nil
	}
	cp := *d
	return &cp, nil
}

func (p *Provider) EnsureLabels(ctx context.Context, mailboxID string, specs []provider.LabelSpec) (map[string]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	m := p.mailbox(mailboxID)
	out := make(map[string]string, len(specs))
	for _, spec := range specs {
		id, ok := m.labels[spec.Key]
		if !ok {
			m.nextID++
			id = fmt.Sprintf("label-%d", m.nextID)
			m.labels[spec.Key] = id
		}
		out[spec.Key] = id
	}
	return out, nil
}

func (p *Provider) SetThreadStateLabels(ctx context.Context, mailboxID, threadID string, state mail.ThreadState, labelIDsByKey map[string]string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.mailbox(mailboxID).threadStates[threadID] = state
	return nil
}

func (p *Provider) UpsertThreadDraft(ctx context.Context, mailboxID string, params provider.UpsertDraftParams) (*mail.UpsertResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	m := p.mailbox(mailboxID)

	if t, ok := m.threads[params.ThreadID]; ok {
		if latest := t.LatestMessage(); latest != nil && latest.From == nil {
			return nil, &provider.MissingRecipientError{ThreadID: params.ThreadID}
		}
	}

	key := params.ThreadID + ":" + string(params.Kind)
	existing := m.drafts[key]
	if params.ExpectedFingerprint != "" {
		if existing == nil {
			return nil, util.Permanent("ownership_conflict", fmt.Errorf("draft on thread %s disappeared under us", params.ThreadID))
		}
		marker, ok := p.guard.ExtractMarker(existing)
		if !ok || service.Fingerprint(marker, existing.DraftContent) != params.ExpectedFingerprint {
			return nil, util.Permanent("ownership_conflict", fmt.Errorf("draft on thread %s changed under us", params.ThreadID))
		}
	}

	action := mail.UpsertUpdated
	draftID := ""
	if existing == nil {
		m.nextID++
		draftID = fmt.Sprintf("draft-%d", m.nextID)
		action = mail.UpsertCreated
	} else {
		draftID = existing.DraftID
	}

	headers := make(map[string]string, len(params.Headers))
	for k, v := range params.Headers {
		headers[k] = v
	}
	m.drafts[key] = &mail.Draft{
		DraftID:      draftID,
		DraftContent: params.Content,
		Headers:      headers,
	}

	return &mail.UpsertResult{
		Action:      action,
		DraftID:     draftID,
		Fingerprint: service.Fingerprint(params.Marker, params.Content),
	}, nil
}
