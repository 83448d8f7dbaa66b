package service

import (
	"context"
	"strings"

	"github.com/GambaGlobal/ai-email-project-sub000/contracts/mail"
	mqcontracts "github.com/GambaGlobal/ai-email-project-sub000/contracts/mq"
)

// ContextRetriever is the retrieval seam. Real retrieval ranking lives in
// an external collaborator; the pipeline only carries its output.
type ContextRetriever interface {
	Retrieve(ctx context.Context, thread *mail.NormalizedThread) ([]mqcontracts.ContextDoc, error)
}

// NoopRetriever forwards an empty context list.
type NoopRetriever struct{}

func (NoopRetriever) Retrieve(ctx context.Context, thread *mail.NormalizedThread) ([]mqcontracts.ContextDoc, error) {
	return nil, nil
}

// ReplyGenerator is the generation seam.
type ReplyGenerator interface {
	Generate(ctx context.Context, thread *mail.NormalizedThread, docs []mqcontracts.ContextDoc) (mail.DraftContent, error)
}

// holdingReplyBody is the deterministic stand-in for a real language-model
// generator.
const holdingReplyBody = "Thanks for reaching out. We have received your message and will get back to you shortly.\n"

// HoldingReplyGenerator produces the fixed holding reply.
type HoldingReplyGenerator struct{}

func NewHoldingReplyGenerator() *HoldingReplyGenerator { return &HoldingReplyGenerator{} }

func (g *HoldingReplyGenerator) Generate(ctx context.Context, thread *mail.NormalizedThread, docs []mqcontracts.ContextDoc) (mail.DraftContent, error) {
	subject := ""
	if latest := thread.LatestMessage(); latest != nil {
		subject = latest.Subject
	}
	return mail.DraftContent{
		Subject:  ReplySubject(subject),
		BodyText: holdingReplyBody,
	}, nil
}

// ReplySubject prefixes "Re: " idempotently: a subject that already is a
// reply keeps its single prefix.
func ReplySubject(subject string) string {
	trimmed := strings.TrimSpace(subject)
	if strings.HasPrefix(strings.ToLower(trimmed), "re:") {
		return trimmed
	}
	return "Re: " + trimmed
}
