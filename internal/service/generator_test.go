package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GambaGlobal/ai-email-project-sub000/contracts/mail"
)

func TestReplySubject(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Question about my order", "Re: Question about my order"},
		{"Re: Question about my order", "Re: Question about my order"},
		{"RE: shouting", "RE: shouting"},
		{"re: lower", "re: lower"},
		{"", "Re: "},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ReplySubject(tt.in))
	}
}

func TestHoldingReplyGenerator(t *testing.T) {
	gen := NewHoldingReplyGenerator()
	thread := &mail.NormalizedThread{
		ID: "t1",
		Messages: []mail.Message{{
			ID:        "m1",
			From:      &mail.Address{Email: "customer@example.com"},
			Subject:   "Where is my package",
			Timestamp: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		}},
	}

	content, err := gen.Generate(context.Background(), thread, nil)
	require.NoError(t, err)
	assert.Equal(t, "Re: Where is my package", content.Subject)
	assert.NotEmpty(t, content.BodyText)

	// Same inputs, same output.
	again, err := gen.Generate(context.Background(), thread, nil)
	require.NoError(t, err)
	assert.Equal(t, content, again)
}
