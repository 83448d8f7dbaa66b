package mq

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMakeJobIDDeterministic(t *testing.T) {
	a := MakeJobID(StageFetchThread, "tenant1", "mbox1", "thread1", "msg1")
	b := MakeJobID(StageFetchThread, "tenant1", "mbox1", "thread1", "msg1")
	assert.Equal(t, a, b)
}

func TestMakeJobIDDistinguishesFields(t *testing.T) {
	base := MakeJobID(StageFetchThread, "tenant1", "mbox1", "thread1", "msg1")

	tests := []struct {
		name  string
		other string
	}{
		{"stage", MakeJobID(StageTriage, "tenant1", "mbox1", "thread1", "msg1")},
		{"tenant", MakeJobID(StageFetchThread, "tenant2", "mbox1", "thread1", "msg1")},
		{"mailbox", MakeJobID(StageFetchThread, "tenant1", "mbox2", "thread1", "msg1")},
		{"thread", MakeJobID(StageFetchThread, "tenant1", "mbox1", "thread2", "msg1")},
		{"message", MakeJobID(StageFetchThread, "tenant1", "mbox1", "thread1", "msg2")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotEqual(t, base, tt.other)
		})
	}
}

// Concatenation ambiguity must not produce colliding ids: ("ab","c") and
// ("a","bc") are different logical work.
func TestMakeJobIDNoConcatenationCollision(t *testing.T) {
	a := MakeJobID(StageFetchThread, "ab", "c", "", "")
	b := MakeJobID(StageFetchThread, "a", "bc", "", "")
	assert.NotEqual(t, a, b)
}

func TestMakeJobIDStagePrefix(t *testing.T) {
	id := MakeJobID(StageWriteback, "t", "m", "th", "msg")
	assert.Contains(t, id, string(StageWriteback)+":")
}

func TestIdempotencyKey(t *testing.T) {
	assert.Equal(t, "t1:m1:msg9", IdempotencyKey("t1", "m1", "msg9"))
}
