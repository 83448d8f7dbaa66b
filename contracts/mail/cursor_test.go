package mail

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCursor(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Cursor
		wantErr bool
	}{
		{name: "plain integer", input: "12345", want: "12345"},
		{name: "whitespace trimmed", input: "  42 ", want: "42"},
		{name: "beyond float53 precision", input: "9007199254740993", want: "9007199254740993"},
		{name: "very large", input: "123456789012345678901234567890", want: "123456789012345678901234567890"},
		{name: "empty", input: "", wantErr: true},
		{name: "not a number", input: "abc", wantErr: true},
		{name: "float", input: "1.5", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseCursor(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCursorCmp(t *testing.T) {
	tests := []struct {
		name string
		a, b Cursor
		want int
	}{
		{name: "equal", a: "100", b: "100", want: 0},
		{name: "less", a: "99", b: "100", want: -1},
		{name: "greater", a: "100", b: "99", want: 1},
		{name: "empty sorts first", a: "", b: "1", want: -1},
		{name: "both empty", a: "", b: "", want: 0},
		// 2^53 and 2^53+1 collapse to the same float64; they must not
		// collapse here.
		{name: "distinguishes beyond float precision", a: "9007199254740993", b: "9007199254740992", want: 1},
		{name: "numeric not textual", a: "9", b: "10", want: -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.a.Cmp(tt.b))
		})
	}
}

func TestMaxCursor(t *testing.T) {
	assert.Equal(t, Cursor("10"), MaxCursor("9", "10"))
	assert.Equal(t, Cursor("10"), MaxCursor("10", "9"))
	assert.Equal(t, Cursor("5"), MaxCursor("5", ""))
	assert.Equal(t, Cursor("9007199254740993"), MaxCursor("9007199254740993", "9007199254740992"))
}
