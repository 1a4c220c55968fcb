package sanitize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDisplayName(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		maxLen int
		want   string
	}{
		{"empty", "", 100, ""},
		{"normal", "alice", 100, "alice"},
		{"with control chars", "al\x00ice\x07", 100, "alice"},
		{"truncate", "a very long display name", 8, "a very l"},
		{"trim whitespace", "  bob  ", 100, "bob"},
		{"unicode", "日本語の名前", 100, "日本語の名前"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DisplayName(tt.input, tt.maxLen)
			assert.Equal(t, tt.want, got, "DisplayName(%q, %d)", tt.input, tt.maxLen)
		})
	}
}

func TestText(t *testing.T) {
	assert.Equal(t, "hello world", Text("hello\x00 world\x1b"))
	assert.Equal(t, "line1\nline2\ttabbed", Text("line1\nline2\ttabbed"))
	assert.Equal(t, "", Text("\x00\x01\x02"))
}
