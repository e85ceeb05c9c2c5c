package textutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTruncateRunes(t *testing.T) {
	tests := []struct {
		name   string
		in     string
		limit  int
		suffix string
		want   string
	}{
		{"fits", "abc", 3, "...", "abc"},
		{"cut with suffix", "abc", 2, "...", "ab..."},
		{"cyrillic", "Привет", 3, "...", "При..."},
		{"cyrillic no suffix", "абвгд", 3, "", "абв"},
		{"shorter than limit", "ab", 3, "", "ab"},
		{"zero limit", "abc", 0, "", ""},
		{"empty", "", 0, "...", ""},
		{"negative limit", "abc", -1, "...", "abc"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TruncateRunes(tt.in, tt.limit, tt.suffix))
		})
	}
}
