package discord

import (
	"strings"
	"testing"
)

func TestSplitMessage(t *testing.T) {
	tests := []struct {
		name   string
		in     string
		max    int
		chunks int
	}{
		{"short", "hello", 10, 1},
		{"empty", "", 10, 0},
		{"hard split", strings.Repeat("a", 25), 10, 3},
		{"newline split", "aaaaaaa\nbbbbbbb", 10, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := splitMessage(tt.in, tt.max)
			if len(got) != tt.chunks {
				t.Fatalf("chunks = %d (%q), want %d", len(got), got, tt.chunks)
			}
			if strings.Join(got, "") != tt.in {
				t.Fatalf("chunks do not reassemble: %q", got)
			}
		})
	}
}
