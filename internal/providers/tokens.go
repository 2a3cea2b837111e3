package providers

import (
	"log/slog"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

var (
	encoding     *tiktoken.Tiktoken
	encodingErr  error
	encodingOnce sync.Once
)

func loadEncoding() (*tiktoken.Tiktoken, error) {
	encodingOnce.Do(func() {
		encoding, encodingErr = tiktoken.GetEncoding("cl100k_base")
		if encodingErr != nil {
			slog.Warn("tiktoken encoding unavailable, falling back to rune budget", "error", encodingErr)
		}
	})
	return encoding, encodingErr
}

// TruncateTokens cuts text to at most maxTokens cl100k tokens.
// When the encoding cannot be loaded, roughly four runes per token are kept.
func TruncateTokens(text string, maxTokens int) string {
	// A token is at least one byte.
	if maxTokens <= 0 || len(text) <= maxTokens {
		return text
	}
	enc, err := loadEncoding()
	if err != nil {
		runes := []rune(text)
		if len(runes) > maxTokens*4 {
			return string(runes[:maxTokens*4])
		}
		return text
	}
	tokens := enc.Encode(text, nil, nil)
	if len(tokens) <= maxTokens {
		return text
	}
	return enc.Decode(tokens[:maxTokens])
}

// CountTokens returns the cl100k token count of text, or an estimate if unavailable.
func CountTokens(text string) int {
	enc, err := loadEncoding()
	if err != nil {
		return (len([]rune(text)) + 3) / 4
	}
	return len(enc.Encode(text, nil, nil))
}
