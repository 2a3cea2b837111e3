// Package content flattens inbound message payloads into canonical text.
package content

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/nextlevelbuilder/squabble/internal/bus"
)

// fallbackPattern matches the human-readable reply fallback some clients send
// instead of a structured envelope.
var fallbackPattern = regexp.MustCompile(`(?s)Replied with "(.*)" to an earlier message`)

// textFields are probed in order on structured reply payloads.
var textFields = []string{"content", "text", "message"}

// Extract returns the canonical text of a message. Reactions are not expected here;
// they are filtered before extraction and yield "".
func Extract(msg bus.InboundMessage) string {
	switch msg.ContentType {
	case bus.ContentReply:
		return extractReply(msg.Payload)
	case bus.ContentReaction:
		return ""
	default:
		return asText(msg.Payload)
	}
}

// asText casts a plain-text payload to a string.
func asText(p interface{}) string {
	switch v := p.(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

// extractReply walks the reply envelope shapes in priority order; first match wins.
func extractReply(p interface{}) string {
	if p == nil {
		return ""
	}

	if m, ok := p.(map[string]interface{}); ok {
		if s := fieldText(m, textFields); s != "" {
			return s
		}
		if fb, ok := m["fallback"].(string); ok {
			if s := matchFallback(fb); s != "" {
				return s
			}
		}
		if params, ok := m["parameters"].(map[string]interface{}); ok {
			if s := fieldText(params, []string{"content", "text"}); s != "" {
				return s
			}
		}
	}

	if s, ok := p.(string); ok {
		if inner := matchFallback(s); inner != "" {
			return inner
		}
		return s
	}

	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Sprint(p)
	}
	return string(data)
}

// fieldText returns the first non-empty string among keys. A nested object under
// a key is probed one level down for the same keys.
func fieldText(m map[string]interface{}, keys []string) string {
	for _, k := range keys {
		switch v := m[k].(type) {
		case string:
			if strings.TrimSpace(v) != "" {
				return v
			}
		case map[string]interface{}:
			for _, inner := range keys {
				if s, ok := v[inner].(string); ok && strings.TrimSpace(s) != "" {
					return s
				}
			}
		}
	}
	return ""
}

func matchFallback(s string) string {
	if m := fallbackPattern.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	return ""
}
