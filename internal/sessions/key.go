// Package sessions keeps per-user dialogue state and builds its session keys.
//
// Session keys scope state to one user in one conversation:
//
//	{channel}:{kind}:{conversationId}:{userId}
//
// Examples:
//
//	bridge:group:0f3a...:0xabc
//	telegram:direct:386246614:386246614
//	discord:group:1203...:9981...
package sessions

import (
	"fmt"
	"strings"

	"github.com/nextlevelbuilder/squabble/internal/bus"
)

// PeerKind distinguishes DM from group conversations.
type PeerKind string

const (
	PeerDirect PeerKind = "direct"
	PeerGroup  PeerKind = "group"
)

// PeerKindOf maps a bus conversation kind to a PeerKind. Unknown kinds are groups.
func PeerKindOf(k bus.ConversationKind) PeerKind {
	if k == bus.KindDirect {
		return PeerDirect
	}
	return PeerGroup
}

// BuildKey builds the session key for one user in one conversation.
func BuildKey(channel string, kind PeerKind, conversationID, userID string) string {
	return fmt.Sprintf("%s:%s:%s:%s", channel, kind, conversationID, strings.ToLower(userID))
}

// ParseKey splits a session key. ok is false if the key is not in the expected format.
// Conversation ids may not contain ':', user ids may.
func ParseKey(key string) (channel string, kind PeerKind, conversationID, userID string, ok bool) {
	parts := strings.SplitN(key, ":", 4)
	if len(parts) != 4 {
		return "", "", "", "", false
	}
	kind = PeerKind(parts[1])
	if kind != PeerDirect && kind != PeerGroup {
		return "", "", "", "", false
	}
	return parts[0], kind, parts[2], parts[3], true
}
