package protocol

// Events pushed from the sidecar to the agent.
const (
	EventMessage = "message"
	EventReady   = "ready"
	EventClosing = "closing"
)

// Content types carried by EventMessage payloads.
const (
	ContentText     = "text"
	ContentReply    = "reply"
	ContentReaction = "reaction"
)

// Conversation kinds.
const (
	KindDirect = "dm"
	KindGroup  = "group"
)
