package protocol

// Bridge RPC method names (agent -> sidecar).
const (
	// MethodIdentityGet returns the agent's own address on the messaging network.
	MethodIdentityGet = "identity.get"

	MethodConversationSend    = "conversation.send"
	MethodConversationHistory = "conversation.history"
	MethodConversationsList   = "conversations.list"

	MethodPing = "ping"
)
