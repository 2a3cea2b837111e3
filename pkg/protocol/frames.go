// Package protocol defines the JSON frames exchanged with the messaging bridge sidecar.
//
// Every frame carries a "type" discriminator:
//
//	req   agent -> sidecar, correlated by id
//	res   sidecar -> agent, answers the req with the same id
//	event sidecar -> agent, unsolicited (inbound messages, lifecycle)
package protocol

import "encoding/json"

// ProtocolVersion is bumped on incompatible frame changes.
const ProtocolVersion = 1

const (
	FrameTypeRequest  = "req"
	FrameTypeResponse = "res"
	FrameTypeEvent    = "event"
)

// RequestFrame is an RPC call sent to the sidecar.
type RequestFrame struct {
	Type   string          `json:"type"`
	ID     string          `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// ResponseFrame answers a RequestFrame.
type ResponseFrame struct {
	Type    string          `json:"type"`
	ID      string          `json:"id"`
	OK      bool            `json:"ok"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   *ErrorShape     `json:"error,omitempty"`
}

// EventFrame is pushed by the sidecar without a preceding request.
type EventFrame struct {
	Type    string          `json:"type"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ErrorShape is the error body of a failed response.
type ErrorShape struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *ErrorShape) Error() string {
	if e.Code == "" {
		return e.Message
	}
	return e.Code + ": " + e.Message
}

// Envelope is used to sniff the frame type before decoding the full frame.
type Envelope struct {
	Type string `json:"type"`
}

// Message is the payload of EventMessage and an element of history results.
type Message struct {
	ID               string          `json:"id"`
	ConversationID   string          `json:"conversationId"`
	ConversationKind string          `json:"conversationKind,omitempty"`
	SenderAddress    string          `json:"senderAddress"`
	ContentType      string          `json:"contentType"`
	Content          json.RawMessage `json:"content,omitempty"`
	Fallback         string          `json:"fallback,omitempty"`
	ReplyTo          string          `json:"replyTo,omitempty"`
	SentAtNs         int64           `json:"sentAtNs,omitempty"`
}

// Conversation is an element of the conversations.list result.
type Conversation struct {
	ID           string `json:"id"`
	Kind         string `json:"kind"`
	Name         string `json:"name,omitempty"`
	ConsentState string `json:"consentState,omitempty"`
	CreatedAtNs  int64  `json:"createdAtNs,omitempty"`
}

// SendParams is the params object of MethodConversationSend.
type SendParams struct {
	ConversationID string `json:"conversationId"`
	Text           string `json:"text"`
}

// SendResult is the payload answering MethodConversationSend.
type SendResult struct {
	MessageID string `json:"messageId"`
}

// HistoryParams is the params object of MethodConversationHistory.
type HistoryParams struct {
	ConversationID string `json:"conversationId"`
	Limit          int    `json:"limit"`
}

// ListParams is the params object of MethodConversationsList.
type ListParams struct {
	ConsentStates []string `json:"consentStates,omitempty"`
	Kind          string   `json:"kind,omitempty"`
}

// IdentityResult answers MethodIdentityGet.
type IdentityResult struct {
	Address string `json:"address"`
	InboxID string `json:"inboxId,omitempty"`
}

// NewRequest builds a request frame, marshaling params.
func NewRequest(id, method string, params interface{}) (*RequestFrame, error) {
	f := &RequestFrame{Type: FrameTypeRequest, ID: id, Method: method}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return nil, err
		}
		f.Params = raw
	}
	return f, nil
}
