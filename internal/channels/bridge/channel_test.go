package bridge

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/nextlevelbuilder/squabble/internal/bus"
	"github.com/nextlevelbuilder/squabble/internal/channels"
	"github.com/nextlevelbuilder/squabble/internal/config"
	"github.com/nextlevelbuilder/squabble/internal/content"
	"github.com/nextlevelbuilder/squabble/pkg/protocol"
)

// fakeSidecar answers identity, send and history requests and pushes one message
// event after the identity request.
func fakeSidecar(t *testing.T, sent chan<- protocol.SendParams) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			t.Errorf("accept: %v", err)
			return
		}
		defer conn.CloseNow()
		ctx := r.Context()

		write := func(v interface{}) {
			data, _ := json.Marshal(v)
			conn.Write(ctx, websocket.MessageText, data)
		}
		respond := func(id string, payload interface{}) {
			raw, _ := json.Marshal(payload)
			write(protocol.ResponseFrame{Type: protocol.FrameTypeResponse, ID: id, OK: true, Payload: raw})
		}

		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				return
			}
			var req protocol.RequestFrame
			json.Unmarshal(data, &req)
			switch req.Method {
			case protocol.MethodIdentityGet:
				respond(req.ID, protocol.IdentityResult{Address: "0xagent"})
				ev, _ := json.Marshal(protocol.Message{
					ID: "m2", ConversationID: "c1", ConversationKind: protocol.KindGroup,
					SenderAddress: "0xuser", ContentType: protocol.ContentReply,
					Fallback: `Replied with "@squabble leaderboard" to an earlier message`,
					ReplyTo:  "m1",
				})
				write(protocol.EventFrame{Type: protocol.FrameTypeEvent, Event: protocol.EventMessage, Payload: ev})
			case protocol.MethodConversationSend:
				var p protocol.SendParams
				json.Unmarshal(req.Params, &p)
				sent <- p
				respond(req.ID, protocol.SendResult{MessageID: "m3"})
			case protocol.MethodConversationHistory:
				respond(req.ID, []protocol.Message{{ID: "m1", SenderAddress: "0xagent", SentAtNs: 1}})
			default:
				write(protocol.ResponseFrame{Type: protocol.FrameTypeResponse, ID: req.ID,
					Error: &protocol.ErrorShape{Code: "unknown_method", Message: req.Method}})
			}
		}
	}))
}

func TestBridgeChannel(t *testing.T) {
	sent := make(chan protocol.SendParams, 1)
	srv := fakeSidecar(t, sent)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	mb := bus.New()
	ch, err := New(config.BridgeConfig{URL: "ws" + strings.TrimPrefix(srv.URL, "http"), Token: "tok"}, mb)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := ch.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer ch.Stop(ctx)

	msg, ok := mb.ConsumeInbound(ctx)
	if !ok {
		t.Fatal("no inbound message")
	}
	if msg.Channel != "bridge" || msg.ReplyTo != "m1" || msg.ContentType != bus.ContentReply {
		t.Fatalf("inbound = %+v", msg)
	}
	if got := content.Extract(msg); got != "@squabble leaderboard" {
		t.Fatalf("extracted %q", got)
	}

	deadline := time.Now().Add(5 * time.Second)
	for ch.Identity() == "" && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if ch.Identity() != "0xagent" {
		t.Fatalf("identity = %q", ch.Identity())
	}

	hist, err := ch.History(ctx, "c1", 100)
	if err != nil || len(hist) != 1 || hist[0].AuthorID != "0xagent" {
		t.Fatalf("History = %+v, %v", hist, err)
	}

	if err := ch.Send(ctx, bus.OutboundMessage{ChatID: "c1", Content: "hi"}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if p := <-sent; p.ConversationID != "c1" || p.Text != "hi" {
		t.Fatalf("sent = %+v", p)
	}

	if _, err := ch.ListConversations(ctx, channels.ConversationFilter{}); err == nil ||
		!strings.Contains(err.Error(), "unknown_method") {
		t.Fatalf("ListConversations err = %v", err)
	}
}

func TestToInbound(t *testing.T) {
	tests := []struct {
		name string
		in   protocol.Message
		want string
	}{
		{"text", protocol.Message{ContentType: "text", Content: json.RawMessage(`"hello"`)}, "hello"},
		{"structured reply", protocol.Message{ContentType: "reply",
			Content: json.RawMessage(`{"reference":"m1","content":"0.5"}`)}, "0.5"},
		{"reply fallback only", protocol.Message{ContentType: "reply",
			Fallback: `Replied with "no buy-in" to an earlier message`}, "no buy-in"},
		{"reply with opaque content and fallback", protocol.Message{ContentType: "reply",
			Content:  json.RawMessage(`{"reference":"m1"}`),
			Fallback: `Replied with "start game" to an earlier message`}, "start game"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := content.Extract(toInbound(tt.in)); got != tt.want {
				t.Fatalf("Extract = %q, want %q", got, tt.want)
			}
		})
	}
	if kindOf(protocol.KindDirect) != bus.KindDirect || contentTypeOf("weird") != bus.ContentOther {
		t.Fatal("mapping wrong")
	}
}
