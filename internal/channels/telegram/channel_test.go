package telegram

import (
	"testing"

	"github.com/mymmrac/telego"

	"github.com/nextlevelbuilder/squabble/internal/bus"
	"github.com/nextlevelbuilder/squabble/internal/channels"
)

type captureBus struct {
	bus.MessageRouter
	got []bus.InboundMessage
}

func (c *captureBus) PublishInbound(msg bus.InboundMessage) { c.got = append(c.got, msg) }

func TestHandleMessageRecordsReplyChain(t *testing.T) {
	cb := &captureBus{}
	c := &Channel{
		BaseChannel: channels.NewBaseChannel("telegram", cb, nil, 0),
		history:     channels.NewHistoryRecorder(10, 10),
	}
	c.SetIdentity("42")

	c.handleMessage(&telego.Message{
		MessageID: 7,
		From:      &telego.User{ID: 1001},
		Chat:      telego.Chat{ID: -500, Type: telego.ChatTypeSupergroup},
		Text:      "0.5",
		ReplyToMessage: &telego.Message{
			MessageID: 6,
			From:      &telego.User{ID: 42},
			Text:      "How much should the buy-in be?",
		},
	})

	if len(cb.got) != 1 {
		t.Fatalf("published %d messages", len(cb.got))
	}
	msg := cb.got[0]
	if msg.ContentType != bus.ContentReply || msg.ReplyTo != "6" || msg.Kind != bus.KindGroup || msg.ChatID != "-500" {
		t.Fatalf("inbound = %+v", msg)
	}

	recent := c.history.Recent("-500", 10)
	if len(recent) != 2 || recent[1].ID != "6" || recent[1].AuthorID != "42" {
		t.Fatalf("history = %+v", recent)
	}
}

func TestKindOf(t *testing.T) {
	if kindOf(telego.ChatTypePrivate) != bus.KindDirect || kindOf(telego.ChatTypeGroup) != bus.KindGroup {
		t.Fatal("chat type mapping wrong")
	}
}
