package http

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/nextlevelbuilder/squabble/internal/bus"
	"github.com/nextlevelbuilder/squabble/internal/channels"
)

type sendMessageRequest struct {
	ConversationID string `json:"conversationId"`
	Message        string `json:"message"`
	Channel        string `json:"channel,omitempty"`
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.ConversationID == "" || strings.TrimSpace(req.Message) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "conversationId and message are required"})
		return
	}

	channel := s.resolveChannel(req.Channel)
	if channel == "" {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "no channel available"})
		return
	}

	err := s.msgs.Send(r.Context(), bus.OutboundMessage{
		Channel: channel,
		ChatID:  req.ConversationID,
		Content: req.Message,
	})
	if err != nil {
		slog.Warn("admin send failed", "channel", channel, "conversation", req.ConversationID, "error", err)
		status := http.StatusBadGateway
		if errors.Is(err, channels.ErrUnknownChannel) {
			status = http.StatusBadRequest
		}
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":        true,
		"channel":        channel,
		"conversationId": req.ConversationID,
	})
}

func (s *Server) handleConversations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := channels.ConversationFilter{ConsentStates: splitList(q.Get("consentStates"))}

	switch q.Get("type") {
	case "", "all":
	case "groups", "group":
		filter.Kind = bus.KindGroup
	case "dms", "dm", "direct":
		filter.Kind = bus.KindDirect
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "type must be all, groups or dms"})
		return
	}

	convs, err := s.msgs.ListConversations(r.Context(), q.Get("channel"), filter)
	if err != nil {
		slog.Warn("admin list conversations failed", "error", err)
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		return
	}
	if convs == nil {
		convs = []channels.Conversation{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"conversations": convs,
		"count":         len(convs),
	})
}

func (s *Server) resolveChannel(requested string) string {
	if requested != "" {
		return requested
	}
	return s.msgs.DefaultChannel()
}

// splitList parses "a,b" into a trimmed slice.
func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
