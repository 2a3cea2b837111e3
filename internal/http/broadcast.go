package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/nextlevelbuilder/squabble/internal/bus"
	"github.com/nextlevelbuilder/squabble/internal/channels"
)

const broadcastConcurrency = 4

var (
	errNoChannel     = errors.New("no channel available")
	errBroadcastType = errors.New("conversationIds or broadcastType (all, groups, dms) is required")
)

type broadcastRequest struct {
	Message         string   `json:"message"`
	ConversationIDs []string `json:"conversationIds,omitempty"`
	BroadcastType   string   `json:"broadcastType,omitempty"` // all | groups | dms
	ConsentStates   []string `json:"consentStates,omitempty"`
	Channel         string   `json:"channel,omitempty"`
}

type broadcastTarget struct {
	Channel        string
	ConversationID string
}

type broadcastResult struct {
	Channel        string `json:"channel"`
	ConversationID string `json:"conversationId"`
	Success        bool   `json:"success"`
	Error          string `json:"error,omitempty"`
}

func (s *Server) handleBroadcast(w http.ResponseWriter, r *http.Request) {
	var req broadcastRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "message is required"})
		return
	}

	targets, status, err := s.broadcastTargets(r.Context(), req)
	if err != nil {
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}

	results := s.sendAll(r.Context(), targets, req.Message)

	sent := 0
	for _, res := range results {
		if res.Success {
			sent++
		}
	}
	slog.Info("admin broadcast finished", "targets", len(targets), "sent", sent)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"total":   len(results),
		"sent":    sent,
		"failed":  len(results) - sent,
		"results": results,
	})
}

// broadcastTargets resolves explicit ids first, then falls back to listing by broadcastType.
func (s *Server) broadcastTargets(ctx context.Context, req broadcastRequest) ([]broadcastTarget, int, error) {
	if len(req.ConversationIDs) > 0 {
		channel := s.resolveChannel(req.Channel)
		if channel == "" {
			return nil, http.StatusServiceUnavailable, errNoChannel
		}
		seen := make(map[string]bool, len(req.ConversationIDs))
		targets := make([]broadcastTarget, 0, len(req.ConversationIDs))
		for _, id := range req.ConversationIDs {
			if id == "" || seen[id] {
				continue
			}
			seen[id] = true
			targets = append(targets, broadcastTarget{Channel: channel, ConversationID: id})
		}
		return targets, http.StatusOK, nil
	}

	filter := channels.ConversationFilter{ConsentStates: req.ConsentStates}
	switch req.BroadcastType {
	case "all":
	case "groups":
		filter.Kind = bus.KindGroup
	case "dms":
		filter.Kind = bus.KindDirect
	default:
		return nil, http.StatusBadRequest, errBroadcastType
	}

	convs, err := s.msgs.ListConversations(ctx, req.Channel, filter)
	if err != nil {
		return nil, http.StatusBadGateway, err
	}
	targets := make([]broadcastTarget, 0, len(convs))
	for _, c := range convs {
		targets = append(targets, broadcastTarget{Channel: c.Channel, ConversationID: c.ID})
	}
	return targets, http.StatusOK, nil
}

// sendAll delivers the message to every target. Failures are recorded per target
// and never abort the rest.
func (s *Server) sendAll(ctx context.Context, targets []broadcastTarget, message string) []broadcastResult {
	results := make([]broadcastResult, len(targets))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(broadcastConcurrency)
	for i, t := range targets {
		results[i] = broadcastResult{Channel: t.Channel, ConversationID: t.ConversationID}
		g.Go(func() error {
			if err := s.limiter.Wait(gctx); err != nil {
				results[i].Error = err.Error()
				return nil
			}
			err := s.msgs.Send(gctx, bus.OutboundMessage{
				Channel: t.Channel,
				ChatID:  t.ConversationID,
				Content: message,
			})
			if err != nil {
				slog.Warn("admin broadcast send failed", "channel", t.Channel, "conversation", t.ConversationID, "error", err)
				results[i].Error = err.Error()
				return nil
			}
			results[i].Success = true
			return nil
		})
	}
	g.Wait()
	return results
}
