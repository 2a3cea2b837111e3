// Package gameserver is the client for the Squabble game server's agent API.
package gameserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// SecretHeader authenticates the agent to the game server.
const SecretHeader = "x-agent-secret"

const maxErrorBody = 4 << 10

var tracer = otel.Tracer("github.com/nextlevelbuilder/squabble/internal/gameserver")

// HTTPError is a non-2xx response from the game server.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("game server: HTTP %d: %s", e.StatusCode, e.Body)
}

// Game is the subset of a game record the agent uses. The full record is kept in Raw.
type Game struct {
	ID     string          `json:"id"`
	Status string          `json:"status,omitempty"`
	Raw    json.RawMessage `json:"-"`
}

// Leaderboard is the leaderboard response for one conversation.
type Leaderboard struct {
	Entries            []LeaderboardEntry `json:"leaderboard"`
	TotalFinishedGames int                `json:"totalFinishedGames"`
}

// Client talks to the game server. Every call is attempted once.
type Client struct {
	baseURL string
	secret  string
	http    *http.Client
}

func NewClient(baseURL, secret string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		secret:  secret,
		http:    &http.Client{Timeout: timeout},
	}
}

// CreateGame creates a game with the given decimal bet amount in a conversation.
func (c *Client) CreateGame(ctx context.Context, betAmount, conversationID string) (*Game, error) {
	body, err := json.Marshal(map[string]string{
		"betAmount":      betAmount,
		"conversationId": conversationID,
	})
	if err != nil {
		return nil, err
	}
	var raw json.RawMessage
	if err := c.do(ctx, "create-game", http.MethodPost, "/api/agent/create-game", nil, body, &raw); err != nil {
		return nil, err
	}
	return decodeGame(raw)
}

// Leaderboard fetches the leaderboard for a conversation, sorted by points then wins.
func (c *Client) Leaderboard(ctx context.Context, conversationID string) (*Leaderboard, error) {
	var lb Leaderboard
	q := url.Values{"conversationId": {conversationID}}
	if err := c.do(ctx, "leaderboard", http.MethodGet, "/api/agent/leaderboard", q, nil, &lb); err != nil {
		return nil, err
	}
	SortLeaderboard(lb.Entries)
	return &lb, nil
}

// LatestGame fetches the most recent game for a conversation.
func (c *Client) LatestGame(ctx context.Context, conversationID string) (*Game, error) {
	var raw json.RawMessage
	q := url.Values{"conversationId": {conversationID}}
	if err := c.do(ctx, "get-game", http.MethodGet, "/api/agent/get-game", q, nil, &raw); err != nil {
		return nil, err
	}
	return decodeGame(raw)
}

func decodeGame(raw json.RawMessage) (*Game, error) {
	var g Game
	if err := json.Unmarshal(raw, &g); err != nil {
		return nil, fmt.Errorf("game server: decode game: %w", err)
	}
	if g.ID == "" {
		return nil, fmt.Errorf("game server: response has no game id")
	}
	g.Raw = raw
	return &g, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, q url.Values, body []byte, out interface{}) error {
	ctx, span := tracer.Start(ctx, "gameserver."+op, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, rdr)
	if err != nil {
		return fmt.Errorf("game server: build request: %w", err)
	}
	req.Header.Set(SecretHeader, c.secret)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport")
		return fmt.Errorf("game server %s: %w", op, err)
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		herr := &HTTPError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(b))}
		span.RecordError(herr)
		span.SetStatus(codes.Error, http.StatusText(resp.StatusCode))
		return herr
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("game server %s: decode: %w", op, err)
	}
	return nil
}
