package config

import (
	"encoding/json"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/titanous/json5"
)

// FlexibleStringSlice accepts both ["str"] and [123] in JSON.
type FlexibleStringSlice []string

func (f *FlexibleStringSlice) UnmarshalJSON(data []byte) error {
	var ss []string
	if err := json.Unmarshal(data, &ss); err == nil {
		*f = ss
		return nil
	}
	var raw []interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	result := make([]string, 0, len(raw))
	for _, v := range raw {
		switch val := v.(type) {
		case string:
			result = append(result, val)
		case float64:
			result = append(result, fmt.Sprintf("%.0f", val))
		default:
			result = append(result, fmt.Sprintf("%v", val))
		}
	}
	*f = result
	return nil
}

// Duration is a time.Duration written as a Go duration string ("15s", "30m").
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json5.Unmarshal(data, &s); err == nil {
		v, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(v)
		return nil
	}
	// bare numbers are seconds
	var secs float64
	if err := json5.Unmarshal(data, &secs); err != nil {
		return err
	}
	*d = Duration(time.Duration(secs * float64(time.Second)))
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the root configuration for the squabble agent.
type Config struct {
	Agent     AgentConfig     `json:"agent"`
	Game      GameConfig      `json:"game"`
	Oracle    OracleConfig    `json:"oracle"`
	Channels  ChannelsConfig  `json:"channels"`
	Sessions  SessionsConfig  `json:"sessions"`
	Gateway   GatewayConfig   `json:"gateway"`
	Database  DatabaseConfig  `json:"database,omitempty"`
	Telemetry TelemetryConfig `json:"telemetry,omitempty"`
	Dedupe    DedupeConfig    `json:"dedupe,omitempty"`
	mu        sync.RWMutex
}

// AgentConfig holds the conversational rules. These are hot-reloadable.
type AgentConfig struct {
	Name               string              `json:"name"`
	Triggers           FlexibleStringSlice `json:"triggers"`
	HintKeywords       FlexibleStringSlice `json:"hint_keywords"`
	RespondInDirect    bool                `json:"respond_in_direct,omitempty"`
	UnrecognizedPolicy string              `json:"unrecognized_policy,omitempty"` // "fallback" (default) or "silent"
	HistoryWindow      int                 `json:"history_window,omitempty"`      // messages scanned for reply-to-agent (default 100)
	Interpreter        string              `json:"interpreter,omitempty"`         // "rules" (default) or "oracle"
}

// GameConfig points at the external game server.
// AgentSecret is NEVER read from config.json, only from env SQUABBLE_AGENT_SECRET.
type GameConfig struct {
	ServerURL   string   `json:"server_url"`
	PublicURL   string   `json:"public_url,omitempty"` // base for game links (default: server_url)
	MinBuyIn    string   `json:"min_buy_in,omitempty"` // USDC decimal (default "0.5")
	CallTimeout Duration `json:"call_timeout,omitempty"`
	AgentSecret string   `json:"-"`
}

// MinBuyInRat parses MinBuyIn. Invalid values fall back to 0.5.
func (g GameConfig) MinBuyInRat() *big.Rat {
	r, ok := new(big.Rat).SetString(g.MinBuyIn)
	if !ok || r.Sign() < 0 {
		return big.NewRat(1, 2)
	}
	return r
}

// GameURLBase returns the base used to build game links.
func (g GameConfig) GameURLBase() string {
	if g.PublicURL != "" {
		return g.PublicURL
	}
	return g.ServerURL
}

// OracleConfig configures the language-model interpreter.
type OracleConfig struct {
	Provider       string   `json:"provider,omitempty"` // "openai" (default) or "gemini"
	Model          string   `json:"model,omitempty"`
	APIBase        string   `json:"api_base,omitempty"`
	MaxInputTokens int      `json:"max_input_tokens,omitempty"`
	Timeout        Duration `json:"timeout,omitempty"`
	APIKey         string   `json:"-"` // from env SQUABBLE_OPENAI_API_KEY / SQUABBLE_GEMINI_API_KEY
}

// SessionsConfig configures the conversation session store.
type SessionsConfig struct {
	Backend       string   `json:"backend,omitempty"` // "memory" (default), "sqlite", "postgres", "badger"
	Path          string   `json:"path,omitempty"`    // sqlite file or badger directory
	TTL           Duration `json:"ttl,omitempty"`
	MaxEntries    int      `json:"max_entries,omitempty"`
	PruneSchedule string   `json:"prune_schedule,omitempty"` // cron expression
}

// GatewayConfig configures the admin HTTP listener.
type GatewayConfig struct {
	Host           string  `json:"host"`
	Port           int     `json:"port"`
	BroadcastRPS   float64 `json:"broadcast_rps,omitempty"`
	BroadcastBurst int     `json:"broadcast_burst,omitempty"`
}

// DatabaseConfig holds the Postgres DSN for the postgres session backend.
// PostgresDSN is NEVER read from config.json (secret), only from env SQUABBLE_POSTGRES_DSN.
type DatabaseConfig struct {
	PostgresDSN string `json:"-"`
}

// TelemetryConfig configures OpenTelemetry export for traces and spans.
type TelemetryConfig struct {
	Enabled     bool              `json:"enabled,omitempty"`
	Endpoint    string            `json:"endpoint,omitempty"` // e.g. "localhost:4317"
	Protocol    string            `json:"protocol,omitempty"` // "grpc" (default) or "http"
	Insecure    bool              `json:"insecure,omitempty"`
	ServiceName string            `json:"service_name,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
}

// DedupeConfig bounds the inbound dedupe cache.
type DedupeConfig struct {
	TTL        Duration `json:"ttl,omitempty"`
	MaxEntries int      `json:"max_entries,omitempty"`
}

// ChannelsConfig contains per-transport configuration.
type ChannelsConfig struct {
	Bridge   BridgeConfig   `json:"bridge"`
	Telegram TelegramConfig `json:"telegram"`
	Discord  DiscordConfig  `json:"discord"`
}

// BridgeConfig configures the messaging-network sidecar connection.
type BridgeConfig struct {
	Enabled        bool                `json:"enabled"`
	URL            string              `json:"url"` // ws://localhost:7777/agent
	Token          string              `json:"token,omitempty"`
	AllowFrom      FlexibleStringSlice `json:"allow_from"`
	FloodPerMinute int                 `json:"flood_per_minute,omitempty"`
}

type TelegramConfig struct {
	Enabled        bool                `json:"enabled"`
	Token          string              `json:"token"`
	AllowFrom      FlexibleStringSlice `json:"allow_from"`
	FloodPerMinute int                 `json:"flood_per_minute,omitempty"`
}

type DiscordConfig struct {
	Enabled        bool                `json:"enabled"`
	Token          string              `json:"token"`
	AllowFrom      FlexibleStringSlice `json:"allow_from"`
	FloodPerMinute int                 `json:"flood_per_minute,omitempty"`
}

// AgentRules returns a snapshot of the hot-reloadable agent rules.
func (c *Config) AgentRules() AgentConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	a := c.Agent
	a.Triggers = append(FlexibleStringSlice(nil), c.Agent.Triggers...)
	a.HintKeywords = append(FlexibleStringSlice(nil), c.Agent.HintKeywords...)
	return a
}

// ReplaceRules swaps in the rules and minimum buy-in from a freshly loaded config.
func (c *Config) ReplaceRules(from *Config) {
	rules := from.AgentRules()
	from.mu.RLock()
	minBuyIn := from.Game.MinBuyIn
	from.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.Agent = rules
	c.Game.MinBuyIn = minBuyIn
}
