package config

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/titanous/json5"
)

const secretMask = "***"

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Agent: AgentConfig{
			Name:               "squabble",
			Triggers:           FlexibleStringSlice{"@squabble", "@squabble.base.eth"},
			HintKeywords:       FlexibleStringSlice{"/help"},
			UnrecognizedPolicy: "fallback",
			HistoryWindow:      100,
			Interpreter:        "rules",
		},
		Game: GameConfig{
			MinBuyIn:    "0.5",
			CallTimeout: Duration(15 * time.Second),
		},
		Oracle: OracleConfig{
			Provider:       "openai",
			Model:          "gpt-4o-mini",
			MaxInputTokens: 256,
			Timeout:        Duration(20 * time.Second),
		},
		Channels: ChannelsConfig{
			Bridge:   BridgeConfig{FloodPerMinute: 30},
			Telegram: TelegramConfig{FloodPerMinute: 30},
			Discord:  DiscordConfig{FloodPerMinute: 30},
		},
		Sessions: SessionsConfig{
			Backend:       "memory",
			TTL:           Duration(30 * time.Minute),
			MaxEntries:    10000,
			PruneSchedule: "*/5 * * * *",
		},
		Gateway: GatewayConfig{
			Host:           "0.0.0.0",
			Port:           8080,
			BroadcastRPS:   5,
			BroadcastBurst: 5,
		},
		Telemetry: TelemetryConfig{
			Protocol:    "grpc",
			ServiceName: "squabble-agent",
		},
		Dedupe: DedupeConfig{
			TTL:        Duration(20 * time.Minute),
			MaxEntries: 5000,
		},
	}
}

// LoadDotEnv loads a .env file next to the config (or in the working directory)
// into the process environment. Existing variables are not overwritten.
func LoadDotEnv(cfgPath string) {
	candidates := []string{filepath.Join(filepath.Dir(cfgPath), ".env"), ".env"}
	for _, p := range candidates {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			slog.Warn("failed to load .env", "path", p, "error", err)
			continue
		}
		slog.Debug("loaded .env", "path", p)
		return
	}
	slog.Debug("no .env file found, using process environment")
}

// Load reads config from a JSON5 file, then overlays env vars.
// A missing file is not an error: defaults plus env are returned.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err == nil {
		if err := json5.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnvOverrides()
	cfg.applyDefaults()
	return cfg, nil
}

// applyEnvOverrides overlays env vars onto the config.
// Env vars take precedence over file values.
func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	envBool := func(key string, dst *bool) {
		if v := os.Getenv(key); v != "" {
			*dst = v == "true" || v == "1"
		}
	}

	envStr("SQUABBLE_AGENT_SECRET", &c.Game.AgentSecret)
	envStr("SQUABBLE_GAME_SERVER_URL", &c.Game.ServerURL)
	envStr("SQUABBLE_GAME_PUBLIC_URL", &c.Game.PublicURL)
	envStr("SQUABBLE_MIN_BUY_IN", &c.Game.MinBuyIn)

	envStr("SQUABBLE_INTERPRETER", &c.Agent.Interpreter)
	envStr("SQUABBLE_UNRECOGNIZED_POLICY", &c.Agent.UnrecognizedPolicy)
	if v := os.Getenv("SQUABBLE_TRIGGERS"); v != "" {
		c.Agent.Triggers = splitList(v)
	}

	// Oracle: provider-specific key env wins for the selected provider.
	envStr("SQUABBLE_ORACLE_PROVIDER", &c.Oracle.Provider)
	envStr("SQUABBLE_ORACLE_MODEL", &c.Oracle.Model)
	envStr("SQUABBLE_ORACLE_API_BASE", &c.Oracle.APIBase)
	switch c.Oracle.Provider {
	case "gemini":
		envStr("SQUABBLE_GEMINI_API_KEY", &c.Oracle.APIKey)
	default:
		envStr("SQUABBLE_OPENAI_API_KEY", &c.Oracle.APIKey)
	}

	envStr("SQUABBLE_BRIDGE_URL", &c.Channels.Bridge.URL)
	envStr("SQUABBLE_BRIDGE_TOKEN", &c.Channels.Bridge.Token)
	envStr("SQUABBLE_TELEGRAM_TOKEN", &c.Channels.Telegram.Token)
	envStr("SQUABBLE_DISCORD_TOKEN", &c.Channels.Discord.Token)

	// Auto-enable channels if credentials are provided via env
	if os.Getenv("SQUABBLE_BRIDGE_URL") != "" {
		c.Channels.Bridge.Enabled = true
	}
	if os.Getenv("SQUABBLE_TELEGRAM_TOKEN") != "" {
		c.Channels.Telegram.Enabled = true
	}
	if os.Getenv("SQUABBLE_DISCORD_TOKEN") != "" {
		c.Channels.Discord.Enabled = true
	}

	envStr("SQUABBLE_SESSIONS_BACKEND", &c.Sessions.Backend)
	envStr("SQUABBLE_SESSIONS_PATH", &c.Sessions.Path)
	envStr("SQUABBLE_POSTGRES_DSN", &c.Database.PostgresDSN)

	envStr("SQUABBLE_HOST", &c.Gateway.Host)
	if v := os.Getenv("SQUABBLE_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 {
			c.Gateway.Port = port
		}
	}

	// Telemetry
	envStr("SQUABBLE_TELEMETRY_ENDPOINT", &c.Telemetry.Endpoint)
	envStr("SQUABBLE_TELEMETRY_PROTOCOL", &c.Telemetry.Protocol)
	envStr("SQUABBLE_TELEMETRY_SERVICE_NAME", &c.Telemetry.ServiceName)
	envBool("SQUABBLE_TELEMETRY_ENABLED", &c.Telemetry.Enabled)
	envBool("SQUABBLE_TELEMETRY_INSECURE", &c.Telemetry.Insecure)
}

// applyDefaults restores defaults for fields a config file zeroed out.
func (c *Config) applyDefaults() {
	d := Default()
	if len(c.Agent.Triggers) == 0 {
		c.Agent.Triggers = d.Agent.Triggers
	}
	if c.Agent.HistoryWindow <= 0 {
		c.Agent.HistoryWindow = d.Agent.HistoryWindow
	}
	if c.Game.CallTimeout <= 0 {
		c.Game.CallTimeout = d.Game.CallTimeout
	}
	if c.Oracle.Timeout <= 0 {
		c.Oracle.Timeout = d.Oracle.Timeout
	}
	if c.Sessions.TTL <= 0 {
		c.Sessions.TTL = d.Sessions.TTL
	}
	if c.Sessions.MaxEntries <= 0 {
		c.Sessions.MaxEntries = d.Sessions.MaxEntries
	}
	if c.Dedupe.TTL <= 0 {
		c.Dedupe.TTL = d.Dedupe.TTL
	}
	c.Game.ServerURL = strings.TrimRight(c.Game.ServerURL, "/")
	c.Game.PublicURL = strings.TrimRight(c.Game.PublicURL, "/")
}

// Save writes the config to path as indented JSON (valid JSON5).
// Env-only secrets are never written.
func Save(path string, cfg *Config) error {
	cfg.mu.RLock()
	data, err := json.MarshalIndent(cfg, "", "  ")
	cfg.mu.RUnlock()
	if err != nil {
		return err
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0600)
}

// Hash returns a short SHA-256 hash of the config, used to skip no-op reloads.
func (c *Config) Hash() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	data, _ := json.Marshal(c)
	h := sha256.Sum256(data)
	return fmt.Sprintf("%x", h[:8])
}

// MaskedCopy returns a deep copy with secrets masked, for logging.
func (c *Config) MaskedCopy() *Config {
	c.mu.RLock()
	data, err := json.Marshal(c)
	c.mu.RUnlock()
	if err != nil {
		return Default()
	}
	cp := Default()
	if err := json.Unmarshal(data, cp); err != nil {
		return Default()
	}
	maskNonEmpty(&cp.Channels.Bridge.Token)
	maskNonEmpty(&cp.Channels.Telegram.Token)
	maskNonEmpty(&cp.Channels.Discord.Token)
	return cp
}

func maskNonEmpty(s *string) {
	if *s != "" {
		*s = secretMask
	}
}

func splitList(v string) FlexibleStringSlice {
	var out FlexibleStringSlice
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ExpandHome replaces leading ~ with the user home directory.
func ExpandHome(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	home, _ := os.UserHomeDir()
	if len(path) > 1 && path[1] == '/' {
		return home + path[1:]
	}
	return home
}
