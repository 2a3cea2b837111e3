package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nextlevelbuilder/squabble/internal/bus"
	"github.com/nextlevelbuilder/squabble/internal/channels"
	"github.com/nextlevelbuilder/squabble/internal/channels/bridge"
	"github.com/nextlevelbuilder/squabble/internal/channels/discord"
	"github.com/nextlevelbuilder/squabble/internal/channels/telegram"
	"github.com/nextlevelbuilder/squabble/internal/config"
	"github.com/nextlevelbuilder/squabble/internal/intent"
	"github.com/nextlevelbuilder/squabble/internal/providers"
	"github.com/nextlevelbuilder/squabble/internal/sessions"
	"github.com/nextlevelbuilder/squabble/internal/store"
	"github.com/nextlevelbuilder/squabble/internal/store/kv"
	"github.com/nextlevelbuilder/squabble/internal/store/pg"
	"github.com/nextlevelbuilder/squabble/internal/store/sqlite"
)

func registerChannels(cfg *config.Config, msgBus *bus.MessageBus, mgr *channels.Manager) error {
	if cfg.Channels.Bridge.Enabled {
		ch, err := bridge.New(cfg.Channels.Bridge, msgBus)
		if err != nil {
			return fmt.Errorf("bridge channel: %w", err)
		}
		mgr.RegisterChannel(ch.Name(), ch)
		slog.Info("bridge channel enabled", "url", cfg.Channels.Bridge.URL)
	}

	if cfg.Channels.Telegram.Enabled && cfg.Channels.Telegram.Token != "" {
		ch, err := telegram.New(cfg.Channels.Telegram, msgBus)
		if err != nil {
			slog.Error("failed to initialize telegram channel", "error", err)
		} else {
			mgr.RegisterChannel(ch.Name(), ch)
			slog.Info("telegram channel enabled")
		}
	}

	if cfg.Channels.Discord.Enabled && cfg.Channels.Discord.Token != "" {
		ch, err := discord.New(cfg.Channels.Discord, msgBus)
		if err != nil {
			slog.Error("failed to initialize discord channel", "error", err)
		} else {
			mgr.RegisterChannel(ch.Name(), ch)
			slog.Info("discord channel enabled")
		}
	}
	return nil
}

func openSessionStore(cfg *config.Config) (store.SessionStore, error) {
	sc := store.StoreConfig{
		Backend:     cfg.Sessions.Backend,
		Path:        config.ExpandHome(cfg.Sessions.Path),
		PostgresDSN: cfg.Database.PostgresDSN,
	}
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	ttl := cfg.Sessions.TTL.Std()

	switch sc.Backend {
	case store.BackendSQLite:
		s, err := sqlite.Open(sc.Path, ttl)
		if err != nil {
			return nil, fmt.Errorf("open sqlite sessions: %w", err)
		}
		slog.Info("session store", "backend", "sqlite", "path", sc.Path)
		return s, nil
	case store.BackendBadger:
		s, err := kv.Open(sc.Path, ttl)
		if err != nil {
			return nil, fmt.Errorf("open badger sessions: %w", err)
		}
		slog.Info("session store", "backend", "badger", "path", sc.Path)
		return s, nil
	case store.BackendPostgres:
		db, err := pg.OpenDB(sc.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres sessions: %w", err)
		}
		if err := pg.CheckSchema(context.Background(), db).Err(); err != nil {
			db.Close()
			return nil, err
		}
		slog.Info("session store", "backend", "postgres", "schema", pg.RequiredSchemaVersion)
		return pg.NewPGSessionStore(db, ttl), nil
	default:
		slog.Info("session store", "backend", "memory", "max_entries", cfg.Sessions.MaxEntries)
		return sessions.NewMemoryStore(ttl, cfg.Sessions.MaxEntries), nil
	}
}

// buildInterpreter returns the rule interpreter, or an oracle backed by it when configured.
func buildInterpreter(ctx context.Context, cfg *config.Config, rules *intent.RuleInterpreter) (intent.Interpreter, error) {
	if cfg.Agent.Interpreter != "oracle" {
		return rules, nil
	}
	if cfg.Oracle.APIKey == "" {
		slog.Warn("oracle interpreter selected without API key, using rules")
		return rules, nil
	}

	var p providers.Provider
	switch cfg.Oracle.Provider {
	case "gemini":
		gp, err := providers.NewGeminiProvider(ctx, cfg.Oracle.APIKey, cfg.Oracle.Model)
		if err != nil {
			return nil, fmt.Errorf("gemini provider: %w", err)
		}
		p = gp
	case "", "openai":
		p = providers.NewOpenAIProvider("openai", cfg.Oracle.APIKey, cfg.Oracle.APIBase, cfg.Oracle.Model)
	default:
		return nil, fmt.Errorf("unknown oracle provider %q", cfg.Oracle.Provider)
	}

	slog.Info("oracle interpreter enabled", "provider", p.Name(), "model", p.DefaultModel())
	return intent.NewOracleInterpreter(p, rules, intent.OracleConfig{
		Model:          cfg.Oracle.Model,
		MaxInputTokens: cfg.Oracle.MaxInputTokens,
		Timeout:        cfg.Oracle.Timeout.Std(),
	}), nil
}
