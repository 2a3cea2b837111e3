package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/nextlevelbuilder/squabble/internal/agent"
	"github.com/nextlevelbuilder/squabble/internal/bus"
	"github.com/nextlevelbuilder/squabble/internal/channels"
	"github.com/nextlevelbuilder/squabble/internal/config"
	"github.com/nextlevelbuilder/squabble/internal/gameserver"
	httpapi "github.com/nextlevelbuilder/squabble/internal/http"
	"github.com/nextlevelbuilder/squabble/internal/intent"
	"github.com/nextlevelbuilder/squabble/internal/sessions"
	"github.com/nextlevelbuilder/squabble/internal/tracing"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the agent: channels, dispatcher and admin API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func runServe() error {
	setupLogging()

	cfgPath := resolveConfigPath()
	config.LoadDotEnv(cfgPath)
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.Game.ServerURL == "" {
		return fmt.Errorf("game.server_url is required (run `squabble onboard`)")
	}
	if cfg.Game.AgentSecret == "" {
		return fmt.Errorf("SQUABBLE_AGENT_SECRET is not set")
	}
	masked := cfg.MaskedCopy()
	slog.Info("config loaded",
		"path", cfgPath,
		"game_server", masked.Game.ServerURL,
		"interpreter", masked.Agent.Interpreter,
		"sessions", masked.Sessions.Backend,
		"bridge", masked.Channels.Bridge.Enabled,
		"telegram", masked.Channels.Telegram.Enabled,
		"discord", masked.Channels.Discord.Enabled,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Init(ctx, cfg.Telemetry)
	if err != nil {
		slog.Warn("telemetry disabled", "error", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			slog.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	msgBus := bus.New()
	channelMgr := channels.NewManager(msgBus)
	if err := registerChannels(cfg, msgBus, channelMgr); err != nil {
		return err
	}

	sessStore, err := openSessionStore(cfg)
	if err != nil {
		return err
	}
	defer sessStore.Close()
	pruner, err := sessions.NewPruner(sessStore, cfg.Sessions.PruneSchedule, cfg.Sessions.TTL.Std())
	if err != nil {
		return err
	}

	rules := cfg.AgentRules()
	ruleInterp := intent.NewRuleInterpreter(rules.Triggers)
	interp, err := buildInterpreter(ctx, cfg, ruleInterp)
	if err != nil {
		return err
	}

	game := gameserver.NewClient(cfg.Game.ServerURL, cfg.Game.AgentSecret, cfg.Game.CallTimeout.Std())
	executor := agent.NewExecutor(game, channelMgr, agent.ExecutorConfig{
		Name:        rules.Name,
		MinBuyIn:    cfg.Game.MinBuyInRat(),
		GameURLBase: cfg.Game.GameURLBase(),
		Policy:      rules.UnrecognizedPolicy,
		Timeout:     cfg.Game.CallTimeout.Std(),
	})
	classifier := agent.NewClassifier(channelMgr, rules.Triggers, rules.HintKeywords, rules.HistoryWindow)
	dispatcher := agent.NewDispatcher(agent.DispatcherConfig{
		Bus:             msgBus,
		Transport:       channelMgr,
		Classifier:      classifier,
		Interpreter:     interp,
		Executor:        executor,
		Sessions:        sessions.NewManager(sessStore),
		Dedupe:          bus.NewDedupeCache(cfg.Dedupe.TTL.Std(), cfg.Dedupe.MaxEntries),
		RespondInDirect: rules.RespondInDirect,
		HintTrigger:     firstTrigger(rules.Triggers),
	})

	admin := httpapi.NewServer(cfg.Gateway, cfg.Game.AgentSecret, channelMgr)

	watcher, err := config.NewWatcher(cfgPath, cfg, func(fresh *config.Config) {
		cfg.ReplaceRules(fresh)
		r := cfg.AgentRules()
		ruleInterp.SetTriggers(r.Triggers)
		classifier.SetRules(r.Triggers, r.HintKeywords, r.HistoryWindow)
		executor.SetRules(cfg.Game.MinBuyInRat(), r.UnrecognizedPolicy)
		dispatcher.SetRules(r.RespondInDirect, firstTrigger(r.Triggers))
		slog.Info("agent rules applied", "triggers", len(r.Triggers), "policy", r.UnrecognizedPolicy)
	})
	if err != nil {
		slog.Warn("config hot reload unavailable", "error", err)
	}

	if err := channelMgr.StartAll(ctx); err != nil {
		return fmt.Errorf("start channels: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return dispatcher.Run(gctx) })
	g.Go(func() error { return admin.Start(gctx) })
	g.Go(func() error { return pruner.Run(gctx) })
	if watcher != nil {
		g.Go(func() error { return watcher.Run(gctx) })
	}

	slog.Info("squabble running", "version", Version, "channels", channelMgr.GetEnabledChannels())
	err = g.Wait()

	slog.Info("graceful shutdown initiated")
	channelMgr.StopAll(context.Background())
	return err
}

func firstTrigger(triggers []string) string {
	if len(triggers) == 0 {
		return ""
	}
	return triggers[0]
}
