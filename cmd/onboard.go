package cmd

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/squabble/internal/config"
	"github.com/nextlevelbuilder/squabble/internal/intent"
)

func onboardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "onboard",
		Short: "Interactive setup wizard (writes config.json and .env)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnboard(resolveConfigPath())
		},
	}
}

type onboardAnswers struct {
	serverURL   string
	publicURL   string
	secret      string
	minBuyIn    string
	transport   string
	bridgeURL   string
	bridgeToken string
	botToken    string
	interpreter string
	provider    string
	apiKey      string
	backend     string
	path        string
}

func runOnboard(cfgPath string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		cfg = config.Default()
	}
	a := onboardAnswers{
		serverURL:   cfg.Game.ServerURL,
		publicURL:   cfg.Game.PublicURL,
		minBuyIn:    cfg.Game.MinBuyIn,
		transport:   "bridge",
		bridgeURL:   "ws://localhost:7777/agent",
		interpreter: cfg.Agent.Interpreter,
		provider:    cfg.Oracle.Provider,
		backend:     cfg.Sessions.Backend,
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title("Game server URL").Placeholder("https://squabble.example.com").
				Value(&a.serverURL).Validate(validateURL),
			huh.NewInput().Title("Public game link base (blank = server URL)").Value(&a.publicURL),
			huh.NewInput().Title("Agent secret (x-agent-secret)").EchoMode(huh.EchoModePassword).
				Value(&a.secret).Validate(required("agent secret")),
			huh.NewInput().Title("Minimum buy-in (USDC)").Value(&a.minBuyIn).Validate(validateAmount),
		),
		huh.NewGroup(
			huh.NewSelect[string]().Title("Transport").Options(
				huh.NewOption("Messaging bridge (WebSocket sidecar)", "bridge"),
				huh.NewOption("Telegram bot", "telegram"),
				huh.NewOption("Discord bot", "discord"),
			).Value(&a.transport),
		),
		huh.NewGroup(
			huh.NewInput().Title("Bridge URL").Value(&a.bridgeURL).Validate(validateURL),
			huh.NewInput().Title("Bridge token (optional)").EchoMode(huh.EchoModePassword).Value(&a.bridgeToken),
		).WithHideFunc(func() bool { return a.transport != "bridge" }),
		huh.NewGroup(
			huh.NewInput().Title("Bot token").EchoMode(huh.EchoModePassword).
				Value(&a.botToken).Validate(required("bot token")),
		).WithHideFunc(func() bool { return a.transport == "bridge" }),
		huh.NewGroup(
			huh.NewSelect[string]().Title("Command interpreter").Options(
				huh.NewOption("Rules (no external calls)", "rules"),
				huh.NewOption("Language-model oracle with rule fallback", "oracle"),
			).Value(&a.interpreter),
		),
		huh.NewGroup(
			huh.NewSelect[string]().Title("Oracle provider").Options(
				huh.NewOption("OpenAI-compatible", "openai"),
				huh.NewOption("Gemini", "gemini"),
			).Value(&a.provider),
			huh.NewInput().Title("Oracle API key").EchoMode(huh.EchoModePassword).
				Value(&a.apiKey).Validate(required("API key")),
		).WithHideFunc(func() bool { return a.interpreter != "oracle" }),
		huh.NewGroup(
			huh.NewSelect[string]().Title("Session store").Options(
				huh.NewOption("In memory", "memory"),
				huh.NewOption("SQLite file", "sqlite"),
				huh.NewOption("Badger directory", "badger"),
				huh.NewOption("Postgres (SQUABBLE_POSTGRES_DSN)", "postgres"),
			).Value(&a.backend),
			huh.NewInput().Title("Session store path").Value(&a.path),
		),
	)
	if err := form.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			fmt.Println("Setup cancelled.")
			return nil
		}
		return fmt.Errorf("onboard: %w", err)
	}

	env := applyOnboard(cfg, a)
	if err := config.Save(cfgPath, cfg); err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	envPath := filepath.Join(filepath.Dir(cfgPath), ".env")
	if err := godotenv.Write(env, envPath); err != nil {
		return fmt.Errorf("write %s: %w", envPath, err)
	}
	os.Chmod(envPath, 0600)

	fmt.Printf("Wrote %s and %s.\n", cfgPath, envPath)
	if a.backend == "postgres" {
		fmt.Println("Set SQUABBLE_POSTGRES_DSN and run `squabble migrate up` before starting.")
	}
	fmt.Println("Start the agent with: squabble serve")
	return nil
}

// applyOnboard copies non-secret answers into cfg and returns the secrets for .env.
func applyOnboard(cfg *config.Config, a onboardAnswers) map[string]string {
	env := map[string]string{"SQUABBLE_AGENT_SECRET": a.secret}

	cfg.Game.ServerURL = strings.TrimRight(a.serverURL, "/")
	cfg.Game.PublicURL = strings.TrimRight(a.publicURL, "/")
	cfg.Game.MinBuyIn = a.minBuyIn
	cfg.Agent.Interpreter = a.interpreter
	cfg.Sessions.Backend = a.backend
	cfg.Sessions.Path = a.path

	cfg.Channels.Bridge.Enabled = a.transport == "bridge"
	cfg.Channels.Telegram.Enabled = a.transport == "telegram"
	cfg.Channels.Discord.Enabled = a.transport == "discord"
	cfg.Channels.Telegram.Token = ""
	cfg.Channels.Discord.Token = ""
	cfg.Channels.Bridge.Token = ""
	switch a.transport {
	case "bridge":
		cfg.Channels.Bridge.URL = a.bridgeURL
		if a.bridgeToken != "" {
			env["SQUABBLE_BRIDGE_TOKEN"] = a.bridgeToken
		}
	case "telegram":
		env["SQUABBLE_TELEGRAM_TOKEN"] = a.botToken
	case "discord":
		env["SQUABBLE_DISCORD_TOKEN"] = a.botToken
	}

	if a.interpreter == "oracle" {
		cfg.Oracle.Provider = a.provider
		if a.provider == "gemini" {
			env["SQUABBLE_GEMINI_API_KEY"] = a.apiKey
			if cfg.Oracle.Model == config.Default().Oracle.Model {
				cfg.Oracle.Model = "gemini-2.0-flash"
			}
		} else {
			env["SQUABBLE_OPENAI_API_KEY"] = a.apiKey
		}
	}
	return env
}

func required(field string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", field)
		}
		return nil
	}
}

func validateURL(s string) error {
	u, err := url.Parse(strings.TrimSpace(s))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("enter an absolute URL")
	}
	return nil
}

func validateAmount(s string) error {
	if b := intent.ParseBuyIn(s); b.Kind != intent.BuyInAmount {
		return fmt.Errorf("enter a decimal amount such as 0.5")
	}
	return nil
}
