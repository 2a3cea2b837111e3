package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/squabble/internal/agent"
	"github.com/nextlevelbuilder/squabble/internal/config"
	"github.com/nextlevelbuilder/squabble/internal/gameserver"
)

func leaderboardCmd() *cobra.Command {
	var conversation string
	cmd := &cobra.Command{
		Use:   "leaderboard",
		Short: "Fetch and print a conversation's leaderboard",
		RunE: func(cmd *cobra.Command, args []string) error {
			setupLogging()
			cfgPath := resolveConfigPath()
			config.LoadDotEnv(cfgPath)
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if cfg.Game.ServerURL == "" {
				return fmt.Errorf("game.server_url is not configured")
			}

			client := gameserver.NewClient(cfg.Game.ServerURL, cfg.Game.AgentSecret, cfg.Game.CallTimeout.Std())
			lb, err := client.Leaderboard(context.Background(), conversation)
			if err != nil {
				return fmt.Errorf("fetch leaderboard: %w", err)
			}
			fmt.Println(agent.RenderLeaderboard(lb))
			return nil
		},
	}
	cmd.Flags().StringVar(&conversation, "conversation", "", "conversation id")
	cmd.MarkFlagRequired("conversation")
	return cmd
}
