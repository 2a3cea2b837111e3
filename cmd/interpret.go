package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/squabble/internal/config"
	"github.com/nextlevelbuilder/squabble/internal/intent"
)

func interpretCmd() *cobra.Command {
	var awaiting, useOracle bool
	cmd := &cobra.Command{
		Use:   "interpret <text>",
		Short: "Print the intent a message text resolves to",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			setupLogging()
			cfgPath := resolveConfigPath()
			config.LoadDotEnv(cfgPath)
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			rules := intent.NewRuleInterpreter(cfg.AgentRules().Triggers)
			var interp intent.Interpreter = rules
			if useOracle {
				cfg.Agent.Interpreter = "oracle"
				if interp, err = buildInterpreter(context.Background(), cfg, rules); err != nil {
					return err
				}
			}

			state := intent.State{AwaitingBuyIn: awaiting}
			it := interp.Interpret(context.Background(), args[0], state)
			fmt.Printf("canonical: %q\n", rules.Normalize(args[0]))
			fmt.Printf("intent:    %s\n", it)
			fmt.Printf("awaiting:  %v\n", intent.Next(it).AwaitingBuyIn)
			return nil
		},
	}
	cmd.Flags().BoolVar(&awaiting, "awaiting-buy-in", false, "interpret as a reply to a buy-in question")
	cmd.Flags().BoolVar(&useOracle, "oracle", false, "use the configured language-model oracle")
	return cmd
}
