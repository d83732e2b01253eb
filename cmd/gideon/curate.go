package main

import (
	"context"
	"fmt"

	"github.com/gideonlabs/gideon/internal/agent"
	"github.com/gideonlabs/gideon/internal/config"
	"github.com/gideonlabs/gideon/internal/curation"

	"github.com/spf13/cobra"
)

var curateCmd = &cobra.Command{
	Use:   "curate [topic-id]",
	Short: "Run a curation session now",
	Long:  `Asks the curator agent to review recent conversations and enrich the learning content. With a topic id, curation is scoped to that topic; without one, a full session runs.`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg == nil {
			return fmt.Errorf("config not loaded")
		}
		if cfg.Agent.CuratorID == "" {
			return fmt.Errorf("agent.curator_id is not configured")
		}

		requestTimeout, err := config.DurationOrDefault(cfg.Agent.RequestTimeout, config.DefaultAgentRequestTimeout)
		if err != nil {
			return fmt.Errorf("parse agent request timeout: %w", err)
		}
		client := agent.NewClient(cfg.Agent.BaseURL, requestTimeout)

		cooldown, err := config.DurationOrDefault(cfg.Curation.Cooldown, config.DefaultCurationCooldown)
		if err != nil {
			return fmt.Errorf("parse curation cooldown: %w", err)
		}
		trigger := curation.NewTrigger(client, cfg.Agent.CuratorID, curation.NewLimiter(cooldown))

		ctx := context.Background()
		if len(args) == 1 {
			if err := trigger.RunTopicCuration(ctx, args[0]); err != nil {
				return err
			}
			fmt.Printf("Curation for topic %q completed.\n", args[0])
			return nil
		}

		if err := trigger.RunFullCuration(ctx); err != nil {
			return err
		}
		fmt.Println("Full curation session completed.")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(curateCmd)
}
