package server

import (
	"context"
	"fmt"

	"github.com/mwantia/manifest/internal/agent"
	"github.com/mwantia/manifest/pkg/log"
	"github.com/mwantia/manifest/pkg/tags"
	"github.com/spf13/cobra"

	config "github.com/mwantia/manifest/internal/config/server"
)

func NewSeedCommand() *cobra.Command {
	var force bool
	var csvPath string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Seed system and business tags",
		Long: `Create the system tags and, when a CSV is configured, the business
tag taxonomy. Seeding is idempotent; --force drops and recreates them.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadServerConfig()
			if err != nil {
				return fmt.Errorf("failed to load server configuration: %w", err)
			}
			if csvPath != "" {
				cfg.Tagging.BusinessTagsCSV = csvPath
			}

			ctx := context.Background()
			st, err := agent.OpenStore(ctx, cfg.Metadata)
			if err != nil {
				return err
			}
			defer st.Close()

			if err := st.Migrate(ctx); err != nil {
				return err
			}

			logger := log.NewLoggerService("manifest", cfg.Log)
			cfg.Tagging.SeedSystemTags = true
			return agent.SeedTags(ctx, tags.NewService(st, logger), cfg.Tagging, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "drop and recreate the seeded tags")
	cmd.Flags().StringVar(&csvPath, "business-csv", "", "business taxonomy CSV (overrides tagging.business_tags_csv)")

	return cmd
}
