package server

import (
	"context"
	"fmt"

	"github.com/mwantia/manifest/internal/agent"
	"github.com/mwantia/manifest/pkg/db/migrations"
	"github.com/spf13/cobra"

	config "github.com/mwantia/manifest/internal/config/server"
)

func NewMigrateCommand() *cobra.Command {
	var rollback bool
	var status bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply catalog schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadServerConfig()
			if err != nil {
				return fmt.Errorf("failed to load server configuration: %w", err)
			}

			ctx := context.Background()
			st, err := agent.OpenStore(ctx, cfg.Metadata)
			if err != nil {
				return err
			}
			defer st.Close()

			migrator := migrations.NewMigrator(st.DB())
			switch {
			case status:
				statuses, err := migrator.Status(ctx)
				if err != nil {
					return err
				}
				for _, s := range statuses {
					state := "pending"
					if s.Applied {
						state = "applied"
					}
					fmt.Printf("%4d  %-8s %s\n", s.Version, state, s.Description)
				}
				return nil

			case rollback:
				if err := migrator.Rollback(ctx); err != nil {
					return err
				}
				fmt.Println("Rolled back the latest migration")
				return nil
			}

			if err := migrator.Migrate(ctx); err != nil {
				return err
			}
			fmt.Println("Catalog schema is up to date")
			return nil
		},
	}

	cmd.Flags().BoolVar(&rollback, "rollback", false, "roll back the latest applied migration")
	cmd.Flags().BoolVar(&status, "status", false, "list migrations and whether they are applied")

	return cmd
}
