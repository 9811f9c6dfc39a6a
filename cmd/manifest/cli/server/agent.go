package server

import (
	"context"
	"fmt"

	"github.com/mwantia/manifest/internal/agent"
	"github.com/spf13/cobra"

	config "github.com/mwantia/manifest/internal/config/server"
)

func NewAgentCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Start the Manifest agent",
		Long: `Start the Manifest agent.

The agent listens for bucket notifications of every configured MinIO
instance and keeps the catalog and its annotation links up to date.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadServerConfig()
			if err != nil {
				return fmt.Errorf("failed to load server configuration: %w", err)
			}

			return agent.NewAgent(cfg).Serve(context.Background())
		},
	}

	return cmd
}
