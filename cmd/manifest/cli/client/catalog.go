package client

import (
	"context"
	"fmt"
	"os"

	"github.com/mwantia/manifest/internal/agent"
	"github.com/mwantia/manifest/pkg/db/models"
	"github.com/mwantia/manifest/pkg/db/store"
	"github.com/mwantia/manifest/pkg/log"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	config "github.com/mwantia/manifest/internal/config/server"
)

// catalog is the offline view of the metadata store used by the client
// commands.
type catalog struct {
	cfg   *config.BaseServerConfig
	store *store.SQLiteStore
	log   log.LoggerService
}

func openCatalog(ctx context.Context) (*catalog, error) {
	cfg, err := config.LoadServerConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load server configuration: %w", err)
	}

	st, err := agent.OpenStore(ctx, cfg.Metadata)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, err
	}

	return &catalog{
		cfg:   cfg,
		store: st,
		log:   log.NewLoggerService("manifest", cfg.Log),
	}, nil
}

func (c *catalog) Close() error {
	return c.store.Close()
}

func ownerFlag(cmd *cobra.Command, owner *string) {
	cmd.Flags().StringVar(owner, "owner", "", "owner the command acts for")
	cmd.MarkFlagRequired("owner")
}

func printYAML(v any) error {
	encoder := yaml.NewEncoder(os.Stdout)
	encoder.SetIndent(2)
	defer encoder.Close()

	return encoder.Encode(v)
}

func printSamples(total int64, samples []*models.Sample) {
	fmt.Printf("%d matching sample(s)\n", total)
	for _, s := range samples {
		fmt.Printf("  %s  %-10s %s\n", s.ID, s.AnnotationStatus, s.FullPath())
	}
}
