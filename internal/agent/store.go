package agent

import (
	"context"
	"fmt"
	"time"

	config "github.com/mwantia/manifest/internal/config/server"
	"github.com/mwantia/manifest/pkg/db/store"
	"github.com/mwantia/manifest/pkg/log"
	"github.com/mwantia/manifest/pkg/tagging"
	"github.com/mwantia/manifest/pkg/tags"
)

// OpenStore opens and connects the configured metadata store. Migrations
// are left to the caller.
func OpenStore(ctx context.Context, cfg config.MetadataServerConfig) (*store.SQLiteStore, error) {
	if cfg.Type != "" && cfg.Type != "sqlite" {
		return nil, fmt.Errorf("unsupported metadata store type '%s'", cfg.Type)
	}

	st, err := store.NewSQLiteStore(store.SQLiteConfig{
		Path:     cfg.SQLite.Path,
		LogLevel: store.ParseLogLevel(cfg.SQLite.LogLevel),
	})
	if err != nil {
		return nil, err
	}
	if err := st.Connect(ctx); err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to connect metadata store: %w", err)
	}
	return st, nil
}

// SeedTags creates the system tags and, when configured, the business
// taxonomy. Both steps are idempotent.
func SeedTags(ctx context.Context, svc *tags.Service, cfg config.TaggingServerConfig, force bool) error {
	if cfg.SeedSystemTags || force {
		if _, err := svc.SeedSystemTags(ctx, force); err != nil {
			return err
		}
	}
	if cfg.BusinessTagsCSV != "" {
		if _, err := svc.SeedBusinessTagsFile(ctx, cfg.BusinessTagsCSV, force); err != nil {
			return err
		}
	}
	return nil
}

func taggingOptions(cfg config.TaggingServerConfig, logger log.LoggerService) tagging.Options {
	opts := tagging.Options{PatternCacheSize: cfg.PatternCacheSize}
	if cfg.PatternCacheTTL != "" {
		ttl, err := time.ParseDuration(cfg.PatternCacheTTL)
		if err != nil {
			logger.Warn("Invalid pattern cache ttl '%s', using default: %v", cfg.PatternCacheTTL, err)
		} else {
			opts.PatternCacheTTL = ttl
		}
	}
	return opts
}
