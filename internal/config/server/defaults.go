package server

import "github.com/spf13/viper"

func GetServerDefault() BaseServerConfig {
	return BaseServerConfig{
		ShutdownTimeout: "10s",

		Log: LogServerConfig{
			Level:      "INFO",
			TimeFormat: "2006-01-02 15:04:05",
			File:       "",
			NoColor:    false,
			JSON:       false,
			NoTerminal: false,
			Rotation: LogServerRotationConfig{
				MaxSize:    128,
				MaxBackups: 5,
				MaxAge:     16,
				Compress:   false,
			},
		},
		Metadata: MetadataServerConfig{
			Type: "sqlite",
			SQLite: MetadataSQLiteConfig{
				Path:     "./manifest.db",
				LogLevel: "silent",
			},
		},
		Storage: StorageServerConfig{
			Instances: []StorageInstanceConfig{},
		},
		Metrics: MetricsServerConfig{
			Enabled: false,
			Address: ":9090",
			Path:    "/metrics",
		},
		Tagging: TaggingServerConfig{
			SeedSystemTags:   true,
			BusinessTagsCSV:  "",
			PatternCacheSize: 256,
			PatternCacheTTL:  "10m",
		},
	}
}

func setDefaults() {
	defaults := GetServerDefault()

	viper.SetDefault("shutdown_timeout", defaults.ShutdownTimeout)

	viper.SetDefault("log.level", defaults.Log.Level)
	viper.SetDefault("log.time_format", defaults.Log.TimeFormat)
	viper.SetDefault("log.file", defaults.Log.File)
	viper.SetDefault("log.no_color", defaults.Log.NoColor)
	viper.SetDefault("log.json", defaults.Log.JSON)
	viper.SetDefault("log.no_terminal", defaults.Log.NoTerminal)
	viper.SetDefault("log.rotation.max_size", defaults.Log.Rotation.MaxSize)
	viper.SetDefault("log.rotation.max_backups", defaults.Log.Rotation.MaxBackups)
	viper.SetDefault("log.rotation.max_age", defaults.Log.Rotation.MaxAge)
	viper.SetDefault("log.rotation.compress", defaults.Log.Rotation.Compress)

	viper.SetDefault("metadata.type", defaults.Metadata.Type)
	viper.SetDefault("metadata.sqlite.path", defaults.Metadata.SQLite.Path)
	viper.SetDefault("metadata.sqlite.log_level", defaults.Metadata.SQLite.LogLevel)

	viper.SetDefault("metrics.enabled", defaults.Metrics.Enabled)
	viper.SetDefault("metrics.address", defaults.Metrics.Address)
	viper.SetDefault("metrics.path", defaults.Metrics.Path)

	viper.SetDefault("tagging.seed_system_tags", defaults.Tagging.SeedSystemTags)
	viper.SetDefault("tagging.business_tags_csv", defaults.Tagging.BusinessTagsCSV)
	viper.SetDefault("tagging.pattern_cache_size", defaults.Tagging.PatternCacheSize)
	viper.SetDefault("tagging.pattern_cache_ttl", defaults.Tagging.PatternCacheTTL)
}
