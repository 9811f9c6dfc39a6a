package server

type TaggingServerConfig struct {
	SeedSystemTags   bool   `mapstructure:"seed_system_tags"   yaml:"seed_system_tags"`
	BusinessTagsCSV  string `mapstructure:"business_tags_csv"  yaml:"business_tags_csv"`
	PatternCacheSize int    `mapstructure:"pattern_cache_size" yaml:"pattern_cache_size"`
	PatternCacheTTL  string `mapstructure:"pattern_cache_ttl"  yaml:"pattern_cache_ttl"`
}
