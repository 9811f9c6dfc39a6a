package server

import "fmt"

// StorageServerConfig lists the MinIO instances whose buckets feed the catalog.
type StorageServerConfig struct {
	Instances []StorageInstanceConfig `mapstructure:"instances" yaml:"instances"`
}

type StorageInstanceConfig struct {
	Name      string               `mapstructure:"name"       yaml:"name"`
	Owner     string               `mapstructure:"owner"      yaml:"owner"`
	Endpoint  string               `mapstructure:"endpoint"   yaml:"endpoint"`
	AccessKey string               `mapstructure:"access_key" yaml:"access_key"`
	SecretKey string               `mapstructure:"secret_key" yaml:"secret_key"`
	Secure    bool                 `mapstructure:"secure"     yaml:"secure"`
	Watch     []StorageWatchConfig `mapstructure:"watch"      yaml:"watch"`
}

type StorageWatchConfig struct {
	Bucket string `mapstructure:"bucket" yaml:"bucket"`
	Prefix string `mapstructure:"prefix" yaml:"prefix"`
	// Sync lists the bucket once on startup before listening.
	Sync bool `mapstructure:"sync" yaml:"sync"`
}

func (c StorageServerConfig) Validate() error {
	names := make(map[string]bool)
	for i, inst := range c.Instances {
		if inst.Name == "" {
			return fmt.Errorf("instance %d: name is required", i)
		}
		if names[inst.Name] {
			return fmt.Errorf("instance '%s' is defined more than once", inst.Name)
		}
		names[inst.Name] = true

		if inst.Endpoint == "" {
			return fmt.Errorf("instance '%s': endpoint is required", inst.Name)
		}
		if inst.Owner == "" {
			return fmt.Errorf("instance '%s': owner is required", inst.Name)
		}
		for _, w := range inst.Watch {
			if w.Bucket == "" {
				return fmt.Errorf("instance '%s': watch entry without bucket", inst.Name)
			}
		}
	}
	return nil
}
