package config

import (
	"fmt"
	"strings"
)

const (
	StorageDriverFile   = "file"
	StorageDriverBadger = "badger"
)

// StorageConfig selects where the catalog and ledger snapshots live.
type StorageConfig struct {
	Driver string `koanf:"driver"`
	Dir    string `koanf:"dir"`
	// LoadFallback starts with an empty catalog when the snapshots cannot be read.
	LoadFallback bool `koanf:"loadFallback"`
}

// String returns a string representation of the storage configuration.
func (c *StorageConfig) String() string {
	var b strings.Builder
	b.WriteString("\n--- Storage ---\n")
	b.WriteString(fmt.Sprintf("  driver: %s\n", c.Driver))
	b.WriteString(fmt.Sprintf("  dir: %s\n", c.Dir))
	b.WriteString(fmt.Sprintf("  loadFallback: %t\n", c.LoadFallback))
	return b.String()
}

func (c *StorageConfig) Validate() error {
	switch c.Driver {
	case StorageDriverFile, StorageDriverBadger:
	default:
		return fmt.Errorf("unsupported storage driver: %q", c.Driver)
	}
	if c.Dir == "" {
		return fmt.Errorf("storage dir is not configured")
	}
	return nil
}
