package config

import (
	"fmt"
	"strings"
	"time"
)

// BackupConfig controls where backups go and how often the scheduler runs.
// A zero interval disables periodic backups; manual backups still work.
type BackupConfig struct {
	Dir      string        `koanf:"dir"`
	Interval time.Duration `koanf:"interval"`
}

// String returns a string representation of the backup configuration.
func (c *BackupConfig) String() string {
	var b strings.Builder
	b.WriteString("\n--- Backup ---\n")
	b.WriteString(fmt.Sprintf("  dir: %s\n", c.Dir))
	b.WriteString(fmt.Sprintf("  interval: %s\n", c.Interval))
	return b.String()
}

func (c *BackupConfig) Validate() error {
	if c.Dir == "" {
		return fmt.Errorf("backup dir is not configured")
	}
	if c.Interval < 0 {
		return fmt.Errorf("invalid backup interval: %v", c.Interval)
	}
	return nil
}
