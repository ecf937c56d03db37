package config

import (
	"fmt"
	"strings"
	"time"
)

// ReportsConfig holds the defaults used by report endpoints when the caller omits them.
type ReportsConfig struct {
	LowStockThreshold int           `koanf:"lowStockThreshold"`
	Window            time.Duration `koanf:"window"`
	Limit             int           `koanf:"limit"`
}

// String returns a string representation of the reports configuration.
func (c *ReportsConfig) String() string {
	var b strings.Builder
	b.WriteString("\n--- Reports ---\n")
	b.WriteString(fmt.Sprintf("  lowStockThreshold: %d\n", c.LowStockThreshold))
	b.WriteString(fmt.Sprintf("  window: %s\n", c.Window))
	b.WriteString(fmt.Sprintf("  limit: %d\n", c.Limit))
	return b.String()
}

func (c *ReportsConfig) Validate() error {
	if c.LowStockThreshold < 0 {
		return fmt.Errorf("invalid low stock threshold: %d", c.LowStockThreshold)
	}
	if c.Window <= 0 {
		return fmt.Errorf("invalid report window: %v", c.Window)
	}
	if c.Limit <= 0 {
		return fmt.Errorf("invalid report limit: %d", c.Limit)
	}
	return nil
}
