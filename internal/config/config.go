package config

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/abgdnv/stockroom/internal/store"
	"github.com/abgdnv/stockroom/pkg/config"
	"github.com/abgdnv/stockroom/pkg/config/configloader"
)

// ServiceName is also the prefix of environment overrides, e.g. STOCKROOM_SERVER_PORT.
const ServiceName = "stockroom"

const defaultDataDir = "data"

var _ configloader.Validator = (*Config)(nil)

type Config struct {
	HTTPServer config.HTTPConfig     `koanf:"server"`
	Log        config.LogConfig      `koanf:"log"`
	PProf      config.PProfConfig    `koanf:"pprof"`
	Shutdown   config.ShutdownConfig `koanf:"shutdown"`
	Storage    config.StorageConfig  `koanf:"storage"`
	Backup     config.BackupConfig   `koanf:"backup"`
	Reports    config.ReportsConfig  `koanf:"reports"`
}

// Defaults returns the lowest-priority configuration layer.
func Defaults() map[string]any {
	return map[string]any{
		"server.port":               8080,
		"server.maxHeaderBytes":     1 << 20,
		"server.timeout.read":       5 * time.Second,
		"server.timeout.write":      10 * time.Second,
		"server.timeout.idle":       120 * time.Second,
		"server.timeout.readHeader": 2 * time.Second,
		"log.level":                 "info",
		"pprof.enabled":             false,
		"pprof.addr":                "localhost:6060",
		"shutdown.timeout":          10 * time.Second,
		"storage.driver":            config.StorageDriverFile,
		"storage.dir":               defaultDataDir,
		"storage.loadFallback":      true,
		"backup.dir":                filepath.Join(defaultDataDir, "backups"),
		"backup.interval":           time.Duration(0),
		"reports.lowStockThreshold": store.DefaultLowStockThreshold,
		"reports.window":            30 * 24 * time.Hour,
		"reports.limit":             5,
	}
}

// Load reads the configuration from defaults, configFile, .env and STOCKROOM_ variables.
func Load(configFile string) (*Config, error) {
	return configloader.Load[*Config](ServiceName,
		configloader.WithConfigFile(configFile),
		configloader.WithDefaults(Defaults()))
}

func (c *Config) String() string {
	var b strings.Builder
	b.WriteString(c.HTTPServer.String())
	b.WriteString(c.Storage.String())
	b.WriteString(c.Backup.String())
	b.WriteString(c.Reports.String())
	b.WriteString(c.Log.String())
	b.WriteString(c.PProf.String())
	b.WriteString(c.Shutdown.String())
	return b.String()
}

// Validate checks if the configuration values are valid
func (c *Config) Validate() error {
	validators := []configloader.Validator{
		&c.HTTPServer,
		&c.Log,
		&c.PProf,
		&c.Shutdown,
		&c.Storage,
		&c.Backup,
		&c.Reports,
	}
	for _, v := range validators {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	return nil
}
