package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type validator interface {
	Validate() error
}

func Test_Blocks_Validate(t *testing.T) {
	testCases := []struct {
		name    string
		block   validator
		wantErr bool
	}{
		{name: "log level empty", block: &LogConfig{}},
		{name: "log level unknown", block: &LogConfig{Level: "trace"}, wantErr: true},
		{name: "pprof disabled ignores addr", block: &PProfConfig{Addr: "nonsense"}},
		{name: "pprof enabled", block: &PProfConfig{Enabled: true, Addr: "localhost:6060"}},
		{name: "pprof enabled without port", block: &PProfConfig{Enabled: true, Addr: "localhost"}, wantErr: true},
		{name: "shutdown zero", block: &ShutdownConfig{}, wantErr: true},
		{name: "shutdown set", block: &ShutdownConfig{Timeout: time.Second}},
		{name: "storage file", block: &StorageConfig{Driver: StorageDriverFile, Dir: "data"}},
		{name: "storage badger without dir", block: &StorageConfig{Driver: StorageDriverBadger}, wantErr: true},
		{name: "storage unknown driver", block: &StorageConfig{Driver: "sqlite", Dir: "data"}, wantErr: true},
		{name: "backup disabled", block: &BackupConfig{Dir: "backups"}},
		{name: "backup without dir", block: &BackupConfig{Interval: time.Hour}, wantErr: true},
		{name: "backup negative interval", block: &BackupConfig{Dir: "backups", Interval: -time.Minute}, wantErr: true},
		{name: "reports", block: &ReportsConfig{LowStockThreshold: 0, Window: time.Hour, Limit: 1}},
		{name: "reports zero window", block: &ReportsConfig{Limit: 1}, wantErr: true},
		{name: "reports negative threshold", block: &ReportsConfig{LowStockThreshold: -1, Window: time.Hour, Limit: 1}, wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// when
			err := tc.block.Validate()

			// then
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func Test_HTTPConfig_Validate(t *testing.T) {
	// given
	var cfg HTTPConfig
	cfg.Port = 8080
	cfg.Timeout.Read = time.Second
	cfg.Timeout.Write = time.Second
	cfg.Timeout.Idle = time.Second
	cfg.Timeout.ReadHeader = time.Second

	// when
	okErr := cfg.Validate()
	cfg.Timeout.Idle = 0
	idleErr := cfg.Validate()

	// then
	assert.NoError(t, okErr)
	assert.ErrorContains(t, idleErr, "idle timeout")
}
