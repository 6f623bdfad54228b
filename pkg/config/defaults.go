package config

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/marmos91/blobxfer/internal/bytesize"
	"github.com/marmos91/blobxfer/pkg/controller"
	gormstore "github.com/marmos91/blobxfer/pkg/transfer/store/gorm"
)

// ApplyDefaults sets default values for any unspecified configuration fields.
// Zero values are replaced; explicit values are preserved.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyStoreDefaults(&cfg.Store)
	applyControllerDefaults(&cfg.Controller)
	cfg.S3.ApplyDefaults()
	applyMetricsDefaults(&cfg.Metrics)
	applyTelemetryDefaults(&cfg.Telemetry)
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	// Command output goes to stdout, so logs default to stderr.
	if cfg.Output == "" {
		cfg.Output = "stderr"
	}
}

func applyStoreDefaults(cfg *StoreConfig) {
	if cfg.Type == "" {
		cfg.Type = StoreTypeSQLite
	}
	cfg.Type = StoreType(strings.ToLower(string(cfg.Type)))

	switch cfg.Type {
	case StoreTypeSQLite, StoreTypePostgres:
		db := cfg.gormConfig()
		db.ApplyDefaults()
		cfg.SQLite, cfg.Postgres = db.SQLite, db.Postgres
	case StoreTypeBadger:
		if cfg.Badger.Dir == "" && !cfg.Badger.InMemory {
			cfg.Badger.Dir = filepath.Join(getConfigDir(), "badger")
		}
		if cfg.Badger.SyncWrites == nil {
			sync := true
			cfg.Badger.SyncWrites = &sync
		}
	}
}

func applyControllerDefaults(cfg *ControllerConfig) {
	if cfg.Workers == 0 {
		cfg.Workers = controller.DefaultWorkers
	}
	if cfg.QueueSize == 0 {
		cfg.QueueSize = controller.DefaultQueueSize
	}
	if cfg.ChunkSize == 0 {
		cfg.ChunkSize = bytesize.ByteSize(controller.DefaultChunkSize)
	}
	if cfg.BlockTimeout == 0 {
		cfg.BlockTimeout = controller.DefaultBlockTimeout
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
}

func applyMetricsDefaults(cfg *MetricsConfig) {
	if cfg.Enabled && cfg.Port == 0 {
		cfg.Port = 9090
	}
}

func applyTelemetryDefaults(cfg *TelemetryConfig) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "localhost:4317"
		cfg.Insecure = true
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 1.0
	}

	if cfg.Profiling.Endpoint == "" {
		cfg.Profiling.Endpoint = "http://localhost:4040"
	}
	if len(cfg.Profiling.ProfileTypes) == 0 {
		cfg.Profiling.ProfileTypes = []string{"cpu", "alloc_space", "inuse_space", "goroutines"}
	}
}

// GetDefaultConfig returns a Config with all default values applied.
func GetDefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

func (c *StoreConfig) gormConfig() *gormstore.Config {
	return &gormstore.Config{
		Type:     gormstore.DatabaseType(c.Type),
		SQLite:   c.SQLite,
		Postgres: c.Postgres,
	}
}
