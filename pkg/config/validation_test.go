package config

import (
	"strings"
	"testing"
)

func validConfig(t *testing.T) *Config {
	t.Helper()
	cfg := GetDefaultConfig()
	cfg.Store.Type = StoreTypeMemory
	return cfg
}

func TestValidate_ValidConfig(t *testing.T) {
	if err := Validate(validConfig(t)); err != nil {
		t.Errorf("Expected valid config to pass, got: %v", err)
	}
}

func TestValidate_InvalidLogLevel(t *testing.T) {
	cfg := validConfig(t)
	cfg.Logging.Level = "VERBOSE"

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for invalid log level")
	}
	if !strings.Contains(err.Error(), "oneof") {
		t.Errorf("Expected 'oneof' validation error, got: %v", err)
	}
}

func TestValidate_InvalidLogFormat(t *testing.T) {
	cfg := validConfig(t)
	cfg.Logging.Format = "xml"

	if err := Validate(cfg); err == nil {
		t.Fatal("Expected validation error for invalid log format")
	}
}

func TestValidate_InvalidStoreType(t *testing.T) {
	cfg := validConfig(t)
	cfg.Store.Type = "etcd"

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for unknown store type")
	}
	if !strings.Contains(err.Error(), "Store.Type") {
		t.Errorf("Expected error to name Store.Type, got: %v", err)
	}
}

func TestValidate_Controller(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		tag    string
	}{
		{"zero workers", func(c *Config) { c.Controller.Workers = 0 }, "min"},
		{"too many workers", func(c *Config) { c.Controller.Workers = 5000 }, "max"},
		{"zero queue", func(c *Config) { c.Controller.QueueSize = 0 }, "min"},
		{"zero chunk", func(c *Config) { c.Controller.ChunkSize = 0 }, "min"},
		{"zero block timeout", func(c *Config) { c.Controller.BlockTimeout = 0 }, "gt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.mutate(cfg)
			err := Validate(cfg)
			if err == nil {
				t.Fatal("Expected validation error")
			}
			if !strings.Contains(err.Error(), "'"+tt.tag+"'") {
				t.Errorf("Expected '%s' validation error, got: %v", tt.tag, err)
			}
		})
	}
}

func TestValidate_MetricsPort(t *testing.T) {
	cfg := validConfig(t)
	cfg.Metrics.Enabled = true
	cfg.Metrics.Port = 70000

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for port out of range")
	}
	if !strings.Contains(err.Error(), "max") {
		t.Errorf("Expected 'max' validation error, got: %v", err)
	}
}

func TestValidate_StoreBackends(t *testing.T) {
	t.Run("postgres requires host", func(t *testing.T) {
		cfg := validConfig(t)
		cfg.Store.Type = StoreTypePostgres
		cfg.Store.Postgres.Database = "blobxfer"
		cfg.Store.Postgres.User = "blobxfer"

		err := Validate(cfg)
		if err == nil {
			t.Fatal("Expected error for missing postgres host")
		}
		if !strings.Contains(err.Error(), "host") {
			t.Errorf("Expected error to mention host, got: %v", err)
		}
	})

	t.Run("badger requires dir", func(t *testing.T) {
		cfg := validConfig(t)
		cfg.Store.Type = StoreTypeBadger

		if err := Validate(cfg); err == nil {
			t.Fatal("Expected error for missing badger dir")
		}

		cfg.Store.Badger.InMemory = true
		if err := Validate(cfg); err != nil {
			t.Errorf("In-memory badger needs no dir, got: %v", err)
		}
	})
}

func TestValidate_Telemetry(t *testing.T) {
	cfg := validConfig(t)
	cfg.Telemetry.SampleRate = 1.5
	if err := Validate(cfg); err == nil {
		t.Error("Expected validation error for sample_rate above 1")
	}

	cfg = validConfig(t)
	cfg.Telemetry.Profiling.ProfileTypes = []string{"cpu", "heap"}
	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for unknown profile type")
	}
	if !strings.Contains(err.Error(), "ProfileTypes") {
		t.Errorf("Expected error to name ProfileTypes, got: %v", err)
	}

	cfg = validConfig(t)
	cfg.Telemetry.Enabled = true
	cfg.Telemetry.Endpoint = ""
	if err := Validate(cfg); err == nil {
		t.Error("Expected validation error for enabled telemetry without endpoint")
	}
}
