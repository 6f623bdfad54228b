package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/marmos91/blobxfer/internal/bytesize"
)

// yamlSafePath converts a filesystem path to a YAML-safe representation.
// On Windows, backslashes in double-quoted YAML strings are interpreted as
// escape sequences (e.g. \U -> Unicode escape), causing parse errors.
func yamlSafePath(p string) string {
	return filepath.ToSlash(p)
}

func TestLoad_DefaultConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
logging:
  level: "debug"

store:
  type: sqlite
  sqlite:
    path: "` + yamlSafePath(tmpDir) + `/transfers.db"

controller:
  workers: 8
  chunk_size: 16MiB
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Logging.Level != "DEBUG" {
		t.Errorf("Expected level normalized to 'DEBUG', got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("Expected default format 'text', got %q", cfg.Logging.Format)
	}
	if cfg.Controller.Workers != 8 {
		t.Errorf("Expected workers 8, got %d", cfg.Controller.Workers)
	}
	if cfg.Controller.ChunkSize != 16*bytesize.MiB {
		t.Errorf("Expected chunk_size 16MiB, got %v", cfg.Controller.ChunkSize)
	}
	if cfg.Controller.ShutdownTimeout != 30*time.Second {
		t.Errorf("Expected default shutdown_timeout 30s, got %v", cfg.Controller.ShutdownTimeout)
	}
	if cfg.Store.SQLite.Path != filepath.ToSlash(tmpDir)+"/transfers.db" {
		t.Errorf("Unexpected sqlite path %q", cfg.Store.SQLite.Path)
	}
}

func TestLoad_NoConfigFile(t *testing.T) {
	// A missing file yields the defaults so the CLI works without setup.
	tmpDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", tmpDir)

	cfg, err := Load(filepath.Join(tmpDir, "nonexistent.yaml"))
	if err != nil {
		t.Fatalf("Expected no error when loading default config, got: %v", err)
	}
	if cfg == nil {
		t.Fatal("Expected default config to be returned")
	}

	if cfg.Store.Type != StoreTypeSQLite {
		t.Errorf("Expected default store type sqlite, got %q", cfg.Store.Type)
	}
	want := filepath.Join(tmpDir, "blobxfer", "transfers.db")
	if cfg.Store.SQLite.Path != want {
		t.Errorf("Expected sqlite path %q, got %q", want, cfg.Store.SQLite.Path)
	}
	if cfg.Controller.Workers != 4 {
		t.Errorf("Expected default workers 4, got %d", cfg.Controller.Workers)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
store:
  type: memory
controller:
  workers: 2
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	t.Setenv("BLOBXFER_CONTROLLER_WORKERS", "12")
	t.Setenv("BLOBXFER_CONTROLLER_BLOCK_TIMEOUT", "90s")
	t.Setenv("BLOBXFER_CONTROLLER_CHUNK_SIZE", "1MiB")
	t.Setenv("BLOBXFER_S3_REGION", "eu-west-1")

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Controller.Workers != 12 {
		t.Errorf("Expected env to override workers to 12, got %d", cfg.Controller.Workers)
	}
	if cfg.Controller.BlockTimeout != 90*time.Second {
		t.Errorf("Expected block_timeout 90s from env, got %v", cfg.Controller.BlockTimeout)
	}
	if cfg.Controller.ChunkSize != bytesize.MiB {
		t.Errorf("Expected chunk_size 1MiB from env, got %v", cfg.Controller.ChunkSize)
	}
	if cfg.S3.Region != "eu-west-1" {
		t.Errorf("Expected region from env for a key the file omits, got %q", cfg.S3.Region)
	}
	if cfg.Store.Type != StoreTypeMemory {
		t.Errorf("Expected store type memory from file, got %q", cfg.Store.Type)
	}
}

func TestLoad_InvalidConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
store:
  type: cassandra
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	if _, err := Load(configPath); err == nil {
		t.Fatal("Expected validation error for unknown store type")
	}
}

func TestLoad_MalformedFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	if err := os.WriteFile(configPath, []byte("logging: [unclosed"), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	if _, err := Load(configPath); err == nil {
		t.Fatal("Expected error for malformed YAML")
	}
}

func TestSaveConfig_RoundTrip(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "nested", "config.yaml")

	cfg := GetDefaultConfig()
	cfg.Store.Type = StoreTypeBadger
	cfg.Store.Badger.Dir = filepath.Join(tmpDir, "badger")
	cfg.Controller.ChunkSize = 32 * bytesize.MiB
	cfg.Controller.BlockTimeout = 2 * time.Minute

	if err := SaveConfig(cfg, configPath); err != nil {
		t.Fatalf("SaveConfig failed: %v", err)
	}

	info, err := os.Stat(configPath)
	if err != nil {
		t.Fatalf("Config file not written: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("Expected mode 0600, got %v", info.Mode().Perm())
	}

	loaded, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to reload saved config: %v", err)
	}
	if loaded.Store.Type != StoreTypeBadger {
		t.Errorf("Expected store type badger, got %q", loaded.Store.Type)
	}
	if loaded.Store.Badger.Dir != cfg.Store.Badger.Dir {
		t.Errorf("Expected badger dir %q, got %q", cfg.Store.Badger.Dir, loaded.Store.Badger.Dir)
	}
	if loaded.Controller.ChunkSize != 32*bytesize.MiB {
		t.Errorf("Expected chunk_size 32MiB, got %v", loaded.Controller.ChunkSize)
	}
	if loaded.Controller.BlockTimeout != 2*time.Minute {
		t.Errorf("Expected block_timeout 2m, got %v", loaded.Controller.BlockTimeout)
	}
}

func TestGetDefaultConfigPath(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", tmpDir)

	want := filepath.Join(tmpDir, "blobxfer", "config.yaml")
	if got := GetDefaultConfigPath(); got != want {
		t.Errorf("Expected %q, got %q", want, got)
	}
	if got := GetConfigDir(); got != filepath.Join(tmpDir, "blobxfer") {
		t.Errorf("Unexpected config dir %q", got)
	}
}

func TestControllerConfig_ToController(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Controller.Workers = 7
	cfg.Controller.ChunkSize = 2 * bytesize.MiB

	cc := cfg.Controller.ToController()
	if cc.Workers != 7 {
		t.Errorf("Expected 7 workers, got %d", cc.Workers)
	}
	if cc.ChunkSize != 2*1024*1024 {
		t.Errorf("Expected chunk size 2MiB, got %d", cc.ChunkSize)
	}
	if cc.BlockTimeout != cfg.Controller.BlockTimeout {
		t.Errorf("Expected block timeout %v, got %v", cfg.Controller.BlockTimeout, cc.BlockTimeout)
	}
}
