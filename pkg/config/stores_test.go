package config

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/marmos91/blobxfer/pkg/transfer"
	"github.com/marmos91/blobxfer/pkg/transfer/store"
)

func TestOpenStore(t *testing.T) {
	tmpDir := t.TempDir()

	tests := []struct {
		name string
		cfg  StoreConfig
	}{
		{"memory", StoreConfig{Type: StoreTypeMemory}},
		{"sqlite", func() StoreConfig {
			c := StoreConfig{Type: StoreTypeSQLite}
			c.SQLite.Path = filepath.Join(tmpDir, "transfers.db")
			return c
		}()},
		{"badger", func() StoreConfig {
			c := StoreConfig{Type: StoreTypeBadger}
			c.Badger.Dir = filepath.Join(tmpDir, "badger")
			return c
		}()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := OpenStore(&tt.cfg)
			if err != nil {
				t.Fatalf("OpenStore failed: %v", err)
			}
			defer func() { _ = s.Close() }()

			ctx := context.Background()
			blob, err := store.CreateTransfer(ctx, s, transfer.BlobOptions{
				Source:      "/tmp/src",
				Destination: "s3://bucket/key",
				Type:        transfer.TypeUpload,
				EndRange:    99,
			})
			if err != nil {
				t.Fatalf("CreateTransfer failed: %v", err)
			}
			got, err := s.GetBlob(ctx, blob.ID)
			if err != nil {
				t.Fatalf("GetBlob failed: %v", err)
			}
			if got.Destination != "s3://bucket/key" {
				t.Errorf("Unexpected destination %q", got.Destination)
			}
		})
	}
}

func TestOpenStore_UnknownType(t *testing.T) {
	if _, err := OpenStore(&StoreConfig{Type: "etcd"}); err == nil {
		t.Fatal("Expected error for unknown store type")
	}
}

func TestInitializeMetrics_Disabled(t *testing.T) {
	result := InitializeMetrics(GetDefaultConfig())
	if result.Transfer != nil || result.S3 != nil || result.Server != nil {
		t.Errorf("Expected no metrics while disabled, got %+v", result)
	}
}
