package gorm

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/blobxfer/pkg/transfer"
	"github.com/marmos91/blobxfer/pkg/transfer/store"
	"github.com/marmos91/blobxfer/pkg/transfer/store/storetest"
)

func newMemoryStore(t *testing.T) store.Store {
	t.Helper()
	s, err := New(&Config{Type: DatabaseTypeSQLite, SQLite: SQLiteConfig{Path: MemoryPath}})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteMemoryConformance(t *testing.T) {
	storetest.RunConformanceSuite(t, newMemoryStore)
}

func TestSQLiteFileConformance(t *testing.T) {
	storetest.RunConformanceSuite(t, func(t *testing.T) store.Store {
		path := filepath.Join(t.TempDir(), "transfers.db")
		s, err := New(&Config{SQLite: SQLiteConfig{Path: path}})
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestSQLiteSurvivesReopen(t *testing.T) {
	ctx := t.Context()
	path := filepath.Join(t.TempDir(), "nested", "transfers.db")

	s, err := New(&Config{SQLite: SQLiteConfig{Path: path}})
	require.NoError(t, err)

	blob, err := store.CreateTransfer(ctx, s, transfer.BlobOptions{
		Source: "/data/in", Destination: "s3://bucket/out", Type: transfer.TypeUpload, EndRange: 299,
	})
	require.NoError(t, err)
	blocks, err := transfer.Decompose(blob, 100)
	require.NoError(t, err)
	blocks[0].State = transfer.StateComplete
	blocks[1].State = transfer.StateFailed
	require.NoError(t, s.CreateBlocks(ctx, blob.ID, blocks))
	require.NoError(t, s.Close())

	s, err = New(&Config{SQLite: SQLiteConfig{Path: path}})
	require.NoError(t, err)
	defer s.Close()

	snap, err := store.LoadBlob(ctx, s, blob.ID)
	require.NoError(t, err)
	assert.Equal(t, transfer.StateFailed, snap.State())
	require.Len(t, snap.Dispatchable(), 2)
	assert.Equal(t, 1, snap.Dispatchable()[0].Index)
	assert.Equal(t, 2, snap.Dispatchable()[1].Index)
}

func TestConfig(t *testing.T) {
	t.Run("sqlite defaults", func(t *testing.T) {
		t.Setenv("XDG_CONFIG_HOME", "/cfg")
		c := &Config{}
		c.ApplyDefaults()
		assert.Equal(t, DatabaseTypeSQLite, c.Type)
		assert.Equal(t, "/cfg/blobxfer/transfers.db", c.SQLite.Path)
		assert.NoError(t, c.Validate())
	})

	t.Run("postgres defaults", func(t *testing.T) {
		c := &Config{Type: DatabaseTypePostgres, Postgres: PostgresConfig{Host: "db", Database: "x", User: "u"}}
		c.ApplyDefaults()
		assert.Equal(t, 5432, c.Postgres.Port)
		assert.Equal(t, "disable", c.Postgres.SSLMode)
		assert.NoError(t, c.Validate())
		assert.Equal(t, "host=db port=5432 user=u password= dbname=x sslmode=disable", c.Postgres.DSN())
	})

	t.Run("postgres requires host", func(t *testing.T) {
		c := &Config{Type: DatabaseTypePostgres}
		c.ApplyDefaults()
		assert.Error(t, c.Validate())
	})

	t.Run("unknown type", func(t *testing.T) {
		_, err := New(&Config{Type: "oracle"})
		assert.ErrorContains(t, err, "unsupported database type")
	})
}
