// Package gorm persists transfer records in a relational database through
// GORM. SQLite is the default backend; PostgreSQL keeps the catalog on a
// database server. A catalog is driven by one controller process at a time.
package gorm

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	gormdb "gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/marmos91/blobxfer/internal/logger"
	"github.com/marmos91/blobxfer/pkg/transfer"
	"github.com/marmos91/blobxfer/pkg/transfer/store"
)

// DatabaseType defines the supported database backends.
type DatabaseType string

const (
	DatabaseTypeSQLite   DatabaseType = "sqlite"
	DatabaseTypePostgres DatabaseType = "postgres"
)

// MemoryPath selects a private in-memory SQLite database.
const MemoryPath = ":memory:"

// SQLiteConfig contains SQLite-specific configuration.
type SQLiteConfig struct {
	// Path is the database file, or MemoryPath.
	// Default: $XDG_CONFIG_HOME/blobxfer/transfers.db
	Path string `mapstructure:"path" yaml:"path"`
}

// PostgresConfig contains PostgreSQL-specific configuration.
type PostgresConfig struct {
	Host         string `mapstructure:"host" yaml:"host"`
	Port         int    `mapstructure:"port" yaml:"port"`
	Database     string `mapstructure:"database" yaml:"database"`
	User         string `mapstructure:"user" yaml:"user"`
	Password     string `mapstructure:"password" yaml:"password,omitempty"`
	SSLMode      string `mapstructure:"sslmode" yaml:"sslmode"`
	MaxOpenConns int    `mapstructure:"max_open_conns" yaml:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns" yaml:"max_idle_conns"`
}

// DSN returns the PostgreSQL connection string.
func (c *PostgresConfig) DSN() string {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s",
		c.Host, c.Port, c.User, c.Password, c.Database)
	if c.SSLMode != "" {
		dsn += " sslmode=" + c.SSLMode
	}
	return dsn
}

// Config selects and configures the database backend.
type Config struct {
	Type     DatabaseType   `mapstructure:"type" yaml:"type"`
	SQLite   SQLiteConfig   `mapstructure:"sqlite" yaml:"sqlite"`
	Postgres PostgresConfig `mapstructure:"postgres" yaml:"postgres"`
}

// ApplyDefaults fills in missing configuration with default values.
func (c *Config) ApplyDefaults() {
	if c.Type == "" {
		c.Type = DatabaseTypeSQLite
	}

	if c.Type == DatabaseTypeSQLite && c.SQLite.Path == "" {
		configDir := os.Getenv("XDG_CONFIG_HOME")
		if configDir == "" {
			homeDir, _ := os.UserHomeDir()
			configDir = filepath.Join(homeDir, ".config")
		}
		c.SQLite.Path = filepath.Join(configDir, "blobxfer", "transfers.db")
	}

	if c.Type == DatabaseTypePostgres {
		if c.Postgres.Port == 0 {
			c.Postgres.Port = 5432
		}
		if c.Postgres.SSLMode == "" {
			c.Postgres.SSLMode = "disable"
		}
		if c.Postgres.MaxOpenConns == 0 {
			c.Postgres.MaxOpenConns = 16
		}
		if c.Postgres.MaxIdleConns == 0 {
			c.Postgres.MaxIdleConns = 4
		}
	}
}

// Validate checks if the configuration is usable.
func (c *Config) Validate() error {
	switch c.Type {
	case DatabaseTypeSQLite:
		if c.SQLite.Path == "" {
			return fmt.Errorf("sqlite path is required")
		}
	case DatabaseTypePostgres:
		if c.Postgres.Host == "" {
			return fmt.Errorf("postgres host is required")
		}
		if c.Postgres.Database == "" {
			return fmt.Errorf("postgres database is required")
		}
		if c.Postgres.User == "" {
			return fmt.Errorf("postgres user is required")
		}
	default:
		return fmt.Errorf("unsupported database type: %s", c.Type)
	}
	return nil
}

// Store implements store.Store on top of GORM.
type Store struct {
	db     *gormdb.DB
	config *Config
}

var _ store.Store = (*Store)(nil)

// New opens the database described by config and migrates the schema.
func New(config *Config) (*Store, error) {
	if config == nil {
		config = &Config{}
	}
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid database configuration: %w", err)
	}

	var dialector gormdb.Dialector
	switch config.Type {
	case DatabaseTypeSQLite:
		dsn := config.SQLite.Path
		if dsn != MemoryPath {
			if err := os.MkdirAll(filepath.Dir(dsn), 0755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
			dsn += "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
		}
		dialector = sqlite.Open(dsn)
	case DatabaseTypePostgres:
		dialector = postgres.Open(config.Postgres.DSN())
	}

	db, err := gormdb.Open(dialector, &gormdb.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying database: %w", err)
	}
	switch config.Type {
	case DatabaseTypeSQLite:
		// One writer at a time; an in-memory database also exists only on
		// the connection that created it.
		sqlDB.SetMaxOpenConns(1)
	case DatabaseTypePostgres:
		sqlDB.SetMaxOpenConns(config.Postgres.MaxOpenConns)
		sqlDB.SetMaxIdleConns(config.Postgres.MaxIdleConns)
	}

	if err := db.AutoMigrate(allModels()...); err != nil {
		return nil, fmt.Errorf("failed to run database migration: %w", err)
	}

	logger.Debug("Transfer store opened", logger.KeyStoreType, string(config.Type))
	return &Store{db: db, config: config}, nil
}

// DB returns the underlying GORM connection.
func (s *Store) DB() *gormdb.DB {
	return s.db
}

func (s *Store) CreateBlob(ctx context.Context, blob *transfer.BlobTransfer) error {
	rec := fromBlob(blob)
	return s.db.WithContext(ctx).Transaction(func(tx *gormdb.DB) error {
		if blob.ParentID != "" {
			var batch BatchRecord
			if err := tx.Select("id").First(&batch, "id = ?", blob.ParentID).Error; err != nil {
				return fmt.Errorf("parent batch %s: %w", blob.ParentID, convertNotFoundError(err))
			}
		}
		if err := tx.Create(rec).Error; err != nil {
			return convertCreateError(err)
		}
		return nil
	})
}

func (s *Store) GetBlob(ctx context.Context, id string) (*transfer.BlobTransfer, error) {
	var rec BlobRecord
	if err := s.db.WithContext(ctx).First(&rec, "id = ?", id).Error; err != nil {
		return nil, convertNotFoundError(err)
	}
	return rec.toBlob(), nil
}

func (s *Store) ListBlobs(ctx context.Context) ([]*transfer.BlobTransfer, error) {
	return s.listBlobs(s.db.WithContext(ctx))
}

func (s *Store) ListBlobsByParent(ctx context.Context, parentID string) ([]*transfer.BlobTransfer, error) {
	return s.listBlobs(s.db.WithContext(ctx).Where("parent_id = ?", parentID))
}

func (s *Store) listBlobs(q *gormdb.DB) ([]*transfer.BlobTransfer, error) {
	var recs []BlobRecord
	if err := q.Order("created_at, id").Find(&recs).Error; err != nil {
		return nil, err
	}
	out := make([]*transfer.BlobTransfer, 0, len(recs))
	for i := range recs {
		out = append(out, recs[i].toBlob())
	}
	return out, nil
}

func (s *Store) UpdateBlobState(ctx context.Context, id string, state transfer.State) error {
	return s.updateBlob(ctx, id, map[string]any{"raw_state": state.Code()})
}

func (s *Store) UpdateBlobSession(ctx context.Context, id string, sessionID string) error {
	return s.updateBlob(ctx, id, map[string]any{"session_id": sessionID})
}

func (s *Store) updateBlob(ctx context.Context, id string, fields map[string]any) error {
	fields["updated_at"] = time.Now().UTC()
	result := s.db.WithContext(ctx).Model(&BlobRecord{}).Where("id = ?", id).Updates(fields)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteBlob(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gormdb.DB) error {
		return deleteBlobs(tx, []string{id}, true)
	})
}

// deleteBlobs removes blobs and their blocks. With strict set, a missing blob
// is reported as store.ErrNotFound.
func deleteBlobs(tx *gormdb.DB, ids []string, strict bool) error {
	if len(ids) == 0 {
		return nil
	}
	if err := tx.Where("blob_id IN ?", ids).Delete(&BlockRecord{}).Error; err != nil {
		return err
	}
	result := tx.Where("id IN ?", ids).Delete(&BlobRecord{})
	if result.Error != nil {
		return result.Error
	}
	if strict && result.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// CreateBlocks relies on the unique (blob_id, block_index) index to stop two
// processes from decomposing the same blob concurrently.
func (s *Store) CreateBlocks(ctx context.Context, blobID string, blocks []*transfer.BlockTransfer) error {
	recs := make([]*BlockRecord, 0, len(blocks))
	for _, b := range blocks {
		recs = append(recs, fromBlock(b))
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gormdb.DB) error {
		var blob BlobRecord
		if err := tx.First(&blob, "id = ?", blobID).Error; err != nil {
			return fmt.Errorf("blob %s: %w", blobID, convertNotFoundError(err))
		}
		var count int64
		if err := tx.Model(&BlockRecord{}).Where("blob_id = ?", blobID).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return fmt.Errorf("blob %s is already decomposed: %w", blobID, store.ErrDuplicate)
		}
		if err := transfer.ValidateBlocks(blob.toBlob(), blocks); err != nil {
			return err
		}
		if err := tx.Create(&recs).Error; err != nil {
			return convertCreateError(err)
		}
		return nil
	})
}

func blobExists(tx *gormdb.DB, id string) error {
	var count int64
	if err := tx.Model(&BlobRecord{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) GetBlock(ctx context.Context, id string) (*transfer.BlockTransfer, error) {
	var rec BlockRecord
	if err := s.db.WithContext(ctx).First(&rec, "id = ?", id).Error; err != nil {
		return nil, convertNotFoundError(err)
	}
	return rec.toBlock(), nil
}

func (s *Store) ListBlocks(ctx context.Context, blobID string) ([]*transfer.BlockTransfer, error) {
	db := s.db.WithContext(ctx)
	if err := blobExists(db, blobID); err != nil {
		return nil, err
	}

	var recs []BlockRecord
	if err := db.Where("blob_id = ?", blobID).Order("block_index").Find(&recs).Error; err != nil {
		return nil, err
	}
	out := make([]*transfer.BlockTransfer, 0, len(recs))
	for i := range recs {
		out = append(out, recs[i].toBlock())
	}
	return out, nil
}

// TransitionBlockState is a single conditional UPDATE, so concurrent callers
// racing on the same block see exactly one success.
func (s *Store) TransitionBlockState(ctx context.Context, id string, to transfer.State, from ...transfer.State) (bool, error) {
	db := s.db.WithContext(ctx)

	if len(from) > 0 {
		codes := make([]int, len(from))
		for i, st := range from {
			codes[i] = st.Code()
		}
		result := db.Model(&BlockRecord{}).
			Where("id = ? AND state IN ?", id, codes).
			Update("state", to.Code())
		if result.Error != nil {
			return false, result.Error
		}
		if result.RowsAffected > 0 {
			return true, nil
		}
	}

	var count int64
	if err := db.Model(&BlockRecord{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return false, err
	}
	if count == 0 {
		return false, store.ErrNotFound
	}
	return false, nil
}

func (s *Store) CreateBatch(ctx context.Context, batch *transfer.MultiBlobTransfer) error {
	if err := s.db.WithContext(ctx).Create(fromBatch(batch)).Error; err != nil {
		return convertCreateError(err)
	}
	return nil
}

func (s *Store) GetBatch(ctx context.Context, id string) (*transfer.MultiBlobTransfer, error) {
	db := s.db.WithContext(ctx)
	var rec BatchRecord
	if err := db.First(&rec, "id = ?", id).Error; err != nil {
		return nil, convertNotFoundError(err)
	}
	return s.withChildren(db, &rec)
}

func (s *Store) ListBatches(ctx context.Context) ([]*transfer.MultiBlobTransfer, error) {
	db := s.db.WithContext(ctx)
	var recs []BatchRecord
	if err := db.Order("created_at, id").Find(&recs).Error; err != nil {
		return nil, err
	}
	out := make([]*transfer.MultiBlobTransfer, 0, len(recs))
	for i := range recs {
		batch, err := s.withChildren(db, &recs[i])
		if err != nil {
			return nil, err
		}
		out = append(out, batch)
	}
	return out, nil
}

func (s *Store) withChildren(db *gormdb.DB, rec *BatchRecord) (*transfer.MultiBlobTransfer, error) {
	batch := rec.toBatch()
	batch.BlobIDs = []string{}
	if err := db.Model(&BlobRecord{}).
		Where("parent_id = ?", rec.ID).
		Order("created_at, id").
		Pluck("id", &batch.BlobIDs).Error; err != nil {
		return nil, err
	}
	return batch, nil
}

func (s *Store) UpdateBatchState(ctx context.Context, id string, state transfer.State) error {
	result := s.db.WithContext(ctx).Model(&BatchRecord{}).Where("id = ?", id).Update("raw_state", state.Code())
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteBatch(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gormdb.DB) error {
		var children []string
		if err := tx.Model(&BlobRecord{}).Where("parent_id = ?", id).Pluck("id", &children).Error; err != nil {
			return err
		}
		if err := deleteBlobs(tx, children, false); err != nil {
			return err
		}
		result := tx.Where("id = ?", id).Delete(&BatchRecord{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return store.ErrNotFound
		}
		return nil
	})
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// isUniqueConstraintError checks if the error is a unique constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gormdb.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value violates unique constraint")
}

func convertCreateError(err error) error {
	if isUniqueConstraintError(err) {
		return store.ErrDuplicate
	}
	return err
}

// convertNotFoundError maps gorm.ErrRecordNotFound to store.ErrNotFound.
func convertNotFoundError(err error) error {
	if errors.Is(err, gormdb.ErrRecordNotFound) {
		return store.ErrNotFound
	}
	return err
}
