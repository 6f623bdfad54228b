package config

import (
	"fmt"

	"github.com/marmos91/blobxfer/internal/logger"
	"github.com/marmos91/blobxfer/pkg/transfer/store"
	badgerstore "github.com/marmos91/blobxfer/pkg/transfer/store/badger"
	gormstore "github.com/marmos91/blobxfer/pkg/transfer/store/gorm"
	"github.com/marmos91/blobxfer/pkg/transfer/store/memory"
)

// OpenStore creates the transfer store selected by cfg.
func OpenStore(cfg *StoreConfig) (store.Store, error) {
	logger.Debug("Opening transfer store", logger.KeyStoreType, string(cfg.Type))

	switch cfg.Type {
	case StoreTypeMemory:
		return memory.New(), nil
	case StoreTypeSQLite, StoreTypePostgres:
		s, err := gormstore.New(cfg.gormConfig())
		if err != nil {
			return nil, fmt.Errorf("open %s store: %w", cfg.Type, err)
		}
		return s, nil
	case StoreTypeBadger:
		s, err := badgerstore.New(cfg.Badger)
		if err != nil {
			return nil, fmt.Errorf("open badger store: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store type: %q", cfg.Type)
	}
}
