package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the struct tags of cfg and the settings of the selected
// store backend.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed on '%s' (value %v)", fe.Namespace(), fe.Tag(), fe.Value()))
			}
			return errors.New(strings.Join(msgs, "; "))
		}
		return err
	}

	switch cfg.Store.Type {
	case StoreTypeSQLite, StoreTypePostgres:
		if err := cfg.Store.gormConfig().Validate(); err != nil {
			return fmt.Errorf("store: %w", err)
		}
	case StoreTypeBadger:
		if cfg.Store.Badger.Dir == "" && !cfg.Store.Badger.InMemory {
			return errors.New("store: badger dir is required")
		}
	}
	return nil
}
