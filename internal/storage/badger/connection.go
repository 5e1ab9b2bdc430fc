package badger

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/enricher/internal/common"
	"github.com/timshannon/badgerhold/v4"
)

// BadgerDB owns the control process's job store. The directory is locked
// exclusively, so workers never open it.
type BadgerDB struct {
	store  *badgerhold.Store
	logger arbor.ILogger
	config *common.BadgerConfig
}

func NewBadgerDB(logger arbor.ILogger, config *common.BadgerConfig) (*BadgerDB, error) {
	if config.ResetOnStartup {
		if err := resetJobStore(config.Path, logger); err != nil {
			logger.Warn().Err(err).Str("path", config.Path).Msg("Job store reset failed, reusing existing data")
		}
	}

	if err := os.MkdirAll(filepath.Dir(config.Path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create job store parent directory: %w", err)
	}

	options := badgerhold.DefaultOptions
	options.Dir = config.Path
	options.ValueDir = config.Path
	options.Logger = nil

	store, err := badgerhold.Open(options)
	if err != nil {
		return nil, fmt.Errorf("failed to open job store at %s: %w", config.Path, err)
	}

	logger.Info().
		Str("path", config.Path).
		Bool("reset", config.ResetOnStartup).
		Msg("Job store opened")

	return &BadgerDB{
		store:  store,
		logger: logger,
		config: config,
	}, nil
}

// resetJobStore drops every persisted job. A missing directory is not an error.
func resetJobStore(path string, logger arbor.ILogger) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	logger.Info().Str("path", path).Msg("Clearing job store (reset_on_startup)")
	return os.RemoveAll(path)
}

func (b *BadgerDB) Store() *badgerhold.Store {
	return b.store
}

func (b *BadgerDB) Close() error {
	if b.store == nil {
		return nil
	}
	err := b.store.Close()
	b.store = nil
	return err
}
