package storage

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/absmach/cohort/pkg/fl"
	"github.com/absmach/cohort/pkg/storage/badger"
)

type Config struct {
	// Type is one of memory, file or badger.
	Type string `toml:"type" env:"TYPE"`

	BadgerPath string `toml:"badger_path" env:"BADGER_PATH"`

	FilePath string `toml:"file_path" env:"FILE_PATH"`
}

func DefaultConfig() Config {
	return Config{
		Type:       "memory",
		BadgerPath: "./data/badger",
		FilePath:   "./data/history",
	}
}

type Backend struct {
	History History
	// Closer releases the underlying database. It is nil for the memory and
	// file backends.
	Closer io.Closer
}

func NewBackend(cfg Config) (*Backend, error) {
	switch cfg.Type {
	case "badger":
		db, err := badger.NewDatabase(cfg.BadgerPath)
		if err != nil {
			return nil, err
		}

		return &Backend{History: badger.NewHistory(db), Closer: db}, nil
	case "file":
		ps, err := fl.NewPersistentStorage(filepath.Join(cfg.FilePath, "rounds"), filepath.Join(cfg.FilePath, "models"))
		if err != nil {
			return nil, err
		}

		return &Backend{History: ps}, nil
	case "memory", "":
		return &Backend{History: NewInMemoryHistory()}, nil
	default:
		return nil, fmt.Errorf("unsupported history type: %s", cfg.Type)
	}
}
