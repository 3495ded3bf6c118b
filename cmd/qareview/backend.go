package main

import (
	"fmt"
	"path/filepath"

	"github.com/kalambet/qareview/internal/api"
	"github.com/kalambet/qareview/internal/config"
	"github.com/kalambet/qareview/internal/dataset"
	"github.com/kalambet/qareview/internal/profiledir"
	"github.com/kalambet/qareview/internal/review"
	"github.com/kalambet/qareview/internal/storage"
)

// backend is a profile store the commands can both write and list.
type backend interface {
	review.Store
	api.ProfileReader
	Close() error
}

func datasetSource(cfg config.Config) (dataset.Source, error) {
	src := dataset.Source{
		Dir:    cfg.Dataset.Dir,
		Mode:   dataset.Mode(cfg.Dataset.Mode),
		Subset: cfg.Dataset.Subset,
	}
	if err := src.Validate(); err != nil {
		return dataset.Source{}, err
	}
	return src, nil
}

// openBackend opens the configured store for the dataset partition, so that
// profiles for different modes and subsets never mix.
func openBackend(cfg config.Config, src dataset.Source) (backend, error) {
	part := filepath.FromSlash(src.Partition())
	switch cfg.Storage.Backend {
	case config.BackendSQLite:
		s, err := storage.Open(filepath.Join(cfg.Storage.DataDir, part), storage.WithPublishing(cfg.Publish.Enabled))
		if err != nil {
			return nil, fmt.Errorf("opening storage: %w", err)
		}
		return s, nil
	case config.BackendFiles:
		s, err := profiledir.Open(filepath.Join(cfg.Storage.ProfilesPath(), part))
		if err != nil {
			return nil, fmt.Errorf("opening profile directory: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

func reviewOptions(cfg config.Config) review.Options {
	return review.Options{
		Shuffle:      cfg.Review.Shuffle,
		QuestionKeys: cfg.Review.LegacyQuestionKeys,
		Title:        cfg.Review.DatasetTitle,
	}
}
