// Package dataset loads generated (context, question, answer) data for review.
package dataset

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/kalambet/qareview/internal/review"
)

// Mode selects which generated file a deployment reviews.
type Mode string

const (
	ModeFull        Mode = "full"
	ModePreliminary Mode = "preliminary"
)

// MaxSubset is the highest subset index accepted.
const MaxSubset = 100

// Source identifies a generated dataset on disk.
type Source struct {
	Dir  string
	Mode Mode
	// Subset selects subset_<N>_generated_data.json in full mode. Zero means
	// the whole dataset.
	Subset int
}

// Validate checks the mode and subset combination.
func (s Source) Validate() error {
	switch s.Mode {
	case ModeFull:
		if s.Subset < 0 || s.Subset > MaxSubset {
			return fmt.Errorf("subset must be between 0 and %d, got %d", MaxSubset, s.Subset)
		}
	case ModePreliminary:
		if s.Subset != 0 {
			return errors.New("subsets are only available in full mode")
		}
	default:
		return fmt.Errorf("unknown dataset mode %q", s.Mode)
	}
	return nil
}

// FileName returns the generated data file name for the source.
func (s Source) FileName() string {
	switch {
	case s.Mode == ModePreliminary:
		return "preliminary_generated_data.json"
	case s.Subset > 0:
		return "subset_" + strconv.Itoa(s.Subset) + "_generated_data.json"
	default:
		return "generated_data.json"
	}
}

// Path returns the full path of the generated data file.
func (s Source) Path() string {
	return filepath.Join(s.Dir, s.FileName())
}

// Partition names the profile namespace for the source. Reviewers in
// different partitions never share profiles, and no partition is nested
// inside another one's reviewer directories.
func (s Source) Partition() string {
	switch {
	case s.Mode == ModePreliminary:
		return string(ModePreliminary)
	case s.Subset > 0:
		return "subsets/" + strconv.Itoa(s.Subset)
	default:
		return string(ModeFull)
	}
}

// Load reads the source's generated data. A missing file is logged and
// yields an empty queue.
func Load(s Source) ([]review.Item, error) {
	path := s.Path()
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		slog.Warn("generated data file does not exist, no items loaded", "path", path)
		return []review.Item{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	items, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	slog.Debug("loaded generated data", "path", path, "items", len(items))
	return items, nil
}

// Decode parses {context: {question: answer}} JSON into items, keeping the
// order in which contexts and questions appear in the document.
func Decode(data []byte) ([]review.Item, error) {
	contexts := orderedmap.New[string, json.RawMessage]()
	if err := json.Unmarshal(data, contexts); err != nil {
		return nil, err
	}

	var items []review.Item
	for c := contexts.Oldest(); c != nil; c = c.Next() {
		questions := orderedmap.New[string, string]()
		if err := json.Unmarshal(c.Value, questions); err != nil {
			return nil, fmt.Errorf("questions for context %.40q: %w", c.Key, err)
		}
		for q := questions.Oldest(); q != nil; q = q.Next() {
			items = append(items, review.Item{Context: c.Key, Question: q.Key, Answer: q.Value})
		}
	}
	if items == nil {
		items = []review.Item{}
	}
	return items, nil
}
