// Package profiledir stores reviewer profiles as plain JSON files, one
// directory per reviewer, in the layout earlier deployments wrote:
//
//	<root>/<reviewer>/profile.json
//	<root>/<reviewer>/profile.squad
//	<root>/<reviewer>/unsuitable_questions.json
//	<root>/<reviewer>/unnatural_texts.json
//	<root>/<reviewer>/incorrect.json
//	<root>/<reviewer>/times.json
//	<root>/<reviewer>/notes.json
//	<root>/<reviewer>/complete
//
// Every write builds a complete copy of the reviewer directory under
// .staging and swaps it in, holding a per-reviewer file lock. A swap
// interrupted between its two renames is repaired on the next access, and
// staging copies left behind by a crash are removed at the same time.
//
// A reviewer directory holds files only. Saving a reviewer whose directory
// has gained a subdirectory fails instead of replacing it.
package profiledir

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"github.com/kalambet/qareview/internal/profile"
)

// CompleteMarker is the empty file created once a reviewer exhausts the queue.
const CompleteMarker = "complete"

const (
	locksDir   = ".locks"
	stagingDir = ".staging"
	oldDir     = ".old"

	lockRetry = 25 * time.Millisecond
)

var (
	// ErrInvalidReviewer rejects ids that cannot be used as a directory name.
	ErrInvalidReviewer = errors.New("invalid reviewer id")
	// ErrNotProfileDir is returned when a reviewer directory contains
	// subdirectories and so cannot be swapped out safely.
	ErrNotProfileDir = errors.New("reviewer directory contains subdirectories")
)

// Store is a directory-backed profile store rooted at one partition.
type Store struct {
	root string
}

// Open prepares root and returns a store over it.
func Open(root string) (*Store, error) {
	for _, dir := range []string{root, filepath.Join(root, locksDir), filepath.Join(root, stagingDir), filepath.Join(root, oldDir)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	return &Store{root: root}, nil
}

// Root returns the partition directory.
func (s *Store) Root() string { return s.root }

// Close is a no-op; it lets Store satisfy the same interface as the SQLite store.
func (s *Store) Close() error { return nil }

func validate(reviewer string) error {
	if reviewer == "" || strings.HasPrefix(reviewer, ".") || strings.ContainsAny(reviewer, `/\`) {
		return fmt.Errorf("%w: %q", ErrInvalidReviewer, reviewer)
	}
	return nil
}

func (s *Store) dir(reviewer string) string    { return filepath.Join(s.root, reviewer) }
func (s *Store) asideDir(reviewer string) string { return filepath.Join(s.root, oldDir, reviewer) }

// locked runs fn while holding the reviewer's lock, after repairing any
// interrupted swap.
func (s *Store) locked(ctx context.Context, reviewer string, fn func() error) error {
	if err := validate(reviewer); err != nil {
		return err
	}
	lock := flock.New(filepath.Join(s.root, locksDir, reviewer+".lock"))
	ok, err := lock.TryLockContext(ctx, lockRetry)
	if err != nil {
		return fmt.Errorf("locking %s: %w", reviewer, err)
	}
	if !ok {
		return fmt.Errorf("locking %s: %w", reviewer, ctx.Err())
	}
	defer lock.Unlock()

	if err := s.recover(reviewer); err != nil {
		return err
	}
	s.sweepStaging(reviewer)
	return fn()
}

// sweepStaging removes staging copies for reviewer that a crashed write left
// behind. Callers hold the reviewer's lock, so none of them is in use.
func (s *Store) sweepStaging(reviewer string) {
	dir := filepath.Join(s.root, stagingDir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		slog.Warn("reading staging directory", "dir", dir, "error", err)
		return
	}
	for _, e := range entries {
		id, suffix, ok := splitStagingName(e.Name())
		if !ok || id != reviewer {
			continue
		}
		path := filepath.Join(dir, e.Name())
		if err := os.RemoveAll(path); err != nil {
			slog.Warn("removing stale staging copy", "path", path, "error", err)
			continue
		}
		slog.Debug("removed stale staging copy", "reviewer", reviewer, "write", suffix)
	}
}

// splitStagingName parses "<reviewer>-<uuid>".
func splitStagingName(name string) (reviewer, suffix string, ok bool) {
	const uuidLen = 36
	if len(name) < uuidLen+2 || name[len(name)-uuidLen-1] != '-' {
		return "", "", false
	}
	suffix = name[len(name)-uuidLen:]
	if _, err := uuid.Parse(suffix); err != nil {
		return "", "", false
	}
	return name[:len(name)-uuidLen-1], suffix, true
}

// recover restores the previous directory if a swap stopped after moving it
// aside, and discards it if the swap finished.
func (s *Store) recover(reviewer string) error {
	old := s.asideDir(reviewer)
	if _, err := os.Stat(old); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if _, err := os.Stat(s.dir(reviewer)); errors.Is(err, fs.ErrNotExist) {
		if err := os.Rename(old, s.dir(reviewer)); err != nil {
			return fmt.Errorf("restoring %s: %w", reviewer, err)
		}
		return nil
	}
	return os.RemoveAll(old)
}

func (s *Store) exists(reviewer string) (bool, error) {
	info, err := os.Stat(s.dir(reviewer))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return info.IsDir(), nil
}

// InitReviewer creates an empty profile directory.
func (s *Store) InitReviewer(ctx context.Context, reviewer string) (bool, error) {
	created := false
	err := s.locked(ctx, reviewer, func() error {
		ok, err := s.exists(reviewer)
		if err != nil || ok {
			return err
		}
		docs, err := profile.Encode(profile.New())
		if err != nil {
			return err
		}
		staging, err := s.stage(reviewer, docs, false)
		if err != nil {
			return err
		}
		if err := os.Rename(staging, s.dir(reviewer)); err != nil {
			os.RemoveAll(staging)
			return fmt.Errorf("installing profile: %w", err)
		}
		created = true
		return nil
	})
	return created, err
}

// LoadProfile decodes the reviewer's profile files.
func (s *Store) LoadProfile(ctx context.Context, reviewer string) (profile.Profile, error) {
	docs, err := s.Documents(ctx, reviewer)
	if err != nil {
		return profile.Profile{}, err
	}
	return profile.Decode(docs)
}

// SaveSnapshot replaces the given documents as one unit. Files not named in
// docs, including the completion marker, carry over unchanged.
func (s *Store) SaveSnapshot(ctx context.Context, reviewer string, docs profile.Documents) error {
	return s.locked(ctx, reviewer, func() error {
		ok, err := s.exists(reviewer)
		if err != nil {
			return err
		}
		if !ok {
			return profile.ErrNotFound
		}
		staging, err := s.stage(reviewer, docs, true)
		if err != nil {
			return err
		}
		return s.swap(reviewer, staging)
	})
}

// stage writes a full replacement directory and returns its path. With
// carry set, files already present for the reviewer are copied first.
func (s *Store) stage(reviewer string, docs profile.Documents, carry bool) (string, error) {
	staging := filepath.Join(s.root, stagingDir, reviewer+"-"+uuid.NewString())
	if err := os.Mkdir(staging, 0o755); err != nil {
		return "", fmt.Errorf("creating staging directory: %w", err)
	}

	err := func() error {
		if carry {
			entries, err := os.ReadDir(s.dir(reviewer))
			if err != nil {
				return err
			}
			for _, e := range entries {
				if e.IsDir() {
					return fmt.Errorf("%w: %s", ErrNotProfileDir, e.Name())
				}
				if !e.Type().IsRegular() {
					continue
				}
				if _, replaced := docs[e.Name()]; replaced {
					continue
				}
				if err := copyFile(filepath.Join(s.dir(reviewer), e.Name()), filepath.Join(staging, e.Name())); err != nil {
					return err
				}
			}
		}
		for name, body := range docs {
			if err := writeFile(filepath.Join(staging, name), body); err != nil {
				return err
			}
		}
		return nil
	}()
	if err != nil {
		os.RemoveAll(staging)
		return "", fmt.Errorf("staging %s: %w", reviewer, err)
	}
	return staging, nil
}

// swap moves the current directory aside, installs staging and removes the
// previous copy.
func (s *Store) swap(reviewer, staging string) error {
	old := s.asideDir(reviewer)
	if err := os.Rename(s.dir(reviewer), old); err != nil {
		os.RemoveAll(staging)
		return fmt.Errorf("moving current profile aside: %w", err)
	}
	if err := os.Rename(staging, s.dir(reviewer)); err != nil {
		// Restore the previous directory.
		if rerr := os.Rename(old, s.dir(reviewer)); rerr != nil {
			return fmt.Errorf("installing snapshot: %w (restore failed: %v)", err, rerr)
		}
		os.RemoveAll(staging)
		return fmt.Errorf("installing snapshot: %w", err)
	}
	return os.RemoveAll(old)
}

func writeFile(path string, body []byte) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := f.Write(body); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// MarkComplete creates the completion marker.
func (s *Store) MarkComplete(ctx context.Context, reviewer string) error {
	return s.locked(ctx, reviewer, func() error {
		ok, err := s.exists(reviewer)
		if err != nil {
			return err
		}
		if !ok {
			return profile.ErrNotFound
		}
		return writeFile(filepath.Join(s.dir(reviewer), CompleteMarker), nil)
	})
}

// IsComplete reports whether the completion marker exists.
func (s *Store) IsComplete(ctx context.Context, reviewer string) (bool, error) {
	done := false
	err := s.locked(ctx, reviewer, func() error {
		_, err := os.Stat(filepath.Join(s.dir(reviewer), CompleteMarker))
		switch {
		case err == nil:
			done = true
		case !errors.Is(err, fs.ErrNotExist):
			return err
		}
		return nil
	})
	return done, err
}

// ListReviewers returns every reviewer directory holding a profile.
func (s *Store) ListReviewers(ctx context.Context) ([]profile.Summary, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, err
	}

	var out []profile.Summary
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		info, err := os.Stat(filepath.Join(s.root, e.Name(), profile.DocJudgements))
		if err != nil {
			continue
		}
		sum := profile.Summary{ID: e.Name(), UpdatedAt: info.ModTime().UTC()}
		if _, err := os.Stat(filepath.Join(s.root, e.Name(), CompleteMarker)); err == nil {
			sum.Complete = true
		}
		out = append(out, sum)
	}
	return out, nil
}

// Documents reads every known document present for the reviewer.
func (s *Store) Documents(ctx context.Context, reviewer string) (profile.Documents, error) {
	docs := make(profile.Documents)
	err := s.locked(ctx, reviewer, func() error {
		ok, err := s.exists(reviewer)
		if err != nil {
			return err
		}
		if !ok {
			return profile.ErrNotFound
		}
		for _, name := range profile.AllDocuments {
			body, err := os.ReadFile(filepath.Join(s.dir(reviewer), name))
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			if err != nil {
				return fmt.Errorf("reading %s: %w", name, err)
			}
			docs[name] = body
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return docs, nil
}

// Document reads one document.
func (s *Store) Document(ctx context.Context, reviewer, name string) ([]byte, error) {
	if !slices.Contains(profile.AllDocuments, name) {
		return nil, fmt.Errorf("%s: %w", name, profile.ErrNoDocument)
	}
	docs, err := s.Documents(ctx, reviewer)
	if err != nil {
		return nil, err
	}
	body, ok := docs[name]
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, profile.ErrNoDocument)
	}
	return body, nil
}
