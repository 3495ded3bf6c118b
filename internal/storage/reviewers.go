package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/qareview/internal/profile"
)

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// InitReviewer creates an empty profile. It reports false without changing
// anything when the reviewer already exists.
func (s *Store) InitReviewer(ctx context.Context, reviewer string) (bool, error) {
	docs, err := profile.Encode(profile.New())
	if err != nil {
		return false, err
	}

	created := false
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		ts := now()
		res, err := tx.ExecContext(ctx, `
			INSERT INTO reviewers (id, created_at, updated_at) VALUES (?, ?, ?)
			ON CONFLICT(id) DO NOTHING`, reviewer, ts, ts)
		if err != nil {
			return fmt.Errorf("inserting reviewer: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
		created = true
		return putDocuments(ctx, tx, reviewer, docs, ts)
	})
	return created, err
}

// LoadProfile decodes the reviewer's stored documents.
func (s *Store) LoadProfile(ctx context.Context, reviewer string) (profile.Profile, error) {
	docs, err := s.Documents(ctx, reviewer)
	if err != nil {
		return profile.Profile{}, err
	}
	return profile.Decode(docs)
}

// SaveSnapshot replaces the given documents in one transaction. With
// publishing enabled a publish job is enqueued in the same transaction.
func (s *Store) SaveSnapshot(ctx context.Context, reviewer string, docs profile.Documents) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		ts := now()
		res, err := tx.ExecContext(ctx, `UPDATE reviewers SET updated_at = ? WHERE id = ?`, ts, reviewer)
		if err != nil {
			return fmt.Errorf("touching reviewer: %w", err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			return profile.ErrNotFound
		}

		if err := putDocuments(ctx, tx, reviewer, docs, ts); err != nil {
			return err
		}

		if !s.publish {
			return nil
		}
		payload, err := json.Marshal(PublishPayload{Reviewer: reviewer})
		if err != nil {
			return err
		}
		return enqueueJob(ctx, tx, Job{ID: uuid.NewString(), Type: JobTypePublish, PayloadJSON: string(payload)})
	})
}

func putDocuments(ctx context.Context, tx *sql.Tx, reviewer string, docs profile.Documents, ts string) error {
	for name, body := range docs {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO reviewer_documents (reviewer_id, name, body, updated_at) VALUES (?, ?, ?, ?)
			ON CONFLICT(reviewer_id, name) DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at`,
			reviewer, name, body, ts,
		); err != nil {
			return fmt.Errorf("writing %s: %w", name, err)
		}
	}
	return nil
}

// MarkComplete records the completion marker. Marking twice keeps the first
// completion time.
func (s *Store) MarkComplete(ctx context.Context, reviewer string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE reviewers SET completed_at = COALESCE(completed_at, ?) WHERE id = ?`, now(), reviewer)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return profile.ErrNotFound
	}
	return nil
}

// IsComplete reports whether the reviewer has a completion marker. Unknown
// reviewers are not complete.
func (s *Store) IsComplete(ctx context.Context, reviewer string) (bool, error) {
	var completed sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT completed_at FROM reviewers WHERE id = ?`, reviewer).Scan(&completed)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return completed.Valid, nil
}

// ListReviewers returns every stored reviewer ordered by id.
func (s *Store) ListReviewers(ctx context.Context) ([]profile.Summary, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, updated_at, completed_at FROM reviewers ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []profile.Summary
	for rows.Next() {
		var sum profile.Summary
		var updatedAt string
		var completed sql.NullString
		if err := rows.Scan(&sum.ID, &updatedAt, &completed); err != nil {
			return nil, err
		}
		t, err := time.Parse(time.RFC3339, updatedAt)
		if err != nil {
			return nil, fmt.Errorf("parsing updated_at: %w", err)
		}
		sum.UpdatedAt = t
		sum.Complete = completed.Valid
		out = append(out, sum)
	}
	return out, rows.Err()
}

// Documents returns all stored documents for a reviewer.
func (s *Store) Documents(ctx context.Context, reviewer string) (profile.Documents, error) {
	var exists int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM reviewers WHERE id = ?`, reviewer).Scan(&exists); err != nil {
		return nil, err
	}
	if exists == 0 {
		return nil, profile.ErrNotFound
	}

	rows, err := s.db.QueryContext(ctx, `SELECT name, body FROM reviewer_documents WHERE reviewer_id = ?`, reviewer)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	docs := make(profile.Documents)
	for rows.Next() {
		var name string
		var body []byte
		if err := rows.Scan(&name, &body); err != nil {
			return nil, err
		}
		docs[name] = body
	}
	return docs, rows.Err()
}

// Document returns one stored document.
func (s *Store) Document(ctx context.Context, reviewer, name string) ([]byte, error) {
	var body []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT body FROM reviewer_documents WHERE reviewer_id = ? AND name = ?`, reviewer, name).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", name, profile.ErrNoDocument)
	}
	return body, err
}
