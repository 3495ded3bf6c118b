package publish

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kalambet/qareview/internal/profile"
	"github.com/kalambet/qareview/internal/storage"
)

// Published lists the documents uploaded for each reviewer.
var Published = []string{profile.DocDataset, profile.DocUnnatural, profile.DocIncorrect}

// JobStore abstracts the job queue operations.
type JobStore interface {
	ClaimNextJob(ctx context.Context, types []string) (*storage.Job, error)
	CompleteJob(ctx context.Context, id string) error
	FailJob(ctx context.Context, id string, errMsg string) error
}

// DocumentSource reads a reviewer's stored documents.
type DocumentSource interface {
	Documents(ctx context.Context, reviewer string) (profile.Documents, error)
}

// Uploader stores one object.
type Uploader interface {
	Key(reviewer, name string) string
	Put(ctx context.Context, key string, body []byte) (string, error)
}

// Worker processes publish_dataset jobs from the SQLite job queue.
type Worker struct {
	jobs   JobStore
	docs   DocumentSource
	up     Uploader
	poll   time.Duration
	logger *slog.Logger
}

// NewWorker creates a Worker with the given dependencies.
// If pollInterval is <= 0, it defaults to 500ms.
func NewWorker(jobs JobStore, docs DocumentSource, up Uploader, pollInterval time.Duration) *Worker {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	return &Worker{
		jobs:   jobs,
		docs:   docs,
		up:     up,
		poll:   pollInterval,
		logger: slog.Default().With("component", "publish"),
	}
}

// Run polls for jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		done, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Error("worker iteration failed", "error", err)
		}
		if done {
			continue
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(w.poll):
		}
	}
}

// RunOnce claims and processes a single publish job.
// Returns true if a job was processed (regardless of success/failure).
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.jobs.ClaimNextJob(ctx, []string{storage.JobTypePublish})
	if err != nil {
		return false, fmt.Errorf("claiming job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	if err := w.process(ctx, job); err != nil {
		w.logger.Warn("publish failed", "job_id", job.ID, "error", err)
		if failErr := w.jobs.FailJob(ctx, job.ID, err.Error()); failErr != nil {
			w.logger.Error("failed to mark job as failed", "job_id", job.ID, "error", failErr)
		}
		return true, nil
	}

	if err := w.jobs.CompleteJob(ctx, job.ID); err != nil {
		return true, fmt.Errorf("completing job %s: %w", job.ID, err)
	}
	return true, nil
}

func (w *Worker) process(ctx context.Context, job *storage.Job) error {
	var payload storage.PublishPayload
	if err := json.Unmarshal([]byte(job.PayloadJSON), &payload); err != nil {
		return fmt.Errorf("parsing payload: %w", err)
	}
	if payload.Reviewer == "" {
		return errors.New("payload has no reviewer")
	}

	docs, err := w.docs.Documents(ctx, payload.Reviewer)
	if err != nil {
		return fmt.Errorf("loading documents for %s: %w", payload.Reviewer, err)
	}

	for _, name := range Published {
		body, ok := docs[name]
		if !ok {
			continue
		}
		ref, err := w.up.Put(ctx, w.up.Key(payload.Reviewer, name), body)
		if err != nil {
			return err
		}
		w.logger.Debug("published document", "reviewer", payload.Reviewer, "ref", ref)
	}
	return nil
}
