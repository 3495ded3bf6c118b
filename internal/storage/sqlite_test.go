package storage

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/kalambet/qareview/internal/profile"
)

func openTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	s, err := Open(":memory:", opts...)
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// TestMigrationsIdempotent runs Open twice on the same database and verifies
// the schema_version count stays correct (migration not re-applied).
func TestMigrationsIdempotent(t *testing.T) {
	dir := t.TempDir()

	s1, err := Open(dir)
	if err != nil {
		t.Fatalf("first Open failed: %v", err)
	}
	v1, err := s1.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	s1.Close()

	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("second Open failed: %v", err)
	}
	defer s2.Close()

	v2, err := s2.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	if len(v1) == 0 || len(v1) != len(v2) {
		t.Errorf("migration count changed: %d -> %d", len(v1), len(v2))
	}
}

func TestTablesExist(t *testing.T) {
	s := openTestStore(t)
	for _, table := range []string{"reviewers", "reviewer_documents", "jobs"} {
		var count int
		err := s.db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&count)
		if err != nil {
			t.Fatalf("querying sqlite_master: %v", err)
		}
		if count != 1 {
			t.Errorf("table %s not created", table)
		}
	}
}

func TestInitReviewer(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	created, err := s.InitReviewer(ctx, "alice")
	if err != nil {
		t.Fatalf("InitReviewer: %v", err)
	}
	if !created {
		t.Error("first InitReviewer reported existing profile")
	}

	p, err := s.LoadProfile(ctx, "alice")
	if err != nil {
		t.Fatalf("LoadProfile: %v", err)
	}
	if len(p.Judgements) != 0 {
		t.Errorf("new profile has %d judgements", len(p.Judgements))
	}

	created, err = s.InitReviewer(ctx, "alice")
	if err != nil {
		t.Fatalf("second InitReviewer: %v", err)
	}
	if created {
		t.Error("second InitReviewer reported a new profile")
	}
}

func TestLoadProfileUnknown(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.LoadProfile(context.Background(), "ghost"); !errors.Is(err, profile.ErrNotFound) {
		t.Errorf("LoadProfile error = %v, want profile.ErrNotFound", err)
	}
}

func TestSaveSnapshotReplacesDocuments(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	s.InitReviewer(ctx, "alice")

	p := profile.New()
	p.Judgements = append(p.Judgements, profile.Judgement{Context: "c", Question: "q", Answer: "a", UserQuestion: "q", UserAnswer: "a"})
	docs, err := profile.Encode(p)
	if err != nil {
		t.Fatal(err)
	}
	docs[profile.DocDataset] = []byte(`{"data":[],"version":"v2.0"}`)

	if err := s.SaveSnapshot(ctx, "alice", docs); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}

	got, err := s.LoadProfile(ctx, "alice")
	if err != nil {
		t.Fatalf("LoadProfile: %v", err)
	}
	if len(got.Judgements) != 1 || got.Judgements[0].Question != "q" {
		t.Errorf("judgements = %+v", got.Judgements)
	}

	body, err := s.Document(ctx, "alice", profile.DocDataset)
	if err != nil {
		t.Fatalf("Document: %v", err)
	}
	if string(body) != `{"data":[],"version":"v2.0"}` {
		t.Errorf("dataset = %s", body)
	}

	if _, err := s.Document(ctx, "alice", profile.DocIncorrect); !errors.Is(err, profile.ErrNoDocument) {
		t.Errorf("missing document error = %v, want ErrNoDocument", err)
	}
}

func TestSaveSnapshotUnknownReviewer(t *testing.T) {
	s := openTestStore(t)
	err := s.SaveSnapshot(context.Background(), "ghost", profile.Documents{profile.DocJudgements: []byte(`[]`)})
	if !errors.Is(err, profile.ErrNotFound) {
		t.Errorf("SaveSnapshot error = %v, want profile.ErrNotFound", err)
	}
}

func TestSaveSnapshotIsAtomic(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	s.InitReviewer(ctx, "alice")

	before, err := s.Document(ctx, "alice", profile.DocJudgements)
	if err != nil {
		t.Fatal(err)
	}

	cctx, cancel := context.WithCancel(ctx)
	cancel()
	docs := profile.Documents{profile.DocJudgements: []byte(`[{"Question":"x"}]`)}
	if err := s.SaveSnapshot(cctx, "alice", docs); err == nil {
		t.Fatal("SaveSnapshot succeeded with a cancelled context")
	}

	after, err := s.Document(ctx, "alice", profile.DocJudgements)
	if err != nil {
		t.Fatal(err)
	}
	if string(before) != string(after) {
		t.Errorf("failed snapshot changed stored judgements: %s", after)
	}
}

func TestCompletionMarker(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if done, err := s.IsComplete(ctx, "ghost"); err != nil || done {
		t.Errorf("IsComplete(unknown) = %v, %v", done, err)
	}
	if err := s.MarkComplete(ctx, "ghost"); !errors.Is(err, profile.ErrNotFound) {
		t.Errorf("MarkComplete(unknown) error = %v", err)
	}

	s.InitReviewer(ctx, "alice")
	if err := s.MarkComplete(ctx, "alice"); err != nil {
		t.Fatalf("MarkComplete: %v", err)
	}
	if err := s.MarkComplete(ctx, "alice"); err != nil {
		t.Fatalf("second MarkComplete: %v", err)
	}
	done, err := s.IsComplete(ctx, "alice")
	if err != nil || !done {
		t.Errorf("IsComplete = %v, %v, want true", done, err)
	}
}

func TestListReviewers(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	for _, id := range []string{"carol", "alice", "bob"} {
		s.InitReviewer(ctx, id)
	}
	s.MarkComplete(ctx, "bob")

	got, err := s.ListReviewers(ctx)
	if err != nil {
		t.Fatalf("ListReviewers: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d reviewers, want 3", len(got))
	}
	wantIDs := []string{"alice", "bob", "carol"}
	for i, sum := range got {
		if sum.ID != wantIDs[i] {
			t.Errorf("reviewer[%d] = %s, want %s", i, sum.ID, wantIDs[i])
		}
		if sum.Complete != (sum.ID == "bob") {
			t.Errorf("%s complete = %v", sum.ID, sum.Complete)
		}
		if sum.UpdatedAt.IsZero() {
			t.Errorf("%s has zero updated_at", sum.ID)
		}
	}
}

func TestSaveSnapshotEnqueuesPublishJob(t *testing.T) {
	s := openTestStore(t, WithPublishing(true))
	ctx := context.Background()
	s.InitReviewer(ctx, "alice")

	docs := profile.Documents{profile.DocJudgements: []byte(`[]`)}
	for range 3 {
		if err := s.SaveSnapshot(ctx, "alice", docs); err != nil {
			t.Fatalf("SaveSnapshot: %v", err)
		}
	}

	counts, err := s.JobCounts(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if counts[JobPending] != 1 {
		t.Errorf("pending jobs = %d, want 1 after coalescing", counts[JobPending])
	}

	job, err := s.ClaimNextJob(ctx, []string{JobTypePublish})
	if err != nil || job == nil {
		t.Fatalf("ClaimNextJob = %v, %v", job, err)
	}
	var payload PublishPayload
	if err := json.Unmarshal([]byte(job.PayloadJSON), &payload); err != nil {
		t.Fatal(err)
	}
	if payload.Reviewer != "alice" {
		t.Errorf("payload reviewer = %q", payload.Reviewer)
	}

	// A snapshot while the job runs queues a fresh one.
	if err := s.SaveSnapshot(ctx, "alice", docs); err != nil {
		t.Fatal(err)
	}
	counts, _ = s.JobCounts(ctx)
	if counts[JobPending] != 1 || counts[JobRunning] != 1 {
		t.Errorf("counts = %v", counts)
	}
}

func TestSaveSnapshotWithoutPublishing(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	s.InitReviewer(ctx, "alice")
	s.SaveSnapshot(ctx, "alice", profile.Documents{profile.DocJudgements: []byte(`[]`)})

	counts, err := s.JobCounts(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(counts) != 0 {
		t.Errorf("job counts = %v, want none", counts)
	}
}

func TestEnqueueAndClaimJob(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	job := Job{ID: "job-1", Type: "x", PayloadJSON: `{"reviewer":"a"}`}
	if err := s.EnqueueJob(ctx, job); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}

	got, err := s.ClaimNextJob(ctx, []string{"x"})
	if err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}
	if got == nil {
		t.Fatal("ClaimNextJob returned nil")
	}
	if got.ID != "job-1" || got.Status != JobRunning || got.MaxAttempts != 3 {
		t.Errorf("claimed job = %+v", got)
	}

	again, err := s.ClaimNextJob(ctx, []string{"x"})
	if err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}
	if again != nil {
		t.Errorf("running job claimed twice: %+v", again)
	}
}

func TestClaimNextJob_RespectRunAfter(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	job := Job{ID: "job-later", Type: "x", PayloadJSON: `{}`, RunAfter: time.Now().Add(time.Hour)}
	if err := s.EnqueueJob(ctx, job); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}
	got, err := s.ClaimNextJob(ctx, []string{"x"})
	if err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for future job, got %+v", got)
	}
}

func TestClaimNextJob_TypeFilter(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	s.EnqueueJob(ctx, Job{ID: "j-a", Type: "a", PayloadJSON: `{}`})
	s.EnqueueJob(ctx, Job{ID: "j-b", Type: "b", PayloadJSON: `{}`})

	got, err := s.ClaimNextJob(ctx, []string{"b"})
	if err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}
	if got == nil || got.ID != "j-b" {
		t.Errorf("claimed %+v, want j-b", got)
	}
	if none, _ := s.ClaimNextJob(ctx, nil); none != nil {
		t.Errorf("ClaimNextJob(nil) = %+v", none)
	}
}

func TestCompleteJob(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	s.EnqueueJob(ctx, Job{ID: "j-done", Type: "x", PayloadJSON: `{}`})
	s.ClaimNextJob(ctx, []string{"x"})
	if err := s.CompleteJob(ctx, "j-done"); err != nil {
		t.Fatalf("CompleteJob: %v", err)
	}
	job, err := s.GetJob(ctx, "j-done")
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if job.Status != JobCompleted {
		t.Errorf("status = %s, want completed", job.Status)
	}
	if err := s.CompleteJob(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("CompleteJob(missing) error = %v", err)
	}
}

func TestFailJob_RetriesThenFails(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	s.EnqueueJob(ctx, Job{ID: "j-fail", Type: "x", PayloadJSON: `{}`, MaxAttempts: 2})
	s.ClaimNextJob(ctx, []string{"x"})

	if err := s.FailJob(ctx, "j-fail", "upload refused"); err != nil {
		t.Fatalf("FailJob: %v", err)
	}
	job, _ := s.GetJob(ctx, "j-fail")
	if job.Status != JobPending || job.Attempts != 1 || job.LastError != "upload refused" {
		t.Errorf("after first failure: %+v", job)
	}
	if !job.RunAfter.After(time.Now()) {
		t.Errorf("run_after %v not pushed into the future", job.RunAfter)
	}

	if err := s.FailJob(ctx, "j-fail", "still refused"); err != nil {
		t.Fatalf("FailJob: %v", err)
	}
	job, _ = s.GetJob(ctx, "j-fail")
	if job.Status != JobFailed || job.Attempts != 2 {
		t.Errorf("after second failure: %+v", job)
	}

	if err := s.FailJob(ctx, "missing", "x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("FailJob(missing) error = %v", err)
	}
}
