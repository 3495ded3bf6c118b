package review

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/kalambet/qareview/internal/profile"
)

// Store persists reviewer profiles. SaveSnapshot must apply all documents as
// one unit: either every document is replaced or none is.
type Store interface {
	// InitReviewer creates an empty profile. created is false when the
	// profile already existed, in which case nothing is changed.
	InitReviewer(ctx context.Context, reviewer string) (created bool, err error)
	// LoadProfile returns profile.ErrNotFound for unknown reviewers.
	LoadProfile(ctx context.Context, reviewer string) (profile.Profile, error)
	SaveSnapshot(ctx context.Context, reviewer string, docs profile.Documents) error
	MarkComplete(ctx context.Context, reviewer string) error
	IsComplete(ctx context.Context, reviewer string) (bool, error)
}

// Options controls queue ordering, progress keys and artifact generation.
type Options struct {
	// Shuffle enables the per-reviewer deterministic ordering.
	Shuffle bool
	// QuestionKeys tracks progress by question text alone.
	QuestionKeys bool
	// Title is the article title written into the verified dataset.
	Title string
	Now   func() time.Time
	Log   *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Log == nil {
		o.Log = slog.Default()
	}
	return o
}

func (o Options) aggregateOptions() AggregateOptions {
	return AggregateOptions{Title: o.Title, Logger: o.Log}
}

// Init creates an empty profile for reviewer. Initialising an existing
// profile is a no-op that logs a warning.
func Init(ctx context.Context, store Store, reviewer string) error {
	reviewer = strings.TrimSpace(reviewer)
	if reviewer == "" {
		return ErrBlankReviewer
	}
	created, err := store.InitReviewer(ctx, reviewer)
	if err != nil {
		return fmt.Errorf("initialising reviewer %q: %w", reviewer, err)
	}
	if !created {
		slog.Warn("profile already exists, not recreating", "reviewer", reviewer)
	}
	return nil
}

// Login applies the entry rules for a reviewer: blank identities are
// rejected, completed reviewers are refused, everyone else is initialised.
func Login(ctx context.Context, store Store, reviewer string) error {
	reviewer = strings.TrimSpace(reviewer)
	if reviewer == "" {
		return ErrBlankReviewer
	}
	done, err := store.IsComplete(ctx, reviewer)
	if err != nil {
		return fmt.Errorf("checking completion for %q: %w", reviewer, err)
	}
	if done {
		return ErrReviewerComplete
	}
	return Init(ctx, store, reviewer)
}

// Session is the in-memory review state of one reviewer. It is not safe for
// concurrent use; Registry serialises access per reviewer.
type Session struct {
	reviewer string
	store    Store
	opts     Options

	profile  profile.Profile
	progress Progress
	cursor   *Cursor
	shownAt  time.Time
	complete bool
}

// Start opens a session for an initialised reviewer, orders the queue and
// moves the cursor past already resolved items.
func Start(ctx context.Context, store Store, reviewer string, items []Item, opts Options) (*Session, error) {
	opts = opts.withDefaults()

	done, err := store.IsComplete(ctx, reviewer)
	if err != nil {
		return nil, fmt.Errorf("checking completion for %q: %w", reviewer, err)
	}
	if done {
		return nil, ErrReviewerComplete
	}

	p, err := store.LoadProfile(ctx, reviewer)
	if err != nil {
		return nil, fmt.Errorf("loading profile for %q: %w", reviewer, err)
	}

	queue := slices.Clone(items)
	if opts.Shuffle {
		queue = Shuffle(reviewer, items)
	}

	s := &Session{
		reviewer: reviewer,
		store:    store,
		opts:     opts,
		profile:  p,
		progress: NewProgress(p, opts.QuestionKeys),
		cursor:   NewCursor(queue),
		shownAt:  opts.Now(),
	}
	s.cursor.Advance(s.progress)

	if err := s.finishIfExhausted(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Reviewer returns the session's reviewer id.
func (s *Session) Reviewer() string { return s.reviewer }

// Profile returns a copy of the current profile.
func (s *Session) Profile() profile.Profile { return profile.Clone(s.profile) }

// Current returns the item awaiting judgement.
func (s *Session) Current() (Item, bool) { return s.cursor.Current() }

// Status summarises a session's progress.
type Status struct {
	Reviewer   string `json:"reviewer"`
	Position   int    `json:"position"`
	Total      int    `json:"total"`
	Judged     int    `json:"judged"`
	Unsuitable int    `json:"unsuitable"`
	Complete   bool   `json:"complete"`
	Current    *Item  `json:"current,omitempty"`
}

func (s *Session) Status() Status {
	st := Status{
		Reviewer: s.reviewer,
		Position: s.cursor.Position(),
		Total:    s.cursor.Len(),
		Judged:   len(s.profile.Judgements),
		Complete: s.complete,
	}
	for _, qs := range s.profile.Unsuitable {
		st.Unsuitable += len(qs)
	}
	if it, ok := s.cursor.Current(); ok {
		st.Current = &it
	}
	return st
}

// Submission is the reviewer's decision on the current item.
type Submission struct {
	Suitable bool `json:"suitable"`

	QuestionNatural bool `json:"question_natural"`
	AnswerNatural   bool `json:"answer_natural"`
	AnswerAdequate  bool `json:"answer_adequate"`
	AnswerPrecise   bool `json:"answer_precise"`

	UserQuestion string `json:"user_question"`
	UserAnswer   string `json:"user_answer"`

	QuestionNote string `json:"question_note,omitempty"`
	AnswerNote   string `json:"answer_note,omitempty"`
}

// Result reports the outcome of Submit. When Violations is non-empty nothing
// was persisted and the same item remains current.
type Result struct {
	Accepted   bool        `json:"accepted"`
	Violations []Violation `json:"violations,omitempty"`
	Status     Status      `json:"status"`
}

// Submit validates sub against the current item. On acceptance the profile
// and every derived artifact are persisted together and the cursor advances.
func (s *Session) Submit(ctx context.Context, sub Submission) (Result, error) {
	item, ok := s.cursor.Current()
	if !ok || s.complete {
		return Result{}, ErrQueueComplete
	}

	now := s.opts.Now()
	next := profile.Clone(s.profile)

	if sub.Suitable {
		c := Candidate{
			Item:            item,
			QuestionNatural: sub.QuestionNatural,
			AnswerNatural:   sub.AnswerNatural,
			AnswerAdequate:  sub.AnswerAdequate,
			AnswerPrecise:   sub.AnswerPrecise,
			UserQuestion:    sub.UserQuestion,
			UserAnswer:      sub.UserAnswer,
		}
		if v := Validate(c); len(v) > 0 {
			return Result{Violations: v, Status: s.Status()}, nil
		}
		next.Judgements = append(next.Judgements, profile.Judgement{
			Context:         item.Context,
			Question:        item.Question,
			Answer:          item.Answer,
			QuestionNatural: sub.QuestionNatural,
			AnswerNatural:   sub.AnswerNatural,
			AnswerAdequate:  sub.AnswerAdequate,
			AnswerPrecise:   sub.AnswerPrecise,
			UserQuestion:    strings.TrimSpace(sub.UserQuestion),
			UserAnswer:      strings.TrimSpace(sub.UserAnswer),
		})
	} else {
		next.Unsuitable[item.Context] = append(next.Unsuitable[item.Context], item.Question)
	}

	addNotes(next.Notes, item, sub.QuestionNote, sub.AnswerNote)
	next.Timing.Questions[s.cursor.Position()] = now.Sub(s.shownAt).Seconds()

	if err := s.commit(ctx, next); err != nil {
		return Result{}, err
	}

	s.progress.add(item.Context, item.Question)
	s.cursor.Advance(s.progress)
	s.shownAt = s.opts.Now()

	if err := s.finishIfExhausted(ctx); err != nil {
		return Result{}, err
	}
	return Result{Accepted: true, Status: s.Status()}, nil
}

// RecordCalibration adds elapsed time spent on calibration step to the
// reviewer's timing record and persists it.
func (s *Session) RecordCalibration(ctx context.Context, step int, elapsed time.Duration) error {
	if step < 0 {
		return fmt.Errorf("calibration step must be non-negative, got %d", step)
	}
	next := profile.Clone(s.profile)
	next.Timing.Examples[step] += elapsed.Seconds()
	return s.commit(ctx, next)
}

// commit persists next with freshly aggregated artifacts and adopts it as the
// session profile only once the store has accepted it.
func (s *Session) commit(ctx context.Context, next profile.Profile) error {
	docs, err := Snapshot(next, s.opts.aggregateOptions())
	if err != nil {
		return err
	}
	if err := s.store.SaveSnapshot(ctx, s.reviewer, docs); err != nil {
		return fmt.Errorf("saving snapshot for %q: %w", s.reviewer, err)
	}
	s.profile = next
	return nil
}

func (s *Session) finishIfExhausted(ctx context.Context) error {
	if s.complete || s.cursor.Len() == 0 || !s.cursor.Exhausted() {
		return nil
	}
	if err := s.store.MarkComplete(ctx, s.reviewer); err != nil {
		return fmt.Errorf("marking %q complete: %w", s.reviewer, err)
	}
	s.complete = true
	s.opts.Log.Info("reviewer finished queue", "reviewer", s.reviewer, "judged", len(s.profile.Judgements))
	return nil
}

// Snapshot encodes a profile together with its aggregated artifacts into the
// full document set.
func Snapshot(p profile.Profile, opts AggregateOptions) (profile.Documents, error) {
	docs, err := profile.Encode(p)
	if err != nil {
		return nil, err
	}
	derived, err := Aggregate(p.Judgements, opts).Documents()
	if err != nil {
		return nil, fmt.Errorf("encoding artifacts: %w", err)
	}
	maps.Copy(docs, derived)
	return docs, nil
}

// addNotes records the reviewer's free-text notes for item. Nothing is stored
// when both notes are blank.
func addNotes(notes profile.Notes, item Item, questionNote, answerNote string) {
	questionNote = strings.TrimSpace(questionNote)
	answerNote = strings.TrimSpace(answerNote)
	if questionNote == "" && answerNote == "" {
		return
	}
	if notes[item.Context] == nil {
		notes[item.Context] = make(map[string]profile.Note)
	}
	notes[item.Context][item.Question] = profile.Note{
		Answer: map[string]*string{item.Answer: optional(answerNote)},
		Note:   optional(questionNote),
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// IsNotFound reports whether err means the reviewer has no profile.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrProfileNotFound)
}
