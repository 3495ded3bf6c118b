package review

import (
	"errors"

	"github.com/kalambet/qareview/internal/profile"
)

var (
	// ErrProfileNotFound means the reviewer was never initialised. Only Init
	// creates profiles.
	ErrProfileNotFound = profile.ErrNotFound

	// ErrReviewerComplete means the reviewer has a completion marker and may
	// not resume the queue.
	ErrReviewerComplete = errors.New("reviewer has already completed the review")

	// ErrQueueComplete is returned when submitting past the end of the queue.
	ErrQueueComplete = errors.New("review queue is exhausted")

	// ErrBlankReviewer rejects an empty reviewer identity.
	ErrBlankReviewer = errors.New("reviewer id must not be blank")
)
