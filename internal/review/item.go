package review

import "github.com/kalambet/qareview/internal/profile"

// Item is one (context, question, answer) triple awaiting review.
type Item struct {
	Context  string `json:"context"`
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

type progressKey struct {
	context  string
	question string
}

// Progress is the set of items a reviewer has already resolved, either by a
// judgement or by marking the question unsuitable.
type Progress struct {
	done         map[progressKey]struct{}
	questionOnly bool
}

// NewProgress builds the resolved set from a profile. With questionOnly set,
// items are matched on question text alone, ignoring the context.
func NewProgress(p profile.Profile, questionOnly bool) Progress {
	pr := Progress{done: make(map[progressKey]struct{}), questionOnly: questionOnly}
	for _, j := range p.Judgements {
		pr.add(j.Context, j.Question)
	}
	for ctx, questions := range p.Unsuitable {
		for _, q := range questions {
			pr.add(ctx, q)
		}
	}
	return pr
}

func (p Progress) key(context, question string) progressKey {
	if p.questionOnly {
		return progressKey{question: question}
	}
	return progressKey{context: context, question: question}
}

func (p Progress) add(context, question string) {
	p.done[p.key(context, question)] = struct{}{}
}

// Done reports whether it has been resolved.
func (p Progress) Done(it Item) bool {
	if p.done == nil {
		return false
	}
	_, ok := p.done[p.key(it.Context, it.Question)]
	return ok
}
