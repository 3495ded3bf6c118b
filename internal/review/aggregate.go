package review

import (
	"encoding/json"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/kalambet/qareview/internal/profile"
)

// DefaultDatasetTitle is used when AggregateOptions.Title is empty.
const DefaultDatasetTitle = "Streamlit"

// SQuADVersion is written into every verified dataset.
const SQuADVersion = "v2.0"

// Dataset is a verified dataset in SQuAD v2 layout.
type Dataset struct {
	Data    []Article `json:"data"`
	Version string    `json:"version"`
}

// Article groups paragraphs under one title. Aggregate writes a single article.
type Article struct {
	Title      string      `json:"title"`
	Paragraphs []Paragraph `json:"paragraphs"`
}

// Paragraph is one context with the questions kept for it.
type Paragraph struct {
	QAs     []QA   `json:"qas"`
	Context string `json:"context"`
}

// QA is a reviewer-written question with its answers. Aggregate never emits
// an impossible question.
type QA struct {
	Question     string   `json:"question"`
	Answers      []Answer `json:"answers"`
	IsImpossible bool     `json:"is_impossible"`
	ID           string   `json:"id"`
}

// Answer is a span of the paragraph context. AnswerStart counts characters,
// not bytes.
type Answer struct {
	Text        string `json:"text"`
	AnswerStart int    `json:"answer_start"`
}

// IncorrectPair is an original (question, answer) judged neither adequate nor
// precise. It encodes as a two-element JSON array.
type IncorrectPair struct {
	Question string
	Answer   string
}

func (p IncorrectPair) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]string{p.Question, p.Answer})
}

func (p *IncorrectPair) UnmarshalJSON(data []byte) error {
	var pair [2]string
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	p.Question, p.Answer = pair[0], pair[1]
	return nil
}

// Output holds the three derived artifacts.
type Output struct {
	Dataset   Dataset
	Unnatural []string
	Incorrect []IncorrectPair
}

// AggregateOptions tunes Aggregate.
type AggregateOptions struct {
	Title string
	// NewID generates question identifiers. Defaults to a dashless UUIDv4.
	NewID  func() string
	Logger *slog.Logger
}

func newQuestionID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

type pendingQuestion struct {
	text    string
	answers []Answer
	seen    map[string]struct{}
}

type pendingContext struct {
	text      string
	questions []*pendingQuestion
	byText    map[string]*pendingQuestion
}

// Aggregate recomputes the verified dataset, the unnatural list and the
// incorrect list from the full judgement history. It keeps no state between
// calls. Answers that cannot be located in their context are logged and
// dropped; questions left without answers are omitted.
func Aggregate(judgements []profile.Judgement, opts AggregateOptions) Output {
	if opts.Title == "" {
		opts.Title = DefaultDatasetTitle
	}
	if opts.NewID == nil {
		opts.NewID = newQuestionID
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	out := Output{
		Unnatural: []string{},
		Incorrect: []IncorrectPair{},
	}

	var contexts []*pendingContext
	byContext := make(map[string]*pendingContext)

	for _, j := range judgements {
		pc, ok := byContext[j.Context]
		if !ok {
			pc = &pendingContext{text: j.Context, byText: make(map[string]*pendingQuestion)}
			byContext[j.Context] = pc
			contexts = append(contexts, pc)
		}

		pairs := [][2]string{{j.UserQuestion, j.UserAnswer}}
		if j.QuestionNatural && j.AnswerNatural && (j.AnswerAdequate || j.AnswerPrecise) {
			pairs = append(pairs, [2]string{j.Question, j.Answer})
		} else {
			if !j.QuestionNatural {
				out.Unnatural = append(out.Unnatural, j.Question)
			}
			if !j.AnswerNatural {
				out.Unnatural = append(out.Unnatural, j.Answer)
			}
			if !j.AnswerAdequate && !j.AnswerPrecise {
				out.Incorrect = append(out.Incorrect, IncorrectPair{Question: j.Question, Answer: j.Answer})
			}
		}

		for _, pair := range pairs {
			question, answer := pair[0], pair[1]
			pq, ok := pc.byText[question]
			if !ok {
				pq = &pendingQuestion{text: question, seen: make(map[string]struct{})}
				pc.byText[question] = pq
				pc.questions = append(pc.questions, pq)
			}

			if _, dup := pq.seen[answer]; dup {
				continue
			}
			start, found := runeIndex(j.Context, answer)
			if !found {
				logger.Error("answer not found in context, dropping entry",
					"context", j.Context, "question", question, "answer", answer)
				continue
			}
			pq.seen[answer] = struct{}{}
			pq.answers = append(pq.answers, Answer{Text: answer, AnswerStart: start})
		}
	}

	article := Article{Title: opts.Title, Paragraphs: []Paragraph{}}
	for _, pc := range contexts {
		var qas []QA
		for _, pq := range pc.questions {
			if len(pq.answers) == 0 {
				continue
			}
			qas = append(qas, QA{
				Question:     pq.text,
				Answers:      pq.answers,
				IsImpossible: false,
				ID:           opts.NewID(),
			})
		}
		if len(qas) == 0 {
			continue
		}
		article.Paragraphs = append(article.Paragraphs, Paragraph{QAs: qas, Context: pc.text})
	}

	out.Dataset = Dataset{Data: []Article{article}, Version: SQuADVersion}
	return out
}

// runeIndex returns the character offset of the first occurrence of sub in s.
func runeIndex(s, sub string) (int, bool) {
	i := strings.Index(s, sub)
	if i < 0 {
		return 0, false
	}
	return utf8.RuneCountInString(s[:i]), true
}

// Documents encodes the three artifacts under their document names.
func (o Output) Documents() (profile.Documents, error) {
	docs := make(profile.Documents, 3)
	for name, v := range map[string]any{
		profile.DocDataset:   o.Dataset,
		profile.DocUnnatural: o.Unnatural,
		profile.DocIncorrect: o.Incorrect,
	} {
		b, err := profile.Marshal(v)
		if err != nil {
			return nil, err
		}
		docs[name] = b
	}
	return docs, nil
}
