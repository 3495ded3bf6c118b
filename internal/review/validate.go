package review

import (
	"fmt"
	"strings"
)

// Violation codes.
const (
	CodeBlankQuestion              = "blank_question"
	CodeBlankAnswer                = "blank_answer"
	CodeQuestionModifiedButNatural = "question_modified_but_natural"
	CodeQuestionUnnaturalUnchanged = "question_unnatural_unmodified"
	CodeAnswerNotInDocument        = "answer_not_in_document"
	CodePreciseImpliesAdequate     = "precise_implies_adequate"
	CodeAnswerModifiedButPerfect   = "answer_modified_but_perfect"
	CodeAnswerUnnaturalUnchanged   = "answer_unnatural_unmodified"
	CodeAnswerIncorrectUnchanged   = "answer_incorrect_unmodified"
)

// Fields a violation can be attached to.
const (
	FieldQuestion = "question"
	FieldAnswer   = "answer"
)

// Violation is a single rule failure reported back to the reviewer.
type Violation struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (v Violation) Error() string { return v.Message }

// Candidate is a suitable-question judgement as collected from the reviewer,
// alongside the original item it judges.
type Candidate struct {
	Item Item

	QuestionNatural bool
	AnswerNatural   bool
	AnswerAdequate  bool
	AnswerPrecise   bool

	UserQuestion string
	UserAnswer   string
}

// Validate checks a candidate against every cross-field rule and returns all
// violations found. An empty result means the candidate is acceptable.
func Validate(c Candidate) []Violation {
	var out []Violation
	add := func(field, code, format string, args ...any) {
		out = append(out, Violation{Field: field, Code: code, Message: fmt.Sprintf(format, args...)})
	}

	question := strings.TrimSpace(c.UserQuestion)
	answer := strings.TrimSpace(c.UserAnswer)
	questionEdited := question != strings.TrimSpace(c.Item.Question)
	answerEdited := answer != strings.TrimSpace(c.Item.Answer)

	if question == "" {
		add(FieldQuestion, CodeBlankQuestion, "Blank question: the question cannot be empty.")
	}
	if answer == "" {
		add(FieldAnswer, CodeBlankAnswer, "Blank answer: the answer cannot be empty.")
	}

	switch {
	case questionEdited && c.QuestionNatural:
		add(FieldQuestion, CodeQuestionModifiedButNatural,
			"The question is marked as reading naturally but has been modified. Only questions that do not read naturally should be modified.")
	case !questionEdited && !c.QuestionNatural:
		add(FieldQuestion, CodeQuestionUnnaturalUnchanged,
			"The question is marked as not reading naturally but has not been modified. Please modify it to read naturally.")
	}

	if !strings.Contains(c.Item.Context, answer) {
		add(FieldAnswer, CodeAnswerNotInDocument,
			"The answer %q does not appear in the document. Provide an answer that does (case-sensitive), or mark the question as unsuitable.", answer)
	}

	if c.AnswerPrecise && !c.AnswerAdequate {
		add(FieldAnswer, CodePreciseImpliesAdequate,
			"Precise implies adequate: a precise and correct answer must also be marked adequate.")
	}

	if answerEdited {
		if c.AnswerPrecise && c.AnswerNatural {
			add(FieldAnswer, CodeAnswerModifiedButPerfect,
				"The answer is marked as precise and reading naturally but has been modified. Only answers with problems should be modified.")
		}
	} else {
		if !c.AnswerNatural {
			add(FieldAnswer, CodeAnswerUnnaturalUnchanged,
				"The answer is marked as not reading naturally but has not been modified. Please modify it to read naturally.")
		}
		if !c.AnswerAdequate && !c.AnswerPrecise {
			add(FieldAnswer, CodeAnswerIncorrectUnchanged,
				"The answer is marked as incorrect but has not been modified. Please modify it to be correct.")
		}
	}

	return out
}
