package review

import (
	"strings"
	"testing"
)

// perfect returns a candidate that passes every rule.
func perfect() Candidate {
	return Candidate{
		Item:            Item{Context: "The cat sat on the mat.", Question: "Where did the cat sit?", Answer: "on the mat"},
		QuestionNatural: true,
		AnswerNatural:   true,
		AnswerAdequate:  true,
		AnswerPrecise:   true,
		UserQuestion:    "Where did the cat sit?",
		UserAnswer:      "on the mat",
	}
}

func codes(vs []Violation) []string {
	out := make([]string, len(vs))
	for i, v := range vs {
		out[i] = v.Code
	}
	return out
}

func hasCode(vs []Violation, code string) bool {
	for _, v := range vs {
		if v.Code == code {
			return true
		}
	}
	return false
}

func TestValidateAcceptsConsistentCandidate(t *testing.T) {
	if vs := Validate(perfect()); len(vs) != 0 {
		t.Errorf("Validate() = %v, want no violations", codes(vs))
	}
}

func TestValidateIgnoresSurroundingWhitespace(t *testing.T) {
	c := perfect()
	c.UserQuestion = "  Where did the cat sit?\n"
	c.UserAnswer = "on the mat "
	if vs := Validate(c); len(vs) != 0 {
		t.Errorf("Validate() = %v, want no violations", codes(vs))
	}
}

func TestValidateBlankQuestion(t *testing.T) {
	variants := []Candidate{
		{Item: Item{Context: "X", Question: "Q", Answer: "X"}, UserQuestion: "   ", UserAnswer: "X"},
		{Item: Item{Context: "X", Question: "Q", Answer: "X"}, UserQuestion: "", QuestionNatural: true},
		{Item: Item{Context: "X", Question: "Q", Answer: "X"}, UserQuestion: "\t", AnswerPrecise: true, AnswerAdequate: true, AnswerNatural: true, UserAnswer: "X"},
	}
	for i, c := range variants {
		vs := Validate(c)
		found := false
		for _, v := range vs {
			if v.Code == CodeBlankQuestion && v.Field == FieldQuestion &&
				strings.Contains(strings.ToLower(v.Message), "blank question") {
				found = true
			}
		}
		if !found {
			t.Errorf("variant %d: no blank question violation in %v", i, codes(vs))
		}
	}
}

func TestValidateBlankAnswer(t *testing.T) {
	c := perfect()
	c.UserAnswer = "  "
	vs := Validate(c)
	if !hasCode(vs, CodeBlankAnswer) {
		t.Errorf("Validate() = %v, want %s", codes(vs), CodeBlankAnswer)
	}
}

func TestValidatePreciseImpliesAdequate(t *testing.T) {
	c := perfect()
	c.AnswerAdequate = false
	vs := Validate(c)
	if len(vs) != 1 {
		t.Fatalf("Validate() = %v, want exactly one violation", codes(vs))
	}
	if vs[0].Code != CodePreciseImpliesAdequate {
		t.Errorf("code = %s, want %s", vs[0].Code, CodePreciseImpliesAdequate)
	}
	if !strings.Contains(strings.ToLower(vs[0].Message), "precise implies adequate") {
		t.Errorf("message %q does not mention precise implies adequate", vs[0].Message)
	}
}

func TestValidateAnswerNotInDocument(t *testing.T) {
	c := Candidate{
		Item:            Item{Context: "The cat sat.", Question: "Who sat?", Answer: "The cat"},
		QuestionNatural: true,
		AnswerNatural:   true,
		AnswerAdequate:  true,
		UserQuestion:    "Who sat?",
		UserAnswer:      "dog",
	}
	vs := Validate(c)
	var msg string
	for _, v := range vs {
		if v.Code == CodeAnswerNotInDocument {
			msg = v.Message
		}
	}
	if msg == "" {
		t.Fatalf("Validate() = %v, want %s", codes(vs), CodeAnswerNotInDocument)
	}
	if !strings.Contains(msg, "does not appear in the document") || !strings.Contains(msg, `"dog"`) {
		t.Errorf("message = %q", msg)
	}
}

func TestValidateAnswerCaseSensitive(t *testing.T) {
	c := perfect()
	c.UserAnswer = "On the mat"
	c.AnswerNatural = false
	if !hasCode(Validate(c), CodeAnswerNotInDocument) {
		t.Error("case-differing answer was accepted as a substring")
	}
}

func TestValidateQuestionRules(t *testing.T) {
	edited := perfect()
	edited.UserQuestion = "Where was the cat sitting?"
	if vs := Validate(edited); !hasCode(vs, CodeQuestionModifiedButNatural) {
		t.Errorf("edited+natural: %v", codes(vs))
	}

	unchanged := perfect()
	unchanged.QuestionNatural = false
	if vs := Validate(unchanged); !hasCode(vs, CodeQuestionUnnaturalUnchanged) {
		t.Errorf("unchanged+unnatural: %v", codes(vs))
	}

	fixed := perfect()
	fixed.QuestionNatural = false
	fixed.UserQuestion = "Where was the cat sitting?"
	if vs := Validate(fixed); len(vs) != 0 {
		t.Errorf("edited+unnatural: %v, want none", codes(vs))
	}
}

func TestValidateAnswerRules(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Candidate)
		want    []string
		wantNot []string
	}{
		{
			name: "edited but marked perfect",
			mutate: func(c *Candidate) {
				c.UserAnswer = "the mat"
			},
			want: []string{CodeAnswerModifiedButPerfect},
		},
		{
			name: "edited and imprecise",
			mutate: func(c *Candidate) {
				c.UserAnswer = "the mat"
				c.AnswerPrecise = false
			},
			wantNot: []string{CodeAnswerModifiedButPerfect},
		},
		{
			name: "unchanged and unnatural",
			mutate: func(c *Candidate) {
				c.AnswerNatural = false
			},
			want: []string{CodeAnswerUnnaturalUnchanged},
		},
		{
			name: "unchanged and incorrect",
			mutate: func(c *Candidate) {
				c.AnswerAdequate = false
				c.AnswerPrecise = false
			},
			want: []string{CodeAnswerIncorrectUnchanged},
		},
		{
			name: "unchanged, unnatural and incorrect",
			mutate: func(c *Candidate) {
				c.AnswerNatural = false
				c.AnswerAdequate = false
				c.AnswerPrecise = false
			},
			want: []string{CodeAnswerUnnaturalUnchanged, CodeAnswerIncorrectUnchanged},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := perfect()
			tt.mutate(&c)
			vs := Validate(c)
			for _, code := range tt.want {
				if !hasCode(vs, code) {
					t.Errorf("missing %s in %v", code, codes(vs))
				}
			}
			for _, code := range tt.wantNot {
				if hasCode(vs, code) {
					t.Errorf("unexpected %s in %v", code, codes(vs))
				}
			}
		})
	}
}

func TestValidateReportsEveryViolation(t *testing.T) {
	c := Candidate{
		Item:          Item{Context: "The cat sat.", Question: "Who sat?", Answer: "The cat"},
		AnswerPrecise: true,
		UserQuestion:  " ",
		UserAnswer:    "",
	}
	vs := Validate(c)
	for _, code := range []string{CodeBlankQuestion, CodeBlankAnswer, CodePreciseImpliesAdequate} {
		if !hasCode(vs, code) {
			t.Errorf("missing %s in %v", code, codes(vs))
		}
	}
}
