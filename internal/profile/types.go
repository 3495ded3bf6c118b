package profile

import "time"

// Judgement is one accepted reviewer decision over a suitable question.
// JSON keys follow the profile.json layout produced by earlier versions of the
// tool so existing profiles load unchanged.
type Judgement struct {
	Context  string `json:"Context"`
	Question string `json:"Question"`
	Answer   string `json:"Answer"`

	QuestionNatural bool `json:"Original Question Naturalness"`
	AnswerNatural   bool `json:"Original Answer Naturalness"`
	AnswerAdequate  bool `json:"Original Answer Adequacy"`
	AnswerPrecise   bool `json:"Original Answer Correctness"`

	UserQuestion string `json:"User Query"`
	UserAnswer   string `json:"User Answer"`
}

// Unsuitable maps a context to the questions rejected for it, in rejection order.
type Unsuitable map[string][]string

// Note holds the optional free-text explanations a reviewer left for an item.
// A nil pointer means no note was written.
type Note struct {
	Answer map[string]*string `json:"answer"`
	Note   *string            `json:"note"`
}

// Notes is keyed by context, then by question.
type Notes map[string]map[string]Note

// Timing records elapsed seconds. Examples is keyed by calibration step,
// Questions by queue position.
type Timing struct {
	Examples  map[int]float64 `json:"examples"`
	Questions map[int]float64 `json:"questions"`
}

// Profile is the durable state of one reviewer.
type Profile struct {
	Judgements []Judgement
	Unsuitable Unsuitable
	Notes      Notes
	Timing     Timing
}

// Summary describes a stored reviewer without loading its documents.
type Summary struct {
	ID        string    `json:"id"`
	Complete  bool      `json:"complete"`
	UpdatedAt time.Time `json:"updated_at"`
}
