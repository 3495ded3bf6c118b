package profile

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
)

// Document names. They double as file names in the on-disk profile layout.
const (
	DocJudgements = "profile.json"
	DocDataset    = "profile.squad"
	DocUnsuitable = "unsuitable_questions.json"
	DocUnnatural  = "unnatural_texts.json"
	DocIncorrect  = "incorrect.json"
	DocTiming     = "times.json"
	DocNotes      = "notes.json"
)

// AllDocuments lists every document written on each commit, in write order.
var AllDocuments = []string{
	DocJudgements,
	DocDataset,
	DocUnnatural,
	DocUnsuitable,
	DocIncorrect,
	DocTiming,
	DocNotes,
}

var (
	// ErrNotFound is returned by stores when no profile exists for a reviewer.
	ErrNotFound = errors.New("profile not found")

	// ErrNoDocument is returned when a reviewer exists but the requested
	// document has never been written.
	ErrNoDocument = errors.New("document not found")

	// ErrMissingJudgements is returned by Decode when the mandatory judgement
	// document is absent.
	ErrMissingJudgements = errors.New("profile has no judgement document")
)

// Documents maps a document name to its encoded JSON body.
type Documents map[string][]byte

// New returns an empty profile with all collections allocated.
func New() Profile {
	return Profile{
		Judgements: []Judgement{},
		Unsuitable: Unsuitable{},
		Notes:      Notes{},
		Timing: Timing{
			Examples:  map[int]float64{},
			Questions: map[int]float64{},
		},
	}
}

// Clone returns a deep copy of p.
func Clone(p Profile) Profile {
	cp := New()
	cp.Judgements = append(cp.Judgements, p.Judgements...)
	for ctx, qs := range p.Unsuitable {
		cp.Unsuitable[ctx] = slices.Clone(qs)
	}
	for ctx, byQuestion := range p.Notes {
		inner := make(map[string]Note, len(byQuestion))
		for q, n := range byQuestion {
			inner[q] = Note{Answer: maps.Clone(n.Answer), Note: n.Note}
		}
		cp.Notes[ctx] = inner
	}
	maps.Copy(cp.Timing.Examples, p.Timing.Examples)
	maps.Copy(cp.Timing.Questions, p.Timing.Questions)
	return cp
}

// Decode assembles a Profile from stored documents. The judgement document is
// mandatory; the unsuitable, timing and notes documents are optional and are
// merged over empty defaults. A malformed optional document is logged and
// ignored.
func Decode(docs Documents) (Profile, error) {
	p := New()

	raw, ok := docs[DocJudgements]
	if !ok {
		return Profile{}, ErrMissingJudgements
	}
	if err := json.Unmarshal(raw, &p.Judgements); err != nil {
		return Profile{}, fmt.Errorf("decoding %s: %w", DocJudgements, err)
	}
	if p.Judgements == nil {
		p.Judgements = []Judgement{}
	}

	if u, ok := decodeOptional[Unsuitable](docs, DocUnsuitable); ok {
		p.Unsuitable = u
	}
	if n, ok := decodeOptional[Notes](docs, DocNotes); ok {
		p.Notes = n
	}
	if timing, ok := decodeOptional[Timing](docs, DocTiming); ok {
		maps.Copy(p.Timing.Examples, timing.Examples)
		maps.Copy(p.Timing.Questions, timing.Questions)
	}

	if p.Unsuitable == nil {
		p.Unsuitable = Unsuitable{}
	}
	if p.Notes == nil {
		p.Notes = Notes{}
	}
	return p, nil
}

// decodeOptional unmarshals docs[name], logging a warning if the document is
// present but malformed. The value is only usable when ok is set.
func decodeOptional[T any](docs Documents, name string) (v T, ok bool) {
	raw, present := docs[name]
	if !present || len(bytes.TrimSpace(raw)) == 0 {
		return v, false
	}
	var decoded T
	if err := json.Unmarshal(raw, &decoded); err != nil {
		slog.Warn("malformed profile document, using defaults", "document", name, "error", err)
		return v, false
	}
	return decoded, true
}

// Encode returns the four documents that make up the durable profile.
func Encode(p Profile) (Documents, error) {
	docs := make(Documents, 4)
	for name, v := range map[string]any{
		DocJudgements: p.Judgements,
		DocUnsuitable: p.Unsuitable,
		DocTiming:     p.Timing,
		DocNotes:      p.Notes,
	} {
		b, err := Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encoding %s: %w", name, err)
		}
		docs[name] = b
	}
	return docs, nil
}

// Marshal encodes v as indented JSON without HTML escaping.
func Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
