package bank

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mind-engage/mindengage-qbank/internal/processor"
	"github.com/mind-engage/mindengage-qbank/internal/richtext"
)

type Type string

const (
	TypeMultiChoice Type = "multichoice"
	TypeTrueFalse   Type = "truefalse"
	TypeShortAnswer Type = "shortanswer"
	TypeNumerical   Type = "numerical"
	TypeEssay       Type = "essay"
	TypeDescription Type = "description"
	TypeCloze       Type = "cloze" // embedded answers in the question text
)

// Answer is one graded option. Fraction is the share of the question's
// points it earns, 0..1 (negative for penalties).
type Answer struct {
	Text      *richtext.Document `json:"-"`
	Fraction  float64            `json:"fraction"`
	Tolerance float64            `json:"tolerance,omitempty"` // numerical only
	Feedback  *richtext.Document `json:"-"`
}

type Question struct {
	ID              string             `json:"id"`
	Name            string             `json:"name"`
	Type            Type               `json:"type"`
	Text            *richtext.Document `json:"-"`
	GeneralFeedback *richtext.Document `json:"-"`
	Points          float64            `json:"points"`
	Answers         []Answer           `json:"-"`
	Single          bool               `json:"single,omitempty"` // multichoice: one answer only
	Shuffle         bool               `json:"shuffle,omitempty"`
	CaseSensitive   bool               `json:"case_sensitive,omitempty"`
	Tags            []string           `json:"tags,omitempty"`
}

type Bank struct {
	Name      string      `json:"name"`
	Category  string      `json:"category,omitempty"`
	Questions []*Question `json:"questions"`
}

// ErrInvalid marks validation failures.
var ErrInvalid = errors.New("invalid question")

// Validate checks type-specific shape.
func (q *Question) Validate() error {
	if q.Text == nil {
		return fmt.Errorf("%w %s: no text", ErrInvalid, q.ID)
	}
	switch q.Type {
	case TypeMultiChoice, TypeShortAnswer, TypeNumerical:
		if len(q.Answers) == 0 {
			return fmt.Errorf("%w %s: %s needs answers", ErrInvalid, q.ID, q.Type)
		}
	case TypeTrueFalse:
		if len(q.Answers) != 2 {
			return fmt.Errorf("%w %s: truefalse needs two answers", ErrInvalid, q.ID)
		}
	case TypeCloze:
		if len(q.Text.Items()) == 0 {
			return fmt.Errorf("%w %s: cloze text has no embedded answers", ErrInvalid, q.ID)
		}
	case TypeEssay, TypeDescription:
	default:
		return fmt.Errorf("%w %s: unknown type %q", ErrInvalid, q.ID, q.Type)
	}
	return nil
}

// Validate checks every question and that IDs are unique.
func (b *Bank) Validate() error {
	seen := map[string]bool{}
	for _, q := range b.Questions {
		if seen[q.ID] {
			return fmt.Errorf("%w: duplicate id %s", ErrInvalid, q.ID)
		}
		seen[q.ID] = true
		if err := q.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Find returns a question by ID.
func (b *Bank) Find(id string) (*Question, bool) {
	for _, q := range b.Questions {
		if q.ID == id {
			return q, true
		}
	}
	return nil, false
}

// QuizTarget resolves a quiz object reference to an anchor in this bank.
// It matches on question ID or name.
func (b *Bank) QuizTarget(id string) (string, bool) {
	for _, q := range b.Questions {
		if q.ID == id || q.Name == id {
			return "#question-" + q.ID, true
		}
	}
	return "", false
}

// Documents lists every document of q (text, feedback, answers).
func (q *Question) Documents() []*richtext.Document {
	docs := []*richtext.Document{q.Text, q.GeneralFeedback}
	for _, a := range q.Answers {
		docs = append(docs, a.Text, a.Feedback)
	}
	out := docs[:0]
	for _, d := range docs {
		if d != nil {
			out = append(out, d)
		}
	}
	return out
}

// FillFiles resolves unresolved attachments in every document of the bank.
func (b *Bank) FillFiles(ctx context.Context, src richtext.Attachments) error {
	for _, q := range b.Questions {
		for _, d := range q.Documents() {
			if err := d.FillFiles(ctx, src); err != nil {
				return fmt.Errorf("question %s: %w", q.ID, err)
			}
		}
	}
	return nil
}

// ClozePoints is the sum of the embedded items' weights.
func ClozePoints(d *richtext.Document) float64 {
	var sum float64
	for _, it := range d.Items() {
		sum += it.Weight
	}
	return sum
}

// AnswerKey is the plain-text form of an answer, used as the grading key.
func AnswerKey(a Answer) string {
	if a.Text == nil {
		return ""
	}
	return strings.TrimSpace(a.Text.String())
}

// NameFrom derives a short question name from its text.
func NameFrom(d *richtext.Document, limit int) string {
	s := strings.Join(strings.Fields(d.String()), " ")
	if r := []rune(s); len(r) > limit {
		s = string(r[:limit]) + "…"
	}
	return s
}

// Processor builds the grading processor for a non-cloze question. Values
// are in points. Essay and description questions get the zero processor.
func (q *Question) Processor() (processor.Processor, error) {
	var fam processor.Family
	switch q.Type {
	case TypeMultiChoice, TypeTrueFalse:
		fam = processor.FamilyMapper
	case TypeShortAnswer:
		fam = processor.FamilyPattern
	case TypeNumerical:
		fam = processor.FamilyRange
	case TypeEssay, TypeDescription:
		return processor.Processor{}, nil
	default:
		return processor.Processor{}, fmt.Errorf("no processor for %s", q.Type)
	}
	entries := make([]processor.Entry, 0, len(q.Answers))
	for i, a := range q.Answers {
		e := processor.Entry{
			Key:     AnswerKey(a),
			Outcome: processor.Outcome{Value: a.Fraction * q.Points, Feedback: processor.NoFeedback},
		}
		if a.Feedback != nil && !a.Feedback.Empty() {
			e.Outcome.Feedback = i
		}
		if fam == processor.FamilyRange {
			c, ok := processor.ParseFloatLoose(e.Key)
			if !ok {
				return processor.Processor{}, fmt.Errorf("%w %s: answer %q is not a number", ErrInvalid, q.ID, e.Key)
			}
			e.Interval = processor.Interval{Lo: c - a.Tolerance, Hi: c + a.Tolerance}
		}
		entries = append(entries, e)
	}
	return processor.New(processor.Config{Family: fam, CaseSensitive: q.CaseSensitive, Values: entries})
}

// Item presents a non-cloze question as one embedded-answer item, so it can
// be written in the cloze dialect.
func (q *Question) Item() (*richtext.Item, error) {
	p, err := q.Processor()
	if err != nil {
		return nil, err
	}
	if p.IsZero() {
		return nil, &richtext.FormatError{Token: string(q.Type), Msg: "question has no embedded-answer form"}
	}
	it := &richtext.Item{
		Weight:    q.Points,
		Choice:    p.Family() == processor.FamilyMapper,
		Multiple:  q.Type == TypeMultiChoice && !q.Single,
		Processor: p,
	}
	for _, a := range q.Answers {
		it.Options = append(it.Options, AnswerKey(a))
		it.Labels = append(it.Labels, a.Text)
		fb := ""
		if a.Feedback != nil {
			fb = a.Feedback.String()
		}
		it.Feedback = append(it.Feedback, fb)
	}
	return it, nil
}
