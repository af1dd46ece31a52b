package grading

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/mind-engage/mindengage-qbank/internal/bank"
	"github.com/mind-engage/mindengage-qbank/internal/processor"
	"github.com/mind-engage/mindengage-qbank/internal/richtext"
)

// Result is the outcome of grading a single question response.
type Result struct {
	AutoPoints  float64      `json:"auto_points"`  // points awarded automatically
	MaxPoints   float64      `json:"max_points"`   // the question's max points
	NeedsManual bool         `json:"needs_manual"` // true if a human must review
	Feedback    []string     `json:"feedback,omitempty"`
	Items       []ItemResult `json:"items,omitempty"` // cloze questions only
}

// ItemResult grades one embedded answer. Points are in item grade units.
type ItemResult struct {
	Index     int     `json:"index"`
	Points    float64 `json:"points"`
	MaxPoints float64 `json:"max_points"`
	Feedback  string  `json:"feedback,omitempty"`
}

// Strategy grades a single question.
type Strategy interface {
	Grade(ctx context.Context, q *bank.Question, response any) (Result, error)
}

// Grader routes by question type to the correct Strategy.
type Grader interface {
	Grade(ctx context.Context, q *bank.Question, response any) (Result, error)
}

// ErrResponse marks a response of the wrong shape for its question.
var ErrResponse = errors.New("bad response")

type defaultGrader struct {
	strategies map[bank.Type]Strategy
}

func (g *defaultGrader) Grade(ctx context.Context, q *bank.Question, response any) (Result, error) {
	s, ok := g.strategies[q.Type]
	if !ok {
		return Result{MaxPoints: q.Points, NeedsManual: true, Feedback: []string{"no strategy available"}}, nil
	}
	return s.Grade(ctx, q, response)
}

// Engine options

type Option func(*config)

type config struct {
	MaxEditDistance   int     // near misses on short answers
	AllowPartialMulti bool    // partial credit for multi-select choices
	RelativeTolerance float64 // numeric fallback, fraction of the answer
}

func WithMaxEditDistance(n int) Option        { return func(c *config) { c.MaxEditDistance = n } }
func WithPartialMulti(b bool) Option          { return func(c *config) { c.AllowPartialMulti = b } }
func WithRelativeTolerance(r float64) Option { return func(c *config) { c.RelativeTolerance = r } }

// NewDefaultGrader installs built-in strategies.
func NewDefaultGrader(opts ...Option) Grader {
	cfg := &config{
		MaxEditDistance:   1,
		AllowPartialMulti: true,
	}
	for _, o := range opts {
		o(cfg)
	}
	choice := choiceStrategy{allowPartial: cfg.AllowPartialMulti}
	return &defaultGrader{
		strategies: map[bank.Type]Strategy{
			bank.TypeMultiChoice: choice,
			bank.TypeTrueFalse:   choice,
			bank.TypeShortAnswer: shortAnswerStrategy{maxEdit: cfg.MaxEditDistance},
			bank.TypeNumerical:   numericStrategy{relTol: cfg.RelativeTolerance},
			bank.TypeEssay:       essayStrategy{},
			bank.TypeDescription: descriptionStrategy{},
			bank.TypeCloze:       clozeStrategy{allowPartial: cfg.AllowPartialMulti},
		},
	}
}

// --- Strategies ---

// choiceStrategy grades by answer text. Multi-select responses sum the
// mapped values of every picked option.
type choiceStrategy struct{ allowPartial bool }

func (s choiceStrategy) Grade(_ context.Context, q *bank.Question, response any) (Result, error) {
	res := Result{MaxPoints: q.Points}
	p, err := q.Processor()
	if err != nil {
		return res, err
	}
	if q.Single || q.Type == bank.TypeTrueFalse {
		resp, ok := response.(string)
		if !ok {
			return res, fmt.Errorf("%w: want string", ErrResponse)
		}
		o := p.Eval(strings.TrimSpace(resp))
		res.AutoPoints = clamp(o.Value, 0, q.Points)
		res.Feedback = appendFeedback(res.Feedback, q, o)
		return res, nil
	}
	picks, ok := toStringSlice(response)
	if !ok {
		return res, fmt.Errorf("%w: want []string", ErrResponse)
	}
	total, fb := sumPicks(p, picks, func(o processor.Outcome) { res.Feedback = appendFeedback(res.Feedback, q, o) })
	res.Feedback = append(res.Feedback, fb...)
	res.AutoPoints = multiScore(total, q.Points, s.allowPartial)
	return res, nil
}

type shortAnswerStrategy struct{ maxEdit int }

func (s shortAnswerStrategy) Grade(_ context.Context, q *bank.Question, response any) (Result, error) {
	res := Result{MaxPoints: q.Points}
	resp, ok := response.(string)
	if !ok {
		return res, fmt.Errorf("%w: want string", ErrResponse)
	}
	p, err := q.Processor()
	if err != nil {
		return res, err
	}
	o := p.Eval(resp)
	if o.Value != 0 || o.Feedback != processor.NoFeedback {
		res.AutoPoints = clamp(o.Value, 0, q.Points)
		res.Feedback = appendFeedback(res.Feedback, q, o)
		return res, nil
	}
	if s.maxEdit > 0 {
		normResp := normalize(resp)
		for _, a := range q.Answers {
			if a.Fraction < 1 || strings.Contains(bank.AnswerKey(a), "*") {
				continue
			}
			if withinEdits(normalize(bank.AnswerKey(a)), normResp, s.maxEdit) {
				res.AutoPoints = q.Points * 0.5
				res.Feedback = append(res.Feedback, "close match (fuzzy)")
				break
			}
		}
	}
	return res, nil
}

type essayStrategy struct{}

// Grade scores rubric marks when they are supplied; free text is left for
// a human grader.
func (essayStrategy) Grade(_ context.Context, q *bank.Question, response any) (Result, error) {
	if m, ok := response.(Marks); ok {
		total, notes := ScoreRubric(m.Rubric, m.Awarded)
		return Result{AutoPoints: clamp(total, 0, q.Points), MaxPoints: q.Points, Feedback: notes}, nil
	}
	return Result{MaxPoints: q.Points, NeedsManual: true, Feedback: []string{"manual grading required"}}, nil
}

type descriptionStrategy struct{}

func (descriptionStrategy) Grade(context.Context, *bank.Question, any) (Result, error) {
	return Result{}, nil
}

// clozeStrategy grades each embedded answer with its own processor and
// scales the item total to the question's points.
type clozeStrategy struct{ allowPartial bool }

func (s clozeStrategy) Grade(_ context.Context, q *bank.Question, response any) (Result, error) {
	res := Result{MaxPoints: q.Points}
	items := q.Text.Items()
	resp, ok := response.([]any)
	if !ok {
		if ss, isStrings := response.([]string); isStrings {
			resp, ok = make([]any, len(ss)), true
			for i, v := range ss {
				resp[i] = v
			}
		}
	}
	if !ok {
		return res, fmt.Errorf("%w: want one response per embedded answer", ErrResponse)
	}
	if len(resp) > len(items) {
		return res, fmt.Errorf("%w: %d responses for %d embedded answers", ErrResponse, len(resp), len(items))
	}

	var got, possible float64
	for i, it := range items {
		ir := ItemResult{Index: i, MaxPoints: it.Weight}
		if i < len(resp) && resp[i] != nil {
			ir.Points, ir.Feedback = gradeItem(it, resp[i], s.allowPartial)
		}
		got += ir.Points
		possible += ir.MaxPoints
		res.Items = append(res.Items, ir)
	}
	if possible > 0 {
		res.AutoPoints = q.Points * got / possible
	}
	return res, nil
}

func gradeItem(it *richtext.Item, response any, allowPartial bool) (float64, string) {
	if it.Choice && it.Multiple {
		picks, ok := toStringSlice(response)
		if !ok {
			return 0, ""
		}
		var fbs []string
		total, _ := sumPicks(it.Processor, picks, func(o processor.Outcome) {
			if fb, ok := it.FeedbackFor(o); ok && fb != "" {
				fbs = append(fbs, fb)
			}
		})
		return multiScore(total, it.Weight, allowPartial), strings.Join(fbs, "; ")
	}
	if s, ok := response.(string); ok {
		response = strings.TrimSpace(s)
	}
	o := it.Processor.Eval(response)
	fb, _ := it.FeedbackFor(o)
	return clamp(o.Value, 0, it.Weight), fb
}

// helpers

// sumPicks adds the values of distinct picks; an unknown pick counts as a
// wrong option.
func sumPicks(p processor.Processor, picks []string, each func(processor.Outcome)) (float64, []string) {
	seen := map[string]bool{}
	total := 0.0
	var notes []string
	for _, pick := range picks {
		pick = strings.TrimSpace(pick)
		if seen[pick] {
			continue
		}
		seen[pick] = true
		o := p.Eval(pick)
		total += o.Value
		each(o)
	}
	if len(seen) == 0 {
		notes = append(notes, "no option selected")
	}
	return total, notes
}

func multiScore(total, full float64, allowPartial bool) float64 {
	if !allowPartial && math.Abs(total-full) > 1e-9 {
		return 0
	}
	return clamp(total, 0, full)
}

func appendFeedback(fb []string, q *bank.Question, o processor.Outcome) []string {
	if o.Feedback < 0 || o.Feedback >= len(q.Answers) {
		return fb
	}
	if d := q.Answers[o.Feedback].Feedback; d != nil && !d.Empty() {
		fb = append(fb, strings.TrimSpace(d.String()))
	}
	return fb
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(v, hi))
}

func toStringSlice(v any) ([]string, bool) {
	switch t := v.(type) {
	case []string:
		return t, true
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out, true
	case string:
		return []string{t}, true
	default:
		return nil, false
	}
}
