package richtext

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"

	"github.com/mind-engage/mindengage-qbank/internal/processor"
)

// placeholderPattern matches {GRADE:KIND:OPTIONS}. The option list stops at
// the first closing brace not preceded by a backslash.
var placeholderPattern = regexp.MustCompile(`(?s)\{([0-9]*(?:\.[0-9]+)?):([A-Za-z_]+):((?:\\.|[^\\}])*)\}`)

var partialPrefix = regexp.MustCompile(`^%(-?[0-9]+(?:\.[0-9]+)?)%`)

type clozeShape struct {
	short      string
	family     processor.Family
	choice     bool
	multiple   bool
	horizontal bool
	caseSens   bool
}

var clozeKinds = map[string]clozeShape{
	"MC":  {short: "MC", family: processor.FamilyMapper, choice: true},
	"MCH": {short: "MCH", family: processor.FamilyMapper, choice: true, horizontal: true},
	"MR":  {short: "MR", family: processor.FamilyMapper, choice: true, multiple: true},
	"MRH": {short: "MRH", family: processor.FamilyMapper, choice: true, multiple: true, horizontal: true},
	"SA":  {short: "SA", family: processor.FamilyPattern},
	"SAC": {short: "SAC", family: processor.FamilyPattern, caseSens: true},
	"NUM": {short: "NUM", family: processor.FamilyRange},
}

// long names written by some exporters
var clozeAliases = map[string]string{
	"MULTICHOICE":     "MC",
	"MULTICHOICE_V":   "MC",
	"MULTICHOICE_H":   "MCH",
	"MULTIRESPONSE":   "MR",
	"MULTIRESPONSE_H": "MRH",
	"SHORTANSWER":     "SA",
	"SHORTANSWER_C":   "SAC",
	"NUMERICAL":       "NUM",
}

func lookupKind(tok string) (clozeShape, bool) {
	if s, ok := clozeKinds[tok]; ok {
		return s, true
	}
	if short, ok := clozeAliases[strings.ToUpper(tok)]; ok {
		return clozeKinds[short], true
	}
	return clozeShape{}, false
}

// ClozeOption configures ParseCloze.
type ClozeOption func(*clozeConfig)

type clozeConfig struct {
	markup     bool
	markupOpts []MarkupOption
}

// WithMarkup parses the text between placeholders as markup, so items can
// sit inside elements (<p>Pick {1:MC:..}</p>).
func WithMarkup(opts ...MarkupOption) ClozeOption {
	return func(c *clozeConfig) {
		c.markup = true
		c.markupOpts = opts
	}
}

// ParseCloze extracts embedded-answer placeholders from cloze text. The
// parse is all-or-nothing: an unknown kind fails with *FormatError and no
// document is returned.
func ParseCloze(text string, opts ...ClozeOption) (*Document, error) {
	var cfg clozeConfig
	for _, o := range opts {
		o(&cfg)
	}

	type piece struct {
		text string
		item *Item
	}
	var pieces []piece
	last := 0
	for _, m := range placeholderPattern.FindAllStringSubmatchIndex(text, -1) {
		it, err := parsePlaceholder(text[m[2]:m[3]], text[m[4]:m[5]], text[m[6]:m[7]])
		if err != nil {
			return nil, err
		}
		pieces = append(pieces, piece{text: text[last:m[0]]}, piece{item: it})
		last = m[1]
	}
	pieces = append(pieces, piece{text: text[last:]})

	doc := New()
	if !cfg.markup {
		for _, p := range pieces {
			switch {
			case p.item != nil:
				doc.Segments = append(doc.Segments, ItemSegment(p.item))
			case p.text != "":
				doc.Segments = append(doc.Segments, Literal(p.text))
			}
		}
		return doc, nil
	}

	b := newBuilder(doc, cfg.markupOpts...)
	for _, p := range pieces {
		if p.item != nil {
			b.insert(ItemSegment(p.item))
			continue
		}
		if err := b.feed(p.text); err != nil {
			return nil, err
		}
	}
	b.finish()
	return doc, nil
}

// AddCloze parses text and appends it to d. d is unchanged on error.
func (d *Document) AddCloze(text string, opts ...ClozeOption) error {
	part, err := ParseCloze(text, opts...)
	if err != nil {
		return err
	}
	d.Add(part)
	return nil
}

func parsePlaceholder(gradeTok, kindTok, list string) (*Item, error) {
	shape, ok := lookupKind(kindTok)
	if !ok {
		return nil, &FormatError{Token: kindTok, Msg: "unknown cloze kind"}
	}
	grade := 1.0
	if gradeTok != "" {
		g, err := strconv.ParseFloat(gradeTok, 64)
		if err != nil || g < 0 {
			return nil, &FormatError{Token: gradeTok, Msg: "bad cloze grade"}
		}
		grade = g
	}

	it := &Item{
		Weight:     grade,
		Choice:     shape.choice,
		Multiple:   shape.multiple,
		Horizontal: shape.horizontal,
	}
	var entries []processor.Entry
	for _, opt := range splitUnescaped(list, '~') {
		if opt == "" {
			continue
		}
		head, fb, hasFB := cutUnescaped(opt, '#')
		value, key := classifyPrefix(head, grade)

		out := processor.Outcome{Value: value, Feedback: processor.NoFeedback}
		if hasFB {
			it.Feedback = append(it.Feedback, unescapeCloze(fb))
			out.Feedback = len(it.Feedback) - 1
		}

		e := processor.Entry{Outcome: out}
		if shape.family == processor.FamilyRange {
			iv, err := parseNumericKey(key)
			if err != nil {
				return nil, err
			}
			e.Interval = iv
		} else {
			e.Key = unescapeCloze(key)
		}
		label, _ := ParsePlain(unescapeCloze(key))
		it.Options = append(it.Options, unescapeCloze(key))
		it.Labels = append(it.Labels, label)
		entries = append(entries, e)
	}

	p, err := processor.New(processor.Config{
		Family:        shape.family,
		CaseSensitive: shape.caseSens,
		Values:        entries,
	})
	if err != nil {
		return nil, &FormatError{Token: list, Msg: err.Error()}
	}
	it.Processor = p
	return it, nil
}

// classifyPrefix reads the grade marker of one option. Anything that is not
// "=" or "%N%" is a zero-grade option.
func classifyPrefix(head string, grade float64) (float64, string) {
	if strings.HasPrefix(head, "=") {
		return grade, head[1:]
	}
	if m := partialPrefix.FindStringSubmatch(head); m != nil {
		n, err := strconv.ParseFloat(m[1], 64)
		if err == nil {
			return grade * n / 100, head[len(m[0]):]
		}
	}
	return 0, head
}

// numericKey is CENTER or CENTER:TOLERANCE.
//
//nolint:govet // participle grammar tags are not standard struct tags
type numericKey struct {
	Center    float64  `@Number`
	Tolerance *float64 `( ":" @Number )?`
}

var numericLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Number", Pattern: `[-+]?([0-9]+\.?[0-9]*|\.[0-9]+)([eE][-+]?[0-9]+)?`},
	{Name: "Colon", Pattern: `:`},
	{Name: "Whitespace", Pattern: `\s+`},
})

var numericParser = participle.MustBuild[numericKey](
	participle.Lexer(numericLexer),
	participle.Elide("Whitespace"),
)

func parseNumericKey(key string) (processor.Interval, error) {
	k, err := numericParser.ParseString("", strings.TrimSpace(key))
	if err != nil {
		return processor.Interval{}, &FormatError{Token: key, Msg: "numeric answer must be CENTER:TOLERANCE"}
	}
	tol := 0.0
	if k.Tolerance != nil {
		tol = *k.Tolerance
		if tol < 0 {
			tol = -tol
		}
	}
	return processor.Interval{Lo: k.Center - tol, Hi: k.Center + tol}, nil
}

// splitUnescaped splits on sep where it is not preceded by a backslash.
// Escapes are kept in the parts.
func splitUnescaped(s string, sep byte) []string {
	var parts []string
	start := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\\':
			i++
		case sep:
			parts = append(parts, s[start:i])
			start = i + 1
		}
	}
	return append(parts, s[start:])
}

func cutUnescaped(s string, sep byte) (before, after string, found bool) {
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\\':
			i++
		case sep:
			return s[:i], s[i+1:], true
		}
	}
	return s, "", false
}

const clozeSpecial = "{}~#\\"

func unescapeCloze(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) && strings.IndexByte(clozeSpecial, s[i+1]) >= 0 {
			b.WriteByte(s[i+1])
			i++
			continue
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

// escapeCloze is the inverse of unescapeCloze. A backslash is doubled only
// where it would otherwise be read as an escape.
func escapeCloze(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '\\':
			if i+1 == len(s) || strings.IndexByte(clozeSpecial, s[i+1]) >= 0 {
				b.WriteString(`\\`)
			} else {
				b.WriteByte(c)
			}
		case strings.IndexByte("{}~#", c) >= 0:
			b.WriteByte('\\')
			b.WriteByte(c)
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}
