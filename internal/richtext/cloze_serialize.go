package richtext

import (
	"math"
	"strconv"
	"strings"

	"github.com/mind-engage/mindengage-qbank/internal/processor"
)

// ClozeKind derives the short cloze kind token from an item's shape.
func ClozeKind(it *Item) (string, error) {
	fam := it.Processor.Family()
	if it.Choice {
		if fam != processor.FamilyMapper {
			return "", &FormatError{Token: string(fam), Msg: "choice item needs a mapper processor"}
		}
		switch {
		case it.Multiple && it.Horizontal:
			return "MRH", nil
		case it.Multiple:
			return "MR", nil
		case it.Horizontal:
			return "MCH", nil
		}
		return "MC", nil
	}
	switch fam {
	case processor.FamilyPattern:
		if it.Processor.CaseSensitive() {
			return "SAC", nil
		}
		return "SA", nil
	case processor.FamilyRange:
		return "NUM", nil
	}
	return "", &FormatError{Token: string(fam), Msg: "entry item has no cloze kind"}
}

// SerializeCloze writes an item back as {GRADE:KIND:~OPT~OPT}. GRADE is the
// item weight, or the highest option value when the item has none; options
// keep their original order.
func SerializeCloze(it *Item) (string, error) {
	kind, err := ClozeKind(it)
	if err != nil {
		return "", err
	}
	grade := it.Weight
	if grade <= 0 {
		grade = it.Processor.MaxValue()
	}
	if grade <= 0 {
		grade = 1
	}

	var b strings.Builder
	b.WriteByte('{')
	b.WriteString(formatGrade(grade))
	b.WriteByte(':')
	b.WriteString(kind)
	b.WriteByte(':')
	for _, e := range it.Processor.Values() {
		b.WriteByte('~')
		v := e.Outcome.Value
		switch {
		case v == grade:
			b.WriteByte('=')
		case v == 0:
		default:
			pct := math.Round(v/grade*100*1e4) / 1e4
			b.WriteByte('%')
			b.WriteString(strconv.FormatFloat(pct, 'f', -1, 64))
			b.WriteByte('%')
		}
		if kind == "NUM" {
			b.WriteString(formatNumber(e.Interval.Center()))
			b.WriteByte(':')
			b.WriteString(formatNumber(e.Interval.Tolerance()))
		} else {
			b.WriteString(escapeCloze(e.Key))
		}
		if fb, ok := it.FeedbackFor(e.Outcome); ok {
			b.WriteByte('#')
			b.WriteString(escapeCloze(fb))
		}
	}
	b.WriteByte('}')
	return b.String(), nil
}

func formatGrade(g float64) string {
	if g == math.Trunc(g) && math.Abs(g) < 1e15 {
		return strconv.FormatInt(int64(g), 10)
	}
	return strconv.FormatFloat(g, 'f', -1, 64)
}

// formatNumber rounds to 4 decimals and always keeps a fractional part,
// so 10 prints as "10.0".
func formatNumber(v float64) string {
	v = math.Round(v*1e4) / 1e4
	if v == 0 {
		v = 0 // normalize -0
	}
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}
