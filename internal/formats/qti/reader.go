package qti

import (
	"bytes"
	"context"
	"fmt"
	"html"
	"io"
	"path"
	"strconv"
	"strings"

	"github.com/antchfx/xmlquery"

	"github.com/mind-engage/mindengage-qbank/internal/bank"
	"github.com/mind-engage/mindengage-qbank/internal/formats"
	"github.com/mind-engage/mindengage-qbank/internal/processor"
	"github.com/mind-engage/mindengage-qbank/internal/richtext"
)

func (a *Adapter) Import(ctx context.Context, r io.Reader, opt formats.Options) (*bank.Bank, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	p, err := openPackage(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}
	hrefs, err := p.items()
	if err != nil {
		return nil, err
	}
	b := &bank.Bank{Name: "qti import"}
	for _, href := range hrefs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		q, err := readItem(ctx, p, href, opt)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", href, err)
		}
		b.Questions = append(b.Questions, q)
	}
	return formats.Finish(ctx, b, opt)
}

var interactionNames = map[string]bool{
	"choiceInteraction":       true,
	"inlineChoiceInteraction": true,
	"textEntryInteraction":    true,
	"extendedTextInteraction": true,
}

type parsedDecl struct {
	cardinality string
	baseType    string
	correct     []string
	mapping     []mapEntry
}

func readItem(ctx context.Context, p *pkg, href string, opt formats.Options) (*bank.Question, error) {
	raw, err := p.read(href)
	if err != nil {
		return nil, err
	}
	root, err := xmlquery.Parse(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	item := xmlquery.FindOne(root, "//*[local-name()='assessmentItem']")
	if item == nil {
		return nil, fmt.Errorf("no assessmentItem")
	}
	q := &bank.Question{
		ID:     item.SelectAttr("identifier"),
		Name:   item.SelectAttr("title"),
		Points: 1,
	}
	decls := map[string]parsedDecl{}
	for _, n := range xmlquery.Find(item, "*[local-name()='responseDeclaration']") {
		decls[n.SelectAttr("identifier")] = readDecl(n)
	}
	hasMax := false
	if n := xmlquery.FindOne(item, "*[local-name()='outcomeDeclaration'][@identifier='SCORE']"); n != nil {
		if v, err := strconv.ParseFloat(n.SelectAttr("normalMaximum"), 64); err == nil {
			q.Points, hasMax = v, true
		}
	}

	body := xmlquery.FindOne(item, "*[local-name()='itemBody']")
	if body == nil {
		return nil, fmt.Errorf("no itemBody")
	}
	var inters []*xmlquery.Node
	walkElements(body, func(n *xmlquery.Node) bool {
		if interactionNames[n.Data] {
			inters = append(inters, n)
			return false
		}
		return true
	})

	attachments := dirAttachments{p: p, dir: path.Dir(href)}
	cloze := len(inters) > 1
	for _, n := range inters {
		if n.Data == "inlineChoiceInteraction" || n.SelectAttr("responseIdentifier") != "RESPONSE" {
			cloze = true
		}
	}

	if cloze {
		placeholders := map[*xmlquery.Node]string{}
		for _, n := range inters {
			it, err := interactionItem(n, decls[n.SelectAttr("responseIdentifier")])
			if err != nil {
				return nil, err
			}
			s, err := richtext.SerializeCloze(it)
			if err != nil {
				return nil, err
			}
			placeholders[n] = s
		}
		src := innerXML(body, func(n *xmlquery.Node) (string, bool) {
			s, ok := placeholders[n]
			return s, ok
		})
		if q.Text, err = richtext.ParseCloze(strings.TrimSpace(src), richtext.WithMarkup(opt.MarkupOptions()...)); err != nil {
			return nil, err
		}
		q.Type = bank.TypeCloze
		if !hasMax {
			q.Points = bank.ClozePoints(q.Text)
		}
	} else {
		skip := func(n *xmlquery.Node) (string, bool) { return "", interactionNames[n.Data] }
		if q.Text, err = parseMarkup(innerXML(body, skip), opt); err != nil {
			return nil, err
		}
		var inter *xmlquery.Node
		if len(inters) == 1 {
			inter = inters[0]
		}
		if err := readInteraction(q, inter, decls["RESPONSE"], hasMax, opt); err != nil {
			return nil, err
		}
	}

	if n := xmlquery.FindOne(item, "*[local-name()='modalFeedback'][@identifier='GENERAL']"); n != nil {
		if q.GeneralFeedback, err = parseMarkup(innerXML(n, nil), opt); err != nil {
			return nil, err
		}
	}
	for _, d := range q.Documents() {
		if err := d.FillFiles(ctx, attachments); err != nil {
			return nil, err
		}
	}
	return q, nil
}

func readDecl(n *xmlquery.Node) parsedDecl {
	d := parsedDecl{cardinality: n.SelectAttr("cardinality"), baseType: n.SelectAttr("baseType")}
	for _, v := range xmlquery.Find(n, "*[local-name()='correctResponse']/*[local-name()='value']") {
		d.correct = append(d.correct, strings.TrimSpace(v.InnerText()))
	}
	for _, e := range xmlquery.Find(n, ".//*[local-name()='mapEntry']") {
		v, _ := strconv.ParseFloat(e.SelectAttr("mappedValue"), 64)
		me := mapEntry{key: e.SelectAttr("mapKey"), value: v}
		if s := attrLocal(e, "tolerance"); s != "" {
			if t, err := strconv.ParseFloat(s, 64); err == nil {
				me.tolerance = &t
			}
		}
		if s := e.SelectAttr("caseSensitive"); s != "" {
			cs := s == "true"
			me.caseSens = &cs
		}
		d.mapping = append(d.mapping, me)
	}
	return d
}

// readInteraction fills type and answers of a single-interaction item.
func readInteraction(q *bank.Question, n *xmlquery.Node, d parsedDecl, hasMax bool, opt formats.Options) error {
	if n == nil {
		q.Type, q.Points = bank.TypeDescription, 0
		return nil
	}
	switch n.Data {
	case "extendedTextInteraction":
		q.Type = bank.TypeEssay
	case "choiceInteraction":
		q.Type = bank.TypeMultiChoice
		q.Single = n.SelectAttr("maxChoices") == "1" || d.cardinality == "single"
		q.Shuffle = n.SelectAttr("shuffle") == "true"
		values, sum, best := mappedValues(d)
		if !hasMax && len(d.mapping) > 0 {
			q.Points = best
			if !q.Single {
				q.Points = sum
			}
		}
		correct := toSet(d.correct)
		var labels []string
		for _, c := range xmlquery.Find(n, "*[local-name()='simpleChoice']") {
			id := c.SelectAttr("identifier")
			text, err := parseMarkup(innerXML(c, nil), opt)
			if err != nil {
				return err
			}
			ans := bank.Answer{Text: text}
			switch {
			case len(d.mapping) > 0 && q.Points != 0:
				ans.Fraction = values[id] / q.Points
			case correct[id] && q.Single:
				ans.Fraction = 1
			case correct[id]:
				ans.Fraction = 1 / float64(len(correct))
			}
			q.Answers = append(q.Answers, ans)
			labels = append(labels, strings.ToLower(strings.TrimSpace(text.String())))
		}
		if len(labels) == 2 && q.Single && ((labels[0] == "true" && labels[1] == "false") || (labels[0] == "false" && labels[1] == "true")) {
			q.Type = bank.TypeTrueFalse
		}
	case "textEntryInteraction":
		q.Type = bank.TypeShortAnswer
		if d.baseType == "float" || d.baseType == "integer" {
			q.Type = bank.TypeNumerical
		}
		entries := d.mapping
		if len(entries) == 0 {
			for _, c := range d.correct {
				entries = append(entries, mapEntry{key: c, value: q.Points})
			}
		} else if !hasMax {
			_, _, q.Points = mappedValues(d)
		}
		for _, e := range entries {
			text, _ := richtext.ParsePlain(e.key)
			ans := bank.Answer{Text: text}
			if q.Points != 0 {
				ans.Fraction = e.value / q.Points
			}
			if e.tolerance != nil {
				ans.Tolerance = *e.tolerance
			}
			if e.caseSens != nil && *e.caseSens {
				q.CaseSensitive = true
			}
			q.Answers = append(q.Answers, ans)
		}
	default:
		return fmt.Errorf("unsupported interaction %s", n.Data)
	}
	return nil
}

// interactionItem rebuilds an embedded-answer item from an interaction and
// its response declaration. Values stay in points.
func interactionItem(n *xmlquery.Node, d parsedDecl) (*richtext.Item, error) {
	values, _, best := mappedValues(d)
	grade := best
	if grade <= 0 {
		grade = 1
	}
	it := &richtext.Item{Weight: grade}
	var cfg processor.Config

	switch n.Data {
	case "inlineChoiceInteraction", "choiceInteraction":
		it.Choice = true
		it.Multiple = d.cardinality == "multiple"
		it.Horizontal = n.SelectAttr("orientation") == "horizontal"
		cfg.Family = processor.FamilyMapper
		correct := toSet(d.correct)
		for _, c := range xmlquery.Find(n, "*[local-name()='inlineChoice' or local-name()='simpleChoice']") {
			id := c.SelectAttr("identifier")
			label := strings.TrimSpace(c.InnerText())
			v, ok := values[id]
			if !ok && correct[id] {
				v = grade
			}
			cfg.Values = append(cfg.Values, processor.Entry{
				Key:     label,
				Outcome: processor.Outcome{Value: v, Feedback: processor.NoFeedback},
			})
			lbl, _ := richtext.ParsePlain(label)
			it.Options = append(it.Options, label)
			it.Labels = append(it.Labels, lbl)
		}
	case "textEntryInteraction":
		cfg.Family = processor.FamilyPattern
		numeric := d.baseType == "float" || d.baseType == "integer"
		if numeric {
			cfg.Family = processor.FamilyRange
		}
		entries := d.mapping
		if len(entries) == 0 {
			for _, c := range d.correct {
				entries = append(entries, mapEntry{key: c, value: grade})
			}
		}
		for _, e := range entries {
			pe := processor.Entry{Key: e.key, Outcome: processor.Outcome{Value: e.value, Feedback: processor.NoFeedback}}
			if numeric {
				c, ok := processor.ParseFloatLoose(e.key)
				if !ok {
					return nil, &richtext.FormatError{Token: e.key, Msg: "numeric mapKey"}
				}
				tol := 0.0
				if e.tolerance != nil {
					tol = *e.tolerance
				}
				pe.Interval = processor.Interval{Lo: c - tol, Hi: c + tol}
			}
			if e.caseSens != nil && *e.caseSens {
				cfg.CaseSensitive = true
			}
			cfg.Values = append(cfg.Values, pe)
			lbl, _ := richtext.ParsePlain(e.key)
			it.Options = append(it.Options, e.key)
			it.Labels = append(it.Labels, lbl)
		}
	default:
		return nil, &richtext.FormatError{Token: n.Data, Msg: "interaction has no embedded-answer form"}
	}
	p, err := processor.New(cfg)
	if err != nil {
		return nil, err
	}
	it.Processor = p
	return it, nil
}

func mappedValues(d parsedDecl) (values map[string]float64, sum, best float64) {
	values = map[string]float64{}
	for _, e := range d.mapping {
		values[e.key] = e.value
		if e.value > 0 {
			sum += e.value
		}
		best = max(best, e.value)
	}
	return values, sum, best
}

func parseMarkup(src string, opt formats.Options) (*richtext.Document, error) {
	return richtext.ParseMarkup(strings.TrimSpace(src), opt.MarkupOptions()...)
}

// walkElements visits element descendants of n in document order; fn
// returns false to skip a node's children.
func walkElements(n *xmlquery.Node, fn func(*xmlquery.Node) bool) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == xmlquery.ElementNode && fn(c) {
			walkElements(c, fn)
		}
	}
}

// innerXML writes the children of n back as markup. replace may swap an
// element for literal text.
func innerXML(n *xmlquery.Node, replace func(*xmlquery.Node) (string, bool)) string {
	var b strings.Builder
	writeChildren(&b, n, replace)
	return b.String()
}

func writeChildren(b *strings.Builder, n *xmlquery.Node, replace func(*xmlquery.Node) (string, bool)) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		switch c.Type {
		case xmlquery.TextNode, xmlquery.CharDataNode:
			b.WriteString(text(c.Data))
		case xmlquery.ElementNode:
			if replace != nil {
				if s, ok := replace(c); ok {
					b.WriteString(s)
					continue
				}
			}
			b.WriteByte('<')
			b.WriteString(c.Data)
			for _, a := range c.Attr {
				if a.Name.Space == "xmlns" || a.Name.Local == "xmlns" {
					continue
				}
				fmt.Fprintf(b, ` %s="%s"`, a.Name.Local, html.EscapeString(a.Value))
			}
			if c.FirstChild == nil {
				b.WriteString("/>")
				continue
			}
			b.WriteByte('>')
			writeChildren(b, c, replace)
			b.WriteString("</" + c.Data + ">")
		}
	}
}

func attrLocal(n *xmlquery.Node, local string) string {
	for _, a := range n.Attr {
		if a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}

func toSet(xs []string) map[string]bool {
	m := make(map[string]bool, len(xs))
	for _, x := range xs {
		m[x] = true
	}
	return m
}

// dirAttachments resolves item-relative media paths inside the package.
type dirAttachments struct {
	p   *pkg
	dir string
}

func (d dirAttachments) Get(key string) (io.ReadCloser, error) {
	return d.p.Get(path.Join(d.dir, key))
}
