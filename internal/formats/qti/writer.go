package qti

import (
	"archive/zip"
	"context"
	"encoding/xml"
	"fmt"
	"html"
	"io"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"

	"github.com/mind-engage/mindengage-qbank/internal/bank"
	"github.com/mind-engage/mindengage-qbank/internal/formats"
	"github.com/mind-engage/mindengage-qbank/internal/processor"
	"github.com/mind-engage/mindengage-qbank/internal/richtext"
)

// Export writes a content package with one item per question. Resolved
// local files are stored under media/, named by content hash so equal
// files are stored once.
func (a *Adapter) Export(ctx context.Context, w io.Writer, b *bank.Bank, opt formats.Options) error {
	zw := zip.NewWriter(w)
	mf := imsManifest{
		Xmlns:      nsCP,
		Identifier: "MANIFEST-" + uuid.NewString(),
	}
	written := map[string]bool{}

	for _, q := range b.Questions {
		if err := ctx.Err(); err != nil {
			return err
		}
		ident := identifier(q.ID)
		media := map[string][]byte{}
		ro := opt.RenderOptions(ctx, b)
		if !opt.Embed {
			ro = append(ro, richtext.WithLocator(func(f *richtext.File) (string, bool) {
				if !f.Resolved() || !f.Local() {
					return "", false
				}
				name := mediaName(f)
				media[name] = f.Payload
				return name, true
			}))
		}
		body, err := buildItemXML(q, ident, ro)
		if err != nil {
			return fmt.Errorf("question %s: %w", q.ID, err)
		}

		itemName := ident + ".xml"
		res := imsResource{Identifier: ident, Type: itemType, Href: itemName, Files: []imsFile{{Href: itemName}}}
		iw, err := zw.Create(itemName)
		if err != nil {
			return err
		}
		if _, err := io.WriteString(iw, body); err != nil {
			return err
		}

		names := make([]string, 0, len(media))
		for name := range media {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			res.Files = append(res.Files, imsFile{Href: name})
			if written[name] {
				continue
			}
			written[name] = true
			mw, err := zw.Create(name)
			if err != nil {
				return err
			}
			if _, err := mw.Write(media[name]); err != nil {
				return err
			}
		}
		mf.Resources = append(mf.Resources, res)
	}

	mfw, err := zw.Create(manifestFn)
	if err != nil {
		return err
	}
	out, err := xml.MarshalIndent(mf, "", "  ")
	if err != nil {
		return err
	}
	io.WriteString(mfw, xml.Header)
	mfw.Write(out)
	return zw.Close()
}

func mediaName(f *richtext.File) string {
	sum := blake3.Sum256(f.Payload)
	return path.Join(mediaDir, fmt.Sprintf("%x", sum[:8]), f.Name())
}

// identifier makes id usable as an XML NCName.
func identifier(id string) string {
	if id == "" {
		return "ITEM-" + uuid.NewString()
	}
	id = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		}
		return '_'
	}, id)
	if c := id[0]; !(c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c == '_') {
		id = "Q" + id
	}
	return id
}

type mapEntry struct {
	key       string
	value     float64
	tolerance *float64
	caseSens  *bool
}

type responseDecl struct {
	id          string
	cardinality string
	baseType    string
	correct     []string
	mapping     []mapEntry
}

func buildItemXML(q *bank.Question, ident string, ro []richtext.RenderOption) (string, error) {
	prompt, err := q.Text.Get(richtext.DialectQTI, ro...)
	if err != nil {
		return "", err
	}
	var decls []responseDecl
	var interaction string

	switch q.Type {
	case bank.TypeMultiChoice, bank.TypeTrueFalse:
		d, s, err := choiceQuestion(q, ro)
		if err != nil {
			return "", err
		}
		decls, interaction = append(decls, d), s
	case bank.TypeShortAnswer, bank.TypeNumerical:
		p, err := q.Processor()
		if err != nil {
			return "", err
		}
		d := entryDecl("RESPONSE", p)
		size := 5
		for _, e := range d.mapping {
			size = max(size, len(e.key))
		}
		decls = append(decls, d)
		interaction = fmt.Sprintf(`<textEntryInteraction responseIdentifier="RESPONSE" expectedLength="%d"/>`, size)
	case bank.TypeEssay:
		decls = append(decls, responseDecl{id: "RESPONSE", cardinality: "single", baseType: "string"})
		interaction = `<extendedTextInteraction responseIdentifier="RESPONSE"/>`
	case bank.TypeCloze:
		for i, it := range q.Text.Items() {
			id := richtext.QTIResponseID(i + 1)
			if it.Choice {
				decls = append(decls, itemChoiceDecl(id, it))
			} else {
				decls = append(decls, entryDecl(id, it.Processor))
			}
		}
	case bank.TypeDescription:
	default:
		return "", fmt.Errorf("qti: unsupported question type %s", q.Type)
	}

	var b strings.Builder
	b.WriteString(xml.Header)
	fmt.Fprintf(&b, `<assessmentItem xmlns="%s" xmlns:qb="%s" identifier="%s" title="%s" adaptive="false" timeDependent="false">`+"\n",
		nsQTI, nsQBank, attr(ident), attr(q.Name))
	for _, d := range decls {
		writeDecl(&b, d)
	}
	fmt.Fprintf(&b, `  <outcomeDeclaration identifier="SCORE" cardinality="single" baseType="float" normalMaximum="%s"/>`+"\n", formatFloat(q.Points))
	b.WriteString("  <itemBody>\n")
	b.WriteString(prompt)
	if interaction != "" {
		b.WriteString("\n")
		b.WriteString(interaction)
	}
	b.WriteString("\n  </itemBody>\n")
	if q.GeneralFeedback != nil && !q.GeneralFeedback.Empty() {
		fb, err := q.GeneralFeedback.Get(richtext.DialectQTI, ro...)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&b, `  <modalFeedback outcomeIdentifier="FEEDBACK" identifier="GENERAL" showHide="show">%s</modalFeedback>`+"\n", fb)
	}
	b.WriteString("</assessmentItem>\n")
	return b.String(), nil
}

func choiceQuestion(q *bank.Question, ro []richtext.RenderOption) (responseDecl, string, error) {
	single := q.Single || q.Type == bank.TypeTrueFalse
	d := responseDecl{id: "RESPONSE", cardinality: "multiple", baseType: "identifier"}
	maxChoices := 0
	if single {
		d.cardinality, maxChoices = "single", 1
	}
	best := 0.0
	for _, an := range q.Answers {
		best = max(best, an.Fraction)
	}
	var choices strings.Builder
	for i, an := range q.Answers {
		id := richtext.QTIChoiceID(i)
		label := ""
		if an.Text != nil {
			s, err := an.Text.Get(richtext.DialectQTI, ro...)
			if err != nil {
				return d, "", err
			}
			label = s
		}
		fmt.Fprintf(&choices, "\n  <simpleChoice identifier=\"%s\">%s</simpleChoice>", id, label)
		if an.Fraction != 0 {
			d.mapping = append(d.mapping, mapEntry{key: id, value: an.Fraction * q.Points})
		}
		if (single && an.Fraction == best && best > 0) || (!single && an.Fraction > 0) {
			d.correct = append(d.correct, id)
		}
	}
	shuffle := strconv.FormatBool(q.Shuffle)
	s := fmt.Sprintf(`<choiceInteraction responseIdentifier="RESPONSE" shuffle="%s" maxChoices="%d">%s`+"\n</choiceInteraction>",
		shuffle, maxChoices, choices.String())
	return d, s, nil
}

// itemChoiceDecl declares the response of an embedded choice item. Option
// identifiers follow the order the serializer writes them in.
func itemChoiceDecl(id string, it *richtext.Item) responseDecl {
	d := responseDecl{id: id, cardinality: "single", baseType: "identifier"}
	if it.Multiple {
		d.cardinality = "multiple"
	}
	best := it.Processor.MaxValue()
	for i, e := range it.Processor.Values() {
		cid := richtext.QTIChoiceID(i)
		v := e.Outcome.Value
		if v != 0 {
			d.mapping = append(d.mapping, mapEntry{key: cid, value: v})
		}
		if (it.Multiple && v > 0) || (!it.Multiple && v == best && best > 0) {
			d.correct = append(d.correct, cid)
		}
	}
	return d
}

// entryDecl declares a text or numeric entry response from its processor.
func entryDecl(id string, p processor.Processor) responseDecl {
	d := responseDecl{id: id, cardinality: "single", baseType: "string"}
	numeric := p.Family() == processor.FamilyRange
	if numeric {
		d.baseType = "float"
	}
	best := p.MaxValue()
	cs := p.CaseSensitive()
	for _, e := range p.Values() {
		me := mapEntry{key: e.Key, value: e.Outcome.Value}
		if numeric {
			tol := e.Interval.Tolerance()
			me.key = formatFloat(e.Interval.Center())
			me.tolerance = &tol
		} else {
			me.caseSens = &cs
		}
		d.mapping = append(d.mapping, me)
		if e.Outcome.Value == best && best > 0 {
			d.correct = append(d.correct, me.key)
		}
	}
	return d
}

func writeDecl(b *strings.Builder, d responseDecl) {
	fmt.Fprintf(b, `  <responseDeclaration identifier="%s" cardinality="%s" baseType="%s">`+"\n", d.id, d.cardinality, d.baseType)
	if len(d.correct) > 0 {
		b.WriteString("    <correctResponse>")
		for _, v := range d.correct {
			fmt.Fprintf(b, "<value>%s</value>", text(v))
		}
		b.WriteString("</correctResponse>\n")
	}
	if len(d.mapping) > 0 {
		b.WriteString(`    <mapping defaultValue="0">` + "\n")
		for _, e := range d.mapping {
			fmt.Fprintf(b, `      <mapEntry mapKey="%s" mappedValue="%s"`, attr(e.key), formatFloat(e.value))
			if e.caseSens != nil {
				fmt.Fprintf(b, ` caseSensitive="%t"`, *e.caseSens)
			}
			if e.tolerance != nil {
				fmt.Fprintf(b, ` qb:tolerance="%s"`, formatFloat(*e.tolerance))
			}
			b.WriteString("/>\n")
		}
		b.WriteString("    </mapping>\n")
	}
	b.WriteString("  </responseDeclaration>\n")
}

func attr(s string) string { return html.EscapeString(s) }

var textEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

func text(s string) string { return textEscaper.Replace(s) }

func formatFloat(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
