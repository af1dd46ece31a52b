package moodle

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/antchfx/xmlquery"
	"github.com/phuslu/log"

	"github.com/mind-engage/mindengage-qbank/internal/bank"
	"github.com/mind-engage/mindengage-qbank/internal/formats"
	"github.com/mind-engage/mindengage-qbank/internal/richtext"
)

var typeNames = map[string]bank.Type{
	"multichoice": bank.TypeMultiChoice,
	"truefalse":   bank.TypeTrueFalse,
	"shortanswer": bank.TypeShortAnswer,
	"numerical":   bank.TypeNumerical,
	"essay":       bank.TypeEssay,
	"description": bank.TypeDescription,
	"cloze":       bank.TypeCloze,
	"multianswer": bank.TypeCloze,
}

func (a *Adapter) Import(ctx context.Context, r io.Reader, opt formats.Options) (*bank.Bank, error) {
	root, err := xmlquery.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("moodle xml: %w", err)
	}
	nodes, err := xmlquery.QueryAll(root, "//quiz/question")
	if err != nil {
		return nil, fmt.Errorf("moodle xml: %w", err)
	}
	b := &bank.Bank{Name: "moodle import"}
	for i, n := range nodes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		typ := n.SelectAttr("type")
		if typ == "category" {
			b.Category = childText(n, "category/text")
			if b.Category != "" {
				b.Name = b.Category
			}
			continue
		}
		t, ok := typeNames[typ]
		if !ok {
			log.Warn().Str("type", typ).Int("index", i).Msg("skipping unsupported moodle question type")
			continue
		}
		q, err := readQuestion(n, t, opt)
		if err != nil {
			return nil, fmt.Errorf("question %d (%s): %w", i+1, typ, err)
		}
		if q.ID == "" {
			q.ID = fmt.Sprintf("q%d", len(b.Questions)+1)
		}
		b.Questions = append(b.Questions, q)
	}
	return formats.Finish(ctx, b, opt)
}

func readQuestion(n *xmlquery.Node, t bank.Type, opt formats.Options) (*bank.Question, error) {
	q := &bank.Question{
		ID:            childText(n, "idnumber"),
		Name:          childText(n, "name/text"),
		Type:          t,
		Single:        flag(childText(n, "single")),
		Shuffle:       flag(childText(n, "shuffleanswers")),
		CaseSensitive: flag(childText(n, "usecase")),
	}
	var err error
	if q.Text, err = readText(xmlquery.FindOne(n, "questiontext"), "html", t == bank.TypeCloze, opt); err != nil {
		return nil, err
	}
	if fb := xmlquery.FindOne(n, "generalfeedback"); fb != nil {
		if q.GeneralFeedback, err = readText(fb, "html", false, opt); err != nil {
			return nil, err
		}
	}
	if s := childText(n, "defaultgrade"); s != "" {
		if q.Points, err = strconv.ParseFloat(s, 64); err != nil {
			return nil, fmt.Errorf("defaultgrade %q: %w", s, err)
		}
	} else if t == bank.TypeCloze {
		q.Points = bank.ClozePoints(q.Text)
	} else if t != bank.TypeDescription {
		q.Points = 1
	}
	if t == bank.TypeTrueFalse {
		q.Single = true
	}

	// answer keys of these types are plain strings unless marked otherwise
	answerFormat := "plain_text"
	if t == bank.TypeMultiChoice {
		answerFormat = "html"
	}
	for _, an := range xmlquery.Find(n, "answer") {
		ans := bank.Answer{}
		if s := an.SelectAttr("fraction"); s != "" {
			f, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return nil, fmt.Errorf("answer fraction %q: %w", s, err)
			}
			ans.Fraction = f / 100
		}
		if ans.Text, err = readText(an, answerFormat, false, opt); err != nil {
			return nil, err
		}
		if fb := xmlquery.FindOne(an, "feedback"); fb != nil {
			if ans.Feedback, err = readText(fb, "html", false, opt); err != nil {
				return nil, err
			}
		}
		if s := childText(an, "tolerance"); s != "" {
			if ans.Tolerance, err = strconv.ParseFloat(s, 64); err != nil {
				return nil, fmt.Errorf("tolerance %q: %w", s, err)
			}
		}
		q.Answers = append(q.Answers, ans)
	}
	for _, tn := range xmlquery.Find(n, "tags/tag/text") {
		if s := strings.TrimSpace(tn.InnerText()); s != "" {
			q.Tags = append(q.Tags, s)
		}
	}
	return q, nil
}

// readText parses a Moodle text element: a format attribute, a <text>
// child and any number of <file> attachments.
func readText(n *xmlquery.Node, defFormat string, cloze bool, opt formats.Options) (*richtext.Document, error) {
	if n == nil {
		return richtext.New(), nil
	}
	src := childText(n, "text")
	format := n.SelectAttr("format")
	if format == "" {
		format = defFormat
	}
	files := xmlquery.Find(n, "file")

	switch format {
	case "plain_text":
		doc, err := richtext.ParsePlain(src)
		if err != nil {
			return nil, err
		}
		return doc, attachFiles(doc, files)
	case "markdown":
		doc, err := richtext.ParseMarkdown(src, opt.MarkupOptions()...)
		if err != nil {
			return nil, err
		}
		return doc, attachFiles(doc, files)
	}

	// html and moodle_auto_format: the <file> elements go through the
	// markup builder, which binds them to the @@PLUGINFILE@@ references.
	var sb strings.Builder
	sb.WriteString(src)
	for _, f := range files {
		sb.WriteString(f.OutputXML(true))
	}
	if cloze {
		return richtext.ParseCloze(sb.String(), richtext.WithMarkup(opt.MarkupOptions()...))
	}
	return richtext.ParseMarkup(sb.String(), opt.MarkupOptions()...)
}

func attachFiles(doc *richtext.Document, files []*xmlquery.Node) error {
	for _, f := range files {
		path := f.SelectAttr("path")
		if path == "" {
			path = "/"
		}
		if !strings.HasSuffix(path, "/") {
			path += "/"
		}
		data, err := base64.StdEncoding.DecodeString(strings.Join(strings.Fields(f.InnerText()), ""))
		if err != nil {
			return fmt.Errorf("file %s: %w", f.SelectAttr("name"), err)
		}
		doc.Files().Put(path+f.SelectAttr("name"), data, "")
	}
	return nil
}

func childText(n *xmlquery.Node, expr string) string {
	c := xmlquery.FindOne(n, expr)
	if c == nil {
		return ""
	}
	return strings.TrimSpace(c.InnerText())
}

func flag(s string) bool {
	switch strings.ToLower(s) {
	case "1", "true", "yes":
		return true
	}
	return false
}
