package moodle

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"strconv"

	"github.com/mind-engage/mindengage-qbank/internal/bank"
	"github.com/mind-engage/mindengage-qbank/internal/formats"
	"github.com/mind-engage/mindengage-qbank/internal/richtext"
)

type quizXML struct {
	XMLName   xml.Name      `xml:"quiz"`
	Questions []questionXML `xml:"question"`
}

type questionXML struct {
	Type            string      `xml:"type,attr"`
	Category        *textXML    `xml:"category,omitempty"`
	Name            *textXML    `xml:"name,omitempty"`
	QuestionText    *textXML    `xml:"questiontext,omitempty"`
	GeneralFeedback *textXML    `xml:"generalfeedback,omitempty"`
	DefaultGrade    string      `xml:"defaultgrade,omitempty"`
	IDNumber        string      `xml:"idnumber,omitempty"`
	Single          string      `xml:"single,omitempty"`
	Shuffle         string      `xml:"shuffleanswers,omitempty"`
	UseCase         string      `xml:"usecase,omitempty"`
	Answers         []answerXML `xml:"answer"`
	Tags            []tagXML    `xml:"tags>tag,omitempty"`
}

type cdataXML struct {
	Value string `xml:",cdata"`
}

type textXML struct {
	Format string    `xml:"format,attr,omitempty"`
	Text   cdataXML  `xml:"text"`
	Files  []fileXML `xml:"file"`
}

type fileXML struct {
	Name     string `xml:"name,attr"`
	Path     string `xml:"path,attr"`
	Encoding string `xml:"encoding,attr"`
	Data     string `xml:",chardata"`
}

type answerXML struct {
	Fraction  string    `xml:"fraction,attr"`
	Format    string    `xml:"format,attr,omitempty"`
	Text      cdataXML  `xml:"text"`
	Files     []fileXML `xml:"file"`
	Tolerance string    `xml:"tolerance,omitempty"`
	Feedback  *textXML  `xml:"feedback,omitempty"`
}

type tagXML struct {
	Text string `xml:"text"`
}

func (a *Adapter) Export(ctx context.Context, w io.Writer, b *bank.Bank, opt formats.Options) error {
	quiz := quizXML{}
	if b.Category != "" {
		quiz.Questions = append(quiz.Questions, questionXML{
			Type:     "category",
			Category: &textXML{Text: cdataXML{b.Category}},
		})
	}
	ro := opt.RenderOptions(ctx, b)
	for _, q := range b.Questions {
		qx, err := writeQuestion(q, ro)
		if err != nil {
			return fmt.Errorf("question %s: %w", q.ID, err)
		}
		quiz.Questions = append(quiz.Questions, qx)
	}
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(quiz); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\n")
	return err
}

func writeQuestion(q *bank.Question, ro []richtext.RenderOption) (questionXML, error) {
	typ := string(q.Type)
	if q.Type == bank.TypeCloze {
		typ = "multianswer"
	}
	qx := questionXML{
		Type:     typ,
		Name:     &textXML{Text: cdataXML{q.Name}},
		IDNumber: q.ID,
	}
	var err error
	if qx.QuestionText, err = writeText(q.Text, ro); err != nil {
		return qx, err
	}
	if q.GeneralFeedback != nil && !q.GeneralFeedback.Empty() {
		if qx.GeneralFeedback, err = writeText(q.GeneralFeedback, ro); err != nil {
			return qx, err
		}
	}
	if q.Type != bank.TypeDescription {
		qx.DefaultGrade = formatFloat(q.Points)
	}
	switch q.Type {
	case bank.TypeMultiChoice:
		qx.Single = strconv.FormatBool(q.Single)
		qx.Shuffle = boolDigit(q.Shuffle)
	case bank.TypeShortAnswer:
		qx.UseCase = boolDigit(q.CaseSensitive)
	}
	for _, an := range q.Answers {
		ax := answerXML{Fraction: formatFloat(an.Fraction * 100)}
		if q.Type == bank.TypeMultiChoice {
			t, err := writeText(an.Text, ro)
			if err != nil {
				return qx, err
			}
			ax.Format, ax.Text, ax.Files = t.Format, t.Text, t.Files
		} else {
			ax.Format = "plain_text"
			ax.Text = cdataXML{bank.AnswerKey(an)}
		}
		if q.Type == bank.TypeNumerical {
			ax.Tolerance = formatFloat(an.Tolerance)
		}
		if an.Feedback != nil && !an.Feedback.Empty() {
			if ax.Feedback, err = writeText(an.Feedback, ro); err != nil {
				return qx, err
			}
		}
		qx.Answers = append(qx.Answers, ax)
	}
	for _, t := range q.Tags {
		qx.Tags = append(qx.Tags, tagXML{Text: t})
	}
	return qx, nil
}

// writeText renders d as Moodle HTML and ships its resolved local files
// as base64 <file> elements next to the text.
func writeText(d *richtext.Document, ro []richtext.RenderOption) (*textXML, error) {
	if d == nil {
		d = richtext.New()
	}
	s, err := d.Get(richtext.DialectMoodle, ro...)
	if err != nil {
		return nil, err
	}
	t := &textXML{Format: "html", Text: cdataXML{s}}
	for _, f := range d.Files().All() {
		if !f.Resolved() || !f.Local() {
			continue
		}
		t.Files = append(t.Files, fileXML{
			Name:     f.Name(),
			Path:     f.Dir(),
			Encoding: "base64",
			Data:     f.Base64(),
		})
	}
	return t, nil
}

func formatFloat(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

func boolDigit(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
