package moodle

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/mind-engage/mindengage-qbank/internal/bank"
	"github.com/mind-engage/mindengage-qbank/internal/formats"
	"github.com/mind-engage/mindengage-qbank/internal/richtext"
)

const sampleXML = `<?xml version="1.0" encoding="UTF-8"?>
<quiz>
  <question type="category">
    <category><text>$course$/Geography</text></category>
  </question>
  <question type="multichoice">
    <name><text>Capital</text></name>
    <questiontext format="html">
      <text><![CDATA[<p>Capital of France? <img src="@@PLUGINFILE@@/map.png" alt="map"></p>]]></text>
      <file name="map.png" path="/" encoding="base64">iVBORw0KGgo=</file>
    </questiontext>
    <generalfeedback format="html"><text>Paris is on the Seine.</text></generalfeedback>
    <defaultgrade>2</defaultgrade>
    <idnumber>cap-1</idnumber>
    <single>true</single>
    <shuffleanswers>1</shuffleanswers>
    <answer fraction="100" format="html">
      <text>Paris</text>
      <feedback format="html"><text>Right.</text></feedback>
    </answer>
    <answer fraction="0" format="html"><text>London</text></answer>
    <tags><tag><text>europe</text></tag></tags>
  </question>
  <question type="numerical">
    <name><text>Answer</text></name>
    <questiontext format="html"><text>Six times seven?</text></questiontext>
    <answer fraction="100"><text>42</text><tolerance>0.5</tolerance></answer>
  </question>
  <question type="shortanswer">
    <name><text>Colour</text></name>
    <questiontext format="markdown"><text>Sky **colour**?</text></questiontext>
    <usecase>0</usecase>
    <answer fraction="100"><text>blue</text></answer>
    <answer fraction="50"><text>light*</text></answer>
  </question>
  <question type="multianswer">
    <name><text>Sums</text></name>
    <questiontext format="html"><text><![CDATA[<p>2+2 = {1:NUM:~=4:0} and spelled {2:SA:~=four}</p>]]></text></questiontext>
  </question>
  <question type="matching">
    <name><text>Skipped</text></name>
    <questiontext format="html"><text>x</text></questiontext>
  </question>
</quiz>
`

func importSample(t *testing.T) *bank.Bank {
	t.Helper()
	b, err := New().Import(context.Background(), strings.NewReader(sampleXML), formats.Options{})
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	return b
}

func TestImport(t *testing.T) {
	b := importSample(t)
	if b.Category != "$course$/Geography" || b.Name != b.Category {
		t.Errorf("category = %q name = %q", b.Category, b.Name)
	}
	if len(b.Questions) != 4 {
		t.Fatalf("questions = %d, want 4 (matching skipped)", len(b.Questions))
	}

	mc := b.Questions[0]
	if mc.ID != "cap-1" || mc.Type != bank.TypeMultiChoice || mc.Points != 2 || !mc.Single || !mc.Shuffle {
		t.Errorf("mc = %+v", mc)
	}
	if len(mc.Tags) != 1 || mc.Tags[0] != "europe" {
		t.Errorf("tags = %v", mc.Tags)
	}
	if n := mc.Text.Files().Len(); n != 1 {
		t.Fatalf("files = %d", n)
	}
	if f := mc.Text.Files().At(0); f.Path != "/map.png" || !f.Resolved() {
		t.Errorf("file = %+v", f)
	}
	if len(mc.Answers) != 2 || mc.Answers[0].Fraction != 1 || bank.AnswerKey(mc.Answers[0]) != "Paris" {
		t.Errorf("answers = %+v", mc.Answers)
	}
	if mc.Answers[0].Feedback.String() != "Right." {
		t.Errorf("feedback = %q", mc.Answers[0].Feedback.String())
	}

	num := b.Questions[1]
	if num.ID != "q2" || num.Points != 1 || num.Answers[0].Tolerance != 0.5 {
		t.Errorf("num = %+v", num)
	}

	sa := b.Questions[2]
	if sa.Answers[1].Fraction != 0.5 || sa.CaseSensitive {
		t.Errorf("sa = %+v", sa)
	}
	if got := strings.TrimSpace(sa.Text.String()); got != "Sky colour?" {
		t.Errorf("markdown text = %q", got)
	}

	cl := b.Questions[3]
	if cl.Type != bank.TypeCloze || cl.Points != 3 || len(cl.Text.Items()) != 2 {
		t.Errorf("cloze = %+v items=%d", cl, len(cl.Text.Items()))
	}
}

func TestImport_InvalidXML(t *testing.T) {
	_, err := New().Import(context.Background(), strings.NewReader("<quiz><question"), formats.Options{})
	if err == nil {
		t.Fatal("want error")
	}
}

func TestImport_ValidationError(t *testing.T) {
	src := `<quiz><question type="multichoice"><questiontext><text>no answers</text></questiontext></question></quiz>`
	_, err := New().Import(context.Background(), strings.NewReader(src), formats.Options{})
	if !errors.Is(err, bank.ErrInvalid) {
		t.Fatalf("err = %v, want ErrInvalid", err)
	}
}

func TestExport_RoundTrip(t *testing.T) {
	ctx := context.Background()
	b := importSample(t)
	var buf bytes.Buffer
	if err := New().Export(ctx, &buf, b, formats.Options{}); err != nil {
		t.Fatalf("export: %v", err)
	}
	out := buf.String()
	for _, want := range []string{
		`<question type="category">`,
		`@@PLUGINFILE@@/map.png`,
		`<file name="map.png" path="/" encoding="base64">iVBORw0KGgo=</file>`,
		`<tolerance>0.5</tolerance>`,
		`{1:NUM:~=`,
		`<idnumber>cap-1</idnumber>`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("export missing %q", want)
		}
	}

	again, err := New().Import(ctx, strings.NewReader(out), formats.Options{})
	if err != nil {
		t.Fatalf("re-import: %v\n%s", err, out)
	}
	if len(again.Questions) != len(b.Questions) || again.Category != b.Category {
		t.Fatalf("re-import: %d questions, category %q", len(again.Questions), again.Category)
	}
	for i, q := range b.Questions {
		r := again.Questions[i]
		if r.Type != q.Type || r.Points != q.Points || len(r.Answers) != len(q.Answers) {
			t.Errorf("question %d: got %s/%v/%d want %s/%v/%d", i, r.Type, r.Points, len(r.Answers), q.Type, q.Points, len(q.Answers))
		}
		want, _ := q.Text.Get(richtext.DialectMoodle)
		got, _ := r.Text.Get(richtext.DialectMoodle)
		if strings.TrimSpace(got) != strings.TrimSpace(want) {
			t.Errorf("question %d text:\n got %q\nwant %q", i, got, want)
		}
	}
	if f := again.Questions[0].Text.Files().At(0); string(f.Payload) != string(b.Questions[0].Text.Files().At(0).Payload) {
		t.Errorf("payload changed")
	}
}
