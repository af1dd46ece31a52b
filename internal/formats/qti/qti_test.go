package qti

import (
	"archive/zip"
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/mind-engage/mindengage-qbank/internal/bank"
	"github.com/mind-engage/mindengage-qbank/internal/formats"
	"github.com/mind-engage/mindengage-qbank/internal/richtext"
)

var png = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func plain(s string) *richtext.Document {
	d, _ := richtext.ParsePlain(s)
	return d
}

func markup(t *testing.T, s string) *richtext.Document {
	t.Helper()
	d, err := richtext.ParseMarkup(s)
	if err != nil {
		t.Fatal(err)
	}
	return d
}

func sampleBank(t *testing.T) *bank.Bank {
	t.Helper()
	withImage := markup(t, `<p>Where is it? <img src="@@PLUGINFILE@@/map.png" alt="map"></p>`)
	withImage.Files().At(0).Payload = png

	cloze, err := richtext.ParseCloze(`<p>Capital {1:MC:~=Paris~London} and {2:NUM:~=4:0}</p>`, richtext.WithMarkup())
	if err != nil {
		t.Fatal(err)
	}
	return &bank.Bank{Name: "sample", Questions: []*bank.Question{
		{
			ID: "mc", Name: "Capital", Type: bank.TypeMultiChoice, Text: withImage, Points: 2,
			Single: true, Shuffle: true,
			GeneralFeedback: markup(t, "<p>On the Seine.</p>"),
			Answers:         []bank.Answer{{Text: plain("Paris"), Fraction: 1}, {Text: plain("London")}},
		},
		{
			ID: "tf", Type: bank.TypeTrueFalse, Text: plain("The sky is blue."), Points: 1, Single: true,
			Answers: []bank.Answer{{Text: plain("True"), Fraction: 1}, {Text: plain("False")}},
		},
		{
			ID: "sa", Type: bank.TypeShortAnswer, Text: plain("Colour?"), Points: 1,
			Answers: []bank.Answer{{Text: plain("blue"), Fraction: 1}, {Text: plain("light*"), Fraction: 0.5}},
		},
		{
			ID: "num", Type: bank.TypeNumerical, Text: plain("Six times seven?"), Points: 1,
			Answers: []bank.Answer{{Text: plain("42"), Fraction: 1, Tolerance: 0.5}},
		},
		{ID: "essay", Type: bank.TypeEssay, Text: plain("Discuss."), Points: 5},
		{ID: "info", Type: bank.TypeDescription, Text: plain("Read carefully.")},
		{ID: "cl", Type: bank.TypeCloze, Text: cloze, Points: 3},
	}}
}

func exportSample(t *testing.T, opt formats.Options) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := New().Export(context.Background(), &buf, sampleBank(t), opt); err != nil {
		t.Fatalf("export: %v", err)
	}
	return buf.Bytes()
}

func zipEntries(t *testing.T, data []byte) map[string]string {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatal(err)
	}
	out := map[string]string{}
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			t.Fatal(err)
		}
		b, _ := io.ReadAll(rc)
		rc.Close()
		out[f.Name] = string(b)
	}
	return out
}

func TestExport_PackageLayout(t *testing.T) {
	entries := zipEntries(t, exportSample(t, formats.Options{}))
	for _, name := range []string{manifestFn, "mc.xml", "tf.xml", "sa.xml", "num.xml", "essay.xml", "info.xml", "cl.xml"} {
		if _, ok := entries[name]; !ok {
			t.Errorf("missing %s", name)
		}
	}
	media := 0
	for name, body := range entries {
		if strings.HasPrefix(name, mediaDir+"/") {
			media++
			if !strings.HasSuffix(name, "/map.png") || body != string(png) {
				t.Errorf("media %s", name)
			}
			if !strings.Contains(entries["mc.xml"], `src="`+name+`"`) {
				t.Errorf("item does not reference %s", name)
			}
			if !strings.Contains(entries[manifestFn], `href="`+name+`"`) {
				t.Errorf("manifest does not list %s", name)
			}
		}
	}
	if media != 1 {
		t.Errorf("media files = %d, want 1", media)
	}

	mc := entries["mc.xml"]
	for _, want := range []string{
		`<choiceInteraction responseIdentifier="RESPONSE" shuffle="true" maxChoices="1">`,
		`<mapEntry mapKey="C1" mappedValue="2"/>`,
		`<correctResponse><value>C1</value></correctResponse>`,
		`normalMaximum="2"`,
		`identifier="GENERAL"`,
	} {
		if !strings.Contains(mc, want) {
			t.Errorf("mc.xml missing %q\n%s", want, mc)
		}
	}
	if num := entries["num.xml"]; !strings.Contains(num, `mapKey="42" mappedValue="1" qb:tolerance="0.5"`) {
		t.Errorf("num.xml:\n%s", num)
	}
	cl := entries["cl.xml"]
	for _, want := range []string{
		`<inlineChoiceInteraction responseIdentifier="RESPONSE_1"`,
		`<textEntryInteraction responseIdentifier="RESPONSE_2"`,
		`<responseDeclaration identifier="RESPONSE_2" cardinality="single" baseType="float">`,
	} {
		if !strings.Contains(cl, want) {
			t.Errorf("cl.xml missing %q\n%s", want, cl)
		}
	}
}

func TestExport_EmbedSkipsMediaDir(t *testing.T) {
	entries := zipEntries(t, exportSample(t, formats.Options{Embed: true}))
	for name := range entries {
		if strings.HasPrefix(name, mediaDir+"/") {
			t.Errorf("unexpected media %s", name)
		}
	}
	if !strings.Contains(entries["mc.xml"], `src="data:image/png;base64,`) {
		t.Errorf("image not inlined")
	}
}

func TestImport_RoundTrip(t *testing.T) {
	data := exportSample(t, formats.Options{})
	b, err := New().Import(context.Background(), bytes.NewReader(data), formats.Options{})
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	orig := sampleBank(t)
	if len(b.Questions) != len(orig.Questions) {
		t.Fatalf("questions = %d, want %d", len(b.Questions), len(orig.Questions))
	}
	for i, want := range orig.Questions {
		got := b.Questions[i]
		if got.ID != want.ID || got.Type != want.Type || got.Points != want.Points {
			t.Errorf("%s: got %s/%s/%v want %s/%s/%v", want.ID, got.ID, got.Type, got.Points, want.ID, want.Type, want.Points)
			continue
		}
		if len(got.Answers) != len(want.Answers) {
			t.Errorf("%s: answers = %d, want %d", want.ID, len(got.Answers), len(want.Answers))
			continue
		}
		for j, a := range want.Answers {
			g := got.Answers[j]
			if g.Fraction != a.Fraction || g.Tolerance != a.Tolerance || bank.AnswerKey(g) != bank.AnswerKey(a) {
				t.Errorf("%s answer %d: got %+v %q want %+v %q", want.ID, j, g, bank.AnswerKey(g), a, bank.AnswerKey(a))
			}
		}
	}

	mc := b.Questions[0]
	if !mc.Single || !mc.Shuffle {
		t.Errorf("mc flags single=%v shuffle=%v", mc.Single, mc.Shuffle)
	}
	if strings.TrimSpace(mc.GeneralFeedback.String()) != "On the Seine." {
		t.Errorf("general feedback = %q", mc.GeneralFeedback.String())
	}
	if fs := mc.Text.Files(); fs.Len() != 1 || string(fs.At(0).Payload) != string(png) {
		t.Errorf("image not restored from package")
	}

	cl := b.Questions[6]
	want, _ := orig.Questions[6].Text.Get(richtext.DialectCloze)
	got, _ := cl.Text.Get(richtext.DialectCloze)
	if got != want {
		t.Errorf("cloze text:\n got %q\nwant %q", got, want)
	}
}

func TestImport_NotAZip(t *testing.T) {
	if _, err := New().Import(context.Background(), strings.NewReader("plain text"), formats.Options{}); err == nil {
		t.Fatal("want error")
	}
}

func TestImport_MissingManifest(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, _ := zw.Create("item.xml")
	io.WriteString(w, "<assessmentItem/>")
	zw.Close()
	_, err := New().Import(context.Background(), bytes.NewReader(buf.Bytes()), formats.Options{})
	if err == nil || !strings.Contains(err.Error(), "imsmanifest.xml") {
		t.Fatalf("err = %v", err)
	}
}

func TestIdentifier(t *testing.T) {
	cases := map[string]string{
		"q1":      "q1",
		"1st":     "Q1st",
		"a b/c":   "a_b_c",
		"-x":      "Q-x",
		"héllo.z": "h_llo.z",
	}
	for in, want := range cases {
		if got := identifier(in); got != want {
			t.Errorf("identifier(%q) = %q, want %q", in, got, want)
		}
	}
	if got := identifier(""); !strings.HasPrefix(got, "ITEM-") {
		t.Errorf("identifier(\"\") = %q", got)
	}
}
