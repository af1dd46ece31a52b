package richtext

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"testing"
)

func TestParseMarkup_SharedReferenceOneFile(t *testing.T) {
	doc, err := ParseMarkup(`<p>See <img src="@@PLUGINFILE@@/a%20b.png" alt="x"> and <a href="@@PLUGINFILE@@/a%20b.png">link</a></p>`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if n := doc.Files().Len(); n != 1 {
		t.Fatalf("files = %d, want 1", n)
	}
	f := doc.Files().At(0)
	if f.Path != "/a b.png" {
		t.Errorf("path = %q", f.Path)
	}
	if f.Resolved() {
		t.Errorf("file should be unresolved")
	}
	media := doc.Media()
	if len(media) != 2 || media[0].File != 0 || media[1].File != 0 {
		t.Fatalf("media = %+v", media)
	}
	if media[0].LocatorAttr != "src" || media[1].LocatorAttr != "href" {
		t.Errorf("locator attrs = %q %q", media[0].LocatorAttr, media[1].LocatorAttr)
	}
	if !media[0].Closed || media[1].Closed {
		t.Errorf("closed flags = %v %v", media[0].Closed, media[1].Closed)
	}
}

func TestParseMarkup_ExternalLinkStaysNode(t *testing.T) {
	doc, err := ParseMarkup(`<a href="https://example.org/x">out</a><a href="#top">up</a>`)
	if err != nil {
		t.Fatal(err)
	}
	if doc.Files().Len() != 0 {
		t.Errorf("external links registered files")
	}
	for _, s := range doc.Segments {
		if s.Kind != KindNode {
			t.Errorf("kind = %v, want node", s.Kind)
		}
	}
}

func TestParseMarkup_DataURI(t *testing.T) {
	doc, err := ParseMarkup(`<p><img src="data:image/png;base64,iVBORw0KGgo="><img src="data:text/plain,hi%20there"></p>`)
	if err != nil {
		t.Fatal(err)
	}
	fs := doc.Files()
	if fs.Len() != 2 {
		t.Fatalf("files = %d", fs.Len())
	}
	png := fs.At(0)
	if png.Path != "/0.png" || png.MIME != "image/png" || len(png.Payload) != 8 {
		t.Errorf("png = %+v", png)
	}
	txt := fs.At(1)
	if !strings.HasPrefix(txt.Path, "/1.") || string(txt.Payload) != "hi there" {
		t.Errorf("text = %+v", txt)
	}
}

func TestDocument_AddRenamesCollidingDataURIs(t *testing.T) {
	doc := New()
	if err := doc.AddMarkup(`<img src="data:image/png;base64,iVBORw0KGgo=">`); err != nil {
		t.Fatal(err)
	}
	if err := doc.AddMarkup(`<img src="data:image/png;base64,iVBORw0KGgoAAAAN">`); err != nil {
		t.Fatal(err)
	}
	fs := doc.Files()
	if fs.Len() != 2 {
		t.Fatalf("files = %d, want 2", fs.Len())
	}
	media := doc.Media()
	if len(media) != 2 || media[0].File != 0 || media[1].File != 1 {
		t.Fatalf("media = %+v", media)
	}
	a, b := fs.At(0), fs.At(1)
	if a.Path == b.Path || bytes.Equal(a.Payload, b.Payload) {
		t.Errorf("files merged: %q %q", a.Path, b.Path)
	}
	if len(a.Payload) != 8 || len(b.Payload) != 12 {
		t.Errorf("payloads = %d %d bytes", len(a.Payload), len(b.Payload))
	}

	// identical inline bytes still merge
	if err := doc.AddMarkup(`<img src="data:image/png;base64,iVBORw0KGgo=">`); err != nil {
		t.Fatal(err)
	}
	if fs.Len() != 2 || doc.Media()[2].File != 0 {
		t.Errorf("files = %d, third media -> %d", fs.Len(), doc.Media()[2].File)
	}
}

func TestParseMarkup_DataURISkipsTakenPath(t *testing.T) {
	doc, err := ParseMarkup(`<img src="/1.png"><img src="data:image/png;base64,iVBORw0KGgo=">`)
	if err != nil {
		t.Fatal(err)
	}
	fs := doc.Files()
	if fs.Len() != 2 {
		t.Fatalf("files = %d, want 2", fs.Len())
	}
	if ext := fs.At(0); ext.Path != "/1.png" || ext.Payload != nil {
		t.Errorf("external file = %+v", ext)
	}
	if in := fs.At(1); in.Path == "/1.png" || len(in.Payload) != 8 {
		t.Errorf("inline file = %+v", in)
	}
}

func TestParseMarkup_FilePlaceholderFillsReference(t *testing.T) {
	src := `<p><img src="@@PLUGINFILE@@/pics/a.txt"></p>` +
		`<file path="/pics/" name="a.txt" encoding="base64" author="kim">aGVs
bG8=</file>`
	doc, err := ParseMarkup(src)
	if err != nil {
		t.Fatal(err)
	}
	if doc.Files().Len() != 1 {
		t.Fatalf("files = %d", doc.Files().Len())
	}
	f := doc.Files().At(0)
	if f.Path != "/pics/a.txt" || string(f.Payload) != "hello" {
		t.Errorf("file = %+v", f)
	}
	if f.Meta["author"] != "kim" {
		t.Errorf("meta = %v", f.Meta)
	}
	if len(doc.Segments) != 1 {
		t.Errorf("file element leaked into segments: %+v", doc.Segments)
	}
}

func TestParseMarkup_StrictSelfClosing(t *testing.T) {
	if _, err := ParseMarkup(`<p/>text<br/>`); err != nil {
		t.Fatalf("lenient parse: %v", err)
	}
	_, err := ParseMarkup(`<br/><p/>`, WithStrict())
	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("err = %v, want *ParseError", err)
	}
	if pe.Pos != 5 {
		t.Errorf("pos = %d, want 5", pe.Pos)
	}
	if _, err := ParseMarkup(`<br/><img src="x.png"/>`, WithStrict()); err != nil {
		t.Errorf("void self-closing rejected: %v", err)
	}
	doc, err := ParseMarkup(`<a href="x"/><video src="clip.mp4"/>`, WithStrict())
	if err != nil {
		t.Fatalf("reference self-closing rejected: %v", err)
	}
	if n := len(doc.Media()); n != 2 {
		t.Errorf("media = %d, want 2", n)
	}
}

func TestParseMarkup_Math(t *testing.T) {
	doc, err := ParseMarkup(`Area \(\pi r^2\) and $$x$$`, WithMath())
	if err != nil {
		t.Fatal(err)
	}
	var kinds []Kind
	for _, s := range doc.Segments {
		kinds = append(kinds, s.Kind)
	}
	want := []Kind{KindLiteral, KindMath, KindLiteral, KindMath}
	if len(kinds) != len(want) {
		t.Fatalf("kinds = %v", kinds)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Errorf("kinds[%d] = %v, want %v", i, kinds[i], want[i])
		}
	}
	if m := doc.Segments[3].Math; !m.Display || m.Source != "x" {
		t.Errorf("display math = %+v", m)
	}
}

func TestParseMarkdown_BindsImages(t *testing.T) {
	doc, err := ParseMarkdown("Look ![x](images/a.png) **now**")
	if err != nil {
		t.Fatal(err)
	}
	if doc.Files().Len() != 1 || !strings.HasSuffix(doc.Files().At(0).Path, "a.png") {
		t.Fatalf("files = %+v", doc.Files().All())
	}
}

func TestParsePlain(t *testing.T) {
	for _, in := range []any{"a<b", strings.NewReader("a<b")} {
		doc, err := ParsePlain(in)
		if err != nil {
			t.Fatalf("%T: %v", in, err)
		}
		if len(doc.Segments) != 1 || doc.Segments[0].Text != "a<b" {
			t.Errorf("%T: segments = %+v", in, doc.Segments)
		}
	}
	for _, in := range []any{42, []byte("a<b")} {
		_, err := ParsePlain(in)
		var pe *ParseError
		if !errors.As(err, &pe) {
			t.Errorf("%T: err = %v, want *ParseError", in, err)
		}
	}
}

func TestDocument_AddUnionsFiles(t *testing.T) {
	a, err := ParseMarkup(`<img src="@@PLUGINFILE@@/x.png">`)
	if err != nil {
		t.Fatal(err)
	}
	b, err := ParseMarkup(`<img src="@@PLUGINFILE@@/y.png"><img src="@@PLUGINFILE@@/x.png">`)
	if err != nil {
		t.Fatal(err)
	}
	b.Files().Put("/x.png", []byte("xx"), "image/png")

	a.Add(b)
	if a.Files().Len() != 2 {
		t.Fatalf("files = %d, want 2", a.Files().Len())
	}
	media := a.Media()
	if len(media) != 3 {
		t.Fatalf("media = %d", len(media))
	}
	if media[0].File != 0 || media[2].File != 0 || media[1].File != 1 {
		t.Errorf("indices = %d %d %d", media[0].File, media[1].File, media[2].File)
	}
	if got := string(a.Files().At(0).Payload); got != "xx" {
		t.Errorf("payload not merged: %q", got)
	}

	// b keeps its own indices
	if bm := b.Media(); bm[0].File != 0 || bm[1].File != 1 {
		t.Errorf("source document changed: %d %d", bm[0].File, bm[1].File)
	}
	b.Media()[0].Attrs = append(b.Media()[0].Attrs, Attr{Key: "k", Val: "v"})
	if len(a.Media()[1].Attrs) != 0 {
		t.Errorf("segments share attribute storage")
	}
}

type mapAttachments map[string][]byte

func (m mapAttachments) Get(key string) (io.ReadCloser, error) {
	b, ok := m[key]
	if !ok {
		return nil, os.ErrNotExist
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func TestDocument_FillFiles(t *testing.T) {
	doc, err := ParseMarkup(`<img src="$IMS-CC-FILEBASE$/img/a.gif"><img src="b.gif"><a href="$WIKI_REFERENCE$/pages/intro">w</a>`)
	if err != nil {
		t.Fatal(err)
	}
	gif := []byte("GIF89a\x01\x00\x01\x00")
	src := mapAttachments{"img/a.gif": gif, "$WIKI_REFERENCE$/pages/intro": []byte("nope")}
	if err := doc.FillFiles(context.Background(), src); err != nil {
		t.Fatal(err)
	}
	a, _ := doc.Files().Lookup("/img/a.gif")
	if f := doc.Files().At(a); !f.Resolved() || f.MIME != "image/gif" {
		t.Errorf("a.gif = %+v", f)
	}
	b, _ := doc.Files().Lookup("b.gif")
	if doc.Files().At(b).Resolved() {
		t.Errorf("b.gif resolved without a source")
	}
	for _, f := range doc.Files().All() {
		if f.Meta["token"] == "wiki" && f.Resolved() {
			t.Errorf("wiki reference treated as a file")
		}
	}
}
