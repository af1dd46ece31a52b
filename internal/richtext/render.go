package richtext

import (
	"context"
	"fmt"
	"html"
	"strconv"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/phuslu/log"
)

// Dialect is a serialization target.
type Dialect string

const (
	DialectPlain    Dialect = "plain"
	DialectMarkdown Dialect = "markdown"
	DialectHTML     Dialect = "html"
	DialectMoodle   Dialect = "moodle"
	DialectCloze    Dialect = "cloze"
	DialectQTI      Dialect = "qti"
)

// ParseDialect validates a dialect name.
func ParseDialect(s string) (Dialect, error) {
	switch d := Dialect(strings.ToLower(strings.TrimSpace(s))); d {
	case DialectPlain, DialectMarkdown, DialectHTML, DialectMoodle, DialectCloze, DialectQTI:
		return d, nil
	case "text", "txt":
		return DialectPlain, nil
	case "md":
		return DialectMarkdown, nil
	case "xhtml":
		return DialectQTI, nil
	}
	return "", fmt.Errorf("richtext: unknown dialect %q", s)
}

// RenderOption configures Document.Get.
type RenderOption func(*renderConfig)

type renderConfig struct {
	ctx      context.Context
	embed    bool
	math     MathMode
	renderer MathRenderer
	refs     ReferenceResolver
	locate   func(f *File) (string, bool)
}

// WithContext bounds external work (math rendering) done while rendering.
func WithContext(ctx context.Context) RenderOption {
	return func(c *renderConfig) { c.ctx = ctx }
}

// WithEmbed writes resolved files inline as data URIs.
func WithEmbed() RenderOption { return func(c *renderConfig) { c.embed = true } }

func WithMathMode(m MathMode) RenderOption { return func(c *renderConfig) { c.math = m } }

func WithMathRenderer(r MathRenderer) RenderOption {
	return func(c *renderConfig) { c.renderer = r }
}

func WithReferences(r ReferenceResolver) RenderOption {
	return func(c *renderConfig) { c.refs = r }
}

// WithLocator overrides the locator written for a file; returning false
// falls back to the dialect's rule. Package writers use it to point at the
// file's place inside an archive.
func WithLocator(fn func(f *File) (string, bool)) RenderOption {
	return func(c *renderConfig) { c.locate = fn }
}

// Get renders the document to one dialect.
func (d *Document) Get(dialect Dialect, opts ...RenderOption) (string, error) {
	cfg := renderConfig{ctx: context.Background()}
	for _, o := range opts {
		o(&cfg)
	}
	r := &renderer{doc: d, dialect: dialect, cfg: cfg}
	if err := r.segments(&r.out, d.Segments); err != nil {
		return "", err
	}
	if dialect == DialectMarkdown {
		conv := md.NewConverter("", true, nil)
		out, err := conv.ConvertString(r.out.String())
		if err != nil {
			return "", fmt.Errorf("richtext: markdown: %w", err)
		}
		return out, nil
	}
	return r.out.String(), nil
}

// String renders as plain text, ignoring errors.
func (d *Document) String() string {
	s, _ := d.Get(DialectPlain)
	return s
}

type renderer struct {
	doc     *Document
	dialect Dialect
	cfg     renderConfig
	out     strings.Builder
	items   int
}

func (r *renderer) markup() bool {
	return r.dialect != DialectPlain
}

func (r *renderer) xml() bool { return r.dialect == DialectQTI }

func (r *renderer) segments(w *strings.Builder, segs []Segment) error {
	for _, s := range segs {
		if err := r.segment(w, s); err != nil {
			return err
		}
	}
	return nil
}

func (r *renderer) segment(w *strings.Builder, s Segment) error {
	switch s.Kind {
	case KindLiteral:
		r.literal(w, s.Text)
	case KindNode:
		return r.node(w, s.Node)
	case KindMedia:
		return r.media(w, s.Media)
	case KindChoice, KindEntry:
		return r.item(w, s.Item)
	case KindMath:
		r.math(w, s.Math)
	default:
		return &FormatError{Token: s.Kind.String(), Msg: "unknown segment kind"}
	}
	return nil
}

func (r *renderer) literal(w *strings.Builder, text string) {
	switch {
	case r.xml():
		w.WriteString(escapeXMLText(html.UnescapeString(text)))
	case r.markup():
		w.WriteString(text)
	default:
		w.WriteString(html.UnescapeString(text))
	}
}

var blockTags = map[string]bool{
	"p": true, "div": true, "li": true, "tr": true, "table": true, "ul": true, "ol": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"blockquote": true, "pre": true, "section": true,
}

func (r *renderer) node(w *strings.Builder, n *Node) error {
	if !r.markup() {
		if n.Tag == "br" {
			w.WriteByte('\n')
			return nil
		}
		if n.Tag == "li" {
			w.WriteString("- ")
		}
		if err := r.segments(w, n.Children); err != nil {
			return err
		}
		if blockTags[n.Tag] && !strings.HasSuffix(w.String(), "\n") {
			w.WriteByte('\n')
		}
		return nil
	}
	r.openTag(w, n.Tag, n.Attrs, nil)
	return r.closeTag(w, n.Tag, n.Children, n.Closed)
}

func (r *renderer) openTag(w *strings.Builder, tag string, attrs []Attr, locator *Attr) {
	w.WriteByte('<')
	w.WriteString(tag)
	if locator != nil {
		r.attr(w, *locator)
	}
	for _, a := range attrs {
		r.attr(w, a)
	}
}

func (r *renderer) attr(w *strings.Builder, a Attr) {
	w.WriteByte(' ')
	w.WriteString(a.Key)
	w.WriteString(`="`)
	w.WriteString(html.EscapeString(a.Val))
	w.WriteByte('"')
}

func (r *renderer) closeTag(w *strings.Builder, tag string, children []Segment, closed bool) error {
	if closed || (len(children) == 0 && (r.xml() || voidTags[tag])) {
		w.WriteString("/>")
		return nil
	}
	w.WriteByte('>')
	if err := r.segments(w, children); err != nil {
		return err
	}
	w.WriteString("</")
	w.WriteString(tag)
	w.WriteByte('>')
	return nil
}

func (r *renderer) media(w *strings.Builder, m *Media) error {
	f := r.doc.files.At(m.File)
	loc := r.locator(m, f)
	if !r.markup() {
		switch m.Tag {
		case "a":
			if err := r.segments(w, m.Children); err != nil {
				return err
			}
			if loc != "" && !strings.HasPrefix(loc, "data:") {
				w.WriteString(" (" + loc + ")")
			}
		case "img", "image":
			alt, _ := findAttr(m.Attrs, "alt")
			if alt == "" && f != nil {
				alt = f.Name()
			}
			w.WriteString("[image: " + alt + "]")
		default:
			return r.segments(w, m.Children)
		}
		return nil
	}
	attr := m.LocatorAttr
	if attr == "" {
		attr = "src"
	}
	r.openTag(w, m.Tag, m.Attrs, &Attr{Key: attr, Val: loc})
	return r.closeTag(w, m.Tag, m.Children, m.Closed)
}

// locator picks the href/src value written for a media reference.
func (r *renderer) locator(m *Media, f *File) string {
	if f == nil {
		return m.Locator
	}
	if r.cfg.locate != nil {
		if s, ok := r.cfg.locate(f); ok {
			return s
		}
	}
	if r.cfg.embed && f.Resolved() {
		return f.DataURI()
	}
	if r.dialect == DialectMoodle && f.Local() {
		return TokenPluginFile + escapePath(ensureRooted(f.Path))
	}
	return rewriteLocator(m.Locator, r.cfg.refs)
}

func (r *renderer) item(w *strings.Builder, it *Item) error {
	r.items++
	n := r.items
	switch r.dialect {
	case DialectCloze, DialectMoodle:
		s, err := SerializeCloze(it)
		if err != nil {
			return err
		}
		w.WriteString(s)
		return nil
	case DialectQTI:
		return r.qtiItem(w, it, n)
	case DialectHTML:
		return r.htmlItem(w, it, n)
	}
	return r.textItem(w, it)
}

func (r *renderer) label(it *Item, i int) (string, error) {
	if i < len(it.Labels) && it.Labels[i] != nil {
		// labels own their files
		sub := &renderer{doc: it.Labels[i], dialect: r.dialect, cfg: r.cfg}
		var b strings.Builder
		if err := sub.segments(&b, it.Labels[i].Segments); err != nil {
			return "", err
		}
		return b.String(), nil
	}
	if i < len(it.Options) {
		if r.markup() {
			return html.EscapeString(it.Options[i]), nil
		}
		return it.Options[i], nil
	}
	return "", nil
}

func (r *renderer) textItem(w *strings.Builder, it *Item) error {
	if !it.Choice {
		w.WriteString("[________]")
		return nil
	}
	sep := " | "
	if it.Multiple {
		sep = " & "
	}
	w.WriteString("[")
	for i := range it.Options {
		if i > 0 {
			w.WriteString(sep)
		}
		l, err := r.label(it, i)
		if err != nil {
			return err
		}
		w.WriteString(l)
	}
	w.WriteString("]")
	return nil
}

func (r *renderer) htmlItem(w *strings.Builder, it *Item, n int) error {
	name := "item" + strconv.Itoa(n)
	if !it.Choice {
		size := 5
		for _, o := range it.Options {
			if len(o)+2 > size {
				size = len(o) + 2
			}
		}
		fmt.Fprintf(w, `<input type="text" name="%s" size="%d"/>`, name, size)
		return nil
	}
	if !it.Multiple {
		fmt.Fprintf(w, `<select name="%s"><option value=""></option>`, name)
		for i, o := range it.Options {
			l, err := r.label(it, i)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, `<option value="%s">%s</option>`, html.EscapeString(o), l)
		}
		w.WriteString("</select>")
		return nil
	}
	sep := "<br/>"
	if it.Horizontal {
		sep = " "
	}
	for i, o := range it.Options {
		if i > 0 {
			w.WriteString(sep)
		}
		l, err := r.label(it, i)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, `<label><input type="checkbox" name="%s" value="%s"/> %s</label>`, name, html.EscapeString(o), l)
	}
	return nil
}

// QTIResponseID names the response variable of the n-th item (1-based).
func QTIResponseID(n int) string { return "RESPONSE_" + strconv.Itoa(n) }

// QTIChoiceID names the i-th option (0-based) of a choice item.
func QTIChoiceID(i int) string { return "C" + strconv.Itoa(i+1) }

func (r *renderer) qtiItem(w *strings.Builder, it *Item, n int) error {
	id := QTIResponseID(n)
	if !it.Choice {
		size := 5
		for _, o := range it.Options {
			if len(o) > size {
				size = len(o)
			}
		}
		fmt.Fprintf(w, `<textEntryInteraction responseIdentifier="%s" expectedLength="%d"/>`, id, size)
		return nil
	}
	if !it.Multiple {
		fmt.Fprintf(w, `<inlineChoiceInteraction responseIdentifier="%s" shuffle="false">`, id)
		for i := range it.Options {
			l, err := r.label(it, i)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, `<inlineChoice identifier="%s">%s</inlineChoice>`, QTIChoiceID(i), l)
		}
		w.WriteString("</inlineChoiceInteraction>")
		return nil
	}
	orient := "vertical"
	if it.Horizontal {
		orient = "horizontal"
	}
	fmt.Fprintf(w, `<choiceInteraction responseIdentifier="%s" shuffle="false" maxChoices="0" orientation="%s">`, id, orient)
	for i := range it.Options {
		l, err := r.label(it, i)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, `<simpleChoice identifier="%s">%s</simpleChoice>`, QTIChoiceID(i), l)
	}
	w.WriteString("</choiceInteraction>")
	return nil
}

func (r *renderer) math(w *strings.Builder, m *Math) {
	mode := r.cfg.math
	if mode == MathAuto {
		if r.dialect == DialectPlain || r.dialect == DialectMarkdown {
			w.WriteString(PrettyMath(m.Source))
			return
		}
		mode = MathLaTeX
	}
	if !r.markup() {
		w.WriteString(PrettyMath(m.Source))
		return
	}
	switch mode {
	case MathMathML:
		if mr, ok := r.cfg.renderer.(MathMLRenderer); ok {
			out, err := mr.RenderMathML(r.cfg.ctx, m.Source)
			if err == nil && out != "" {
				w.WriteString(out)
				return
			}
			log.Warn().Err(err).Str("source", m.Source).Msg("mathml rendering unavailable")
		}
	case MathImage:
		if r.cfg.renderer != nil {
			img, err := r.cfg.renderer.RenderMath(r.cfg.ctx, m.Source)
			if err == nil && img != nil {
				r.mathImage(w, m, img)
				return
			}
			log.Warn().Err(err).Str("source", m.Source).Msg("math image rendering unavailable")
		}
	}
	r.literalMath(w, m)
}

func (r *renderer) literalMath(w *strings.Builder, m *Math) {
	if r.xml() {
		w.WriteString(escapeXMLText(m.LaTeX()))
		return
	}
	w.WriteString(html.EscapeString(m.LaTeX()))
}

func (r *renderer) mathImage(w *strings.Builder, m *Math, img *Rendering) {
	src := img.Path
	if len(img.Data) > 0 && (r.cfg.embed || src == "") {
		f := File{Payload: img.Data, MIME: img.MIME}
		src = f.DataURI()
	}
	fmt.Fprintf(w, `<img class="math" alt="%s" src="%s"/>`, html.EscapeString(m.LaTeX()), html.EscapeString(src))
}

var xmlTextEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

func escapeXMLText(s string) string { return xmlTextEscaper.Replace(s) }
