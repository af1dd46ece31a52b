package richtext

import (
	"encoding/base64"
	"io"
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

// voidTags never have content; a start tag is treated as self-closing.
var voidTags = map[string]bool{
	"area":   true,
	"base":   true,
	"br":     true,
	"col":    true,
	"embed":  true,
	"hr":     true,
	"image":  true,
	"img":    true,
	"input":  true,
	"link":   true,
	"meta":   true,
	"param":  true,
	"source": true,
	"track":  true,
	"wbr":    true,
}

// IsVoidTag reports whether tag is self-terminating.
func IsVoidTag(tag string) bool { return voidTags[tag] }

// MarkupOption configures ParseMarkup and the markup pass of ParseCloze.
type MarkupOption func(*markupConfig)

type markupConfig struct {
	strict bool
	math   bool
}

// WithStrict rejects self-closing forms of elements that need content.
func WithStrict() MarkupOption { return func(c *markupConfig) { c.strict = true } }

// WithMath splits \(..\), \[..\] and $$..$$ out of text as math segments.
func WithMath() MarkupOption { return func(c *markupConfig) { c.math = true } }

// ParseMarkup builds a document from an HTML-like fragment.
func ParseMarkup(src string, opts ...MarkupOption) (*Document, error) {
	doc := New()
	b := newBuilder(doc, opts...)
	if err := b.feed(src); err != nil {
		return nil, err
	}
	b.finish()
	return doc, nil
}

// AddMarkup parses src and appends it to d. d is unchanged on error.
func (d *Document) AddMarkup(src string, opts ...MarkupOption) error {
	part, err := ParseMarkup(src, opts...)
	if err != nil {
		return err
	}
	d.Add(part)
	return nil
}

type frame struct {
	node  *Node
	media *Media
	file  *fileFrame
}

type fileFrame struct {
	attrs []Attr
	data  strings.Builder
}

func (f *frame) add(s Segment) {
	switch {
	case f.node != nil:
		f.node.Children = append(f.node.Children, s)
	case f.media != nil:
		f.media.Children = append(f.media.Children, s)
	}
}

// builder turns a token stream into segments. It can be fed several
// fragments with items injected in between; open elements carry over.
type builder struct {
	doc    *Document
	cfg    markupConfig
	root   *Node
	stack  []*frame
	offset int
}

func newBuilder(doc *Document, opts ...MarkupOption) *builder {
	var cfg markupConfig
	for _, o := range opts {
		o(&cfg)
	}
	root := &Node{}
	return &builder{doc: doc, cfg: cfg, root: root, stack: []*frame{{node: root}}}
}

func (b *builder) top() *frame { return b.stack[len(b.stack)-1] }

func (b *builder) push(f *frame) { b.stack = append(b.stack, f) }

func (b *builder) pop() {
	if len(b.stack) <= 1 {
		return
	}
	f := b.top()
	b.stack = b.stack[:len(b.stack)-1]
	if f.file != nil {
		b.closeFile(f.file)
	}
}

// insert appends an already-built segment at the current position.
func (b *builder) insert(s Segment) { b.top().add(s) }

func (b *builder) feed(src string) error {
	z := html.NewTokenizer(strings.NewReader(src))
	pos := 0
	for {
		tt := z.Next()
		raw := string(z.Raw())
		switch tt {
		case html.ErrorToken:
			if z.Err() == io.EOF {
				b.offset += len(src)
				return nil
			}
			return parseErrorf(b.offset+pos, "%v", z.Err())
		case html.TextToken:
			b.text(raw)
		case html.StartTagToken:
			tag, attrs := tokenTag(z)
			if voidTags[tag] {
				b.closed(tag, attrs)
			} else {
				b.open(tag, attrs)
			}
		case html.SelfClosingTagToken:
			tag, attrs := tokenTag(z)
			if b.cfg.strict && !voidTags[tag] && !referenceTags[tag] {
				return parseErrorf(b.offset+pos, "self-closing <%s/> is not a void or reference element", tag)
			}
			b.closed(tag, attrs)
		case html.EndTagToken:
			b.pop()
		case html.CommentToken, html.DoctypeToken:
			if b.top().file == nil {
				b.insert(Literal(raw))
			}
		}
		pos += len(raw)
	}
}

func tokenTag(z *html.Tokenizer) (string, []Attr) {
	t := z.Token()
	attrs := make([]Attr, 0, len(t.Attr))
	for _, a := range t.Attr {
		k := a.Key
		if a.Namespace != "" {
			k = a.Namespace + ":" + k
		}
		attrs = append(attrs, Attr{Key: k, Val: a.Val})
	}
	return t.Data, attrs
}

func (b *builder) text(raw string) {
	if ff := b.top().file; ff != nil {
		ff.data.WriteString(raw)
		return
	}
	if !b.cfg.math {
		b.insert(Literal(raw))
		return
	}
	for _, s := range splitMath(raw) {
		b.insert(s)
	}
}

func (b *builder) open(tag string, attrs []Attr) {
	if tag == "file" && !hasLocator(attrs) {
		b.push(&frame{file: &fileFrame{attrs: attrs}})
		return
	}
	if m, ok := bindMedia(&b.doc.files, tag, attrs); ok {
		b.insert(MediaSegment(m))
		b.push(&frame{media: m})
		return
	}
	n := &Node{Tag: tag, Attrs: attrs}
	b.insert(NodeSegment(n))
	b.push(&frame{node: n})
}

func (b *builder) closed(tag string, attrs []Attr) {
	if tag == "file" && !hasLocator(attrs) {
		b.closeFile(&fileFrame{attrs: attrs})
		return
	}
	if m, ok := bindMedia(&b.doc.files, tag, attrs); ok {
		m.Closed = true
		b.insert(MediaSegment(m))
		return
	}
	b.insert(NodeSegment(&Node{Tag: tag, Attrs: attrs, Closed: true}))
}

// closeFile registers the payload of a <file path=".." name="..">DATA</file>
// element. An existing entry for the same path is reused and filled.
func (b *builder) closeFile(ff *fileFrame) {
	dir, _ := findAttr(ff.attrs, "path")
	name, _ := findAttr(ff.attrs, "name")
	path := ensureRooted(dir)
	if !strings.HasSuffix(path, "/") {
		path += "/"
	}
	path += name

	data := strings.TrimSpace(ff.data.String())
	var payload []byte
	if data != "" {
		enc, _ := findAttr(ff.attrs, "encoding")
		if enc == "" || strings.EqualFold(enc, "base64") {
			p, err := base64.StdEncoding.DecodeString(strings.Join(strings.Fields(data), ""))
			if err == nil {
				payload = p
			}
		} else {
			payload = []byte(data)
		}
	}
	i := b.doc.files.Resolve(path)
	f := b.doc.files.At(i)
	if f.Payload == nil && payload != nil {
		f.Payload = payload
	}
	for _, a := range ff.attrs {
		if a.Key != "path" && a.Key != "name" {
			f.setMeta(a.Key, a.Val)
		}
	}
}

// finish closes every open element and moves the root's children into the
// document.
func (b *builder) finish() {
	for len(b.stack) > 1 {
		b.pop()
	}
	b.doc.Segments = append(b.doc.Segments, b.root.Children...)
	b.root.Children = nil
}

func hasLocator(attrs []Attr) bool {
	_, src := findAttr(attrs, "src")
	_, href := findAttr(attrs, "href")
	return src || href
}

var mathPattern = regexp.MustCompile(`(?s)\\\((.+?)\\\)|\\\[(.+?)\\\]|\$\$(.+?)\$\$`)

func splitMath(s string) []Segment {
	locs := mathPattern.FindAllStringSubmatchIndex(s, -1)
	if len(locs) == 0 {
		return []Segment{Literal(s)}
	}
	var out []Segment
	last := 0
	for _, l := range locs {
		if l[0] > last {
			out = append(out, Literal(s[last:l[0]]))
		}
		switch {
		case l[2] >= 0:
			out = append(out, MathSegment(&Math{Source: s[l[2]:l[3]]}))
		case l[4] >= 0:
			out = append(out, MathSegment(&Math{Source: s[l[4]:l[5]], Display: true}))
		default:
			out = append(out, MathSegment(&Math{Source: s[l[6]:l[7]], Display: true}))
		}
		last = l[1]
	}
	if last < len(s) {
		out = append(out, Literal(s[last:]))
	}
	return out
}
