package richtext

import "github.com/mind-engage/mindengage-qbank/internal/processor"

// Kind tags a Segment.
type Kind int

const (
	KindLiteral Kind = iota
	KindNode
	KindMedia
	KindChoice
	KindEntry
	KindMath
)

func (k Kind) String() string {
	switch k {
	case KindLiteral:
		return "literal"
	case KindNode:
		return "node"
	case KindMedia:
		return "media"
	case KindChoice:
		return "choice"
	case KindEntry:
		return "entry"
	case KindMath:
		return "math"
	}
	return "unknown"
}

// Segment is one element of a document's content. Exactly one of the
// payload fields is set, selected by Kind.
type Segment struct {
	Kind  Kind
	Text  string // literal
	Node  *Node
	Media *Media
	Item  *Item // choice and entry
	Math  *Math
}

func Literal(s string) Segment      { return Segment{Kind: KindLiteral, Text: s} }
func NodeSegment(n *Node) Segment   { return Segment{Kind: KindNode, Node: n} }
func MediaSegment(m *Media) Segment { return Segment{Kind: KindMedia, Media: m} }
func MathSegment(m *Math) Segment   { return Segment{Kind: KindMath, Math: m} }

// ItemSegment wraps an embedded-answer item, choosing the kind from its shape.
func ItemSegment(it *Item) Segment {
	if it.Choice {
		return Segment{Kind: KindChoice, Item: it}
	}
	return Segment{Kind: KindEntry, Item: it}
}

// Attr is a markup attribute. Order is kept for serialization only.
type Attr struct {
	Key string
	Val string
}

// Node is a markup element. A closed node has no children slot and renders
// self-closing.
type Node struct {
	Tag      string
	Attrs    []Attr
	Children []Segment
	Closed   bool
}

// Attr returns the value of the first attribute named key.
func (n *Node) Attr(key string) (string, bool) { return findAttr(n.Attrs, key) }

// Media is a markup element bound to a file. Locator is the original
// href/src value; LocatorAttr records which attribute carried it.
type Media struct {
	Tag         string
	Attrs       []Attr
	LocatorAttr string
	Locator     string
	File        int
	Children    []Segment
	Closed      bool
}

// Item is an embedded answer. Options and Labels follow the processor's
// values order; Feedback is indexed by each outcome's Feedback field.
type Item struct {
	Weight     float64
	Choice     bool
	Multiple   bool
	Horizontal bool
	Options    []string
	Labels     []*Document
	Feedback   []string
	Processor  processor.Processor
}

// FeedbackFor returns the feedback text attached to an outcome, if any.
func (it *Item) FeedbackFor(o processor.Outcome) (string, bool) {
	if o.Feedback < 0 || o.Feedback >= len(it.Feedback) {
		return "", false
	}
	return it.Feedback[o.Feedback], true
}

// Math is a TeX-style math expression.
type Math struct {
	Source  string
	Display bool
}

func findAttr(attrs []Attr, key string) (string, bool) {
	for _, a := range attrs {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

// remap copies a segment, translating file indices through m.
func (s Segment) remap(m []int) Segment {
	switch s.Kind {
	case KindNode:
		n := *s.Node
		n.Attrs = append([]Attr(nil), s.Node.Attrs...)
		n.Children = remapAll(s.Node.Children, m)
		s.Node = &n
	case KindMedia:
		md := *s.Media
		md.Attrs = append([]Attr(nil), s.Media.Attrs...)
		md.Children = remapAll(s.Media.Children, m)
		if md.File >= 0 && md.File < len(m) {
			md.File = m[md.File]
		}
		s.Media = &md
	case KindChoice, KindEntry:
		it := *s.Item
		s.Item = &it
	case KindMath:
		mt := *s.Math
		s.Math = &mt
	}
	return s
}

func remapAll(segs []Segment, m []int) []Segment {
	if segs == nil {
		return nil
	}
	out := make([]Segment, len(segs))
	for i, s := range segs {
		out[i] = s.remap(m)
	}
	return out
}
