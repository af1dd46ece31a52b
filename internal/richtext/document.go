package richtext

import "context"

// Document is the formatted-text aggregate: ordered segments plus the
// files they reference.
type Document struct {
	Segments []Segment
	files    Files
}

// New returns an empty document.
func New() *Document { return &Document{} }

// Files exposes the document's file store.
func (d *Document) Files() *Files { return &d.files }

// Add appends src's segments and unions its files by path. src is not
// modified and shares no mutable state with d afterwards.
func (d *Document) Add(src *Document) *Document {
	if src == nil {
		return d
	}
	remap := d.files.union(&src.files)
	for _, s := range src.Segments {
		d.Segments = append(d.Segments, s.remap(remap))
	}
	return d
}

// AddText appends one literal segment.
func (d *Document) AddText(s string) *Document {
	d.Segments = append(d.Segments, Literal(s))
	return d
}

// Empty reports whether the document has no segments.
func (d *Document) Empty() bool { return d == nil || len(d.Segments) == 0 }

// Items returns every embedded-answer item in document order, including
// items nested inside markup nodes.
func (d *Document) Items() []*Item {
	var out []*Item
	walk(d.Segments, func(s Segment) {
		if s.Kind == KindChoice || s.Kind == KindEntry {
			out = append(out, s.Item)
		}
	})
	return out
}

// Media returns every media reference in document order.
func (d *Document) Media() []*Media {
	var out []*Media
	walk(d.Segments, func(s Segment) {
		if s.Kind == KindMedia {
			out = append(out, s.Media)
		}
	})
	return out
}

// FillFiles resolves unresolved local files through src.
func (d *Document) FillFiles(ctx context.Context, src Attachments) error {
	return d.files.Fill(ctx, src)
}

func walk(segs []Segment, fn func(Segment)) {
	for _, s := range segs {
		fn(s)
		switch s.Kind {
		case KindNode:
			walk(s.Node.Children, fn)
		case KindMedia:
			walk(s.Media.Children, fn)
		}
	}
}
