package richtext

import (
	"fmt"
	"io"
)

// ParsePlain wraps text as a single literal segment. data must be a string
// or an io.Reader, which is read to the end.
func ParsePlain(data any) (*Document, error) {
	switch v := data.(type) {
	case string:
		return &Document{Segments: []Segment{Literal(v)}}, nil
	case io.Reader:
		b, err := io.ReadAll(v)
		if err != nil {
			return nil, fmt.Errorf("read plain text: %w", err)
		}
		return &Document{Segments: []Segment{Literal(string(b))}}, nil
	default:
		return nil, &ParseError{Pos: -1, Msg: fmt.Sprintf("plain parser cannot read %T", data)}
	}
}
