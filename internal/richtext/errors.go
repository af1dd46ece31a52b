package richtext

import "fmt"

// ParseError reports malformed input: bad markup under strict checking, or
// an input value of the wrong type.
type ParseError struct {
	Pos int // byte offset, -1 when unknown
	Msg string
}

func (e *ParseError) Error() string {
	if e.Pos >= 0 {
		return fmt.Sprintf("richtext: parse error at %d: %s", e.Pos, e.Msg)
	}
	return "richtext: parse error: " + e.Msg
}

// FormatError reports cloze text or items that cannot be mapped to a known
// embedded-answer kind.
type FormatError struct {
	Token string
	Msg   string
}

func (e *FormatError) Error() string {
	if e.Token != "" {
		return fmt.Sprintf("richtext: format error: %s (%q)", e.Msg, e.Token)
	}
	return "richtext: format error: " + e.Msg
}

func parseErrorf(pos int, format string, args ...any) error {
	return &ParseError{Pos: pos, Msg: fmt.Sprintf(format, args...)}
}
