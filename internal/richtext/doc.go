// Package richtext holds the formatted-text model shared by every question
// dialect: an ordered segment sequence (literal text, markup nodes, media
// references, embedded-answer items, math) plus the deduplicated set of
// files those segments reference.
//
// Parsers (ParseMarkup, ParseMarkdown, ParsePlain, ParseCloze) each return a
// Document; Document.Add merges them and Document.Get renders to a Dialect.
// A Document is owned by one caller at a time and is not safe for
// concurrent mutation.
package richtext
