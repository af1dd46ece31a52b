package storage

import "io"

// BlobStore holds attachment bytes by slash-separated key. Its Get makes it
// a richtext.Attachments source for import fills.
type BlobStore interface {
	Put(key string, r io.Reader) (string, error) // returns canonical key
	Get(key string) (io.ReadCloser, error)
}
