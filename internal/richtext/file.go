package richtext

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// File is a resource referenced by a document. Payload is nil until the
// bytes are known (inline data, a <file> element, or an Attachments fill).
type File struct {
	Path     string            `json:"path"`
	Payload  []byte            `json:"payload,omitempty"`
	MIME     string            `json:"mime,omitempty"`
	Meta     map[string]string `json:"meta,omitempty"`
	Children []int             `json:"children,omitempty"`
}

// Resolved reports whether the payload is known.
func (f *File) Resolved() bool { return f.Payload != nil }

// Name is the last path element.
func (f *File) Name() string {
	if i := strings.LastIndex(f.Path, "/"); i >= 0 {
		return f.Path[i+1:]
	}
	return f.Path
}

// Dir is the path up to and including the last slash ("/" when none).
func (f *File) Dir() string {
	if i := strings.LastIndex(f.Path, "/"); i >= 0 {
		return f.Path[:i+1]
	}
	return "/"
}

// DataURI encodes the payload as data:MIME;base64,...
func (f *File) DataURI() string {
	return "data:" + f.mimeOrDetect() + ";base64," + base64.StdEncoding.EncodeToString(f.Payload)
}

// Local reports whether the file is a bank resource that travels with the
// question (as opposed to a wiki page or tool link that happens to share
// the store).
func (f *File) Local() bool {
	fam := f.Meta["token"]
	return isLocalFamily(fam) || fam == familyInline
}

// Base64 is the payload in standard base64.
func (f *File) Base64() string { return base64.StdEncoding.EncodeToString(f.Payload) }

func (f *File) mimeOrDetect() string {
	if f.MIME != "" {
		return f.MIME
	}
	if f.Payload != nil {
		f.MIME = mimetype.Detect(f.Payload).String()
		return f.MIME
	}
	return "application/octet-stream"
}

func (f *File) setMeta(k, v string) {
	if f.Meta == nil {
		f.Meta = map[string]string{}
	}
	f.Meta[k] = v
}

// Files is an index-based file store. Segments refer to files by index;
// paths are unique within one store.
type Files struct {
	list  []*File
	index map[string]int
}

// Len is the number of known files.
func (fs *Files) Len() int { return len(fs.list) }

// At returns the file at index i.
func (fs *Files) At(i int) *File {
	if i < 0 || i >= len(fs.list) {
		return nil
	}
	return fs.list[i]
}

// All returns the files in registration order.
func (fs *Files) All() []*File { return fs.list }

// Lookup finds the index of a file by exact path.
func (fs *Files) Lookup(path string) (int, bool) {
	i, ok := fs.index[path]
	return i, ok
}

// Resolve returns the index of the file with this path, registering an
// unresolved entry when the path is new.
func (fs *Files) Resolve(path string) int {
	if i, ok := fs.index[path]; ok {
		return i
	}
	if fs.index == nil {
		fs.index = map[string]int{}
	}
	fs.list = append(fs.list, &File{Path: path})
	i := len(fs.list) - 1
	fs.index[path] = i
	return i
}

// Put registers payload bytes for path, reusing an existing entry.
// An existing payload is kept; the first bytes seen win.
func (fs *Files) Put(path string, payload []byte, mime string) int {
	i := fs.Resolve(path)
	f := fs.list[i]
	if f.Payload == nil {
		f.Payload = payload
	}
	if f.MIME == "" {
		f.MIME = mime
	}
	return i
}

// freshPath returns an unused /{N}{ext} path.
func (fs *Files) freshPath(ext string) string {
	for n := fs.Len(); ; n++ {
		p := "/" + strconv.Itoa(n) + ext
		if _, ok := fs.index[p]; !ok {
			return p
		}
	}
}

// union merges other into fs by path and returns old-index -> new-index.
// Inline files carry generated names, so an inline file whose path is
// taken by different bytes is renamed instead of merged.
func (fs *Files) union(other *Files) []int {
	remap := make([]int, len(other.list))
	for i, f := range other.list {
		p := f.Path
		if f.Meta["token"] == familyInline {
			if j, ok := fs.index[p]; ok && !bytes.Equal(fs.list[j].Payload, f.Payload) {
				p = fs.freshPath(path.Ext(f.Path))
			}
		}
		j := fs.Put(p, f.Payload, f.MIME)
		dst := fs.list[j]
		for k, v := range f.Meta {
			if _, ok := dst.Meta[k]; !ok {
				dst.setMeta(k, v)
			}
		}
		remap[i] = j
	}
	for i, f := range other.list {
		dst := fs.list[remap[i]]
		for _, c := range f.Children {
			if c >= 0 && c < len(remap) && !containsInt(dst.Children, remap[c]) {
				dst.Children = append(dst.Children, remap[c])
			}
		}
	}
	return remap
}

func containsInt(xs []int, v int) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}

// Attachments supplies bytes for files referenced by path only.
// storage.BlobStore satisfies it.
type Attachments interface {
	Get(key string) (io.ReadCloser, error)
}

// Fill asks src for every unresolved local file. Files the source does not
// have stay unresolved; the first read error is returned after all files
// were tried.
func (fs *Files) Fill(ctx context.Context, src Attachments) error {
	var firstErr error
	for _, f := range fs.list {
		if err := ctx.Err(); err != nil {
			return err
		}
		if f.Resolved() || !isLocalFamily(f.Meta["token"]) {
			continue
		}
		rc, err := src.Get(strings.TrimPrefix(f.Path, "/"))
		if err != nil {
			continue
		}
		b, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("read attachment %s: %w", f.Path, err)
			}
			continue
		}
		f.Payload = b
		if f.MIME == "" {
			f.MIME = mimetype.Detect(b).String()
		}
	}
	return firstErr
}
