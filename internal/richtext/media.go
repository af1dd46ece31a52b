package richtext

import (
	"encoding/base64"
	"net/url"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// referenceTags carry a resource locator in href or src.
var referenceTags = map[string]bool{
	"a":      true,
	"audio":  true,
	"embed":  true,
	"file":   true,
	"iframe": true,
	"image":  true,
	"img":    true,
	"object": true,
	"script": true,
	"source": true,
	"track":  true,
	"video":  true,
}

// IsReferenceTag reports whether tag binds its href/src to a File.
func IsReferenceTag(tag string) bool { return referenceTags[tag] }

// bindMedia pulls the locator out of attrs and binds it to a file in fs.
// ok is false when the element has no bank-resource locator and should
// stay a plain node.
func bindMedia(fs *Files, tag string, attrs []Attr) (*Media, bool) {
	if !referenceTags[tag] {
		return nil, false
	}
	li := -1
	for i, a := range attrs {
		if a.Key == "src" || a.Key == "href" {
			li = i
			break
		}
	}
	if li < 0 {
		return nil, false
	}
	loc := strings.TrimSpace(attrs[li].Val)
	rest := make([]Attr, 0, len(attrs)-1)
	rest = append(rest, attrs[:li]...)
	rest = append(rest, attrs[li+1:]...)
	m := &Media{Tag: tag, Attrs: rest, LocatorAttr: attrs[li].Key, Locator: loc}

	if strings.HasPrefix(loc, "data:") {
		idx, ok := resolveDataURI(fs, loc)
		if !ok {
			return nil, false
		}
		m.File = idx
		return m, true
	}
	if isExternalURL(loc) {
		return nil, false
	}
	key, fam := classifyLocator(loc)
	m.File = fs.Resolve(key)
	if fam != familyNone {
		fs.At(m.File).setMeta("token", fam)
	}
	return m, true
}

// resolveDataURI decodes data:MIME[;base64],PAYLOAD into a new file named
// /{N}{ext}, N being the first number from the store's size whose path is
// still free.
func resolveDataURI(fs *Files, uri string) (int, bool) {
	body := strings.TrimPrefix(uri, "data:")
	comma := strings.Index(body, ",")
	if comma < 0 {
		return 0, false
	}
	header, data := body[:comma], body[comma+1:]
	isB64 := false
	if strings.HasSuffix(header, ";base64") {
		isB64 = true
		header = strings.TrimSuffix(header, ";base64")
	}
	mime := header
	if i := strings.Index(mime, ";"); i >= 0 {
		mime = mime[:i]
	}
	if mime == "" {
		mime = "text/plain"
	}

	var payload []byte
	if isB64 {
		b, err := base64.StdEncoding.DecodeString(data)
		if err != nil {
			b, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(data, "="))
			if err != nil {
				return 0, false
			}
		}
		payload = b
	} else {
		s, err := url.PathUnescape(data)
		if err != nil {
			s = data
		}
		payload = []byte(s)
	}

	i := fs.Put(fs.freshPath(extensionFor(mime)), payload, mime)
	fs.At(i).setMeta("token", familyInline)
	return i, true
}

func extensionFor(mime string) string {
	if m := mimetype.Lookup(mime); m != nil && m.Extension() != "" {
		return m.Extension()
	}
	if i := strings.Index(mime, "/"); i >= 0 && i+1 < len(mime) {
		sub := mime[i+1:]
		if j := strings.IndexAny(sub, "+."); j > 0 {
			sub = sub[:j]
		}
		return "." + sub
	}
	return ".bin"
}
