package qti

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"io"
	"path"
	"strings"
)

type imsManifest struct {
	XMLName    xml.Name      `xml:"manifest"`
	Xmlns      string        `xml:"xmlns,attr,omitempty"`
	Identifier string        `xml:"identifier,attr,omitempty"`
	Resources  []imsResource `xml:"resources>resource"`
}

type imsResource struct {
	Identifier string    `xml:"identifier,attr"`
	Type       string    `xml:"type,attr"`
	Href       string    `xml:"href,attr"`
	Files      []imsFile `xml:"file"`
}

type imsFile struct {
	Href string `xml:"href,attr"`
}

// pkg is an opened content package.
type pkg struct {
	files map[string]*zip.File
}

func openPackage(r io.ReaderAt, size int64) (*pkg, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("qti: %w", err)
	}
	p := &pkg{files: map[string]*zip.File{}}
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		p.files[path.Clean(f.Name)] = f
	}
	return p, nil
}

func (p *pkg) read(name string) ([]byte, error) {
	f, ok := p.files[path.Clean(name)]
	if !ok {
		return nil, fmt.Errorf("qti: %s not in package", name)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// Get serves package members to richtext.Files.Fill.
func (p *pkg) Get(key string) (io.ReadCloser, error) {
	f, ok := p.files[path.Clean(key)]
	if !ok {
		return nil, fmt.Errorf("qti: %s not in package", key)
	}
	return f.Open()
}

// items returns the item hrefs listed in the manifest, in order.
func (p *pkg) items() ([]string, error) {
	var b []byte
	var err error
	for _, name := range []string{manifestFn, "manifest.xml"} {
		if b, err = p.read(name); err == nil {
			break
		}
	}
	if err != nil {
		return nil, fmt.Errorf("qti: imsmanifest.xml not found")
	}
	var mf imsManifest
	if err := xml.Unmarshal(b, &mf); err != nil {
		return nil, fmt.Errorf("qti: manifest: %w", err)
	}
	var out []string
	for _, r := range mf.Resources {
		href := strings.ToLower(r.Href)
		if strings.HasSuffix(href, ".xml") && !strings.Contains(href, "manifest") &&
			(r.Type == "" || strings.HasPrefix(r.Type, "imsqti_item")) {
			out = append(out, r.Href)
		}
	}
	return out, nil
}
