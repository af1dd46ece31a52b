package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mind-engage/mindengage-qbank/internal/richtext"
)

func TestFSStore_PutGet(t *testing.T) {
	s, err := NewFSStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	key, err := s.Put("/pics/../pics/a.txt", strings.NewReader("hello"))
	if err != nil {
		t.Fatal(err)
	}
	if key != "pics/a.txt" {
		t.Errorf("key = %q", key)
	}
	rc, err := s.Get("pics/a.txt")
	if err != nil {
		t.Fatal(err)
	}
	defer rc.Close()
	b, _ := io.ReadAll(rc)
	if string(b) != "hello" {
		t.Errorf("got %q", b)
	}
	if _, err := s.Get("missing.txt"); !os.IsNotExist(err) {
		t.Errorf("missing: err = %v", err)
	}
}

func TestFSStore_StaysInBase(t *testing.T) {
	dir := t.TempDir()
	s, _ := NewFSStore(filepath.Join(dir, "blobs"))
	key, err := s.Put("../../escape.txt", strings.NewReader("x"))
	if err != nil {
		t.Fatal(err)
	}
	if key != "escape.txt" {
		t.Errorf("key = %q", key)
	}
	if _, err := os.Stat(filepath.Join(dir, "blobs", "escape.txt")); err != nil {
		t.Errorf("file not under base: %v", err)
	}
	if _, err := s.Put("/", strings.NewReader("x")); err != ErrBadKey {
		t.Errorf("empty key: err = %v", err)
	}
}

func TestFSStore_FillsDocumentFiles(t *testing.T) {
	s, _ := NewFSStore(t.TempDir())
	if _, err := s.Put("img/dot.txt", strings.NewReader("payload")); err != nil {
		t.Fatal(err)
	}
	doc, err := richtext.ParseMarkup(`<a href="@@PLUGINFILE@@/img/dot.txt">f</a><img src="@@PLUGINFILE@@/img/none.png">`)
	if err != nil {
		t.Fatal(err)
	}
	if err := doc.FillFiles(context.Background(), s); err != nil {
		t.Fatal(err)
	}
	fs := doc.Files()
	i, _ := fs.Lookup("/img/dot.txt")
	if got := string(fs.At(i).Payload); got != "payload" {
		t.Errorf("payload = %q", got)
	}
	j, _ := fs.Lookup("/img/none.png")
	if fs.At(j).Resolved() {
		t.Error("missing blob resolved")
	}
}
