package formats

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/mind-engage/mindengage-qbank/internal/bank"
	"github.com/mind-engage/mindengage-qbank/internal/richtext"
)

type nopAdapter struct{}

func (nopAdapter) Import(context.Context, io.Reader, Options) (*bank.Bank, error) { return nil, nil }
func (nopAdapter) Export(context.Context, io.Writer, *bank.Bank, Options) error   { return nil }
func (nopAdapter) ContentType() string                                             { return "text/plain" }

type mapAttachments map[string]string

func (m mapAttachments) Get(key string) (io.ReadCloser, error) {
	s, ok := m[key]
	if !ok {
		return nil, errors.New("not found")
	}
	return io.NopCloser(strings.NewReader(s)), nil
}

func TestRegistry(t *testing.T) {
	Register("zz-test", nopAdapter{})
	Register("aa-test", nopAdapter{})
	if _, ok := Lookup("zz-test"); !ok {
		t.Fatal("lookup failed")
	}
	if _, ok := Lookup("missing"); ok {
		t.Fatal("lookup of unknown name succeeded")
	}
	names := Names()
	for i := 1; i < len(names); i++ {
		if names[i-1] > names[i] {
			t.Fatalf("names not sorted: %v", names)
		}
	}

	defer func() {
		if recover() == nil {
			t.Error("duplicate Register did not panic")
		}
	}()
	Register("zz-test", nopAdapter{})
}

func TestFinish_FillsAndValidates(t *testing.T) {
	doc, err := richtext.ParseMarkup(`<img src="@@PLUGINFILE@@/a.txt">`)
	if err != nil {
		t.Fatal(err)
	}
	b := &bank.Bank{Questions: []*bank.Question{{ID: "q1", Type: bank.TypeDescription, Text: doc}}}
	if _, err := Finish(context.Background(), b, Options{Attachments: mapAttachments{"a.txt": "hello"}}); err != nil {
		t.Fatal(err)
	}
	if got := string(doc.Files().At(0).Payload); got != "hello" {
		t.Errorf("payload = %q", got)
	}

	b.Questions = append(b.Questions, &bank.Question{ID: "q1", Type: bank.TypeDescription, Text: doc})
	if _, err := Finish(context.Background(), b, Options{}); !errors.Is(err, bank.ErrInvalid) {
		t.Errorf("duplicate ids: err = %v", err)
	}
}

func TestMarkupOptions_Strict(t *testing.T) {
	src := `<p/>text`
	if _, err := richtext.ParseMarkup(src, Options{}.MarkupOptions()...); err != nil {
		t.Errorf("lenient parse: %v", err)
	}
	var pe *richtext.ParseError
	if _, err := richtext.ParseMarkup(src, Options{Strict: true}.MarkupOptions()...); !errors.As(err, &pe) {
		t.Errorf("strict parse: err = %v, want ParseError", err)
	}
}
