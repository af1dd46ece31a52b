package formats

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/mind-engage/mindengage-qbank/internal/bank"
	"github.com/mind-engage/mindengage-qbank/internal/richtext"
)

// Adapter reads and writes one question-bank file dialect.
type Adapter interface {
	// Import parses a dialect-specific file or package into a Bank.
	Import(ctx context.Context, r io.Reader, opt Options) (*bank.Bank, error)
	// Export writes b in the adapter's dialect.
	Export(ctx context.Context, w io.Writer, b *bank.Bank, opt Options) error
	// ContentType is the MIME type of exported data.
	ContentType() string
}

// Options carries the collaborators and switches shared by all adapters.
type Options struct {
	Strict      bool                  // reject malformed markup
	Attachments richtext.Attachments  // resolves referenced files on import
	Math        richtext.MathRenderer // math images and MathML on export
	MathMode    richtext.MathMode
	Embed       bool // write files inline as data URIs where the dialect allows
}

// MarkupOptions are the markup parser options implied by o.
func (o Options) MarkupOptions() []richtext.MarkupOption {
	opts := []richtext.MarkupOption{richtext.WithMath()}
	if o.Strict {
		opts = append(opts, richtext.WithStrict())
	}
	return opts
}

// RenderOptions are the serializer options implied by o.
func (o Options) RenderOptions(ctx context.Context, refs richtext.ReferenceResolver) []richtext.RenderOption {
	opts := []richtext.RenderOption{
		richtext.WithContext(ctx),
		richtext.WithMathMode(o.MathMode),
	}
	if o.Math != nil {
		opts = append(opts, richtext.WithMathRenderer(o.Math))
	}
	if refs != nil {
		opts = append(opts, richtext.WithReferences(refs))
	}
	if o.Embed {
		opts = append(opts, richtext.WithEmbed())
	}
	return opts
}

// Finish runs the common post-import steps: attachment fill and validation.
func Finish(ctx context.Context, b *bank.Bank, opt Options) (*bank.Bank, error) {
	if opt.Attachments != nil {
		if err := b.FillFiles(ctx, opt.Attachments); err != nil {
			return nil, err
		}
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return b, nil
}

var (
	mu       sync.RWMutex
	registry = map[string]Adapter{}
)

// Register an adapter by dialect name. Call from init() in subpackages.
func Register(name string, a Adapter) {
	mu.Lock()
	defer mu.Unlock()
	if _, dup := registry[name]; dup {
		panic(fmt.Sprintf("formats: %s registered twice", name))
	}
	registry[name] = a
}

// Lookup returns a registered adapter.
func Lookup(name string) (Adapter, bool) {
	mu.RLock()
	defer mu.RUnlock()
	a, ok := registry[name]
	return a, ok
}

// Names lists registered dialects, sorted.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(registry))
	for k := range registry {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
