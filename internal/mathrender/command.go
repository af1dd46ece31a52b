package mathrender

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/zeebo/blake3"

	"github.com/mind-engage/mindengage-qbank/internal/richtext"
)

// ErrUnsupported is returned when a capability (MathML) is not available.
var ErrUnsupported = errors.New("mathrender: not supported")

// Renderer produces an image for one math source.
type Renderer interface {
	Render(ctx context.Context, src string) (*richtext.Rendering, error)
}

// Command renders math by running an external tool that takes the TeX
// source as its last argument and writes an image (SVG by default) to
// stdout. When Dir is set the image is also written there, named by the
// BLAKE3 hash of the source.
type Command struct {
	Name    string
	Args    []string
	MathML  string // optional TeX to MathML tool, same calling convention
	Dir     string
	Timeout time.Duration
}

func NewCommand(name, dir string) *Command {
	return &Command{Name: name, MathML: "tex2mml", Dir: dir, Timeout: 20 * time.Second}
}

func (c *Command) Render(ctx context.Context, src string) (*richtext.Rendering, error) {
	out, err := c.run(ctx, c.Name, src)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(out)) == 0 {
		return nil, fmt.Errorf("%s: empty output", c.Name)
	}
	mime := mimetype.Detect(out).String()
	if i := strings.Index(mime, ";"); i >= 0 {
		mime = mime[:i]
	}
	r := &richtext.Rendering{MIME: mime, Data: out}
	if c.Dir != "" {
		path := filepath.Join(c.Dir, FileName(src)+extension(mime))
		if err := os.MkdirAll(c.Dir, 0o755); err != nil {
			return nil, err
		}
		if err := os.WriteFile(path, out, 0o644); err != nil {
			return nil, err
		}
		r.Path = path
	}
	return r, nil
}

// RenderMathML runs the MathML tool when it is installed.
func (c *Command) RenderMathML(ctx context.Context, src string) (string, error) {
	if c.MathML == "" {
		return "", ErrUnsupported
	}
	if _, err := exec.LookPath(c.MathML); err != nil {
		return "", ErrUnsupported
	}
	out, err := c.run(ctx, c.MathML, src)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

func (c *Command) run(ctx context.Context, name, src string) ([]byte, error) {
	if _, err := exec.LookPath(name); err != nil {
		return nil, fmt.Errorf("%s not found in PATH", name)
	}
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}
	args := append(append([]string(nil), c.Args...), src)
	cmd := exec.CommandContext(ctx, name, args...)
	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%s: %w", name, ctx.Err())
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return nil, errors.New(msg)
	}
	return out.Bytes(), nil
}

// FileName is the on-disk base name for a rendered source.
func FileName(src string) string {
	sum := blake3.Sum256([]byte(src))
	return fmt.Sprintf("%x", sum[:16])
}

func extension(mime string) string {
	if m := mimetype.Lookup(mime); m != nil && m.Extension() != "" {
		return m.Extension()
	}
	return ".svg"
}
