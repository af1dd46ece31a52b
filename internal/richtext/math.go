package richtext

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// MathMode selects how math segments are written.
type MathMode int

const (
	MathAuto   MathMode = iota // pretty text for plain/markdown, TeX delimiters elsewhere
	MathLaTeX                  // \( .. \) or \[ .. \]
	MathMathML                 // MathML when the renderer supports it
	MathImage                  // rendered image through the render cache
)

// ParseMathMode maps a mode name (auto, latex, mathml, image) to a MathMode.
func ParseMathMode(s string) (MathMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return MathAuto, nil
	case "latex", "tex":
		return MathLaTeX, nil
	case "mathml":
		return MathMathML, nil
	case "image", "img", "svg":
		return MathImage, nil
	}
	return MathAuto, fmt.Errorf("unknown math mode %q", s)
}

// Rendering is the result of an external math render: an SVG path on disk
// or the image bytes themselves.
type Rendering struct {
	MIME string
	Data []byte
	Path string
}

// MathRenderer turns math source into an image. mathrender.Cache
// implements it.
type MathRenderer interface {
	RenderMath(ctx context.Context, src string) (*Rendering, error)
}

// MathMLRenderer is an optional capability of a MathRenderer.
type MathMLRenderer interface {
	RenderMathML(ctx context.Context, src string) (string, error)
}

// LaTeX returns the delimited TeX form of m.
func (m *Math) LaTeX() string {
	if m.Display {
		return `\[` + m.Source + `\]`
	}
	return `\(` + m.Source + `\)`
}

var texSymbols = map[string]string{
	"alpha": "α", "beta": "β", "gamma": "γ", "delta": "δ", "epsilon": "ε",
	"theta": "θ", "lambda": "λ", "mu": "μ", "pi": "π", "sigma": "σ",
	"phi": "φ", "omega": "ω", "Delta": "Δ", "Sigma": "Σ", "Omega": "Ω",
	"times": "×", "cdot": "·", "div": "÷", "pm": "±", "mp": "∓",
	"leq": "≤", "le": "≤", "geq": "≥", "ge": "≥", "neq": "≠", "ne": "≠",
	"approx": "≈", "infty": "∞", "to": "→", "rightarrow": "→", "leftarrow": "←",
	"sum": "∑", "prod": "∏", "int": "∫", "partial": "∂", "nabla": "∇",
	"in": "∈", "notin": "∉", "subset": "⊂", "cup": "∪", "cap": "∩",
	"forall": "∀", "exists": "∃", "degree": "°", "ldots": "…", "cdots": "⋯",
}

var (
	texFrac    = regexp.MustCompile(`\\[dt]?frac\{([^{}]*)\}\{([^{}]*)\}`)
	texSqrt    = regexp.MustCompile(`\\sqrt\{([^{}]*)\}`)
	texCommand = regexp.MustCompile(`\\([A-Za-z]+)`)
	texSpacing = regexp.MustCompile(`\\[,;:! ]`)
)

// PrettyMath renders TeX source as readable plain text.
func PrettyMath(src string) string {
	s := src
	for {
		next := texFrac.ReplaceAllString(s, "($1)/($2)")
		next = texSqrt.ReplaceAllString(next, "√($1)")
		if next == s {
			break
		}
		s = next
	}
	s = texSpacing.ReplaceAllString(s, " ")
	s = texCommand.ReplaceAllStringFunc(s, func(cmd string) string {
		name := cmd[1:]
		if sym, ok := texSymbols[name]; ok {
			return sym
		}
		switch name {
		case "left", "right", "displaystyle", "mathrm", "text", "mathbf":
			return ""
		}
		return name
	})
	s = strings.NewReplacer("{", "", "}", "", "  ", " ").Replace(s)
	return strings.TrimSpace(s)
}
