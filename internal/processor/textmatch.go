package processor

import (
	"fmt"
	"regexp"
	"strings"
)

// NewPattern returns a short-answer processor. Each key matches the whole
// response; '*' in a key matches any run of characters and "\*" a literal
// star. Matching ignores case unless cfg.CaseSensitive is set.
func NewPattern(cfg Config) (Processor, error) {
	cfg = cloneConfig(cfg)
	cfg.Family = FamilyPattern

	res := make([]*regexp.Regexp, len(cfg.Values))
	for i, e := range cfg.Values {
		re, err := compileWildcard(e.Key, cfg.CaseSensitive)
		if err != nil {
			return Processor{}, fmt.Errorf("processor: pattern %q: %w", e.Key, err)
		}
		res[i] = re
	}
	vals := cfg.Values
	return Processor{
		cfg: cfg,
		eval: func(response any) Outcome {
			s, ok := asString(response)
			if !ok {
				return miss()
			}
			s = strings.TrimSpace(s)
			for i, re := range res {
				if re.MatchString(s) {
					return vals[i].Outcome
				}
			}
			return miss()
		},
	}, nil
}

func compileWildcard(key string, caseSensitive bool) (*regexp.Regexp, error) {
	var b strings.Builder
	if !caseSensitive {
		b.WriteString("(?i)")
	}
	b.WriteString(`^\s*`)
	rs := []rune(strings.TrimSpace(key))
	for i := 0; i < len(rs); i++ {
		switch {
		case rs[i] == '\\' && i+1 < len(rs) && rs[i+1] == '*':
			b.WriteString(`\*`)
			i++
		case rs[i] == '*':
			b.WriteString(".*")
		default:
			b.WriteString(regexp.QuoteMeta(string(rs[i])))
		}
	}
	b.WriteString(`\s*$`)
	return regexp.Compile(b.String())
}
