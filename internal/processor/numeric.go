package processor

import (
	"strconv"
	"strings"
)

// NewRange returns a numeric processor: the first interval containing the
// response wins, in values order.
func NewRange(cfg Config) (Processor, error) {
	cfg = cloneConfig(cfg)
	cfg.Family = FamilyRange
	vals := cfg.Values
	return Processor{
		cfg: cfg,
		eval: func(response any) Outcome {
			v, ok := asFloat(response)
			if !ok {
				return miss()
			}
			for _, e := range vals {
				if e.Interval.Contains(v) {
					return e.Outcome
				}
			}
			return miss()
		},
	}, nil
}

func asFloat(response any) (float64, bool) {
	switch v := response.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		return ParseFloatLoose(v)
	default:
		return 0, false
	}
}

// ParseFloatLoose parses a number, falling back to the first field so
// "3.5 cm" reads as 3.5. A decimal comma is accepted.
func ParseFloatLoose(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return v, true
	}
	if sp := strings.Fields(s); len(sp) > 0 {
		f := strings.Replace(sp[0], ",", ".", 1)
		if v, err := strconv.ParseFloat(f, 64); err == nil {
			return v, true
		}
	}
	return 0, false
}
