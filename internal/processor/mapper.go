package processor

import "fmt"

// NewMapper returns a processor whose first key equal to the response wins.
// Probes are compared in their string form.
func NewMapper(cfg Config) (Processor, error) {
	cfg = cloneConfig(cfg)
	cfg.Family = FamilyMapper
	vals := cfg.Values
	return Processor{
		cfg: cfg,
		eval: func(response any) Outcome {
			s, ok := asString(response)
			if !ok {
				return miss()
			}
			for _, e := range vals {
				if e.Key == s {
					return e.Outcome
				}
			}
			return miss()
		},
	}, nil
}

func asString(response any) (string, bool) {
	switch v := response.(type) {
	case string:
		return v, true
	case fmt.Stringer:
		return v.String(), true
	case nil:
		return "", false
	default:
		return fmt.Sprint(v), true
	}
}
