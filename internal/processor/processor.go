package processor

import (
	"fmt"
	"sort"
	"sync"
)

// Family names a processor factory in the registry.
type Family string

const (
	FamilyMapper  Family = "mapper"  // exact key equality (choices, identifiers)
	FamilyPattern Family = "pattern" // short-answer text with * wildcards
	FamilyRange   Family = "range"   // numeric open intervals
)

// NoFeedback marks an outcome that carries no feedback index.
const NoFeedback = -1

// Outcome is what a processor returns for a response. Value is expressed in
// the item's grade units (a full-credit option on grade 2 yields 2).
type Outcome struct {
	Value    float64 `json:"value"`
	Feedback int     `json:"feedback"`
}

// Interval is an open numeric range (Lo, Hi).
type Interval struct {
	Lo float64 `json:"lo"`
	Hi float64 `json:"hi"`
}

// Center and Tolerance re-derive the CENTER:TOLERANCE form of an interval.
func (iv Interval) Center() float64    { return (iv.Lo + iv.Hi) / 2 }
func (iv Interval) Tolerance() float64 { return (iv.Hi - iv.Lo) / 2 }

// Contains reports lo < v < hi. A degenerate interval (lo == hi) matches
// only its single point so exact numeric answers stay gradable.
func (iv Interval) Contains(v float64) bool {
	if iv.Lo == iv.Hi {
		return v == iv.Lo
	}
	return iv.Lo < v && v < iv.Hi
}

// Entry is one key of a values mapping. Range processors read Interval,
// the others read Key.
type Entry struct {
	Key      string   `json:"key,omitempty"`
	Interval Interval `json:"interval"`
	Outcome  Outcome  `json:"outcome"`
}

// Config is the declarative input of every factory. Values keeps
// insertion order; first match wins.
type Config struct {
	Family        Family  `json:"family"`
	CaseSensitive bool    `json:"case_sensitive,omitempty"`
	Values        []Entry `json:"values"`
}

// Processor is an immutable grading function plus the configuration it
// was built from, kept so serializers can re-derive the source form.
type Processor struct {
	cfg  Config
	eval func(response any) Outcome
}

// Eval grades a response. A zero Processor grades everything as zero.
func (p Processor) Eval(response any) Outcome {
	if p.eval == nil {
		return Outcome{Feedback: NoFeedback}
	}
	return p.eval(response)
}

func (p Processor) Family() Family      { return p.cfg.Family }
func (p Processor) CaseSensitive() bool { return p.cfg.CaseSensitive }
func (p Processor) Len() int            { return len(p.cfg.Values) }
func (p Processor) Entry(i int) Entry   { return p.cfg.Values[i] }
func (p Processor) IsZero() bool        { return p.eval == nil }

// Values returns a copy of the values mapping in iteration order.
func (p Processor) Values() []Entry {
	out := make([]Entry, len(p.cfg.Values))
	copy(out, p.cfg.Values)
	return out
}

// MaxValue is the highest outcome value in the mapping (0 when empty).
func (p Processor) MaxValue() float64 {
	best := 0.0
	for i, e := range p.cfg.Values {
		if i == 0 || e.Outcome.Value > best {
			best = e.Outcome.Value
		}
	}
	return best
}

// Factory builds a Processor from a Config.
type Factory func(cfg Config) (Processor, error)

var (
	regMu    sync.RWMutex
	registry = map[Family]Factory{}
)

func init() {
	Register(FamilyMapper, NewMapper)
	Register(FamilyPattern, NewPattern)
	Register(FamilyRange, NewRange)
}

// Register binds a factory to a family name, replacing any previous one.
func Register(f Family, fac Factory) {
	if f == "" || fac == nil {
		return
	}
	regMu.Lock()
	defer regMu.Unlock()
	registry[f] = fac
}

// Lookup returns the factory registered for a family.
func Lookup(f Family) (Factory, bool) {
	regMu.RLock()
	defer regMu.RUnlock()
	fac, ok := registry[f]
	return fac, ok
}

// Families lists registered family names, sorted.
func Families() []Family {
	regMu.RLock()
	defer regMu.RUnlock()
	out := make([]Family, 0, len(registry))
	for f := range registry {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// New builds a processor through the registry entry for cfg.Family.
func New(cfg Config) (Processor, error) {
	fac, ok := Lookup(cfg.Family)
	if !ok {
		return Processor{}, fmt.Errorf("processor: unknown family %q", cfg.Family)
	}
	return fac(cfg)
}

func cloneConfig(cfg Config) Config {
	vals := make([]Entry, len(cfg.Values))
	copy(vals, cfg.Values)
	cfg.Values = vals
	return cfg
}

func miss() Outcome { return Outcome{Feedback: NoFeedback} }
