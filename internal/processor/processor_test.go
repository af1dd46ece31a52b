package processor

import (
	"sync"
	"testing"
)

func TestMapper_FirstEqualKeyWins(t *testing.T) {
	p, err := New(Config{Family: FamilyMapper, Values: []Entry{
		{Key: "wrong", Outcome: Outcome{Value: 0.5, Feedback: 0}},
		{Key: "right", Outcome: Outcome{Value: 1, Feedback: 1}},
		{Key: "right", Outcome: Outcome{Value: 0, Feedback: 2}},
	}})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if got := p.Eval("right"); got.Value != 1 || got.Feedback != 1 {
		t.Errorf("Eval(right) = %+v", got)
	}
	if got := p.Eval("wrong"); got.Value != 0.5 {
		t.Errorf("Eval(wrong) = %+v", got)
	}
	if got := p.Eval("other"); got.Value != 0 || got.Feedback != NoFeedback {
		t.Errorf("Eval(other) = %+v, want fallback", got)
	}
	if got := p.Eval(nil); got.Value != 0 {
		t.Errorf("Eval(nil) = %+v", got)
	}
	if p.MaxValue() != 1 {
		t.Errorf("MaxValue = %v", p.MaxValue())
	}
}

func TestPattern_CaseFlag(t *testing.T) {
	vals := []Entry{
		{Key: "Paris", Outcome: Outcome{Value: 2, Feedback: 0}},
		{Key: "*", Outcome: Outcome{Value: 0, Feedback: 1}},
	}
	insensitive, err := NewPattern(Config{Values: vals})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	sensitive, err := NewPattern(Config{CaseSensitive: true, Values: vals})
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	if got := insensitive.Eval("  paris "); got.Value != 2 {
		t.Errorf("insensitive paris = %+v", got)
	}
	if got := sensitive.Eval("paris"); got.Value != 0 || got.Feedback != 1 {
		t.Errorf("sensitive paris = %+v, want catch-all", got)
	}
	if got := sensitive.Eval("Paris"); got.Value != 2 {
		t.Errorf("sensitive Paris = %+v", got)
	}
	if !sensitive.CaseSensitive() || insensitive.CaseSensitive() {
		t.Errorf("case flags not retained")
	}
}

func TestPattern_WildcardAndMeta(t *testing.T) {
	p, err := NewPattern(Config{Values: []Entry{
		{Key: "a.b*", Outcome: Outcome{Value: 1}},
		{Key: `lit\*`, Outcome: Outcome{Value: 0.5}},
	}})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	cases := []struct {
		response string
		want     float64
	}{
		{"a.bcd", 1},
		{"axb", 0},
		{"lit*", 0.5},
		{"lit", 0},
	}
	for _, c := range cases {
		if got := p.Eval(c.response); got.Value != c.want {
			t.Errorf("Eval(%q) = %v, want %v", c.response, got.Value, c.want)
		}
	}
}

func TestRange_OpenIntervalsInOrder(t *testing.T) {
	p, err := New(Config{Family: FamilyRange, Values: []Entry{
		{Interval: Interval{Lo: 8, Hi: 12}, Outcome: Outcome{Value: 1, Feedback: 0}},
		{Interval: Interval{Lo: 0, Hi: 20}, Outcome: Outcome{Value: 0.5, Feedback: 1}},
		{Interval: Interval{Lo: 42, Hi: 42}, Outcome: Outcome{Value: 1, Feedback: 2}},
	}})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	cases := []struct {
		response any
		want     float64
	}{
		{10.0, 1},
		{"11.5", 1},
		{8.0, 0.5}, // boundary is excluded from the first interval
		{19, 0.5},
		{20.0, 0},
		{"42", 1},
		{"abc", 0},
		{struct{}{}, 0},
	}
	for _, c := range cases {
		if got := p.Eval(c.response); got.Value != c.want {
			t.Errorf("Eval(%v) = %v, want %v", c.response, got.Value, c.want)
		}
	}
}

func TestInterval_CenterTolerance(t *testing.T) {
	iv := Interval{Lo: 8, Hi: 12}
	if iv.Center() != 10 || iv.Tolerance() != 2 {
		t.Errorf("center/tolerance = %v/%v", iv.Center(), iv.Tolerance())
	}
}

func TestNew_UnknownFamily(t *testing.T) {
	if _, err := New(Config{Family: "nope"}); err == nil {
		t.Fatal("expected error for unknown family")
	}
	fams := Families()
	if len(fams) < 3 {
		t.Fatalf("families = %v", fams)
	}
}

func TestProcessor_ConfigIsCopied(t *testing.T) {
	vals := []Entry{{Key: "a", Outcome: Outcome{Value: 1}}}
	p, _ := NewMapper(Config{Values: vals})
	vals[0].Key = "b"
	if got := p.Eval("a"); got.Value != 1 {
		t.Errorf("processor observed caller mutation: %+v", got)
	}
	out := p.Values()
	out[0].Key = "c"
	if p.Entry(0).Key != "a" {
		t.Errorf("Values leaked internal slice")
	}
}

func TestProcessor_ConcurrentEval(t *testing.T) {
	p, _ := NewPattern(Config{Values: []Entry{{Key: "x*", Outcome: Outcome{Value: 1}}}})
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				if p.Eval("xyz").Value != 1 {
					t.Error("unexpected outcome")
					return
				}
			}
		}()
	}
	wg.Wait()
}

func TestZeroProcessor(t *testing.T) {
	var p Processor
	if !p.IsZero() {
		t.Fatal("zero value should report IsZero")
	}
	if got := p.Eval("x"); got.Value != 0 || got.Feedback != NoFeedback {
		t.Errorf("zero Eval = %+v", got)
	}
}

func TestParseFloatLoose(t *testing.T) {
	cases := map[string]float64{"3.5": 3.5, " 2 cm": 2, "1,5": 1.5}
	for in, want := range cases {
		got, ok := ParseFloatLoose(in)
		if !ok || got != want {
			t.Errorf("ParseFloatLoose(%q) = %v,%v", in, got, ok)
		}
	}
	if _, ok := ParseFloatLoose("x"); ok {
		t.Error("expected failure")
	}
}
