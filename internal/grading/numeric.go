package grading

import (
	"context"
	"fmt"
	"math"

	"github.com/mind-engage/mindengage-qbank/internal/bank"
	"github.com/mind-engage/mindengage-qbank/internal/processor"
)

// numericStrategy grades against the answers' tolerance intervals. With a
// relative tolerance set, a miss is retried against each answer scaled by
// that fraction:
//
//	relTol=0.05, answer 100 ±0  accepts 95..105
type numericStrategy struct{ relTol float64 }

func (s numericStrategy) Grade(_ context.Context, q *bank.Question, response any) (Result, error) {
	res := Result{MaxPoints: q.Points}
	var v float64
	switch t := response.(type) {
	case float64:
		v = t
	case string:
		f, ok := processor.ParseFloatLoose(t)
		if !ok {
			res.Feedback = append(res.Feedback, "not a number")
			return res, nil
		}
		v = f
	default:
		return res, fmt.Errorf("%w: want number or string", ErrResponse)
	}
	p, err := q.Processor()
	if err != nil {
		return res, err
	}
	o := p.Eval(v)
	if o.Value == 0 && o.Feedback == processor.NoFeedback && s.relTol > 0 {
		o = relativeMatch(p, v, s.relTol)
	}
	res.AutoPoints = clamp(o.Value, 0, q.Points)
	res.Feedback = appendFeedback(res.Feedback, q, o)
	return res, nil
}

// relativeMatch returns the best outcome whose centre lies within
// relTol*|centre| of v.
func relativeMatch(p processor.Processor, v, relTol float64) processor.Outcome {
	best := processor.Outcome{Feedback: processor.NoFeedback}
	for _, e := range p.Values() {
		c := e.Interval.Center()
		if math.Abs(v-c) <= relTol*math.Abs(c) && e.Outcome.Value > best.Value {
			best = e.Outcome
		}
	}
	return best
}
