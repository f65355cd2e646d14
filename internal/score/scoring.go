package score

import "time"

const (
	DefaultTimeLimit = 20 * time.Second
	DefaultMaxPoints = 1000
)

// Rules parameterize Points.
type Rules struct {
	TimeLimit time.Duration
	MaxPoints int
}

func DefaultRules() Rules {
	return Rules{TimeLimit: DefaultTimeLimit, MaxPoints: DefaultMaxPoints}
}

func (r Rules) withDefaults() Rules {
	if r.TimeLimit.Milliseconds() <= 0 {
		r.TimeLimit = DefaultTimeLimit
	}
	if r.MaxPoints <= 0 {
		r.MaxPoints = DefaultMaxPoints
	}
	return r
}

// Points scores an answer. A correct answer earns MaxPoints when immediate and
// decays linearly to half of MaxPoints at the time limit. Wrong or late answers earn 0.
//
//	points = floor(MaxPoints * (1 - 0.5 * elapsed / limit))
//
// It is computed in integers so boundary values are exact.
func Points(elapsedMS int64, correct bool, r Rules) int {
	r = r.withDefaults()
	limit := r.TimeLimit.Milliseconds()

	if !correct || elapsedMS > limit {
		return 0
	}
	if elapsedMS < 0 {
		elapsedMS = 0
	}

	full := int64(r.MaxPoints)
	return int(full * (2*limit - elapsedMS) / (2 * limit))
}
