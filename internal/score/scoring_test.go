package score_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/livequiz/internal/score"
)

func TestPoints(t *testing.T) {
	rules := score.DefaultRules()

	tests := map[string]struct {
		elapsed int64
		correct bool
		want    int
	}{
		"immediate correct answer earns max points":  {elapsed: 0, correct: true, want: 1000},
		"correct answer at the limit earns half":     {elapsed: 20000, correct: true, want: 500},
		"correct answer half way":                    {elapsed: 10000, correct: true, want: 750},
		"fractional points are floored":              {elapsed: 1, correct: true, want: 999},
		"correct answer just before the limit":       {elapsed: 19999, correct: true, want: 500},
		"late correct answer earns nothing":          {elapsed: 20001, correct: true, want: 0},
		"wrong immediate answer earns nothing":       {elapsed: 0, correct: false, want: 0},
		"wrong answer at the limit earns nothing":    {elapsed: 20000, correct: false, want: 0},
		"negative elapsed time counts as immediate":  {elapsed: -5, correct: true, want: 1000},
		"very late wrong answer still earns nothing": {elapsed: 1 << 40, correct: false, want: 0},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, score.Points(tt.elapsed, tt.correct, rules))
		})
	}
}

func TestPoints_MonotonicWithinLimit(t *testing.T) {
	rules := score.Rules{TimeLimit: 20 * time.Second, MaxPoints: 1000}

	prev := score.Points(0, true, rules)
	require.Equal(t, 1000, prev)

	for elapsed := int64(1); elapsed <= 20000; elapsed++ {
		p := score.Points(elapsed, true, rules)
		require.LessOrEqual(t, p, prev, "points must not increase at %dms", elapsed)
		require.GreaterOrEqual(t, p, 500)
		prev = p
	}

	assert.Equal(t, 500, prev)
}

func TestPoints_CustomRules(t *testing.T) {
	rules := score.Rules{TimeLimit: 5 * time.Second, MaxPoints: 999}

	assert.Equal(t, 999, score.Points(0, true, rules))
	assert.Equal(t, 499, score.Points(5000, true, rules), "half of an odd max is floored")
	assert.Equal(t, 0, score.Points(5001, true, rules))
}

func TestPoints_ZeroRulesFallBackToDefaults(t *testing.T) {
	assert.Equal(t, 1000, score.Points(0, true, score.Rules{}))
	assert.Equal(t, 500, score.Points(20000, true, score.Rules{}))
}
