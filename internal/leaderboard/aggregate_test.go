package leaderboard_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/victornm/livequiz/internal/domain"
	"github.com/victornm/livequiz/internal/leaderboard"
)

func TestRank(t *testing.T) {
	sub := func(name string, question int64, points int) domain.Submission {
		return domain.Submission{PlayerName: name, QuestionID: question, Points: points}
	}

	tests := map[string]struct {
		subs []domain.Submission
		want []domain.LeaderboardEntry
	}{
		"no submissions yields an empty leaderboard": {
			subs: nil,
			want: []domain.LeaderboardEntry{},
		},

		"points are summed per player and sorted descending": {
			subs: []domain.Submission{
				sub("alice", 1, 500),
				sub("bob", 1, 900),
				sub("alice", 2, 600),
				sub("carol", 1, 0),
			},
			want: []domain.LeaderboardEntry{
				{Rank: 1, PlayerName: "alice", TotalPoints: 1100, QuestionsAnswered: 2},
				{Rank: 2, PlayerName: "bob", TotalPoints: 900, QuestionsAnswered: 1},
				{Rank: 3, PlayerName: "carol", TotalPoints: 0, QuestionsAnswered: 1},
			},
		},

		"ties keep first appearance order": {
			subs: []domain.Submission{
				sub("dave", 1, 700),
				sub("erin", 1, 800),
				sub("frank", 1, 700),
				sub("grace", 1, 700),
			},
			want: []domain.LeaderboardEntry{
				{Rank: 1, PlayerName: "erin", TotalPoints: 800, QuestionsAnswered: 1},
				{Rank: 2, PlayerName: "dave", TotalPoints: 700, QuestionsAnswered: 1},
				{Rank: 3, PlayerName: "frank", TotalPoints: 700, QuestionsAnswered: 1},
				{Rank: 4, PlayerName: "grace", TotalPoints: 700, QuestionsAnswered: 1},
			},
		},

		"unanswered questions count as answered with zero points": {
			subs: []domain.Submission{
				{PlayerName: "idle", QuestionID: 1, AnswerIndex: domain.NoAnswer},
				{PlayerName: "idle", QuestionID: 2, AnswerIndex: domain.NoAnswer},
			},
			want: []domain.LeaderboardEntry{
				{Rank: 1, PlayerName: "idle", TotalPoints: 0, QuestionsAnswered: 2},
			},
		},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, leaderboard.Rank(tt.subs))
		})
	}
}

func TestRank_TotalsMatchSubmissions(t *testing.T) {
	var subs []domain.Submission
	want := map[string]int{}
	for i := 0; i < 50; i++ {
		name := []string{"a", "b", "c", "d"}[i%4]
		points := (i * 37) % 1001
		subs = append(subs, domain.Submission{PlayerName: name, QuestionID: int64(i), Points: points})
		want[name] += points
	}

	entries := leaderboard.Rank(subs)
	require.Len(t, entries, 4)

	for i, e := range entries {
		require.Equal(t, want[e.PlayerName], e.TotalPoints)
		require.Equal(t, i+1, e.Rank)
		if i > 0 {
			require.GreaterOrEqual(t, entries[i-1].TotalPoints, e.TotalPoints)
		}
	}
}

func TestResults(t *testing.T) {
	q := domain.Question{ID: 7, Options: []string{"a", "b", "c", "d"}, CorrectIndex: 1}

	tests := map[string]struct {
		subs []domain.Submission
		want domain.QuestionResults
	}{
		"no responses has zero accuracy": {
			subs: nil,
			want: domain.QuestionResults{QuestionID: 7, CorrectIndex: 1},
		},

		"distribution covers every slot": {
			subs: []domain.Submission{
				{QuestionID: 7, AnswerIndex: 1},
				{QuestionID: 7, AnswerIndex: 1},
				{QuestionID: 7, AnswerIndex: 3},
			},
			want: domain.QuestionResults{
				QuestionID:      7,
				TotalResponses:  3,
				Distribution:    [domain.OptionSlots]int{0, 2, 0, 1},
				CorrectIndex:    1,
				CorrectCount:    2,
				AccuracyPercent: 66.67,
			},
		},

		"no answer counts as a wrong response": {
			subs: []domain.Submission{
				{QuestionID: 7, AnswerIndex: 1},
				{QuestionID: 7, AnswerIndex: domain.NoAnswer},
			},
			want: domain.QuestionResults{
				QuestionID:      7,
				TotalResponses:  2,
				Distribution:    [domain.OptionSlots]int{0, 1, 0, 0},
				CorrectIndex:    1,
				CorrectCount:    1,
				AccuracyPercent: 50,
			},
		},

		"other questions are ignored": {
			subs: []domain.Submission{
				{QuestionID: 8, AnswerIndex: 1},
				{QuestionID: 7, AnswerIndex: 0},
			},
			want: domain.QuestionResults{
				QuestionID:     7,
				TotalResponses: 1,
				Distribution:   [domain.OptionSlots]int{1, 0, 0, 0},
				CorrectIndex:   1,
			},
		},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, leaderboard.Results(q, tt.subs))
		})
	}
}
