package leaderboard

import (
	"sort"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/victornm/livequiz/internal/domain"
)

// Rank groups submissions by player name, sums their points and orders players by
// total points, highest first. Players with equal totals keep the order in which
// they first appear in subs. Ranks are assigned 1..N by position.
func Rank(subs []domain.Submission) []domain.LeaderboardEntry {
	names := lo.Uniq(lo.Map(subs, func(s domain.Submission, _ int) string {
		return s.PlayerName
	}))
	byName := lo.GroupBy(subs, func(s domain.Submission) string {
		return s.PlayerName
	})

	entries := lo.Map(names, func(name string, _ int) domain.LeaderboardEntry {
		answered := byName[name]
		total := lo.SumBy(answered, func(s domain.Submission) int {
			return s.Points
		})

		return domain.LeaderboardEntry{
			PlayerName:        name,
			TotalPoints:       total,
			QuestionsAnswered: len(answered),
		}
	})

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].TotalPoints > entries[j].TotalPoints
	})

	for i := range entries {
		entries[i].Rank = i + 1
	}

	return entries
}

// Results summarizes the submissions of question q. Submissions for other questions
// are ignored. Answers outside the option slots, such as domain.NoAnswer, count as
// responses but not towards the distribution.
func Results(q domain.Question, subs []domain.Submission) domain.QuestionResults {
	r := domain.QuestionResults{
		QuestionID:   q.ID,
		CorrectIndex: q.CorrectIndex,
	}

	for _, s := range subs {
		if s.QuestionID != q.ID {
			continue
		}

		r.TotalResponses++
		if s.AnswerIndex >= 0 && s.AnswerIndex < domain.OptionSlots {
			r.Distribution[s.AnswerIndex]++
		}
		if s.AnswerIndex == q.CorrectIndex {
			r.CorrectCount++
		}
	}

	r.AccuracyPercent = accuracy(r.CorrectCount, r.TotalResponses)
	return r
}

func accuracy(correct, total int) float64 {
	if total == 0 {
		return 0
	}

	return decimal.NewFromInt(int64(correct)).
		Mul(decimal.NewFromInt(100)).
		Div(decimal.NewFromInt(int64(total))).
		Round(2).
		InexactFloat64()
}
