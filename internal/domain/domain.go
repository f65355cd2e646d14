package domain

import (
	"time"
)

// Status is the lifecycle state of a session. Transitions only flow lobby -> active -> finished.
type Status string

const (
	StatusLobby    Status = "lobby"
	StatusActive   Status = "active"
	StatusFinished Status = "finished"
)

// Open reports whether a session in this status still holds its join code.
func (s Status) Open() bool {
	return s == StatusLobby || s == StatusActive
}

// Session represents a live quiz session hosted by a quiz master.
type Session struct {
	ID            int64
	Code          string
	QuestionSetID int64
	Host          string
	Status        Status
	// QuestionIndex is zero-based and only ever moves forward.
	QuestionIndex int
	// QuestionCount is snapshotted from the question set when the session is created.
	QuestionCount int
	CreateTime    time.Time
	StartTime     *time.Time
	EndTime       *time.Time
}

// QuestionSet is a quiz owned by a host. Its content is managed outside this service.
type QuestionSet struct {
	ID        int64
	Owner     string
	Title     string
	Questions []Question
}

// Question returns the question with the given ID.
func (qs QuestionSet) Question(id int64) (Question, bool) {
	for _, q := range qs.Questions {
		if q.ID == id {
			return q, true
		}
	}
	return Question{}, false
}

type Question struct {
	ID           int64
	Text         string
	Options      []string
	CorrectIndex int
	Explanation  string
}

// NoAnswer is recorded for players who let the timer run out.
const NoAnswer = -1

// OptionSlots is the number of answer options a question can have.
const OptionSlots = 4

// Submission is a recorded answer. Submissions are appended and never re-scored.
type Submission struct {
	ID           int64
	SessionID    int64
	PlayerName   string
	ConnectionID string
	QuestionID   int64
	AnswerIndex  int
	ElapsedMS    int64
	Points       int
	CreateTime   time.Time
}

// LeaderboardEntry is a player's standing within a session.
type LeaderboardEntry struct {
	Rank              int    `json:"rank"`
	PlayerName        string `json:"display_name"`
	TotalPoints       int    `json:"total_points"`
	QuestionsAnswered int    `json:"questions_answered"`
}

// Leaderboard represents a list of players and their points within a quiz session.
// The list is sorted by points in descending order.
type Leaderboard struct {
	SessionID int64
	Code      string
	Entries   []LeaderboardEntry
}

// QuestionResults summarizes the answers submitted for one question.
type QuestionResults struct {
	QuestionID     int64
	TotalResponses int
	// Distribution counts answers per option slot. All slots are always present.
	Distribution    [OptionSlots]int
	CorrectIndex    int
	CorrectCount    int
	AccuracyPercent float64
}
