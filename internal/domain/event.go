package domain

const (
	EventNameSessionStarted     = "session.started"
	EventNameSessionEnded       = "session.ended"
	EventNameAnswerRecorded     = "answer.recorded"
	EventNameLeaderboardUpdated = "leaderboard.updated"
)

type EventSessionStarted struct {
	Session Session
}

func (EventSessionStarted) Name() string { return EventNameSessionStarted }

type EventSessionEnded struct {
	Session Session
}

func (EventSessionEnded) Name() string { return EventNameSessionEnded }

type EventAnswerRecorded struct {
	Code       string
	Submission Submission
}

func (EventAnswerRecorded) Name() string { return EventNameAnswerRecorded }

type EventLeaderboardUpdated struct {
	Leaderboard Leaderboard
}

func (EventLeaderboardUpdated) Name() string { return EventNameLeaderboardUpdated }
