package router

import (
	"github.com/victornm/livequiz/internal/domain"
)

// Inbound event kinds.
const (
	EventJoinLobby         = "join_lobby"
	EventHostJoin          = "host_join"
	EventStartGame         = "start_game"
	EventShowQuestion      = "show_question"
	EventSubmitAnswer      = "submit_answer"
	EventUpdateLeaderboard = "update_leaderboard"
	EventEndGame           = "end_game"
)

// Outbound event kinds.
const (
	EventLobbyJoined       = "lobby_joined"
	EventPlayerJoined      = "player_joined"
	EventPlayerLeft        = "player_left"
	EventHostJoined        = "host_joined"
	EventGameStarted       = "game_started"
	EventQuestionShown     = "question_shown"
	EventAnswerReceived    = "answer_received"
	EventPlayerAnswered    = "player_answered"
	EventLeaderboardUpdate = "leaderboard_update"
	EventGameEnded         = "game_ended"
	EventError             = "error"
)

// DefaultDisplayName is used when a player joins without a name.
const DefaultDisplayName = "Anonymous"

// Message is the frame exchanged with connections in both directions.
type Message struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

type (
	JoinLobby struct {
		Code        string `json:"code" validate:"required,numeric"`
		DisplayName string `json:"display_name" validate:"max=64"`
	}

	HostJoin struct {
		Code string `json:"code" validate:"required,numeric"`
	}

	StartGame struct {
		Code string `json:"code" validate:"required,numeric"`
	}

	// QuestionView is the part of a question players may see. The correct option
	// never leaves the server through the router.
	QuestionView struct {
		ID      int64    `json:"id" validate:"required"`
		Text    string   `json:"text" validate:"required"`
		Options []string `json:"options" validate:"required,min=1,max=4"`
	}

	ShowQuestion struct {
		Code          string       `json:"code" validate:"required,numeric"`
		Question      QuestionView `json:"question" validate:"required"`
		QuestionIndex int          `json:"question_index" validate:"min=0"`
		TimeLimitMS   int64        `json:"time_limit_ms" validate:"min=0"`
	}

	SubmitAnswer struct {
		Code        string `json:"code" validate:"required,numeric"`
		QuestionID  int64  `json:"question_id" validate:"required"`
		AnswerIndex int    `json:"answer_index" validate:"min=-1,max=3"`
		ElapsedMS   int64  `json:"elapsed_ms" validate:"min=0"`
	}

	UpdateLeaderboard struct {
		Code        string                    `json:"code" validate:"required,numeric"`
		Leaderboard []domain.LeaderboardEntry `json:"leaderboard"`
	}

	EndGame struct {
		Code             string                    `json:"code" validate:"required,numeric"`
		FinalLeaderboard []domain.LeaderboardEntry `json:"final_leaderboard"`
	}
)

type (
	LobbyJoined struct {
		Code        string   `json:"code"`
		DisplayName string   `json:"display_name"`
		Players     []string `json:"players"`
	}

	PlayerJoined struct {
		DisplayName string   `json:"display_name"`
		Players     []string `json:"players"`
		PlayerCount int      `json:"player_count"`
	}

	PlayerLeft struct {
		DisplayName      string   `json:"display_name"`
		RemainingPlayers []string `json:"remaining_players"`
		PlayerCount      int      `json:"player_count"`
	}

	HostJoined struct {
		Code        string   `json:"code"`
		Players     []string `json:"players"`
		PlayerCount int      `json:"player_count"`
	}

	GameStarted struct {
		Code string `json:"code"`
	}

	QuestionShown struct {
		Question      QuestionView `json:"question"`
		QuestionIndex int          `json:"question_index"`
		TimeLimitMS   int64        `json:"time_limit_ms"`
	}

	AnswerReceived struct {
		QuestionID  int64 `json:"question_id"`
		AnswerIndex int   `json:"answer_index"`
	}

	PlayerAnswered struct {
		PlayerName string `json:"player_name"`
	}

	LeaderboardUpdate struct {
		Leaderboard []domain.LeaderboardEntry `json:"leaderboard"`
	}

	GameEnded struct {
		FinalLeaderboard []domain.LeaderboardEntry `json:"final_leaderboard"`
	}

	Error struct {
		Message string `json:"message"`
		Kind    string `json:"kind"`
	}
)

// Error kinds reported to connections.
const (
	KindValidation   = "validation"
	KindUnauthorized = "unauthorized"
	KindNotFound     = "not_found"
	KindConflict     = "conflict"
	KindInternal     = "internal"
)
