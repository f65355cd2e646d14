package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/victornm/livequiz/internal/domain"
	"github.com/victornm/livequiz/internal/errors"
	"github.com/victornm/livequiz/internal/score"
	"github.com/victornm/livequiz/internal/session"
)

type (
	Session struct {
		ID            int64      `json:"id"`
		Code          string     `json:"code"`
		QuestionSetID int64      `json:"question_set_id"`
		Host          string     `json:"host"`
		Status        string     `json:"status"`
		QuestionIndex int        `json:"question_index"`
		QuestionCount int        `json:"question_count"`
		CreateTime    time.Time  `json:"create_time"`
		StartTime     *time.Time `json:"start_time,omitempty"`
		EndTime       *time.Time `json:"end_time,omitempty"`
	}

	CreateGameRequest struct {
		QuestionSetID int64 `json:"question_set_id" binding:"required"`
	}

	NextQuestionResponse struct {
		QuestionIndex int    `json:"question_index"`
		Status        string `json:"status"`
	}

	SubmitAnswerRequest struct {
		DisplayName  string `json:"display_name" binding:"required,max=64"`
		ConnectionID string `json:"connection_id"`
		QuestionID   int64  `json:"question_id" binding:"required"`
		AnswerIndex  *int   `json:"answer_index" binding:"required,min=-1,max=3"`
		ElapsedMS    int64  `json:"elapsed_ms" binding:"min=0"`
	}

	SubmitAnswerResponse struct {
		IsCorrect    bool `json:"is_correct"`
		PointsEarned int  `json:"points_earned"`
	}

	LeaderboardResponse struct {
		Leaderboard []domain.LeaderboardEntry `json:"leaderboard"`
	}

	QuestionResultsResponse struct {
		QuestionID         int64                   `json:"question_id"`
		TotalResponses     int                     `json:"total_responses"`
		Distribution       [domain.OptionSlots]int `json:"distribution"`
		CorrectOptionIndex int                     `json:"correct_option_index"`
		CorrectCount       int                     `json:"correct_count"`
		AccuracyPercent    float64                 `json:"accuracy_percent"`
	}

	EndGameResponse struct {
		Session          Session                   `json:"session"`
		FinalLeaderboard []domain.LeaderboardEntry `json:"final_leaderboard"`
	}
)

func toSession(ss *domain.Session) Session {
	return Session{
		ID:            ss.ID,
		Code:          ss.Code,
		QuestionSetID: ss.QuestionSetID,
		Host:          ss.Host,
		Status:        string(ss.Status),
		QuestionIndex: ss.QuestionIndex,
		QuestionCount: ss.QuestionCount,
		CreateTime:    ss.CreateTime,
		StartTime:     ss.StartTime,
		EndTime:       ss.EndTime,
	}
}

// CreateGame opens a lobby for one of the host's question sets.
func (a *API) CreateGame(c *gin.Context) {
	var req CreateGameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, invalidRequest(err))
		return
	}

	ss, err := a.qss.CreateSession(c.Request.Context(), session.CreateSessionRequest{
		QuestionSetID: req.QuestionSetID,
		Host:          host(c),
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, toSession(ss))
}

// GetGame returns a session players can still join.
func (a *API) GetGame(c *gin.Context) {
	ss, err := a.qss.ResolveJoinable(c.Request.Context(), c.Param("code"))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, toSession(ss))
}

// hostedSession returns the session of the code in the path if the caller hosts it.
// Sessions of other hosts are reported as not found.
func (a *API) hostedSession(c *gin.Context) (*domain.Session, error) {
	code := c.Param("code")

	ss, err := a.qss.GetByCode(c.Request.Context(), code)
	if err != nil {
		return nil, err
	}

	if ss.Host != host(c) {
		return nil, errors.NotFound("session not found: code=%s", code)
	}

	return ss, nil
}

func (a *API) StartGame(c *gin.Context) {
	ss, err := a.hostedSession(c)
	if err != nil {
		writeError(c, err)
		return
	}

	ss, err = a.qss.Start(c.Request.Context(), ss.ID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, toSession(ss))
}

func (a *API) NextQuestion(c *gin.Context) {
	ctx := c.Request.Context()

	ss, err := a.hostedSession(c)
	if err != nil {
		writeError(c, err)
		return
	}

	index, ok, err := a.qss.Advance(ctx, ss.ID)
	if err != nil {
		writeError(c, err)
		return
	}
	if !ok {
		writeError(c, errors.FailedPrecondition("session is not active: code=%s", ss.Code))
		return
	}

	ss, err = a.qss.Get(ctx, ss.ID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, NextQuestionResponse{
		QuestionIndex: index,
		Status:        string(ss.Status),
	})
}

// SubmitAnswer records a player's answer. Players are not authenticated.
func (a *API) SubmitAnswer(c *gin.Context) {
	var req SubmitAnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, invalidRequest(err))
		return
	}

	resp, err := a.ss.RecordAnswer(c.Request.Context(), score.RecordAnswerRequest{
		Code:         c.Param("code"),
		PlayerName:   req.DisplayName,
		ConnectionID: req.ConnectionID,
		QuestionID:   req.QuestionID,
		AnswerIndex:  *req.AnswerIndex,
		ElapsedMS:    req.ElapsedMS,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, SubmitAnswerResponse{
		IsCorrect:    resp.Correct,
		PointsEarned: resp.Submission.Points,
	})
}

func (a *API) GetLeaderboard(c *gin.Context) {
	ctx := c.Request.Context()

	ss, err := a.qss.GetByCode(ctx, c.Param("code"))
	if err != nil {
		writeError(c, err)
		return
	}

	l, err := a.ls.GetLeaderboard(ctx, ss.ID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, LeaderboardResponse{Leaderboard: l.Entries})
}

func (a *API) GetQuestionResults(c *gin.Context) {
	qid, err := strconv.ParseInt(c.Param("qid"), 10, 64)
	if err != nil {
		writeError(c, invalidRequest(err))
		return
	}

	ss, err := a.hostedSession(c)
	if err != nil {
		writeError(c, err)
		return
	}

	r, err := a.ls.GetQuestionResults(c.Request.Context(), ss.ID, qid)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, QuestionResultsResponse{
		QuestionID:         r.QuestionID,
		TotalResponses:     r.TotalResponses,
		Distribution:       r.Distribution,
		CorrectOptionIndex: r.CorrectIndex,
		CorrectCount:       r.CorrectCount,
		AccuracyPercent:    r.AccuracyPercent,
	})
}

// EndGame finishes the session and returns the final standings.
func (a *API) EndGame(c *gin.Context) {
	ctx := c.Request.Context()

	ss, err := a.hostedSession(c)
	if err != nil {
		writeError(c, err)
		return
	}

	ss, err = a.qss.End(ctx, ss.ID)
	if err != nil {
		writeError(c, err)
		return
	}

	l, err := a.ls.GetLeaderboard(ctx, ss.ID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, EndGameResponse{
		Session:          toSession(ss),
		FinalLeaderboard: l.Entries,
	})
}
