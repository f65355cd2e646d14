package score

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/victornm/livequiz/internal/domain"
	"github.com/victornm/livequiz/internal/errors"
	"github.com/victornm/livequiz/internal/event"
	"github.com/victornm/livequiz/internal/quiz"
	"github.com/victornm/livequiz/internal/telemetry"
)

type Sessions interface {
	GetByCode(ctx context.Context, code string) (*domain.Session, error)
}

type Config struct {
	EventBus *event.Bus
	Store    Store
	Sessions Sessions
	Catalog  quiz.Catalog
	Rules    Rules
	Now      func() time.Time
}

type Service struct {
	eb       *event.Bus
	store    Store
	sessions Sessions
	catalog  quiz.Catalog
	rules    Rules
	now      func() time.Time
}

func NewService(c Config) *Service {
	s := &Service{
		eb:       c.EventBus,
		store:    c.Store,
		sessions: c.Sessions,
		catalog:  c.Catalog,
		rules:    c.Rules.withDefaults(),
		now:      c.Now,
	}

	if s.now == nil {
		s.now = time.Now
	}

	return s
}

type RecordAnswerRequest struct {
	Code         string
	PlayerName   string
	ConnectionID string
	QuestionID   int64
	// AnswerIndex is the chosen option, or domain.NoAnswer.
	AnswerIndex int
	ElapsedMS   int64
}

type RecordAnswerResponse struct {
	Submission domain.Submission
	Correct    bool
}

// RecordAnswer scores an answer and appends it to the session's submissions.
// Each player answers a question at most once.
func (s *Service) RecordAnswer(ctx context.Context, req RecordAnswerRequest) (*RecordAnswerResponse, error) {
	req.PlayerName = strings.TrimSpace(req.PlayerName)
	if req.PlayerName == "" {
		return nil, errors.InvalidArgument("player name is required")
	}
	if req.AnswerIndex < domain.NoAnswer || req.AnswerIndex >= domain.OptionSlots {
		return nil, errors.InvalidArgument("answer index out of range: %d", req.AnswerIndex)
	}
	if req.ElapsedMS < 0 {
		return nil, errors.InvalidArgument("elapsed time must not be negative: %d", req.ElapsedMS)
	}

	ss, err := s.sessions.GetByCode(ctx, req.Code)
	if err != nil {
		return nil, err
	}
	if ss.Status != domain.StatusActive {
		return nil, errors.FailedPrecondition("session is not active: code=%s status=%s", ss.Code, ss.Status)
	}

	qs, err := s.catalog.GetQuestionSet(ctx, ss.QuestionSetID)
	if err != nil {
		return nil, err
	}
	q, ok := qs.Question(req.QuestionID)
	if !ok {
		return nil, errors.NotFound("question not found in session: code=%s question=%d", ss.Code, req.QuestionID)
	}

	correct := req.AnswerIndex == q.CorrectIndex
	sub := domain.Submission{
		SessionID:    ss.ID,
		PlayerName:   req.PlayerName,
		ConnectionID: req.ConnectionID,
		QuestionID:   q.ID,
		AnswerIndex:  req.AnswerIndex,
		ElapsedMS:    req.ElapsedMS,
		Points:       Points(req.ElapsedMS, correct, s.rules),
		CreateTime:   s.now(),
	}

	if err := s.store.Insert(ctx, &sub); err != nil {
		return nil, err
	}

	telemetry.AnswersRecorded.WithLabelValues(strconv.FormatBool(correct)).Inc()

	s.eb.Publish(ctx, domain.EventAnswerRecorded{
		Code:       ss.Code,
		Submission: sub,
	})

	return &RecordAnswerResponse{
		Submission: sub,
		Correct:    correct,
	}, nil
}

// ListSubmissions returns every submission of a session in the order they were recorded.
func (s *Service) ListSubmissions(ctx context.Context, sessionID int64) ([]domain.Submission, error) {
	return s.store.ListBySession(ctx, sessionID)
}

// ListQuestionSubmissions returns the submissions for one question of a session.
func (s *Service) ListQuestionSubmissions(ctx context.Context, sessionID, questionID int64) ([]domain.Submission, error) {
	return s.store.ListByQuestion(ctx, sessionID, questionID)
}
