package session

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/victornm/livequiz/internal/domain"
	"github.com/victornm/livequiz/internal/errors"
	"github.com/victornm/livequiz/internal/event"
	"github.com/victornm/livequiz/internal/quiz"
	"github.com/victornm/livequiz/internal/telemetry"
)

const (
	DefaultCodeLength   = 6
	DefaultCodeAttempts = 100
)

type Config struct {
	Store    Store
	Catalog  quiz.Catalog
	EventBus *event.Bus

	CodeLength   int
	CodeAttempts int
	NewCode      CodeGenerator
	Now          func() time.Time
}

// Service is the session registry: the authoritative record of join codes and
// session lifecycle.
type Service struct {
	store   Store
	catalog quiz.Catalog
	eb      *event.Bus

	codeLength   int
	codeAttempts int
	newCode      CodeGenerator
	now          func() time.Time
}

func NewService(c Config) *Service {
	s := &Service{
		store:        c.Store,
		catalog:      c.Catalog,
		eb:           c.EventBus,
		codeLength:   c.CodeLength,
		codeAttempts: c.CodeAttempts,
		newCode:      c.NewCode,
		now:          c.Now,
	}

	if s.codeLength <= 0 {
		s.codeLength = DefaultCodeLength
	}
	if s.codeAttempts <= 0 {
		s.codeAttempts = DefaultCodeAttempts
	}
	if s.newCode == nil {
		s.newCode = RandomCode
	}
	if s.now == nil {
		s.now = time.Now
	}

	return s
}

// CreateSessionRequest represents a request to host a new quiz session.
type CreateSessionRequest struct {
	// QuestionSetID is the quiz to play. It must be owned by Host.
	QuestionSetID int64
	// Host is the identity of the quiz master.
	Host string
}

// CreateSession creates a new session in the lobby with a fresh join code.
func (s *Service) CreateSession(ctx context.Context, req CreateSessionRequest) (*domain.Session, error) {
	qs, err := s.catalog.GetQuestionSet(ctx, req.QuestionSetID)
	if errors.Is(err, errors.CodeNotFound) || (err == nil && qs.Owner != req.Host) {
		return nil, errors.NotFound("question set not found or not owned by host: question_set=%d", req.QuestionSetID)
	}
	if err != nil {
		return nil, fmt.Errorf("get question set: %w", err)
	}

	for attempt := 1; attempt <= s.codeAttempts; attempt++ {
		code, err := s.newCode(s.codeLength)
		if err != nil {
			return nil, err
		}

		used, err := s.store.CodeInUse(ctx, code)
		if err != nil {
			return nil, err
		}
		if used {
			continue
		}

		ss := &domain.Session{
			Code:          code,
			QuestionSetID: qs.ID,
			Host:          req.Host,
			Status:        domain.StatusLobby,
			QuestionCount: len(qs.Questions),
			CreateTime:    s.now(),
		}

		err = s.store.Insert(ctx, ss)
		if stderrors.Is(err, ErrCodeTaken) {
			// Lost a race with a concurrent create drawing the same code.
			continue
		}
		if err != nil {
			return nil, err
		}

		telemetry.CodeAttempts.Observe(float64(attempt))
		slog.InfoContext(ctx, "session: created", "session", ss.ID, "code", ss.Code, "host", ss.Host)
		return ss, nil
	}

	telemetry.CodeAttempts.Observe(float64(s.codeAttempts))
	return nil, errors.New(errors.CodeResourceExhausted,
		errors.WithMessagef("no free join code after %d attempts", s.codeAttempts))
}

// ResolveJoinable returns the open session holding code. Malformed codes and
// finished sessions are reported as not found.
func (s *Service) ResolveJoinable(ctx context.Context, code string) (*domain.Session, error) {
	if !validCode(code, s.codeLength) {
		return nil, errors.NotFound("session not found: code=%s", code)
	}

	ss, err := s.store.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}

	if !ss.Status.Open() {
		return nil, errors.NotFound("session not found: code=%s", code)
	}

	return ss, nil
}

// Get returns a session in any status.
func (s *Service) Get(ctx context.Context, id int64) (*domain.Session, error) {
	return s.store.Get(ctx, id)
}

// GetByCode returns the session holding code in any status, preferring an open one.
func (s *Service) GetByCode(ctx context.Context, code string) (*domain.Session, error) {
	if !validCode(code, s.codeLength) {
		return nil, errors.NotFound("session not found: code=%s", code)
	}
	return s.store.GetByCode(ctx, code)
}

// Start moves a session from the lobby to active. It only succeeds once.
func (s *Service) Start(ctx context.Context, id int64) (*domain.Session, error) {
	ss, err := s.store.Update(ctx, id, func(ss *domain.Session) error {
		if ss.Status != domain.StatusLobby {
			return errors.FailedPrecondition("session cannot be started: session=%d status=%s", ss.ID, ss.Status)
		}

		now := s.now()
		ss.Status = domain.StatusActive
		ss.StartTime = &now
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.eb.Publish(ctx, domain.EventSessionStarted{Session: *ss})
	return ss, nil
}

var errNotActive = stderrors.New("session: not active")

// Advance moves an active session to its next question and returns the new index.
// Reaching the question count finishes the session. ok is false, with nothing
// changed, when the session was not active.
func (s *Service) Advance(ctx context.Context, id int64) (index int, ok bool, err error) {
	ss, err := s.store.Update(ctx, id, func(ss *domain.Session) error {
		if ss.Status != domain.StatusActive {
			return errNotActive
		}

		ss.QuestionIndex++
		if ss.QuestionIndex >= ss.QuestionCount {
			now := s.now()
			ss.Status = domain.StatusFinished
			ss.EndTime = &now
		}
		return nil
	})
	if stderrors.Is(err, errNotActive) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}

	if ss.Status == domain.StatusFinished {
		s.eb.Publish(ctx, domain.EventSessionEnded{Session: *ss})
	}

	return ss.QuestionIndex, true, nil
}

var errFinished = stderrors.New("session: already finished")

// End finishes a session from any open status. Ending a finished session is a
// no-op that keeps the first end time.
func (s *Service) End(ctx context.Context, id int64) (*domain.Session, error) {
	ss, err := s.store.Update(ctx, id, func(ss *domain.Session) error {
		if ss.Status == domain.StatusFinished {
			return errFinished
		}

		now := s.now()
		ss.Status = domain.StatusFinished
		ss.EndTime = &now
		return nil
	})
	if stderrors.Is(err, errFinished) {
		return s.store.Get(ctx, id)
	}
	if err != nil {
		return nil, err
	}

	s.eb.Publish(ctx, domain.EventSessionEnded{Session: *ss})
	return ss, nil
}
