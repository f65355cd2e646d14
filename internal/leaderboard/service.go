package leaderboard

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/victornm/livequiz/internal/domain"
	"github.com/victornm/livequiz/internal/errors"
	"github.com/victornm/livequiz/internal/event"
	"github.com/victornm/livequiz/internal/quiz"
)

const DefaultPublishInterval = 200 * time.Millisecond

type Sessions interface {
	Get(ctx context.Context, id int64) (*domain.Session, error)
}

type Submissions interface {
	ListSubmissions(ctx context.Context, sessionID int64) ([]domain.Submission, error)
	ListQuestionSubmissions(ctx context.Context, sessionID, questionID int64) ([]domain.Submission, error)
}

type Config struct {
	EventBus    *event.Bus
	Sessions    Sessions
	Submissions Submissions
	Catalog     quiz.Catalog
	Redis       redis.UniversalClient
	Prefix      string

	PublishInterval time.Duration
}

// Service computes standings from recorded submissions. Nothing is cached: every
// call reads the full submission set of the session.
type Service struct {
	eb          *event.Bus
	sessions    Sessions
	submissions Submissions
	catalog     quiz.Catalog
	redis       redis.UniversalClient
	prefix      string
	interval    time.Duration

	// Trailing publishes wait on their own goroutines. done cuts the wait short
	// on Stop.
	mu      sync.Mutex
	stopped bool
	wg      sync.WaitGroup
	done    chan struct{}
}

func NewService(c Config) *Service {
	s := &Service{
		eb:          c.EventBus,
		sessions:    c.Sessions,
		submissions: c.Submissions,
		catalog:     c.Catalog,
		redis:       c.Redis,
		prefix:      c.Prefix,
		interval:    c.PublishInterval,
		done:        make(chan struct{}),
	}

	if s.interval <= 0 {
		s.interval = DefaultPublishInterval
	}

	s.eb.Subscribe(domain.EventNameAnswerRecorded, func(ctx context.Context, e event.Event) error {
		return s.schedulePublishLeaderboard(ctx, e.(domain.EventAnswerRecorded))
	})

	return s
}

// GetLeaderboard returns the ranked players of a session. A session without
// submissions has an empty leaderboard.
func (s *Service) GetLeaderboard(ctx context.Context, sessionID int64) (*domain.Leaderboard, error) {
	ss, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	subs, err := s.submissions.ListSubmissions(ctx, ss.ID)
	if err != nil {
		return nil, fmt.Errorf("get leaderboard: %w", err)
	}

	return &domain.Leaderboard{
		SessionID: ss.ID,
		Code:      ss.Code,
		Entries:   Rank(subs),
	}, nil
}

// GetQuestionResults returns the answer distribution of one question of a session.
func (s *Service) GetQuestionResults(ctx context.Context, sessionID, questionID int64) (*domain.QuestionResults, error) {
	ss, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	qs, err := s.catalog.GetQuestionSet(ctx, ss.QuestionSetID)
	if err != nil {
		return nil, err
	}

	q, ok := qs.Question(questionID)
	if !ok {
		return nil, errors.NotFound("question not found in session: session=%d question=%d", ss.ID, questionID)
	}

	subs, err := s.submissions.ListQuestionSubmissions(ctx, ss.ID, q.ID)
	if err != nil {
		return nil, fmt.Errorf("get question results: %w", err)
	}

	r := Results(q, subs)
	return &r, nil
}

// schedulePublishLeaderboard publishes at most one leaderboard.updated per session
// within the publish interval. An answer arriving while the interval is running
// arms a single trailing publish at its end, so the last answers of a burst are
// always reflected.
func (s *Service) schedulePublishLeaderboard(ctx context.Context, e domain.EventAnswerRecorded) error {
	sub := e.Submission

	// The SETNX guards are shared by every instance using the same Redis.
	ok, err := s.redis.SetNX(ctx, s.getPublishTimeKey(sub.SessionID), sub.CreateTime.UnixMilli(), s.interval).Result()
	if err != nil {
		return fmt.Errorf("setnx: %w", err)
	}

	if ok {
		return s.publishLeaderboard(ctx, sub.SessionID)
	}

	return s.armTrailingPublish(ctx, sub.SessionID)
}

func (s *Service) armTrailingPublish(ctx context.Context, sessionID int64) error {
	// The pending key expires on its own if its owner dies before publishing.
	ok, err := s.redis.SetNX(ctx, s.getPublishPendingKey(sessionID), 1, 2*s.interval).Result()
	if err != nil {
		return fmt.Errorf("setnx pending: %w", err)
	}
	if !ok {
		return nil
	}

	wait, err := s.redis.PTTL(ctx, s.getPublishTimeKey(sessionID)).Result()
	if err != nil || wait < 0 || wait > s.interval {
		wait = s.interval
	}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return s.publishTrailing(ctx, sessionID)
	}
	s.wg.Add(1)
	s.mu.Unlock()

	ctx = context.WithoutCancel(ctx)
	go func() {
		defer s.wg.Done()

		t := time.NewTimer(wait)
		defer t.Stop()

		select {
		case <-t.C:
		case <-s.done:
		}

		ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()

		if err := s.publishTrailing(ctx, sessionID); err != nil {
			slog.ErrorContext(ctx, "leaderboard: trailing publish failed",
				"session", sessionID,
				"error", err,
			)
		}
	}()

	return nil
}

// publishTrailing releases the pending key before reading the submissions. An
// answer recorded after the read arms another trailing publish.
func (s *Service) publishTrailing(ctx context.Context, sessionID int64) error {
	if err := s.redis.Del(ctx, s.getPublishPendingKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("del pending: %w", err)
	}

	return s.publishLeaderboard(ctx, sessionID)
}

func (s *Service) publishLeaderboard(ctx context.Context, sessionID int64) error {
	l, err := s.GetLeaderboard(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("get leaderboard failed: session=%d: %w", sessionID, err)
	}

	s.eb.Publish(ctx, domain.EventLeaderboardUpdated{
		Leaderboard: *l,
	})

	return s.redis.Set(ctx, s.getPublishTimeKey(sessionID), time.Now().UnixMilli(), s.interval).Err()
}

// Stop runs pending trailing publishes right away and waits for them. Call it
// before stopping the event bus.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.stopped {
		s.stopped = true
		close(s.done)
	}
	s.mu.Unlock()

	s.wg.Wait()
}

func (s *Service) getPublishTimeKey(sessionID int64) string {
	return fmt.Sprintf("%s:%d:time", s.prefix, sessionID)
}

func (s *Service) getPublishPendingKey(sessionID int64) string {
	return fmt.Sprintf("%s:%d:pending", s.prefix, sessionID)
}
