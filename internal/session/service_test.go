package session_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/victornm/livequiz/internal/domain"
	"github.com/victornm/livequiz/internal/errors"
	"github.com/victornm/livequiz/internal/event"
	"github.com/victornm/livequiz/internal/quiz"
	"github.com/victornm/livequiz/internal/session"
)

const host = "quizmaster"

func TestService_CreateSession(t *testing.T) {
	s := makeService(t)
	ctx := context.Background()

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		ss, err := s.CreateSession(ctx, session.CreateSessionRequest{QuestionSetID: 1, Host: host})
		require.NoError(t, err)

		require.Len(t, ss.Code, 6)
		require.Regexp(t, `^[0-9]{6}$`, ss.Code)
		require.False(t, seen[ss.Code], "code %s issued twice while open", ss.Code)
		seen[ss.Code] = true

		require.Equal(t, domain.StatusLobby, ss.Status)
		require.Equal(t, 0, ss.QuestionIndex)
		require.Equal(t, 3, ss.QuestionCount)
		require.Nil(t, ss.StartTime)
	}
}

func TestService_CreateSession_QuestionSetAccess(t *testing.T) {
	tests := map[string]struct {
		req session.CreateSessionRequest
	}{
		"unknown question set": {
			req: session.CreateSessionRequest{QuestionSetID: 42, Host: host},
		},
		"question set owned by someone else": {
			req: session.CreateSessionRequest{QuestionSetID: 1, Host: "intruder"},
		},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			_, err := makeService(t).CreateSession(context.Background(), tt.req)
			require.Equal(t, errors.CodeNotFound, errors.Convert(err).Code)
		})
	}
}

func TestService_CreateSession_ExhaustedRetries(t *testing.T) {
	var draws atomic.Int32
	s := makeService(t, withCodes(func(int) (string, error) {
		draws.Add(1)
		return "123456", nil
	}))
	ctx := context.Background()

	first, err := s.CreateSession(ctx, session.CreateSessionRequest{QuestionSetID: 1, Host: host})
	require.NoError(t, err)
	require.Equal(t, "123456", first.Code)

	draws.Store(0)
	_, err = s.CreateSession(ctx, session.CreateSessionRequest{QuestionSetID: 1, Host: host})
	require.Equal(t, errors.CodeResourceExhausted, errors.Convert(err).Code)
	require.Equal(t, int32(session.DefaultCodeAttempts), draws.Load())

	// A finished session releases its code.
	_, err = s.End(ctx, first.ID)
	require.NoError(t, err)

	second, err := s.CreateSession(ctx, session.CreateSessionRequest{QuestionSetID: 1, Host: host})
	require.NoError(t, err)
	require.Equal(t, "123456", second.Code)
	require.NotEqual(t, first.ID, second.ID)

	got, err := s.GetByCode(ctx, "123456")
	require.NoError(t, err)
	require.Equal(t, second.ID, got.ID, "open session should win over the finished one")
}

func TestService_ResolveJoinable(t *testing.T) {
	s := makeService(t)
	ctx := context.Background()

	lobby := create(t, s)
	active := create(t, s)
	_, err := s.Start(ctx, active.ID)
	require.NoError(t, err)
	finished := create(t, s)
	_, err = s.End(ctx, finished.ID)
	require.NoError(t, err)

	tests := map[string]struct {
		code    string
		wantID  int64
		wantErr bool
	}{
		"lobby session is joinable":     {code: lobby.Code, wantID: lobby.ID},
		"active session is joinable":    {code: active.Code, wantID: active.ID},
		"finished session is not found": {code: finished.Code, wantErr: true},
		"unknown code is not found":     {code: "000000", wantErr: true},
		"short code is not found":       {code: "123", wantErr: true},
		"non numeric code is not found": {code: "12a456", wantErr: true},
		"empty code is not found":       {code: "", wantErr: true},
		"code with spaces is not found": {code: " " + lobby.Code[1:], wantErr: true},
		"long code is not found":        {code: lobby.Code + "1", wantErr: true},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			ss, err := s.ResolveJoinable(ctx, tt.code)
			if tt.wantErr {
				require.Equal(t, errors.CodeNotFound, errors.Convert(err).Code)
				require.Nil(t, ss)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.wantID, ss.ID)
		})
	}
}

func TestService_Start(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	s := makeService(t, withNow(func() time.Time { return now }))
	ctx := context.Background()

	ss := create(t, s)

	started, err := s.Start(ctx, ss.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusActive, started.Status)
	require.Equal(t, now, *started.StartTime)

	_, err = s.Start(ctx, ss.ID)
	require.Equal(t, errors.CodeFailedPrecondition, errors.Convert(err).Code, "a session starts only once")

	_, err = s.Start(ctx, 999)
	require.Equal(t, errors.CodeNotFound, errors.Convert(err).Code)
}

func TestService_Advance(t *testing.T) {
	s := makeService(t)
	ctx := context.Background()

	ss := create(t, s)

	_, ok, err := s.Advance(ctx, ss.ID)
	require.NoError(t, err)
	require.False(t, ok, "lobby session must not advance")

	_, err = s.Start(ctx, ss.ID)
	require.NoError(t, err)

	for want := 1; want <= 2; want++ {
		idx, ok, err := s.Advance(ctx, ss.ID)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, want, idx)
	}

	got, err := s.Get(ctx, ss.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusActive, got.Status)
	require.Equal(t, got.QuestionCount-1, got.QuestionIndex)

	// Advancing past the last question finishes the session.
	idx, ok, err := s.Advance(ctx, ss.ID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 3, idx)

	got, err = s.Get(ctx, ss.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusFinished, got.Status)
	require.NotNil(t, got.EndTime)
	endTime := *got.EndTime

	_, ok, err = s.Advance(ctx, ss.ID)
	require.NoError(t, err)
	require.False(t, ok, "finished session must not advance")

	again, err := s.Get(ctx, ss.ID)
	require.NoError(t, err)
	require.Equal(t, 3, again.QuestionIndex)
	require.Equal(t, endTime, *again.EndTime)
}

func TestService_Advance_Concurrent(t *testing.T) {
	s := makeService(t)
	ctx := context.Background()

	ss := create(t, s)
	_, err := s.Start(ctx, ss.ID)
	require.NoError(t, err)

	var (
		mu      sync.Mutex
		indexes []int
		eg      errgroup.Group
	)
	for i := 0; i < 20; i++ {
		eg.Go(func() error {
			idx, ok, err := s.Advance(ctx, ss.ID)
			if err != nil {
				return err
			}
			if ok {
				mu.Lock()
				indexes = append(indexes, idx)
				mu.Unlock()
			}
			return nil
		})
	}
	require.NoError(t, eg.Wait())

	require.ElementsMatch(t, []int{1, 2, 3}, indexes, "each step must be taken exactly once")

	got, err := s.Get(ctx, ss.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusFinished, got.Status)
	require.Equal(t, 3, got.QuestionIndex)
}

func TestService_End(t *testing.T) {
	clock := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	s := makeService(t, withNow(func() time.Time { return clock }))
	ctx := context.Background()

	ss := create(t, s)

	ended, err := s.End(ctx, ss.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusFinished, ended.Status)
	require.Equal(t, clock, *ended.EndTime)

	clock = clock.Add(time.Hour)
	again, err := s.End(ctx, ss.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusFinished, again.Status)
	require.Equal(t, ended.EndTime.UTC(), again.EndTime.UTC(), "ending twice keeps the first end time")

	_, err = s.Start(ctx, ss.ID)
	require.Equal(t, errors.CodeFailedPrecondition, errors.Convert(err).Code, "finished is terminal")
}

func TestService_PublishesLifecycleEvents(t *testing.T) {
	eb := event.NewBus()

	var (
		mu    sync.Mutex
		names []string
	)
	record := func(_ context.Context, e event.Event) error {
		mu.Lock()
		names = append(names, e.Name())
		mu.Unlock()
		return nil
	}
	eb.Subscribe(domain.EventNameSessionStarted, record)
	eb.Subscribe(domain.EventNameSessionEnded, record)

	s := makeService(t, withEventBus(eb))
	ctx := context.Background()

	ss := create(t, s)
	_, err := s.Start(ctx, ss.ID)
	require.NoError(t, err)
	_, err = s.End(ctx, ss.ID)
	require.NoError(t, err)
	_, err = s.End(ctx, ss.ID)
	require.NoError(t, err)

	eb.Stop()
	require.ElementsMatch(t, []string{domain.EventNameSessionStarted, domain.EventNameSessionEnded}, names)
}

func create(t *testing.T, s *session.Service) *domain.Session {
	t.Helper()

	ss, err := s.CreateSession(context.Background(), session.CreateSessionRequest{QuestionSetID: 1, Host: host})
	require.NoError(t, err)
	return ss
}

func makeService(t *testing.T, opts ...options) *session.Service {
	t.Helper()

	c := session.Config{
		Store: session.NewMemoryStore(),
		Catalog: quiz.NewMemoryCatalog(domain.QuestionSet{
			ID:    1,
			Owner: host,
			Title: "Go basics",
			Questions: []domain.Question{
				{ID: 11, Text: "q1", Options: []string{"a", "b", "c", "d"}, CorrectIndex: 0},
				{ID: 12, Text: "q2", Options: []string{"a", "b", "c", "d"}, CorrectIndex: 1},
				{ID: 13, Text: "q3", Options: []string{"a", "b", "c", "d"}, CorrectIndex: 2},
			},
		}),
		EventBus: event.NewBus(),
	}

	for _, opt := range opts {
		opt(&c)
	}

	return session.NewService(c)
}

type options func(c *session.Config)

func withEventBus(eb *event.Bus) options {
	return func(c *session.Config) {
		c.EventBus = eb
	}
}

func withCodes(g session.CodeGenerator) options {
	return func(c *session.Config) {
		c.NewCode = g
	}
}

func withNow(now func() time.Time) options {
	return func(c *session.Config) {
		c.Now = now
	}
}
