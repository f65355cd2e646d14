package score

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/lo"

	"github.com/victornm/livequiz/internal/domain"
	"github.com/victornm/livequiz/internal/errors"
)

// Store appends submissions. Lists are returned in insertion order.
type Store interface {
	Insert(ctx context.Context, sub *domain.Submission) error
	ListBySession(ctx context.Context, sessionID int64) ([]domain.Submission, error)
	ListByQuestion(ctx context.Context, sessionID, questionID int64) ([]domain.Submission, error)
}

func duplicate(sub *domain.Submission, cause error) error {
	return errors.New(errors.CodeAlreadyExists,
		errors.WithMessagef("answer is already submitted: session=%d player=%s question=%d", sub.SessionID, sub.PlayerName, sub.QuestionID),
		errors.WithCause(cause),
	)
}

type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Insert(ctx context.Context, sub *domain.Submission) error {
	const stmt = `
INSERT INTO answer_submissions (session_id, player_name, connection_id, question_id, answer_index, elapsed_ms, points, create_time)
VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, $8)
RETURNING id;`

	err := s.db.QueryRow(ctx, stmt,
		sub.SessionID, sub.PlayerName, sub.ConnectionID, sub.QuestionID, sub.AnswerIndex, sub.ElapsedMS, sub.Points, sub.CreateTime,
	).Scan(&sub.ID)

	var pgErr *pgconn.PgError
	const codeUniqueViolation = "23505"
	if stderrors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation {
		return duplicate(sub, err)
	}
	if err != nil {
		return fmt.Errorf("insert submission: %w", err)
	}

	return nil
}

const submissionColumns = `id, session_id, player_name, COALESCE(connection_id, ''), question_id, answer_index, elapsed_ms, points, create_time`

func (s *PostgresStore) ListBySession(ctx context.Context, sessionID int64) ([]domain.Submission, error) {
	const stmt = `SELECT ` + submissionColumns + ` FROM answer_submissions WHERE session_id = $1 ORDER BY id;`

	return s.list(ctx, stmt, sessionID)
}

func (s *PostgresStore) ListByQuestion(ctx context.Context, sessionID, questionID int64) ([]domain.Submission, error) {
	const stmt = `SELECT ` + submissionColumns + ` FROM answer_submissions WHERE session_id = $1 AND question_id = $2 ORDER BY id;`

	return s.list(ctx, stmt, sessionID, questionID)
}

func (s *PostgresStore) list(ctx context.Context, stmt string, args ...any) ([]domain.Submission, error) {
	rows, err := s.db.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}

	subs, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (domain.Submission, error) {
		var sub domain.Submission
		err := r.Scan(&sub.ID, &sub.SessionID, &sub.PlayerName, &sub.ConnectionID, &sub.QuestionID,
			&sub.AnswerIndex, &sub.ElapsedMS, &sub.Points, &sub.CreateTime)
		return sub, err
	})
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}

	return subs, nil
}

// MemoryStore keeps submissions in process.
type MemoryStore struct {
	mu     sync.RWMutex
	nextID int64
	subs   []domain.Submission
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Insert(_ context.Context, sub *domain.Submission) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	exists := lo.ContainsBy(m.subs, func(s domain.Submission) bool {
		return s.SessionID == sub.SessionID && s.QuestionID == sub.QuestionID && s.PlayerName == sub.PlayerName
	})
	if exists {
		return duplicate(sub, nil)
	}

	m.nextID++
	sub.ID = m.nextID
	m.subs = append(m.subs, *sub)
	return nil
}

func (m *MemoryStore) ListBySession(_ context.Context, sessionID int64) ([]domain.Submission, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return lo.Filter(m.subs, func(s domain.Submission, _ int) bool {
		return s.SessionID == sessionID
	}), nil
}

func (m *MemoryStore) ListByQuestion(_ context.Context, sessionID, questionID int64) ([]domain.Submission, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return lo.Filter(m.subs, func(s domain.Submission, _ int) bool {
		return s.SessionID == sessionID && s.QuestionID == questionID
	}), nil
}
