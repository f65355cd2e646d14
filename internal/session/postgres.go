package session

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/victornm/livequiz/internal/domain"
	"github.com/victornm/livequiz/internal/errors"
)

const sessionColumns = `id, join_code, question_set_id, host, status, question_index, question_count, create_time, start_time, end_time`

// PostgresStore persists sessions in the sessions table. Open join codes are kept
// unique by a partial unique index, see deploy/schema.sql.
type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Insert(ctx context.Context, ss *domain.Session) error {
	const stmt = `
INSERT INTO sessions (join_code, question_set_id, host, status, question_index, question_count, create_time)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING id;`

	err := s.db.QueryRow(ctx, stmt,
		ss.Code, ss.QuestionSetID, ss.Host, string(ss.Status), ss.QuestionIndex, ss.QuestionCount, ss.CreateTime,
	).Scan(&ss.ID)

	var pgErr *pgconn.PgError
	const codeUniqueViolation = "23505"
	if stderrors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation {
		return ErrCodeTaken
	}
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}

	return nil
}

func (s *PostgresStore) CodeInUse(ctx context.Context, code string) (bool, error) {
	const stmt = `SELECT EXISTS (SELECT 1 FROM sessions WHERE join_code = $1 AND status <> 'finished');`

	var used bool
	if err := s.db.QueryRow(ctx, stmt, code).Scan(&used); err != nil {
		return false, fmt.Errorf("check join code: %w", err)
	}
	return used, nil
}

func (s *PostgresStore) Get(ctx context.Context, id int64) (*domain.Session, error) {
	const stmt = `SELECT ` + sessionColumns + ` FROM sessions WHERE id = $1;`

	ss, err := scanSession(s.db.QueryRow(ctx, stmt, id))
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, errors.NotFound("session not found: id=%d", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return ss, nil
}

func (s *PostgresStore) GetByCode(ctx context.Context, code string) (*domain.Session, error) {
	const stmt = `
SELECT ` + sessionColumns + `
FROM sessions
WHERE join_code = $1
ORDER BY (status <> 'finished') DESC, id DESC
LIMIT 1;`

	ss, err := scanSession(s.db.QueryRow(ctx, stmt, code))
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, errors.NotFound("session not found: code=%s", code)
	}
	if err != nil {
		return nil, fmt.Errorf("get session by code: %w", err)
	}
	return ss, nil
}

func (s *PostgresStore) Update(ctx context.Context, id int64, fn func(ss *domain.Session) error) (_ *domain.Session, err error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			err = stderrors.Join(err, tx.Rollback(ctx))
		}
	}()

	const (
		selStmt = `SELECT ` + sessionColumns + ` FROM sessions WHERE id = $1 FOR UPDATE;`
		updStmt = `UPDATE sessions SET status = $2, question_index = $3, start_time = $4, end_time = $5 WHERE id = $1;`
	)

	ss, err := scanSession(tx.QueryRow(ctx, selStmt, id))
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, errors.NotFound("session not found: id=%d", id)
	}
	if err != nil {
		return nil, fmt.Errorf("lock session: %w", err)
	}

	if err = fn(ss); err != nil {
		return nil, err
	}

	if _, err = tx.Exec(ctx, updStmt, id, string(ss.Status), ss.QuestionIndex, ss.StartTime, ss.EndTime); err != nil {
		return nil, fmt.Errorf("update session: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	return ss, nil
}

func scanSession(row pgx.Row) (*domain.Session, error) {
	var (
		ss     domain.Session
		status string
		start  *time.Time
		end    *time.Time
	)

	err := row.Scan(&ss.ID, &ss.Code, &ss.QuestionSetID, &ss.Host, &status,
		&ss.QuestionIndex, &ss.QuestionCount, &ss.CreateTime, &start, &end)
	if err != nil {
		return nil, err
	}

	ss.Status = domain.Status(status)
	ss.StartTime = start
	ss.EndTime = end
	return &ss, nil
}
