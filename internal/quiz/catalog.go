// Package quiz provides read access to question sets. Authoring and generating
// question sets happens elsewhere; this service only plays them.
package quiz

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/victornm/livequiz/internal/config"
	"github.com/victornm/livequiz/internal/domain"
	"github.com/victornm/livequiz/internal/errors"
)

type Catalog interface {
	GetQuestionSet(ctx context.Context, id int64) (*domain.QuestionSet, error)
}

// PostgresCatalog reads question sets from the quizzes and questions tables.
type PostgresCatalog struct {
	db *pgxpool.Pool
}

func NewPostgresCatalog(db *pgxpool.Pool) *PostgresCatalog {
	return &PostgresCatalog{db: db}
}

func (c *PostgresCatalog) GetQuestionSet(ctx context.Context, id int64) (*domain.QuestionSet, error) {
	const (
		quizStmt      = `SELECT id, owner, title FROM quizzes WHERE id = $1;`
		questionsStmt = `SELECT id, question_text, options, correct_answer_index, COALESCE(explanation, '') FROM questions WHERE quiz_id = $1 ORDER BY id;`
	)

	var qs domain.QuestionSet
	err := c.db.QueryRow(ctx, quizStmt, id).Scan(&qs.ID, &qs.Owner, &qs.Title)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, errors.NotFound("question set not found: id=%d", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get question set: %w", err)
	}

	rows, err := c.db.Query(ctx, questionsStmt, id)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}

	qs.Questions, err = pgx.CollectRows(rows, func(r pgx.CollectableRow) (domain.Question, error) {
		var (
			q   domain.Question
			raw []byte
		)
		if err := r.Scan(&q.ID, &q.Text, &raw, &q.CorrectIndex, &q.Explanation); err != nil {
			return domain.Question{}, err
		}
		if err := json.Unmarshal(raw, &q.Options); err != nil {
			return domain.Question{}, fmt.Errorf("decode options of question %d: %w", q.ID, err)
		}
		return q, nil
	})
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}

	return &qs, nil
}

// MemoryCatalog keeps question sets in process. Used for local runs and tests.
type MemoryCatalog struct {
	mu   sync.RWMutex
	sets map[int64]domain.QuestionSet
}

func NewMemoryCatalog(sets ...domain.QuestionSet) *MemoryCatalog {
	c := &MemoryCatalog{sets: make(map[int64]domain.QuestionSet)}
	for _, qs := range sets {
		c.Put(qs)
	}
	return c
}

func (c *MemoryCatalog) Put(qs domain.QuestionSet) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.sets[qs.ID] = qs
}

func (c *MemoryCatalog) GetQuestionSet(_ context.Context, id int64) (*domain.QuestionSet, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	qs, ok := c.sets[id]
	if !ok {
		return nil, errors.NotFound("question set not found: id=%d", id)
	}
	return &qs, nil
}

// Seed is the file layout accepted by LoadSeed.
type Seed struct {
	QuestionSets []struct {
		ID        int64
		Owner     string
		Title     string
		Questions []struct {
			ID           int64
			Text         string
			Options      []string
			CorrectIndex int
			Explanation  string
		}
	}
}

// LoadSeed reads question sets from a YAML or JSON file into a MemoryCatalog.
func LoadSeed(file string) (*MemoryCatalog, error) {
	var s Seed
	if err := config.Load(file, &s); err != nil {
		return nil, fmt.Errorf("quiz: load seed: %w", err)
	}

	c := NewMemoryCatalog()
	for _, raw := range s.QuestionSets {
		qs := domain.QuestionSet{
			ID:    raw.ID,
			Owner: raw.Owner,
			Title: raw.Title,
		}
		for _, q := range raw.Questions {
			qs.Questions = append(qs.Questions, domain.Question{
				ID:           q.ID,
				Text:         q.Text,
				Options:      q.Options,
				CorrectIndex: q.CorrectIndex,
				Explanation:  q.Explanation,
			})
		}
		c.Put(qs)
	}

	return c, nil
}
