package session

import (
	"context"
	stderrors "errors"
	"sync"

	"github.com/samber/lo"

	"github.com/victornm/livequiz/internal/domain"
	"github.com/victornm/livequiz/internal/errors"
)

// ErrCodeTaken is returned by Store.Insert when an open session already holds the join code.
var ErrCodeTaken = stderrors.New("session: join code taken")

// Store persists sessions. Update must run fn and the write as one atomic step,
// so concurrent transitions on the same session never interleave.
type Store interface {
	Insert(ctx context.Context, ss *domain.Session) error
	CodeInUse(ctx context.Context, code string) (bool, error)
	Get(ctx context.Context, id int64) (*domain.Session, error)
	// GetByCode returns the most relevant session holding code: an open one if any,
	// otherwise the most recently created.
	GetByCode(ctx context.Context, code string) (*domain.Session, error)
	// Update loads the session, applies fn and writes the result. Nothing is written if fn fails.
	Update(ctx context.Context, id int64, fn func(ss *domain.Session) error) (*domain.Session, error)
}

// MemoryStore keeps sessions in process behind a single mutex.
type MemoryStore struct {
	mu       sync.Mutex
	nextID   int64
	sessions map[int64]*domain.Session
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[int64]*domain.Session)}
}

func (m *MemoryStore) Insert(_ context.Context, ss *domain.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.codeInUse(ss.Code) {
		return ErrCodeTaken
	}

	m.nextID++
	ss.ID = m.nextID
	stored := *ss
	m.sessions[ss.ID] = &stored
	return nil
}

func (m *MemoryStore) CodeInUse(_ context.Context, code string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.codeInUse(code), nil
}

func (m *MemoryStore) codeInUse(code string) bool {
	for _, ss := range m.sessions {
		if ss.Code == code && ss.Status.Open() {
			return true
		}
	}
	return false
}

func (m *MemoryStore) Get(_ context.Context, id int64) (*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ss, ok := m.sessions[id]
	if !ok {
		return nil, errors.NotFound("session not found: id=%d", id)
	}
	out := *ss
	return &out, nil
}

func (m *MemoryStore) GetByCode(_ context.Context, code string) (*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	matches := lo.Filter(lo.Values(m.sessions), func(ss *domain.Session, _ int) bool {
		return ss.Code == code
	})
	if len(matches) == 0 {
		return nil, errors.NotFound("session not found: code=%s", code)
	}

	best := lo.MaxBy(matches, func(a, b *domain.Session) bool {
		if a.Status.Open() != b.Status.Open() {
			return a.Status.Open()
		}
		return a.ID > b.ID
	})
	out := *best
	return &out, nil
}

func (m *MemoryStore) Update(_ context.Context, id int64, fn func(ss *domain.Session) error) (*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ss, ok := m.sessions[id]
	if !ok {
		return nil, errors.NotFound("session not found: id=%d", id)
	}

	next := *ss
	if err := fn(&next); err != nil {
		return nil, err
	}

	m.sessions[id] = &next
	out := next
	return &out, nil
}
