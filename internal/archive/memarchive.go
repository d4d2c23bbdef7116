package archive

import (
	"context"
	"sync"

	"github.com/park285/chess-arena-bot/internal/domain"
)

// MemStore is the in-process archive used when no DATABASE_URL is
// configured. Same contract as the postgres repository, nothing
// survives a restart.
type MemStore struct {
	mu     sync.RWMutex
	nextID int64
	games  map[string]*domain.FinishedGame
}

func NewMemStore() *MemStore {
	return &MemStore{nextID: 1, games: make(map[string]*domain.FinishedGame)}
}

func (m *MemStore) Save(_ context.Context, rec *domain.FinishedGame) error {
	if rec == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := cloneRecord(rec)
	if existing, ok := m.games[rec.SessionUUID]; ok {
		cp.ID = existing.ID
	} else {
		cp.ID = m.nextID
		m.nextID++
	}
	m.games[rec.SessionUUID] = cp
	return nil
}

func (m *MemStore) BySession(_ context.Context, sessionUUID string) (*domain.FinishedGame, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.games[sessionUUID]
	if !ok {
		return nil, nil
	}
	return cloneRecord(rec), nil
}

func (m *MemStore) Close() error { return nil }

func cloneRecord(rec *domain.FinishedGame) *domain.FinishedGame {
	cp := *rec
	cp.MovesUCI = append([]string(nil), rec.MovesUCI...)
	cp.MovesSAN = append([]string(nil), rec.MovesSAN...)
	return &cp
}
