package archive

import (
	"context"
	"slices"
	"sync"

	"github.com/park285/Cheese-LLM-Chess/internal/domain"
)

// memrepo keeps archived games in process memory. Used when no database is configured.
type memrepo struct {
	mu        sync.RWMutex
	nextID    int64
	byUUID    map[string]*domain.ArchivedGame
	bySession map[string][]*domain.ArchivedGame
}

func NewMemoryRepository() Repository {
	return &memrepo{
		byUUID:    make(map[string]*domain.ArchivedGame),
		bySession: make(map[string][]*domain.ArchivedGame),
	}
}

func (m *memrepo) InsertGame(_ context.Context, game *domain.ArchivedGame) (int64, error) {
	if game == nil {
		return 0, ErrDuplicateGame
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.byUUID[game.GameUUID]; exists {
		return 0, ErrDuplicateGame
	}
	m.nextID++
	stored := cloneGame(game)
	stored.ID = m.nextID
	m.byUUID[game.GameUUID] = stored
	m.bySession[game.SessionID] = append(m.bySession[game.SessionID], stored)
	return stored.ID, nil
}

func (m *memrepo) RecentGames(_ context.Context, sessionID string, limit int) ([]*domain.ArchivedGame, error) {
	if limit <= 0 {
		limit = 10
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	list := m.bySession[sessionID]
	out := make([]*domain.ArchivedGame, 0, min(limit, len(list)))
	for i := len(list) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, cloneGame(list[i]))
	}
	return out, nil
}

func cloneGame(g *domain.ArchivedGame) *domain.ArchivedGame {
	c := *g
	c.MovesSAN = slices.Clone(g.MovesSAN)
	c.MovesUCI = slices.Clone(g.MovesUCI)
	return &c
}
