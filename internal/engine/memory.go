package engine

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// MemoryRepository keeps all state in process. Turn updates are serialized
// per game id; different games never wait on each other.
type MemoryRepository struct {
	locks *GameLocks

	mu      sync.RWMutex
	games   map[string]*State
	players map[string]Player
	tokens  map[string]string
}

var (
	errDuplicateToken = errors.New("duplicate player token")
	errGameTaken      = errors.New("game already joined")
)

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		locks:   NewGameLocks(),
		games:   map[string]*State{},
		players: map[string]Player{},
		tokens:  map[string]string{},
	}
}

func (m *MemoryRepository) UpdateGame(ctx context.Context, gameID string, fn func(*State) error) error {
	unlock := m.locks.Lock(gameID)
	defer unlock()

	m.mu.RLock()
	current, ok := m.games[gameID]
	m.mu.RUnlock()
	if !ok {
		return ErrGameNotFound
	}

	next := current.Clone()
	if err := fn(next); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return wrapError(CodeStorage, "update game", err)
	}
	next.Game.Version++

	m.mu.Lock()
	m.games[gameID] = next
	m.mu.Unlock()
	return nil
}

func (m *MemoryRepository) LoadGame(ctx context.Context, gameID string) (*State, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.games[gameID]
	if !ok {
		return nil, ErrGameNotFound
	}
	return s.Clone(), nil
}

func (m *MemoryRepository) CreatePlayer(ctx context.Context, p Player) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, dup := m.tokens[p.Token]; dup {
		return wrapError(CodeStorage, "create player", errDuplicateToken)
	}
	m.players[p.ID] = p
	m.tokens[p.Token] = p.ID
	return nil
}

func (m *MemoryRepository) PlayerByToken(ctx context.Context, token string) (Player, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.tokens[token]
	if !ok {
		return Player{}, ErrInvalidCredential
	}
	return m.players[id], nil
}

func (m *MemoryRepository) PlayerNames(ctx context.Context, ids []string) (map[string]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]string, len(ids))
	for _, id := range ids {
		if p, ok := m.players[id]; ok {
			out[id] = p.Name
		}
	}
	return out, nil
}

func (m *MemoryRepository) CreateGame(ctx context.Context, g Game) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.games[g.ID] = NewState(g)
	return nil
}

func (m *MemoryRepository) JoinWaitingGame(ctx context.Context, player string, now time.Time) (Game, error) {
	for {
		id, ok := m.oldestWaiting(player)
		if !ok {
			return Game{}, ErrNoGameAvailable
		}
		err := m.UpdateGame(ctx, id, func(s *State) error {
			if s.Game.Status != StatusWaiting || s.Game.PlayerB != "" {
				return errGameTaken
			}
			s.Game.PlayerB = player
			s.Game.Status = StatusInProgress
			s.Game.UpdatedAt = now
			return nil
		})
		if errors.Is(err, errGameTaken) {
			continue
		}
		if err != nil {
			return Game{}, err
		}
		m.mu.RLock()
		g := m.games[id].Game
		m.mu.RUnlock()
		return g, nil
	}
}

func (m *MemoryRepository) oldestWaiting(player string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var best *Game
	for _, s := range m.games {
		g := &s.Game
		if g.Status != StatusWaiting || g.PlayerA == player {
			continue
		}
		if best == nil || g.CreatedAt.Before(best.CreatedAt) {
			best = g
		}
	}
	if best == nil {
		return "", false
	}
	return best.ID, true
}

func (m *MemoryRepository) Wins(ctx context.Context) ([]WinTally, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	counts := map[string]int{}
	for _, s := range m.games {
		if s.Game.Status == StatusCompleted && s.Game.Winner != "" {
			counts[s.Game.Winner]++
		}
	}
	out := make([]WinTally, 0, len(counts))
	for id, n := range counts {
		out = append(out, WinTally{PlayerID: id, Name: m.players[id].Name, Wins: n})
	}
	SortWins(out)
	return out, nil
}

// SortWins orders tallies by wins descending, then name.
func SortWins(tallies []WinTally) {
	sort.Slice(tallies, func(i, j int) bool {
		if tallies[i].Wins != tallies[j].Wins {
			return tallies[i].Wins > tallies[j].Wins
		}
		return tallies[i].Name < tallies[j].Name
	})
}
