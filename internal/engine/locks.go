package engine

import "sync"

// GameLocks is a mutex per game id. Entries are dropped once no caller holds
// or waits on them.
type GameLocks struct {
	mu    sync.Mutex
	locks map[string]*gameLock
}

type gameLock struct {
	mu   sync.Mutex
	refs int
}

func NewGameLocks() *GameLocks {
	return &GameLocks{locks: map[string]*gameLock{}}
}

// Lock blocks until the game's mutex is held and returns its release func.
func (g *GameLocks) Lock(gameID string) func() {
	g.mu.Lock()
	l, ok := g.locks[gameID]
	if !ok {
		l = &gameLock{}
		g.locks[gameID] = l
	}
	l.refs++
	g.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		g.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(g.locks, gameID)
		}
		g.mu.Unlock()
	}
}
