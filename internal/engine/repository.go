package engine

import (
	"context"
	"time"
)

// WinTally is one row of the global scoreboard.
type WinTally struct {
	PlayerID string `json:"player_id"`
	Name     string `json:"player_name"`
	Wins     int    `json:"total_wins"`
}

// Repository is the storage contract the engine runs on.
//
// UpdateGame is the only write path for turn state: fn runs against a
// private copy of the game's state while no other UpdateGame for the same
// game id can run, and the copy is persisted only if fn returns nil. A
// non-nil error from fn leaves stored state unchanged and is returned as is.
type Repository interface {
	UpdateGame(ctx context.Context, gameID string, fn func(*State) error) error
	LoadGame(ctx context.Context, gameID string) (*State, error)

	CreatePlayer(ctx context.Context, p Player) error
	PlayerByToken(ctx context.Context, token string) (Player, error)
	PlayerNames(ctx context.Context, ids []string) (map[string]string, error)

	CreateGame(ctx context.Context, g Game) error
	// JoinWaitingGame atomically claims the oldest waiting game not created
	// by player, seats player as PlayerB and starts it.
	JoinWaitingGame(ctx context.Context, player string, now time.Time) (Game, error)
	Wins(ctx context.Context) ([]WinTally, error)
}
