package engine

import (
	"sort"
	"time"
)

// Status is the lifecycle of a game record.
type Status string

const (
	StatusWaiting    Status = "waiting"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

// Player is a registered participant. Token is the credential.
type Player struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Token     string    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

// Game is the shared per-game record read and written by turn transitions.
type Game struct {
	ID        string    `json:"id"`
	PlayerA   string    `json:"player_a"`
	PlayerB   string    `json:"player_b,omitempty"`
	TurnOwner string    `json:"turn_owner"`
	Status    Status    `json:"status"`
	Winner    string    `json:"winner,omitempty"`
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Other returns the opponent of player.
func (g *Game) Other(player string) string {
	if player == g.PlayerA {
		return g.PlayerB
	}
	return g.PlayerA
}

// HasPlayer reports whether player is a participant.
func (g *Game) HasPlayer(player string) bool {
	return player != "" && (player == g.PlayerA || player == g.PlayerB)
}

// Progress is one player's permanent progress on one column.
type Progress struct {
	Progress int  `json:"progress"`
	Locked   bool `json:"locked"`
}

// RollRecord is the most recent roll for a (game, player).
type RollRecord struct {
	Dice       Dice       `json:"dice"`
	Pairings   [3]Pairing `json:"pairings"`
	HasPending bool       `json:"has_pending"`
	RolledAt   time.Time  `json:"rolled_at"`
}

// State is everything a turn transition reads or writes for one game.
type State struct {
	Game     Game
	Progress map[string]map[int]*Progress
	Ledger   map[string]Ledger
	Rolls    map[string]*RollRecord
}

// NewState returns an empty state for g.
func NewState(g Game) *State {
	return &State{
		Game:     g,
		Progress: map[string]map[int]*Progress{},
		Ledger:   map[string]Ledger{},
		Rolls:    map[string]*RollRecord{},
	}
}

// Clone returns a deep copy so a failed transition can be discarded.
func (s *State) Clone() *State {
	out := NewState(s.Game)
	for pid, cols := range s.Progress {
		m := make(map[int]*Progress, len(cols))
		for n, p := range cols {
			cp := *p
			m[n] = &cp
		}
		out.Progress[pid] = m
	}
	for pid, l := range s.Ledger {
		out.Ledger[pid] = l.clone()
	}
	for pid, r := range s.Rolls {
		cp := *r
		out.Rolls[pid] = &cp
	}
	return out
}

// PendingRoll returns the player's current roll if it still awaits a choice.
func (s *State) PendingRoll(player string) (*RollRecord, bool) {
	r, ok := s.Rolls[player]
	if !ok || !r.HasPending {
		return nil, false
	}
	return r, true
}

// Participants returns the game's player ids in seat order.
func (s *State) Participants() []string {
	out := []string{s.Game.PlayerA}
	if s.Game.PlayerB != "" {
		out = append(out, s.Game.PlayerB)
	}
	return out
}

// ProgressColumns returns the columns player has permanent progress in, sorted.
func (s *State) ProgressColumns(player string) []int {
	cols := make([]int, 0, len(s.Progress[player]))
	for n := range s.Progress[player] {
		cols = append(cols, n)
	}
	sort.Ints(cols)
	return cols
}
