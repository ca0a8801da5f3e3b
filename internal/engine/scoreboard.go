package engine

import (
	"context"
	"sort"
)

// ScoreEntry is one participant's standing in a game.
type ScoreEntry struct {
	PlayerID   string `json:"player_id"`
	Name       string `json:"player_name"`
	ColumnsWon int    `json:"columns_won"`
	Columns    []int  `json:"columns,omitempty"`
}

// GameScoreboard is the per-game scoreboard.
type GameScoreboard struct {
	GameID  string       `json:"game_id"`
	Status  Status       `json:"game_status"`
	Winner  string       `json:"winner_id,omitempty"`
	Entries []ScoreEntry `json:"scoreboard"`
}

// ColumnView is one column of a player's board in a GameView.
type ColumnView struct {
	Column    int  `json:"column"`
	MaxHeight int  `json:"max_height"`
	Progress  int  `json:"progress"`
	Temp      int  `json:"temp,omitempty"`
	Locked    bool `json:"locked"`
}

// GameView is a read-only snapshot of a game for display.
type GameView struct {
	Game        Game                    `json:"game"`
	Boards      map[string][]ColumnView `json:"boards"`
	PendingRoll *RollRecord             `json:"pending_roll,omitempty"`
}

// Scoreboard returns locked-column counts for each participant of a game.
func (e *Engine) Scoreboard(ctx context.Context, gameID string) (GameScoreboard, error) {
	s, err := e.repo.LoadGame(ctx, gameID)
	if err != nil {
		return GameScoreboard{}, err
	}
	ids := s.Participants()
	names, err := e.repo.PlayerNames(ctx, ids)
	if err != nil {
		return GameScoreboard{}, err
	}
	board := GameScoreboard{GameID: s.Game.ID, Status: s.Game.Status, Winner: s.Game.Winner}
	for _, id := range ids {
		locked := s.LockedColumns(id)
		board.Entries = append(board.Entries, ScoreEntry{
			PlayerID:   id,
			Name:       names[id],
			ColumnsWon: len(locked),
			Columns:    locked,
		})
	}
	sort.SliceStable(board.Entries, func(i, j int) bool {
		if board.Entries[i].ColumnsWon != board.Entries[j].ColumnsWon {
			return board.Entries[i].ColumnsWon > board.Entries[j].ColumnsWon
		}
		return board.Entries[i].PlayerID < board.Entries[j].PlayerID
	})
	return board, nil
}

// GlobalScoreboard returns win totals across completed games.
func (e *Engine) GlobalScoreboard(ctx context.Context) ([]WinTally, error) {
	return e.repo.Wins(ctx)
}

// View returns the game record, every participant's board and the turn
// owner's pending roll.
func (e *Engine) View(ctx context.Context, gameID string) (GameView, error) {
	s, err := e.repo.LoadGame(ctx, gameID)
	if err != nil {
		return GameView{}, err
	}
	v := GameView{Game: s.Game, Boards: map[string][]ColumnView{}}
	for _, id := range s.Participants() {
		var cols []ColumnView
		for _, col := range e.rules.Catalog.Columns() {
			p := s.progressOf(id, col.Number)
			temp := s.Ledger[id][col.Number]
			if p.Progress == 0 && temp == 0 {
				continue
			}
			cols = append(cols, ColumnView{
				Column:    col.Number,
				MaxHeight: col.MaxHeight,
				Progress:  p.Progress,
				Temp:      temp,
				Locked:    p.Locked,
			})
		}
		v.Boards[id] = cols
	}
	if r, ok := s.PendingRoll(s.Game.TurnOwner); ok {
		v.PendingRoll = r
	}
	return v, nil
}
