package engine

import (
	"context"
	"errors"
	"testing"
	"time"
)

// tickingClock advances one second per call so creation order is stable.
func tickingClock() func() time.Time {
	t := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return func() time.Time {
		t = t.Add(time.Second)
		return t
	}
}

func TestRegisterRequiresName(t *testing.T) {
	eng := New(NewMemoryRepository(), Options{})
	if _, err := eng.Register(context.Background(), "   "); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("blank name err = %v, want invalid input", err)
	}
	p, err := eng.Register(context.Background(), "  Ada ")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if p.Name != "Ada" || len(p.Token) != 32 || p.ID == "" {
		t.Fatalf("player = %+v", p)
	}
}

func TestJoinTakesOldestWaitingGame(t *testing.T) {
	repo := NewMemoryRepository()
	eng := New(repo, Options{Now: tickingClock()})
	ctx := context.Background()
	a, _ := eng.Register(ctx, "A")
	b, _ := eng.Register(ctx, "B")
	c, _ := eng.Register(ctx, "C")

	first, err := eng.CreateGame(ctx, a.Token)
	if err != nil {
		t.Fatalf("CreateGame: %v", err)
	}
	second, err := eng.CreateGame(ctx, b.Token)
	if err != nil {
		t.Fatalf("CreateGame: %v", err)
	}

	g, err := eng.JoinGame(ctx, c.Token)
	if err != nil {
		t.Fatalf("JoinGame: %v", err)
	}
	if g.ID != first.ID || g.Status != StatusInProgress || g.PlayerB != c.ID || g.TurnOwner != a.ID {
		t.Fatalf("joined = %+v, want first game in progress with A to move", g)
	}

	// A cannot join its own game, so it takes B's.
	g, err = eng.JoinGame(ctx, a.Token)
	if err != nil {
		t.Fatalf("JoinGame: %v", err)
	}
	if g.ID != second.ID {
		t.Fatalf("joined %s, want %s", g.ID, second.ID)
	}
	if _, err := eng.JoinGame(ctx, c.Token); !errors.Is(err, ErrNoGameAvailable) {
		t.Fatalf("err = %v, want no game available", err)
	}
}

func TestOwnWaitingGameIsNotJoinable(t *testing.T) {
	eng := New(NewMemoryRepository(), Options{})
	ctx := context.Background()
	a, _ := eng.Register(ctx, "A")
	if _, err := eng.CreateGame(ctx, a.Token); err != nil {
		t.Fatalf("CreateGame: %v", err)
	}
	if _, err := eng.JoinGame(ctx, a.Token); !errors.Is(err, ErrNoGameAvailable) {
		t.Fatalf("err = %v, want no game available", err)
	}
	if _, err := eng.CreateGame(ctx, "bogus"); !errors.Is(err, ErrInvalidCredential) {
		t.Fatalf("err = %v, want invalid credential", err)
	}
}

func TestScoreboardCountsLockedColumns(t *testing.T) {
	tg := newTestGame(t, Options{})
	tg.seed(t, func(s *State) {
		s.Progress[tg.alice.ID] = map[int]*Progress{2: {3, true}, 7: {4, false}}
		s.Progress[tg.bob.ID] = map[int]*Progress{3: {5, true}, 12: {3, true}}
	})

	board, err := tg.eng.Scoreboard(context.Background(), tg.gameID)
	if err != nil {
		t.Fatalf("Scoreboard: %v", err)
	}
	if board.Status != StatusInProgress || len(board.Entries) != 2 {
		t.Fatalf("board = %+v", board)
	}
	top := board.Entries[0]
	if top.PlayerID != tg.bob.ID || top.Name != "Bob" || top.ColumnsWon != 2 {
		t.Fatalf("top entry = %+v, want Bob with 2", top)
	}
	if e := board.Entries[1]; e.ColumnsWon != 1 || len(e.Columns) != 1 || e.Columns[0] != 2 {
		t.Fatalf("second entry = %+v, want Alice with column 2", e)
	}
	if _, err := tg.eng.Scoreboard(context.Background(), "nope"); !errors.Is(err, ErrGameNotFound) {
		t.Fatalf("err = %v, want game not found", err)
	}
}

func TestGlobalScoreboardOrdersByWins(t *testing.T) {
	repo := NewMemoryRepository()
	eng := New(repo, Options{})
	ctx := context.Background()
	a, _ := eng.Register(ctx, "Zed")
	b, _ := eng.Register(ctx, "Amy")

	win := func(winner Player) {
		g, err := eng.CreateGame(ctx, a.Token)
		if err != nil {
			t.Fatalf("CreateGame: %v", err)
		}
		if _, err := eng.JoinGame(ctx, b.Token); err != nil {
			t.Fatalf("JoinGame: %v", err)
		}
		err = repo.UpdateGame(ctx, g.ID, func(s *State) error {
			s.Game.Status = StatusCompleted
			s.Game.Winner = winner.ID
			return nil
		})
		if err != nil {
			t.Fatalf("UpdateGame: %v", err)
		}
	}
	win(a)
	win(b)
	win(b)

	tallies, err := eng.GlobalScoreboard(ctx)
	if err != nil {
		t.Fatalf("GlobalScoreboard: %v", err)
	}
	if len(tallies) != 2 || tallies[0].Name != "Amy" || tallies[0].Wins != 2 || tallies[1].Wins != 1 {
		t.Fatalf("tallies = %+v", tallies)
	}

	tie := []WinTally{{Name: "b", Wins: 1}, {Name: "a", Wins: 1}, {Name: "c", Wins: 3}}
	SortWins(tie)
	if tie[0].Name != "c" || tie[1].Name != "a" || tie[2].Name != "b" {
		t.Fatalf("SortWins = %+v", tie)
	}
}

func TestViewShowsBoardsAndPendingRoll(t *testing.T) {
	tg := newTestGame(t, Options{})
	ctx := context.Background()
	tg.seed(t, func(s *State) {
		s.Progress[tg.alice.ID] = map[int]*Progress{6: {Progress: 2}}
	})
	tg.dice.push(Dice{3, 3, 4, 4})
	if _, err := tg.eng.Roll(ctx, tg.gameID, tg.alice.Token); err != nil {
		t.Fatalf("Roll: %v", err)
	}

	v, err := tg.eng.View(ctx, tg.gameID)
	if err != nil {
		t.Fatalf("View: %v", err)
	}
	if v.PendingRoll == nil || v.PendingRoll.Dice != (Dice{3, 3, 4, 4}) {
		t.Fatalf("pending roll = %+v", v.PendingRoll)
	}
	cols := v.Boards[tg.alice.ID]
	if len(cols) != 1 || cols[0].Column != 6 || cols[0].Progress != 2 || cols[0].MaxHeight != 11 {
		t.Fatalf("alice board = %+v", cols)
	}
	if len(v.Boards[tg.bob.ID]) != 0 {
		t.Fatalf("bob board = %+v, want empty", v.Boards[tg.bob.ID])
	}

	if _, err := tg.eng.Advance(ctx, tg.gameID, tg.alice.Token, Selection{Option: 1}); err != nil {
		t.Fatalf("Advance: %v", err)
	}
	v, _ = tg.eng.View(ctx, tg.gameID)
	if v.PendingRoll != nil {
		t.Fatalf("advance should clear the pending roll from the view")
	}
	for _, c := range v.Boards[tg.alice.ID] {
		if c.Column == 6 && c.Temp != 1 {
			t.Fatalf("column 6 temp = %d, want 1", c.Temp)
		}
	}
}

func TestGameLocksSerializeSameID(t *testing.T) {
	locks := NewGameLocks()
	unlock := locks.Lock("g1")
	acquired := make(chan struct{})
	go func() {
		u := locks.Lock("g1")
		close(acquired)
		u()
	}()
	// A different id never waits.
	locks.Lock("g2")()
	select {
	case <-acquired:
		t.Fatalf("second lock on g1 acquired while held")
	case <-time.After(20 * time.Millisecond):
	}
	unlock()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatalf("second lock on g1 never acquired")
	}
}
