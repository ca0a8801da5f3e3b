package engine

import "testing"

func TestLedgerCapsDistinctColumns(t *testing.T) {
	s := NewState(Game{ID: "g", PlayerA: "a", PlayerB: "b"})
	for _, col := range []int{4, 6, 8} {
		if !s.advanceLedger("a", col, 1) {
			t.Fatalf("advanceLedger(%d) rejected below cap", col)
		}
	}
	if s.advanceLedger("a", 5, 1) {
		t.Fatalf("fourth distinct column must be rejected")
	}
	if !s.advanceLedger("a", 6, 2) {
		t.Fatalf("repeat column must be accepted at cap")
	}
	l := s.Ledger["a"]
	if len(l) != 3 || l[6] != 3 || l.Has(5) {
		t.Fatalf("ledger = %v, want {4:1 6:3 8:1}", l)
	}

	s.discardLedger("a")
	if len(s.Ledger["a"]) != 0 {
		t.Fatalf("discard should clear ledger, got %v", s.Ledger["a"])
	}
}

func TestCommitLocksAtHeight(t *testing.T) {
	catalog, err := NewCatalog([]Column{{Number: 7, MaxHeight: 3}, {Number: 8, MaxHeight: 5}})
	if err != nil {
		t.Fatalf("NewCatalog: %v", err)
	}
	s := NewState(Game{ID: "g", PlayerA: "a", PlayerB: "b"})
	s.Progress["a"] = map[int]*Progress{7: {Progress: 2}}
	s.Ledger["a"] = Ledger{7: 1, 8: 2}

	got := s.commitLedger("a", catalog)
	if len(got) != 2 {
		t.Fatalf("commit outcomes = %+v", got)
	}
	if got[0].Column != 7 || got[0].Status != ColumnLocked || got[0].Progress != 3 {
		t.Fatalf("column 7 outcome = %+v, want locked at 3", got[0])
	}
	if got[1].Column != 8 || got[1].Status != ColumnAdvanced || got[1].Progress != 2 {
		t.Fatalf("column 8 outcome = %+v, want advanced to 2", got[1])
	}
	if p := s.Progress["a"][7]; !p.Locked || p.Progress != 3 {
		t.Fatalf("column 7 progress = %+v", p)
	}
	if _, ok := s.Ledger["a"]; ok {
		t.Fatalf("commit must clear the ledger")
	}
}

func TestCommitCapsProgressAtHeight(t *testing.T) {
	catalog, _ := NewCatalog([]Column{{Number: 2, MaxHeight: 3}})
	s := NewState(Game{ID: "g", PlayerA: "a", PlayerB: "b"})
	s.Progress["a"] = map[int]*Progress{2: {Progress: 2}}
	s.Ledger["a"] = Ledger{2: 4}
	s.commitLedger("a", catalog)
	if p := s.Progress["a"][2]; p.Progress != 3 || !p.Locked {
		t.Fatalf("progress = %+v, want capped at 3 and locked", p)
	}
}

func TestCommitSkipsLockedColumns(t *testing.T) {
	catalog := DefaultCatalog()
	s := NewState(Game{ID: "g", PlayerA: "a", PlayerB: "b"})
	s.Progress["b"] = map[int]*Progress{12: {Progress: 3, Locked: true}}
	s.Progress["a"] = map[int]*Progress{12: {Progress: 1}}
	s.Ledger["a"] = Ledger{12: 2}

	got := s.commitLedger("a", catalog)
	if len(got) != 1 || got[0].Status != ColumnAlreadyWon || got[0].Owner != "b" {
		t.Fatalf("outcome = %+v, want already_won by b", got)
	}
	if p := s.Progress["a"][12]; p.Progress != 1 || p.Locked {
		t.Fatalf("locked column must not be credited, got %+v", p)
	}

	// Re-committing a ledger that names a column this player locked leaves it alone.
	s.Progress["a"][2] = &Progress{Progress: 3, Locked: true}
	s.Ledger["a"] = Ledger{2: 2}
	got = s.commitLedger("a", catalog)
	if got[0].Status != ColumnLocked || s.Progress["a"][2].Progress != 3 {
		t.Fatalf("re-commit changed a locked column: %+v %+v", got, s.Progress["a"][2])
	}
}

func TestCreditIgnoresLockedEntries(t *testing.T) {
	s := NewState(Game{ID: "g", PlayerA: "a", PlayerB: "b"})
	col := Column{Number: 3, MaxHeight: 5}
	if p, locked := s.credit("a", col, 5); !locked || p.Progress != 5 {
		t.Fatalf("credit to height = %+v locked=%v", p, locked)
	}
	if p, locked := s.credit("a", col, 2); locked || p.Progress != 5 {
		t.Fatalf("credit after lock = %+v locked=%v", p, locked)
	}
	if owner, ok := s.LockedBy(3); !ok || owner != "a" {
		t.Fatalf("LockedBy(3) = %q, %v", owner, ok)
	}
	if got := s.LockedColumns("a"); len(got) != 1 || got[0] != 3 {
		t.Fatalf("LockedColumns = %v", got)
	}
}

func TestCheckWinThreshold(t *testing.T) {
	s := NewState(Game{ID: "g", PlayerA: "a", PlayerB: "b", TurnOwner: "a", Status: StatusInProgress})
	s.Progress["a"] = map[int]*Progress{2: {3, true}, 12: {3, true}}
	if cols := s.checkWin("a"); cols != nil || s.Game.Status != StatusInProgress {
		t.Fatalf("two locked columns must not win, got %v %s", cols, s.Game.Status)
	}
	s.Progress["a"][3] = &Progress{5, true}
	cols := s.checkWin("a")
	if len(cols) != 3 || s.Game.Status != StatusCompleted || s.Game.Winner != "a" {
		t.Fatalf("checkWin = %v status=%s winner=%s", cols, s.Game.Status, s.Game.Winner)
	}
	if s.Game.TurnOwner != "a" {
		t.Fatalf("win must not flip turn owner")
	}
}
