package engine

import "sort"

// MaxActiveColumns caps the distinct columns a player may work in one turn.
const MaxActiveColumns = 3

// Ledger holds one player's uncommitted progress for the current turn,
// keyed by column number.
type Ledger map[int]int

func (l Ledger) clone() Ledger {
	out := make(Ledger, len(l))
	for k, v := range l {
		out[k] = v
	}
	return out
}

// Columns returns the ledger's columns in ascending order.
func (l Ledger) Columns() []int {
	cols := make([]int, 0, len(l))
	for n := range l {
		cols = append(cols, n)
	}
	sort.Ints(cols)
	return cols
}

// Has reports whether column is already one of this turn's active columns.
func (l Ledger) Has(column int) bool {
	_, ok := l[column]
	return ok
}

// Admits reports whether column can take progress without exceeding the cap.
func (l Ledger) Admits(column int) bool {
	return l.Has(column) || len(l) < MaxActiveColumns
}

// ledgerFor returns the player's ledger, creating it on first use.
func (s *State) ledgerFor(player string) Ledger {
	l, ok := s.Ledger[player]
	if !ok {
		l = Ledger{}
		s.Ledger[player] = l
	}
	return l
}

// advanceLedger adds count to the player's temp progress on column.
// It returns false, leaving the ledger untouched, when column would be a
// fourth distinct column.
func (s *State) advanceLedger(player string, column, count int) bool {
	l := s.ledgerFor(player)
	if !l.Admits(column) {
		return false
	}
	l[column] += count
	return true
}

// discardLedger drops every uncommitted entry for player.
func (s *State) discardLedger(player string) {
	delete(s.Ledger, player)
}

// commitLedger merges the player's ledger into permanent progress and clears
// it. Columns already locked by anyone are skipped so nothing is credited twice.
func (s *State) commitLedger(player string, catalog *Catalog) []ColumnOutcome {
	l := s.Ledger[player]
	outcomes := make([]ColumnOutcome, 0, len(l))
	for _, n := range l.Columns() {
		col, ok := catalog.Lookup(n)
		if !ok {
			outcomes = append(outcomes, ColumnOutcome{Column: n, Status: ColumnInvalid})
			continue
		}
		if owner, locked := s.LockedBy(n); locked {
			// Locked during advance (own column) or by the opponent; either
			// way the ledger entry is not credited again.
			status := ColumnAlreadyWon
			if owner == player {
				status = ColumnLocked
			}
			p := s.progressOf(player, n)
			outcomes = append(outcomes, ColumnOutcome{Column: n, Status: status, Progress: p.Progress, Owner: owner})
			continue
		}
		p, lockedNow := s.credit(player, col, l[n])
		status := ColumnAdvanced
		if lockedNow {
			status = ColumnLocked
		}
		outcomes = append(outcomes, ColumnOutcome{Column: n, Status: status, Progress: p.Progress, Owner: ownerIf(lockedNow, player)})
	}
	s.discardLedger(player)
	return outcomes
}

func ownerIf(cond bool, player string) string {
	if cond {
		return player
	}
	return ""
}
