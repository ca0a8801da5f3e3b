package engine

import "sort"

// progressOf returns the player's permanent progress on column. The zero
// value is returned, not stored, when the player has none yet.
func (s *State) progressOf(player string, column int) Progress {
	if p, ok := s.Progress[player][column]; ok {
		return *p
	}
	return Progress{}
}

// LockedBy returns the player holding column, if any player has locked it.
func (s *State) LockedBy(column int) (string, bool) {
	for _, pid := range s.Participants() {
		if p, ok := s.Progress[pid][column]; ok && p.Locked {
			return pid, true
		}
	}
	return "", false
}

// LockedColumns returns the columns player has locked, ascending.
func (s *State) LockedColumns(player string) []int {
	var out []int
	for n, p := range s.Progress[player] {
		if p.Locked {
			out = append(out, n)
		}
	}
	sort.Ints(out)
	return out
}

// credit adds amount to the player's permanent progress on col. Progress
// never decreases and is capped at the column height; reaching the height
// locks the column. Writes to a locked entry are ignored.
func (s *State) credit(player string, col Column, amount int) (Progress, bool) {
	cols, ok := s.Progress[player]
	if !ok {
		cols = map[int]*Progress{}
		s.Progress[player] = cols
	}
	p, ok := cols[col.Number]
	if !ok {
		p = &Progress{}
		cols[col.Number] = p
	}
	if p.Locked || amount <= 0 {
		return *p, false
	}
	p.Progress += amount
	if p.Progress >= col.MaxHeight {
		p.Progress = col.MaxHeight
		p.Locked = true
		return *p, true
	}
	return *p, false
}
