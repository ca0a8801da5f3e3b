package engine

import "fmt"

// LockMode selects when a column that reaches its height becomes locked.
type LockMode string

const (
	// LockImmediate locks during advance as soon as permanent plus temp
	// progress reaches the column height.
	LockImmediate LockMode = "immediate"
	// LockOnCommit locks only when the ledger is committed at stop.
	LockOnCommit LockMode = "commit"
)

// ParseLockMode accepts "immediate" or "commit".
func ParseLockMode(raw string) (LockMode, error) {
	switch LockMode(raw) {
	case LockImmediate, LockOnCommit:
		return LockMode(raw), nil
	case "":
		return LockImmediate, nil
	}
	return "", fmt.Errorf("unsupported lock mode %q", raw)
}

// ColumnStatus is the per-column result of an advance or commit.
type ColumnStatus string

const (
	ColumnAdvanced   ColumnStatus = "advanced"
	ColumnLocked     ColumnStatus = "locked"
	ColumnAlreadyWon ColumnStatus = "already_won"
	ColumnFull       ColumnStatus = "column_full"
	ColumnSkipped    ColumnStatus = "skipped"
	ColumnInvalid    ColumnStatus = "invalid_column"
)

// ColumnOutcome reports what happened to one column.
type ColumnOutcome struct {
	Column   int          `json:"column"`
	Status   ColumnStatus `json:"status"`
	Progress int          `json:"progress"`
	Owner    string       `json:"owner,omitempty"`
}

// Message renders a human-readable line for the outcome.
func (o ColumnOutcome) Message() string {
	switch o.Status {
	case ColumnAdvanced:
		return fmt.Sprintf("Column %d progress is now %d.", o.Column, o.Progress)
	case ColumnLocked:
		return fmt.Sprintf("Column %d reached the top and is now locked.", o.Column)
	case ColumnAlreadyWon:
		return fmt.Sprintf("Column %d has already been won.", o.Column)
	case ColumnFull:
		return fmt.Sprintf("Column %d has no room left this turn.", o.Column)
	case ColumnSkipped:
		return fmt.Sprintf("Cannot add a 4th distinct column (%d). Skipped.", o.Column)
	case ColumnInvalid:
		return fmt.Sprintf("Column %d does not exist in the game.", o.Column)
	}
	return fmt.Sprintf("Column %d: %s.", o.Column, o.Status)
}

// Pairing is one partition of four dice into two summed pairs.
type Pairing struct {
	Option int `json:"option"`
	A      int `json:"a"`
	B      int `json:"b"`
}

// Sums returns the pairing's column sums.
func (p Pairing) Sums() []int {
	return []int{p.A, p.B}
}

// Pairings returns the three fixed partitions of d.
func Pairings(d Dice) [3]Pairing {
	return [3]Pairing{
		{Option: 1, A: d[0] + d[1], B: d[2] + d[3]},
		{Option: 2, A: d[0] + d[2], B: d[1] + d[3]},
		{Option: 3, A: d[0] + d[3], B: d[1] + d[2]},
	}
}

// AnnotatedPairing tags a pairing with the playability of each sum.
type AnnotatedPairing struct {
	Pairing
	PlayableA bool `json:"playable_a"`
	PlayableB bool `json:"playable_b"`
	Valid     bool `json:"valid"`
}

// Rules evaluates playability against a catalog and lock mode.
type Rules struct {
	Catalog  *Catalog
	LockMode LockMode
}

// NewRules returns rules over catalog. A nil catalog uses DefaultCatalog.
func NewRules(catalog *Catalog, mode LockMode) *Rules {
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	if mode == "" {
		mode = LockImmediate
	}
	return &Rules{Catalog: catalog, LockMode: mode}
}

// columnStatus returns "" when column is playable for player, or the reason
// it is not.
func (r *Rules) columnStatus(s *State, player string, column int) ColumnStatus {
	col, ok := r.Catalog.Lookup(column)
	if !ok {
		return ColumnInvalid
	}
	if _, locked := s.LockedBy(column); locked {
		return ColumnAlreadyWon
	}
	l := s.Ledger[player]
	if s.progressOf(player, column).Progress+l[column] >= col.MaxHeight {
		return ColumnFull
	}
	if !l.Admits(column) {
		return ColumnSkipped
	}
	return ""
}

// IsPlayable reports whether player may place progress on column.
func (r *Rules) IsPlayable(s *State, player string, column int) bool {
	return r.columnStatus(s, player, column) == ""
}

// Evaluate annotates each pairing. A pairing is valid when at least one of
// its sums is playable.
func (r *Rules) Evaluate(s *State, player string, pairings [3]Pairing) [3]AnnotatedPairing {
	var out [3]AnnotatedPairing
	for i, p := range pairings {
		a := r.IsPlayable(s, player, p.A)
		b := r.IsPlayable(s, player, p.B)
		out[i] = AnnotatedPairing{Pairing: p, PlayableA: a, PlayableB: b, Valid: a || b}
	}
	return out
}

// Busted reports whether no annotated pairing is valid.
func Busted(annotated [3]AnnotatedPairing) bool {
	for _, p := range annotated {
		if p.Valid {
			return false
		}
	}
	return true
}
