package engine

import (
	"sort"
	"testing"
)

func TestPairingsAreFixedPartitions(t *testing.T) {
	for a := 1; a <= DieSides; a++ {
		for b := 1; b <= DieSides; b++ {
			for c := 1; c <= DieSides; c++ {
				for d := 1; d <= DieSides; d++ {
					dice := Dice{a, b, c, d}
					got := Pairings(dice)
					want := [3][2]int{{a + b, c + d}, {a + c, b + d}, {a + d, b + c}}
					for i, p := range got {
						if p.Option != i+1 || p.A != want[i][0] || p.B != want[i][1] {
							t.Fatalf("Pairings(%v)[%d] = %+v, want %v", dice, i, p, want[i])
						}
						if p.A+p.B != a+b+c+d {
							t.Fatalf("Pairings(%v)[%d] sums do not cover all dice", dice, i)
						}
					}
					if again := Pairings(dice); again != got {
						t.Fatalf("Pairings(%v) not deterministic", dice)
					}
				}
			}
		}
	}
}

func TestPairingsPermutationInvariant(t *testing.T) {
	norm := func(ps [3]Pairing) []string {
		out := make([]string, 0, 3)
		for _, p := range ps {
			lo, hi := p.A, p.B
			if lo > hi {
				lo, hi = hi, lo
			}
			out = append(out, string(rune('a'+lo))+string(rune('a'+hi)))
		}
		sort.Strings(out)
		return out
	}
	base := norm(Pairings(Dice{1, 3, 4, 6}))
	for _, d := range []Dice{{6, 4, 3, 1}, {3, 1, 6, 4}, {4, 6, 1, 3}} {
		got := norm(Pairings(d))
		for i := range got {
			if got[i] != base[i] {
				t.Fatalf("Pairings(%v) = %v, want same set as %v", d, got, base)
			}
		}
	}
}

func TestPairingsAllEqualDice(t *testing.T) {
	for _, p := range Pairings(Dice{2, 2, 2, 2}) {
		if p.A != 4 || p.B != 4 {
			t.Fatalf("pairing %+v, want (4,4)", p)
		}
	}
}

func TestIsPlayable(t *testing.T) {
	rules := NewRules(nil, LockImmediate)
	s := NewState(Game{ID: "g", PlayerA: "a", PlayerB: "b", TurnOwner: "a", Status: StatusInProgress})

	if rules.IsPlayable(s, "a", 1) || rules.IsPlayable(s, "a", 13) {
		t.Fatalf("uncataloged columns must not be playable")
	}
	if !rules.IsPlayable(s, "a", 7) {
		t.Fatalf("column 7 should be playable on an empty board")
	}

	s.Progress["b"] = map[int]*Progress{2: {Progress: 3, Locked: true}}
	if rules.IsPlayable(s, "a", 2) || rules.IsPlayable(s, "b", 2) {
		t.Fatalf("locked column must be unplayable for every player")
	}

	s.Ledger["a"] = Ledger{4: 1, 6: 1, 8: 2}
	if rules.IsPlayable(s, "a", 5) {
		t.Fatalf("fourth distinct column must be unplayable")
	}
	if !rules.IsPlayable(s, "a", 6) {
		t.Fatalf("column already in ledger should stay playable")
	}
	if !rules.IsPlayable(s, "b", 5) {
		t.Fatalf("cap applies to the acting player's ledger only")
	}

	// Permanent progress outside this turn's ledger does not count against the cap.
	s.Progress["b"][9] = &Progress{Progress: 1}
	s.Progress["b"][10] = &Progress{Progress: 1}
	s.Progress["b"][11] = &Progress{Progress: 1}
	if !rules.IsPlayable(s, "b", 5) {
		t.Fatalf("permanent progress must not count toward the active column cap")
	}
}

func TestIsPlayableColumnFullInCommitMode(t *testing.T) {
	rules := NewRules(nil, LockOnCommit)
	s := NewState(Game{ID: "g", PlayerA: "a", PlayerB: "b", TurnOwner: "a", Status: StatusInProgress})
	s.Progress["a"] = map[int]*Progress{2: {Progress: 2}}
	s.Ledger["a"] = Ledger{2: 1}
	if got := rules.columnStatus(s, "a", 2); got != ColumnFull {
		t.Fatalf("columnStatus = %q, want %q", got, ColumnFull)
	}
	if !rules.IsPlayable(s, "b", 2) {
		t.Fatalf("opponent may still climb an unlocked column")
	}
}

func TestEvaluateFourthColumnPairingInvalid(t *testing.T) {
	rules := NewRules(nil, LockImmediate)
	s := NewState(Game{ID: "g", PlayerA: "a", PlayerB: "b", TurnOwner: "a", Status: StatusInProgress})
	s.Ledger["a"] = Ledger{4: 1, 6: 1, 8: 1}

	// (5,9), (6,8), (7,7)
	got := rules.Evaluate(s, "a", Pairings(Dice{2, 3, 4, 5}))
	if got[0].Valid || got[0].PlayableA || got[0].PlayableB {
		t.Fatalf("pairing (5,9) should be invalid, got %+v", got[0])
	}
	if !got[1].Valid || !got[1].PlayableA || !got[1].PlayableB {
		t.Fatalf("pairing (6,8) should be valid, got %+v", got[1])
	}
	if got[2].Valid {
		t.Fatalf("pairing (7,7) should be invalid, got %+v", got[2])
	}
	if Busted(got) {
		t.Fatalf("roll with a valid pairing must not bust")
	}

	// (2,2) three times: nothing fits.
	if !Busted(rules.Evaluate(s, "a", Pairings(Dice{1, 1, 1, 1}))) {
		t.Fatalf("expected bust when every pairing is invalid")
	}
}

func TestParseLockMode(t *testing.T) {
	tests := []struct {
		raw     string
		want    LockMode
		wantErr bool
	}{
		{"", LockImmediate, false},
		{"immediate", LockImmediate, false},
		{"commit", LockOnCommit, false},
		{"later", "", true},
	}
	for _, tc := range tests {
		got, err := ParseLockMode(tc.raw)
		if (err != nil) != tc.wantErr || got != tc.want {
			t.Fatalf("ParseLockMode(%q) = %q, %v", tc.raw, got, err)
		}
	}
}
