package engine

import "testing"

func TestCryptoRollerCoversEveryFace(t *testing.T) {
	r := NewRoller(nil)
	seen := map[int]int{}
	for i := 0; i < 1500; i++ {
		for _, v := range r.Roll() {
			if v < 1 || v > DieSides {
				t.Fatalf("die = %d, want 1..%d", v, DieSides)
			}
			seen[v]++
		}
	}
	for face := 1; face <= DieSides; face++ {
		if seen[face] == 0 {
			t.Fatalf("face %d never rolled in 6000 dice: %v", face, seen)
		}
	}
}

func TestSeededRollersRepeat(t *testing.T) {
	a := NewRoller(NewSeededSource(42))
	b := NewRoller(NewSeededSource(42))
	for i := 0; i < 50; i++ {
		if da, db := a.Roll(), b.Roll(); da != db {
			t.Fatalf("roll %d: %v != %v", i, da, db)
		}
	}
}
