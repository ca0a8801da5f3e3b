package engine

import (
	crand "crypto/rand"
	"fmt"
	"math/big"
	mathrand "math/rand"
	"sync"
)

// DieSides is the number of faces on every die.
const DieSides = 6

// Dice is one roll of four dice.
type Dice [4]int

// Source is the randomness provider for dice rolls.
//
// Implementations must be safe for concurrent use.
type Source interface {
	// Intn returns a value in [0, n).
	Intn(n int) int
}

// Roller produces four independent uniform dice.
type Roller struct {
	src Source
}

// NewRoller returns a roller drawing from src. A nil src uses crypto/rand.
func NewRoller(src Source) *Roller {
	if src == nil {
		src = CryptoSource{}
	}
	return &Roller{src: src}
}

// Roll draws four values in [1, DieSides].
func (r *Roller) Roll() Dice {
	var d Dice
	for i := range d {
		d[i] = r.src.Intn(DieSides) + 1
	}
	return d
}

// CryptoSource draws from crypto/rand. Entropy exhaustion is fatal.
type CryptoSource struct{}

func (CryptoSource) Intn(n int) int {
	v, err := crand.Int(crand.Reader, big.NewInt(int64(n)))
	if err != nil {
		panic(fmt.Sprintf("dice: read entropy: %v", err))
	}
	return int(v.Int64())
}

// SeededSource is a deterministic source. The server uses it when
// CLIMB_DICE_SEED is set, so a session's rolls can be replayed.
type SeededSource struct {
	mu  sync.Mutex
	rng *mathrand.Rand
}

func NewSeededSource(seed int64) *SeededSource {
	return &SeededSource{rng: mathrand.New(mathrand.NewSource(seed))}
}

func (s *SeededSource) Intn(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Intn(n)
}
