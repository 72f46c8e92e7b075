package controllers

import (
	"math/rand/v2"
	"sync"
	"time"
)

// Clock is the scheduler's source of "now".
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock in UTC.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// Oracle draws the winning digit for a round that has no operator preset.
type Oracle interface {
	Draw() int
}

// OracleFunc adapts a function to Oracle.
type OracleFunc func() int

func (f OracleFunc) Draw() int { return f() }

// RandomOracle draws uniformly from 0..9.
type RandomOracle struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandomOracle uses the runtime's auto-seeded generator.
func NewRandomOracle() *RandomOracle {
	return &RandomOracle{}
}

// NewSeededOracle returns a reproducible oracle.
func NewSeededOracle(seed uint64) *RandomOracle {
	return &RandomOracle{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

func (o *RandomOracle) Draw() int {
	if o.rng == nil {
		return rand.IntN(10)
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.rng.IntN(10)
}
