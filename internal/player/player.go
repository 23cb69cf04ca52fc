// Package player implements rated player identities and the Elo rating
// update shared by two concurrently-finishing games.
package player

import (
	"math"
	"sync"
	"sync/atomic"
)

// InitialRating is the rating assigned to a newly created Player.
const InitialRating = 1500

// kFactor and divisor are fixed per the Elo formula this server uses.
const (
	kFactor = 32
	divisor = 400
)

// Outcome describes the result of a finished game from the perspective of
// the pair (p1, p2) passed to PostResult.
type Outcome int

const (
	Draw Outcome = iota
	P1Wins
	P2Wins
)

var seqCounter atomic.Uint64

// Player is a named, rated identity. Name is immutable after creation;
// rating is mutated only through PostResult, under the Player's own
// lock.
type Player struct {
	name string
	seq  uint64 // creation order, used to pick a stable lock order for pairs

	mu     sync.Mutex
	rating int

	refs atomic.Int64
}

// New creates a Player with the initial rating and one reference held on
// behalf of the caller.
func New(name string) *Player {
	p := &Player{
		name:   name,
		seq:    seqCounter.Add(1),
		rating: InitialRating,
	}
	p.refs.Store(1)
	return p
}

// Name returns the player's immutable name.
func (p *Player) Name() string {
	return p.name
}

// Rating returns the current rating.
func (p *Player) Rating() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rating
}

// Retain acquires one additional reference.
func (p *Player) Retain() {
	p.refs.Add(1)
}

// Release drops one reference, returning the remaining count. Callers
// that drop a Player's count to zero must remove it from every
// container that could still look it up; in this server the Player
// Registry never releases its own held reference until finalize, so a
// live Player's count never reaches zero while the process runs.
func (p *Player) Release() int64 {
	return p.refs.Add(-1)
}

// PostResult applies the Elo update to both players atomically with
// respect to any concurrent reader of either rating. The two players'
// locks are acquired in creation-sequence order regardless of argument
// order, so two goroutines posting results for the same pair (in
// whichever order they name p1/p2) never deadlock against each other.
func PostResult(p1, p2 *Player, outcome Outcome) {
	if p1 == p2 {
		return
	}
	first, second := p1, p2
	if second.seq < first.seq {
		first, second = second, first
	}
	first.mu.Lock()
	defer first.mu.Unlock()
	second.mu.Lock()
	defer second.mu.Unlock()

	r1 := float64(p1.rating)
	r2 := float64(p2.rating)

	var s1, s2 float64
	switch outcome {
	case Draw:
		s1, s2 = 0.5, 0.5
	case P1Wins:
		s1, s2 = 1, 0
	case P2Wins:
		s1, s2 = 0, 1
	}

	e1 := 1 / (1 + math.Pow(10, (r2-r1)/divisor))
	e2 := 1 / (1 + math.Pow(10, (r1-r2)/divisor))

	newR1 := math.Round(r1 + kFactor*(s1-e1))
	newR2 := math.Round(r2 + kFactor*(s2-e2))

	p1.rating = int(newR1)
	p2.rating = int(newR2)
}
