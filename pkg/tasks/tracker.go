package tasks

import "sync/atomic"

// Tracker hands out generation tokens. Only the token minted by the most
// recent Begin is live; Begin and Stop both retire whatever came before.
type Tracker struct {
	gen atomic.Uint64
}

func NewTracker() *Tracker {
	return &Tracker{}
}

// Token identifies one task group's claim on visible state.
type Token struct {
	tracker *Tracker
	gen     uint64
}

// Begin starts a new generation and returns its token.
func (t *Tracker) Begin() Token {
	return Token{tracker: t, gen: t.gen.Add(1)}
}

// Stop retires the current generation without starting a new task.
func (t *Tracker) Stop() {
	t.gen.Add(1)
}

// Live reports whether no newer Begin or Stop happened since the token was minted.
func (tok Token) Live() bool {
	if tok.tracker == nil {
		return false
	}
	return tok.tracker.gen.Load() == tok.gen
}

// Generation is exposed for logging.
func (tok Token) Generation() uint64 {
	return tok.gen
}
