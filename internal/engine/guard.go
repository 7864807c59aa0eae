package engine

import "sync/atomic"

// reentrancyGuard tracks the call depth of mutating operations. A second
// entry while one is in flight is rejected.
type reentrancyGuard struct {
	depth atomic.Int32
}

// enter increments the depth and returns the release func that must run on
// every exit path.
func (g *reentrancyGuard) enter() (release func(), err error) {
	if g.depth.Add(1) > 1 {
		g.depth.Add(-1)
		return nil, ErrReentrancyDetected
	}

	return func() { g.depth.Add(-1) }, nil
}
