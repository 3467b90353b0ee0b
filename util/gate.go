package util

import (
	"sync"
)

// A Gate limits concurrency. Every gate has a maximum number of goroutines
// to allow through at a time. Goroutines enter the gate by calling Enter(),
// and signal that they are done by calling Leave(). Once a gate is stopped
// no one else may enter.
type Gate struct {
	c    chan struct{}
	stop chan struct{}
	once sync.Once
}

// NewGate returns a Gate which accepts at most n entries at a time.
func NewGate(n int) *Gate {
	return &Gate{
		c:    make(chan struct{}, n),
		stop: make(chan struct{}),
	}
}

// Enter is called at the beginning of the section to be protected by the
// gate, and will block the calling goroutine until there are less than n
// goroutines inside. It returns false if the gate was stopped, in which
// case the caller has not entered and must not call Leave.
// It is safe to call this from multiple goroutines.
func (g *Gate) Enter() bool {
	select {
	case <-g.stop:
		return false
	default:
	}
	select {
	case g.c <- struct{}{}:
		return true
	case <-g.stop:
		return false
	}
}

// Leave marks a goroutine outside the critical section. It is important to
// balance each call to Enter with a call to Leave. Enter and Leave do not need
// to be called from the same goroutine, necessarily.
func (g *Gate) Leave() {
	<-g.c
}

// Inside returns the number of goroutines inside the gate.
func (g *Gate) Inside() int {
	return len(g.c)
}

// Stop closes the gate. Goroutines waiting to enter are released with a
// false return. Stop then waits for everyone inside to leave.
func (g *Gate) Stop() {
	g.once.Do(func() { close(g.stop) })
	for i := 0; i < cap(g.c); i++ {
		g.c <- struct{}{}
	}
}
