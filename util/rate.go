package util

import (
	"errors"
	"io"
	"sync"
	"time"

	"github.com/facebookgo/clock"
)

// A RateLimiter keeps the number of bytes read through it under a rate.
// Every interval a fixed amount of credit is added to a pool. Reads use up
// credits, and once the pool is empty readers wait until it is refilled.
type RateLimiter struct {
	stop     chan struct{} // closed to stop the refill goroutine
	m        sync.Mutex    // protects below
	refilled *sync.Cond    // broadcast when credits are added or on Stop
	credits  int64
	stopped  bool
}

// RateInterval is how often credits are added to a RateLimiter.
const RateInterval = 1 * time.Second

// ErrStopped means a read failed because its rate limiter was stopped.
var ErrStopped = errors.New("rate limiter stopped")

// NewRateLimiter returns a limiter allowing bytesPerSecond on average. The
// clock is used for the refill ticker; pass nil to use the wall clock.
func NewRateLimiter(bytesPerSecond int64, clk clock.Clock) *RateLimiter {
	if clk == nil {
		clk = clock.New()
	}
	amount := int64(float64(bytesPerSecond) * RateInterval.Seconds())
	r := &RateLimiter{
		stop:    make(chan struct{}),
		credits: amount,
	}
	r.refilled = sync.NewCond(&r.m)
	go r.refill(amount, clk.Ticker(RateInterval))
	return r
}

// Use takes count credits. It is okay if this makes the balance negative.
func (r *RateLimiter) Use(count int64) {
	r.m.Lock()
	r.credits -= count
	r.m.Unlock()
}

// wait blocks until there is credit in the pool or r is stopped.
func (r *RateLimiter) wait() error {
	r.m.Lock()
	defer r.m.Unlock()
	for r.credits <= 0 && !r.stopped {
		r.refilled.Wait()
	}
	if r.stopped {
		return ErrStopped
	}
	return nil
}

// Stop the refill goroutine. Any reader waiting for credit gets ErrStopped.
// Will panic if called twice.
func (r *RateLimiter) Stop() {
	close(r.stop)
	r.m.Lock()
	r.stopped = true
	r.m.Unlock()
	r.refilled.Broadcast()
}

func (r *RateLimiter) refill(amount int64, tick *clock.Ticker) {
	defer tick.Stop()
	for {
		select {
		case <-tick.C:
			r.m.Lock()
			r.credits += amount
			// unused credit does not accumulate past one interval
			if r.credits > amount {
				r.credits = amount
			}
			r.m.Unlock()
			r.refilled.Broadcast()
		case <-r.stop:
			return
		}
	}
}

// Wrap returns a reader whose reads are limited by r. It is okay for more
// than one goroutine to use the same RateLimiter. A nil limiter returns
// reader unchanged.
func (r *RateLimiter) Wrap(reader io.Reader) io.Reader {
	if r == nil {
		return reader
	}
	return rateReader{reader: reader, rate: r}
}

type rateReader struct {
	reader io.Reader
	rate   *RateLimiter
}

func (r rateReader) Read(p []byte) (int, error) {
	if err := r.rate.wait(); err != nil {
		return 0, err
	}
	n, err := r.reader.Read(p)
	r.rate.Use(int64(n))
	return n, err
}
