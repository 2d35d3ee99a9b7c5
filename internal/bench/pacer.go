package bench

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Pacer spaces request starts at a fixed rate using a leaky bucket.
//
// The bucket keeps a virtual drip time that advances at the target rate.
// Next returns when the next request should start; if the caller is behind
// schedule the time is already past and the request starts at once.
//
// A nil *Pacer does not pace: Next returns the current time and Wait
// returns immediately.
type Pacer struct {
	rate        float64
	lastDrip    time.Time
	accumulated float64
	maxBurst    float64
	mu          sync.Mutex

	totalStarts   atomic.Int64
	totalWaitTime atomic.Int64
}

// NewPacer returns a pacer for rate starts per second, or nil when rate is
// not positive.
func NewPacer(rate float64) *Pacer {
	if rate <= 0 {
		return nil
	}
	return &Pacer{
		rate:     rate,
		lastDrip: time.Now(),
		maxBurst: 1.0,
	}
}

// Next returns when the next request should start.
func (p *Pacer) Next() time.Time {
	now := time.Now()
	if p == nil {
		return now
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	elapsed := now.Sub(p.lastDrip).Seconds()
	if elapsed < 0 {
		elapsed = 0
	}

	p.accumulated += elapsed * p.rate
	if p.accumulated > p.maxBurst {
		p.accumulated = p.maxBurst
	}

	if p.accumulated >= 1.0 {
		p.accumulated -= 1.0
		p.lastDrip = now
		p.totalStarts.Add(1)
		return now
	}

	deficit := 1.0 - p.accumulated
	next := now.Add(time.Duration(deficit / p.rate * float64(time.Second)))
	p.accumulated = 0

	// the drip moves to the scheduled start so waking up at next does not
	// count the same interval twice
	p.lastDrip = next

	p.totalStarts.Add(1)
	p.totalWaitTime.Add(int64(next.Sub(now)))
	return next
}

// Wait blocks until the next request should start or ctx is done.
func (p *Pacer) Wait(ctx context.Context) error {
	wait := time.Until(p.Next())
	if wait <= 0 {
		return ctx.Err()
	}

	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Rate returns the target rate in starts per second, 0 for a nil pacer.
func (p *Pacer) Rate() float64 {
	if p == nil {
		return 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rate
}

// Stats returns statistics about the pacer's operation.
func (p *Pacer) Stats() PacerStats {
	if p == nil {
		return PacerStats{}
	}
	return PacerStats{
		Rate:          p.Rate(),
		TotalStarts:   p.totalStarts.Load(),
		TotalWaitTime: time.Duration(p.totalWaitTime.Load()),
	}
}

// PacerStats contains statistics about a pacer.
type PacerStats struct {
	Rate          float64       `json:"rate"`
	TotalStarts   int64         `json:"totalStarts"`
	TotalWaitTime time.Duration `json:"totalWaitTime"`
}
