// Package pacing spaces submissions out with randomized, human-scale delays.
package pacing

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"
)

const (
	DefaultMin = 100 * time.Second
	DefaultMax = 150 * time.Second

	step = time.Second
)

// Reporter receives the remaining wait once per second.
type Reporter interface {
	Remaining(d time.Duration)
	Done()
}

// Pacer blocks between submissions for a duration drawn from [Min, Max].
type Pacer struct {
	Min      time.Duration
	Max      time.Duration
	Reporter Reporter

	// intN and sleep are swapped out in tests.
	intN  func(n int64) int64
	sleep func(ctx context.Context, d time.Duration) error
}

// New returns a Pacer for whole-second delays between lo and hi inclusive.
func New(lo, hi time.Duration, r Reporter) (*Pacer, error) {
	if lo < 0 || hi < lo {
		return nil, fmt.Errorf("invalid pacing window [%s, %s]", lo, hi)
	}
	return &Pacer{Min: lo, Max: hi, Reporter: r}, nil
}

// Draw picks a delay uniformly at random from the window, in whole seconds.
func (p *Pacer) Draw() time.Duration {
	lo := int64(p.Min / step)
	hi := int64(p.Max / step)
	if hi <= lo {
		return time.Duration(lo) * step
	}
	intN := p.intN
	if intN == nil {
		intN = rand.Int64N
	}
	return time.Duration(lo+intN(hi-lo+1)) * step
}

// Wait draws a delay and blocks for it, counting down one second at a time.
// It returns the drawn delay, or the context error if ctx ends first.
func (p *Pacer) Wait(ctx context.Context) (time.Duration, error) {
	d := p.Draw()
	sleep := p.sleep
	if sleep == nil {
		sleep = sleepContext
	}
	if p.Reporter != nil {
		defer p.Reporter.Done()
	}

	for remaining := d; remaining > 0; remaining -= step {
		if p.Reporter != nil {
			p.Reporter.Remaining(remaining)
		}
		if err := sleep(ctx, min(step, remaining)); err != nil {
			return d, err
		}
	}
	return d, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
