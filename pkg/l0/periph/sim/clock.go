package sim

import (
	"context"
	"time"
)

// Ticker is advanced by a Clock.
type Ticker interface {
	Tick() (byte, bool)
}

// Clock advances peripherals one character time per Interval.
type Clock struct {
	Interval time.Duration

	tickers []Ticker
}

// DefaultInterval is one character time at 9600 baud 8N1.
const DefaultInterval = time.Second * 10 / 9600

// NewClock creates a Clock driving the tickers.
func NewClock(tickers ...Ticker) *Clock {
	return &Clock{Interval: DefaultInterval, tickers: tickers}
}

// Add adds tickers.
func (c *Clock) Add(tickers ...Ticker) *Clock {
	c.tickers = append(c.tickers, tickers...)
	return c
}

// Step advances n character times and returns how many bytes finished.
func (c *Clock) Step(n int) int {
	done := 0
	for i := 0; i < n; i++ {
		for _, t := range c.tickers {
			if _, ok := t.Tick(); ok {
				done++
			}
		}
	}
	return done
}

// Run implements Runnable.
func (c *Clock) Run(ctx context.Context) error {
	interval := c.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			c.Step(1)
		}
	}
}

// Name implements Named.
func (c *Clock) Name() string { return "sim-clock" }
