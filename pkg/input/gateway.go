package input

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const eventBuffer = 16

// Gateway tracks the time of the most recent user input. A poller converts
// idle measurements into timestamps and publishes them on a channel; readers
// only ever see the latest value and never wait for a measurement.
type Gateway struct {
	source IdleSource
	poll   time.Duration
	now    func() time.Time
	log    *slog.Logger

	events chan time.Time

	mu       sync.RWMutex
	latest   time.Time
	floor    time.Time
	failures int
}

// NewGateway creates a gateway polling source every poll interval. Until the
// first measurement arrives, the creation time counts as the last input.
func NewGateway(source IdleSource, poll time.Duration, log *slog.Logger) *Gateway {
	return newGateway(source, poll, time.Now, log)
}

func newGateway(source IdleSource, poll time.Duration, now func() time.Time, log *slog.Logger) *Gateway {
	return &Gateway{
		source: source,
		poll:   poll,
		now:    now,
		log:    log.With("component", "input"),
		events: make(chan time.Time, eventBuffer),
		floor:  now(),
	}
}

// LastInput returns the latest known input time, never earlier than the
// last Reset.
func (g *Gateway) LastInput() time.Time {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.latest.After(g.floor) {
		return g.latest
	}
	return g.floor
}

// Reset moves the baseline to t, so idle time measured before t is ignored.
func (g *Gateway) Reset(t time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.floor = t
}

// Publish records input observed at t. It never blocks; when the buffer is
// full the event is dropped and the next poll supersedes it.
func (g *Gateway) Publish(t time.Time) {
	select {
	case g.events <- t:
	default:
	}
}

// Run polls the source and applies published events until ctx is done.
func (g *Gateway) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		g.pollLoop(ctx)
	}()
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return nil
		case t := <-g.events:
			g.store(t)
		}
	}
}

func (g *Gateway) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(g.poll)
	defer ticker.Stop()

	g.sample(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.sample(ctx)
		}
	}
}

func (g *Gateway) sample(ctx context.Context) {
	pollCtx, cancel := context.WithTimeout(ctx, g.poll)
	defer cancel()

	idle, err := g.source.IdleTime(pollCtx)
	if err != nil {
		g.mu.Lock()
		g.failures++
		n := g.failures
		g.mu.Unlock()
		if n == 1 {
			g.log.Warn("idle source failed", "source", g.source.Name(), "error", err)
		} else {
			g.log.Debug("idle source still failing", "source", g.source.Name(), "failures", n, "error", err)
		}
		return
	}

	g.mu.Lock()
	if g.failures > 0 {
		g.log.Info("idle source recovered", "source", g.source.Name(), "failures", g.failures)
		g.failures = 0
	}
	g.mu.Unlock()

	g.Publish(g.now().Add(-idle))
}

func (g *Gateway) store(t time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if t.After(g.latest) {
		g.latest = t
	}
}
