package game

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Clock drives the autonomous hourly tick. It owns a single background
// loop per trading round: Start cancels any previous loop before spawning
// a fresh one, so a reset round can never be mutated by a stale timer.
type Clock struct {
	state     *GameState
	tickEvery time.Duration
	log       *slog.Logger
	onTick    func(TickResult)

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewClock wires a clock to a state. onTick is invoked after every
// successful advance (outside the state lock) and may be nil.
func NewClock(state *GameState, tickEvery time.Duration, logger *slog.Logger, onTick func(TickResult)) *Clock {
	if logger == nil {
		logger = slog.Default()
	}
	return &Clock{state: state, tickEvery: tickEvery, log: logger, onTick: onTick}
}

// Start launches the tick loop under the given parent context, replacing
// any loop from a previous round.
func (c *Clock) Start(ctx context.Context) {
	c.Stop()

	c.mu.Lock()
	ctx, c.cancel = context.WithCancel(ctx)
	done := make(chan struct{})
	c.done = done
	c.mu.Unlock()

	go c.run(ctx, done)
	c.log.Info("market clock started", "tick_every", c.tickEvery.String())
}

// Stop cancels the running loop, if any, and waits for it to exit.
func (c *Clock) Stop() {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

func (c *Clock) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(c.tickEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.log.Info("market clock stopped")
			return
		case <-ticker.C:
			res := c.state.AdvanceHour()
			if !res.Advanced {
				continue
			}
			c.log.Info("hour advanced", "hour", res.Hour, "price", res.Price)
			if c.onTick != nil {
				c.onTick(res)
			}
			if res.Settled {
				c.log.Info("round settled, clock idling until reset")
				return
			}
		}
	}
}
