package orchestration

import (
	"sync"
	"sync/atomic"
)

// InterruptCoordinator is the shared handle that names the current
// conversation turn. Every unit of downstream work (transcription result,
// phrase, audio segment) is tagged with the generation that was current when
// the work was created; consumers drop anything whose tag is no longer
// current.
//
// The coordinator is passed to every component at construction. It is the
// only mutable state shared across goroutines besides the channels that
// connect them.
type InterruptCoordinator struct {
	generation atomic.Uint64
	paused     atomic.Bool

	mu        sync.Mutex
	cancelled chan struct{}
}

func NewInterruptCoordinator() *InterruptCoordinator {
	c := &InterruptCoordinator{}
	c.cancelled = make(chan struct{})
	return c
}

// Current returns the generation that is currently allowed to produce output.
func (c *InterruptCoordinator) Current() uint64 {
	return c.generation.Load()
}

// IsCurrent is the staleness check performed before issuing a downstream call
// and again before acting on its result.
func (c *InterruptCoordinator) IsCurrent(generation uint64) bool {
	return c.generation.Load() == generation
}

// Bump invalidates all work tagged with the previous generation and returns
// the new one. The cancellation channel armed for the old generation is
// closed so in-flight waits release promptly, and a fresh channel is armed
// for the new generation.
func (c *InterruptCoordinator) Bump() uint64 {
	c.mu.Lock()
	generation := c.generation.Add(1)
	close(c.cancelled)
	c.cancelled = make(chan struct{})
	c.mu.Unlock()
	return generation
}

// Snapshot returns the current generation together with the cancellation
// channel armed for it. The channel closes when that generation is bumped
// away, so selects racing a collaborator call against interruption observe
// it without polling.
func (c *InterruptCoordinator) Snapshot() (uint64, <-chan struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation.Load(), c.cancelled
}

// Cancelled returns the cancellation channel for the given generation. For a
// generation that is already stale a closed channel is returned.
func (c *InterruptCoordinator) Cancelled(generation uint64) <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.generation.Load() != generation {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return c.cancelled
}

// SetPaused toggles the pause flag. Pausing never resets the generation.
func (c *InterruptCoordinator) SetPaused(paused bool) { c.paused.Store(paused) }

func (c *InterruptCoordinator) IsPaused() bool { return c.paused.Load() }
