package orchestration

import (
	"context"
	"sync"

	"github.com/voxloop/voxloop-core/core/audio"
)

// quietAfterCallbacks is how many consecutive empty device callbacks mark the
// end of audible playback. One empty period can be a scheduling hiccup; three
// means the queue is genuinely drained.
const quietAfterCallbacks = 3

// PlaybackRouter owns the ordered, generation-scoped segment queue behind the
// output device's pull callback. Segments render in strictly increasing
// sequence order; completions that arrive early are held back until their
// predecessor is in. A stale generation is cleared within one device period.
type PlaybackRouter struct {
	mu sync.Mutex

	coordinator *InterruptCoordinator
	encoding    audio.EncodingInfo

	generation uint64
	nextSeq    int
	pending    map[int][]byte
	ready      [][]byte
	offset     int

	active         bool
	emptyCallbacks int

	// onQuiet fires when playback drains, onActive when it starts. Both run
	// on the device callback and must not block.
	onQuiet  func()
	onActive func()

	updateSignal chan struct{}
}

func newPlaybackRouter(coordinator *InterruptCoordinator, encoding audio.EncodingInfo, onActive, onQuiet func()) *PlaybackRouter {
	return &PlaybackRouter{
		coordinator:  coordinator,
		encoding:     encoding,
		pending:      map[int][]byte{},
		onActive:     onActive,
		onQuiet:      onQuiet,
		updateSignal: make(chan struct{}, 1),
	}
}

// Submit hands a synthesized segment to the router. Stale segments are
// dropped; an empty segment advances the sequence silently so a failed
// phrase cannot stall its successors.
func (r *PlaybackRouter) Submit(segment AudioSegment) {
	if !r.coordinator.IsCurrent(segment.Generation) {
		return
	}

	r.mu.Lock()
	if segment.Generation != r.generation {
		r.resetLocked(segment.Generation)
	}

	r.pending[segment.Seq] = segment.PCM
	for {
		pcm, ok := r.pending[r.nextSeq]
		if !ok {
			break
		}
		delete(r.pending, r.nextSeq)
		r.nextSeq++
		if len(pcm) > 0 {
			r.ready = append(r.ready, pcm)
		}
	}
	r.mu.Unlock()

	r.signalUpdate()
}

// Fill is the device pull callback. It must never block; anything it cannot
// serve from the queue is silence.
func (r *PlaybackRouter) Fill(out []byte) {
	silence := r.encoding.SilenceValue()
	for i := range out {
		out[i] = silence
	}

	r.mu.Lock()

	if r.coordinator.IsPaused() {
		// Silence without consuming; the queue resumes where it left off.
		r.mu.Unlock()
		return
	}

	if r.generation != r.coordinator.Current() {
		r.clearLocked()
	}

	written := 0
	consumedSegments := false
	for written < len(out) && len(r.ready) > 0 {
		n := copy(out[written:], r.ready[0][r.offset:])
		written += n
		r.offset += n
		if r.offset == len(r.ready[0]) {
			r.ready = r.ready[1:]
			r.offset = 0
			consumedSegments = true
		}
	}

	var notify func()
	if written > 0 {
		r.emptyCallbacks = 0
		if !r.active {
			r.active = true
			notify = r.onActive
		}
	} else if r.active {
		r.emptyCallbacks++
		if r.emptyCallbacks >= quietAfterCallbacks {
			r.active = false
			r.emptyCallbacks = 0
			notify = r.onQuiet
		}
	}
	r.mu.Unlock()

	if consumedSegments {
		r.signalUpdate()
	}
	if notify != nil {
		notify()
	}
}

// Stop discards everything queued. Called on interrupt and explicit stop;
// combined with the generation bump it guarantees no stale audio renders.
func (r *PlaybackRouter) Stop() {
	r.mu.Lock()
	r.clearLocked()
	r.mu.Unlock()
	r.signalUpdate()
}

// Active reports whether the device is currently rendering reply audio.
func (r *PlaybackRouter) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// Buffered counts segments accepted but not yet fully rendered.
func (r *PlaybackRouter) Buffered() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ready) + len(r.pending)
}

// WaitBelow blocks until fewer than max segments are buffered, bounding
// synthesis prefetch. It returns false when ctx ends or the generation goes
// stale, whichever comes first.
func (r *PlaybackRouter) WaitBelow(ctx context.Context, generation uint64, max int) bool {
	cancelled := r.coordinator.Cancelled(generation)
	for {
		if !r.coordinator.IsCurrent(generation) {
			return false
		}
		if r.Buffered() < max {
			return true
		}

		select {
		case <-ctx.Done():
			return false
		case <-cancelled:
			return false
		case <-r.updateSignal:
		}
	}
}

// NextSeq returns the first unassigned sequence number for the generation,
// keeping sequences contiguous when a late extra segment is appended.
func (r *PlaybackRouter) NextSeq(generation uint64) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	if generation != r.generation {
		return 0
	}
	next := r.nextSeq
	for seq := range r.pending {
		if seq >= next {
			next = seq + 1
		}
	}
	return next
}

func (r *PlaybackRouter) resetLocked(generation uint64) {
	r.generation = generation
	r.nextSeq = 0
	r.pending = map[int][]byte{}
	r.ready = nil
	r.offset = 0
}

func (r *PlaybackRouter) clearLocked() {
	r.pending = map[int][]byte{}
	r.ready = nil
	r.offset = 0
}

func (r *PlaybackRouter) signalUpdate() {
	select {
	case r.updateSignal <- struct{}{}:
	default:
	}
}
