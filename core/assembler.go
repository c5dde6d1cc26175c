package orchestration

import (
	"sync"
	"time"
)

// utteranceAssembler buffers frames for the speech span currently underway.
// At most one utterance is ever under assembly; Begin while a span is active
// is ignored so overlapping spans cannot occur.
type utteranceAssembler struct {
	mu sync.Mutex

	minDuration time.Duration

	active     bool
	pcm        []byte
	sampleRate int
	start      time.Time
	nextID     uint64
}

func newUtteranceAssembler(minDuration time.Duration) *utteranceAssembler {
	return &utteranceAssembler{minDuration: minDuration}
}

func (a *utteranceAssembler) Begin(frame AudioFrame) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.active {
		return
	}

	a.active = true
	a.pcm = append([]byte(nil), frame.PCM...)
	a.sampleRate = frame.SampleRate
	a.start = frame.Timestamp
}

func (a *utteranceAssembler) Append(frame AudioFrame) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.active {
		return
	}

	a.pcm = append(a.pcm, frame.PCM...)
}

// Finalize closes the active span. The second return is false when no span
// was active or the span was shorter than the click/pop guard, in which case
// nothing is published.
func (a *utteranceAssembler) Finalize(end time.Time) (Utterance, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.active {
		return Utterance{}, false
	}

	a.active = false
	pcm := a.pcm
	a.pcm = nil

	if end.Sub(a.start) < a.minDuration {
		return Utterance{}, false
	}

	a.nextID++
	return Utterance{
		ID:         a.nextID,
		PCM:        pcm,
		SampleRate: a.sampleRate,
		Start:      a.start,
		End:        end,
	}, true
}

// Discard drops the active span without publishing or consuming an id.
func (a *utteranceAssembler) Discard() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.active = false
	a.pcm = nil
}

func (a *utteranceAssembler) Active() bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.active
}
