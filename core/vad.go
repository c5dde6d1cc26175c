package orchestration

import (
	"sync"
	"time"
)

type vadEvent int

const (
	vadNone vadEvent = iota
	vadSpeechStarted
	vadSpeechEnded
)

// voiceDetector is a peak-amplitude detector with hysteresis: speech begins
// the instant a frame's peak crosses the threshold and ends only after the
// signal stays below it for the full silence duration.
//
// The hangover gate treats frames as silence for a short window after the
// agent's own playback stops, so the loudspeaker tail cannot re-trigger an
// onset.
type voiceDetector struct {
	mu sync.Mutex

	threshold float64
	silence   time.Duration

	inSpeech  bool
	lastAbove time.Time
	gateUntil time.Time
}

func newVoiceDetector(threshold float64, silence time.Duration) *voiceDetector {
	return &voiceDetector{threshold: threshold, silence: silence}
}

// Process classifies one frame. Timestamps come from the frame so the
// detector is deterministic under test.
func (d *voiceDetector) Process(frame AudioFrame) vadEvent {
	d.mu.Lock()
	defer d.mu.Unlock()

	gated := frame.Timestamp.Before(d.gateUntil)

	if !gated && framePeak(frame.PCM) >= d.threshold {
		d.lastAbove = frame.Timestamp
		if !d.inSpeech {
			d.inSpeech = true
			return vadSpeechStarted
		}
		return vadNone
	}

	if d.inSpeech && frame.Timestamp.Sub(d.lastAbove) >= d.silence {
		d.inSpeech = false
		return vadSpeechEnded
	}

	return vadNone
}

// LastSpeech returns the timestamp of the last frame that crossed the
// threshold. Utterance duration is measured to this point so trailing
// silence never pads a click past the minimum-duration guard.
func (d *voiceDetector) LastSpeech() time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastAbove
}

// ArmGate suppresses onsets until now+hangover. Called when playback goes
// quiet and on interrupts.
func (d *voiceDetector) ArmGate(now time.Time, hangover time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if until := now.Add(hangover); until.After(d.gateUntil) {
		d.gateUntil = until
	}
}

// framePeak returns the peak absolute amplitude of little-endian signed
// 16-bit samples, normalized to 0..1.
func framePeak(pcm []byte) float64 {
	peak := 0
	for i := 0; i+1 < len(pcm); i += 2 {
		sample := int(int16(uint16(pcm[i]) | uint16(pcm[i+1])<<8))
		if sample < 0 {
			sample = -sample
		}
		if sample > peak {
			peak = sample
		}
	}
	return float64(peak) / 32768.0
}
