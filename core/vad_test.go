package orchestration

import (
	"testing"
	"time"
)

func loudFrame(ts time.Time) AudioFrame {
	return AudioFrame{PCM: []byte{0x00, 0x40}, SampleRate: 16000, Timestamp: ts} // 0.5 peak
}

func quietFrame(ts time.Time) AudioFrame {
	return AudioFrame{PCM: []byte{0x10, 0x00}, SampleRate: 16000, Timestamp: ts} // near zero
}

func TestSpeechStartsOnFirstLoudFrame(t *testing.T) {
	d := newVoiceDetector(0.10, 850*time.Millisecond)
	now := time.Now()

	if got := d.Process(quietFrame(now)); got != vadNone {
		t.Fatalf("expected no event on quiet frame, got %v", got)
	}
	if got := d.Process(loudFrame(now.Add(10 * time.Millisecond))); got != vadSpeechStarted {
		t.Fatalf("expected speech start on loud frame, got %v", got)
	}
	if got := d.Process(loudFrame(now.Add(20 * time.Millisecond))); got != vadNone {
		t.Fatalf("expected no repeated start while in speech, got %v", got)
	}
}

func TestSpeechEndsOnlyAfterFullSilenceDuration(t *testing.T) {
	d := newVoiceDetector(0.10, 850*time.Millisecond)
	now := time.Now()

	d.Process(loudFrame(now))

	if got := d.Process(quietFrame(now.Add(500 * time.Millisecond))); got != vadNone {
		t.Fatalf("expected speech to persist through short silence, got %v", got)
	}
	// A new loud frame resets the silence clock.
	d.Process(loudFrame(now.Add(600 * time.Millisecond)))
	if got := d.Process(quietFrame(now.Add(1400 * time.Millisecond))); got != vadNone {
		t.Fatalf("expected silence clock to restart after loud frame, got %v", got)
	}
	if got := d.Process(quietFrame(now.Add(1500 * time.Millisecond))); got != vadSpeechEnded {
		t.Fatalf("expected speech end after full silence duration, got %v", got)
	}
}

func TestHangoverGateSuppressesOnset(t *testing.T) {
	d := newVoiceDetector(0.10, 850*time.Millisecond)
	now := time.Now()

	d.ArmGate(now, 100*time.Millisecond)

	if got := d.Process(loudFrame(now.Add(50 * time.Millisecond))); got != vadNone {
		t.Fatalf("expected gated loud frame to be treated as silence, got %v", got)
	}
	if got := d.Process(loudFrame(now.Add(150 * time.Millisecond))); got != vadSpeechStarted {
		t.Fatalf("expected speech start after gate expires, got %v", got)
	}
}

func TestFramePeakNormalizes(t *testing.T) {
	pcm := []byte{0x00, 0x00, 0xFF, 0x7F} // 0 and 32767
	if got := framePeak(pcm); got < 0.999 {
		t.Fatalf("expected full-scale peak near 1.0, got %f", got)
	}
	if got := framePeak([]byte{0x00, 0x80}); got < 0.999 { // -32768
		t.Fatalf("expected negative full-scale peak near 1.0, got %f", got)
	}
}
