package audio

import (
	"testing"
	"time"
)

func TestDurationFollowsByteRate(t *testing.T) {
	linear := EncodingInfo{SampleRate: 16000, Format: EncodingLinear16}
	if got := linear.Duration(32000); got != time.Second {
		t.Fatalf("expected 32000 linear16 bytes at 16kHz to last 1s, got %v", got)
	}
	if got := linear.Duration(1600); got != 50*time.Millisecond {
		t.Fatalf("expected 1600 bytes to last 50ms, got %v", got)
	}

	mulaw := EncodingInfo{SampleRate: 8000, Format: EncodingMulaw}
	if got := mulaw.Duration(8000); got != time.Second {
		t.Fatalf("expected 8000 mulaw bytes at 8kHz to last 1s, got %v", got)
	}

	if got := (EncodingInfo{}).Duration(32000); got != 0 {
		t.Fatalf("expected zero duration for a zero encoding, got %v", got)
	}
}

func TestBytesRoundsDownToWholeSamples(t *testing.T) {
	linear := EncodingInfo{SampleRate: 16000, Format: EncodingLinear16}
	if got := linear.Bytes(time.Second); got != 32000 {
		t.Fatalf("expected 1s of linear16 at 16kHz to be 32000 bytes, got %d", got)
	}

	// 31.25 microseconds is half a sample; a partial sample must not leak
	// into the byte count.
	if got := linear.Bytes(time.Second + 31250*time.Nanosecond); got != 32000 {
		t.Fatalf("expected a half-sample remainder to be dropped, got %d", got)
	}

	mulaw := EncodingInfo{SampleRate: 8000, Format: EncodingMulaw}
	if got := mulaw.Bytes(250 * time.Millisecond); got != 2000 {
		t.Fatalf("expected 250ms of mulaw at 8kHz to be 2000 bytes, got %d", got)
	}

	if got := (EncodingInfo{}).Bytes(time.Second); got != 0 {
		t.Fatalf("expected zero bytes for a zero encoding, got %d", got)
	}
}

func TestDurationAndBytesRoundTrip(t *testing.T) {
	encoding := GetDefaultEncodingInfo()
	for _, d := range []time.Duration{0, 50 * time.Millisecond, time.Second, 850 * time.Millisecond} {
		if got := encoding.Duration(encoding.Bytes(d)); got != d {
			t.Fatalf("expected whole-sample duration %v to survive the round trip, got %v", d, got)
		}
	}
}
