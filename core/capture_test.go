package orchestration

import (
	"testing"
	"time"
)

func newTestCapture(playing *bool, commands chan ControlCommand, utterances chan Utterance) *audioCapture {
	return newAudioCapture(
		&fakeInput{},
		newVoiceDetector(0.10, 850*time.Millisecond),
		newUtteranceAssembler(0),
		NewInterruptCoordinator(),
		utterances,
		commands,
		func() bool { return *playing },
		100*time.Millisecond,
	)
}

func TestSpeechOnsetDuringPlaybackRaisesInterrupt(t *testing.T) {
	playing := true
	commands := make(chan ControlCommand, 4)
	utterances := make(chan Utterance, 4)
	c := newTestCapture(&playing, commands, utterances)

	now := time.Now()
	c.handleFrame(loudFrame(now))

	select {
	case command := <-commands:
		if command != CommandInterrupt {
			t.Fatalf("expected interrupt command on speech onset, got %v", command)
		}
	default:
		t.Fatalf("expected an interrupt command on speech onset during playback")
	}

	// The onset also arms the hangover gate, so a frame inside the gate
	// window is treated as silence and cannot re-trigger anything.
	if got := c.detector.Process(loudFrame(now.Add(50 * time.Millisecond))); got != vadNone {
		t.Fatalf("expected gated frame to produce no event, got %v", got)
	}
}

func TestBargeInRaisesInterruptOncePerSpeechSpan(t *testing.T) {
	playing := true
	commands := make(chan ControlCommand, 4)
	utterances := make(chan Utterance, 4)
	c := newTestCapture(&playing, commands, utterances)

	now := time.Now()
	c.handleFrame(loudFrame(now))
	if command := <-commands; command != CommandInterrupt {
		t.Fatalf("expected interrupt command, got %v", command)
	}

	// Continued speech in the same span, past the hangover gate, must not
	// raise a second interrupt.
	c.handleFrame(loudFrame(now.Add(150 * time.Millisecond)))
	c.handleFrame(loudFrame(now.Add(300 * time.Millisecond)))
	select {
	case command := <-commands:
		t.Fatalf("expected no further interrupt within the span, got %v", command)
	default:
	}

	// Trailing silence ends the span; the interrupting speech still becomes
	// a normal utterance.
	c.handleFrame(quietFrame(now.Add(1200 * time.Millisecond)))
	select {
	case utterance := <-utterances:
		if utterance.Duration() != 300*time.Millisecond {
			t.Fatalf("expected utterance measured to the last loud frame, got %v", utterance.Duration())
		}
	default:
		t.Fatalf("expected the interrupting speech to be published as an utterance")
	}

	// A fresh span while playback is still active raises again.
	c.handleFrame(loudFrame(now.Add(1400 * time.Millisecond)))
	select {
	case command := <-commands:
		if command != CommandInterrupt {
			t.Fatalf("expected interrupt command on the next span, got %v", command)
		}
	default:
		t.Fatalf("expected a new span to raise its own interrupt")
	}
}

func TestSpeechOnsetWhileQuietRaisesNoInterrupt(t *testing.T) {
	playing := false
	commands := make(chan ControlCommand, 4)
	utterances := make(chan Utterance, 4)
	c := newTestCapture(&playing, commands, utterances)

	c.handleFrame(loudFrame(time.Now()))

	select {
	case command := <-commands:
		t.Fatalf("expected no command while nothing is playing, got %v", command)
	default:
	}
	if !c.assembler.Active() {
		t.Fatalf("expected the onset to begin an utterance")
	}
}
