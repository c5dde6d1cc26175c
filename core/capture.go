package orchestration

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"
)

// audioCapture owns the microphone. It runs the detector and assembler on
// the device callback, publishes finalized utterances, and raises barge-in
// interrupts the instant speech starts over playback.
type audioCapture struct {
	input       AudioInput
	detector    *voiceDetector
	assembler   *utteranceAssembler
	coordinator *InterruptCoordinator

	utterances chan<- Utterance
	commands   chan<- ControlCommand

	// playing reports whether the output device is currently rendering a
	// reply; barge-in only fires while it is.
	playing  func() bool
	hangover time.Duration

	interruptSent atomic.Bool
}

func newAudioCapture(
	input AudioInput,
	detector *voiceDetector,
	assembler *utteranceAssembler,
	coordinator *InterruptCoordinator,
	utterances chan<- Utterance,
	commands chan<- ControlCommand,
	playing func() bool,
	hangover time.Duration,
) *audioCapture {
	return &audioCapture{
		input:       input,
		detector:    detector,
		assembler:   assembler,
		coordinator: coordinator,
		utterances:  utterances,
		commands:    commands,
		playing:     playing,
		hangover:    hangover,
	}
}

// Run blocks on the capture device until ctx is done. A device error is
// returned as-is; the caller treats it as fatal.
func (c *audioCapture) Run(ctx context.Context) error {
	if err := c.input.Stream(ctx, c.onAudio); err != nil {
		return fmt.Errorf("capture device failed: %w", err)
	}
	return nil
}

func (c *audioCapture) onAudio(pcm []byte) {
	if c.coordinator.IsPaused() {
		c.assembler.Discard()
		return
	}

	frame := AudioFrame{
		PCM:        pcm,
		SampleRate: c.input.EncodingInfo().SampleRate,
		Timestamp:  time.Now(),
	}
	c.handleFrame(frame)
}

// handleFrame is the frame path split out from the device callback so it can
// be driven directly under test.
func (c *audioCapture) handleFrame(frame AudioFrame) {
	switch c.detector.Process(frame) {
	case vadSpeechStarted:
		if c.playing() && c.interruptSent.CompareAndSwap(false, true) {
			c.sendCommand(CommandInterrupt)
			c.ArmGate(frame.Timestamp)
		}
		c.assembler.Begin(frame)

	case vadSpeechEnded:
		c.interruptSent.Store(false)
		if utterance, ok := c.assembler.Finalize(c.detector.LastSpeech()); ok {
			select {
			case c.utterances <- utterance:
			default:
				logger.Warn("utterance queue full, dropping utterance",
					"utterance_id", utterance.ID)
			}
		}

	default:
		c.assembler.Append(frame)
	}
}

// ArmGate suppresses echo-triggered onsets for the hangover window.
func (c *audioCapture) ArmGate(now time.Time) {
	c.detector.ArmGate(now, c.hangover)
}

func (c *audioCapture) sendCommand(command ControlCommand) {
	select {
	case c.commands <- command:
	default:
		logger.Warn("command queue full, dropping command", "command", command.String())
	}
}
