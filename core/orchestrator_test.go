package orchestration

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/voxloop/voxloop-core/core/audio"
	"github.com/voxloop/voxloop-core/core/llms"
	"github.com/voxloop/voxloop-core/core/texttospeech"
)

type fakeInput struct{}

func (f *fakeInput) EncodingInfo() audio.EncodingInfo { return testEncoding() }

func (f *fakeInput) Stream(ctx context.Context, onAudio func(audio []byte)) error {
	<-ctx.Done()
	return nil
}

func (f *fakeInput) Close() {}

type fakeOutput struct {
	mu     sync.Mutex
	render func(out []byte)
}

func (f *fakeOutput) EncodingInfo() audio.EncodingInfo { return testEncoding() }

func (f *fakeOutput) StartPlayback(_ context.Context, render func(out []byte)) error {
	f.mu.Lock()
	f.render = render
	f.mu.Unlock()
	return nil
}

func (f *fakeOutput) StopPlayback() error { return nil }
func (f *fakeOutput) Close()              {}

// pump simulates one device period and returns the rendered buffer.
func (f *fakeOutput) pump(n int) []byte {
	f.mu.Lock()
	render := f.render
	f.mu.Unlock()

	out := make([]byte, n)
	if render != nil {
		render(out)
	}
	return out
}

type fakeTranscriber struct {
	transcript string
	err        error
	calls      atomic.Int32
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, pcm []byte, sampleRate int, language string) (string, error) {
	f.calls.Add(1)
	return f.transcript, f.err
}

type fakeStream struct {
	chunks []string
	err    error
}

func (s *fakeStream) Chunks(ctx context.Context) func(func(string, error) bool) {
	return func(yield func(string, error) bool) {
		for _, chunk := range s.chunks {
			if !yield(chunk, nil) {
				return
			}
		}
		if s.err != nil {
			yield("", s.err)
		}
	}
}

type fakeGenerator struct {
	chunks []string
	err    error
}

func (f *fakeGenerator) Generate(ctx context.Context, prompt string, history []llms.Exchange) llms.Stream {
	return &fakeStream{chunks: f.chunks, err: f.err}
}

type fakeSynthesizer struct {
	mu    sync.Mutex
	audio map[string][]byte
	gates map[string]chan struct{}
	calls []string
}

func (f *fakeSynthesizer) Synthesize(ctx context.Context, text string, opts ...texttospeech.SynthesisOption) ([]byte, error) {
	f.mu.Lock()
	f.calls = append(f.calls, text)
	gate := f.gates[text]
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for prefix, pcm := range f.audio {
		if strings.HasPrefix(text, prefix) {
			return pcm, nil
		}
	}
	return fillBytes(0xAA, 16), nil
}

func waitFor(t *testing.T, what string, condition func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func testUtterance(id uint64) Utterance {
	now := time.Now()
	return Utterance{
		ID:         id,
		PCM:        fillBytes(1, 3200),
		SampleRate: 16000,
		Start:      now.Add(-time.Second),
		End:        now,
	}
}

func startedOrchestrator(t *testing.T, transcriber Transcriber, generator Generator, synthesizer Synthesizer, output *fakeOutput) (*Orchestrator, context.CancelFunc) {
	t.Helper()

	o := NewOrchestrator(
		WithTranscriber(transcriber),
		WithGenerator(generator),
		WithSynthesizer(synthesizer),
		WithAudioInput(&fakeInput{}),
		WithAudioOutput(output),
	)

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = o.Run(ctx) }()
	waitFor(t, "orchestrator to start listening", func() bool { return o.State() == StateListening })

	return o, cancel
}

func nonSilence(out []byte) []byte {
	var audible []byte
	for _, b := range out {
		if b != 0 {
			audible = append(audible, b)
		}
	}
	return audible
}

func TestFullTurnPlaysPhrasesInOrderAndReturnsToListening(t *testing.T) {
	transcriber := &fakeTranscriber{transcript: "hello"}
	generator := &fakeGenerator{chunks: []string{"Hi!", " How can I help you today?"}}
	synthesizer := &fakeSynthesizer{audio: map[string][]byte{
		"Hi":  fillBytes(1, 32),
		"How": fillBytes(2, 32),
	}}
	output := &fakeOutput{}

	o, cancel := startedOrchestrator(t, transcriber, generator, synthesizer, output)
	defer cancel()

	o.utterances <- testUtterance(1)

	var rendered []byte
	waitFor(t, "both segments to render", func() bool {
		rendered = append(rendered, nonSilence(output.pump(16))...)
		return len(rendered) >= 64
	})

	boundary := -1
	for i, b := range rendered {
		switch {
		case b == 2 && boundary == -1:
			boundary = i
		case b == 1 && boundary != -1:
			t.Fatalf("expected all seq 0 audio before seq 1 audio, got seq 0 byte at %d", i)
		}
	}
	if boundary == -1 {
		t.Fatalf("expected seq 1 audio to render")
	}

	waitFor(t, "state to return to listening", func() bool {
		output.pump(16)
		return o.State() == StateListening
	})

	if got := transcriber.calls.Load(); got != 1 {
		t.Fatalf("expected exactly one transcription call, got %d", got)
	}
	history := o.historySnapshot()
	if len(history) != 1 || history[0].Prompt != "hello" {
		t.Fatalf("expected one history exchange for prompt %q, got %v", "hello", history)
	}
	if generation := o.coordinator.Current(); generation != 0 {
		t.Fatalf("expected no generation bump during a clean turn, got %d", generation)
	}
}

func TestInterruptDuringPlaybackSilencesAndDiscardsLateSegments(t *testing.T) {
	gate := make(chan struct{})
	transcriber := &fakeTranscriber{transcript: "tell me a story"}
	generator := &fakeGenerator{chunks: []string{"First phrase.", " Second phrase."}}
	synthesizer := &fakeSynthesizer{
		audio: map[string][]byte{
			"First":  fillBytes(1, 512),
			"Second": fillBytes(2, 512),
		},
		gates: map[string]chan struct{}{"Second phrase.": gate},
	}
	output := &fakeOutput{}

	o, cancel := startedOrchestrator(t, transcriber, generator, synthesizer, output)
	defer cancel()

	o.utterances <- testUtterance(1)

	waitFor(t, "first segment to start playing", func() bool {
		return len(nonSilence(output.pump(16))) > 0
	})

	o.Command(CommandInterrupt)

	waitFor(t, "generation bump after interrupt", func() bool {
		return o.coordinator.Current() == 1
	})
	waitFor(t, "state to return to listening", func() bool {
		output.pump(16)
		return o.State() == StateListening
	})

	close(gate)

	// Even if the second phrase finishes after the bump, nothing of the old
	// generation may reach the device again.
	for i := 0; i < 20; i++ {
		if audible := nonSilence(output.pump(64)); len(audible) != 0 {
			t.Fatalf("expected silence after interrupt, got %d audible bytes", len(audible))
		}
		time.Sleep(time.Millisecond)
	}
}

func TestTooShortSpeechNeverReachesTranscription(t *testing.T) {
	transcriber := &fakeTranscriber{transcript: "should never be used"}
	generator := &fakeGenerator{chunks: []string{"Never."}}
	synthesizer := &fakeSynthesizer{}
	output := &fakeOutput{}

	o, cancel := startedOrchestrator(t, transcriber, generator, synthesizer, output)
	defer cancel()

	// A single loud frame, then silence past the trailing threshold: a click.
	now := time.Now()
	o.capture.handleFrame(loudFrame(now))
	o.capture.handleFrame(quietFrame(now.Add(400 * time.Millisecond)))
	o.capture.handleFrame(quietFrame(now.Add(1300 * time.Millisecond)))

	time.Sleep(50 * time.Millisecond)

	if got := transcriber.calls.Load(); got != 0 {
		t.Fatalf("expected dropped utterance to never be transcribed, got %d calls", got)
	}
	if got := o.State(); got != StateListening {
		t.Fatalf("expected state to stay listening, got %v", got)
	}
}

func TestStopPlaybackWhileListeningIsANoOp(t *testing.T) {
	transcriber := &fakeTranscriber{}
	generator := &fakeGenerator{}
	synthesizer := &fakeSynthesizer{}
	output := &fakeOutput{}

	o, cancel := startedOrchestrator(t, transcriber, generator, synthesizer, output)
	defer cancel()

	o.Command(CommandStopPlayback)
	time.Sleep(50 * time.Millisecond)

	if generation := o.coordinator.Current(); generation != 0 {
		t.Fatalf("expected no generation bump from idle stop, got %d", generation)
	}
	if got := o.State(); got != StateListening {
		t.Fatalf("expected state to stay listening, got %v", got)
	}
}

func TestPauseResumeRestoresStateAndKeepsPendingUtterance(t *testing.T) {
	transcriber := &fakeTranscriber{transcript: "hello"}
	generator := &fakeGenerator{chunks: []string{"Okay."}}
	synthesizer := &fakeSynthesizer{}
	output := &fakeOutput{}

	o, cancel := startedOrchestrator(t, transcriber, generator, synthesizer, output)
	defer cancel()

	o.Command(CommandPause)
	waitFor(t, "state to pause", func() bool { return o.State() == StatePaused })
	if !o.coordinator.IsPaused() {
		t.Fatalf("expected coordinator to report paused")
	}

	// An utterance arriving while paused is held, not dropped.
	o.utterances <- testUtterance(1)
	time.Sleep(50 * time.Millisecond)
	if got := transcriber.calls.Load(); got != 0 {
		t.Fatalf("expected no transcription while paused, got %d calls", got)
	}

	o.Command(CommandResume)
	waitFor(t, "held utterance to be transcribed after resume", func() bool {
		return transcriber.calls.Load() == 1
	})

	if generation := o.coordinator.Current(); generation != 0 {
		t.Fatalf("expected pause round-trip to never bump the generation, got %d", generation)
	}
}

func TestSynthesisFailureSkipsPhraseButFinishesTurn(t *testing.T) {
	transcriber := &fakeTranscriber{transcript: "hello"}
	generator := &fakeGenerator{chunks: []string{"Bad phrase.", " Good phrase."}}
	synthesizer := &failingSynthesizer{
		failFor: "Bad",
		audio:   fillBytes(3, 32),
	}
	output := &fakeOutput{}

	o, cancel := startedOrchestrator(t, transcriber, generator, synthesizer, output)
	defer cancel()

	o.utterances <- testUtterance(1)

	var rendered []byte
	waitFor(t, "surviving phrase to render", func() bool {
		rendered = append(rendered, nonSilence(output.pump(16))...)
		return len(rendered) >= 32
	})

	for i, b := range rendered {
		if b != 3 {
			t.Fatalf("expected only the surviving phrase's audio, got %d at byte %d", b, i)
		}
	}

	waitFor(t, "state to return to listening", func() bool {
		output.pump(16)
		return o.State() == StateListening
	})
}

type failingSynthesizer struct {
	failFor string
	audio   []byte
}

func (f *failingSynthesizer) Synthesize(ctx context.Context, text string, opts ...texttospeech.SynthesisOption) ([]byte, error) {
	if strings.HasPrefix(text, f.failFor) {
		return nil, context.DeadlineExceeded
	}
	return f.audio, nil
}

func TestSpeedAndVoiceCommandsApplyToNextSynthesis(t *testing.T) {
	o := NewOrchestrator(
		WithVoices("aura-asteria-en", "aura-orion-en"),
		WithInitialSpeed(1.2),
	)

	ctx := context.Background()
	o.handleCommand(ctx, CommandSpeedUp)
	o.handleCommand(ctx, CommandSpeedUp)
	o.handleCommand(ctx, CommandVoiceNext)

	voice, speed := o.synthesisSettings()
	if voice != "aura-orion-en" {
		t.Fatalf("expected next voice, got %q", voice)
	}
	if speed != 1.4 {
		t.Fatalf("expected speed 1.4, got %f", speed)
	}

	o.handleCommand(ctx, CommandVoicePrev)
	o.handleCommand(ctx, CommandVoicePrev)
	if voice, _ := o.synthesisSettings(); voice != "aura-orion-en" {
		t.Fatalf("expected voice cycling to wrap, got %q", voice)
	}

	for i := 0; i < 100; i++ {
		o.handleCommand(ctx, CommandSpeedDown)
	}
	if _, speed := o.synthesisSettings(); speed != 0.5 {
		t.Fatalf("expected speed clamped at 0.5, got %f", speed)
	}
}
