package orchestration

import (
	"context"

	"github.com/voxloop/voxloop-core/core/audio"
	"github.com/voxloop/voxloop-core/core/llms"
	"github.com/voxloop/voxloop-core/core/texttospeech"
)

// Transcriber turns one finalized utterance into text. The call blocks and is
// not assumed cancellable; staleness is handled at the result level.
type Transcriber interface {
	Transcribe(ctx context.Context, pcm []byte, sampleRate int, language string) (string, error)
}

// Generator produces a streamed reply. The stream must tolerate the consumer
// walking away mid-iteration, which is how interrupts abandon a reply.
type Generator interface {
	Generate(ctx context.Context, prompt string, history []llms.Exchange) llms.Stream
}

// Synthesizer renders one phrase of text to PCM in the encoding the playback
// device was opened with. Cancelling ctx aborts the request mid-flight.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string, opts ...texttospeech.SynthesisOption) ([]byte, error)
}

// AudioInput is the capture device facade. Stream blocks, invoking onAudio
// from the device callback until ctx is done; an error return means the
// device is gone, which is fatal.
type AudioInput interface {
	EncodingInfo() audio.EncodingInfo
	Stream(ctx context.Context, onAudio func(audio []byte)) error
	Close()
}

// AudioOutput is the playback device facade. The device pulls audio by
// calling render with the output buffer to fill; render must never block.
type AudioOutput interface {
	EncodingInfo() audio.EncodingInfo
	StartPlayback(ctx context.Context, render func(out []byte)) error
	StopPlayback() error
	Close()
}
