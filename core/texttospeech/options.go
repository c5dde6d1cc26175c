package texttospeech

type SynthesisOptions struct {
	// Voice names the engine voice/model to synthesize with. Empty means the
	// client's default.
	Voice string
	// Speed is the playback-rate multiplier (1.0 is normal speed). Clients
	// that cannot vary speed ignore it.
	Speed float64
}

type SynthesisOption func(*SynthesisOptions)

func WithVoice(voice string) SynthesisOption {
	return func(o *SynthesisOptions) {
		if voice == "" {
			return
		}
		o.Voice = voice
	}
}

func WithSpeed(speed float64) SynthesisOption {
	return func(o *SynthesisOptions) {
		if speed <= 0 {
			return
		}
		o.Speed = speed
	}
}
