package orchestration

import "time"

const (
	defaultVADThreshold     = 0.10
	defaultSilenceDuration  = 850 * time.Millisecond
	defaultMinUtterance     = 300 * time.Millisecond
	defaultHangover         = 100 * time.Millisecond
	defaultPhraseMinLen     = 3
	defaultPhraseMaxLen     = 140
	defaultPrefetchSegments = 2

	// Speed is stored in tenths so arrow-key steps stay exact.
	defaultSpeedTenths = 12
	minSpeedTenths     = 5
	maxSpeedTenths     = 80

	defaultEscapeWindow      = time.Second
	defaultKeyDebounce       = 150 * time.Millisecond
	defaultTranscribeTimeout = 15 * time.Second
	defaultSynthesizeTimeout = 20 * time.Second

	utteranceQueueCapacity = 4
	commandQueueCapacity   = 16
	keyQueueCapacity       = 16
)

type orchestratorConfig struct {
	language string
	voices   []string

	vadThreshold    float64
	silenceDuration time.Duration
	minUtterance    time.Duration
	hangover        time.Duration

	phraseMinLen     int
	phraseMaxLen     int
	prefetchSegments int

	transcribeTimeout time.Duration
	synthesizeTimeout time.Duration

	escapeWindow time.Duration
	keyDebounce  time.Duration

	systemErrorPhrase string
}

func defaultConfig() orchestratorConfig {
	return orchestratorConfig{
		language:          "en",
		vadThreshold:      defaultVADThreshold,
		silenceDuration:   defaultSilenceDuration,
		minUtterance:      defaultMinUtterance,
		hangover:          defaultHangover,
		phraseMinLen:      defaultPhraseMinLen,
		phraseMaxLen:      defaultPhraseMaxLen,
		prefetchSegments:  defaultPrefetchSegments,
		transcribeTimeout: defaultTranscribeTimeout,
		synthesizeTimeout: defaultSynthesizeTimeout,
		escapeWindow:      defaultEscapeWindow,
		keyDebounce:       defaultKeyDebounce,
	}
}

type OrchestratorOption func(*Orchestrator)

func WithTranscriber(client Transcriber) OrchestratorOption {
	return func(o *Orchestrator) { o.transcriber = client }
}

func WithGenerator(client Generator) OrchestratorOption {
	return func(o *Orchestrator) { o.generator = client }
}

func WithSynthesizer(client Synthesizer) OrchestratorOption {
	return func(o *Orchestrator) { o.synthesizer = client }
}

func WithAudioInput(client AudioInput) OrchestratorOption {
	return func(o *Orchestrator) { o.input = client }
}

func WithAudioOutput(client AudioOutput) OrchestratorOption {
	return func(o *Orchestrator) { o.output = client }
}

// WithBoundaryDetector sets the factory for the per-turn phrase boundary
// detector.
func WithBoundaryDetector(factory func() BoundaryDetector) OrchestratorOption {
	return func(o *Orchestrator) {
		if factory != nil {
			o.newBoundary = factory
		}
	}
}

// WithStateCallback registers the peripheral status observer. The callback
// runs on state transitions and must not block.
func WithStateCallback(callback func(ConversationState)) OrchestratorOption {
	return func(o *Orchestrator) { o.onStateChange = callback }
}

func WithLanguage(language string) OrchestratorOption {
	return func(o *Orchestrator) {
		if language != "" {
			o.config.language = language
		}
	}
}

// WithVoices sets the voice list the left/right keys cycle through. The
// first entry is the initial voice.
func WithVoices(voices ...string) OrchestratorOption {
	return func(o *Orchestrator) { o.config.voices = voices }
}

func WithInitialSpeed(speed float64) OrchestratorOption {
	return func(o *Orchestrator) {
		o.speedTenths = clampSpeedTenths(int(speed*10 + 0.5))
	}
}

func WithVADThreshold(threshold float64) OrchestratorOption {
	return func(o *Orchestrator) {
		if threshold > 0 && threshold < 1 {
			o.config.vadThreshold = threshold
		}
	}
}

func WithSilenceDuration(d time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		if d > 0 {
			o.config.silenceDuration = d
		}
	}
}

func WithMinUtteranceDuration(d time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		if d > 0 {
			o.config.minUtterance = d
		}
	}
}

func WithHangover(d time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		if d >= 0 {
			o.config.hangover = d
		}
	}
}

func WithPhraseLengths(min, max int) OrchestratorOption {
	return func(o *Orchestrator) {
		if min > 0 && max > min {
			o.config.phraseMinLen = min
			o.config.phraseMaxLen = max
		}
	}
}

func WithPrefetchSegments(n int) OrchestratorOption {
	return func(o *Orchestrator) {
		if n > 0 {
			o.config.prefetchSegments = n
		}
	}
}

func WithTranscribeTimeout(d time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		if d > 0 {
			o.config.transcribeTimeout = d
		}
	}
}

func WithSynthesizeTimeout(d time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		if d > 0 {
			o.config.synthesizeTimeout = d
		}
	}
}

// WithSystemErrorPhrase sets the short spoken apology used when generation
// fails mid-turn. Empty disables it.
func WithSystemErrorPhrase(phrase string) OrchestratorOption {
	return func(o *Orchestrator) { o.config.systemErrorPhrase = phrase }
}

func clampSpeedTenths(tenths int) int {
	if tenths < minSpeedTenths {
		return minSpeedTenths
	}
	if tenths > maxSpeedTenths {
		return maxSpeedTenths
	}
	return tenths
}
