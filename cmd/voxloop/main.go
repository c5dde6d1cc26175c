package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/voxloop/voxloop-core/config"
	orchestration "github.com/voxloop/voxloop-core/core"
	"github.com/voxloop/voxloop-core/core/audio/miniaudio"
	"github.com/voxloop/voxloop-core/core/audio/portaudio"
	"github.com/voxloop/voxloop-core/core/llms/openai"
	sttdeepgram "github.com/voxloop/voxloop-core/core/speechtotext/deepgram"
	ttsdeepgram "github.com/voxloop/voxloop-core/core/texttospeech/deepgram"
	"github.com/voxloop/voxloop-core/core/texttospeech/opentts"
)

func main() {
	configPath := flag.String("config", "voxloop.yaml", "path to the configuration file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	setupLogging(cfg.Log)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	audioClient, err := miniaudio.NewClient()
	if err != nil {
		return fmt.Errorf("failed to open audio devices: %w", err)
	}

	var input orchestration.AudioInput = audioClient
	if cfg.Audio.Backend == "portaudio" {
		portaudioClient, err := portaudio.NewClient(cfg.Audio.BufferSize)
		if err != nil {
			return fmt.Errorf("failed to open portaudio capture: %w", err)
		}
		input = portaudioClient
	}

	transcriber, err := sttdeepgram.NewTranscriptionClient(
		sttdeepgram.WithModel(cfg.Transcription.Model),
		sttdeepgram.WithEncoding(input.EncodingInfo()),
	)
	if err != nil {
		return fmt.Errorf("failed to create transcription client: %w", err)
	}

	generator := openai.NewClient(cfg.LLM.APIKey,
		openai.WithBaseURL(cfg.LLM.BaseURL),
		openai.WithModel(cfg.LLM.Model),
		openai.WithInstructions(cfg.LLM.SystemPrompt),
	)

	var synthesizer orchestration.Synthesizer
	switch cfg.Speech.Backend {
	case "opentts":
		synthesizer = opentts.NewTextToSpeechClient(
			opentts.WithBaseURL(cfg.Speech.BaseURL),
			opentts.WithLanguage(cfg.Transcription.Language),
			opentts.WithEncoding(audioClient.EncodingInfo()),
		)
	default:
		deepgramTTS, err := ttsdeepgram.NewTextToSpeechClient(
			ttsdeepgram.WithEncoding(audioClient.EncodingInfo()),
		)
		if err != nil {
			return fmt.Errorf("failed to create speech client: %w", err)
		}
		synthesizer = deepgramTTS
	}

	voices := cfg.Speech.Voices
	if len(voices) == 0 && cfg.Speech.Backend == "deepgram" {
		voices = ttsdeepgram.GetAvailableVoices()
	}

	states := make(chan orchestration.ConversationState, 8)
	orchestrator := orchestration.NewOrchestrator(
		orchestration.WithTranscriber(transcriber),
		orchestration.WithGenerator(generator),
		orchestration.WithSynthesizer(synthesizer),
		orchestration.WithAudioInput(input),
		orchestration.WithAudioOutput(audioClient),
		orchestration.WithLanguage(cfg.Transcription.Language),
		orchestration.WithVoices(voices...),
		orchestration.WithInitialSpeed(cfg.Speech.Speed),
		orchestration.WithVADThreshold(cfg.Conversation.VADThreshold),
		orchestration.WithSilenceDuration(millis(cfg.Conversation.SilenceMS)),
		orchestration.WithMinUtteranceDuration(millis(cfg.Conversation.MinUtteranceMS)),
		orchestration.WithHangover(millis(cfg.Conversation.HangoverMS)),
		orchestration.WithPhraseLengths(cfg.Conversation.PhraseMinLen, cfg.Conversation.PhraseMaxLen),
		orchestration.WithPrefetchSegments(cfg.Conversation.PrefetchSegments),
		orchestration.WithSystemErrorPhrase(cfg.Conversation.ErrorPhrase),
		orchestration.WithStateCallback(func(state orchestration.ConversationState) {
			select {
			case states <- state:
			default:
			}
		}),
	)

	orchestratorErr := make(chan error, 1)
	go func() { orchestratorErr <- orchestrator.Run(ctx) }()

	program := tea.NewProgram(newModel(orchestrator, states), tea.WithContext(ctx))
	if _, err := program.Run(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("ui failed: %w", err)
	}
	cancel()

	if err := <-orchestratorErr; err != nil && err != context.Canceled {
		return err
	}
	return nil
}

func millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

func setupLogging(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	options := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, options)
	} else {
		handler = slog.NewTextHandler(os.Stderr, options)
	}
	slog.SetDefault(slog.New(handler))
}
