// Package config loads the agent configuration from a YAML file, expanding
// ${VAR} references from the environment before parsing.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Audio         AudioConfig         `yaml:"audio"`
	Transcription TranscriptionConfig `yaml:"transcription"`
	LLM           LLMConfig           `yaml:"llm"`
	Speech        SpeechConfig        `yaml:"speech"`
	Conversation  ConversationConfig  `yaml:"conversation"`
	Log           LogConfig           `yaml:"log"`
}

type AudioConfig struct {
	// Backend selects the capture backend: miniaudio or portaudio. Playback
	// always runs on miniaudio.
	Backend    string `yaml:"backend"`
	BufferSize int    `yaml:"buffer_size"`
}

type TranscriptionConfig struct {
	Model    string `yaml:"model"`
	Language string `yaml:"language"`
}

type LLMConfig struct {
	BaseURL      string `yaml:"base_url"`
	APIKey       string `yaml:"api_key"`
	Model        string `yaml:"model"`
	SystemPrompt string `yaml:"system_prompt"`
}

type SpeechConfig struct {
	// Backend selects the synthesis backend: deepgram or opentts.
	Backend string   `yaml:"backend"`
	BaseURL string   `yaml:"base_url"`
	Voices  []string `yaml:"voices"`
	Speed   float64  `yaml:"speed"`
}

type ConversationConfig struct {
	VADThreshold     float64 `yaml:"vad_threshold"`
	SilenceMS        int     `yaml:"silence_ms"`
	MinUtteranceMS   int     `yaml:"min_utterance_ms"`
	HangoverMS       int     `yaml:"hangover_ms"`
	PhraseMinLen     int     `yaml:"phrase_min_len"`
	PhraseMaxLen     int     `yaml:"phrase_max_len"`
	PrefetchSegments int     `yaml:"prefetch_segments"`
	ErrorPhrase      string  `yaml:"error_phrase"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.setDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) setDefaults() {
	if c.Audio.Backend == "" {
		c.Audio.Backend = "miniaudio"
	}
	if c.Audio.BufferSize == 0 {
		c.Audio.BufferSize = 512
	}
	if c.Transcription.Model == "" {
		c.Transcription.Model = "nova-3"
	}
	if c.Transcription.Language == "" {
		c.Transcription.Language = "en"
	}
	if c.LLM.BaseURL == "" {
		c.LLM.BaseURL = "https://api.openai.com/v1"
	}
	if c.LLM.Model == "" {
		c.LLM.Model = "gpt-4o-mini"
	}
	if c.Speech.Backend == "" {
		c.Speech.Backend = "deepgram"
	}
	if c.Speech.Speed == 0 {
		c.Speech.Speed = 1.2
	}
	if c.Conversation.VADThreshold == 0 {
		c.Conversation.VADThreshold = 0.10
	}
	if c.Conversation.SilenceMS == 0 {
		c.Conversation.SilenceMS = 850
	}
	if c.Conversation.MinUtteranceMS == 0 {
		c.Conversation.MinUtteranceMS = 300
	}
	if c.Conversation.HangoverMS == 0 {
		c.Conversation.HangoverMS = 100
	}
	if c.Conversation.PhraseMinLen == 0 {
		c.Conversation.PhraseMinLen = 3
	}
	if c.Conversation.PhraseMaxLen == 0 {
		c.Conversation.PhraseMaxLen = 140
	}
	if c.Conversation.PrefetchSegments == 0 {
		c.Conversation.PrefetchSegments = 2
	}
	if c.Conversation.ErrorPhrase == "" {
		c.Conversation.ErrorPhrase = "Sorry, something went wrong."
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

func (c *Config) validate() error {
	switch c.Audio.Backend {
	case "miniaudio", "portaudio":
	default:
		return fmt.Errorf("unknown audio backend %q", c.Audio.Backend)
	}

	switch c.Speech.Backend {
	case "deepgram", "opentts":
	default:
		return fmt.Errorf("unknown speech backend %q", c.Speech.Backend)
	}
	if c.Speech.Backend == "opentts" && c.Speech.BaseURL == "" {
		return fmt.Errorf("speech.base_url is required for the opentts backend")
	}

	if c.Conversation.VADThreshold < 0 || c.Conversation.VADThreshold > 1 {
		return fmt.Errorf("conversation.vad_threshold must be between 0 and 1")
	}
	if c.Conversation.PhraseMinLen > c.Conversation.PhraseMaxLen {
		return fmt.Errorf("conversation.phrase_min_len must not exceed phrase_max_len")
	}

	return nil
}
