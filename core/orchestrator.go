package orchestration

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/voxloop/voxloop-core/core/llms"
)

type ConversationState int

const (
	StateIdle ConversationState = iota
	StateListening
	StateTranscribing
	StateGenerating
	StateSynthesizing
	StatePlaying
	StatePaused
	StateShutdown
)

func (s ConversationState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateListening:
		return "listening"
	case StateTranscribing:
		return "transcribing"
	case StateGenerating:
		return "generating"
	case StateSynthesizing:
		return "synthesizing"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateShutdown:
		return "shutdown"
	}
	return "unknown"
}

// Orchestrator is the conversation state machine. It owns the single
// authoritative ConversationState, drives turns from finalized utterances,
// and routes control commands into the generation-tag cancellation protocol.
type Orchestrator struct {
	coordinator *InterruptCoordinator
	controller  *InputController

	transcriber Transcriber
	generator   Generator
	synthesizer Synthesizer
	input       AudioInput
	output      AudioOutput

	router  *PlaybackRouter
	capture *audioCapture

	newBoundary func() BoundaryDetector

	config orchestratorConfig

	mu               sync.Mutex
	state            ConversationState
	pausedPrior      ConversationState
	speedTenths      int
	voiceIndex       int
	history          []llms.Exchange
	activeTurn       *turn
	pendingUtterance *Utterance

	commands      chan ControlCommand
	keys          chan KeyEvent
	utterances    chan Utterance
	turnDone      chan turnResult
	playbackQuiet chan struct{}

	onStateChange func(ConversationState)
}

func NewOrchestrator(opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		coordinator: NewInterruptCoordinator(),
		config:      defaultConfig(),
		state:       StateIdle,
		speedTenths: defaultSpeedTenths,

		commands:      make(chan ControlCommand, commandQueueCapacity),
		keys:          make(chan KeyEvent, keyQueueCapacity),
		utterances:    make(chan Utterance, utteranceQueueCapacity),
		turnDone:      make(chan turnResult, 1),
		playbackQuiet: make(chan struct{}, 1),
	}

	for _, opt := range opts {
		opt(o)
	}

	o.controller = newInputController(o.config.escapeWindow, o.config.keyDebounce)

	if o.newBoundary == nil {
		minLen, maxLen := o.config.phraseMinLen, o.config.phraseMaxLen
		o.newBoundary = func() BoundaryDetector {
			return newPunctuationBoundary(minLen, maxLen)
		}
	}

	if o.output != nil {
		o.router = newPlaybackRouter(
			o.coordinator,
			o.output.EncodingInfo(),
			o.notifyPlaybackActive,
			o.notifyPlaybackQuiet,
		)
	}

	if o.input != nil {
		detector := newVoiceDetector(o.config.vadThreshold, o.config.silenceDuration)
		assembler := newUtteranceAssembler(o.config.minUtterance)
		o.capture = newAudioCapture(
			o.input,
			detector,
			assembler,
			o.coordinator,
			o.utterances,
			o.commands,
			o.playingNow,
			o.config.hangover,
		)
	}

	return o
}

// Run drives the orchestrator until ctx ends, Shutdown is commanded, or a
// device dies. It owns both devices for its whole lifetime.
func (o *Orchestrator) Run(ctx context.Context) error {
	if o.transcriber == nil || o.generator == nil || o.synthesizer == nil {
		return fmt.Errorf("transcriber, generator and synthesizer are required")
	}
	if o.input == nil || o.output == nil {
		return fmt.Errorf("audio input and output are required")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := o.output.StartPlayback(ctx, o.router.Fill); err != nil {
		return fmt.Errorf("playback device failed to start: %w", err)
	}

	captureErr := make(chan error, 1)
	go func() { captureErr <- o.capture.Run(ctx) }()

	o.setState(StateListening)
	logger.InfoContext(ctx, "conversation loop started")

	for {
		select {
		case <-ctx.Done():
			o.shutdown()
			return ctx.Err()

		case err := <-captureErr:
			o.shutdown()
			if err != nil {
				return err
			}
			return nil

		case event := <-o.keys:
			command, ok := o.controller.Translate(event)
			if !ok {
				continue
			}
			if o.handleCommand(ctx, command) {
				o.shutdown()
				return nil
			}

		case command := <-o.commands:
			if o.handleCommand(ctx, command) {
				o.shutdown()
				return nil
			}

		case utterance := <-o.utterances:
			o.handleUtterance(ctx, utterance)

		case result := <-o.turnDone:
			o.handleTurnDone(result)

		case <-o.playbackQuiet:
			o.handlePlaybackQuiet()
		}
	}
}

// HandleKey feeds a raw key event from the front end. Non-blocking; events
// arriving faster than the loop drains them are dropped.
func (o *Orchestrator) HandleKey(event KeyEvent) {
	select {
	case o.keys <- event:
	default:
	}
}

// Command injects a control command directly, bypassing key translation.
func (o *Orchestrator) Command(command ControlCommand) {
	select {
	case o.commands <- command:
	default:
		logger.Warn("command queue full, dropping command", "command", command.String())
	}
}

// State returns the current conversation state.
func (o *Orchestrator) State() ConversationState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Speed returns the current synthesis speed multiplier.
func (o *Orchestrator) Speed() float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return float64(o.speedTenths) / 10
}

// Voice returns the currently selected voice, or empty when none are
// configured.
func (o *Orchestrator) Voice() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.voiceLocked()
}

func (o *Orchestrator) voiceLocked() string {
	if len(o.config.voices) == 0 {
		return ""
	}
	return o.config.voices[o.voiceIndex]
}

// handleCommand applies one control command. The return is true on Shutdown.
func (o *Orchestrator) handleCommand(ctx context.Context, command ControlCommand) bool {
	logger.Debug("handling command", "command", command.String())

	switch command {
	case CommandPause:
		o.mu.Lock()
		if o.state == StatePaused || o.state == StateShutdown {
			o.mu.Unlock()
			return false
		}
		o.pausedPrior = o.state
		o.mu.Unlock()
		o.coordinator.SetPaused(true)
		o.setState(StatePaused)

	case CommandResume:
		o.mu.Lock()
		if o.state != StatePaused {
			o.mu.Unlock()
			return false
		}
		prior := o.pausedPrior
		pending := o.pendingUtterance
		o.pendingUtterance = nil
		o.mu.Unlock()
		o.coordinator.SetPaused(false)
		o.setState(prior)
		if pending != nil {
			o.handleUtterance(ctx, *pending)
		}

	case CommandStopPlayback, CommandInterrupt:
		// No-op while nothing is in flight: no bump, no state change.
		if !o.turnBusy() {
			return false
		}
		o.interrupt()
		o.setState(StateListening)

	case CommandSpeedUp:
		o.mu.Lock()
		o.speedTenths = clampSpeedTenths(o.speedTenths + 1)
		o.mu.Unlock()

	case CommandSpeedDown:
		o.mu.Lock()
		o.speedTenths = clampSpeedTenths(o.speedTenths - 1)
		o.mu.Unlock()

	case CommandVoiceNext:
		o.cycleVoice(1)

	case CommandVoicePrev:
		o.cycleVoice(-1)

	case CommandShutdown:
		return true
	}

	return false
}

func (o *Orchestrator) cycleVoice(step int) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if len(o.config.voices) == 0 {
		return
	}
	o.voiceIndex = (o.voiceIndex + step + len(o.config.voices)) % len(o.config.voices)
}

func (o *Orchestrator) handleUtterance(ctx context.Context, utterance Utterance) {
	o.mu.Lock()
	if o.state == StatePaused {
		// Held, not dropped: the utterance resumes the turn flow on Resume.
		o.pendingUtterance = &utterance
		o.mu.Unlock()
		return
	}
	o.mu.Unlock()

	// A new utterance while a turn is still in flight preempts it.
	if o.turnBusy() {
		o.interrupt()
	}

	o.startTurn(ctx, utterance)
}

func (o *Orchestrator) handleTurnDone(result turnResult) {
	o.mu.Lock()
	if o.activeTurn != nil && o.activeTurn.generation == result.generation {
		o.activeTurn = nil
	}
	o.mu.Unlock()

	if !o.coordinator.IsCurrent(result.generation) {
		// The interrupt that invalidated this turn already set the state.
		return
	}

	if result.err != nil {
		logger.Warn("turn failed", "error", result.err)
		o.setState(StateListening)
		return
	}

	if !o.router.Active() {
		o.setState(StateListening)
	}
	// Otherwise playback is still draining; playbackQuiet finishes the turn.
}

func (o *Orchestrator) handlePlaybackQuiet() {
	o.mu.Lock()
	playing := o.state == StatePlaying
	turnActive := o.activeTurn != nil
	o.mu.Unlock()

	if playing && !turnActive {
		o.setState(StateListening)
	}
}

// turnBusy reports whether any output of the current generation could still
// reach the speaker.
func (o *Orchestrator) turnBusy() bool {
	o.mu.Lock()
	turnActive := o.activeTurn != nil
	o.mu.Unlock()

	return turnActive || o.playingNow()
}

// interrupt bumps the generation, silences the router within one device
// period, and cancels the in-flight turn. The old turn's outputs are stale
// from this point on and get dropped wherever they surface.
func (o *Orchestrator) interrupt() {
	o.coordinator.Bump()
	if o.router != nil {
		o.router.Stop()
	}
	if o.capture != nil {
		o.capture.ArmGate(time.Now())
	}

	o.mu.Lock()
	active := o.activeTurn
	o.activeTurn = nil
	o.mu.Unlock()

	if active != nil {
		active.cancel()
	}
}

func (o *Orchestrator) playingNow() bool {
	return o.router != nil && o.router.Active()
}

func (o *Orchestrator) notifyPlaybackActive() {
	// Only current-generation audio ever reaches the device, so rendering
	// starting means the live turn is audible.
	o.setState(StatePlaying)
}

func (o *Orchestrator) notifyPlaybackQuiet() {
	if o.capture != nil {
		o.capture.ArmGate(time.Now())
	}
	select {
	case o.playbackQuiet <- struct{}{}:
	default:
	}
}

// setPipelineState applies a turn-driven state transition, dropped when the
// turn's generation has gone stale.
func (o *Orchestrator) setPipelineState(generation uint64, state ConversationState) {
	if !o.coordinator.IsCurrent(generation) {
		return
	}
	o.setState(state)
}

func (o *Orchestrator) setState(state ConversationState) {
	o.mu.Lock()
	if o.state == state || o.state == StateShutdown {
		o.mu.Unlock()
		return
	}
	if o.state == StatePaused && state != StatePaused && o.coordinator.IsPaused() {
		// Pipeline progress while paused only updates the state to resume
		// into.
		o.pausedPrior = state
		o.mu.Unlock()
		return
	}
	o.state = state
	callback := o.onStateChange
	o.mu.Unlock()

	logger.Debug("state changed", "state", state.String())
	if callback != nil {
		callback(state)
	}
}

func (o *Orchestrator) shutdown() {
	o.interrupt()
	o.setStateForced(StateShutdown)

	if o.output != nil {
		if err := o.output.StopPlayback(); err != nil {
			logger.Warn("failed to stop playback device", "error", err)
		}
		o.output.Close()
	}
	if o.input != nil {
		o.input.Close()
	}
	logger.Info("conversation loop stopped")
}

func (o *Orchestrator) setStateForced(state ConversationState) {
	o.mu.Lock()
	if o.state == state {
		o.mu.Unlock()
		return
	}
	o.state = state
	callback := o.onStateChange
	o.mu.Unlock()

	if callback != nil {
		callback(state)
	}
}

// History returns a copy of the completed exchanges, oldest first.
func (o *Orchestrator) History() []llms.Exchange {
	return o.historySnapshot()
}

func (o *Orchestrator) historySnapshot() []llms.Exchange {
	o.mu.Lock()
	defer o.mu.Unlock()

	history := make([]llms.Exchange, len(o.history))
	copy(history, o.history)
	return history
}

func (o *Orchestrator) appendHistory(exchange llms.Exchange) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.history = append(o.history, exchange)
}

func (o *Orchestrator) synthesisSettings() (voice string, speed float64) {
	o.mu.Lock()
	defer o.mu.Unlock()

	return o.voiceLocked(), float64(o.speedTenths) / 10
}
