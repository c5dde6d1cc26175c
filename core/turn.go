package orchestration

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/voxloop/voxloop-core/core/llms"
	"github.com/voxloop/voxloop-core/core/texttospeech"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

type turn struct {
	id         string
	generation uint64
	cancel     context.CancelFunc
	done       chan struct{}
}

type turnResult struct {
	generation uint64
	err        error
}

// startTurn launches the per-turn pipeline for one finalized utterance under
// the generation current at call time.
func (o *Orchestrator) startTurn(ctx context.Context, utterance Utterance) {
	generation, cancelled := o.coordinator.Snapshot()

	turnCtx, cancel := context.WithCancel(ctx)
	t := &turn{
		id:         uuid.NewString(),
		generation: generation,
		cancel:     cancel,
		done:       make(chan struct{}),
	}

	o.mu.Lock()
	o.activeTurn = t
	o.mu.Unlock()

	go func() {
		defer cancel()
		defer close(t.done)

		// Bridge the generation's cancellation signal onto the turn context
		// so collaborator calls release promptly on interrupt.
		go func() {
			select {
			case <-cancelled:
				cancel()
			case <-t.done:
			}
		}()

		err := o.runTurn(turnCtx, t, utterance)

		select {
		case o.turnDone <- turnResult{generation: generation, err: err}:
		case <-ctx.Done():
		}
	}()
}

func (o *Orchestrator) runTurn(ctx context.Context, t *turn, utterance Utterance) error {
	ctx, span := tracer.Start(ctx, "process turn")
	defer span.End()
	span.SetAttributes(
		attribute.String("turn.id", t.id),
		attribute.Int64("turn.generation", int64(t.generation)),
		attribute.Int64("turn.utterance_id", int64(utterance.ID)),
		attribute.Float64("turn.utterance_duration", utterance.Duration().Seconds()),
	)

	transcript, err := o.transcribeUtterance(ctx, t, utterance)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	if transcript == "" {
		// Stale or empty; either way there is nothing to reply to and no
		// output was produced, so no bump is needed.
		span.AddEvent("no transcript")
		return nil
	}
	span.SetAttributes(attribute.String("turn.transcript", transcript))

	o.setPipelineState(t.generation, StateGenerating)

	reply, err := o.generateAndSpeak(ctx, t, transcript)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		o.speakSystemErrorPhrase(ctx, t)
		return err
	}

	if o.coordinator.IsCurrent(t.generation) && reply != "" {
		o.appendHistory(llms.Exchange{Prompt: transcript, Reply: reply})
	}

	return nil
}

// transcribeUtterance runs the one-shot transcription. The call itself is not
// abortable, so staleness is applied to the result: a transcript that comes
// back after an interrupt is discarded as if it were empty.
func (o *Orchestrator) transcribeUtterance(ctx context.Context, t *turn, utterance Utterance) (string, error) {
	ctx, span := tracer.Start(ctx, "transcribe utterance")
	defer span.End()

	o.setPipelineState(t.generation, StateTranscribing)

	ctx, cancel := context.WithTimeout(ctx, o.config.transcribeTimeout)
	defer cancel()

	transcript, err := o.transcriber.Transcribe(ctx, utterance.PCM, utterance.SampleRate, o.config.language)
	if !o.coordinator.IsCurrent(t.generation) {
		span.AddEvent("transcription result stale, discarding")
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to transcribe utterance: %w", err)
	}

	return strings.TrimSpace(transcript), nil
}

// generateAndSpeak streams the reply and runs the phrase pipeline: one worker
// segments the token stream into phrases, one synthesizes them in sequence
// with bounded prefetch and submits the audio to the router.
func (o *Orchestrator) generateAndSpeak(ctx context.Context, t *turn, transcript string) (string, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var workerErr error
	workerErrMu := sync.Mutex{}
	addWorkerErr := func(err error) {
		if err == nil {
			return
		}
		workerErrMu.Lock()
		workerErr = errors.Join(workerErr, err)
		workerErrMu.Unlock()
	}

	run := func(name string, f func(context.Context) error) {
		defer func() {
			if recovered := recover(); recovered != nil {
				addWorkerErr(fmt.Errorf("%s worker panicked: %v", name, recovered))
				cancel()
			}
		}()

		if err := f(ctx); err != nil {
			addWorkerErr(fmt.Errorf("%s worker failed: %w", name, err))
			cancel()
		}
	}

	phrases := make(chan Phrase, utteranceQueueCapacity)
	var reply strings.Builder
	var replyMu sync.Mutex

	wg := &sync.WaitGroup{}
	wg.Add(2)
	go func() {
		defer wg.Done()
		run("reply generation", func(ctx context.Context) error {
			defer close(phrases)
			return o.generatePhrases(ctx, t, transcript, phrases, func(chunk string) {
				replyMu.Lock()
				reply.WriteString(chunk)
				replyMu.Unlock()
			})
		})
	}()
	go func() {
		defer wg.Done()
		run("phrase synthesis", func(ctx context.Context) error {
			return o.synthesizePhrases(ctx, t, phrases)
		})
	}()

	wg.Wait()

	replyMu.Lock()
	replyText := reply.String()
	replyMu.Unlock()

	if workerErr != nil {
		return replyText, fmt.Errorf("turn pipeline failed: %w", workerErr)
	}
	return replyText, nil
}

func (o *Orchestrator) generatePhrases(
	ctx context.Context,
	t *turn,
	transcript string,
	phrases chan<- Phrase,
	onChunk func(string),
) error {
	ctx, span := tracer.Start(ctx, "generate reply")
	defer span.End()

	boundary := o.newBoundary()
	seq := 0
	emit := func(text string) bool {
		phrase := Phrase{Generation: t.generation, Seq: seq, Text: text}
		seq++
		select {
		case phrases <- phrase:
			return true
		case <-ctx.Done():
			return false
		}
	}

	stream := o.generator.Generate(ctx, transcript, o.historySnapshot())
	for chunk, err := range stream.Chunks(ctx) {
		if err != nil {
			return fmt.Errorf("reply stream failed: %w", err)
		}
		if !o.coordinator.IsCurrent(t.generation) {
			// Walking away aborts the stream.
			span.AddEvent("generation stale, abandoning stream")
			return nil
		}

		onChunk(chunk)
		for _, text := range boundary.Push(chunk) {
			if !emit(text) {
				return nil
			}
		}
	}

	if !o.coordinator.IsCurrent(t.generation) {
		return nil
	}
	if text, ok := boundary.Flush(); ok {
		emit(text)
	}

	span.SetAttributes(attribute.Int("turn.phrases", seq))
	return nil
}

func (o *Orchestrator) synthesizePhrases(ctx context.Context, t *turn, phrases <-chan Phrase) error {
	ctx, span := tracer.Start(ctx, "synthesize phrases")
	defer span.End()

	for phrase := range phrases {
		if !o.router.WaitBelow(ctx, t.generation, o.config.prefetchSegments) {
			return nil
		}

		if phrase.Seq == 0 {
			o.setPipelineState(t.generation, StateSynthesizing)
		}

		pcm := o.synthesizePhrase(ctx, t, phrase)
		if !o.coordinator.IsCurrent(t.generation) {
			return nil
		}

		o.router.Submit(AudioSegment{Generation: t.generation, Seq: phrase.Seq, PCM: pcm})
	}

	return nil
}

// synthesizePhrase renders one phrase. A failure returns empty audio so the
// segment still advances the sequence; the turn keeps going.
func (o *Orchestrator) synthesizePhrase(ctx context.Context, t *turn, phrase Phrase) []byte {
	ctx, span := tracer.Start(ctx, "synthesize phrase")
	defer span.End()
	span.SetAttributes(attribute.Int("phrase.seq", phrase.Seq))

	text := sanitizeForSpeech(phrase.Text)
	if text == "" {
		return nil
	}

	voice, speed := o.synthesisSettings()

	ctx, cancel := context.WithTimeout(ctx, o.config.synthesizeTimeout)
	defer cancel()

	pcm, err := o.synthesizer.Synthesize(ctx, text,
		texttospeech.WithVoice(voice),
		texttospeech.WithSpeed(speed),
	)
	if err != nil {
		err = fmt.Errorf("failed to synthesize phrase %d: %w", phrase.Seq, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Warn("skipping phrase after synthesis failure",
			"seq", phrase.Seq, "error", err)
		return nil
	}

	span.SetAttributes(attribute.Float64("phrase.audio_duration",
		o.router.encoding.Duration(len(pcm)).Seconds()))
	return pcm
}

// speakSystemErrorPhrase voices the configured apology after a generation
// failure, as the next segment of the failed turn's generation.
func (o *Orchestrator) speakSystemErrorPhrase(ctx context.Context, t *turn) {
	if o.config.systemErrorPhrase == "" || !o.coordinator.IsCurrent(t.generation) {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, o.config.synthesizeTimeout)
	defer cancel()

	voice, speed := o.synthesisSettings()
	pcm, err := o.synthesizer.Synthesize(ctx, o.config.systemErrorPhrase,
		texttospeech.WithVoice(voice),
		texttospeech.WithSpeed(speed),
	)
	if err != nil || !o.coordinator.IsCurrent(t.generation) {
		return
	}

	o.router.Submit(AudioSegment{Generation: t.generation, Seq: o.router.NextSeq(t.generation), PCM: pcm})
}
