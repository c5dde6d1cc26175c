package orchestration

import "time"

// AudioFrame is one device callback's worth of capture audio. Frames are
// ephemeral; the assembler copies what it keeps.
type AudioFrame struct {
	PCM        []byte
	SampleRate int
	Timestamp  time.Time
}

// Utterance is one finalized span of speech bounded by silence.
type Utterance struct {
	ID         uint64
	PCM        []byte
	SampleRate int
	Start      time.Time
	End        time.Time
}

func (u Utterance) Duration() time.Duration {
	return u.End.Sub(u.Start)
}

// Phrase is one boundary-delimited unit of reply text headed for synthesis.
// Seq is contiguous from 0 within a generation.
type Phrase struct {
	Generation uint64
	Seq        int
	Text       string
}

// AudioSegment is the synthesized audio for one phrase. An empty PCM slice is
// a valid segment; it advances the sequence without producing sound, which is
// how a failed phrase is skipped.
type AudioSegment struct {
	Generation uint64
	Seq        int
	PCM        []byte
}
