package audio

import "time"

const (
	DefaultSampleRate = 16000
	DefaultFormat     = "linear16"
)

func GetDefaultEncodingInfo() EncodingInfo {
	return EncodingInfo{SampleRate: DefaultSampleRate, Format: EncodingLinear16}
}

type EncodingInfo struct {
	SampleRate int
	Format     encodingFormat
}

func (e EncodingInfo) IsZero() bool {
	return e.SampleRate == 0 || e.Format.Name() == ""
}

func (e EncodingInfo) SilenceValue() byte {
	switch e.Format {
	case EncodingALaw:
		return 0x55
	case EncodingMulaw:
		return 0xFF
	}

	return 0
}

// Duration reports how long the given number of PCM bytes play for.
func (e EncodingInfo) Duration(numBytes int) time.Duration {
	byteRate := e.SampleRate * e.Format.ByteSize()
	if byteRate <= 0 {
		return 0
	}
	return time.Duration(float64(numBytes) / float64(byteRate) * float64(time.Second))
}

// Bytes reports how many PCM bytes cover the given duration, rounded down to
// a whole sample.
func (e EncodingInfo) Bytes(d time.Duration) int {
	byteRate := e.SampleRate * e.Format.ByteSize()
	if byteRate <= 0 {
		return 0
	}
	n := int(float64(d) / float64(time.Second) * float64(byteRate))
	return n - n%e.Format.ByteSize()
}

type encodingFormat string

func (e encodingFormat) Name() string {
	return string(e)
}

func (e encodingFormat) ByteSize() int {
	switch e {
	case EncodingMulaw, EncodingALaw:
		return 1
	case EncodingLinear16:
		return 2
	}
	return -1
}

const (
	EncodingMulaw    encodingFormat = "mulaw"
	EncodingALaw     encodingFormat = "alaw"
	EncodingLinear16 encodingFormat = "linear16"
)
