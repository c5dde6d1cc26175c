package orchestration

import "strings"

// BoundaryDetector splits streamed reply text into speakable phrases. It is
// deliberately free of any concurrency so the heuristic can be tuned and
// tested on its own.
type BoundaryDetector interface {
	// Push appends a chunk of streamed text and returns any phrases it
	// completed, in order.
	Push(chunk string) []string
	// Flush drains whatever remains at stream end. ok is false when the
	// remainder is empty after trimming.
	Flush() (phrase string, ok bool)
}

// punctuationBoundary emits a phrase when the buffer crosses a newline, ends
// in a sentence terminal past a minimum length, or grows past a maximum
// length without either (forced flush). The minimum keeps abbreviations like
// "Dr." from splitting a sentence apart.
type punctuationBoundary struct {
	minLen int
	maxLen int
	buf    []rune
}

func newPunctuationBoundary(minLen, maxLen int) *punctuationBoundary {
	return &punctuationBoundary{minLen: minLen, maxLen: maxLen}
}

func (b *punctuationBoundary) Push(chunk string) []string {
	b.buf = append(b.buf, []rune(chunk)...)

	var phrases []string
	for {
		if i := indexRune(b.buf, '\n'); i >= 0 {
			phrases = appendPhrase(phrases, b.buf[:i+1])
			b.buf = b.buf[i+1:]
			continue
		}

		if len(b.buf) >= b.maxLen {
			phrases = appendPhrase(phrases, b.buf[:b.maxLen])
			b.buf = b.buf[b.maxLen:]
			continue
		}

		if len(b.buf) >= b.minLen && isSentenceTerminal(b.buf[len(b.buf)-1]) {
			phrases = appendPhrase(phrases, b.buf)
			b.buf = nil
		}

		return phrases
	}
}

func (b *punctuationBoundary) Flush() (string, bool) {
	phrase := strings.TrimSpace(string(b.buf))
	b.buf = nil
	return phrase, phrase != ""
}

func appendPhrase(phrases []string, buf []rune) []string {
	if phrase := strings.TrimSpace(string(buf)); phrase != "" {
		phrases = append(phrases, phrase)
	}
	return phrases
}

func indexRune(buf []rune, r rune) int {
	for i := range buf {
		if buf[i] == r {
			return i
		}
	}
	return -1
}

func isSentenceTerminal(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

// sanitizeForSpeech strips characters that make synthesis engines stumble:
// markup leftovers are removed and line breaks collapse to spaces.
func sanitizeForSpeech(text string) string {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case '~', '*', '&':
			return -1
		case '\n', '\r', '\t':
			return ' '
		}
		return r
	}, text)
	return strings.TrimSpace(cleaned)
}
