package orchestration

import (
	"sync"
	"time"
)

type ControlCommand int

const (
	CommandPause ControlCommand = iota
	CommandResume
	CommandStopPlayback
	CommandInterrupt
	CommandSpeedUp
	CommandSpeedDown
	CommandVoiceNext
	CommandVoicePrev
	CommandShutdown
)

func (c ControlCommand) String() string {
	switch c {
	case CommandPause:
		return "pause"
	case CommandResume:
		return "resume"
	case CommandStopPlayback:
		return "stop-playback"
	case CommandInterrupt:
		return "interrupt"
	case CommandSpeedUp:
		return "speed-up"
	case CommandSpeedDown:
		return "speed-down"
	case CommandVoiceNext:
		return "voice-next"
	case CommandVoicePrev:
		return "voice-prev"
	case CommandShutdown:
		return "shutdown"
	}
	return "unknown"
}

// Key is the core's own key shape; the terminal front end translates its
// framework events into these before handing them over.
type Key int

const (
	KeyNone Key = iota
	KeySpace
	KeyEscape
	KeyUp
	KeyDown
	KeyLeft
	KeyRight
	KeyQuit
)

type KeyEvent struct {
	Key  Key
	Time time.Time
}

// InputController maps key events onto control commands through a static
// table. It owns the pause toggle, the double-escape escalation window, and
// a hold debounce so key repeat cannot flood speed/voice changes.
type InputController struct {
	mu sync.Mutex

	escapeWindow time.Duration
	debounce     time.Duration

	paused     bool
	lastEscape time.Time
	lastAdjust time.Time
}

func newInputController(escapeWindow, debounce time.Duration) *InputController {
	return &InputController{escapeWindow: escapeWindow, debounce: debounce}
}

// Translate maps one key event to a command. ok is false when the event is
// swallowed (unknown key, or a debounced repeat).
func (c *InputController) Translate(event KeyEvent) (ControlCommand, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := event.Time
	if now.IsZero() {
		now = time.Now()
	}

	switch event.Key {
	case KeySpace:
		c.paused = !c.paused
		if c.paused {
			return CommandPause, true
		}
		return CommandResume, true

	case KeyEscape:
		if !c.lastEscape.IsZero() && now.Sub(c.lastEscape) <= c.escapeWindow {
			c.lastEscape = time.Time{}
			return CommandInterrupt, true
		}
		c.lastEscape = now
		return CommandStopPlayback, true

	case KeyUp:
		return c.adjust(now, CommandSpeedUp)
	case KeyDown:
		return c.adjust(now, CommandSpeedDown)
	case KeyRight:
		return c.adjust(now, CommandVoiceNext)
	case KeyLeft:
		return c.adjust(now, CommandVoicePrev)

	case KeyQuit:
		return CommandShutdown, true
	}

	return 0, false
}

func (c *InputController) adjust(now time.Time, command ControlCommand) (ControlCommand, bool) {
	if !c.lastAdjust.IsZero() && now.Sub(c.lastAdjust) < c.debounce {
		return 0, false
	}
	c.lastAdjust = now
	return command, true
}
