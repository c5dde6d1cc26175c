package orchestration

import (
	"testing"
	"time"
)

func TestSpaceTogglesPauseAndResume(t *testing.T) {
	c := newInputController(time.Second, 150*time.Millisecond)
	now := time.Now()

	command, ok := c.Translate(KeyEvent{Key: KeySpace, Time: now})
	if !ok || command != CommandPause {
		t.Fatalf("expected first space to pause, got %v (ok=%t)", command, ok)
	}

	command, ok = c.Translate(KeyEvent{Key: KeySpace, Time: now.Add(time.Second)})
	if !ok || command != CommandResume {
		t.Fatalf("expected second space to resume, got %v (ok=%t)", command, ok)
	}
}

func TestDoubleEscapeEscalatesToInterrupt(t *testing.T) {
	c := newInputController(time.Second, 150*time.Millisecond)
	now := time.Now()

	command, ok := c.Translate(KeyEvent{Key: KeyEscape, Time: now})
	if !ok || command != CommandStopPlayback {
		t.Fatalf("expected single escape to stop playback, got %v (ok=%t)", command, ok)
	}

	command, ok = c.Translate(KeyEvent{Key: KeyEscape, Time: now.Add(500 * time.Millisecond)})
	if !ok || command != CommandInterrupt {
		t.Fatalf("expected double escape to interrupt, got %v (ok=%t)", command, ok)
	}

	// The escalation window resets after firing.
	command, ok = c.Translate(KeyEvent{Key: KeyEscape, Time: now.Add(800 * time.Millisecond)})
	if !ok || command != CommandStopPlayback {
		t.Fatalf("expected escape after interrupt to stop playback again, got %v (ok=%t)", command, ok)
	}
}

func TestEscapeOutsideWindowStaysStopPlayback(t *testing.T) {
	c := newInputController(time.Second, 150*time.Millisecond)
	now := time.Now()

	c.Translate(KeyEvent{Key: KeyEscape, Time: now})
	command, ok := c.Translate(KeyEvent{Key: KeyEscape, Time: now.Add(2 * time.Second)})
	if !ok || command != CommandStopPlayback {
		t.Fatalf("expected late escape to stop playback, got %v (ok=%t)", command, ok)
	}
}

func TestHeldArrowKeysAreDebounced(t *testing.T) {
	c := newInputController(time.Second, 150*time.Millisecond)
	now := time.Now()

	if _, ok := c.Translate(KeyEvent{Key: KeyUp, Time: now}); !ok {
		t.Fatalf("expected first arrow press to pass")
	}
	if _, ok := c.Translate(KeyEvent{Key: KeyUp, Time: now.Add(50 * time.Millisecond)}); ok {
		t.Fatalf("expected key-repeat within debounce interval to be swallowed")
	}
	if _, ok := c.Translate(KeyEvent{Key: KeyDown, Time: now.Add(60 * time.Millisecond)}); ok {
		t.Fatalf("expected other arrow within debounce interval to be swallowed")
	}

	command, ok := c.Translate(KeyEvent{Key: KeyUp, Time: now.Add(200 * time.Millisecond)})
	if !ok || command != CommandSpeedUp {
		t.Fatalf("expected arrow press after debounce to pass, got %v (ok=%t)", command, ok)
	}
}

func TestArrowKeyTable(t *testing.T) {
	c := newInputController(time.Second, 0)
	now := time.Now()

	cases := []struct {
		key  Key
		want ControlCommand
	}{
		{KeyUp, CommandSpeedUp},
		{KeyDown, CommandSpeedDown},
		{KeyRight, CommandVoiceNext},
		{KeyLeft, CommandVoicePrev},
		{KeyQuit, CommandShutdown},
	}
	for i, tc := range cases {
		command, ok := c.Translate(KeyEvent{Key: tc.key, Time: now.Add(time.Duration(i) * time.Second)})
		if !ok || command != tc.want {
			t.Fatalf("expected key %v to map to %v, got %v (ok=%t)", tc.key, tc.want, command, ok)
		}
	}
}

func TestUnknownKeyIsSwallowed(t *testing.T) {
	c := newInputController(time.Second, 150*time.Millisecond)

	if _, ok := c.Translate(KeyEvent{Key: KeyNone, Time: time.Now()}); ok {
		t.Fatalf("expected unknown key to be swallowed")
	}
}
