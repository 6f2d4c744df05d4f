package scheduler

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"ttotp/internal/otp"
	"ttotp/internal/registry"

	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type fakeClipboard struct {
	mu      sync.Mutex
	content string
}

func (c *fakeClipboard) Copy(text string) error {
	c.mu.Lock()
	c.content = text
	c.mu.Unlock()
	return nil
}

func (c *fakeClipboard) Paste() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.content, nil
}

type chanRenderer struct{ ch chan Frame }

func (r chanRenderer) Render(f Frame) {
	select {
	case r.ch <- f:
	default:
	}
}

type chanNotifier struct{ ch chan string }

func (n chanNotifier) Notify(msg string) {
	select {
	case n.ch <- msg:
	default:
	}
}

type harness struct {
	sched   *Scheduler
	clock   *fakeClock
	clip    *fakeClipboard
	frames  chan Frame
	notices chan string
	done    chan error
	stopped bool
	cancel  context.CancelFunc
}

func newHarness(t *testing.T, cfg Config, names ...string) *harness {
	t.Helper()

	specs := make([]otp.Spec, len(names))
	for i, name := range names {
		specs[i] = otp.Spec{
			Secret: []byte("12345678901234567890"),
			Issuer: "issuer",
			Name:   name,
			Digits: 6,
			Period: 30,
		}
	}

	h := &harness{
		clock:   &fakeClock{t: time.Unix(1700000000, 0)},
		clip:    &fakeClipboard{},
		frames:  make(chan Frame, 256),
		notices: make(chan string, 64),
		done:    make(chan error, 1),
	}

	cfg.Registry = registry.New(specs)
	cfg.Clipboard = h.clip
	cfg.Renderer = chanRenderer{ch: h.frames}
	cfg.Notifier = chanNotifier{ch: h.notices}
	if cfg.Tick == 0 {
		cfg.Tick = 5 * time.Millisecond
	}

	h.sched = New(cfg)
	h.sched.now = h.clock.Now

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() { h.done <- h.sched.Run(ctx) }()

	t.Cleanup(func() {
		if h.stopped {
			return
		}
		cancel()
		select {
		case <-h.done:
		case <-time.After(time.Second):
			t.Error("scheduler did not stop")
		}
	})

	return h
}

// waitDone blocks until Run returns and hands back its error.
func (h *harness) waitDone(t *testing.T) error {
	t.Helper()
	select {
	case err := <-h.done:
		h.stopped = true
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
		return nil
	}
}

func (h *harness) entry(i int) *registry.Entry {
	return h.sched.reg.All()[i]
}

func (h *harness) waitFrame(t *testing.T, pred func(Frame) bool) Frame {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case f := <-h.frames:
			if pred(f) {
				return f
			}
		case <-deadline:
			t.Fatal("timed out waiting for frame")
			return Frame{}
		}
	}
}

func (h *harness) waitNotice(t *testing.T, want string) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case msg := <-h.notices:
			if msg == want {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for notification %q", want)
		}
	}
}

func (h *harness) clipContent() string {
	s, _ := h.clip.Paste()
	return s
}

func TestTickMasksByDefault(t *testing.T) {
	h := newHarness(t, Config{}, "a")

	f := h.waitFrame(t, func(f Frame) bool { return len(f.Rows) == 1 })
	require.Equal(t, "******", f.Rows[0].Code)
	require.True(t, f.Rows[0].Visible)
	require.InDelta(t, 10.0, f.Rows[0].Remaining, 0.01) // 1700000000 is 20s into its window
}

func TestRevealAndRollover(t *testing.T) {
	h := newHarness(t, Config{}, "a")

	e := h.entry(0)
	want := e.Spec.Code(h.clock.Now())

	h.sched.Reveal(e.ID)
	h.waitFrame(t, func(f Frame) bool { return f.Rows[0].Code == want })

	// Still revealed on later ticks within the same generation.
	h.waitFrame(t, func(f Frame) bool { return f.Rows[0].Code == want })

	// A generation rollover forces the mask back.
	h.clock.Advance(30 * time.Second)
	h.waitFrame(t, func(f Frame) bool { return f.Rows[0].Code == "******" })
}

func TestMaskOnFocusLoss(t *testing.T) {
	h := newHarness(t, Config{}, "a")

	e := h.entry(0)
	want := e.Spec.Code(h.clock.Now())

	h.sched.Reveal(e.ID)
	h.waitFrame(t, func(f Frame) bool { return f.Rows[0].Code == want })

	h.sched.Mask(e.ID)
	h.waitFrame(t, func(f Frame) bool { return f.Rows[0].Code == "******" })
}

func TestCopyAndClear(t *testing.T) {
	h := newHarness(t, Config{ClipboardClear: 50 * time.Millisecond}, "a")

	e := h.entry(0)
	want := e.Spec.Code(h.clock.Now())

	h.sched.Copy(e.ID)
	h.waitNotice(t, "Code copied")
	require.Equal(t, want, h.clipContent())

	h.waitNotice(t, "Clipboard cleared")
	require.Equal(t, "", h.clipContent())
}

func TestClearSkippedWhenClipboardChanged(t *testing.T) {
	h := newHarness(t, Config{ClipboardClear: 50 * time.Millisecond}, "a")

	e := h.entry(0)
	h.sched.Copy(e.ID)
	h.waitNotice(t, "Code copied")

	// Someone else wrote the clipboard before the timer fired.
	require.NoError(t, h.clip.Copy("external content"))

	time.Sleep(150 * time.Millisecond)
	require.Equal(t, "external content", h.clipContent())

	select {
	case msg := <-h.notices:
		require.NotEqual(t, "Clipboard cleared", msg)
	default:
	}
}

func TestCopyRearmsSingleClearTimer(t *testing.T) {
	h := newHarness(t, Config{ClipboardClear: 120 * time.Millisecond}, "a")

	e := h.entry(0)
	h.sched.Copy(e.ID)
	h.waitNotice(t, "Code copied")

	time.Sleep(70 * time.Millisecond)
	h.sched.Copy(e.ID)
	h.waitNotice(t, "Code copied")

	// The first timer was reset, not duplicated: nothing clears at the
	// original 120ms mark.
	time.Sleep(80 * time.Millisecond)
	require.NotEqual(t, "", h.clipContent())

	h.waitNotice(t, "Clipboard cleared")
	require.Equal(t, "", h.clipContent())
}

func TestSearch(t *testing.T) {
	h := newHarness(t, Config{}, "github", "gitlab", "email")

	h.sched.SetSearch("hub", false)
	f := h.waitFrame(t, func(f Frame) bool {
		return len(f.Rows) == 3 && f.Rows[0].Visible && !f.Rows[1].Visible && !f.Rows[2].Visible
	})
	require.NotEmpty(t, f.Rows[0].Highlight)

	t.Run("InvalidRegexpKeepsVisibility", func(t *testing.T) {
		h.sched.SetSearch("(unclosed", true)
		f := h.waitFrame(t, func(f Frame) bool { return f.SearchInvalid })
		require.True(t, f.Rows[0].Visible)
		require.False(t, f.Rows[1].Visible)
		require.False(t, f.Rows[2].Visible)
	})

	t.Run("RegexpFilter", func(t *testing.T) {
		h.sched.SetSearch("git", true)
		h.waitFrame(t, func(f Frame) bool {
			return !f.SearchInvalid && f.Rows[0].Visible && f.Rows[1].Visible && !f.Rows[2].Visible
		})
	})

	t.Run("EmptyRestoresAll", func(t *testing.T) {
		h.sched.SetSearch("", false)
		h.waitFrame(t, func(f Frame) bool {
			return f.Rows[0].Visible && f.Rows[1].Visible && f.Rows[2].Visible
		})
	})
}

func TestAutoExit(t *testing.T) {
	h := newHarness(t, Config{AutoExit: 100 * time.Millisecond}, "a")

	h.waitNotice(t, "Exiting soon due to inactivity")
	require.NoError(t, h.waitDone(t))
}

func TestActivityResetsExitTimer(t *testing.T) {
	h := newHarness(t, Config{AutoExit: 200 * time.Millisecond}, "a")

	// Keep poking it for well past the timeout.
	for i := 0; i < 6; i++ {
		time.Sleep(80 * time.Millisecond)
		h.sched.Activity()
	}

	select {
	case <-h.done:
		h.stopped = true
		t.Fatal("scheduler exited despite activity")
	default:
	}
}

func TestQuit(t *testing.T) {
	h := newHarness(t, Config{}, "a")

	h.sched.Quit()
	require.NoError(t, h.waitDone(t))
}

func TestWarnAfter(t *testing.T) {
	tests := []struct {
		timeout time.Duration
		want    time.Duration
	}{
		{60 * time.Second, 50 * time.Second}, // timeout-10 wins
		{12 * time.Second, 6 * time.Second},  // timeout/2 wins
		{20 * time.Second, 10 * time.Second}, // tie
	}
	for _, tc := range tests {
		if got := warnAfter(tc.timeout); got != tc.want {
			t.Errorf("warnAfter(%v) = %v, want %v", tc.timeout, got, tc.want)
		}
	}
}

func TestRowNameFormat(t *testing.T) {
	h := newHarness(t, Config{}, "alice")
	f := h.waitFrame(t, func(f Frame) bool { return len(f.Rows) == 1 })
	require.True(t, strings.HasPrefix(f.Rows[0].Name, "alice / "))
}
