package scheduler

import (
	"context"
	"log/slog"
	"time"

	"ttotp/internal/clipboard"
	"ttotp/internal/registry"
	"ttotp/internal/search"

	"github.com/c-pro/geche"
)

const (
	DefaultTick           = time.Second
	DefaultClipboardClear = 30 * time.Second
)

// Notifier receives short, non-fatal user-facing messages.
type Notifier interface {
	Notify(message string)
}

// Renderer consumes one frame per tick or state change. It must not
// mutate registry state; everything it needs is in the frame.
type Renderer interface {
	Render(frame Frame)
}

// Frame is the output boundary toward the presentation layer.
type Frame struct {
	Rows []Row
	// SearchInvalid flags a malformed regex query; the previous
	// visibility state is still in Rows.
	SearchInvalid bool
}

// Row is one entry's renderable state at a point in time.
type Row struct {
	ID        string
	Code      string // current code if revealed, else the mask
	Remaining float64
	Period    int
	Name      string
	Highlight []int
	Visible   bool
}

type actionKind int

const (
	actReveal actionKind = iota
	actMask
	actCopy
	actSearch
	actActivity
	actQuit
)

type action struct {
	kind  actionKind
	id    string
	query string
	regex bool
}

type Config struct {
	Registry  *registry.Registry
	Clipboard clipboard.Clipboard
	Notifier  Notifier
	Renderer  Renderer

	// AutoExit terminates Run after this much inactivity. Zero
	// disables the timer entirely.
	AutoExit time.Duration

	// Test seams; zero values select the defaults.
	Tick           time.Duration
	ClipboardClear time.Duration
}

// Scheduler drives the periodic ticks and user actions. All entry
// mutation happens on the single goroutine inside Run; the exported
// action methods only post messages to it.
type Scheduler struct {
	reg       *registry.Registry
	clip      clipboard.Clipboard
	notifier  Notifier
	renderer  Renderer
	autoExit  time.Duration
	tick      time.Duration
	clipClear time.Duration

	// Per-generation code cache, invalidated on rollover.
	codes geche.Geche[string, string]

	actions chan action

	copied        string
	searchInvalid bool

	now func() time.Time
}

func New(cfg Config) *Scheduler {
	s := &Scheduler{
		reg:       cfg.Registry,
		clip:      cfg.Clipboard,
		notifier:  cfg.Notifier,
		renderer:  cfg.Renderer,
		autoExit:  cfg.AutoExit,
		tick:      cfg.Tick,
		clipClear: cfg.ClipboardClear,
		codes:     geche.NewMapCache[string, string](),
		actions:   make(chan action, 64),
		now:       time.Now,
	}
	if s.tick <= 0 {
		s.tick = DefaultTick
	}
	if s.clipClear <= 0 {
		s.clipClear = DefaultClipboardClear
	}
	if s.notifier == nil {
		s.notifier = noopNotifier{}
	}
	if s.renderer == nil {
		s.renderer = noopRenderer{}
	}
	return s
}

// Reveal computes and shows the entry's current code. It stays shown
// until the next generation rollover or an explicit Mask.
func (s *Scheduler) Reveal(id string) { s.post(action{kind: actReveal, id: id}) }

// Mask hides the entry's code again, e.g. on loss of focus.
func (s *Scheduler) Mask(id string) { s.post(action{kind: actMask, id: id}) }

// Copy puts the entry's current code on the clipboard and (re)arms
// the single clipboard-clear timer.
func (s *Scheduler) Copy(id string) { s.post(action{kind: actCopy, id: id}) }

// SetSearch applies a new query, fuzzy or literal-regex.
func (s *Scheduler) SetSearch(query string, regex bool) {
	s.post(action{kind: actSearch, query: query, regex: regex})
}

// Activity records qualifying user input, resetting the inactivity
// timers if auto-exit is configured.
func (s *Scheduler) Activity() { s.post(action{kind: actActivity}) }

// Quit ends Run after pending actions drain.
func (s *Scheduler) Quit() { s.post(action{kind: actQuit}) }

func (s *Scheduler) post(a action) {
	select {
	case s.actions <- a:
	default:
		// The loop is gone or badly behind; dropping beats blocking
		// the input reader.
		slog.Warn("scheduler action dropped", "kind", int(a.kind))
	}
}

// Run owns all entry state until the context is cancelled, Quit is
// posted, or the inactivity exit timer fires.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	// One pending timer per purpose; rearm resets, never duplicates.
	clipTimer := newStoppedTimer()
	defer clipTimer.Stop()
	exitTimer := newStoppedTimer()
	defer exitTimer.Stop()
	warnTimer := newStoppedTimer()
	defer warnTimer.Stop()

	s.recordActivity(exitTimer, warnTimer)

	now := s.now()
	s.refresh(now)
	s.render(now)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-ticker.C:
			now := s.now()
			s.refresh(now)
			s.render(now)

		case <-clipTimer.C:
			s.clearClipboard()

		case <-warnTimer.C:
			s.notifier.Notify("Exiting soon due to inactivity")

		case <-exitTimer.C:
			slog.Info("inactivity timeout reached, exiting")
			return nil

		case act := <-s.actions:
			now := s.now()
			switch act.kind {
			case actQuit:
				return nil
			case actReveal:
				s.reveal(act.id, now)
			case actMask:
				s.mask(act.id)
			case actCopy:
				s.copyCode(act.id, now, clipTimer)
			case actSearch:
				s.applySearch(act.query, act.regex)
			case actActivity:
				// Nothing beyond the timer reset below.
			}
			s.recordActivity(exitTimer, warnTimer)
			s.render(now)
		}
	}
}

// refresh updates every entry's generation, masking any revealed code
// that rolled over.
func (s *Scheduler) refresh(now time.Time) {
	for _, e := range s.reg.All() {
		s.rollover(e, now)
	}
}

func (s *Scheduler) rollover(e *registry.Entry, now time.Time) {
	if gen := e.Spec.Generation(now); gen != e.Generation {
		e.Generation = gen
		e.Revealed = false
		e.Code = ""
		_ = s.codes.Del(e.ID)
	}
}

// codeFor returns the entry's current code, cached per generation.
func (s *Scheduler) codeFor(e *registry.Entry, now time.Time) string {
	s.rollover(e, now)
	if code, err := s.codes.Get(e.ID); err == nil {
		return code
	}
	code := e.Spec.Code(now)
	s.codes.Set(e.ID, code)
	return code
}

func (s *Scheduler) reveal(id string, now time.Time) {
	e, err := s.reg.Get(id)
	if err != nil {
		slog.Warn("reveal for unknown entry", "id", id)
		return
	}
	e.Code = s.codeFor(e, now)
	e.Revealed = true
}

func (s *Scheduler) mask(id string) {
	e, err := s.reg.Get(id)
	if err != nil {
		slog.Warn("mask for unknown entry", "id", id)
		return
	}
	e.Revealed = false
	e.Code = ""
}

func (s *Scheduler) copyCode(id string, now time.Time, clipTimer *time.Timer) {
	e, err := s.reg.Get(id)
	if err != nil {
		slog.Warn("copy for unknown entry", "id", id)
		return
	}

	code := s.codeFor(e, now)
	if err := s.clip.Copy(code); err != nil {
		slog.Error("clipboard write failed", "error", err)
		s.notifier.Notify("Copy failed")
		return
	}
	s.copied = code
	rearm(clipTimer, s.clipClear)
	s.notifier.Notify("Code copied")
}

// clearClipboard fires at most once per copy. It tolerates races with
// external writers: content replaced since the copy is left alone.
func (s *Scheduler) clearClipboard() {
	if s.copied == "" {
		return
	}
	current, err := s.clip.Paste()
	if err != nil {
		slog.Warn("clipboard read failed", "error", err)
		return
	}
	if current != s.copied {
		return
	}
	if err := s.clip.Copy(""); err != nil {
		slog.Warn("clipboard clear failed", "error", err)
		return
	}
	s.notifier.Notify("Clipboard cleared")
}

func (s *Scheduler) applySearch(query string, regex bool) {
	if regex {
		if err := search.FilterRegexp(s.reg, query); err != nil {
			s.searchInvalid = true
			return
		}
		s.searchInvalid = false
		return
	}
	search.Filter(s.reg, query)
	s.searchInvalid = false
}

func (s *Scheduler) recordActivity(exitTimer, warnTimer *time.Timer) {
	if s.autoExit <= 0 {
		return
	}
	rearm(exitTimer, s.autoExit)
	rearm(warnTimer, warnAfter(s.autoExit))
}

func (s *Scheduler) render(now time.Time) {
	rows := make([]Row, 0, s.reg.Len())
	for _, e := range s.reg.All() {
		code := e.Spec.Mask()
		if e.Revealed {
			code = e.Code
		}
		rows = append(rows, Row{
			ID:        e.ID,
			Code:      code,
			Remaining: e.Spec.Remaining(now),
			Period:    e.Spec.Period,
			Name:      e.DisplayName(),
			Highlight: e.Highlight,
			Visible:   e.Visible,
		})
	}
	s.renderer.Render(Frame{Rows: rows, SearchInvalid: s.searchInvalid})
}

// warnAfter places the inactivity warning at max(timeout/2, timeout-10s).
func warnAfter(timeout time.Duration) time.Duration {
	warn := timeout - 10*time.Second
	if half := timeout / 2; half > warn {
		warn = half
	}
	return warn
}

func newStoppedTimer() *time.Timer {
	t := time.NewTimer(time.Hour)
	if !t.Stop() {
		<-t.C
	}
	return t
}

func rearm(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}

type noopNotifier struct{}

func (noopNotifier) Notify(string) {}

type noopRenderer struct{}

func (noopRenderer) Render(Frame) {}
