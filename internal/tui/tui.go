package tui

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"ttotp/internal/scheduler"

	"golang.org/x/term"
)

const barWidth = 20

// Focus targets form a small closed set instead of inspecting
// "whatever is focused" at runtime.
type focusTarget interface{ isFocus() }

type searchField struct{}

// entryRow indexes into the currently visible rows, not the registry.
type entryRow struct{ index int }

func (searchField) isFocus() {}
func (entryRow) isFocus()    {}

// Actions is the scheduler surface the UI drives.
type Actions interface {
	Reveal(id string)
	Mask(id string)
	Copy(id string)
	SetSearch(query string, regex bool)
	Activity()
	Quit()
}

// UI is a minimal raw-terminal presenter. It implements the
// scheduler's Renderer and Notifier boundaries and posts user actions
// back; it never touches entry state directly.
type UI struct {
	sched Actions
	in    *os.File
	out   io.Writer

	mu        sync.Mutex
	frame     scheduler.Frame
	focus     focusTarget
	query     []rune
	regexMode bool
	status    string
}

func New(in *os.File, out io.Writer) *UI {
	return &UI{
		in:    in,
		out:   out,
		focus: entryRow{index: 0},
	}
}

// Bind attaches the action sink. Must happen before Run; the split
// exists because the scheduler needs the UI as its renderer first.
func (ui *UI) Bind(sched Actions) {
	ui.sched = sched
}

// Render stores the frame and redraws. Called from the scheduler
// goroutine; the frame is a snapshot, safe to keep.
func (ui *UI) Render(frame scheduler.Frame) {
	ui.mu.Lock()
	defer ui.mu.Unlock()
	ui.frame = frame
	ui.draw()
}

// Notify puts a message on the status line until the next one.
func (ui *UI) Notify(message string) {
	ui.mu.Lock()
	defer ui.mu.Unlock()
	ui.status = message
	ui.draw()
}

// Run owns the terminal until the context is cancelled or the user
// quits. The key-reader goroutine may outlive Run blocked in a read;
// it holds nothing but the channel and dies with the process.
func (ui *UI) Run(ctx context.Context) error {
	fd := int(ui.in.Fd())
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return fmt.Errorf("entering raw mode: %w", err)
	}
	defer func() {
		_ = term.Restore(fd, oldState)
		fmt.Fprint(ui.out, "\x1b[?25h\x1b[2J\x1b[H")
	}()
	fmt.Fprint(ui.out, "\x1b[?25l")

	keys := make(chan key, 64)
	go ui.readKeys(keys)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case k, ok := <-keys:
			if !ok {
				ui.sched.Quit()
				return nil
			}
			if quit := ui.handleKey(k); quit {
				ui.sched.Quit()
				return nil
			}
		}
	}
}

func (ui *UI) readKeys(keys chan<- key) {
	defer close(keys)
	buf := make([]byte, 256)
	for {
		n, err := ui.in.Read(buf)
		if err != nil {
			if err != io.EOF {
				slog.Warn("terminal read failed", "error", err)
			}
			return
		}
		for _, k := range decodeKeys(buf[:n]) {
			keys <- k
		}
	}
}

// handleKey dispatches on the focus target. It reports whether the
// user asked to quit.
func (ui *UI) handleKey(k key) bool {
	ui.mu.Lock()
	defer ui.mu.Unlock()

	if k.kind == keyCtrlC {
		return true
	}

	switch f := ui.focus.(type) {
	case searchField:
		ui.handleSearchKey(k)
	case entryRow:
		return ui.handleEntryKey(f, k)
	}
	ui.draw()
	return false
}

func (ui *UI) handleSearchKey(k key) {
	switch k.kind {
	case keyRune:
		ui.query = append(ui.query, k.r)
		ui.pushQuery()
	case keyBackspace:
		if len(ui.query) > 0 {
			ui.query = ui.query[:len(ui.query)-1]
			ui.pushQuery()
		}
	case keyCtrlR:
		ui.regexMode = !ui.regexMode
		ui.pushQuery()
	case keyEscape:
		ui.query = nil
		ui.pushQuery()
		ui.focus = entryRow{index: 0}
	case keyEnter:
		ui.focus = entryRow{index: 0}
	default:
		ui.sched.Activity()
	}
}

func (ui *UI) handleEntryKey(f entryRow, k key) bool {
	switch k.kind {
	case keyUp:
		ui.moveFocus(f, -1)
	case keyDown:
		ui.moveFocus(f, +1)
	case keyRune:
		switch k.r {
		case 'q':
			return true
		case 's':
			if id, ok := ui.focusedID(f); ok {
				ui.sched.Reveal(id)
			}
		case 'c':
			if id, ok := ui.focusedID(f); ok {
				ui.sched.Copy(id)
			}
		case '/':
			ui.focus = searchField{}
			ui.sched.Activity()
		default:
			ui.sched.Activity()
		}
	default:
		ui.sched.Activity()
	}
	ui.draw()
	return false
}

// moveFocus steps between visible rows, masking the row losing focus.
func (ui *UI) moveFocus(f entryRow, delta int) {
	visible := ui.visibleRows()
	if len(visible) == 0 {
		ui.sched.Activity()
		return
	}

	if id, ok := ui.focusedID(f); ok {
		ui.sched.Mask(id)
	}

	next := f.index + delta
	if next < 0 {
		next = 0
	}
	if next >= len(visible) {
		next = len(visible) - 1
	}
	ui.focus = entryRow{index: next}
	ui.sched.Activity()
}

func (ui *UI) focusedID(f entryRow) (string, bool) {
	visible := ui.visibleRows()
	if f.index < 0 || f.index >= len(visible) {
		return "", false
	}
	return visible[f.index].ID, true
}

func (ui *UI) visibleRows() []scheduler.Row {
	var rows []scheduler.Row
	for _, row := range ui.frame.Rows {
		if row.Visible {
			rows = append(rows, row)
		}
	}
	return rows
}

func (ui *UI) pushQuery() {
	ui.sched.SetSearch(string(ui.query), ui.regexMode)
}

// draw repaints the whole screen. Caller holds ui.mu.
func (ui *UI) draw() {
	var b bytes.Buffer
	b.WriteString("\x1b[H\x1b[2J")

	mode := ""
	if ui.regexMode {
		mode = " [regex]"
	}
	marker := " "
	if _, ok := ui.focus.(searchField); ok {
		marker = ">"
	}
	b.WriteString(fmt.Sprintf("%s Search%s: %s", marker, mode, string(ui.query)))
	if ui.frame.SearchInvalid {
		b.WriteString(" \x1b[31m<invalid expression>\x1b[0m")
	}
	b.WriteString("\r\n\r\n")

	focusIdx := -1
	if f, ok := ui.focus.(entryRow); ok {
		focusIdx = f.index
	}

	i := 0
	for _, row := range ui.frame.Rows {
		if !row.Visible {
			continue
		}
		line := fmt.Sprintf(" %-10s %s %s", row.Code, progressBar(row.Remaining, row.Period), highlightName(row.Name, row.Highlight))
		if i == focusIdx {
			line = "\x1b[7m" + line + "\x1b[0m"
		}
		b.WriteString(line)
		b.WriteString("\r\n")
		i++
	}

	b.WriteString("\r\n")
	if ui.status != "" {
		b.WriteString(" " + ui.status + "\r\n")
	}
	b.WriteString(" \x1b[2ms show  c copy  / search  ^R regex  q quit\x1b[0m\r\n")

	if _, err := ui.out.Write(b.Bytes()); err != nil {
		slog.Warn("terminal write failed", "error", err)
	}
}

func progressBar(remaining float64, period int) string {
	if period <= 0 {
		period = 1
	}
	filled := int(remaining / float64(period) * barWidth)
	if filled > barWidth {
		filled = barWidth
	}
	if filled < 0 {
		filled = 0
	}
	bar := make([]byte, barWidth)
	for i := range bar {
		if i < filled {
			bar[i] = '#'
		} else {
			bar[i] = '.'
		}
	}
	return "[" + string(bar) + "]"
}

// highlightName underlines the matched rune positions.
func highlightName(name string, highlight []int) string {
	if len(highlight) == 0 {
		return name
	}
	matched := make(map[int]bool, len(highlight))
	for _, i := range highlight {
		matched[i] = true
	}
	var b bytes.Buffer
	for i, r := range []rune(name) {
		if matched[i] {
			b.WriteString("\x1b[4m")
			b.WriteRune(r)
			b.WriteString("\x1b[24m")
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}
