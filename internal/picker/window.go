package picker

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/xgb/xproto"

	"github.com/triiberg/repeat/internal/rlog"
)

const (
	windowWidth     = 800
	windowHeight    = 600
	padding         = 10
	lineHeight      = 18
	footerHeight    = 18
	maxPreviewChars = 100

	// send_key hardcodes keycode 118 (Insert) in the original source;
	// this daemon instead resolves it from the live keyboard mapping
	// (keymap.keycodeFor), but keeps the same fallback value in case
	// resolution fails.
	insertKeycodeFallback = 118
)

var (
	keysymEscape xproto.Keysym = 0xff1b
	keysymUp     xproto.Keysym = 0xff52
	keysymDown   xproto.Keysym = 0xff54
	keysymReturn xproto.Keysym = 0xff0d
	keysymBS     xproto.Keysym = 0xff08
	keysymInsert xproto.Keysym = 0xff63

	// Ctrl-k/Ctrl-j/Ctrl-u alternates from spec.md §4.3's key table.
	keysymK xproto.Keysym = 0x6b
	keysymJ xproto.Keysym = 0x6a
	keysymU xproto.Keysym = 0x75
)

// Display is the X11 capability set the picker window needs: create
// and show an override-redirect window sized/positioned to the
// monitor under the focused window (RANDR), draw text with core
// primitives (no TrueType, per spec.md §1/§9 Non-goals), read the
// keyboard mapping, and synthesize the commit paste keystroke.
type Display interface {
	FocusedWindow() (xproto.Window, error)
	MonitorGeometry(focused xproto.Window) (x, y int16, width, height uint16, err error)

	CreateWindow(x, y int16, width, height uint16) (xproto.Window, error)
	DestroyWindow(win xproto.Window) error
	MapWindow(win xproto.Window) error
	UnmapWindow(win xproto.Window) error
	SetInputFocus(win xproto.Window) error

	KeysymToKeycode(sym xproto.Keysym) (xproto.Keycode, bool)
	SendShiftInsert(to xproto.Window, root xproto.Window) error

	ClearWindow(win xproto.Window, width, height uint16) error
	DrawLine(win xproto.Window, y int, text string, highlighted bool) error

	NextEvent() (WindowEvent, error)
	Root() xproto.Window
}

// WindowEvent is the sum type of events the picker window reacts to.
type WindowEvent interface{ isWindowEvent() }

// KeyPress carries the raw X11 modifier state alongside the keycode so
// the picker can recognize Ctrl-k/Ctrl-j/Ctrl-u and the "Ctrl + any
// other → ignored" rule (spec.md §4.3 key table).
type KeyPress struct {
	Keycode xproto.Keycode
	State   uint16
}
type Expose struct{ Window xproto.Window }
type FocusOut struct{ Window xproto.Window }
type OtherWindowEvent struct{}

// ctrlHeld reports whether the Control modifier bit is set in an X11
// key event's state mask.
func ctrlHeld(state uint16) bool { return state&xproto.ModMaskControl != 0 }

func (KeyPress) isWindowEvent()         {}
func (Expose) isWindowEvent()           {}
func (FocusOut) isWindowEvent()         {}
func (OtherWindowEvent) isWindowEvent() {}

// CommitFunc is called with the clip text to paste once the user
// presses Enter on a non-empty result set, before the paste keystroke
// is synthesized; the picker window itself only synthesizes the
// keystroke, the caller (the daemon wiring in cmd/repeat) owns taking
// selection ownership first.
type CommitFunc func(clip string) error

// Window is the picker's X11-facing half: it owns the Controller and
// drives a Display to show it, redraw on input, and commit on Enter
// (grounded on original_source/src/ui/window.rs's Window, adapted from
// the teacher's cmd/smartpasta-ui ui/keymap split).
type Window struct {
	disp       Display
	controller *Controller
	log        rlog.Logger

	win           xproto.Window
	focusedWindow xproto.Window
	open          bool
	ctrlHeld      bool
	onCommit      CommitFunc
}

// NewWindow constructs a picker window bound to controller. The window
// is not created on the X server until Show is called.
func NewWindow(disp Display, controller *Controller, log rlog.Logger, onCommit CommitFunc) *Window {
	if log == nil {
		log = rlog.NewNop()
	}
	return &Window{disp: disp, controller: controller, log: log, onCommit: onCommit}
}

// Show creates the window on first use, centered on the monitor
// containing the currently focused window, resets the controller, and
// maps it with input focus (spec.md §4.3 "Show"). Later Shows map the
// same window where it was first placed; it is not moved to the
// monitor of the newly focused window. A second Show while the
// picker is already open is a no-op (spec.md §5 "Cancellation": show
// on an already-open picker does not disturb in-progress input).
func (w *Window) Show() error {
	if w.open {
		return nil
	}

	focused, err := w.disp.FocusedWindow()
	if err != nil {
		return fmt.Errorf("get focused window: %w", err)
	}
	w.focusedWindow = focused

	x, y, monW, monH, err := w.disp.MonitorGeometry(focused)
	if err != nil {
		return fmt.Errorf("get monitor geometry: %w", err)
	}

	width, height := uint16(windowWidth), uint16(windowHeight)
	if width > monW {
		width = monW
	}
	if height > monH {
		height = monH
	}
	posX := x + int16(monW/2) - int16(width/2)
	posY := y + int16(monH/2) - int16(height/2)

	if w.win == 0 {
		win, err := w.disp.CreateWindow(posX, posY, width, height)
		if err != nil {
			return fmt.Errorf("create picker window: %w", err)
		}
		w.win = win
	}

	w.controller.Reset()
	w.open = true

	if err := w.disp.MapWindow(w.win); err != nil {
		return fmt.Errorf("map picker window: %w", err)
	}
	if err := w.disp.SetInputFocus(w.win); err != nil {
		return fmt.Errorf("set input focus: %w", err)
	}
	return w.redraw()
}

// Close hides the window and returns focus to whichever window had it
// before Show (spec.md §4.3 "Escape / commit").
func (w *Window) Close() error {
	w.open = false
	if w.win == 0 {
		return nil
	}
	if err := w.disp.UnmapWindow(w.win); err != nil {
		return err
	}
	return w.disp.SetInputFocus(w.focusedWindow)
}

// Open reports whether the window is currently shown.
func (w *Window) Open() bool { return w.open }

// HandleEvent processes one WindowEvent, redrawing or committing as
// needed (spec.md §4.3 "Key handling").
func (w *Window) HandleEvent(ev WindowEvent) error {
	switch v := ev.(type) {
	case Expose:
		if v.Window == w.win {
			return w.redraw()
		}
		return nil
	case FocusOut:
		// Recapture focus immediately; a picker losing focus to
		// another client mid-session is treated as unintentional
		// (spec.md §4.3, grounded on original_source's FocusOut arm).
		if w.open {
			return w.disp.SetInputFocus(w.win)
		}
		return nil
	case KeyPress:
		w.ctrlHeld = ctrlHeld(v.State)
		return w.handleKey(v.Keycode, w.ctrlHeld)
	default:
		return nil
	}
}

func (w *Window) handleKey(keycode xproto.Keycode, ctrl bool) error {
	switch {
	case w.matchesKeycode(keycode, keysymEscape):
		return w.Close()
	case w.matchesKeycode(keycode, keysymUp) || (ctrl && w.matchesKeycode(keycode, keysymK)):
		w.controller.MoveCursor(-1)
		return w.redraw()
	case w.matchesKeycode(keycode, keysymDown) || (ctrl && w.matchesKeycode(keycode, keysymJ)):
		w.controller.MoveCursor(1)
		return w.redraw()
	case ctrl && w.matchesKeycode(keycode, keysymU):
		w.controller.Reset()
		return w.redraw()
	case w.matchesKeycode(keycode, keysymBS):
		w.controller.Backspace()
		return w.redraw()
	case w.matchesKeycode(keycode, keysymReturn):
		return w.commit()
	case ctrl:
		// Ctrl + any other key is ignored but still redraws
		// (spec.md §4.3 "Ctrl + any other → ignored (redraw)").
		return w.redraw()
	default:
		if r, ok := w.runeForKeycode(keycode); ok {
			w.controller.AppendRune(r)
			return w.redraw()
		}
		return nil
	}
}

func (w *Window) matchesKeycode(keycode xproto.Keycode, sym xproto.Keysym) bool {
	want, ok := w.disp.KeysymToKeycode(sym)
	return ok && want == keycode
}

// runeForKeycode maps a printable keycode to the rune it would insert.
// The xgb-backed Display resolves it from its keyboard mapping table
// (see XGBDisplay.RuneForKeycode); a Display without RuneForKeycode
// yields no rune.
func (w *Window) runeForKeycode(keycode xproto.Keycode) (rune, bool) {
	type runeResolver interface {
		RuneForKeycode(xproto.Keycode) (rune, bool)
	}
	if rr, ok := w.disp.(runeResolver); ok {
		return rr.RuneForKeycode(keycode)
	}
	return 0, false
}

func (w *Window) commit() error {
	heldCtrl := w.ctrlHeld
	clip, ok := w.controller.Commit()
	if err := w.Close(); err != nil {
		return err
	}
	if !ok {
		return nil
	}
	if w.onCommit != nil {
		if err := w.onCommit(clip.Contents.Text); err != nil {
			return err
		}
	}
	// Unless Ctrl was held, synthesize the paste keystroke (spec.md
	// §4.3 "Commit" — "(unless Ctrl was held)").
	if !heldCtrl {
		if err := w.disp.SendShiftInsert(w.focusedWindow, w.disp.Root()); err != nil {
			return fmt.Errorf("send paste keystroke: %w", err)
		}
	}
	return nil
}

func (w *Window) redraw() error {
	if w.win == 0 {
		return nil
	}
	if err := w.disp.ClearWindow(w.win, windowWidth, windowHeight); err != nil {
		return err
	}
	if err := w.disp.DrawLine(w.win, 0, w.controller.Input(), false); err != nil {
		return err
	}

	results := w.controller.Results()
	if len(results) == 0 {
		return w.disp.DrawLine(w.win, 1, "(no clips)", false)
	}

	row := 1
	for i, clip := range results {
		text := previewLine(clip.Contents.Text)
		if err := w.disp.DrawLine(w.win, row, fmt.Sprintf("%d %s", i, text), i == w.controller.Cursor()); err != nil {
			return err
		}
		row++
	}
	return nil
}

func previewLine(text string) string {
	line := strings.ReplaceAll(text, "\n", " ")
	line = strings.TrimSpace(line)
	runes := []rune(line)
	if len(runes) <= maxPreviewChars {
		return line
	}
	if maxPreviewChars <= 3 {
		return string(runes[:maxPreviewChars])
	}
	return string(runes[:maxPreviewChars-3]) + "..."
}

// compile-time interface satisfaction check for the real backend.
var _ Display = (*XGBDisplay)(nil)
