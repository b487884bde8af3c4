package picker

import (
	"fmt"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/randr"
	"github.com/BurntSushi/xgb/xproto"
)

// XGBDisplay is the real picker Display, grounded on the teacher's
// cmd/smartpasta-ui/main.go (keymap via GetKeyboardMapping, GC-based
// ImageText8 drawing, override-redirect window) and on
// original_source/src/ui/window.rs's get_active_screen_geom (RANDR
// CRTC lookup) and send_key (synthetic Shift+Insert).
type XGBDisplay struct {
	conn   *xgb.Conn
	screen *xproto.ScreenInfo

	keymap    *keymap
	bgGC      xproto.Gcontext
	textGC    xproto.Gcontext
	highlight xproto.Gcontext
	highText  xproto.Gcontext
	font      xproto.Font
}

// NewXGBDisplay opens a new connection (honoring conn if non-nil, for
// reuse against the same connection the selection engine already
// holds) and prepares RANDR, the keyboard mapping, and drawing
// resources.
func NewXGBDisplay(conn *xgb.Conn) (*XGBDisplay, error) {
	if conn == nil {
		var err error
		conn, err = xgb.NewConn()
		if err != nil {
			return nil, fmt.Errorf("connect to X server: %w", err)
		}
	}
	if err := randr.Init(conn); err != nil {
		return nil, fmt.Errorf("init randr extension: %w", err)
	}
	setup := xproto.Setup(conn)
	screen := setup.DefaultScreen(conn)

	km, err := newKeymap(conn)
	if err != nil {
		return nil, fmt.Errorf("read keyboard mapping: %w", err)
	}

	return &XGBDisplay{conn: conn, screen: screen, keymap: km}, nil
}

func (d *XGBDisplay) Root() xproto.Window { return d.screen.Root }

func (d *XGBDisplay) FocusedWindow() (xproto.Window, error) {
	reply, err := xproto.GetInputFocus(d.conn).Reply()
	if err != nil {
		return 0, err
	}
	return reply.Focus, nil
}

// MonitorGeometry finds the RANDR CRTC containing focused's absolute
// position, falling back to the first active CRTC if none contains it
// (original_source's get_active_screen_geom `unwrap_or_else`).
func (d *XGBDisplay) MonitorGeometry(focused xproto.Window) (x, y int16, width, height uint16, err error) {
	if focused == 0 {
		focused = d.screen.Root
	}
	geom, err := xproto.GetGeometry(d.conn, xproto.Drawable(focused)).Reply()
	if err != nil {
		return 0, 0, 0, 0, fmt.Errorf("get geometry: %w", err)
	}
	translated, err := xproto.TranslateCoordinates(d.conn, focused, geom.Root, geom.X, geom.Y).Reply()
	if err != nil {
		return 0, 0, 0, 0, fmt.Errorf("translate coordinates: %w", err)
	}

	resources, err := randr.GetScreenResources(d.conn, geom.Root).Reply()
	if err != nil {
		return 0, 0, 0, 0, fmt.Errorf("get screen resources: %w", err)
	}

	var active *randr.GetCrtcInfoReply
	var first *randr.GetCrtcInfoReply
	for _, crtc := range resources.Crtcs {
		info, err := randr.GetCrtcInfo(d.conn, crtc, 0).Reply()
		if err != nil || len(info.Outputs) == 0 {
			continue
		}
		if first == nil {
			first = info
		}
		if info.X <= translated.DstX && info.Y <= translated.DstY &&
			info.X+int16(info.Width) >= translated.DstX &&
			info.Y+int16(info.Height) >= translated.DstY {
			active = info
			break
		}
	}
	if active == nil {
		active = first
	}
	if active == nil {
		return 0, 0, d.screen.WidthInPixels, d.screen.HeightInPixels, nil
	}
	return active.X, active.Y, active.Width, active.Height, nil
}

func (d *XGBDisplay) CreateWindow(x, y int16, width, height uint16) (xproto.Window, error) {
	win, err := xproto.NewWindowId(d.conn)
	if err != nil {
		return 0, err
	}
	mask := uint32(xproto.CwBackPixel | xproto.CwOverrideRedirect | xproto.CwEventMask)
	values := []uint32{
		d.screen.BlackPixel,
		1,
		xproto.EventMaskExposure | xproto.EventMaskKeyPress | xproto.EventMaskFocusChange,
	}
	if err := xproto.CreateWindowChecked(
		d.conn, d.screen.RootDepth, win, d.screen.Root,
		x, y, width, height, 0,
		xproto.WindowClassInputOutput, d.screen.RootVisual,
		mask, values,
	).Check(); err != nil {
		return 0, err
	}

	font, _ := xproto.NewFontId(d.conn)
	_ = xproto.OpenFontChecked(d.conn, font, uint16(len("fixed")), "fixed").Check()
	d.font = font

	bg, _ := d.gc(win, d.screen.BlackPixel, d.screen.BlackPixel)
	text, _ := d.gc(win, d.screen.WhitePixel, d.screen.BlackPixel)
	hi, _ := d.gc(win, d.screen.WhitePixel, d.screen.WhitePixel)
	hiText, _ := d.gc(win, d.screen.BlackPixel, d.screen.WhitePixel)
	d.bgGC, d.textGC, d.highlight, d.highText = bg, text, hi, hiText

	return win, nil
}

func (d *XGBDisplay) gc(win xproto.Window, fg, bg uint32) (xproto.Gcontext, error) {
	gc, err := xproto.NewGcontextId(d.conn)
	if err != nil {
		return 0, err
	}
	mask := uint32(xproto.GcForeground | xproto.GcBackground)
	values := []uint32{fg, bg}
	if d.font != 0 {
		mask |= xproto.GcFont
		values = append(values, uint32(d.font))
	}
	if err := xproto.CreateGCChecked(d.conn, gc, xproto.Drawable(win), mask, values).Check(); err != nil {
		return 0, err
	}
	return gc, nil
}

func (d *XGBDisplay) DestroyWindow(win xproto.Window) error {
	return xproto.DestroyWindowChecked(d.conn, win).Check()
}

func (d *XGBDisplay) MapWindow(win xproto.Window) error {
	return xproto.MapWindowChecked(d.conn, win).Check()
}

func (d *XGBDisplay) UnmapWindow(win xproto.Window) error {
	return xproto.UnmapWindowChecked(d.conn, win).Check()
}

func (d *XGBDisplay) SetInputFocus(win xproto.Window) error {
	return xproto.SetInputFocusChecked(d.conn, xproto.InputFocusParent, win, xproto.TimeCurrentTime).Check()
}

func (d *XGBDisplay) KeysymToKeycode(sym xproto.Keysym) (xproto.Keycode, bool) {
	return d.keymap.keycodeFor(sym)
}

func (d *XGBDisplay) RuneForKeycode(keycode xproto.Keycode) (rune, bool) {
	return d.keymap.runeFor(keycode)
}

// SendShiftInsert synthesizes a Shift+Insert key press/release pair
// targeting `to`, mirroring original_source's send_key(118, ModMask::SHIFT).
func (d *XGBDisplay) SendShiftInsert(to, root xproto.Window) error {
	keycode, ok := d.keymap.keycodeFor(keysymInsert)
	if !ok {
		keycode = insertKeycodeFallback
	}

	press := xproto.KeyPressEvent{
		Detail:   keycode,
		Time:     0,
		Root:     root,
		Event:    to,
		Child:    0,
		RootX:    1,
		RootY:    1,
		EventX:   1,
		EventY:   1,
		State:    xproto.ModMaskShift,
		SameScreen: true,
	}
	if err := xproto.SendEventChecked(d.conn, true, to, xproto.EventMaskKeyPress, string(press.Bytes())).Check(); err != nil {
		return fmt.Errorf("send key press: %w", err)
	}

	release := press
	releaseBytes := release.Bytes()
	releaseBytes[0] = xproto.KeyReleaseEventCode
	if err := xproto.SendEventChecked(d.conn, true, to, xproto.EventMaskKeyRelease, string(releaseBytes)).Check(); err != nil {
		return fmt.Errorf("send key release: %w", err)
	}
	return nil
}

func (d *XGBDisplay) ClearWindow(win xproto.Window, width, height uint16) error {
	rect := xproto.Rectangle{X: 0, Y: 0, Width: width, Height: height}
	return xproto.PolyFillRectangleChecked(d.conn, xproto.Drawable(win), d.bgGC, []xproto.Rectangle{rect}).Check()
}

func (d *XGBDisplay) DrawLine(win xproto.Window, row int, text string, highlighted bool) error {
	y := int16(padding + row*lineHeight + lineHeight - 4)
	if highlighted {
		hRect := xproto.Rectangle{X: 0, Y: int16(padding + row*lineHeight), Width: windowWidth, Height: lineHeight}
		if err := xproto.PolyFillRectangleChecked(d.conn, xproto.Drawable(win), d.highlight, []xproto.Rectangle{hRect}).Check(); err != nil {
			return err
		}
	}
	gc := d.textGC
	if highlighted {
		gc = d.highText
	}
	bytes := []byte(text)
	if len(bytes) > 255 {
		bytes = bytes[:255]
	}
	if len(bytes) == 0 {
		return nil
	}
	return xproto.ImageText8Checked(d.conn, uint8(len(bytes)), xproto.Drawable(win), gc, int16(padding), y, string(bytes)).Check()
}

func (d *XGBDisplay) NextEvent() (WindowEvent, error) {
	ev, err := d.conn.WaitForEvent()
	if err != nil {
		return nil, err
	}
	if ev == nil {
		return OtherWindowEvent{}, nil
	}
	switch v := ev.(type) {
	case xproto.ExposeEvent:
		return Expose{Window: v.Window}, nil
	case xproto.KeyPressEvent:
		return KeyPress{Keycode: v.Detail, State: v.State}, nil
	case xproto.FocusOutEvent:
		return FocusOut{Window: v.Event}, nil
	default:
		return OtherWindowEvent{}, nil
	}
}

// keymap resolves keysym<->keycode using a linear scan over the
// keyboard mapping table, grounded on the teacher's cmd/smartpasta-ui
// keymap and other_examples' x11Typer (GetKeyboardMapping + scan;
// neither corpus repo depends on xgbutil/keybind).
type keymap struct {
	minKeycode xproto.Keycode
	maxKeycode xproto.Keycode
	perCode    int
	keysyms    []xproto.Keysym
}

func newKeymap(conn *xgb.Conn) (*keymap, error) {
	setup := xproto.Setup(conn)
	count := int(setup.MaxKeycode-setup.MinKeycode) + 1
	reply, err := xproto.GetKeyboardMapping(conn, setup.MinKeycode, byte(count)).Reply()
	if err != nil {
		return nil, err
	}
	return &keymap{
		minKeycode: setup.MinKeycode,
		maxKeycode: setup.MaxKeycode,
		perCode:    int(reply.KeysymsPerKeycode),
		keysyms:    reply.Keysyms,
	}, nil
}

func (k *keymap) symbolsFor(keycode xproto.Keycode) []xproto.Keysym {
	if keycode < k.minKeycode || keycode > k.maxKeycode {
		return nil
	}
	start := int(keycode-k.minKeycode) * k.perCode
	end := start + k.perCode
	if start < 0 || end > len(k.keysyms) {
		return nil
	}
	return k.keysyms[start:end]
}

func (k *keymap) keycodeFor(sym xproto.Keysym) (xproto.Keycode, bool) {
	for code := k.minKeycode; code <= k.maxKeycode; code++ {
		for _, s := range k.symbolsFor(code) {
			if s == sym {
				return code, true
			}
		}
		if code == k.maxKeycode {
			break
		}
	}
	return 0, false
}

func (k *keymap) runeFor(keycode xproto.Keycode) (rune, bool) {
	for _, sym := range k.symbolsFor(keycode) {
		// Keysyms below 0x100 align with Latin-1 / ASCII code points,
		// which covers the printable range the picker's search box
		// needs (original_source's `char::from_u32(key)`).
		if sym > 0 && sym < 0x100 {
			return rune(sym), true
		}
	}
	return 0, false
}
