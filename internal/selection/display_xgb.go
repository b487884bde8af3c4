package selection

import (
	"fmt"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/xfixes"
	"github.com/BurntSushi/xgb/xproto"
)

// XGBDisplay is the real Display backed by a live xgb connection,
// grounded on the teacher's internal/clipboard.Manager wiring (intern,
// xfixes init, ChangePropertyChecked/SendEventChecked pattern) and
// generalized from a single CLIPBOARD selection to the full
// ConvertSelection/SelectionRequest surface spec.md §4.1 needs.
type XGBDisplay struct {
	conn   *xgb.Conn
	screen *xproto.ScreenInfo
}

// NewXGBDisplay wraps conn (connecting to the DISPLAY environment
// variable's server if conn is nil) and initializes the XFixes
// extension. Passing an existing conn lets the picker and the
// selection engine share one connection, which is required for
// internal/eventloop's single WaitForEvent reader (spec.md §4.6).
func NewXGBDisplay(conn *xgb.Conn) (*XGBDisplay, error) {
	if conn == nil {
		var err error
		conn, err = xgb.NewConn()
		if err != nil {
			return nil, fmt.Errorf("connect to X server: %w", err)
		}
	}
	if err := xfixes.Init(conn); err != nil {
		return nil, fmt.Errorf("init xfixes extension: %w", err)
	}
	setup := xproto.Setup(conn)
	screen := setup.DefaultScreen(conn)
	return &XGBDisplay{conn: conn, screen: screen}, nil
}

// Close releases the underlying connection.
func (d *XGBDisplay) Close() { d.conn.Close() }

func (d *XGBDisplay) InternAtom(onlyIfExists bool, name string) (xproto.Atom, error) {
	reply, err := xproto.InternAtom(d.conn, onlyIfExists, uint16(len(name)), name).Reply()
	if err != nil {
		return 0, err
	}
	return reply.Atom, nil
}

func (d *XGBDisplay) GetAtomName(atom xproto.Atom) (string, error) {
	reply, err := xproto.GetAtomName(d.conn, atom).Reply()
	if err != nil {
		return "", err
	}
	return reply.Name, nil
}

func (d *XGBDisplay) NewInputOutputWindow(eventMask uint32) (xproto.Window, error) {
	win, err := xproto.NewWindowId(d.conn)
	if err != nil {
		return 0, err
	}
	err = xproto.CreateWindowChecked(
		d.conn,
		d.screen.RootDepth,
		win,
		d.screen.Root,
		-1, -1, 1, 1, 0,
		xproto.WindowClassInputOutput,
		d.screen.RootVisual,
		xproto.CwEventMask,
		[]uint32{eventMask},
	).Check()
	if err != nil {
		return 0, err
	}
	return win, nil
}

func (d *XGBDisplay) XFixesQueryVersion(major, minor uint32) error {
	_, err := xfixes.QueryVersion(d.conn, major, minor).Reply()
	return err
}

func (d *XGBDisplay) SelectSelectionInput(window xproto.Window, selectionAtom xproto.Atom, mask uint32) error {
	return xfixes.SelectSelectionInputChecked(d.conn, window, selectionAtom, mask).Check()
}

func (d *XGBDisplay) ConvertSelection(requestor xproto.Window, selectionAtom, target, property xproto.Atom, time xproto.Timestamp) error {
	return xproto.ConvertSelectionChecked(d.conn, requestor, selectionAtom, target, property, time).Check()
}

func (d *XGBDisplay) GetProperty(window xproto.Window, property xproto.Atom, del bool, longLength uint32) ([]byte, error) {
	reply, err := xproto.GetProperty(d.conn, del, window, property, xproto.GetPropertyTypeAny, 0, longLength).Reply()
	if err != nil {
		return nil, err
	}
	return reply.Value, nil
}

func (d *XGBDisplay) DeleteProperty(window xproto.Window, property xproto.Atom) error {
	return xproto.DeletePropertyChecked(d.conn, window, property).Check()
}

func (d *XGBDisplay) ChangePropertyAtoms(window xproto.Window, property xproto.Atom, atomList []xproto.Atom) error {
	data := make([]byte, 4*len(atomList))
	for i, a := range atomList {
		le32(data[i*4:], uint32(a))
	}
	return xproto.ChangePropertyChecked(
		d.conn, xproto.PropModeReplace, window, property,
		xproto.AtomAtom, 32, uint32(len(atomList)), data,
	).Check()
}

func (d *XGBDisplay) ChangePropertyBytes(window xproto.Window, property, propType xproto.Atom, data []byte) error {
	return xproto.ChangePropertyChecked(
		d.conn, xproto.PropModeReplace, window, property,
		propType, 8, uint32(len(data)), data,
	).Check()
}

func (d *XGBDisplay) SetSelectionOwner(window xproto.Window, selectionAtom xproto.Atom, time xproto.Timestamp) error {
	return xproto.SetSelectionOwnerChecked(d.conn, window, selectionAtom, time).Check()
}

// SendSelectionNotify synthesizes a SelectionNotify event and sends it
// to requestor, matching the teacher's handleSelectionRequest
// SendEventChecked pattern.
func (d *XGBDisplay) SendSelectionNotify(requestor xproto.Window, time xproto.Timestamp, selectionAtom, target, property xproto.Atom) error {
	ev := xproto.SelectionNotifyEvent{
		Time:      time,
		Requestor: requestor,
		Selection: selectionAtom,
		Target:    target,
		Property:  property,
	}
	return xproto.SendEventChecked(d.conn, false, requestor, xproto.EventMaskNoEvent, string(ev.Bytes())).Check()
}

func (d *XGBDisplay) Flush() error {
	// xgb flushes requests as they're issued; nothing buffered to sync
	// beyond an explicit round trip, which callers already do via Reply().
	return nil
}

// NextEvent blocks for the next X11 event and translates it into the
// engine's Event sum type, dropping anything the engine does not act
// on into OtherEvent.
func (d *XGBDisplay) NextEvent() (Event, error) {
	for {
		ev, err := d.conn.WaitForEvent()
		if err != nil {
			return nil, err
		}
		if ev == nil {
			return OtherEvent{}, nil
		}
		switch v := ev.(type) {
		case xfixes.SelectionNotifyEvent:
			return XFixesSelectionNotify{Selection: v.Selection, Owner: v.Owner}, nil
		case xproto.SelectionNotifyEvent:
			return SelectionNotify{
				Requestor: v.Requestor,
				Selection: v.Selection,
				Target:    v.Target,
				Property:  v.Property,
			}, nil
		case xproto.SelectionRequestEvent:
			return SelectionRequest{
				Owner:     v.Owner,
				Requestor: v.Requestor,
				Selection: v.Selection,
				Target:    v.Target,
				Property:  v.Property,
				Time:      v.Time,
			}, nil
		default:
			return OtherEvent{}, nil
		}
	}
}

func le32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}
