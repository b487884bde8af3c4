// Package selection implements the selection protocol engine: the
// state machine that tracks outstanding asynchronous X11 selection
// conversions, multiplexes them over a small pool of properties on a
// dedicated getter window, interprets replies, and answers
// SelectionRequest events when the daemon is serving a clip (spec.md
// §4.1).
package selection

import "github.com/BurntSushi/xgb/xproto"

// Display is the capability set the engine needs from an X11
// connection: send a request, await its reply, wait for the next
// event, flush. Modeling it as an interface (spec.md §9 "Dynamic
// dispatch over X11 display") keeps the engine testable against a fake
// that records requests and injects events, instead of a real X11
// server.
type Display interface {
	// InternAtom interns name, returning its atom.
	InternAtom(onlyIfExists bool, name string) (xproto.Atom, error)
	// GetAtomName resolves atom to its interned name.
	GetAtomName(atom xproto.Atom) (string, error)

	// NewInputOutputWindow creates a 1x1 invisible window with the
	// given event mask, returning its id.
	NewInputOutputWindow(eventMask uint32) (xproto.Window, error)

	// XFixesQueryVersion asserts the extension is at least major.minor.
	XFixesQueryVersion(major, minor uint32) error
	// SelectSelectionInput registers window to receive XFixes
	// SelectionNotify events for selection, filtered by mask.
	SelectSelectionInput(window xproto.Window, selection xproto.Atom, mask uint32) error

	// ConvertSelection asks selection's owner to convert to target,
	// with the reply to land in property on requestor.
	ConvertSelection(requestor xproto.Window, selection, target, property xproto.Atom, time xproto.Timestamp) error
	// GetProperty reads window's property, optionally deleting it
	// after the read, requesting up to longLength 4-byte units.
	GetProperty(window xproto.Window, property xproto.Atom, delete bool, longLength uint32) ([]byte, error)
	// DeleteProperty removes window's property, if present.
	DeleteProperty(window xproto.Window, property xproto.Atom) error
	// ChangePropertyAtoms replaces window's property with a list of
	// atoms (format 32, type ATOM).
	ChangePropertyAtoms(window xproto.Window, property xproto.Atom, atoms []xproto.Atom) error
	// ChangePropertyBytes replaces window's property with raw bytes
	// (format 8) tagged with propType.
	ChangePropertyBytes(window xproto.Window, property, propType xproto.Atom, data []byte) error

	// SetSelectionOwner makes window the owner of selection.
	SetSelectionOwner(window xproto.Window, selection xproto.Atom, time xproto.Timestamp) error
	// SendSelectionNotify synthesizes and sends a SelectionNotify
	// event to requestor. property may be xproto.AtomNone to signal
	// failure (see spec.md §9 on the source's divergence from ICCCM
	// here, kept as specified).
	SendSelectionNotify(requestor xproto.Window, time xproto.Timestamp, selection, target, property xproto.Atom) error

	// NextEvent blocks for the next relevant event.
	NextEvent() (Event, error)
	// Flush ensures buffered requests have been sent to the server.
	Flush() error
}

// Event is the sum type of the events the engine cares about (spec.md
// §9 "Tagged variants"). Concrete variants implement it as a marker.
type Event interface {
	isSelectionEvent()
}

// XFixesSelectionNotify reports that selection changed ownership.
type XFixesSelectionNotify struct {
	Selection xproto.Atom
	Owner     xproto.Window
}

func (XFixesSelectionNotify) isSelectionEvent() {}

// SelectionNotify is the reply to a ConvertSelection request,
// correlated by Property.
type SelectionNotify struct {
	Requestor xproto.Window
	Selection xproto.Atom
	Target    xproto.Atom
	Property  xproto.Atom
}

func (SelectionNotify) isSelectionEvent() {}

// SelectionRequest asks the engine (acting as owner) to convert a
// selection to a target for Requestor.
type SelectionRequest struct {
	Owner     xproto.Window
	Requestor xproto.Window
	Selection xproto.Atom
	Target    xproto.Atom
	Property  xproto.Atom
	Time      xproto.Timestamp
}

func (SelectionRequest) isSelectionEvent() {}

// OtherEvent wraps any event the engine does not act on.
type OtherEvent struct{}

func (OtherEvent) isSelectionEvent() {}
