package selection

import (
	"fmt"

	"github.com/BurntSushi/xgb/xproto"
)

// FakeDisplay is an in-memory Display double for engine tests (spec.md
// §9 "the test suite relies on a fake"). It records every request the
// engine issues and lets tests inject events synchronously through
// Enqueue/NextEvent.
type FakeDisplay struct {
	nextAtom xproto.Atom
	byName   map[string]xproto.Atom
	byAtom   map[xproto.Atom]string

	nextWindow xproto.Window
	properties map[xproto.Window]map[xproto.Atom]property

	events []Event

	// Recorded calls, inspected by tests.
	Converts       []ConvertCall
	Notifies       []NotifyCall
	OwnershipCalls []OwnershipCall
}

type property struct {
	propType xproto.Atom
	data     []byte
}

type ConvertCall struct {
	Requestor xproto.Window
	Selection xproto.Atom
	Target    xproto.Atom
	Property  xproto.Atom
}

type NotifyCall struct {
	Requestor xproto.Window
	Selection xproto.Atom
	Target    xproto.Atom
	Property  xproto.Atom
}

type OwnershipCall struct {
	Window    xproto.Window
	Selection xproto.Atom
}

// NewFakeDisplay returns an empty fake, pre-seeded with nothing; atoms
// are interned lazily like a real server would.
func NewFakeDisplay() *FakeDisplay {
	return &FakeDisplay{
		nextAtom:   1,
		byName:     make(map[string]xproto.Atom),
		byAtom:     make(map[xproto.Atom]string),
		nextWindow: 1,
		properties: make(map[xproto.Window]map[xproto.Atom]property),
	}
}

// InternAtom always creates an atom if name is unseen, regardless of
// onlyIfExists: a fake has no pre-populated predefined-atom table to
// consult, so treating every name as creatable keeps the double
// predictable for tests (a real server predefines TARGETS,
// UTF8_STRING and the selection names anyway).
func (d *FakeDisplay) InternAtom(onlyIfExists bool, name string) (xproto.Atom, error) {
	if atom, ok := d.byName[name]; ok {
		return atom, nil
	}
	atom := d.nextAtom
	d.nextAtom++
	d.byName[name] = atom
	d.byAtom[atom] = name
	return atom, nil
}

func (d *FakeDisplay) GetAtomName(atom xproto.Atom) (string, error) {
	name, ok := d.byAtom[atom]
	if !ok {
		return "", fmt.Errorf("no such atom %d", atom)
	}
	return name, nil
}

// AtomByName is a test helper equivalent to InternAtom(false, name)
// without needing to ignore the error.
func (d *FakeDisplay) AtomByName(name string) xproto.Atom {
	atom, _ := d.InternAtom(false, name)
	return atom
}

func (d *FakeDisplay) NewInputOutputWindow(eventMask uint32) (xproto.Window, error) {
	win := d.nextWindow
	d.nextWindow++
	d.properties[win] = make(map[xproto.Atom]property)
	return win, nil
}

func (d *FakeDisplay) XFixesQueryVersion(major, minor uint32) error { return nil }

func (d *FakeDisplay) SelectSelectionInput(window xproto.Window, selectionAtom xproto.Atom, mask uint32) error {
	return nil
}

func (d *FakeDisplay) ConvertSelection(requestor xproto.Window, selectionAtom, target, property xproto.Atom, time xproto.Timestamp) error {
	d.Converts = append(d.Converts, ConvertCall{Requestor: requestor, Selection: selectionAtom, Target: target, Property: property})
	return nil
}

func (d *FakeDisplay) GetProperty(window xproto.Window, propertyAtom xproto.Atom, del bool, longLength uint32) ([]byte, error) {
	props, ok := d.properties[window]
	if !ok {
		return nil, fmt.Errorf("unknown window %d", window)
	}
	val, ok := props[propertyAtom]
	if !ok {
		return nil, nil
	}
	if del {
		delete(props, propertyAtom)
	}
	return val.data, nil
}

func (d *FakeDisplay) DeleteProperty(window xproto.Window, propertyAtom xproto.Atom) error {
	if props, ok := d.properties[window]; ok {
		delete(props, propertyAtom)
	}
	return nil
}

func (d *FakeDisplay) ChangePropertyAtoms(window xproto.Window, propertyAtom xproto.Atom, atoms []xproto.Atom) error {
	data := make([]byte, 4*len(atoms))
	for i, a := range atoms {
		le32(data[i*4:], uint32(a))
	}
	return d.setProperty(window, propertyAtom, xproto.AtomAtom, data)
}

func (d *FakeDisplay) ChangePropertyBytes(window xproto.Window, propertyAtom, propType xproto.Atom, data []byte) error {
	return d.setProperty(window, propertyAtom, propType, append([]byte(nil), data...))
}

func (d *FakeDisplay) setProperty(window xproto.Window, propertyAtom, propType xproto.Atom, data []byte) error {
	props, ok := d.properties[window]
	if !ok {
		props = make(map[xproto.Atom]property)
		d.properties[window] = props
	}
	props[propertyAtom] = property{propType: propType, data: data}
	return nil
}

func (d *FakeDisplay) SetSelectionOwner(window xproto.Window, selectionAtom xproto.Atom, time xproto.Timestamp) error {
	d.OwnershipCalls = append(d.OwnershipCalls, OwnershipCall{Window: window, Selection: selectionAtom})
	return nil
}

func (d *FakeDisplay) SendSelectionNotify(requestor xproto.Window, time xproto.Timestamp, selectionAtom, target, propertyAtom xproto.Atom) error {
	d.Notifies = append(d.Notifies, NotifyCall{Requestor: requestor, Selection: selectionAtom, Target: target, Property: propertyAtom})
	return nil
}

func (d *FakeDisplay) Flush() error { return nil }

// Enqueue queues an event to be returned by a future NextEvent call, in
// FIFO order.
func (d *FakeDisplay) Enqueue(ev Event) { d.events = append(d.events, ev) }

func (d *FakeDisplay) NextEvent() (Event, error) {
	if len(d.events) == 0 {
		return nil, fmt.Errorf("no more fake events queued")
	}
	ev := d.events[0]
	d.events = d.events[1:]
	return ev, nil
}

// PropertyBytes is a test helper for asserting on raw property
// contents written by the engine's serving path.
func (d *FakeDisplay) PropertyBytes(window xproto.Window, propertyAtom xproto.Atom) ([]byte, bool) {
	props, ok := d.properties[window]
	if !ok {
		return nil, false
	}
	val, ok := props[propertyAtom]
	if !ok {
		return nil, false
	}
	return val.data, true
}

// SetPropertyForTest lets a test pre-populate a window's property as if
// a (fake) selection owner had already written its reply, bypassing the
// Convert/Notify round trip.
func (d *FakeDisplay) SetPropertyForTest(window xproto.Window, propertyAtom, propType xproto.Atom, data []byte) {
	_ = d.setProperty(window, propertyAtom, propType, data)
}
