package selection

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/xgb/xproto"

	"github.com/triiberg/repeat/internal/atoms"
	"github.com/triiberg/repeat/internal/history"
	"github.com/triiberg/repeat/internal/rlog"
)

// selectionNames are the three selections the engine monitors, in the
// order spec.md §1/§4.1 lists them.
var selectionNames = [3]string{"PRIMARY", "SECONDARY", "CLIPBOARD"}

const targetsName = "TARGETS"
const utf8StringName = "UTF8_STRING"

// xfixesSetSelectionOwner etc. mirror xfixes.SelectionEventMask bits;
// redefined here so this file only depends on the Display interface,
// not directly on the xfixes package (the xgb-backed implementation in
// display_xgb.go passes the mask through unchanged).
const (
	XFixesSetSelectionOwner    uint32 = 1
	XFixesSelectionWindowDestroy uint32 = 2
	XFixesSelectionClientClose   uint32 = 4
)

// conversionKind tags the two phases of a capture transaction (spec.md
// §3 "Outstanding Conversion Table").
type conversionKind int

const (
	awaitTargets conversionKind = iota
	awaitText
)

type conversion struct {
	kind      conversionKind
	selection xproto.Atom
	property  xproto.Atom
}

// Engine is the selection protocol state machine described in spec.md
// §4.1: it owns the getter/setter windows, the outstanding-conversion
// table, and both the capture path (reacting to ownership changes) and
// the serving path (answering SelectionRequest on behalf of the
// history store).
type Engine struct {
	disp    Display
	atoms   *atoms.Cache
	history *history.Store
	log     rlog.Logger

	getter xproto.Window
	setter xproto.Window

	selectionAtoms map[xproto.Atom]string // selection atom -> PRIMARY/SECONDARY/CLIPBOARD
	outstanding    map[xproto.Atom]conversion

	paused bool
}

// New creates the getter/setter windows, queries XFixes, registers
// interest in the three selections, and issues the initial TARGETS
// query for each (spec.md §4.1 "Startup").
func New(disp Display, store *history.Store, log rlog.Logger) (*Engine, error) {
	if log == nil {
		log = rlog.NewNop()
	}

	if err := disp.XFixesQueryVersion(5, 0); err != nil {
		return nil, fmt.Errorf("xfixes query version: %w", err)
	}

	e := &Engine{
		disp:           disp,
		atoms:          atoms.New(disp),
		history:        store,
		log:            log,
		selectionAtoms: make(map[xproto.Atom]string, 3),
		outstanding:    make(map[xproto.Atom]conversion),
	}

	getter, err := disp.NewInputOutputWindow(xproto.EventMaskPropertyChange | xproto.EventMaskStructureNotify)
	if err != nil {
		return nil, fmt.Errorf("create getter window: %w", err)
	}
	setter, err := disp.NewInputOutputWindow(0)
	if err != nil {
		return nil, fmt.Errorf("create setter window: %w", err)
	}
	e.getter = getter
	e.setter = setter

	for _, name := range selectionNames {
		atom, err := e.atoms.Get(name, false)
		if err != nil {
			return nil, fmt.Errorf("intern selection %s: %w", name, err)
		}
		e.selectionAtoms[atom] = name

		mask := XFixesSetSelectionOwner | XFixesSelectionClientClose | XFixesSelectionWindowDestroy
		if err := disp.SelectSelectionInput(e.getter, atom, mask); err != nil {
			return nil, fmt.Errorf("select selection input %s: %w", name, err)
		}

		if err := e.beginTargetsQuery(atom); err != nil {
			return nil, fmt.Errorf("initial targets query %s: %w", name, err)
		}
	}

	return e, nil
}

// Pause stops new capture transactions from starting; in-flight ones
// complete normally (spec.md §4.1 "Pause / resume").
func (e *Engine) Pause() { e.paused = true }

// Resume re-allows capture transactions. It does not retroactively
// capture anything missed while paused.
func (e *Engine) Resume() { e.paused = false }

// Paused reports the current pause state.
func (e *Engine) Paused() bool { return e.paused }

// TakeOwnership claims PRIMARY for the setter window (spec.md §4.1
// "Claiming ownership" — only PRIMARY is ever served, per the original
// source's take_ownership).
func (e *Engine) TakeOwnership() error {
	primary, err := e.atoms.Get("PRIMARY", true)
	if err != nil {
		return fmt.Errorf("intern PRIMARY: %w", err)
	}
	if err := e.disp.SetSelectionOwner(e.setter, primary, 0); err != nil {
		return fmt.Errorf("set selection owner: %w", err)
	}
	e.log.Infof("took ownership of PRIMARY")
	return nil
}

// HandleEvent dispatches a single event through the capture or serving
// state machine (spec.md §4.1 "Capture state machine" / "Serving").
func (e *Engine) HandleEvent(ev Event) error {
	switch v := ev.(type) {
	case XFixesSelectionNotify:
		return e.handleOwnerChanged(v)
	case SelectionNotify:
		return e.handleSelectionNotify(v)
	case SelectionRequest:
		return e.handleSelectionRequest(v)
	case OtherEvent:
		return nil
	default:
		return nil
	}
}

func (e *Engine) handleOwnerChanged(ev XFixesSelectionNotify) error {
	if ev.Owner == e.setter {
		// We do not capture our own writes.
		return nil
	}
	if e.paused {
		return nil
	}
	return e.beginTargetsQuery(ev.Selection)
}

// beginTargetsQuery starts the first phase of a capture transaction:
// ask the owner what targets it can serve.
func (e *Engine) beginTargetsQuery(selectionAtom xproto.Atom) error {
	targetsAtom, err := e.atoms.Get(targetsName, true)
	if err != nil {
		return fmt.Errorf("intern TARGETS: %w", err)
	}
	property, err := e.freshProperty()
	if err != nil {
		return fmt.Errorf("allocate property: %w", err)
	}

	e.outstanding[property] = conversion{kind: awaitTargets, selection: selectionAtom, property: property}

	if err := e.disp.DeleteProperty(e.getter, property); err != nil {
		e.log.Warnf("delete property before targets convert: %v", err)
	}
	if err := e.disp.ConvertSelection(e.getter, selectionAtom, targetsAtom, property, 0); err != nil {
		delete(e.outstanding, property)
		return fmt.Errorf("convert selection (targets): %w", err)
	}
	return nil
}

// beginTextQuery starts the second phase: ask for the UTF8_STRING
// rendering now that we know the owner supports it.
func (e *Engine) beginTextQuery(selectionAtom xproto.Atom) error {
	utf8Atom, err := e.atoms.Get(utf8StringName, true)
	if err != nil {
		return fmt.Errorf("intern UTF8_STRING: %w", err)
	}
	property, err := e.freshProperty()
	if err != nil {
		return fmt.Errorf("allocate property: %w", err)
	}

	e.outstanding[property] = conversion{kind: awaitText, selection: selectionAtom, property: property}

	if err := e.disp.DeleteProperty(e.getter, property); err != nil {
		e.log.Warnf("delete property before text convert: %v", err)
	}
	if err := e.disp.ConvertSelection(e.getter, selectionAtom, utf8Atom, property, 0); err != nil {
		delete(e.outstanding, property)
		return fmt.Errorf("convert selection (text): %w", err)
	}
	return nil
}

// freshProperty returns the first REPEAT_N atom not currently keying
// the outstanding table (spec.md §4.1 "Fresh property allocation").
func (e *Engine) freshProperty() (xproto.Atom, error) {
	for n := 0; ; n++ {
		name := fmt.Sprintf("REPEAT_%d", n)
		atom, err := e.atoms.Get(name, false)
		if err != nil {
			return 0, err
		}
		if _, busy := e.outstanding[atom]; !busy {
			return atom, nil
		}
	}
}

func (e *Engine) handleSelectionNotify(ev SelectionNotify) error {
	conv, ok := e.outstanding[ev.Property]
	if !ok {
		e.log.Warnf("unknown-property SelectionNotify for property %d, dropping", ev.Property)
		return nil
	}
	delete(e.outstanding, ev.Property)

	switch conv.kind {
	case awaitTargets:
		return e.completeTargetsQuery(conv)
	case awaitText:
		return e.completeTextQuery(conv, ev)
	default:
		return nil
	}
}

func (e *Engine) completeTargetsQuery(conv conversion) error {
	value, err := e.disp.GetProperty(e.getter, conv.property, false, ^uint32(0))
	if err != nil {
		e.log.Warnf("get property failed for targets query: %v", err)
		return nil
	}
	if err := e.disp.DeleteProperty(e.getter, conv.property); err != nil {
		e.log.Warnf("delete property after targets query: %v", err)
	}

	names := e.parseTargets(value)
	e.log.Debugf("available targets: %v", names)

	hasUTF8 := false
	firstImage := ""
	for _, name := range names {
		if name == utf8StringName {
			hasUTF8 = true
			break
		}
		if firstImage == "" && strings.HasPrefix(name, "image/") {
			firstImage = name
		}
	}

	if hasUTF8 {
		return e.beginTextQuery(conv.selection)
	}
	if firstImage != "" {
		e.log.Infof("image target %q recognized but not captured (extension point)", firstImage)
		return nil
	}
	return nil
}

// parseTargets decodes a TARGETS reply as packed little-endian 32-bit
// atoms, skipping zero atoms and any non-4-byte-aligned tail (spec.md
// §4.1 "SelectionNotify" / §7 "Malformed TARGETS payload").
func (e *Engine) parseTargets(value []byte) []string {
	var names []string
	for len(value) >= 4 {
		raw := uint32(value[0]) | uint32(value[1])<<8 | uint32(value[2])<<16 | uint32(value[3])<<24
		value = value[4:]
		if raw == 0 {
			continue
		}
		name, err := e.atoms.NameOf(xproto.Atom(raw))
		if err != nil {
			e.log.Warnf("get atom name failed for target atom %d: %v", raw, err)
			continue
		}
		names = append(names, name)
	}
	return names
}

func (e *Engine) completeTextQuery(conv conversion, ev SelectionNotify) error {
	value, err := e.disp.GetProperty(e.getter, ev.Property, true, ^uint32(0))
	if err != nil {
		e.log.Warnf("get property failed for text query: %v", err)
		return nil
	}

	text := lossyUTF8(value)
	source := sourceFor(e.selectionAtoms[conv.selection])

	idx, added := e.history.Add(history.Clip{Source: source, Contents: history.Contents{Text: text}})
	if added {
		e.log.Infof("captured clip %d from %s (%d bytes)", idx, source, len(text))
	}
	return nil
}

func sourceFor(name string) history.Source {
	switch name {
	case "SECONDARY":
		return history.Secondary
	case "CLIPBOARD":
		return history.Clipboard
	default:
		return history.Primary
	}
}

// lossyUTF8 decodes raw bytes as UTF-8, substituting the replacement
// character for invalid sequences rather than failing (spec.md §4.1
// "lossy-UTF8-decode").
func lossyUTF8(raw []byte) string {
	return strings.ToValidUTF8(string(raw), "�")
}

// handleSelectionRequest answers a SelectionRequest on behalf of the
// currently selected clip (spec.md §4.1 "Serving").
func (e *Engine) handleSelectionRequest(ev SelectionRequest) error {
	targetsAtom, err := e.atoms.Get(targetsName, true)
	if err != nil {
		return fmt.Errorf("intern TARGETS: %w", err)
	}
	utf8Atom, err := e.atoms.Get(utf8StringName, true)
	if err != nil {
		return fmt.Errorf("intern UTF8_STRING: %w", err)
	}

	switch ev.Target {
	case targetsAtom:
		clip, ok := e.history.Selection()
		if !ok {
			if err := e.disp.ChangePropertyAtoms(ev.Requestor, ev.Property, nil); err != nil {
				e.log.Warnf("change property (empty targets) failed: %v", err)
			}
		} else {
			_ = clip
			if err := e.disp.ChangePropertyAtoms(ev.Requestor, ev.Property, []xproto.Atom{targetsAtom, utf8Atom}); err != nil {
				e.log.Warnf("change property (targets) failed: %v", err)
			}
		}
		return e.sendNotify(ev, ev.Property)

	case utf8Atom:
		clip, ok := e.history.Selection()
		payload := "n/a"
		if ok {
			payload = clip.Contents.Text
		}
		if err := e.disp.ChangePropertyBytes(ev.Requestor, ev.Property, utf8Atom, []byte(payload)); err != nil {
			e.log.Warnf("change property (utf8) failed: %v", err)
		}
		return e.sendNotify(ev, ev.Property)

	default:
		// Unsupported target: property left untouched, notify still
		// sent (spec.md §9 open question — not "fixed" here).
		return e.sendNotify(ev, ev.Property)
	}
}

func (e *Engine) sendNotify(ev SelectionRequest, property xproto.Atom) error {
	if err := e.disp.SendSelectionNotify(ev.Requestor, 0, ev.Selection, ev.Target, property); err != nil {
		return fmt.Errorf("send selection notify: %w", err)
	}
	return e.disp.Flush()
}

// Run drives the engine against disp.NextEvent until it returns an
// error. internal/eventloop does not use it: it reads the shared
// connection itself and calls HandleEvent (as tests do against
// injected events).
func (e *Engine) Run() error {
	for {
		ev, err := e.disp.NextEvent()
		if err != nil {
			return fmt.Errorf("wait for event: %w", err)
		}
		if err := e.HandleEvent(ev); err != nil {
			e.log.Errorf("handle event: %v", err)
		}
	}
}
