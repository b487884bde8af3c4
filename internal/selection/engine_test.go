package selection

import (
	"testing"

	"github.com/BurntSushi/xgb/xproto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/triiberg/repeat/internal/history"
	"github.com/triiberg/repeat/internal/rlog"
)

func newTestEngine(t *testing.T) (*Engine, *FakeDisplay, *history.Store) {
	t.Helper()
	disp := NewFakeDisplay()
	store := history.New(10)
	e, err := New(disp, store, rlog.NewNop())
	require.NoError(t, err)
	return e, disp, store
}

func TestNewQueriesTargetsForAllSelections(t *testing.T) {
	_, disp, _ := newTestEngine(t)

	require.Len(t, disp.Converts, 3)
	targetsAtom := disp.AtomByName(targetsName)
	for _, c := range disp.Converts {
		assert.Equal(t, targetsAtom, c.Target)
	}
}

func encodeAtoms(atoms ...xproto.Atom) []byte {
	data := make([]byte, 4*len(atoms))
	for i, a := range atoms {
		le32(data[i*4:], uint32(a))
	}
	return data
}

func TestCaptureFlowStoresClipOnUTF8Target(t *testing.T) {
	e, disp, store := newTestEngine(t)

	primaryAtom := disp.AtomByName("PRIMARY")
	targetsAtom := disp.AtomByName(targetsName)
	utf8Atom := disp.AtomByName(utf8StringName)

	var primaryConv ConvertCall
	for _, c := range disp.Converts {
		if c.Selection == primaryAtom {
			primaryConv = c
		}
	}
	require.NotZero(t, primaryConv.Property)

	// Owner replies with a TARGETS list including a zero atom (skipped)
	// and a trailing unaligned byte (also skipped), per spec.md §7.
	payload := append(encodeAtoms(disp.AtomByName("STRING"), 0, utf8Atom), 0x42)
	disp.SetPropertyForTest(e.getter, primaryConv.Property, xproto.AtomAtom, payload)

	err := e.HandleEvent(SelectionNotify{
		Requestor: e.getter,
		Selection: primaryAtom,
		Target:    targetsAtom,
		Property:  primaryConv.Property,
	})
	require.NoError(t, err)

	// completeTargetsQuery should have kicked off a text query, reusing
	// the now-freed property.
	var textConv ConvertCall
	found := false
	for _, c := range disp.Converts {
		if c.Selection == primaryAtom && c.Target == utf8Atom {
			textConv = c
			found = true
		}
	}
	require.True(t, found, "expected a follow-up UTF8_STRING conversion")

	disp.SetPropertyForTest(e.getter, textConv.Property, utf8Atom, []byte("hello clipboard"))
	err = e.HandleEvent(SelectionNotify{
		Requestor: e.getter,
		Selection: primaryAtom,
		Target:    utf8Atom,
		Property:  textConv.Property,
	})
	require.NoError(t, err)

	latest := store.Latest(1)
	require.Len(t, latest, 1)
	assert.Equal(t, "hello clipboard", latest[0].Contents.Text)
	assert.Equal(t, history.Primary, latest[0].Source)
}

func TestHandleSelectionRequestServesTargetsThenText(t *testing.T) {
	e, disp, store := newTestEngine(t)

	idx, ok := store.Add(history.Clip{Source: history.Primary, Contents: history.Contents{Text: "served text"}})
	require.True(t, ok)
	require.True(t, store.Select(idx))

	primaryAtom := disp.AtomByName("PRIMARY")
	targetsAtom := disp.AtomByName(targetsName)
	utf8Atom := disp.AtomByName(utf8StringName)

	const requestor xproto.Window = 500
	targetsProp := disp.AtomByName("REQ_TARGETS_PROP")

	err := e.HandleEvent(SelectionRequest{
		Owner:     e.setter,
		Requestor: requestor,
		Selection: primaryAtom,
		Target:    targetsAtom,
		Property:  targetsProp,
	})
	require.NoError(t, err)

	raw, ok := disp.PropertyBytes(requestor, targetsProp)
	require.True(t, ok)
	assert.Equal(t, encodeAtoms(targetsAtom, utf8Atom), raw)
	require.Len(t, disp.Notifies, 1)
	assert.Equal(t, targetsProp, disp.Notifies[0].Property)

	textProp := disp.AtomByName("REQ_TEXT_PROP")
	err = e.HandleEvent(SelectionRequest{
		Owner:     e.setter,
		Requestor: requestor,
		Selection: primaryAtom,
		Target:    utf8Atom,
		Property:  textProp,
	})
	require.NoError(t, err)

	raw, ok = disp.PropertyBytes(requestor, textProp)
	require.True(t, ok)
	assert.Equal(t, "served text", string(raw))
	require.Len(t, disp.Notifies, 2)
}

func TestHandleSelectionRequestWithNoSelectionSendsEmptyTargets(t *testing.T) {
	e, disp, _ := newTestEngine(t)

	primaryAtom := disp.AtomByName("PRIMARY")
	targetsAtom := disp.AtomByName(targetsName)
	const requestor xproto.Window = 777
	prop := disp.AtomByName("EMPTY_TARGETS_PROP")

	err := e.HandleEvent(SelectionRequest{
		Owner:     e.setter,
		Requestor: requestor,
		Selection: primaryAtom,
		Target:    targetsAtom,
		Property:  prop,
	})
	require.NoError(t, err)

	raw, ok := disp.PropertyBytes(requestor, prop)
	require.True(t, ok)
	assert.Empty(t, raw)
	require.Len(t, disp.Notifies, 1)
}

func TestOwnerChangeOnSetterWindowIsIgnored(t *testing.T) {
	e, disp, _ := newTestEngine(t)
	before := len(disp.Converts)

	primaryAtom := disp.AtomByName("PRIMARY")
	err := e.HandleEvent(XFixesSelectionNotify{Selection: primaryAtom, Owner: e.setter})
	require.NoError(t, err)

	assert.Len(t, disp.Converts, before)
}

func TestOwnerChangeWhilePausedIsIgnored(t *testing.T) {
	e, disp, _ := newTestEngine(t)
	e.Pause()
	assert.True(t, e.Paused())
	before := len(disp.Converts)

	primaryAtom := disp.AtomByName("PRIMARY")
	err := e.HandleEvent(XFixesSelectionNotify{Selection: primaryAtom, Owner: 12345})
	require.NoError(t, err)

	assert.Len(t, disp.Converts, before)

	e.Resume()
	assert.False(t, e.Paused())
	err = e.HandleEvent(XFixesSelectionNotify{Selection: primaryAtom, Owner: 12345})
	require.NoError(t, err)
	assert.Len(t, disp.Converts, before+1)
}

func TestTakeOwnershipSetsPrimaryOwner(t *testing.T) {
	e, disp, _ := newTestEngine(t)

	require.NoError(t, e.TakeOwnership())

	require.Len(t, disp.OwnershipCalls, 1)
	assert.Equal(t, e.setter, disp.OwnershipCalls[0].Window)
	assert.Equal(t, disp.AtomByName("PRIMARY"), disp.OwnershipCalls[0].Selection)
}

func TestUnknownPropertySelectionNotifyIsDropped(t *testing.T) {
	e, _, _ := newTestEngine(t)

	err := e.HandleEvent(SelectionNotify{Property: xproto.Atom(999999)})
	assert.NoError(t, err)
}
