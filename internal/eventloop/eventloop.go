// Package eventloop drives the daemon's single cooperative loop: one
// goroutine multiplexes the shared X11 connection's events against the
// control-plane command channel (spec.md §4.6). Because the picker
// window and the selection engine's getter/setter windows all share
// one xgb.Conn, events are routed by type rather than polled
// independently — KeyPress/Expose/FocusOut belong to the picker,
// everything selection-related belongs to the engine, and the picker
// is always checked first.
package eventloop

import (
	"fmt"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/xfixes"
	"github.com/BurntSushi/xgb/xproto"

	"github.com/triiberg/repeat/internal/control"
	"github.com/triiberg/repeat/internal/history"
	"github.com/triiberg/repeat/internal/picker"
	"github.com/triiberg/repeat/internal/rlog"
	"github.com/triiberg/repeat/internal/selection"
)

// DumpSink persists the full clip history when the control plane's
// Dump verb fires (spec.md "Supplemented features" — carried over from
// the teacher's internal/ipc dump op).
type DumpSink func([]history.Clip) error

// Loop owns the shared connection and routes its events to the
// selection engine and picker window, alongside draining the
// control-plane command channel (grounded on the teacher's
// cmd/smartpasta-daemon two-goroutine design, collapsed to one
// goroutine per spec.md §4.6's single cooperative loop requirement).
type Loop struct {
	conn   *xgb.Conn
	engine *selection.Engine
	window *picker.Window
	ctrl   *control.Server
	store  *history.Store
	log    rlog.Logger
	onDump DumpSink
}

// New assembles a Loop from its already-constructed parts, all sharing
// conn.
func New(conn *xgb.Conn, engine *selection.Engine, window *picker.Window, ctrl *control.Server, store *history.Store, log rlog.Logger) *Loop {
	if log == nil {
		log = rlog.NewNop()
	}
	return &Loop{conn: conn, engine: engine, window: window, ctrl: ctrl, store: store, log: log}
}

// OnDump registers the sink invoked by the Dump verb.
func (l *Loop) OnDump(sink DumpSink) { l.onDump = sink }

// Run blocks, alternating between the next X11 event and any ready
// control command, until the connection's event stream ends.
func (l *Loop) Run() error {
	events := make(chan interface{}, 1)
	errs := make(chan error, 1)

	go func() {
		for {
			ev, err := l.conn.WaitForEvent()
			if err != nil {
				errs <- err
				return
			}
			events <- ev
		}
	}()

	for {
		select {
		case err := <-errs:
			return fmt.Errorf("display event stream: %w", err)

		case raw := <-events:
			if err := l.dispatch(raw); err != nil {
				l.log.Errorf("dispatch event: %v", err)
			}

		case cmd := <-l.ctrl.Commands():
			if err := l.handleCommand(cmd.Verb); err != nil {
				l.log.Errorf("handle %s command: %v", cmd.Verb, err)
			}
		}
	}
}

// dispatch routes one raw xgb event, checking picker-relevant event
// types before engine-relevant ones (spec.md §4.6 "Picker-before-
// Engine dispatch order").
func (l *Loop) dispatch(raw interface{}) error {
	switch v := raw.(type) {
	case xproto.KeyPressEvent:
		if !l.window.Open() {
			return nil
		}
		return l.window.HandleEvent(picker.KeyPress{Keycode: v.Detail, State: v.State})
	case xproto.ExposeEvent:
		if !l.window.Open() {
			return nil
		}
		return l.window.HandleEvent(picker.Expose{Window: v.Window})
	case xproto.FocusOutEvent:
		if !l.window.Open() {
			return nil
		}
		return l.window.HandleEvent(picker.FocusOut{Window: v.Event})

	case xfixes.SelectionNotifyEvent:
		return l.engine.HandleEvent(selection.XFixesSelectionNotify{Selection: v.Selection, Owner: v.Owner})
	case xproto.SelectionNotifyEvent:
		return l.engine.HandleEvent(selection.SelectionNotify{
			Requestor: v.Requestor,
			Selection: v.Selection,
			Target:    v.Target,
			Property:  v.Property,
		})
	case xproto.SelectionRequestEvent:
		return l.engine.HandleEvent(selection.SelectionRequest{
			Owner:     v.Owner,
			Requestor: v.Requestor,
			Selection: v.Selection,
			Target:    v.Target,
			Property:  v.Property,
			Time:      v.Time,
		})

	default:
		return nil
	}
}

func (l *Loop) handleCommand(verb control.Verb) error {
	switch verb {
	case control.Show:
		return l.window.Show()
	case control.Pause:
		l.engine.Pause()
		return nil
	case control.Start:
		l.engine.Resume()
		return nil
	case control.Dump:
		return l.dump()
	default:
		return fmt.Errorf("unhandled verb %q", verb)
	}
}

func (l *Loop) dump() error {
	if l.onDump == nil {
		return nil
	}
	return l.onDump(l.store.Latest(l.store.Len()))
}
