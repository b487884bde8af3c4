// Package picker implements the pop-up clip picker: an input buffer
// driving a fuzzy re-search against the history store, a selection
// cursor, and a commit action that hands the chosen clip back to the
// selection engine (spec.md §4.3).
package picker

import "github.com/triiberg/repeat/internal/history"

// maxResults bounds how many ranked results the controller keeps
// in memory at once, mirroring the original source's search(text, 100).
const maxResults = 100

// Controller is the picker's input/search/cursor state machine,
// grounded on the original source's Window (input, searches,
// current_choice fields) but split out from window/rendering concerns
// so it can be driven and tested without a live X11 connection.
type Controller struct {
	store   *history.Store
	input   []rune
	results []history.Clip
	cursor  int
}

// NewController creates a controller against store, seeded with the
// most recent clips (the original source's research() empty-input
// branch).
func NewController(store *history.Store) *Controller {
	c := &Controller{store: store}
	c.research()
	return c
}

// Input returns the current search text.
func (c *Controller) Input() string { return string(c.input) }

// Results returns the current ranked result set, newest-first on an
// empty query or fuzzy-ranked otherwise.
func (c *Controller) Results() []history.Clip { return c.results }

// Cursor returns the index into Results() that is currently
// highlighted.
func (c *Controller) Cursor() int { return c.cursor }

// Reset clears the input and re-seeds the results from the most recent
// clips, used each time the picker is shown (spec.md §4.3 "Show
// re-initializes").
func (c *Controller) Reset() {
	c.input = c.input[:0]
	c.research()
}

// AppendRune appends r to the search text and re-searches.
func (c *Controller) AppendRune(r rune) {
	c.input = append(c.input, r)
	c.research()
}

// Backspace removes the last rune of the search text, if any, and
// re-searches.
func (c *Controller) Backspace() {
	if len(c.input) == 0 {
		return
	}
	c.input = c.input[:len(c.input)-1]
	c.research()
}

func (c *Controller) research() {
	c.cursor = 0
	if len(c.input) == 0 {
		c.results = c.store.Latest(maxResults)
		return
	}
	c.results = c.store.Search(string(c.input), maxResults)
}

// MoveCursor shifts the highlighted result by delta, clamped to
// [0, len(results)-1]. The original source clamped Down to
// current_choice < len(searches), which let the cursor walk one past
// the last entry; spec.md §9 corrects that to a proper inclusive
// bound.
func (c *Controller) MoveCursor(delta int) {
	if len(c.results) == 0 {
		return
	}
	next := c.cursor + delta
	if next < 0 {
		next = 0
	}
	if max := len(c.results) - 1; next > max {
		next = max
	}
	c.cursor = next
}

// Selected returns the currently-highlighted clip, if any results
// exist.
func (c *Controller) Selected() (history.Clip, bool) {
	if c.cursor < 0 || c.cursor >= len(c.results) {
		return history.Clip{}, false
	}
	return c.results[c.cursor], true
}

// Commit records the highlighted clip as the history store's current
// selection, returning it so the caller can drive ownership/paste.
func (c *Controller) Commit() (history.Clip, bool) {
	clip, ok := c.Selected()
	if !ok {
		return history.Clip{}, false
	}
	c.store.SelectClip(clip)
	return clip, true
}
