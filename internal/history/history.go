// Package history implements the bounded, deduplicating, containment-
// aware ring of captured clips described in spec.md §3/§4.2: stable
// monotonically-increasing logical indices that survive eviction, a
// current-selection pointer that survives eviction of its originating
// ring entry, and a fuzzy ranked search.
package history

import (
	"sort"
	"strings"
	"sync"

	"github.com/sahilm/fuzzy"
)

// DefaultMaxClips is the default ring capacity (spec.md §3).
const DefaultMaxClips = 100

// Source identifies which X11 selection a clip was captured from.
type Source int

const (
	Primary Source = iota
	Secondary
	Clipboard
)

func (s Source) String() string {
	switch s {
	case Primary:
		return "PRIMARY"
	case Secondary:
		return "SECONDARY"
	case Clipboard:
		return "CLIPBOARD"
	default:
		return "UNKNOWN"
	}
}

// Contents is a tagged variant over a clip's payload. Today only Text
// is populated; future variants (e.g. Image) are anticipated by the
// tag rather than widening Clip itself (spec.md §3).
type Contents struct {
	Text string
}

// Clip is an immutable captured snippet. Values are cheap to clone by
// value, which is what lets Store.selection survive the eviction of
// its originating ring entry.
type Clip struct {
	Source   Source
	Contents Contents
}

// Store is the bounded ring described by spec.md §3/§4.2. All
// operations are mutually exclusive under a single mutex so that Add
// and Select always observe a consistent snapshot (spec.md §4.2
// "Concurrency").
type Store struct {
	mu         sync.Mutex
	ring       []Clip
	startIndex int
	selection  *Clip
	maxClips   int
}

// New returns an empty Store bounded to maxClips entries. A
// non-positive maxClips falls back to DefaultMaxClips.
func New(maxClips int) *Store {
	if maxClips <= 0 {
		maxClips = DefaultMaxClips
	}
	return &Store{maxClips: maxClips}
}

// Add inserts clip at the tail, applying dedup and then containment
// collapse (spec.md §4.2 step 1-3), then evicting the head if the ring
// overflows. It returns the clip's logical index, or ok=false if the
// clip was a duplicate and nothing changed. Dedup runs first so that an
// exact repeat of the current tail is rejected outright rather than
// popped and silently re-pushed.
func (s *Store) Add(clip Clip) (index int, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.ring {
		if existing.Contents.Text == clip.Contents.Text {
			return 0, false
		}
	}

	if n := len(s.ring); n > 0 && strings.Contains(clip.Contents.Text, s.ring[n-1].Contents.Text) {
		s.ring = s.ring[:n-1]
	}

	s.ring = append(s.ring, clip)
	if len(s.ring) > s.maxClips {
		s.ring = s.ring[1:]
		s.startIndex++
	}
	return s.startIndex + len(s.ring) - 1, true
}

// At returns the clip at logical index idx, or ok=false if it has
// already been evicted or was never admitted.
func (s *Store) At(idx int) (clip Clip, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.atLocked(idx)
}

func (s *Store) atLocked(idx int) (Clip, bool) {
	if idx < s.startIndex {
		return Clip{}, false
	}
	pos := idx - s.startIndex
	if pos >= len(s.ring) {
		return Clip{}, false
	}
	return s.ring[pos], true
}

// Select copies the clip at logical index idx into the selection
// pointer. It returns false without effect if idx is not currently
// present.
func (s *Store) Select(idx int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	clip, ok := s.atLocked(idx)
	if !ok {
		return false
	}
	s.selection = &clip
	return true
}

// SelectClip unconditionally sets the selection pointer to clip,
// independent of whether it still resides in the ring (used by the
// picker, whose chosen entry may already be stale by the time commit
// runs).
func (s *Store) SelectClip(clip Clip) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selection = &clip
}

// Selection returns a copy of the current selection, if any.
func (s *Store) Selection() (Clip, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.selection == nil {
		return Clip{}, false
	}
	return *s.selection, true
}

// Len returns the number of clips currently in the ring.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ring)
}

// Latest returns up to max clips, newest first. This is the picker's
// empty-input fast path (spec.md §4.2 "Empty pattern is not handled
// here").
func (s *Store) Latest(max int) []Clip {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.ring)
	if max > n {
		max = n
	}
	out := make([]Clip, max)
	for i := 0; i < max; i++ {
		out[i] = s.ring[n-1-i]
	}
	return out
}

// Search fuzzy-scores every clip's text against pattern and returns up
// to max clips ranked by descending score, ties broken newer-first
// (spec.md §9 fixes the tie-break since the original source left it
// unspecified).
func (s *Store) Search(pattern string, max int) []Clip {
	s.mu.Lock()
	defer s.mu.Unlock()

	data := make(fuzzySource, len(s.ring))
	copy(data, s.ring)

	matches := fuzzy.FindFrom(pattern, data)
	sortByScoreNewerFirst(matches)

	if max > len(matches) {
		max = len(matches)
	}
	out := make([]Clip, max)
	for i := 0; i < max; i++ {
		out[i] = s.ring[matches[i].Index]
	}
	return out
}

// sortByScoreNewerFirst ranks fuzzy matches by descending score,
// breaking ties by descending ring index (newer first), the
// determinism rule spec.md §9 fixes since sahilm/fuzzy itself makes no
// ordering promise among equal scores.
func sortByScoreNewerFirst(matches fuzzy.Matches) {
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].Index > matches[j].Index
	})
}

// fuzzySource adapts the ring to fuzzy.Source without copying text.
type fuzzySource []Clip

func (f fuzzySource) String(i int) string { return f[i].Contents.Text }
func (f fuzzySource) Len() int            { return len(f) }
