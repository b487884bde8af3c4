package history

import (
	"fmt"
	"testing"

	"github.com/sahilm/fuzzy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func textClip(source Source, text string) Clip {
	return Clip{Source: source, Contents: Contents{Text: text}}
}

// S1-ish: index monotonicity (testable property 1).
func TestAddReturnsMonotonicIndices(t *testing.T) {
	s := New(DefaultMaxClips)
	var last = -1
	for i := 0; i < 10; i++ {
		idx, ok := s.Add(textClip(Primary, fmt.Sprintf("unique %d", i)))
		require.True(t, ok)
		assert.Greater(t, idx, last)
		last = idx
	}
}

// Testable property 2: dedup.
func TestAddDedupsAgainstTail(t *testing.T) {
	s := New(DefaultMaxClips)
	idx, ok := s.Add(textClip(Primary, "foo"))
	require.True(t, ok)
	assert.Equal(t, 0, idx)

	_, ok = s.Add(textClip(Primary, "foo"))
	assert.False(t, ok)
	assert.Equal(t, 1, s.Len())
}

func TestAddDedupsAgainstAnyEntry(t *testing.T) {
	s := New(DefaultMaxClips)
	s.Add(textClip(Primary, "aaa"))
	s.Add(textClip(Primary, "bbb"))

	_, ok := s.Add(textClip(Primary, "aaa"))
	assert.False(t, ok)
	assert.Equal(t, 2, s.Len())
}

// Testable property 3 / scenario S5: containment collapse.
func TestAddCollapsesContainedTail(t *testing.T) {
	s := New(DefaultMaxClips)
	fstIdx, ok := s.Add(textClip(Primary, "fst"))
	require.True(t, ok)
	assert.Equal(t, 0, fstIdx)

	sndIdx, ok := s.Add(textClip(Primary, "fst after"))
	require.True(t, ok)
	assert.Equal(t, 1, sndIdx)

	_, stillThere := s.At(fstIdx)
	assert.False(t, stillThere, "fst should have been collapsed into fst after")
	assert.Equal(t, 1, s.Len())

	thirdIdx, ok := s.Add(textClip(Primary, "s"))
	require.True(t, ok)
	assert.Equal(t, 2, thirdIdx)
	// "s" does not contain "fst after", so the prior entry survives.
	clip, ok := s.At(sndIdx)
	require.True(t, ok)
	assert.Equal(t, "fst after", clip.Contents.Text)
}

// Testable property 4 / scenario S2: bounded size and rolling eviction.
func TestAddEvictsHeadWhenFull(t *testing.T) {
	s := New(100)
	var lastIdx int
	for i := 1; i <= 200; i++ {
		idx, ok := s.Add(textClip(Primary, fmt.Sprintf("clip %d", i)))
		require.True(t, ok)
		lastIdx = idx
	}

	assert.Equal(t, 100, s.Len())
	assert.Equal(t, 199, lastIdx)

	_, ok := s.At(0)
	assert.False(t, ok)

	clip, ok := s.At(199)
	require.True(t, ok)
	assert.Equal(t, "clip 200", clip.Contents.Text)
}

// Testable property 5: stable lookup.
func TestAtIsStableUntilEvicted(t *testing.T) {
	s := New(3)
	idx, ok := s.Add(textClip(Primary, "a"))
	require.True(t, ok)

	clip, ok := s.At(idx)
	require.True(t, ok)
	assert.Equal(t, "a", clip.Contents.Text)

	s.Add(textClip(Primary, "b"))
	s.Add(textClip(Primary, "c"))
	s.Add(textClip(Primary, "d")) // evicts "a"

	_, ok = s.At(idx)
	assert.False(t, ok)
}

// Testable property 6 / scenario S3: selection survives eviction.
func TestSelectionSurvivesEviction(t *testing.T) {
	s := New(100)
	idx, ok := s.Add(textClip(Primary, "A"))
	require.True(t, ok)
	require.True(t, s.Select(idx))

	for i := 0; i < 200; i++ {
		s.Add(textClip(Primary, fmt.Sprintf("clip %d", i)))
	}

	sel, ok := s.Selection()
	require.True(t, ok)
	assert.Equal(t, "A", sel.Contents.Text)

	_, stillInRing := s.At(idx)
	assert.False(t, stillInRing)
}

func TestSelectClipDoesNotRequireRingMembership(t *testing.T) {
	s := New(10)
	s.Add(textClip(Primary, "x"))

	stale := textClip(Secondary, "never added")
	s.SelectClip(stale)

	sel, ok := s.Selection()
	require.True(t, ok)
	assert.Equal(t, stale, sel)
}

func TestSelectUnknownIndexFails(t *testing.T) {
	s := New(10)
	assert.False(t, s.Select(5))
	_, ok := s.Selection()
	assert.False(t, ok)
}

func TestLatestIsNewestFirstAndBounded(t *testing.T) {
	s := New(10)
	for i := 0; i < 5; i++ {
		s.Add(textClip(Primary, fmt.Sprintf("c%d", i)))
	}

	latest := s.Latest(3)
	require.Len(t, latest, 3)
	assert.Equal(t, "c4", latest[0].Contents.Text)
	assert.Equal(t, "c3", latest[1].Contents.Text)
	assert.Equal(t, "c2", latest[2].Contents.Text)
}

// Scenario S6: fuzzy search ordering.
func TestSearchRanksAndFilters(t *testing.T) {
	s := New(10)
	s.Add(textClip(Primary, "fst string"))
	s.Add(textClip(Secondary, "second string"))

	both := s.Search("string", 5)
	assert.Len(t, both, 2)

	second := s.Search("second", 5)
	require.Len(t, second, 1)
	assert.Equal(t, "second string", second[0].Contents.Text)

	fst := s.Search("fst", 5)
	require.Len(t, fst, 1)
	assert.Equal(t, "fst string", fst[0].Contents.Text)
}

func TestSortByScoreNewerFirstBreaksTiesByIndex(t *testing.T) {
	matches := fuzzy.Matches{
		{Str: "older", Index: 0, Score: 10},
		{Str: "newer", Index: 2, Score: 10},
		{Str: "best", Index: 1, Score: 20},
	}

	sortByScoreNewerFirst(matches)

	require.Len(t, matches, 3)
	assert.Equal(t, "best", matches[0].Str, "higher score wins regardless of index")
	assert.Equal(t, "newer", matches[1].Str, "equal score ties broken by higher (newer) index")
	assert.Equal(t, "older", matches[2].Str)
}
