package picker

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/triiberg/repeat/internal/history"
)

func seedStore(t *testing.T, texts ...string) *history.Store {
	t.Helper()
	s := history.New(100)
	for _, text := range texts {
		_, ok := s.Add(history.Clip{Source: history.Primary, Contents: history.Contents{Text: text}})
		require.True(t, ok)
	}
	return s
}

func TestNewControllerSeedsNewestFirst(t *testing.T) {
	s := seedStore(t, "a", "b", "c")
	c := NewController(s)

	require.Len(t, c.Results(), 3)
	assert.Equal(t, "c", c.Results()[0].Contents.Text)
	assert.Equal(t, 0, c.Cursor())
}

func TestAppendRuneNarrowsResults(t *testing.T) {
	s := seedStore(t, "apple pie", "banana bread", "apple tart")
	c := NewController(s)

	c.AppendRune('a')
	c.AppendRune('p')
	c.AppendRune('p')

	for _, clip := range c.Results() {
		assert.Contains(t, clip.Contents.Text, "apple")
	}
	assert.Equal(t, 0, c.Cursor(), "appending resets the cursor")
}

func TestBackspaceWidensResultsAgain(t *testing.T) {
	s := seedStore(t, "apple", "banana")
	c := NewController(s)
	c.AppendRune('z') // matches nothing
	assert.Empty(t, c.Results())

	c.Backspace()
	assert.Len(t, c.Results(), 2)
}

func TestMoveCursorClampsToLastResultInclusive(t *testing.T) {
	s := seedStore(t, "a", "b", "c")
	c := NewController(s)
	require.Len(t, c.Results(), 3)

	c.MoveCursor(1)
	assert.Equal(t, 1, c.Cursor())
	c.MoveCursor(1)
	assert.Equal(t, 2, c.Cursor())

	// One more Down must not walk past the last index (the original
	// source's off-by-one let current_choice == len(searches)).
	c.MoveCursor(1)
	assert.Equal(t, 2, c.Cursor())

	c.MoveCursor(-10)
	assert.Equal(t, 0, c.Cursor())
}

func TestMoveCursorOnEmptyResultsIsNoop(t *testing.T) {
	s := history.New(10)
	c := NewController(s)
	assert.Empty(t, c.Results())

	c.MoveCursor(1)
	assert.Equal(t, 0, c.Cursor())
}

func TestCommitStoresSelectionAndSurvivesReset(t *testing.T) {
	s := seedStore(t, "alpha", "beta")
	c := NewController(s)
	c.MoveCursor(1) // highlight "alpha" (older, since newest-first is beta, alpha)

	clip, ok := c.Commit()
	require.True(t, ok)
	assert.Equal(t, "alpha", clip.Contents.Text)

	c.Reset()
	sel, ok := s.Selection()
	require.True(t, ok)
	assert.Equal(t, "alpha", sel.Contents.Text)
}

func TestResetReseedsFromLatest(t *testing.T) {
	s := seedStore(t, "one", "two")
	c := NewController(s)
	c.AppendRune('o')
	c.AppendRune('n')
	c.AppendRune('e')
	require.Len(t, c.Results(), 1)

	c.Reset()
	assert.Equal(t, "", c.Input())
	assert.Len(t, c.Results(), 2)
}

func TestCommitWithNoResultsFails(t *testing.T) {
	s := history.New(10)
	c := NewController(s)
	_, ok := c.Commit()
	assert.False(t, ok)
}

func TestManyEntriesBoundedByMaxResults(t *testing.T) {
	s := history.New(200)
	for i := 0; i < 150; i++ {
		s.Add(history.Clip{Source: history.Primary, Contents: history.Contents{Text: fmt.Sprintf("entry %d", i)}})
	}
	c := NewController(s)
	assert.LessOrEqual(t, len(c.Results()), maxResults)
}
