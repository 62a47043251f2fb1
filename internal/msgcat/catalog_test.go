package msgcat

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderEmbedded(t *testing.T) {
	c := MustDefault()

	got, err := c.Render("tournament.registration_confirmed.message", map[string]any{"name": "Autumn Open"})
	require.NoError(t, err)
	assert.Equal(t, `You've successfully registered for "Autumn Open".`, got)

	got, err = c.Render("game.gameEnd.message", map[string]any{"winner": "", "reason": "stalemate"})
	require.NoError(t, err)
	assert.Equal(t, "Game drawn by stalemate.", got)
}

func TestCompletedRankBranches(t *testing.T) {
	c := MustDefault()
	cases := map[int]string{
		1:  "Congratulations, you won!",
		2:  "Great job finishing 2nd place!",
		7:  "Top 10 finish - #7!",
		14: "Final ranking: #14",
	}
	for rank, want := range cases {
		got, err := c.Render("tournament.tournament_completed.message", map[string]any{"name": "Cup", "rank": rank})
		require.NoError(t, err)
		assert.Contains(t, got, want)
	}
}

func TestMissingKeyAndFallback(t *testing.T) {
	c := MustDefault()
	_, err := c.Render("tournament.registration_confirmed.message", map[string]any{})
	assert.Error(t, err)
	_, err = c.Render("nope", nil)
	assert.Error(t, err)
	assert.Equal(t, "fallback", c.RenderOr("nope", nil, "fallback"))

	var nilCat *Catalog
	assert.Equal(t, "x", nilCat.RenderOr("game.move.message", nil, "x"))
}

func TestOverrides(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.yaml"), []byte("game:\n  move:\n    message: \"{{.by}} -> {{.san}}\"\n"), 0o600))

	c, err := New(dir)
	require.NoError(t, err)
	got, err := c.Render("game.move.message", map[string]any{"by": "white", "san": "e4"})
	require.NoError(t, err)
	assert.Equal(t, "white -> e4", got)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.yaml"), []byte("game:\n  move:\n    message: dup\n"), 0o600))
	_, err = New(dir)
	assert.Error(t, err)
}
