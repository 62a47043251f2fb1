package chessdto

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindOfWrapped(t *testing.T) {
	base := InvalidState("game_not_active", "finished", "game is not active")
	wrapped := fmt.Errorf("move: %w", base)

	assert.Equal(t, KindInvalidState, KindOf(wrapped))
	assert.Equal(t, "game_not_active", CodeOf(wrapped))
	assert.Equal(t, Kind(""), KindOf(errors.New("plain")))
}

func TestIsMatchesByCode(t *testing.T) {
	sentinel := &DomainError{Code: "game_full"}
	err := Conflict("game_full", "game is full")

	assert.True(t, errors.Is(err, sentinel))
	assert.False(t, errors.Is(err, &DomainError{Code: "other"}))
	assert.True(t, err.Retryable)
}

func TestErrorMessages(t *testing.T) {
	err := InvalidState("not_your_turn", "turn=b", "not your turn")
	assert.Equal(t, "not your turn (state=turn=b)", err.Error())

	ill := IllegalMove("invalid move e2e5", "board")
	assert.Equal(t, "illegal move: invalid move e2e5", ill.Error())
	assert.Equal(t, "board", ill.Board)

	cause := errors.New("connection refused")
	sf := StoreFailure("load game", cause)
	require.ErrorIs(t, sf, cause)
	assert.Contains(t, sf.Error(), "connection refused")
}
