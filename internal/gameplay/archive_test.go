package gameplay

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/abmercy035/chesschamp-api/internal/rules"
)

func TestBuildPGN(t *testing.T) {
	start := time.Date(2026, 3, 9, 12, 0, 0, 0, time.UTC)
	g := &Game{
		ID:         "g1",
		Host:       "alice",
		Opponent:   `bob "the rook"`,
		Status:     StatusFinished,
		StartFEN:   rules.StartFEN,
		GameType:   TypeTournament,
		Tournament: &TournamentRef{ID: "spring", Round: 2, MatchIndex: 0},
		Moves: []MoveRecord{
			{SAN: "f3"}, {SAN: "e5"}, {SAN: "g4"}, {SAN: "Qh4#"},
		},
		Winner:    `bob "the rook"`,
		WinReason: ReasonCheckmate,
		StartTime: &start,
	}

	pgn := BuildPGN(g)
	assert.Contains(t, pgn, `[Event "Tournament spring"]`)
	assert.Contains(t, pgn, `[Date "2026.03.09"]`)
	assert.Contains(t, pgn, `[Round "2.1"]`)
	assert.Contains(t, pgn, `[Black "bob 'the rook'"]`)
	assert.Contains(t, pgn, `[Result "0-1"]`)
	assert.Contains(t, pgn, `[Termination "checkmate"]`)
	assert.NotContains(t, pgn, "[SetUp")
	assert.True(t, strings.HasSuffix(pgn, "1. f3 e5 2. g4 Qh4# 0-1"), pgn)
}

func TestBuildPGNCustomStartAndDraw(t *testing.T) {
	fen := "8/8/8/8/8/k7/2p5/3K4 w - - 0 1"
	g := &Game{
		Host:      "a",
		Opponent:  "b",
		Status:    StatusFinished,
		StartFEN:  fen,
		GameType:  TypeCasual,
		Moves:     []MoveRecord{{SAN: "Kxc2"}},
		WinReason: ReasonInsufficientMaterial,
		CreatedAt: time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC),
	}
	pgn := BuildPGN(g)
	assert.Contains(t, pgn, `[SetUp "1"]`)
	assert.Contains(t, pgn, `[FEN "`+fen+`"]`)
	assert.Contains(t, pgn, `[Round "-"]`)
	assert.True(t, strings.HasSuffix(pgn, "1. Kxc2 1/2-1/2"), pgn)

	g.Status = StatusActive
	assert.True(t, strings.HasSuffix(BuildPGN(g), "*"))
	assert.Empty(t, BuildPGN(nil))
}
