package gameplay

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/abmercy035/chesschamp-api/internal/notify"
	"github.com/abmercy035/chesschamp-api/internal/obslog"
	"github.com/abmercy035/chesschamp-api/internal/rules"
	"github.com/abmercy035/chesschamp-api/pkg/chessdto"
)

type MoveOutcome struct {
	Game     *Game
	Move     MoveRecord
	Finished bool
}

// engineFor rebuilds the position by replaying the UCI history so repetition
// is visible to the engine. A history that does not reproduce the stored FEN
// falls back to loading the FEN directly.
func (m *Manager) engineFor(g *Game) (rules.Engine, error) {
	eng := m.newEngine()
	err := eng.Replay(g.StartFEN, g.UCIHistory())
	if err == nil && eng.FEN() == g.FEN {
		return eng, nil
	}
	obslog.L().Warn("game_replay_mismatch", zap.String("game_id", g.ID), zap.Int("moves", len(g.Moves)), zap.Error(err))
	if lerr := eng.Load(g.FEN); lerr != nil {
		return nil, chessdto.StoreFailure("load position", lerr)
	}
	return eng, nil
}

// Move validates and applies one move for the player whose turn the engine reports.
func (m *Manager) Move(ctx context.Context, gameID, userID string, spec chessdto.MoveSpec) (*MoveOutcome, error) {
	userID = strings.TrimSpace(userID)
	var (
		rec      MoveRecord
		mover    rules.Color
		finished bool
	)
	updated, err := m.store.Update(ctx, gameID, func(cur *Game) error {
		finished = false
		if cur.Status != StatusActive {
			return chessdto.InvalidState("game_not_active", string(cur.Status), "game is not active")
		}
		color := cur.ColorOf(userID)
		if color == "" {
			return chessdto.Unauthorized("not_a_player", "you are not a player in this game")
		}
		eng, err := m.engineFor(cur)
		if err != nil {
			return err
		}
		turn := eng.Turn()
		if color != turn {
			return chessdto.InvalidState("not_your_turn", "turn="+string(turn), "not your turn")
		}
		res, err := eng.Apply(spec)
		if err != nil {
			if ill, ok := rules.AsIllegalMove(err); ok {
				return chessdto.IllegalMove(ill.Error(), ill.Board)
			}
			return err
		}

		now := m.clock.Now().UTC()
		rec = MoveRecord{
			SAN:       res.SAN,
			UCI:       res.UCI,
			From:      res.From,
			To:        res.To,
			Piece:     res.Piece,
			Captured:  res.Captured,
			Promotion: res.Promotion,
			Flags:     res.Flags,
			FEN:       res.FEN,
			Timestamp: now,
		}
		mover = turn
		cur.Moves = append(cur.Moves, rec)
		cur.FEN = res.FEN
		cur.Turn = eng.Turn()
		cur.GameState = eng.Status()
		cur.UpdatedAt = now
		if spec.TimeLeft != nil {
			cur.TimeLeft = *spec.TimeLeft
		}
		if reason, done := terminalFor(cur.GameState); done {
			winner := ""
			if reason == ReasonCheckmate {
				winner = cur.PlayerFor(turn)
			}
			finish(cur, winner, reason, now)
			finished = true
		}
		return nil
	})
	if err != nil {
		if chessdto.KindOf(err) == chessdto.KindIllegalMove {
			obslog.L().Info("game_move_rejected", zap.String("game_id", gameID), zap.String("user_id", userID), zap.Error(err))
		}
		return nil, err
	}

	obslog.L().Info("game_move",
		zap.String("game_id", updated.ID),
		zap.String("user_id", userID),
		zap.String("san", rec.SAN),
		zap.String("uci", rec.UCI),
		zap.Int("ply", len(updated.Moves)),
		zap.String("status", string(updated.Status)),
	)

	by := map[string]any{"id": userID, "color": mover}
	if finished {
		m.afterFinish(ctx, updated, map[string]any{"finalMove": rec, "by": by})
	} else {
		m.notifier.Send(ctx, notify.GameChannel(updated.ID), notify.Notice{
			Type:     chessdto.EventMove,
			EntityID: updated.ID,
			Data: map[string]any{
				"gameId":    updated.ID,
				"move":      rec,
				"by":        by,
				"fen":       updated.FEN,
				"turn":      updated.Turn,
				"gameState": updated.GameState,
				"timeLeft":  updated.TimeLeft,
			},
			Vars: map[string]any{"by": mover.Name(), "san": rec.SAN},
		})
	}
	return &MoveOutcome{Game: updated, Move: rec, Finished: finished}, nil
}

type LegalMovesView struct {
	GameID  string            `json:"gameId"`
	Turn    rules.Color       `json:"turn"`
	InCheck bool              `json:"inCheck"`
	Moves   []rules.LegalMove `json:"moves"`
}

// LegalMoves lists the moves available to the side to move in an active game.
func (m *Manager) LegalMoves(ctx context.Context, gameID string) (*LegalMovesView, error) {
	g, err := m.Get(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if g.Status != StatusActive {
		return nil, chessdto.InvalidState("game_not_active", string(g.Status), "game is not active")
	}
	eng, err := m.engineFor(g)
	if err != nil {
		return nil, err
	}
	return &LegalMovesView{GameID: g.ID, Turn: eng.Turn(), InCheck: eng.InCheck(), Moves: eng.LegalMoves()}, nil
}

type BoardView struct {
	GameID string          `json:"gameId"`
	FEN    string          `json:"fen"`
	Turn   rules.Color     `json:"turn"`
	ASCII  string          `json:"ascii"`
	State  rules.GameState `json:"gameState"`
	Status Status          `json:"status"`
}

func (m *Manager) Board(ctx context.Context, gameID string) (*BoardView, error) {
	g, err := m.Get(ctx, gameID)
	if err != nil {
		return nil, err
	}
	eng, err := m.engineFor(g)
	if err != nil {
		return nil, err
	}
	return &BoardView{GameID: g.ID, FEN: g.FEN, Turn: eng.Turn(), ASCII: eng.ASCII(), State: g.GameState, Status: g.Status}, nil
}

// ReportClock stores client-reported clocks. Last write wins.
func (m *Manager) ReportClock(ctx context.Context, gameID, userID string, clock chessdto.Clock) (*Game, error) {
	return m.store.Update(ctx, gameID, func(cur *Game) error {
		if cur.Status != StatusActive {
			return chessdto.InvalidState("game_not_active", string(cur.Status), "game is not active")
		}
		if cur.ColorOf(userID) == "" {
			return chessdto.Unauthorized("not_a_player", "you are not a player in this game")
		}
		cur.TimeLeft = clock
		cur.UpdatedAt = m.clock.Now().UTC()
		return nil
	})
}
