package gameplay

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/abmercy035/chesschamp-api/internal/notify"
	"github.com/abmercy035/chesschamp-api/internal/obslog"
	"github.com/abmercy035/chesschamp-api/internal/rules"
	"github.com/abmercy035/chesschamp-api/pkg/chessdto"
)

func requireActivePlayer(cur *Game, userID string) (rules.Color, error) {
	if cur.Status != StatusActive {
		return "", chessdto.InvalidState("game_not_active", string(cur.Status), "game is not active")
	}
	color := cur.ColorOf(userID)
	if color == "" {
		return "", chessdto.Unauthorized("not_a_player", "you are not a player in this game")
	}
	return color, nil
}

// Resign ends the game in the opponent's favour.
func (m *Manager) Resign(ctx context.Context, gameID, userID string) (*Game, error) {
	userID = strings.TrimSpace(userID)
	var color rules.Color
	updated, err := m.store.Update(ctx, gameID, func(cur *Game) error {
		c, err := requireActivePlayer(cur, userID)
		if err != nil {
			return err
		}
		color = c
		finish(cur, cur.PlayerFor(c.Opposite()), ReasonResignation, m.clock.Now().UTC())
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.afterFinish(ctx, updated, map[string]any{
		"resigningPlayer": map[string]any{"id": userID, "color": color},
	})
	return updated, nil
}

// OfferDraw records a pending offer. Only one offer may be pending at a time.
func (m *Manager) OfferDraw(ctx context.Context, gameID, userID string) (*Game, error) {
	userID = strings.TrimSpace(userID)
	var color rules.Color
	updated, err := m.store.Update(ctx, gameID, func(cur *Game) error {
		c, err := requireActivePlayer(cur, userID)
		if err != nil {
			return err
		}
		if cur.CurrentDrawOffer != nil {
			return chessdto.InvalidState("draw_offer_pending", "offeredBy="+cur.CurrentDrawOffer.OfferedBy, "a draw offer is already pending")
		}
		now := m.clock.Now().UTC()
		color = c
		cur.CurrentDrawOffer = &PendingDraw{OfferedBy: userID, Timestamp: now}
		cur.DrawOffers = append(cur.DrawOffers, DrawOffer{OfferedBy: userID, Timestamp: now, Status: DrawPending})
		cur.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}
	obslog.L().Info("game_draw_offered", zap.String("game_id", updated.ID), zap.String("user_id", userID))
	m.notifier.Send(ctx, notify.GameChannel(updated.ID), notify.Notice{
		Type:     chessdto.EventDrawOffer,
		EntityID: updated.ID,
		Data:     map[string]any{"gameId": updated.ID, "offeredBy": map[string]any{"id": userID, "color": color}},
		Vars:     map[string]any{"by": userID, "color": color.Name()},
	})
	return updated, nil
}

// RespondDraw accepts or declines the pending offer. Only the other player may respond,
// and only once: the pending predicate is checked inside the transaction.
func (m *Manager) RespondDraw(ctx context.Context, gameID, userID string, accept bool) (*Game, error) {
	userID = strings.TrimSpace(userID)
	updated, err := m.store.Update(ctx, gameID, func(cur *Game) error {
		if _, err := requireActivePlayer(cur, userID); err != nil {
			return err
		}
		if cur.CurrentDrawOffer == nil {
			return chessdto.InvalidState("no_pending_draw", string(cur.Status), "there is no pending draw offer")
		}
		if cur.CurrentDrawOffer.OfferedBy == userID {
			return chessdto.InvalidState("own_draw_offer", "offeredBy="+userID, "you cannot respond to your own draw offer")
		}
		now := m.clock.Now().UTC()
		if accept {
			resolveDraw(cur, DrawAccepted, now)
			finish(cur, "", ReasonDraw, now)
			return nil
		}
		resolveDraw(cur, DrawDeclined, now)
		cur.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}
	if accept {
		m.afterFinish(ctx, updated, map[string]any{"acceptedBy": userID})
		return updated, nil
	}
	obslog.L().Info("game_draw_declined", zap.String("game_id", updated.ID), zap.String("user_id", userID))
	m.notifier.Send(ctx, notify.GameChannel(updated.ID), notify.Notice{
		Type:     chessdto.EventDrawDeclined,
		EntityID: updated.ID,
		Data:     map[string]any{"gameId": updated.ID, "declinedBy": map[string]any{"id": userID, "color": updated.ColorOf(userID)}},
		Vars:     map[string]any{"by": userID},
	})
	return updated, nil
}

// Timeout records a client-reported flag fall; the other colour wins.
func (m *Manager) Timeout(ctx context.Context, gameID, userID, loserColor string) (*Game, error) {
	userID = strings.TrimSpace(userID)
	loser, ok := rules.ParseColor(loserColor)
	if !ok {
		return nil, chessdto.InvalidState("invalid_color", "", "loser color must be w or b, got %q", loserColor)
	}
	updated, err := m.store.Update(ctx, gameID, func(cur *Game) error {
		if _, err := requireActivePlayer(cur, userID); err != nil {
			return err
		}
		if loser == rules.White {
			cur.TimeLeft.W = 0
		} else {
			cur.TimeLeft.B = 0
		}
		finish(cur, cur.PlayerFor(loser.Opposite()), ReasonTimeout, m.clock.Now().UTC())
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.afterFinish(ctx, updated, map[string]any{
		"loser": map[string]any{"id": updated.PlayerFor(loser), "color": loser},
	})
	return updated, nil
}

// ForfeitGame finishes an unfinished game in winnerID's favour without play.
func (m *Manager) ForfeitGame(ctx context.Context, gameID, winnerID string, reason WinReason) (*Game, error) {
	if reason != ReasonNoShow && reason != ReasonForfeitTime {
		return nil, chessdto.InvalidState("invalid_reason", string(reason), "forfeit reason must be no-show or forfeit-time")
	}
	updated, err := m.store.Update(ctx, gameID, func(cur *Game) error {
		if cur.Status == StatusFinished {
			return chessdto.InvalidState("game_finished", string(cur.Status), "game %s is finished", cur.ID)
		}
		if cur.ColorOf(winnerID) == "" {
			return chessdto.Unauthorized("not_a_player", "winner %s is not a player in this game", winnerID)
		}
		finish(cur, winnerID, reason, m.clock.Now().UTC())
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.afterFinish(ctx, updated, nil)
	return updated, nil
}

// SweepForfeits finishes waiting tournament games whose grace window has passed.
// A player who confirmed readiness wins by no-show; otherwise the host wins by forfeit-time.
func (m *Manager) SweepForfeits(ctx context.Context) (int, error) {
	games, err := m.store.List(ctx)
	if err != nil {
		return 0, err
	}
	now := m.clock.Now().UTC()
	decided := 0
	for _, g := range games {
		if !m.forfeitDue(g, now) {
			continue
		}
		changed := false
		updated, err := m.store.Update(ctx, g.ID, func(cur *Game) error {
			changed = false
			if !m.forfeitDue(cur, now) {
				return ErrNoChange
			}
			winner, reason := cur.Host, ReasonForfeitTime
			hostReady, oppReady := cur.isReady(cur.Host), cur.isReady(cur.Opponent)
			if oppReady && !hostReady {
				winner, reason = cur.Opponent, ReasonNoShow
			} else if hostReady && !oppReady {
				reason = ReasonNoShow
			}
			finish(cur, winner, reason, now)
			changed = true
			return nil
		})
		if err != nil {
			obslog.L().Warn("game_forfeit_sweep_failed", zap.String("game_id", g.ID), zap.Error(err))
			continue
		}
		if changed {
			decided++
			m.afterFinish(ctx, updated, nil)
		}
	}
	if decided > 0 {
		obslog.L().Info("game_forfeit_sweep", zap.Int("decided", decided))
	}
	return decided, nil
}

func (m *Manager) forfeitDue(g *Game, now time.Time) bool {
	return g.IsTournament() && g.Status == StatusWaiting && g.ScheduledStartTime != nil &&
		!now.Before(g.ScheduledStartTime.Add(m.noShowGrace))
}
