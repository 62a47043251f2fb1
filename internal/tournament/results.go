package tournament

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/abmercy035/chesschamp-api/internal/bracket"
	"github.com/abmercy035/chesschamp-api/internal/gameplay"
	"github.com/abmercy035/chesschamp-api/internal/notify"
	"github.com/abmercy035/chesschamp-api/internal/obslog"
	"github.com/abmercy035/chesschamp-api/pkg/chessdto"
)

// GameFinished records finished tournament games. Other games are ignored.
func (m *Manager) GameFinished(ctx context.Context, g *gameplay.Game) error {
	if g == nil || !g.IsTournament() || g.Status != gameplay.StatusFinished {
		return nil
	}
	res := bracket.Draw
	switch g.Winner {
	case g.Host:
		res = bracket.WhiteWon
	case g.Opponent:
		res = bracket.BlackWon
	}
	_, err := m.RecordResult(ctx, g.Tournament.ID, g.ID, res)
	return err
}

type RecordOutcome struct {
	Tournament    *Tournament
	Pairing       bracket.Pairing
	RoundComplete bool
}

// RecordResult stores the result of the pairing played as gameID and updates
// both participants' tallies. Recording the same game twice is a no-op.
func (m *Manager) RecordResult(ctx context.Context, tournamentID, gameID string, res bracket.Result) (*RecordOutcome, error) {
	if res != bracket.WhiteWon && res != bracket.BlackWon && res != bracket.Draw {
		return nil, chessdto.InvalidState("invalid_argument", "", "invalid result %q", res)
	}
	var (
		pairing  bracket.Pairing
		recorded bool
	)
	updated, err := m.store.Update(ctx, tournamentID, func(t *Tournament) error {
		recorded = false
		if t.Status != StatusActive {
			return chessdto.InvalidState("tournament_not_active", string(t.Status), "tournament is not active")
		}
		p, ok := t.findGame(gameID)
		if !ok {
			return chessdto.NotFound("pairing_not_found", "game %s is not part of tournament %s", gameID, t.ID)
		}
		pairing = *p
		if p.Decided() || p.Replayed {
			return errNoChange
		}
		p.Result = res
		switch res {
		case bracket.WhiteWon:
			t.creditWin(p.White)
			t.creditLoss(p.Black)
		case bracket.BlackWon:
			t.creditWin(p.Black)
			t.creditLoss(p.White)
		default:
			t.creditDraw(p.White)
			t.creditDraw(p.Black)
		}
		pairing = *p
		recorded = true
		t.UpdatedAt = m.clock.Now().UTC()
		return nil
	})
	if err != nil {
		return nil, err
	}
	out := &RecordOutcome{Tournament: updated, Pairing: pairing, RoundComplete: updated.roundComplete()}
	if recorded {
		obslog.L().Info("tournament_result",
			zap.String("tournament_id", updated.ID),
			zap.String("game_id", gameID),
			zap.Int("round", pairing.Round),
			zap.String("result", string(res)),
			zap.Bool("round_complete", out.RoundComplete),
		)
		if out.RoundComplete {
			obslog.L().Info("round_complete", zap.String("tournament_id", updated.ID), zap.Int("round", updated.CurrentRound))
			m.sendUser(ctx, updated.Organizer, updated, chessdto.EventRoundComplete, map[string]any{
				"currentRound": updated.CurrentRound,
				"totalRounds":  updated.TotalRounds,
			}, map[string]any{"round": updated.CurrentRound})
		}
	}
	return out, nil
}

func (m *Manager) RoundComplete(ctx context.Context, id string) (bool, error) {
	t, err := m.Get(ctx, id)
	if err != nil {
		return false, err
	}
	return t.roundComplete(), nil
}

type AdvanceOutcome struct {
	Tournament *Tournament
	Completed  bool
	Winner     string
	// Replays lists drawn elimination games re-paired instead of advancing.
	Replays []bracket.Pairing
	Round   *bracket.Round
}

// Advance closes the current round once it is complete: it generates the next
// round, or completes the tournament after the last one.
func (m *Manager) Advance(ctx context.Context, id, by string) (*AdvanceOutcome, error) {
	var out AdvanceOutcome
	updated, err := m.store.Update(ctx, id, func(t *Tournament) error {
		out = AdvanceOutcome{}
		if err := m.requireManager(t, by); err != nil {
			return err
		}
		if t.Status != StatusActive {
			return chessdto.InvalidState("tournament_not_active", string(t.Status), "tournament is not active")
		}
		if !t.roundComplete() {
			return chessdto.InvalidState("round_incomplete", fmt.Sprintf("round=%d", t.CurrentRound), "round %d is not complete", t.CurrentRound)
		}
		now := m.clock.Now().UTC()
		t.UpdatedAt = now
		switch t.Type {
		case bracket.SingleElimination:
			return m.advanceElimination(t, &out)
		case bracket.RoundRobin:
			t.CurrentRound++
			if t.CurrentRound > t.TotalRounds {
				t.CurrentRound = t.TotalRounds
				m.complete(t, "", &out)
			}
		case bracket.Swiss:
			if t.CurrentRound >= t.TotalRounds {
				m.complete(t, "", &out)
				return nil
			}
			t.CurrentRound++
			order := bracket.Order(bracket.Standings(t.Records(), t.Rounds))
			next := bracket.PairSwiss(t.CurrentRound, order, t.Rounds)
			for _, p := range next.Byes {
				t.creditWin(p)
			}
			t.Rounds = append(t.Rounds, next)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	out.Tournament = updated
	if !out.Completed {
		out.Round = updated.Round(updated.CurrentRound)
	}
	m.afterAdvance(ctx, &out)
	return &out, nil
}

func (m *Manager) advanceElimination(t *Tournament, out *AdvanceOutcome) error {
	r := t.Round(t.CurrentRound)
	policy := m.policyFor(t)
	seeds := t.Seeds()

	decided := make(map[int]string)
	for _, g := range r.Live() {
		if g.Result != bracket.Draw {
			continue
		}
		if w := policy.Resolve(g, seeds); w != "" {
			decided[g.MatchIndex] = w
			continue
		}
		replay := bracket.Pairing{
			Round:      r.Number,
			MatchIndex: len(r.Games),
			White:      g.Black,
			Black:      g.White,
			Result:     bracket.Pending,
		}
		for i := range r.Games {
			if r.Games[i].MatchIndex == g.MatchIndex {
				r.Games[i].Replayed = true
			}
		}
		r.Games = append(r.Games, replay)
		out.Replays = append(out.Replays, replay)
	}
	if len(out.Replays) > 0 {
		return nil
	}

	advancers := bracket.Advancers(*r, func(p bracket.Pairing) string { return decided[p.MatchIndex] })
	for _, g := range r.Live() {
		loser := g.Loser()
		if g.Result == bracket.Draw {
			loser = g.Opponent(decided[g.MatchIndex])
		}
		if i, ok := t.participant(loser); ok {
			t.Participants[i].EliminatedIn = r.Number
		}
	}
	if len(advancers) <= 1 {
		winner := ""
		if len(advancers) == 1 {
			winner = advancers[0]
		}
		m.complete(t, winner, out)
		return nil
	}
	t.CurrentRound++
	next := bracket.PairElimination(t.CurrentRound, advancers, t.Rounds)
	for _, p := range next.Byes {
		t.creditWin(p)
	}
	if t.CurrentRound > t.TotalRounds {
		t.TotalRounds = t.CurrentRound
	}
	t.Rounds = append(t.Rounds, next)
	return nil
}

// complete assigns final ranks and closes the tournament.
func (m *Manager) complete(t *Tournament, winner string, out *AdvanceOutcome) {
	ranked := bracket.FinalRanks(t.Type, t.Records(), t.Rounds)
	for _, r := range ranked {
		if i, ok := t.participant(r.PlayerID); ok {
			t.Participants[i].FinalRank = r.FinalRank
		}
	}
	if winner == "" && len(ranked) > 0 {
		winner = ranked[0].PlayerID
	}
	t.Winner = winner
	t.Status = StatusCompleted
	end := m.clock.Now().UTC()
	t.EndDate = &end
	out.Completed = true
	out.Winner = winner
}

func (m *Manager) afterAdvance(ctx context.Context, out *AdvanceOutcome) {
	t := out.Tournament
	switch {
	case out.Completed:
		obslog.L().Info("tournament_completed", zap.String("tournament_id", t.ID), zap.String("winner", t.Winner))
		m.announceCompletion(ctx, t)
	case len(out.Replays) > 0:
		obslog.L().Info("tournament_replays", zap.String("tournament_id", t.ID), zap.Int("round", t.CurrentRound), zap.Int("replays", len(out.Replays)))
		updated, err := m.ScheduleRound(ctx, t.ID, t.CurrentRound)
		if err != nil {
			obslog.L().Error("tournament_schedule_failed", zap.String("tournament_id", t.ID), zap.Error(err))
			return
		}
		out.Tournament = updated
		out.Round = updated.Round(updated.CurrentRound)
	default:
		obslog.L().Info("round_advance", zap.String("tournament_id", t.ID), zap.Int("round", t.CurrentRound))
		updated, err := m.ScheduleRound(ctx, t.ID, t.CurrentRound)
		if err != nil {
			obslog.L().Error("tournament_schedule_failed", zap.String("tournament_id", t.ID), zap.Error(err))
			updated = t
		}
		out.Tournament = updated
		out.Round = updated.Round(updated.CurrentRound)
		for _, p := range updated.Participants {
			if p.EliminatedIn > 0 {
				continue
			}
			m.sendUser(ctx, p.PlayerID, updated, chessdto.EventRoundAdvanced, map[string]any{
				"currentRound": updated.CurrentRound,
				"totalRounds":  updated.TotalRounds,
				"nextMatch":    nextMatchIn(updated, p.PlayerID),
			}, map[string]any{"round": updated.CurrentRound})
		}
	}
}

func (m *Manager) announceCompletion(ctx context.Context, t *Tournament) {
	for _, p := range t.Participants {
		s := t.Stat(p.PlayerID)
		m.sendUser(ctx, p.PlayerID, t, chessdto.EventTournamentCompleted, map[string]any{
			"finalRank":   p.FinalRank,
			"score":       s.Score,
			"wins":        s.Wins,
			"losses":      s.Losses,
			"draws":       s.Draws,
			"winner":      t.Winner,
			"totalRounds": t.TotalRounds,
		}, map[string]any{"rank": p.FinalRank})
	}
}

// AwardBye gives player a scored bye in the current round.
func (m *Manager) AwardBye(ctx context.Context, id, by, player string) (*Tournament, error) {
	updated, err := m.store.Update(ctx, id, func(t *Tournament) error {
		if err := m.requireManager(t, by); err != nil {
			return err
		}
		if t.Status != StatusActive {
			return chessdto.InvalidState("tournament_not_active", string(t.Status), "tournament is not active")
		}
		if !t.IsParticipant(player) {
			return chessdto.NotFound("participant_not_found", "%s is not registered", player)
		}
		r := t.Round(t.CurrentRound)
		if r == nil {
			return chessdto.InvalidState("round_not_found", string(t.Status), "no current round")
		}
		for _, b := range r.Byes {
			if b == player {
				return errNoChange
			}
		}
		if i := r.Find(player); i >= 0 {
			return chessdto.InvalidState("has_game", fmt.Sprintf("round=%d", r.Number), "%s already plays in round %d", player, r.Number)
		}
		r.Byes = append(r.Byes, player)
		r.Idle = removeString(r.Idle, player)
		t.creditWin(player)
		t.UpdatedAt = m.clock.Now().UTC()
		return nil
	})
	if err != nil {
		return nil, err
	}
	obslog.L().Info("tournament_bye", zap.String("tournament_id", updated.ID), zap.String("player_id", player), zap.Int("round", updated.CurrentRound))
	return updated, nil
}

func removeString(s []string, v string) []string {
	out := s[:0]
	for _, x := range s {
		if x != v {
			out = append(out, x)
		}
	}
	return out
}

// AwardForfeit finishes the pairing's game as a no-show win. The result comes
// back through GameFinished like any other finished game.
func (m *Manager) AwardForfeit(ctx context.Context, id, by, gameID, winner string) (*Tournament, error) {
	t, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := m.requireManager(t, by); err != nil {
		return nil, err
	}
	p, ok := t.findGame(gameID)
	if !ok {
		return nil, chessdto.NotFound("pairing_not_found", "game %s is not part of tournament %s", gameID, t.ID)
	}
	if !p.Involves(winner) {
		return nil, chessdto.InvalidState("invalid_argument", string(p.Result), "%s does not play in game %s", winner, gameID)
	}
	if p.Decided() {
		return nil, chessdto.InvalidState("pairing_decided", string(p.Result), "game %s already has a result", gameID)
	}
	if _, err := m.games.ForfeitGame(ctx, gameID, winner, gameplay.ReasonNoShow); err != nil {
		return nil, err
	}
	obslog.L().Info("tournament_forfeit", zap.String("tournament_id", t.ID), zap.String("game_id", gameID), zap.String("winner", winner))
	return m.Get(ctx, id)
}

func (m *Manager) Cancel(ctx context.Context, id, by string) (*Tournament, error) {
	updated, err := m.store.Update(ctx, id, func(t *Tournament) error {
		if err := m.requireManager(t, by); err != nil {
			return err
		}
		if t.Status.Terminal() {
			return chessdto.InvalidState("invalid_transition", string(t.Status), "tournament already %s", t.Status)
		}
		now := m.clock.Now().UTC()
		t.Status = StatusCancelled
		t.EndDate = &now
		t.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}
	obslog.L().Info("tournament_cancelled", zap.String("tournament_id", updated.ID), zap.String("by", by))
	return updated, nil
}

// End completes an active tournament early, ranking by current standings.
func (m *Manager) End(ctx context.Context, id, by string) (*Tournament, error) {
	var out AdvanceOutcome
	updated, err := m.store.Update(ctx, id, func(t *Tournament) error {
		out = AdvanceOutcome{}
		if err := m.requireManager(t, by); err != nil {
			return err
		}
		if t.Status != StatusActive {
			return chessdto.InvalidState("tournament_not_active", string(t.Status), "tournament is not active")
		}
		t.UpdatedAt = m.clock.Now().UTC()
		m.complete(t, "", &out)
		return nil
	})
	if err != nil {
		return nil, err
	}
	out.Tournament = updated
	m.afterAdvance(ctx, &out)
	return updated, nil
}

// Standings ranks participants by score, Buchholz, then Sonneborn-Berger.
func (m *Manager) Standings(ctx context.Context, id string) ([]bracket.Record, error) {
	t, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	st := bracket.Standings(t.Records(), t.Rounds)
	for i := range st {
		if st[i].FinalRank == 0 {
			st[i].FinalRank = i + 1
		}
	}
	return st, nil
}

// NextMatch returns the player's pending pairing in the current round, or nil.
func (m *Manager) NextMatch(ctx context.Context, id, player string) (*bracket.Pairing, error) {
	t, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !t.IsParticipant(player) {
		return nil, chessdto.NotFound("participant_not_found", "%s is not registered", player)
	}
	return nextMatchIn(t, player), nil
}

func nextMatchIn(t *Tournament, player string) *bracket.Pairing {
	r := t.Round(t.CurrentRound)
	if r == nil || t.Status != StatusActive {
		return nil
	}
	for _, g := range r.Games {
		if !g.Replayed && !g.Decided() && g.Involves(player) {
			cp := g
			return &cp
		}
	}
	return nil
}

// SweepReminders sends tournament_starting before a tournament's start and
// match_reminder before each scheduled game, each at most once.
func (m *Manager) SweepReminders(ctx context.Context) (int, error) {
	all, err := m.store.List(ctx)
	if err != nil {
		return 0, err
	}
	now := m.clock.Now().UTC()
	horizon := now.Add(m.reminderLead)
	sent := 0
	for _, t := range all {
		switch t.Status {
		case StatusUpcoming, StatusRegistration:
			if t.StartDate == nil || !t.StartDate.After(now) || t.StartDate.After(horizon) {
				continue
			}
			if !m.claim(ctx, "remind:start:"+t.ID) {
				continue
			}
			mins := minutesUntil(now, *t.StartDate)
			for _, p := range t.Participants {
				m.sendUser(ctx, p.PlayerID, t, chessdto.EventTournamentStarting, map[string]any{
					"startDate":    t.StartDate,
					"type":         t.Type,
					"format":       t.Format,
					"currentRound": max(t.CurrentRound, 1),
				}, map[string]any{"minutes": mins})
				sent++
			}
		case StatusActive:
			r := t.Round(t.CurrentRound)
			if r == nil {
				continue
			}
			for _, g := range r.Games {
				if g.Replayed || g.Decided() || g.ScheduledTime == nil {
					continue
				}
				at := *g.ScheduledTime
				if !at.After(now) || at.After(horizon) {
					continue
				}
				if !m.claim(ctx, fmt.Sprintf("remind:match:%s:%d:%d", t.ID, r.Number, g.MatchIndex)) {
					continue
				}
				mins := minutesUntil(now, at)
				for _, side := range [][2]string{{g.White, g.Black}, {g.Black, g.White}} {
					m.sendUser(ctx, side[0], t, chessdto.EventMatchReminder, map[string]any{
						"gameId":        g.GameID,
						"round":         r.Number,
						"opponent":      side[1],
						"scheduledTime": at,
					}, map[string]any{"opponent": side[1], "minutes": mins})
					sent++
				}
			}
		}
	}
	if sent > 0 {
		obslog.L().Info("tournament_reminders", zap.Int("sent", sent))
	}
	return sent, nil
}

const reminderClaimTTL = 7 * 24 * time.Hour

func (m *Manager) claim(ctx context.Context, key string) bool {
	ok, err := m.store.Once(ctx, key, reminderClaimTTL)
	if err != nil {
		obslog.L().Warn("tournament_reminder_claim_failed", zap.String("key", key), zap.Error(err))
		return false
	}
	return ok
}

func minutesUntil(now, at time.Time) int {
	return int(math.Ceil(at.Sub(now).Minutes()))
}

func (m *Manager) sendUser(ctx context.Context, player string, t *Tournament, typ string, data, vars map[string]any) {
	v := map[string]any{"name": t.Name}
	for k, val := range vars {
		v[k] = val
	}
	data["tournamentId"] = t.ID
	m.notifier.Send(ctx, notify.UserChannel(player), notify.Notice{
		Type:           typ,
		EntityID:       t.ID,
		TournamentID:   t.ID,
		TournamentName: t.Name,
		Data:           data,
		Vars:           v,
	})
}
