// Package tournament drives registration, bracket generation, result
// recording and round advancement. Games are created through gameplay; their
// results come back through the finish hook.
package tournament

import (
	"context"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/abmercy035/chesschamp-api/internal/bracket"
	"github.com/abmercy035/chesschamp-api/internal/gameplay"
	"github.com/abmercy035/chesschamp-api/internal/notify"
	"github.com/abmercy035/chesschamp-api/internal/obslog"
	"github.com/abmercy035/chesschamp-api/pkg/chessdto"
)

// GameScheduler creates and forfeits tournament games. *gameplay.Manager implements it.
type GameScheduler interface {
	CreateTournamentGame(ctx context.Context, spec gameplay.TournamentGameSpec) (*gameplay.Game, error)
	ForfeitGame(ctx context.Context, gameID, winnerID string, reason gameplay.WinReason) (*gameplay.Game, error)
}

type RatingSource interface {
	Ratings(ctx context.Context, playerIDs []string) (map[string]int, error)
}

type Manager struct {
	store    Store
	games    GameScheduler
	ratings  RatingSource
	notifier *notify.Gateway
	clock    clockwork.Clock
	formats  Formats
	tieBreak bracket.TieBreakPolicy
	admins   map[string]bool

	reminderLead time.Duration
	roundGap     time.Duration
}

type Option func(*Manager)

func WithNotifier(n *notify.Gateway) Option { return func(m *Manager) { m.notifier = n } }
func WithClock(c clockwork.Clock) Option    { return func(m *Manager) { m.clock = c } }
func WithRatings(r RatingSource) Option     { return func(m *Manager) { m.ratings = r } }
func WithFormats(f Formats) Option          { return func(m *Manager) { m.formats = f } }

// WithTieBreak sets the default policy for drawn elimination games.
func WithTieBreak(p bracket.TieBreakPolicy) Option { return func(m *Manager) { m.tieBreak = p } }

// WithAdmins lets the given users manage every tournament.
func WithAdmins(ids ...string) Option {
	return func(m *Manager) {
		for _, id := range ids {
			if id = strings.TrimSpace(id); id != "" {
				m.admins[id] = true
			}
		}
	}
}

func WithReminderLead(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.reminderLead = d
		}
	}
}

// WithRoundGap delays the scheduled start of rounds after the first.
func WithRoundGap(d time.Duration) Option {
	return func(m *Manager) {
		if d >= 0 {
			m.roundGap = d
		}
	}
}

func NewManager(store Store, games GameScheduler, opts ...Option) *Manager {
	m := &Manager{
		store:        store,
		games:        games,
		clock:        clockwork.NewRealClock(),
		tieBreak:     bracket.CoinFlip{},
		admins:       make(map[string]bool),
		reminderLead: 30 * time.Minute,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.formats == nil {
		m.formats = DefaultFormats()
	}
	return m
}

func (m *Manager) Get(ctx context.Context, id string) (*Tournament, error) {
	return m.store.Get(ctx, strings.TrimSpace(id))
}

func (m *Manager) List(ctx context.Context) ([]*Tournament, error) { return m.store.List(ctx) }

func (m *Manager) policyFor(t *Tournament) bracket.TieBreakPolicy {
	if t.TieBreak != "" {
		if p, err := bracket.ParseTieBreak(t.TieBreak); err == nil {
			return p
		}
	}
	return m.tieBreak
}

func (m *Manager) requireManager(t *Tournament, by string) error {
	if by != "" && (by == t.Organizer || m.admins[by]) {
		return nil
	}
	return chessdto.Unauthorized("not_organizer", "only the organizer may manage tournament %s", t.ID)
}

type CreateSpec struct {
	Name              string
	Description       string
	Type              bracket.Type
	Format            string
	MaxParticipants   int
	MinParticipants   int
	MinRating         int
	RegistrationStart *time.Time
	RegistrationEnd   *time.Time
	StartDate         *time.Time
	TieBreak          string
}

// Create opens a tournament for registration, or leaves it upcoming when the
// registration window has not started yet.
func (m *Manager) Create(ctx context.Context, organizer string, spec CreateSpec) (*Tournament, error) {
	organizer = strings.TrimSpace(organizer)
	if organizer == "" {
		return nil, chessdto.Unauthorized("missing_user", "organizer is required")
	}
	name := strings.TrimSpace(spec.Name)
	if name == "" {
		return nil, chessdto.InvalidState("invalid_argument", "", "tournament name is required")
	}
	typ := spec.Type
	if typ == "" {
		typ = bracket.SingleElimination
	}
	if !typ.Valid() {
		return nil, chessdto.InvalidState("invalid_argument", "", "unknown tournament type %q", spec.Type)
	}
	format, tc, ok := m.formats.Resolve(spec.Format)
	if !ok {
		return nil, chessdto.InvalidState("invalid_argument", "", "unknown format %q", spec.Format)
	}
	if spec.TieBreak != "" {
		if _, err := bracket.ParseTieBreak(spec.TieBreak); err != nil {
			return nil, chessdto.InvalidState("invalid_argument", "", "%s", err.Error())
		}
	}
	maxP, minP := spec.MaxParticipants, spec.MinParticipants
	if maxP <= 0 {
		maxP = 32
	}
	if minP < 2 {
		minP = 2
	}
	if minP > maxP {
		return nil, chessdto.InvalidState("invalid_argument", "", "minParticipants %d exceeds maxParticipants %d", minP, maxP)
	}
	if spec.RegistrationStart != nil && spec.RegistrationEnd != nil && spec.RegistrationEnd.Before(*spec.RegistrationStart) {
		return nil, chessdto.InvalidState("invalid_argument", "", "registration ends before it starts")
	}

	now := m.clock.Now().UTC()
	status := StatusRegistration
	if spec.RegistrationStart != nil && spec.RegistrationStart.After(now) {
		status = StatusUpcoming
	}
	t := &Tournament{
		ID:                uuid.NewString(),
		Name:              name,
		Description:       strings.TrimSpace(spec.Description),
		Type:              typ,
		Format:            format,
		TimeControl:       tc,
		Status:            status,
		Organizer:         organizer,
		TieBreak:          spec.TieBreak,
		RegistrationStart: utcPtr(spec.RegistrationStart),
		RegistrationEnd:   utcPtr(spec.RegistrationEnd),
		StartDate:         utcPtr(spec.StartDate),
		MaxParticipants:   maxP,
		MinParticipants:   minP,
		MinRating:         spec.MinRating,
		Participants:      []Participant{},
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := m.store.Create(ctx, t); err != nil {
		return nil, err
	}
	obslog.L().Info("tournament_created",
		zap.String("tournament_id", t.ID),
		zap.String("organizer", organizer),
		zap.String("type", string(t.Type)),
		zap.String("status", string(t.Status)),
	)
	return t, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil || t.IsZero() {
		return nil
	}
	u := t.UTC()
	return &u
}

// OpenRegistration moves an upcoming tournament to registration.
func (m *Manager) OpenRegistration(ctx context.Context, id, by string) (*Tournament, error) {
	return m.store.Update(ctx, id, func(t *Tournament) error {
		if err := m.requireManager(t, by); err != nil {
			return err
		}
		switch t.Status {
		case StatusRegistration:
			return errNoChange
		case StatusUpcoming:
		default:
			return chessdto.InvalidState("invalid_transition", string(t.Status), "registration cannot open from %s", t.Status)
		}
		t.Status = StatusRegistration
		t.UpdatedAt = m.clock.Now().UTC()
		return nil
	})
}

// Register adds player inside the registration window, subject to capacity,
// uniqueness and the minimum rating.
func (m *Manager) Register(ctx context.Context, id, player string) (*Tournament, error) {
	player = strings.TrimSpace(player)
	if player == "" {
		return nil, chessdto.Unauthorized("missing_user", "player is required")
	}
	t, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.MinRating > 0 && m.ratings != nil {
		rs, err := m.ratings.Ratings(ctx, []string{player})
		if err != nil {
			return nil, err
		}
		if rs[player] < t.MinRating {
			return nil, chessdto.InvalidState("rating_too_low", string(t.Status), "minimum rating %d, yours is %d", t.MinRating, rs[player])
		}
	}

	now := m.clock.Now().UTC()
	updated, err := m.store.Update(ctx, id, func(t *Tournament) error {
		if t.Status != StatusRegistration {
			return chessdto.InvalidState("registration_closed", string(t.Status), "registration is not open; current status: %s", t.Status)
		}
		if t.RegistrationStart != nil && now.Before(*t.RegistrationStart) {
			return chessdto.InvalidState("registration_not_started", string(t.Status), "registration has not started")
		}
		if t.RegistrationEnd != nil && now.After(*t.RegistrationEnd) {
			return chessdto.InvalidState("registration_closed", string(t.Status), "registration deadline has passed")
		}
		if t.IsParticipant(player) {
			return chessdto.InvalidState("already_registered", string(t.Status), "already registered")
		}
		if len(t.Participants) >= t.MaxParticipants {
			return chessdto.InvalidState("tournament_full", string(t.Status), "tournament is full")
		}
		t.Participants = append(t.Participants, Participant{PlayerID: player, RegisteredAt: now})
		t.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}
	obslog.L().Info("tournament_register", zap.String("tournament_id", updated.ID), zap.String("player_id", player), zap.Int("participants", len(updated.Participants)))
	m.sendUser(ctx, player, updated, chessdto.EventRegistrationConfirmed, map[string]any{
		"registrationEnd":     updated.RegistrationEnd,
		"startDate":           updated.StartDate,
		"currentParticipants": len(updated.Participants),
		"maxParticipants":     updated.MaxParticipants,
	}, nil)
	return updated, nil
}

func (m *Manager) Unregister(ctx context.Context, id, player string) (*Tournament, error) {
	player = strings.TrimSpace(player)
	updated, err := m.store.Update(ctx, id, func(t *Tournament) error {
		if t.Status != StatusRegistration {
			return chessdto.InvalidState("registration_closed", string(t.Status), "cannot unregister after registration has closed")
		}
		i, ok := t.participant(player)
		if !ok {
			return chessdto.InvalidState("not_registered", string(t.Status), "not registered for this tournament")
		}
		t.Participants = slices.Delete(t.Participants, i, i+1)
		t.UpdatedAt = m.clock.Now().UTC()
		return nil
	})
	if err != nil {
		return nil, err
	}
	obslog.L().Info("tournament_unregister", zap.String("tournament_id", updated.ID), zap.String("player_id", player))
	m.sendUser(ctx, player, updated, chessdto.EventRegistrationCancelled, map[string]any{
		"spotsAvailable": updated.MaxParticipants - len(updated.Participants),
	}, nil)
	return updated, nil
}

// SetSeeds assigns explicit seeds before the bracket exists. Seed 0 clears one.
func (m *Manager) SetSeeds(ctx context.Context, id, by string, seeds map[string]int) (*Tournament, error) {
	return m.store.Update(ctx, id, func(t *Tournament) error {
		if err := m.requireManager(t, by); err != nil {
			return err
		}
		if t.Status != StatusUpcoming && t.Status != StatusRegistration {
			return chessdto.InvalidState("bracket_generated", string(t.Status), "seeds are fixed once the tournament starts")
		}
		for player, seed := range seeds {
			i, ok := t.participant(player)
			if !ok {
				return chessdto.NotFound("participant_not_found", "%s is not registered", player)
			}
			if seed < 0 {
				return chessdto.InvalidState("invalid_argument", string(t.Status), "seed must be positive")
			}
			t.Participants[i].Seed = seed
		}
		t.UpdatedAt = m.clock.Now().UTC()
		return nil
	})
}

// Start generates the bracket, credits round-1 byes and schedules round 1.
func (m *Manager) Start(ctx context.Context, id, by string) (*Tournament, error) {
	t, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := m.requireManager(t, by); err != nil {
		return nil, err
	}
	ratings := map[string]int{}
	if m.ratings != nil && len(t.Participants) > 0 {
		if ratings, err = m.ratings.Ratings(ctx, t.PlayerIDs()); err != nil {
			return nil, err
		}
	}

	now := m.clock.Now().UTC()
	updated, err := m.store.Update(ctx, id, func(t *Tournament) error {
		if t.Status != StatusRegistration && t.Status != StatusUpcoming {
			return chessdto.InvalidState("invalid_transition", string(t.Status), "tournament cannot start from %s", t.Status)
		}
		if t.Type == bracket.Seasonal {
			return chessdto.InvalidState("unsupported_type", string(t.Status), "seasonal tournaments have no bracket")
		}
		if n := len(t.Participants); n < 2 || n < t.MinParticipants {
			return chessdto.InvalidState("not_enough_participants", string(t.Status), "need at least %d participants, have %d", max(2, t.MinParticipants), n)
		}
		entrants := make([]bracket.Entrant, len(t.Participants))
		for i := range t.Participants {
			p := &t.Participants[i]
			if r, ok := ratings[p.PlayerID]; ok {
				p.Rating = r
			}
			entrants[i] = bracket.Entrant{ID: p.PlayerID, Seed: p.Seed, Rating: p.Rating}
		}
		seeded := bracket.SeedOrder(entrants)
		for pos, pid := range seeded {
			if i, ok := t.participant(pid); ok {
				t.Participants[i].Seed = pos + 1
			}
		}

		var plan bracket.Plan
		switch t.Type {
		case bracket.SingleElimination:
			plan = bracket.NewSingleElimination(seeded)
		case bracket.RoundRobin:
			plan = bracket.NewRoundRobin(seeded)
		case bracket.Swiss:
			plan = bracket.NewSwiss(seeded)
		}
		t.Rounds = plan.Rounds
		t.TotalRounds = plan.TotalRounds
		t.CurrentRound = 1
		t.Status = StatusActive
		if t.StartDate == nil || t.StartDate.Before(now) {
			start := now
			t.StartDate = &start
		}
		for _, p := range t.Rounds[0].Byes {
			t.creditWin(p)
		}
		t.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}
	obslog.L().Info("tournament_start",
		zap.String("tournament_id", updated.ID),
		zap.String("type", string(updated.Type)),
		zap.Int("participants", len(updated.Participants)),
		zap.Int("total_rounds", updated.TotalRounds),
	)

	updated, err = m.ScheduleRound(ctx, updated.ID, 1)
	if err != nil {
		return nil, err
	}
	for _, p := range updated.Participants {
		m.sendUser(ctx, p.PlayerID, updated, chessdto.EventTournamentStarted, map[string]any{
			"currentRound": updated.CurrentRound,
			"totalRounds":  updated.TotalRounds,
			"nextMatch":    nextMatchIn(updated, p.PlayerID),
		}, nil)
	}
	return updated, nil
}

// ScheduleRound creates games for every unscheduled pairing of round n. It is
// idempotent; a claim key keeps concurrent callers from creating duplicates.
func (m *Manager) ScheduleRound(ctx context.Context, id string, n int) (*Tournament, error) {
	t, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	r := t.Round(n)
	if r == nil {
		return nil, chessdto.NotFound("round_not_found", "round %d not found", n)
	}
	var todo []bracket.Pairing
	for _, g := range r.Games {
		if !g.Replayed && g.GameID == "" && !g.Decided() {
			todo = append(todo, g)
		}
	}
	if len(todo) == 0 {
		return t, nil
	}
	claim := "tournament:" + t.ID + ":schedule:" + strconv.Itoa(n)
	ok, err := m.store.Once(ctx, claim, time.Minute)
	if err != nil {
		return nil, err
	}
	if !ok {
		return t, nil
	}
	defer func() { _ = m.store.Release(context.WithoutCancel(ctx), claim) }()

	now := m.clock.Now().UTC()
	at := now
	switch {
	case n == 1 && t.StartDate != nil && t.StartDate.After(now):
		at = *t.StartDate
	case n > 1:
		at = now.Add(m.roundGap)
	}
	created := make(map[int]string, len(todo))
	for _, p := range todo {
		g, err := m.games.CreateTournamentGame(ctx, gameplay.TournamentGameSpec{
			TournamentID:   t.ID,
			Round:          n,
			MatchIndex:     p.MatchIndex,
			White:          p.White,
			Black:          p.Black,
			ScheduledStart: at,
			ClockSeconds:   t.TimeControl.Initial,
		})
		if err != nil {
			obslog.L().Error("tournament_schedule_failed", zap.String("tournament_id", t.ID), zap.Int("round", n), zap.Int("match_index", p.MatchIndex), zap.Error(err))
			continue
		}
		created[p.MatchIndex] = g.ID
	}
	updated, err := m.store.Update(ctx, t.ID, func(t *Tournament) error {
		r := t.Round(n)
		if r == nil {
			return errNoChange
		}
		for i := range r.Games {
			if gid, ok := created[r.Games[i].MatchIndex]; ok && r.Games[i].GameID == "" {
				r.Games[i].GameID = gid
				sched := at
				r.Games[i].ScheduledTime = &sched
			}
		}
		t.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}
	for _, p := range updated.Round(n).Games {
		if _, ok := created[p.MatchIndex]; !ok {
			continue
		}
		obslog.L().Info("tournament_match_scheduled", zap.String("tournament_id", updated.ID), zap.Int("round", n), zap.String("game_id", p.GameID))
		for _, side := range []struct{ me, opp, color string }{{p.White, p.Black, "white"}, {p.Black, p.White, "black"}} {
			m.sendUser(ctx, side.me, updated, chessdto.EventMatchScheduled, map[string]any{
				"gameId":        p.GameID,
				"round":         n,
				"opponent":      side.opp,
				"color":         side.color,
				"scheduledTime": p.ScheduledTime,
			}, map[string]any{"round": n, "opponent": side.opp, "color": side.color})
		}
	}
	return updated, nil
}
