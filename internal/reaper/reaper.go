// Package reaper deletes games that never started or went inactive, and runs
// the periodic maintenance jobs.
package reaper

import (
	"context"
	"errors"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/abmercy035/chesschamp-api/internal/gameplay"
	"github.com/abmercy035/chesschamp-api/internal/obslog"
)

type Rule string

const (
	RuleNone Rule = ""
	// RuleUnstarted: active, no moves, started (or created) before the cutoff.
	RuleUnstarted Rule = "unstarted"
	// RuleAbandoned: active, last move before the cutoff.
	RuleAbandoned Rule = "abandoned"
	// RuleWaitingExpired: waiting without an opponent, created before the cutoff.
	RuleWaitingExpired Rule = "waiting_expired"
)

// Classify reports which rule makes g deletable at now. Finished games never match.
func Classify(g *gameplay.Game, now time.Time, staleAfter time.Duration) Rule {
	if g == nil {
		return RuleNone
	}
	cutoff := now.Add(-staleAfter)
	switch g.Status {
	case gameplay.StatusActive:
		if len(g.Moves) == 0 {
			if !startedAt(g).After(cutoff) {
				return RuleUnstarted
			}
			return RuleNone
		}
		if !g.LastActivity().After(cutoff) {
			return RuleAbandoned
		}
	case gameplay.StatusWaiting:
		if g.Opponent == "" && !g.CreatedAt.After(cutoff) {
			return RuleWaitingExpired
		}
	}
	return RuleNone
}

// startedAt is when the game became active. Tournament games are created when
// their round is scheduled, which can be long before both players join.
func startedAt(g *gameplay.Game) time.Time {
	if g.StartTime != nil && !g.StartTime.IsZero() {
		return *g.StartTime
	}
	return g.CreatedAt
}

// Store is the slice of the game store the reaper needs.
type Store interface {
	List(ctx context.Context) ([]*gameplay.Game, error)
	DeleteIf(ctx context.Context, id string, pred func(g *gameplay.Game) bool) (bool, error)
}

type Report struct {
	Scanned int
	Counts  map[Rule]int
	Deleted []string
	// Skipped counts candidates that changed before they could be deleted.
	Skipped int
}

type Reaper struct {
	store      Store
	clock      clockwork.Clock
	staleAfter time.Duration
}

type Option func(*Reaper)

func WithClock(c clockwork.Clock) Option { return func(r *Reaper) { r.clock = c } }

func WithStaleAfter(d time.Duration) Option {
	return func(r *Reaper) {
		if d > 0 {
			r.staleAfter = d
		}
	}
}

func New(store Store, opts ...Option) *Reaper {
	r := &Reaper{store: store, clock: clockwork.NewRealClock(), staleAfter: 24 * time.Hour}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Sweep deletes every game matching a rule. Each candidate is re-classified
// under WATCH, so a game touched by a concurrent move or join survives.
func (r *Reaper) Sweep(ctx context.Context) (Report, error) {
	rep := Report{Counts: make(map[Rule]int)}
	games, err := r.store.List(ctx)
	if err != nil {
		obslog.L().Error("reaper_list_failed", zap.Error(err))
		return rep, err
	}
	now := r.clock.Now().UTC()
	rep.Scanned = len(games)

	var errs []error
	for _, g := range games {
		if Classify(g, now, r.staleAfter) == RuleNone {
			continue
		}
		var rule Rule
		ok, err := r.store.DeleteIf(ctx, g.ID, func(cur *gameplay.Game) bool {
			rule = Classify(cur, now, r.staleAfter)
			return rule != RuleNone
		})
		if err != nil {
			obslog.L().Error("reaper_delete_failed", zap.String("game_id", g.ID), zap.Error(err))
			errs = append(errs, err)
			continue
		}
		if !ok {
			rep.Skipped++
			continue
		}
		rep.Counts[rule]++
		rep.Deleted = append(rep.Deleted, g.ID)
		obslog.L().Info("reaper_delete", zap.String("game_id", g.ID), zap.String("rule", string(rule)))
	}

	obslog.L().Info("reaper_sweep",
		zap.Int("scanned", rep.Scanned),
		zap.Int("deleted", len(rep.Deleted)),
		zap.Int("unstarted", rep.Counts[RuleUnstarted]),
		zap.Int("abandoned", rep.Counts[RuleAbandoned]),
		zap.Int("waiting_expired", rep.Counts[RuleWaitingExpired]),
		zap.Int("skipped", rep.Skipped),
	)
	return rep, errors.Join(errs...)
}
