package tournament

import (
	"context"
	"fmt"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abmercy035/chesschamp-api/internal/bracket"
	"github.com/abmercy035/chesschamp-api/internal/gameplay"
	"github.com/abmercy035/chesschamp-api/internal/msgcat"
	"github.com/abmercy035/chesschamp-api/internal/notify"
	"github.com/abmercy035/chesschamp-api/pkg/chessdto"
)

type staticRatings map[string]int

func (s staticRatings) Ratings(_ context.Context, ids []string) (map[string]int, error) {
	out := make(map[string]int, len(ids))
	for _, id := range ids {
		r, ok := s[id]
		if !ok {
			r = 1200
		}
		out[id] = r
	}
	return out, nil
}

type testEnv struct {
	m     *Manager
	games *gameplay.Manager
	store *RedisStore
	rec   *notify.Recorder
	clock *clockwork.FakeClock
}

func newTestEnv(t *testing.T, opts ...Option) *testEnv {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	clock := clockwork.NewFakeClockAt(time.Date(2026, 5, 4, 18, 0, 0, 0, time.UTC))
	rec := &notify.Recorder{}
	cat := msgcat.MustDefault()
	gw := notify.NewGateway(rec, cat, notify.WithClock(clock))

	games := gameplay.NewManager(gameplay.NewRedisStore(rdb),
		gameplay.WithClock(clock),
		gameplay.WithCatalog(cat),
		gameplay.WithNotifier(gw),
	)
	store := NewRedisStore(rdb)
	base := []Option{WithClock(clock), WithNotifier(gw), WithAdmins("root")}
	m := NewManager(store, games, append(base, opts...)...)
	games.AddFinishHook(m)
	return &testEnv{m: m, games: games, store: store, rec: rec, clock: clock}
}

func players(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("p%d", i+1)
	}
	return out
}

// openWith creates a tournament and registers every player.
func (e *testEnv) openWith(t *testing.T, spec CreateSpec, ids []string) *Tournament {
	t.Helper()
	ctx := context.Background()
	if spec.Name == "" {
		spec.Name = "Spring Open"
	}
	tr, err := e.m.Create(ctx, "org", spec)
	require.NoError(t, err)
	for _, id := range ids {
		_, err := e.m.Register(ctx, tr.ID, id)
		require.NoError(t, err, id)
	}
	return tr
}

// whiteWinsRound forfeits every pending game of the current round to white.
func (e *testEnv) whiteWinsRound(t *testing.T, id string) {
	t.Helper()
	ctx := context.Background()
	tr, err := e.m.Get(ctx, id)
	require.NoError(t, err)
	for _, g := range tr.Round(tr.CurrentRound).Live() {
		if g.Decided() {
			continue
		}
		require.NotEmpty(t, g.GameID, "round %d match %d not scheduled", g.Round, g.MatchIndex)
		_, err := e.games.ForfeitGame(ctx, g.GameID, g.White, gameplay.ReasonNoShow)
		require.NoError(t, err)
	}
}

func TestCreateDefaultsAndValidation(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	tr, err := e.m.Create(ctx, "org", CreateSpec{Name: "  Spring Open  "})
	require.NoError(t, err)
	assert.Equal(t, "Spring Open", tr.Name)
	assert.Equal(t, bracket.SingleElimination, tr.Type)
	assert.Equal(t, FormatRapid, tr.Format)
	assert.Equal(t, TimeControl{Initial: 600, Increment: 5}, tr.TimeControl)
	assert.Equal(t, StatusRegistration, tr.Status)
	assert.Equal(t, 32, tr.MaxParticipants)
	assert.Equal(t, 2, tr.MinParticipants)

	later := e.clock.Now().Add(24 * time.Hour)
	up, err := e.m.Create(ctx, "org", CreateSpec{Name: "Later", RegistrationStart: &later, Format: "Blitz"})
	require.NoError(t, err)
	assert.Equal(t, StatusUpcoming, up.Status)
	assert.Equal(t, FormatBlitz, up.Format)

	cases := []CreateSpec{
		{Name: ""},
		{Name: "x", Format: "bullet"},
		{Name: "x", Type: "knockout"},
		{Name: "x", MinParticipants: 10, MaxParticipants: 4},
		{Name: "x", TieBreak: "armageddon"},
	}
	for _, spec := range cases {
		_, err := e.m.Create(ctx, "org", spec)
		assert.Equal(t, chessdto.KindInvalidState, chessdto.KindOf(err), "%+v", spec)
		assert.Equal(t, "invalid_argument", chessdto.CodeOf(err))
	}

	_, err = e.m.Create(ctx, " ", CreateSpec{Name: "x"})
	assert.Equal(t, chessdto.KindUnauthorized, chessdto.KindOf(err))
}

func TestRegistrationRules(t *testing.T) {
	e := newTestEnv(t, WithRatings(staticRatings{"weak": 900}))
	ctx := context.Background()
	end := e.clock.Now().Add(time.Hour)
	tr := e.openWith(t, CreateSpec{MaxParticipants: 2, MinRating: 1000, RegistrationEnd: &end}, []string{"alice"})

	evs := e.rec.On(notify.UserChannel("alice"))
	require.Len(t, evs, 1)
	assert.Equal(t, chessdto.EventRegistrationConfirmed, evs[0].Type)
	assert.Equal(t, `You've successfully registered for "Spring Open".`, evs[0].Message)
	assert.Equal(t, tr.ID, evs[0].TournamentID)

	_, err := e.m.Register(ctx, tr.ID, "alice")
	assert.Equal(t, "already_registered", chessdto.CodeOf(err))

	_, err = e.m.Register(ctx, tr.ID, "weak")
	assert.Equal(t, "rating_too_low", chessdto.CodeOf(err))

	_, err = e.m.Register(ctx, tr.ID, "bob")
	require.NoError(t, err)
	_, err = e.m.Register(ctx, tr.ID, "carol")
	assert.Equal(t, "tournament_full", chessdto.CodeOf(err))

	got, err := e.m.Unregister(ctx, tr.ID, "bob")
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, got.PlayerIDs())
	assert.Equal(t, []string{chessdto.EventRegistrationConfirmed, chessdto.EventRegistrationCancelled}, e.rec.Types(notify.UserChannel("bob")))

	_, err = e.m.Unregister(ctx, tr.ID, "bob")
	assert.Equal(t, "not_registered", chessdto.CodeOf(err))

	e.clock.Advance(2 * time.Hour)
	_, err = e.m.Register(ctx, tr.ID, "carol")
	assert.Equal(t, "registration_closed", chessdto.CodeOf(err))

	_, err = e.m.Register(ctx, "missing", "carol")
	assert.Equal(t, chessdto.KindNotFound, chessdto.KindOf(err))
}

func TestUpcomingNeedsOpening(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	later := e.clock.Now().Add(time.Hour)
	tr, err := e.m.Create(ctx, "org", CreateSpec{Name: "Later", RegistrationStart: &later})
	require.NoError(t, err)

	_, err = e.m.Register(ctx, tr.ID, "alice")
	assert.Equal(t, "registration_closed", chessdto.CodeOf(err))

	_, err = e.m.OpenRegistration(ctx, tr.ID, "mallory")
	assert.Equal(t, chessdto.KindUnauthorized, chessdto.KindOf(err))

	_, err = e.m.OpenRegistration(ctx, tr.ID, "org")
	require.NoError(t, err)
	_, err = e.m.Register(ctx, tr.ID, "alice")
	assert.Equal(t, "registration_not_started", chessdto.CodeOf(err))

	e.clock.Advance(time.Hour)
	_, err = e.m.Register(ctx, tr.ID, "alice")
	require.NoError(t, err)
}

func TestStartRejections(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	lonely := e.openWith(t, CreateSpec{}, []string{"p1"})
	_, err := e.m.Start(ctx, lonely.ID, "org")
	assert.Equal(t, "not_enough_participants", chessdto.CodeOf(err))

	seasonal := e.openWith(t, CreateSpec{Type: bracket.Seasonal}, players(4))
	_, err = e.m.Start(ctx, seasonal.ID, "org")
	assert.Equal(t, "unsupported_type", chessdto.CodeOf(err))

	ok := e.openWith(t, CreateSpec{}, players(2))
	_, err = e.m.Start(ctx, ok.ID, "p1")
	assert.Equal(t, chessdto.KindUnauthorized, chessdto.KindOf(err))
	_, err = e.m.Start(ctx, ok.ID, "root")
	require.NoError(t, err)
	_, err = e.m.Start(ctx, ok.ID, "org")
	assert.Equal(t, "invalid_transition", chessdto.CodeOf(err))
}

func TestSingleEliminationRunsToChampion(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	tr := e.openWith(t, CreateSpec{Format: "blitz"}, players(8))

	started, err := e.m.Start(ctx, tr.ID, "org")
	require.NoError(t, err)
	assert.Equal(t, StatusActive, started.Status)
	assert.Equal(t, 3, started.TotalRounds)
	require.Len(t, started.Round(1).Games, 4)

	first := started.Round(1).Games[0]
	assert.Equal(t, "p1", first.White)
	assert.Equal(t, "p2", first.Black)
	g, err := e.games.Get(ctx, first.GameID)
	require.NoError(t, err)
	assert.Equal(t, gameplay.TypeTournament, g.GameType)
	assert.Equal(t, chessdto.Clock{W: 300, B: 300}, g.TimeLeft)
	assert.Equal(t, "p1", g.Host)
	assert.Equal(t, "p2", g.Opponent)

	assert.Equal(t, []string{
		chessdto.EventRegistrationConfirmed,
		chessdto.EventMatchScheduled,
		chessdto.EventTournamentStarted,
	}, e.rec.Types(notify.UserChannel("p2")))
	sched := e.rec.On(notify.UserChannel("p2"))[1]
	assert.Equal(t, `Your round 1 match in "Spring Open" vs p1 is scheduled. You play black.`, sched.Message)

	_, err = e.m.Advance(ctx, tr.ID, "org")
	assert.Equal(t, "round_incomplete", chessdto.CodeOf(err))

	for round := 1; round <= 3; round++ {
		e.whiteWinsRound(t, tr.ID)
		ok, err := e.m.RoundComplete(ctx, tr.ID)
		require.NoError(t, err)
		require.True(t, ok, "round %d", round)
		out, err := e.m.Advance(ctx, tr.ID, "org")
		require.NoError(t, err)
		if round < 3 {
			require.False(t, out.Completed)
			assert.Equal(t, round+1, out.Tournament.CurrentRound)
			assert.Len(t, out.Round.Games, 4>>round)
			for _, p := range out.Round.Games {
				assert.NotEmpty(t, p.GameID)
			}
		} else {
			require.True(t, out.Completed)
			assert.Equal(t, "p1", out.Winner)
		}
	}

	final, err := e.m.Get(ctx, tr.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, final.Status)
	assert.Equal(t, "p1", final.Winner)
	require.NotNil(t, final.EndDate)
	assert.Equal(t, Stat{Score: 3, Wins: 3}, final.Stat("p1"))
	assert.Equal(t, Stat{Score: 2, Wins: 2, Losses: 1}, final.Stat("p5"))

	ranks := map[string]int{}
	for _, p := range final.Participants {
		ranks[p.PlayerID] = p.FinalRank
	}
	assert.Equal(t, 1, ranks["p1"])
	assert.Equal(t, 2, ranks["p5"])
	assert.ElementsMatch(t, []int{3, 4}, []int{ranks["p3"], ranks["p7"]})

	champ := e.rec.On(notify.UserChannel("p1"))
	last := champ[len(champ)-1]
	assert.Equal(t, chessdto.EventTournamentCompleted, last.Type)
	assert.Equal(t, `"Spring Open" has ended! Congratulations, you won!`, last.Message)

	// Eliminated players hear about no further rounds.
	assert.NotContains(t, e.rec.Types(notify.UserChannel("p2")), chessdto.EventRoundAdvanced)
	assert.Contains(t, e.rec.Types(notify.UserChannel("p3")), chessdto.EventRoundAdvanced)
}

func TestRecordResultIsIdempotent(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	tr := e.openWith(t, CreateSpec{}, players(2))
	started, err := e.m.Start(ctx, tr.ID, "org")
	require.NoError(t, err)
	gid := started.Round(1).Games[0].GameID

	_, err = e.games.ForfeitGame(ctx, gid, "p2", gameplay.ReasonNoShow)
	require.NoError(t, err)
	out, err := e.m.RecordResult(ctx, tr.ID, gid, bracket.WhiteWon)
	require.NoError(t, err)
	assert.Equal(t, bracket.BlackWon, out.Pairing.Result)
	assert.True(t, out.RoundComplete)
	assert.Equal(t, Stat{Score: 1, Wins: 1}, out.Tournament.Stat("p2"))
	assert.Equal(t, Stat{Losses: 1}, out.Tournament.Stat("p1"))

	_, err = e.m.RecordResult(ctx, tr.ID, "nope", bracket.Draw)
	assert.Equal(t, "pairing_not_found", chessdto.CodeOf(err))

	// The organizer hears once that the round is ready to advance.
	org := e.rec.On(notify.UserChannel("org"))
	require.Len(t, org, 1)
	assert.Equal(t, chessdto.EventRoundComplete, org[0].Type)
	assert.Equal(t, `Round 1 of "Spring Open" is complete. Advance the tournament when ready.`, org[0].Message)
}

func TestOddEliminationFieldGetsBye(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	tr := e.openWith(t, CreateSpec{}, players(5))
	started, err := e.m.Start(ctx, tr.ID, "org")
	require.NoError(t, err)
	assert.Equal(t, []string{"p5"}, started.Round(1).Byes)
	assert.Equal(t, Stat{Score: 1, Wins: 1}, started.Stat("p5"))
	assert.Nil(t, nextMatchIn(started, "p5"))

	e.whiteWinsRound(t, tr.ID)
	out, err := e.m.Advance(ctx, tr.ID, "org")
	require.NoError(t, err)
	// p1, p3 and p5 advanced; p5 already had a bye, so p1 takes this one.
	require.Len(t, out.Round.Games, 1)
	assert.Equal(t, "p3", out.Round.Games[0].White)
	assert.Equal(t, "p5", out.Round.Games[0].Black)
	assert.Equal(t, []string{"p1"}, out.Round.Byes)

	e.whiteWinsRound(t, tr.ID)
	out, err = e.m.Advance(ctx, tr.ID, "org")
	require.NoError(t, err)
	require.Len(t, out.Round.Games, 1)
	assert.Empty(t, out.Round.Byes)
	assert.True(t, out.Round.Games[0].Involves("p1"))
	assert.True(t, out.Round.Games[0].Involves("p3"))

	e.whiteWinsRound(t, tr.ID)
	out, err = e.m.Advance(ctx, tr.ID, "org")
	require.NoError(t, err)
	require.True(t, out.Completed)
	assert.Equal(t, 3, out.Tournament.TotalRounds)

	for p, n := range bracket.ByeCounts(out.Tournament.Rounds) {
		assert.Equal(t, 1, n, "%s received more than one bye", p)
	}
}

func TestDrawnEliminationGames(t *testing.T) {
	t.Run("replay swaps colours", func(t *testing.T) {
		e := newTestEnv(t)
		ctx := context.Background()
		tr := e.openWith(t, CreateSpec{TieBreak: "replay"}, players(2))
		started, err := e.m.Start(ctx, tr.ID, "org")
		require.NoError(t, err)
		gid := started.Round(1).Games[0].GameID
		_, err = e.m.RecordResult(ctx, tr.ID, gid, bracket.Draw)
		require.NoError(t, err)

		out, err := e.m.Advance(ctx, tr.ID, "org")
		require.NoError(t, err)
		require.False(t, out.Completed)
		require.Len(t, out.Replays, 1)
		r := out.Tournament.Round(1)
		require.Len(t, r.Games, 2)
		assert.True(t, r.Games[0].Replayed)
		assert.Equal(t, "p2", r.Games[1].White)
		assert.Equal(t, "p1", r.Games[1].Black)
		require.NotEmpty(t, r.Games[1].GameID)
		assert.Equal(t, Stat{Score: 0.5, Draws: 1}, out.Tournament.Stat("p1"))

		_, err = e.games.ForfeitGame(ctx, r.Games[1].GameID, "p2", gameplay.ReasonNoShow)
		require.NoError(t, err)
		done, err := e.m.Advance(ctx, tr.ID, "org")
		require.NoError(t, err)
		assert.True(t, done.Completed)
		assert.Equal(t, "p2", done.Winner)
	})

	t.Run("higher seed advances", func(t *testing.T) {
		e := newTestEnv(t)
		ctx := context.Background()
		tr := e.openWith(t, CreateSpec{TieBreak: "higher-seed"}, players(2))
		_, err := e.m.SetSeeds(ctx, tr.ID, "org", map[string]int{"p2": 1})
		require.NoError(t, err)
		started, err := e.m.Start(ctx, tr.ID, "org")
		require.NoError(t, err)
		p := started.Round(1).Games[0]
		assert.Equal(t, "p2", p.White)
		_, err = e.m.RecordResult(ctx, tr.ID, p.GameID, bracket.Draw)
		require.NoError(t, err)

		done, err := e.m.Advance(ctx, tr.ID, "org")
		require.NoError(t, err)
		assert.True(t, done.Completed)
		assert.Equal(t, "p2", done.Winner)
	})
}

func TestRoundRobinPlaysEveryPair(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	tr := e.openWith(t, CreateSpec{Type: bracket.RoundRobin}, players(4))
	started, err := e.m.Start(ctx, tr.ID, "org")
	require.NoError(t, err)
	assert.Equal(t, 3, started.TotalRounds)
	require.Len(t, started.Rounds, 3)
	assert.Empty(t, started.Round(2).Games[0].GameID)

	var out *AdvanceOutcome
	for round := 1; round <= 3; round++ {
		e.whiteWinsRound(t, tr.ID)
		out, err = e.m.Advance(ctx, tr.ID, "org")
		require.NoError(t, err)
	}
	require.True(t, out.Completed)

	final := out.Tournament
	games := 0
	seen := map[string]bool{}
	for _, r := range final.Rounds {
		for _, g := range r.Live() {
			games++
			assert.True(t, g.Decided())
			seen[g.White+"-"+g.Black] = true
		}
	}
	assert.Equal(t, 6, games)
	assert.Len(t, seen, 6)

	st, err := e.m.Standings(ctx, tr.ID)
	require.NoError(t, err)
	require.Len(t, st, 4)
	total := 0.0
	for i, r := range st {
		total += r.Score
		if i > 0 {
			assert.LessOrEqual(t, r.Score, st[i-1].Score)
		}
	}
	assert.Equal(t, 6.0, total)
	assert.Equal(t, final.Winner, st[0].PlayerID)
}

func TestSwissPairsFromStandings(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	tr := e.openWith(t, CreateSpec{Type: bracket.Swiss}, players(4))
	started, err := e.m.Start(ctx, tr.ID, "org")
	require.NoError(t, err)
	assert.Equal(t, bracket.SwissRounds(4), started.TotalRounds)

	var out *AdvanceOutcome
	for round := 1; round <= started.TotalRounds; round++ {
		e.whiteWinsRound(t, tr.ID)
		out, err = e.m.Advance(ctx, tr.ID, "org")
		require.NoError(t, err)
		if round == 1 {
			// Winners meet winners.
			require.Len(t, out.Round.Games, 2)
			assert.ElementsMatch(t, []string{"p1", "p3"}, []string{out.Round.Games[0].White, out.Round.Games[0].Black})
		}
	}
	require.True(t, out.Completed)
	assert.Len(t, out.Tournament.Rounds, started.TotalRounds)
}

func TestAwardByeAndForfeit(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	tr := e.openWith(t, CreateSpec{Type: bracket.RoundRobin}, players(5))
	started, err := e.m.Start(ctx, tr.ID, "org")
	require.NoError(t, err)
	r1 := started.Round(1)
	require.Len(t, r1.Idle, 1)
	idle := r1.Idle[0]

	busy := r1.Games[0]
	_, err = e.m.AwardBye(ctx, tr.ID, "org", busy.White)
	assert.Equal(t, "has_game", chessdto.CodeOf(err))

	got, err := e.m.AwardBye(ctx, tr.ID, "org", idle)
	require.NoError(t, err)
	assert.Equal(t, []string{idle}, got.Round(1).Byes)
	assert.Empty(t, got.Round(1).Idle)
	assert.Equal(t, Stat{Score: 1, Wins: 1}, got.Stat(idle))

	again, err := e.m.AwardBye(ctx, tr.ID, "org", idle)
	require.NoError(t, err)
	assert.Equal(t, Stat{Score: 1, Wins: 1}, again.Stat(idle))

	_, err = e.m.AwardForfeit(ctx, tr.ID, "org", busy.GameID, "stranger")
	assert.Equal(t, "invalid_argument", chessdto.CodeOf(err))
	after, err := e.m.AwardForfeit(ctx, tr.ID, "org", busy.GameID, busy.Black)
	require.NoError(t, err)
	p, ok := after.findGame(busy.GameID)
	require.True(t, ok)
	assert.Equal(t, bracket.BlackWon, p.Result)

	g, err := e.games.Get(ctx, busy.GameID)
	require.NoError(t, err)
	assert.Equal(t, gameplay.ReasonNoShow, g.WinReason)

	_, err = e.m.AwardForfeit(ctx, tr.ID, "org", busy.GameID, busy.Black)
	assert.Equal(t, "pairing_decided", chessdto.CodeOf(err))
}

func TestCancelAndEnd(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	tr := e.openWith(t, CreateSpec{}, players(2))
	got, err := e.m.Cancel(ctx, tr.ID, "org")
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, got.Status)
	_, err = e.m.Cancel(ctx, tr.ID, "org")
	assert.Equal(t, "invalid_transition", chessdto.CodeOf(err))
	_, err = e.m.Register(ctx, tr.ID, "p9")
	assert.Equal(t, "registration_closed", chessdto.CodeOf(err))

	rr := e.openWith(t, CreateSpec{Type: bracket.RoundRobin}, players(4))
	_, err = e.m.Start(ctx, rr.ID, "org")
	require.NoError(t, err)
	e.whiteWinsRound(t, rr.ID)
	ended, err := e.m.End(ctx, rr.ID, "org")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, ended.Status)
	assert.NotEmpty(t, ended.Winner)
	for _, p := range ended.Participants {
		assert.Positive(t, p.FinalRank)
	}
}

func TestNextMatch(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	tr := e.openWith(t, CreateSpec{}, players(4))
	_, err := e.m.Start(ctx, tr.ID, "org")
	require.NoError(t, err)

	next, err := e.m.NextMatch(ctx, tr.ID, "p4")
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, "p3", next.Opponent("p4"))

	_, err = e.m.NextMatch(ctx, tr.ID, "p9")
	assert.Equal(t, chessdto.KindNotFound, chessdto.KindOf(err))
}

func TestSweepRemindersSendsOnce(t *testing.T) {
	e := newTestEnv(t, WithReminderLead(30*time.Minute))
	ctx := context.Background()
	start := e.clock.Now().Add(20 * time.Minute)
	tr := e.openWith(t, CreateSpec{StartDate: &start}, players(2))

	n, err := e.m.SweepReminders(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	evs := e.rec.On(notify.UserChannel("p1"))
	last := evs[len(evs)-1]
	assert.Equal(t, chessdto.EventTournamentStarting, last.Type)
	assert.Equal(t, `"Spring Open" starts in 20 minutes! Get ready to compete.`, last.Message)

	n, err = e.m.SweepReminders(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	started, err := e.m.Start(ctx, tr.ID, "org")
	require.NoError(t, err)
	p := started.Round(1).Games[0]
	require.NotNil(t, p.ScheduledTime)
	assert.True(t, p.ScheduledTime.Equal(start))

	e.clock.Advance(5 * time.Minute)
	n, err = e.m.SweepReminders(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	evs = e.rec.On(notify.UserChannel("p2"))
	last = evs[len(evs)-1]
	assert.Equal(t, chessdto.EventMatchReminder, last.Type)
	assert.Equal(t, "Your tournament match vs p1 starts in 15 minutes!", last.Message)

	n, err = e.m.SweepReminders(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestFinishedCasualGamesAreIgnored(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	g, err := e.games.Create(ctx, "alice")
	require.NoError(t, err)
	_, err = e.games.Join(ctx, g.ID, "bob")
	require.NoError(t, err)
	_, err = e.games.Resign(ctx, g.ID, "bob")
	require.NoError(t, err)
	list, err := e.m.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}
