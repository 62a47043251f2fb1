package bracket

import (
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func players(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("p%d", i+1)
	}
	return out
}

func decideAll(r *Round, res Result) {
	for i := range r.Games {
		r.Games[i].Result = res
	}
}

func TestSeedOrder(t *testing.T) {
	got := SeedOrder([]Entrant{
		{ID: "c", Rating: 1500},
		{ID: "a", Rating: 1300},
		{ID: "b", Rating: 1300},
		{ID: "d", Rating: 900, Seed: 1},
	})
	assert.Equal(t, []string{"d", "c", "a", "b"}, got)
}

func TestSingleEliminationEightPlayers(t *testing.T) {
	plan := NewSingleElimination(players(8))
	require.Equal(t, 3, plan.TotalRounds)
	r1 := plan.Rounds[0]
	require.Len(t, r1.Games, 4)
	assert.Equal(t, "p1", r1.Games[0].White)
	assert.Equal(t, "p2", r1.Games[0].Black)
	assert.Empty(t, r1.Byes)
	assert.False(t, r1.Complete())

	decideAll(&r1, WhiteWon)
	require.True(t, r1.Complete())
	adv := Advancers(r1, func(Pairing) string { return "" })
	assert.Equal(t, []string{"p1", "p3", "p5", "p7"}, adv)

	r2 := PairAdjacent(2, adv)
	require.Len(t, r2.Games, 2)
	decideAll(&r2, BlackWon)
	adv = Advancers(r2, nil)
	assert.Equal(t, []string{"p3", "p7"}, adv)

	r3 := PairAdjacent(3, adv)
	require.Len(t, r3.Games, 1)
	decideAll(&r3, WhiteWon)
	assert.Equal(t, []string{"p3"}, Advancers(r3, nil))
}

func TestSingleEliminationOddFieldGivesLowestSeedBye(t *testing.T) {
	plan := NewSingleElimination(players(5))
	assert.Equal(t, 3, plan.TotalRounds)
	r1 := plan.Rounds[0]
	assert.Len(t, r1.Games, 2)
	assert.Equal(t, []string{"p5"}, r1.Byes)

	decideAll(&r1, Draw)
	adv := Advancers(r1, func(p Pairing) string { return p.Black })
	assert.Equal(t, []string{"p2", "p4", "p5"}, adv)
}

func TestPairEliminationRotatesBye(t *testing.T) {
	r1 := NewSingleElimination(players(5)).Rounds[0]
	decideAll(&r1, WhiteWon)
	history := []Round{r1}

	r2 := PairElimination(2, Advancers(r1, nil), history)
	assert.Equal(t, []string{"p1"}, r2.Byes)
	require.Len(t, r2.Games, 1)
	assert.Equal(t, "p3", r2.Games[0].White)
	assert.Equal(t, "p5", r2.Games[0].Black)

	// Everyone already had a bye: the last advancer takes another.
	r := PairElimination(3, []string{"p1", "p5", "p3"}, []Round{{Byes: []string{"p1", "p3", "p5"}}})
	assert.Equal(t, []string{"p3"}, r.Byes)
	assert.Equal(t, "p1", r.Games[0].White)
	assert.Equal(t, "p5", r.Games[0].Black)

	even := PairElimination(2, []string{"a", "b"}, history)
	assert.Empty(t, even.Byes)
	assert.Len(t, even.Games, 1)
}

func TestRoundRobinEven(t *testing.T) {
	ps := players(6)
	plan := NewRoundRobin(ps)
	require.Equal(t, 5, plan.TotalRounds)
	require.Len(t, plan.Rounds, 5)

	total := 0
	for _, r := range plan.Rounds {
		seen := map[string]int{}
		for _, g := range r.Games {
			seen[g.White]++
			seen[g.Black]++
		}
		assert.Len(t, seen, 6, "round %d", r.Number)
		for p, c := range seen {
			assert.Equal(t, 1, c, "player %s round %d", p, r.Number)
		}
		total += len(r.Games)
	}
	assert.Equal(t, 6*5/2, total)

	rounds := plan.Rounds
	for i, a := range ps {
		for _, b := range ps[i+1:] {
			assert.True(t, HavePlayed(rounds, a, b), "%s-%s never meet", a, b)
		}
	}
}

func TestRoundRobinOddSitsOneOut(t *testing.T) {
	plan := NewRoundRobin(players(5))
	require.Equal(t, 5, plan.TotalRounds)
	total := 0
	idle := map[string]int{}
	for _, r := range plan.Rounds {
		require.Len(t, r.Idle, 1)
		assert.Empty(t, r.Byes)
		idle[r.Idle[0]]++
		total += len(r.Games)
	}
	assert.Equal(t, 5*4/2, total)
	assert.Len(t, idle, 5)
}

func TestSwissAvoidsRematchAndRotatesBye(t *testing.T) {
	plan := NewSwiss(players(5))
	assert.Equal(t, 4, plan.TotalRounds)
	r1 := plan.Rounds[0]
	assert.Equal(t, []string{"p5"}, r1.Byes)
	decideAll(&r1, WhiteWon)

	r2 := PairSwiss(2, []string{"p1", "p3", "p5", "p2", "p4"}, []Round{r1})
	assert.Equal(t, []string{"p4"}, r2.Byes)
	for _, g := range r2.Games {
		assert.False(t, HavePlayed([]Round{r1}, g.White, g.Black), "rematch %s-%s", g.White, g.Black)
	}
	assert.Equal(t, "p1", r2.Games[0].White)
	assert.Equal(t, "p3", r2.Games[0].Black)

	decideAll(&r2, BlackWon)
	r3 := PairSwiss(3, []string{"p3", "p2", "p1", "p4", "p5"}, []Round{r1, r2})
	assert.Equal(t, []string{"p1"}, r3.Byes, "p5 and p4 already had byes")
	require.NotEmpty(t, r3.Games)
	assert.Equal(t, "p2", r3.Games[0].White, "p3 has had more whites")
}

func TestStandingsTiebreaks(t *testing.T) {
	rounds := []Round{{
		Number: 1,
		Games: []Pairing{
			{White: "a", Black: "b", Result: WhiteWon},
			{White: "c", Black: "d", Result: Draw},
		},
	}, {
		Number: 2,
		Games: []Pairing{
			{White: "a", Black: "c", Result: Draw},
			{White: "d", Black: "b", Result: WhiteWon},
			{White: "b", Black: "d", Result: BlackWon, Replayed: true},
		},
	}}
	records := []Record{
		{PlayerID: "a", Score: 1.5},
		{PlayerID: "b", Score: 0},
		{PlayerID: "c", Score: 1},
		{PlayerID: "d", Score: 1.5},
	}
	st := Standings(records, rounds)
	byID := map[string]Record{}
	for _, r := range st {
		byID[r.PlayerID] = r
	}
	assert.Equal(t, 1.0, byID["a"].Buchholz)
	assert.Equal(t, 0.5, byID["a"].Sonneborn)
	assert.Equal(t, 1.0, byID["d"].Buchholz)
	assert.Equal(t, 0.5, byID["d"].Sonneborn)
	assert.Equal(t, 3.0, byID["c"].Buchholz)
	assert.Equal(t, []string{"a", "d", "c", "b"}, Order(st))
}

func TestFinalRanksSingleElimination(t *testing.T) {
	records := []Record{
		{PlayerID: "p1", Score: 1, EliminatedIn: 2},
		{PlayerID: "p2", Score: 0, EliminatedIn: 1},
		{PlayerID: "p3", Score: 2},
		{PlayerID: "p4", Score: 0, EliminatedIn: 1},
	}
	ranked := FinalRanks(SingleElimination, records, nil)
	assert.Equal(t, []string{"p3", "p1", "p2", "p4"}, Order(ranked))
	assert.Equal(t, 1, ranked[0].FinalRank)
	assert.Equal(t, 4, ranked[3].FinalRank)
}

func TestTieBreakPolicies(t *testing.T) {
	p := Pairing{White: "w", Black: "b", Result: Draw}
	seeds := map[string]int{"w": 4, "b": 1}

	assert.Equal(t, "b", HigherSeed{}.Resolve(p, seeds))
	assert.Equal(t, "w", HigherSeed{}.Resolve(p, nil))
	assert.Equal(t, "w", WhiteAdvances{}.Resolve(p, seeds))
	assert.Empty(t, Replay{}.Resolve(p, seeds))

	flip := CoinFlip{Rand: rand.New(rand.NewPCG(1, 2))}
	got := map[string]bool{}
	for range 64 {
		got[flip.Resolve(p, nil)] = true
	}
	assert.Equal(t, map[string]bool{"w": true, "b": true}, got)

	for _, name := range []string{"coinflip", "higher-seed", "white", "replay"} {
		pol, err := ParseTieBreak(name)
		require.NoError(t, err)
		assert.Equal(t, name, pol.Name())
	}
	_, err := ParseTieBreak("arm-wrestle")
	assert.Error(t, err)
}
