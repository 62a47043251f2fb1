// Package bracket generates pairings and standings. It holds no state and
// does no I/O; the tournament package persists what it returns.
package bracket

import (
	"cmp"
	"math"
	"slices"
	"time"
)

type Type string

const (
	SingleElimination Type = "single-elimination"
	RoundRobin        Type = "round-robin"
	Swiss             Type = "swiss"
	Seasonal          Type = "seasonal"
)

func (t Type) Valid() bool {
	switch t {
	case SingleElimination, RoundRobin, Swiss, Seasonal:
		return true
	}
	return false
}

type Result string

const (
	Pending  Result = "pending"
	WhiteWon Result = "white"
	BlackWon Result = "black"
	Draw     Result = "draw"
)

type Pairing struct {
	Round         int        `json:"round"`
	MatchIndex    int        `json:"matchIndex"`
	White         string     `json:"white"`
	Black         string     `json:"black"`
	Result        Result     `json:"result"`
	GameID        string     `json:"gameId,omitempty"`
	ScheduledTime *time.Time `json:"scheduledTime,omitempty"`
	// Replayed marks a drawn elimination game superseded by a replay pairing.
	Replayed bool `json:"replayed,omitempty"`
}

func (p Pairing) Decided() bool { return p.Result != Pending }

func (p Pairing) Involves(player string) bool { return p.White == player || p.Black == player }

// Opponent returns the other player, or "" when player is not in the pairing.
func (p Pairing) Opponent(player string) string {
	switch player {
	case p.White:
		return p.Black
	case p.Black:
		return p.White
	}
	return ""
}

// Winner is the decisive winner, or "" for draws and pending games.
func (p Pairing) Winner() string {
	switch p.Result {
	case WhiteWon:
		return p.White
	case BlackWon:
		return p.Black
	}
	return ""
}

func (p Pairing) Loser() string {
	switch p.Result {
	case WhiteWon:
		return p.Black
	case BlackWon:
		return p.White
	}
	return ""
}

type Round struct {
	Number int       `json:"number"`
	Games  []Pairing `json:"games"`
	// Byes score a win without a game.
	Byes []string `json:"byes,omitempty"`
	// Idle players sit the round out and score nothing (odd round-robin).
	Idle []string `json:"idle,omitempty"`
}

// Complete reports whether every live game in the round has a result.
func (r Round) Complete() bool {
	for _, g := range r.Games {
		if !g.Replayed && !g.Decided() {
			return false
		}
	}
	return true
}

// Live returns the games that count, skipping superseded replays.
func (r Round) Live() []Pairing {
	out := make([]Pairing, 0, len(r.Games))
	for _, g := range r.Games {
		if !g.Replayed {
			out = append(out, g)
		}
	}
	return out
}

// Find returns the index of the live game that involves player.
func (r Round) Find(player string) int {
	for i, g := range r.Games {
		if !g.Replayed && g.Involves(player) {
			return i
		}
	}
	return -1
}

// Entrant is a registered player as seen by seeding.
type Entrant struct {
	ID     string
	Seed   int
	Rating int
}

// SeedOrder sorts entrants: explicit seeds first (ascending), then rating
// descending, then id for stability.
func SeedOrder(entrants []Entrant) []string {
	sorted := slices.Clone(entrants)
	slices.SortStableFunc(sorted, func(a, b Entrant) int {
		switch {
		case a.Seed > 0 && b.Seed > 0:
			if c := cmp.Compare(a.Seed, b.Seed); c != 0 {
				return c
			}
		case a.Seed > 0:
			return -1
		case b.Seed > 0:
			return 1
		}
		if c := cmp.Compare(b.Rating, a.Rating); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	out := make([]string, len(sorted))
	for i, e := range sorted {
		out[i] = e.ID
	}
	return out
}

// Plan is the bracket produced at start: total rounds plus the rounds known upfront.
type Plan struct {
	TotalRounds int
	Rounds      []Round
}

func log2Ceil(n int) int {
	if n <= 1 {
		return 0
	}
	return int(math.Ceil(math.Log2(float64(n))))
}

// PairAdjacent pairs 1v2, 3v4, ... in order. An odd player out receives a bye.
func PairAdjacent(number int, players []string) Round {
	r := Round{Number: number}
	for i := 0; i+1 < len(players); i += 2 {
		r.Games = append(r.Games, Pairing{
			Round:      number,
			MatchIndex: len(r.Games),
			White:      players[i],
			Black:      players[i+1],
			Result:     Pending,
		})
	}
	if len(players)%2 == 1 {
		r.Byes = []string{players[len(players)-1]}
	}
	return r
}

// PairElimination pairs the advancers of an earlier round. With an odd field
// the highest-ranked player without a previous bye receives it; the rest pair
// adjacently.
func PairElimination(number int, advancers []string, history []Round) Round {
	if len(advancers)%2 == 0 {
		return PairAdjacent(number, advancers)
	}
	byes := ByeCounts(history)
	pick := len(advancers) - 1
	for i, p := range advancers {
		if byes[p] == 0 {
			pick = i
			break
		}
	}
	rest := slices.Delete(slices.Clone(advancers), pick, pick+1)
	r := PairAdjacent(number, rest)
	r.Byes = []string{advancers[pick]}
	return r
}

// NewSingleElimination seeds round 1 only; later rounds come from Advancers
// paired by PairElimination.
// The lowest seed gets the bye when the field is odd.
func NewSingleElimination(seeded []string) Plan {
	return Plan{TotalRounds: log2Ceil(len(seeded)), Rounds: []Round{PairAdjacent(1, seeded)}}
}

// Advancers lists who moves on from a complete elimination round, in bracket
// order, with byes last. resolve decides drawn games.
func Advancers(r Round, resolve func(Pairing) string) []string {
	var out []string
	for _, g := range r.Live() {
		switch g.Result {
		case WhiteWon, BlackWon:
			out = append(out, g.Winner())
		case Draw:
			if w := resolve(g); w != "" {
				out = append(out, w)
			}
		}
	}
	return append(out, r.Byes...)
}

// NewRoundRobin builds every round with the circle method: the first player is
// fixed and the rest rotate. Odd fields add a phantom seat; whoever meets it sits out.
func NewRoundRobin(players []string) Plan {
	seats := slices.Clone(players)
	if len(seats)%2 == 1 {
		seats = append(seats, "")
	}
	n := len(seats)
	if n < 2 {
		return Plan{}
	}
	plan := Plan{TotalRounds: n - 1}
	rotating := slices.Clone(seats[1:])
	for r := 0; r < n-1; r++ {
		order := append([]string{seats[0]}, rotating...)
		round := Round{Number: r + 1}
		for i := 0; i < n/2; i++ {
			a, b := order[i], order[n-1-i]
			if a == "" || b == "" {
				round.Idle = append(round.Idle, a+b)
				continue
			}
			if (r+i)%2 == 1 {
				a, b = b, a
			}
			round.Games = append(round.Games, Pairing{
				Round:      r + 1,
				MatchIndex: len(round.Games),
				White:      a,
				Black:      b,
				Result:     Pending,
			})
		}
		plan.Rounds = append(plan.Rounds, round)
		// rotate right by one
		last := rotating[len(rotating)-1]
		copy(rotating[1:], rotating[:len(rotating)-1])
		rotating[0] = last
	}
	return plan
}

func SwissRounds(n int) int { return log2Ceil(n) + 1 }

// NewSwiss pairs round 1 from the seeded order; later rounds come from PairSwiss.
func NewSwiss(seeded []string) Plan {
	first := PairSwiss(1, seeded, nil)
	return Plan{TotalRounds: SwissRounds(len(seeded)), Rounds: []Round{first}}
}

// PairSwiss pairs standing-ordered players adjacently, skipping rematches when an
// unplayed opponent is available. With an odd field the lowest-ranked player
// without a previous bye sits out with a bye. Colours go to whoever has had
// fewer whites; ties favour the higher-ranked player.
func PairSwiss(number int, standing []string, history []Round) Round {
	played := Played(history)
	whites := WhiteCounts(history)
	byes := ByeCounts(history)

	pool := slices.Clone(standing)
	round := Round{Number: number}
	if len(pool)%2 == 1 {
		pick := len(pool) - 1
		for i := len(pool) - 1; i >= 0; i-- {
			if byes[pool[i]] == 0 {
				pick = i
				break
			}
		}
		round.Byes = []string{pool[pick]}
		pool = slices.Delete(pool, pick, pick+1)
	}

	used := make([]bool, len(pool))
	for i := range pool {
		if used[i] {
			continue
		}
		used[i] = true
		j := -1
		for k := i + 1; k < len(pool); k++ {
			if !used[k] && !played[pairKey(pool[i], pool[k])] {
				j = k
				break
			}
		}
		if j < 0 {
			for k := i + 1; k < len(pool); k++ {
				if !used[k] {
					j = k
					break
				}
			}
		}
		if j < 0 {
			break
		}
		used[j] = true
		white, black := pool[i], pool[j]
		if whites[black] < whites[white] {
			white, black = black, white
		}
		round.Games = append(round.Games, Pairing{
			Round:      number,
			MatchIndex: len(round.Games),
			White:      white,
			Black:      black,
			Result:     Pending,
		})
	}
	return round
}

func pairKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + "\x00" + b
}

// Played indexes every pair that already met in a live game.
func Played(rounds []Round) map[string]bool {
	out := make(map[string]bool)
	for _, r := range rounds {
		for _, g := range r.Live() {
			out[pairKey(g.White, g.Black)] = true
		}
	}
	return out
}

func HavePlayed(rounds []Round, a, b string) bool { return Played(rounds)[pairKey(a, b)] }

func WhiteCounts(rounds []Round) map[string]int {
	out := make(map[string]int)
	for _, r := range rounds {
		for _, g := range r.Live() {
			out[g.White]++
		}
	}
	return out
}

func ByeCounts(rounds []Round) map[string]int {
	out := make(map[string]int)
	for _, r := range rounds {
		for _, p := range r.Byes {
			out[p]++
		}
	}
	return out
}
