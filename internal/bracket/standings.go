package bracket

import (
	"cmp"
	"slices"
)

// Record is one participant's tally. Score counts 1 per win or bye and 0.5 per draw.
type Record struct {
	PlayerID  string  `json:"playerId"`
	Seed      int     `json:"seed,omitempty"`
	Score     float64 `json:"score"`
	Wins      int     `json:"wins"`
	Losses    int     `json:"losses"`
	Draws     int     `json:"draws"`
	Buchholz  float64 `json:"buchholz"`
	Sonneborn float64 `json:"sonneborn"`
	// EliminatedIn is the elimination round a single-elimination player lost in.
	EliminatedIn int `json:"eliminatedIn,omitempty"`
	FinalRank    int `json:"finalRank,omitempty"`
}

func (r Record) Eliminated() bool { return r.EliminatedIn > 0 }

// ComputeTiebreaks fills Buchholz (sum of opponents' scores) and
// Sonneborn-Berger (beaten opponents' scores plus half of drawn opponents')
// from the decided live games.
func ComputeTiebreaks(records []Record, rounds []Round) {
	score := make(map[string]float64, len(records))
	for _, r := range records {
		score[r.PlayerID] = r.Score
	}
	buch := make(map[string]float64, len(records))
	sb := make(map[string]float64, len(records))
	for _, rd := range rounds {
		for _, g := range rd.Live() {
			if !g.Decided() {
				continue
			}
			buch[g.White] += score[g.Black]
			buch[g.Black] += score[g.White]
			switch g.Result {
			case WhiteWon:
				sb[g.White] += score[g.Black]
			case BlackWon:
				sb[g.Black] += score[g.White]
			case Draw:
				sb[g.White] += score[g.Black] / 2
				sb[g.Black] += score[g.White] / 2
			}
		}
	}
	for i := range records {
		records[i].Buchholz = buch[records[i].PlayerID]
		records[i].Sonneborn = sb[records[i].PlayerID]
	}
}

// Compare orders by score, Buchholz, Sonneborn-Berger (all descending), then
// seed and id.
func Compare(a, b Record) int {
	if c := cmp.Compare(b.Score, a.Score); c != 0 {
		return c
	}
	if c := cmp.Compare(b.Buchholz, a.Buchholz); c != 0 {
		return c
	}
	if c := cmp.Compare(b.Sonneborn, a.Sonneborn); c != 0 {
		return c
	}
	if a.Seed != b.Seed {
		switch {
		case a.Seed == 0:
			return 1
		case b.Seed == 0:
			return -1
		}
		return cmp.Compare(a.Seed, b.Seed)
	}
	return cmp.Compare(a.PlayerID, b.PlayerID)
}

// Standings computes tiebreaks and returns the records sorted.
func Standings(records []Record, rounds []Round) []Record {
	out := slices.Clone(records)
	ComputeTiebreaks(out, rounds)
	slices.SortStableFunc(out, Compare)
	return out
}

func Order(records []Record) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.PlayerID
	}
	return out
}

// FinalRanks assigns FinalRank. Single elimination ranks the survivor first,
// then players by the round they fell in (later is better), standings breaking
// ties. Other formats rank by standings.
func FinalRanks(t Type, records []Record, rounds []Round) []Record {
	out := Standings(records, rounds)
	if t == SingleElimination {
		slices.SortStableFunc(out, func(a, b Record) int {
			ae, be := a.EliminatedIn, b.EliminatedIn
			switch {
			case ae == 0 && be != 0:
				return -1
			case be == 0 && ae != 0:
				return 1
			}
			return cmp.Compare(be, ae)
		})
	}
	for i := range out {
		out[i].FinalRank = i + 1
	}
	return out
}
