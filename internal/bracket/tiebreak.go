package bracket

import (
	"fmt"
	"math/rand/v2"
	"strings"
)

// TieBreakPolicy decides who advances from a drawn elimination game. An empty
// winner asks for a replay between the same players.
type TieBreakPolicy interface {
	Name() string
	Resolve(p Pairing, seeds map[string]int) (winner string)
}

type CoinFlip struct {
	Rand *rand.Rand
}

func (CoinFlip) Name() string { return "coinflip" }

func (c CoinFlip) Resolve(p Pairing, _ map[string]int) string {
	var heads bool
	if c.Rand != nil {
		heads = c.Rand.IntN(2) == 0
	} else {
		heads = rand.IntN(2) == 0
	}
	if heads {
		return p.White
	}
	return p.Black
}

// HigherSeed advances the better seed; a missing seed counts as the worst.
type HigherSeed struct{}

func (HigherSeed) Name() string { return "higher-seed" }

func (HigherSeed) Resolve(p Pairing, seeds map[string]int) string {
	ws, bs := seeds[p.White], seeds[p.Black]
	switch {
	case ws > 0 && (bs == 0 || ws <= bs):
		return p.White
	case bs > 0:
		return p.Black
	}
	return p.White
}

type WhiteAdvances struct{}

func (WhiteAdvances) Name() string { return "white" }

func (WhiteAdvances) Resolve(p Pairing, _ map[string]int) string { return p.White }

type Replay struct{}

func (Replay) Name() string { return "replay" }

func (Replay) Resolve(Pairing, map[string]int) string { return "" }

func ParseTieBreak(name string) (TieBreakPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "coinflip", "coin-flip", "random":
		return CoinFlip{}, nil
	case "higher-seed", "seed":
		return HigherSeed{}, nil
	case "white":
		return WhiteAdvances{}, nil
	case "replay":
		return Replay{}, nil
	}
	return nil, fmt.Errorf("unknown draw tie-break %q", name)
}
