package tournament

import (
	"slices"
	"time"

	"github.com/abmercy035/chesschamp-api/internal/bracket"
)

// Status only moves forward; completed and cancelled are terminal.
type Status string

const (
	StatusUpcoming     Status = "upcoming"
	StatusRegistration Status = "registration"
	StatusActive       Status = "active"
	StatusCompleted    Status = "completed"
	StatusCancelled    Status = "cancelled"
)

func (s Status) Terminal() bool { return s == StatusCompleted || s == StatusCancelled }

type Participant struct {
	PlayerID     string    `json:"playerId"`
	RegisteredAt time.Time `json:"registeredAt"`
	Seed         int       `json:"seed,omitempty"`
	// Rating is the snapshot taken when the bracket was generated.
	Rating       int `json:"rating,omitempty"`
	EliminatedIn int `json:"eliminatedIn,omitempty"`
	FinalRank    int `json:"finalRank,omitempty"`
}

// Stat is the per-participant tally kept in its own hash and changed by increments.
type Stat struct {
	Score  float64 `json:"score"`
	Wins   int     `json:"wins"`
	Losses int     `json:"losses"`
	Draws  int     `json:"draws"`
}

type statDelta struct {
	player string
	Stat
}

type Tournament struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	Type        bracket.Type `json:"type"`
	Format      Format       `json:"format"`
	TimeControl TimeControl  `json:"timeControl"`
	Status      Status       `json:"status"`
	Organizer   string       `json:"organizer"`
	TieBreak    string       `json:"tieBreak,omitempty"`

	RegistrationStart *time.Time `json:"registrationStart,omitempty"`
	RegistrationEnd   *time.Time `json:"registrationEnd,omitempty"`
	StartDate         *time.Time `json:"startDate,omitempty"`
	EndDate           *time.Time `json:"endDate,omitempty"`

	MaxParticipants int `json:"maxParticipants"`
	MinParticipants int `json:"minParticipants"`
	MinRating       int `json:"minRating,omitempty"`

	Participants []Participant   `json:"participants"`
	Rounds       []bracket.Round `json:"rounds,omitempty"`
	CurrentRound int             `json:"currentRound"`
	TotalRounds  int             `json:"totalRounds"`
	Winner       string          `json:"winner,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	Version   int64     `json:"version"`

	stats   map[string]Stat
	pending []statDelta
}

func (t *Tournament) participant(player string) (int, bool) {
	i := slices.IndexFunc(t.Participants, func(p Participant) bool { return p.PlayerID == player })
	return i, i >= 0
}

func (t *Tournament) IsParticipant(player string) bool {
	_, ok := t.participant(player)
	return ok
}

func (t *Tournament) PlayerIDs() []string {
	out := make([]string, len(t.Participants))
	for i, p := range t.Participants {
		out[i] = p.PlayerID
	}
	return out
}

// Stat returns the participant's committed tally.
func (t *Tournament) Stat(player string) Stat { return t.stats[player] }

// credit queues an increment to be committed with the document and applies it locally.
func (t *Tournament) credit(player string, d Stat) {
	if t.stats == nil {
		t.stats = make(map[string]Stat)
	}
	cur := t.stats[player]
	cur.Score += d.Score
	cur.Wins += d.Wins
	cur.Losses += d.Losses
	cur.Draws += d.Draws
	t.stats[player] = cur
	t.pending = append(t.pending, statDelta{player: player, Stat: d})
}

func (t *Tournament) creditWin(player string)  { t.credit(player, Stat{Score: 1, Wins: 1}) }
func (t *Tournament) creditLoss(player string) { t.credit(player, Stat{Losses: 1}) }
func (t *Tournament) creditDraw(player string) { t.credit(player, Stat{Score: 0.5, Draws: 1}) }

// Records merges the document with the stat hashes for standings.
func (t *Tournament) Records() []bracket.Record {
	out := make([]bracket.Record, len(t.Participants))
	for i, p := range t.Participants {
		s := t.stats[p.PlayerID]
		out[i] = bracket.Record{
			PlayerID:     p.PlayerID,
			Seed:         p.Seed,
			Score:        s.Score,
			Wins:         s.Wins,
			Losses:       s.Losses,
			Draws:        s.Draws,
			EliminatedIn: p.EliminatedIn,
			FinalRank:    p.FinalRank,
		}
	}
	return out
}

func (t *Tournament) Seeds() map[string]int {
	out := make(map[string]int, len(t.Participants))
	for _, p := range t.Participants {
		if p.Seed > 0 {
			out[p.PlayerID] = p.Seed
		}
	}
	return out
}

// Round returns the 1-based round, or nil.
func (t *Tournament) Round(n int) *bracket.Round {
	if n < 1 || n > len(t.Rounds) {
		return nil
	}
	return &t.Rounds[n-1]
}

// findGame locates a pairing by game id.
func (t *Tournament) findGame(gameID string) (*bracket.Pairing, bool) {
	for r := range t.Rounds {
		for i := range t.Rounds[r].Games {
			if t.Rounds[r].Games[i].GameID == gameID {
				return &t.Rounds[r].Games[i], true
			}
		}
	}
	return nil, false
}

func (t *Tournament) roundComplete() bool {
	r := t.Round(t.CurrentRound)
	return r != nil && r.Complete()
}
