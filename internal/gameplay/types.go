package gameplay

import (
	"time"

	"github.com/abmercy035/chesschamp-api/internal/rules"
	"github.com/abmercy035/chesschamp-api/pkg/chessdto"
)

// Status is the game lifecycle state. It only moves forward.
type Status string

const (
	StatusWaiting  Status = "waiting"
	StatusActive   Status = "active"
	StatusFinished Status = "finished"
)

type GameType string

const (
	TypeCasual     GameType = "casual"
	TypeRanked     GameType = "ranked"
	TypeTournament GameType = "tournament"
)

type WinReason string

const (
	ReasonCheckmate            WinReason = "checkmate"
	ReasonStalemate            WinReason = "stalemate"
	ReasonDraw                 WinReason = "draw"
	ReasonThreefold            WinReason = "threefold"
	ReasonInsufficientMaterial WinReason = "insufficientMaterial"
	ReasonFiftyMove            WinReason = "fiftyMove"
	ReasonResignation          WinReason = "resignation"
	ReasonTimeout              WinReason = "timeout"
	ReasonNoShow               WinReason = "no-show"
	ReasonForfeitTime          WinReason = "forfeit-time"
)

// IsDraw reports whether the reason ends the game without a winner.
func (r WinReason) IsDraw() bool {
	switch r {
	case ReasonStalemate, ReasonDraw, ReasonThreefold, ReasonInsufficientMaterial, ReasonFiftyMove:
		return true
	}
	return false
}

type DrawStatus string

const (
	DrawPending  DrawStatus = "pending"
	DrawAccepted DrawStatus = "accepted"
	DrawDeclined DrawStatus = "declined"
)

type MoveRecord struct {
	SAN       string    `json:"san"`
	UCI       string    `json:"uci"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Piece     string    `json:"piece"`
	Captured  string    `json:"captured,omitempty"`
	Promotion string    `json:"promotion,omitempty"`
	Flags     string    `json:"flags"`
	FEN       string    `json:"fen"`
	Timestamp time.Time `json:"timestamp"`
}

type PendingDraw struct {
	OfferedBy string    `json:"offeredBy"`
	Timestamp time.Time `json:"timestamp"`
}

type DrawOffer struct {
	OfferedBy   string     `json:"offeredBy"`
	Timestamp   time.Time  `json:"timestamp"`
	Status      DrawStatus `json:"status"`
	RespondedAt *time.Time `json:"respondedAt,omitempty"`
}

type TournamentRef struct {
	ID         string `json:"id"`
	Round      int    `json:"round"`
	MatchIndex int    `json:"matchIndex"`
}

type Game struct {
	ID       string `json:"id"`
	Host     string `json:"host"`
	Opponent string `json:"opponent,omitempty"`
	Status   Status `json:"status"`

	StartFEN  string          `json:"startFen"`
	FEN       string          `json:"fen"`
	Turn      rules.Color     `json:"turn"`
	Moves     []MoveRecord    `json:"moves"`
	TimeLeft  chessdto.Clock  `json:"timeLeft"`
	GameState rules.GameState `json:"gameState"`

	Winner    string    `json:"winner,omitempty"`
	WinReason WinReason `json:"winReason,omitempty"`

	CurrentDrawOffer *PendingDraw `json:"currentDrawOffer,omitempty"`
	DrawOffers       []DrawOffer  `json:"drawOffers,omitempty"`

	GameType   GameType       `json:"gameType"`
	Tournament *TournamentRef `json:"tournament,omitempty"`
	// Ready lists assigned tournament players who confirmed before the game started.
	Ready   []string `json:"ready,omitempty"`
	Watches int      `json:"watches"`

	ScheduledStartTime *time.Time `json:"scheduledStartTime,omitempty"`
	StartTime          *time.Time `json:"startTime,omitempty"`
	EndTime            *time.Time `json:"endTime,omitempty"`
	CreatedAt          time.Time  `json:"createdAt"`
	UpdatedAt          time.Time  `json:"updatedAt"`
	Version            int64      `json:"version"`
}

// Host plays white, the opponent black.
func (g *Game) ColorOf(userID string) rules.Color {
	switch {
	case userID == "":
		return ""
	case userID == g.Host:
		return rules.White
	case userID == g.Opponent:
		return rules.Black
	}
	return ""
}

func (g *Game) PlayerFor(c rules.Color) string {
	if c == rules.White {
		return g.Host
	}
	return g.Opponent
}

// RoleOf returns "host", "opponent" or "".
func (g *Game) RoleOf(userID string) string {
	switch g.ColorOf(userID) {
	case rules.White:
		return "host"
	case rules.Black:
		return "opponent"
	}
	return ""
}

func (g *Game) IsTournament() bool { return g.GameType == TypeTournament && g.Tournament != nil }

func (g *Game) UCIHistory() []string {
	out := make([]string, len(g.Moves))
	for i, mv := range g.Moves {
		out[i] = mv.UCI
	}
	return out
}

// LastActivity is the last move time, or creation time when no move exists.
func (g *Game) LastActivity() time.Time {
	if n := len(g.Moves); n > 0 {
		return g.Moves[n-1].Timestamp
	}
	return g.CreatedAt
}

func (g *Game) isReady(userID string) bool {
	for _, id := range g.Ready {
		if id == userID {
			return true
		}
	}
	return false
}

func (g *Game) clone() *Game {
	cp := *g
	cp.Moves = append([]MoveRecord(nil), g.Moves...)
	cp.DrawOffers = append([]DrawOffer(nil), g.DrawOffers...)
	cp.Ready = append([]string(nil), g.Ready...)
	return &cp
}

// finish moves g to finished. A pending draw offer lapses as declined.
func finish(g *Game, winner string, reason WinReason, now time.Time) {
	g.Status = StatusFinished
	g.Winner = winner
	g.WinReason = reason
	g.EndTime = &now
	g.UpdatedAt = now
	if g.CurrentDrawOffer != nil {
		resolveDraw(g, DrawDeclined, now)
	}
}

func resolveDraw(g *Game, status DrawStatus, now time.Time) {
	for i := len(g.DrawOffers) - 1; i >= 0; i-- {
		if g.DrawOffers[i].Status == DrawPending {
			g.DrawOffers[i].Status = status
			g.DrawOffers[i].RespondedAt = &now
			break
		}
	}
	g.CurrentDrawOffer = nil
}

// terminalFor applies the fixed priority: checkmate, then the specific draw causes.
func terminalFor(st rules.GameState) (WinReason, bool) {
	switch {
	case st.InCheckmate:
		return ReasonCheckmate, true
	case st.InStalemate:
		return ReasonStalemate, true
	case st.InsufficientMaterial:
		return ReasonInsufficientMaterial, true
	case st.InThreefoldRepetition:
		return ReasonThreefold, true
	case st.FiftyMove:
		return ReasonFiftyMove, true
	case st.InDraw:
		return ReasonDraw, true
	}
	return "", false
}
