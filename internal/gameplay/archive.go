package gameplay

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/abmercy035/chesschamp-api/internal/obslog"
	"github.com/abmercy035/chesschamp-api/internal/rules"
)

const archiveSchema = `CREATE TABLE IF NOT EXISTS chess_games_archive (
	game_id       TEXT PRIMARY KEY,
	game_type     TEXT NOT NULL,
	tournament_id TEXT,
	round         INT,
	white_id      TEXT NOT NULL,
	black_id      TEXT,
	winner_id     TEXT,
	result        TEXT NOT NULL,
	win_reason    TEXT NOT NULL,
	moves_uci     JSONB NOT NULL,
	moves_san     JSONB NOT NULL,
	pgn           TEXT NOT NULL,
	final_fen     TEXT NOT NULL,
	started_at    TIMESTAMPTZ,
	ended_at      TIMESTAMPTZ,
	duration_ms   BIGINT NOT NULL DEFAULT 0
)`

// Archive writes finished games with their PGN to Postgres. It is a FinishHook.
type Archive struct {
	db *sql.DB
}

func OpenArchive(ctx context.Context, databaseURL string) (*Archive, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := db.ExecContext(pctx, archiveSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure archive schema: %w", err)
	}
	return &Archive{db: db}, nil
}

func NewArchive(db *sql.DB) *Archive { return &Archive{db: db} }

func (a *Archive) Close() error {
	if a == nil || a.db == nil {
		return nil
	}
	return a.db.Close()
}

func (a *Archive) GameFinished(ctx context.Context, g *Game) error {
	if a == nil || a.db == nil || g == nil || g.Status != StatusFinished {
		return nil
	}
	result := pgnResult(g)
	uci := g.UCIHistory()
	san := make([]string, len(g.Moves))
	for i, mv := range g.Moves {
		san[i] = mv.SAN
	}
	uciRaw, _ := json.Marshal(uci)
	sanRaw, _ := json.Marshal(san)

	var (
		tournamentID sql.NullString
		round        sql.NullInt64
	)
	if g.Tournament != nil {
		tournamentID = sql.NullString{String: g.Tournament.ID, Valid: true}
		round = sql.NullInt64{Int64: int64(g.Tournament.Round), Valid: true}
	}
	var duration int64
	if g.StartTime != nil && g.EndTime != nil {
		duration = max(g.EndTime.Sub(*g.StartTime).Milliseconds(), 0)
	}

	const q = `INSERT INTO chess_games_archive (
		game_id, game_type, tournament_id, round, white_id, black_id, winner_id,
		result, win_reason, moves_uci, moves_san, pgn, final_fen, started_at, ended_at, duration_ms
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
	ON CONFLICT (game_id) DO UPDATE SET
		winner_id=EXCLUDED.winner_id,
		result=EXCLUDED.result,
		win_reason=EXCLUDED.win_reason,
		moves_uci=EXCLUDED.moves_uci,
		moves_san=EXCLUDED.moves_san,
		pgn=EXCLUDED.pgn,
		final_fen=EXCLUDED.final_fen,
		ended_at=EXCLUDED.ended_at,
		duration_ms=EXCLUDED.duration_ms`

	_, err := a.db.ExecContext(ctx, q,
		g.ID, string(g.GameType), tournamentID, round,
		g.Host, nullable(g.Opponent), nullable(g.Winner),
		result, string(g.WinReason), string(uciRaw), string(sanRaw), BuildPGN(g),
		g.FEN, g.StartTime, g.EndTime, duration,
	)
	if err != nil {
		return fmt.Errorf("archive game %s: %w", g.ID, err)
	}
	obslog.L().Info("game_archived", zap.String("game_id", g.ID), zap.String("result", result))
	return nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func pgnResult(g *Game) string {
	switch {
	case g.Status != StatusFinished:
		return "*"
	case g.Winner == "":
		return "1/2-1/2"
	case g.Winner == g.Host:
		return "1-0"
	default:
		return "0-1"
	}
}

// BuildPGN renders the game's SAN history with the seven-tag roster.
func BuildPGN(g *Game) string {
	if g == nil {
		return ""
	}
	date := g.CreatedAt
	if g.StartTime != nil {
		date = *g.StartTime
	}
	event := "Casual game"
	round := "-"
	switch {
	case g.Tournament != nil:
		event = "Tournament " + g.Tournament.ID
		round = fmt.Sprintf("%d.%d", g.Tournament.Round, g.Tournament.MatchIndex+1)
	case g.GameType == TypeRanked:
		event = "Ranked game"
	}
	result := pgnResult(g)

	var b strings.Builder
	fmt.Fprintf(&b, "[Event \"%s\"]\n", sanitizePGN(event))
	b.WriteString("[Site \"chesschamp\"]\n")
	fmt.Fprintf(&b, "[Date \"%04d.%02d.%02d\"]\n", date.Year(), int(date.Month()), date.Day())
	fmt.Fprintf(&b, "[Round \"%s\"]\n", round)
	fmt.Fprintf(&b, "[White \"%s\"]\n", sanitizePGN(g.Host))
	fmt.Fprintf(&b, "[Black \"%s\"]\n", sanitizePGN(g.Opponent))
	fmt.Fprintf(&b, "[Result \"%s\"]\n", result)
	if g.StartFEN != "" && g.StartFEN != rules.StartFEN {
		b.WriteString("[SetUp \"1\"]\n")
		fmt.Fprintf(&b, "[FEN \"%s\"]\n", g.StartFEN)
	}
	if g.WinReason != "" {
		fmt.Fprintf(&b, "[Termination \"%s\"]\n", sanitizePGN(string(g.WinReason)))
	}
	b.WriteString("\n")
	for i := 0; i < len(g.Moves); i += 2 {
		fmt.Fprintf(&b, "%d. %s ", i/2+1, strings.TrimSpace(g.Moves[i].SAN))
		if i+1 < len(g.Moves) {
			b.WriteString(strings.TrimSpace(g.Moves[i+1].SAN))
			b.WriteString(" ")
		}
	}
	b.WriteString(result)
	return b.String()
}

func sanitizePGN(s string) string {
	s = strings.ReplaceAll(s, "\\", " ")
	s = strings.ReplaceAll(s, "\"", "'")
	return strings.TrimSpace(s)
}
