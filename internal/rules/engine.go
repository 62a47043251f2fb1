// Package rules adapts github.com/corentings/chess/v2 to the narrow interface the
// game state machine needs: load, replay, apply, turn and terminal-state flags.
package rules

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	nchess "github.com/corentings/chess/v2"

	"github.com/abmercy035/chesschamp-api/pkg/chessdto"
)

const StartFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

type Color string

const (
	White Color = "w"
	Black Color = "b"
)

func (c Color) Opposite() Color {
	if c == White {
		return Black
	}
	return White
}

func (c Color) Name() string {
	if c == White {
		return "white"
	}
	return "black"
}

// ParseColor accepts w/b or white/black.
func ParseColor(s string) (Color, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "w", "white":
		return White, true
	case "b", "black":
		return Black, true
	}
	return "", false
}

// GameState is the set of flags recomputed after every move.
type GameState struct {
	InCheck               bool `json:"inCheck"`
	InCheckmate           bool `json:"inCheckmate"`
	InStalemate           bool `json:"inStalemate"`
	InDraw                bool `json:"inDraw"`
	InsufficientMaterial  bool `json:"insufficientMaterial"`
	InThreefoldRepetition bool `json:"inThreefoldRepetition"`
	FiftyMove             bool `json:"fiftyMove,omitempty"`
}

// MoveResult describes an applied move. Flags uses the chess.js letters:
// n normal, b pawn double push, e en passant, c capture, p promotion, k/q castling.
type MoveResult struct {
	SAN       string
	UCI       string
	From      string
	To        string
	Piece     string
	Captured  string
	Promotion string
	Flags     string
	FEN       string
}

type LegalMove struct {
	UCI   string `json:"uci"`
	SAN   string `json:"san"`
	From  string `json:"from"`
	To    string `json:"to"`
	Piece string `json:"piece"`
}

// IllegalMoveError is the rejection branch of Apply.
type IllegalMoveError struct {
	Move   string
	Reason string
	FEN    string
	Board  string
}

func (e *IllegalMoveError) Error() string {
	if e.Move == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Move, e.Reason)
}

// AsIllegalMove reports whether err is an IllegalMoveError.
func AsIllegalMove(err error) (*IllegalMoveError, bool) {
	var ill *IllegalMoveError
	ok := errors.As(err, &ill)
	return ill, ok
}

type Engine interface {
	Load(fen string) error
	Replay(startFEN string, uciMoves []string) error
	Apply(spec chessdto.MoveSpec) (MoveResult, error)
	Turn() Color
	FEN() string
	InCheck() bool
	IsCheckmate() bool
	IsStalemate() bool
	IsDraw() bool
	IsInsufficientMaterial() bool
	IsThreefoldRepetition() bool
	IsFiftyMove() bool
	Status() GameState
	LegalMoves() []LegalMove
	ASCII() string
}

type engine struct {
	game *nchess.Game
}

func NewEngine() Engine {
	return &engine{game: nchess.NewGame()}
}

// NormalizeFEN maps "", "start" and "startpos" to the standard initial position.
func NormalizeFEN(fen string) string {
	fen = strings.TrimSpace(fen)
	switch strings.ToLower(fen) {
	case "", "start", "startpos":
		return StartFEN
	}
	return fen
}

func (e *engine) Load(fen string) error {
	fen = NormalizeFEN(fen)
	if fen == StartFEN {
		e.game = nchess.NewGame()
		return nil
	}
	opt, err := nchess.FEN(fen)
	if err != nil {
		return fmt.Errorf("load fen: %w", err)
	}
	e.game = nchess.NewGame(opt)
	return nil
}

func (e *engine) Replay(startFEN string, uciMoves []string) error {
	if err := e.Load(startFEN); err != nil {
		return err
	}
	notation := nchess.UCINotation{}
	for i, raw := range uciMoves {
		mv, err := notation.Decode(e.game.Position(), strings.ToLower(strings.TrimSpace(raw)))
		if err != nil {
			return fmt.Errorf("decode move %d (%s): %w", i+1, raw, err)
		}
		if err := e.game.Move(mv, nil); err != nil {
			return fmt.Errorf("apply move %d (%s): %w", i+1, raw, err)
		}
	}
	return nil
}

func (e *engine) Apply(spec chessdto.MoveSpec) (MoveResult, error) {
	if e.game.Outcome() != nchess.NoOutcome {
		return MoveResult{}, e.illegal(spec, "game is already decided")
	}
	pos := e.game.Position()

	var (
		mv  *nchess.Move
		err error
	)
	switch {
	case spec.HasCoordinates():
		uci := strings.ToLower(strings.TrimSpace(spec.From) + strings.TrimSpace(spec.To))
		promo := strings.ToLower(strings.TrimSpace(spec.Promotion))
		if promo == "" && e.reachesLastRank(spec.From, spec.To) {
			promo = "q"
		}
		mv, err = nchess.UCINotation{}.Decode(pos, uci+promo)
	case strings.TrimSpace(spec.SAN) != "":
		san := strings.TrimSpace(spec.SAN)
		mv, err = nchess.AlgebraicNotation{}.Decode(pos, san)
		if err != nil {
			if alt, uerr := (nchess.UCINotation{}).Decode(pos, strings.ToLower(san)); uerr == nil {
				mv, err = alt, nil
			}
		}
	default:
		return MoveResult{}, &IllegalMoveError{Reason: "move requires from/to or san", FEN: e.FEN(), Board: e.ASCII()}
	}
	if err != nil {
		return MoveResult{}, e.illegal(spec, err.Error())
	}

	board := pos.Board()
	moved := board.Piece(mv.S1())
	target := board.Piece(mv.S2())

	if err := e.game.Move(mv, nil); err != nil {
		return MoveResult{}, e.illegal(spec, err.Error())
	}

	res := MoveResult{
		SAN:   nchess.AlgebraicNotation{}.Encode(pos, mv),
		UCI:   strings.ToLower(nchess.UCINotation{}.Encode(pos, mv)),
		From:  mv.S1().String(),
		To:    mv.S2().String(),
		Piece: pieceLetter(moved.Type()),
		FEN:   e.game.FEN(),
	}
	if mv.HasTag(nchess.EnPassant) {
		res.Captured = "p"
	} else if target != nchess.NoPiece {
		res.Captured = pieceLetter(target.Type())
	}
	if mv.Promo() != nchess.NoPieceType {
		res.Promotion = pieceLetter(mv.Promo())
	}
	res.Flags = moveFlags(mv, moved, res)
	return res, nil
}

func (e *engine) illegal(spec chessdto.MoveSpec, reason string) *IllegalMoveError {
	text := spec.SAN
	if spec.HasCoordinates() {
		text = spec.From + spec.To + spec.Promotion
	}
	return &IllegalMoveError{Move: text, Reason: reason, FEN: e.FEN(), Board: e.ASCII()}
}

func (e *engine) reachesLastRank(from, to string) bool {
	sq, ok := parseSquare(from)
	if !ok || len(to) != 2 {
		return false
	}
	piece := e.game.Position().Board().Piece(sq)
	if piece.Type() != nchess.Pawn {
		return false
	}
	rank := to[1]
	return (piece.Color() == nchess.White && rank == '8') || (piece.Color() == nchess.Black && rank == '1')
}

func (e *engine) Turn() Color {
	if e.game.Position().Turn() == nchess.White {
		return White
	}
	return Black
}

func (e *engine) FEN() string { return e.game.FEN() }

func (e *engine) InCheck() bool {
	moves := e.game.Moves()
	if len(moves) == 0 {
		return false
	}
	return moves[len(moves)-1].HasTag(nchess.Check)
}

func (e *engine) IsCheckmate() bool { return e.game.Method() == nchess.Checkmate }

func (e *engine) IsStalemate() bool { return e.game.Method() == nchess.Stalemate }

func (e *engine) IsInsufficientMaterial() bool {
	return e.game.Method() == nchess.InsufficientMaterial
}

// IsThreefoldRepetition counts earlier occurrences of the current position
// (placement, side to move, castling, en passant) across the replayed history.
func (e *engine) IsThreefoldRepetition() bool {
	if m := e.game.Method(); m == nchess.ThreefoldRepetition || m == nchess.FivefoldRepetition {
		return true
	}
	current := repetitionKey(e.game.Position())
	count := 0
	for _, p := range e.game.Positions() {
		if p != nil && repetitionKey(p) == current {
			count++
		}
	}
	return count >= 3
}

func (e *engine) IsFiftyMove() bool {
	if e.game.Method() == nchess.SeventyFiveMoveRule || e.game.Method() == nchess.FiftyMoveRule {
		return true
	}
	fields := strings.Fields(e.game.FEN())
	if len(fields) < 5 {
		return false
	}
	halfMoves, err := strconv.Atoi(fields[4])
	return err == nil && halfMoves >= 100
}

func (e *engine) IsDraw() bool {
	return e.IsStalemate() || e.IsInsufficientMaterial() || e.IsThreefoldRepetition() || e.IsFiftyMove()
}

func (e *engine) Status() GameState {
	st := GameState{
		InCheck:               e.InCheck(),
		InCheckmate:           e.IsCheckmate(),
		InStalemate:           e.IsStalemate(),
		InsufficientMaterial:  e.IsInsufficientMaterial(),
		InThreefoldRepetition: e.IsThreefoldRepetition(),
		FiftyMove:             e.IsFiftyMove(),
	}
	st.InDraw = st.InStalemate || st.InsufficientMaterial || st.InThreefoldRepetition || st.FiftyMove
	return st
}

func (e *engine) LegalMoves() []LegalMove {
	pos := e.game.Position()
	board := pos.Board()
	valid := e.game.ValidMoves()
	out := make([]LegalMove, 0, len(valid))
	for _, vm := range valid {
		uci := strings.ToLower(vm.String())
		mv, err := nchess.UCINotation{}.Decode(pos, uci)
		if err != nil {
			continue
		}
		out = append(out, LegalMove{
			UCI:   uci,
			SAN:   nchess.AlgebraicNotation{}.Encode(pos, mv),
			From:  mv.S1().String(),
			To:    mv.S2().String(),
			Piece: pieceLetter(board.Piece(mv.S1()).Type()),
		})
	}
	return out
}

func (e *engine) ASCII() string { return e.game.Position().Board().Draw() }

func moveFlags(mv *nchess.Move, moved nchess.Piece, res MoveResult) string {
	var b strings.Builder
	if moved.Type() == nchess.Pawn && len(res.From) == 2 && len(res.To) == 2 {
		diff := int(res.To[1]) - int(res.From[1])
		if diff == 2 || diff == -2 {
			b.WriteByte('b')
		}
	}
	switch {
	case mv.HasTag(nchess.EnPassant):
		b.WriteByte('e')
	case res.Captured != "":
		b.WriteByte('c')
	}
	if res.Promotion != "" {
		b.WriteByte('p')
	}
	if mv.HasTag(nchess.KingSideCastle) {
		b.WriteByte('k')
	}
	if mv.HasTag(nchess.QueenSideCastle) {
		b.WriteByte('q')
	}
	if b.Len() == 0 {
		return "n"
	}
	return b.String()
}

func pieceLetter(t nchess.PieceType) string {
	switch t {
	case nchess.King:
		return "k"
	case nchess.Queen:
		return "q"
	case nchess.Rook:
		return "r"
	case nchess.Bishop:
		return "b"
	case nchess.Knight:
		return "n"
	case nchess.Pawn:
		return "p"
	}
	return ""
}

func parseSquare(s string) (nchess.Square, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) != 2 || s[0] < 'a' || s[0] > 'h' || s[1] < '1' || s[1] > '8' {
		return nchess.NoSquare, false
	}
	return nchess.NewSquare(nchess.File(s[0]-'a'), nchess.Rank(s[1]-'1')), true
}

// repetitionKey identifies a position for repetition counting. The en passant
// square only counts when an en passant capture is actually legal.
func repetitionKey(p *nchess.Position) string {
	return positionKey(p.String(), canCaptureEnPassant(p))
}

func canCaptureEnPassant(p *nchess.Position) bool {
	for _, mv := range p.ValidMoves() {
		if mv.HasTag(nchess.EnPassant) {
			return true
		}
	}
	return false
}

func positionKey(fen string, keepEnPassant bool) string {
	fields := strings.Fields(fen)
	if len(fields) < 4 {
		return fen
	}
	if !keepEnPassant {
		fields[3] = "-"
	}
	return strings.Join(fields[:4], " ")
}
