package rules

import (
	"fmt"
	"strings"

	nchess "github.com/corentings/chess/v2"
)

// Side identifies a seat color.
type Side string

const (
	SideWhite Side = "white"
	SideBlack Side = "black"
)

func (s Side) Opponent() Side {
	if s == SideWhite {
		return SideBlack
	}
	return SideWhite
}

func sideFrom(c nchess.Color) Side {
	if c == nchess.White {
		return SideWhite
	}
	return SideBlack
}

// Board wraps the rules library behind the handful of operations the
// session layer needs. It never re-implements move legality.
type Board struct {
	game *nchess.Game
}

func New() *Board {
	return &Board{game: nchess.NewGame()}
}

func FromFEN(fen string) (*Board, error) {
	opt, err := nchess.FEN(strings.TrimSpace(fen))
	if err != nil {
		return nil, fmt.Errorf("parse fen: %w", err)
	}
	return &Board{game: nchess.NewGame(opt)}, nil
}

// Replay rebuilds a board by applying coordinate moves from the start
// position. Used for undo: drop history entries, replay the rest.
func Replay(movesUCI []string) (*Board, error) {
	b := New()
	for _, mv := range movesUCI {
		if _, err := b.ApplyText(mv); err != nil {
			return nil, fmt.Errorf("replay %q: %w", mv, err)
		}
	}
	return b, nil
}

func (b *Board) Clone() *Board {
	return &Board{game: b.game.Clone()}
}

func (b *Board) FEN() string { return b.game.FEN() }

func (b *Board) Turn() Side { return sideFrom(b.game.Position().Turn()) }

// MoveCount is the number of half-moves played.
func (b *Board) MoveCount() int { return len(b.game.Moves()) }

func (b *Board) Game() *nchess.Game { return b.game }

// OwnsSquare reports whether the square holds a piece of the given side.
func (b *Board) OwnsSquare(square string, side Side) bool {
	sq, err := parseSquare(square)
	if err != nil {
		return false
	}
	piece := b.game.Position().Board().Piece(sq)
	if piece == nchess.NoPiece {
		return false
	}
	return sideFrom(piece.Color()) == side
}

// LegalTargets lists destination squares reachable from the origin.
// Promotions collapse into a single target entry.
func (b *Board) LegalTargets(from string) []string {
	sq, err := parseSquare(from)
	if err != nil {
		return nil
	}
	var out []string
	seen := map[string]bool{}
	for _, mv := range b.game.ValidMoves() {
		if mv.S1() != sq {
			continue
		}
		dst := mv.S2().String()
		if !seen[dst] {
			seen[dst] = true
			out = append(out, dst)
		}
	}
	return out
}

// MovableSquares lists every origin square of the side to move that has
// at least one legal move.
func (b *Board) MovableSquares() []string {
	var out []string
	seen := map[string]bool{}
	for _, mv := range b.game.ValidMoves() {
		src := mv.S1().String()
		if !seen[src] {
			seen[src] = true
			out = append(out, src)
		}
	}
	return out
}

// Applied describes a move that was accepted by the rules library.
type Applied struct {
	UCI       string
	SAN       string
	Capture   bool
	Check     bool
	EnPassant bool
}

// ApplyCoord applies an origin+destination move, with an optional
// promotion letter (q, r, b, n).
func (b *Board) ApplyCoord(from, to, promo string) (Applied, error) {
	text := strings.ToLower(strings.TrimSpace(from) + strings.TrimSpace(to) + strings.TrimSpace(promo))
	return b.applyUCI(text)
}

// ApplyText applies a move given as coordinate text first, falling back
// to algebraic notation.
func (b *Board) ApplyText(raw string) (Applied, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Applied{}, fmt.Errorf("empty move")
	}
	if applied, err := b.applyUCI(strings.ToLower(raw)); err == nil {
		return applied, nil
	}
	pos := b.game.Position()
	if err := b.game.PushNotationMove(raw, nchess.AlgebraicNotation{}, nil); err != nil {
		return Applied{}, fmt.Errorf("illegal move %q: %w", raw, err)
	}
	moves := b.game.Moves()
	last := moves[len(moves)-1]
	return appliedFrom(pos, last), nil
}

func (b *Board) applyUCI(text string) (Applied, error) {
	pos := b.game.Position()
	mv, err := nchess.UCINotation{}.Decode(pos, text)
	if err != nil {
		return Applied{}, fmt.Errorf("illegal move %q: %w", text, err)
	}
	if err := b.game.Move(mv, nil); err != nil {
		return Applied{}, fmt.Errorf("illegal move %q: %w", text, err)
	}
	return appliedFrom(pos, mv), nil
}

func appliedFrom(posBefore *nchess.Position, mv *nchess.Move) Applied {
	return Applied{
		UCI:       mv.String(),
		SAN:       nchess.AlgebraicNotation{}.Encode(posBefore, mv),
		Capture:   mv.HasTag(nchess.Capture) || mv.HasTag(nchess.EnPassant),
		Check:     mv.HasTag(nchess.Check),
		EnPassant: mv.HasTag(nchess.EnPassant),
	}
}

func (b *Board) Resign(side Side) {
	if side == SideWhite {
		b.game.Resign(nchess.White)
	} else {
		b.game.Resign(nchess.Black)
	}
}

// MovesUCI returns the coordinate history from the start position.
func (b *Board) MovesUCI() []string {
	moves := b.game.Moves()
	out := make([]string, 0, len(moves))
	for _, mv := range moves {
		out = append(out, mv.String())
	}
	return out
}

// MovesSAN returns the algebraic history from the start position.
func (b *Board) MovesSAN() []string {
	positions := b.game.Positions()
	moves := b.game.Moves()
	notation := nchess.AlgebraicNotation{}
	out := make([]string, 0, len(moves))
	for i, mv := range moves {
		if i >= len(positions) {
			break
		}
		out = append(out, notation.Encode(positions[i], mv))
	}
	return out
}

// PGN renders the game with headers and numbered algebraic moves.
func (b *Board) PGN() string { return b.game.String() }

// Facts are the raw terminal and check conditions of the position,
// before any clock or priority considerations.
type Facts struct {
	Checkmate    bool
	Stalemate    bool
	DrawByRule   bool
	Threefold    bool
	Insufficient bool
	Resigned     bool
	Check        bool
	Winner       Side
}

func (b *Board) Facts() Facts {
	var f Facts
	switch b.game.Method() {
	case nchess.Checkmate:
		f.Checkmate = true
		if b.game.Outcome() == nchess.WhiteWon {
			f.Winner = SideWhite
		} else {
			f.Winner = SideBlack
		}
		return f
	case nchess.Stalemate:
		f.Stalemate = true
		return f
	case nchess.ThreefoldRepetition, nchess.FivefoldRepetition:
		f.Threefold = true
		return f
	case nchess.SeventyFiveMoveRule, nchess.FiftyMoveRule:
		f.DrawByRule = true
		return f
	case nchess.InsufficientMaterial:
		f.Insufficient = true
		return f
	case nchess.Resignation:
		f.Resigned = true
		if b.game.Outcome() == nchess.WhiteWon {
			f.Winner = SideWhite
		} else {
			f.Winner = SideBlack
		}
		return f
	}
	for _, m := range b.game.EligibleDraws() {
		switch m {
		case nchess.FiftyMoveRule:
			f.DrawByRule = true
		case nchess.ThreefoldRepetition:
			f.Threefold = true
		}
	}
	if moves := b.game.Moves(); len(moves) > 0 {
		f.Check = moves[len(moves)-1].HasTag(nchess.Check)
	}
	return f
}

func parseSquare(s string) (nchess.Square, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) != 2 || s[0] < 'a' || s[0] > 'h' || s[1] < '1' || s[1] > '8' {
		return 0, fmt.Errorf("bad square %q", s)
	}
	file := nchess.FileA + nchess.File(s[0]-'a')
	rank := nchess.Rank1 + nchess.Rank(s[1]-'1')
	return nchess.NewSquare(file, rank), nil
}
