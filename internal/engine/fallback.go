package engine

import (
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	nchess "github.com/corentings/chess/v2"
)

// fallbackSearcher is the degraded-mode searcher: plain material
// alpha-beta over the rules library, hard-capped at a shallow depth so a
// dead engine never turns into an unresponsive bot.
const fallbackMaxDepth = 4

const mateScore = 30000

var fallbackPieceValues = map[nchess.PieceType]int{
	nchess.Pawn:   100,
	nchess.Knight: 320,
	nchess.Bishop: 330,
	nchess.Rook:   500,
	nchess.Queen:  900,
}

type fallbackSearcher struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func newFallbackSearcher() *fallbackSearcher {
	return &fallbackSearcher{rng: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

func (f *fallbackSearcher) clampDepth(depth int) int {
	if depth > fallbackMaxDepth {
		return fallbackMaxDepth
	}
	if depth < 1 {
		return 1
	}
	return depth
}

// bestMove returns the chosen move in coordinate notation and its score
// in centipawns from the mover's perspective.
func (f *fallbackSearcher) bestMove(fen string, depth int) (string, int, error) {
	game, err := gameFromFEN(fen)
	if err != nil {
		return "", 0, err
	}
	scored, err := f.scoreRootMoves(game, depth)
	if err != nil {
		return "", 0, err
	}
	return scored[0].move, scored[0].score, nil
}

func (f *fallbackSearcher) topMoves(fen string, depth, count int) ([]RankedMove, error) {
	game, err := gameFromFEN(fen)
	if err != nil {
		return nil, err
	}
	scored, err := f.scoreRootMoves(game, depth)
	if err != nil {
		return nil, err
	}
	if count < len(scored) {
		scored = scored[:count]
	}
	ranked := make([]RankedMove, 0, len(scored))
	for i, sm := range scored {
		pawns := float64(sm.score) / 100
		ranked = append(ranked, RankedMove{
			Rank:       i + 1,
			Move:       sm.move,
			ScorePawns: &pawns,
			Line:       sm.move,
			Provenance: ProvenanceFallback,
		})
	}
	return ranked, nil
}

type scoredMove struct {
	move  string
	score int
}

func (f *fallbackSearcher) scoreRootMoves(game *nchess.Game, depth int) ([]scoredMove, error) {
	depth = f.clampDepth(depth)
	moves := game.ValidMoves()
	if len(moves) == 0 {
		return nil, fmt.Errorf("no legal moves")
	}
	f.shuffle(moves)

	scored := make([]scoredMove, 0, len(moves))
	for i := range moves {
		mv := moves[i]
		child := game.Clone()
		if err := child.Move(&mv, nil); err != nil {
			continue
		}
		score := -negamax(child, depth-1, -mateScore*2, mateScore*2)
		scored = append(scored, scoredMove{move: mv.String(), score: score})
	}
	if len(scored) == 0 {
		return nil, fmt.Errorf("no playable moves")
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].score > scored[j].score })
	return scored, nil
}

func (f *fallbackSearcher) shuffle(moves []nchess.Move) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rng.Shuffle(len(moves), func(i, j int) {
		moves[i], moves[j] = moves[j], moves[i]
	})
}

func negamax(game *nchess.Game, depth, alpha, beta int) int {
	switch game.Method() {
	case nchess.Checkmate:
		// The side to move is mated. Deeper mates score slightly
		// better so the search prefers the quickest one.
		return -mateScore + (fallbackMaxDepth - depth)
	case nchess.Stalemate, nchess.FivefoldRepetition, nchess.SeventyFiveMoveRule, nchess.InsufficientMaterial:
		return 0
	}
	if game.Outcome() == nchess.Draw {
		return 0
	}
	if depth <= 0 {
		return evaluateMaterial(game)
	}

	best := -mateScore * 2
	moves := game.ValidMoves()
	if len(moves) == 0 {
		return evaluateMaterial(game)
	}
	for i := range moves {
		mv := moves[i]
		child := game.Clone()
		if err := child.Move(&mv, nil); err != nil {
			continue
		}
		score := -negamax(child, depth-1, -beta, -alpha)
		if score > best {
			best = score
		}
		if best > alpha {
			alpha = best
		}
		if alpha >= beta {
			break
		}
	}
	return best
}

// evaluateMaterial scores material balance from the perspective of the
// side to move.
func evaluateMaterial(game *nchess.Game) int {
	pos := game.Position()
	board := pos.Board()
	total := 0
	for file := nchess.FileA; file <= nchess.FileH; file++ {
		for rank := nchess.Rank1; rank <= nchess.Rank8; rank++ {
			piece := board.Piece(nchess.NewSquare(file, rank))
			if piece == nchess.NoPiece {
				continue
			}
			value := fallbackPieceValues[piece.Type()]
			if value == 0 {
				continue
			}
			if piece.Color() == nchess.White {
				total += value
			} else {
				total -= value
			}
		}
	}
	if pos.Turn() == nchess.Black {
		total = -total
	}
	return total
}

func gameFromFEN(fen string) (*nchess.Game, error) {
	fen = strings.TrimSpace(fen)
	if fen == "" || fen == "startpos" {
		return nchess.NewGame(), nil
	}
	opt, err := nchess.FEN(fen)
	if err != nil {
		return nil, fmt.Errorf("parse fen: %w", err)
	}
	return nchess.NewGame(opt), nil
}
