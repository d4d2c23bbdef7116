package assist

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/park285/chess-arena-bot/internal/engine"
	"github.com/park285/chess-arena-bot/internal/msgcat"
)

const (
	hintDepth = 15
	hintCount = 3
)

var medals = []string{"🥇", "🥈", "🥉"}

// Engine is the slice of the engine client the advisor queries.
type Engine interface {
	Analyze(ctx context.Context, fen string, depth int) (engine.Analysis, error)
	TopMoves(ctx context.Context, fen string, depth, count int) ([]engine.RankedMove, error)
}

// Advisor renders hint and evaluation text for the privileged
// participant. It never touches session state.
type Advisor struct {
	eng    Engine
	cat    *msgcat.Catalog
	logger *zap.Logger
}

func NewAdvisor(eng Engine, cat *msgcat.Catalog, logger *zap.Logger) *Advisor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Advisor{eng: eng, cat: cat, logger: logger}
}

// Hint ranks the top candidate moves for the position, one line per
// move with a medal for the podium ranks.
func (a *Advisor) Hint(ctx context.Context, fen string) (string, error) {
	ranked, err := a.eng.TopMoves(ctx, fen, hintDepth, hintCount)
	if err != nil {
		return "", err
	}
	if len(ranked) == 0 {
		return a.cat.Render("engine.no_move", nil)
	}

	lines := make([]string, 0, len(ranked))
	for i, mv := range ranked {
		medal := fmt.Sprintf("%d.", mv.Rank)
		if i < len(medals) {
			medal = medals[i]
		}
		line, err := a.cat.Render("assist.hint", map[string]string{
			"Medal": medal,
			"Move":  mv.Move,
			"Score": scoreText(mv.ScorePawns, mv.MateIn),
		})
		if err != nil {
			return "", err
		}
		lines = append(lines, line)
	}
	a.logger.Debug("assist_hint",
		zap.String("fen", fen),
		zap.Int("moves", len(ranked)),
		zap.String("provenance", string(ranked[0].Provenance)))
	return strings.Join(lines, "\n"), nil
}

// Evaluate scores the position from white's point of view.
func (a *Advisor) Evaluate(ctx context.Context, fen string) (string, error) {
	analysis, err := a.eng.Analyze(ctx, fen, hintDepth)
	if err != nil {
		return "", err
	}
	if analysis.MateIn != nil {
		return a.cat.Render("assist.eval_mate", map[string]string{
			"MateIn": fmt.Sprintf("%d", abs(*analysis.MateIn)),
		})
	}
	if analysis.ScorePawns == nil {
		return a.cat.Render("engine.no_move", nil)
	}
	return a.cat.Render("assist.eval", map[string]string{
		"Score": scoreText(analysis.ScorePawns, nil),
	})
}

func scoreText(pawns *float64, mateIn *int) string {
	if mateIn != nil {
		return fmt.Sprintf("mate in %d", abs(*mateIn))
	}
	if pawns == nil {
		return "?"
	}
	return fmt.Sprintf("%+.2f", *pawns)
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
