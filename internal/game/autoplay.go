package game

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/park285/chess-arena-bot/internal/engine"
	"github.com/park285/chess-arena-bot/internal/rules"
)

// Querier is the slice of the engine client auto-play needs.
type Querier interface {
	BestMove(ctx context.Context, fen string, depth int) (engine.BestMoveResult, error)
}

// autoMoveDepth is the search depth for assisted moves, independent of
// the session's engine level.
const autoMoveDepth = 15

// AutoPlay schedules assisted moves for the human seat after a
// randomized delay, then answers for the engine seat with no delay.
// Every result is revalidated against the live session before it is
// applied; anything that happened in between (destroy, toggle, undo, a
// manual move) voids the pending result.
type AutoPlay struct {
	registry *Registry
	eng      Querier
	minDelay time.Duration
	maxDelay time.Duration
	logger   *zap.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

func NewAutoPlay(registry *Registry, eng Querier, minDelay, maxDelay time.Duration, logger *zap.Logger) *AutoPlay {
	if logger == nil {
		logger = zap.NewNop()
	}
	if minDelay < 0 {
		minDelay = 0
	}
	if maxDelay < minDelay {
		maxDelay = minDelay
	}
	return &AutoPlay{
		registry: registry,
		eng:      eng,
		minDelay: minDelay,
		maxDelay: maxDelay,
		logger:   logger,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (a *AutoPlay) delay() time.Duration {
	a.mu.Lock()
	defer a.mu.Unlock()
	span := a.maxDelay - a.minDelay
	if span <= 0 {
		return a.minDelay
	}
	return a.minDelay + time.Duration(a.rng.Int63n(int64(span)))
}

// MaybeSchedule arranges an assisted move if the session has auto-play
// enabled and it is the human's turn. Reports whether a task was
// scheduled.
func (a *AutoPlay) MaybeSchedule(ctx context.Context, sessionID string) bool {
	sess, err := a.registry.Find(sessionID)
	if err != nil {
		return false
	}
	if !sess.AutoPlayEnabled() {
		return false
	}
	side, ok := sess.HumanSide()
	if !ok || sess.Turn() != side {
		return false
	}
	moveCount := sess.MoveCount()
	go a.run(ctx, sess, side, moveCount)
	return true
}

func (a *AutoPlay) run(ctx context.Context, sess *Session, side rules.Side, moveCount int) {
	timer := time.NewTimer(a.delay())
	defer timer.Stop()
	select {
	case <-sess.Done():
		return
	case <-ctx.Done():
		return
	case <-timer.C:
	}

	if !a.stillPending(sess, side, moveCount) {
		a.logger.Debug("autoplay_skip", zap.String("session_id", sess.ID()))
		return
	}

	res, err := a.eng.BestMove(ctx, sess.FEN(), autoMoveDepth)
	if err != nil || res.Empty() {
		a.logger.Warn("autoplay_no_move", zap.String("session_id", sess.ID()), zap.Error(err))
		return
	}
	// The session may have moved on while the engine thought.
	if !a.stillPending(sess, side, moveCount) {
		a.logger.Info("autoplay_stale_discard",
			zap.String("session_id", sess.ID()),
			zap.String("move", res.Move))
		return
	}

	// Re-checked under the session mutex: a mutation slipping in after
	// stillPending must still void the result.
	rec, err := sess.ApplyMoveAsExpecting(side, res.Move, true, moveCount)
	if err != nil {
		if errors.Is(err, ErrStaleResult) {
			a.logger.Info("autoplay_stale_discard",
				zap.String("session_id", sess.ID()),
				zap.String("move", res.Move))
			return
		}
		a.logger.Warn("autoplay_apply_failed",
			zap.String("session_id", sess.ID()),
			zap.String("move", res.Move),
			zap.Error(err))
		return
	}
	a.logger.Info("autoplay_move",
		zap.String("session_id", sess.ID()),
		zap.String("san", rec.SAN),
		zap.String("provenance", string(res.Provenance)))

	if sess.Status().Terminal() {
		a.registry.Finish(ctx, sess.ID())
		return
	}
	a.EngineReply(ctx, sess.ID())
}

// stillPending verifies the scheduled move is still wanted: the session
// is alive and registered, auto-play is still on, it is still the
// assisted side's turn, and no move landed in the meantime.
func (a *AutoPlay) stillPending(sess *Session, side rules.Side, moveCount int) bool {
	cur, err := a.registry.Find(sess.ID())
	if err != nil || cur != sess {
		return false
	}
	select {
	case <-sess.Done():
		return false
	default:
	}
	return sess.AutoPlayEnabled() &&
		sess.Turn() == side &&
		sess.MoveCount() == moveCount &&
		!sess.Status().Terminal()
}

// EngineReply answers for the engine seat immediately. After the reply
// it re-arms auto-play, so an enabled session keeps playing itself.
func (a *AutoPlay) EngineReply(ctx context.Context, sessionID string) {
	sess, err := a.registry.Find(sessionID)
	if err != nil {
		return
	}
	var engineSide rules.Side
	switch {
	case sess.White().IsEngine():
		engineSide = rules.SideWhite
	case sess.Black().IsEngine():
		engineSide = rules.SideBlack
	default:
		return
	}
	if sess.Turn() != engineSide || sess.Status().Terminal() {
		return
	}
	moveCount := sess.MoveCount()

	res, err := a.eng.BestMove(ctx, sess.FEN(), sess.EffectiveDepth())
	if err != nil || res.Empty() {
		a.logger.Warn("engine_reply_no_move", zap.String("session_id", sessionID), zap.Error(err))
		return
	}
	if cur, err := a.registry.Find(sessionID); err != nil || cur != sess {
		a.logger.Info("engine_reply_stale_discard", zap.String("session_id", sessionID))
		return
	}

	rec, err := sess.ApplyMoveAsExpecting(engineSide, res.Move, false, moveCount)
	if err != nil {
		if errors.Is(err, ErrStaleResult) {
			a.logger.Info("engine_reply_stale_discard", zap.String("session_id", sessionID))
			return
		}
		a.logger.Warn("engine_reply_apply_failed",
			zap.String("session_id", sessionID),
			zap.String("move", res.Move),
			zap.Error(err))
		return
	}
	a.logger.Info("engine_reply",
		zap.String("session_id", sessionID),
		zap.String("san", rec.SAN),
		zap.Int("depth", sess.EffectiveDepth()),
		zap.String("provenance", string(res.Provenance)))

	if sess.Status().Terminal() {
		a.registry.Finish(ctx, sessionID)
		return
	}
	a.MaybeSchedule(ctx, sessionID)
}
