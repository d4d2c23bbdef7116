package arena

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/park285/chess-arena-bot/internal/assist"
	"github.com/park285/chess-arena-bot/internal/domain"
	"github.com/park285/chess-arena-bot/internal/game"
	"github.com/park285/chess-arena-bot/internal/msgcat"
	"github.com/park285/chess-arena-bot/internal/rules"
)

var (
	ErrUnknownLevel = errors.New("unknown difficulty level")
	ErrNotAllowed   = errors.New("not allowed")
)

// Config carries the policy knobs the facade needs.
type Config struct {
	OwnerID      string
	DefaultLevel string
	TimeLimit    time.Duration
}

// Service is the orchestration facade over the session core: it owns
// the create/play/resign flows, schedules assisted play, and renders
// outcome text. Presentation layers talk to this, never to the
// registry directly.
type Service struct {
	registry *game.Registry
	autoplay *game.AutoPlay
	advisor  *assist.Advisor
	catalog  *msgcat.Catalog
	cfg      Config
	logger   *zap.Logger
}

func New(registry *game.Registry, autoplay *game.AutoPlay, advisor *assist.Advisor, catalog *msgcat.Catalog, cfg Config, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.DefaultLevel == "" {
		cfg.DefaultLevel = "medium"
	}
	if cfg.TimeLimit <= 0 {
		cfg.TimeLimit = 10 * time.Minute
	}
	return &Service{
		registry: registry,
		autoplay: autoplay,
		advisor:  advisor,
		catalog:  catalog,
		cfg:      cfg,
		logger:   logger,
	}
}

// MoveOutcome is what a completed play returns: the resulting snapshot
// plus any rendered outcome line.
type MoveOutcome struct {
	Snapshot game.Snapshot
	Text     string
}

// Start opens a session against the engine. The human always takes
// white; an empty level label falls back to the configured default.
func (s *Service) Start(ctx context.Context, playerID, playerName, levelLabel string) (game.Snapshot, string, error) {
	if levelLabel == "" {
		levelLabel = s.cfg.DefaultLevel
	}
	level, ok := domain.LevelByLabel(levelLabel)
	if !ok {
		return game.Snapshot{}, "", fmt.Errorf("%w: %s", ErrUnknownLevel, levelLabel)
	}

	sess, err := s.registry.Create(
		domain.HumanParticipant(playerID, playerName),
		domain.EngineParticipant(level),
		level, s.cfg.TimeLimit)
	if err != nil {
		return game.Snapshot{}, "", err
	}

	snap := sess.Snapshot()
	text, err := s.catalog.Render("game.start", map[string]string{
		"White": snap.White.Name,
		"Black": snap.Black.Name,
		"Level": snap.Level,
	})
	if err != nil {
		return snap, "", err
	}
	return snap, text, nil
}

// Status snapshots the caller's live session.
func (s *Service) Status(playerID string) (game.Snapshot, error) {
	sess, err := s.registry.FindByPlayer(playerID)
	if err != nil {
		return game.Snapshot{}, err
	}
	return sess.Snapshot(), nil
}

// SelectPiece begins a two-phase move and returns the legal targets.
func (s *Service) SelectPiece(playerID, square string) ([]string, error) {
	sess, err := s.registry.FindByPlayer(playerID)
	if err != nil {
		return nil, err
	}
	return sess.SelectPiece(playerID, square)
}

// ClearSelection abandons a pending piece selection, returning the
// session to the piece-picking phase.
func (s *Service) ClearSelection(playerID string) error {
	sess, err := s.registry.FindByPlayer(playerID)
	if err != nil {
		return err
	}
	return sess.ClearSelection(playerID)
}

// SelectTarget completes a two-phase move, then lets the engine seat
// answer.
func (s *Service) SelectTarget(ctx context.Context, playerID, square string) (MoveOutcome, error) {
	sess, err := s.registry.FindByPlayer(playerID)
	if err != nil {
		return MoveOutcome{}, err
	}
	if _, err := sess.SelectTarget(playerID, square); err != nil {
		return MoveOutcome{}, err
	}
	return s.settle(ctx, sess)
}

// Play applies a full move given as coordinate or algebraic text, then
// lets the engine seat answer.
func (s *Service) Play(ctx context.Context, playerID, text string) (MoveOutcome, error) {
	sess, err := s.registry.FindByPlayer(playerID)
	if err != nil {
		return MoveOutcome{}, err
	}
	if _, err := sess.ApplyMoveText(playerID, text); err != nil {
		return MoveOutcome{}, err
	}
	return s.settle(ctx, sess)
}

// settle closes out a human move: finish a decided game, otherwise
// hand the turn to the engine seat and report the resulting state.
func (s *Service) settle(ctx context.Context, sess *game.Session) (MoveOutcome, error) {
	if sess.Status().Terminal() {
		s.registry.Finish(ctx, sess.ID())
		return s.outcomeOf(sess)
	}
	s.autoplay.EngineReply(ctx, sess.ID())
	return s.outcomeOf(sess)
}

// Undo takes back the last move pair.
func (s *Service) Undo(playerID string) (game.Snapshot, string, error) {
	sess, err := s.registry.FindByPlayer(playerID)
	if err != nil {
		return game.Snapshot{}, "", err
	}
	if err := sess.UndoLastPair(playerID); err != nil {
		return game.Snapshot{}, "", err
	}
	text, err := s.catalog.Render("game.undo", nil)
	if err != nil {
		return game.Snapshot{}, "", err
	}
	return sess.Snapshot(), text, nil
}

// Resign concedes the caller's game and finishes the session.
func (s *Service) Resign(ctx context.Context, playerID string) (MoveOutcome, error) {
	sess, err := s.registry.FindByPlayer(playerID)
	if err != nil {
		return MoveOutcome{}, err
	}
	if _, err := sess.Resign(playerID); err != nil {
		return MoveOutcome{}, err
	}
	s.registry.Finish(ctx, sess.ID())
	return s.outcomeOf(sess)
}

// Quit abandons the session without recording an outcome.
func (s *Service) Quit(playerID string) error {
	sess, err := s.registry.FindByPlayer(playerID)
	if err != nil {
		return err
	}
	s.registry.Destroy(sess.ID())
	return nil
}

// ToggleAutoPlay flips assisted play; enabling it arms the scheduler
// right away if it is the human's turn.
func (s *Service) ToggleAutoPlay(ctx context.Context, playerID string) (bool, string, error) {
	sess, err := s.registry.FindByPlayer(playerID)
	if err != nil {
		return false, "", err
	}
	on := sess.ToggleAutoPlay()
	key := "assist.autoplay_off"
	if on {
		key = "assist.autoplay_on"
		s.autoplay.MaybeSchedule(ctx, sess.ID())
	}
	text, err := s.catalog.Render(key, nil)
	if err != nil {
		return on, "", err
	}
	return on, text, nil
}

// Nerf throttles the engine for the owner's session. Owner-only.
func (s *Service) Nerf(callerID, playerID string, on bool) (string, error) {
	if err := s.requireOwner(callerID); err != nil {
		return "", err
	}
	sess, err := s.registry.FindByPlayer(playerID)
	if err != nil {
		return "", err
	}
	key := "assist.nerf_off"
	if on {
		sess.Nerf()
		key = "assist.nerf_on"
	} else {
		sess.Unnerf()
	}
	return s.catalog.Render(key, nil)
}

// Hint ranks candidate moves for the caller's position. Owner-only.
func (s *Service) Hint(ctx context.Context, callerID string) (string, error) {
	if err := s.requireOwner(callerID); err != nil {
		return "", err
	}
	sess, err := s.registry.FindByPlayer(callerID)
	if err != nil {
		return "", err
	}
	return s.advisor.Hint(ctx, sess.FEN())
}

// Evaluate scores the caller's position. Owner-only.
func (s *Service) Evaluate(ctx context.Context, callerID string) (string, error) {
	if err := s.requireOwner(callerID); err != nil {
		return "", err
	}
	sess, err := s.registry.FindByPlayer(callerID)
	if err != nil {
		return "", err
	}
	return s.advisor.Evaluate(ctx, sess.FEN())
}

func (s *Service) requireOwner(callerID string) error {
	if s.cfg.OwnerID == "" || callerID != s.cfg.OwnerID {
		return ErrNotAllowed
	}
	return nil
}

func (s *Service) outcomeOf(sess *game.Session) (MoveOutcome, error) {
	snap := sess.Snapshot()
	text, err := s.outcomeText(snap)
	if err != nil {
		return MoveOutcome{}, err
	}
	return MoveOutcome{Snapshot: snap, Text: text}, nil
}

// outcomeText renders the line announcing the snapshot's state, empty
// for an ordinary ongoing position.
func (s *Service) outcomeText(snap game.Snapshot) (string, error) {
	winner := participantName(snap, snap.Winner)
	switch snap.Status {
	case game.StatusCheckmate:
		return s.catalog.Render("game.checkmate", map[string]string{"Winner": winner})
	case game.StatusResigned:
		loser := participantName(snap, snap.Winner.Opponent())
		return s.catalog.Render("game.resign", map[string]string{"Player": loser, "Winner": winner})
	case game.StatusStalemate:
		return s.catalog.Render("game.stalemate", nil)
	case game.StatusDraw:
		return s.catalog.Render("game.draw", nil)
	case game.StatusRepetition:
		return s.catalog.Render("game.repetition", nil)
	case game.StatusInsufficient:
		return s.catalog.Render("game.insufficient", nil)
	case game.StatusWhiteTimeout:
		return s.catalog.Render("game.timeout", map[string]string{
			"Loser":  participantName(snap, rules.SideWhite),
			"Winner": participantName(snap, rules.SideBlack),
		})
	case game.StatusBlackTimeout:
		return s.catalog.Render("game.timeout", map[string]string{
			"Loser":  participantName(snap, rules.SideBlack),
			"Winner": participantName(snap, rules.SideWhite),
		})
	case game.StatusCheck:
		return s.catalog.Render("game.check", nil)
	}
	return "", nil
}

func participantName(snap game.Snapshot, side rules.Side) string {
	if side == rules.SideWhite {
		return snap.White.Name
	}
	return snap.Black.Name
}
