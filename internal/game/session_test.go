package game

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/park285/chess-arena-bot/internal/domain"
	"github.com/park285/chess-arena-bot/internal/rules"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestSession(t *testing.T, timeLimit time.Duration) (*Session, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	level, ok := domain.LevelByLabel("medium")
	if !ok {
		t.Fatalf("missing medium level")
	}
	white := domain.HumanParticipant("u1", "Player One")
	black := domain.EngineParticipant(level)
	return NewSession(white, black, level, timeLimit, WithClock(clock.Now)), clock
}

func TestTwoPhaseMove(t *testing.T) {
	sess, _ := newTestSession(t, 10*time.Minute)

	targets, err := sess.SelectPiece("u1", "e2")
	if err != nil {
		t.Fatalf("select piece: %v", err)
	}
	if len(targets) != 2 {
		t.Fatalf("expected e3/e4 targets, got %v", targets)
	}

	rec, err := sess.SelectTarget("u1", "e4")
	if err != nil {
		t.Fatalf("select target: %v", err)
	}
	if rec.UCI != "e2e4" || rec.SAN != "e4" || rec.Number != 1 {
		t.Fatalf("unexpected record %+v", rec)
	}

	snap := sess.Snapshot()
	if snap.Phase != PhaseSelectPiece || snap.Selected != "" {
		t.Fatalf("selection should reset after the move: %+v", snap)
	}
	if snap.Turn != rules.SideBlack {
		t.Fatalf("black to move, got %s", snap.Turn)
	}
}

func TestSelectTargetWithoutSelection(t *testing.T) {
	sess, _ := newTestSession(t, 10*time.Minute)
	if _, err := sess.SelectTarget("u1", "e4"); !errors.Is(err, ErrNoSelection) {
		t.Fatalf("expected ErrNoSelection, got %v", err)
	}
}

func TestSelectPieceValidation(t *testing.T) {
	sess, _ := newTestSession(t, 10*time.Minute)

	if _, err := sess.SelectPiece("stranger", "e2"); !errors.Is(err, ErrNotAParticipant) {
		t.Fatalf("expected ErrNotAParticipant, got %v", err)
	}
	if _, err := sess.SelectPiece("u1", "e7"); !errors.Is(err, ErrIllegalMove) {
		t.Fatalf("selecting the opponent's piece must fail, got %v", err)
	}
	if _, err := sess.SelectPiece("u1", "e4"); !errors.Is(err, ErrIllegalMove) {
		t.Fatalf("selecting an empty square must fail, got %v", err)
	}

	if _, err := sess.ApplyMoveAs(rules.SideWhite, "e2e4", false); err != nil {
		t.Fatalf("move: %v", err)
	}
	if _, err := sess.SelectPiece("u1", "e4"); !errors.Is(err, ErrNotYourTurn) {
		t.Fatalf("expected ErrNotYourTurn, got %v", err)
	}
}

func TestClockChargesTheSideThatJustMoved(t *testing.T) {
	sess, clock := newTestSession(t, 10*time.Minute)

	clock.Advance(5 * time.Second)
	if _, err := sess.ApplyMoveText("u1", "e2e4"); err != nil {
		t.Fatalf("white move: %v", err)
	}
	snap := sess.Snapshot()
	if snap.WhiteMS != (10*time.Minute - 5*time.Second).Milliseconds() {
		t.Fatalf("white clock should be debited 5s, got %dms", snap.WhiteMS)
	}
	if snap.BlackMS != (10 * time.Minute).Milliseconds() {
		t.Fatalf("black clock should be untouched, got %dms", snap.BlackMS)
	}

	clock.Advance(3 * time.Second)
	if _, err := sess.ApplyMoveAs(rules.SideBlack, "e7e5", false); err != nil {
		t.Fatalf("black move: %v", err)
	}
	snap = sess.Snapshot()
	if snap.BlackMS != (10*time.Minute - 3*time.Second).Milliseconds() {
		t.Fatalf("black clock should be debited 3s, got %dms", snap.BlackMS)
	}
	if snap.WhiteMS != (10*time.Minute - 5*time.Second).Milliseconds() {
		t.Fatalf("white clock should not change on black's move, got %dms", snap.WhiteMS)
	}
}

func TestTimeoutOutranksCheck(t *testing.T) {
	sess, clock := newTestSession(t, 30*time.Second)

	moves := []struct {
		side rules.Side
		uci  string
	}{
		{rules.SideWhite, "f2f3"},
		{rules.SideBlack, "e7e5"},
		{rules.SideWhite, "a2a3"},
		{rules.SideBlack, "d8h4"},
	}
	for _, mv := range moves {
		if _, err := sess.ApplyMoveAs(mv.side, mv.uci, false); err != nil {
			t.Fatalf("move %s: %v", mv.uci, err)
		}
	}
	if st := sess.Status(); st != StatusCheck {
		t.Fatalf("white should be in check, got %s", st)
	}

	clock.Advance(31 * time.Second)
	if st := sess.Status(); st != StatusWhiteTimeout {
		t.Fatalf("timeout outranks check, got %s", st)
	}
	winner, ok := sess.Winner()
	if !ok || winner != rules.SideBlack {
		t.Fatalf("black wins on white timeout, got %s %v", winner, ok)
	}
}

func TestCheckmateStatusAndWinner(t *testing.T) {
	sess, _ := newTestSession(t, 10*time.Minute)
	for _, mv := range []struct {
		side rules.Side
		uci  string
	}{
		{rules.SideWhite, "f2f3"},
		{rules.SideBlack, "e7e5"},
		{rules.SideWhite, "g2g4"},
		{rules.SideBlack, "d8h4"},
	} {
		if _, err := sess.ApplyMoveAs(mv.side, mv.uci, false); err != nil {
			t.Fatalf("move %s: %v", mv.uci, err)
		}
	}
	if st := sess.Status(); st != StatusCheckmate {
		t.Fatalf("expected checkmate, got %s", st)
	}
	winner, ok := sess.Winner()
	if !ok || winner != rules.SideBlack {
		t.Fatalf("black should win, got %s %v", winner, ok)
	}
	if _, err := sess.ApplyMoveAs(rules.SideWhite, "a2a3", false); !errors.Is(err, ErrGameFinished) {
		t.Fatalf("finished game must reject moves, got %v", err)
	}
}

func TestUndoLastPair(t *testing.T) {
	sess, _ := newTestSession(t, 10*time.Minute)

	if err := sess.UndoLastPair("u1"); !errors.Is(err, ErrNothingToUndo) {
		t.Fatalf("expected ErrNothingToUndo, got %v", err)
	}
	if _, err := sess.ApplyMoveText("u1", "e2e4"); err != nil {
		t.Fatalf("move: %v", err)
	}
	if err := sess.UndoLastPair("u1"); !errors.Is(err, ErrNothingToUndo) {
		t.Fatalf("one half-move is not undoable as a pair, got %v", err)
	}
	if _, err := sess.ApplyMoveAs(rules.SideBlack, "e7e5", false); err != nil {
		t.Fatalf("reply: %v", err)
	}

	before := sess.Snapshot()

	startFEN := rules.New().FEN()
	if err := sess.UndoLastPair("u1"); err != nil {
		t.Fatalf("undo: %v", err)
	}
	if sess.MoveCount() != 0 {
		t.Fatalf("history should be empty, got %d", sess.MoveCount())
	}
	if sess.FEN() != startFEN {
		t.Fatalf("board should be back at the start, got %s", sess.FEN())
	}
	if sess.Turn() != rules.SideWhite {
		t.Fatalf("white to move after the undo")
	}

	// Replaying the undone pair lands on the exact same game.
	if _, err := sess.ApplyMoveText("u1", "e2e4"); err != nil {
		t.Fatalf("replay white: %v", err)
	}
	if _, err := sess.ApplyMoveAs(rules.SideBlack, "e7e5", false); err != nil {
		t.Fatalf("replay black: %v", err)
	}
	after := sess.Snapshot()
	if after.FEN != before.FEN {
		t.Fatalf("replayed board differs: %s vs %s", after.FEN, before.FEN)
	}
	if len(after.MovesSAN) != len(before.MovesSAN) {
		t.Fatalf("replayed history differs: %v vs %v", after.MovesSAN, before.MovesSAN)
	}
	for i := range after.MovesSAN {
		if after.MovesSAN[i] != before.MovesSAN[i] {
			t.Fatalf("replayed history differs at %d: %v vs %v", i, after.MovesSAN, before.MovesSAN)
		}
	}
	if after.History[0].UCI != "e2e4" || after.History[1].UCI != "e7e5" {
		t.Fatalf("unexpected replayed records %+v", after.History)
	}
}

func TestApplyMoveAsExpectingRejectsStale(t *testing.T) {
	sess, _ := newTestSession(t, 10*time.Minute)

	if _, err := sess.ApplyMoveAsExpecting(rules.SideWhite, "e2e4", false, 0); err != nil {
		t.Fatalf("fresh apply: %v", err)
	}
	// A result computed before the move landed carries the old count.
	if _, err := sess.ApplyMoveAsExpecting(rules.SideBlack, "e7e5", false, 0); !errors.Is(err, ErrStaleResult) {
		t.Fatalf("expected ErrStaleResult, got %v", err)
	}
	if sess.MoveCount() != 1 {
		t.Fatalf("stale apply must not mutate, got %d moves", sess.MoveCount())
	}
	if _, err := sess.ApplyMoveAsExpecting(rules.SideBlack, "e7e5", false, 1); err != nil {
		t.Fatalf("current apply: %v", err)
	}
}

func TestNerfKeepsLevelLabel(t *testing.T) {
	sess, _ := newTestSession(t, 10*time.Minute)

	if sess.EffectiveDepth() != 10 {
		t.Fatalf("medium plays at depth 10, got %d", sess.EffectiveDepth())
	}
	sess.Nerf()
	if sess.EffectiveDepth() != 2 || !sess.Nerfed() {
		t.Fatalf("nerf should force depth 2, got %d", sess.EffectiveDepth())
	}
	if snap := sess.Snapshot(); snap.Level != "medium" {
		t.Fatalf("level label must survive the nerf, got %s", snap.Level)
	}
	sess.Unnerf()
	if sess.EffectiveDepth() != 10 || sess.Nerfed() {
		t.Fatalf("unnerf should restore depth 10, got %d", sess.EffectiveDepth())
	}
}

func TestResign(t *testing.T) {
	sess, _ := newTestSession(t, 10*time.Minute)

	st, err := sess.Resign("u1")
	if err != nil {
		t.Fatalf("resign: %v", err)
	}
	if st != StatusResigned {
		t.Fatalf("expected resigned status, got %s", st)
	}
	winner, ok := sess.Winner()
	if !ok || winner != rules.SideBlack {
		t.Fatalf("opponent should win, got %s %v", winner, ok)
	}
	if _, err := sess.Resign("u1"); !errors.Is(err, ErrGameFinished) {
		t.Fatalf("double resign should fail, got %v", err)
	}
}

func TestIllegalMoveLeavesSessionUntouched(t *testing.T) {
	sess, clock := newTestSession(t, 10*time.Minute)
	fen := sess.FEN()

	clock.Advance(2 * time.Second)
	if _, err := sess.ApplyMoveText("u1", "e2e5"); !errors.Is(err, ErrIllegalMove) {
		t.Fatalf("expected ErrIllegalMove, got %v", err)
	}
	snap := sess.Snapshot()
	if snap.FEN != fen || len(snap.History) != 0 {
		t.Fatalf("rejected move must not mutate the session")
	}
	// The think timer keeps running through the rejected attempt.
	if snap.WhiteMS != (10*time.Minute - 2*time.Second).Milliseconds() {
		t.Fatalf("unexpected white clock %dms", snap.WhiteMS)
	}
}

func TestToggleAutoPlay(t *testing.T) {
	sess, _ := newTestSession(t, 10*time.Minute)
	if sess.AutoPlayEnabled() {
		t.Fatalf("auto-play starts off")
	}
	if !sess.ToggleAutoPlay() || !sess.AutoPlayEnabled() {
		t.Fatalf("toggle on failed")
	}
	if sess.ToggleAutoPlay() || sess.AutoPlayEnabled() {
		t.Fatalf("toggle off failed")
	}
}
