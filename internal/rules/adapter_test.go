package rules

import "testing"

func TestLegalTargetsOpening(t *testing.T) {
	b := New()
	targets := b.LegalTargets("e2")
	if len(targets) != 2 {
		t.Fatalf("expected 2 targets from e2, got %v", targets)
	}
	want := map[string]bool{"e3": false, "e4": false}
	for _, sq := range targets {
		if _, ok := want[sq]; !ok {
			t.Fatalf("unexpected target %s", sq)
		}
		want[sq] = true
	}
	for sq, seen := range want {
		if !seen {
			t.Fatalf("missing target %s", sq)
		}
	}
	if got := b.LegalTargets("e5"); len(got) != 0 {
		t.Fatalf("empty square should have no targets, got %v", got)
	}
	if got := b.LegalTargets("zz"); got != nil {
		t.Fatalf("bad square should have no targets, got %v", got)
	}
}

func TestApplyTextCoordinateAndAlgebraic(t *testing.T) {
	b := New()
	applied, err := b.ApplyText("e2e4")
	if err != nil {
		t.Fatalf("coordinate move failed: %v", err)
	}
	if applied.UCI != "e2e4" || applied.SAN != "e4" {
		t.Fatalf("unexpected applied move: %+v", applied)
	}
	if _, err := b.ApplyText("e7e5"); err != nil {
		t.Fatalf("reply failed: %v", err)
	}
	applied, err = b.ApplyText("Nf3")
	if err != nil {
		t.Fatalf("algebraic move failed: %v", err)
	}
	if applied.UCI != "g1f3" {
		t.Fatalf("expected g1f3, got %s", applied.UCI)
	}
	if b.MoveCount() != 3 {
		t.Fatalf("expected 3 half-moves, got %d", b.MoveCount())
	}
}

func TestIllegalMoveLeavesBoardUntouched(t *testing.T) {
	b := New()
	fen := b.FEN()
	if _, err := b.ApplyText("e2e5"); err == nil {
		t.Fatalf("expected illegal move error")
	}
	if b.FEN() != fen || b.MoveCount() != 0 {
		t.Fatalf("board mutated by rejected move")
	}
}

func TestOwnsSquareAndTurn(t *testing.T) {
	b := New()
	if b.Turn() != SideWhite {
		t.Fatalf("white moves first")
	}
	if !b.OwnsSquare("e2", SideWhite) {
		t.Fatalf("e2 belongs to white")
	}
	if b.OwnsSquare("e7", SideWhite) {
		t.Fatalf("e7 does not belong to white")
	}
	if b.OwnsSquare("e4", SideWhite) {
		t.Fatalf("e4 is empty")
	}
	if _, err := b.ApplyText("e2e4"); err != nil {
		t.Fatalf("move failed: %v", err)
	}
	if b.Turn() != SideBlack {
		t.Fatalf("black to move after white's move")
	}
}

func TestCheckmateFacts(t *testing.T) {
	b := New()
	for _, mv := range []string{"f2f3", "e7e5", "g2g4", "d8h4"} {
		if _, err := b.ApplyText(mv); err != nil {
			t.Fatalf("move %s failed: %v", mv, err)
		}
	}
	f := b.Facts()
	if !f.Checkmate {
		t.Fatalf("expected checkmate, got %+v", f)
	}
	if f.Winner != SideBlack {
		t.Fatalf("expected black winner, got %s", f.Winner)
	}
}

func TestCheckFact(t *testing.T) {
	b, err := FromFEN("4k3/8/8/8/8/8/3R4/4K3 w - - 0 1")
	if err != nil {
		t.Fatalf("fen: %v", err)
	}
	if _, err := b.ApplyText("d2e2"); err != nil {
		t.Fatalf("move: %v", err)
	}
	f := b.Facts()
	if !f.Check {
		t.Fatalf("expected check fact, got %+v", f)
	}
	if f.Checkmate || f.Stalemate {
		t.Fatalf("king can run, not terminal: %+v", f)
	}
}

func TestReplayRoundTrip(t *testing.T) {
	b := New()
	moves := []string{"e2e4", "e7e5", "g1f3", "b8c6"}
	for _, mv := range moves {
		if _, err := b.ApplyText(mv); err != nil {
			t.Fatalf("move %s failed: %v", mv, err)
		}
	}
	replayed, err := Replay(b.MovesUCI())
	if err != nil {
		t.Fatalf("replay failed: %v", err)
	}
	if replayed.FEN() != b.FEN() {
		t.Fatalf("replay fen mismatch:\n%s\n%s", replayed.FEN(), b.FEN())
	}
	san := replayed.MovesSAN()
	if len(san) != len(moves) || san[2] != "Nf3" {
		t.Fatalf("unexpected san history %v", san)
	}
}

func TestResignFacts(t *testing.T) {
	b := New()
	b.Resign(SideWhite)
	f := b.Facts()
	if !f.Resigned || f.Winner != SideBlack {
		t.Fatalf("expected black win by resignation, got %+v", f)
	}
}
