package archive

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/park285/chess-arena-bot/internal/domain"
	"github.com/park285/chess-arena-bot/internal/game"
	"github.com/park285/chess-arena-bot/internal/rules"
)

func finishedSnap() game.Snapshot {
	level, _ := domain.LevelByLabel("hard")
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return game.Snapshot{
		ID:         "sess-1",
		White:      domain.HumanParticipant("u1", `Eve "The Rook"`),
		Black:      domain.EngineParticipant(level),
		Level:      "hard",
		Status:     game.StatusCheckmate,
		Winner:     rules.SideBlack,
		Decisive:   true,
		MovesUCI:   []string{"f2f3", "e7e5", "g2g4", "d8h4"},
		MovesSAN:   []string{"f3", "e5", "g4", "Qh4#"},
		CreatedAt:  start,
		ObservedAt: start.Add(90 * time.Second),
	}
}

func TestBuildPGN(t *testing.T) {
	pgn := BuildPGN(finishedSnap())

	for _, want := range []string{
		`[Result "0-1"]`,
		`[Termination "checkmate"]`,
		`[White "Eve 'The Rook'"]`,
		"1. f3 e5",
		"2. g4 Qh4#",
	} {
		if !strings.Contains(pgn, want) {
			t.Fatalf("pgn missing %q:\n%s", want, pgn)
		}
	}
	if !strings.HasSuffix(pgn, "0-1") {
		t.Fatalf("pgn should end with the result:\n%s", pgn)
	}
}

func TestRecordFromSnapshot(t *testing.T) {
	rec := RecordFromSnapshot(finishedSnap())
	if rec.Result != "black" || rec.Method != "checkmate" {
		t.Fatalf("unexpected record %+v", rec)
	}
	if rec.Duration != 90*time.Second {
		t.Fatalf("unexpected duration %s", rec.Duration)
	}
	if len(rec.MovesSAN) != 4 {
		t.Fatalf("unexpected moves %v", rec.MovesSAN)
	}
}

func TestMemStoreUpsert(t *testing.T) {
	store := NewMemStore()
	ctx := context.Background()

	rec := RecordFromSnapshot(finishedSnap())
	if err := store.Save(ctx, rec); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, err := store.BySession(ctx, "sess-1")
	if err != nil || loaded == nil {
		t.Fatalf("load: %v", err)
	}
	firstID := loaded.ID

	rec.Result = "white"
	if err := store.Save(ctx, rec); err != nil {
		t.Fatalf("resave: %v", err)
	}
	loaded, err = store.BySession(ctx, "sess-1")
	if err != nil || loaded == nil {
		t.Fatalf("reload: %v", err)
	}
	if loaded.ID != firstID || loaded.Result != "white" {
		t.Fatalf("upsert should keep the id and update fields: %+v", loaded)
	}

	loaded.MovesSAN[0] = "mutated"
	again, _ := store.BySession(ctx, "sess-1")
	if again.MovesSAN[0] == "mutated" {
		t.Fatalf("store must hand out copies")
	}

	missing, err := store.BySession(ctx, "nope")
	if err != nil || missing != nil {
		t.Fatalf("missing sessions read as nil, got %+v %v", missing, err)
	}
}

func TestSinkIgnoresNonTerminal(t *testing.T) {
	store := NewMemStore()
	sink := NewSink(store, nil)

	snap := finishedSnap()
	snap.Status = game.StatusCheck
	sink.SessionFinished(context.Background(), snap)

	if rec, _ := store.BySession(context.Background(), snap.ID); rec != nil {
		t.Fatalf("non-terminal sessions must not be archived")
	}
}
