package game

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/park285/chess-arena-bot/internal/domain"
)

type recordingSink struct {
	mu    sync.Mutex
	snaps []Snapshot
}

func (s *recordingSink) SessionFinished(_ context.Context, snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snaps = append(s.snaps, snap)
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.snaps)
}

func testLevel(t *testing.T) domain.Level {
	t.Helper()
	level, ok := domain.LevelByLabel("easy")
	if !ok {
		t.Fatalf("missing easy level")
	}
	return level
}

func TestRegistryOneSessionPerPlayer(t *testing.T) {
	reg := NewRegistry(nil)
	level := testLevel(t)

	sess, err := reg.Create(domain.HumanParticipant("u1", "One"), domain.EngineParticipant(level), level, time.Minute)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := reg.Create(domain.HumanParticipant("u1", "One"), domain.EngineParticipant(level), level, time.Minute); !errors.Is(err, ErrAlreadyInSession) {
		t.Fatalf("expected ErrAlreadyInSession, got %v", err)
	}

	found, err := reg.FindByPlayer("u1")
	if err != nil || found != sess {
		t.Fatalf("lookup by player failed: %v", err)
	}
	if _, err := reg.FindByPlayer(sess.Black().ID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("engine seats must not be indexed, got %v", err)
	}

	reg.Destroy(sess.ID())
	if _, err := reg.Create(domain.HumanParticipant("u1", "One"), domain.EngineParticipant(level), level, time.Minute); err != nil {
		t.Fatalf("player should be free after destroy: %v", err)
	}
}

func TestRegistryDestroyIsIdempotent(t *testing.T) {
	reg := NewRegistry(nil)
	level := testLevel(t)
	sess, err := reg.Create(domain.HumanParticipant("u2", "Two"), domain.EngineParticipant(level), level, time.Minute)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	reg.Destroy(sess.ID())
	reg.Destroy(sess.ID())
	reg.Destroy("no-such-session")

	select {
	case <-sess.Done():
	default:
		t.Fatalf("destroy must close the session's done channel")
	}
	if _, err := reg.Find(sess.ID()); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
	if reg.Count() != 0 {
		t.Fatalf("expected empty registry, got %d", reg.Count())
	}
}

func TestRegistryFinishNotifiesSinksOnce(t *testing.T) {
	sink := &recordingSink{}
	reg := NewRegistry(nil, sink)
	level := testLevel(t)
	sess, err := reg.Create(domain.HumanParticipant("u3", "Three"), domain.EngineParticipant(level), level, time.Minute)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := sess.Resign("u3"); err != nil {
		t.Fatalf("resign: %v", err)
	}

	ctx := context.Background()
	reg.Finish(ctx, sess.ID())
	reg.Finish(ctx, sess.ID())

	if sink.count() != 1 {
		t.Fatalf("sink should fire exactly once, got %d", sink.count())
	}
	snap := sink.snaps[0]
	if snap.Status != StatusResigned || !snap.Decisive {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	if _, err := reg.Find(sess.ID()); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("session should be gone after finish")
	}
}
