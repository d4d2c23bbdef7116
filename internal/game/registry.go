package game

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/park285/chess-arena-bot/internal/domain"
)

// OutcomeSink receives finished sessions exactly once, right before the
// registry forgets them. Stats and archival hang off this.
type OutcomeSink interface {
	SessionFinished(ctx context.Context, snap Snapshot)
}

// Registry is the in-process table of live sessions. It is an injected
// service object: no package-level state, all access behind its mutex.
type Registry struct {
	mu       sync.Mutex
	byID     map[string]*Session
	byPlayer map[string]string
	sinks    []OutcomeSink
	logger   *zap.Logger
}

func NewRegistry(logger *zap.Logger, sinks ...OutcomeSink) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		byID:     make(map[string]*Session),
		byPlayer: make(map[string]string),
		sinks:    sinks,
		logger:   logger,
	}
}

// Create starts a session. A human may hold at most one live session;
// engine seats are never indexed.
func (r *Registry) Create(white, black domain.Participant, level domain.Level, timeLimit time.Duration, opts ...SessionOption) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, p := range []domain.Participant{white, black} {
		if p.IsEngine() {
			continue
		}
		if _, busy := r.byPlayer[p.ID]; busy {
			return nil, ErrAlreadyInSession
		}
	}

	sess := NewSession(white, black, level, timeLimit, opts...)
	r.byID[sess.ID()] = sess
	for _, p := range []domain.Participant{white, black} {
		if !p.IsEngine() {
			r.byPlayer[p.ID] = sess.ID()
		}
	}
	r.logger.Info("session_create",
		zap.String("session_id", sess.ID()),
		zap.String("white", white.ID),
		zap.String("black", black.ID),
		zap.String("level", level.Label))
	return sess, nil
}

func (r *Registry) Find(sessionID string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.byID[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

func (r *Registry) FindByPlayer(playerID string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byPlayer[playerID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	sess, ok := r.byID[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// Destroy removes a session and cancels its scheduled work. Destroying
// an unknown ID is a no-op.
func (r *Registry) Destroy(sessionID string) {
	r.mu.Lock()
	sess, ok := r.byID[sessionID]
	if ok {
		delete(r.byID, sessionID)
		for _, p := range []domain.Participant{sess.White(), sess.Black()} {
			if !p.IsEngine() && r.byPlayer[p.ID] == sessionID {
				delete(r.byPlayer, p.ID)
			}
		}
	}
	r.mu.Unlock()
	if ok {
		sess.closeDone()
		r.logger.Info("session_destroy", zap.String("session_id", sessionID))
	}
}

// Finish snapshots a terminal session, fans it out to the outcome
// sinks, then destroys it. Finishing an already-destroyed session is a
// no-op, so racing callers are safe.
func (r *Registry) Finish(ctx context.Context, sessionID string) {
	r.mu.Lock()
	sess, ok := r.byID[sessionID]
	r.mu.Unlock()
	if !ok {
		return
	}
	snap := sess.Snapshot()
	r.Destroy(sessionID)
	for _, sink := range r.sinks {
		sink.SessionFinished(ctx, snap)
	}
	r.logger.Info("session_finish",
		zap.String("session_id", sessionID),
		zap.String("status", string(snap.Status)),
		zap.Int("moves", len(snap.History)))
}

// Count reports the number of live sessions.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID)
}
