package game

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/park285/chess-arena-bot/internal/domain"
	"github.com/park285/chess-arena-bot/internal/rules"
)

// Phase is the two-step move input state: pick a piece, then a target.
type Phase string

const (
	PhaseSelectPiece  Phase = "select_piece"
	PhaseSelectTarget Phase = "select_target"
)

// Status is the derived game state, in strict priority order: board
// verdicts outrank clock timeouts, which outrank check.
type Status string

const (
	StatusOngoing      Status = "ongoing"
	StatusCheck        Status = "check"
	StatusCheckmate    Status = "checkmate"
	StatusStalemate    Status = "stalemate"
	StatusDraw         Status = "draw"
	StatusRepetition   Status = "repetition"
	StatusInsufficient Status = "insufficient_material"
	StatusResigned     Status = "resigned"
	StatusWhiteTimeout Status = "white_timeout"
	StatusBlackTimeout Status = "black_timeout"
)

// Terminal reports whether the status ends the game.
func (s Status) Terminal() bool {
	switch s {
	case StatusOngoing, StatusCheck:
		return false
	}
	return true
}

// MoveRecord is one half-move in the session history.
type MoveRecord struct {
	Number    int
	Side      rules.Side
	UCI       string
	SAN       string
	Capture   bool
	Check     bool
	AutoMoved bool
	PlayedAt  time.Time
}

const nerfDepth = 2

// Session is one live game between two participants. All state behind
// one mutex; the registry hands out pointers, never copies.
type Session struct {
	mu sync.Mutex

	id        string
	white     domain.Participant
	black     domain.Participant
	level     domain.Level
	board     *rules.Board
	history   []MoveRecord
	createdAt time.Time

	whiteRemaining time.Duration
	blackRemaining time.Duration
	lastMoveAt     time.Time

	phase    Phase
	selected string

	depth    int
	nerfed   bool
	autoPlay bool

	now  func() time.Time
	done chan struct{}
}

// SessionOption tweaks construction, mainly for tests.
type SessionOption func(*Session)

// WithClock injects the time source.
func WithClock(now func() time.Time) SessionOption {
	return func(s *Session) { s.now = now }
}

func NewSession(white, black domain.Participant, level domain.Level, timeLimit time.Duration, opts ...SessionOption) *Session {
	s := &Session{
		id:             uuid.NewString(),
		white:          white,
		black:          black,
		level:          level,
		board:          rules.New(),
		whiteRemaining: timeLimit,
		blackRemaining: timeLimit,
		phase:          PhaseSelectPiece,
		depth:          level.Depth,
		now:            time.Now,
		done:           make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.createdAt = s.now()
	s.lastMoveAt = s.createdAt
	return s
}

func (s *Session) ID() string { return s.id }

func (s *Session) White() domain.Participant { return s.white }
func (s *Session) Black() domain.Participant { return s.black }

// Done closes when the session is destroyed. Scheduled work selects on
// it to die with the session.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) closeDone() {
	select {
	case <-s.done:
	default:
		close(s.done)
	}
}

// SideOf resolves which seat a player occupies.
func (s *Session) SideOf(playerID string) (rules.Side, error) {
	switch playerID {
	case s.white.ID:
		return rules.SideWhite, nil
	case s.black.ID:
		return rules.SideBlack, nil
	}
	return "", ErrNotAParticipant
}

func (s *Session) participant(side rules.Side) domain.Participant {
	if side == rules.SideWhite {
		return s.white
	}
	return s.black
}

// HumanSide returns the seat held by a human, for the assisted-play
// orchestration. Both-human and both-engine games return false.
func (s *Session) HumanSide() (rules.Side, bool) {
	whiteHuman := !s.white.IsEngine()
	blackHuman := !s.black.IsEngine()
	if whiteHuman == blackHuman {
		return "", false
	}
	if whiteHuman {
		return rules.SideWhite, true
	}
	return rules.SideBlack, true
}

// chargeElapsed is the single place the clock rule lives: the time
// since the previous move is debited to the side that just moved.
func (s *Session) chargeElapsed(moved rules.Side, at time.Time) {
	elapsed := at.Sub(s.lastMoveAt)
	if elapsed < 0 {
		elapsed = 0
	}
	if moved == rules.SideWhite {
		s.whiteRemaining -= elapsed
	} else {
		s.blackRemaining -= elapsed
	}
	s.lastMoveAt = at
}

// remaining reports a side's clock. The side to move is additionally
// charged for its pending thinking time.
func (s *Session) remaining(side rules.Side, at time.Time) time.Duration {
	rem := s.whiteRemaining
	if side == rules.SideBlack {
		rem = s.blackRemaining
	}
	if s.board.Turn() == side {
		rem -= at.Sub(s.lastMoveAt)
	}
	if rem < 0 {
		rem = 0
	}
	return rem
}

// SelectPiece starts a move by picking an origin square. It returns the
// legal target squares. Re-selecting a different own piece is allowed.
func (s *Session) SelectPiece(playerID, square string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	side, err := s.SideOf(playerID)
	if err != nil {
		return nil, err
	}
	if st := s.statusLocked(); st.Terminal() {
		return nil, ErrGameFinished
	}
	if s.board.Turn() != side {
		return nil, ErrNotYourTurn
	}
	square = strings.ToLower(strings.TrimSpace(square))
	if !s.board.OwnsSquare(square, side) {
		return nil, fmt.Errorf("%w: no own piece on %s", ErrIllegalMove, square)
	}
	targets := s.board.LegalTargets(square)
	if len(targets) == 0 {
		return nil, fmt.Errorf("%w: piece on %s cannot move", ErrIllegalMove, square)
	}
	s.phase = PhaseSelectTarget
	s.selected = square
	return targets, nil
}

// SelectTarget completes a two-phase move. Promotions auto-queen.
func (s *Session) SelectTarget(playerID, square string) (MoveRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	side, err := s.SideOf(playerID)
	if err != nil {
		return MoveRecord{}, err
	}
	if s.phase != PhaseSelectTarget || s.selected == "" {
		return MoveRecord{}, ErrNoSelection
	}
	square = strings.ToLower(strings.TrimSpace(square))
	return s.applyLocked(side, s.selected+square, false)
}

// ClearSelection abandons a pending piece selection.
func (s *Session) ClearSelection(playerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.SideOf(playerID); err != nil {
		return err
	}
	s.phase = PhaseSelectPiece
	s.selected = ""
	return nil
}

// ApplyMoveText plays a full move given as coordinate or algebraic text.
func (s *Session) ApplyMoveText(playerID, text string) (MoveRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	side, err := s.SideOf(playerID)
	if err != nil {
		return MoveRecord{}, err
	}
	return s.applyLocked(side, text, false)
}

// ApplyMoveAs plays a move for a seat directly. The orchestration layer
// uses it for engine replies and assisted moves.
func (s *Session) ApplyMoveAs(side rules.Side, text string, autoMoved bool) (MoveRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.applyLocked(side, text, autoMoved)
}

// ApplyMoveAsExpecting plays a move for a seat only if the history still
// holds expectCount half-moves. The count is re-checked under the
// session mutex, so a result computed against an older position cannot
// land after an undo or a racing move; it fails with ErrStaleResult.
func (s *Session) ApplyMoveAsExpecting(side rules.Side, text string, autoMoved bool, expectCount int) (MoveRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.history) != expectCount {
		return MoveRecord{}, ErrStaleResult
	}
	return s.applyLocked(side, text, autoMoved)
}

func (s *Session) applyLocked(side rules.Side, text string, autoMoved bool) (MoveRecord, error) {
	if st := s.statusLocked(); st.Terminal() {
		return MoveRecord{}, ErrGameFinished
	}
	if s.board.Turn() != side {
		return MoveRecord{}, ErrNotYourTurn
	}

	applied, err := s.board.ApplyText(text)
	if err != nil {
		// Two-phase promotions arrive without a piece letter; retry as
		// an auto-queen before rejecting.
		if len(strings.TrimSpace(text)) == 4 {
			if retried, rerr := s.board.ApplyText(strings.TrimSpace(text) + "q"); rerr == nil {
				applied = retried
				err = nil
			}
		}
		if err != nil {
			return MoveRecord{}, fmt.Errorf("%w: %s", ErrIllegalMove, text)
		}
	}

	at := s.now()
	s.chargeElapsed(side, at)

	rec := MoveRecord{
		Number:    len(s.history) + 1,
		Side:      side,
		UCI:       applied.UCI,
		SAN:       applied.SAN,
		Capture:   applied.Capture,
		Check:     applied.Check,
		AutoMoved: autoMoved,
		PlayedAt:  at,
	}
	s.history = append(s.history, rec)
	s.phase = PhaseSelectPiece
	s.selected = ""
	return rec, nil
}

// UndoLastPair takes back the last full move: the opponent's reply and
// the player's own move. Spent clock time is not refunded, but the
// think timer restarts so the takeback itself costs nothing.
func (s *Session) UndoLastPair(playerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.SideOf(playerID); err != nil {
		return err
	}
	if st := s.statusLocked(); st.Terminal() {
		return ErrGameFinished
	}
	if len(s.history) < 2 {
		return ErrNothingToUndo
	}

	s.history = s.history[:len(s.history)-2]
	moves := make([]string, 0, len(s.history))
	for _, rec := range s.history {
		moves = append(moves, rec.UCI)
	}
	board, err := rules.Replay(moves)
	if err != nil {
		return fmt.Errorf("rebuild after undo: %w", err)
	}
	s.board = board
	s.phase = PhaseSelectPiece
	s.selected = ""
	s.lastMoveAt = s.now()
	return nil
}

// Resign ends the game in the opponent's favor.
func (s *Session) Resign(playerID string) (Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	side, err := s.SideOf(playerID)
	if err != nil {
		return "", err
	}
	if st := s.statusLocked(); st.Terminal() {
		return "", ErrGameFinished
	}
	s.board.Resign(side)
	return s.statusLocked(), nil
}

// Status derives the current game state.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusLocked()
}

func (s *Session) statusLocked() Status {
	f := s.board.Facts()
	switch {
	case f.Checkmate:
		return StatusCheckmate
	case f.Stalemate:
		return StatusStalemate
	case f.DrawByRule:
		return StatusDraw
	case f.Threefold:
		return StatusRepetition
	case f.Insufficient:
		return StatusInsufficient
	case f.Resigned:
		return StatusResigned
	}
	at := s.now()
	if s.remaining(rules.SideWhite, at) <= 0 {
		return StatusWhiteTimeout
	}
	if s.remaining(rules.SideBlack, at) <= 0 {
		return StatusBlackTimeout
	}
	if f.Check {
		return StatusCheck
	}
	return StatusOngoing
}

// Winner returns the winning side for decisive terminal states.
func (s *Session) Winner() (rules.Side, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.winnerLocked(s.statusLocked())
}

func (s *Session) winnerLocked(st Status) (rules.Side, bool) {
	switch st {
	case StatusCheckmate, StatusResigned:
		f := s.board.Facts()
		return f.Winner, true
	case StatusWhiteTimeout:
		return rules.SideBlack, true
	case StatusBlackTimeout:
		return rules.SideWhite, true
	}
	return "", false
}

// Nerf forces the engine to a shallow depth without touching the
// visible level label.
func (s *Session) Nerf() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nerfed = true
	s.depth = nerfDepth
}

// Unnerf restores the level's true depth.
func (s *Session) Unnerf() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nerfed = false
	s.depth = s.level.Depth
}

func (s *Session) Nerfed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nerfed
}

// EffectiveDepth is the depth engine replies actually use.
func (s *Session) EffectiveDepth() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.depth
}

func (s *Session) Level() domain.Level { return s.level }

// ToggleAutoPlay flips assisted play and reports the new value.
func (s *Session) ToggleAutoPlay() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.autoPlay = !s.autoPlay
	return s.autoPlay
}

func (s *Session) SetAutoPlay(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.autoPlay = on
}

func (s *Session) AutoPlayEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.autoPlay
}

func (s *Session) FEN() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.board.FEN()
}

func (s *Session) Turn() rules.Side {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.board.Turn()
}

func (s *Session) MoveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.history)
}

// MovableSquares lists the side to move's pieces that have a move.
func (s *Session) MovableSquares() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.board.MovableSquares()
}

// Snapshot is a read-only projection of the session.
type Snapshot struct {
	ID         string
	White      domain.Participant
	Black      domain.Participant
	Level      string
	FEN        string
	Turn       rules.Side
	Phase      Phase
	Selected   string
	Status     Status
	Winner     rules.Side
	Decisive   bool
	WhiteMS    int64
	BlackMS    int64
	History    []MoveRecord
	MovesUCI   []string
	MovesSAN   []string
	PGN        string
	Nerfed     bool
	AutoPlay   bool
	Depth      int
	CreatedAt  time.Time
	ObservedAt time.Time
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	at := s.now()
	st := s.statusLocked()
	winner, decisive := s.winnerLocked(st)
	return Snapshot{
		ID:         s.id,
		White:      s.white,
		Black:      s.black,
		Level:      s.level.Label,
		FEN:        s.board.FEN(),
		Turn:       s.board.Turn(),
		Phase:      s.phase,
		Selected:   s.selected,
		Status:     st,
		Winner:     winner,
		Decisive:   decisive,
		WhiteMS:    s.remaining(rules.SideWhite, at).Milliseconds(),
		BlackMS:    s.remaining(rules.SideBlack, at).Milliseconds(),
		History:    append([]MoveRecord(nil), s.history...),
		MovesUCI:   s.board.MovesUCI(),
		MovesSAN:   s.board.MovesSAN(),
		PGN:        s.board.PGN(),
		Nerfed:     s.nerfed,
		AutoPlay:   s.autoPlay,
		Depth:      s.depth,
		CreatedAt:  s.createdAt,
		ObservedAt: at,
	}
}
