package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultQueryTimeout bounds a single engine query. An expired query
	// resolves to an empty result, never a hard failure.
	DefaultQueryTimeout = 15 * time.Second

	handshakeTimeout = 4 * time.Second
	stopGrace        = 2 * time.Second

	queueCapacity = 64
	pvLineLength  = 5
)

var (
	ErrEngineUnavailable = errors.New("engine unavailable")
	ErrEngineTimeout     = errors.New("engine timeout")
	ErrClientClosed      = errors.New("engine client closed")
)

// Provenance records which searcher produced a result.
type Provenance string

const (
	ProvenanceEngine   Provenance = "engine"
	ProvenanceFallback Provenance = "fallback"
)

type BestMoveResult struct {
	Move       string
	Ponder     string
	Provenance Provenance
}

// Empty reports that the query resolved without a move (timeout or no
// legal moves).
func (r BestMoveResult) Empty() bool { return r.Move == "" }

type Analysis struct {
	BestMove   string
	Depth      int
	ScorePawns *float64
	MateIn     *int
	Provenance Provenance
}

type RankedMove struct {
	Rank       int
	Move       string
	ScorePawns *float64
	MateIn     *int
	Line       string
	Provenance Provenance
}

type queryKind int

const (
	queryBestMove queryKind = iota
	queryAnalyze
	queryTopMoves
)

type request struct {
	kind  queryKind
	fen   string
	depth int
	count int
	reply chan response
}

type response struct {
	best     BestMoveResult
	analysis Analysis
	top      []RankedMove
	err      error
}

// Client owns the single shared engine process. Queries from any number
// of sessions funnel through one FIFO queue; exactly one query is in
// flight at a time, so a reply can never be attributed to the wrong
// caller. When the process cannot be started or dies, the client
// degrades to a bounded local search instead of failing.
type Client struct {
	tr        Transport
	queue     chan *request
	timeout   time.Duration
	fb        *fallbackSearcher
	logger    *zap.Logger
	degraded  atomic.Bool
	done      chan struct{}
	closeOnce sync.Once
}

// New starts the engine process and performs the UCI handshake. A
// process that cannot be started leaves the client in fallback mode
// rather than returning an error.
func New(binaryPath string, timeout time.Duration, logger *zap.Logger) *Client {
	var tr Transport
	tr, err := newProcTransport(binaryPath)
	if err != nil {
		if logger != nil {
			logger.Warn("engine_start_failed", zap.String("path", binaryPath), zap.Error(err))
		}
		tr = nil
	}
	return NewWithTransport(tr, timeout, logger)
}

// NewWithTransport wires the client over an existing transport. A nil
// transport means fallback-only mode.
func NewWithTransport(tr Transport, timeout time.Duration, logger *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = DefaultQueryTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Client{
		tr:      tr,
		queue:   make(chan *request, queueCapacity),
		timeout: timeout,
		fb:      newFallbackSearcher(),
		logger:  logger,
		done:    make(chan struct{}),
	}
	if c.tr == nil {
		c.degraded.Store(true)
	} else if err := c.handshake(); err != nil {
		c.logger.Warn("engine_handshake_failed", zap.Error(err))
		_ = c.tr.Close()
		c.degraded.Store(true)
	}
	go c.serve()
	return c
}

func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		if c.tr != nil {
			err = c.tr.Close()
		}
	})
	return err
}

// Degraded reports whether queries are served by the local fallback.
func (c *Client) Degraded() bool { return c.degraded.Load() }

// BestMove asks for the engine's move at the given depth. A timed-out
// query resolves to an empty result, not an error.
func (c *Client) BestMove(ctx context.Context, fen string, depth int) (BestMoveResult, error) {
	resp, err := c.enqueue(ctx, &request{kind: queryBestMove, fen: fen, depth: depth})
	if err != nil {
		return BestMoveResult{}, err
	}
	return resp.best, resp.err
}

// Analyze evaluates the position. The deepest completed line wins.
func (c *Client) Analyze(ctx context.Context, fen string, depth int) (Analysis, error) {
	resp, err := c.enqueue(ctx, &request{kind: queryAnalyze, fen: fen, depth: depth})
	if err != nil {
		return Analysis{}, err
	}
	return resp.analysis, resp.err
}

// TopMoves ranks up to count candidate moves using MultiPV. MultiPV is
// always restored to 1 afterwards, timeout included.
func (c *Client) TopMoves(ctx context.Context, fen string, depth, count int) ([]RankedMove, error) {
	if count < 1 {
		count = 1
	}
	resp, err := c.enqueue(ctx, &request{kind: queryTopMoves, fen: fen, depth: depth, count: count})
	if err != nil {
		return nil, err
	}
	return resp.top, resp.err
}

func (c *Client) enqueue(ctx context.Context, req *request) (response, error) {
	req.reply = make(chan response, 1)
	select {
	case <-c.done:
		return response{}, ErrClientClosed
	case <-ctx.Done():
		return response{}, queryErr(ctx)
	case c.queue <- req:
	}
	select {
	case <-c.done:
		return response{}, ErrClientClosed
	case <-ctx.Done():
		return response{}, queryErr(ctx)
	case resp := <-req.reply:
		return resp, nil
	}
}

// queryErr maps a caller deadline onto the timeout sentinel; plain
// cancellation passes through.
func queryErr(ctx context.Context) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrEngineTimeout, ctx.Err())
	}
	return ctx.Err()
}

func (c *Client) serve() {
	for {
		select {
		case <-c.done:
			return
		case req := <-c.queue:
			req.reply <- c.process(req)
		}
	}
}

func (c *Client) process(req *request) response {
	if !c.degraded.Load() {
		resp, err := c.processEngine(req)
		if err == nil {
			return resp
		}
		// Transport failures are terminal for the process: degrade and
		// serve this and all later queries locally.
		c.logger.Warn("engine_degraded", zap.Error(err))
		c.degraded.Store(true)
		if c.tr != nil {
			_ = c.tr.Close()
		}
	}
	return c.processFallback(req)
}

func (c *Client) processEngine(req *request) (response, error) {
	multipv := 1
	if req.kind == queryTopMoves {
		multipv = req.count
	}
	out, err := c.runSearch(req.fen, req.depth, multipv)
	if err != nil {
		return response{}, err
	}
	if out.timedOut {
		c.logger.Warn("engine_query_timeout",
			zap.Int("depth", req.depth),
			zap.String("fen", req.fen))
	}

	switch req.kind {
	case queryBestMove:
		// An expired best-move query resolves to "no move" even when
		// the stop drain recovered one. The caller treats it as a pass.
		if out.timedOut {
			return response{best: BestMoveResult{Provenance: ProvenanceEngine}}, nil
		}
		return response{best: BestMoveResult{Move: out.best, Ponder: out.ponder, Provenance: ProvenanceEngine}}, nil
	case queryAnalyze:
		return response{analysis: analysisFrom(out)}, nil
	default:
		return response{top: rankedFrom(out, req.depth, req.count)}, nil
	}
}

type searchOutcome struct {
	records  []infoRecord
	best     string
	ponder   string
	timedOut bool
}

func (c *Client) runSearch(fen string, depth, multipv int) (searchOutcome, error) {
	// One process serves every session; ucinewgame clears its hash and
	// search state so nothing bleeds between positions.
	if err := c.tr.Send("ucinewgame"); err != nil {
		return searchOutcome{}, fmt.Errorf("send ucinewgame: %w", err)
	}
	if multipv > 1 {
		if err := c.tr.Send(fmt.Sprintf("setoption name MultiPV value %d", multipv)); err != nil {
			return searchOutcome{}, fmt.Errorf("set multipv: %w", err)
		}
		defer func() {
			_ = c.tr.Send("setoption name MultiPV value 1")
		}()
	}
	if err := c.tr.Send(positionCommand(fen)); err != nil {
		return searchOutcome{}, fmt.Errorf("send position: %w", err)
	}
	if err := c.tr.Send(fmt.Sprintf("go depth %d", depth)); err != nil {
		return searchOutcome{}, fmt.Errorf("send go: %w", err)
	}

	var out searchOutcome
	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	for {
		select {
		case line, ok := <-c.tr.Lines():
			if !ok {
				return searchOutcome{}, fmt.Errorf("engine stream closed")
			}
			if rec, ok := parseInfoLine(line); ok {
				out.records = append(out.records, rec)
				continue
			}
			if move, ponder, ok := parseBestMove(line); ok {
				out.best, out.ponder = move, ponder
				return out, nil
			}
		case <-timer.C:
			out.timedOut = true
			return c.drainAfterStop(out)
		}
	}
}

// drainAfterStop asks the engine to stop and gives it a short grace
// window to emit its bestmove, keeping the stream in sync for the next
// query.
func (c *Client) drainAfterStop(out searchOutcome) (searchOutcome, error) {
	if err := c.tr.Send("stop"); err != nil {
		return searchOutcome{}, fmt.Errorf("send stop: %w", err)
	}
	grace := time.NewTimer(stopGrace)
	defer grace.Stop()
	for {
		select {
		case line, ok := <-c.tr.Lines():
			if !ok {
				return searchOutcome{}, fmt.Errorf("engine stream closed")
			}
			if rec, ok := parseInfoLine(line); ok {
				out.records = append(out.records, rec)
				continue
			}
			if move, ponder, ok := parseBestMove(line); ok {
				out.best, out.ponder = move, ponder
				return out, nil
			}
		case <-grace.C:
			return out, nil
		}
	}
}

func (c *Client) handshake() error {
	if err := c.tr.Send("uci"); err != nil {
		return fmt.Errorf("send uci: %w", err)
	}
	if err := c.awaitToken("uciok", handshakeTimeout); err != nil {
		return fmt.Errorf("wait uciok: %w", err)
	}
	for _, cmd := range []string{
		"setoption name Threads value 1",
		"setoption name Hash value 16",
		"setoption name MultiPV value 1",
	} {
		if err := c.tr.Send(cmd); err != nil {
			return fmt.Errorf("apply options: %w", err)
		}
	}
	if err := c.tr.Send("isready"); err != nil {
		return fmt.Errorf("send isready: %w", err)
	}
	if err := c.awaitToken("readyok", handshakeTimeout); err != nil {
		return fmt.Errorf("wait readyok: %w", err)
	}
	return nil
}

func (c *Client) awaitToken(token string, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case line, ok := <-c.tr.Lines():
			if !ok {
				return fmt.Errorf("engine stream closed")
			}
			if strings.Contains(line, token) {
				return nil
			}
		case <-timer.C:
			return fmt.Errorf("timed out waiting for %q", token)
		}
	}
}

func (c *Client) processFallback(req *request) response {
	switch req.kind {
	case queryBestMove:
		move, _, err := c.fb.bestMove(req.fen, req.depth)
		if err != nil {
			return response{err: fmt.Errorf("%w: %v", ErrEngineUnavailable, err)}
		}
		return response{best: BestMoveResult{Move: move, Provenance: ProvenanceFallback}}
	case queryAnalyze:
		move, scoreCP, err := c.fb.bestMove(req.fen, req.depth)
		if err != nil {
			return response{err: fmt.Errorf("%w: %v", ErrEngineUnavailable, err)}
		}
		pawns := float64(scoreCP) / 100
		return response{analysis: Analysis{
			BestMove:   move,
			Depth:      c.fb.clampDepth(req.depth),
			ScorePawns: &pawns,
			Provenance: ProvenanceFallback,
		}}
	default:
		ranked, err := c.fb.topMoves(req.fen, req.depth, req.count)
		if err != nil {
			return response{err: fmt.Errorf("%w: %v", ErrEngineUnavailable, err)}
		}
		return response{top: ranked}
	}
}

func positionCommand(fen string) string {
	fen = strings.TrimSpace(fen)
	if fen == "" || fen == "startpos" {
		return "position startpos"
	}
	return "position fen " + fen
}

func analysisFrom(out searchOutcome) Analysis {
	a := Analysis{BestMove: out.best, Provenance: ProvenanceEngine}
	for _, rec := range out.records {
		if rec.MultiPV != 1 || rec.Depth < a.Depth {
			continue
		}
		a.Depth = rec.Depth
		a.ScorePawns = nil
		a.MateIn = nil
		if rec.ScoreCP != nil {
			pawns := float64(*rec.ScoreCP) / 100
			a.ScorePawns = &pawns
		}
		if rec.MateIn != nil {
			mate := *rec.MateIn
			a.MateIn = &mate
		}
		if a.BestMove == "" && len(rec.PV) > 0 {
			a.BestMove = rec.PV[0]
		}
	}
	return a
}

func rankedFrom(out searchOutcome, depth, count int) []RankedMove {
	// Only lines at exactly the requested depth rank; shallower
	// iterations would mix depths across candidates.
	byRank := map[int]infoRecord{}
	for _, rec := range out.records {
		if rec.Depth != depth || len(rec.PV) == 0 {
			continue
		}
		byRank[rec.MultiPV] = rec
	}
	ranks := make([]int, 0, len(byRank))
	for r := range byRank {
		ranks = append(ranks, r)
	}
	sort.Ints(ranks)

	ranked := make([]RankedMove, 0, len(ranks))
	for _, r := range ranks {
		if len(ranked) >= count {
			break
		}
		rec := byRank[r]
		rm := RankedMove{Rank: r, Move: rec.PV[0], Provenance: ProvenanceEngine}
		if rec.ScoreCP != nil {
			pawns := float64(*rec.ScoreCP) / 100
			rm.ScorePawns = &pawns
		}
		if rec.MateIn != nil {
			mate := *rec.MateIn
			rm.MateIn = &mate
		}
		line := rec.PV
		if len(line) > pvLineLength {
			line = line[:pvLineLength]
		}
		rm.Line = strings.Join(line, " ")
		ranked = append(ranked, rm)
	}
	return ranked
}
