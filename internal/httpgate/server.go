package httpgate

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/park285/chess-arena-bot/internal/arena"
	"github.com/park285/chess-arena-bot/internal/domain"
	"github.com/park285/chess-arena-bot/internal/engine"
	"github.com/park285/chess-arena-bot/internal/game"
	"github.com/park285/chess-arena-bot/internal/stats"
	"github.com/park285/chess-arena-bot/pkg/arenadto"
)

// Server is the HTTP surface over the arena facade: session lifecycle,
// moves, assist toggles, and read-only snapshots and stats.
type Server struct {
	svc      *arena.Service
	registry *game.Registry
	ledger   *stats.Ledger
	logger   *zap.Logger
	srv      *fasthttp.Server
}

func NewServer(svc *arena.Service, registry *game.Registry, ledger *stats.Ledger, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{svc: svc, registry: registry, ledger: ledger, logger: logger}
	s.srv = &fasthttp.Server{
		Handler:               s.route,
		Name:                  "arena-gate",
		ReadBufferSize:        16 * 1024,
		NoDefaultServerHeader: true,
	}
	return s
}

// ListenAndServe blocks serving the gate.
func (s *Server) ListenAndServe(addr string) error {
	s.logger.Info("httpgate_listen", zap.String("addr", addr))
	return s.srv.ListenAndServe(addr)
}

func (s *Server) Shutdown() error { return s.srv.Shutdown() }

func (s *Server) route(ctx *fasthttp.RequestCtx) {
	path := string(ctx.Path())
	method := string(ctx.Method())
	switch {
	case path == "/healthz" && method == fasthttp.MethodGet:
		s.handleHealth(ctx)
	case path == "/sessions" && method == fasthttp.MethodPost:
		s.handleStart(ctx)
	case strings.HasPrefix(path, "/sessions/") && method == fasthttp.MethodGet:
		s.handleSession(ctx, strings.TrimPrefix(path, "/sessions/"))
	case strings.HasPrefix(path, "/players/"):
		s.handlePlayer(ctx, method, strings.TrimPrefix(path, "/players/"))
	default:
		writeError(ctx, fasthttp.StatusNotFound, "not_found", "unknown path")
	}
}

func (s *Server) handleHealth(ctx *fasthttp.RequestCtx) {
	writeJSON(ctx, fasthttp.StatusOK, map[string]any{
		"status":   "ok",
		"sessions": s.registry.Count(),
	})
}

type startRequest struct {
	PlayerID   string `json:"player_id"`
	PlayerName string `json:"player_name"`
	Level      string `json:"level"`
}

func (s *Server) handleStart(ctx *fasthttp.RequestCtx) {
	var req startRequest
	if err := json.Unmarshal(ctx.PostBody(), &req); err != nil || req.PlayerID == "" {
		writeError(ctx, fasthttp.StatusBadRequest, "bad_request", "player_id is required")
		return
	}
	if req.PlayerName == "" {
		req.PlayerName = req.PlayerID
	}
	snap, text, err := s.svc.Start(ctx, req.PlayerID, req.PlayerName, req.Level)
	if err != nil {
		writeFailure(ctx, err)
		return
	}
	writeJSON(ctx, fasthttp.StatusCreated, outcomeBody(snap, text))
}

func (s *Server) handleSession(ctx *fasthttp.RequestCtx, id string) {
	sess, err := s.registry.Find(strings.TrimSpace(id))
	if err != nil {
		writeFailure(ctx, err)
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, ViewFromSnapshot(sess.Snapshot()))
}

type squareRequest struct {
	Square string `json:"square"`
}

type moveRequest struct {
	Move string `json:"move"`
}

func (s *Server) handlePlayer(ctx *fasthttp.RequestCtx, method, rest string) {
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) != 2 {
		writeError(ctx, fasthttp.StatusNotFound, "not_found", "unknown path")
		return
	}
	playerID, action := parts[0], parts[1]

	if method == fasthttp.MethodGet {
		switch action {
		case "session":
			snap, err := s.svc.Status(playerID)
			if err != nil {
				writeFailure(ctx, err)
				return
			}
			writeJSON(ctx, fasthttp.StatusOK, ViewFromSnapshot(snap))
		case "stats":
			s.handleStats(ctx, playerID)
		case "hint":
			text, err := s.svc.Hint(ctx, playerID)
			if err != nil {
				writeFailure(ctx, err)
				return
			}
			writeJSON(ctx, fasthttp.StatusOK, map[string]string{"text": text})
		case "eval":
			text, err := s.svc.Evaluate(ctx, playerID)
			if err != nil {
				writeFailure(ctx, err)
				return
			}
			writeJSON(ctx, fasthttp.StatusOK, map[string]string{"text": text})
		default:
			writeError(ctx, fasthttp.StatusNotFound, "not_found", "unknown path")
		}
		return
	}

	if method != fasthttp.MethodPost {
		writeError(ctx, fasthttp.StatusMethodNotAllowed, "method_not_allowed", "use GET or POST")
		return
	}

	switch action {
	case "select":
		var req squareRequest
		if err := json.Unmarshal(ctx.PostBody(), &req); err != nil || req.Square == "" {
			writeError(ctx, fasthttp.StatusBadRequest, "bad_request", "square is required")
			return
		}
		targets, err := s.svc.SelectPiece(playerID, req.Square)
		if err != nil {
			writeFailure(ctx, err)
			return
		}
		writeJSON(ctx, fasthttp.StatusOK, map[string][]string{"targets": targets})
	case "deselect":
		if err := s.svc.ClearSelection(playerID); err != nil {
			writeFailure(ctx, err)
			return
		}
		ctx.SetStatusCode(fasthttp.StatusNoContent)
	case "target":
		var req squareRequest
		if err := json.Unmarshal(ctx.PostBody(), &req); err != nil || req.Square == "" {
			writeError(ctx, fasthttp.StatusBadRequest, "bad_request", "square is required")
			return
		}
		out, err := s.svc.SelectTarget(ctx, playerID, req.Square)
		if err != nil {
			writeFailure(ctx, err)
			return
		}
		writeJSON(ctx, fasthttp.StatusOK, outcomeBody(out.Snapshot, out.Text))
	case "moves":
		var req moveRequest
		if err := json.Unmarshal(ctx.PostBody(), &req); err != nil || req.Move == "" {
			writeError(ctx, fasthttp.StatusBadRequest, "bad_request", "move is required")
			return
		}
		out, err := s.svc.Play(ctx, playerID, req.Move)
		if err != nil {
			writeFailure(ctx, err)
			return
		}
		writeJSON(ctx, fasthttp.StatusOK, outcomeBody(out.Snapshot, out.Text))
	case "undo":
		snap, text, err := s.svc.Undo(playerID)
		if err != nil {
			writeFailure(ctx, err)
			return
		}
		writeJSON(ctx, fasthttp.StatusOK, outcomeBody(snap, text))
	case "resign":
		out, err := s.svc.Resign(ctx, playerID)
		if err != nil {
			writeFailure(ctx, err)
			return
		}
		writeJSON(ctx, fasthttp.StatusOK, outcomeBody(out.Snapshot, out.Text))
	case "autoplay":
		on, text, err := s.svc.ToggleAutoPlay(ctx, playerID)
		if err != nil {
			writeFailure(ctx, err)
			return
		}
		writeJSON(ctx, fasthttp.StatusOK, map[string]any{"enabled": on, "text": text})
	case "quit":
		if err := s.svc.Quit(playerID); err != nil {
			writeFailure(ctx, err)
			return
		}
		ctx.SetStatusCode(fasthttp.StatusNoContent)
	default:
		writeError(ctx, fasthttp.StatusNotFound, "not_found", "unknown path")
	}
}

func (s *Server) handleStats(ctx *fasthttp.RequestCtx, playerID string) {
	if s.ledger == nil {
		writeError(ctx, fasthttp.StatusNotFound, "stats_disabled", "stats ledger not configured")
		return
	}
	st, err := s.ledger.Stats(context.Background(), playerID)
	if err != nil {
		writeError(ctx, fasthttp.StatusInternalServerError, "stats_error", err.Error())
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, arenadto.StatsView{
		PlayerID: st.PlayerID,
		Wins:     st.Wins,
		Losses:   st.Losses,
		Draws:    st.Draws,
		Games:    st.Games,
	})
}

func outcomeBody(snap game.Snapshot, text string) map[string]any {
	body := map[string]any{"session": ViewFromSnapshot(snap)}
	if text != "" {
		body["text"] = text
	}
	return body
}

// ViewFromSnapshot maps a session snapshot onto the wire DTO.
func ViewFromSnapshot(snap game.Snapshot) arenadto.SessionView {
	view := arenadto.SessionView{
		ID:        snap.ID,
		White:     participantView(snap.White),
		Black:     participantView(snap.Black),
		Level:     snap.Level,
		FEN:       snap.FEN,
		Turn:      string(snap.Turn),
		Phase:     string(snap.Phase),
		Selected:  snap.Selected,
		Status:    string(snap.Status),
		WhiteMS:   snap.WhiteMS,
		BlackMS:   snap.BlackMS,
		Nerfed:    snap.Nerfed,
		AutoPlay:  snap.AutoPlay,
		CreatedAt: snap.CreatedAt,
	}
	if snap.Decisive {
		view.Winner = string(snap.Winner)
	}
	view.Moves = make([]arenadto.MoveView, 0, len(snap.History))
	for _, rec := range snap.History {
		view.Moves = append(view.Moves, arenadto.MoveView{
			Number:    rec.Number,
			Side:      string(rec.Side),
			UCI:       rec.UCI,
			SAN:       rec.SAN,
			Capture:   rec.Capture,
			Check:     rec.Check,
			AutoMoved: rec.AutoMoved,
		})
	}
	return view
}

func participantView(p domain.Participant) arenadto.ParticipantView {
	view := arenadto.ParticipantView{Kind: string(p.Kind), ID: p.ID, Name: p.Name}
	if p.IsEngine() {
		view.Level = p.Level.Label
	}
	return view
}

// writeFailure maps domain sentinels onto HTTP statuses.
func writeFailure(ctx *fasthttp.RequestCtx, err error) {
	switch {
	case errors.Is(err, game.ErrSessionNotFound):
		writeError(ctx, fasthttp.StatusNotFound, "session_not_found", "no such session")
	case errors.Is(err, game.ErrAlreadyInSession):
		writeError(ctx, fasthttp.StatusConflict, "already_in_session", "player already has a live session")
	case errors.Is(err, game.ErrNotAParticipant), errors.Is(err, arena.ErrNotAllowed):
		writeError(ctx, fasthttp.StatusForbidden, "not_allowed", err.Error())
	case errors.Is(err, game.ErrNotYourTurn):
		writeError(ctx, fasthttp.StatusConflict, "not_your_turn", "it is not your turn")
	case errors.Is(err, game.ErrNoSelection):
		writeError(ctx, fasthttp.StatusConflict, "no_selection", "select a piece first")
	case errors.Is(err, game.ErrNothingToUndo):
		writeError(ctx, fasthttp.StatusConflict, "nothing_to_undo", "no move pair to take back")
	case errors.Is(err, game.ErrGameFinished):
		writeError(ctx, fasthttp.StatusConflict, "game_finished", "the game is over")
	case errors.Is(err, game.ErrIllegalMove):
		writeError(ctx, fasthttp.StatusUnprocessableEntity, "illegal_move", err.Error())
	case errors.Is(err, arena.ErrUnknownLevel):
		writeError(ctx, fasthttp.StatusUnprocessableEntity, "unknown_level", err.Error())
	case errors.Is(err, engine.ErrEngineUnavailable), errors.Is(err, engine.ErrEngineTimeout):
		writeJSON(ctx, fasthttp.StatusServiceUnavailable, arenadto.DomainError{
			Code: "engine_unavailable", Message: err.Error(), Retryable: true,
		})
	default:
		writeError(ctx, fasthttp.StatusInternalServerError, "internal", err.Error())
	}
}

func writeJSON(ctx *fasthttp.RequestCtx, status int, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
		return
	}
	ctx.SetStatusCode(status)
	ctx.SetContentType("application/json; charset=utf-8")
	ctx.SetBody(body)
}

func writeError(ctx *fasthttp.RequestCtx, status int, code, message string) {
	writeJSON(ctx, status, arenadto.DomainError{Code: code, Message: message})
}
