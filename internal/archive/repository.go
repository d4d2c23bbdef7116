package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/park285/chess-arena-bot/internal/domain"
	"github.com/park285/chess-arena-bot/internal/game"
	"github.com/park285/chess-arena-bot/internal/rules"
)

// Store persists finished games.
type Store interface {
	Save(ctx context.Context, rec *domain.FinishedGame) error
	BySession(ctx context.Context, sessionUUID string) (*domain.FinishedGame, error)
	Close() error
}

// Repository writes finished games to postgres.
type Repository struct {
	db *sql.DB
}

func NewRepository(databaseURL string) (*Repository, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return &Repository{db: db}, nil
}

func (r *Repository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

// Save upserts a finished game keyed by its session UUID.
func (r *Repository) Save(ctx context.Context, rec *domain.FinishedGame) error {
	if r == nil || r.db == nil || rec == nil {
		return nil
	}
	movesUCIRaw, _ := json.Marshal(rec.MovesUCI)
	movesSANRaw, _ := json.Marshal(rec.MovesSAN)
	duration := rec.Duration.Milliseconds()
	if duration < 0 {
		duration = 0
	}

	q := `INSERT INTO arena_games (
	    session_uuid, white_id, white_name, black_id, black_name,
	    level, result, result_method, moves_uci, moves_san, pgn,
	    started_at, ended_at, duration_ms
	  ) VALUES (
	    $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14
	  ) ON CONFLICT (session_uuid) DO UPDATE SET
	    result=EXCLUDED.result,
	    result_method=EXCLUDED.result_method,
	    moves_uci=EXCLUDED.moves_uci,
	    moves_san=EXCLUDED.moves_san,
	    pgn=EXCLUDED.pgn,
	    ended_at=EXCLUDED.ended_at,
	    duration_ms=EXCLUDED.duration_ms`

	_, err := r.db.ExecContext(ctx, q,
		rec.SessionUUID,
		rec.WhiteID, rec.WhiteName,
		rec.BlackID, rec.BlackName,
		rec.Level, rec.Result, rec.Method,
		string(movesUCIRaw), string(movesSANRaw), rec.PGN,
		rec.StartedAt, rec.EndedAt, duration,
	)
	return err
}

// BySession loads one archived game.
func (r *Repository) BySession(ctx context.Context, sessionUUID string) (*domain.FinishedGame, error) {
	q := `SELECT id, session_uuid, white_id, white_name, black_id, black_name,
	    level, result, result_method, moves_uci, moves_san, pgn,
	    started_at, ended_at, duration_ms
	  FROM arena_games WHERE session_uuid = $1`
	row := r.db.QueryRowContext(ctx, q, sessionUUID)

	var rec domain.FinishedGame
	var movesUCIRaw, movesSANRaw string
	var durationMS int64
	err := row.Scan(&rec.ID, &rec.SessionUUID,
		&rec.WhiteID, &rec.WhiteName, &rec.BlackID, &rec.BlackName,
		&rec.Level, &rec.Result, &rec.Method,
		&movesUCIRaw, &movesSANRaw, &rec.PGN,
		&rec.StartedAt, &rec.EndedAt, &durationMS)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	_ = json.Unmarshal([]byte(movesUCIRaw), &rec.MovesUCI)
	_ = json.Unmarshal([]byte(movesSANRaw), &rec.MovesSAN)
	rec.Duration = time.Duration(durationMS) * time.Millisecond
	return &rec, nil
}

// Sink adapts a Store into a registry outcome sink.
type Sink struct {
	store  Store
	logger *zap.Logger
}

func NewSink(store Store, logger *zap.Logger) *Sink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sink{store: store, logger: logger}
}

func (s *Sink) SessionFinished(ctx context.Context, snap game.Snapshot) {
	if !snap.Status.Terminal() {
		return
	}
	rec := RecordFromSnapshot(snap)
	if err := s.store.Save(ctx, rec); err != nil {
		s.logger.Error("archive_save_error",
			zap.String("session_id", snap.ID),
			zap.Error(err))
		return
	}
	s.logger.Info("archive_save",
		zap.String("session_id", snap.ID),
		zap.String("result", rec.Result),
		zap.String("method", rec.Method))
}

// RecordFromSnapshot maps a finished session onto the archive schema.
func RecordFromSnapshot(snap game.Snapshot) *domain.FinishedGame {
	result := "draw"
	if snap.Decisive {
		result = string(snap.Winner)
	}
	return &domain.FinishedGame{
		SessionUUID: snap.ID,
		WhiteID:     snap.White.ID,
		WhiteName:   snap.White.Name,
		BlackID:     snap.Black.ID,
		BlackName:   snap.Black.Name,
		Level:       snap.Level,
		Result:      result,
		Method:      methodFor(snap.Status),
		MovesUCI:    append([]string(nil), snap.MovesUCI...),
		MovesSAN:    append([]string(nil), snap.MovesSAN...),
		PGN:         BuildPGN(snap),
		StartedAt:   snap.CreatedAt,
		EndedAt:     snap.ObservedAt,
		Duration:    snap.ObservedAt.Sub(snap.CreatedAt),
	}
}

func methodFor(st game.Status) string {
	switch st {
	case game.StatusCheckmate:
		return "checkmate"
	case game.StatusStalemate:
		return "stalemate"
	case game.StatusDraw:
		return "draw_rule"
	case game.StatusRepetition:
		return "repetition"
	case game.StatusInsufficient:
		return "insufficient_material"
	case game.StatusResigned:
		return "resignation"
	case game.StatusWhiteTimeout, game.StatusBlackTimeout:
		return "timeout"
	}
	return ""
}

func mapResultToPGN(result string) string {
	switch result {
	case string(rules.SideWhite):
		return "1-0"
	case string(rules.SideBlack):
		return "0-1"
	case "draw":
		return "1/2-1/2"
	default:
		return "*"
	}
}

// BuildPGN renders headers plus numbered algebraic moves.
func BuildPGN(snap game.Snapshot) string {
	result := "draw"
	if snap.Decisive {
		result = string(snap.Winner)
	}
	pgnResult := mapResultToPGN(result)

	var b strings.Builder
	date := snap.ObservedAt
	if date.IsZero() {
		date = time.Now()
	}
	b.WriteString("[Event \"Arena\"]\n")
	b.WriteString(fmt.Sprintf("[Date \"%04d.%02d.%02d\"]\n", date.Year(), int(date.Month()), date.Day()))
	b.WriteString(fmt.Sprintf("[White \"%s\"]\n", sanitizePGN(snap.White.Name)))
	b.WriteString(fmt.Sprintf("[Black \"%s\"]\n", sanitizePGN(snap.Black.Name)))
	if method := methodFor(snap.Status); method != "" {
		b.WriteString(fmt.Sprintf("[Termination \"%s\"]\n", method))
	}
	b.WriteString(fmt.Sprintf("[Result \"%s\"]\n\n", pgnResult))

	for i := 0; i < len(snap.MovesSAN); i += 2 {
		turn := (i / 2) + 1
		b.WriteString(fmt.Sprintf("%d. %s", turn, strings.TrimSpace(snap.MovesSAN[i])))
		if i+1 < len(snap.MovesSAN) {
			b.WriteString(" ")
			b.WriteString(strings.TrimSpace(snap.MovesSAN[i+1]))
		}
		b.WriteString(" ")
	}
	b.WriteString(pgnResult)
	return b.String()
}

func sanitizePGN(s string) string {
	s = strings.ReplaceAll(s, "\\", " ")
	s = strings.ReplaceAll(s, "\"", "'")
	return strings.TrimSpace(s)
}
