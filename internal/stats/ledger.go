package stats

import (
	"context"
	"strconv"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/park285/chess-arena-bot/internal/domain"
	"github.com/park285/chess-arena-bot/internal/game"
	"github.com/park285/chess-arena-bot/internal/rules"
)

const keyPrefix = "arena:stats:"

// Ledger keeps per-player win/loss/draw counters in a redis hash. It
// plugs into the registry as an outcome sink; engine seats are never
// recorded.
type Ledger struct {
	rdb    *redis.Client
	logger *zap.Logger
}

func NewLedger(rdb *redis.Client, logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{rdb: rdb, logger: logger}
}

func key(playerID string) string { return keyPrefix + playerID }

// SessionFinished records the outcome for each human participant.
func (l *Ledger) SessionFinished(ctx context.Context, snap game.Snapshot) {
	if !snap.Status.Terminal() {
		return
	}
	seats := []struct {
		p    domain.Participant
		side rules.Side
	}{
		{snap.White, rules.SideWhite},
		{snap.Black, rules.SideBlack},
	}
	for _, seat := range seats {
		if seat.p.IsEngine() {
			continue
		}
		field := "draws"
		if snap.Decisive {
			field = "losses"
			if snap.Winner == seat.side {
				field = "wins"
			}
		}
		if err := l.record(ctx, seat.p.ID, field); err != nil {
			l.logger.Error("stats_record_error",
				zap.String("player_id", seat.p.ID),
				zap.String("field", field),
				zap.Error(err))
			continue
		}
		l.logger.Info("stats_record",
			zap.String("player_id", seat.p.ID),
			zap.String("field", field),
			zap.String("session_id", snap.ID))
	}
}

func (l *Ledger) record(ctx context.Context, playerID, field string) error {
	pipe := l.rdb.TxPipeline()
	pipe.HIncrBy(ctx, key(playerID), field, 1)
	pipe.HIncrBy(ctx, key(playerID), "games", 1)
	_, err := pipe.Exec(ctx)
	return err
}

// Stats loads a player's counters. Unknown players read as zeroes.
func (l *Ledger) Stats(ctx context.Context, playerID string) (domain.PlayerStats, error) {
	out := domain.PlayerStats{PlayerID: playerID}
	raw, err := l.rdb.HGetAll(ctx, key(playerID)).Result()
	if err != nil {
		return out, err
	}
	out.Wins = atoiField(raw, "wins")
	out.Losses = atoiField(raw, "losses")
	out.Draws = atoiField(raw, "draws")
	out.Games = atoiField(raw, "games")
	return out, nil
}

func atoiField(m map[string]string, field string) int {
	n, _ := strconv.Atoi(m[field])
	return n
}
